package balance

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/logger"
)

var (
	mainThreshold       = decimal.NewFromInt(200)
	advanceThreshold    = decimal.NewFromInt(200)
	advanceLowThreshold = decimal.NewFromInt(100)
)

// ErrNoBalances means neither balance could be fetched.
var ErrNoBalances = errors.New("no balance available")

// CycleReport summarises one balance pass.
type CycleReport struct {
	Accounts int `json:"accounts"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

// Monitor warns users once when their marketplace balances run low.
type Monitor struct {
	logger      *logger.Logger
	repo        models.Repository
	market      models.MarketplaceClient
	notificator models.NotificationService
}

func NewMonitor(repo models.Repository, market models.MarketplaceClient, notificator models.NotificationService, logger *logger.Logger) *Monitor {
	return &Monitor{
		logger:      logger,
		repo:        repo,
		market:      market,
		notificator: notificator,
	}
}

// Check fetches both balances of one user. A nil field means that lookup failed.
func (m *Monitor) Check(ctx context.Context, userID string) (*models.Balances, error) {
	user, err := m.repo.GetUser(userID)
	if err != nil {
		return nil, err
	}

	balances, err := m.fetch(ctx, user)
	if err != nil {
		return nil, err
	}
	if balances.Main == nil && balances.Advance == nil {
		return nil, ErrNoBalances
	}

	return balances, nil
}

// RunCycle checks the balances of every active account and sends at most one
// warning per account.
func (m *Monitor) RunCycle(ctx context.Context) (CycleReport, error) {
	users, err := m.repo.ListActiveUsers()
	if err != nil {
		return CycleReport{}, fmt.Errorf("failed to list active users: %w", err)
	}

	var report CycleReport
	for _, user := range users {
		if ctx.Err() != nil {
			break
		}
		report.Accounts++

		notified, err := m.safeCheckUser(ctx, user)
		if err != nil {
			m.logger.Warn("Balance check failed", "user", user.ID, "error", err)
			report.Failed++
			continue
		}
		if notified {
			report.Notified++
		}
	}

	m.logger.Info("Balance check finished", "accounts", report.Accounts, "notified", report.Notified, "failed", report.Failed)

	return report, ctx.Err()
}

func (m *Monitor) safeCheckUser(ctx context.Context, user *models.User) (notified bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Balance check panicked", "user", user.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.checkUser(ctx, user)
}

func (m *Monitor) checkUser(ctx context.Context, user *models.User) (bool, error) {
	balances, err := m.fetch(ctx, user)
	if err != nil {
		return false, err
	}

	var warnings []string

	if balances.Main != nil && balances.Main.Real.LessThan(mainThreshold) && !user.NotifiedMainBalance200 {
		if err := m.repo.SetBalanceFlag(user.ID, models.FlagMainBalance200); err != nil {
			return false, err
		}
		warnings = append(warnings, fmt.Sprintf("⚠️ Main balance is below %s ₽!\nCurrent balance: %s ₽",
			mainThreshold, balances.Main.Real.StringFixed(2)))
	}

	if balances.Advance != nil {
		advance := *balances.Advance
		if advance.LessThan(advanceThreshold) && !user.NotifiedAdvance200 {
			if err := m.repo.SetBalanceFlag(user.ID, models.FlagAdvance200); err != nil {
				return false, err
			}
			warnings = append(warnings, fmt.Sprintf("⚠️ Advance balance is below %s ₽!\nCurrent advance: %s ₽",
				advanceThreshold, advance.StringFixed(2)))
		}
		if advance.LessThan(advanceLowThreshold) && !user.NotifiedAdvance100 {
			if err := m.repo.SetBalanceFlag(user.ID, models.FlagAdvance100); err != nil {
				return false, err
			}
			warnings = append(warnings, fmt.Sprintf("❗️ Advance balance is below %s ₽!\nCurrent advance: %s ₽",
				advanceLowThreshold, advance.StringFixed(2)))
		}
	}

	if len(warnings) == 0 {
		return false, nil
	}

	message := "❗️ Low balance!\n\n" + strings.Join(warnings, "\n\n") +
		"\n\nPlease top up your balance to keep the service running."
	if err := m.notificator.SendNotification(ctx, user.ID, message); err != nil {
		// Flags stay set: the warning is one-shot even when delivery fails.
		m.logger.Error("Failed to send low balance warning", "user", user.ID, "error", err)
		return false, nil
	}

	return true, nil
}

func (m *Monitor) fetch(ctx context.Context, user *models.User) (*models.Balances, error) {
	creds := user.Credentials()
	token, err := m.market.Token(ctx, creds)
	if err != nil {
		return nil, err
	}

	balances := &models.Balances{}

	main, err := m.market.MainBalance(ctx, token, user.MarketplaceUserID)
	if err != nil {
		m.logger.Debug("Main balance unavailable", "user", user.ID, "error", err)
		if errors.Is(err, models.ErrAuthFailure) {
			m.market.InvalidateToken(creds)
		}
	} else {
		balances.Main = main
	}

	advance, err := m.market.AdvanceBalance(ctx, token)
	if err != nil {
		m.logger.Debug("Advance balance unavailable", "user", user.ID, "error", err)
	} else {
		balances.Advance = &advance
	}

	return balances, nil
}
