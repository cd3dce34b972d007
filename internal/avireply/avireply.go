package avireply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avireply/avireply/internal/balance"
	"github.com/avireply/avireply/internal/billing"
	"github.com/avireply/avireply/internal/config"
	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/internal/reminder"
	"github.com/avireply/avireply/internal/responder"
	"github.com/avireply/avireply/internal/scheduler"
	"github.com/avireply/avireply/pkg/logger"
)

// Cycle names, also used as lease names.
const (
	CycleMessages = "messages"
	CycleBalance  = "balance"
	CycleReminder = "reminder"
)

// Avireply is the main struct of the application.
// It wires the engines together and serves all business logic to the front-ends.
type Avireply struct {
	logger *logger.Logger
	config *config.Config

	repo      models.Repository
	market    models.MarketplaceClient
	responder *responder.Engine
	monitor   *balance.Monitor
	billing   *billing.Engine
	reminder  *reminder.Sender
	scheduler *scheduler.Scheduler

	now func() time.Time
}

// NewAvireply creates a new Avireply instance
func NewAvireply(
	repo models.Repository,
	market models.MarketplaceClient,
	provider models.PaymentProvider,
	notificator models.NotificationService,
	images responder.ImageFetcher,
	logger *logger.Logger,
	config *config.Config,
) (*Avireply, error) {
	a := &Avireply{
		logger: logger,
		config: config,
		repo:   repo,
		market: market,
		responder: responder.NewEngine(repo, market, logger.With("component", "responder"), responder.Options{
			Workers:  config.CycleWorkers,
			PageSize: config.ChatPageSize,
			Images:   images,
		}),
		monitor:   balance.NewMonitor(repo, market, notificator, logger.With("component", "balance")),
		billing:   billing.NewEngine(repo, provider, logger.With("component", "billing")),
		reminder:  reminder.NewSender(repo, notificator, config.ReminderText, config.ReminderURL, logger.With("component", "reminder")),
		scheduler: scheduler.New(repo, config.InstanceID, config.CycleTimeout, logger.With("component", "scheduler")),
		now:       time.Now,
	}

	jobs := []scheduler.Job{
		{Name: CycleMessages, Schedule: config.MessageCheckSchedule, Run: func(ctx context.Context) error {
			_, err := a.responder.RunCycle(ctx)
			return err
		}},
		{Name: CycleBalance, Schedule: config.BalanceCheckSchedule, Run: func(ctx context.Context) error {
			_, err := a.monitor.RunCycle(ctx)
			return err
		}},
		{Name: CycleReminder, Schedule: config.ReminderSchedule, Run: func(ctx context.Context) error {
			_, err := a.reminder.RunCycle(ctx)
			return err
		}},
	}
	for _, job := range jobs {
		if err := a.scheduler.Register(job); err != nil {
			return nil, err
		}
	}

	return a, nil
}

var _ models.AvireplyI = (*Avireply)(nil)

// Start starts the background cycles
func (a *Avireply) Start() {
	a.logger.Info("Starting background cycles", "instance", a.config.InstanceID)
	a.scheduler.Start()
}

func (a *Avireply) Stop(ctx context.Context) {
	a.scheduler.Stop(ctx)
}

func (a *Avireply) GetUser(userID string) (*models.User, error) {
	return a.repo.GetUser(userID)
}

// SaveCredentials stores new credentials and drops the token cached for the replaced ones.
func (a *Avireply) SaveCredentials(userID string, creds models.Credentials) (*models.User, error) {
	previous, err := a.repo.GetUser(userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	user, err := a.repo.SaveCredentials(userID, creds)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		old, saved := previous.Credentials(), user.Credentials()
		if old.ClientID != saved.ClientID || old.ClientSecret != saved.ClientSecret {
			a.market.InvalidateToken(old)
		}
	}
	a.logger.Info("Credentials saved", "user", userID, "marketplace_user", creds.MarketplaceUserID)
	return user, nil
}

// SetTemplate requires stored credentials, since the template belongs to an account.
func (a *Avireply) SetTemplate(userID, template string) error {
	err := a.repo.SetTemplate(userID, template)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: credentials not set", models.ErrConfigurationMissing)
	}
	return err
}

func (a *Avireply) ToggleAutoReply(userID string) (bool, error) {
	user, err := a.repo.GetUser(userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("%w: credentials not set", models.ErrConfigurationMissing)
	}
	if err != nil {
		return false, err
	}

	enabled := !user.AutoReplyEnabled
	if err := a.repo.SetAutoReply(userID, enabled, a.now().Unix()); err != nil {
		return false, err
	}
	a.logger.Info("Auto-reply toggled", "user", userID, "enabled", enabled)

	return enabled, nil
}

func (a *Avireply) CheckBalance(ctx context.Context, userID string) (*models.Balances, error) {
	balances, err := a.monitor.Check(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: credentials not set", models.ErrConfigurationMissing)
	}
	return balances, err
}

func (a *Avireply) ResetBalanceFlags(userID string) error {
	return a.repo.ResetBalanceFlags(userID)
}

func (a *Avireply) AvailableSlots(userID string) (int, error) {
	return a.billing.AvailableSlots(userID)
}

func (a *Avireply) CreatePaymentRequest(ctx context.Context, amount int64, accountCount int, userID string) (*models.PaymentHandle, error) {
	return a.billing.CreatePaymentRequest(ctx, amount, accountCount, userID)
}

func (a *Avireply) BuyAccounts(ctx context.Context, userID string, accountCount int) (*models.PaymentHandle, error) {
	return a.billing.BuyAccounts(ctx, userID, accountCount)
}

func (a *Avireply) PaymentStatus(ctx context.Context, paymentID string) models.PaymentStatus {
	return a.billing.CheckStatus(ctx, paymentID)
}

func (a *Avireply) ConfirmPayment(ctx context.Context, paymentID, userID string) (models.ConfirmOutcome, error) {
	return a.billing.ConfirmPayment(ctx, paymentID, userID)
}

func (a *Avireply) Reconcile(ctx context.Context, paymentID, userID string) (bool, error) {
	return a.billing.Reconcile(ctx, paymentID, userID)
}

func (a *Avireply) HasReplied(userID, chatID string) (bool, error) {
	return a.repo.HasReplied(userID, chatID)
}

// RecordReply marks a conversation as answered now, e.g. after a manual reply.
func (a *Avireply) RecordReply(userID, chatID string) error {
	return a.repo.RecordReply(userID, chatID, a.now().Unix())
}

func (a *Avireply) VerifyProviderToken(ctx context.Context) error {
	return a.billing.VerifyProviderToken(ctx)
}

func (a *Avireply) RunCycle(ctx context.Context, name string) error {
	return a.scheduler.RunNow(ctx, name)
}

func (a *Avireply) Cycles() []string {
	return a.scheduler.Jobs()
}
