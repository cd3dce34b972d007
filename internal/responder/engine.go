package responder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/logger"
)

// ImageFetcher loads the bytes of an image attached to a user's replies.
type ImageFetcher interface {
	FetchImage(ctx context.Context, fileID string) ([]byte, error)
}

// Options tune one Engine.
type Options struct {
	// Workers bounds how many accounts are processed concurrently.
	Workers int
	// PageSize is the number of unread chats requested per account.
	PageSize int
	// Images is optional. Without it replies are text only.
	Images ImageFetcher
}

// CycleReport summarises one autoresponder pass.
type CycleReport struct {
	Accounts int `json:"accounts"`
	Sent     int `json:"sent"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Engine answers new marketplace conversations with the account's template,
// at most once per conversation.
type Engine struct {
	logger *logger.Logger
	repo   models.Repository
	market models.MarketplaceClient
	opts   Options

	now func() time.Time
}

func NewEngine(repo models.Repository, market models.MarketplaceClient, logger *logger.Logger, opts Options) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 100
	}
	return &Engine{
		logger: logger,
		repo:   repo,
		market: market,
		opts:   opts,
		now:    time.Now,
	}
}

// RunCycle makes one pass over every account with the autoresponder enabled.
// A failing account never stops the others.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	users, err := e.repo.ListActiveUsers()
	if err != nil {
		return CycleReport{}, fmt.Errorf("failed to list active users: %w", err)
	}

	var (
		report CycleReport
		mu     sync.Mutex
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, e.opts.Workers)

	for _, user := range users {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(u *models.User) {
			defer wg.Done()
			defer func() { <-sem }()

			r := e.safeProcess(ctx, u)

			mu.Lock()
			report.Accounts++
			report.Sent += r.Sent
			report.Skipped += r.Skipped
			report.Failed += r.Failed
			mu.Unlock()
		}(user)
	}

	wg.Wait()

	e.logger.Info("Message check finished",
		"accounts", report.Accounts, "sent", report.Sent, "skipped", report.Skipped, "failed", report.Failed)

	return report, ctx.Err()
}

func (e *Engine) safeProcess(ctx context.Context, user *models.User) (r CycleReport) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("Account processing panicked",
				"user", user.ID,
				"panic", rec,
				"stack", string(debug.Stack()))
			r.Failed++
		}
	}()
	return e.processAccount(ctx, user)
}

func (e *Engine) processAccount(ctx context.Context, user *models.User) CycleReport {
	var r CycleReport
	creds := user.Credentials()

	token, err := e.market.Token(ctx, creds)
	if err != nil {
		e.logger.Warn("Failed to get marketplace token", "user", user.ID, "error", err)
		r.Failed++
		return r
	}

	chats, err := e.market.ListUnreadChats(ctx, token, user.MarketplaceUserID, e.opts.PageSize)
	if err != nil {
		if errors.Is(err, models.ErrAuthFailure) {
			e.market.InvalidateToken(creds)
		}
		e.logger.Warn("Failed to list unread chats", "user", user.ID, "error", err)
		r.Failed++
		return r
	}

	template := strings.TrimSpace(user.Template)
	reportedMissing := false

	for _, chat := range chats {
		if ctx.Err() != nil {
			return r
		}

		replied, err := e.repo.HasReplied(user.ID, chat.ID)
		if err != nil {
			e.logger.Error("Failed to check reply ledger", "user", user.ID, "chat", chat.ID, "error", err)
			r.Failed++
			continue
		}
		if replied {
			r.Skipped++
			continue
		}

		if chat.LastMessageAt < user.AutoReplyStartTime {
			e.logger.Debug("Conversation predates auto-reply activation", "user", user.ID, "chat", chat.ID)
			r.Skipped++
			continue
		}

		if template == "" {
			if !reportedMissing {
				e.logger.Warn("No reply template set", "user", user.ID, "error", models.ErrConfigurationMissing)
				reportedMissing = true
			}
			r.Skipped++
			continue
		}

		e.sendImage(ctx, token, user, chat.ID)

		if err := e.market.SendText(ctx, token, user.MarketplaceUserID, chat.ID, user.Template); err != nil {
			if errors.Is(err, models.ErrAuthFailure) {
				e.market.InvalidateToken(creds)
			}
			e.logger.Warn("Failed to send reply", "user", user.ID, "chat", chat.ID, "error", err)
			r.Failed++
			continue
		}

		if err := e.repo.RecordReply(user.ID, chat.ID, e.now().Unix()); err != nil {
			// The reply went out but is not recorded, so the next cycle may repeat it.
			e.logger.Error("Failed to record reply, possible duplicate on next cycle",
				"user", user.ID, "chat", chat.ID, "error", err)
		}
		e.logger.Info("Reply sent", "user", user.ID, "chat", chat.ID)
		r.Sent++
	}

	return r
}

// sendImage sends the attached image ahead of the text. Failures never block the text reply.
func (e *Engine) sendImage(ctx context.Context, token string, user *models.User, chatID string) {
	if e.opts.Images == nil || user.ImageFileID == nil || *user.ImageFileID == "" {
		return
	}

	data, err := e.opts.Images.FetchImage(ctx, *user.ImageFileID)
	if err != nil {
		e.logger.Warn("Failed to fetch reply image", "user", user.ID, "error", err)
		return
	}
	imageID, err := e.market.UploadImage(ctx, token, user.MarketplaceUserID, data)
	if err != nil {
		e.logger.Warn("Failed to upload reply image", "user", user.ID, "error", err)
		return
	}
	if err := e.market.SendImage(ctx, token, user.MarketplaceUserID, chatID, imageID); err != nil {
		e.logger.Warn("Failed to send reply image", "user", user.ID, "chat", chatID, "error", err)
	}
}
