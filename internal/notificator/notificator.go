package notificator

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/logger"
)

// Sender delivers bot messages to a chat.
type Sender interface {
	SendNotification(ctx context.Context, chatID, message string) error
	SendLink(ctx context.Context, chatID, message, buttonText, url string) error
}

// Notificator delivers notifications to bot users. A user's Telegram ID is also
// their private chat ID.
type Notificator struct {
	logger *logger.Logger

	TelegramNotificator Sender
}

var _ models.NotificationService = (*Notificator)(nil)

func NewNotificator(logger *logger.Logger, telNotif Sender) *Notificator {
	return &Notificator{logger: logger, TelegramNotificator: telNotif}
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func() error, context string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("%s panicked: %v", context, r)
		}
	}()
	return fn()
}

func (n *Notificator) SendNotification(ctx context.Context, userID, message string) error {
	err := n.safeCall(func() error {
		return n.TelegramNotificator.SendNotification(ctx, userID, message)
	}, "telegramNotification")
	if err != nil {
		n.logger.Error("Failed to send notification", "user", userID, "error", err)
	}
	return err
}

func (n *Notificator) SendLink(ctx context.Context, userID, message, buttonText, url string) error {
	err := n.safeCall(func() error {
		return n.TelegramNotificator.SendLink(ctx, userID, message, buttonText, url)
	}, "telegramLink")
	if err != nil {
		n.logger.Error("Failed to send link", "user", userID, "error", err)
	}
	return err
}
