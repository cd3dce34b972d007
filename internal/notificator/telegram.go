package notificator

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/avireply/avireply/pkg/logger"
)

// UpdateHandler consumes incoming bot updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *tgModels.Update) []Reply
}

type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot

	webhookURL    string
	webhookSecret string

	handler UpdateHandler
}

func NewTelegramNotificator(logger *logger.Logger, token, webhookURL, webhookSecret string, opts ...bot.Option) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger:        logger,
		webhookURL:    webhookURL,
		webhookSecret: webhookSecret,
	}
	opts = append([]bot.Option{bot.WithDefaultHandler(provider.handle)}, opts...)
	if webhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(webhookSecret))
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	provider.bot = b

	return provider, nil
}

// SetHandler attaches the front-end. It must be called before Start.
func (t *TelegramNotificator) SetHandler(h UpdateHandler) {
	t.handler = h
}

// Start receives updates until ctx is done, through the webhook when one is
// configured and by long polling otherwise.
func (t *TelegramNotificator) Start(ctx context.Context) error {
	if t.webhookURL == "" {
		if _, err := t.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
			t.logger.Warn("Failed to delete telegram webhook", "error", err)
		}
		t.logger.Info("Receiving telegram updates by long polling")
		t.bot.Start(ctx)
		return nil
	}

	if _, err := t.bot.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:         t.webhookURL,
		SecretToken: t.webhookSecret,
	}); err != nil {
		return fmt.Errorf("failed to set telegram webhook: %w", err)
	}
	t.logger.Info("Receiving telegram updates by webhook", "url", t.webhookURL)
	t.bot.StartWebhook(ctx)
	return nil
}

// WebhookHandler accepts updates posted by Telegram.
func (t *TelegramNotificator) WebhookHandler() http.HandlerFunc {
	return t.bot.WebhookHandler()
}

func (t *TelegramNotificator) SendNotification(ctx context.Context, chatID, message string) error {
	return t.send(ctx, chatID, Reply{Text: message})
}

func (t *TelegramNotificator) SendLink(ctx context.Context, chatID, message, buttonText, url string) error {
	return t.send(ctx, chatID, Reply{Text: message, Keyboard: linkKeyboard(buttonText, url)})
}

func (t *TelegramNotificator) send(ctx context.Context, chatID string, reply Reply) error {
	var markup tgModels.ReplyMarkup
	if reply.Keyboard != nil {
		markup = reply.Keyboard
	}

	if reply.Photo != nil {
		_, err := t.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:      chatID,
			Photo:       &tgModels.InputFileUpload{Filename: "qr.png", Data: bytes.NewReader(reply.Photo)},
			Caption:     reply.Text,
			ReplyMarkup: markup,
		})
		if err != nil {
			return fmt.Errorf("failed to send photo: %w", err)
		}
		return nil
	}

	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        reply.Text,
		ReplyMarkup: markup,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (t *TelegramNotificator) handle(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
	if t.handler == nil {
		t.logger.Warn("Telegram update received before the front-end was attached")
		return
	}

	chatID, ok := chatOf(update)
	if !ok {
		t.logger.Debug("Ignoring telegram update", "update_id", update.ID)
		return
	}

	if update.CallbackQuery != nil {
		if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: update.CallbackQuery.ID}); err != nil {
			t.logger.Debug("Failed to answer callback query", "error", err)
		}
	}

	for _, reply := range t.handler.HandleUpdate(ctx, update) {
		if err := t.send(ctx, chatID, reply); err != nil {
			t.logger.Error("Failed to send reply", "chat", chatID, "error", err)
			return
		}
	}
}

// chatOf returns where replies to the update go. Callback replies go to the
// chat of the message carrying the button, falling back to the user.
func chatOf(update *tgModels.Update) (string, bool) {
	switch {
	case update.Message != nil:
		return fmt.Sprint(update.Message.Chat.ID), true
	case update.CallbackQuery != nil:
		if msg := update.CallbackQuery.Message.Message; msg != nil {
			return fmt.Sprint(msg.Chat.ID), true
		}
		return fmt.Sprint(update.CallbackQuery.From.ID), true
	}
	return "", false
}
