package notificator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgModels "github.com/go-telegram/bot/models"

	"github.com/avireply/avireply/internal/billing"
	"github.com/avireply/avireply/internal/dialog"
	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/logger"
)

// Callback data of the inline buttons.
const (
	cbAddClientID   = "add_client_id"
	cbSetTemplate   = "set_template"
	cbToggleReply   = "toggle_auto_reply"
	cbCheckBalance  = "check_balance"
	cbSettings      = "settings"
	cbBuyMenu       = "buy_accounts"
	cbBuyPrefix     = "buy_"
	cbPaymentPrefix = "check_payment_"
)

const (
	genericError   = "❌ Something went wrong. Please try again later."
	needCredential = "❌ Set up your credentials first!"
)

// Reply is one message the bot sends back.
type Reply struct {
	Text     string
	Keyboard *tgModels.InlineKeyboardMarkup
	// Photo, when set, is sent as an image with Text as its caption.
	Photo []byte
}

// FrontEnd turns bot commands, button presses and dialog input into calls on the service.
type FrontEnd struct {
	logger  *logger.Logger
	app     models.AvireplyI
	dialog  *dialog.Machine
	adminID string
	// mailingBotURL is advertised in the main menu.
	mailingBotURL string
}

func NewFrontEnd(app models.AvireplyI, machine *dialog.Machine, adminID, mailingBotURL string, logger *logger.Logger) *FrontEnd {
	return &FrontEnd{
		logger:        logger,
		app:           app,
		dialog:        machine,
		adminID:       adminID,
		mailingBotURL: mailingBotURL,
	}
}

func (f *FrontEnd) HandleUpdate(ctx context.Context, update *tgModels.Update) []Reply {
	switch {
	case update.Message != nil && update.Message.From != nil:
		userID := fmt.Sprint(update.Message.From.ID)
		text := update.Message.Text
		if strings.HasPrefix(text, "/") {
			return f.HandleCommand(ctx, userID, text)
		}
		return f.HandleText(ctx, userID, text)
	case update.CallbackQuery != nil:
		return f.HandleCallback(ctx, fmt.Sprint(update.CallbackQuery.From.ID), update.CallbackQuery.Data)
	}
	return nil
}

// HandleCommand serves slash commands. Any command abandons an unfinished dialog.
func (f *FrontEnd) HandleCommand(ctx context.Context, userID, text string) []Reply {
	command := strings.Fields(text)[0]
	// Commands may be addressed as /start@botname in groups.
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	f.dialog.Cancel(userID)

	switch command {
	case "/start":
		return []Reply{f.mainMenu()}
	case "/settings":
		return []Reply{f.settings(userID)}
	case "/balance":
		return []Reply{f.balance(ctx, userID)}
	case "/slots":
		return []Reply{f.slots(userID)}
	case "/buy":
		return []Reply{buyMenu()}
	case "/test_token":
		return []Reply{f.testToken(ctx, userID)}
	}

	return []Reply{{Text: "Unknown command. Use /start to open the menu."}}
}

func (f *FrontEnd) HandleCallback(ctx context.Context, userID, data string) []Reply {
	switch {
	case data == cbAddClientID:
		f.dialog.BeginCredentials(userID)
		return []Reply{{Text: "Please enter your Client ID:"}}

	case data == cbSetTemplate:
		if _, err := f.app.GetUser(userID); err != nil {
			return []Reply{{Text: needCredential}}
		}
		f.dialog.BeginTemplate(userID)
		return []Reply{{Text: "📝 Send the auto-reply text.\nFor example: Hello! Thanks for your message, I will answer soon."}}

	case data == cbToggleReply:
		return []Reply{f.toggle(userID)}

	case data == cbCheckBalance:
		return []Reply{f.balance(ctx, userID)}

	case data == cbSettings:
		return []Reply{f.settings(userID)}

	case data == cbBuyMenu:
		return []Reply{buyMenu()}

	case strings.HasPrefix(data, cbPaymentPrefix):
		return []Reply{f.confirmPayment(ctx, userID, strings.TrimPrefix(data, cbPaymentPrefix))}

	case strings.HasPrefix(data, cbBuyPrefix):
		count, err := strconv.Atoi(strings.TrimPrefix(data, cbBuyPrefix))
		if err != nil {
			return []Reply{{Text: "❌ Invalid request."}}
		}
		return []Reply{f.buy(ctx, userID, count)}
	}

	f.logger.Debug("Unknown callback", "user", userID, "data", data)
	return nil
}

// HandleText feeds plain text into the user's dialog.
func (f *FrontEnd) HandleText(ctx context.Context, userID, text string) []Reply {
	res, err := f.dialog.Submit(userID, text)
	if errors.Is(err, dialog.ErrUnexpectedInput) {
		return []Reply{{Text: "Use /start to open the menu."}}
	}
	if err != nil {
		return []Reply{{Text: "❌ " + err.Error() + "\nPlease try again."}}
	}

	switch {
	case res.Credentials != nil:
		if _, err := f.app.SaveCredentials(userID, *res.Credentials); err != nil {
			f.logger.Error("Failed to save credentials", "user", userID, "error", err)
			return []Reply{{Text: genericError}}
		}
		return []Reply{{
			Text:     "✅ All credentials saved!\nNow you can:\n1. Set a reply template\n2. Turn on the auto-reply\n3. Check your settings",
			Keyboard: f.menuKeyboard(),
		}}
	case res.Template != "":
		if err := f.app.SetTemplate(userID, res.Template); err != nil {
			if errors.Is(err, models.ErrConfigurationMissing) {
				return []Reply{{Text: needCredential}}
			}
			f.logger.Error("Failed to save template", "user", userID, "error", err)
			return []Reply{{Text: genericError}}
		}
		return []Reply{{Text: "✅ Template saved!\nTemplate text:\n" + res.Template}}
	}

	switch res.Next {
	case dialog.StateAwaitingSecret:
		return []Reply{{Text: "✅ Client ID saved! Now enter your Client Secret:"}}
	case dialog.StateAwaitingUserID:
		return []Reply{{Text: "✅ Client Secret saved! Now enter your User ID:"}}
	}
	return nil
}

func (f *FrontEnd) mainMenu() Reply {
	return Reply{
		Text:     "Welcome to the marketplace auto-reply bot!\nChoose an action:",
		Keyboard: f.menuKeyboard(),
	}
}

func (f *FrontEnd) menuKeyboard() *tgModels.InlineKeyboardMarkup {
	rows := [][]tgModels.InlineKeyboardButton{
		{{Text: "➕ Add credentials", CallbackData: cbAddClientID}},
		{{Text: "📝 Set reply template", CallbackData: cbSetTemplate}},
		{{Text: "🔄 Toggle auto-reply", CallbackData: cbToggleReply}},
		{{Text: "💰 Check balance", CallbackData: cbCheckBalance}},
		{{Text: "💎 Buy accounts", CallbackData: cbBuyMenu}},
		{{Text: "⚙️ Settings", CallbackData: cbSettings}},
	}
	if f.mailingBotURL != "" {
		rows = append(rows, []tgModels.InlineKeyboardButton{{Text: "📨 Mailing bot", URL: f.mailingBotURL}})
	}
	return &tgModels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (f *FrontEnd) settings(userID string) Reply {
	user, err := f.app.GetUser(userID)
	if err != nil {
		return Reply{
			Text:     "❌ No settings found.\nAdd your credentials first.",
			Keyboard: f.menuKeyboard(),
		}
	}

	template := user.Template
	if template == "" {
		template = "not set"
	}
	autoReply := "off ❌"
	if user.AutoReplyEnabled {
		autoReply = "on ✅"
	}

	return Reply{
		Text: fmt.Sprintf("⚙️ Current settings:\n\n🔑 Client ID: %s\n🔐 Client Secret: set ✅\n👤 User ID: %s\n📝 Template: %s\n🔄 Auto-reply: %s",
			maskCredential(user.ClientID), user.MarketplaceUserID, template, autoReply),
		Keyboard: f.menuKeyboard(),
	}
}

func (f *FrontEnd) toggle(userID string) Reply {
	enabled, err := f.app.ToggleAutoReply(userID)
	if errors.Is(err, models.ErrConfigurationMissing) {
		return Reply{Text: needCredential}
	}
	if err != nil {
		f.logger.Error("Failed to toggle auto-reply", "user", userID, "error", err)
		return Reply{Text: genericError}
	}
	if enabled {
		return Reply{Text: "Auto-reply is on. New conversations from now on will be answered."}
	}
	return Reply{Text: "Auto-reply is off."}
}

func (f *FrontEnd) balance(ctx context.Context, userID string) Reply {
	balances, err := f.app.CheckBalance(ctx, userID)
	if errors.Is(err, models.ErrConfigurationMissing) {
		return Reply{Text: needCredential}
	}
	if err != nil {
		f.logger.Warn("Balance check failed", "user", userID, "error", err)
		return Reply{Text: "❌ Could not fetch balance information."}
	}

	var b strings.Builder
	b.WriteString("💰 Balance information:\n")
	if balances.Main != nil {
		fmt.Fprintf(&b, "\nMain balance: %s ₽\nBonuses: %s ₽\n", balances.Main.Real.StringFixed(2), balances.Main.Bonus.StringFixed(2))
	}
	if balances.Advance != nil {
		fmt.Fprintf(&b, "\nAdvance balance: %s ₽", balances.Advance.StringFixed(2))
	}
	return Reply{Text: b.String()}
}

func (f *FrontEnd) slots(userID string) Reply {
	slots, err := f.app.AvailableSlots(userID)
	if err != nil {
		f.logger.Error("Failed to count slots", "user", userID, "error", err)
		return Reply{Text: genericError}
	}
	return Reply{
		Text:     fmt.Sprintf("🗂 Available account slots: %d (%d free + %d purchased)", slots, models.FreeAccountSlots, slots-models.FreeAccountSlots),
		Keyboard: &tgModels.InlineKeyboardMarkup{InlineKeyboard: [][]tgModels.InlineKeyboardButton{{{Text: "💎 Buy more", CallbackData: cbBuyMenu}}}},
	}
}

func buyMenu() Reply {
	rows := make([][]tgModels.InlineKeyboardButton, 0, len(billing.TariffCounts))
	for _, n := range billing.TariffCounts {
		rows = append(rows, []tgModels.InlineKeyboardButton{{
			Text:         fmt.Sprintf("%d account(s) - %d₽", n, billing.Tariff[n]),
			CallbackData: fmt.Sprintf("%s%d", cbBuyPrefix, n),
		}})
	}
	return Reply{
		Text:     "💎 Buy extra accounts\n\nChoose how many:\n\n• Every account gets its own auto-reply\n• One-time payment, not a subscription\n• Activated right after payment",
		Keyboard: &tgModels.InlineKeyboardMarkup{InlineKeyboard: rows},
	}
}

func (f *FrontEnd) buy(ctx context.Context, userID string, count int) Reply {
	handle, err := f.app.BuyAccounts(ctx, userID, count)
	if errors.Is(err, models.ErrInvalidInput) {
		return Reply{Text: "❌ Invalid request."}
	}
	if errors.Is(err, models.ErrConfigurationMissing) {
		return Reply{Text: needCredential}
	}
	if err != nil {
		f.logger.Error("Failed to create payment", "user", userID, "accounts", count, "error", err)
		return Reply{Text: "❌ Could not create the payment. Please try again later."}
	}

	image, err := base64.StdEncoding.DecodeString(handle.Image)
	if err != nil || len(image) == 0 {
		f.logger.Error("Invalid QR image", "qrc_id", handle.QrcID, "error", err)
		return Reply{Text: "❌ Could not create the payment. Please try again later."}
	}

	return Reply{
		Photo: image,
		Text: fmt.Sprintf("💳 Payment for %d extra account(s)\n\nAmount: %d₽\n\n1️⃣ Scan the QR code in your banking app\n2️⃣ Pay the exact amount\n3️⃣ Press the button below after paying",
			handle.AccountsCount, handle.Amount),
		Keyboard: &tgModels.InlineKeyboardMarkup{InlineKeyboard: [][]tgModels.InlineKeyboardButton{
			{{Text: "✅ Check payment", CallbackData: cbPaymentPrefix + handle.QrcID}},
		}},
	}
}

func (f *FrontEnd) confirmPayment(ctx context.Context, userID, qrcID string) Reply {
	outcome, err := f.app.ConfirmPayment(ctx, qrcID, userID)
	if err != nil {
		f.logger.Error("Failed to confirm payment", "user", userID, "qrc_id", qrcID, "error", err)
		return Reply{Text: "❌ Could not activate the accounts. Please contact support."}
	}

	switch outcome {
	case models.OutcomeCredited:
		return Reply{Text: "✅ Payment received!\n\nYour extra accounts are active."}
	case models.OutcomeAlreadyProcessed:
		return Reply{Text: "✅ This payment has already been processed."}
	}
	return Reply{Text: "⏳ The payment has not arrived yet. Try again in a minute."}
}

func (f *FrontEnd) testToken(ctx context.Context, userID string) Reply {
	if userID != f.adminID {
		return Reply{Text: "❌ You are not allowed to use this command."}
	}
	if err := f.app.VerifyProviderToken(ctx); err != nil {
		return Reply{Text: "❌ Token check failed:\n" + err.Error()}
	}
	return Reply{Text: "✅ The token works!"}
}

func linkKeyboard(text, url string) *tgModels.InlineKeyboardMarkup {
	return &tgModels.InlineKeyboardMarkup{InlineKeyboard: [][]tgModels.InlineKeyboardButton{{{Text: text, URL: url}}}}
}

// maskCredential shows only the edges of a credential.
func maskCredential(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..." + s[len(s)-3:]
}
