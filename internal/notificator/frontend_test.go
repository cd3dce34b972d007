package notificator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avireply/avireply/internal/avireply"
	"github.com/avireply/avireply/internal/config"
	"github.com/avireply/avireply/internal/dialog"
	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/internal/repository"
	"github.com/avireply/avireply/internal/testutil"
	"github.com/avireply/avireply/pkg/logger"
)

const adminID = "1"

type frontFixture struct {
	repo     *repository.GormDB
	market   *testutil.FakeMarketplace
	provider *testutil.FakePaymentProvider
	front    *FrontEnd
}

func setupFront(t *testing.T) *frontFixture {
	t.Helper()
	repo, err := repository.NewGormDB(testutil.SetupTestDB(t), logger.NewNop())
	require.NoError(t, err)

	cfg := &config.Config{
		ChatPageSize:         100,
		CycleWorkers:         1,
		CycleTimeout:         time.Minute,
		InstanceID:           "test",
		MessageCheckSchedule: "@every 1m",
		BalanceCheckSchedule: "@every 1h",
		ReminderSchedule:     "@every 72h",
	}
	market := testutil.NewFakeMarketplace()
	provider := testutil.NewFakePaymentProvider()
	app, err := avireply.NewAvireply(repo, market, provider, &testutil.FakeNotifier{}, nil, logger.NewNop(), cfg)
	require.NoError(t, err)

	return &frontFixture{
		repo:     repo,
		market:   market,
		provider: provider,
		front:    NewFrontEnd(app, dialog.NewMachine(), adminID, "https://t.me/example_bot", logger.NewNop()),
	}
}

func single(t *testing.T, replies []Reply) Reply {
	t.Helper()
	require.Len(t, replies, 1)
	return replies[0]
}

func TestFrontEnd_Start(t *testing.T) {
	f := setupFront(t)

	reply := single(t, f.front.HandleCommand(context.Background(), "42", "/start"))
	require.NotNil(t, reply.Keyboard)
	last := reply.Keyboard.InlineKeyboard[len(reply.Keyboard.InlineKeyboard)-1][0]
	assert.Equal(t, "https://t.me/example_bot", last.URL)
}

func TestFrontEnd_CredentialDialogSavesAfterThirdStep(t *testing.T) {
	f := setupFront(t)
	ctx := context.Background()

	single(t, f.front.HandleCallback(ctx, "42", "add_client_id"))
	single(t, f.front.HandleText(ctx, "42", "client"))
	single(t, f.front.HandleText(ctx, "42", "secret"))

	_, err := f.repo.GetUser("42")
	assert.ErrorIs(t, err, models.ErrNotFound, "nothing stored before the last step")

	reply := single(t, f.front.HandleText(ctx, "42", "777"))
	assert.Contains(t, reply.Text, "credentials saved")

	user, err := f.repo.GetUser("42")
	require.NoError(t, err)
	assert.Equal(t, "777", user.MarketplaceUserID)
	assert.False(t, user.AutoReplyEnabled)
}

func TestFrontEnd_InvalidDialogInput(t *testing.T) {
	f := setupFront(t)
	ctx := context.Background()

	single(t, f.front.HandleCallback(ctx, "42", "add_client_id"))
	reply := single(t, f.front.HandleText(ctx, "42", "has spaces"))
	assert.Contains(t, reply.Text, "whitespace")

	reply = single(t, f.front.HandleText(ctx, "99", "random"))
	assert.Contains(t, reply.Text, "/start")
}

func TestFrontEnd_TemplateAndToggle(t *testing.T) {
	f := setupFront(t)
	ctx := context.Background()

	reply := single(t, f.front.HandleCallback(ctx, "42", "set_template"))
	assert.Equal(t, needCredential, reply.Text)
	reply = single(t, f.front.HandleCallback(ctx, "42", "toggle_auto_reply"))
	assert.Equal(t, needCredential, reply.Text)

	user := testutil.TestUser(t, f.repo.Conn)
	single(t, f.front.HandleCallback(ctx, user.ID, "set_template"))
	reply = single(t, f.front.HandleText(ctx, user.ID, "Hello there"))
	assert.Contains(t, reply.Text, "Hello there")

	reply = single(t, f.front.HandleCallback(ctx, user.ID, "toggle_auto_reply"))
	assert.Contains(t, reply.Text, "on")

	got, err := f.repo.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", got.Template)
	assert.True(t, got.AutoReplyEnabled)
	assert.NotZero(t, got.AutoReplyStartTime)

	reply = single(t, f.front.HandleCommand(ctx, user.ID, "/settings"))
	assert.Contains(t, reply.Text, "Hello there")
	assert.NotContains(t, reply.Text, user.ClientSecret)
}

func TestFrontEnd_CommandCancelsDialog(t *testing.T) {
	f := setupFront(t)
	ctx := context.Background()

	single(t, f.front.HandleCallback(ctx, "42", "add_client_id"))
	single(t, f.front.HandleCommand(ctx, "42", "/start"))

	reply := single(t, f.front.HandleText(ctx, "42", "client"))
	assert.Contains(t, reply.Text, "/start")
}

func TestFrontEnd_BuyAndCheckPayment(t *testing.T) {
	f := setupFront(t)
	ctx := context.Background()
	user := testutil.TestUser(t, f.repo.Conn)

	menu := single(t, f.front.HandleCommand(ctx, user.ID, "/buy"))
	require.Len(t, menu.Keyboard.InlineKeyboard, 3)
	assert.Equal(t, "buy_5", menu.Keyboard.InlineKeyboard[2][0].CallbackData)

	reply := single(t, f.front.HandleCallback(ctx, user.ID, "buy_3"))
	require.NotEmpty(t, reply.Photo)
	assert.Contains(t, reply.Text, "500₽")
	button := reply.Keyboard.InlineKeyboard[0][0].CallbackData
	assert.Equal(t, "check_payment_qr-1", button)

	reply = single(t, f.front.HandleCallback(ctx, user.ID, button))
	assert.Contains(t, reply.Text, "not arrived")

	f.provider.SetStatus("qr-1", "SUCCESS")
	reply = single(t, f.front.HandleCallback(ctx, user.ID, button))
	assert.Contains(t, reply.Text, "Payment received")

	reply = single(t, f.front.HandleCallback(ctx, user.ID, button))
	assert.Contains(t, reply.Text, "already been processed")

	reply = single(t, f.front.HandleCommand(ctx, user.ID, "/slots"))
	assert.Contains(t, reply.Text, "6")
}

func TestFrontEnd_BuyInvalidCount(t *testing.T) {
	f := setupFront(t)

	reply := single(t, f.front.HandleCallback(context.Background(), "42", "buy_2"))
	assert.Contains(t, reply.Text, "Invalid")
	reply = single(t, f.front.HandleCallback(context.Background(), "42", "buy_x"))
	assert.Contains(t, reply.Text, "Invalid")
}

func TestFrontEnd_BuyWithoutCredentials(t *testing.T) {
	f := setupFront(t)

	reply := single(t, f.front.HandleCallback(context.Background(), "42", "buy_1"))
	assert.Equal(t, needCredential, reply.Text)
	assert.Empty(t, reply.Photo)
	assert.Zero(t, f.provider.Registered)
}

func TestFrontEnd_Balance(t *testing.T) {
	f := setupFront(t)
	ctx := context.Background()
	user := testutil.TestUser(t, f.repo.Conn)
	f.market.Main[user.MarketplaceUserID] = &models.MainBalance{}

	reply := single(t, f.front.HandleCallback(ctx, user.ID, "check_balance"))
	assert.Contains(t, reply.Text, "Main balance: 0.00")
	assert.NotContains(t, reply.Text, "Advance")

	delete(f.market.Main, user.MarketplaceUserID)
	reply = single(t, f.front.HandleCommand(ctx, user.ID, "/balance"))
	assert.Contains(t, reply.Text, "Could not fetch")
}

func TestFrontEnd_TestTokenIsAdminOnly(t *testing.T) {
	f := setupFront(t)
	ctx := context.Background()

	reply := single(t, f.front.HandleCommand(ctx, "42", "/test_token"))
	assert.Contains(t, reply.Text, "not allowed")

	reply = single(t, f.front.HandleCommand(ctx, adminID, "/test_token"))
	assert.Contains(t, reply.Text, "works")

	f.provider.TokenErr = fmt.Errorf("%w: expired", models.ErrAuthFailure)
	reply = single(t, f.front.HandleCommand(ctx, adminID, "/test_token@avireply_bot"))
	assert.Contains(t, reply.Text, "failed")
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "****", maskCredential("abcd"))
	assert.Equal(t, "abcd...xyz", maskCredential("abcdefghijxyz"))
}
