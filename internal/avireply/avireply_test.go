package avireply

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avireply/avireply/internal/config"
	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/internal/repository"
	"github.com/avireply/avireply/internal/scheduler"
	"github.com/avireply/avireply/internal/testutil"
	"github.com/avireply/avireply/pkg/logger"
)

type fixture struct {
	repo     *repository.GormDB
	market   *testutil.FakeMarketplace
	provider *testutil.FakePaymentProvider
	notifier *testutil.FakeNotifier
	app      *Avireply
}

func testConfig() *config.Config {
	return &config.Config{
		ChatPageSize:         100,
		CycleWorkers:         2,
		CycleTimeout:         time.Minute,
		InstanceID:           "test-instance",
		MessageCheckSchedule: "@every 1m",
		BalanceCheckSchedule: "@every 1h",
		ReminderSchedule:     "@every 72h",
		ReminderText:         "Reminder",
		ReminderURL:          "https://t.me/example_bot",
	}
}

func setup(t *testing.T) *fixture {
	t.Helper()
	repo, err := repository.NewGormDB(testutil.SetupTestDB(t), logger.NewNop())
	require.NoError(t, err)

	f := &fixture{
		repo:     repo,
		market:   testutil.NewFakeMarketplace(),
		provider: testutil.NewFakePaymentProvider(),
		notifier: &testutil.FakeNotifier{},
	}
	f.app, err = NewAvireply(repo, f.market, f.provider, f.notifier, nil, logger.NewNop(), testConfig())
	require.NoError(t, err)
	f.app.now = func() time.Time { return time.Unix(1000, 0) }
	return f
}

func TestNewAvireply_InvalidSchedule(t *testing.T) {
	repo, err := repository.NewGormDB(testutil.SetupTestDB(t), logger.NewNop())
	require.NoError(t, err)
	cfg := testConfig()
	cfg.BalanceCheckSchedule = "sometimes"

	_, err = NewAvireply(repo, testutil.NewFakeMarketplace(), testutil.NewFakePaymentProvider(), &testutil.FakeNotifier{}, nil, logger.NewNop(), cfg)
	assert.Error(t, err)
}

func TestAvireply_ToggleAutoReplyStampsStartTime(t *testing.T) {
	f := setup(t)
	user := testutil.TestUser(t, f.repo.Conn)

	enabled, err := f.app.ToggleAutoReply(user.ID)
	require.NoError(t, err)
	assert.True(t, enabled)

	got, err := f.app.GetUser(user.ID)
	require.NoError(t, err)
	assert.True(t, got.AutoReplyEnabled)
	assert.Equal(t, int64(1000), got.AutoReplyStartTime)

	enabled, err = f.app.ToggleAutoReply(user.ID)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestAvireply_RequiresCredentials(t *testing.T) {
	f := setup(t)

	_, err := f.app.ToggleAutoReply("nobody")
	assert.ErrorIs(t, err, models.ErrConfigurationMissing)

	err = f.app.SetTemplate("nobody", "Hi")
	assert.ErrorIs(t, err, models.ErrConfigurationMissing)

	_, err = f.app.CheckBalance(context.Background(), "nobody")
	assert.ErrorIs(t, err, models.ErrConfigurationMissing)
}

func TestAvireply_EndToEndReply(t *testing.T) {
	f := setup(t)

	user, err := f.app.SaveCredentials("42", models.Credentials{ClientID: "c", ClientSecret: "s", MarketplaceUserID: "777"})
	require.NoError(t, err)
	require.NoError(t, f.app.SetTemplate(user.ID, "Hi"))
	_, err = f.app.ToggleAutoReply(user.ID)
	require.NoError(t, err)

	f.market.Chats["777"] = []models.Chat{
		{ID: "new", LastMessageAt: 1500},
		{ID: "old", LastMessageAt: 500},
	}

	require.NoError(t, f.app.RunCycle(context.Background(), CycleMessages))
	require.NoError(t, f.app.RunCycle(context.Background(), CycleMessages))

	assert.Equal(t, []string{"Hi"}, f.market.SentTo("new"))
	assert.Empty(t, f.market.SentTo("old"))
}

func TestAvireply_Cycles(t *testing.T) {
	f := setup(t)

	assert.Equal(t, []string{CycleBalance, CycleMessages, CycleReminder}, f.app.Cycles())
	assert.ErrorIs(t, f.app.RunCycle(context.Background(), "unknown"), scheduler.ErrUnknownJob)

	testutil.TestUser(t, f.repo.Conn)
	require.NoError(t, f.app.RunCycle(context.Background(), CycleReminder))
	assert.Len(t, f.notifier.Messages, 1)
}

func TestAvireply_BuyAndConfirm(t *testing.T) {
	f := setup(t)
	user := testutil.TestUser(t, f.repo.Conn)

	handle, err := f.app.BuyAccounts(context.Background(), user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, f.app.PaymentStatus(context.Background(), handle.QrcID))

	f.provider.SetStatus(handle.QrcID, "SUCCESS")
	outcome, err := f.app.ConfirmPayment(context.Background(), handle.QrcID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCredited, outcome)

	slots, err := f.app.AvailableSlots(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, slots)
}

func TestAvireply_SaveCredentials_DropsReplacedToken(t *testing.T) {
	f := setup(t)
	first := models.Credentials{ClientID: "c1", ClientSecret: "s1", MarketplaceUserID: "777"}

	_, err := f.app.SaveCredentials("42", first)
	require.NoError(t, err)
	assert.Empty(t, f.market.Invalidated)

	// Same client, different account: the cached token is still valid.
	_, err = f.app.SaveCredentials("42", models.Credentials{ClientID: "c1", ClientSecret: "s1", MarketplaceUserID: "778"})
	require.NoError(t, err)
	assert.Empty(t, f.market.Invalidated)

	_, err = f.app.SaveCredentials("42", models.Credentials{ClientID: "c2", ClientSecret: "s2", MarketplaceUserID: "778"})
	require.NoError(t, err)
	require.Len(t, f.market.Invalidated, 1)
	assert.Equal(t, "c1", f.market.Invalidated[0].ClientID)
	assert.Equal(t, "s1", f.market.Invalidated[0].ClientSecret)
}

func TestAvireply_CreatePaymentAndReconcile(t *testing.T) {
	f := setup(t)
	user := testutil.TestUser(t, f.repo.Conn)

	handle, err := f.app.CreatePaymentRequest(context.Background(), 350, 2, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(35000), f.provider.Activated[handle.QrcID])

	ok, err := f.app.Reconcile(context.Background(), handle.QrcID, user.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.app.Reconcile(context.Background(), handle.QrcID, user.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	slots, err := f.app.AvailableSlots(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FreeAccountSlots+2, slots)

	_, err = f.app.CreatePaymentRequest(context.Background(), 350, 2, "ghost")
	assert.ErrorIs(t, err, models.ErrConfigurationMissing)
}

func TestAvireply_RecordReply(t *testing.T) {
	f := setup(t)
	user := testutil.TestUser(t, f.repo.Conn)

	replied, err := f.app.HasReplied(user.ID, "c1")
	require.NoError(t, err)
	assert.False(t, replied)

	require.NoError(t, f.app.RecordReply(user.ID, "c1"))
	require.NoError(t, f.app.RecordReply(user.ID, "c1"))

	replied, err = f.app.HasReplied(user.ID, "c1")
	require.NoError(t, err)
	assert.True(t, replied)

	var record models.RepliedChat
	require.NoError(t, f.repo.Conn.Where("user_id = ? AND chat_id = ?", user.ID, "c1").First(&record).Error)
	assert.Equal(t, int64(1000), record.RepliedAt)
}
