package reminder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avireply/avireply/internal/repository"
	"github.com/avireply/avireply/internal/testutil"
	"github.com/avireply/avireply/pkg/logger"
)

func TestSender_RunCycle(t *testing.T) {
	repo, err := repository.NewGormDB(testutil.SetupTestDB(t), logger.NewNop())
	require.NoError(t, err)
	a := testutil.TestUser(t, repo.Conn)
	b := testutil.TestUser(t, repo.Conn, testutil.WithAutoReply(0))
	notifier := &testutil.FakeNotifier{}

	sender := NewSender(repo, notifier, "Try the mailing bot", "https://t.me/example_bot", logger.NewNop())
	report, err := sender.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, CycleReport{Users: 2, Sent: 2}, report)
	assert.Equal(t, []string{"Try the mailing bot"}, notifier.For(a.ID))
	assert.Equal(t, []string{"Try the mailing bot"}, notifier.For(b.ID))
}

func TestSender_RunCycle_DeliveryFailuresAreCounted(t *testing.T) {
	repo, err := repository.NewGormDB(testutil.SetupTestDB(t), logger.NewNop())
	require.NoError(t, err)
	testutil.TestUser(t, repo.Conn)
	notifier := &testutil.FakeNotifier{Err: errors.New("blocked by user")}

	report, err := NewSender(repo, notifier, "text", "", logger.NewNop()).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleReport{Users: 1, Failed: 1}, report)
}
