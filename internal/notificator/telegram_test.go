package notificator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avireply/avireply/pkg/logger"
)

type apiCall struct {
	Method string
	Fields map[string]string
}

// fakeTelegram records Bot API calls and answers each with a minimal message.
type fakeTelegram struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	fields := map[string]string{}
	if err := r.ParseMultipartForm(1 << 20); err == nil {
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		for k := range r.MultipartForm.File {
			fields[k] = "<file>"
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Fields: fields})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "sendMessage", "sendPhoto":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

func (f *fakeTelegram) Calls(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestTelegram(t *testing.T) (*TelegramNotificator, *fakeTelegram) {
	t.Helper()
	api := &fakeTelegram{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	tn, err := NewTelegramNotificator(logger.NewNop(), "test-token", "", "", bot.WithServerURL(srv.URL), bot.WithSkipGetMe())
	require.NoError(t, err)
	return tn, api
}

func TestTelegramNotificator_SendNotification(t *testing.T) {
	tn, api := newTestTelegram(t)

	require.NoError(t, tn.SendNotification(context.Background(), "42", "hello"))

	calls := api.Calls("sendMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, "42", calls[0].Fields["chat_id"])
	assert.Equal(t, "hello", calls[0].Fields["text"])
}

func TestTelegramNotificator_SendLink(t *testing.T) {
	tn, api := newTestTelegram(t)

	require.NoError(t, tn.SendLink(context.Background(), "42", "visit", "Open", "https://t.me/example_bot"))

	calls := api.Calls("sendMessage")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Fields["reply_markup"], "https://t.me/example_bot")
}

type staticHandler []Reply

func (s staticHandler) HandleUpdate(ctx context.Context, update *tgModels.Update) []Reply {
	return s
}

func TestTelegramNotificator_HandleSendsReplies(t *testing.T) {
	tn, api := newTestTelegram(t)
	tn.SetHandler(staticHandler{{Text: "menu"}, {Text: "qr", Photo: []byte{0x89, 'P', 'N', 'G'}}})

	tn.handle(context.Background(), tn.bot, &tgModels.Update{
		Message: &tgModels.Message{Text: "/start", Chat: tgModels.Chat{ID: 42}, From: &tgModels.User{ID: 42}},
	})

	require.Len(t, api.Calls("sendMessage"), 1)
	photos := api.Calls("sendPhoto")
	require.Len(t, photos, 1)
	assert.Equal(t, "qr", photos[0].Fields["caption"])
	assert.Equal(t, "<file>", photos[0].Fields["photo"])
}

func TestTelegramNotificator_HandleAnswersCallbacks(t *testing.T) {
	tn, api := newTestTelegram(t)
	tn.SetHandler(staticHandler{{Text: "ok"}})

	tn.handle(context.Background(), tn.bot, &tgModels.Update{
		CallbackQuery: &tgModels.CallbackQuery{ID: "cb-1", From: tgModels.User{ID: 7}, Data: "check_balance"},
	})

	answers := api.Calls("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Equal(t, "cb-1", answers[0].Fields["callback_query_id"])

	messages := api.Calls("sendMessage")
	require.Len(t, messages, 1)
	assert.Equal(t, "7", messages[0].Fields["chat_id"])
}

type flakySender struct {
	err   error
	panic bool
}

func (s flakySender) SendNotification(ctx context.Context, chatID, message string) error {
	if s.panic {
		panic("boom")
	}
	return s.err
}

func (s flakySender) SendLink(ctx context.Context, chatID, message, buttonText, url string) error {
	return s.SendNotification(ctx, chatID, message)
}

func TestNotificator_ReportsFailures(t *testing.T) {
	n := NewNotificator(logger.NewNop(), flakySender{err: errors.New("blocked")})
	assert.Error(t, n.SendNotification(context.Background(), "1", "x"))

	n = NewNotificator(logger.NewNop(), flakySender{panic: true})
	assert.Error(t, n.SendLink(context.Background(), "1", "x", "b", "https://example.com"))

	n = NewNotificator(logger.NewNop(), flakySender{})
	assert.NoError(t, n.SendNotification(context.Background(), "1", "x"))
}
