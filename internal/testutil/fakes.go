package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/avireply/avireply/internal/models"
)

// SentMessage is one text delivered through a fake.
type SentMessage struct {
	AccountID string
	ChatID    string
	Text      string
}

// FakeMarketplace is an in-memory MarketplaceClient. Chats and balances are keyed by
// marketplace user ID; failures are injected through the exported maps.
type FakeMarketplace struct {
	mu sync.Mutex

	Chats    map[string][]models.Chat
	Main     map[string]*models.MainBalance
	Advance  map[string]decimal.Decimal
	TokenErr map[string]error
	ListErr  map[string]error
	SendErr  map[string]error

	Sent         []SentMessage
	Images       []SentMessage
	TokenCalls   int
	Invalidated  []models.Credentials
	PanicOnToken string
}

var _ models.MarketplaceClient = (*FakeMarketplace)(nil)

func NewFakeMarketplace() *FakeMarketplace {
	return &FakeMarketplace{
		Chats:    make(map[string][]models.Chat),
		Main:     make(map[string]*models.MainBalance),
		Advance:  make(map[string]decimal.Decimal),
		TokenErr: make(map[string]error),
		ListErr:  make(map[string]error),
		SendErr:  make(map[string]error),
	}
}

// The token is the marketplace user ID so later calls can be routed by it.
func (f *FakeMarketplace) Token(ctx context.Context, creds models.Credentials) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TokenCalls++
	if f.PanicOnToken != "" && f.PanicOnToken == creds.MarketplaceUserID {
		panic("token source exploded")
	}
	if err := f.TokenErr[creds.MarketplaceUserID]; err != nil {
		return "", err
	}
	return creds.MarketplaceUserID, nil
}

func (f *FakeMarketplace) InvalidateToken(creds models.Credentials) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Invalidated = append(f.Invalidated, creds)
}

func (f *FakeMarketplace) ListUnreadChats(ctx context.Context, token, marketplaceUserID string, limit int) ([]models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ListErr[marketplaceUserID]; err != nil {
		return nil, err
	}
	chats := f.Chats[marketplaceUserID]
	if len(chats) > limit {
		chats = chats[:limit]
	}
	return append([]models.Chat(nil), chats...), nil
}

func (f *FakeMarketplace) SendText(ctx context.Context, token, marketplaceUserID, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SendErr[chatID]; err != nil {
		return err
	}
	f.Sent = append(f.Sent, SentMessage{AccountID: marketplaceUserID, ChatID: chatID, Text: text})
	return nil
}

func (f *FakeMarketplace) UploadImage(ctx context.Context, token, marketplaceUserID string, image []byte) (string, error) {
	return fmt.Sprintf("img-%d", len(image)), nil
}

func (f *FakeMarketplace) SendImage(ctx context.Context, token, marketplaceUserID, chatID, imageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Images = append(f.Images, SentMessage{AccountID: marketplaceUserID, ChatID: chatID, Text: imageID})
	return nil
}

func (f *FakeMarketplace) MainBalance(ctx context.Context, token, marketplaceUserID string) (*models.MainBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.Main[marketplaceUserID]
	if !ok {
		return nil, fmt.Errorf("main balance: %w", models.ErrTransientNetwork)
	}
	return balance, nil
}

func (f *FakeMarketplace) AdvanceBalance(ctx context.Context, token string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.Advance[token]
	if !ok {
		return decimal.Zero, fmt.Errorf("advance balance: %w", models.ErrTransientNetwork)
	}
	return balance, nil
}

// SentTo returns the texts delivered to one chat.
func (f *FakeMarketplace) SentTo(chatID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, m := range f.Sent {
		if m.ChatID == chatID {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

// FakeNotifier records notifications instead of sending them.
type FakeNotifier struct {
	mu       sync.Mutex
	Messages []SentMessage
	Err      error
}

var _ models.NotificationService = (*FakeNotifier)(nil)

func (f *FakeNotifier) SendNotification(ctx context.Context, userID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Messages = append(f.Messages, SentMessage{AccountID: userID, Text: message})
	return nil
}

func (f *FakeNotifier) SendLink(ctx context.Context, userID, message, buttonText, url string) error {
	return f.SendNotification(ctx, userID, message)
}

// For returns the messages sent to one user.
func (f *FakeNotifier) For(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, m := range f.Messages {
		if m.AccountID == userID {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

// FakePaymentProvider is an in-memory PaymentProvider.
type FakePaymentProvider struct {
	mu sync.Mutex

	Merchant    *models.MerchantInfo
	MerchantErr error
	RegisterErr error
	ActivateErr error
	TokenErr    error
	Statuses    map[string]string
	StatusErr   error

	Registered int
	Activated  map[string]int64
}

var _ models.PaymentProvider = (*FakePaymentProvider)(nil)

func NewFakePaymentProvider() *FakePaymentProvider {
	return &FakePaymentProvider{
		Merchant:  &models.MerchantInfo{MerchantID: "merchant", AccountID: "account"},
		Statuses:  make(map[string]string),
		Activated: make(map[string]int64),
	}
}

func (f *FakePaymentProvider) ResolveMerchant(ctx context.Context) (*models.MerchantInfo, error) {
	if f.MerchantErr != nil {
		return nil, f.MerchantErr
	}
	return f.Merchant, nil
}

func (f *FakePaymentProvider) RegisterQR(ctx context.Context, merchant *models.MerchantInfo) (*models.QRCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegisterErr != nil {
		return nil, f.RegisterErr
	}
	f.Registered++
	return &models.QRCode{QrcID: fmt.Sprintf("qr-%d", f.Registered), Image: "aW1hZ2U="}, nil
}

func (f *FakePaymentProvider) ActivateQR(ctx context.Context, qrcID string, amountMinor int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ActivateErr != nil {
		return f.ActivateErr
	}
	f.Activated[qrcID] = amountMinor
	return nil
}

func (f *FakePaymentProvider) PaymentStatus(ctx context.Context, qrcID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return "", f.StatusErr
	}
	if status, ok := f.Statuses[qrcID]; ok {
		return status, nil
	}
	return "PENDING", nil
}

// SetStatus changes the provider status of a QR code.
func (f *FakePaymentProvider) SetStatus(qrcID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statuses[qrcID] = status
}

func (f *FakePaymentProvider) VerifyToken(ctx context.Context) error {
	return f.TokenErr
}
