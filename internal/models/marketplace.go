package models

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketplaceClient talks to the marketplace messenger and billing APIs.
type MarketplaceClient interface {
	Token(ctx context.Context, creds Credentials) (string, error)
	InvalidateToken(creds Credentials)

	ListUnreadChats(ctx context.Context, token, marketplaceUserID string, limit int) ([]Chat, error)
	SendText(ctx context.Context, token, marketplaceUserID, chatID, text string) error
	UploadImage(ctx context.Context, token, marketplaceUserID string, image []byte) (string, error)
	SendImage(ctx context.Context, token, marketplaceUserID, chatID, imageID string) error

	MainBalance(ctx context.Context, token, marketplaceUserID string) (*MainBalance, error)
	AdvanceBalance(ctx context.Context, token string) (decimal.Decimal, error)
}

// Chat is a marketplace conversation as returned by the chat listing.
type Chat struct {
	ID string
	// LastMessageAt is the unix time of the latest message, 0 when unknown.
	LastMessageAt int64
}

// MainBalance is the account balance in whole currency units.
type MainBalance struct {
	Real  decimal.Decimal `json:"real"`
	Bonus decimal.Decimal `json:"bonus"`
}

// Balances is the result of one balance lookup. A nil field means the lookup failed.
type Balances struct {
	Main    *MainBalance     `json:"main,omitempty"`
	Advance *decimal.Decimal `json:"advance,omitempty"`
}
