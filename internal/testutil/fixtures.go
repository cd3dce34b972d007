package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/avireply/avireply/internal/models"
)

var userSeq int64

// TestUser creates a user with valid credentials and the autoresponder switched off.
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*models.User)) *models.User {
	t.Helper()

	n := atomic.AddInt64(&userSeq, 1)
	user := &models.User{
		ID:                fmt.Sprintf("%d", 100000+n),
		ClientID:          fmt.Sprintf("client-%d", n),
		ClientSecret:      fmt.Sprintf("secret-%d", n),
		MarketplaceUserID: fmt.Sprintf("%d", 900000+n),
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithID sets the user ID
func WithID(id string) func(*models.User) {
	return func(u *models.User) {
		u.ID = id
	}
}

// WithTemplate sets the reply template
func WithTemplate(template string) func(*models.User) {
	return func(u *models.User) {
		u.Template = template
	}
}

// WithAutoReply enables the autoresponder from startTime on
func WithAutoReply(startTime int64) func(*models.User) {
	return func(u *models.User) {
		u.AutoReplyEnabled = true
		u.AutoReplyStartTime = startTime
	}
}

// WithPaidAccounts sets the number of purchased slots
func WithPaidAccounts(n int) func(*models.User) {
	return func(u *models.User) {
		u.PaidAccounts = n
	}
}

// WithBalanceFlags marks the given low balance warnings as already sent
func WithBalanceFlags(flags ...models.BalanceFlag) func(*models.User) {
	return func(u *models.User) {
		for _, flag := range flags {
			switch flag {
			case models.FlagMainBalance200:
				u.NotifiedMainBalance200 = true
			case models.FlagAdvance200:
				u.NotifiedAdvance200 = true
			case models.FlagAdvance100:
				u.NotifiedAdvance100 = true
			}
		}
	}
}

// TestPayment creates a QR payment for the user.
func TestPayment(t *testing.T, db *gorm.DB, userID, qrcID string, accounts int, status models.PaymentStatus) *models.QRPayment {
	t.Helper()

	payment := &models.QRPayment{
		QrcID:         qrcID,
		UserID:        userID,
		Amount:        int64(accounts) * 200,
		AccountsCount: accounts,
		Status:        status,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}

	return payment
}
