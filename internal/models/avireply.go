package models

import "context"

type AvireplyI interface {
	// Start starts the background cycles
	Start()

	// Stop stops the background cycles, waiting for running ones until ctx is done
	Stop(ctx context.Context)

	// GetUser returns the stored settings of a bot user
	GetUser(userID string) (*User, error)

	// SaveCredentials stores the marketplace credentials collected by the dialog
	SaveCredentials(userID string, creds Credentials) (*User, error)

	SetTemplate(userID, template string) error

	// ToggleAutoReply flips the autoresponder and returns the new state.
	// Switching it on only answers conversations from that moment on.
	ToggleAutoReply(userID string) (bool, error)

	// CheckBalance fetches both marketplace balances on demand
	CheckBalance(ctx context.Context, userID string) (*Balances, error)

	// ResetBalanceFlags re-arms the one-shot low balance warnings
	ResetBalanceFlags(userID string) error

	AvailableSlots(userID string) (int, error)

	// CreatePaymentRequest issues a QR code for an arbitrary amount and stores it as pending
	CreatePaymentRequest(ctx context.Context, amount int64, accountCount int, userID string) (*PaymentHandle, error)
	BuyAccounts(ctx context.Context, userID string, accountCount int) (*PaymentHandle, error)
	PaymentStatus(ctx context.Context, paymentID string) PaymentStatus

	// Reconcile credits a pending payment once. False means it was not pending.
	Reconcile(ctx context.Context, paymentID, userID string) (bool, error)
	ConfirmPayment(ctx context.Context, paymentID, userID string) (ConfirmOutcome, error)

	HasReplied(userID, chatID string) (bool, error)
	RecordReply(userID, chatID string) error

	// VerifyProviderToken checks the payment provider token for the admin
	VerifyProviderToken(ctx context.Context) error

	// RunCycle runs one background cycle by name right now
	RunCycle(ctx context.Context, name string) error

	// Cycles lists the names accepted by RunCycle
	Cycles() []string
}
