package models

// PaymentStatus is the local state of a QR payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	// PaymentUnresolved is never stored. It is reported when the provider
	// could not be asked about the payment.
	PaymentUnresolved PaymentStatus = "unresolved"
)

// QRPayment is a scan-to-pay request for extra account slots.
type QRPayment struct {
	// QrcID is the QR code ID issued by the payment provider.
	QrcID string `json:"qrc_id" gorm:"column:qrc_id;primaryKey"`
	// UserID is the user who will receive the slots.
	UserID string `json:"user_id" gorm:"column:user_id;index;not null"`
	// Amount is the price in whole currency units.
	Amount int64 `json:"amount" gorm:"column:amount;not null"`
	// AccountsCount is the number of slots credited when the payment succeeds.
	AccountsCount int `json:"accounts_count" gorm:"column:accounts_count;not null"`
	// Status is pending until reconciled, then succeeded forever.
	Status PaymentStatus `json:"status" gorm:"column:status;index;not null;default:'pending'"`
	// CreatedAt is the unix time the QR code was registered.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	// PaidAt is the unix time of reconciliation.
	PaidAt *int64 `json:"paid_at,omitempty" gorm:"column:paid_at"`
}

// PaymentHandle is what the front-end needs to show a QR code to the user.
type PaymentHandle struct {
	QrcID         string `json:"qrc_id"`
	Image         string `json:"image"`
	Amount        int64  `json:"amount"`
	AccountsCount int    `json:"accounts_count"`
}

// MerchantInfo identifies the receiving merchant at the payment provider.
type MerchantInfo struct {
	MerchantID string `json:"merchant_id"`
	AccountID  string `json:"account_id"`
}

// QRCode is a freshly registered, not yet activated QR code.
type QRCode struct {
	QrcID string
	Image string
}

// ConfirmOutcome is the result of a user asking whether their payment went through.
type ConfirmOutcome string

const (
	OutcomeNotPaid          ConfirmOutcome = "not_paid"
	OutcomeCredited         ConfirmOutcome = "credited"
	OutcomeAlreadyProcessed ConfirmOutcome = "already_processed"
)
