package models

import "time"

type Repository interface {
	// Credential store
	GetUser(id string) (*User, error)
	SaveCredentials(id string, creds Credentials) (*User, error)
	SetTemplate(id, template string) error
	SetAutoReply(id string, enabled bool, startTime int64) error
	SetImageFileID(id string, fileID *string) error
	ListActiveUsers() ([]*User, error)
	ListUserIDs() ([]string, error)
	SetBalanceFlag(id string, flag BalanceFlag) error
	ResetBalanceFlags(id string) error

	// Dedup ledger
	HasReplied(userID, chatID string) (bool, error)
	RecordReply(userID, chatID string, repliedAt int64) error

	// QR payments
	CreatePayment(payment *QRPayment) error
	GetPayment(qrcID string) (*QRPayment, error)
	CompletePayment(qrcID, userID string, paidAt int64) (bool, error)

	// Cycle leases
	AcquireLock(name, instanceID string, ttl time.Duration) (bool, error)
	ReleaseLock(name, instanceID string) error

	Close() error
}
