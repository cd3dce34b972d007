package models

// FreeAccountSlots is the number of marketplace accounts every user may connect
// without paying.
const FreeAccountSlots = 3

// User represents a bot user together with the marketplace account they connected.
type User struct {
	// ID is the Telegram user ID, stored as a string.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// ClientID is the marketplace OAuth client ID.
	ClientID string `json:"client_id" gorm:"column:client_id;not null"`
	// ClientSecret is the marketplace OAuth client secret.
	ClientSecret string `json:"-" gorm:"column:client_secret;not null"`
	// MarketplaceUserID is the account ID on the marketplace side, used in API paths.
	MarketplaceUserID string `json:"marketplace_user_id" gorm:"column:marketplace_user_id;not null"`
	// Template is the text sent as the automated reply.
	Template string `json:"template" gorm:"column:template"`
	// AutoReplyEnabled turns the autoresponder on for this account.
	AutoReplyEnabled bool `json:"auto_reply_enabled" gorm:"column:auto_reply_enabled;index"`
	// AutoReplyStartTime is the unix time the autoresponder was switched on.
	// Conversations whose last message is older are never answered.
	AutoReplyStartTime int64 `json:"auto_reply_start_time" gorm:"column:auto_reply_start_time"`
	// ImageFileID references an image attached to replies. Currently inert.
	ImageFileID *string `json:"image_file_id,omitempty" gorm:"column:image_file_id"`
	// One-shot low balance notification flags. Never reset automatically.
	NotifiedMainBalance200 bool `json:"notified_main_balance_200" gorm:"column:notified_main_balance_200"`
	NotifiedAdvance200     bool `json:"notified_advance_200" gorm:"column:notified_advance_200"`
	NotifiedAdvance100     bool `json:"notified_advance_100" gorm:"column:notified_advance_100"`
	// PaidAccounts is the number of extra account slots bought by the user.
	PaidAccounts int `json:"paid_accounts" gorm:"column:paid_accounts;not null;default:0"`
	// CreatedAt is the unix time the user submitted credentials for the first time.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	// UpdatedAt is the unix time of the last change.
	UpdatedAt int64 `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// Credentials returns the marketplace credentials of the user.
func (u *User) Credentials() Credentials {
	return Credentials{
		ClientID:          u.ClientID,
		ClientSecret:      u.ClientSecret,
		MarketplaceUserID: u.MarketplaceUserID,
	}
}

// AvailableSlots is the free quota plus every paid slot.
func (u *User) AvailableSlots() int {
	return FreeAccountSlots + u.PaidAccounts
}

// Credentials is the marketplace credential set of one account.
type Credentials struct {
	ClientID          string
	ClientSecret      string
	MarketplaceUserID string
}

// BalanceFlag names one of the one-shot low balance flags stored on a user.
type BalanceFlag string

const (
	FlagMainBalance200 BalanceFlag = "notified_main_balance_200"
	FlagAdvance200     BalanceFlag = "notified_advance_200"
	FlagAdvance100     BalanceFlag = "notified_advance_100"
)

// IsSet reports whether the flag is already set on the user.
func (u *User) IsSet(flag BalanceFlag) bool {
	switch flag {
	case FlagMainBalance200:
		return u.NotifiedMainBalance200
	case FlagAdvance200:
		return u.NotifiedAdvance200
	case FlagAdvance100:
		return u.NotifiedAdvance100
	}
	return false
}
