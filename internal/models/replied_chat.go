package models

// RepliedChat marks a marketplace conversation that already received an automated reply.
// There is at most one row per (UserID, ChatID).
type RepliedChat struct {
	UserID    string `json:"user_id" gorm:"column:user_id;primaryKey"`
	ChatID    string `json:"chat_id" gorm:"column:chat_id;primaryKey"`
	RepliedAt int64  `json:"replied_at" gorm:"column:replied_at;not null"`
}
