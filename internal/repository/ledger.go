package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avireply/avireply/internal/models"
)

func (db *GormDB) HasReplied(userID, chatID string) (bool, error) {
	var chat models.RepliedChat
	if err := db.Conn.Where("user_id = ? AND chat_id = ?", userID, chatID).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check replied chat: %w", err)
	}

	return true, nil
}

// RecordReply upserts the ledger row of the conversation. Repeating it never adds a row.
func (db *GormDB) RecordReply(userID, chatID string, repliedAt int64) error {
	chat := models.RepliedChat{
		UserID:    userID,
		ChatID:    chatID,
		RepliedAt: repliedAt,
	}
	err := db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"replied_at"}),
	}).Create(&chat).Error
	if err != nil {
		return fmt.Errorf("failed to record reply: %w", err)
	}

	return nil
}
