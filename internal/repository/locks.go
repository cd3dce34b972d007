package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avireply/avireply/internal/models"
)

// AcquireLock takes or renews the named lease for ttl. It succeeds when the lease is free,
// expired, or already held by instanceID.
func (db *GormDB) AcquireLock(name, instanceID string, ttl time.Duration) (bool, error) {
	now := time.Now()
	lock := models.NewLease(name, instanceID, now, ttl)
	res := db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lock_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"instance_id", "acquired_at", "expires_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("app_locks.expires_at < ? OR app_locks.instance_id = ?", now.Unix(), instanceID),
		}},
	}).Create(&lock)
	if res.Error != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, res.Error)
	}

	return res.RowsAffected > 0, nil
}

func (db *GormDB) ReleaseLock(name, instanceID string) error {
	if err := db.Conn.Where("lock_name = ? AND instance_id = ?", name, instanceID).Delete(&models.AppLock{}).Error; err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}

	return nil
}
