package models

import "time"

// AppLock is the lease a replica holds on one background cycle while running it.
type AppLock struct {
	// LockName is the cycle name.
	LockName string `json:"lock_name" gorm:"column:lock_name;primaryKey;size:64"`
	// InstanceID identifies the holding replica.
	InstanceID string `json:"instance_id" gorm:"column:instance_id;size:64;not null"`
	AcquiredAt int64  `json:"acquired_at" gorm:"column:acquired_at;not null"`
	// ExpiresAt is the unix time after which any replica may take the lease.
	ExpiresAt int64 `json:"expires_at" gorm:"column:expires_at;not null;index"`
}

// NewLease builds the lease row instanceID writes when it takes cycle name at now.
func NewLease(name, instanceID string, now time.Time, ttl time.Duration) AppLock {
	return AppLock{
		LockName:   name,
		InstanceID: instanceID,
		AcquiredAt: now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	}
}

// Expired reports whether the lease can be taken over at now.
func (l AppLock) Expired(now time.Time) bool {
	return l.ExpiresAt < now.Unix()
}

func (AppLock) TableName() string {
	return "app_locks"
}
