package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/avireply/avireply/internal/models"
)

func (db *GormDB) CreatePayment(payment *models.QRPayment) error {
	if payment.Status == "" {
		payment.Status = models.PaymentPending
	}
	db.logger.Debug("Adding QR payment", "qrc_id", payment.QrcID, "user", payment.UserID, "amount", payment.Amount)
	if err := db.Conn.Create(payment).Error; err != nil {
		return fmt.Errorf("failed to add QR payment: %w", err)
	}
	return nil
}

func (db *GormDB) GetPayment(qrcID string) (*models.QRPayment, error) {
	var payment models.QRPayment
	if err := db.Conn.Where("qrc_id = ?", qrcID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment %s: %w", qrcID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &payment, nil
}

// CompletePayment moves a pending payment owned by userID to succeeded and credits its
// slots to the user in one transaction. It returns false without changing anything when
// the payment is unknown, owned by someone else or no longer pending.
func (db *GormDB) CompletePayment(qrcID, userID string, paidAt int64) (bool, error) {
	credited := false
	err := db.Conn.Transaction(func(tx *gorm.DB) error {
		var payment models.QRPayment
		if err := tx.Where("qrc_id = ? AND user_id = ?", qrcID, userID).First(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to get payment: %w", err)
		}

		// The status condition makes concurrent callers race on a single row update;
		// only one of them sees a changed row.
		res := tx.Model(&models.QRPayment{}).
			Where("qrc_id = ? AND user_id = ? AND status = ?", qrcID, userID, models.PaymentPending).
			Updates(map[string]interface{}{
				"status":  models.PaymentSucceeded,
				"paid_at": paidAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update payment status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		res = tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("paid_accounts", gorm.Expr("paid_accounts + ?", payment.AccountsCount))
		if res.Error != nil {
			return fmt.Errorf("failed to credit paid accounts: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
		}

		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return credited, nil
}
