package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/logger"
)

// Tariff maps a purchasable number of account slots to its price in whole currency units.
var Tariff = map[int]int64{
	1: 200,
	3: 500,
	5: 800,
}

// TariffCounts lists the purchasable slot counts in display order.
var TariffCounts = []int{1, 3, 5}

// Engine sells extra account slots through provider QR payments and credits
// each successful payment exactly once.
type Engine struct {
	logger   *logger.Logger
	repo     models.Repository
	provider models.PaymentProvider

	now func() time.Time
}

func NewEngine(repo models.Repository, provider models.PaymentProvider, logger *logger.Logger) *Engine {
	return &Engine{
		logger:   logger,
		repo:     repo,
		provider: provider,
		now:      time.Now,
	}
}

// CreatePaymentRequest registers and activates a QR code for amount and stores it as pending.
// Nothing is stored when any provider step fails. Only stored users can pay, since a payment
// without a user row could never be credited.
func (e *Engine) CreatePaymentRequest(ctx context.Context, amount int64, accountCount int, userID string) (*models.PaymentHandle, error) {
	if amount <= 0 || accountCount <= 0 {
		return nil, fmt.Errorf("%w: amount and account count must be positive", models.ErrInvalidInput)
	}

	if _, err := e.repo.GetUser(userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s has no credentials", models.ErrConfigurationMissing, userID)
		}
		return nil, err
	}

	merchant, err := e.provider.ResolveMerchant(ctx)
	if err != nil {
		e.logger.Error("Failed to resolve merchant", "error", err)
		if !errors.Is(err, models.ErrIrrecoverableSetup) {
			err = fmt.Errorf("%w: %v", models.ErrIrrecoverableSetup, err)
		}
		return nil, err
	}

	qr, err := e.provider.RegisterQR(ctx, merchant)
	if err != nil {
		return nil, fmt.Errorf("failed to register QR code: %w", err)
	}

	amountMinor := decimal.NewFromInt(amount).Shift(2).IntPart()
	if err := e.provider.ActivateQR(ctx, qr.QrcID, amountMinor); err != nil {
		return nil, fmt.Errorf("failed to activate QR code %s: %w", qr.QrcID, err)
	}

	payment := &models.QRPayment{
		QrcID:         qr.QrcID,
		UserID:        userID,
		Amount:        amount,
		AccountsCount: accountCount,
		Status:        models.PaymentPending,
	}
	if err := e.repo.CreatePayment(payment); err != nil {
		return nil, err
	}

	e.logger.Info("Payment requested", "qrc_id", qr.QrcID, "user", userID, "amount", amount, "accounts", accountCount)

	return &models.PaymentHandle{
		QrcID:         qr.QrcID,
		Image:         qr.Image,
		Amount:        amount,
		AccountsCount: accountCount,
	}, nil
}

// BuyAccounts prices accountCount from the tariff and requests the payment.
func (e *Engine) BuyAccounts(ctx context.Context, userID string, accountCount int) (*models.PaymentHandle, error) {
	price, ok := Tariff[accountCount]
	if !ok {
		return nil, fmt.Errorf("%w: no tariff for %d accounts", models.ErrInvalidInput, accountCount)
	}
	return e.CreatePaymentRequest(ctx, price, accountCount, userID)
}

// CheckStatus asks the provider about a payment. It never fails: provider errors
// are reported as unresolved.
func (e *Engine) CheckStatus(ctx context.Context, paymentID string) models.PaymentStatus {
	status, err := e.provider.PaymentStatus(ctx, paymentID)
	if err != nil {
		e.logger.Warn("Failed to check payment status", "qrc_id", paymentID, "error", err)
		return models.PaymentUnresolved
	}

	switch status {
	case "SUCCESS":
		return models.PaymentSucceeded
	default:
		return models.PaymentPending
	}
}

// Reconcile marks a pending payment of userID as succeeded and credits its slots.
// It returns false when the payment was not pending, so repeated calls credit once.
func (e *Engine) Reconcile(ctx context.Context, paymentID, userID string) (bool, error) {
	credited, err := e.repo.CompletePayment(paymentID, userID, e.now().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to reconcile payment %s: %w", paymentID, err)
	}
	if !credited {
		e.logger.Info("Payment not reconciled", "qrc_id", paymentID, "user", userID, "reason", models.ErrConflictingState)
		return false, nil
	}

	e.logger.Info("Payment reconciled", "qrc_id", paymentID, "user", userID)
	return true, nil
}

// ConfirmPayment checks a payment with the provider and credits it when paid.
func (e *Engine) ConfirmPayment(ctx context.Context, paymentID, userID string) (models.ConfirmOutcome, error) {
	if e.CheckStatus(ctx, paymentID) != models.PaymentSucceeded {
		return models.OutcomeNotPaid, nil
	}

	credited, err := e.Reconcile(ctx, paymentID, userID)
	if err != nil {
		return "", err
	}
	if credited {
		return models.OutcomeCredited, nil
	}

	payment, err := e.repo.GetPayment(paymentID)
	if err != nil {
		return "", err
	}
	if payment.UserID != userID {
		return "", fmt.Errorf("payment %s: %w", paymentID, models.ErrNotFound)
	}

	return models.OutcomeAlreadyProcessed, nil
}

// AvailableSlots is the free quota plus the slots the user paid for.
func (e *Engine) AvailableSlots(userID string) (int, error) {
	user, err := e.repo.GetUser(userID)
	if errors.Is(err, models.ErrNotFound) {
		return models.FreeAccountSlots, nil
	}
	if err != nil {
		return 0, err
	}
	return user.AvailableSlots(), nil
}

// VerifyProviderToken checks the payment provider credentials for the admin.
func (e *Engine) VerifyProviderToken(ctx context.Context) error {
	return e.provider.VerifyToken(ctx)
}
