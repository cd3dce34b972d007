package models

import "context"

// PaymentProvider is the bank API issuing scan-to-pay QR codes.
type PaymentProvider interface {
	ResolveMerchant(ctx context.Context) (*MerchantInfo, error)
	RegisterQR(ctx context.Context, merchant *MerchantInfo) (*QRCode, error)
	ActivateQR(ctx context.Context, qrcID string, amountMinor int64) error
	PaymentStatus(ctx context.Context, qrcID string) (string, error)
	VerifyToken(ctx context.Context) error
}
