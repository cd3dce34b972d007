package models

import "context"

// NotificationService delivers messages to bot users.
type NotificationService interface {
	SendNotification(ctx context.Context, userID, message string) error
	SendLink(ctx context.Context, userID, message, buttonText, url string) error
}
