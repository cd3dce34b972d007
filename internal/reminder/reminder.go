package reminder

import (
	"context"
	"fmt"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/logger"
)

const buttonText = "📨 Open mailing bot"

// CycleReport summarises one reminder broadcast.
type CycleReport struct {
	Users  int `json:"users"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Sender broadcasts the mailing bot advert to every stored user.
type Sender struct {
	logger      *logger.Logger
	repo        models.Repository
	notificator models.NotificationService
	text        string
	url         string
}

func NewSender(repo models.Repository, notificator models.NotificationService, text, url string, logger *logger.Logger) *Sender {
	return &Sender{
		logger:      logger,
		repo:        repo,
		notificator: notificator,
		text:        text,
		url:         url,
	}
}

func (s *Sender) RunCycle(ctx context.Context) (CycleReport, error) {
	ids, err := s.repo.ListUserIDs()
	if err != nil {
		return CycleReport{}, fmt.Errorf("failed to list users: %w", err)
	}

	var report CycleReport
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		report.Users++

		var sendErr error
		if s.url != "" {
			sendErr = s.notificator.SendLink(ctx, id, s.text, buttonText, s.url)
		} else {
			sendErr = s.notificator.SendNotification(ctx, id, s.text)
		}
		if sendErr != nil {
			s.logger.Warn("Failed to send reminder", "user", id, "error", sendErr)
			report.Failed++
			continue
		}
		report.Sent++
	}

	s.logger.Info("Reminder sent", "users", report.Users, "sent", report.Sent, "failed", report.Failed)

	return report, ctx.Err()
}
