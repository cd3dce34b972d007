package http_api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/internal/scheduler"
)

// CreatePaymentRequest represents the JSON body for buying account slots
type CreatePaymentRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Accounts int    `json:"accounts" binding:"required,min=1"`
}

// ConfirmPaymentRequest represents the JSON body for confirming a payment
type ConfirmPaymentRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// SlotsResponse is returned by the slots endpoint
type SlotsResponse struct {
	UserID string `json:"user_id"`
	Slots  int    `json:"slots"`
}

// PaymentStatusResponse is returned by the payment status endpoint
type PaymentStatusResponse struct {
	QrcID  string               `json:"qrc_id"`
	Status models.PaymentStatus `json:"status"`
}

// ConfirmPaymentResponse is returned by the confirm endpoint
type ConfirmPaymentResponse struct {
	Success bool                  `json:"success"`
	Outcome models.ConfirmOutcome `json:"outcome"`
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) slots(c *gin.Context) {
	userID := c.Param("id")
	slots, err := s.app.AvailableSlots(userID)
	if err != nil {
		s.fail(c, err, "Failed to read available slots")
		return
	}
	c.JSON(http.StatusOK, SlotsResponse{UserID: userID, Slots: slots})
}

func (s *HTTPServer) createPayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	handle, err := s.app.BuyAccounts(c.Request.Context(), req.UserID, req.Accounts)
	if err != nil {
		s.fail(c, err, "Failed to create payment")
		return
	}

	s.logger.Info("Payment created", "user_id", req.UserID, "qrc_id", handle.QrcID, "request_id", c.GetString("request_id"))
	c.JSON(http.StatusCreated, handle)
}

func (s *HTTPServer) paymentStatus(c *gin.Context) {
	qrcID := c.Param("id")
	c.JSON(http.StatusOK, PaymentStatusResponse{
		QrcID:  qrcID,
		Status: s.app.PaymentStatus(c.Request.Context(), qrcID),
	})
}

func (s *HTTPServer) confirmPayment(c *gin.Context) {
	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	outcome, err := s.app.ConfirmPayment(c.Request.Context(), c.Param("id"), req.UserID)
	if err != nil {
		s.fail(c, err, "Failed to confirm payment")
		return
	}
	c.JSON(http.StatusOK, ConfirmPaymentResponse{Success: outcome != models.OutcomeNotPaid, Outcome: outcome})
}

func (s *HTTPServer) resetBalanceFlags(c *gin.Context) {
	userID := c.Param("id")
	if err := s.app.ResetBalanceFlags(userID); err != nil {
		s.fail(c, err, "Failed to reset balance flags")
		return
	}
	s.logger.Info("Balance flags reset", "user_id", userID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) runCycle(c *gin.Context) {
	name := c.Param("name")
	if err := s.app.RunCycle(c.Request.Context(), name); err != nil {
		s.fail(c, err, "Cycle failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cycle": name})
}

// fail writes the error response matching err.
func (s *HTTPServer) fail(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, "error", err, "path", c.FullPath(), "request_id", c.GetString("request_id"))
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   msg + ": " + err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, scheduler.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConfigurationMissing),
		errors.Is(err, scheduler.ErrLockHeld),
		errors.Is(err, scheduler.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, models.ErrIrrecoverableSetup):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrAuthFailure), errors.Is(err, models.ErrTransientNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
