package tochka

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/logger"
)

const businessCustomerType = "Business"

// Client issues and tracks SBP cashbox QR codes at the bank.
type Client struct {
	logger      *logger.Logger
	baseURL     string
	token       string
	bankCode    string
	redirectURL string
	client      *http.Client

	merchantMu sync.Mutex
	merchant   *models.MerchantInfo
}

var _ models.PaymentProvider = (*Client)(nil)

// NewClient creates a client authenticating with the given JWT. The "Bearer "
// prefix is added when missing.
func NewClient(baseURL, jwtToken, bankCode, redirectURL string, timeout time.Duration, logger *logger.Logger) *Client {
	token := strings.TrimSpace(jwtToken)
	if !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}
	return &Client{
		logger:      logger,
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		bankCode:    bankCode,
		redirectURL: redirectURL,
		client:      &http.Client{Timeout: timeout},
	}
}

type customersResponse struct {
	Customers []struct {
		CustomerCode string `json:"customerCode"`
		CustomerType string `json:"customerType"`
	} `json:"customers"`
}

// ResolveMerchant returns the merchant and account of the business customer.
// The first successful lookup is kept for the lifetime of the client; failures are not cached.
func (c *Client) ResolveMerchant(ctx context.Context) (*models.MerchantInfo, error) {
	c.merchantMu.Lock()
	defer c.merchantMu.Unlock()

	if c.merchant != nil {
		return c.merchant, nil
	}

	var customers customersResponse
	if err := c.doJSON(ctx, "list customers", http.MethodGet, c.baseURL+"/open/v2/customers", nil, &customers); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIrrecoverableSetup, err)
	}

	code := ""
	for _, customer := range customers.Customers {
		if customer.CustomerType == businessCustomerType {
			code = customer.CustomerCode
			break
		}
	}
	if code == "" {
		return nil, fmt.Errorf("%w: no business customer found", models.ErrIrrecoverableSetup)
	}

	q := url.Values{}
	q.Set("bankCode", c.bankCode)
	endpoint := fmt.Sprintf("%s/open/v2/customers/%s?%s", c.baseURL, url.PathEscape(code), q.Encode())

	var details struct {
		MerchantID string `json:"merchantId"`
		AccountID  string `json:"accountId"`
	}
	if err := c.doJSON(ctx, "customer info", http.MethodGet, endpoint, nil, &details); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIrrecoverableSetup, err)
	}
	if details.MerchantID == "" || details.AccountID == "" {
		return nil, fmt.Errorf("%w: invalid merchant info received", models.ErrIrrecoverableSetup)
	}

	c.merchant = &models.MerchantInfo{MerchantID: details.MerchantID, AccountID: details.AccountID}
	c.logger.Info("Resolved merchant", "merchant_id", details.MerchantID)

	return c.merchant, nil
}

// RegisterQR registers a cashbox QR code that redirects to the success URL once paid.
func (c *Client) RegisterQR(ctx context.Context, merchant *models.MerchantInfo) (*models.QRCode, error) {
	payload := map[string]string{
		"accountId":   merchant.AccountID,
		"merchantId":  merchant.MerchantID,
		"redirectUrl": c.redirectURL,
	}

	var resp struct {
		QrcID string `json:"qrcId"`
		Image string `json:"image"`
	}
	if err := c.doJSON(ctx, "register QR", http.MethodPost, c.baseURL+"/sbp/v2/cashbox_qr_code", payload, &resp); err != nil {
		return nil, err
	}
	if resp.QrcID == "" {
		return nil, fmt.Errorf("register QR: %w: no QR code ID received", models.ErrTransientNetwork)
	}

	return &models.QRCode{QrcID: resp.QrcID, Image: resp.Image}, nil
}

// ActivateQR binds the amount, in minor units, to a registered QR code.
func (c *Client) ActivateQR(ctx context.Context, qrcID string, amountMinor int64) error {
	endpoint := fmt.Sprintf("%s/sbp/v2/cashbox_qr_code/%s/activate", c.baseURL, url.PathEscape(qrcID))
	return c.doJSON(ctx, "activate QR", http.MethodPost, endpoint, map[string]int64{"amount": amountMinor}, nil)
}

// PaymentStatus returns the raw provider status of the QR code, PENDING when absent.
func (c *Client) PaymentStatus(ctx context.Context, qrcID string) (string, error) {
	endpoint := fmt.Sprintf("%s/sbp/v2/cashbox_qr_code/%s/payment-status", c.baseURL, url.PathEscape(qrcID))

	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, "payment status", http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", err
	}
	if resp.Status == "" {
		return "PENDING", nil
	}

	return resp.Status, nil
}

// VerifyToken checks that the JWT has not expired and that the customers endpoint accepts it.
func (c *Client) VerifyToken(ctx context.Context) error {
	raw := strings.TrimPrefix(c.token, "Bearer ")
	claims := jwt.MapClaims{}
	// The signature is the bank's business; only the expiry is inspected here.
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err == nil {
		exp, err := claims.GetExpirationTime()
		if err == nil && exp != nil && exp.Before(time.Now()) {
			return fmt.Errorf("%w: token expired at %s", models.ErrAuthFailure, exp.Format(time.RFC3339))
		}
	} else {
		c.logger.Debug("Payment provider token is not a parseable JWT", "error", err)
	}

	if err := c.doJSON(ctx, "list customers", http.MethodGet, c.baseURL+"/open/v2/customers", nil, nil); err != nil {
		return err
	}

	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return models.ErrAuthFailure
	}
	return models.ErrTransientNetwork
}

func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, models.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Payment provider response", "op", op, "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: failed to decode response: %v", op, models.ErrTransientNetwork, err)
	}

	return nil
}
