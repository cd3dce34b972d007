package avito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/logger"
)

// Client talks to the Avito messenger and billing REST API.
type Client struct {
	logger  *logger.Logger
	baseURL string
	client  *http.Client
	tokens  *TokenCache
}

var _ models.MarketplaceClient = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, logger *logger.Logger) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		logger:  logger,
		baseURL: baseURL,
		client:  httpClient,
		tokens:  NewTokenCache(baseURL+"/token", httpClient),
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap classifies the failure so callers can use errors.Is with the model error kinds.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return models.ErrAuthFailure
	}
	return models.ErrTransientNetwork
}

func (c *Client) Token(ctx context.Context, creds models.Credentials) (string, error) {
	return c.tokens.Token(ctx, creds)
}

func (c *Client) InvalidateToken(creds models.Credentials) {
	c.tokens.Invalidate(creds)
}

type chatsResponse struct {
	Chats []struct {
		ID          string `json:"id"`
		LastMessage *struct {
			Created int64 `json:"created"`
		} `json:"last_message"`
	} `json:"chats"`
}

// ListUnreadChats returns the first page of unread conversations of the account.
func (c *Client) ListUnreadChats(ctx context.Context, token, marketplaceUserID string, limit int) ([]models.Chat, error) {
	q := url.Values{}
	q.Set("unread_only", "true")
	q.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/messenger/v2/accounts/%s/chats?%s", c.baseURL, url.PathEscape(marketplaceUserID), q.Encode())

	var resp chatsResponse
	if err := c.doJSON(ctx, "list chats", http.MethodGet, endpoint, token, nil, &resp); err != nil {
		return nil, err
	}

	chats := make([]models.Chat, 0, len(resp.Chats))
	for _, ch := range resp.Chats {
		if ch.ID == "" {
			continue
		}
		chat := models.Chat{ID: ch.ID}
		if ch.LastMessage != nil {
			chat.LastMessageAt = ch.LastMessage.Created
		}
		chats = append(chats, chat)
	}

	return chats, nil
}

func (c *Client) SendText(ctx context.Context, token, marketplaceUserID, chatID, text string) error {
	endpoint := fmt.Sprintf("%s/messenger/v1/accounts/%s/chats/%s/messages", c.baseURL, url.PathEscape(marketplaceUserID), url.PathEscape(chatID))
	payload := map[string]interface{}{
		"message": map[string]string{"text": text},
		"type":    "text",
	}
	return c.doJSON(ctx, "send message", http.MethodPost, endpoint, token, payload, nil)
}

// UploadImage uploads an image and returns the marketplace image ID.
func (c *Client) UploadImage(ctx context.Context, token, marketplaceUserID string, image []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("uploadfile[]", "image.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/messenger/v1/accounts/%s/uploadImages", c.baseURL, url.PathEscape(marketplaceUserID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	// The response is keyed by the new image IDs.
	var resp map[string]json.RawMessage
	if err := c.do(req, "upload image", &resp); err != nil {
		return "", err
	}
	for id := range resp {
		return id, nil
	}

	return "", fmt.Errorf("upload image: %w: no image id in response", models.ErrTransientNetwork)
}

func (c *Client) SendImage(ctx context.Context, token, marketplaceUserID, chatID, imageID string) error {
	endpoint := fmt.Sprintf("%s/messenger/v1/accounts/%s/chats/%s/messages/image", c.baseURL, url.PathEscape(marketplaceUserID), url.PathEscape(chatID))
	return c.doJSON(ctx, "send image", http.MethodPost, endpoint, token, map[string]string{"image_id": imageID}, nil)
}

// MainBalance returns the real and bonus balance of the account.
func (c *Client) MainBalance(ctx context.Context, token, marketplaceUserID string) (*models.MainBalance, error) {
	endpoint := fmt.Sprintf("%s/core/v1/accounts/%s/balance/", c.baseURL, url.PathEscape(marketplaceUserID))

	var balance models.MainBalance
	if err := c.doJSON(ctx, "main balance", http.MethodGet, endpoint, token, nil, &balance); err != nil {
		return nil, err
	}

	return &balance, nil
}

// AdvanceBalance returns the advance balance in whole currency units.
func (c *Client) AdvanceBalance(ctx context.Context, token string) (decimal.Decimal, error) {
	var resp struct {
		Balance *decimal.Decimal `json:"balance"`
	}
	if err := c.doJSON(ctx, "advance balance", http.MethodPost, c.baseURL+"/cpa/v3/balanceInfo", token, struct{}{}, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Balance == nil {
		return decimal.Zero, fmt.Errorf("advance balance: %w: balance missing in response", models.ErrTransientNetwork)
	}

	// Reported in minor units.
	return resp.Balance.Shift(-2), nil
}

func (c *Client) doJSON(ctx context.Context, op, method, endpoint, token string, payload, out interface{}) error {
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
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, models.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Debug("Marketplace request failed", "op", op, "status", resp.StatusCode)
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: failed to decode response: %v", op, models.ErrTransientNetwork, err)
	}

	return nil
}
