package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/studiobook/api/internal/domain"
	"github.com/studiobook/api/internal/platform/config"
)

const defaultTimeout = 15 * time.Second

// ErrCommandRejected is returned when the command endpoint answers with a
// non-success status.
var ErrCommandRejected = errors.New("commands: rejected")

// Client issues order lifecycle commands to the external command service over
// HTTP. Idempotency of the endpoints is the remote service's contract.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option customises the command client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// NewClient constructs a command client from configuration.
func NewClient(cfg config.CommandsConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("commands: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("commands: invalid base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ApproveOrder issues the approve command.
func (c *Client) ApproveOrder(ctx context.Context, orderID string) error {
	return c.post(ctx, orderID, "approve", nil)
}

// RejectOrder issues the reject command.
func (c *Client) RejectOrder(ctx context.Context, orderID string, reason string) error {
	var body any
	if reason != "" {
		body = map[string]any{"reason": reason}
	}
	return c.post(ctx, orderID, "reject", body)
}

// CancelOrder issues the cancel command. canceledBy is advisory metadata.
func (c *Client) CancelOrder(ctx context.Context, orderID string, reason string, canceledBy string) error {
	payload := map[string]any{}
	if reason != "" {
		payload["reason"] = reason
	}
	if canceledBy != "" {
		payload["canceledBy"] = canceledBy
	}
	var body any
	if len(payload) > 0 {
		body = payload
	}
	return c.post(ctx, orderID, "cancel", body)
}

// FinalizeService issues the finalize command with delivered file metadata.
func (c *Client) FinalizeService(ctx context.Context, orderID string, files []domain.DeliveredFile) error {
	payload := make([]map[string]any, 0, len(files))
	for _, file := range files {
		payload = append(payload, map[string]any{
			"file_url":  file.URL,
			"file_name": file.Name,
			"file_size": file.SizeBytes,
			"file_type": file.ContentType,
		})
	}
	return c.post(ctx, orderID, "finalize", map[string]any{"files": payload})
}

func (c *Client) post(ctx context.Context, orderID string, action string, body any) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("commands: order id is required")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("commands: encode %s payload: %w", action, err)
		}
		reader = bytes.NewReader(encoded)
	}

	endpoint := fmt.Sprintf("%s/orders/%s/%s", c.baseURL, url.PathEscape(orderID), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return fmt.Errorf("commands: build %s request: %w", action, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("commands: %s %s: %w", action, orderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		message := strings.TrimSpace(string(detail))
		if message == "" {
			message = resp.Status
		}
		return fmt.Errorf("%w: %s %s: %s", ErrCommandRejected, action, orderID, message)
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}
