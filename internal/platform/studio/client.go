package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRetryBase = 200 * time.Millisecond
	defaultRetryMax  = 2 * time.Second

	// maxErrorBody bounds how much of a failed response is kept.
	maxErrorBody = 512
)

// Config configures the Studio REST client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.co.clearstreet.io/studio".
	BaseURL    string
	Auth       string
	Account    string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
	RetryMax   time.Duration
}

// Client is the REST order gateway for Clear Street Studio. Transient
// failures are retried with exponential backoff; explicit 4xx answers are
// returned immediately as *domain.GatewayError. Submits are only retried
// when the venue cannot have seen the first attempt.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Studio REST client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = max(defaultRetryMax, cfg.RetryBase)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(slog.String("component", "studio_client")),
	}
}

// Submit places a limit order and returns the exchange-assigned order id.
func (c *Client) Submit(ctx context.Context, req domain.OrderRequest) (string, error) {
	if req.ReferenceID == "" {
		req.ReferenceID = uuid.NewString()
	}
	body := NewOrderFromRequest(req)

	respBody, err := c.do(ctx, "submit", http.MethodPost, c.ordersPath(), nil, body, false)
	if err != nil {
		return "", fmt.Errorf("studio: %w", err)
	}

	var resp NewOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("studio: decode submit response: %w", err)
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("studio: submit response without order_id")
	}
	return resp.OrderID, nil
}

// Cancel cancels one order by its exchange id.
func (c *Client) Cancel(ctx context.Context, orderID string) error {
	path := c.ordersPath() + "/" + url.PathEscape(orderID)
	if _, err := c.do(ctx, "cancel", http.MethodDelete, path, nil, nil, true); err != nil {
		return fmt.Errorf("studio: cancel %s: %w", orderID, err)
	}
	return nil
}

// CancelAll cancels every open order on the account for symbol. An empty
// symbol cancels everything.
func (c *Client) CancelAll(ctx context.Context, symbol string) error {
	var q url.Values
	if symbol != "" {
		q = url.Values{"symbol": []string{symbol}}
	}
	if _, err := c.do(ctx, "cancel_all", http.MethodDelete, c.ordersPath(), q, nil, true); err != nil {
		return fmt.Errorf("studio: cancel all: %w", err)
	}
	return nil
}

func (c *Client) ordersPath() string {
	return "/v2/accounts/" + url.PathEscape(c.cfg.Account) + "/orders"
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do sends the request, retrying failures that are safe to repeat. Every
// failure is a *domain.GatewayError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, reqBody any, idempotent bool) ([]byte, error) {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = b
	}

	delay := c.cfg.RetryBase
	for attempt := 0; ; attempt++ {
		body, err := c.once(ctx, op, method, path, query, payload)
		if err == nil {
			return body, nil
		}

		var gerr *domain.GatewayError
		if !errors.As(err, &gerr) || !gerr.Retryable(idempotent) || attempt >= c.cfg.MaxRetries || ctx.Err() != nil {
			return nil, err
		}

		c.logger.WarnContext(ctx, "gateway failure, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(delay):
		}
		delay = min(delay*2, c.cfg.RetryMax)
	}
}

func (c *Client) once(ctx context.Context, op, method, path string, query url.Values, payload []byte) ([]byte, error) {
	fullURL := c.cfg.BaseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Err: err, NotSent: neverSent(err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(respBody))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &domain.GatewayError{Op: op, Status: resp.StatusCode, Body: text}
	}
	return respBody, nil
}

// neverSent reports whether err happened while resolving or dialing, before
// the request could reach the venue.
func neverSent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
