package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"checkout-core/internal/domain"
)

// Client talks to FastPay over HTTP. It is constructed once at process start
// and is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", params, &session); err != nil {
		return nil, &domain.GatewayError{Op: "create session", Err: err}
	}
	return &session, nil
}

func (c *Client) RetrieveSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	path := "/v1/checkout/sessions/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &session); err != nil {
		return nil, &domain.GatewayError{Op: "retrieve session", Err: err}
	}
	return &session, nil
}

func (c *Client) ListSessionsByPaymentRef(ctx context.Context, paymentRef string) (*Session, error) {
	var out struct {
		Data []Session `json:"data"`
	}
	path := "/v1/checkout/sessions?payment_ref=" + url.QueryEscape(paymentRef) + "&limit=1"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, &domain.GatewayError{Op: "list sessions", Err: err}
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	return &out.Data[0], nil
}

func (c *Client) ListSessionsByOrder(ctx context.Context, orderID string) (*Session, error) {
	var out struct {
		Data []Session `json:"data"`
	}
	path := "/v1/checkout/sessions?metadata[orderId]=" + url.QueryEscape(orderID) + "&limit=1"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, &domain.GatewayError{Op: "list sessions", Err: err}
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	return &out.Data[0], nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
