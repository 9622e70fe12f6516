package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api-merchant.payos.vn"
	defaultTimeout              = 15 * time.Second
	responseBodyReadLimit int64 = 1024
)

// Credentials identify the merchant channel.
type Credentials struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
}

// Client calls the PayOS merchant API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	creds       Credentials
	timeout     time.Duration
	verifyReply bool
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the merchant API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if trimmed != "" {
			c.baseURL = strings.TrimSuffix(trimmed, "/v2")
		}
	}
}

// WithTimeout bounds each gateway call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithResponseVerification checks the signature PayOS attaches to link responses.
func WithResponseVerification(enabled bool) Option {
	return func(c *Client) {
		c.verifyReply = enabled
	}
}

// NewClient builds a PayOS client. All three credentials are required.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	creds.ClientID = strings.TrimSpace(creds.ClientID)
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	creds.ChecksumKey = strings.TrimSpace(creds.ChecksumKey)
	if creds.ClientID == "" || creds.APIKey == "" || creds.ChecksumKey == "" {
		return nil, errors.New("payos client id, api key and checksum key are required")
	}
	client := &Client{
		creds:   creds,
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: client.timeout}
	}
	return client, nil
}

// ChecksumKey exposes the key used to verify webhook deliveries.
func (c *Client) ChecksumKey() string {
	return c.creds.ChecksumKey
}

// CreatePaymentLink signs and submits a new payment request.
func (c *Client) CreatePaymentLink(ctx context.Context, req CreatePaymentLinkRequest) (*PaymentLink, error) {
	if req.OrderCode <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code must be positive")
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if req.ReturnURL == "" || req.CancelURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return and cancel urls are required")
	}
	if len([]rune(req.Description)) > MaxDescriptionLength {
		req.Description = string([]rune(req.Description)[:MaxDescriptionLength])
	}
	req.Signature = Sign(c.creds.ChecksumKey, PaymentRequestSignatureData(req.Amount, req.CancelURL, req.Description, req.OrderCode, req.ReturnURL))

	resp, err := c.do(ctx, http.MethodPost, "/v2/payment-requests", req)
	if err != nil {
		return nil, err
	}
	if c.verifyReply && resp.Signature != "" {
		if err := VerifyData(c.creds.ChecksumKey, resp.Data, resp.Signature); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payos response signature mismatch")
		}
	}

	var link PaymentLink
	if err := json.Unmarshal(resp.Data, &link); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment link")
	}
	link.Raw = resp.Data
	return &link, nil
}

// GetPaymentLinkInfo fetches the current state of a link by order code.
func (c *Client) GetPaymentLinkInfo(ctx context.Context, orderCode int64) (*PaymentLinkInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v2/payment-requests/%d", orderCode), nil)
	if err != nil {
		return nil, err
	}
	return decodeLinkInfo(resp.Data)
}

// CancelPaymentLink cancels an open link.
func (c *Client) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) (*PaymentLinkInfo, error) {
	body := map[string]string{}
	if r := strings.TrimSpace(reason); r != "" {
		body["cancellationReason"] = r
	}
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v2/payment-requests/%d/cancel", orderCode), body)
	if err != nil {
		return nil, err
	}
	return decodeLinkInfo(resp.Data)
}

func decodeLinkInfo(raw json.RawMessage) (*PaymentLinkInfo, error) {
	var info PaymentLinkInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment link info")
	}
	info.Raw = raw
	return &info, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal payos request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build payos request")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("x-client-id", c.creds.ClientID)
	httpReq.Header.Set("x-api-key", c.creds.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute payos request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "payos request failed")
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payos response")
	}
	if apiResp.Code != CodeSuccess {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("code %s: %s", apiResp.Code, apiResp.Desc), "payos rejected request").
			WithDetails(map[string]any{"gateway_code": apiResp.Code, "gateway_message": apiResp.Desc})
	}
	return &apiResp, nil
}
