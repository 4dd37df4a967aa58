package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	PayoutPath = "/tech/api/payout/create"
	PayinPath  = "/tech/api/payin/create_intent"

	DefaultBaseURL = "https://partner.payraizen.com"
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 1 << 20
)

// Config configures the HTTP gateway client.
type Config struct {
	BaseURL    string
	Token      string
	MerchantID string
	Timeout    time.Duration
}

// PayraizenClient talks to a Payraizen-compatible partner API over HTTPS.
type PayraizenClient struct {
	baseURL    string
	token      string
	merchantID string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewPayraizenClient(cfg Config, logger *zap.Logger) *PayraizenClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PayraizenClient{
		baseURL:    baseURL,
		token:      cfg.Token,
		merchantID: cfg.MerchantID,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// WithHTTPClient swaps the underlying transport, mainly for tests.
func (c *PayraizenClient) WithHTTPClient(client *http.Client) *PayraizenClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

type payoutBody struct {
	BeneficiaryName string          `json:"beneficiary_name"`
	AccountNumber   string          `json:"account_number"`
	IFSCCode        string          `json:"ifsc_code"`
	Amount          decimal.Decimal `json:"amount"`
	MerchantID      string          `json:"mid"`
	TransactionID   string          `json:"txn_id"`
}

type payinBody struct {
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Mobile        string          `json:"mobile"`
	Amount        decimal.Decimal `json:"amount"`
	MerchantID    string          `json:"mid"`
	TransactionID string          `json:"txn_id"`
}

func (c *PayraizenClient) CreatePayout(ctx context.Context, req Request) Result {
	return c.post(ctx, PayoutPath, payoutBody{
		BeneficiaryName: req.BeneficiaryName,
		AccountNumber:   req.AccountNumber,
		IFSCCode:        req.IFSCCode,
		Amount:          req.Amount,
		MerchantID:      c.merchantID,
		TransactionID:   req.TransactionID,
	})
}

func (c *PayraizenClient) CreatePayin(ctx context.Context, req Request) Result {
	return c.post(ctx, PayinPath, payinBody{
		Name:          req.PayerName,
		Email:         req.PayerEmail,
		Mobile:        req.PayerMobile,
		Amount:        req.Amount,
		MerchantID:    c.merchantID,
		TransactionID: req.TransactionID,
	})
}

func (c *PayraizenClient) post(ctx context.Context, path string, body any) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return TransportFailure(fmt.Errorf("encode gateway request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return TransportFailure(fmt.Errorf("build gateway request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("gateway request failed",
			zap.String("path", path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return TransportFailure(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return TransportFailure(fmt.Errorf("read gateway response: %w", err))
	}

	c.logger.Debug("gateway responded",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return httpFailure(resp.StatusCode, raw)
	}

	parsed, err := DecodeObject(raw)
	if err != nil {
		return Result{
			Error:     wrapNonJSON(resp.StatusCode, raw, ErrMalformedPayload.Error()),
			Message:   ErrMalformedPayload.Error(),
			Transport: true,
		}
	}

	if !acknowledged(parsed) {
		return Result{
			Payload: raw,
			Error:   raw,
			Message: rejectionMessage(parsed),
		}
	}

	externalID := ExtractExternalID(parsed)
	if externalID == "" {
		c.logger.Warn("gateway acknowledged without an order id", zap.String("path", path))
	}
	return Result{
		Acknowledged: true,
		ExternalID:   externalID,
		Payload:      raw,
		Message:      partnerMessage(parsed),
	}
}

func httpFailure(status int, raw []byte) Result {
	msg := fmt.Sprintf("gateway responded with HTTP %d", status)
	if json.Valid(raw) {
		if parsed, err := DecodeObject(raw); err == nil {
			if m := partnerMessage(parsed); m != "" {
				msg = m
			}
		}
		return Result{Error: raw, Message: msg, Transport: true}
	}
	return Result{Error: wrapNonJSON(status, raw, msg), Message: msg, Transport: true}
}

// wrapNonJSON keeps a non-JSON partner body storable as a JSON document.
func wrapNonJSON(status int, raw []byte, msg string) json.RawMessage {
	out, _ := json.Marshal(map[string]any{
		"error":       msg,
		"status_code": status,
		"body":        string(raw),
	})
	return out
}

func partnerMessage(body map[string]any) string {
	for _, key := range []string{"msg", "message"} {
		if msg := StringField(body, key); msg != "" {
			return msg
		}
	}
	return ""
}
