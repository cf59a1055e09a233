package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketplace-payments/internal/util"

	"go.uber.org/zap"
)

// TransferRequest moves platform funds to a host's connected account
type TransferRequest struct {
	AmountCents   int64
	Currency      string
	Destination   string // connected account id
	TransferGroup string // groups the transfer with the originating charge
}

// TransferResult is the processor's acknowledgment of a transfer
type TransferResult struct {
	TransferID string `json:"id"`
	Amount     int64  `json:"amount"`
}

// RefundRequest reverses part or all of a charge
type RefundRequest struct {
	PaymentReference string // payment intent id
	AmountCents      int64
	Reason           string
}

// RefundResult is the processor's acknowledgment of a refund
type RefundResult struct {
	RefundID string `json:"id"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
}

// Client is the outbound surface to the payment processor. The processor's
// ledger is authoritative; this service only mirrors its effects.
type Client interface {
	CreateTransfer(ctx context.Context, req *TransferRequest) (*TransferResult, error)
	CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error)
}

// HTTPClient talks to the processor's REST API
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient creates a processor API client
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: util.GetLogger(),
	}
}

// CreateTransfer initiates a transfer to a connected account
func (c *HTTPClient) CreateTransfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", req.Currency)
	form.Set("destination", req.Destination)
	if req.TransferGroup != "" {
		form.Set("transfer_group", req.TransferGroup)
	}

	var result TransferResult
	if err := c.post(ctx, "/v1/transfers", form, &result); err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	c.logger.Info("Transfer created",
		zap.String("transfer_id", result.TransferID),
		zap.Int64("amount", result.Amount))
	return &result, nil
}

// CreateRefund reverses a charge by payment reference
func (c *HTTPClient) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", req.PaymentReference)
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	if req.Reason != "" {
		form.Set("metadata[reason]", req.Reason)
	}

	var result RefundResult
	if err := c.post(ctx, "/v1/refunds", form, &result); err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}

	c.logger.Info("Refund created",
		zap.String("refund_id", result.RefundID),
		zap.Int64("amount", result.Amount))
	return &result, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("processor returned %d: %s", resp.StatusCode, apiErr.Error.Message)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
