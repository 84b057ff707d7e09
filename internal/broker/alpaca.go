package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"orbtrader/internal/ratelimit"
)

// AlpacaCredentials API key pair and trading endpoint
type AlpacaCredentials struct {
	BaseURL   string // https://paper-api.alpaca.markets or https://api.alpaca.markets
	KeyID     string
	SecretKey string
}

// AlpacaBroker places orders through the Alpaca trading REST API
type AlpacaBroker struct {
	creds      AlpacaCredentials
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewAlpacaBroker creates an Alpaca client
func NewAlpacaBroker(creds AlpacaCredentials) *AlpacaBroker {
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	return &AlpacaBroker{
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.NewLimiter("alpaca", 200),
	}
}

func (a *AlpacaBroker) Name() string {
	return "alpaca"
}

// IsReady reports whether credentials are configured
func (a *AlpacaBroker) IsReady() bool {
	return a.creds.BaseURL != "" && a.creds.KeyID != "" && a.creds.SecretKey != ""
}

type alpacaOrderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price,omitempty"`
	ClientOrderID string `json:"client_order_id"`
}

type alpacaOrder struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Qty            string     `json:"qty"`
	FilledQty      string     `json:"filled_qty"`
	FilledAvgPrice *string    `json:"filled_avg_price"`
	Side           string     `json:"side"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	SubmittedAt    *time.Time `json:"submitted_at"`
}

type alpacaError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PlaceOrder submits a DAY order. Fractional quantities require market or
// limit orders with DAY time in force, which is all this sends.
func (a *AlpacaBroker) PlaceOrder(ctx context.Context, order Order) (*OrderResult, error) {
	if err := validate(order); err != nil {
		return nil, err
	}
	if order.Type == "" {
		order.Type = OrderTypeMarket
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}

	req := alpacaOrderRequest{
		Symbol:        order.Symbol,
		Qty:           strconv.FormatFloat(order.Quantity, 'f', -1, 64),
		Side:          string(order.Side),
		Type:          string(order.Type),
		TimeInForce:   "day",
		ClientOrderID: order.ClientOrderID,
	}
	if order.Type == OrderTypeLimit {
		req.LimitPrice = strconv.FormatFloat(order.LimitPrice, 'f', 2, 64)
	}

	body, err := a.doRequest(ctx, http.MethodPost, "/v2/orders", req)
	if err != nil {
		return nil, fmt.Errorf("alpaca %s %s: %w", order.Side, order.Symbol, err)
	}

	var resp alpacaOrder
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return resp.toResult(), nil
}

func (o alpacaOrder) toResult() *OrderResult {
	res := &OrderResult{
		OrderID:       o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          OrderSide(o.Side),
		Type:          OrderType(o.Type),
		Status:        o.Status,
	}
	res.Quantity, _ = strconv.ParseFloat(o.Qty, 64)
	res.FilledQty, _ = strconv.ParseFloat(o.FilledQty, 64)
	if o.FilledAvgPrice != nil {
		res.AvgPrice, _ = strconv.ParseFloat(*o.FilledAvgPrice, 64)
	}
	if o.SubmittedAt != nil {
		res.SubmittedAt = *o.SubmittedAt
	}
	return res
}

func (a *AlpacaBroker) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	if !a.IsReady() {
		return nil, fmt.Errorf("alpaca credentials not configured")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.creds.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("APCA-API-KEY-ID", a.creds.KeyID)
	req.Header.Set("APCA-API-SECRET-KEY", a.creds.SecretKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		a.limiter.SignalRateLimited()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr alpacaError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	a.limiter.ResetBackoff()
	return respBody, nil
}
