package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbtrader/internal/session"
)

func TestPaperBroker(t *testing.T) {
	p := NewPaperBroker()
	assert.True(t, p.IsReady())

	res, err := p.PlaceOrder(context.Background(), Order{Symbol: "AAPL", Side: OrderSideBuy, Quantity: 0.4, RefPrice: 102})
	require.NoError(t, err)
	assert.Equal(t, "filled", res.Status)
	assert.Equal(t, OrderTypeMarket, res.Type)
	assert.Equal(t, 0.4, res.FilledQty)
	assert.Equal(t, 102.0, res.AvgPrice)
	assert.NotEmpty(t, res.OrderID)

	res, err = p.PlaceOrder(context.Background(), Order{Symbol: "AAPL", Side: OrderSideSell, Type: OrderTypeLimit, Quantity: 0.4, LimitPrice: 110, RefPrice: 108})
	require.NoError(t, err)
	assert.Equal(t, 110.0, res.AvgPrice)
	assert.Len(t, p.Orders(), 2)
}

func TestValidateOrder(t *testing.T) {
	tests := []struct {
		name  string
		order Order
	}{
		{"no symbol", Order{Side: OrderSideBuy, Quantity: 1}},
		{"zero qty", Order{Symbol: "A", Side: OrderSideBuy}},
		{"bad side", Order{Symbol: "A", Side: "short", Quantity: 1}},
		{"limit without price", Order{Symbol: "A", Side: OrderSideBuy, Type: OrderTypeLimit, Quantity: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPaperBroker().PlaceOrder(context.Background(), tt.order)
			assert.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
}

func TestAlpacaPlaceOrder(t *testing.T) {
	var got alpacaOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ord-1","client_order_id":"` + got.ClientOrderID + `","symbol":"AAPL",
			"qty":"0.4","filled_qty":"0","filled_avg_price":null,"side":"buy","type":"market",
			"status":"accepted","submitted_at":"2024-01-11T14:40:00Z"}`))
	}))
	defer srv.Close()

	a := NewAlpacaBroker(AlpacaCredentials{BaseURL: srv.URL + "/", KeyID: "key", SecretKey: "secret"})
	require.True(t, a.IsReady())

	res, err := a.PlaceOrder(context.Background(), Order{Symbol: "AAPL", Side: OrderSideBuy, Quantity: 0.4})
	require.NoError(t, err)

	assert.Equal(t, "0.4", got.Qty)
	assert.Equal(t, "market", got.Type)
	assert.Equal(t, "day", got.TimeInForce)
	assert.NotEmpty(t, got.ClientOrderID)
	assert.Empty(t, got.LimitPrice)

	assert.Equal(t, "ord-1", res.OrderID)
	assert.Equal(t, got.ClientOrderID, res.ClientOrderID)
	assert.Equal(t, "accepted", res.Status)
	assert.Equal(t, 0.4, res.Quantity)
	assert.Zero(t, res.AvgPrice)
	assert.True(t, res.SubmittedAt.Equal(time.Date(2024, 1, 11, 14, 40, 0, 0, time.UTC)))
}

func TestAlpacaAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":40310000,"message":"insufficient buying power"}`))
	}))
	defer srv.Close()

	a := NewAlpacaBroker(AlpacaCredentials{BaseURL: srv.URL, KeyID: "key", SecretKey: "secret"})
	_, err := a.PlaceOrder(context.Background(), Order{Symbol: "AAPL", Side: OrderSideBuy, Quantity: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient buying power")
	assert.Contains(t, err.Error(), "403")
}

func TestAlpacaNotConfigured(t *testing.T) {
	a := NewAlpacaBroker(AlpacaCredentials{BaseURL: "http://127.0.0.1:1"})
	assert.False(t, a.IsReady())
	_, err := a.PlaceOrder(context.Background(), Order{Symbol: "AAPL", Side: OrderSideBuy, Quantity: 1})
	assert.Error(t, err)
}

type failingBroker struct{}

func (failingBroker) Name() string  { return "failing" }
func (failingBroker) IsReady() bool { return true }
func (failingBroker) PlaceOrder(context.Context, Order) (*OrderResult, error) {
	return nil, errors.New("exchange closed")
}

func entered(qty float64) session.Outcome {
	return session.Outcome{Kind: session.KindEntered, Symbol: "AAPL", Price: 102, Quantity: qty, TradeID: "t-1"}
}

func exited(qty float64) session.Outcome {
	return session.Outcome{Kind: session.KindExited, Symbol: "AAPL", Price: 110.16, Quantity: qty, TradeID: "t-1", Reason: "take profit"}
}

func TestExecutorSubmitsEntriesAndExits(t *testing.T) {
	paper := NewPaperBroker()
	e := NewExecutor(context.Background(), paper, false)

	require.NoError(t, e.OnOutcome(session.Outcome{Kind: session.KindNoSetup, Symbol: "AAPL"}))
	require.NoError(t, e.OnOutcome(entered(0.4)))
	require.NoError(t, e.OnOutcome(session.Outcome{Kind: session.KindHold, Symbol: "AAPL"}))
	require.NoError(t, e.OnOutcome(exited(0.4)))
	require.NoError(t, e.OnDayEnd(session.DayReport{}))

	orders := paper.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, OrderSideBuy, orders[0].Side)
	assert.Equal(t, 102.0, orders[0].AvgPrice)
	assert.Equal(t, OrderSideSell, orders[1].Side)
	assert.Equal(t, 0.4, orders[1].Quantity)
	assert.Equal(t, "orb-t-1-buy", orders[0].ClientOrderID)
	assert.Equal(t, "orb-t-1-sell", orders[1].ClientOrderID)
	assert.Len(t, e.Executions(), 2)
}

func TestExecutorDryRun(t *testing.T) {
	paper := NewPaperBroker()
	e := NewExecutor(context.Background(), paper, true)

	require.NoError(t, e.OnOutcome(entered(0.4)))
	assert.Empty(t, paper.Orders())

	ex := e.Executions()
	require.Len(t, ex, 1)
	assert.Equal(t, "simulated", ex[0].Result.Status)
}

func TestExecutorReportsBrokerErrors(t *testing.T) {
	e := NewExecutor(context.Background(), failingBroker{}, false)
	err := e.OnOutcome(entered(1))
	assert.ErrorContains(t, err, "exchange closed")
	require.Len(t, e.Executions(), 1)
	assert.Error(t, e.Executions()[0].Err)
}
