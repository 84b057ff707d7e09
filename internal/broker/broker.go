package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// OrderType market or limit
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderSide buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Order is a request to trade Quantity (fractional allowed) shares
type Order struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	LimitPrice    float64 // limit orders only
	RefPrice      float64 // decision price, used by the paper broker as the fill
	ClientOrderID string
}

// OrderResult is the broker's answer to an order
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	FilledQty     float64
	AvgPrice      float64
	Status        string // new, accepted, filled, rejected, simulated
	Message       string
	SubmittedAt   time.Time
}

// ErrInvalidOrder is returned for orders rejected before submission
var ErrInvalidOrder = errors.New("invalid order")

// Broker routes orders to an account
type Broker interface {
	Name() string

	// IsReady reports whether the broker has what it needs to accept orders
	IsReady() bool

	PlaceOrder(ctx context.Context, order Order) (*OrderResult, error)
}

func validate(order Order) error {
	if order.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidOrder)
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %v must be positive", ErrInvalidOrder, order.Quantity)
	}
	if order.Side != OrderSideBuy && order.Side != OrderSideSell {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, order.Side)
	}
	if order.Type == OrderTypeLimit && order.LimitPrice <= 0 {
		return fmt.Errorf("%w: limit order without price", ErrInvalidOrder)
	}
	return nil
}
