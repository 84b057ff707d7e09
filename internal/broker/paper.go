package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperBroker fills every valid order immediately at its reference price
type PaperBroker struct {
	mu     sync.Mutex
	orders []OrderResult
	now    func() time.Time
}

func NewPaperBroker() *PaperBroker {
	return &PaperBroker{now: time.Now}
}

func (p *PaperBroker) Name() string  { return "paper" }
func (p *PaperBroker) IsReady() bool { return true }

func (p *PaperBroker) PlaceOrder(_ context.Context, order Order) (*OrderResult, error) {
	if err := validate(order); err != nil {
		return nil, err
	}
	if order.Type == "" {
		order.Type = OrderTypeMarket
	}

	price := order.RefPrice
	if order.Type == OrderTypeLimit {
		price = order.LimitPrice
	}

	res := OrderResult{
		OrderID:       uuid.NewString(),
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Type:          order.Type,
		Quantity:      order.Quantity,
		FilledQty:     order.Quantity,
		AvgPrice:      price,
		Status:        "filled",
		SubmittedAt:   p.now(),
	}

	p.mu.Lock()
	p.orders = append(p.orders, res)
	p.mu.Unlock()
	return &res, nil
}

// Orders returns the filled orders in submission order
func (p *PaperBroker) Orders() []OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderResult, len(p.orders))
	copy(out, p.orders)
	return out
}
