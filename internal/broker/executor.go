package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orbtrader/internal/session"
	"orbtrader/pkg/logger"
)

// Execution records one order the executor handled
type Execution struct {
	TradeID string
	Order   Order
	Result  *OrderResult
	Err     error
}

// Executor turns session entries and exits into broker orders. It is a
// session.Observer; in dry-run mode orders are only logged.
type Executor struct {
	ctx     context.Context
	broker  Broker
	dryRun  bool
	timeout time.Duration

	mu         sync.Mutex
	executions []Execution
}

// NewExecutor creates an executor. ctx bounds every order submission.
func NewExecutor(ctx context.Context, b Broker, dryRun bool) *Executor {
	return &Executor{
		ctx:     ctx,
		broker:  b,
		dryRun:  dryRun,
		timeout: 15 * time.Second,
	}
}

func (e *Executor) OnOutcome(o session.Outcome) error {
	var side OrderSide
	switch o.Kind {
	case session.KindEntered:
		side = OrderSideBuy
	case session.KindExited:
		side = OrderSideSell
	default:
		return nil
	}

	order := Order{
		Symbol:        o.Symbol,
		Side:          side,
		Type:          OrderTypeMarket,
		Quantity:      o.Quantity,
		RefPrice:      o.Price,
		ClientOrderID: clientOrderID(o.TradeID, side),
	}

	if e.dryRun {
		logger.Info("[DRY-RUN] %s %s %.4f shares @ ~$%.2f (%s)", side, o.Symbol, o.Quantity, o.Price, o.Reason)
		e.record(Execution{TradeID: o.TradeID, Order: order, Result: &OrderResult{
			OrderID:  "DRY-RUN",
			Symbol:   o.Symbol,
			Side:     side,
			Type:     OrderTypeMarket,
			Quantity: o.Quantity,
			Status:   "simulated",
		}})
		return nil
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()

	res, err := e.broker.PlaceOrder(ctx, order)
	e.record(Execution{TradeID: o.TradeID, Order: order, Result: res, Err: err})
	if err != nil {
		return fmt.Errorf("%s %s: %w", side, o.Symbol, err)
	}
	logger.Info("[ORDER] %s %s %.4f via %s: %s (%s)", side, o.Symbol, o.Quantity, e.broker.Name(), res.Status, res.OrderID)
	return nil
}

func (e *Executor) OnDayEnd(session.DayReport) error {
	return nil
}

// Executions returns every handled order in order
func (e *Executor) Executions() []Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Execution, len(e.executions))
	copy(out, e.executions)
	return out
}

func (e *Executor) record(x Execution) {
	e.mu.Lock()
	e.executions = append(e.executions, x)
	e.mu.Unlock()
}

// clientOrderID ties both legs of a trade to its id; Alpaca caps it at 48 chars
func clientOrderID(tradeID string, side OrderSide) string {
	if tradeID == "" {
		return ""
	}
	id := fmt.Sprintf("orb-%s-%s", tradeID, side)
	if len(id) > 48 {
		id = id[:48]
	}
	return id
}
