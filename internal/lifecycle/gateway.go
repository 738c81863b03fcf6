package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// OrderAck is the gateway's response to an entry order.
type OrderAck struct {
	OrderID   string  `json:"order_id"`
	Filled    bool    `json:"filled"`
	FillPrice float64 `json:"fill_price"`
}

// CloseAck is the gateway's response to a position close.
type CloseAck struct {
	Success     bool    `json:"success"`
	ClosePrice  float64 `json:"close_price"`
	RealizedPnL float64 `json:"realized_pnl"` // quote units
}

// Gateway is the order execution collaborator. The engine is always the
// caller; implementations route to an exchange or simulate fills.
type Gateway interface {
	PlaceOrder(ctx context.Context, symbol string, quantity, price float64) (OrderAck, error)
	ClosePosition(ctx context.Context, huntID, symbol string, quantity, price float64, reason string) (CloseAck, error)
}

// PaperGateway simulates fills at the quoted price plus configurable slippage.
// It is the default gateway so the engine runs with no exchange keys.
type PaperGateway struct {
	mu          sync.Mutex
	SlippageBps float64
	fills       map[string]float64 // huntID -> entry fill price
}

func NewPaperGateway(slippageBps float64) *PaperGateway {
	return &PaperGateway{
		SlippageBps: slippageBps,
		fills:       make(map[string]float64),
	}
}

func (g *PaperGateway) PlaceOrder(ctx context.Context, symbol string, quantity, price float64) (OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return OrderAck{}, err
	}
	if quantity <= 0 || price <= 0 {
		return OrderAck{}, fmt.Errorf("paper gateway: invalid order %s qty=%f price=%f", symbol, quantity, price)
	}

	fill := price * (1 + g.SlippageBps/10000)
	return OrderAck{
		OrderID:   uuid.NewString(),
		Filled:    true,
		FillPrice: fill,
	}, nil
}

func (g *PaperGateway) ClosePosition(ctx context.Context, huntID, symbol string, quantity, price float64, reason string) (CloseAck, error) {
	if err := ctx.Err(); err != nil {
		return CloseAck{}, err
	}
	if price <= 0 {
		return CloseAck{}, fmt.Errorf("paper gateway: invalid close price for %s", symbol)
	}

	fill := price * (1 - g.SlippageBps/10000)
	return CloseAck{Success: true, ClosePrice: fill}, nil
}
