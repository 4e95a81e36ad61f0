package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DryRun wraps a Client so the decision pipeline runs end to end while
// every order-flow call is suppressed. Reads pass through to the real
// brokerage; submits and closes return synthetic immediate fills so the
// session advances exactly as it would live.
type DryRun struct {
	inner Client
}

// NewDryRun wraps a client in dry-run mode.
func NewDryRun(inner Client) *DryRun {
	return &DryRun{inner: inner}
}

func (d *DryRun) GetAccount(ctx context.Context) (Account, error) {
	return d.inner.GetAccount(ctx)
}

// GetOpenPositions reports an empty book. The account's real positions
// belong to other strategies and must not be adopted by a dry session's
// reconciliation pass.
func (d *DryRun) GetOpenPositions(ctx context.Context) ([]Position, error) {
	return nil, nil
}

func (d *DryRun) GetOrderStatus(ctx context.Context, id string) (Order, error) {
	return Order{ID: id, Status: OrderFilled}, nil
}

func (d *DryRun) FindOrderByClientID(ctx context.Context, clientOrderID string) (Order, error) {
	return Order{ClientOrderID: clientOrderID, Status: OrderFilled}, nil
}

func (d *DryRun) SubmitExtendedHoursLimitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	now := time.Now()
	order := Order{
		ID:             "dry-" + uuid.NewString(),
		ClientOrderID:  req.ClientOrderID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Qty:            float64(req.Qty),
		LimitPrice:     req.LimitPrice,
		Status:         OrderFilled,
		FilledQty:      float64(req.Qty),
		FilledAvgPrice: req.LimitPrice,
		SubmittedAt:    now,
		FilledAt:       now,
	}
	log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Int64("qty", req.Qty).
		Float64("limit", req.LimitPrice).
		Msg("DRY RUN: order suppressed")
	return order, nil
}

func (d *DryRun) ClosePosition(ctx context.Context, symbol string) (Order, error) {
	log.Info().Str("symbol", symbol).Msg("DRY RUN: close suppressed")
	now := time.Now()
	return Order{
		ID:          "dry-" + uuid.NewString(),
		Symbol:      symbol,
		Status:      OrderFilled,
		SubmittedAt: now,
		FilledAt:    now,
	}, nil
}

func (d *DryRun) CancelOrder(ctx context.Context, id string) error {
	log.Info().Str("order_id", id).Msg("DRY RUN: cancel suppressed")
	return nil
}

func (d *DryRun) ListOpenOrders(ctx context.Context) ([]Order, error) {
	return nil, nil
}

func (d *DryRun) GetClock(ctx context.Context) (Clock, error) {
	return d.inner.GetClock(ctx)
}
