// Package broker defines the brokerage contract the session drives.
// The alpaca subpackage implements it over REST; DryRun wraps any
// implementation to suppress order flow while keeping reads live.
package broker

import (
	"context"
	"errors"
	"time"
)

// ErrOrderNotFound reports that the brokerage has no record of the
// requested order. After an ambiguous submit failure this is the signal
// that the order never reached the book and the slot can be released.
var ErrOrderNotFound = errors.New("broker: order not found")

// OrderSide is the brokerage order side. Shorts are plain sells with no
// existing long position.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus mirrors the brokerage's order lifecycle states.
type OrderStatus string

const (
	OrderNew             OrderStatus = "new"
	OrderAccepted        OrderStatus = "accepted"
	OrderPendingNew      OrderStatus = "pending_new"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderDoneForDay      OrderStatus = "done_for_day"
	OrderCanceled        OrderStatus = "canceled"
	OrderExpired         OrderStatus = "expired"
	OrderRejected        OrderStatus = "rejected"
	OrderPendingCancel   OrderStatus = "pending_cancel"
)

// Filled reports whether the order completed with a full fill.
func (s OrderStatus) Filled() bool {
	return s == OrderFilled
}

// Terminal reports whether the order can no longer fill.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderExpired, OrderRejected, OrderDoneForDay:
		return true
	}
	return false
}

// Account is the equity and cash picture sizing runs against. Cash is
// the non-marginable buying power, so the bot never borrows even on a
// margin-enabled account. BuyingPower is the marginable figure, kept
// for status surfaces only.
type Account struct {
	Equity      float64
	Cash        float64
	BuyingPower float64
}

// Position is a brokerage-reported holding. Qty is always positive;
// Side distinguishes long from short.
type Position struct {
	Symbol        string
	Qty           float64
	Side          string // "long" or "short"
	AvgEntryPrice float64
	MarketValue   float64
}

// Order is the brokerage's view of one order.
type Order struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           OrderSide
	Qty            float64
	LimitPrice     float64
	Status         OrderStatus
	FilledQty      float64
	FilledAvgPrice float64
	SubmittedAt    time.Time
	FilledAt       time.Time
}

// OrderRequest describes an extended-hours limit order. ClientOrderID
// must be set by the caller before submission so a crash between
// submit and checkpoint can be reconciled.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Qty           int64
	LimitPrice    float64
	ClientOrderID string
}

// Clock is the exchange calendar snapshot.
type Clock struct {
	Timestamp time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// Client is the brokerage surface the orchestrator consumes. Every call
// reports success or failure explicitly; on ambiguous network failure
// the caller reconciles via GetOpenPositions/GetOrderStatus rather than
// assuming an outcome.
type Client interface {
	// GetAccount returns equity and non-marginable cash.
	GetAccount(ctx context.Context) (Account, error)

	// GetOpenPositions returns all live positions on the account.
	GetOpenPositions(ctx context.Context) ([]Position, error)

	// GetOrderStatus fetches one order by brokerage id.
	GetOrderStatus(ctx context.Context, id string) (Order, error)

	// FindOrderByClientID fetches one order by the caller-assigned
	// client order id, for reconciling a submit whose response was lost.
	FindOrderByClientID(ctx context.Context, clientOrderID string) (Order, error)

	// SubmitExtendedHoursLimitOrder places a DAY limit order with
	// extended hours enabled. The brokerage only accepts limit orders
	// outside regular hours.
	SubmitExtendedHoursLimitOrder(ctx context.Context, req OrderRequest) (Order, error)

	// ClosePosition flattens a position in either direction via the
	// brokerage's close endpoint.
	ClosePosition(ctx context.Context, symbol string) (Order, error)

	// CancelOrder cancels a working order.
	CancelOrder(ctx context.Context, id string) error

	// ListOpenOrders returns all working orders on the account.
	ListOpenOrders(ctx context.Context) ([]Order, error)

	// GetClock returns the exchange calendar snapshot.
	GetClock(ctx context.Context) (Clock, error)
}
