// Package domain defines the value types shared by the matching engine:
// orders, trades, sides, and the error taxonomy surfaced to submitters.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Side is the direction of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType is the family of order supported by the matcher.
type OrderType int

const (
	// Limit orders rest on the book at a specified price or better.
	Limit OrderType = iota
	// Market orders execute immediately against available liquidity;
	// any residual is cancelled rather than rested.
	Market
	// StopLoss orders are latent until the last trade price crosses
	// StopPrice, at which point they convert to a Market order.
	StopLoss
	// StopLimit orders are latent until the last trade price crosses
	// StopPrice, at which point they convert to a Limit order at Price.
	StopLimit
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case StopLoss:
		return "stop_loss"
	case StopLimit:
		return "stop_limit"
	default:
		return "unknown"
	}
}

// IsStop reports whether the order type begins life parked in the stop book.
func (t OrderType) IsStop() bool {
	return t == StopLoss || t == StopLimit
}

// OrderStatus tracks an order's lifecycle position.
type OrderStatus int

const (
	New OrderStatus = iota
	PartiallyFilled
	Filled
	Cancelled
	Rejected
)

func (s OrderStatus) String() string {
	switch s {
	case New:
		return "new"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Ticks is a scaled-integer price. Matching arithmetic is always done in
// ticks; floating point never enters the hot path (spec.md's mandatory
// fixed-point redesign). Float(tickSize) is only a display-time convenience.
type Ticks int64

// Float converts ticks to a float64 using tickSize, for logging/display only.
func (t Ticks) Float(tickSize float64) float64 {
	return float64(t) * tickSize
}

// CancelReason annotates why a resting or in-flight order was cancelled.
type CancelReason int

const (
	CancelReasonNone CancelReason = iota
	CancelReasonRequested
	CancelReasonInsufficientLiquidity
)

func (r CancelReason) String() string {
	switch r {
	case CancelReasonRequested:
		return "requested"
	case CancelReasonInsufficientLiquidity:
		return "insufficient_liquidity"
	default:
		return "none"
	}
}

// Order is a single order as tracked by the engine. ID establishes time
// priority directly: it is assigned monotonically by the engine at
// ingestion, so ID order is timestamp order (spec.md §3).
type Order struct {
	ID            uint64
	ClientOrderID string // caller-supplied correlation tag, opaque to matching
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      int64 // requested quantity; changed after creation only by book.Modify
	Remaining     int64 // mutates only within the processing loop
	Price         Ticks // required for Limit/StopLimit
	StopPrice     Ticks // required for StopLoss/StopLimit
	ClientID      string
	Timestamp     time.Time // monotonic ingestion time
	Status        OrderStatus
	CancelReason  CancelReason
}

// Filled returns the quantity executed so far.
func (o *Order) Filled() int64 {
	return o.Quantity - o.Remaining
}

// String renders an order for logs on a single line.
func (o *Order) String() string {
	return fmt.Sprintf(
		"Order{id=%d client_order_id=%s symbol=%s side=%s type=%s qty=%d remaining=%d price=%d stop=%d status=%s}",
		o.ID, o.ClientOrderID, o.Symbol, o.Side, o.Type, o.Quantity, o.Remaining, o.Price, o.StopPrice, o.Status,
	)
}

// NewOrderRequest is the caller-facing submission shape: everything the
// submitter supplies before the engine assigns an ID and ingestion
// timestamp (spec.md §6 submit_order).
type NewOrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      int64
	Price         Ticks
	StopPrice     Ticks
	ClientID      string
	ClientOrderID string
}

// Error taxonomy (spec.md §7). These are returned to submitters directly
// or wrapped with fmt.Errorf("...: %w", ...) for context, following the
// teacher's flat sentinel-error style (engine.ErrNotEnoughLiquidity).
var (
	// ErrQueueFull is returned by Submit/Cancel/Modify when the ingestion
	// queue has a configured bound and it is exceeded.
	ErrQueueFull = errors.New("ingestion queue full")
	// ErrShutdown is returned once the engine has been stopped.
	ErrShutdown = errors.New("engine is shut down")
	// ErrNotFound is returned by Cancel/Modify for an unknown order id.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyTerminal is returned by Cancel/Modify when the order is no
	// longer New or PartiallyFilled and is not Filled (Cancelled or Rejected).
	ErrAlreadyTerminal = errors.New("order already in a terminal state")
	// ErrAlreadyFilled is the AlreadyTerminal variant returned by
	// Cancel/Modify for a Filled order, e.g. a cancel that lost the race
	// against a fill.
	ErrAlreadyFilled = errors.New("order already filled")
)

// RejectReason explains a synchronous validation rejection.
type RejectReason string

const (
	RejectNonPositiveQuantity RejectReason = "non_positive_quantity"
	RejectMissingPrice        RejectReason = "missing_limit_price"
	RejectMissingStopPrice    RejectReason = "missing_stop_price"
	RejectUnsupportedType     RejectReason = "unsupported_order_type"
	RejectSymbolMismatch      RejectReason = "symbol_mismatch"
	RejectInvalidModification RejectReason = "invalid_modification"
)

// RejectedError is the Rejected{reason} error family from spec.md §7.
type RejectedError struct {
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("order rejected: %s", e.Reason)
}

// NewRejected builds a RejectedError for the given reason.
func NewRejected(reason RejectReason) error {
	return &RejectedError{Reason: reason}
}

// AsRejected reports whether err is a RejectedError and returns it.
func AsRejected(err error) (*RejectedError, bool) {
	var r *RejectedError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
