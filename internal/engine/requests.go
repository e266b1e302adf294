package engine

import (
	"garm/internal/book"
	"garm/internal/domain"
	"garm/internal/metrics"
)

// request is the sum type carried on the ingestion queue: exactly one
// field is set. The processing loop (run) is the sole reader; each
// result channel is buffered(1) so the submitting goroutine never blocks
// the processing loop waiting to receive. Snapshot and Metrics reads are
// routed through the same queue as mutations so the book, stop book and
// metrics collector genuinely have a single owner (spec.md §5), rather
// than being read directly from another goroutine.
type request struct {
	submit   *submitRequest
	cancel   *cancelRequest
	modify   *modifyRequest
	snapshot *snapshotRequest
	metrics  *metricsRequest
}

type snapshotRequest struct {
	depth    int
	resultCh chan snapshotResult
}

type snapshotResult struct {
	bids, asks []book.LevelView
}

type metricsRequest struct {
	resultCh chan metrics.Snapshot
}

type submitRequest struct {
	spec     domain.NewOrderRequest
	resultCh chan submitResult
}

type submitResult struct {
	orderID uint64
	err     error
}

type cancelRequest struct {
	orderID  uint64
	resultCh chan error
}

type modifyRequest struct {
	orderID     uint64
	newQuantity *int64
	newPrice    *domain.Ticks
	resultCh    chan error
}
