// Package metrics tracks execution counters and the per-order latency
// distribution (spec.md §4.5). Counters and the histogram are written
// only by the engine's single processing goroutine; Snapshot() publishes
// an immutable copy via atomic.Pointer, the double-buffering technique
// spec.md §9 calls for, so concurrent readers never observe a torn
// update and never contend with the writer.
package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot is a read-only, point-in-time view of the execution metrics.
type Snapshot struct {
	TotalOrders     uint64
	FilledOrders    uint64
	CancelledOrders uint64
	RejectedOrders  uint64
	TotalTrades     uint64
	TotalVolume     int64
	FillRate        float64
	P50             time.Duration
	P95             time.Duration
	P99             time.Duration
}

// Collector accumulates ExecutionMetrics (spec.md §3) for one engine.
type Collector struct {
	totalOrders     uint64
	filledOrders    uint64
	cancelledOrders uint64
	rejectedOrders  uint64
	totalTrades     uint64
	totalVolume     int64

	hist *histogram

	published atomic.Pointer[Snapshot]
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	c := &Collector{hist: newHistogram()}
	c.publish()
	return c
}

// RecordSubmitted counts an order entering the dispatcher, whether or not
// it is ultimately accepted, matching spec.md §8's identity
// "filled_orders + cancelled_orders + rejected_orders + currently_open ==
// total_orders".
func (c *Collector) RecordSubmitted() {
	c.totalOrders++
	c.publish()
}

// RecordFilled counts an order reaching OrderStatus Filled.
func (c *Collector) RecordFilled() {
	c.filledOrders++
	c.publish()
}

// RecordCancelled counts an order reaching OrderStatus Cancelled, whether
// by explicit request or a Market order's unfilled residual.
func (c *Collector) RecordCancelled() {
	c.cancelledOrders++
	c.publish()
}

// RecordRejected counts a synchronous validation rejection.
func (c *Collector) RecordRejected() {
	c.rejectedOrders++
	c.publish()
}

// RecordTrade counts a single executed trade of the given quantity.
func (c *Collector) RecordTrade(quantity int64) {
	c.totalTrades++
	c.totalVolume += quantity
	c.publish()
}

// RecordLatency adds a dequeue-to-completion latency sample.
func (c *Collector) RecordLatency(d time.Duration) {
	c.hist.record(d)
	c.publish()
}

func (c *Collector) publish() {
	fillRate := 0.0
	if c.totalOrders > 0 {
		fillRate = float64(c.filledOrders) / float64(c.totalOrders)
	}
	snap := &Snapshot{
		TotalOrders:     c.totalOrders,
		FilledOrders:    c.filledOrders,
		CancelledOrders: c.cancelledOrders,
		RejectedOrders:  c.rejectedOrders,
		TotalTrades:     c.totalTrades,
		TotalVolume:     c.totalVolume,
		FillRate:        fillRate,
		P50:             c.hist.percentile(0.50),
		P95:             c.hist.percentile(0.95),
		P99:             c.hist.percentile(0.99),
	}
	c.published.Store(snap)
}

// Snapshot returns the most recently published, consistent snapshot.
// Safe to call concurrently with the writer.
func (c *Collector) Snapshot() Snapshot {
	return *c.published.Load()
}
