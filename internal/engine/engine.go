// Package engine is the dispatcher that owns a single symbol's book, stop
// book, matcher and metrics, and is their only mutator: every mutation
// passes through the single goroutine run by Start, reached only via the
// ingestion queue (spec.md §4.3, §5's "sole ownership" concurrency model).
//
// Grounded on the teacher's internal/server.Server.Run/Shutdown: a
// tomb.v2-supervised goroutine loop, started from a context and stopped
// by cancelling it, logged with zerolog.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"garm/internal/book"
	"garm/internal/config"
	"garm/internal/domain"
	"garm/internal/matching"
	"garm/internal/metrics"
	"garm/internal/stopbook"
)

// Engine dispatches order submissions, cancels and modifications for one
// symbol onto a single processing goroutine. All exported methods are
// safe to call concurrently; internally they only ever enqueue a request
// and wait for its result.
type Engine struct {
	cfg config.EngineConfig

	queue  *ingestionQueue
	trades chan domain.Trade
	t      *tomb.Tomb

	// Touched only inside run; never accessed from other goroutines.
	book        *book.Book
	stops       *stopbook.StopBook
	matcher     *matching.Matcher
	metrics     *metrics.Collector
	orders      map[uint64]*domain.Order
	nextOrderID uint64
	clock       func() time.Time
}

// New constructs an Engine for cfg.Symbol, using the default wall clock.
// Validate is assumed already to have been called on cfg (cmd/matchd does
// this after LoadViper; tests may skip it for a known-good literal).
func New(cfg config.EngineConfig) *Engine {
	return newEngine(cfg, time.Now)
}

func newEngine(cfg config.EngineConfig, clock func() time.Time) *Engine {
	b := book.New(cfg.Symbol)
	sb := stopbook.New()
	return &Engine{
		cfg:     cfg,
		queue:   newIngestionQueue(cfg.IngestionQueueCapacity),
		trades:  make(chan domain.Trade, cfg.OutputChannelCapacity),
		book:    b,
		stops:   sb,
		matcher: matching.New(cfg.Symbol, b, sb, cfg.StopTriggerReference, clock),
		metrics: metrics.NewCollector(),
		orders:  make(map[uint64]*domain.Order),
		clock:   clock,
	}
}

// Start launches the processing goroutine under a tomb supervised by ctx.
// It returns immediately; call Wait to block until the engine stops.
func (e *Engine) Start(ctx context.Context) {
	e.t, ctx = tomb.WithContext(ctx)
	e.t.Go(func() error {
		return e.run(ctx)
	})
}

// Stop requests the processing goroutine to drain and exit. It does not
// block; call Wait to observe completion.
func (e *Engine) Stop() {
	e.queue.closeQueue()
	e.t.Kill(nil)
}

// Wait blocks until the processing goroutine has exited and returns its
// error, if any.
func (e *Engine) Wait() error {
	return e.t.Wait()
}

// Trades returns the channel of executed trades, in execution order. The
// processing loop blocks sending on this channel once it is full, so a
// slow or absent reader applies backpressure to matching rather than
// dropping executions (spec.md §4.5).
func (e *Engine) Trades() <-chan domain.Trade {
	return e.trades
}

// SubmitOrder enqueues a new order request and blocks until the engine
// has assigned it an id (or rejected it synchronously). A successful
// return only means the order was accepted into the book/matcher; its
// eventual fill/cancel status is observed via Trades and Snapshot.
func (e *Engine) SubmitOrder(spec domain.NewOrderRequest) (uint64, error) {
	req := &submitRequest{spec: spec, resultCh: make(chan submitResult, 1)}
	if err := e.queue.push(&request{submit: req}); err != nil {
		return 0, err
	}
	result := <-req.resultCh
	return result.orderID, result.err
}

// CancelOrder enqueues a cancellation of orderID and blocks for the result.
func (e *Engine) CancelOrder(orderID uint64) error {
	req := &cancelRequest{orderID: orderID, resultCh: make(chan error, 1)}
	if err := e.queue.push(&request{cancel: req}); err != nil {
		return err
	}
	return <-req.resultCh
}

// ModifyOrder enqueues a quantity and/or price change to orderID. Either
// pointer may be nil to leave that field unchanged.
func (e *Engine) ModifyOrder(orderID uint64, newQuantity *int64, newPrice *domain.Ticks) error {
	req := &modifyRequest{orderID: orderID, newQuantity: newQuantity, newPrice: newPrice, resultCh: make(chan error, 1)}
	if err := e.queue.push(&request{modify: req}); err != nil {
		return err
	}
	return <-req.resultCh
}

// Snapshot returns the top-n aggregated price levels per side, as of
// whatever point the processing loop reaches this request in order
// relative to concurrent submissions.
func (e *Engine) Snapshot(depth int) (bids, asks []book.LevelView) {
	req := &snapshotRequest{depth: depth, resultCh: make(chan snapshotResult, 1)}
	if err := e.queue.push(&request{snapshot: req}); err != nil {
		return nil, nil
	}
	result := <-req.resultCh
	return result.bids, result.asks
}

// Metrics returns the most recently published execution metrics snapshot.
// The Collector itself already double-buffers via atomic.Pointer (see
// internal/metrics), so this could read it directly; it is still routed
// through the queue for the same single-owner discipline as Snapshot.
func (e *Engine) Metrics() metrics.Snapshot {
	req := &metricsRequest{resultCh: make(chan metrics.Snapshot, 1)}
	if err := e.queue.push(&request{metrics: req}); err != nil {
		return e.metrics.Snapshot()
	}
	return <-req.resultCh
}

// run is the engine's single processing goroutine: it owns book, stops,
// matcher, metrics and orders exclusively, and is the only place that
// mutates them (spec.md §5). All other goroutines only ever enqueue
// requests and read from channels this loop writes to.
func (e *Engine) run(ctx context.Context) error {
	log.Info().Str("symbol", e.cfg.Symbol).Msg("engine processing loop starting")
	defer log.Info().Str("symbol", e.cfg.Symbol).Msg("engine processing loop stopped")

	for {
		req, ok := e.queue.pop()
		if !ok {
			return nil
		}

		start := e.clock()
		switch {
		case req.submit != nil:
			e.handleSubmit(req.submit)
		case req.cancel != nil:
			e.handleCancel(req.cancel)
		case req.modify != nil:
			e.handleModify(req.modify)
		case req.snapshot != nil:
			bids, asks := e.book.Depth(req.snapshot.depth)
			req.snapshot.resultCh <- snapshotResult{bids: bids, asks: asks}
			continue
		case req.metrics != nil:
			req.metrics.resultCh <- e.metrics.Snapshot()
			continue
		}
		e.metrics.RecordLatency(e.clock().Sub(start))

		select {
		case <-ctx.Done():
			e.queue.closeQueue()
		default:
		}
	}
}

// handleSubmit validates, assigns identity to, and executes one new order
// request, then publishes any resulting trades.
func (e *Engine) handleSubmit(req *submitRequest) {
	spec := req.spec
	e.metrics.RecordSubmitted()
	if err := validateOrder(spec); err != nil {
		e.metrics.RecordRejected()
		req.resultCh <- submitResult{err: err}
		return
	}

	e.nextOrderID++
	order := &domain.Order{
		ID:            e.nextOrderID,
		ClientOrderID: spec.ClientOrderID,
		Symbol:        spec.Symbol,
		Side:          spec.Side,
		Type:          spec.Type,
		Quantity:      spec.Quantity,
		Remaining:     spec.Quantity,
		Price:         spec.Price,
		StopPrice:     spec.StopPrice,
		ClientID:      spec.ClientID,
		Timestamp:     e.clock(),
		Status:        domain.New,
	}
	e.orders[order.ID] = order

	trades, executed := e.matcher.Submit(order)
	finalized := make(map[uint64]bool, len(executed))
	for _, o := range executed {
		finalized[o.ID] = true
		e.finalizeOrderStatus(o)
	}
	// Resting orders consumed to completion by this submission are not in
	// executed; count each of their fills once here.
	for _, trade := range trades {
		for _, id := range [2]uint64{trade.BuyOrderID, trade.SellOrderID} {
			if o, ok := e.orders[id]; ok && !finalized[id] && o.Status == domain.Filled {
				finalized[id] = true
				e.metrics.RecordFilled()
			}
		}
	}
	e.publishTrades(trades)
	req.resultCh <- submitResult{orderID: order.ID}
}

// handleCancel removes a resting or parked order, preferring the book
// (active orders) before falling back to the stop book (latent orders).
// A known order id that has already reached a terminal state is rejected
// with its specific terminal error (AlreadyFilled/AlreadyTerminal) before
// ever touching book/stopbook state, since a filled or already-cancelled
// order has long since been removed from both.
func (e *Engine) handleCancel(req *cancelRequest) {
	if known, exists := e.orders[req.orderID]; exists {
		switch known.Status {
		case domain.Filled:
			req.resultCh <- domain.ErrAlreadyFilled
			return
		case domain.Cancelled, domain.Rejected:
			req.resultCh <- domain.ErrAlreadyTerminal
			return
		}
	}

	order, err := e.book.Cancel(req.orderID)
	if err == domain.ErrNotFound {
		order, err = e.stops.Cancel(req.orderID)
	}
	if err != nil {
		req.resultCh <- err
		return
	}
	order.Status = domain.Cancelled
	order.CancelReason = domain.CancelReasonRequested
	e.metrics.RecordCancelled()
	req.resultCh <- nil
}

// handleModify applies an in-place quantity/price change to a resting
// limit order. Stop orders still parked cannot be modified this way;
// spec.md scopes modify to active resting orders only.
func (e *Engine) handleModify(req *modifyRequest) {
	order, exists := e.orders[req.orderID]
	if !exists {
		req.resultCh <- domain.ErrNotFound
		return
	}
	switch order.Status {
	case domain.Filled:
		req.resultCh <- domain.ErrAlreadyFilled
		return
	case domain.Cancelled, domain.Rejected:
		req.resultCh <- domain.ErrAlreadyTerminal
		return
	}
	if order.Type.IsStop() {
		req.resultCh <- domain.NewRejected(domain.RejectInvalidModification)
		return
	}
	req.resultCh <- e.book.Modify(req.orderID, req.newQuantity, req.newPrice)
}

// finalizeOrderStatus records in metrics the terminal status (Filled or
// Cancelled) that the matcher already applied in place; an order left New
// or PartiallyFilled is still open and is not counted.
func (e *Engine) finalizeOrderStatus(order *domain.Order) {
	switch order.Status {
	case domain.Filled:
		e.metrics.RecordFilled()
	case domain.Cancelled:
		e.metrics.RecordCancelled()
	}
}

// publishTrades records each trade in metrics and sends it on the output
// channel, blocking if the channel is full.
func (e *Engine) publishTrades(trades []domain.Trade) {
	for _, trade := range trades {
		e.metrics.RecordTrade(trade.Quantity)
		e.trades <- trade
	}
}

// validateOrder performs the synchronous structural checks spec.md §7
// requires before an order is ever assigned an id (non-positive quantity,
// a limit-family order missing its price, a stop-family order missing its
// stop price, or an order type the engine core does not recognize).
func validateOrder(spec domain.NewOrderRequest) error {
	if spec.Quantity <= 0 {
		return domain.NewRejected(domain.RejectNonPositiveQuantity)
	}
	switch spec.Type {
	case domain.Limit:
		if spec.Price <= 0 {
			return domain.NewRejected(domain.RejectMissingPrice)
		}
	case domain.Market:
		// no price required
	case domain.StopLoss:
		if spec.StopPrice <= 0 {
			return domain.NewRejected(domain.RejectMissingStopPrice)
		}
	case domain.StopLimit:
		if spec.StopPrice <= 0 {
			return domain.NewRejected(domain.RejectMissingStopPrice)
		}
		if spec.Price <= 0 {
			return domain.NewRejected(domain.RejectMissingPrice)
		}
	default:
		return domain.NewRejected(domain.RejectUnsupportedType)
	}
	return nil
}
