// Package matching implements the matching algorithm (spec.md §4.2): a
// pure-ish function of an incoming order and the mutable book/stop-book
// state, producing the resulting trade sequence and driving the
// post-trade stop cascade.
//
// Grounded on the teacher's internal/engine/orderbook.go Match /
// handleMarket / handleLimit, restructured around "the book is never
// crossed" as a standing invariant (checked by internal/book.AddResting)
// so a single incoming order only ever needs to walk the opposite side,
// rather than the teacher's whole-book two-sided sweep.
package matching

import (
	"fmt"
	"time"

	"garm/internal/book"
	"garm/internal/config"
	"garm/internal/domain"
	"garm/internal/stopbook"
)

// Matcher executes orders against a single symbol's book and stop book.
type Matcher struct {
	Symbol string

	book  *book.Book
	stops *stopbook.StopBook

	stopReference config.StopTriggerReference
	clock         func() time.Time

	nextTradeID  uint64
	lastTrade    domain.Ticks
	hasLastTrade bool
}

// New creates a Matcher over book and stops for symbol. clock defaults to
// time.Now when nil; tests supply a fixed clock for determinism.
func New(symbol string, b *book.Book, s *stopbook.StopBook, stopReference config.StopTriggerReference, clock func() time.Time) *Matcher {
	if clock == nil {
		clock = time.Now
	}
	return &Matcher{
		Symbol:        symbol,
		book:          b,
		stops:         s,
		stopReference: stopReference,
		clock:         clock,
	}
}

// Submit executes order against the book, returning every trade produced
// — including trades from any stop orders the submission's own trades go
// on to trigger, processed via an explicit work queue rather than
// recursion (spec.md §9) — and every order (order itself, plus any
// cascade-triggered stops) that was actively matched, so the caller can
// finalize each one's terminal status in metrics. Orders that were
// merely parked (stop condition not yet met) are not included: their
// status is still New.
func (m *Matcher) Submit(order *domain.Order) ([]domain.Trade, []*domain.Order) {
	var all []domain.Trade
	var executed []*domain.Order
	queue := []*domain.Order{order}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		var trades []domain.Trade
		if cur.Type.IsStop() {
			if m.stopConditionMet(cur) {
				trades = m.executeActive(m.convertStop(cur))
				executed = append(executed, cur)
			} else {
				m.stops.Park(cur)
			}
		} else {
			trades = m.executeActive(cur)
			executed = append(executed, cur)
		}

		all = append(all, trades...)
		if len(trades) == 0 {
			continue
		}

		m.recordLastTrade(trades[len(trades)-1].Price)
		for _, triggered := range m.stops.PopTriggered(m.lastTrade) {
			queue = append(queue, m.convertStop(triggered))
		}
	}

	if m.book.IsCrossed() {
		panic(fmt.Sprintf("matching: book for %s crossed after processing order %d", m.Symbol, order.ID))
	}

	return all, executed
}

// executeActive runs a Market or Limit order through the book walk.
func (m *Matcher) executeActive(order *domain.Order) []domain.Trade {
	switch order.Type {
	case domain.Market:
		return m.matchMarket(order)
	case domain.Limit:
		return m.matchLimit(order)
	default:
		panic(fmt.Sprintf("matching: executeActive called with non-active order type %s", order.Type))
	}
}

// matchMarket walks the opposite side unconditionally; any residual is
// cancelled for insufficient liquidity, never rested (spec.md §4.2).
func (m *Matcher) matchMarket(order *domain.Order) []domain.Trade {
	trades := m.walk(order, nil)
	if order.Remaining > 0 {
		order.Status = domain.Cancelled
		order.CancelReason = domain.CancelReasonInsufficientLiquidity
	} else {
		order.Status = domain.Filled
	}
	return trades
}

// matchLimit walks the opposite side while the next price remains
// acceptable, then rests any residual on the order's own side.
func (m *Matcher) matchLimit(order *domain.Order) []domain.Trade {
	acceptable := func(restingPrice domain.Ticks) bool {
		if order.Side == domain.Buy {
			return restingPrice <= order.Price
		}
		return restingPrice >= order.Price
	}

	trades := m.walk(order, acceptable)
	if order.Remaining > 0 {
		if err := m.book.AddResting(order); err != nil {
			panic(fmt.Sprintf("matching: invariant violation resting limit order %d: %v", order.ID, err))
		}
		if order.Remaining == order.Quantity {
			order.Status = domain.New
		} else {
			order.Status = domain.PartiallyFilled
		}
	} else {
		order.Status = domain.Filled
	}
	return trades
}

// walk consumes resting liquidity on the opposite side of order's book,
// level by level, FIFO within each level, until order is filled, the
// opposite side is exhausted, or (when acceptable is non-nil) the next
// level's price is no longer acceptable to the aggressor.
func (m *Matcher) walk(order *domain.Order, acceptable func(domain.Ticks) bool) []domain.Trade {
	var trades []domain.Trade
	opposite := order.Side.Opposite()

	for order.Remaining > 0 {
		lvl, ok := m.book.BestLevel(opposite)
		if !ok {
			break
		}
		if acceptable != nil && !acceptable(lvl.Price) {
			break
		}

		for order.Remaining > 0 && lvl.Orders.Len() > 0 {
			front := lvl.Orders.Front()
			resting := front.Value.(*domain.Order)

			qty := min64(order.Remaining, resting.Remaining)
			order.Remaining -= qty
			resting.Remaining -= qty
			m.book.DecrementLevel(lvl, qty)

			trades = append(trades, m.newTrade(order, resting, lvl.Price, qty))

			if resting.Remaining == 0 {
				resting.Status = domain.Filled
				m.book.RemoveFilled(resting)
			} else {
				resting.Status = domain.PartiallyFilled
			}
		}
	}

	return trades
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// newTrade builds a trade record; the aggressor pays the resting (maker)
// price, per spec.md §4.2's "standard price-improvement for the taker".
func (m *Matcher) newTrade(aggressor, resting *domain.Order, price domain.Ticks, qty int64) domain.Trade {
	m.nextTradeID++
	trade := domain.Trade{
		ID:            m.nextTradeID,
		Symbol:        m.Symbol,
		Price:         price,
		Quantity:      qty,
		Timestamp:     m.clock(),
		AggressorSide: aggressor.Side,
	}
	if aggressor.Side == domain.Buy {
		trade.BuyOrderID = aggressor.ID
		trade.SellOrderID = resting.ID
	} else {
		trade.BuyOrderID = resting.ID
		trade.SellOrderID = aggressor.ID
	}
	return trade
}

func (m *Matcher) recordLastTrade(price domain.Ticks) {
	m.lastTrade = price
	m.hasLastTrade = true
}

// convertStop flips a triggered stop order into its active counterpart:
// StopLoss -> Market, StopLimit -> Limit (spec.md §3's Lifecycle).
func (m *Matcher) convertStop(order *domain.Order) *domain.Order {
	switch order.Type {
	case domain.StopLoss:
		order.Type = domain.Market
	case domain.StopLimit:
		order.Type = domain.Limit
	default:
		panic(fmt.Sprintf("matching: convertStop called on non-stop order %d", order.ID))
	}
	return order
}

// referencePrice returns the price used to evaluate stop conditions, per
// the StopTriggerReference config knob (spec.md §9 open question,
// resolved in SPEC_FULL.md §9).
func (m *Matcher) referencePrice() (domain.Ticks, bool) {
	switch m.stopReference {
	case config.StopTriggerBestBidAskMid:
		bid, bidOk := m.book.BestBid()
		ask, askOk := m.book.BestAsk()
		if bidOk && askOk {
			return (bid + ask) / 2, true
		}
		fallthrough
	default: // StopTriggerLastTrade, or mid unavailable falling back to it
		if m.hasLastTrade {
			return m.lastTrade, true
		}
		return 0, false
	}
}

func (m *Matcher) stopConditionMet(order *domain.Order) bool {
	ref, ok := m.referencePrice()
	if !ok {
		return false
	}
	if order.Side == domain.Buy {
		return ref >= order.StopPrice
	}
	return ref <= order.StopPrice
}
