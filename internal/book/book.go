// Package book implements the two-sided, price-time-priority limit order
// book: bid and ask price levels held in ordered maps, each level a FIFO
// queue of resting orders, plus an order-id index for cancel/modify.
//
// Grounded on the teacher's internal/engine/orderbook.go (tidwall/btree
// price levels, bids sorted descending, asks ascending) generalized so
// that FIFO-within-level removal is O(1) given an index token, using
// container/list the way ccyyhlg-lightning-exchange/orderbook/price_tree.go
// pairs a hash map with a doubly linked list for the same reason.
package book

import (
	"container/list"
	"errors"

	"github.com/tidwall/btree"

	"garm/internal/domain"
)

var (
	// ErrCrossing is returned by AddResting if the resting order would
	// cross the book; callers must match first and only rest the residual.
	ErrCrossing = errors.New("book: resting order would cross")
	// ErrBelowFilled is returned by Modify when the requested new quantity
	// is less than the quantity already filled.
	ErrBelowFilled = errors.New("book: new quantity below filled quantity")
)

// PriceLevel is the FIFO queue of resting orders sharing a price.
type PriceLevel struct {
	Price         domain.Ticks
	Orders        *list.List // of *domain.Order, front = earliest (highest time priority)
	TotalQuantity int64
}

func newPriceLevel(price domain.Ticks) *PriceLevel {
	return &PriceLevel{Price: price, Orders: list.New()}
}

// indexEntry locates a resting order for O(1) cancel/modify.
type indexEntry struct {
	side domain.Side
	elem *list.Element
	lvl  *PriceLevel
}

type levelTree = btree.BTreeG[*PriceLevel]

// Book is the two-sided order book for a single symbol.
type Book struct {
	Symbol string

	bids *levelTree // comparator: descending by price (best bid first)
	asks *levelTree // comparator: ascending by price (best ask first)

	index map[uint64]*indexEntry
}

// New creates an empty book for symbol.
func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		bids: btree.NewBTreeG(func(a, b *PriceLevel) bool {
			return a.Price > b.Price
		}),
		asks: btree.NewBTreeG(func(a, b *PriceLevel) bool {
			return a.Price < b.Price
		}),
		index: make(map[uint64]*indexEntry),
	}
}

func (b *Book) tree(side domain.Side) *levelTree {
	if side == domain.Buy {
		return b.bids
	}
	return b.asks
}

// BestBid returns the best (highest) resting bid price, if any.
func (b *Book) BestBid() (domain.Ticks, bool) {
	lvl, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// BestAsk returns the best (lowest) resting ask price, if any.
func (b *Book) BestAsk() (domain.Ticks, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// BestLevel returns the best resting level for side, mutable.
func (b *Book) BestLevel(side domain.Side) (*PriceLevel, bool) {
	return b.tree(side).MinMut()
}

// IsCrossed reports whether the book is crossed (invariant violation).
func (b *Book) IsCrossed() bool {
	bid, bidOk := b.BestBid()
	ask, askOk := b.BestAsk()
	if !bidOk || !askOk {
		return false
	}
	return bid >= ask
}

// AddResting appends order to the FIFO of its price level, creating the
// level if absent. Pre: order.Type == Limit, order.Remaining > 0, and the
// order must not cross (checked by the matcher before calling this).
func (b *Book) AddResting(order *domain.Order) error {
	if order.Side == domain.Buy {
		if ask, ok := b.BestAsk(); ok && order.Price >= ask {
			return ErrCrossing
		}
	} else {
		if bid, ok := b.BestBid(); ok && order.Price <= bid {
			return ErrCrossing
		}
	}

	tree := b.tree(order.Side)
	lvl, ok := tree.GetMut(&PriceLevel{Price: order.Price})
	if !ok {
		lvl = newPriceLevel(order.Price)
		tree.Set(lvl)
	}
	elem := lvl.Orders.PushBack(order)
	lvl.TotalQuantity += order.Remaining
	b.index[order.ID] = &indexEntry{side: order.Side, elem: elem, lvl: lvl}
	return nil
}

// Cancel removes order id from its level. Returns the cancelled order.
func (b *Book) Cancel(id uint64) (*domain.Order, error) {
	entry, ok := b.index[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order := entry.elem.Value.(*domain.Order)
	switch order.Status {
	case domain.New, domain.PartiallyFilled:
		// cancellable
	case domain.Filled:
		return nil, domain.ErrAlreadyFilled
	default:
		return nil, domain.ErrAlreadyTerminal
	}
	b.removeEntry(id, entry)
	return order, nil
}

// removeEntry physically removes the order at entry from its level and the
// index, deleting the level if it becomes empty. Used by Cancel and by the
// matcher when a resting order is fully consumed.
func (b *Book) removeEntry(id uint64, entry *indexEntry) {
	order := entry.elem.Value.(*domain.Order)
	entry.lvl.TotalQuantity -= order.Remaining
	entry.lvl.Orders.Remove(entry.elem)
	if entry.lvl.Orders.Len() == 0 {
		b.tree(entry.side).Delete(entry.lvl)
	}
	delete(b.index, id)
}

// RemoveFilled removes a fully-consumed resting order (Remaining == 0)
// from the front of its level during matching. The caller (matcher) is
// responsible for having already zeroed order.Remaining.
func (b *Book) RemoveFilled(order *domain.Order) {
	entry, ok := b.index[order.ID]
	if !ok {
		return
	}
	b.removeEntry(order.ID, entry)
}

// DecrementLevel adjusts a level's aggregate quantity after a partial
// match against its head order, without removing the order.
func (b *Book) DecrementLevel(lvl *PriceLevel, qty int64) {
	lvl.TotalQuantity -= qty
}

// Modify changes a resting order's quantity and/or price. If price changes
// or quantity increases, the order loses time priority (removed and
// re-added at the tail of its new level). If only quantity decreases, and
// the new quantity is still >= the quantity already filled, priority is
// preserved via in-place mutation.
func (b *Book) Modify(id uint64, newQuantity *int64, newPrice *domain.Ticks) error {
	entry, ok := b.index[id]
	if !ok {
		return domain.ErrNotFound
	}
	order := entry.elem.Value.(*domain.Order)
	if order.Status != domain.New && order.Status != domain.PartiallyFilled {
		return domain.ErrAlreadyTerminal
	}

	filled := order.Filled()
	qty := order.Quantity
	if newQuantity != nil {
		qty = *newQuantity
	}
	if qty < filled {
		return ErrBelowFilled
	}

	priceChanged := newPrice != nil && *newPrice != order.Price
	quantityIncreased := newQuantity != nil && *newQuantity > order.Quantity

	if !priceChanged && !quantityIncreased {
		// Quantity unchanged or decreased only: preserve priority in place.
		delta := qty - order.Quantity
		order.Quantity = qty
		order.Remaining += delta
		entry.lvl.TotalQuantity += delta
		if order.Remaining == order.Quantity {
			order.Status = domain.New
		} else {
			order.Status = domain.PartiallyFilled
		}
		return nil
	}

	// Priority lost: remove and re-add at the tail of the (possibly new) level.
	b.removeEntry(id, entry)
	order.Quantity = qty
	order.Remaining = qty - filled
	if newPrice != nil {
		order.Price = *newPrice
	}
	if order.Remaining == order.Quantity {
		order.Status = domain.New
	} else {
		order.Status = domain.PartiallyFilled
	}
	return b.AddResting(order)
}

// LevelView is a read-only aggregated view of one price level, for depth
// snapshots.
type LevelView struct {
	Price      domain.Ticks
	Quantity   int64
	OrderCount int
}

// Depth returns the top-n aggregated levels per side, best price first.
func (b *Book) Depth(n int) (bids []LevelView, asks []LevelView) {
	bids = collectDepth(b.bids, n)
	asks = collectDepth(b.asks, n)
	return bids, asks
}

func collectDepth(tree *levelTree, n int) []LevelView {
	out := make([]LevelView, 0, n)
	tree.Scan(func(lvl *PriceLevel) bool {
		if len(out) >= n {
			return false
		}
		out = append(out, LevelView{
			Price:      lvl.Price,
			Quantity:   lvl.TotalQuantity,
			OrderCount: lvl.Orders.Len(),
		})
		return true
	})
	return out
}

// Len returns the number of distinct price levels on side, for tests.
func (b *Book) Len(side domain.Side) int {
	return b.tree(side).Len()
}
