// Package stopbook holds latent Stop-Loss / Stop-Limit orders until the
// last trade price crosses their trigger level (spec.md §4.4).
//
// The teacher had no stop-order concept at all; this is grounded on the
// pack's ordered-container idiom applied to a new problem, reusing
// tidwall/btree (already the teacher's choice for internal/book) rather
// than introducing a second ordered-map library: the alternative seen in
// the pack, github.com/emirpasic/gods/v2's red-black tree
// (ccyyhlg-lightning-exchange's go.mod), ships as an alpha-tagged v2 with
// a generics API this repository cannot verify against a toolchain here,
// so it is left unwired (see DESIGN.md).
package stopbook

import (
	"container/list"

	"github.com/tidwall/btree"

	"garm/internal/domain"
)

// stopLevel is the set of parked stop orders sharing a stop price.
type stopLevel struct {
	price  domain.Ticks
	orders *list.List // of *domain.Order
}

func newStopLevel(price domain.Ticks) *stopLevel {
	return &stopLevel{price: price, orders: list.New()}
}

type stopIndexEntry struct {
	side domain.Side
	lvl  *stopLevel
	elem *list.Element
}

type stopTree = btree.BTreeG[*stopLevel]

// StopBook holds pending stop orders for one symbol, split by order side.
// Both trees are kept in ascending stop-price order; buy-side triggering
// (stop <= last trade price) scans descending from the last price so the
// highest eligible stop — the one nearest last price — is processed
// first, and sell-side triggering (stop >= last trade price) scans
// ascending from the last price for the same "closest first" reason
// (spec.md §4.2). This realizes spec.md §4.4's "buy stops ordered
// ascending, sell stops descending" as a traversal direction rather than
// two differently-ordered trees, since a single ascending comparator
// composes with both Ascend and Descend.
type StopBook struct {
	buy  *stopTree // orders with Side == Buy
	sell *stopTree // orders with Side == Sell

	index map[uint64]*stopIndexEntry
}

func New() *StopBook {
	cmp := func(a, b *stopLevel) bool { return a.price < b.price }
	return &StopBook{
		buy:   btree.NewBTreeG(cmp),
		sell:  btree.NewBTreeG(cmp),
		index: make(map[uint64]*stopIndexEntry),
	}
}

func (sb *StopBook) tree(side domain.Side) *stopTree {
	if side == domain.Buy {
		return sb.buy
	}
	return sb.sell
}

// Park adds order to the stop book. Pre: order.Type is StopLoss or
// StopLimit and order.StopPrice is set.
func (sb *StopBook) Park(order *domain.Order) {
	tree := sb.tree(order.Side)
	lvl, ok := tree.GetMut(&stopLevel{price: order.StopPrice})
	if !ok {
		lvl = newStopLevel(order.StopPrice)
		tree.Set(lvl)
	}
	elem := lvl.orders.PushBack(order)
	sb.index[order.ID] = &stopIndexEntry{side: order.Side, lvl: lvl, elem: elem}
}

// Cancel removes a parked stop order by id.
func (sb *StopBook) Cancel(id uint64) (*domain.Order, error) {
	entry, ok := sb.index[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order := entry.elem.Value.(*domain.Order)
	sb.remove(id, entry)
	return order, nil
}

func (sb *StopBook) remove(id uint64, entry *stopIndexEntry) {
	entry.lvl.orders.Remove(entry.elem)
	if entry.lvl.orders.Len() == 0 {
		sb.tree(entry.side).Delete(entry.lvl)
	}
	delete(sb.index, id)
}

// PopTriggered removes and returns, in cascade order, every parked stop
// order whose condition is satisfied by lastPrice: buy-side orders with
// StopPrice <= lastPrice (nearest first, i.e. highest eligible first),
// then sell-side orders with StopPrice >= lastPrice (nearest first, i.e.
// lowest eligible first). Triggering is always a full removal (spec.md
// §4.4); there is no partial trigger.
func (sb *StopBook) PopTriggered(lastPrice domain.Ticks) []*domain.Order {
	var triggered []*domain.Order

	var buyLevels []*stopLevel
	sb.buy.Descend(&stopLevel{price: lastPrice}, func(lvl *stopLevel) bool {
		buyLevels = append(buyLevels, lvl)
		return true
	})
	for _, lvl := range buyLevels {
		triggered = append(triggered, sb.drainLevel(domain.Buy, lvl)...)
	}

	var sellLevels []*stopLevel
	sb.sell.Ascend(&stopLevel{price: lastPrice}, func(lvl *stopLevel) bool {
		sellLevels = append(sellLevels, lvl)
		return true
	})
	for _, lvl := range sellLevels {
		triggered = append(triggered, sb.drainLevel(domain.Sell, lvl)...)
	}

	return triggered
}

func (sb *StopBook) drainLevel(side domain.Side, lvl *stopLevel) []*domain.Order {
	orders := make([]*domain.Order, 0, lvl.orders.Len())
	for e := lvl.orders.Front(); e != nil; e = e.Next() {
		order := e.Value.(*domain.Order)
		orders = append(orders, order)
		delete(sb.index, order.ID)
	}
	sb.tree(side).Delete(lvl)
	return orders
}

// Len returns the number of parked orders on side, for tests.
func (sb *StopBook) Len(side domain.Side) int {
	n := 0
	sb.tree(side).Scan(func(lvl *stopLevel) bool {
		n += lvl.orders.Len()
		return true
	})
	return n
}
