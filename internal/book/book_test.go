package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garm/internal/domain"
)

func restingOrder(id uint64, side domain.Side, price domain.Ticks, qty int64) *domain.Order {
	return &domain.Order{
		ID:        id,
		Symbol:    "TEST",
		Side:      side,
		Type:      domain.Limit,
		Quantity:  qty,
		Remaining: qty,
		Price:     price,
		Status:    domain.New,
	}
}

func TestAddRestingPriceLevelAggregation(t *testing.T) {
	b := New("TEST")

	require.NoError(t, b.AddResting(restingOrder(1, domain.Buy, 100, 10)))
	require.NoError(t, b.AddResting(restingOrder(2, domain.Buy, 100, 5)))
	require.NoError(t, b.AddResting(restingOrder(3, domain.Buy, 99, 20)))

	lvl, ok := b.BestLevel(domain.Buy)
	require.True(t, ok)
	assert.Equal(t, domain.Ticks(100), lvl.Price)
	assert.Equal(t, int64(15), lvl.TotalQuantity)
	assert.Equal(t, 2, lvl.Orders.Len())

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, domain.Ticks(100), bid)
}

func TestAddRestingRejectsCrossing(t *testing.T) {
	b := New("TEST")
	require.NoError(t, b.AddResting(restingOrder(1, domain.Sell, 100, 10)))

	err := b.AddResting(restingOrder(2, domain.Buy, 101, 5))
	assert.ErrorIs(t, err, ErrCrossing)
}

func TestCancelRemovesOrderAndEmptyLevel(t *testing.T) {
	b := New("TEST")
	require.NoError(t, b.AddResting(restingOrder(1, domain.Sell, 100, 10)))

	order, err := b.Cancel(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), order.ID)
	assert.Equal(t, 0, b.Len(domain.Sell))

	_, err = b.Cancel(1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelAlreadyFilledDistinctFromTerminal(t *testing.T) {
	b := New("TEST")
	order := restingOrder(1, domain.Sell, 100, 10)
	require.NoError(t, b.AddResting(order))

	order.Remaining = 0
	order.Status = domain.Filled

	_, err := b.Cancel(1)
	assert.ErrorIs(t, err, domain.ErrAlreadyFilled)
}

func TestModifyQuantityDecreasePreservesPriority(t *testing.T) {
	b := New("TEST")
	first := restingOrder(1, domain.Buy, 100, 10)
	second := restingOrder(2, domain.Buy, 100, 10)
	require.NoError(t, b.AddResting(first))
	require.NoError(t, b.AddResting(second))

	newQty := int64(5)
	require.NoError(t, b.Modify(1, &newQty, nil))

	lvl, ok := b.BestLevel(domain.Buy)
	require.True(t, ok)
	front := lvl.Orders.Front().Value.(*domain.Order)
	assert.Equal(t, uint64(1), front.ID, "order 1 should keep head-of-queue priority")
	assert.Equal(t, int64(5), front.Remaining)
}

func TestModifyPriceChangeLosesPriority(t *testing.T) {
	b := New("TEST")
	require.NoError(t, b.AddResting(restingOrder(1, domain.Buy, 100, 10)))
	require.NoError(t, b.AddResting(restingOrder(2, domain.Buy, 99, 10)))

	newPrice := domain.Ticks(99)
	require.NoError(t, b.Modify(1, nil, &newPrice))

	lvl, ok := b.BestLevel(domain.Buy)
	require.True(t, ok)
	assert.Equal(t, domain.Ticks(99), lvl.Price)
	front := lvl.Orders.Front().Value.(*domain.Order)
	assert.Equal(t, uint64(2), front.ID, "order 2 retains priority at 99; order 1 re-enters at the tail")
}

func TestModifyBelowFilledRejected(t *testing.T) {
	b := New("TEST")
	order := restingOrder(1, domain.Buy, 100, 10)
	order.Remaining = 4 // 6 filled
	require.NoError(t, b.AddResting(order))

	newQty := int64(5)
	err := b.Modify(1, &newQty, nil)
	assert.ErrorIs(t, err, ErrBelowFilled)
}

func TestIsCrossedFalseForUncrossedBook(t *testing.T) {
	b := New("TEST")
	assert.False(t, b.IsCrossed())

	require.NoError(t, b.AddResting(restingOrder(1, domain.Buy, 99, 10)))
	require.NoError(t, b.AddResting(restingOrder(2, domain.Sell, 100, 10)))
	assert.False(t, b.IsCrossed())
}

func TestDepthOrdersLevelsBestFirst(t *testing.T) {
	b := New("TEST")
	require.NoError(t, b.AddResting(restingOrder(1, domain.Buy, 99, 10)))
	require.NoError(t, b.AddResting(restingOrder(2, domain.Buy, 100, 10)))
	require.NoError(t, b.AddResting(restingOrder(3, domain.Sell, 102, 5)))
	require.NoError(t, b.AddResting(restingOrder(4, domain.Sell, 101, 5)))

	bids, asks := b.Depth(10)
	require.Len(t, bids, 2)
	require.Len(t, asks, 2)
	assert.Equal(t, domain.Ticks(100), bids[0].Price)
	assert.Equal(t, domain.Ticks(99), bids[1].Price)
	assert.Equal(t, domain.Ticks(101), asks[0].Price)
	assert.Equal(t, domain.Ticks(102), asks[1].Price)
}
