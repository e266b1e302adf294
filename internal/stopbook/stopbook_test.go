package stopbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garm/internal/domain"
)

func stopOrder(id uint64, side domain.Side, stopPrice domain.Ticks) *domain.Order {
	return &domain.Order{
		ID:        id,
		Side:      side,
		Type:      domain.StopLoss,
		Quantity:  10,
		Remaining: 10,
		StopPrice: stopPrice,
		Status:    domain.New,
	}
}

func TestParkAndCancel(t *testing.T) {
	sb := New()
	sb.Park(stopOrder(1, domain.Buy, 100))
	assert.Equal(t, 1, sb.Len(domain.Buy))

	order, err := sb.Cancel(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), order.ID)
	assert.Equal(t, 0, sb.Len(domain.Buy))
}

func TestCancelUnknownReturnsNotFound(t *testing.T) {
	sb := New()
	_, err := sb.Cancel(999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPopTriggeredBuySideNearestFirst(t *testing.T) {
	sb := New()
	sb.Park(stopOrder(1, domain.Buy, 95))
	sb.Park(stopOrder(2, domain.Buy, 99))
	sb.Park(stopOrder(3, domain.Buy, 101)) // not eligible yet

	triggered := sb.PopTriggered(100)
	require.Len(t, triggered, 2)
	assert.Equal(t, uint64(2), triggered[0].ID, "stop closest to last price (99) triggers first")
	assert.Equal(t, uint64(1), triggered[1].ID)
	assert.Equal(t, 1, sb.Len(domain.Buy), "order 3 remains parked")
}

func TestPopTriggeredSellSideNearestFirst(t *testing.T) {
	sb := New()
	sell1 := stopOrder(1, domain.Sell, 105)
	sell2 := stopOrder(2, domain.Sell, 101)
	sell3 := stopOrder(3, domain.Sell, 99) // not eligible yet
	sb.Park(sell1)
	sb.Park(sell2)
	sb.Park(sell3)

	triggered := sb.PopTriggered(100)
	require.Len(t, triggered, 2)
	assert.Equal(t, uint64(2), triggered[0].ID, "stop closest to last price (101) triggers first")
	assert.Equal(t, uint64(1), triggered[1].ID)
	assert.Equal(t, 1, sb.Len(domain.Sell))
}

func TestPopTriggeredDrainsWholeLevel(t *testing.T) {
	sb := New()
	sb.Park(stopOrder(1, domain.Buy, 100))
	sb.Park(stopOrder(2, domain.Buy, 100))

	triggered := sb.PopTriggered(100)
	assert.Len(t, triggered, 2)
	assert.Equal(t, 0, sb.Len(domain.Buy))
}
