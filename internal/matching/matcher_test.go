package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garm/internal/book"
	"garm/internal/config"
	"garm/internal/domain"
	"garm/internal/stopbook"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestMatcher() (*Matcher, *book.Book, *stopbook.StopBook) {
	b := book.New("TEST")
	sb := stopbook.New()
	m := New("TEST", b, sb, config.StopTriggerLastTrade, fixedClock(time.Unix(0, 0)))
	return m, b, sb
}

func limitOrder(id uint64, side domain.Side, price domain.Ticks, qty int64) *domain.Order {
	return &domain.Order{ID: id, Symbol: "TEST", Side: side, Type: domain.Limit, Quantity: qty, Remaining: qty, Price: price, Status: domain.New}
}

func marketOrder(id uint64, side domain.Side, qty int64) *domain.Order {
	return &domain.Order{ID: id, Symbol: "TEST", Side: side, Type: domain.Market, Quantity: qty, Remaining: qty, Status: domain.New}
}

func TestLimitOrderRestsWhenNoCross(t *testing.T) {
	m, b, _ := newTestMatcher()

	trades, executed := m.Submit(limitOrder(1, domain.Buy, 100, 10))
	assert.Empty(t, trades)
	require.Len(t, executed, 1)
	assert.Equal(t, domain.New, executed[0].Status)
	assert.Equal(t, 1, b.Len(domain.Buy))
}

func TestLimitOrderMatchesRestingFIFO(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Submit(limitOrder(1, domain.Sell, 100, 10))
	m.Submit(limitOrder(2, domain.Sell, 100, 5))

	trades, executed := m.Submit(limitOrder(3, domain.Buy, 100, 12))
	require.Len(t, trades, 2)
	assert.Equal(t, int64(10), trades[0].Quantity, "order 1 (earlier) fills first")
	assert.Equal(t, int64(2), trades[1].Quantity)
	assert.Equal(t, domain.Filled, executed[0].Status)
}

func TestMarketOrderInsufficientLiquidityCancelsResidual(t *testing.T) {
	m, _, _ := newTestMatcher()
	m.Submit(limitOrder(1, domain.Sell, 100, 5))

	trades, executed := m.Submit(marketOrder(2, domain.Buy, 10))
	require.Len(t, trades, 1)
	assert.Equal(t, domain.Cancelled, executed[0].Status)
	assert.Equal(t, domain.CancelReasonInsufficientLiquidity, executed[0].CancelReason)
	assert.Equal(t, int64(5), executed[0].Remaining)
}

func TestAggressorPaysMakerPrice(t *testing.T) {
	m, _, _ := newTestMatcher()
	m.Submit(limitOrder(1, domain.Sell, 100, 10))

	trades, _ := m.Submit(limitOrder(2, domain.Buy, 105, 10))
	require.Len(t, trades, 1)
	assert.Equal(t, domain.Ticks(100), trades[0].Price, "aggressor gets the resting order's price")
}

func TestBookNeverEndsCrossed(t *testing.T) {
	m, b, _ := newTestMatcher()
	m.Submit(limitOrder(1, domain.Sell, 100, 10))
	m.Submit(limitOrder(2, domain.Buy, 100, 10))
	assert.False(t, b.IsCrossed())
}

func TestStopLossTriggersOnLastTradeCrossing(t *testing.T) {
	m, _, sb := newTestMatcher()

	// Park a buy stop-loss that triggers once last trade >= 100.
	stop := &domain.Order{ID: 1, Symbol: "TEST", Side: domain.Buy, Type: domain.StopLoss, Quantity: 5, Remaining: 5, StopPrice: 100, Status: domain.New}
	m.Submit(stop)
	assert.Equal(t, 1, sb.Len(domain.Buy))

	// Rest an ask at 101 and a bid at 100, then sell into that bid to
	// trade at 100 and set last price, which should trigger the parked
	// stop and have it sweep the 101 ask.
	m.Submit(limitOrder(2, domain.Sell, 101, 20))
	m.Submit(limitOrder(3, domain.Buy, 100, 1))
	trades, _ := m.Submit(limitOrder(4, domain.Sell, 100, 1))
	require.NotEmpty(t, trades)

	assert.Equal(t, 0, sb.Len(domain.Buy), "stop should have triggered and been removed")
}

func TestStopLossTriggersImmediatelyWhenAlreadyCrossedOnSubmit(t *testing.T) {
	m, _, sb := newTestMatcher()

	// Trade at 100 first, so the reference price is already >= the stop's
	// trigger by the time it is submitted.
	m.Submit(limitOrder(1, domain.Sell, 100, 10))
	m.Submit(limitOrder(2, domain.Buy, 100, 10))

	m.Submit(limitOrder(3, domain.Sell, 100, 10))
	stop := &domain.Order{ID: 4, Symbol: "TEST", Side: domain.Buy, Type: domain.StopLoss, Quantity: 10, Remaining: 10, StopPrice: 100, Status: domain.New}

	trades, executed := m.Submit(stop)
	require.NotEmpty(t, trades, "a stop already satisfied on submission must convert and match immediately, not park")
	assert.Equal(t, 0, sb.Len(domain.Buy))
	require.Len(t, executed, 1)
	assert.Equal(t, domain.Filled, executed[0].Status)
}

func TestConvertStopPreservesIdentity(t *testing.T) {
	m, _, _ := newTestMatcher()
	stop := &domain.Order{ID: 1, Type: domain.StopLimit, Price: 100, StopPrice: 99}
	converted := m.convertStop(stop)
	assert.Equal(t, domain.Limit, converted.Type)
	assert.Equal(t, uint64(1), converted.ID)
}
