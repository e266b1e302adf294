package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFillRateComputation(t *testing.T) {
	c := NewCollector()
	c.RecordSubmitted()
	c.RecordSubmitted()
	c.RecordFilled()

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.TotalOrders)
	assert.Equal(t, uint64(1), snap.FilledOrders)
	assert.Equal(t, 0.5, snap.FillRate)
}

func TestTradeAccumulation(t *testing.T) {
	c := NewCollector()
	c.RecordTrade(10)
	c.RecordTrade(25)

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.TotalTrades)
	assert.Equal(t, int64(35), snap.TotalVolume)
}

func TestPercentilesDeterministicForFixedInput(t *testing.T) {
	c := NewCollector()
	for i := 1; i <= 100; i++ {
		c.RecordLatency(time.Duration(i) * time.Microsecond)
	}

	snap1 := c.Snapshot()

	c2 := NewCollector()
	for i := 1; i <= 100; i++ {
		c2.RecordLatency(time.Duration(i) * time.Microsecond)
	}
	snap2 := c2.Snapshot()

	assert.Equal(t, snap1.P50, snap2.P50, "same input sequence must give the same percentile estimate")
	assert.Equal(t, snap1.P95, snap2.P95)
	assert.Equal(t, snap1.P99, snap2.P99)
	assert.LessOrEqual(t, snap1.P50, snap1.P95)
	assert.LessOrEqual(t, snap1.P95, snap1.P99)
}

func TestEmptyHistogramPercentileIsZero(t *testing.T) {
	h := newHistogram()
	assert.Equal(t, time.Duration(0), h.percentile(0.5))
}

func TestSnapshotIsImmutableAcrossPublish(t *testing.T) {
	c := NewCollector()
	first := c.Snapshot()
	c.RecordSubmitted()
	second := c.Snapshot()

	assert.Equal(t, uint64(0), first.TotalOrders, "earlier snapshot must not observe later writes")
	assert.Equal(t, uint64(1), second.TotalOrders)
}
