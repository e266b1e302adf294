package domain

import (
	"fmt"
	"time"
)

// Trade is a single resulting execution between a buy and a sell order.
type Trade struct {
	ID            uint64
	Symbol        string
	Price         Ticks
	Quantity      int64
	BuyOrderID    uint64
	SellOrderID   uint64
	Timestamp     time.Time
	AggressorSide Side
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade{id=%d symbol=%s price=%d qty=%d buy=%d sell=%d aggressor=%s}",
		t.ID, t.Symbol, t.Price, t.Quantity, t.BuyOrderID, t.SellOrderID, t.AggressorSide,
	)
}
