package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Trade records votes moving from a seller to a buyer through the venue.
type Trade struct {
	ID        uuid.UUID
	Item      ItemID
	From      Address
	To        Address
	Amount    uint64
	UnitPrice uint64
	Timestamp time.Time
	Stats     PriceStats // Item valuation after the trade
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`ID:        %v
Item:      %d
From:      %s
To:        %s
Amount:    %d
UnitPrice: %s
Timestamp: %v
Stats:     %v`,
		t.ID,
		t.Item,
		t.From.Hex(),
		t.To.Hex(),
		t.Amount,
		FormatPrice(uint256.NewInt(t.UnitPrice)),
		t.Timestamp.Format(time.RFC3339),
		t.Stats,
	)
}
