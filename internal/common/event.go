package common

import (
	"time"

	"github.com/google/uuid"
)

type EventKind int

const (
	ItemMinted EventKind = iota
	ItemEnabled
	VenueSet
	TradingOpened
	VotesDelisted
	PriceUpdated
	VotesTraded
)

var eventKindName = map[EventKind]string{
	ItemMinted:    "item_minted",
	ItemEnabled:   "item_enabled",
	VenueSet:      "venue_set",
	TradingOpened: "trading_opened",
	VotesDelisted: "votes_delisted",
	PriceUpdated:  "price_updated",
	VotesTraded:   "votes_traded",
}

func (k EventKind) String() string {
	if name, ok := eventKindName[k]; ok {
		return name
	}
	return "unknown"
}

// Event is emitted after an operation commits. Fields not relevant to the
// kind are left zero.
type Event struct {
	ID        uuid.UUID
	Kind      EventKind
	Timestamp time.Time
	Item      ItemID
	From      Address // Seller, lister or creator
	To        Address // Buyer or venue
	Amount    uint64
	UnitPrice uint64
	Stats     PriceStats
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(kind EventKind, item ItemID) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		Timestamp: time.Now(),
		Item:      item,
	}
}
