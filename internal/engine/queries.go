package engine

import (
	"fmt"

	. "fractal/internal/common"
)

// Read-only views. Item-scoped queries fail with ErrInvalidItem until the
// item is enabled, apart from Metadata and CreatorOf which work once minted.

// BalanceInfo returns owner's votes in item.
func (engine *Engine) BalanceInfo(item ItemID, owner Address) (Balance, error) {
	if err := engine.requireEnabled(item); err != nil {
		return Balance{}, err
	}
	return engine.ledger.BalanceInfo(item, owner), nil
}

// PriceInfo returns the item's price statistics, zero until its first listing.
func (engine *Engine) PriceInfo(item ItemID) (PriceStats, error) {
	if err := engine.requireEnabled(item); err != nil {
		return PriceStats{}, err
	}
	stats, _ := engine.prices.Stats(item)
	return stats, nil
}

// OwnersOf returns the item's owner roster in order of arrival.
func (engine *Engine) OwnersOf(item ItemID) ([]Address, error) {
	if err := engine.requireEnabled(item); err != nil {
		return nil, err
	}
	return engine.ledger.OwnersOf(item), nil
}

// OwnerOf returns the owner holding every vote of item, or the zero address
// when votes are spread over several owners.
func (engine *Engine) OwnerOf(item ItemID) (Address, error) {
	if err := engine.requireEnabled(item); err != nil {
		return ZeroAddress, err
	}
	owner, _ := engine.ledger.SolelyOwns(item)
	return owner, nil
}

// ItemsOf returns the items indexed for owner.
func (engine *Engine) ItemsOf(owner Address) []ItemID {
	return engine.ledger.ItemsOf(owner)
}

// BalanceOf counts the items in which owner holds votes.
func (engine *Engine) BalanceOf(owner Address) int {
	return engine.ledger.BalanceOf(owner)
}

func (engine *Engine) Metadata(item ItemID) (string, error) {
	return engine.catalog.Metadata(item)
}

func (engine *Engine) CreatorOf(item ItemID) (Address, error) {
	return engine.catalog.CreatorOf(item)
}

func (engine *Engine) MaxID() ItemID {
	return engine.catalog.MaxID()
}

func (engine *Engine) IsEnabled(item ItemID) bool {
	return engine.catalog.IsEnabled(item)
}

// Outstanding sums the owned votes of item over all owners.
func (engine *Engine) Outstanding(item ItemID) uint64 {
	return engine.ledger.Outstanding(item)
}

func (engine *Engine) requireEnabled(item ItemID) error {
	if !engine.catalog.IsEnabled(item) {
		return fmt.Errorf("item %d: %w", item, ErrInvalidItem)
	}
	return nil
}
