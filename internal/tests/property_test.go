package tests

import (
	"errors"
	"slices"
	"testing"

	. "fractal/internal/common"
	"fractal/internal/engine"
	"fractal/internal/ledger"

	"github.com/holiman/uint256"
	"pgregory.net/rapid"
)

// Property: a random sequence of venue operations never breaks the share
// accounting. Every failed operation leaves the state digest unchanged, and
// oversized requests fail with the balance error.

func TestProperty_LedgerInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		supply := rapid.Uint64Range(1, 1000).Draw(t, "supply")
		policy := rapid.SampledFrom([]ledger.RosterPolicy{ledger.AppendOnly, ledger.PruneOnZero}).Draw(t, "policy")
		eng, item := newMarket(t, supply, policy)
		venueAuth := engine.As(venue)

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := range steps {
			rosterBefore, err := eng.OwnersOf(item)
			if err != nil {
				t.Fatalf("owners of: %v", err)
			}
			digestBefore := eng.StateDigest()

			owner := rapid.SampledFrom(traders).Draw(t, "owner")
			amount := rapid.Uint64Range(0, supply+2).Draw(t, "amount")
			unitPrice := rapid.Uint64Range(0, 100_000).Draw(t, "unitPrice")

			held, err := eng.BalanceInfo(item, owner)
			if err != nil {
				t.Fatalf("balance info: %v", err)
			}

			op := rapid.IntRange(0, 3).Draw(t, "op")
			switch op {
			case 0:
				err = eng.ListForTrade(venueAuth, item, owner, amount, unitPrice)
				if amount > held.Unlisted && !errors.Is(err, ErrInsufficientUnlisted) {
					t.Fatalf("step %d: listing %d of %s got %v", i, amount, held, err)
				}
			case 1:
				err = eng.Delist(venueAuth, item, owner, amount)
			case 2:
				_, err = eng.UpdatePrice(venueAuth, item, unitPrice, amount)
			case 3:
				to := rapid.SampledFrom(traders).Draw(t, "to")
				_, err = eng.ExecuteTrade(venueAuth, owner, to, item, unitPrice, amount)
				if to != owner && amount > held.Listed && !errors.Is(err, ErrInsufficientListed) {
					t.Fatalf("step %d: trading %d of %s got %v", i, amount, held, err)
				}
			}

			if err != nil && eng.StateDigest() != digestBefore {
				t.Fatalf("step %d: op %d failed with %v but changed state", i, op, err)
			}
			checkInvariants(t, eng, item, supply)

			if policy == ledger.AppendOnly {
				roster, _ := eng.OwnersOf(item)
				if !slices.Equal(rosterBefore, roster[:min(len(rosterBefore), len(roster))]) {
					t.Fatalf("step %d: roster %v does not extend %v", i, roster, rosterBefore)
				}
			}
		}
	})
}

func checkInvariants(t *rapid.T, eng *engine.Engine, item ItemID, supply uint64) {
	// Conservation over the whole balance table.
	if got := eng.Outstanding(item); got != supply {
		t.Fatalf("outstanding %d, want supply %d", got, supply)
	}

	roster, err := eng.OwnersOf(item)
	if err != nil {
		t.Fatalf("owners of: %v", err)
	}
	seen := make(map[Address]bool, len(roster))
	var owned uint64
	for _, owner := range roster {
		if seen[owner] {
			t.Fatalf("owner %s listed twice in %v", owner.Hex(), roster)
		}
		seen[owner] = true

		bal, err := eng.BalanceInfo(item, owner)
		if err != nil {
			t.Fatalf("balance info: %v", err)
		}
		if bal.Owned != bal.Listed+bal.Unlisted {
			t.Fatalf("owner %s: %s does not split", owner.Hex(), bal)
		}
		owned += bal.Owned
	}
	// Every holder is on the roster, so the roster also conserves supply.
	if owned != supply {
		t.Fatalf("roster holds %d, want supply %d", owned, supply)
	}

	stats, err := eng.PriceInfo(item)
	if err != nil {
		t.Fatalf("price info: %v", err)
	}
	var want uint256.Int
	want.Div(&stats.TotalPrice, uint256.NewInt(supply))
	if !want.Eq(&stats.AveragePrice) {
		t.Fatalf("average %s, want total %s / %d", FormatPrice(&stats.AveragePrice), FormatPrice(&stats.TotalPrice), supply)
	}
}

// Property: the average follows the incremental rule exactly, including the
// truncating division.
func TestProperty_AverageRecurrence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		supply := rapid.Uint64Range(1, 1000).Draw(t, "supply")
		eng, item := newMarket(t, supply, ledger.AppendOnly)
		venueAuth := engine.As(venue)

		listed := rapid.Uint64Range(1, supply).Draw(t, "listed")
		first := rapid.Uint64Range(0, 100_000).Draw(t, "first")
		if err := eng.ListForTrade(venueAuth, item, creator, listed, first); err != nil {
			t.Fatalf("list: %v", err)
		}
		total := listed * first

		for range rapid.IntRange(1, 20).Draw(t, "updates") {
			amount := rapid.Uint64Range(1, supply).Draw(t, "amount")
			unitPrice := rapid.Uint64Range(0, 100_000).Draw(t, "unitPrice")

			// amount <= supply, so the removed value never exceeds total.
			removed := amount * (total / supply)
			got, err := eng.UpdatePrice(venueAuth, item, unitPrice, amount)
			if err != nil {
				t.Fatalf("update price: %v", err)
			}
			total = total - removed + amount*unitPrice
			if got.TotalPrice.Uint64() != total || got.AveragePrice.Uint64() != total/supply {
				t.Fatalf("got %s, want total %d average %d", got, total, total/supply)
			}
		}
	})
}
