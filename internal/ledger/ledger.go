package ledger

import (
	"bytes"
	"fmt"
	"slices"

	. "fractal/internal/common"

	"github.com/tidwall/btree"
)

// RosterPolicy decides what happens to roster and index entries once an
// owner's balance in an item drops to zero.
type RosterPolicy int

const (
	// AppendOnly never removes entries. Rosters may name owners whose current
	// balance is zero, so callers check balances before trusting membership.
	AppendOnly RosterPolicy = iota
	// PruneOnZero removes the owner from the item's roster, and the item from
	// the owner's index, as soon as the owned balance reaches zero.
	PruneOnZero
)

var rosterPolicyName = map[RosterPolicy]string{
	AppendOnly:  "append-only",
	PruneOnZero: "prune-on-zero",
}

func (p RosterPolicy) String() string {
	if name, ok := rosterPolicyName[p]; ok {
		return name
	}
	return "unknown"
}

// ParseRosterPolicy is the inverse of RosterPolicy.String.
func ParseRosterPolicy(s string) (RosterPolicy, error) {
	for policy, name := range rosterPolicyName {
		if name == s {
			return policy, nil
		}
	}
	return 0, fmt.Errorf("unknown roster policy: %q", s)
}

// entry is one row of the balance table.
type entry struct {
	item    ItemID
	owner   Address
	balance Balance
}

type balanceTable = btree.BTreeG[*entry]

// Ledger keeps the per-(item, owner) share balances along with the owner
// roster of every item and the owned-items index of every owner.
//
// Every mutating method checks all of its preconditions before it writes, so
// a returned error always means nothing changed. Ledger is not safe for
// concurrent use.
type Ledger struct {
	policy RosterPolicy

	// Sorted by item, then owner bytes, so the balances of one item are a
	// contiguous range.
	balances *balanceTable

	supply  map[ItemID]uint64    // Fixed supply of each initialized item
	rosters map[ItemID][]Address // Owners of an item, in order of arrival
	index   map[Address][]ItemID // Items of an owner, in order of arrival
}

func New(policy RosterPolicy) *Ledger {
	balances := btree.NewBTreeG(func(a, b *entry) bool {
		if a.item != b.item {
			return a.item < b.item
		}
		return bytes.Compare(a.owner[:], b.owner[:]) < 0
	})
	return &Ledger{
		policy:   policy,
		balances: balances,
		supply:   make(map[ItemID]uint64),
		rosters:  make(map[ItemID][]Address),
		index:    make(map[Address][]ItemID),
	}
}

func (l *Ledger) Policy() RosterPolicy {
	return l.policy
}

// Initialized reports whether Initialize already ran for the item.
func (l *Ledger) Initialized(item ItemID) bool {
	_, ok := l.supply[item]
	return ok
}

// Supply returns the fixed supply of an initialized item, or 0.
func (l *Ledger) Supply(item ItemID) uint64 {
	return l.supply[item]
}

// Initialize gives the whole supply of an item to its first owner, unlisted.
// It may be called once per item.
func (l *Ledger) Initialize(item ItemID, owner Address, supply uint64) error {
	if l.Initialized(item) {
		return fmt.Errorf("initialize item %d: %w", item, ErrAlreadyInitialized)
	}
	if owner == ZeroAddress {
		return fmt.Errorf("initialize item %d: %w: zero owner", item, ErrInvalidAddress)
	}
	if supply == 0 {
		return fmt.Errorf("initialize item %d: %w: zero supply", item, ErrInvalidAmount)
	}

	l.supply[item] = supply
	l.balances.Set(&entry{
		item:    item,
		owner:   owner,
		balance: Balance{Owned: supply, Unlisted: supply},
	})
	l.addToRosters(item, owner)
	return nil
}

// CheckListForTrade reports whether ListForTrade would succeed, without
// changing anything.
func (l *Ledger) CheckListForTrade(item ItemID, owner Address, amount uint64) error {
	if err := l.checkItem(item); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("list item %d: %w", item, ErrInvalidAmount)
	}
	bal := l.BalanceInfo(item, owner)
	if bal.Unlisted == 0 && bal.Owned > 0 {
		return fmt.Errorf("list item %d for %s: %w", item, owner.Hex(), ErrAlreadyListed)
	}
	if amount > bal.Unlisted {
		return fmt.Errorf("list %d votes of item %d for %s (unlisted %d): %w",
			amount, item, owner.Hex(), bal.Unlisted, ErrInsufficientUnlisted)
	}
	return nil
}

// ListForTrade offers amount of the owner's unlisted votes for trade.
func (l *Ledger) ListForTrade(item ItemID, owner Address, amount uint64) error {
	if err := l.CheckListForTrade(item, owner, amount); err != nil {
		return err
	}
	e, _ := l.balances.GetMut(&entry{item: item, owner: owner})
	e.balance.Unlisted -= amount
	e.balance.Listed += amount
	return nil
}

// Delist withdraws amount of the owner's listed votes from trading.
func (l *Ledger) Delist(item ItemID, owner Address, amount uint64) error {
	if err := l.checkItem(item); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("delist item %d: %w", item, ErrInvalidAmount)
	}
	e, _ := l.balances.GetMut(&entry{item: item, owner: owner})
	if e == nil || amount > e.balance.Listed {
		return fmt.Errorf("delist %d votes of item %d for %s: %w",
			amount, item, owner.Hex(), ErrInsufficientListed)
	}

	e.balance.Listed -= amount
	e.balance.Unlisted += amount
	return nil
}

// CheckTransfer reports whether Transfer would succeed, without changing
// anything.
func (l *Ledger) CheckTransfer(item ItemID, from, to Address, amount uint64) error {
	if err := l.checkItem(item); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("transfer item %d: %w", item, ErrInvalidAmount)
	}
	if to == ZeroAddress {
		return fmt.Errorf("transfer item %d: %w: zero recipient", item, ErrInvalidAddress)
	}
	if from == to {
		return fmt.Errorf("transfer item %d: %w", item, ErrSelfTrade)
	}
	if listed := l.BalanceInfo(item, from).Listed; amount > listed {
		return fmt.Errorf("transfer %d votes of item %d from %s (listed %d): %w",
			amount, item, from.Hex(), listed, ErrInsufficientListed)
	}
	if owned := l.BalanceInfo(item, to).Owned; owned+amount < owned {
		return fmt.Errorf("transfer %d votes of item %d to %s: %w", amount, item, to.Hex(), ErrOverflow)
	}
	return nil
}

// Transfer moves amount listed votes of from into the unlisted votes of to.
func (l *Ledger) Transfer(item ItemID, from, to Address, amount uint64) error {
	if err := l.CheckTransfer(item, from, to, amount); err != nil {
		return err
	}
	seller, _ := l.balances.GetMut(&entry{item: item, owner: from})
	buyer, _ := l.balances.GetMut(&entry{item: item, owner: to})

	seller.balance.Owned -= amount
	seller.balance.Listed -= amount

	if buyer == nil {
		buyer = &entry{item: item, owner: to}
		l.balances.Set(buyer)
	}
	wasEmpty := buyer.balance.IsZero()
	buyer.balance.Owned += amount
	buyer.balance.Unlisted += amount

	if wasEmpty {
		l.addToRosters(item, to)
	}
	if seller.balance.IsZero() && l.policy == PruneOnZero {
		l.removeFromRosters(item, from)
		l.balances.Delete(seller)
	}
	return nil
}

// BalanceInfo returns the balance of owner in item. Unknown pairs are zero.
func (l *Ledger) BalanceInfo(item ItemID, owner Address) Balance {
	e, ok := l.balances.Get(&entry{item: item, owner: owner})
	if !ok {
		return Balance{}
	}
	return e.balance
}

// Outstanding sums the owned votes of every holder of item.
func (l *Ledger) Outstanding(item ItemID) uint64 {
	var total uint64
	l.scanItem(item, func(e *entry) bool {
		total += e.balance.Owned
		return true
	})
	return total
}

func (l *Ledger) checkItem(item ItemID) error {
	if !l.Initialized(item) {
		return fmt.Errorf("item %d: %w", item, ErrInvalidItem)
	}
	return nil
}

// scanItem visits the balances of one item in owner order.
func (l *Ledger) scanItem(item ItemID, iter func(*entry) bool) {
	l.balances.Ascend(&entry{item: item}, func(e *entry) bool {
		if e.item != item {
			return false
		}
		return iter(e)
	})
}

// addToRosters appends owner and item to their rosters unless already there.
func (l *Ledger) addToRosters(item ItemID, owner Address) {
	if !slices.Contains(l.rosters[item], owner) {
		l.rosters[item] = append(l.rosters[item], owner)
	}
	if !slices.Contains(l.index[owner], item) {
		l.index[owner] = append(l.index[owner], item)
	}
}

func (l *Ledger) removeFromRosters(item ItemID, owner Address) {
	l.rosters[item] = slices.DeleteFunc(l.rosters[item], func(a Address) bool {
		return a == owner
	})
	l.index[owner] = slices.DeleteFunc(l.index[owner], func(id ItemID) bool {
		return id == item
	})
	if len(l.index[owner]) == 0 {
		delete(l.index, owner)
	}
}
