package ledger

import (
	"encoding/binary"
	"slices"

	. "fractal/internal/common"

	"golang.org/x/crypto/sha3"
)

// OwnersOf returns the roster of item in order of arrival.
func (l *Ledger) OwnersOf(item ItemID) []Address {
	return slices.Clone(l.rosters[item])
}

// ItemsOf returns the items indexed for owner in order of arrival.
func (l *Ledger) ItemsOf(owner Address) []ItemID {
	return slices.Clone(l.index[owner])
}

// BalanceOf counts the items in which owner currently holds votes. Indexed
// items whose balance went back to zero are not counted.
func (l *Ledger) BalanceOf(owner Address) int {
	n := 0
	for _, item := range l.index[owner] {
		if !l.BalanceInfo(item, owner).IsZero() {
			n++
		}
	}
	return n
}

// SolelyOwns returns the owner holding the whole supply of item, if any.
func (l *Ledger) SolelyOwns(item ItemID) (Address, bool) {
	supply, ok := l.supply[item]
	if !ok {
		return ZeroAddress, false
	}
	for _, owner := range l.rosters[item] {
		if l.BalanceInfo(item, owner).Owned == supply {
			return owner, true
		}
	}
	return ZeroAddress, false
}

// Digest is a Keccak-256 fingerprint of every balance and roster. Two ledgers
// with the same digest hold the same state.
func (l *Ledger) Digest() [32]byte {
	hasher := sha3.NewLegacyKeccak256()
	var buf [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		hasher.Write(buf[:])
	}

	l.balances.Scan(func(e *entry) bool {
		writeUint(uint64(e.item))
		hasher.Write(e.owner[:])
		writeUint(e.balance.Owned)
		writeUint(e.balance.Listed)
		writeUint(e.balance.Unlisted)
		return true
	})

	items := make([]ItemID, 0, len(l.rosters))
	for item := range l.rosters {
		items = append(items, item)
	}
	slices.Sort(items)
	for _, item := range items {
		writeUint(uint64(item))
		writeUint(l.supply[item])
		for _, owner := range l.rosters[item] {
			hasher.Write(owner[:])
		}
	}

	owners := make([]Address, 0, len(l.index))
	for owner := range l.index {
		owners = append(owners, owner)
	}
	slices.SortFunc(owners, func(a, b Address) int {
		return a.Cmp(b)
	})
	for _, owner := range owners {
		hasher.Write(owner[:])
		for _, item := range l.index[owner] {
			writeUint(uint64(item))
		}
	}

	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}
