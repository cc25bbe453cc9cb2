package ledger

import (
	"testing"

	. "fractal/internal/common"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	buyer   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	buyer2  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

const item ItemID = 1

// newListedLedger returns a ledger where creator holds the whole supply of
// item, with listed votes on offer.
func newListedLedger(t *testing.T, policy RosterPolicy, listed uint64) *Ledger {
	t.Helper()
	l := New(policy)
	require.NoError(t, l.Initialize(item, creator, DefaultSupply))
	if listed > 0 {
		require.NoError(t, l.ListForTrade(item, creator, listed))
	}
	return l
}

func TestInitialize(t *testing.T) {
	l := New(AppendOnly)
	require.NoError(t, l.Initialize(item, creator, DefaultSupply))

	assert.Equal(t, Balance{Owned: 1000, Unlisted: 1000}, l.BalanceInfo(item, creator))
	assert.Equal(t, []Address{creator}, l.OwnersOf(item))
	assert.Equal(t, []ItemID{item}, l.ItemsOf(creator))
	assert.Equal(t, 1, l.BalanceOf(creator))

	owner, ok := l.SolelyOwns(item)
	assert.True(t, ok)
	assert.Equal(t, creator, owner)
}

func TestInitialize_Twice(t *testing.T) {
	l := New(AppendOnly)
	require.NoError(t, l.Initialize(item, creator, DefaultSupply))
	before := l.Digest()

	err := l.Initialize(item, buyer, DefaultSupply)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.Equal(t, before, l.Digest())
}

func TestInitialize_Invalid(t *testing.T) {
	l := New(AppendOnly)
	assert.ErrorIs(t, l.Initialize(item, ZeroAddress, DefaultSupply), ErrInvalidAddress)
	assert.ErrorIs(t, l.Initialize(item, creator, 0), ErrInvalidAmount)
	assert.False(t, l.Initialized(item))
}

func TestListForTrade(t *testing.T) {
	l := newListedLedger(t, AppendOnly, 0)

	require.NoError(t, l.ListForTrade(item, creator, 400))
	assert.Equal(t, Balance{Owned: 1000, Listed: 400, Unlisted: 600}, l.BalanceInfo(item, creator))

	require.NoError(t, l.ListForTrade(item, creator, 600))
	assert.Equal(t, Balance{Owned: 1000, Listed: 1000}, l.BalanceInfo(item, creator))
}

func TestListForTrade_Insufficient(t *testing.T) {
	l := newListedLedger(t, AppendOnly, 0)
	before := l.Digest()

	err := l.ListForTrade(item, creator, 2000)
	assert.ErrorIs(t, err, ErrInsufficientUnlisted)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NotErrorIs(t, err, ErrAlreadyListed)
	assert.Equal(t, before, l.Digest())

	// A stranger holds nothing to list.
	assert.ErrorIs(t, l.ListForTrade(item, buyer, 1), ErrInsufficientUnlisted)
	assert.ErrorIs(t, l.ListForTrade(item, creator, 0), ErrInvalidAmount)
	assert.ErrorIs(t, l.ListForTrade(2, creator, 1), ErrInvalidItem)
	assert.Equal(t, before, l.Digest())
}

func TestListForTrade_AlreadyListed(t *testing.T) {
	l := newListedLedger(t, AppendOnly, 1000)

	err := l.ListForTrade(item, creator, 1)
	assert.ErrorIs(t, err, ErrAlreadyListed)
	assert.ErrorIs(t, err, ErrInsufficientUnlisted)
}

func TestDelist(t *testing.T) {
	l := newListedLedger(t, AppendOnly, 300)

	require.NoError(t, l.Delist(item, creator, 100))
	assert.Equal(t, Balance{Owned: 1000, Listed: 200, Unlisted: 800}, l.BalanceInfo(item, creator))

	before := l.Digest()
	assert.ErrorIs(t, l.Delist(item, creator, 201), ErrInsufficientListed)
	assert.ErrorIs(t, l.Delist(item, buyer, 1), ErrInsufficientListed)
	assert.Equal(t, before, l.Digest())
}

func TestTransfer_Partial(t *testing.T) {
	l := newListedLedger(t, AppendOnly, 1000)

	require.NoError(t, l.Transfer(item, creator, buyer, 50))

	assert.Equal(t, Balance{Owned: 950, Listed: 950}, l.BalanceInfo(item, creator))
	assert.Equal(t, Balance{Owned: 50, Unlisted: 50}, l.BalanceInfo(item, buyer))
	assert.Equal(t, []Address{creator, buyer}, l.OwnersOf(item))
	assert.Equal(t, []ItemID{item}, l.ItemsOf(buyer))
	assert.Equal(t, DefaultSupply, l.Outstanding(item))

	_, ok := l.SolelyOwns(item)
	assert.False(t, ok, "a shared item has no sole owner")
}

func TestTransfer_Failures(t *testing.T) {
	l := newListedLedger(t, AppendOnly, 100)
	before := l.Digest()

	assert.ErrorIs(t, l.Transfer(item, creator, buyer, 101), ErrInsufficientListed)
	assert.ErrorIs(t, l.Transfer(item, buyer, creator, 1), ErrInsufficientListed)
	assert.ErrorIs(t, l.Transfer(item, creator, creator, 1), ErrSelfTrade)
	assert.ErrorIs(t, l.Transfer(item, creator, ZeroAddress, 1), ErrInvalidAddress)
	assert.ErrorIs(t, l.Transfer(item, creator, buyer, 0), ErrInvalidAmount)
	assert.ErrorIs(t, l.Transfer(7, creator, buyer, 1), ErrInvalidItem)

	assert.Equal(t, before, l.Digest())
	assert.Equal(t, []Address{creator}, l.OwnersOf(item))
}

func TestChecks_DoNotMutate(t *testing.T) {
	l := newListedLedger(t, AppendOnly, 100)
	before := l.Digest()

	require.NoError(t, l.CheckListForTrade(item, creator, 900))
	require.NoError(t, l.CheckTransfer(item, creator, buyer, 100))
	assert.ErrorIs(t, l.CheckListForTrade(item, creator, 901), ErrInsufficientUnlisted)
	assert.ErrorIs(t, l.CheckTransfer(item, creator, buyer, 101), ErrInsufficientListed)
	assert.ErrorIs(t, l.CheckTransfer(item, buyer, buyer2, 1), ErrInsufficientListed)

	assert.Equal(t, before, l.Digest())
	assert.Equal(t, []Address{creator}, l.OwnersOf(item))
	assert.Empty(t, l.ItemsOf(buyer))
}

func TestTransfer_DrainAppendOnly(t *testing.T) {
	l := newListedLedger(t, AppendOnly, 1000)

	// Buyer enters across several trades but is only added once.
	require.NoError(t, l.Transfer(item, creator, buyer, 100))
	require.NoError(t, l.Transfer(item, creator, buyer, 200))
	require.NoError(t, l.Transfer(item, creator, buyer, 700))

	assert.Equal(t, Balance{}, l.BalanceInfo(item, creator))
	assert.Equal(t, []Address{creator, buyer}, l.OwnersOf(item))
	assert.Equal(t, []ItemID{item}, l.ItemsOf(creator), "drained owner stays indexed")
	assert.Equal(t, 0, l.BalanceOf(creator))
	assert.Equal(t, 1, l.BalanceOf(buyer))

	owner, ok := l.SolelyOwns(item)
	assert.True(t, ok)
	assert.Equal(t, buyer, owner)

	// Trading back in does not duplicate the drained owner.
	require.NoError(t, l.ListForTrade(item, buyer, 10))
	require.NoError(t, l.Transfer(item, buyer, creator, 10))
	assert.Equal(t, []Address{creator, buyer}, l.OwnersOf(item))
	assert.Equal(t, []ItemID{item}, l.ItemsOf(creator))
}

func TestTransfer_DrainPruneOnZero(t *testing.T) {
	l := newListedLedger(t, PruneOnZero, 1000)

	require.NoError(t, l.Transfer(item, creator, buyer, 60))
	require.NoError(t, l.Transfer(item, creator, buyer2, 940))

	assert.Equal(t, []Address{buyer, buyer2}, l.OwnersOf(item))
	assert.Empty(t, l.ItemsOf(creator))
	assert.Equal(t, 0, l.BalanceOf(creator))
	assert.Equal(t, DefaultSupply, l.Outstanding(item))

	// Re-entry appends the owner again, at the end.
	require.NoError(t, l.ListForTrade(item, buyer, 60))
	require.NoError(t, l.Transfer(item, buyer, creator, 60))
	assert.Equal(t, []Address{buyer2, creator}, l.OwnersOf(item))
	assert.Equal(t, []ItemID{item}, l.ItemsOf(creator))
}

func TestOutstanding_ScansOneItem(t *testing.T) {
	l := New(AppendOnly)
	require.NoError(t, l.Initialize(1, creator, 1000))
	require.NoError(t, l.Initialize(2, creator, 500))
	require.NoError(t, l.Initialize(3, buyer, 10))
	require.NoError(t, l.ListForTrade(2, creator, 500))
	require.NoError(t, l.Transfer(2, creator, buyer, 250))

	assert.Equal(t, uint64(1000), l.Outstanding(1))
	assert.Equal(t, uint64(500), l.Outstanding(2))
	assert.Equal(t, uint64(10), l.Outstanding(3))
	assert.Equal(t, uint64(0), l.Outstanding(4))
	assert.Equal(t, []ItemID{1, 2}, l.ItemsOf(creator))
	assert.Equal(t, []ItemID{3, 2}, l.ItemsOf(buyer))
}

func TestParseRosterPolicy(t *testing.T) {
	for _, policy := range []RosterPolicy{AppendOnly, PruneOnZero} {
		got, err := ParseRosterPolicy(policy.String())
		require.NoError(t, err)
		assert.Equal(t, policy, got)
	}
	_, err := ParseRosterPolicy("set")
	assert.Error(t, err)
}
