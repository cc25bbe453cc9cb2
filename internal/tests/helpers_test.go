package tests

import (
	"testing"

	. "fractal/internal/common"
	"fractal/internal/engine"
	"fractal/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	venue   = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	carol   = common.HexToAddress("0x00000000000000000000000000000000000000ca")
	dave    = common.HexToAddress("0x00000000000000000000000000000000000000da")
)

var traders = []Address{creator, bob, carol, dave}

// newMarket returns an engine with one enabled item owned by creator and the
// venue registered.
func newMarket(t require.TestingT, supply uint64, policy ledger.RosterPolicy) (*engine.Engine, ItemID) {
	eng, err := engine.New(engine.Options{Admin: admin, Supply: supply, Policy: policy})
	require.NoError(t, err)
	item, err := eng.Mint(engine.As(creator), "test NFT - 1")
	require.NoError(t, err)
	require.NoError(t, eng.EnableItem(engine.As(admin), item))
	require.NoError(t, eng.SetVenue(engine.As(admin), venue))
	return eng, item
}

func stats(total, average uint64) PriceStats {
	return PriceStats{
		TotalPrice:   *uint256.NewInt(total),
		AveragePrice: *uint256.NewInt(average),
	}
}

func priceOf(t *testing.T, eng *engine.Engine, item ItemID) PriceStats {
	t.Helper()
	s, err := eng.PriceInfo(item)
	require.NoError(t, err)
	return s
}
