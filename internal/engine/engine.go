package engine

import (
	"encoding/binary"
	"fmt"
	"time"

	"fractal/internal/catalog"
	. "fractal/internal/common"
	"fractal/internal/ledger"
	"fractal/internal/pricing"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// This is the share accounting engine. It owns the catalog, the share ledger
// and the price aggregator and is the only thing allowed to mutate them.
//
// Every operation either commits all of its effects or returns an error and
// leaves the state untouched. The engine is not safe for concurrent use; the
// caller serializes operations.

// Reporter receives an event after each committed operation.
type Reporter interface {
	ReportEvent(event Event)
}

// Auth identifies the caller of an operation.
type Auth struct {
	Caller Address
}

// As builds an Auth for caller.
func As(caller Address) Auth {
	return Auth{Caller: caller}
}

type Options struct {
	Admin  Address             // May enable items and set the venue
	Supply uint64              // Votes per item, DefaultSupply when 0
	Policy ledger.RosterPolicy // Roster behavior on zero balances
}

type Engine struct {
	admin  Address
	venue  Address
	supply uint64

	catalog  *catalog.Catalog
	ledger   *ledger.Ledger
	prices   *pricing.Aggregator
	reporter Reporter
}

func New(opts Options) (*Engine, error) {
	if opts.Admin == ZeroAddress {
		return nil, fmt.Errorf("new engine: %w: zero admin", ErrInvalidAddress)
	}
	if opts.Supply == 0 {
		opts.Supply = DefaultSupply
	}
	return &Engine{
		admin:    opts.Admin,
		supply:   opts.Supply,
		catalog:  catalog.New(),
		ledger:   ledger.New(opts.Policy),
		prices:   pricing.New(),
		reporter: nopReporter{},
	}, nil
}

// SetReporter sets where committed events are sent. nil disables reporting.
func (engine *Engine) SetReporter(reporter Reporter) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	engine.reporter = reporter
}

func (engine *Engine) Admin() Address { return engine.admin }

// Venue is the registered venue, the zero address until SetVenue succeeds.
func (engine *Engine) Venue() Address { return engine.venue }

func (engine *Engine) Supply() uint64 { return engine.supply }

// Mint registers a new item created by the caller.
func (engine *Engine) Mint(auth Auth, metadata string) (ItemID, error) {
	id, err := engine.catalog.Mint(auth.Caller, metadata)
	if err != nil {
		return 0, err
	}
	event := NewEvent(ItemMinted, id)
	event.From = auth.Caller
	engine.reporter.ReportEvent(event)
	return id, nil
}

// EnableItem opens an item to trading by giving its whole supply to the
// creator. Only the admin may enable an item, and only once.
func (engine *Engine) EnableItem(auth Auth, item ItemID) error {
	if err := engine.requireAdmin(auth); err != nil {
		return err
	}
	if err := engine.catalog.CheckEnable(item); err != nil {
		return err
	}
	if engine.ledger.Initialized(item) {
		return fmt.Errorf("enable item %d: %w", item, ErrAlreadyInitialized)
	}
	creator, err := engine.catalog.CreatorOf(item)
	if err != nil {
		return err
	}

	if err := engine.ledger.Initialize(item, creator, engine.supply); err != nil {
		return err
	}
	if err := engine.catalog.Enable(item); err != nil {
		return err
	}

	event := NewEvent(ItemEnabled, item)
	event.From = creator
	event.Amount = engine.supply
	engine.reporter.ReportEvent(event)
	return nil
}

// SetVenue registers the only address allowed to move votes.
func (engine *Engine) SetVenue(auth Auth, venue Address) error {
	if err := engine.requireAdmin(auth); err != nil {
		return err
	}
	if venue == ZeroAddress {
		return fmt.Errorf("set venue: %w", ErrInvalidAddress)
	}
	engine.venue = venue

	event := NewEvent(VenueSet, 0)
	event.To = venue
	engine.reporter.ReportEvent(event)
	return nil
}

// ListForTrade offers amount of owner's votes at unitPrice. The listing is a
// pricing event: the first one seeds the item's price statistics. Balance
// checks run before pricing so an oversized listing reports the balance error.
func (engine *Engine) ListForTrade(auth Auth, item ItemID, owner Address, amount, unitPrice uint64) error {
	if err := engine.requireTradable(auth, item); err != nil {
		return err
	}
	if err := engine.ledger.CheckListForTrade(item, owner, amount); err != nil {
		return err
	}
	quote, err := engine.prices.QuoteOpen(item, engine.ledger.Supply(item), amount, unitPrice)
	if err != nil {
		return err
	}
	if err := engine.ledger.ListForTrade(item, owner, amount); err != nil {
		return err
	}
	engine.prices.Commit(quote)

	event := NewEvent(TradingOpened, item)
	event.From = owner
	event.Amount = amount
	event.UnitPrice = unitPrice
	event.Stats = quote.Stats
	engine.reporter.ReportEvent(event)
	return nil
}

// Delist withdraws listed votes from trading. Prices are unaffected.
func (engine *Engine) Delist(auth Auth, item ItemID, owner Address, amount uint64) error {
	if err := engine.requireTradable(auth, item); err != nil {
		return err
	}
	if err := engine.ledger.Delist(item, owner, amount); err != nil {
		return err
	}

	event := NewEvent(VotesDelisted, item)
	event.From = owner
	event.Amount = amount
	engine.reporter.ReportEvent(event)
	return nil
}

// UpdatePrice reprices amount votes of item at unitPrice.
func (engine *Engine) UpdatePrice(auth Auth, item ItemID, unitPrice, amount uint64) (PriceStats, error) {
	if err := engine.requireTradable(auth, item); err != nil {
		return PriceStats{}, err
	}
	if amount == 0 {
		return PriceStats{}, fmt.Errorf("update price of item %d: %w", item, ErrInvalidAmount)
	}
	quote, err := engine.prices.QuoteApply(item, amount, unitPrice)
	if err != nil {
		return PriceStats{}, err
	}
	engine.prices.Commit(quote)

	event := NewEvent(PriceUpdated, item)
	event.Amount = amount
	event.UnitPrice = unitPrice
	event.Stats = quote.Stats
	engine.reporter.ReportEvent(event)
	return quote.Stats, nil
}

// ExecuteTrade moves amount listed votes from seller to buyer at unitPrice
// and reprices the item.
func (engine *Engine) ExecuteTrade(auth Auth, from, to Address, item ItemID, unitPrice, amount uint64) (Trade, error) {
	if err := engine.requireTradable(auth, item); err != nil {
		return Trade{}, err
	}
	if err := engine.ledger.CheckTransfer(item, from, to, amount); err != nil {
		return Trade{}, err
	}
	quote, err := engine.prices.QuoteApply(item, amount, unitPrice)
	if err != nil {
		return Trade{}, err
	}
	if err := engine.ledger.Transfer(item, from, to, amount); err != nil {
		return Trade{}, err
	}
	engine.prices.Commit(quote)

	trade := Trade{
		ID:        uuid.New(),
		Item:      item,
		From:      from,
		To:        to,
		Amount:    amount,
		UnitPrice: unitPrice,
		Timestamp: time.Now(),
		Stats:     quote.Stats,
	}
	event := NewEvent(VotesTraded, item)
	event.ID = trade.ID
	event.Timestamp = trade.Timestamp
	event.From = from
	event.To = to
	event.Amount = amount
	event.UnitPrice = unitPrice
	event.Stats = quote.Stats
	engine.reporter.ReportEvent(event)
	return trade, nil
}

// StateDigest fingerprints the venue, every item, balance, roster and price
// record. Failed operations leave it unchanged.
func (engine *Engine) StateDigest() [32]byte {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(engine.venue[:])

	var buf [8]byte
	engine.catalog.Items(func(item catalog.Item) bool {
		binary.BigEndian.PutUint64(buf[:], uint64(item.ID))
		hasher.Write(buf[:])
		hasher.Write(item.Creator[:])
		hasher.Write([]byte(item.Metadata))
		if item.Enabled {
			hasher.Write([]byte{1})
		} else {
			hasher.Write([]byte{0})
		}
		return true
	})

	ledgerDigest := engine.ledger.Digest()
	hasher.Write(ledgerDigest[:])

	engine.prices.Each(func(item ItemID, stats PriceStats) {
		binary.BigEndian.PutUint64(buf[:], uint64(item))
		hasher.Write(buf[:])
		total := stats.TotalPrice.Bytes32()
		average := stats.AveragePrice.Bytes32()
		hasher.Write(total[:])
		hasher.Write(average[:])
	})

	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}

func (engine *Engine) requireAdmin(auth Auth) error {
	if auth.Caller != engine.admin {
		return fmt.Errorf("%s is not the admin: %w", auth.Caller.Hex(), ErrUnauthorized)
	}
	return nil
}

// requireTradable checks the caller is the venue, then that item is enabled.
func (engine *Engine) requireTradable(auth Auth, item ItemID) error {
	if engine.venue == ZeroAddress || auth.Caller != engine.venue {
		return fmt.Errorf("%s is not the venue: %w", auth.Caller.Hex(), ErrUnauthorized)
	}
	if !engine.catalog.IsEnabled(item) || !engine.ledger.Initialized(item) {
		return fmt.Errorf("item %d: %w", item, ErrInvalidItem)
	}
	return nil
}

type nopReporter struct{}

func (nopReporter) ReportEvent(Event) {}
