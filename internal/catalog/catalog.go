// Package catalog is the in-process item registry: it mints item ids, keeps
// their metadata and creator, and records when an item is enabled.
package catalog

import (
	"fmt"

	. "fractal/internal/common"

	"github.com/tidwall/btree"
)

type Item struct {
	ID       ItemID
	Metadata string // Opaque, usually a URI
	Creator  Address
	Enabled  bool
}

// Catalog is not safe for concurrent use.
type Catalog struct {
	items  btree.Map[ItemID, *Item]
	nextID ItemID
}

func New() *Catalog {
	return &Catalog{nextID: 1}
}

// Mint creates a new item owned by creator and returns its id.
func (c *Catalog) Mint(creator Address, metadata string) (ItemID, error) {
	if creator == ZeroAddress {
		return 0, fmt.Errorf("mint: %w: zero creator", ErrInvalidAddress)
	}
	id := c.nextID
	c.items.Set(id, &Item{ID: id, Metadata: metadata, Creator: creator})
	c.nextID++
	return id, nil
}

// MaxID is the id of the most recently minted item, 0 when none exist.
func (c *Catalog) MaxID() ItemID {
	return c.nextID - 1
}

// Lookup returns the item with the given id.
func (c *Catalog) Lookup(id ItemID) (Item, error) {
	if id < 1 || id > c.MaxID() {
		return Item{}, fmt.Errorf("item %d: %w", id, ErrInvalidItem)
	}
	item, ok := c.items.Get(id)
	if !ok {
		return Item{}, fmt.Errorf("item %d: %w", id, ErrInvalidItem)
	}
	return *item, nil
}

func (c *Catalog) Metadata(id ItemID) (string, error) {
	item, err := c.Lookup(id)
	return item.Metadata, err
}

func (c *Catalog) CreatorOf(id ItemID) (Address, error) {
	item, err := c.Lookup(id)
	return item.Creator, err
}

func (c *Catalog) IsEnabled(id ItemID) bool {
	item, err := c.Lookup(id)
	return err == nil && item.Enabled
}

// CheckEnable reports whether Enable would succeed, without enabling.
func (c *Catalog) CheckEnable(id ItemID) error {
	item, err := c.Lookup(id)
	if err != nil {
		return err
	}
	if item.Enabled {
		return fmt.Errorf("item %d: %w", id, ErrAlreadyEnabled)
	}
	return nil
}

// Enable moves an item from created to enabled. It happens once.
func (c *Catalog) Enable(id ItemID) error {
	if err := c.CheckEnable(id); err != nil {
		return err
	}
	item, _ := c.items.Get(id)
	item.Enabled = true
	return nil
}

// Items visits every item in id order until fn returns false.
func (c *Catalog) Items(fn func(Item) bool) {
	c.items.Scan(func(_ ItemID, item *Item) bool {
		return fn(*item)
	})
}
