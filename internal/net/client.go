package net

import (
	"context"
	"fmt"
	"net"
	"time"

	. "fractal/internal/common"
)

// Client speaks the frame protocol for a single caller. Calls are
// synchronous. Events pushed by the server while waiting for a reply are
// buffered and handed out by Events.
type Client struct {
	conn    net.Conn
	caller  Address
	timeout time.Duration
	events  []Event
}

func Dial(ctx context.Context, address string, caller Address) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &Client{conn: conn, caller: caller, timeout: defaultConnTimeout}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Caller() Address { return c.caller }

// Events returns and clears the buffered events.
func (c *Client) Events() []Event {
	events := c.events
	c.events = nil
	return events
}

// Call sends a request and waits for its reply. A rejected request returns
// the report along with its error.
func (c *Client) Call(m Message) (Report, error) {
	body, err := EncodeMessage(m)
	if err != nil {
		return Report{}, err
	}
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return Report{}, err
	}
	if err := WriteFrame(c.conn, body); err != nil {
		return Report{}, fmt.Errorf("send %s: %w", m.GetType(), err)
	}

	for {
		frame, err := ReadFrame(c.conn, MAX_RECV_SIZE)
		if err != nil {
			return Report{}, fmt.Errorf("await %s: %w", m.GetType(), err)
		}
		report, err := DecodeReport(frame)
		if err != nil {
			return Report{}, err
		}
		if report.MessageType == EventReport {
			event, err := DecodeEvent(report.Payload)
			if err != nil {
				return Report{}, err
			}
			c.events = append(c.events, event)
			continue
		}
		return report, report.Error()
	}
}

func (c *Client) base(typeOf MessageType) BaseMessage {
	return BaseMessage{TypeOf: typeOf, Caller: c.caller}
}

// Heartbeat returns the server's state digest.
func (c *Client) Heartbeat() ([32]byte, error) {
	var digest [32]byte
	report, err := c.Call(c.base(Heartbeat))
	if err != nil {
		return digest, err
	}
	if len(report.Payload) != len(digest) {
		return digest, fmt.Errorf("heartbeat: %w", ErrMessageTooShort)
	}
	copy(digest[:], report.Payload)
	return digest, nil
}

func (c *Client) SetVenue(venue Address) error {
	_, err := c.Call(SetVenueMessage{BaseMessage: c.base(SetVenue), Venue: venue})
	return err
}

func (c *Client) Mint(metadata string) (ItemID, error) {
	report, err := c.Call(MintMessage{BaseMessage: c.base(Mint), Metadata: metadata})
	if err != nil {
		return 0, err
	}
	return DecodeItem(report.Payload)
}

func (c *Client) Enable(item ItemID) error {
	_, err := c.Call(EnableMessage{BaseMessage: c.base(Enable), Item: item})
	return err
}

func (c *Client) ListForTrade(item ItemID, owner Address, amount, unitPrice uint64) error {
	_, err := c.Call(ListMessage{
		BaseMessage: c.base(ListForTrade),
		Item:        item,
		Owner:       owner,
		Amount:      amount,
		UnitPrice:   unitPrice,
	})
	return err
}

func (c *Client) Delist(item ItemID, owner Address, amount uint64) error {
	_, err := c.Call(DelistMessage{
		BaseMessage: c.base(Delist),
		Item:        item,
		Owner:       owner,
		Amount:      amount,
	})
	return err
}

func (c *Client) UpdatePrice(item ItemID, unitPrice, amount uint64) (PriceStats, error) {
	report, err := c.Call(UpdatePriceMessage{
		BaseMessage: c.base(UpdatePrice),
		Item:        item,
		UnitPrice:   unitPrice,
		Amount:      amount,
	})
	if err != nil {
		return PriceStats{}, err
	}
	return DecodeStats(report.Payload)
}

// ExecuteTrade returns the valuation of item after the trade.
func (c *Client) ExecuteTrade(from, to Address, item ItemID, unitPrice, amount uint64) (PriceStats, error) {
	report, err := c.Call(TradeMessage{
		BaseMessage: c.base(ExecuteTrade),
		From:        from,
		To:          to,
		Item:        item,
		UnitPrice:   unitPrice,
		Amount:      amount,
	})
	if err != nil {
		return PriceStats{}, err
	}
	_, stats, err := DecodeTrade(report.Payload)
	return stats, err
}

func (c *Client) Balance(item ItemID, owner Address) (Balance, error) {
	report, err := c.Call(QueryMessage{BaseMessage: c.base(QueryBalance), Item: item, Owner: owner})
	if err != nil {
		return Balance{}, err
	}
	return DecodeBalance(report.Payload)
}

func (c *Client) Price(item ItemID) (PriceStats, error) {
	report, err := c.Call(QueryMessage{BaseMessage: c.base(QueryPrice), Item: item})
	if err != nil {
		return PriceStats{}, err
	}
	return DecodeStats(report.Payload)
}

func (c *Client) Owners(item ItemID) ([]Address, error) {
	report, err := c.Call(QueryMessage{BaseMessage: c.base(QueryOwners), Item: item})
	if err != nil {
		return nil, err
	}
	return DecodeAddresses(report.Payload)
}

func (c *Client) Items(owner Address) ([]ItemID, error) {
	report, err := c.Call(QueryMessage{BaseMessage: c.base(QueryItems), Owner: owner})
	if err != nil {
		return nil, err
	}
	return DecodeItems(report.Payload)
}
