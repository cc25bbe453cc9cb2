package net

import (
	"encoding/binary"
	"errors"
	"fmt"

	. "fractal/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrMessageTooLong     = errors.New("message has trailing bytes")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	SetVenue
	Mint
	Enable
	ListForTrade
	Delist
	UpdatePrice
	ExecuteTrade
	QueryBalance
	QueryPrice
	QueryOwners
	QueryItems
)

var messageTypeName = map[MessageType]string{
	Heartbeat:    "heartbeat",
	SetVenue:     "set-venue",
	Mint:         "mint",
	Enable:       "enable",
	ListForTrade: "list",
	Delist:       "delist",
	UpdatePrice:  "update-price",
	ExecuteTrade: "trade",
	QueryBalance: "balance",
	QueryPrice:   "price",
	QueryOwners:  "owners",
	QueryItems:   "items",
}

func (m MessageType) String() string {
	if name, ok := messageTypeName[m]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint16(m))
}

// Message is a decoded request. Every request names its caller, which the
// engine checks against the admin and venue addresses.
type Message interface {
	GetType() MessageType
	GetCaller() Address
	appendBody(buf []byte) []byte
}

// Message format constants
const (
	BaseMessageHeaderLen = 2 + 20
	addressLen           = 20
	maxMetadataLen       = 1<<16 - 1
)

// Generic message header.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
	Caller Address     // 20 bytes
}

func (m BaseMessage) GetType() MessageType { return m.TypeOf }
func (m BaseMessage) GetCaller() Address { return m.Caller }
func (m BaseMessage) appendBody(buf []byte) []byte {
	return buf
}

type SetVenueMessage struct {
	BaseMessage
	Venue Address // 20 bytes
}

func (m SetVenueMessage) appendBody(buf []byte) []byte {
	return append(buf, m.Venue[:]...)
}

type MintMessage struct {
	BaseMessage
	Metadata string // 2 byte length + n bytes
}

func (m MintMessage) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Metadata)))
	return append(buf, m.Metadata...)
}

type EnableMessage struct {
	BaseMessage
	Item ItemID // 8 bytes
}

func (m EnableMessage) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(m.Item))
}

type ListMessage struct {
	BaseMessage
	Item      ItemID  // 8 bytes
	Owner     Address // 20 bytes
	Amount    uint64  // 8 bytes
	UnitPrice uint64  // 8 bytes
}

func (m ListMessage) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.Item))
	buf = append(buf, m.Owner[:]...)
	buf = binary.BigEndian.AppendUint64(buf, m.Amount)
	return binary.BigEndian.AppendUint64(buf, m.UnitPrice)
}

type DelistMessage struct {
	BaseMessage
	Item   ItemID  // 8 bytes
	Owner  Address // 20 bytes
	Amount uint64  // 8 bytes
}

func (m DelistMessage) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.Item))
	buf = append(buf, m.Owner[:]...)
	return binary.BigEndian.AppendUint64(buf, m.Amount)
}

type UpdatePriceMessage struct {
	BaseMessage
	Item      ItemID // 8 bytes
	UnitPrice uint64 // 8 bytes
	Amount    uint64 // 8 bytes
}

func (m UpdatePriceMessage) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.Item))
	buf = binary.BigEndian.AppendUint64(buf, m.UnitPrice)
	return binary.BigEndian.AppendUint64(buf, m.Amount)
}

type TradeMessage struct {
	BaseMessage
	From      Address // 20 bytes
	To        Address // 20 bytes
	Item      ItemID  // 8 bytes
	UnitPrice uint64  // 8 bytes
	Amount    uint64  // 8 bytes
}

func (m TradeMessage) appendBody(buf []byte) []byte {
	buf = append(buf, m.From[:]...)
	buf = append(buf, m.To[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.Item))
	buf = binary.BigEndian.AppendUint64(buf, m.UnitPrice)
	return binary.BigEndian.AppendUint64(buf, m.Amount)
}

// QueryMessage serves the four read-only requests. Item is sent for
// QueryBalance, QueryPrice and QueryOwners; Owner for QueryBalance and
// QueryItems.
type QueryMessage struct {
	BaseMessage
	Item  ItemID
	Owner Address
}

func (m QueryMessage) appendBody(buf []byte) []byte {
	switch m.TypeOf {
	case QueryBalance:
		buf = binary.BigEndian.AppendUint64(buf, uint64(m.Item))
		buf = append(buf, m.Owner[:]...)
	case QueryPrice, QueryOwners:
		buf = binary.BigEndian.AppendUint64(buf, uint64(m.Item))
	case QueryItems:
		buf = append(buf, m.Owner[:]...)
	}
	return buf
}

// EncodeMessage serializes a request body, without the frame length.
func EncodeMessage(m Message) ([]byte, error) {
	if mint, ok := m.(MintMessage); ok && len(mint.Metadata) > maxMetadataLen {
		return nil, fmt.Errorf("metadata of %d bytes exceeds %d", len(mint.Metadata), maxMetadataLen)
	}
	buf := make([]byte, 0, 128)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.GetType()))
	caller := m.GetCaller()
	buf = append(buf, caller[:]...)
	return m.appendBody(buf), nil
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return nil, fmt.Errorf("%w: header", ErrMessageTooShort)
	}

	r := reader{buf: msg}
	base := BaseMessage{
		TypeOf: MessageType(r.uint16()),
		Caller: r.address(),
	}

	var m Message
	switch base.TypeOf {
	case Heartbeat:
		m = base
	case SetVenue:
		m = SetVenueMessage{BaseMessage: base, Venue: r.address()}
	case Mint:
		n := r.uint16()
		m = MintMessage{BaseMessage: base, Metadata: string(r.bytes(int(n)))}
	case Enable:
		m = EnableMessage{BaseMessage: base, Item: ItemID(r.uint64())}
	case ListForTrade:
		m = ListMessage{
			BaseMessage: base,
			Item:        ItemID(r.uint64()),
			Owner:       r.address(),
			Amount:      r.uint64(),
			UnitPrice:   r.uint64(),
		}
	case Delist:
		m = DelistMessage{
			BaseMessage: base,
			Item:        ItemID(r.uint64()),
			Owner:       r.address(),
			Amount:      r.uint64(),
		}
	case UpdatePrice:
		m = UpdatePriceMessage{
			BaseMessage: base,
			Item:        ItemID(r.uint64()),
			UnitPrice:   r.uint64(),
			Amount:      r.uint64(),
		}
	case ExecuteTrade:
		m = TradeMessage{
			BaseMessage: base,
			From:        r.address(),
			To:          r.address(),
			Item:        ItemID(r.uint64()),
			UnitPrice:   r.uint64(),
			Amount:      r.uint64(),
		}
	case QueryBalance:
		m = QueryMessage{BaseMessage: base, Item: ItemID(r.uint64()), Owner: r.address()}
	case QueryPrice, QueryOwners:
		m = QueryMessage{BaseMessage: base, Item: ItemID(r.uint64())}
	case QueryItems:
		m = QueryMessage{BaseMessage: base, Owner: r.address()}
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidMessageType, base.TypeOf)
	}

	if r.err != nil {
		return nil, fmt.Errorf("%s: %w", base.TypeOf, r.err)
	}
	if len(r.buf) > 0 {
		return nil, fmt.Errorf("%s: %w: %d", base.TypeOf, ErrMessageTooLong, len(r.buf))
	}
	return m, nil
}

// reader consumes big-endian fields. After the first short read every call
// returns zero values and err is set.
type reader struct {
	buf []byte
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = ErrMessageTooShort
		r.buf = nil
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) uint16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) uint64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) address() Address {
	var a Address
	copy(a[:], r.bytes(addressLen))
	return a
}
