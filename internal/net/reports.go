package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	. "fractal/internal/common"

	"github.com/google/uuid"
)

type ReportMessageType uint8

const (
	AckReport ReportMessageType = iota
	ErrorReport
	EventReport
)

// ErrorCode carries an error kind over the wire so the client can match it
// with errors.Is.
type ErrorCode uint8

const (
	CodeUnknown ErrorCode = iota
	CodeInvalidItem
	CodeItemNotFound
	CodeUnauthorized
	CodeInvalidAddress
	CodeInvalidAmount
	CodeSelfTrade
	CodeOverflow
	CodeInsufficientBalance
	CodeInsufficientUnlisted
	CodeInsufficientListed
	CodeAlreadyListed
	CodeAlreadyInitialized
	CodeAlreadyEnabled
)

// Most specific kinds first, since refined errors also match their parents.
var errorCodes = []struct {
	code ErrorCode
	err  error
}{
	{CodeAlreadyListed, ErrAlreadyListed},
	{CodeAlreadyEnabled, ErrAlreadyEnabled},
	{CodeInsufficientUnlisted, ErrInsufficientUnlisted},
	{CodeInsufficientListed, ErrInsufficientListed},
	{CodeInsufficientBalance, ErrInsufficientBalance},
	{CodeAlreadyInitialized, ErrAlreadyInitialized},
	{CodeInvalidItem, ErrInvalidItem},
	{CodeItemNotFound, ErrItemNotFound},
	{CodeUnauthorized, ErrUnauthorized},
	{CodeInvalidAddress, ErrInvalidAddress},
	{CodeInvalidAmount, ErrInvalidAmount},
	{CodeSelfTrade, ErrSelfTrade},
	{CodeOverflow, ErrOverflow},
}

func codeOf(err error) ErrorCode {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

func errorOf(code ErrorCode) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// Report is the reply to a request, or an event pushed to every session.
type Report struct {
	MessageType ReportMessageType // 1 byte
	Request     MessageType       // 2 bytes
	Code        ErrorCode         // 1 byte
	Err         string            // 2 byte length + n bytes
	Payload     []byte            // 4 byte length + n bytes
}

const reportFixedHeaderLen = 1 + 2 + 1 + 2 + 4

// Error rebuilds the remote error. Its text is the server's, and errors.Is
// matches the local kind named by Code.
func (r Report) Error() error {
	if r.MessageType != ErrorReport {
		return nil
	}
	return &RemoteError{Msg: r.Err, Kind: errorOf(r.Code)}
}

type RemoteError struct {
	Msg  string
	Kind error // nil for CodeUnknown
}

func (e *RemoteError) Error() string { return e.Msg }
func (e *RemoteError) Unwrap() error { return e.Kind }

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() []byte {
	errStr := r.Err
	if len(errStr) > maxMetadataLen {
		errStr = errStr[:maxMetadataLen]
	}
	buf := make([]byte, 0, reportFixedHeaderLen+len(errStr)+len(r.Payload))
	buf = append(buf, byte(r.MessageType))
	buf = binary.BigEndian.AppendUint16(buf, uint16(r.Request))
	buf = append(buf, byte(r.Code))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(errStr)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.Payload)))
	buf = append(buf, errStr...)
	return append(buf, r.Payload...)
}

// DecodeReport parses a report body.
func DecodeReport(msg []byte) (Report, error) {
	r := reader{buf: msg}
	var report Report
	if kind := r.bytes(1); kind != nil {
		report.MessageType = ReportMessageType(kind[0])
	}
	report.Request = MessageType(r.uint16())
	if code := r.bytes(1); code != nil {
		report.Code = ErrorCode(code[0])
	}
	errLen := r.uint16()
	payloadLen := r.uint32()
	report.Err = string(r.bytes(int(errLen)))
	report.Payload = r.bytes(int(payloadLen))
	if r.err != nil {
		return Report{}, fmt.Errorf("report: %w", r.err)
	}
	return report, nil
}

func ackReport(request MessageType, payload []byte) Report {
	return Report{MessageType: AckReport, Request: request, Payload: payload}
}

func errorReport(request MessageType, err error) Report {
	return Report{
		MessageType: ErrorReport,
		Request:     request,
		Code:        codeOf(err),
		Err:         err.Error(),
	}
}

// --- Payloads ---------------------------------------------------------------

func appendStats(buf []byte, stats PriceStats) []byte {
	total := stats.TotalPrice.Bytes32()
	average := stats.AveragePrice.Bytes32()
	buf = append(buf, total[:]...)
	return append(buf, average[:]...)
}

func (r *reader) stats() PriceStats {
	var stats PriceStats
	if b := r.bytes(32); b != nil {
		stats.TotalPrice.SetBytes32(b)
	}
	if b := r.bytes(32); b != nil {
		stats.AveragePrice.SetBytes32(b)
	}
	return stats
}

func EncodeItem(item ItemID) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(item))
}

func DecodeItem(payload []byte) (ItemID, error) {
	r := reader{buf: payload}
	item := ItemID(r.uint64())
	return item, r.err
}

func EncodeStats(stats PriceStats) []byte {
	return appendStats(nil, stats)
}

func DecodeStats(payload []byte) (PriceStats, error) {
	r := reader{buf: payload}
	stats := r.stats()
	return stats, r.err
}

func EncodeBalance(b Balance) []byte {
	buf := binary.BigEndian.AppendUint64(nil, b.Owned)
	buf = binary.BigEndian.AppendUint64(buf, b.Listed)
	return binary.BigEndian.AppendUint64(buf, b.Unlisted)
}

func DecodeBalance(payload []byte) (Balance, error) {
	r := reader{buf: payload}
	b := Balance{Owned: r.uint64(), Listed: r.uint64(), Unlisted: r.uint64()}
	return b, r.err
}

func EncodeAddresses(addrs []Address) []byte {
	buf := binary.BigEndian.AppendUint32(nil, uint32(len(addrs)))
	for _, a := range addrs {
		buf = append(buf, a[:]...)
	}
	return buf
}

func DecodeAddresses(payload []byte) ([]Address, error) {
	r := reader{buf: payload}
	n := r.uint32()
	addrs := make([]Address, 0, min(n, uint32(len(payload)/addressLen)))
	for range n {
		addrs = append(addrs, r.address())
	}
	return addrs, r.err
}

func EncodeItems(items []ItemID) []byte {
	buf := binary.BigEndian.AppendUint32(nil, uint32(len(items)))
	for _, item := range items {
		buf = binary.BigEndian.AppendUint64(buf, uint64(item))
	}
	return buf
}

func DecodeItems(payload []byte) ([]ItemID, error) {
	r := reader{buf: payload}
	n := r.uint32()
	items := make([]ItemID, 0, min(n, uint32(len(payload)/8)))
	for range n {
		items = append(items, ItemID(r.uint64()))
	}
	return items, r.err
}

func EncodeTrade(trade Trade) []byte {
	buf := append([]byte(nil), trade.ID[:]...)
	return appendStats(buf, trade.Stats)
}

// DecodeTrade returns the trade id and the item valuation after it.
func DecodeTrade(payload []byte) (uuid.UUID, PriceStats, error) {
	r := reader{buf: payload}
	var id uuid.UUID
	copy(id[:], r.bytes(16))
	stats := r.stats()
	return id, stats, r.err
}

func EncodeEvent(e Event) []byte {
	buf := []byte{byte(e.Kind)}
	buf = append(buf, e.ID[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.Timestamp.UnixNano()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.Item))
	buf = append(buf, e.From[:]...)
	buf = append(buf, e.To[:]...)
	buf = binary.BigEndian.AppendUint64(buf, e.Amount)
	buf = binary.BigEndian.AppendUint64(buf, e.UnitPrice)
	return appendStats(buf, e.Stats)
}

func DecodeEvent(payload []byte) (Event, error) {
	r := reader{buf: payload}
	var e Event
	if kind := r.bytes(1); kind != nil {
		e.Kind = EventKind(kind[0])
	}
	copy(e.ID[:], r.bytes(16))
	e.Timestamp = time.Unix(0, int64(r.uint64()))
	e.Item = ItemID(r.uint64())
	e.From = r.address()
	e.To = r.address()
	e.Amount = r.uint64()
	e.UnitPrice = r.uint64()
	e.Stats = r.stats()
	return e, r.err
}

// --- Framing ----------------------------------------------------------------

// WriteFrame writes a 4 byte big-endian length followed by body.
func WriteFrame(w io.Writer, body []byte) error {
	frame := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(body)), uint32(len(body)))
	frame = append(frame, body...)
	_, err := w.Write(frame)
	return err
}

// ReadFrame reads one length-prefixed body of at most maxSize bytes.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if int64(n) > int64(maxSize) {
		return nil, fmt.Errorf("frame of %d bytes exceeds %d", n, maxSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
