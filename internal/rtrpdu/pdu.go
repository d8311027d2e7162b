// Package rtrpdu implements the wire codec for draft-ietf-sidr-rpki-rtr
// (RFC 8210) protocol data units: byte-exact encode and decode for the
// six PDU kinds below, plus the BadData error path the decoder uses when a
// buffer can't be parsed. The codec performs no I/O; it is pure bytes in,
// bytes out.
package rtrpdu

import (
	"net/netip"

	"github.com/valyala/bytebufferpool"
)

// ProtocolVersion is the only protocol version this codec accepts or
// emits.
const ProtocolVersion uint8 = 0

// PDUType identifies the kind of a PDU; it occupies byte offset 1 of
// every 8-byte header.
type PDUType uint8

const (
	TypeResetQuery    PDUType = 2
	TypeCacheResponse PDUType = 3
	TypeIPv4Prefix    PDUType = 4
	TypeIPv6Prefix    PDUType = 6
	TypeEndOfData     PDUType = 7
	TypeError         PDUType = 10
)

func (t PDUType) String() string {
	switch t {
	case TypeResetQuery:
		return "ResetQuery"
	case TypeCacheResponse:
		return "CacheResponse"
	case TypeIPv4Prefix:
		return "IPv4Prefix"
	case TypeIPv6Prefix:
		return "IPv6Prefix"
	case TypeEndOfData:
		return "EndOfData"
	case TypeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// headerLen is the size of the fixed 8-byte header shared by every PDU.
const headerLen = 8

// announceFlag marks a prefix PDU as an announcement; any other flags
// value (in practice 0) marks a withdrawal.
const announceFlag uint8 = 1

// PDU is implemented by every concrete PDU type. AppendTo writes the
// PDU's full wire encoding (header + body) to bb; it never fails, since
// every concrete PDU is constructed already validated.
type PDU interface {
	Type() PDUType
	AppendTo(bb *bytebufferpool.ByteBuffer)
}

// Encode returns p's wire encoding as a freshly allocated byte slice,
// exactly as long as the length field of its header. Prefer AppendTo when encoding many PDUs in
// sequence (e.g. serving a full RTR cache to a router) to avoid an
// allocation per PDU.
func Encode(p PDU) []byte {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	p.AppendTo(bb)
	out := make([]byte, bb.Len())
	copy(out, bb.B)
	return out
}

func putHeader(bb *bytebufferpool.ByteBuffer, typ PDUType, headerShort uint16, length uint32) {
	bb.WriteByte(ProtocolVersion)
	bb.WriteByte(byte(typ))
	bb.Write(appendFixedWidth(nil, uint64(headerShort), 2))
	bb.Write(appendFixedWidth(nil, uint64(length), 4))
}

// ResetQuery has no body; it is sent by a router to request a full cache.
type ResetQuery struct{}

func (ResetQuery) Type() PDUType { return TypeResetQuery }

func (p ResetQuery) AppendTo(bb *bytebufferpool.ByteBuffer) {
	putHeader(bb, TypeResetQuery, 0, headerLen)
}

// CacheResponse has no body; the header-short field carries the session
// nonce.
type CacheResponse struct {
	Nonce uint16
}

func (CacheResponse) Type() PDUType { return TypeCacheResponse }

func (p CacheResponse) AppendTo(bb *bytebufferpool.ByteBuffer) {
	putHeader(bb, TypeCacheResponse, p.Nonce, headerLen)
}

// IPv4Prefix announces or withdraws a VRP for an IPv4 prefix.
// Withdrawal is signaled by Announce=false (flags byte 0).
type IPv4Prefix struct {
	Announce  bool
	PrefixLen uint8
	MaxLen    uint8
	Prefix    netip.Addr // must be a 4-byte address
	ASN       uint32
}

func (IPv4Prefix) Type() PDUType { return TypeIPv4Prefix }

func (p IPv4Prefix) AppendTo(bb *bytebufferpool.ByteBuffer) {
	const length = headerLen + 12
	putHeader(bb, TypeIPv4Prefix, 0, length)
	bb.WriteByte(flagsByte(p.Announce))
	bb.WriteByte(p.PrefixLen)
	bb.WriteByte(p.MaxLen)
	bb.WriteByte(0) // reserved
	addr := p.Prefix.As4()
	bb.Write(addr[:])
	bb.Write(appendFixedWidth(nil, uint64(p.ASN), 4))
}

// IPv6Prefix announces or withdraws a VRP for an IPv6 prefix.
type IPv6Prefix struct {
	Announce  bool
	PrefixLen uint8
	MaxLen    uint8
	Prefix    netip.Addr // must be a 16-byte address
	ASN       uint32
}

func (IPv6Prefix) Type() PDUType { return TypeIPv6Prefix }

func (p IPv6Prefix) AppendTo(bb *bytebufferpool.ByteBuffer) {
	const length = headerLen + 24
	putHeader(bb, TypeIPv6Prefix, 0, length)
	bb.WriteByte(flagsByte(p.Announce))
	bb.WriteByte(p.PrefixLen)
	bb.WriteByte(p.MaxLen)
	bb.WriteByte(0) // reserved
	addr := p.Prefix.As16()
	bb.Write(addr[:])
	bb.Write(appendFixedWidth(nil, uint64(p.ASN), 4))
}

func flagsByte(announce bool) byte {
	if announce {
		return announceFlag
	}
	return 0
}

// EndOfData closes a cache response sequence; Serial is the cache's
// current serial number (0 .. 2^32-1, the full uint32 range).
type EndOfData struct {
	Nonce  uint16
	Serial uint32
}

func (EndOfData) Type() PDUType { return TypeEndOfData }

func (p EndOfData) AppendTo(bb *bytebufferpool.ByteBuffer) {
	const length = headerLen + 4
	putHeader(bb, TypeEndOfData, p.Nonce, length)
	bb.Write(appendFixedWidth(nil, uint64(p.Serial), 4))
}

// Error reports a fatal (or, for NoDataAvailable, non-fatal) protocol
// error, optionally echoing the PDU bytes that caused it and a UTF-8
// diagnostic message.
type Error struct {
	Code       ErrorCode
	CausingPDU []byte
	ErrorText  string
}

func (Error) Type() PDUType { return TypeError }

func (p Error) AppendTo(bb *bytebufferpool.ByteBuffer) {
	text := []byte(p.ErrorText)
	length := uint32(headerLen + 4 + len(p.CausingPDU) + 4 + len(text))
	putHeader(bb, TypeError, uint16(p.Code), length)
	bb.Write(appendFixedWidth(nil, uint64(len(p.CausingPDU)), 4))
	bb.Write(p.CausingPDU)
	bb.Write(appendFixedWidth(nil, uint64(len(text)), 4))
	bb.Write(text)
}
