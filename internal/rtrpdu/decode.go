package rtrpdu

import (
	"encoding/binary"
	"net/netip"
)

// reader is a cursor over buf that turns any short read into a
// CorruptData BadData: any read past end of buffer yields
// BadData(CorruptData).
type reader struct {
	buf []byte
	pos int
}

func (r *reader) bad(code ErrorCode) *BadData {
	return &BadData{Code: code, RawBytes: r.buf}
}

func (r *reader) take(n int) ([]byte, *BadData) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, r.bad(CorruptData)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) byte() (byte, *BadData) {
	b, bad := r.take(1)
	if bad != nil {
		return 0, bad
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, *BadData) {
	b, bad := r.take(2)
	if bad != nil {
		return 0, bad
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, *BadData) {
	b, bad := r.take(4)
	if bad != nil {
		return 0, bad
	}
	return binary.BigEndian.Uint32(b), nil
}

// Decode parses buf as a single RTR PDU. It returns either a decoded PDU
// or a BadData describing why decoding failed — never both.
func Decode(buf []byte) (PDU, *BadData) {
	r := &reader{buf: buf}

	version, bad := r.byte()
	if bad != nil {
		return nil, bad
	}
	if version != ProtocolVersion {
		return nil, r.bad(UnsupportedProtocolVersion)
	}

	typ, bad := r.byte()
	if bad != nil {
		return nil, bad
	}

	headerShort, bad := r.uint16()
	if bad != nil {
		return nil, bad
	}

	length, bad := r.uint32()
	if bad != nil {
		return nil, bad
	}
	if int(length) > len(buf) {
		return nil, r.bad(CorruptData)
	}
	// restrict further reads to the PDU's own declared length, so a
	// trailing buffer (e.g. the start of the next PDU on the same
	// stream) is never consumed as part of this one.
	r.buf = buf[:length]

	switch PDUType(typ) {
	case TypeResetQuery:
		return decodeResetQuery(r)
	case TypeCacheResponse:
		return decodeCacheResponse(r, headerShort)
	case TypeIPv4Prefix:
		return decodeIPv4Prefix(r)
	case TypeIPv6Prefix:
		return decodeIPv6Prefix(r)
	case TypeEndOfData:
		return decodeEndOfData(r, headerShort)
	case TypeError:
		return decodeError(r, headerShort)
	default:
		return nil, r.bad(UnsupportedPduType)
	}
}

func decodeResetQuery(r *reader) (PDU, *BadData) {
	return ResetQuery{}, nil
}

func decodeCacheResponse(r *reader, nonce uint16) (PDU, *BadData) {
	return CacheResponse{Nonce: nonce}, nil
}

func decodeIPv4Prefix(r *reader) (PDU, *BadData) {
	flags, bad := r.byte()
	if bad != nil {
		return nil, bad
	}
	if flags != announceFlag {
		// Withdrawals (flags byte 0) decode into Announce=false rather
		// than being rejected; only flags values other than 0/1 are
		// unsupported.
		if flags != 0 {
			return nil, r.bad(UnsupportedPduType)
		}
	}

	prefixLen, bad := r.byte()
	if bad != nil {
		return nil, bad
	}
	maxLen, bad := r.byte()
	if bad != nil {
		return nil, bad
	}
	if _, bad = r.byte(); bad != nil { // reserved
		return nil, bad
	}
	addrBytes, bad := r.take(4)
	if bad != nil {
		return nil, bad
	}
	asn, bad := r.uint32()
	if bad != nil {
		return nil, bad
	}

	var a4 [4]byte
	copy(a4[:], addrBytes) // unsigned: netip.AddrFrom4 never sign-extends
	return IPv4Prefix{
		Announce:  flags == announceFlag,
		PrefixLen: prefixLen,
		MaxLen:    maxLen,
		Prefix:    netip.AddrFrom4(a4),
		ASN:       asn,
	}, nil
}

func decodeIPv6Prefix(r *reader) (PDU, *BadData) {
	flags, bad := r.byte()
	if bad != nil {
		return nil, bad
	}
	if flags != announceFlag && flags != 0 {
		return nil, r.bad(UnsupportedPduType)
	}

	prefixLen, bad := r.byte()
	if bad != nil {
		return nil, bad
	}
	maxLen, bad := r.byte()
	if bad != nil {
		return nil, bad
	}
	if _, bad = r.byte(); bad != nil { // reserved
		return nil, bad
	}

	// read the 16 prefix bytes sequentially from the current cursor, not
	// from a fixed absolute offset.
	addrBytes, bad := r.take(16)
	if bad != nil {
		return nil, bad
	}
	asn, bad := r.uint32()
	if bad != nil {
		return nil, bad
	}

	var a16 [16]byte
	copy(a16[:], addrBytes) // unsigned: netip.AddrFrom16 never sign-extends
	return IPv6Prefix{
		Announce:  flags == announceFlag,
		PrefixLen: prefixLen,
		MaxLen:    maxLen,
		Prefix:    netip.AddrFrom16(a16),
		ASN:       asn,
	}, nil
}

func decodeEndOfData(r *reader, nonce uint16) (PDU, *BadData) {
	serial, bad := r.uint32()
	if bad != nil {
		return nil, bad
	}
	return EndOfData{Nonce: nonce, Serial: serial}, nil
}

func decodeError(r *reader, code uint16) (PDU, *BadData) {
	causingLen, bad := r.uint32()
	if bad != nil {
		return nil, bad
	}
	causing, bad := r.take(int(causingLen))
	if bad != nil {
		return nil, bad
	}

	textLen, bad := r.uint32()
	if bad != nil {
		return nil, bad
	}
	// read errorText from the current cursor position (right after
	// causingPdu), not from the start of the whole buffer.
	text, bad := r.take(int(textLen))
	if bad != nil {
		return nil, bad
	}

	causingCopy := append([]byte(nil), causing...)
	return Error{
		Code:       ErrorCode(code),
		CausingPDU: causingCopy,
		ErrorText:  string(text),
	}, nil
}
