package rtrpdu

import "encoding/binary"

// appendFixedWidth appends v to dst as exactly width bytes, big-endian,
// unsigned: we zero-pad on the left when v's minimal magnitude is
// narrower than width, and drop the surplus high-order bytes (keep the
// low-order width bytes) when it is wider. For every field this codec actually
// encodes (2-byte header-short, 4-byte lengths/ASNs/serials) the value
// always fits, so the wide branch only matters for malformed callers and
// is exercised by tests, not by normal traffic.
func appendFixedWidth(dst []byte, v uint64, width int) []byte {
	var full [8]byte
	binary.BigEndian.PutUint64(full[:], v)

	// trim leading zero bytes to find the minimal magnitude, but always
	// keep at least one byte (so v==0 encodes as a run of zero bytes,
	// not nothing).
	start := 0
	for start < len(full)-1 && full[start] == 0 {
		start++
	}
	minimal := full[start:]

	out := make([]byte, width)
	if len(minimal) >= width {
		copy(out, minimal[len(minimal)-width:])
	} else {
		copy(out[width-len(minimal):], minimal)
	}
	return append(dst, out...)
}
