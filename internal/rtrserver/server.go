// Package rtrserver serves the encoded RTR protocol (internal/rtrpdu) to
// routers over TCP. The codec in internal/rtrpdu assumes a caller drives
// PDU exchange; this package is that caller on the cache side: it
// accepts connections, answers ResetQuery with the current VRP set, and
// supports RFC 2385 TCP-MD5 sessions the same way a BGP listener would.
package rtrserver

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"

	"github.com/yaoyj11/rpki-validator/internal/rtrpdu"
)

// Snapshot is one point-in-time view of the RTR cache: a session nonce,
// a serial number, and the full set of prefix PDUs a full ResetQuery
// reply must carry.
type Snapshot struct {
	Nonce    uint16
	Serial   uint32
	Prefixes []rtrpdu.PDU
}

// Cache is the source of truth the server asks for its current snapshot.
// Callers typically back this with the walker's output, translated into
// IPv4Prefix/IPv6Prefix PDUs.
type Cache interface {
	Snapshot() Snapshot
}

// Server accepts RTR sessions on one TCP listener and serves whatever
// Cache currently reports.
type Server struct {
	Addr string
	MD5  string // RFC 2385 TCP-MD5 password, empty disables it

	Cache Cache
	Log   zerolog.Logger

	listener net.Listener
}

// ListenAndServe binds Addr (applying MD5 if set) and serves sessions
// until ctx is cancelled or a fatal listener error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	if s.MD5 != "" {
		lc.Control = tcpMD5(s.MD5)
	}

	l, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("rtrserver: listen %s: %w", s.Addr, err)
	}
	s.listener = l
	s.Log.Info().Str("addr", l.Addr().String()).Bool("md5", s.MD5 != "").Msg("rtrserver: listening")

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rtrserver: accept: %w", err)
		}
		go s.serve(ctx, conn)
	}
}

// serve runs one client session to completion. Every inbound PDU is
// decoded with rtrpdu.Decode; malformed input gets an Error PDU back and
// the connection is closed, per the fatal/non-fatal split of the error
// catalogue.
func (s *Server) serve(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log := s.Log.With().Str("remote", remote).Logger()
	log.Info().Msg("rtrserver: session started")
	defer func() {
		conn.Close()
		log.Info().Msg("rtrserver: session ended")
	}()

	header := make([]byte, 8)
	for {
		if _, err := readFull(conn, header); err != nil {
			log.Debug().Err(err).Msg("rtrserver: read header")
			return
		}

		length := be32(header[4:8])
		if length < 8 {
			s.sendError(conn, rtrpdu.CorruptData, header, "length field below header size")
			return
		}

		body := make([]byte, length)
		copy(body, header)
		if length > 8 {
			if _, err := readFull(conn, body[8:]); err != nil {
				log.Debug().Err(err).Msg("rtrserver: read body")
				return
			}
		}

		pdu, badData := rtrpdu.Decode(body)
		if badData != nil {
			log.Warn().Err(badData).Msg("rtrserver: bad PDU")
			s.sendError(conn, badData.Code, badData.RawBytes, badData.Error())
			if badData.Code.IsFatal() {
				return
			}
			continue
		}

		switch pdu.(type) {
		case rtrpdu.ResetQuery:
			if err := s.sendSnapshot(conn); err != nil {
				log.Debug().Err(err).Msg("rtrserver: send snapshot")
				return
			}
		default:
			// this server answers ResetQuery only; any other decoded PDU
			// (including prefix withdrawals) is logged and ignored, and
			// incremental-update sessions are not supported.
			log.Debug().Str("pdu_type", pdu.Type().String()).Msg("rtrserver: unexpected PDU, ignoring")
		}
	}
}

func (s *Server) sendSnapshot(conn net.Conn) error {
	snap := s.Cache.Snapshot()

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	bb.B = append(bb.B, rtrpdu.Encode(rtrpdu.CacheResponse{Nonce: snap.Nonce})...)
	for _, p := range snap.Prefixes {
		bb.B = append(bb.B, rtrpdu.Encode(p)...)
	}
	bb.B = append(bb.B, rtrpdu.Encode(rtrpdu.EndOfData{Nonce: snap.Nonce, Serial: snap.Serial})...)

	_, err := conn.Write(bb.B)
	return err
}

func (s *Server) sendError(conn net.Conn, code rtrpdu.ErrorCode, causing []byte, text string) {
	pdu := rtrpdu.Error{Code: code, CausingPDU: causing, ErrorText: text}
	conn.Write(rtrpdu.Encode(pdu))
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// NewNonce derives a fresh RTR session nonce. RTR nonces are only
// required to differ across cache restarts, so 16 bits taken from the
// first two bytes of a random UUID are more than sufficient entropy.
func NewNonce() uint16 {
	id := uuid.New()
	return uint16(id[0])<<8 | uint16(id[1])
}
