//go:build linux

package rtrserver

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// tcpMD5 returns a net.ListenConfig.Control function that installs an
// RFC 2385 TCP-MD5 signature key on the listening socket, for routers
// that still require it on their RTR session.
func tcpMD5(password string) func(network, address string, c syscall.RawConn) error {
	if len(password) == 0 {
		return nil
	}

	return func(network, address string, c syscall.RawConn) error {
		var key [80]byte
		l := copy(key[:], password)
		sig := unix.TCPMD5Sig{
			Flags:     unix.TCP_MD5SIG_FLAG_PREFIX,
			Prefixlen: 0,
			Keylen:    uint16(l),
			Key:       key,
		}

		switch network {
		case "tcp6", "udp6", "ip6":
			sig.Addr.Family = unix.AF_INET6
		default:
			sig.Addr.Family = unix.AF_INET
		}

		var err error
		c.Control(func(fd uintptr) {
			b := *(*[unsafe.Sizeof(sig)]byte)(unsafe.Pointer(&sig))
			err = unix.SetsockoptString(int(fd), unix.IPPROTO_TCP, unix.TCP_MD5SIG_EXT, string(b[:]))
		})
		return err
	}
}
