//go:build !linux

package rtrserver

import (
	"fmt"
	"syscall"
)

// tcpMD5 is unsupported outside Linux; a configured password fails
// loudly at listener setup rather than silently serving without it.
func tcpMD5(password string) func(network, address string, c syscall.RawConn) error {
	if len(password) == 0 {
		return nil
	}

	return func(network, address string, c syscall.RawConn) error {
		return fmt.Errorf("rtrserver: TCP-MD5 not supported on this platform")
	}
}
