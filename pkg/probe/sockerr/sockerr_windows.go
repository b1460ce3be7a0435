//go:build windows

package sockerr

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

const (
	wsaeNetUnreach  = syscall.Errno(10051)
	wsaeConnRefused = syscall.Errno(10061)
	wsaeHostUnreach = syscall.Errno(10065)
)

// windows reports an ICMP port unreachable on a UDP socket as a connection reset
func isRefused(err error) bool {
	return errors.Is(err, wsaeConnRefused) || errors.Is(err, windows.WSAECONNRESET)
}

func isUnreachable(err error) bool {
	return errors.Is(err, wsaeHostUnreach) || errors.Is(err, wsaeNetUnreach)
}
