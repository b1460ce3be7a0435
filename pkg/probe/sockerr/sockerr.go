// Package sockerr classifies socket errors returned by probes.
package sockerr

import (
	"errors"
	"net"
	"os"
)

// IsTimeout reports whether err is a deadline or timeout error
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsRefused reports whether the remote side actively rejected the probe.
// For UDP this is how an ICMP port unreachable surfaces on a connected socket.
func IsRefused(err error) bool {
	if err == nil {
		return false
	}
	return isRefused(err)
}

// IsUnreachable reports whether the host or network was reported unreachable
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	return isUnreachable(err)
}
