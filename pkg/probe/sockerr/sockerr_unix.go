//go:build !windows

package sockerr

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isRefused(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED)
}

func isUnreachable(err error) bool {
	return errors.Is(err, unix.EHOSTUNREACH) || errors.Is(err, unix.ENETUNREACH)
}
