//go:build unix

package utils

import (
	"errors"

	"golang.org/x/sys/unix"
)

func setSocketOptions(fd uintptr) error {
	s := int(fd)
	return errors.Join(
		unix.SetsockoptInt(s, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1),
		unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_RCVBUF, SocketBufferSize),
		unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_SNDBUF, SocketBufferSize),
	)
}
