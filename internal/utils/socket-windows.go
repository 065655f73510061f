//go:build windows

package utils

import (
	"errors"

	"golang.org/x/sys/windows"
)

func setSocketOptions(fd uintptr) error {
	h := windows.Handle(fd)
	return errors.Join(
		windows.SetsockoptInt(h, windows.IPPROTO_TCP, windows.TCP_NODELAY, 1),
		windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_RCVBUF, SocketBufferSize),
		windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_SNDBUF, SocketBufferSize),
	)
}
