package client

import (
	"errors"
	"net"
)

var (
	// ErrUnavailable indicates the hub could not be reached.
	ErrUnavailable = errors.New("hub unavailable")

	// ErrClosed is returned by Connect on a closed client.
	ErrClosed = errors.New("client closed")
)

func isConnectionError(err error) bool {
	var netErr *net.OpError
	return errors.As(err, &netErr)
}
