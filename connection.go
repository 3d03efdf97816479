package artemis

import (
	"context"

	"github.com/sorenbk/artemis-go/transport"
)

// Connection wraps a transport-level session for use by recoverables.
// Per the resolved Open Question in spec.md §9, IsOpened reflects the
// underlying transport's open state directly; an explicit Close latches
// it closed regardless of what the transport reports afterward.
type Connection struct {
	tconn  transport.Connection
	closed bool
}

// NewConnection wraps a freshly opened transport.Connection.
func NewConnection(tconn transport.Connection) *Connection {
	return &Connection{tconn: tconn}
}

// IsOpened reports whether this connection can currently be used.
func (c *Connection) IsOpened() bool {
	if c.closed {
		return false
	}
	return c.tconn.IsOpened()
}

// OpenSession opens a new session over the underlying transport
// connection.
func (c *Connection) OpenSession(ctx context.Context) (transport.Session, error) {
	if c.closed {
		return nil, ErrShutdown
	}
	return c.tconn.OpenSession(ctx)
}

// NotifyClosed exposes the underlying transport connection's close
// event for the supervisor to subscribe to after a successful connect.
func (c *Connection) NotifyClosed() <-chan transport.CloseEvent {
	return c.tconn.NotifyClosed()
}

// Close closes the underlying transport connection and latches this
// wrapper closed: subsequent IsOpened calls return false regardless of
// what the transport itself reports.
func (c *Connection) Close() error {
	c.closed = true
	return c.tconn.Close()
}
