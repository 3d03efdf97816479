// Package transport defines the minimal boundary this module depends on
// to speak AMQP 1.0: opening a connection/session, opening sender and
// receiver links, and observing close events. Concrete implementations
// live in transport/amqpadapter (backed by github.com/Azure/go-amqp)
// and transport/transporttest (an in-memory fake used by the recovery
// supervisor/producer/consumer test suites).
package transport

import (
	"context"
	"time"
)

// RoutingCapability is the Artemis routing-type capability advertised
// on a link's source/target: anycast ("queue") or multicast ("topic").
type RoutingCapability string

const (
	RoutingQueue RoutingCapability = "queue"
	RoutingTopic RoutingCapability = "topic"
)

// Delivery is an inbound message received from a ReceiverLink's
// Deliveries channel, carrying enough identity for Accept/Reject.
type Delivery struct {
	Tag  []byte
	Body interface{}
}

// Disposition is the terminal outcome of an outbound send.
type Disposition struct {
	Accepted bool
	Error    error
}

// DeliveryMetadata carries the per-message properties a producer
// attaches at send time (spec.md §6's per-producer Priority/TTL
// settings), so they cross the transport boundary alongside the body
// instead of being dropped at the adapter edge.
type DeliveryMetadata struct {
	Priority *uint8
	TTL      *time.Duration
}

// Adapter opens connections against a single endpoint address. It is
// the top-level factory the recovery supervisor calls under the
// recovery policy.
type Adapter interface {
	// OpenConnection dials addr and returns an open Connection, or an
	// error if the dial/handshake fails. cancel aborts an in-flight
	// attempt.
	OpenConnection(ctx context.Context, addr string, containerID string, cancel <-chan struct{}) (Connection, error)
}

// Connection is a single transport-level connection to a broker.
type Connection interface {
	// IsOpened reports whether the underlying transport considers this
	// connection open. It reflects transport state directly: it
	// reports false once the peer or transport has closed the
	// connection, or after Close.
	IsOpened() bool
	// OpenSession opens a new multiplexed session over this connection.
	OpenSession(ctx context.Context) (Session, error)
	// NotifyClosed returns a channel that receives once when the peer
	// or transport closes this connection. ClosedByPeer distinguishes
	// a remote close from a local Close call; Err is nil on a clean
	// close.
	NotifyClosed() <-chan CloseEvent
	// Close tears the connection down locally.
	Close() error
}

// CloseEvent describes why a Connection's NotifyClosed fired.
type CloseEvent struct {
	ClosedByPeer bool
	Err          error
}

// Session owns sender/receiver links multiplexed over one Connection.
type Session interface {
	OpenSenderLink(ctx context.Context, target string, caps []RoutingCapability, linkName string) (SenderLink, error)
	OpenReceiverLink(ctx context.Context, source string, caps []RoutingCapability, linkName string, prefetch uint32) (ReceiverLink, error)
}

// SenderLink is a single uni-directional outbound AMQP link.
type SenderLink interface {
	// Send transmits body, carrying meta's priority/TTL if set, and
	// blocks until the broker settles the delivery (or returns
	// immediately for a best-effort link).
	Send(ctx context.Context, body interface{}, meta DeliveryMetadata) (Disposition, error)
	// Close detaches the link, optionally carrying an error.
	Close(ctx context.Context, err error) error
	// NotifyClosed fires once when the link detaches, whether locally
	// or remotely initiated.
	NotifyClosed() <-chan CloseEvent
}

// ReceiverLink is a single uni-directional inbound AMQP link.
type ReceiverLink interface {
	// Deliveries returns the channel of inbound deliveries. The
	// implementation stops sending once credit is exhausted.
	Deliveries() <-chan Delivery
	// Accept settles tag as accepted.
	Accept(ctx context.Context, tag []byte) error
	// Reject settles tag as rejected, carrying cause.
	Reject(ctx context.Context, tag []byte, cause error) error
	// AddCredit grants n additional deliveries of credit to the link.
	AddCredit(n uint32) error
	// Close detaches the link, optionally carrying an error.
	Close(ctx context.Context, err error) error
	// NotifyClosed fires once when the link detaches.
	NotifyClosed() <-chan CloseEvent
}
