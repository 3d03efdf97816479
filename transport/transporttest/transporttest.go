// Package transporttest is an in-memory transport.Adapter used by the
// recovery supervisor / producer / consumer specs to simulate peer
// closes and broker-side settlement deterministically, without a live
// broker. The teacher's own retrieved source ships no tests
// exercising runWatcher against a real broker either; a fake transport
// is how this module's ginkgo/gomega suites drive "peer close" and
// "reconnect" scenarios.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"github.com/sorenbk/artemis-go/transport"
)

// ErrLinkClosed is returned by Send when the fake link is no longer
// open, mirroring a detached-link send attempt.
var ErrLinkClosed = errors.New("transporttest: link closed")

// Adapter is a fake transport.Adapter. Each OpenConnection call hands
// back a fresh *Conn; the test can fail the next n dials via
// FailNextDials.
type Adapter struct {
	mu            sync.Mutex
	failNextDials int
	dialErr       error
	conns         []*Conn
}

// New builds an empty fake adapter.
func New() *Adapter { return &Adapter{} }

// FailNextDials makes the next n OpenConnection calls fail with err.
func (a *Adapter) FailNextDials(n int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNextDials = n
	a.dialErr = err
}

// Conns returns every connection ever produced by this adapter, in
// dial order.
func (a *Adapter) Conns() []*Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Conn, len(a.conns))
	copy(out, a.conns)
	return out
}

// OpenConnection implements transport.Adapter.
func (a *Adapter) OpenConnection(ctx context.Context, addr string, containerID string, cancel <-chan struct{}) (transport.Connection, error) {
	a.mu.Lock()
	if a.failNextDials > 0 {
		a.failNextDials--
		err := a.dialErr
		a.mu.Unlock()
		return nil, err
	}
	a.mu.Unlock()

	select {
	case <-cancel:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c := &Conn{
		addr:     addr,
		opened:   true,
		closedCh: make(chan transport.CloseEvent, 1),
	}
	a.mu.Lock()
	a.conns = append(a.conns, c)
	a.mu.Unlock()
	return c, nil
}

// Conn is a fake transport.Connection.
type Conn struct {
	addr string

	mu       sync.Mutex
	opened   bool
	closedCh chan transport.CloseEvent
	sessions []*Session
}

func (c *Conn) IsOpened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

func (c *Conn) OpenSession(ctx context.Context) (transport.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &Session{conn: c}
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *Conn) NotifyClosed() <-chan transport.CloseEvent { return c.closedCh }

// Sessions returns every session opened on this connection, for tests
// that need to reach into a live Sender/Receiver fake.
func (c *Conn) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return nil
	}
	c.opened = false
	select {
	case c.closedCh <- transport.CloseEvent{ClosedByPeer: false}:
	default:
	}
	return nil
}

// SimulatePeerClose marks the connection closed as if the broker
// dropped it, notifying NotifyClosed with ClosedByPeer=true.
func (c *Conn) SimulatePeerClose(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return
	}
	c.opened = false
	for _, s := range c.sessions {
		s.simulateConnLoss(err)
	}
	select {
	case c.closedCh <- transport.CloseEvent{ClosedByPeer: true, Err: err}:
	default:
	}
}

// Session is a fake transport.Session.
type Session struct {
	conn *Conn

	mu        sync.Mutex
	senders   []*Sender
	receivers []*Receiver
}

func (s *Session) OpenSenderLink(ctx context.Context, target string, caps []transport.RoutingCapability, linkName string) (transport.SenderLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snd := &Sender{
		target:   target,
		linkName: linkName,
		closedCh: make(chan transport.CloseEvent, 1),
		open:     true,
	}
	s.senders = append(s.senders, snd)
	return snd, nil
}

func (s *Session) OpenReceiverLink(ctx context.Context, source string, caps []transport.RoutingCapability, linkName string, prefetch uint32) (transport.ReceiverLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Receiver{
		source:   source,
		linkName: linkName,
		closedCh: make(chan transport.CloseEvent, 1),
		deliver:  make(chan transport.Delivery, prefetch+16),
		open:     true,
		credit:   prefetch,
	}
	s.receivers = append(s.receivers, r)
	return r, nil
}

// Receivers returns every receiver link opened on this session, for
// tests that need to push deliveries directly.
func (s *Session) Receivers() []*Receiver {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Receiver, len(s.receivers))
	copy(out, s.receivers)
	return out
}

// Senders returns every sender link opened on this session.
func (s *Session) Senders() []*Sender {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Sender, len(s.senders))
	copy(out, s.senders)
	return out
}

func (s *Session) simulateConnLoss(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snd := range s.senders {
		snd.simulateDetach(err)
	}
	for _, r := range s.receivers {
		r.simulateDetach(err)
	}
}

// Sender is a fake transport.SenderLink. Sends are recorded and, by
// default, immediately accepted; tests can override this by setting
// SendHook.
type Sender struct {
	target   string
	linkName string

	mu       sync.Mutex
	open     bool
	closedCh chan transport.CloseEvent
	Sent     []interface{}
	SendHook func(body interface{}, meta transport.DeliveryMetadata) (transport.Disposition, error)
}

func (s *Sender) Send(ctx context.Context, body interface{}, meta transport.DeliveryMetadata) (transport.Disposition, error) {
	s.mu.Lock()
	open := s.open
	hook := s.SendHook
	s.mu.Unlock()
	if !open {
		return transport.Disposition{}, ErrLinkClosed
	}
	s.mu.Lock()
	s.Sent = append(s.Sent, body)
	s.mu.Unlock()
	if hook != nil {
		return hook(body, meta)
	}
	return transport.Disposition{Accepted: true}, nil
}

func (s *Sender) Close(ctx context.Context, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *Sender) NotifyClosed() <-chan transport.CloseEvent { return s.closedCh }

func (s *Sender) simulateDetach(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return
	}
	s.open = false
	select {
	case s.closedCh <- transport.CloseEvent{ClosedByPeer: true, Err: err}:
	default:
	}
}

// Receiver is a fake transport.ReceiverLink.
type Receiver struct {
	source   string
	linkName string

	mu       sync.Mutex
	open     bool
	credit   uint32
	closedCh chan transport.CloseEvent
	deliver  chan transport.Delivery
	accepted [][]byte
	rejected [][]byte
}

// Push injects a delivery into the link, as if the broker had sent it
// (subject to available credit).
func (r *Receiver) Push(tag []byte, body interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open || r.credit == 0 {
		return false
	}
	r.credit--
	r.deliver <- transport.Delivery{Tag: tag, Body: body}
	return true
}

func (r *Receiver) Deliveries() <-chan transport.Delivery { return r.deliver }

func (r *Receiver) Accept(ctx context.Context, tag []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, tag)
	return nil
}

func (r *Receiver) Reject(ctx context.Context, tag []byte, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, tag)
	return nil
}

func (r *Receiver) AddCredit(n uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credit += n
	return nil
}

func (r *Receiver) Close(ctx context.Context, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	return nil
}

func (r *Receiver) NotifyClosed() <-chan transport.CloseEvent { return r.closedCh }

func (r *Receiver) simulateDetach(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return
	}
	r.open = false
	select {
	case r.closedCh <- transport.CloseEvent{ClosedByPeer: true, Err: err}:
	default:
	}
}
