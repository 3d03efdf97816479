// Package amqpadapter is the production transport.Adapter, backed by
// github.com/Azure/go-amqp — the real AMQP 1.0 client library the rest
// of the pack's Artemis/Service Bus tooling is built on
// (other_examples/59624977_Azure-go-amqp__sender.go.go,
// other_examples/19f2a47b_Azure-amqp__sender.go.go).
package amqpadapter

import (
	"context"
	"sync"

	amqp "github.com/Azure/go-amqp"

	"github.com/sorenbk/artemis-go/transport"
)

// Adapter is the transport.Adapter backed by Azure/go-amqp.
type Adapter struct {
	// SASLPlain is set to true by New. OpenConnection does not read
	// it: the dial options it passes carry only the container ID.
	SASLPlain bool
}

// New builds an Azure/go-amqp-backed adapter.
func New() *Adapter {
	return &Adapter{SASLPlain: true}
}

// OpenConnection implements transport.Adapter.
func (a *Adapter) OpenConnection(ctx context.Context, addr string, containerID string, cancel <-chan struct{}) (transport.Connection, error) {
	dialCtx, stop := withCancelChan(ctx, cancel)
	defer stop()

	opts := &amqp.ConnOptions{ContainerID: containerID}
	conn, err := amqp.Dial(dialCtx, addr, opts)
	if err != nil {
		return nil, err
	}
	return &connAdapter{conn: conn}, nil
}

type connAdapter struct {
	conn *amqp.Conn

	mu       sync.Mutex
	closedCh chan transport.CloseEvent
	watching bool
}

func (c *connAdapter) IsOpened() bool {
	select {
	case <-c.conn.Done():
		return false
	default:
		return true
	}
}

func (c *connAdapter) OpenSession(ctx context.Context) (transport.Session, error) {
	sess, err := c.conn.NewSession(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sessionAdapter{sess: sess}, nil
}

func (c *connAdapter) NotifyClosed() <-chan transport.CloseEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closedCh == nil {
		c.closedCh = make(chan transport.CloseEvent, 1)
	}
	if !c.watching {
		c.watching = true
		go func() {
			<-c.conn.Done()
			err := c.conn.Err()
			c.closedCh <- transport.CloseEvent{ClosedByPeer: err != nil, Err: err}
		}()
	}
	return c.closedCh
}

func (c *connAdapter) Close() error {
	return c.conn.Close()
}

type sessionAdapter struct {
	sess *amqp.Session
}

func (s *sessionAdapter) OpenSenderLink(ctx context.Context, target string, caps []transport.RoutingCapability, linkName string) (transport.SenderLink, error) {
	sender, err := s.sess.NewSender(ctx, target, &amqp.SenderOptions{
		Name:               linkName,
		TargetCapabilities: toStrings(caps),
	})
	if err != nil {
		return nil, err
	}
	return &senderAdapter{sender: sender, closedCh: make(chan transport.CloseEvent, 1)}, nil
}

func (s *sessionAdapter) OpenReceiverLink(ctx context.Context, source string, caps []transport.RoutingCapability, linkName string, prefetch uint32) (transport.ReceiverLink, error) {
	receiver, err := s.sess.NewReceiver(ctx, source, &amqp.ReceiverOptions{
		Name:               linkName,
		SourceCapabilities: toStrings(caps),
		Credit:             int32(prefetch),
	})
	if err != nil {
		return nil, err
	}
	r := &receiverAdapter{
		receiver: receiver,
		deliver:  make(chan transport.Delivery, prefetch+1),
		closedCh: make(chan transport.CloseEvent, 1),
		stop:     make(chan struct{}),
	}
	go r.pump()
	return r, nil
}

func toStrings(caps []transport.RoutingCapability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

type senderAdapter struct {
	sender   *amqp.Sender
	mu       sync.Mutex
	closedCh chan transport.CloseEvent
}

func (s *senderAdapter) Send(ctx context.Context, body interface{}, meta transport.DeliveryMetadata) (transport.Disposition, error) {
	msg := encodeMessage(body, meta)
	err := s.sender.Send(ctx, msg, nil)
	if err != nil {
		var linkErr *amqp.LinkError
		if asLinkError(err, &linkErr) {
			s.pushClosed(transport.CloseEvent{ClosedByPeer: true, Err: err})
		}
		return transport.Disposition{Accepted: false, Error: err}, err
	}
	return transport.Disposition{Accepted: true}, nil
}

func (s *senderAdapter) Close(ctx context.Context, _ error) error {
	return s.sender.Close(ctx)
}

func (s *senderAdapter) NotifyClosed() <-chan transport.CloseEvent {
	return s.closedCh
}

func (s *senderAdapter) pushClosed(ev transport.CloseEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.closedCh <- ev:
	default:
	}
}

type receiverAdapter struct {
	receiver *amqp.Receiver
	deliver  chan transport.Delivery
	closedCh chan transport.CloseEvent
	stop     chan struct{}
	stopOnce sync.Once
}

func (r *receiverAdapter) pump() {
	ctx := context.Background()
	for {
		msg, err := r.receiver.Receive(ctx, nil)
		if err != nil {
			var linkErr *amqp.LinkError
			if asLinkError(err, &linkErr) {
				select {
				case r.closedCh <- transport.CloseEvent{ClosedByPeer: true, Err: err}:
				default:
				}
			}
			return
		}
		select {
		case r.deliver <- transport.Delivery{Tag: msg.DeliveryTag, Body: decodeBody(msg)}:
		case <-r.stop:
			return
		}
	}
}

func (r *receiverAdapter) Deliveries() <-chan transport.Delivery { return r.deliver }

func (r *receiverAdapter) Accept(ctx context.Context, tag []byte) error {
	return r.receiver.AcceptMessage(ctx, &amqp.Message{DeliveryTag: tag})
}

func (r *receiverAdapter) Reject(ctx context.Context, tag []byte, cause error) error {
	var amqpErr *amqp.Error
	if cause != nil {
		amqpErr = &amqp.Error{Description: cause.Error()}
	}
	return r.receiver.RejectMessage(ctx, &amqp.Message{DeliveryTag: tag}, amqpErr)
}

func (r *receiverAdapter) AddCredit(n uint32) error {
	return r.receiver.IssueCredit(n)
}

func (r *receiverAdapter) Close(ctx context.Context, _ error) error {
	r.stopOnce.Do(func() { close(r.stop) })
	return r.receiver.Close(ctx)
}

func (r *receiverAdapter) NotifyClosed() <-chan transport.CloseEvent {
	return r.closedCh
}

// asLinkError is a small indirection so a future go-amqp error taxonomy
// change only needs an edit here.
func asLinkError(err error, target **amqp.LinkError) bool {
	le, ok := err.(*amqp.LinkError)
	if ok {
		*target = le
	}
	return ok
}

// encodeMessage builds the outbound *amqp.Message for body, applying
// meta's priority/TTL to the AMQP 1.0 header. []byte and string map to
// the Data section; every other spec body type (Char, the int/uint/
// float widths, bool, UUID, time.Time, typed lists) goes through Value,
// mirroring decodeBody's own Value fallback on receive.
func encodeMessage(body interface{}, meta transport.DeliveryMetadata) *amqp.Message {
	var msg *amqp.Message
	switch b := body.(type) {
	case []byte:
		msg = amqp.NewMessage(b)
	case string:
		msg = amqp.NewMessage([]byte(b))
	default:
		msg = &amqp.Message{Value: body}
	}
	if meta.Priority != nil || meta.TTL != nil {
		if msg.Header == nil {
			msg.Header = new(amqp.MessageHeader)
		}
		if meta.Priority != nil {
			msg.Header.Priority = *meta.Priority
		}
		if meta.TTL != nil {
			msg.Header.TTL = *meta.TTL
		}
	}
	return msg
}

func decodeBody(msg *amqp.Message) interface{} {
	if len(msg.Data) == 1 {
		return msg.Data[0]
	}
	return msg.Value
}

func withCancelChan(parent context.Context, cancel <-chan struct{}) (context.Context, func()) {
	ctx, stop := context.WithCancel(parent)
	if cancel == nil {
		return ctx, stop
	}
	go func() {
		select {
		case <-cancel:
			stop()
		case <-ctx.Done():
		}
	}()
	return ctx, stop
}
