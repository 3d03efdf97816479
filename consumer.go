package artemis

import (
	"context"
	"sync"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"github.com/sorenbk/artemis-go/transport"
)

// CreditRefillMode selects when a consumer replenishes link credit.
type CreditRefillMode int

const (
	// CreditRefillOnSettle grants one credit back each time the
	// application accepts or rejects a message.
	CreditRefillOnSettle CreditRefillMode = iota
	// CreditRefillManual never auto-refills. Consumer has no method
	// to grant credit, so in this mode a link's credit is only
	// restored when RecoverAsync opens a replacement link.
	CreditRefillManual
)

// ConsumerConfig configures an auto-recovering consumer, per spec.md §6.
type ConsumerConfig struct {
	Address          string
	Queue            string
	RoutingType      RoutingType
	PrefetchCount    uint32
	CreditRefillMode CreditRefillMode
}

// Delivery is a message handed to the application by ReceiveAsync,
// carrying enough context for AcceptAsync/RejectAsync to settle it
// against the link instance that actually delivered it (which may no
// longer be the consumer's current link, if the message sat buffered
// across a reconnect).
type Delivery struct {
	Tag  []byte
	Body interface{}

	link transport.ReceiverLink
}

type bufItem struct {
	d    transport.Delivery
	link transport.ReceiverLink
}

// Consumer is the auto-recovering consumer handle described in
// spec.md §4.5. Grounded on the teacher's Consume/ConsumeOnce
// delivery-channel read loop and r.delivery()'s RLock-guarded channel
// swap, generalized into an explicit state machine with a persistent
// prefetch buffer that survives link swaps instead of a single
// package-level ConsumerDeliveryChannel field.
type Consumer struct {
	cfg       ConsumerConfig
	id        string
	requester RecoveryRequester
	logger    *zap.Logger

	mu       sync.Mutex
	state    RecoverableState
	link     transport.ReceiverLink
	linkGen  uint64
	resumeCh chan struct{}
	pumpStop chan struct{}

	buffer chan bufItem
}

// NewConsumer constructs a consumer in the Initializing state.
func NewConsumer(cfg ConsumerConfig, requester RecoveryRequester, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PrefetchCount == 0 {
		cfg.PrefetchCount = 1
	}
	return &Consumer{
		cfg:       cfg,
		id:        "consumer-" + uuid.NewV4().String(),
		requester: requester,
		logger:    logger,
		state:     StateInitializing,
		resumeCh:  make(chan struct{}),
		buffer:    make(chan bufItem, cfg.PrefetchCount),
	}
}

// ID implements Recoverable.
func (c *Consumer) ID() string { return c.id }

// State implements Recoverable.
func (c *Consumer) State() RecoverableState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Suspend implements Recoverable.
func (c *Consumer) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	select {
	case <-c.resumeCh:
		c.resumeCh = make(chan struct{})
	default:
	}
	c.state = StateSuspended
}

// RecoverAsync implements Recoverable: it opens a fresh receiver link
// with credit = prefetch size minus the count of buffered-but-unreceived
// messages, per spec.md §4.5.
func (c *Consumer) RecoverAsync(ctx context.Context, conn *Connection, cancel <-chan struct{}) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateRecovering
	if c.pumpStop != nil {
		close(c.pumpStop)
		c.pumpStop = nil
	}
	buffered := len(c.buffer)
	c.mu.Unlock()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-cancel:
			stop()
		case <-ctx.Done():
		}
	}()

	session, err := conn.OpenSession(ctx)
	if err != nil {
		return WrapError(KindConnectFailed, err, "consumer %s: open session", c.id)
	}

	credit := c.cfg.PrefetchCount
	if uint32(buffered) < credit {
		credit -= uint32(buffered)
	} else {
		credit = 0
	}

	linkName := "receiver-" + uuid.NewV4().String()
	source := fqAddress(c.cfg.Address, c.cfg.Queue)
	link, err := session.OpenReceiverLink(ctx, source, c.cfg.RoutingType.capabilities(), linkName, credit)
	if err != nil {
		return WrapError(KindConnectFailed, err, "consumer %s: open receiver link", c.id)
	}

	c.mu.Lock()
	c.link = link
	c.linkGen++
	gen := c.linkGen
	stop := make(chan struct{})
	c.pumpStop = stop
	c.mu.Unlock()

	go c.pump(link, gen, stop)
	go c.watchLinkClose(link, gen)
	return nil
}

// Resume implements Recoverable. Idempotent while already Attached.
func (c *Consumer) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed || c.state == StateAttached {
		return
	}
	c.state = StateAttached
	close(c.resumeCh)
}

// Close implements Recoverable. Any messages still sitting in the
// prefetch buffer are discarded; this is the one case where the buffer
// is allowed to lose messages, per spec.md §4.5.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	prevState := c.state
	link := c.link
	if c.pumpStop != nil {
		close(c.pumpStop)
	}
	c.state = StateClosed
	select {
	case <-c.resumeCh:
	default:
		close(c.resumeCh)
	}
	c.mu.Unlock()

	for drained := false; !drained; {
		select {
		case <-c.buffer:
		default:
			drained = true
		}
	}

	if prevState != StateInitializing && link != nil {
		return link.Close(context.Background(), nil)
	}
	return nil
}

// ReceiveAsync drains the prefetch buffer in FIFO order. A buffered
// message is always returned immediately, even while Suspended or
// Recovering, since consuming from the local buffer does not cross the
// link. When the buffer is empty, the call parks until a new delivery
// arrives, the consumer is closed, or cancel/ctx fires.
func (c *Consumer) ReceiveAsync(ctx context.Context, cancel <-chan struct{}) (*Delivery, error) {
	for {
		select {
		case item, ok := <-c.buffer:
			if !ok {
				return nil, ErrShutdown
			}
			return &Delivery{Tag: item.d.Tag, Body: item.d.Body, link: item.link}, nil
		default:
		}

		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			return nil, ErrShutdown
		}
		waitCh := c.resumeCh
		c.mu.Unlock()

		select {
		case item, ok := <-c.buffer:
			if !ok {
				return nil, ErrShutdown
			}
			return &Delivery{Tag: item.d.Tag, Body: item.d.Body, link: item.link}, nil
		case <-waitCh:
			continue
		case <-cancel:
			return nil, WrapError(KindCancelled, nil, "consumer %s: receive cancelled while parked", c.id)
		case <-ctx.Done():
			return nil, WrapError(KindCancelled, ctx.Err(), "consumer %s: receive cancelled", c.id)
		}
	}
}

// AcceptAsync settles d as accepted on the link that delivered it. If
// that link has since been replaced (the message was buffered across a
// reconnect and the original link is gone), the settle is still
// attempted on the old link, any error from it is logged and ignored,
// and AcceptAsync returns nil.
func (c *Consumer) AcceptAsync(ctx context.Context, d *Delivery) error {
	if err := d.link.Accept(ctx, d.Tag); err != nil {
		c.logger.Debug("accept on stale link ignored", zap.String("consumer", c.id), zap.Error(err))
	}
	c.refillCredit(d.link)
	return nil
}

// RejectAsync settles d as rejected, with the same stale-link tolerance
// as AcceptAsync.
func (c *Consumer) RejectAsync(ctx context.Context, d *Delivery, cause error) error {
	if err := d.link.Reject(ctx, d.Tag, cause); err != nil {
		c.logger.Debug("reject on stale link ignored", zap.String("consumer", c.id), zap.Error(err))
	}
	c.refillCredit(d.link)
	return nil
}

func (c *Consumer) refillCredit(link transport.ReceiverLink) {
	if c.cfg.CreditRefillMode != CreditRefillOnSettle {
		return
	}
	c.mu.Lock()
	current := c.link
	c.mu.Unlock()
	if current != link {
		// Stale link: the replacement link was already opened with
		// credit accounting for this message as buffered-but-unsettled.
		return
	}
	if err := link.AddCredit(1); err != nil {
		c.logger.Debug("add credit failed", zap.String("consumer", c.id), zap.Error(err))
	}
}

func (c *Consumer) pump(link transport.ReceiverLink, gen uint64, stop chan struct{}) {
	for {
		select {
		case d, ok := <-link.Deliveries():
			if !ok {
				return
			}
			select {
			case c.buffer <- bufItem{d: d, link: link}:
			case <-stop:
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *Consumer) watchLinkClose(link transport.ReceiverLink, gen uint64) {
	ev, ok := <-link.NotifyClosed()
	if !ok {
		return
	}
	c.mu.Lock()
	if c.linkGen != gen || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	select {
	case <-c.resumeCh:
		c.resumeCh = make(chan struct{})
	default:
	}
	c.state = StateSuspended
	c.mu.Unlock()

	c.logger.Warn("consumer link detached",
		zap.String("consumer", c.id),
		zap.Bool("closed_by_peer", ev.ClosedByPeer),
		zap.Error(ev.Err),
	)
	if c.requester != nil {
		c.requester.RequestRecovery()
	}
}
