package artemis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"github.com/sorenbk/artemis-go/transport"
)

// RoutingType selects the Artemis routing-type capability a producer or
// consumer link advertises.
type RoutingType int

const (
	RoutingAnycast RoutingType = iota
	RoutingMulticast
	RoutingBoth
)

func (rt RoutingType) capabilities() []transport.RoutingCapability {
	switch rt {
	case RoutingAnycast:
		return []transport.RoutingCapability{transport.RoutingQueue}
	case RoutingMulticast:
		return []transport.RoutingCapability{transport.RoutingTopic}
	case RoutingBoth:
		return []transport.RoutingCapability{transport.RoutingQueue, transport.RoutingTopic}
	default:
		return nil
	}
}

// ProducerConfig configures an auto-recovering producer, per spec.md §6.
type ProducerConfig struct {
	Address         string
	Queue           string
	RoutingType     RoutingType
	MessagePriority *uint8
	TimeToLive      *time.Duration
}

// Producer is the auto-recovering producer handle described in
// spec.md §4.4. It is grounded on the teacher's Publish() method
// (channel-swap-on-reconnect raced against ctx via done/err channels),
// generalized into an explicit state machine coordinated with the
// recovery supervisor instead of a single RWMutex-guarded package-level
// channel.
type Producer struct {
	cfg       ProducerConfig
	id        string
	requester RecoveryRequester
	logger    *zap.Logger

	mu       sync.Mutex
	state    RecoverableState
	link     transport.SenderLink
	linkGen  uint64
	resumeCh chan struct{}

	nextTag uint64
}

// NewProducer constructs a producer in the Initializing state. Callers
// (see client.go) attach it against the current connection and add it
// to the supervisor's registry.
func NewProducer(cfg ProducerConfig, requester RecoveryRequester, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		cfg:       cfg,
		id:        "producer-" + uuid.NewV4().String(),
		requester: requester,
		logger:    logger,
		state:     StateInitializing,
		resumeCh:  make(chan struct{}),
	}
}

// ID implements Recoverable.
func (p *Producer) ID() string { return p.id }

// State implements Recoverable.
func (p *Producer) State() RecoverableState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Suspend implements Recoverable. It never touches the network: it only
// flips state and, if the resume gate was already open (closed), arms a
// fresh one so future SendAsync calls park; a gate that callers are
// still parked on is kept, so the next Resume releases them.
func (p *Producer) Suspend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return
	}
	select {
	case <-p.resumeCh:
		p.resumeCh = make(chan struct{})
	default:
	}
	p.state = StateSuspended
}

// RecoverAsync implements Recoverable: it opens a fresh sender link
// against conn, using target=address (or address::queue when Queue is
// set) and a freshly generated link name, per spec.md §4.4.
func (p *Producer) RecoverAsync(ctx context.Context, conn *Connection, cancel <-chan struct{}) error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return nil
	}
	p.state = StateRecovering
	p.mu.Unlock()

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
		return WrapError(KindConnectFailed, err, "producer %s: open session", p.id)
	}

	linkName := "sender-" + uuid.NewV4().String()
	target := fqAddress(p.cfg.Address, p.cfg.Queue)
	link, err := session.OpenSenderLink(ctx, target, p.cfg.RoutingType.capabilities(), linkName)
	if err != nil {
		return WrapError(KindConnectFailed, err, "producer %s: open sender link", p.id)
	}

	p.mu.Lock()
	p.link = link
	p.linkGen++
	gen := p.linkGen
	p.nextTag = 0
	p.mu.Unlock()

	go p.watchLinkClose(link, gen)
	return nil
}

// Resume implements Recoverable. It is idempotent: calling Resume while
// already Attached is a no-op, which the supervisor's fast path relies
// on.
func (p *Producer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed || p.state == StateAttached {
		return
	}
	p.state = StateAttached
	close(p.resumeCh)
}

// Close implements Recoverable.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return nil
	}
	prevState := p.state
	link := p.link
	p.state = StateClosed
	select {
	case <-p.resumeCh:
	default:
		close(p.resumeCh)
	}
	p.mu.Unlock()

	if prevState != StateInitializing && link != nil {
		return link.Close(context.Background(), nil)
	}
	return nil
}

// SendAsync forwards msg to the current sender link when Attached,
// parking while Suspended/Recovering until Resume, Close, ctx, or
// cancel fires. Completion resolves when the broker settles the
// delivery.
func (p *Producer) SendAsync(ctx context.Context, msg *Message, cancel <-chan struct{}) (transport.Disposition, error) {
	for {
		p.mu.Lock()
		switch p.state {
		case StateClosed:
			p.mu.Unlock()
			return transport.Disposition{}, ErrShutdown
		case StateAttached:
			link := p.link
			tag := atomic.AddUint64(&p.nextTag, 1)
			p.mu.Unlock()
			return p.send(ctx, link, tag, msg)
		default:
			waitCh := p.resumeCh
			p.mu.Unlock()
			select {
			case <-waitCh:
				continue
			case <-cancel:
				return transport.Disposition{}, WrapError(KindCancelled, nil, "producer %s: send cancelled while parked", p.id)
			case <-ctx.Done():
				return transport.Disposition{}, WrapError(KindCancelled, ctx.Err(), "producer %s: send cancelled", p.id)
			}
		}
	}
}

func (p *Producer) send(ctx context.Context, link transport.SenderLink, tag uint64, msg *Message) (transport.Disposition, error) {
	if msg.Priority == nil {
		msg.Priority = p.cfg.MessagePriority
	}
	if msg.TTL == nil {
		msg.TTL = p.cfg.TimeToLive
	}
	disp, err := link.Send(ctx, msg.body, transport.DeliveryMetadata{Priority: msg.Priority, TTL: msg.TTL})
	if err != nil {
		p.mu.Lock()
		if p.state == StateAttached && p.link == link {
			p.state = StateSuspended
			p.resumeCh = make(chan struct{})
		}
		p.mu.Unlock()
		if p.requester != nil {
			p.requester.RequestRecovery()
		}
		return transport.Disposition{}, WrapError(KindLinkDetached, err, "producer %s: delivery %d failed", p.id, tag)
	}
	return disp, nil
}

func (p *Producer) watchLinkClose(link transport.SenderLink, gen uint64) {
	ev, ok := <-link.NotifyClosed()
	if !ok {
		return
	}
	p.mu.Lock()
	if p.linkGen != gen || p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	select {
	case <-p.resumeCh:
		p.resumeCh = make(chan struct{})
	default:
	}
	p.state = StateSuspended
	p.mu.Unlock()

	p.logger.Warn("producer link detached",
		zap.String("producer", p.id),
		zap.Bool("closed_by_peer", ev.ClosedByPeer),
		zap.Error(errors.WithStack(ev.Err)),
	)
	if p.requester != nil {
		p.requester.RequestRecovery()
	}
}

// fqAddress renders the link address shared by producers (target) and
// consumers (source): the plain address when queue is empty, otherwise
// the fully-qualified address::queue form.
func fqAddress(address, queue string) string {
	if queue == "" {
		return address
	}
	return fmt.Sprintf("%s::%s", address, queue)
}
