package artemis

import (
	"context"

	"go.uber.org/zap"

	"github.com/sorenbk/artemis-go/transport"
)

// Client is the public façade over a Supervisor and Registry, grounded
// on the teacher's New() constructor: the teacher wires its server and
// consumer channels directly against the first connection before
// returning control to the caller, then leaves the watcher goroutine to
// handle everything after. NewProducer/NewConsumer here do the same:
// if a connection is already live, the new recoverable is attached
// synchronously before the handle is returned, so the caller never
// races the first reconnect cycle.
type Client struct {
	supervisor *Supervisor
	registry   *Registry
	logger     *zap.Logger
}

// NewClient builds a Client wired to adapter/endpoints/policy, but does
// not connect; call Start to perform the initial connect.
func NewClient(adapter transport.Adapter, endpoints Endpoints, policy RecoveryPolicy, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := NewRegistry()
	sup, err := NewSupervisor(adapter, endpoints, policy, registry, logger)
	if err != nil {
		return nil, err
	}
	return &Client{supervisor: sup, registry: registry, logger: logger}, nil
}

// Start performs the initial connect and blocks until it succeeds, ctx
// is cancelled, or the client is closed first.
func (c *Client) Start(ctx context.Context) error {
	return c.supervisor.Start(ctx)
}

// NewProducer registers and returns a new auto-recovering producer. If
// the client already holds a live connection, the producer is attached
// synchronously before this call returns; otherwise it starts
// Initializing and attaches on the supervisor's next successful
// connect.
func (c *Client) NewProducer(ctx context.Context, cfg ProducerConfig) (*Producer, error) {
	p := NewProducer(cfg, c.supervisor, c.logger)
	if err := c.attachInitial(ctx, p); err != nil {
		return nil, err
	}
	c.registry.Add(p)
	return p, nil
}

// NewConsumer registers and returns a new auto-recovering consumer, with
// the same synchronous-attach-if-connected behavior as NewProducer.
func (c *Client) NewConsumer(ctx context.Context, cfg ConsumerConfig) (*Consumer, error) {
	cons := NewConsumer(cfg, c.supervisor, c.logger)
	if err := c.attachInitial(ctx, cons); err != nil {
		return nil, err
	}
	c.registry.Add(cons)
	return cons, nil
}

// attachInitial performs the synchronous first RecoverAsync+Resume
// against the supervisor's current connection, if one is already open.
// If no connection is open yet, the recoverable stays Initializing and
// is picked up automatically once the supervisor's registry snapshot
// includes it on the next reconnect cycle.
func (c *Client) attachInitial(ctx context.Context, r Recoverable) error {
	conn := c.supervisor.CurrentConnection()
	if conn == nil || !conn.IsOpened() {
		return nil
	}
	if err := r.RecoverAsync(ctx, conn, nil); err != nil {
		return err
	}
	r.Resume()
	return nil
}

// RemoveProducer detaches and deregisters p; subsequent reconnect
// cycles will no longer consider it.
func (c *Client) RemoveProducer(p *Producer) error {
	c.registry.Remove(p.ID())
	return p.Close()
}

// RemoveConsumer detaches and deregisters cons.
func (c *Client) RemoveConsumer(cons *Consumer) error {
	c.registry.Remove(cons.ID())
	return cons.Close()
}

// Close tears down every registered recoverable and stops the
// supervisor's loop. Safe to call once; further calls are no-ops since
// Registry.Remove and Recoverable.Close both tolerate repetition.
func (c *Client) Close() error {
	for _, r := range c.registry.Snapshot() {
		_ = r.Close()
		c.registry.Remove(r.ID())
	}
	c.supervisor.Stop()
	return nil
}
