package artemis

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sorenbk/artemis-go/internal/metrics"
	"github.com/sorenbk/artemis-go/transport"
)

// RecoveryRequester is the narrow, one-way interface a Recoverable holds
// onto the supervisor. Per the design notes in spec.md §9, recoverables
// and the supervisor do not hold mutual strong ownership: a recoverable
// only gets a function-shaped handle to ask for recovery, the
// supervisor owns the recoverable's lifecycle outright via the
// Registry.
type RecoveryRequester interface {
	// RequestRecovery enqueues a fire-and-forget reconnect signal. Safe
	// to call from any goroutine, any number of times; duplicate
	// signals are cheap since the supervisor fast-paths when the
	// connection is already open.
	RequestRecovery()
}

// Supervisor is the single-writer reconnection loop described in
// spec.md §4.3. It is grounded on the teacher's (*Rabbit).runWatcher:
// the same pause/reconnect/unpause shape, generalized from two
// hardcoded channel slots to an arbitrary Registry of recoverables, and
// from a fixed sleep to the configured RecoveryPolicy.
type Supervisor struct {
	adapter   transport.Adapter
	endpoints Endpoints
	policy    RecoveryPolicy
	registry  *Registry
	logger    *zap.Logger
	queue     *commandQueue

	mu   sync.RWMutex
	conn *Connection

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	wg           sync.WaitGroup
}

// NewSupervisor builds a Supervisor. Call Start to launch its loop.
func NewSupervisor(adapter transport.Adapter, endpoints Endpoints, policy RecoveryPolicy, registry *Registry, logger *zap.Logger) (*Supervisor, error) {
	if err := endpoints.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		adapter:    adapter,
		endpoints:  endpoints,
		policy:     policy,
		registry:   registry,
		logger:     logger,
		queue:      newCommandQueue(),
		shutdownCh: make(chan struct{}),
	}, nil
}

// Start launches the supervisor's event loop and performs the initial
// connect, blocking until it succeeds or ctx/Stop cancels it.
func (s *Supervisor) Start(ctx context.Context) error {
	s.wg.Add(1)
	go s.loop()

	cmd := NewConnectCommand()
	s.queue.Push(cmd)
	select {
	case <-cmd.Done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdownCh:
		return ErrShutdown
	}
}

// Stop cancels the supervisor's loop and waits for it to exit. It does
// not close registered recoverables: application operations parked on
// them are released only when the recoverables themselves are closed
// (as Client.Close does) or by their own ctx/cancel.
func (s *Supervisor) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
		s.queue.Close()
	})
	s.wg.Wait()
}

// RequestRecovery implements RecoveryRequester.
func (s *Supervisor) RequestRecovery() {
	s.queue.Push(&ConnectCommand{})
}

// ConnectAndWait enqueues a connect command and blocks until the
// supervisor fulfills it or ctx is cancelled. It does not launch the
// loop; the client façade uses Start for the initial connect.
func (s *Supervisor) ConnectAndWait(ctx context.Context) error {
	cmd := NewConnectCommand()
	s.queue.Push(cmd)
	select {
	case <-cmd.Done:
		return nil
	case <-ctx.Done():
		return WrapError(KindCancelled, ctx.Err(), "connect wait cancelled")
	case <-s.shutdownCh:
		return ErrShutdown
	}
}

// CurrentConnection returns the supervisor's current connection, or nil
// before the first successful connect.
func (s *Supervisor) CurrentConnection() *Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Supervisor) loop() {
	defer s.wg.Done()
	for {
		cmd, ok := s.queue.Next(s.shutdownCh)
		if !ok {
			return
		}
		s.handleCommand(cmd)
	}
}

// handleCommand implements one iteration of spec.md §4.3: the fast path
// when the connection is already open, otherwise a full reconnect
// cycle. After this call returns, either the connection is open and
// every non-closed recoverable is Attached, the supervisor is shutting
// down, or a bounded policy's retries ran out (the connection stays
// closed and cmd is not fulfilled).
func (s *Supervisor) handleCommand(cmd *ConnectCommand) {
	conn := s.CurrentConnection()
	if conn != nil && conn.IsOpened() {
		// Fast path: a recoverable may have been suspended by an
		// earlier command that already completed; Resume is
		// idempotent so this is safe to call unconditionally.
		for _, r := range s.liveRecoverables() {
			r.Resume()
		}
		cmd.Fulfill()
		return
	}
	s.runReconnectCycle(cmd)
}

func (s *Supervisor) liveRecoverables() []Recoverable {
	snap := s.registry.Snapshot()
	out := make([]Recoverable, 0, len(snap))
	for _, r := range snap {
		if r.State() != StateClosed {
			out = append(out, r)
		}
	}
	return out
}

func (s *Supervisor) runReconnectCycle(cmd *ConnectCommand) {
	start := time.Now()
	for {
		select {
		case <-s.shutdownCh:
			return
		default:
		}

		for _, r := range s.liveRecoverables() {
			r.Suspend()
		}

		newConn, err := s.connect()
		if err != nil {
			// Returned on shutdown, or once a bounded policy's
			// RetryCount() is exhausted; with an Unbounded policy
			// connect() retries until shutdown.
			s.logger.Warn("supervisor giving up on connect", zap.Error(err))
			return
		}

		if s.recoverAll(newConn) {
			// A recoverable failed to re-attach against the new
			// connection; per spec.md §4.3 step 3 this is treated as
			// a fresh connect-command, i.e. we restart the cycle from
			// Suspend.
			_ = newConn.Close()
			continue
		}

		for _, r := range s.liveRecoverables() {
			r.Resume()
		}

		s.mu.Lock()
		s.conn = newConn
		s.mu.Unlock()

		metrics.ConnectionState.Set(1)
		metrics.RecoverablesAttached.Set(float64(len(s.liveRecoverables())))
		metrics.RecoveryDuration.Observe(time.Since(start).Seconds())

		s.watchClose(newConn)
		cmd.Fulfill()
		return
	}
}

func (s *Supervisor) recoverAll(conn *Connection) (anyFailed bool) {
	for _, r := range s.liveRecoverables() {
		if err := r.RecoverAsync(context.Background(), conn, s.shutdownCh); err != nil {
			s.logger.Warn("recoverable failed to re-attach", zap.String("id", r.ID()), zap.Error(err))
			anyFailed = true
		}
	}
	return anyFailed
}

// connect performs step 2 of spec.md §4.3: dial endpoints in rotation
// under the recovery policy until one succeeds, is cancelled by
// shutdown, or the policy's retry count is exhausted.
func (s *Supervisor) connect() (*Connection, error) {
	attempt := 0
	for {
		select {
		case <-s.shutdownCh:
			return nil, ErrShutdown
		default:
		}

		ep := s.endpoints.At(attempt)
		ctx, cancel := context.WithCancel(context.Background())
		tconn, err := s.adapter.OpenConnection(ctx, ep.Address(), ep.ContainerID, s.shutdownCh)
		cancel()
		if err == nil {
			metrics.ReconnectAttemptsTotal.WithLabelValues("success").Inc()
			return NewConnection(tconn), nil
		}

		metrics.ReconnectAttemptsTotal.WithLabelValues("failure").Inc()
		s.logger.Warn("connect attempt failed",
			zap.Int("attempt", attempt),
			zap.String("endpoint", ep.String()),
			zap.Error(err),
		)

		if rc := s.policy.RetryCount(); rc != Unbounded && attempt >= rc {
			return nil, WrapError(KindConnectFailed, err, "exhausted %d retries", rc)
		}

		delay := s.policy.Delay(attempt)
		attempt++

		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.shutdownCh:
			timer.Stop()
			return nil, ErrShutdown
		}
	}
}

func (s *Supervisor) watchClose(conn *Connection) {
	go func() {
		select {
		case ev, ok := <-conn.NotifyClosed():
			if !ok {
				return
			}
			s.mu.RLock()
			stillCurrent := s.conn == conn
			s.mu.RUnlock()
			if !stillCurrent {
				return
			}
			metrics.ConnectionState.Set(0)
			s.logger.Info("connection closed, requesting recovery",
				zap.Bool("closed_by_peer", ev.ClosedByPeer),
				zap.Error(ev.Err),
			)
			s.RequestRecovery()
		case <-s.shutdownCh:
		}
	}()
}
