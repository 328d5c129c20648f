package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brightforge/modelengine/internal/modelerr"
	"github.com/brightforge/modelengine/internal/platform/logger"
)

// Factory constructs a new DocumentStore handler (one underlying
// connection). The pool calls it both at startup and to reconnect a
// handler that fails its liveness check.
type Factory func(ctx context.Context) (DocumentStore, error)

// PoolConfig configures Pool's bounded retry/backoff behaviour (5:
// "pop blocks with bounded retry (default 50ms x attempt, max
// configurable) and transparently reconnects... up to 5 reconnect
// attempts").
type PoolConfig struct {
	Capacity           int
	PopBackoffBase     time.Duration
	PopMaxAttempts     int
	MaxReconnectAttempts int
}

func DefaultPoolConfig(capacity int) PoolConfig {
	return PoolConfig{
		Capacity:             capacity,
		PopBackoffBase:       50 * time.Millisecond,
		PopMaxAttempts:       20,
		MaxReconnectAttempts: 5,
	}
}

// Pool is a bounded LIFO stack of document-store workers (5: "Connection
// pool"): a mutex-guarded slice used as a stack, with bounded linear
// backoff on Pop while it is empty, in place of the source's hand-rolled
// sleep/retry loop; the external contract (bounded retries, configurable
// timeout) is unchanged.
type Pool struct {
	cfg     PoolConfig
	factory Factory
	log     *logger.Logger

	mu     sync.Mutex
	stack  []DocumentStore
	closed bool
}

// NewPool creates and fills a pool of cfg.Capacity handlers built by
// factory.
func NewPool(ctx context.Context, cfg PoolConfig, factory Factory, log *logger.Logger) (*Pool, error) {
	p := &Pool{
		cfg:     cfg,
		factory: factory,
		log:     log.With("component", "store.Pool"),
	}
	for i := 0; i < cfg.Capacity; i++ {
		h, err := factory(ctx)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("pool: build handler %d/%d: %w", i+1, cfg.Capacity, err)
		}
		p.stack = append(p.stack, h)
	}
	return p, nil
}

// Pop removes one handler from the top of the stack, blocking with bounded
// backoff while the stack is empty. A handler that fails its liveness
// check is transparently reconnected, up to MaxReconnectAttempts, before
// being returned.
func (p *Pool) Pop(ctx context.Context) (DocumentStore, error) {
	for attempt := 1; ; attempt++ {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, modelerr.New(modelerr.CodeResourceExhausted, "store.Pool.Pop", "pool is closed", nil)
		}
		if n := len(p.stack); n > 0 {
			h := p.stack[n-1]
			p.stack = p.stack[:n-1]
			p.mu.Unlock()
			return p.ensureLive(ctx, h)
		}
		p.mu.Unlock()

		if attempt >= p.cfg.PopMaxAttempts {
			return nil, modelerr.New(modelerr.CodeResourceExhausted, "store.Pool.Pop", "pool exhausted after bounded retry", nil)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.cfg.PopBackoffBase * time.Duration(attempt)):
		}
	}
}

// Push returns a handler to the pool.
func (p *Pool) Push(h DocumentStore) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = h.Close()
		return
	}
	p.stack = append(p.stack, h)
}

func (p *Pool) ensureLive(ctx context.Context, h DocumentStore) (DocumentStore, error) {
	if err := h.Liveness(ctx); err == nil {
		return h, nil
	}
	_ = h.Close()
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxReconnectAttempts; attempt++ {
		reconnected, err := p.factory(ctx)
		if err == nil {
			if err := reconnected.Liveness(ctx); err == nil {
				return reconnected, nil
			}
			_ = reconnected.Close()
			lastErr = fmt.Errorf("reconnected handler failed liveness check")
			continue
		}
		lastErr = err
		p.log.Warn("pool reconnect attempt failed", "attempt", attempt, "error", err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("exhausted reconnect attempts")
	}
	return nil, modelerr.Wrap(modelerr.CodeStorageFailure, "store.Pool.ensureLive", lastErr)
}

// Close drains the pool and releases every handler (5: "Destruction
// drains the pool and releases every worker").
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var firstErr error
	for _, h := range p.stack {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.stack = nil
	return firstErr
}

// With leases a handler for the duration of fn and returns it afterward,
// matching the "each [request] owning a worker from the document-store
// pool" scheduling model (5).
func (p *Pool) With(ctx context.Context, fn func(DocumentStore) error) error {
	h, err := p.Pop(ctx)
	if err != nil {
		return err
	}
	defer p.Push(h)
	return fn(h)
}
