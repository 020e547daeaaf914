package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cruisesync-service/internal/domain/repository"
	"cruisesync-service/pkg/logger"
)

// ErrCircuitOpen is returned by Acquire while the breaker cooldown runs.
// Callers fail fast instead of hammering a down server.
var ErrCircuitOpen = errors.New("archive: circuit open")

// PoolConfig bounds the session pool
type PoolConfig struct {
	MaxSessions      int
	AcquireTimeout   time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 3
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = time.Minute
	}
	return c
}

// Pool maintains up to MaxSessions concurrent archive sessions. Sessions are
// created lazily; an errored session is discarded and its slot becomes
// available for a fresh dial on the next Acquire.
type Pool struct {
	cfg     Config
	poolCfg PoolConfig
	logger  logger.Logger

	idle    chan *Session
	slots   chan struct{}
	breaker *breaker

	mu     sync.Mutex
	closed bool
}

// NewPool creates a session pool. No connection is made until Acquire.
func NewPool(cfg Config, poolCfg PoolConfig, log logger.Logger) *Pool {
	poolCfg = poolCfg.withDefaults()

	slots := make(chan struct{}, poolCfg.MaxSessions)
	for i := 0; i < poolCfg.MaxSessions; i++ {
		slots <- struct{}{}
	}

	return &Pool{
		cfg:     cfg,
		poolCfg: poolCfg,
		logger:  log,
		idle:    make(chan *Session, poolCfg.MaxSessions),
		slots:   slots,
		breaker: newBreaker(poolCfg.BreakerThreshold, poolCfg.BreakerCooldown),
	}
}

// Acquire hands out an idle session or dials a new one within the session
// bound. It fails fast with ErrCircuitOpen during a breaker cooldown and
// with a timeout error when every session stays busy too long.
func (p *Pool) Acquire(ctx context.Context) (repository.ArchiveSession, error) {
	if !p.breaker.allow() {
		return nil, ErrCircuitOpen
	}

	// Prefer a warm session over dialing a new one.
	select {
	case s := <-p.idle:
		return s, nil
	default:
	}

	timer := time.NewTimer(p.poolCfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case s := <-p.idle:
		return s, nil
	case <-p.slots:
		s, err := dialSession(ctx, p.cfg)
		if err != nil {
			p.slots <- struct{}{}
			p.logger.Warn("Archive dial failed", "error", err)
			if p.breaker.fail() {
				p.logger.Warn("Archive circuit opened", "cooldown", p.poolCfg.BreakerCooldown)
			}
			return nil, err
		}
		p.breaker.ok()
		return s, nil
	case <-timer.C:
		return nil, fmt.Errorf("archive: acquire timed out after %s: %w", p.poolCfg.AcquireTimeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a healthy session for reuse
func (p *Pool) Release(session repository.ArchiveSession) {
	s, ok := session.(*Session)
	if !ok || s == nil {
		return
	}
	p.breaker.ok()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		s.Close()
		return
	}

	select {
	case p.idle <- s:
	default:
		s.Close()
		p.slots <- struct{}{}
	}
}

// Discard destroys an errored session and frees its slot. Session identity
// never survives an error.
func (p *Pool) Discard(session repository.ArchiveSession) {
	if p.breaker.fail() {
		p.logger.Warn("Archive circuit opened", "cooldown", p.poolCfg.BreakerCooldown)
	}
	s, ok := session.(*Session)
	if !ok || s == nil {
		return
	}
	p.logger.Debug("Archive session discarded")
	s.Close()
	select {
	case p.slots <- struct{}{}:
	default:
	}
}

// Close tears down every idle session. Busy sessions close on Release.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case s := <-p.idle:
			s.Close()
		default:
			return
		}
	}
}

// breaker tracks consecutive failures across the whole pool. Past the
// threshold it opens for a cooldown window.
type breaker struct {
	mu          sync.Mutex
	threshold   int
	cooldown    time.Duration
	consecutive int
	openUntil   time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().After(b.openUntil)
}

// fail records one failure and reports whether it opened the circuit
func (b *breaker) fail() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	if b.consecutive >= b.threshold {
		b.openUntil = time.Now().Add(b.cooldown)
		b.consecutive = 0
		return true
	}
	return false
}

func (b *breaker) ok() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
}
