// Package rotator hands out provider credentials round-robin, skipping throttled and
// disabled keys.
package rotator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
	"github.com/Aviyadav22/ParalegalAI/internal/retry"
)

// Defaults for the rotator.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
)

// ErrNoCredentials is returned when the rotator is built with an empty pool.
var ErrNoCredentials = errors.New("rotator: at least one credential is required")

// Spec describes one credential at construction time.
type Spec struct {
	ID     string
	APIKey string
	RPS    float64 // proactive throttle, 0 = none
}

type state struct {
	cred    domain.Credential
	limiter *rate.Limiter
}

// Rotator owns the credential pool. All state changes happen under mu; the lock is never
// held while a caller talks to the provider.
type Rotator struct {
	mu        sync.Mutex
	pool      []*state
	byID      map[string]*state
	next      int
	now       func() time.Time
	threshold int
	cooldown  time.Duration
	logger    *zap.Logger
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Rotator) { r.now = now }
}

// WithFailureThreshold sets how many consecutive failures disable a credential.
func WithFailureThreshold(n int) Option {
	return func(r *Rotator) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// WithDefaultCooldown sets the cooldown used when the provider gives no retry hint.
func WithDefaultCooldown(d time.Duration) Option {
	return func(r *Rotator) {
		if d > 0 {
			r.cooldown = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Rotator) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Rotator over specs. IDs must be unique.
func New(specs []Spec, opts ...Option) (*Rotator, error) {
	if len(specs) == 0 {
		return nil, ErrNoCredentials
	}

	r := &Rotator{
		byID:      make(map[string]*state, len(specs)),
		now:       time.Now,
		threshold: DefaultFailureThreshold,
		cooldown:  DefaultCooldown,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("rotator: credential id is required")
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("rotator: duplicate credential id %q", s.ID)
		}
		st := &state{cred: domain.Credential{ID: s.ID, APIKey: s.APIKey}}
		if s.RPS > 0 {
			burst := max(1, int(s.RPS))
			st.limiter = rate.NewLimiter(rate.Limit(s.RPS), burst)
		}
		r.pool = append(r.pool, st)
		r.byID[s.ID] = st
	}

	return r, nil
}

// Lease is a credential handed out by Acquire. Credential is a snapshot.
type Lease struct {
	Credential domain.Credential
	// Degraded is set when no credential was usable and the least recently used one
	// was returned anyway.
	Degraded bool

	limiter *rate.Limiter
	now     func() time.Time
}

// ID returns the leased credential id.
func (l Lease) ID() string { return l.Credential.ID }

// APIKey returns the leased credential secret.
func (l Lease) APIKey() string { return l.Credential.APIKey }

// Wait blocks until the leased credential's cooldown has passed and its throttle allows
// a request. The cooldown wait only applies to degraded leases.
func (l Lease) Wait(ctx context.Context) error {
	if l.now != nil {
		if remaining := l.Credential.CooldownUntil.Sub(l.now()); remaining > 0 {
			if err := retry.Sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("credential %s throttle: %w", l.Credential.ID, err)
		}
	}
	return nil
}

// Acquire returns the next usable credential in round-robin order. When every credential
// is cooling down or disabled it falls back to the least recently used one.
func (r *Rotator) Acquire() Lease {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := len(r.pool)
	for i := 0; i < n; i++ {
		idx := (r.next + i) % n
		st := r.pool[idx]
		if st.cred.Usable(now) {
			r.next = (idx + 1) % n
			return r.leaseLocked(st, now, false)
		}
	}

	st := r.leastRecentlyUsedLocked()
	r.logger.Warn("No usable credential, degrading to least recently used",
		zap.String("credential", st.cred.ID),
		zap.Time("cooldown_until", st.cred.CooldownUntil),
		zap.Bool("disabled", st.cred.Disabled),
	)
	return r.leaseLocked(st, now, true)
}

// leastRecentlyUsedLocked prefers enabled credentials so a cooling key is reused before
// a disabled one.
func (r *Rotator) leastRecentlyUsedLocked() *state {
	var best *state
	for _, st := range r.pool {
		if st.cred.Disabled {
			continue
		}
		if best == nil || st.cred.LastUsed.Before(best.cred.LastUsed) {
			best = st
		}
	}
	if best != nil {
		return best
	}
	for _, st := range r.pool {
		if best == nil || st.cred.LastUsed.Before(best.cred.LastUsed) {
			best = st
		}
	}
	return best
}

func (r *Rotator) leaseLocked(st *state, now time.Time, degraded bool) Lease {
	st.cred.Requests++
	st.cred.LastUsed = now

	mode := "normal"
	if degraded {
		mode = "degraded"
	}
	metrics.CredentialSelectionsTotal.WithLabelValues(st.cred.ID, mode).Inc()

	return Lease{Credential: st.cred, Degraded: degraded, limiter: st.limiter, now: r.now}
}

// ReportSuccess clears the consecutive failure count and re-enables the credential.
func (r *Rotator) ReportSuccess(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.byID[id]
	if !ok {
		return
	}
	if st.cred.Disabled {
		r.logger.Info("Credential re-enabled", zap.String("credential", id))
	}
	st.cred.ConsecutiveFailures = 0
	st.cred.Disabled = false
	metrics.CredentialEventsTotal.WithLabelValues(id, "success").Inc()
}

// ReportFailure records a non-throttling failure and disables the credential once the
// consecutive failure threshold is reached.
func (r *Rotator) ReportFailure(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.byID[id]
	if !ok {
		return
	}
	st.cred.Failures++
	st.cred.ConsecutiveFailures++
	metrics.CredentialEventsTotal.WithLabelValues(id, "failure").Inc()

	if !st.cred.Disabled && st.cred.ConsecutiveFailures >= r.threshold {
		st.cred.Disabled = true
		metrics.CredentialEventsTotal.WithLabelValues(id, "disabled").Inc()
		r.logger.Warn("Credential disabled after consecutive failures",
			zap.String("credential", id),
			zap.Int("consecutive_failures", st.cred.ConsecutiveFailures),
		)
	}
}

// ReportRateLimited puts the credential into cooldown for d (the default cooldown when
// d <= 0). The credential stays enabled.
func (r *Rotator) ReportRateLimited(id string, d time.Duration) {
	if d <= 0 {
		d = r.cooldown
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.byID[id]
	if !ok {
		return
	}
	until := r.now().Add(d)
	if until.After(st.cred.CooldownUntil) {
		st.cred.CooldownUntil = until
	}
	metrics.CredentialEventsTotal.WithLabelValues(id, "rate_limited").Inc()
	r.logger.Debug("Credential cooling down",
		zap.String("credential", id),
		zap.Duration("cooldown", d),
	)
}

// Snapshot returns copies of all credentials in pool order.
func (r *Rotator) Snapshot() []domain.Credential {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Credential, len(r.pool))
	for i, st := range r.pool {
		out[i] = st.cred
	}
	return out
}

// Len returns the pool size.
func (r *Rotator) Len() int { return len(r.pool) }
