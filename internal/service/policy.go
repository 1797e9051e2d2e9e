package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/repository"
)

const defaultPolicyTTL = 30 * time.Second

// PolicyResolver is the only way business code reads the reservation
// policy.  The active policy is cached in process for a short TTL and
// the cache is dropped whenever the policy is written through Update.
type PolicyResolver struct {
	store PolicyStore
	tx    Transactor
	log   *logrus.Logger
	ttl   time.Duration
	now   func() time.Time

	mu       sync.RWMutex
	cached   *model.Policy
	cachedAt time.Time
}

// NewPolicyResolver returns a resolver caching for ttl (30s when ttl <= 0).
func NewPolicyResolver(store PolicyStore, tx Transactor, log *logrus.Logger, ttl time.Duration, opts ...Option) *PolicyResolver {
	if ttl <= 0 {
		ttl = defaultPolicyTTL
	}
	s := newSettings(opts)
	return &PolicyResolver{store: store, tx: tx, log: log, ttl: ttl, now: s.now}
}

// Active returns the active policy.  When no row is active it creates one
// holding the defaults.  It never fails: a storage error is logged and
// the defaults are returned uncached, so the next call tries again.
func (r *PolicyResolver) Active(ctx context.Context) model.Policy {
	r.mu.RLock()
	if r.cached != nil && r.now().Sub(r.cachedAt) < r.ttl {
		p := *r.cached
		r.mu.RUnlock()
		return p
	}
	r.mu.RUnlock()

	p, err := r.store.GetActive(ctx)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		def := model.DefaultPolicy()
		if cerr := r.store.Create(ctx, &def); cerr != nil {
			r.log.WithError(cerr).Warn("could not persist default reservation policy")
			return model.DefaultPolicy()
		}
		r.log.WithField("policy_id", def.ID).Info("created default reservation policy")
		p = &def
	default:
		r.log.WithError(err).Warn("reservation policy unavailable, using defaults")
		return model.DefaultPolicy()
	}

	r.mu.Lock()
	r.cached = p
	r.cachedAt = r.now()
	r.mu.Unlock()
	return *p
}

// Update replaces the active policy with p and invalidates the cache.
func (r *PolicyResolver) Update(ctx context.Context, p model.Policy) (model.Policy, error) {
	if err := p.Validate(); err != nil {
		return model.Policy{}, newError(CodeInvalidPolicy, "%s", err.Error())
	}
	p.ID = 0
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return r.store.Replace(ctx, &p)
	})
	if err != nil {
		return model.Policy{}, err
	}
	r.Invalidate()
	r.log.WithField("policy_id", p.ID).Info("reservation policy updated")
	return p, nil
}

// Invalidate drops the cached policy.
func (r *PolicyResolver) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}
