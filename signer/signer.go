// Package signer signs verified bridge actions with the authority key and
// remembers the outcome per request key.
package signer

import (
	"context"
	"fmt"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/atomic"

	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/dlog"
	"github.com/rafnixschaf/iota-sub000/log"
	"github.com/rafnixschaf/iota-sub000/message"
	"github.com/rafnixschaf/iota-sub000/quorum"
	"github.com/rafnixschaf/iota-sub000/verifier"
)

// DefaultCacheSize bounds the number of remembered request keys.
const DefaultCacheSize = 1000

// Key identifies a signing request.
type Key interface {
	comparable
	String() string
}

type result struct {
	signed quorum.SignedAction
	err    error
}

type entry struct {
	mu  sync.Mutex
	res *result
}

type Signer[K Key] struct {
	key      *crypto.KeyPair
	verifier verifier.ActionVerifier[K]
	audit    *dlog.AuditLogger
	cache    cmap.ConcurrentMap[K, *entry]
	capacity int

	hits     atomic.Uint64
	verified atomic.Uint64
}

// New returns a signer over v. audit may be nil.
func New[K Key](key *crypto.KeyPair, v verifier.ActionVerifier[K], audit *dlog.AuditLogger) *Signer[K] {
	return &Signer[K]{
		key:      key,
		verifier: v,
		audit:    audit,
		cache:    cmap.NewStringer[K, *entry](),
		capacity: DefaultCacheSize,
	}
}

func (s *Signer[K]) entry(key K) *entry {
	// Concurrent callers for the same key share one entry.
	e := s.cache.Upsert(key, nil, func(exist bool, old *entry, _ *entry) *entry {
		if exist {
			return old
		}
		return &entry{}
	})
	if s.cache.Count() > s.capacity {
		s.evict(key)
	}
	return e
}

func (s *Signer[K]) evict(keep K) {
	for item := range s.cache.IterBuffered() {
		if item.Key != keep {
			s.cache.Remove(item.Key)
			return
		}
	}
}

// Sign verifies key and signs the resulting action. Successes and permanent
// verification failures are cached; transient failures are retried on the
// next call.
func (s *Signer[K]) Sign(ctx context.Context, key K) (quorum.SignedAction, error) {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.res != nil {
		s.hits.Inc()
		return e.res.signed, e.res.err
	}

	s.verified.Inc()
	action, err := s.verifier.Verify(ctx, key)
	if err != nil {
		if verifier.IsCacheable(err) {
			e.res = &result{err: err}
		}
		log.Warningf("refusing to sign %s: %v", key, err)
		return quorum.SignedAction{}, err
	}
	digest, err := message.Digest(action)
	if err != nil {
		// encoding errors are permanent
		e.res = &result{err: err}
		return quorum.SignedAction{}, fmt.Errorf("encode %s: %w", key, err)
	}
	signed, err := quorum.SignDigest(action, digest, s.key)
	if err != nil {
		return quorum.SignedAction{}, fmt.Errorf("sign %s: %w", key, err)
	}
	e.res = &result{signed: signed}
	if s.audit != nil {
		s.audit.ActionSigned(action, digest, s.key.PublicKeyBytes())
	}
	return signed, nil
}

// Stats returns the number of cache hits and verifier calls.
func (s *Signer[K]) Stats() (hits, verified uint64) {
	return s.hits.Load(), s.verified.Load()
}

// SignGovernance signs an approved governance action. Transfers are refused
// before the verifier is consulted.
func SignGovernance(ctx context.Context, s *Signer[message.ActionDigest], action message.BridgeAction) (quorum.SignedAction, error) {
	if !message.IsGovernanceAction(action) {
		return quorum.SignedAction{}, fmt.Errorf("%w: %v", verifier.ErrNotGovernanceAction, message.Key(action))
	}
	digest, err := message.Digest(action)
	if err != nil {
		return quorum.SignedAction{}, err
	}
	return s.Sign(ctx, digest)
}
