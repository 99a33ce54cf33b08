package quorum

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/rafnixschaf/iota-sub000/committee"
	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/log"
	"github.com/rafnixschaf/iota-sub000/message"
)

type collection struct {
	action message.BridgeAction
	sigs   map[crypto.PublicKeyBytes]crypto.RecoverableSignature
	weight uint64
	cert   *VerifiedCertifiedAction
}

// Collector gathers signatures arriving one at a time, per action digest,
// until the action is certified.
type Collector struct {
	committee   *committee.Committee
	threshold   uint64
	collections map[message.ActionDigest]*collection
	mu          sync.Mutex

	received  atomic.Uint64
	rejected  atomic.Uint64
	certified atomic.Uint64
}

func NewCollector(c *committee.Committee, threshold uint64) (*Collector, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	return &Collector{
		committee:   c,
		threshold:   threshold,
		collections: make(map[message.ActionDigest]*collection),
	}, nil
}

// Add records a signed action. It returns true and the certificate exactly
// once per digest, on the signature that crosses the threshold.
func (q *Collector) Add(s SignedAction) (bool, *VerifiedCertifiedAction, error) {
	q.received.Inc()
	verified, err := VerifySigned(q.committee, s)
	if err != nil {
		q.rejected.Inc()
		return false, nil, err
	}
	digest := verified.Digest()

	q.mu.Lock()
	defer q.mu.Unlock()

	col, exist := q.collections[digest]
	if !exist {
		// first signature for this action
		col = &collection{
			action: s.Data,
			sigs:   make(map[crypto.PublicKeyBytes]crypto.RecoverableSignature),
		}
		q.collections[digest] = col
	}
	if col.cert != nil {
		return false, nil, nil
	}
	pk := s.Auth.AuthorityPubKey
	if _, dup := col.sigs[pk]; !dup {
		col.weight += q.committee.Weight(pk)
	}
	col.sigs[pk] = s.Auth.Signature
	if col.weight < q.threshold {
		return false, nil, nil
	}
	cert, err := Accumulate(q.committee, col.action, col.sigs, q.threshold)
	if err != nil {
		log.Warningf("(Collector-Add) cannot certify %s with weight %d: %v", digest, col.weight, err)
		return false, nil, err
	}
	col.cert = &cert
	q.certified.Inc()
	return true, &cert, nil
}

// Weight returns the stake collected so far for digest.
func (q *Collector) Weight(digest message.ActionDigest) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if col, ok := q.collections[digest]; ok {
		return col.weight
	}
	return 0
}

// Certificate returns the certificate for digest once one was produced.
func (q *Collector) Certificate(digest message.ActionDigest) (*VerifiedCertifiedAction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	col, ok := q.collections[digest]
	if !ok || col.cert == nil {
		return nil, false
	}
	return col.cert, true
}

func (q *Collector) Delete(digest message.ActionDigest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.collections, digest)
}

// Stats returns the number of signatures received, rejected and the number
// of certificates produced.
func (q *Collector) Stats() (received, rejected, certified uint64) {
	return q.received.Load(), q.rejected.Load(), q.certified.Load()
}
