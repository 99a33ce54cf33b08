// Package committee holds the bridge authority set: who may sign, with how
// much stake, and in which order to ask them.
package committee

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"
	"golang.org/x/exp/rand"

	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/log"
)

// TotalVotingPower is the exact stake sum of every valid committee.
const TotalVotingPower uint64 = 10000

var (
	ErrDuplicateAuthority      = errors.New("duplicate authority public key")
	ErrInvalidTotalVotingPower = errors.New("total voting power must equal 10000")
)

// InvalidCommitteeError is returned by New. It matches ErrDuplicateAuthority
// or ErrInvalidTotalVotingPower.
type InvalidCommitteeError struct {
	Err       error
	Authority crypto.PublicKeyBytes
	Total     uint64
}

func (e *InvalidCommitteeError) Error() string {
	if errors.Is(e.Err, ErrDuplicateAuthority) {
		return fmt.Sprintf("invalid committee: %v: %s", e.Err, e.Authority)
	}
	return fmt.Sprintf("invalid committee: %v, got %d", e.Err, e.Total)
}

func (e *InvalidCommitteeError) Unwrap() error { return e.Err }

type Authority struct {
	PubKey        crypto.PublicKeyBytes
	VotingPower   uint64
	BaseURL       string
	IsBlocklisted bool
}

// Committee is immutable once built and safe for concurrent readers.
type Committee struct {
	members               map[crypto.PublicKeyBytes]Authority
	ordered               []crypto.PublicKeyBytes
	totalBlocklistedStake uint64
}

// New validates the member list: no duplicate keys and stake summing to
// exactly TotalVotingPower.
func New(members []Authority) (*Committee, error) {
	c := &Committee{
		members: make(map[crypto.PublicKeyBytes]Authority, len(members)),
		ordered: make([]crypto.PublicKeyBytes, 0, len(members)),
	}
	var total uint64
	for _, m := range members {
		if _, exist := c.members[m.PubKey]; exist {
			return nil, &InvalidCommitteeError{Err: ErrDuplicateAuthority, Authority: m.PubKey}
		}
		c.members[m.PubKey] = m
		c.ordered = append(c.ordered, m.PubKey)
		// Each term fits in uint64, the sum may not.
		if total+m.VotingPower < total {
			return nil, &InvalidCommitteeError{Err: ErrInvalidTotalVotingPower, Total: math.MaxUint64}
		}
		total += m.VotingPower
	}
	if total != TotalVotingPower {
		return nil, &InvalidCommitteeError{Err: ErrInvalidTotalVotingPower, Total: total}
	}
	sort.Slice(c.ordered, func(i, j int) bool {
		return bytes.Compare(c.ordered[i][:], c.ordered[j][:]) < 0
	})
	c.totalBlocklistedStake = lo.SumBy(members, func(m Authority) uint64 {
		if m.IsBlocklisted {
			return m.VotingPower
		}
		return 0
	})
	log.Debugf("committee of %d members, blocklisted stake %d", len(members), c.totalBlocklistedStake)
	return c, nil
}

// IsActiveMember reports whether id is in the committee and not blocklisted.
func (c *Committee) IsActiveMember(id crypto.PublicKeyBytes) bool {
	m, ok := c.members[id]
	return ok && !m.IsBlocklisted
}

func (c *Committee) Member(id crypto.PublicKeyBytes) (Authority, bool) {
	m, ok := c.members[id]
	return m, ok
}

// Members returns all authorities ordered by public key.
func (c *Committee) Members() []Authority {
	return lo.Map(c.ordered, func(id crypto.PublicKeyBytes, _ int) Authority {
		return c.members[id]
	})
}

func (c *Committee) Size() int { return len(c.ordered) }

func (c *Committee) TotalBlocklistedStake() uint64 { return c.totalBlocklistedStake }

// Weight returns the voting power of id, or 0 for non-members.
func (c *Committee) Weight(id crypto.PublicKeyBytes) uint64 {
	return c.members[id].VotingPower
}

// Shuffle orders the non-blocklisted members, optionally restricted to
// restrictTo (nil means no restriction), by drawing without replacement with
// probability proportional to stake. preferences is accepted and ignored.
//
// Each candidate gets the key ln(u)/w for u uniform in (0,1); sorting keys in
// descending order yields a weighted draw without replacement.
func (c *Committee) Shuffle(
	preferences map[crypto.PublicKeyBytes]struct{},
	restrictTo map[crypto.PublicKeyBytes]struct{},
	r *rand.Rand,
) []crypto.PublicKeyBytes {
	_ = preferences

	candidates := lo.Filter(c.ordered, func(id crypto.PublicKeyBytes, _ int) bool {
		if c.members[id].IsBlocklisted {
			return false
		}
		if restrictTo == nil {
			return true
		}
		_, ok := restrictTo[id]
		return ok
	})

	type keyed struct {
		id  crypto.PublicKeyBytes
		key float64
	}
	draws := lo.Map(candidates, func(id crypto.PublicKeyBytes, _ int) keyed {
		w := float64(c.members[id].VotingPower)
		if w == 0 {
			return keyed{id: id, key: math.Inf(-1)}
		}
		u := r.Float64()
		for u == 0 {
			u = r.Float64()
		}
		return keyed{id: id, key: math.Log(u) / w}
	})
	sort.SliceStable(draws, func(i, j int) bool { return draws[i].key > draws[j].key })
	return lo.Map(draws, func(k keyed, _ int) crypto.PublicKeyBytes { return k.id })
}
