package quorum

import (
	"errors"
	"sync"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/rafnixschaf/iota-sub000/committee"
	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/message"
	"github.com/rafnixschaf/iota-sub000/types"
)

type fixture struct {
	keys      []*crypto.KeyPair
	committee *committee.Committee
}

func newFixture(t *testing.T, blocklisted map[int]bool, powers ...uint64) fixture {
	t.Helper()
	f := fixture{}
	members := make([]committee.Authority, len(powers))
	for i, p := range powers {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		f.keys = append(f.keys, kp)
		members[i] = committee.Authority{PubKey: kp.PublicKeyBytes(), VotingPower: p, IsBlocklisted: blocklisted[i]}
	}
	c, err := committee.New(members)
	if err != nil {
		t.Fatal(err)
	}
	f.committee = c
	return f
}

var testAction = message.EmergencyAction{Nonce: 7, ChainID: types.IotaLocalTest, ActionType: types.Pause}

func (f fixture) sigs(t *testing.T, action message.BridgeAction, idx ...int) map[crypto.PublicKeyBytes]crypto.RecoverableSignature {
	t.Helper()
	out := make(map[crypto.PublicKeyBytes]crypto.RecoverableSignature)
	for _, i := range idx {
		s, err := Sign(action, f.keys[i])
		if err != nil {
			t.Fatal(err)
		}
		out[s.Auth.AuthorityPubKey] = s.Auth.Signature
	}
	return out
}

func TestSignAndVerifySigned(t *testing.T) {
	f := newFixture(t, map[int]bool{1: true}, 6000, 4000)
	s, err := Sign(testAction, f.keys[0])
	if err != nil {
		t.Fatal(err)
	}
	v, err := VerifySigned(f.committee, s)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	want, _ := message.Digest(testAction)
	if v.Digest() != want {
		t.Fatalf("verified digest %s, want %s", v.Digest(), want)
	}

	blocked, _ := Sign(testAction, f.keys[1])
	if _, err := VerifySigned(f.committee, blocked); !errors.Is(err, ErrInactiveAuthority) {
		t.Fatalf("blocklisted signer: got %v", err)
	}

	forged := s
	forged.Auth.AuthorityPubKey = f.keys[1].PublicKeyBytes()
	if _, err := VerifySigned(f.committee, forged); !errors.Is(err, ErrInvalidSignature) || !errors.Is(err, ErrSignerMismatch) {
		t.Fatalf("forged signer: got %v", err)
	}

	other := s
	other.Data = message.EmergencyAction{Nonce: 8, ChainID: types.IotaLocalTest}
	if _, err := VerifySigned(f.committee, other); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("signature over another action: got %v", err)
	}
}

func TestAccumulateReachesThreshold(t *testing.T) {
	f := newFixture(t, nil, 4000, 3000, 2000, 1000)

	cert, err := Accumulate(f.committee, testAction, f.sigs(t, testAction, 0, 1), DefaultThreshold)
	if err != nil {
		t.Fatalf("7000 of 10000 must certify: %v", err)
	}
	if cert.Auth.Weight != 7000 || len(cert.Auth.Signatures) != 2 {
		t.Fatalf("unexpected certificate %+v", cert.Auth)
	}
	if len(cert.Signers(f.committee)) != 2 {
		t.Fatalf("unexpected signers %v", cert.Signers(f.committee))
	}

	_, err = Accumulate(f.committee, testAction, f.sigs(t, testAction, 0, 2), DefaultThreshold)
	var short *InsufficientStakeError
	if !errors.As(err, &short) || !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("6000 of 10000 must not certify, got %v", err)
	}
	if short.Have != 6000 || short.Need != DefaultThreshold {
		t.Fatalf("unexpected error %+v", short)
	}

	if _, err := Accumulate(f.committee, testAction, nil, DefaultThreshold); !errors.Is(err, ErrNoSignatures) {
		t.Fatalf("empty input: got %v", err)
	}
}

func TestAccumulateZeroWeightSigners(t *testing.T) {
	f := newFixture(t, map[int]bool{1: true}, 6000, 4000)
	outsider, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	sigs := f.sigs(t, testAction, 0, 1)
	s, _ := Sign(testAction, outsider)
	sigs[outsider.PublicKeyBytes()] = s.Auth.Signature

	_, err = Accumulate(f.committee, testAction, sigs, DefaultThreshold)
	var short *InsufficientStakeError
	if !errors.As(err, &short) || short.Have != 6000 {
		t.Fatalf("blocklisted and outsider must add nothing, got %v", err)
	}

	cert, err := Accumulate(f.committee, testAction, sigs, 6000)
	if err != nil {
		t.Fatal(err)
	}
	if len(cert.Auth.Signatures) != 3 {
		t.Fatalf("zero weight signatures must stay in the certificate, got %d", len(cert.Auth.Signatures))
	}
	if cert.Auth.Weight != 6000 {
		t.Fatalf("weight %d", cert.Auth.Weight)
	}
	signers := cert.Signers(f.committee)
	if len(signers) != 1 || signers[0] != f.keys[0].PublicKeyBytes() {
		t.Fatalf("unexpected signers %v", signers)
	}
}

func TestAccumulateInvalidSignatures(t *testing.T) {
	f := newFixture(t, nil, 5000, 3000, 2000)
	other := message.EmergencyAction{Nonce: 99, ChainID: types.IotaLocalTest}

	// A lone invalid signature is a hard error.
	single := f.sigs(t, other, 0)
	if _, err := Accumulate(f.committee, testAction, single, DefaultThreshold); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("single invalid signature: got %v", err)
	}

	// Otherwise it is dropped.
	sigs := f.sigs(t, testAction, 0, 1)
	for pk, sig := range f.sigs(t, other, 2) {
		sigs[pk] = sig
	}
	cert, err := Accumulate(f.committee, testAction, sigs, DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cert.Auth.Signatures[f.keys[2].PublicKeyBytes()]; ok {
		t.Fatalf("invalid signature kept in certificate")
	}
	if cert.Auth.Weight != 8000 {
		t.Fatalf("weight %d", cert.Auth.Weight)
	}

	sigs = f.sigs(t, testAction, 0)
	for pk, sig := range f.sigs(t, other, 1, 2) {
		sigs[pk] = sig
	}
	_, err = Accumulate(f.committee, testAction, sigs, DefaultThreshold)
	var short *InsufficientStakeError
	if !errors.As(err, &short) || short.Have != 5000 {
		t.Fatalf("expected insufficient stake with 5000, got %v", err)
	}
}

func TestAccumulateMonotonic(t *testing.T) {
	f := newFixture(t, map[int]bool{3: true}, 1500, 1500, 1000, 2000, 1000, 1500, 1500)
	r := rand.New(rand.NewSource(5))
	all := []int{0, 1, 2, 3, 4, 5, 6}
	for round := 0; round < 50; round++ {
		r.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
		var prev uint64
		reached := false
		for n := 1; n <= len(all); n++ {
			cert, err := Accumulate(f.committee, testAction, f.sigs(t, testAction, all[:n]...), DefaultThreshold)
			var have uint64
			var short *InsufficientStakeError
			switch {
			case err == nil:
				have = cert.Auth.Weight
				reached = true
			case errors.As(err, &short):
				if reached {
					t.Fatalf("round %d: superset of a quorum lost quorum", round)
				}
				have = short.Have
			default:
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
			if have < prev {
				t.Fatalf("round %d: weight decreased from %d to %d", round, prev, have)
			}
			prev = have
		}
		if prev != 8000 || !reached {
			t.Fatalf("round %d: full set weight %d", round, prev)
		}
	}
}

func TestMergeIsCommutativeAndAssociative(t *testing.T) {
	f := newFixture(t, nil, 5000, 3000, 2000)
	a := f.sigs(t, testAction, 0, 1)
	b := f.sigs(t, testAction, 1, 2)
	// Conflicting signature for key 1.
	other := message.EmergencyAction{Nonce: 99, ChainID: types.IotaLocalTest}
	for pk, sig := range f.sigs(t, other, 1) {
		b[pk] = sig
	}
	c := f.sigs(t, testAction, 0)
	digest, _ := message.Digest(testAction)
	merge := func(x, y map[crypto.PublicKeyBytes]crypto.RecoverableSignature) map[crypto.PublicKeyBytes]crypto.RecoverableSignature {
		return Merge(digest, x, y)
	}

	equal := func(x, y map[crypto.PublicKeyBytes]crypto.RecoverableSignature) bool {
		if len(x) != len(y) {
			return false
		}
		for k, v := range x {
			if y[k] != v {
				return false
			}
		}
		return true
	}
	if !equal(merge(a, b), merge(b, a)) {
		t.Fatalf("merge is not commutative")
	}
	if !equal(merge(merge(a, b), c), merge(a, merge(b, c))) {
		t.Fatalf("merge is not associative")
	}
	if len(merge(a, b)) != 3 {
		t.Fatalf("unexpected merged size %d", len(merge(a, b)))
	}
	if _, err := Accumulate(f.committee, testAction, merge(a, b), DefaultThreshold); err != nil {
		t.Fatalf("merged set must certify: %v", err)
	}
}

func TestMergeKeepsValidSignature(t *testing.T) {
	f := newFixture(t, nil, 7000, 3000)
	digest, _ := message.Digest(testAction)
	honest := f.sigs(t, testAction, 0)
	if _, err := Accumulate(f.committee, testAction, honest, DefaultThreshold); err != nil {
		t.Fatalf("honest set must certify: %v", err)
	}

	junk := f.sigs(t, testAction, 1)
	// The all-zero signature sorts before any real one.
	junk[f.keys[0].PublicKeyBytes()] = crypto.RecoverableSignature{}

	for name, merged := range map[string]map[crypto.PublicKeyBytes]crypto.RecoverableSignature{
		"honest first": Merge(digest, honest, junk),
		"junk first":   Merge(digest, junk, honest),
	} {
		if merged[f.keys[0].PublicKeyBytes()] != honest[f.keys[0].PublicKeyBytes()] {
			t.Fatalf("%s: valid signature replaced", name)
		}
		cert, err := Accumulate(f.committee, testAction, merged, DefaultThreshold)
		if err != nil {
			t.Fatalf("%s: merged set lost quorum: %v", name, err)
		}
		if cert.Auth.Weight != 10000 {
			t.Fatalf("%s: weight %d", name, cert.Auth.Weight)
		}
	}

	// Two invalid signatures still resolve the same way from both sides.
	x := map[crypto.PublicKeyBytes]crypto.RecoverableSignature{f.keys[1].PublicKeyBytes(): {1}}
	y := map[crypto.PublicKeyBytes]crypto.RecoverableSignature{f.keys[1].PublicKeyBytes(): {2}}
	if Merge(digest, x, y)[f.keys[1].PublicKeyBytes()] != Merge(digest, y, x)[f.keys[1].PublicKeyBytes()] {
		t.Fatalf("tie between invalid signatures depends on order")
	}
}

func TestThresholdBounds(t *testing.T) {
	f := newFixture(t, nil, 5000, 5000)
	outsider, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	sigs := f.sigs(t, testAction, 0, 1)
	lone, err := Sign(testAction, outsider)
	if err != nil {
		t.Fatal(err)
	}
	nonMember := map[crypto.PublicKeyBytes]crypto.RecoverableSignature{lone.Auth.AuthorityPubKey: lone.Auth.Signature}

	for _, threshold := range []uint64{0, committee.TotalVotingPower + 1} {
		if _, err := Accumulate(f.committee, testAction, nonMember, threshold); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("Accumulate threshold %d: got %v", threshold, err)
		}
		if _, err := Accumulate(f.committee, testAction, sigs, threshold); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("Accumulate threshold %d with full set: got %v", threshold, err)
		}
		if _, err := NewCollector(f.committee, threshold); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("NewCollector threshold %d: got %v", threshold, err)
		}
		cert := CertifiedAction{Envelope[message.BridgeAction, CommitteeSignInfo]{
			Data: testAction,
			Auth: CommitteeSignInfo{Signatures: sigs},
		}}
		if _, err := cert.Verify(f.committee, threshold); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("Verify threshold %d: got %v", threshold, err)
		}
	}

	if _, err := Accumulate(f.committee, testAction, sigs, committee.TotalVotingPower); err != nil {
		t.Fatalf("threshold equal to total must be accepted: %v", err)
	}
}

func TestCertifiedActionVerify(t *testing.T) {
	f := newFixture(t, nil, 5000, 3000, 2000)
	cert, err := Accumulate(f.committee, testAction, f.sigs(t, testAction, 0, 1, 2), DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	received := cert.CertifiedAction
	received.Auth.Weight = 0
	v, err := received.Verify(f.committee, DefaultThreshold)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Auth.Weight != 10000 {
		t.Fatalf("recomputed weight %d", v.Auth.Weight)
	}
	if err := v.VerifyUserInput(); err != nil {
		t.Fatal(err)
	}
	if err := v.VerifyEpoch(); err != nil {
		t.Fatal(err)
	}

	tampered := received
	tampered.Data = message.EmergencyAction{Nonce: 8, ChainID: types.IotaLocalTest}
	if _, err := tampered.Verify(f.committee, DefaultThreshold); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("tampered certificate: got %v", err)
	}

	if _, err := received.Verify(f.committee, 10001); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("threshold above total: got %v", err)
	}
}

func TestCollectorCertifiesOnce(t *testing.T) {
	f := newFixture(t, nil, 2500, 2500, 2500, 2500)
	col, err := NewCollector(f.committee, DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	digest, _ := message.Digest(testAction)

	var wg sync.WaitGroup
	var mu sync.Mutex
	certs := 0
	for i := range f.keys {
		s, err := Sign(testAction, f.keys[i])
		if err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func(s SignedAction) {
			defer wg.Done()
			ok, cert, err := col.Add(s)
			if err != nil {
				t.Errorf("add: %v", err)
				return
			}
			if ok {
				mu.Lock()
				certs++
				mu.Unlock()
				if cert.Auth.Weight < DefaultThreshold {
					t.Errorf("certificate below threshold: %d", cert.Auth.Weight)
				}
			}
		}(s)
	}
	wg.Wait()
	if certs != 1 {
		t.Fatalf("expected exactly one certificate, got %d", certs)
	}
	if _, ok := col.Certificate(digest); !ok {
		t.Fatalf("certificate not retained")
	}
	received, rejected, certified := col.Stats()
	if received != 4 || rejected != 0 || certified != 1 {
		t.Fatalf("stats %d/%d/%d", received, rejected, certified)
	}
	col.Delete(digest)
	if col.Weight(digest) != 0 {
		t.Fatalf("weight after delete %d", col.Weight(digest))
	}
}

func TestCollectorRejectsAndDeduplicates(t *testing.T) {
	f := newFixture(t, map[int]bool{2: true}, 5000, 3000, 2000)
	col, err := NewCollector(f.committee, DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	digest, _ := message.Digest(testAction)

	s0, _ := Sign(testAction, f.keys[0])
	for i := 0; i < 3; i++ {
		if ok, _, err := col.Add(s0); ok || err != nil {
			t.Fatalf("duplicate add %d: ok=%v err=%v", i, ok, err)
		}
	}
	if col.Weight(digest) != 5000 {
		t.Fatalf("duplicates counted: %d", col.Weight(digest))
	}

	blocked, _ := Sign(testAction, f.keys[2])
	if _, _, err := col.Add(blocked); !errors.Is(err, ErrInactiveAuthority) {
		t.Fatalf("blocklisted add: %v", err)
	}
	_, rejected, _ := col.Stats()
	if rejected != 1 {
		t.Fatalf("rejected %d", rejected)
	}

	s1, _ := Sign(testAction, f.keys[1])
	ok, cert, err := col.Add(s1)
	if !ok || err != nil || cert == nil {
		t.Fatalf("expected certificate, got ok=%v err=%v", ok, err)
	}
}
