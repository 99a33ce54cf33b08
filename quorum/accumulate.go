// Package quorum turns authority signatures into committee certificates.
//
// Accumulate and Merge are pure. Collector is a locked convenience for
// callers that receive signatures one at a time.
package quorum

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/rafnixschaf/iota-sub000/committee"
	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/log"
	"github.com/rafnixschaf/iota-sub000/message"
)

// DefaultThreshold is the usual certification threshold: more than two thirds
// of TotalVotingPower.
const DefaultThreshold uint64 = 6667

var (
	ErrInvalidSignature  = errors.New("invalid authority signature")
	ErrSignerMismatch    = crypto.ErrSignerMismatch
	ErrInsufficientStake = errors.New("insufficient stake")
	ErrNoSignatures      = errors.New("no signatures")
	ErrInactiveAuthority = errors.New("authority is not an active committee member")
	ErrInvalidThreshold  = errors.New("threshold must be within 1..10000")
)

func checkThreshold(threshold uint64) error {
	if threshold == 0 || threshold > committee.TotalVotingPower {
		return fmt.Errorf("%w: got %d", ErrInvalidThreshold, threshold)
	}
	return nil
}

// InsufficientStakeError matches ErrInsufficientStake. More signatures may
// still certify the action.
type InsufficientStakeError struct {
	Have uint64
	Need uint64
}

func (e *InsufficientStakeError) Error() string {
	return fmt.Sprintf("insufficient stake: have %d, need %d", e.Have, e.Need)
}

func (e *InsufficientStakeError) Unwrap() error { return ErrInsufficientStake }

// Sign produces kp's signature over the action digest.
func Sign(action message.BridgeAction, kp *crypto.KeyPair) (SignedAction, error) {
	digest, err := message.Digest(action)
	if err != nil {
		return SignedAction{}, err
	}
	return SignDigest(action, digest, kp)
}

// SignDigest signs an action whose digest the caller already computed.
func SignDigest(action message.BridgeAction, digest message.ActionDigest, kp *crypto.KeyPair) (SignedAction, error) {
	sig, err := kp.SignDigest(digest)
	if err != nil {
		return SignedAction{}, err
	}
	return SignedAction{Envelope[message.BridgeAction, crypto.AuthoritySignInfo]{
		Data: action,
		Auth: crypto.AuthoritySignInfo{AuthorityPubKey: kp.PublicKeyBytes(), Signature: sig},
	}}, nil
}

// VerifySigned checks the signature and that the signer is an active member.
func VerifySigned(c *committee.Committee, s SignedAction) (VerifiedSignedAction, error) {
	digest, err := message.Digest(s.Data)
	if err != nil {
		return VerifiedSignedAction{}, err
	}
	if err := s.Auth.Verify(digest); err != nil {
		return VerifiedSignedAction{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if !c.IsActiveMember(s.Auth.AuthorityPubKey) {
		return VerifiedSignedAction{}, fmt.Errorf("%w: %s", ErrInactiveAuthority, s.Auth.AuthorityPubKey)
	}
	return VerifiedSignedAction{SignedAction: s, digest: digest}, nil
}

// Accumulate verifies sigs against the action digest and certifies the action
// once the stake of valid signatures from active members reaches threshold.
//
// Invalid signatures are dropped, unless sigs holds exactly one signature.
// Valid signatures from non-members and blocklisted members are kept with
// zero weight.
func Accumulate(
	c *committee.Committee,
	action message.BridgeAction,
	sigs map[crypto.PublicKeyBytes]crypto.RecoverableSignature,
	threshold uint64,
) (VerifiedCertifiedAction, error) {
	if err := checkThreshold(threshold); err != nil {
		return VerifiedCertifiedAction{}, err
	}
	if len(sigs) == 0 {
		return VerifiedCertifiedAction{}, ErrNoSignatures
	}
	digest, err := message.Digest(action)
	if err != nil {
		return VerifiedCertifiedAction{}, err
	}
	kept := make(map[crypto.PublicKeyBytes]crypto.RecoverableSignature, len(sigs))
	var weight uint64
	for pk, sig := range sigs {
		if err := crypto.VerifyRecoverable(pk, sig, digest); err != nil {
			if len(sigs) == 1 {
				return VerifiedCertifiedAction{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
			}
			log.Warningf("dropping signature from %s on %s: %v", pk, digest, err)
			continue
		}
		kept[pk] = sig
		if c.IsActiveMember(pk) {
			weight += c.Weight(pk)
		}
	}
	if weight < threshold {
		return VerifiedCertifiedAction{}, &InsufficientStakeError{Have: weight, Need: threshold}
	}
	return VerifiedCertifiedAction{
		CertifiedAction: CertifiedAction{Envelope[message.BridgeAction, CommitteeSignInfo]{
			Data: action,
			Auth: CommitteeSignInfo{Signatures: kept, Weight: weight},
		}},
		digest: digest,
	}, nil
}

// Merge unions two signature maps over the action with the given digest.
// When both hold a different signature for the same authority, a signature
// that recovers to that authority beats one that does not; between two of
// the same kind the bytewise smaller wins. The choice is a fixed total order,
// so Merge is commutative and associative and never loses a valid signature.
func Merge(digest message.ActionDigest, a, b map[crypto.PublicKeyBytes]crypto.RecoverableSignature) map[crypto.PublicKeyBytes]crypto.RecoverableSignature {
	out := make(map[crypto.PublicKeyBytes]crypto.RecoverableSignature, len(a)+len(b))
	for pk, sig := range a {
		out[pk] = sig
	}
	for pk, sig := range b {
		prev, ok := out[pk]
		if ok && !preferSignature(pk, digest, sig, prev) {
			continue
		}
		out[pk] = sig
	}
	return out
}

// preferSignature reports whether x ranks before y as pk's signature on digest.
func preferSignature(pk crypto.PublicKeyBytes, digest message.ActionDigest, x, y crypto.RecoverableSignature) bool {
	if x == y {
		return false
	}
	xValid := crypto.VerifyRecoverable(pk, x, digest) == nil
	yValid := crypto.VerifyRecoverable(pk, y, digest) == nil
	if xValid != yValid {
		return xValid
	}
	return bytes.Compare(x[:], y[:]) < 0
}

// Verify re-checks a certificate received from elsewhere. Unlike Accumulate,
// every signature in it must be valid.
func (ca CertifiedAction) Verify(c *committee.Committee, threshold uint64) (VerifiedCertifiedAction, error) {
	if err := checkThreshold(threshold); err != nil {
		return VerifiedCertifiedAction{}, err
	}
	if len(ca.Auth.Signatures) == 0 {
		return VerifiedCertifiedAction{}, ErrNoSignatures
	}
	digest, err := message.Digest(ca.Data)
	if err != nil {
		return VerifiedCertifiedAction{}, err
	}
	var weight uint64
	for pk, sig := range ca.Auth.Signatures {
		if err := crypto.VerifyRecoverable(pk, sig, digest); err != nil {
			return VerifiedCertifiedAction{}, fmt.Errorf("%w: %s: %w", ErrInvalidSignature, pk, err)
		}
		if c.IsActiveMember(pk) {
			weight += c.Weight(pk)
		}
	}
	if weight < threshold {
		return VerifiedCertifiedAction{}, &InsufficientStakeError{Have: weight, Need: threshold}
	}
	ca.Auth.Weight = weight
	return VerifiedCertifiedAction{CertifiedAction: ca, digest: digest}, nil
}
