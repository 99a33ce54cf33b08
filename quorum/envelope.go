package quorum

import (
	"github.com/rafnixschaf/iota-sub000/committee"
	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/message"
)

// Envelope pairs data with the authentication that covers it.
type Envelope[T any, S any] struct {
	Data T `json:"data"`
	Auth S `json:"auth"`
}

// VerifyUserInput is a no-op: bridge actions are validated by the
// destination chain, not by the envelope.
func (Envelope[T, S]) VerifyUserInput() error { return nil }

// VerifyEpoch is a no-op: the committee is passed explicitly instead.
func (Envelope[T, S]) VerifyEpoch() error { return nil }

// SignedAction carries one authority's signature over an action digest.
type SignedAction struct {
	Envelope[message.BridgeAction, crypto.AuthoritySignInfo]
}

// CommitteeSignInfo is the signature map of a certificate. Signatures from
// non-members and blocklisted members may be present and do not count
// towards Weight.
type CommitteeSignInfo struct {
	Signatures map[crypto.PublicKeyBytes]crypto.RecoverableSignature `json:"signatures"`
	Weight     uint64                                                `json:"weight"`
}

type CertifiedAction struct {
	Envelope[message.BridgeAction, CommitteeSignInfo]
}

// VerifiedSignedAction is only produced by VerifySigned.
type VerifiedSignedAction struct {
	SignedAction
	digest message.ActionDigest
}

func (v VerifiedSignedAction) Digest() message.ActionDigest { return v.digest }

// VerifiedCertifiedAction is only produced by Accumulate and
// CertifiedAction.Verify.
type VerifiedCertifiedAction struct {
	CertifiedAction
	digest message.ActionDigest
}

func (v VerifiedCertifiedAction) Digest() message.ActionDigest { return v.digest }

// Signers returns the identities whose stake counted towards the certificate.
func (v VerifiedCertifiedAction) Signers(c *committee.Committee) []crypto.PublicKeyBytes {
	out := make([]crypto.PublicKeyBytes, 0, len(v.Auth.Signatures))
	for _, m := range c.Members() {
		if _, ok := v.Auth.Signatures[m.PubKey]; ok && c.IsActiveMember(m.PubKey) {
			out = append(out, m.PubKey)
		}
	}
	return out
}
