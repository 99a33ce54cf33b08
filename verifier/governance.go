package verifier

import (
	"context"
	"fmt"

	"github.com/rafnixschaf/iota-sub000/log"
	"github.com/rafnixschaf/iota-sub000/message"
)

// GovernanceVerifier approves exactly the governance actions it was built
// with, keyed by action digest.
type GovernanceVerifier struct {
	approved map[message.ActionDigest]message.BridgeAction
}

func NewGovernanceVerifier(approved []message.BridgeAction) (*GovernanceVerifier, error) {
	v := &GovernanceVerifier{approved: make(map[message.ActionDigest]message.BridgeAction, len(approved))}
	for _, a := range approved {
		if !message.IsGovernanceAction(a) {
			return nil, fmt.Errorf("%w: %v", ErrNotGovernanceAction, message.Key(a))
		}
		digest, err := message.Digest(a)
		if err != nil {
			return nil, err
		}
		v.approved[digest] = a
	}
	log.Debugf("governance verifier with %d approved actions", len(v.approved))
	return v, nil
}

// Verify returns the approved action with the given digest.
func (v *GovernanceVerifier) Verify(_ context.Context, digest message.ActionDigest) (message.BridgeAction, error) {
	a, ok := v.approved[digest]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGovernanceActionNotApproved, digest)
	}
	return a, nil
}

// VerifyAction returns action if it is an approved governance action.
func (v *GovernanceVerifier) VerifyAction(ctx context.Context, action message.BridgeAction) (message.BridgeAction, error) {
	if !message.IsGovernanceAction(action) {
		return nil, fmt.Errorf("%w: %v", ErrNotGovernanceAction, message.Key(action))
	}
	digest, err := message.Digest(action)
	if err != nil {
		return nil, err
	}
	return v.Verify(ctx, digest)
}

func (v *GovernanceVerifier) Len() int { return len(v.approved) }
