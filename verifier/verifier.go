// Package verifier decides whether an authority should sign an action.
package verifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rafnixschaf/iota-sub000/message"
	"github.com/rafnixschaf/iota-sub000/types"
)

var (
	ErrNotGovernanceAction         = errors.New("action is not a governance action")
	ErrGovernanceActionNotApproved = errors.New("governance action is not approved")
	ErrNoBridgeEvent               = errors.New("no bridge event at tx position")
)

// ActionVerifier resolves key to the action it denotes, or refuses.
type ActionVerifier[K comparable] interface {
	Verify(ctx context.Context, key K) (message.BridgeAction, error)
}

// Func adapts a plain function to ActionVerifier.
type Func[K comparable] func(ctx context.Context, key K) (message.BridgeAction, error)

func (f Func[K]) Verify(ctx context.Context, key K) (message.BridgeAction, error) {
	return f(ctx, key)
}

// IsCacheable reports whether a verification failure will not change on
// retry. Other errors, such as RPC failures, are transient.
func IsCacheable(err error) bool {
	return errors.Is(err, ErrNotGovernanceAction) ||
		errors.Is(err, ErrGovernanceActionNotApproved) ||
		errors.Is(err, ErrNoBridgeEvent)
}

// IotaTxKey locates a bridge event on the native chain.
type IotaTxKey struct {
	TxDigest   types.TransactionDigest
	EventIndex uint16
}

func (k IotaTxKey) String() string { return fmt.Sprintf("%s:%d", k.TxDigest.Hex(), k.EventIndex) }

// EthTxKey locates a bridge log on an EVM chain.
type EthTxKey struct {
	TxHash     common.Hash
	EventIndex uint16
}

func (k EthTxKey) String() string { return fmt.Sprintf("%s:%d", k.TxHash.Hex(), k.EventIndex) }
