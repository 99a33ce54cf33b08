// Package message defines the bridge actions authorities sign and the
// canonical byte layout both destination-chain verifiers reproduce.
//
// BridgeAction is a closed sum type: the seven variant structs below are its
// only members. Helpers dispatch with exhaustive type switches.
package message

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/types"
)

// BridgeAction is implemented by the action variants of this package only.
// Variants are plain values; pass them by value.
type BridgeAction interface {
	bridgeAction()
}

// EmittedIotaToEthTokenBridgeV1 is the sanitized deposit event emitted on the native chain.
type EmittedIotaToEthTokenBridgeV1 struct {
	Nonce       uint64            `json:"nonce"`
	IotaChainID types.ChainID     `json:"iota_chain_id"`
	EthChainID  types.ChainID     `json:"eth_chain_id"`
	IotaAddress types.IotaAddress `json:"iota_address"`
	EthAddress  common.Address    `json:"eth_address"`
	TokenID     types.TokenID     `json:"token_id"`
	// Amount with the native chain's decimal adjustment applied.
	AmountIotaAdjusted uint64 `json:"amount_iota_adjusted"`
}

// IotaToEthBridgeAction moves tokens from the native chain to an EVM chain.
type IotaToEthBridgeAction struct {
	IotaTxDigest     types.TransactionDigest       `json:"iota_tx_digest"`
	IotaTxEventIndex uint16                        `json:"iota_tx_event_index"`
	IotaBridgeEvent  EmittedIotaToEthTokenBridgeV1 `json:"iota_bridge_event"`
}

// EthToIotaTokenBridgeV1 is the sanitized TokensBridgedToIota log.
type EthToIotaTokenBridgeV1 struct {
	Nonce              uint64            `json:"nonce"`
	IotaChainID        types.ChainID     `json:"iota_chain_id"`
	EthChainID         types.ChainID     `json:"eth_chain_id"`
	IotaAddress        types.IotaAddress `json:"iota_address"`
	EthAddress         common.Address    `json:"eth_address"`
	TokenID            types.TokenID     `json:"token_id"`
	IotaAdjustedAmount uint64            `json:"iota_adjusted_amount"`
}

// EthToIotaBridgeAction moves tokens from an EVM chain to the native chain.
type EthToIotaBridgeAction struct {
	EthTxHash      common.Hash            `json:"eth_tx_hash"`
	EthEventIndex  uint16                 `json:"eth_event_index"`
	EthBridgeEvent EthToIotaTokenBridgeV1 `json:"eth_bridge_event"`
}

type BlocklistCommitteeAction struct {
	Nonce              uint64                  `json:"nonce"`
	ChainID            types.ChainID           `json:"chain_id"`
	BlocklistType      types.BlocklistType     `json:"blocklist_type"`
	BlocklistedMembers []crypto.PublicKeyBytes `json:"blocklisted_members"`
}

type EmergencyAction struct {
	Nonce      uint64                    `json:"nonce"`
	ChainID    types.ChainID             `json:"chain_id"`
	ActionType types.EmergencyActionType `json:"action_type"`
}

// LimitUpdateAction sets the USD limit of the SendingChainID -> ChainID route.
// ChainID is both the chain that receives the signed action and the
// destination of the route.
type LimitUpdateAction struct {
	Nonce          uint64        `json:"nonce"`
	ChainID        types.ChainID `json:"chain_id"`
	SendingChainID types.ChainID `json:"sending_chain_id"`
	NewUSDLimit    uint64        `json:"new_usd_limit"`
}

type AssetPriceUpdateAction struct {
	Nonce       uint64        `json:"nonce"`
	ChainID     types.ChainID `json:"chain_id"`
	TokenID     types.TokenID `json:"token_id"`
	NewUSDPrice uint64        `json:"new_usd_price"`
}

type EvmContractUpgradeAction struct {
	Nonce          uint64         `json:"nonce"`
	ChainID        types.ChainID  `json:"chain_id"`
	ProxyAddress   common.Address `json:"proxy_address"`
	NewImplAddress common.Address `json:"new_impl_address"`
	CallData       []byte         `json:"call_data"`
}

func (IotaToEthBridgeAction) bridgeAction()    {}
func (EthToIotaBridgeAction) bridgeAction()    {}
func (BlocklistCommitteeAction) bridgeAction() {}
func (EmergencyAction) bridgeAction()          {}
func (LimitUpdateAction) bridgeAction()        {}
func (AssetPriceUpdateAction) bridgeAction()   {}
func (EvmContractUpgradeAction) bridgeAction() {}

// ActionType is also called the message type.
func ActionType(a BridgeAction) types.ActionType {
	switch a.(type) {
	case IotaToEthBridgeAction, EthToIotaBridgeAction:
		return types.TokenTransfer
	case BlocklistCommitteeAction:
		return types.UpdateCommitteeBlocklist
	case EmergencyAction:
		return types.EmergencyButton
	case LimitUpdateAction:
		return types.LimitUpdate
	case AssetPriceUpdateAction:
		return types.AssetPriceUpdate
	case EvmContractUpgradeAction:
		return types.EvmContractUpgrade
	}
	panic(unknownAction(a))
}

// ChainID returns the source chain of a transfer, or the chain a governance
// action targets.
func ChainID(a BridgeAction) types.ChainID {
	switch a := a.(type) {
	case IotaToEthBridgeAction:
		return a.IotaBridgeEvent.IotaChainID
	case EthToIotaBridgeAction:
		return a.EthBridgeEvent.EthChainID
	case BlocklistCommitteeAction:
		return a.ChainID
	case EmergencyAction:
		return a.ChainID
	case LimitUpdateAction:
		return a.ChainID
	case AssetPriceUpdateAction:
		return a.ChainID
	case EvmContractUpgradeAction:
		return a.ChainID
	}
	panic(unknownAction(a))
}

// SeqNumber returns the action nonce. Replay protection against it is the
// destination verifier's job.
func SeqNumber(a BridgeAction) uint64 {
	switch a := a.(type) {
	case IotaToEthBridgeAction:
		return a.IotaBridgeEvent.Nonce
	case EthToIotaBridgeAction:
		return a.EthBridgeEvent.Nonce
	case BlocklistCommitteeAction:
		return a.Nonce
	case EmergencyAction:
		return a.Nonce
	case LimitUpdateAction:
		return a.Nonce
	case AssetPriceUpdateAction:
		return a.Nonce
	case EvmContractUpgradeAction:
		return a.Nonce
	}
	panic(unknownAction(a))
}

// IsGovernanceAction is false for token transfers and true for every other action.
func IsGovernanceAction(a BridgeAction) bool {
	switch ActionType(a) {
	case types.TokenTransfer:
		return false
	case types.UpdateCommitteeBlocklist,
		types.EmergencyButton,
		types.LimitUpdate,
		types.AssetPriceUpdate,
		types.EvmContractUpgrade:
		return true
	}
	panic(unknownAction(a))
}

// MessageKey is the key a destination chain records an action under.
type MessageKey struct {
	SourceChain types.ChainID    `json:"source_chain"`
	MessageType types.ActionType `json:"message_type"`
	SeqNum      uint64           `json:"bridge_seq_num"`
}

func Key(a BridgeAction) MessageKey {
	return MessageKey{
		SourceChain: ChainID(a),
		MessageType: ActionType(a),
		SeqNum:      SeqNumber(a),
	}
}

func (k MessageKey) String() string {
	return fmt.Sprintf("%v/%v/%d", k.SourceChain, k.MessageType, k.SeqNum)
}

func unknownAction(a BridgeAction) string {
	return fmt.Sprintf("unknown bridge action %T", a)
}
