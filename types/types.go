package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrUnknownValue is returned when a wire byte names no known enum member.
var ErrUnknownValue = errors.New("unknown enum value")

// ChainID identifies a bridge endpoint chain. Values are frozen; they are
// emitted as single bytes in signed bridge messages.
type ChainID byte

const (
	IotaMainnet   ChainID = 0
	IotaTestnet   ChainID = 1
	IotaDevnet    ChainID = 2
	IotaLocalTest ChainID = 3

	EthMainnet   ChainID = 10
	EthSepolia   ChainID = 11
	EthLocalTest ChainID = 12
)

var chainNames = map[ChainID]string{
	IotaMainnet:   "IotaMainnet",
	IotaTestnet:   "IotaTestnet",
	IotaDevnet:    "IotaDevnet",
	IotaLocalTest: "IotaLocalTest",
	EthMainnet:    "EthMainnet",
	EthSepolia:    "EthSepolia",
	EthLocalTest:  "EthLocalTest",
}

// ParseChainID converts a wire byte into a known ChainID.
func ParseChainID(b byte) (ChainID, error) {
	id := ChainID(b)
	if _, ok := chainNames[id]; !ok {
		return 0, fmt.Errorf("%w: chain id %d", ErrUnknownValue, b)
	}
	return id, nil
}

// IsNative reports whether the chain is one of the native (Move) chains.
func (c ChainID) IsNative() bool {
	return c <= IotaLocalTest
}

// IsExternal reports whether the chain is one of the EVM chains.
func (c ChainID) IsExternal() bool {
	return c >= EthMainnet && c <= EthLocalTest
}

func (c ChainID) String() string {
	if name, ok := chainNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ChainID(%d)", byte(c))
}

// TokenID identifies a bridged token kind. The numeric order is the
// canonical order used wherever tokens are listed.
type TokenID byte

const (
	TokenIota TokenID = 0 + iota
	TokenBTC
	TokenETH
	TokenUSDC
	TokenUSDT
)

var tokenNames = []string{
	TokenIota: "IOTA",
	TokenBTC:  "BTC",
	TokenETH:  "ETH",
	TokenUSDC: "USDC",
	TokenUSDT: "USDT",
}

// ParseTokenID converts a wire byte into a known TokenID.
func ParseTokenID(b byte) (TokenID, error) {
	if int(b) >= len(tokenNames) {
		return 0, fmt.Errorf("%w: token id %d", ErrUnknownValue, b)
	}
	return TokenID(b), nil
}

func (t TokenID) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenID(%d)", byte(t))
}

// ActionType discriminates the kinds of bridge messages. It is the first
// byte after the message prefix.
type ActionType byte

const (
	TokenTransfer ActionType = 0 + iota
	UpdateCommitteeBlocklist
	EmergencyButton
	LimitUpdate
	AssetPriceUpdate
	EvmContractUpgrade
)

var actionTypeNames = []string{
	TokenTransfer:            "TokenTransfer",
	UpdateCommitteeBlocklist: "UpdateCommitteeBlocklist",
	EmergencyButton:          "EmergencyButton",
	LimitUpdate:              "LimitUpdate",
	AssetPriceUpdate:         "AssetPriceUpdate",
	EvmContractUpgrade:       "EvmContractUpgrade",
}

func (a ActionType) String() string {
	if int(a) < len(actionTypeNames) {
		return actionTypeNames[a]
	}
	return fmt.Sprintf("ActionType(%d)", byte(a))
}

// Message versions, one per action type. A layout change requires a bump.
const (
	TokenTransferMessageVersion      byte = 1
	CommitteeBlocklistMessageVersion byte = 1
	EmergencyButtonMessageVersion    byte = 1
	LimitUpdateMessageVersion        byte = 1
	AssetPriceUpdateMessageVersion   byte = 1
	EvmContractUpgradeMessageVersion byte = 1
)

// MessageVersion returns the current wire version for an action type.
func (a ActionType) MessageVersion() byte {
	switch a {
	case TokenTransfer:
		return TokenTransferMessageVersion
	case UpdateCommitteeBlocklist:
		return CommitteeBlocklistMessageVersion
	case EmergencyButton:
		return EmergencyButtonMessageVersion
	case LimitUpdate:
		return LimitUpdateMessageVersion
	case AssetPriceUpdate:
		return AssetPriceUpdateMessageVersion
	case EvmContractUpgrade:
		return EvmContractUpgradeMessageVersion
	}
	panic(fmt.Sprintf("no message version for %v", a))
}

type BlocklistType byte

const (
	Blocklist BlocklistType = 0 + iota
	Unblocklist
)

func ParseBlocklistType(b byte) (BlocklistType, error) {
	if BlocklistType(b) > Unblocklist {
		return 0, fmt.Errorf("%w: blocklist type %d", ErrUnknownValue, b)
	}
	return BlocklistType(b), nil
}

type EmergencyActionType byte

const (
	Pause EmergencyActionType = 0 + iota
	Unpause
)

func ParseEmergencyActionType(b byte) (EmergencyActionType, error) {
	if EmergencyActionType(b) > Unpause {
		return 0, fmt.Errorf("%w: emergency action type %d", ErrUnknownValue, b)
	}
	return EmergencyActionType(b), nil
}

// The enums travel as JSON numbers; decoding rejects values the on-chain
// verifiers do not know.

func (c *ChainID) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, c, ParseChainID)
}

func (t *TokenID) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, t, ParseTokenID)
}

func (t *BlocklistType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, t, ParseBlocklistType)
}

func (t *EmergencyActionType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, t, ParseEmergencyActionType)
}

func unmarshalEnum[T ~byte](data []byte, dst *T, parse func(byte) (T, error)) error {
	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid %T: %w", *dst, err)
	}
	if v > math.MaxUint8 {
		return fmt.Errorf("%w: %T %d", ErrUnknownValue, *dst, v)
	}
	parsed, err := parse(byte(v))
	if err != nil {
		return err
	}
	*dst = parsed
	return nil
}

// Lengths of addresses and transaction identifiers on both sides of the bridge.
const (
	IotaAddressLength  = 32
	IotaTxDigestLength = 32
	EthAddressLength   = 20
	EthTxHashLength    = 32
)

// IotaAddress is a native-chain account address.
type IotaAddress [IotaAddressLength]byte

// TransactionDigest identifies a native-chain transaction.
type TransactionDigest [IotaTxDigestLength]byte

func (a IotaAddress) Hex() string { return hexutil.Encode(a[:]) }

func (a IotaAddress) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

func (a *IotaAddress) UnmarshalText(text []byte) error {
	return decodeFixedHex(text, a[:], "iota address")
}

// HexToIotaAddress parses a 0x-prefixed 32-byte address.
func HexToIotaAddress(s string) (IotaAddress, error) {
	var a IotaAddress
	err := a.UnmarshalText([]byte(s))
	return a, err
}

func (d TransactionDigest) Hex() string { return hexutil.Encode(d[:]) }

func (d TransactionDigest) MarshalText() ([]byte, error) { return []byte(d.Hex()), nil }

func (d *TransactionDigest) UnmarshalText(text []byte) error {
	return decodeFixedHex(text, d[:], "transaction digest")
}

func decodeFixedHex(text []byte, dst []byte, what string) error {
	b, err := hexutil.Decode(string(text))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", what, err)
	}
	if len(b) != len(dst) {
		return fmt.Errorf("invalid %s: expected %d bytes, got %d", what, len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
