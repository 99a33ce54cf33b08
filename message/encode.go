package message

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/types"
)

// BridgeMessagePrefix domain-separates bridge messages from anything else an
// authority key could sign.
var BridgeMessagePrefix = []byte("IOTA_BRIDGE_MESSAGE")

var (
	ErrLengthOverflow = errors.New("length prefixed field overflows one byte")
	ErrUnknownAction  = errors.New("unknown bridge action")
)

// LengthOverflowError reports a variable length field that does not fit
// behind a single length byte.
type LengthOverflowError struct {
	Field string
	Len   int
}

func (e *LengthOverflowError) Error() string {
	return fmt.Sprintf("%s: %d entries exceed 255", e.Field, e.Len)
}

func (e *LengthOverflowError) Unwrap() error { return ErrLengthOverflow }

// ActionDigest is the Keccak256 of an action's canonical bytes. It is the
// value every authority signs.
type ActionDigest [32]byte

func (d ActionDigest) Hex() string { return hexutil.Encode(d[:]) }

func (d ActionDigest) String() string { return d.Hex() }

func (d ActionDigest) MarshalText() ([]byte, error) { return []byte(d.Hex()), nil }

func (d *ActionDigest) UnmarshalText(text []byte) error {
	b, err := hexutil.Decode(string(text))
	if err != nil {
		return fmt.Errorf("invalid action digest: %w", err)
	}
	if len(b) != len(d) {
		return fmt.Errorf("invalid action digest: expected 32 bytes, got %d", len(b))
	}
	copy(d[:], b)
	return nil
}

// ToBytes returns the message bytes verified by the Move module and the EVM
// contract: prefix, type, version, big-endian nonce, then the payload.
func ToBytes(a BridgeAction) ([]byte, error) {
	buf := make([]byte, 0, 128)
	buf = append(buf, BridgeMessagePrefix...)
	var err error
	switch a := a.(type) {
	case IotaToEthBridgeAction:
		buf = a.appendBytes(buf)
	case EthToIotaBridgeAction:
		buf = a.appendBytes(buf)
	case BlocklistCommitteeAction:
		buf, err = a.appendBytes(buf)
	case EmergencyAction:
		buf = a.appendBytes(buf)
	case LimitUpdateAction:
		buf = a.appendBytes(buf)
	case AssetPriceUpdateAction:
		buf = a.appendBytes(buf)
	case EvmContractUpgradeAction:
		buf, err = a.appendBytes(buf)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Digest hashes the canonical bytes with Keccak256, matching the EVM contract.
func Digest(a BridgeAction) (ActionDigest, error) {
	b, err := ToBytes(a)
	if err != nil {
		return ActionDigest{}, err
	}
	return crypto.Keccak256Digest(b), nil
}

func appendHeader(buf []byte, t types.ActionType, nonce uint64) []byte {
	buf = append(buf, byte(t), t.MessageVersion())
	return binary.BigEndian.AppendUint64(buf, nonce)
}

func (a IotaToEthBridgeAction) appendBytes(buf []byte) []byte {
	e := a.IotaBridgeEvent
	buf = appendHeader(buf, types.TokenTransfer, e.Nonce)
	buf = append(buf, byte(e.IotaChainID), types.IotaAddressLength)
	buf = append(buf, e.IotaAddress[:]...)
	buf = append(buf, byte(e.EthChainID), types.EthAddressLength)
	buf = append(buf, e.EthAddress.Bytes()...)
	buf = append(buf, byte(e.TokenID))
	return binary.BigEndian.AppendUint64(buf, e.AmountIotaAdjusted)
}

func (a EthToIotaBridgeAction) appendBytes(buf []byte) []byte {
	e := a.EthBridgeEvent
	buf = appendHeader(buf, types.TokenTransfer, e.Nonce)
	buf = append(buf, byte(e.EthChainID), types.EthAddressLength)
	buf = append(buf, e.EthAddress.Bytes()...)
	buf = append(buf, byte(e.IotaChainID), types.IotaAddressLength)
	buf = append(buf, e.IotaAddress[:]...)
	buf = append(buf, byte(e.TokenID))
	return binary.BigEndian.AppendUint64(buf, e.IotaAdjustedAmount)
}

func (a BlocklistCommitteeAction) appendBytes(buf []byte) ([]byte, error) {
	buf = appendHeader(buf, types.UpdateCommitteeBlocklist, a.Nonce)
	buf = append(buf, byte(a.ChainID), byte(a.BlocklistType))
	// Members travel as their 20-byte EVM addresses.
	members := make([]byte, 0, len(a.BlocklistedMembers)*types.EthAddressLength)
	for _, m := range a.BlocklistedMembers {
		addr, err := m.ToEthAddress()
		if err != nil {
			return nil, fmt.Errorf("blocklisted member %s: %w", m, err)
		}
		members = append(members, addr.Bytes()...)
	}
	if len(a.BlocklistedMembers) > 0xff {
		return nil, &LengthOverflowError{Field: "blocklisted_members", Len: len(a.BlocklistedMembers)}
	}
	buf = append(buf, byte(len(a.BlocklistedMembers)))
	return append(buf, members...), nil
}

func (a EmergencyAction) appendBytes(buf []byte) []byte {
	buf = appendHeader(buf, types.EmergencyButton, a.Nonce)
	return append(buf, byte(a.ChainID), byte(a.ActionType))
}

func (a LimitUpdateAction) appendBytes(buf []byte) []byte {
	buf = appendHeader(buf, types.LimitUpdate, a.Nonce)
	buf = append(buf, byte(a.ChainID), byte(a.SendingChainID))
	return binary.BigEndian.AppendUint64(buf, a.NewUSDLimit)
}

func (a AssetPriceUpdateAction) appendBytes(buf []byte) []byte {
	buf = appendHeader(buf, types.AssetPriceUpdate, a.Nonce)
	buf = append(buf, byte(a.ChainID), byte(a.TokenID))
	return binary.BigEndian.AppendUint64(buf, a.NewUSDPrice)
}

// upgradePayload is the ABI tuple (address proxy, address newImpl, bytes callData)
// the EVM contract decodes directly out of the message.
var upgradePayload = mustUpgradePayloadArguments()

func mustUpgradePayloadArguments() abi.Arguments {
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: addressTy}, {Type: addressTy}, {Type: bytesTy}}
}

func (a EvmContractUpgradeAction) appendBytes(buf []byte) ([]byte, error) {
	buf = appendHeader(buf, types.EvmContractUpgrade, a.Nonce)
	buf = append(buf, byte(a.ChainID))
	callData := a.CallData
	if callData == nil {
		callData = []byte{}
	}
	payload, err := upgradePayload.Pack(a.ProxyAddress, a.NewImplAddress, callData)
	if err != nil {
		return nil, fmt.Errorf("abi encode upgrade payload: %w", err)
	}
	return append(buf, payload...), nil
}

// DecodeUpgradePayload unpacks the ABI payload of an encoded upgrade message,
// i.e. the bytes after the chain id.
func DecodeUpgradePayload(payload []byte) (EvmContractUpgradeAction, error) {
	var out EvmContractUpgradeAction
	values, err := upgradePayload.Unpack(payload)
	if err != nil {
		return out, fmt.Errorf("abi decode upgrade payload: %w", err)
	}
	proxy, ok1 := values[0].(common.Address)
	impl, ok2 := values[1].(common.Address)
	callData, ok3 := values[2].([]byte)
	if !ok1 || !ok2 || !ok3 {
		return out, fmt.Errorf("abi decode upgrade payload: unexpected value types %T %T %T", values[0], values[1], values[2])
	}
	out.ProxyAddress = proxy
	out.NewImplAddress = impl
	out.CallData = callData
	return out, nil
}
