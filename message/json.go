package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rafnixschaf/iota-sub000/types"
)

var ErrUnknownActionType = errors.New("unknown action type tag")

const (
	typeIotaToEth          = "iota_to_eth"
	typeEthToIota          = "eth_to_iota"
	typeBlocklistCommittee = "blocklist_committee"
	typeEmergency          = "emergency"
	typeLimitUpdate        = "limit_update"
	typeAssetPriceUpdate   = "asset_price_update"
	typeEvmContractUpgrade = "evm_contract_upgrade"
)

// jsonAction is the tagged wire form used by the CLI, the signature store and
// peers exchanging actions.
type jsonAction struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func typeTag(a BridgeAction) (string, error) {
	switch a.(type) {
	case IotaToEthBridgeAction:
		return typeIotaToEth, nil
	case EthToIotaBridgeAction:
		return typeEthToIota, nil
	case BlocklistCommitteeAction:
		return typeBlocklistCommittee, nil
	case EmergencyAction:
		return typeEmergency, nil
	case LimitUpdateAction:
		return typeLimitUpdate, nil
	case AssetPriceUpdateAction:
		return typeAssetPriceUpdate, nil
	case EvmContractUpgradeAction:
		return typeEvmContractUpgrade, nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownAction, a)
}

// MarshalJSONAction encodes a as {"type": <tag>, "payload": <variant>}.
func MarshalJSONAction(a BridgeAction) ([]byte, error) {
	tag, err := typeTag(a)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonAction{Type: tag, Payload: payload})
}

// UnmarshalJSONAction is the inverse of MarshalJSONAction.
func UnmarshalJSONAction(data []byte) (BridgeAction, error) {
	var env jsonAction
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case typeIotaToEth:
		return decodePayload[IotaToEthBridgeAction](env.Payload)
	case typeEthToIota:
		return decodePayload[EthToIotaBridgeAction](env.Payload)
	case typeBlocklistCommittee:
		return decodePayload[BlocklistCommitteeAction](env.Payload)
	case typeEmergency:
		return decodePayload[EmergencyAction](env.Payload)
	case typeLimitUpdate:
		return decodePayload[LimitUpdateAction](env.Payload)
	case typeAssetPriceUpdate:
		return decodePayload[AssetPriceUpdateAction](env.Payload)
	case typeEvmContractUpgrade:
		return decodePayload[EvmContractUpgradeAction](env.Payload)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, env.Type)
}

func decodePayload[T BridgeAction](raw json.RawMessage) (BridgeAction, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if err := Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

// usdAmount accepts either the raw fixed point integer or a decimal dollar
// string such as "1000000.5".
type usdAmount uint64

func (u *usdAmount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := types.ParseUSD(s)
		if err != nil {
			return err
		}
		*u = usdAmount(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*u = usdAmount(v)
	return nil
}

func (a *LimitUpdateAction) UnmarshalJSON(data []byte) error {
	type plain LimitUpdateAction
	aux := struct {
		*plain
		NewUSDLimit usdAmount `json:"new_usd_limit"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.NewUSDLimit = uint64(aux.NewUSDLimit)
	return nil
}

func (a *AssetPriceUpdateAction) UnmarshalJSON(data []byte) error {
	type plain AssetPriceUpdateAction
	aux := struct {
		*plain
		NewUSDPrice usdAmount `json:"new_usd_price"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.NewUSDPrice = uint64(aux.NewUSDPrice)
	return nil
}
