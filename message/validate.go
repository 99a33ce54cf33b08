package message

import (
	"errors"
	"fmt"
)

var ErrInvalidRoute = errors.New("transfer route does not match action direction")

// Validate checks that a transfer names a native source and an external
// destination (or the reverse for EthToIota). Governance actions always pass.
func Validate(a BridgeAction) error {
	switch a := a.(type) {
	case IotaToEthBridgeAction:
		e := a.IotaBridgeEvent
		if !e.IotaChainID.IsNative() || !e.EthChainID.IsExternal() {
			return fmt.Errorf("%w: iota_to_eth %v -> %v", ErrInvalidRoute, e.IotaChainID, e.EthChainID)
		}
	case EthToIotaBridgeAction:
		e := a.EthBridgeEvent
		if !e.EthChainID.IsExternal() || !e.IotaChainID.IsNative() {
			return fmt.Errorf("%w: eth_to_iota %v -> %v", ErrInvalidRoute, e.EthChainID, e.IotaChainID)
		}
	case BlocklistCommitteeAction, EmergencyAction, LimitUpdateAction,
		AssetPriceUpdateAction, EvmContractUpgradeAction:
	default:
		panic(unknownAction(a))
	}
	return nil
}
