package main

import (
	"encoding/json"
	"time"
)

type (
	// LogWrapper decodes one audit event. After json.Unmarshal, Log holds a
	// pointer to the concrete event struct and Type the "log_type" field.
	LogWrapper struct {
		Type string
		Log  interface{}
	}

	LogTypeIdentifier struct {
		Type string `json:"log_type"`
	}

	LogHeader struct {
		Timestamp time.Time `json:"timestamp"`
		NodeID    string    `json:"node_id"`
	}

	ActionHeader struct {
		LogHeader
		Digest     string `json:"digest"`
		ActionType string `json:"action_type"`
		ChainID    string `json:"chain_id"`
		Nonce      uint64 `json:"nonce"`
	}

	ActionSignedLog struct {
		ActionHeader
		Authority string `json:"authority"`
	}

	SignatureRejectedLog struct {
		LogHeader
		Digest    string `json:"digest"`
		Authority string `json:"authority"`
		Error     string `json:"error"`
	}

	ActionCertifiedLog struct {
		ActionHeader
		Weight  uint64 `json:"weight"`
		Signers int    `json:"signers"`
	}

	QuorumNotMetLog struct {
		ActionHeader
		Have uint64 `json:"have"`
		Need uint64 `json:"need"`
	}
)

func (lw *LogWrapper) UnmarshalJSON(data []byte) error {
	var typeID LogTypeIdentifier
	if err := json.Unmarshal(data, &typeID); err != nil {
		return err
	}
	lw.Type = typeID.Type

	switch typeID.Type {
	case "action_signed":
		lw.Log = &ActionSignedLog{}
	case "signature_rejected":
		lw.Log = &SignatureRejectedLog{}
	case "action_certified":
		lw.Log = &ActionCertifiedLog{}
	case "quorum_not_met":
		lw.Log = &QuorumNotMetLog{}
	default:
		lw.Log = nil
		return nil
	}
	return json.Unmarshal(data, lw.Log)
}
