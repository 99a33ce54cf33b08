// Package dlog emits structured audit events about signing and
// certification, optionally shipped to a NATS JetStream stream.
package dlog

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/log"
	"github.com/rafnixschaf/iota-sub000/message"
)

// TimestampFormat keeps millisecond precision so consumers can measure
// signing and certification latency.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

type AuditLogger struct {
	zerolog.Logger
	nodeID string
	nats   *natsWriter
	now    func() time.Time
}

// NewAuditLogger ships events to natsAddress. An empty address or a failed
// connection disables the logger instead of failing.
func NewAuditLogger(natsAddress string, nodeID string) *AuditLogger {
	if natsAddress == "" {
		return NewWriterLogger(io.Discard, nodeID)
	}
	nw := newNATSWriter()
	if err := nw.Connect(natsAddress); err != nil {
		log.Errorf("failed to initialize audit logger, disable it: %s", err)
		return NewWriterLogger(io.Discard, nodeID)
	}
	al := NewWriterLogger(nw, nodeID)
	al.nats = nw
	return al
}

// NewWriterLogger writes events to w as JSON lines.
func NewWriterLogger(w io.Writer, nodeID string) *AuditLogger {
	return &AuditLogger{
		Logger: zerolog.New(w).With().Timestamp().Logger(),
		nodeID: nodeID,
		now:    time.Now,
	}
}

func (al *AuditLogger) Event(logType string) *zerolog.Event {
	return al.Logger.Info().
		Str("log_type", logType).
		Str("timestamp", al.now().UTC().Format(TimestampFormat)).
		Str("node_id", al.nodeID)
}

func withAction(e *zerolog.Event, action message.BridgeAction, digest message.ActionDigest) *zerolog.Event {
	return e.
		Str("digest", digest.Hex()).
		Stringer("action_type", message.ActionType(action)).
		Stringer("chain_id", message.ChainID(action)).
		Uint64("nonce", message.SeqNumber(action))
}

func (al *AuditLogger) ActionSigned(action message.BridgeAction, digest message.ActionDigest, authority crypto.PublicKeyBytes) {
	withAction(al.Event("action_signed"), action, digest).
		Str("authority", authority.Hex()).
		Msg("")
}

func (al *AuditLogger) SignatureRejected(digest message.ActionDigest, authority crypto.PublicKeyBytes, err error) {
	al.Event("signature_rejected").
		Str("digest", digest.Hex()).
		Str("authority", authority.Hex()).
		Err(err).
		Msg("")
}

func (al *AuditLogger) ActionCertified(action message.BridgeAction, digest message.ActionDigest, weight uint64, signers int) {
	withAction(al.Event("action_certified"), action, digest).
		Uint64("weight", weight).
		Int("signers", signers).
		Msg("")
}

func (al *AuditLogger) QuorumNotMet(action message.BridgeAction, digest message.ActionDigest, have, need uint64) {
	withAction(al.Event("quorum_not_met"), action, digest).
		Uint64("have", have).
		Uint64("need", need).
		Msg("")
}

// Close flushes pending NATS publishes, if any, and disconnects.
func (al *AuditLogger) Close(ctx context.Context) error {
	if al.nats == nil {
		return nil
	}
	err := al.nats.Flush(ctx)
	_ = al.nats.Close()
	return err
}
