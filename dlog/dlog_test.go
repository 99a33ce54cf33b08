package dlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/message"
	"github.com/rafnixschaf/iota-sub000/types"
)

var auditAction = message.EmergencyAction{Nonce: 3, ChainID: types.EthSepolia, ActionType: types.Pause}

func runServer(t *testing.T) *server.Server {
	t.Helper()
	s, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("creating server failed: %v", err)
	}
	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("server did not become ready in time")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestWriterLoggerEvents(t *testing.T) {
	var buf bytes.Buffer
	al := NewWriterLogger(&buf, "node-1")
	digest, err := message.Digest(auditAction)
	if err != nil {
		t.Fatal(err)
	}
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	al.ActionSigned(auditAction, digest, kp.PublicKeyBytes())
	al.SignatureRejected(digest, kp.PublicKeyBytes(), errors.New("bad signature"))
	al.ActionCertified(auditAction, digest, 7000, 2)
	al.QuorumNotMet(auditAction, digest, 5000, 6667)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 events, got %d", len(lines))
	}
	wantTypes := []string{"action_signed", "signature_rejected", "action_certified", "quorum_not_met"}
	for i, line := range lines {
		var ev map[string]interface{}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("event %d is not json: %v", i, err)
		}
		if ev["log_type"] != wantTypes[i] {
			t.Errorf("event %d: log_type %v, want %s", i, ev["log_type"], wantTypes[i])
		}
		if ev["node_id"] != "node-1" || ev["digest"] != digest.Hex() {
			t.Errorf("event %d: unexpected header %v", i, ev)
		}
	}

	var certified map[string]interface{}
	_ = json.Unmarshal([]byte(lines[2]), &certified)
	if certified["action_type"] != "EmergencyButton" || certified["weight"] != float64(7000) {
		t.Fatalf("unexpected certified event %v", certified)
	}
}

func TestEventTimestampKeepsMilliseconds(t *testing.T) {
	var buf bytes.Buffer
	al := NewWriterLogger(&buf, "node-1")
	at := time.Date(2024, 5, 1, 12, 0, 0, 250*int(time.Millisecond), time.UTC)
	al.now = func() time.Time { return at }
	digest, _ := message.Digest(auditAction)
	al.ActionCertified(auditAction, digest, 7000, 2)

	var ev struct {
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatal(err)
	}
	if !ev.Timestamp.Equal(at) {
		t.Fatalf("timestamp %v, want %v", ev.Timestamp, at)
	}
}

func TestAuditLoggerPublishesToJetStream(t *testing.T) {
	s := runServer(t)
	al := NewAuditLogger(s.ClientURL(), "node-2")
	if al.nats == nil {
		t.Fatal("audit logger did not connect")
	}
	digest, _ := message.Digest(auditAction)
	al.ActionCertified(auditAction, digest, 10000, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := al.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		t.Fatal(err)
	}
	sub, err := js.SubscribeSync(SubjectName, nats.DeliverAll(), nats.BindStream(StreamName))
	if err != nil {
		t.Fatal(err)
	}
	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("no audit event in stream: %v", err)
	}
	var ev map[string]interface{}
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev["log_type"] != "action_certified" || ev["node_id"] != "node-2" {
		t.Fatalf("unexpected event %v", ev)
	}
}

func TestAuditLoggerFallsBackWithoutServer(t *testing.T) {
	al := NewAuditLogger("nats://127.0.0.1:1", "node-3")
	if al.nats != nil {
		t.Fatal("expected disabled logger")
	}
	digest, _ := message.Digest(auditAction)
	al.QuorumNotMet(auditAction, digest, 0, 6667)
	if err := al.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	if NewAuditLogger("", "node-4").nats != nil {
		t.Fatal("empty address must disable the logger")
	}
}
