package main

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
)

func decode(t *testing.T, raw string) LogWrapper {
	t.Helper()
	lw := LogWrapper{}
	if err := json.Unmarshal([]byte(raw), &lw); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return lw
}

func TestLogWrapperDispatch(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"log_type":"action_signed","node_id":"n1","digest":"aa","action_type":"emergency","chain_id":"IotaTestnet","nonce":3,"authority":"02ab"}`, "*main.ActionSignedLog"},
		{`{"log_type":"signature_rejected","node_id":"n1","digest":"aa","authority":"02ab","error":"bad"}`, "*main.SignatureRejectedLog"},
		{`{"log_type":"action_certified","node_id":"n1","digest":"aa","weight":7000,"signers":3}`, "*main.ActionCertifiedLog"},
		{`{"log_type":"quorum_not_met","node_id":"n1","digest":"aa","have":10,"need":6667}`, "*main.QuorumNotMetLog"},
	}
	for _, c := range cases {
		lw := decode(t, c.raw)
		if got := fmt.Sprintf("%T", lw.Log); got != c.want {
			t.Errorf("%s: got %s, want %s", c.raw, got, c.want)
		}
	}

	signed := decode(t, cases[0].raw).Log.(*ActionSignedLog)
	if signed.Nonce != 3 || signed.Authority != "02ab" || signed.ChainID != "IotaTestnet" || signed.NodeID != "n1" {
		t.Errorf("unexpected fields: %+v", signed)
	}

	unknown := decode(t, `{"log_type":"something_else"}`)
	if unknown.Log != nil || unknown.Type != "something_else" {
		t.Errorf("unknown type decoded to %+v", unknown)
	}
}

func header(digest string, ts time.Time) ActionHeader {
	return ActionHeader{
		LogHeader:  LogHeader{Timestamp: ts, NodeID: "n1"},
		Digest:     digest,
		ActionType: "emergency",
		ChainID:    "IotaTestnet",
		Nonce:      1,
	}
}

func TestTrackerProgress(t *testing.T) {
	tr := NewTracker()
	t0 := time.Unix(1700000000, 0)

	tr.Apply(LogWrapper{Type: "action_signed", Log: &ActionSignedLog{ActionHeader: header("aa", t0), Authority: "k1"}})
	tr.Apply(LogWrapper{Type: "action_signed", Log: &ActionSignedLog{ActionHeader: header("aa", t0.Add(time.Second)), Authority: "k2"}})
	tr.Apply(LogWrapper{Type: "action_signed", Log: &ActionSignedLog{ActionHeader: header("aa", t0.Add(time.Second)), Authority: "k2"}})
	tr.Apply(LogWrapper{Type: "signature_rejected", Log: &SignatureRejectedLog{LogHeader: LogHeader{Timestamp: t0}, Digest: "aa", Authority: "k3"}})
	tr.Apply(LogWrapper{Type: "quorum_not_met", Log: &QuorumNotMetLog{ActionHeader: header("aa", t0.Add(time.Second)), Have: 5000, Need: 6667}})

	p := tr.actions["aa"]
	if len(p.Signers) != 2 || p.Rejected != 1 {
		t.Fatalf("signers=%d rejected=%d", len(p.Signers), p.Rejected)
	}
	if p.Shortfall != 1667 || p.Certified() {
		t.Fatalf("shortfall=%d certified=%v", p.Shortfall, p.Certified())
	}

	tr.Apply(LogWrapper{Type: "action_certified", Log: &ActionCertifiedLog{ActionHeader: header("aa", t0.Add(3*time.Second)), Weight: 7000, Signers: 3}})
	// a second certificate for the same digest does not add a latency sample
	tr.Apply(LogWrapper{Type: "action_certified", Log: &ActionCertifiedLog{ActionHeader: header("aa", t0.Add(5*time.Second)), Weight: 7000, Signers: 3}})
	// late quorum misses do not undo certification
	tr.Apply(LogWrapper{Type: "quorum_not_met", Log: &QuorumNotMetLog{ActionHeader: header("aa", t0.Add(6*time.Second)), Have: 10, Need: 6667}})

	if !p.Certified() || p.Weight != 7000 || p.Shortfall != 0 {
		t.Fatalf("after certify: %+v", p)
	}
	lat := tr.Latencies()
	if len(lat) != 1 || lat[0] != 3 {
		t.Fatalf("latencies = %v", lat)
	}

	rows := tr.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[1][1] != "aa" || rows[1][3] != "2" || rows[1][4] != "1" || !strings.HasPrefix(rows[1][6], "certified") {
		t.Errorf("row = %v", rows[1])
	}

	sum := tr.Summary()
	for _, want := range []string{"action_signed: [red]3", "certified [red]1", "N=[red]1"} {
		if !strings.Contains(sum, want) {
			t.Errorf("summary missing %q:\n%s", want, sum)
		}
	}
}

func TestTrackerOrderAndHandleMessage(t *testing.T) {
	tr := NewTracker()
	for _, d := range []string{"cc", "aa", "bb"} {
		line := handleMessage(tr, []byte(`{"log_type":"action_signed","node_id":"n","digest":"`+d+`","action_type":"limit_update","chain_id":"EthSepolia","nonce":2,"authority":"k"}`))
		if !strings.Contains(line, "signed") {
			t.Errorf("line = %q", line)
		}
	}
	if line := handleMessage(tr, []byte(`not json`)); line != "" {
		t.Errorf("garbage produced %q", line)
	}

	rows := tr.Rows()
	got := []string{rows[1][1], rows[2][1], rows[3][1]}
	if strings.Join(got, ",") != "cc,aa,bb" {
		t.Errorf("order = %v", got)
	}
	if rows[1][6] != "pending" {
		t.Errorf("status = %q", rows[1][6])
	}
}

func TestTrackerSubSecondLatency(t *testing.T) {
	tr := NewTracker()
	handleMessage(tr, []byte(`{"log_type":"action_signed","timestamp":"2024-05-01T12:00:00.100Z","node_id":"n","digest":"dd","action_type":"emergency","chain_id":"EthSepolia","nonce":1,"authority":"k"}`))
	handleMessage(tr, []byte(`{"log_type":"action_certified","timestamp":"2024-05-01T12:00:00.350Z","node_id":"n","digest":"dd","action_type":"emergency","chain_id":"EthSepolia","nonce":1,"weight":7000,"signers":2}`))

	lat := tr.Latencies()
	if len(lat) != 1 || math.Abs(lat[0]-0.25) > 1e-9 {
		t.Fatalf("latencies = %v", lat)
	}
}
