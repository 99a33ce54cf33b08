package main

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// ActionProgress is what the console knows about one action digest.
type ActionProgress struct {
	Digest     string
	ActionType string
	ChainID    string
	Nonce      uint64

	FirstSeen   time.Time
	Signers     map[string]time.Time
	Rejected    int
	CertifiedAt time.Time
	Weight      uint64
	Shortfall   uint64
}

func (p *ActionProgress) Certified() bool { return !p.CertifiedAt.IsZero() }

// Tracker folds audit events into per-action progress.
type Tracker struct {
	mu        sync.Mutex
	actions   map[string]*ActionProgress
	order     []string
	latencies []float64
	events    map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{
		actions: make(map[string]*ActionProgress),
		events:  make(map[string]int),
	}
}

func (t *Tracker) progress(h ActionHeader) *ActionProgress {
	p, exist := t.actions[h.Digest]
	if !exist {
		p = &ActionProgress{Digest: h.Digest, FirstSeen: h.Timestamp, Signers: map[string]time.Time{}}
		t.actions[h.Digest] = p
		t.order = append(t.order, h.Digest)
	}
	if h.ActionType != "" {
		p.ActionType, p.ChainID, p.Nonce = h.ActionType, h.ChainID, h.Nonce
	}
	if h.Timestamp.Before(p.FirstSeen) {
		p.FirstSeen = h.Timestamp
	}
	return p
}

func (t *Tracker) Apply(lw LogWrapper) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[lw.Type]++

	switch v := lw.Log.(type) {
	case *ActionSignedLog:
		p := t.progress(v.ActionHeader)
		p.Signers[v.Authority] = v.Timestamp
	case *SignatureRejectedLog:
		p := t.progress(ActionHeader{LogHeader: v.LogHeader, Digest: v.Digest})
		p.Rejected++
	case *ActionCertifiedLog:
		p := t.progress(v.ActionHeader)
		if !p.Certified() {
			p.CertifiedAt = v.Timestamp
			t.latencies = append(t.latencies, v.Timestamp.Sub(p.FirstSeen).Seconds())
		}
		p.Weight = v.Weight
		p.Shortfall = 0
	case *QuorumNotMetLog:
		p := t.progress(v.ActionHeader)
		if !p.Certified() {
			p.Weight = v.Have
			p.Shortfall = v.Need - min(v.Have, v.Need)
		}
	}
}

// Rows renders the action table, oldest action first.
func (t *Tracker) Rows() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := [][]string{{"", "digest", "action", "signers", "rejected", "weight", "status"}}
	for i, d := range t.order {
		p := t.actions[d]
		status := "pending"
		if p.Certified() {
			status = "certified in " + p.CertifiedAt.Sub(p.FirstSeen).String()
		} else if p.Shortfall > 0 {
			status = fmt.Sprintf("short by %d", p.Shortfall)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			p.Digest,
			fmt.Sprintf("%s %s #%d", p.ActionType, p.ChainID, p.Nonce),
			fmt.Sprintf("%d", len(p.Signers)),
			fmt.Sprintf("%d", p.Rejected),
			fmt.Sprintf("%d", p.Weight),
			status,
		})
	}
	return rows
}

// Summary renders event counts and certification latency statistics.
func (t *Tracker) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	certified := lo.CountBy(lo.Values(t.actions), func(p *ActionProgress) bool { return p.Certified() })
	fmt.Fprintf(&b, "[white]actions [red]%d [white]certified [red]%d\n\n", len(t.actions), certified)

	b.WriteString("[purple]events\n")
	types := lo.Keys(t.events)
	sort.Strings(types)
	for _, k := range types {
		fmt.Fprintf(&b, "[green]%s: [red]%d\n", k, t.events[k])
	}

	if len(t.latencies) > 0 {
		list := slices.Clone(t.latencies)
		slices.Sort(list)
		fmt.Fprintf(&b, "\n[purple]certification latency [white]N=[red]%d [white]mean=[red]%f [white]var=[red]%f [white]p99=[red]%f\n",
			len(list), stat.Mean(list, nil), stat.Variance(list, nil), stat.Quantile(0.99, stat.Empirical, list, nil))
	}
	return b.String()
}

// Latencies returns the certification latencies in seconds.
func (t *Tracker) Latencies() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.latencies)
}
