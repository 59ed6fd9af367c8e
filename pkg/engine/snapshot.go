package engine

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/user/censai/pkg/record"
)

// Snapshot maps finding IDs to their severity at one point in time.
type Snapshot map[string]Severity

// SeverityChange is a finding whose severity moved between snapshots.
type SeverityChange struct {
	ID   string   `json:"id"`
	From Severity `json:"from"`
	To   Severity `json:"to"`
}

// DeltaCounts summarizes a Delta.
type DeltaCounts struct {
	New      int `json:"new"`
	Resolved int `json:"resolved"`
	Changed  int `json:"changed"`
}

// Delta compares the current findings against a baseline.
type Delta struct {
	Counts   DeltaCounts      `json:"counts"`
	New      []string         `json:"new"`
	Resolved []string         `json:"resolved"`
	Changed  []SeverityChange `json:"changed"`
}

// DiffID identifies a delta for caching and display.
func (d Delta) DiffID(datasetKey string) string {
	return fmt.Sprintf("%s:%d-%d-%d", datasetKey, d.Counts.New, d.Counts.Resolved, d.Counts.Changed)
}

// DatasetKey derives a stable identity for a batch from its sorted set of
// ip:port:product tokens.
func DatasetKey(records []record.Record) string {
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.IP == "" {
			continue
		}
		seen[strings.ToLower(fmt.Sprintf("%s:%d:%s", r.IP, r.Port, r.Product))] = struct{}{}
	}

	payload := "empty"
	if len(seen) > 0 {
		tokens := make([]string, 0, len(seen))
		for t := range seen {
			tokens = append(tokens, t)
		}
		sort.Strings(tokens)
		payload = strings.Join(tokens, "|")
	}
	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// TakeSnapshot records the severity of every finding by ID.
func TakeSnapshot(findings []RiskFinding) Snapshot {
	s := make(Snapshot, len(findings))
	for _, f := range findings {
		id := f.ID
		if id == "" {
			id = f.Title
		}
		if id == "" {
			continue
		}
		s[id] = f.Severity
	}
	return s
}

// CompareSnapshot diffs curr against a baseline. A nil baseline makes every
// finding new.
func CompareSnapshot(prev, curr Snapshot) Delta {
	d := Delta{New: []string{}, Resolved: []string{}, Changed: []SeverityChange{}}
	for id, sev := range curr {
		old, ok := prev[id]
		switch {
		case !ok:
			d.New = append(d.New, id)
		case old != sev:
			d.Changed = append(d.Changed, SeverityChange{ID: id, From: old, To: sev})
		}
	}
	for id := range prev {
		if _, ok := curr[id]; !ok {
			d.Resolved = append(d.Resolved, id)
		}
	}

	sort.Strings(d.New)
	sort.Strings(d.Resolved)
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].ID < d.Changed[j].ID })
	d.Counts = DeltaCounts{New: len(d.New), Resolved: len(d.Resolved), Changed: len(d.Changed)}
	return d
}
