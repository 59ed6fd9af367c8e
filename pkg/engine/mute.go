package engine

import "time"

// Mute suppresses attention on a finding until a point in time. Muted
// findings are annotated, never dropped.
type Mute struct {
	ID     string    `json:"id" yaml:"id"`
	Until  time.Time `json:"until" yaml:"until"`
	Reason string    `json:"reason" yaml:"reason"`
}

// MuteLookup resolves the active mute for a finding, if any.
type MuteLookup interface {
	IsMuted(f RiskFinding, now time.Time) *Mute
}

// MuteList is an in-memory MuteLookup keyed by finding ID.
type MuteList map[string]Mute

// NewMuteList indexes mutes by ID.
func NewMuteList(mutes []Mute) MuteList {
	l := make(MuteList, len(mutes))
	for _, m := range mutes {
		l[m.ID] = m
	}
	return l
}

// IsMuted returns the mute for f when it has not yet expired. A zero Until
// never expires.
func (l MuteList) IsMuted(f RiskFinding, now time.Time) *Mute {
	m, ok := l[f.ID]
	if !ok {
		return nil
	}
	if !m.Until.IsZero() && now.After(m.Until) {
		return nil
	}
	return &m
}

// ApplyMutes annotates findings in place.
func ApplyMutes(findings []RiskFinding, mutes MuteLookup, now time.Time) {
	if mutes == nil {
		return
	}
	for i := range findings {
		findings[i].Muted = mutes.IsMuted(findings[i], now)
	}
}
