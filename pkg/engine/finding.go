package engine

import (
	"math"
	"strconv"
	"strings"
)

// Severity is the label assigned to a finding by its rule table.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity maps a label in any case to a Severity, defaulting to LOW.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	}
	return SeverityLow
}

// Rank orders severities LOW < MEDIUM < HIGH < CRITICAL.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Fold collapses CRITICAL into HIGH for tallying.
func (s Severity) Fold() Severity {
	if s == SeverityCritical {
		return SeverityHigh
	}
	return s
}

// RiskFinding represents one detected issue tied to a service.
type RiskFinding struct {
	ID          string   `json:"id"`
	Rule        string   `json:"rule"`
	Title       string   `json:"title"`
	Severity    Severity `json:"severity"`
	RiskScore   float64  `json:"risk_score"`
	RelatedCVEs []string `json:"related_cves"`
	Evidence    []string `json:"evidence"` // first entry is always "ip:port product version"
	Port        int      `json:"port,omitempty"`
	KEV         bool     `json:"kev"`
	CVSS        *float64 `json:"cvss,omitempty"`
	EPSS        *float64 `json:"epss,omitempty"`
	Why         string   `json:"why_it_matters,omitempty"`
	Fix         string   `json:"fix"`
	Tags        []string `json:"tags,omitempty"`
	Muted       *Mute    `json:"muted,omitempty"`

	template string
	vars     map[string]string
}

// PrimaryEvidence returns the first evidence entry or "".
func (f RiskFinding) PrimaryEvidence() string {
	if len(f.Evidence) == 0 {
		return ""
	}
	return f.Evidence[0]
}

// ServicePort returns the port of the service the finding is about, or 0
// when unknown. Findings without Port fall back to the port of the primary
// evidence, taken after the last colon of its address so IPv6 groups are
// never read as ports.
func (f RiskFinding) ServicePort() int {
	if f.Port > 0 {
		return f.Port
	}
	addr, _, _ := strings.Cut(f.PrimaryEvidence(), " ")
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return 0
	}
	p, err := strconv.Atoi(addr[i+1:])
	if err != nil || p <= 0 || p > 65535 {
		return 0
	}
	return p
}

// EPSSValue returns the EPSS probability or 0 when unknown.
func (f RiskFinding) EPSSValue() float64 {
	if f.EPSS == nil {
		return 0
	}
	return *f.EPSS
}

// CVSSValue returns the CVSS score or 0 when unknown.
func (f RiskFinding) CVSSValue() float64 {
	if f.CVSS == nil {
		return 0
	}
	return *f.CVSS
}

var severityBase = map[Severity]float64{
	SeverityLow:    1,
	SeverityMedium: 3,
	SeverityHigh:   6,
}

// BaseScore computes the table score for a severity plus CVSS and KEV boosts.
func BaseScore(sev Severity, cvss float64, kev bool) float64 {
	score := severityBase[sev.Fold()]
	if cvss >= 7 {
		score += 2.5
	}
	if kev {
		score += 3.5
	}
	return math.Round(score*10) / 10
}

func floatPtr(v float64) *float64 { return &v }
