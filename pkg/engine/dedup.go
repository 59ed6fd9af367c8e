package engine

import (
	"fmt"
	"sort"
	"strings"
)

// RiskMatrix counts deduplicated findings by folded severity.
// High+Medium+Low always equals the number of findings counted.
type RiskMatrix struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Total returns High+Medium+Low.
func (m RiskMatrix) Total() int { return m.High + m.Medium + m.Low }

type dedupKey struct {
	title    string
	evidence string
}

// Deduplicate merges findings sharing (title, first evidence). The merged
// finding keeps the higher severity, the higher score and the union of CVEs.
// First-occurrence order is preserved.
func Deduplicate(findings []RiskFinding) []RiskFinding {
	index := make(map[dedupKey]int, len(findings))
	out := make([]RiskFinding, 0, len(findings))

	for _, f := range findings {
		key := dedupKey{title: f.Title, evidence: f.PrimaryEvidence()}
		i, exists := index[key]
		if !exists {
			f.RelatedCVEs = unionCVEs(nil, f.RelatedCVEs)
			index[key] = len(out)
			out = append(out, f)
			continue
		}

		prev := &out[i]
		if f.Severity.Rank() > prev.Severity.Rank() {
			prev.Severity = f.Severity
		}
		if f.RiskScore > prev.RiskScore {
			prev.RiskScore = f.RiskScore
		}
		prev.RelatedCVEs = unionCVEs(prev.RelatedCVEs, f.RelatedCVEs)
	}
	return out
}

func unionCVEs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Priority is the lexicographic ranking tuple of a finding.
type Priority struct {
	KEV      bool
	EPSS95   bool
	CVSS7    bool
	Severity int
	Score    float64
}

// PriorityOf computes the ranking tuple (kev, epss>=0.95, cvss>=7, severity, score).
func PriorityOf(f RiskFinding) Priority {
	return Priority{
		KEV:      f.KEV,
		EPSS95:   f.EPSS != nil && *f.EPSS >= 0.95,
		CVSS7:    f.CVSS != nil && *f.CVSS >= 7,
		Severity: f.Severity.Rank(),
		Score:    f.RiskScore,
	}
}

// Compare returns 1, 0 or -1 as p ranks above, equal to or below q.
func (p Priority) Compare(q Priority) int {
	for _, c := range []int{cmpBool(p.KEV, q.KEV), cmpBool(p.EPSS95, q.EPSS95), cmpBool(p.CVSS7, q.CVSS7)} {
		if c != 0 {
			return c
		}
	}
	switch {
	case p.Severity != q.Severity:
		if p.Severity > q.Severity {
			return 1
		}
		return -1
	case p.Score > q.Score:
		return 1
	case p.Score < q.Score:
		return -1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	}
	return -1
}

// Rank sorts findings in place by descending priority. Equal tuples keep
// their relative input order.
func Rank(findings []RiskFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return PriorityOf(findings[i]).Compare(PriorityOf(findings[j])) > 0
	})
}

// Matrix tallies findings by severity, folding CRITICAL into HIGH.
func Matrix(findings []RiskFinding) RiskMatrix {
	var m RiskMatrix
	for _, f := range findings {
		switch f.Severity.Fold() {
		case SeverityHigh:
			m.High++
		case SeverityMedium:
			m.Medium++
		default:
			m.Low++
		}
	}
	return m
}

// FormatFindings renders a text listing of ranked findings.
func FormatFindings(findings []RiskFinding) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Risk findings (%d):\n", len(findings)))
	sb.WriteString("--------------------------------------------------\n")

	for _, f := range findings {
		sb.WriteString(fmt.Sprintf("[%s %.1f] %s\n", f.Severity, f.RiskScore, f.Title))
		sb.WriteString(fmt.Sprintf("  Evidence: %s\n", strings.Join(f.Evidence, "; ")))
		if len(f.RelatedCVEs) > 0 {
			sb.WriteString(fmt.Sprintf("  CVEs: %s\n", strings.Join(f.RelatedCVEs, ", ")))
		}
		if f.Fix != "" {
			sb.WriteString(fmt.Sprintf("  Fix: %s\n", f.Fix))
		}
		if f.Muted != nil {
			sb.WriteString(fmt.Sprintf("  Muted: %s\n", f.Muted.Reason))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
