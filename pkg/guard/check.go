package guard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reason names the first guard a candidate text failed.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonMissingCVE    Reason = "missing_cve"
	ReasonFactMismatch  Reason = "fact_mismatch"
	ReasonMissingPort   Reason = "missing_port"
	ReasonNumberWords   Reason = "number_words"
	ReasonHedging       Reason = "hedging"
	ReasonRiskFirstKEV  Reason = "risk_first_kev"
	ReasonRiskFirstCVSS Reason = "risk_first_cvss"
	ReasonRiskFirstEPSS Reason = "risk_first_epss"
	ReasonEmptyOutput   Reason = "empty_output"
	ReasonBackendError  Reason = "backend_error"
)

// Fixable reports whether a single auto-fix attempt may repair the failure.
func (r Reason) Fixable() bool {
	return r == ReasonMissingCVE || r == ReasonMissingPort
}

// Verdict is the result of running every guard over one candidate.
type Verdict struct {
	OK     bool   `json:"ok"`
	Reason Reason `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func fail(r Reason, format string, args ...any) Verdict {
	return Verdict{Reason: r, Detail: fmt.Sprintf(format, args...)}
}

// Check runs the guards in order and stops at the first failure: CVEs
// verbatim, locked numbers, required ports, digits only, no hedging, then
// risk signals in the first sentence.
func Check(text string, facts FactSet) Verdict {
	t := strings.TrimSpace(text)
	if t == "" {
		return fail(ReasonEmptyOutput, "empty text")
	}

	if missing := missingCVEs(t, facts); len(missing) > 0 {
		return fail(ReasonMissingCVE, "missing CVE %s", missing[0])
	}

	for _, lv := range facts.locked() {
		for _, got := range lv.patterns.all(t) {
			if got != lv.want {
				return fail(ReasonFactMismatch, "mismatch %s: %d!=%d", lv.name, got, lv.want)
			}
		}
	}

	if missing := missingPorts(t, facts); len(missing) > 0 {
		return fail(ReasonMissingPort, "missing port %d", missing[0])
	}

	if m := numberWords.FindString(t); m != "" {
		return fail(ReasonNumberWords, "number word %q", m)
	}
	if m := hedging.FindString(t); m != "" {
		return fail(ReasonHedging, "hedging word %q", m)
	}

	first := FirstSentence(t)
	switch {
	case facts.KEV && !strings.Contains(first, "KEV"):
		return fail(ReasonRiskFirstKEV, "first sentence lacks KEV")
	case facts.CVSS7 && !strings.Contains(first, "CVSS"):
		return fail(ReasonRiskFirstCVSS, "first sentence lacks CVSS")
	case facts.EPSS95 && !strings.Contains(first, "EPSS"):
		return fail(ReasonRiskFirstEPSS, "first sentence lacks EPSS")
	}
	return Verdict{OK: true}
}

func missingCVEs(t string, facts FactSet) []string {
	var out []string
	for _, c := range facts.cves {
		if !strings.Contains(t, c) {
			out = append(out, c)
		}
	}
	return out
}

func missingPorts(t string, facts FactSet) []int {
	var out []int
	for _, p := range facts.requiredPorts {
		rx := regexp.MustCompile(`\b` + strconv.Itoa(p) + `\b`)
		if !rx.MatchString(t) {
			out = append(out, p)
		}
	}
	return out
}

var sentenceEnd = regexp.MustCompile(`[.!?](?:\s|$)|\n`)

// FirstSentence returns the text up to the first sentence terminator or
// line break. Dots inside versions and addresses do not end a sentence.
func FirstSentence(t string) string {
	t = strings.TrimSpace(t)
	if loc := sentenceEnd.FindStringIndex(t); loc != nil {
		return strings.TrimSpace(t[:loc[0]])
	}
	return t
}

// autoFix appends the missing CVEs and ports as a short suffix. It returns
// the text unchanged when nothing is missing.
func autoFix(t string, facts FactSet) string {
	var bits []string
	if cves := missingCVEs(t, facts); len(cves) > 0 {
		bits = append(bits, "CVEs: "+strings.Join(cves, ", ")+".")
	}
	if ports := missingPorts(t, facts); len(ports) > 0 {
		ps := make([]string, len(ports))
		for i, p := range ports {
			ps[i] = strconv.Itoa(p)
		}
		bits = append(bits, "Ports: "+strings.Join(ps, ", ")+".")
	}
	if len(bits) == 0 {
		return t
	}
	return strings.TrimSpace(strings.TrimRight(t, " \t\n") + " " + strings.Join(bits, " "))
}

var word = regexp.MustCompile(`\S+`)

// capWords trims text to limit words, preferring to end on a full stop.
// Line breaks inside the kept part are preserved.
func capWords(t string, limit int) string {
	t = strings.TrimSpace(t)
	words := word.FindAllStringIndex(t, -1)
	if limit <= 0 || len(words) <= limit {
		return t
	}
	cut := strings.TrimRight(t[:words[limit-1][1]], ",;: ")
	if locs := sentenceEnd.FindAllStringIndex(cut+" ", -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		if cut[last[0]] != '\n' {
			return cut[:last[0]+1]
		}
		return strings.TrimSpace(cut[:last[0]])
	}
	return cut + "…"
}
