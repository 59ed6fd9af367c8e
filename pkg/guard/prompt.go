package guard

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/censai/pkg/compose"
)

//go:embed prompts/system.md
var systemPrompt string

// SystemPrompt returns the default system instruction for rewrites.
func SystemPrompt() string {
	return strings.TrimSpace(systemPrompt)
}

// Style selects the rewrite layout.
type Style string

const (
	StyleExecutive Style = "executive"
	StyleBulleted  Style = "bulleted"
	StyleTicket    Style = "ticket"
)

// ParseStyle maps a name to a Style, defaulting to executive.
func ParseStyle(s string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleBulleted:
		return StyleBulleted
	case StyleTicket:
		return StyleTicket
	}
	return StyleExecutive
}

// WordCap is the maximum length of an accepted rewrite.
func (s Style) WordCap() int {
	if s == StyleExecutive {
		return 120
	}
	return 160
}

var styleBriefs = map[Style]string{
	StyleExecutive: "60–120 words, risk-first (KEV/CVSS/EPSS first), then counts, then 2–4 actions. No fluff.",
	StyleBulleted:  "3–6 concise bullets: Top risks, Affected/ports, Actions. Preserve all numbers/CVEs.",
	StyleTicket:    "Jira-style: Title, Impact, Affected, Actions, Due-by. Keep counts/CVEs exact.",
}

var formattingRules = map[Style]string{
	StyleExecutive: "One paragraph, 60–120 words. First sentence must mention KEV/CVSS/EPSS if present. " +
		"If uncommon web/admin ports are present, include the exact phrase 'uncommon web/admin ports (p1, p2, …)' with the provided list. " +
		"End with 'Actions: ' followed by 2–4 concrete steps separated by semicolons. " +
		"Write all numeric values as digits. No hedging ('might', 'could').",
	StyleBulleted: "Output 4–6 bullets, each on its own line starting with '• '. " +
		"Bullet 1 must mention KEV/CVSS/EPSS if present. " +
		"Include a bullet listing counts (hosts, countries, services, unique ports, top port). " +
		"If uncommon ports are present, include a bullet with the exact phrase 'uncommon web/admin ports (p1, p2, …)'. " +
		"End with a bullet that begins 'Actions: ' followed by 2–4 concrete steps separated by semicolons. " +
		"Write all numeric values as digits. No hedging ('might', 'could').",
	StyleTicket: "Output labeled sections exactly in this order, one per line: " +
		"Title: <one-line executive title>. Impact: <concise business/risk impact>. " +
		"Affected: <hosts/ips/countries/services/ports; include 'uncommon web/admin ports (p1, p2, …)' if present>. " +
		"Actions: <2–4 steps separated by semicolons>. Due-by: <SLA like 'KEV ≤ 72h; CVSS≥7 ≤ 14d'>. " +
		"The first sentence (in Title or Impact) must reflect KEV/CVSS/EPSS if present. " +
		"Write all numeric values as digits. No hedging.",
}

// standardPorts are not reported as uncommon web/admin ports.
var standardPorts = map[int]bool{80: true, 443: true, 22: true, 21: true, 3306: true}

type compactSignals struct {
	TopPorts      []compose.PortCount    `json:"top_ports"`
	TopRiskPorts  []int                  `json:"top_risk_ports"`
	Countries     []compose.CountryCount `json:"countries"`
	UncommonPorts []int                  `json:"uncommon_ports"`
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func factLine(f FactSet) string {
	parts := make([]string, 0, 9)
	for _, lv := range f.locked() {
		parts = append(parts, fmt.Sprintf("%s=%d", lv.name, lv.want))
	}
	return strings.Join(parts, ", ")
}

// BuildPrompt returns the system instruction and user prompt for a rewrite.
// The prompt states the locked facts, the CVEs to keep verbatim and the
// deterministic draft.
func BuildPrompt(style Style, language string, facts FactSet, deterministic string, s compose.Summary) (string, string) {
	if language == "" {
		language = "en"
	}
	cves := "none"
	if c := facts.CVEs(); len(c) > 0 {
		cves = strings.Join(c, ", ")
	}

	compact := compactSignals{
		TopPorts:      firstN(s.TopPorts, 8),
		TopRiskPorts:  facts.RequiredPorts(),
		Countries:     firstN(s.Countries, 4),
		UncommonPorts: []int{},
	}
	for _, pc := range compact.TopPorts {
		if !standardPorts[pc.Port] && len(compact.UncommonPorts) < 8 {
			compact.UncommonPorts = append(compact.UncommonPorts, pc.Port)
		}
	}
	signals, _ := json.Marshal(compact)

	constraints := fmt.Sprintf(
		"Facts (lock exactly): %s. CVEs (verbatim): %s. "+
			"Signal present: KEV=%s, CVSS7=%s, EPSS>=95%%=%s. "+
			"Style: %s Language: %s. Formatting rules: %s",
		factLine(facts), cves,
		yesNo(facts.KEV), yesNo(facts.CVSS7), yesNo(facts.EPSS95),
		styleBriefs[style], language, formattingRules[style],
	)
	prompt := fmt.Sprintf("%s\n\nDETERMINISTIC DRAFT:\n%s\n\nSTRUCTURED SIGNALS (compact):\n%s\n\nTASK: Produce the rewrite now.",
		constraints, deterministic, signals)
	return SystemPrompt(), prompt
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[:n]
	}
	return append([]T{}, s...)
}

// FormatBulleted turns a paragraph into "• " bullets, one per sentence,
// moving any "Actions:" sentence to the end. Already bulleted text is
// returned unchanged.
func FormatBulleted(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "• ") {
			return text
		}
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return text
	}
	var rest, actions []string
	for _, s := range sentences {
		if strings.HasPrefix(strings.ToLower(s), "actions:") {
			actions = append(actions, s)
		} else {
			rest = append(rest, s)
		}
	}

	lines := make([]string, 0, len(sentences))
	for _, s := range append(rest, actions...) {
		lines = append(lines, "• "+s)
	}
	return strings.Join(lines, "\n")
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		end := loc[0]
		if text[end] != '\n' {
			end++
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
