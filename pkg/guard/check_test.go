package guard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/censai/pkg/compose"
	"github.com/user/censai/pkg/engine"
)

func fixtureSummary() compose.Summary {
	return compose.Summary{
		Overview: overview,
		Totals:   compose.Totals{Hosts: 3, UniqueIPs: 3, Countries: 2, Services: 3, UniquePorts: 2, TopPort: 22},
		Matrix:   engine.RiskMatrix{High: 1},
		TopPorts: []compose.PortCount{{Port: 22, Count: 2}, {Port: 80, Count: 1}, {Port: 8443, Count: 1}},
	}
}

func sshFinding() engine.RiskFinding {
	cvss := 8.1
	return engine.RiskFinding{
		ID:          "identity.ssh_cve:1.1.1.1:22",
		Title:       "OpenSSH with known CVE",
		Severity:    engine.SeverityHigh,
		RelatedCVEs: []string{"CVE-2024-6387"},
		Evidence:    []string{"1.1.1.1:22 OpenSSH 8.9"},
		KEV:         true,
		CVSS:        &cvss,
	}
}

// riskFacts are the facts of the fixture with one KEV-listed SSH finding.
func riskFacts() FactSet {
	return NewFactSet(fixtureSummary(), []engine.RiskFinding{sshFinding()})
}

const goodRewrite = "KEV-listed CVE-2024-6387 with CVSS 8.1 affects OpenSSH 8.9 on port 22. " +
	"Analyzed 3 services across 2 countries (3 unique IPs); 2 unique ports, top port 22. " +
	"Risk profile: 1 high, 0 medium, 0 low. Actions: patch OpenSSH; restrict 22 to VPN."

func TestNewFactSet(t *testing.T) {
	second := sshFinding()
	second.RelatedCVEs = []string{"CVE-2023-38408", "CVE-2024-6387"}
	second.Evidence = []string{"2.2.2.2:2222 OpenSSH 8.9"}
	noPort := engine.RiskFinding{Evidence: []string{"mysql error banner"}}

	f := NewFactSet(fixtureSummary(), []engine.RiskFinding{sshFinding(), second, noPort})

	assert.Equal(t, 3, f.Hosts)
	assert.Equal(t, 2, f.Countries)
	assert.Equal(t, 22, f.TopPort)
	assert.Equal(t, 1, f.High)
	assert.Equal(t, []string{"CVE-2023-38408", "CVE-2024-6387"}, f.CVEs())
	assert.Equal(t, []int{22, 2222}, f.RequiredPorts())
	assert.True(t, f.KEV)
	assert.True(t, f.CVSS7)
	assert.False(t, f.EPSS95)

	cves := f.CVEs()
	cves[0] = "changed"
	assert.Equal(t, "CVE-2023-38408", f.CVEs()[0])
}

func TestNewFactSet_IPv6Ports(t *testing.T) {
	redis := engine.RiskFinding{Port: 6379, Evidence: []string{"2001:4860:4860::8888:6379 redis"}}
	legacy := engine.RiskFinding{Evidence: []string{"2001:db8::1:8443 nginx"}}

	f := NewFactSet(compose.Summary{}, []engine.RiskFinding{redis, legacy})
	assert.Equal(t, []int{6379, 8443}, f.RequiredPorts())

	text := "Redis on port 6379 and nginx on 8443 are exposed."
	assert.Equal(t, text, autoFix(text, f))
	assert.True(t, Check(text, f).OK)

	fixed := autoFix("Redis is exposed.", f)
	assert.Equal(t, "Redis is exposed. Ports: 6379, 8443.", fixed)
	assert.NotContains(t, fixed, "4860")
}

func TestNewFactSet_RequiredPortsFromTopRisksOnly(t *testing.T) {
	var findings []engine.RiskFinding
	for _, ev := range []string{"a:1", "a:2", "a:3", "a:4", "a:5", "a:6", "a:7"} {
		findings = append(findings, engine.RiskFinding{Evidence: []string{ev}})
	}
	f := NewFactSet(compose.Summary{}, findings)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, f.RequiredPorts())
}

func TestCheck_Accepts(t *testing.T) {
	assert.Equal(t, Verdict{OK: true}, Check(goodRewrite, riskFacts()))
}

func TestCheck_DeterministicOverviewPasses(t *testing.T) {
	facts := NewFactSet(fixtureSummary(), nil)
	assert.True(t, Check(overview, facts).OK)
}

func TestCheck_Reasons(t *testing.T) {
	facts := riskFacts()
	tests := []struct {
		name   string
		text   string
		facts  FactSet
		reason Reason
		detail string
	}{
		{"empty", "  \n ", facts, ReasonEmptyOutput, "empty text"},
		{"missing cve", strings.Replace(goodRewrite, "CVE-2024-6387", "a CVE", 1), facts, ReasonMissingCVE, "missing CVE CVE-2024-6387"},
		{"countries mismatch", strings.Replace(goodRewrite, "2 countries", "3 countries", 1), facts, ReasonFactMismatch, "mismatch countries: 3!=2"},
		{"second match checked", goodRewrite + " Seen in 5 countries.", facts, ReasonFactMismatch, "mismatch countries: 5!=2"},
		{"high mismatch", strings.Replace(goodRewrite, "1 high", "2 high", 1), facts, ReasonFactMismatch, "mismatch high: 2!=1"},
		{"top port mismatch", strings.Replace(goodRewrite, "top port 22", "top port 80", 1), facts, ReasonFactMismatch, "mismatch top_port: 80!=22"},
		{"missing port", "KEV CVE-2024-6387 with CVSS 8.1 on SSH. 3 services across 2 countries.", facts, ReasonMissingPort, "missing port 22"},
		{"port inside larger number", "KEV CVE-2024-6387 with CVSS 8.1 on port 2222.", facts, ReasonMissingPort, "missing port 22"},
		{"number words", strings.Replace(goodRewrite, "2 countries", "two countries", 1), facts, ReasonNumberWords, `number word "two"`},
		{"hedging", goodRewrite + " Attackers could pivot.", facts, ReasonHedging, `hedging word "could"`},
		{"kev not first", "Patch OpenSSH 8.9 now. KEV CVE-2024-6387 with CVSS 8.1 on port 22.", facts, ReasonRiskFirstKEV, "first sentence lacks KEV"},
		{"cvss not first", "KEV CVE-2024-6387 on port 22. CVSS 8.1.", facts, ReasonRiskFirstCVSS, "first sentence lacks CVSS"},
		{"epss not first", "Exposure is broad. EPSS is high.", FactSet{EPSS95: true}, ReasonRiskFirstEPSS, "first sentence lacks EPSS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Check(tt.text, tt.facts)
			assert.False(t, v.OK)
			assert.Equal(t, tt.reason, v.Reason)
			assert.Equal(t, tt.detail, v.Detail)
		})
	}
}

func TestCheck_TwoCountriesRewriteRejected(t *testing.T) {
	facts := NewFactSet(fixtureSummary(), nil)
	rewrite := "Analyzed 3 services across two countries (3 unique IPs). Risk profile: 1 high, 0 medium, 0 low."

	v := Check(rewrite, facts)
	assert.Equal(t, ReasonNumberWords, v.Reason)
}

func TestReasonFixable(t *testing.T) {
	assert.True(t, ReasonMissingCVE.Fixable())
	assert.True(t, ReasonMissingPort.Fixable())
	for _, r := range []Reason{ReasonFactMismatch, ReasonNumberWords, ReasonHedging, ReasonRiskFirstKEV, ReasonEmptyOutput, ReasonBackendError} {
		assert.False(t, r.Fixable(), r)
	}
}

func TestAutoFix(t *testing.T) {
	facts := riskFacts()
	text := "KEV issue with CVSS 8.1 on SSH. Actions: patch."

	fixed := autoFix(text, facts)
	assert.Equal(t, text+" CVEs: CVE-2024-6387. Ports: 22.", fixed)
	require.True(t, Check(fixed, facts).OK)
	assert.Equal(t, fixed, autoFix(fixed, facts))
}
