package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/censai/pkg/record"
)

type kevSet map[string]bool

func (k kevSet) HasKEV(cve string) bool { return k[cve] }

type epssMap map[string]float64

func (e epssMap) Score(cve string) float64 { return e[cve] }

func quietEngine() *Engine {
	log, _ := test.NewNullLogger()
	return NewEngine(log)
}

func findByRule(findings []RiskFinding, rule string) []RiskFinding {
	var out []RiskFinding
	for _, f := range findings {
		if f.Rule == rule {
			out = append(out, f)
		}
	}
	return out
}

func TestRedisScenarioProducesHighFinding(t *testing.T) {
	recs := []record.Record{{ID: "r1", IP: "1.1.1.1", Port: 6379, Product: "redis"}}
	rep := quietEngine().Run(recs, Aux{})
	require.Empty(t, rep.Failed())

	var hit *RiskFinding
	for i, f := range rep.Findings {
		if f.Severity == SeverityHigh && strings.Contains(f.Title, "Redis") && strings.Contains(f.Title, "6379") {
			hit = &rep.Findings[i]
			break
		}
	}
	require.NotNil(t, hit, "expected a HIGH Redis/6379 finding")
	assert.Equal(t, "1.1.1.1:6379 redis", hit.PrimaryEvidence())
	assert.Equal(t, "rule:service_exposure:1.1.1.1:6379", hit.ID)
	assert.Contains(t, hit.Fix, "1.1.1.1:6379")
	assert.NotEmpty(t, hit.Why)
}

func TestEvidenceStartsWithPrimary(t *testing.T) {
	recs := []record.Record{
		{IP: "10.0.0.1", Port: 443, Product: "nginx", Version: "1.18",
			Other: record.Other{record.KeyTLSVersion: "TLS1.0", record.KeyTLSCipher: "TLS_RSA_WITH_RC4_128_SHA"}},
		{IP: "10.0.0.2", Port: 3306, Product: "MySQL", Other: record.Other{record.KeyErrorMessage: "Host is not allowed"}},
		{IP: "10.0.0.3", Port: 445, Other: record.Other{record.KeySMBDialect: "SMB1"}},
	}
	rep := quietEngine().Run(recs, Aux{})
	require.NotEmpty(t, rep.Findings)

	primaries := map[string]bool{}
	for _, r := range recs {
		primaries[r.Primary()] = true
	}
	for _, f := range rep.Findings {
		require.NotEmpty(t, f.Evidence, f.ID)
		assert.True(t, primaries[f.Evidence[0]], "finding %s evidence[0]=%q", f.ID, f.Evidence[0])
	}
}

func TestFindingCarriesServicePort(t *testing.T) {
	recs := []record.Record{{IP: "2001:4860:4860::8888", Port: 6379, Product: "redis"}}
	rep := quietEngine().Run(recs, Aux{})
	require.NotEmpty(t, rep.Findings)
	for _, f := range rep.Findings {
		assert.Equal(t, 6379, f.Port, f.ID)
		assert.Equal(t, 6379, f.ServicePort(), f.ID)
	}
}

func TestServicePortFallback(t *testing.T) {
	tests := []struct {
		evidence string
		want     int
	}{
		{"1.1.1.1:22 OpenSSH 8.9", 22},
		{"2001:db8::1:8443 nginx", 8443},
		{"2001:4860:4860::8888:6379", 6379},
		{"mysql error banner", 0},
		{"1.1.1.1:0 unknown", 0},
	}
	for _, tt := range tests {
		f := RiskFinding{Evidence: []string{tt.evidence}}
		assert.Equal(t, tt.want, f.ServicePort(), tt.evidence)
	}
	assert.Equal(t, 0, RiskFinding{}.ServicePort())
}

func TestRuleLiteralScores(t *testing.T) {
	tests := []struct {
		name     string
		rec      record.Record
		rule     string
		severity Severity
		score    float64
	}{
		{"legacy tls", record.Record{IP: "1.1.1.1", Port: 443, Other: record.Other{record.KeyTLSVersion: "TLS1.1"}}, "tls.min_version", SeverityHigh, 8.0},
		{"expired cert", record.Record{IP: "1.1.1.1", Port: 443, Other: record.Other{record.KeyCertificate: map[string]any{"subject": "a.example", "expired": true}}}, "tls.expired_cert", SeverityMedium, 5.0},
		{"self signed", record.Record{IP: "1.1.1.1", Port: 443, Other: record.Other{record.KeyCertificate: map[string]any{"self_signed": true}}}, "tls.self_signed", SeverityMedium, 4.5},
		{"weak cipher", record.Record{IP: "1.1.1.1", Port: 443, Other: record.Other{record.KeyTLSCipher: "DES-CBC3-SHA"}}, "tls.weak_cipher", SeverityMedium, 5.0},
		{"postgres", record.Record{IP: "1.1.1.1", Port: 5432}, "db.open", SeverityMedium, 5.0},
		{"mongo by name", record.Record{IP: "1.1.1.1", Port: 28000, Product: "MongoDB"}, "db.open", SeverityHigh, 7.0},
		{"mysql", record.Record{IP: "1.1.1.1", Port: 3306}, "db.mysql", SeverityMedium, 6.0},
		{"rdp", record.Record{IP: "1.1.1.1", Port: 3389}, "remote.rdp", SeverityHigh, 8.5},
		{"vnc", record.Record{IP: "1.1.1.1", Port: 5900}, "remote.vnc", SeverityMedium, 6.0},
		{"smbv1", record.Record{IP: "1.1.1.1", Port: 445, Other: record.Other{record.KeySMBDialect: "1.0"}}, "remote.smbv1", SeverityHigh, 9.0},
		{"grafana", record.Record{IP: "1.1.1.1", Port: 3000, Product: "Grafana"}, "admin_ui", SeverityMedium, 5.5},
		{"cobalt strike", record.Record{IP: "1.1.1.1", Port: 50050, Other: record.Other{record.KeyMalwareName: "Cobalt Strike"}}, "identity.cobalt_strike", SeverityHigh, 6.0},
		{"mysql error", record.Record{IP: "1.1.1.1", Port: 3306, Product: "mysql", Other: record.Other{record.KeyErrorMessage: "denied"}}, "identity.mysql_error", SeverityLow, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := quietEngine().Run([]record.Record{tt.rec}, Aux{})
			got := findByRule(rep.Findings, tt.rule)
			require.Len(t, got, 1)
			assert.Equal(t, tt.severity, got[0].Severity)
			assert.InDelta(t, tt.score, got[0].RiskScore, 1e-9)
		})
	}
}

func TestSignalsFromCollaborators(t *testing.T) {
	rec := record.Record{
		IP: "9.9.9.9", Port: 22, Product: "ssh", Version: "8.9",
		CVE: []record.CVE{{ID: "CVE-2024-6387", Score: 8.1}, {ID: "CVE-2021-1111", Score: 5.0}},
	}
	aux := Aux{
		KEV:  kevSet{"CVE-2024-6387": true},
		EPSS: epssMap{"CVE-2024-6387": 0.97, "CVE-2021-1111": 0.1},
	}
	rep := quietEngine().Run([]record.Record{rec}, aux)

	ssh := findByRule(rep.Findings, "identity.ssh_cve")
	require.Len(t, ssh, 1)
	f := ssh[0]
	assert.Equal(t, SeverityHigh, f.Severity)
	assert.True(t, f.KEV)
	assert.InDelta(t, 8.1, f.CVSSValue(), 1e-9)
	assert.InDelta(t, 0.97, f.EPSSValue(), 1e-9)
	assert.InDelta(t, 12.0, f.RiskScore, 1e-9)
	assert.ElementsMatch(t, []string{"CVE-2024-6387", "CVE-2021-1111"}, f.RelatedCVEs)

	exp := findByRule(rep.Findings, "service_exposure")
	require.Len(t, exp, 1)
	assert.Equal(t, SeverityMedium, exp[0].Severity)
	assert.InDelta(t, 9.0, exp[0].RiskScore, 1e-9)
}

func TestPrivateSANDetection(t *testing.T) {
	rec := record.Record{IP: "1.2.3.4", Port: 443, Other: record.Other{
		record.KeyCertSAN: []any{"172.16.0.4", "8.8.8.8", "example.com", "192.168.1.1"},
	}}
	rep := quietEngine().Run([]record.Record{rec}, Aux{})
	got := findByRule(rep.Findings, "identity.private_san")
	require.Len(t, got, 1)
	assert.Equal(t, "tls.san=172.16.0.4,192.168.1.1", got[0].Evidence[1])
}

func TestMySQLAggregatesToOneFinding(t *testing.T) {
	recs := []record.Record{
		{IP: "1.1.1.1", Port: 3306},
		{IP: "2.2.2.2", Port: 3307, Product: "MySQL"},
	}
	rep := quietEngine().Run(recs, Aux{})
	got := findByRule(rep.Findings, "db.mysql")
	require.Len(t, got, 1)
	assert.Equal(t, []string{"1.1.1.1:3306", "2.2.2.2:3307 MySQL"}, got[0].Evidence)
}

func TestFailingRuleIsIsolated(t *testing.T) {
	log, hook := test.NewNullLogger()
	e := NewEngine(log)
	e.AddRule(NewRule("boom", "panics", nil, func([]record.Record, Aux) ([]RiskFinding, error) {
		panic("bad input")
	}))
	e.AddRule(NewRule("err", "errors", nil, func([]record.Record, Aux) ([]RiskFinding, error) {
		return []RiskFinding{{Title: "never"}}, errors.New("feed unavailable")
	}))

	recs := []record.Record{{IP: "1.1.1.1", Port: 6379, Product: "redis"}}
	rep := e.Run(recs, Aux{})

	failed := rep.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "boom", failed[0].Rule)
	assert.Equal(t, "err", failed[1].Rule)

	var rerr *RuleError
	require.ErrorAs(t, failed[1].Err, &rerr)
	assert.Equal(t, "err", rerr.Rule)
	assert.EqualError(t, errors.Unwrap(failed[1].Err), "feed unavailable")

	assert.NotEmpty(t, findByRule(rep.Findings, "service_exposure"))
	for _, f := range rep.Findings {
		assert.NotEqual(t, "never", f.Title)
	}

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestEmptyInputYieldsEmptyMatrix(t *testing.T) {
	rep := quietEngine().Run(nil, Aux{})
	assert.Empty(t, rep.Findings)
	assert.Equal(t, RiskMatrix{}, Matrix(Deduplicate(rep.Findings)))
}

func TestRulesDeclareKeys(t *testing.T) {
	names := map[string]bool{}
	for _, r := range DefaultRules() {
		assert.NotEmpty(t, r.Name())
		assert.NotEmpty(t, r.Description())
		assert.False(t, names[r.Name()], "duplicate rule %s", r.Name())
		names[r.Name()] = true
	}
	assert.Len(t, names, 14)
}

func TestBaseScore(t *testing.T) {
	assert.Equal(t, 1.0, BaseScore(SeverityLow, 0, false))
	assert.Equal(t, 3.0, BaseScore(SeverityMedium, 6.9, false))
	assert.Equal(t, 8.5, BaseScore(SeverityHigh, 7.0, false))
	assert.Equal(t, 12.0, BaseScore(SeverityCritical, 9.8, true))
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityHigh, ParseSeverity(" high "))
	assert.Equal(t, SeverityCritical, ParseSeverity("Critical"))
	assert.Equal(t, SeverityLow, ParseSeverity("unknown"))
	assert.Equal(t, SeverityHigh, SeverityCritical.Fold())
}
