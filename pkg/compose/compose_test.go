package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/censai/pkg/engine"
	"github.com/user/censai/pkg/record"
	"github.com/user/censai/pkg/retrieval"
)

func fixture() []record.Record {
	return []record.Record{
		{ID: "r1", IP: "1.1.1.1", Port: 22, Product: "OpenSSH", Version: "8.9", Country: "us"},
		{ID: "r2", IP: "2.2.2.2", Port: 22, Product: "OpenSSH", Version: "8.9", Country: "US"},
		{ID: "r3", IP: "3.3.3.3", Port: 80, Product: "nginx", Country: "DE"},
	}
}

func evidenceOf(recs []record.Record, score float64) []Evidence {
	hits := make([]retrieval.Hit, len(recs))
	for i, r := range recs {
		hits[i] = retrieval.Hit{Record: r, Index: i, Score: score}
	}
	return EvidenceFromHits(hits)
}

func TestPortWeight(t *testing.T) {
	assert.Equal(t, 10.0, PortWeight(23))
	assert.Equal(t, 9.0, PortWeight(3389))
	assert.Equal(t, 7.0, PortWeight(22))
	assert.Equal(t, 3.0, PortWeight(443))
	assert.Equal(t, 1.0, PortWeight(8443))
	assert.Equal(t, 1.0, PortWeight(0))
}

func TestGroupEvidenceKeysAndRanking(t *testing.T) {
	ev := []Evidence{
		{ID: "a", Port: 443, Product: "nginx", Country: "de", Score: 0.9},
		{ID: "b", Port: 23, Product: "BusyBox", Hardware: "Router", Country: "cn", Score: 0.1,
			CVE: []record.CVE{{ID: "CVE-1", Score: 9}}},
		{ID: "c", Port: 443, Product: "NGINX", Country: "DE", Score: 0.5},
		{ID: "d", Port: 0, Score: 0.2},
	}
	clusters := GroupEvidence(ev)
	require.Len(t, clusters, 3)

	top := clusters[0]
	assert.Equal(t, ClusterKey{Product: "busybox", Hardware: "router", Country: "CN"}, top.ClusterKey)
	assert.InDelta(t, 13.0, top.RiskSum, 1e-9)
	assert.Equal(t, "busybox on router", top.Label())

	ng := clusters[1]
	assert.Equal(t, 2, ng.Count)
	assert.Equal(t, []string{"a", "c"}, ng.IDs)
	assert.Equal(t, []PortCount{{Port: 443, Count: 2}}, ng.Ports)
	assert.InDelta(t, 6.0+0.1*0.7, ng.Rank(), 1e-9)

	unknown := clusters[2]
	assert.Equal(t, ClusterKey{Product: "unknown", Hardware: "na"}, unknown.ClusterKey)
	assert.Empty(t, unknown.Ports)
	assert.Equal(t, "unknown software", unknown.Label())
}

func TestGroupEvidenceStableTies(t *testing.T) {
	ev := []Evidence{
		{ID: "x", Port: 80, Product: "b"},
		{ID: "y", Port: 80, Product: "a"},
	}
	clusters := GroupEvidence(ev)
	require.Len(t, clusters, 2)
	assert.Equal(t, "b", clusters[0].Product)
	assert.Equal(t, "a", clusters[1].Product)
}

func TestComposeEmpty(t *testing.T) {
	s := Compose(Input{})
	assert.Equal(t, "Analyzed 0 records. No specific evidence available.", s.Overview)
	assert.NotNil(t, s.Highlights)
	assert.Empty(t, s.Highlights)
	assert.Empty(t, s.Clusters)
	assert.Equal(t, Totals{}, s.Totals)
	assert.Equal(t, []string{"Maintain patch hygiene; reduce public attack surface via segmentation and WAF."}, s.Recommendations)
}

func TestComposeOverview(t *testing.T) {
	recs := fixture()
	s := Compose(Input{
		Records:  recs,
		Evidence: evidenceOf(recs, 0.5),
		Matrix:   engine.RiskMatrix{High: 1},
	})

	want := "Analyzed 3 services across 2 countries (3 unique IPs). Top 3 ports: 22 (2), 80 (1). " +
		"Risk profile: 1 high, 0 medium, 0 low severity issues. " +
		"Top clusters: openssh 8.9 in US (2 assets, ports 22); nginx in DE (1 assets, ports 80)."
	assert.Equal(t, want, s.Overview)
	assert.Equal(t, Totals{Hosts: 3, UniqueIPs: 3, Countries: 2, Services: 3, UniquePorts: 2, TopPort: 22}, s.Totals)
	assert.Equal(t, []CountryCount{{Country: "US", Count: 2}, {Country: "DE", Count: 1}}, s.Countries)
	assert.Equal(t, []string{
		"openssh 8.9 in US: 2 assets; ports 22",
		"nginx in DE: 1 assets; ports 80",
	}, s.Highlights)
	assert.Contains(t, s.Observations, "Widespread exposure of high-risk service on port 22 across 2 assets.")
}

func TestComposeCountsHostsByIP(t *testing.T) {
	recs := []record.Record{
		{ID: "a", IP: "10.0.0.1", Port: 22, Product: "OpenSSH", Country: "US"},
		{ID: "b", IP: "10.0.0.1", Port: 80, Product: "nginx", Country: "US"},
		{ID: "c", IP: "10.0.0.2", Port: 443, Product: "nginx", Country: "US"},
		{ID: "d", IP: "10.0.0.2", Port: 8443, Product: "nginx", Country: "US"},
	}
	s := Compose(Input{Records: recs})

	assert.Equal(t, 2, s.Totals.Hosts)
	assert.Equal(t, 2, s.Totals.UniqueIPs)
	assert.Equal(t, 4, s.Totals.Services)
	assert.Equal(t, 4, s.Totals.UniquePorts)
}

func TestComposeIsDeterministic(t *testing.T) {
	recs := fixture()
	in := Input{Records: recs, Evidence: evidenceOf(recs, 0.3)}
	first := Compose(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first.Overview, Compose(in).Overview)
	}
}

func TestHighlightsFallbackWithoutEvidence(t *testing.T) {
	s := Compose(Input{Records: fixture()})
	assert.Equal(t, []string{"Software: OpenSSH x2", "Software: nginx x1"}, s.Highlights)
	assert.Contains(t, s.Overview, "Top clusters: no clusters detected.")
	assert.Equal(t, []string{"Concentration on port 22 across 2 assets may indicate exposure risk."}, s.Observations)

	s = Compose(Input{Records: []record.Record{{IP: "9.9.9.9", Port: 8080}}})
	assert.Equal(t, []string{"Port: 8080 x1"}, s.Highlights)
}

func TestRecommendations(t *testing.T) {
	recs := []record.Record{
		{IP: "1.1.1.1", Port: 3389},
		{IP: "1.1.1.2", Port: 6379},
	}
	findings := []engine.RiskFinding{{KEV: true}, {CVSS: ptr(9.8)}}
	s := Compose(Input{Records: recs, Findings: findings})
	assert.Equal(t, []string{
		"Patch KEV-mapped services immediately; prioritize internet-exposed assets.",
		"Address CVSS≥7 findings with emergency SLAs and change windows.",
		"Close high-risk services (Telnet/SMB/RDP) from the internet; require VPN/Bastion.",
		"Harden data stores (Redis/Elasticsearch): auth, network policies, TLS.",
	}, s.Recommendations)
	assert.Equal(t, Flags{KEVTotal: 1, CVSS7Total: 1}, s.Flags)
}

func TestHoneypotFlag(t *testing.T) {
	recs := []record.Record{
		{IP: "1.1.1.1", Port: 22, Other: record.Other{record.KeyLabels: []any{"Honeypot"}}},
		{IP: "1.1.1.2", Port: 22, Other: record.Other{record.KeyASNName: "honeypot-net"}},
		{IP: "1.1.1.3", Port: 22},
	}
	s := Compose(Input{Records: recs})
	assert.Equal(t, 2, s.Flags.HoneypotLike)
	assert.Contains(t, s.Observations, "2 assets look like honeypots; their exposure may be staged.")
}

func ptr(v float64) *float64 { return &v }
