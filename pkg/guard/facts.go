package guard

import (
	"sort"

	"github.com/user/censai/pkg/compose"
	"github.com/user/censai/pkg/engine"
)

// requiredPortRisks is how many top-ranked findings contribute required ports.
const requiredPortRisks = 6

// FactSet is the locked set of numbers and identifiers a rewrite must keep.
// Values are fixed at construction.
type FactSet struct {
	Hosts       int `json:"hosts"`
	IPs         int `json:"ips"`
	Countries   int `json:"countries"`
	Services    int `json:"services"`
	UniquePorts int `json:"unique_ports"`
	TopPort     int `json:"top_port"`
	High        int `json:"high"`
	Medium      int `json:"medium"`
	Low         int `json:"low"`

	KEV    bool `json:"kev"`
	CVSS7  bool `json:"cvss7"`
	EPSS95 bool `json:"epss95"`

	cves          []string
	requiredPorts []int
}

// NewFactSet locks the facts of a deterministic summary. findings must be
// the ranked, deduplicated list the summary was built from.
func NewFactSet(s compose.Summary, findings []engine.RiskFinding) FactSet {
	f := FactSet{
		Hosts:       s.Totals.Hosts,
		IPs:         s.Totals.UniqueIPs,
		Countries:   s.Totals.Countries,
		Services:    s.Totals.Services,
		UniquePorts: s.Totals.UniquePorts,
		TopPort:     s.Totals.TopPort,
		High:        s.Matrix.High,
		Medium:      s.Matrix.Medium,
		Low:         s.Matrix.Low,
	}

	seen := make(map[string]struct{})
	for _, rf := range findings {
		for _, c := range rf.RelatedCVEs {
			if _, ok := seen[c]; c != "" && !ok {
				seen[c] = struct{}{}
				f.cves = append(f.cves, c)
			}
		}
		if rf.KEV {
			f.KEV = true
		}
		if rf.CVSSValue() >= 7 {
			f.CVSS7 = true
		}
		if rf.EPSSValue() >= 0.95 {
			f.EPSS95 = true
		}
	}
	sort.Strings(f.cves)

	portSeen := make(map[int]struct{})
	for i, rf := range findings {
		if i == requiredPortRisks {
			break
		}
		p := rf.ServicePort()
		if p == 0 {
			continue
		}
		if _, ok := portSeen[p]; !ok {
			portSeen[p] = struct{}{}
			f.requiredPorts = append(f.requiredPorts, p)
		}
	}
	return f
}

// CVEs returns the sorted CVE identifiers that must appear verbatim.
func (f FactSet) CVEs() []string { return append([]string(nil), f.cves...) }

// RequiredPorts returns the ports of the top risks that must be mentioned.
func (f FactSet) RequiredPorts() []int { return append([]int(nil), f.requiredPorts...) }

// lockedValue pairs a fact name with its locked value and patterns.
type lockedValue struct {
	name     string
	want     int
	patterns pattern
}

func (f FactSet) locked() []lockedValue {
	return []lockedValue{
		{"hosts", f.Hosts, hostPatterns},
		{"ips", f.IPs, ipPatterns},
		{"countries", f.Countries, countryPatterns},
		{"services", f.Services, servicePatterns},
		{"unique_ports", f.UniquePorts, uniquePortPatterns},
		{"top_port", f.TopPort, topPortPatterns},
		{"high", f.High, severityPatterns("high")},
		{"medium", f.Medium, severityPatterns("medium")},
		{"low", f.Low, severityPatterns("low")},
	}
}
