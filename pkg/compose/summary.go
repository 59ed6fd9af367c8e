package compose

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/user/censai/pkg/engine"
	"github.com/user/censai/pkg/record"
)

// Input is everything the composer reads for one summarization call.
type Input struct {
	Records  []record.Record
	Evidence []Evidence
	Findings []engine.RiskFinding
	Matrix   engine.RiskMatrix
}

// Totals are the dataset counts quoted by the overview.
type Totals struct {
	Hosts       int `json:"hosts"`
	UniqueIPs   int `json:"unique_ips"`
	Countries   int `json:"countries"`
	Services    int `json:"services"`
	UniquePorts int `json:"unique_ports"`
	TopPort     int `json:"top_port"`
}

// Flags tally the signals that drive recommendations.
type Flags struct {
	KEVTotal     int `json:"kev_total"`
	CVSS7Total   int `json:"cvss_high_total"`
	HoneypotLike int `json:"honeypot_like"`
}

// CountryCount is a country with its number of records.
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// Summary is the deterministic narrative and the data behind it.
type Summary struct {
	Overview        string            `json:"overview"`
	Highlights      []string          `json:"highlights"`
	Observations    []string          `json:"observations"`
	Recommendations []string          `json:"recommendations"`
	Clusters        []*Cluster        `json:"clusters"`
	TopPorts        []PortCount       `json:"top_ports"`
	Countries       []CountryCount    `json:"assets_by_country"`
	Totals          Totals            `json:"totals"`
	Flags           Flags             `json:"flags"`
	Matrix          engine.RiskMatrix `json:"severity_matrix"`
}

const (
	topPortsListed     = 10
	countriesListed    = 20
	clustersDescribed  = 3
	highlightsRendered = 3
)

// Compose builds the deterministic summary. It never fails; an empty input
// yields an "Analyzed 0 records" overview and no highlights.
func Compose(in Input) Summary {
	recPorts, recCountries, ips := newCounter[int](), newCounter[string](), make(map[string]struct{})
	for _, r := range in.Records {
		if r.IP != "" {
			ips[r.IP] = struct{}{}
		}
		if r.Country != "" {
			recCountries.add(strings.ToUpper(r.Country))
		}
		if r.Port > 0 {
			recPorts.add(r.Port)
		}
	}

	s := Summary{
		Highlights:   []string{},
		Observations: []string{},
		Clusters:     GroupEvidence(in.Evidence),
		TopPorts:     portCounts(recPorts, topPortsListed),
		Matrix:       in.Matrix,
		Totals: Totals{
			Hosts:       len(ips),
			UniqueIPs:   len(ips),
			Countries:   recCountries.len(),
			Services:    len(in.Records),
			UniquePorts: recPorts.len(),
		},
		Flags: flagsOf(in.Records, in.Findings),
	}
	if len(s.TopPorts) > 0 {
		s.Totals.TopPort = s.TopPorts[0].Port
	}
	for _, c := range recCountries.ranked(countriesListed) {
		s.Countries = append(s.Countries, CountryCount{Country: c, Count: recCountries.counts[c]})
	}

	if len(in.Records) == 0 {
		s.Overview = "Analyzed 0 records. No specific evidence available."
		s.Recommendations = recommendations(s)
		return s
	}

	s.Overview = overview(s)
	s.Highlights = highlights(s, in)
	s.Observations = observations(s, in.Evidence)
	if n := s.Flags.HoneypotLike; n > 0 {
		s.Observations = append(s.Observations, fmt.Sprintf("%d assets look like honeypots; their exposure may be staged.", n))
	}
	s.Recommendations = recommendations(s)
	return s
}

func flagsOf(records []record.Record, findings []engine.RiskFinding) Flags {
	var f Flags
	for _, rf := range findings {
		if rf.KEV {
			f.KEVTotal++
		}
		if rf.CVSSValue() >= 7 {
			f.CVSS7Total++
		}
	}
	for _, r := range records {
		if isHoneypotLike(r) {
			f.HoneypotLike++
		}
	}
	return f
}

func isHoneypotLike(r record.Record) bool {
	for _, l := range r.Other.Strings(record.KeyLabels) {
		if strings.Contains(strings.ToLower(l), "honeypot") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(r.Other.String(record.KeyASNName)), "honeypot")
}

func overview(s Summary) string {
	ports := make([]string, 0, 3)
	for _, pc := range s.TopPorts {
		if len(ports) == 3 {
			break
		}
		ports = append(ports, fmt.Sprintf("%d (%d)", pc.Port, pc.Count))
	}
	portsStr := strings.Join(ports, ", ")
	if portsStr == "" {
		portsStr = "none"
	}

	var descs []string
	for i, c := range s.Clusters {
		if i == clustersDescribed {
			break
		}
		descs = append(descs, clusterDescription(c))
	}
	clustersStr := strings.Join(descs, "; ")
	if clustersStr == "" {
		clustersStr = "no clusters detected"
	}

	return fmt.Sprintf("Analyzed %d services across %d countries (%d unique IPs). Top 3 ports: %s. "+
		"Risk profile: %d high, %d medium, %d low severity issues. Top clusters: %s.",
		s.Totals.Services, s.Totals.Countries, s.Totals.UniqueIPs, portsStr,
		s.Matrix.High, s.Matrix.Medium, s.Matrix.Low, clustersStr)
}

func clusterDescription(c *Cluster) string {
	label := c.Product
	if c.Version != "" {
		label += " " + c.Version
	}
	country := c.Country
	if country == "" {
		country = "UNKNOWN"
	}
	return fmt.Sprintf("%s in %s (%d assets, ports %s)", label, country, c.Count, joinPorts(c.TopPorts(3)))
}

func joinPorts(pcs []PortCount) string {
	if len(pcs) == 0 {
		return "none"
	}
	parts := make([]string, len(pcs))
	for i, pc := range pcs {
		parts[i] = strconv.Itoa(pc.Port)
	}
	return strings.Join(parts, ", ")
}

func highlights(s Summary, in Input) []string {
	out := []string{}
	for i, c := range s.Clusters {
		if i == highlightsRendered {
			break
		}
		geo := ""
		if c.Country != "" {
			geo = " in " + c.Country
		}
		if ports := c.TopPorts(2); len(ports) > 0 {
			out = append(out, fmt.Sprintf("%s%s: %d assets; ports %s", c.Label(), geo, c.Count, joinPorts(ports)))
		} else {
			out = append(out, fmt.Sprintf("%s%s: %d assets", c.Label(), geo, c.Count))
		}
	}
	if len(in.Evidence) > 0 {
		return out
	}

	software := newCounter[string]()
	for _, r := range in.Records {
		if p := strings.TrimSpace(r.Product); p != "" {
			software.add(p)
		}
	}
	for _, p := range software.ranked(highlightsRendered) {
		out = append(out, fmt.Sprintf("Software: %s x%d", p, software.counts[p]))
	}
	if len(out) == 0 {
		for i, pc := range s.TopPorts {
			if i == highlightsRendered {
				break
			}
			out = append(out, fmt.Sprintf("Port: %d x%d", pc.Port, pc.Count))
		}
	}
	return out
}

// observations derives short analyst notes from the retrieved evidence.
func observations(s Summary, evidence []Evidence) []string {
	out := []string{}
	if len(evidence) == 0 {
		if len(s.TopPorts) > 0 {
			p := s.TopPorts[0]
			out = append(out, fmt.Sprintf("Concentration on port %d across %d assets may indicate exposure risk.", p.Port, p.Count))
		}
		return out
	}

	ports, countries := newCounter[int](), newCounter[string]()
	for _, e := range evidence {
		if e.Port > 0 {
			ports.add(e.Port)
		}
		if c := strings.ToUpper(strings.TrimSpace(e.Country)); c != "" {
			countries.add(c)
		}
	}

	if top := ports.ranked(1); len(top) == 1 {
		p, n := top[0], ports.counts[top[0]]
		if PortWeight(p) >= 7 {
			out = append(out, fmt.Sprintf("Widespread exposure of high-risk service on port %d across %d assets.", p, n))
		} else {
			out = append(out, fmt.Sprintf("Significant surface on port %d across %d assets.", p, n))
		}
	}

	if top := countries.ranked(1); len(top) == 1 {
		c, n := top[0], countries.counts[top[0]]
		threshold := max(5, int(0.1*float64(max(s.Totals.Hosts, n))))
		if n >= threshold {
			out = append(out, fmt.Sprintf("Asset concentration in %s (%d assets) may amplify localized risk.", c, n))
		}
	}

	if len(s.Clusters) > 0 {
		c := s.Clusters[0]
		geo := ""
		if c.Country != "" {
			geo = " in " + c.Country
		}
		out = append(out, fmt.Sprintf("%d assets running %s%s with exposed ports %s.", c.Count, c.Label(), geo, joinPorts(c.TopPorts(3))))
	}
	return out
}

func recommendations(s Summary) []string {
	var recs []string
	if s.Flags.KEVTotal > 0 {
		recs = append(recs, "Patch KEV-mapped services immediately; prioritize internet-exposed assets.")
	}
	if s.Flags.CVSS7Total > 0 {
		recs = append(recs, "Address CVSS≥7 findings with emergency SLAs and change windows.")
	}
	if hasPort(s.TopPorts, 23, 445, 3389) {
		recs = append(recs, "Close high-risk services (Telnet/SMB/RDP) from the internet; require VPN/Bastion.")
	}
	if hasPort(s.TopPorts, 6379, 9200) {
		recs = append(recs, "Harden data stores (Redis/Elasticsearch): auth, network policies, TLS.")
	}
	if len(recs) == 0 {
		recs = append(recs, "Maintain patch hygiene; reduce public attack surface via segmentation and WAF.")
	}
	return recs
}

func hasPort(pcs []PortCount, ports ...int) bool {
	for _, pc := range pcs {
		for _, p := range ports {
			if pc.Port == p {
				return true
			}
		}
	}
	return false
}
