package record

import (
	"fmt"
	"strings"
)

// CVE is a vulnerability reference attached to an observed service.
type CVE struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Record represents one observed network service.
// Records are treated as immutable once Normalize has produced them.
type Record struct {
	ID       string `json:"id"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Product  string `json:"product,omitempty"`
	Version  string `json:"version,omitempty"`
	Hardware string `json:"hardware,omitempty"`
	Country  string `json:"country,omitempty"`
	CVE      []CVE  `json:"cve,omitempty"`
	Other    Other  `json:"other,omitempty"`
}

// Primary renders the "ip:port product version" string used as the first
// evidence entry of every finding.
func (r Record) Primary() string {
	return strings.TrimSpace(fmt.Sprintf("%s:%d %s %s", r.IP, r.Port, r.Product, r.Version))
}

// CVEIDs returns the non-empty CVE identifiers in input order.
func (r Record) CVEIDs() []string {
	ids := make([]string, 0, len(r.CVE))
	for _, c := range r.CVE {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// MaxCVSS returns the highest CVE score on the record, or 0 when none is known.
func (r Record) MaxCVSS() float64 {
	max := 0.0
	for _, c := range r.CVE {
		if c.Score > max {
			max = c.Score
		}
	}
	return max
}

// ProductIs reports whether the product equals name, ignoring case.
func (r Record) ProductIs(name string) bool {
	return strings.EqualFold(strings.TrimSpace(r.Product), name)
}

// ProductContains reports whether the lowercased product contains any hint.
func (r Record) ProductContains(hints ...string) bool {
	p := strings.ToLower(r.Product)
	if p == "" {
		return false
	}
	for _, h := range hints {
		if strings.Contains(p, h) {
			return true
		}
	}
	return false
}
