package compose

import (
	"sort"
	"strings"

	"github.com/user/censai/pkg/record"
	"github.com/user/censai/pkg/retrieval"
)

// Evidence is one retrieved record snippet fed to the composer.
type Evidence struct {
	ID       string       `json:"id"`
	IP       string       `json:"ip"`
	Port     int          `json:"port"`
	Product  string       `json:"product"`
	Version  string       `json:"version"`
	Hardware string       `json:"hardware"`
	Country  string       `json:"country"`
	Score    float64      `json:"score"`
	CVE      []record.CVE `json:"cve"`
}

// EvidenceFromHits converts retrieval hits, keeping their order.
func EvidenceFromHits(hits []retrieval.Hit) []Evidence {
	out := make([]Evidence, 0, len(hits))
	for _, h := range hits {
		r := h.Record
		out = append(out, Evidence{
			ID:       r.ID,
			IP:       r.IP,
			Port:     r.Port,
			Product:  r.Product,
			Version:  r.Version,
			Hardware: r.Hardware,
			Country:  r.Country,
			Score:    h.Score,
			CVE:      r.CVE,
		})
	}
	return out
}

var portWeights = map[int]float64{
	23:   10, // telnet
	3389: 9,  // rdp
	445:  9,  // smb
	21:   8,  // ftp
	22:   7,  // ssh
	25:   6,  // smtp
	5900: 6,  // vnc
	3306: 5,  // mysql
	5432: 5,  // postgres
	9200: 5,  // elasticsearch
	80:   4,  // http
	443:  3,  // https
}

// PortWeight is the risk weight of a port; unknown ports weigh 1.
func PortWeight(port int) float64 {
	if w, ok := portWeights[port]; ok {
		return w
	}
	return 1
}

// ClusterKey groups evidence by normalized product, version, hardware and country.
type ClusterKey struct {
	Product  string `json:"product"`
	Version  string `json:"version"`
	Hardware string `json:"hardware"`
	Country  string `json:"country"`
}

func keyOf(e Evidence) ClusterKey {
	k := ClusterKey{
		Product:  strings.ToLower(strings.TrimSpace(e.Product)),
		Version:  strings.ToLower(strings.TrimSpace(e.Version)),
		Hardware: strings.ToLower(strings.TrimSpace(e.Hardware)),
		Country:  strings.ToUpper(strings.TrimSpace(e.Country)),
	}
	if k.Product == "" {
		k.Product = "unknown"
	}
	if k.Hardware == "" {
		k.Hardware = "na"
	}
	return k
}

// Cluster aggregates the evidence sharing one ClusterKey.
type Cluster struct {
	ClusterKey
	Count    int         `json:"count"`
	ScoreSum float64     `json:"score_sum"`
	RiskSum  float64     `json:"risk_sum"`
	IDs      []string    `json:"ids"`
	Ports    []PortCount `json:"ports"`

	ports *counter[int]
}

// Rank is the aggregate risk plus a small retrieval-score tie-breaker.
func (c *Cluster) Rank() float64 {
	n := c.Count
	if n < 1 {
		n = 1
	}
	return c.RiskSum + 0.1*(c.ScoreSum/float64(n))
}

// TopPorts returns up to n most frequent ports in the cluster.
func (c *Cluster) TopPorts(n int) []PortCount {
	if c.ports == nil {
		if n >= 0 && len(c.Ports) > n {
			return c.Ports[:n]
		}
		return c.Ports
	}
	return portCounts(c.ports, n)
}

// Label renders "product version on hardware", omitting unknown parts.
func (c *Cluster) Label() string {
	label := c.Product
	if label == "unknown" {
		label = "unknown software"
	}
	if c.Version != "" {
		label += " " + c.Version
	}
	if c.Hardware != "na" {
		label += " on " + c.Hardware
	}
	return label
}

// GroupEvidence clusters evidence and returns clusters ranked by Rank,
// descending. Equal ranks keep first-seen order.
func GroupEvidence(evidence []Evidence) []*Cluster {
	index := make(map[ClusterKey]*Cluster)
	var clusters []*Cluster

	for _, e := range evidence {
		k := keyOf(e)
		c, ok := index[k]
		if !ok {
			c = &Cluster{ClusterKey: k, ports: newCounter[int]()}
			index[k] = c
			clusters = append(clusters, c)
		}
		c.Count++
		c.IDs = append(c.IDs, e.ID)
		c.ScoreSum += e.Score
		if e.Port > 0 {
			c.ports.add(e.Port)
		}

		maxCVE := 0.0
		for _, cve := range e.CVE {
			if cve.Score > maxCVE {
				maxCVE = cve.Score
			}
		}
		c.RiskSum += PortWeight(e.Port) + maxCVE/3
	}

	for _, c := range clusters {
		c.Ports = portCounts(c.ports, -1)
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Rank() > clusters[j].Rank()
	})
	return clusters
}

// PortCount is a port with its number of occurrences.
type PortCount struct {
	Port  int `json:"port"`
	Count int `json:"count"`
}

// counter tallies keys and ranks them by count, then first-seen order.
type counter[K comparable] struct {
	counts map[K]int
	order  []K
}

func newCounter[K comparable]() *counter[K] {
	return &counter[K]{counts: make(map[K]int)}
}

func (c *counter[K]) add(k K) {
	if _, ok := c.counts[k]; !ok {
		c.order = append(c.order, k)
	}
	c.counts[k]++
}

func (c *counter[K]) len() int { return len(c.order) }

// ranked returns up to n keys by descending count; n < 0 returns all.
func (c *counter[K]) ranked(n int) []K {
	out := append([]K(nil), c.order...)
	sort.SliceStable(out, func(i, j int) bool { return c.counts[out[i]] > c.counts[out[j]] })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func portCounts(c *counter[int], n int) []PortCount {
	keys := c.ranked(n)
	out := make([]PortCount, 0, len(keys))
	for _, p := range keys {
		out = append(out, PortCount{Port: p, Count: c.counts[p]})
	}
	return out
}
