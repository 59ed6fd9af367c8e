package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/user/censai/pkg/record"
)

// Hit is one retrieved record with its cosine similarity to the query.
type Hit struct {
	Record record.Record
	Index  int
	Score  float64
}

// Filter restricts retrieval to records matching every non-empty field.
type Filter struct {
	Product  string
	Version  string
	Hardware string
	Country  string
}

func (f Filter) match(r record.Record) bool {
	if f.Product != "" && !strings.EqualFold(r.Product, f.Product) {
		return false
	}
	if f.Version != "" && r.Version != f.Version {
		return false
	}
	if f.Hardware != "" && !strings.EqualFold(r.Hardware, f.Hardware) {
		return false
	}
	if f.Country != "" && strings.ToUpper(r.Country) != strings.ToUpper(f.Country) {
		return false
	}
	return true
}

// Retrieve returns up to k records ranked by similarity to query. Only
// strictly positive scores are returned; ties keep input order.
func Retrieve(c *Corpus, query string, k int) []Hit {
	return RetrieveFiltered(c, Filter{}, query, k)
}

// RetrieveFiltered is Retrieve over the records accepted by f.
func RetrieveFiltered(c *Corpus, f Filter, query string, k int) []Hit {
	if c == nil || c.Empty() {
		return nil
	}

	q := c.queryVector(query)
	sims := make([]float64, len(c.matrix))
	for i, row := range c.matrix {
		if !f.match(c.records[i]) {
			sims[i] = -1
			continue
		}
		sims[i] = dot(row, q)
	}

	hits := make([]Hit, 0)
	for _, i := range topK(sims, k) {
		if sims[i] <= 0 {
			continue
		}
		// rounding can push a perfect match just past 1
		hits = append(hits, Hit{Record: c.records[i], Index: i, Score: math.Min(sims[i], 1)})
	}
	return hits
}

// ClampTopK resolves a per-request top-k override against the default and
// the batch size. Overrides are clamped into [1, n].
func ClampTopK(override, def, n int) int {
	k := def
	if override > 0 {
		k = override
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// queryVector embeds query into the corpus vocabulary. A query with no known
// terms becomes the uniform unit vector.
func (c *Corpus) queryVector(query string) []float64 {
	v := len(c.terms)
	q := make([]float64, v)

	matched := false
	for _, t := range Tokenize(query) {
		if j, ok := c.vocab[t]; ok {
			q[j] += c.idf[j]
			matched = true
		}
	}
	if !matched {
		for j := range q {
			q[j] = 1
		}
	}
	normalize(q)
	return q
}

// topK selects the indices of the k largest values, ordered descending with
// ties resolved by index.
func topK(sims []float64, k int) []int {
	if k > len(sims) {
		k = len(sims)
	}
	if k <= 0 {
		return nil
	}

	idx := make([]int, len(sims))
	for i := range idx {
		idx[i] = i
	}
	less := func(a, b int) bool {
		if sims[a] != sims[b] {
			return sims[a] > sims[b]
		}
		return a < b
	}

	// Partial selection keeps the k best at the front, then only that slice
	// is fully sorted.
	for i := 0; i < k; i++ {
		best := i
		for j := i + 1; j < len(idx); j++ {
			if less(idx[j], idx[best]) {
				best = j
			}
		}
		idx[i], idx[best] = idx[best], idx[i]
	}
	sel := idx[:k]
	sort.SliceStable(sel, func(a, b int) bool { return less(sel[a], sel[b]) })
	return sel
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
