package retrieval

import (
	"math"
	"strconv"
	"strings"

	"github.com/user/censai/pkg/record"
)

// Corpus is a TF-IDF index over one batch of records. It is built per
// request and never shared.
type Corpus struct {
	records []record.Record
	vocab   map[string]int
	terms   []string
	idf     []float64
	matrix  [][]float64 // len(records) x len(terms), rows L2-normalized
}

// BuildCorpus tokenizes every record and builds the TF-IDF matrix.
// Vocabulary columns are assigned in first-seen order.
func BuildCorpus(records []record.Record) *Corpus {
	c := &Corpus{
		records: records,
		vocab:   make(map[string]int),
	}

	docs := make([][]string, len(records))
	for i, r := range records {
		docs[i] = Tokenize(documentText(r))
		for _, t := range docs[i] {
			if _, ok := c.vocab[t]; !ok {
				c.vocab[t] = len(c.terms)
				c.terms = append(c.terms, t)
			}
		}
	}

	n, v := len(records), len(c.terms)
	if n == 0 || v == 0 {
		return c
	}

	df := make([]int, v)
	tfs := make([]map[int]int, n)
	for i, toks := range docs {
		tf := make(map[int]int, len(toks))
		for _, t := range toks {
			tf[c.vocab[t]]++
		}
		for j := range tf {
			df[j]++
		}
		tfs[i] = tf
	}

	c.idf = make([]float64, v)
	for j := range c.idf {
		c.idf[j] = math.Log(float64(n+1)/float64(df[j]+1)) + 1
	}

	c.matrix = make([][]float64, n)
	for i, tf := range tfs {
		row := make([]float64, v)
		for j, f := range tf {
			row[j] = float64(f) * c.idf[j]
		}
		normalize(row)
		c.matrix[i] = row
	}
	return c
}

// Len returns the number of indexed records.
func (c *Corpus) Len() int { return len(c.records) }

// VocabSize returns the number of distinct terms.
func (c *Corpus) VocabSize() int { return len(c.terms) }

// Records returns the indexed records in input order.
func (c *Corpus) Records() []record.Record { return c.records }

// Terms returns the vocabulary in column order.
func (c *Corpus) Terms() []string { return append([]string(nil), c.terms...) }

// Empty reports whether the matrix has no cells.
func (c *Corpus) Empty() bool { return len(c.matrix) == 0 }

func documentText(r record.Record) string {
	parts := []string{r.IP}
	if r.Port != 0 {
		parts = append(parts, strconv.Itoa(r.Port))
	}
	parts = append(parts, r.Product, r.Version, r.Hardware, r.Country)
	parts = append(parts, r.CVEIDs()...)
	parts = append(parts, r.Other.Scalars()...)

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// normalize scales v to unit length in place; zero vectors are left alone.
func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
}
