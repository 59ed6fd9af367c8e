package intel

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// EPSSMap maps CVE ids to exploit prediction scores in [0,1]. It is safe for
// concurrent use.
type EPSSMap struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// NewEPSSMap copies scores, dropping empty ids and values outside [0,1].
func NewEPSSMap(scores map[string]float64) *EPSSMap {
	m := &EPSSMap{}
	m.Replace(scores)
	return m
}

func validScore(v float64) bool { return v >= 0 && v <= 1 }

// Replace swaps the whole map atomically.
func (m *EPSSMap) Replace(scores map[string]float64) {
	next := make(map[string]float64, len(scores))
	for id, v := range scores {
		if n := normCVE(id); n != "" && validScore(v) {
			next[n] = v
		}
	}
	m.mu.Lock()
	m.scores = next
	m.mu.Unlock()
}

// Score returns the score for cve, or 0 when unknown.
func (m *EPSSMap) Score(cve string) float64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scores[normCVE(cve)]
}

func (m *EPSSMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scores)
}

// Scores returns a copy of the map.
func (m *EPSSMap) Scores() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.scores))
	for k, v := range m.scores {
		out[k] = v
	}
	return out
}

type epssRow struct {
	CVE   string   `json:"cve"`
	ID    string   `json:"id"`
	Score *float64 `json:"score"`
}

// ParseEPSS reads a {"CVE-…": 0.97} object, a {"rows": [{"cve", "score"}]}
// object or a CSV with a cve column and an epss or score column. Comment
// lines starting with '#' are skipped in CSV input.
func ParseEPSS(r io.Reader) (map[string]float64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read epss feed: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return map[string]float64{}, nil
	}
	if trimmed[0] == '{' {
		return parseEPSSJSON(trimmed)
	}
	return parseEPSSCSV(trimmed)
}

func parseEPSSJSON(data []byte) (map[string]float64, error) {
	var wrapped struct {
		Rows []epssRow `json:"rows"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Rows != nil {
		out := make(map[string]float64, len(wrapped.Rows))
		for _, r := range wrapped.Rows {
			id := r.CVE
			if id == "" {
				id = r.ID
			}
			if n := normCVE(id); n != "" && r.Score != nil && validScore(*r.Score) {
				out[n] = *r.Score
			}
		}
		return out, nil
	}

	var flat map[string]float64
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("decode epss map: %w", ErrUnknownFormat)
	}
	out := make(map[string]float64, len(flat))
	for id, v := range flat {
		if n := normCVE(id); n != "" && validScore(v) {
			out[n] = v
		}
	}
	return out, nil
}

func parseEPSSCSV(data []byte) (map[string]float64, error) {
	var body bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if strings.HasPrefix(strings.TrimSpace(sc.Text()), "#") {
			continue
		}
		body.WriteString(sc.Text())
		body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	rd := csv.NewReader(&body)
	rd.FieldsPerRecord = -1
	header, err := rd.Read()
	if err != nil {
		return nil, fmt.Errorf("read epss header: %w", err)
	}
	cveCol, scoreCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "cve", "id":
			if cveCol < 0 {
				cveCol = i
			}
		case "epss", "score":
			if scoreCol < 0 {
				scoreCol = i
			}
		}
	}
	if cveCol < 0 || scoreCol < 0 {
		return nil, ErrUnknownFormat
	}

	out := make(map[string]float64)
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read epss row: %w", err)
		}
		if cveCol >= len(rec) || scoreCol >= len(rec) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[scoreCol]), 64)
		if err != nil || !validScore(v) {
			continue
		}
		if n := normCVE(rec[cveCol]); n != "" {
			out[n] = v
		}
	}
	return out, nil
}

// LoadEPSSFile parses an EPSS feed from disk.
func LoadEPSSFile(path string) (*EPSSMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open epss feed: %w", err)
	}
	defer f.Close()

	scores, err := ParseEPSS(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewEPSSMap(scores), nil
}
