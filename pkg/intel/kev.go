package intel

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownFormat is returned when a feed matches none of the accepted layouts.
var ErrUnknownFormat = errors.New("intel: unknown feed format")

// KEVSet is the set of CVE ids listed in the Known Exploited Vulnerabilities
// catalog. It is safe for concurrent use.
type KEVSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewKEVSet returns a set holding ids, normalized to upper case.
func NewKEVSet(ids ...string) *KEVSet {
	k := &KEVSet{}
	k.Replace(ids)
	return k
}

func normCVE(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Replace swaps the whole set atomically.
func (k *KEVSet) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if n := normCVE(id); n != "" {
			next[n] = struct{}{}
		}
	}
	k.mu.Lock()
	k.ids = next
	k.mu.Unlock()
}

// HasKEV reports whether cve is listed. Empty ids are never listed.
func (k *KEVSet) HasKEV(cve string) bool {
	if k == nil {
		return false
	}
	n := normCVE(cve)
	if n == "" {
		return false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.ids[n]
	return ok
}

func (k *KEVSet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.ids)
}

// IDs returns the listed ids in sorted order.
func (k *KEVSet) IDs() []string {
	k.mu.RLock()
	out := make([]string, 0, len(k.ids))
	for id := range k.ids {
		out = append(out, id)
	}
	k.mu.RUnlock()
	sort.Strings(out)
	return out
}

type kevCatalog struct {
	Vulnerabilities []struct {
		CVEID string `json:"cveID"`
	} `json:"vulnerabilities"`
	CVEs []string `json:"cves"`
}

// ParseKEV reads the CISA catalog JSON, a {"cves": [...]} object, a JSON
// array of ids or a plain text file with one id per line.
func ParseKEV(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read kev feed: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var ids []string
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return nil, fmt.Errorf("decode kev list: %w", err)
		}
		return ids, nil
	case '{':
		var cat kevCatalog
		if err := json.Unmarshal(trimmed, &cat); err != nil {
			return nil, fmt.Errorf("decode kev catalog: %w", err)
		}
		if len(cat.Vulnerabilities) == 0 && cat.CVEs == nil {
			return nil, ErrUnknownFormat
		}
		ids := append([]string(nil), cat.CVEs...)
		for _, v := range cat.Vulnerabilities {
			ids = append(ids, v.CVEID)
		}
		return ids, nil
	}

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(strings.ToUpper(line), "CVE-") {
			return nil, ErrUnknownFormat
		}
		ids = append(ids, line)
	}
	return ids, sc.Err()
}

// LoadKEVFile parses a KEV feed from disk.
func LoadKEVFile(path string) (*KEVSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open kev feed: %w", err)
	}
	defer f.Close()

	ids, err := ParseKEV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewKEVSet(ids...), nil
}
