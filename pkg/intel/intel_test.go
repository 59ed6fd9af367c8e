package intel

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKEV(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"catalog", `{"catalogVersion":"2024.07.01","vulnerabilities":[{"cveID":"CVE-2024-6387"},{"cveID":"CVE-2021-44228"}]}`, []string{"CVE-2024-6387", "CVE-2021-44228"}},
		{"cves object", `{"cves":["CVE-2024-6387"]}`, []string{"CVE-2024-6387"}},
		{"list", `["cve-2024-6387", "CVE-2021-44228"]`, []string{"cve-2024-6387", "CVE-2021-44228"}},
		{"lines", "# kev\nCVE-2024-6387\n\ncve-2021-44228\n", []string{"CVE-2024-6387", "cve-2021-44228"}},
		{"empty", "  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKEV(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKEV_Rejects(t *testing.T) {
	_, err := ParseKEV(strings.NewReader(`{"title":"not a catalog"}`))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = ParseKEV(strings.NewReader("hello\nworld"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = ParseKEV(strings.NewReader(`[1, 2`))
	assert.Error(t, err)
}

func TestKEVSet(t *testing.T) {
	k := NewKEVSet(" cve-2024-6387 ", "", "CVE-2021-44228")

	assert.True(t, k.HasKEV("CVE-2024-6387"))
	assert.True(t, k.HasKEV("cve-2021-44228"))
	assert.False(t, k.HasKEV(""))
	assert.False(t, k.HasKEV("CVE-2000-0001"))
	assert.Equal(t, 2, k.Len())
	assert.Equal(t, []string{"CVE-2021-44228", "CVE-2024-6387"}, k.IDs())

	k.Replace([]string{"CVE-2000-0001"})
	assert.False(t, k.HasKEV("CVE-2024-6387"))
	assert.True(t, k.HasKEV("CVE-2000-0001"))

	var nilSet *KEVSet
	assert.False(t, nilSet.HasKEV("CVE-2024-6387"))
}

func TestKEVSet_Concurrent(t *testing.T) {
	k := NewKEVSet("CVE-2024-6387")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			k.Replace([]string{"CVE-2024-6387", "CVE-2021-44228"})
		}()
		go func() {
			defer wg.Done()
			assert.True(t, k.HasKEV("CVE-2024-6387"))
		}()
	}
	wg.Wait()
}

func TestParseEPSS(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]float64
	}{
		{"map", `{"cve-2024-6387": 0.97, "CVE-2021-44228": 1.5, "CVE-2020-0001": -0.1}`, map[string]float64{"CVE-2024-6387": 0.97}},
		{"rows", `{"rows":[{"cve":"CVE-2024-6387","score":0.97},{"id":"cve-2021-44228","score":0.5},{"cve":"CVE-1","score":2},{"cve":"CVE-2"}]}`,
			map[string]float64{"CVE-2024-6387": 0.97, "CVE-2021-44228": 0.5}},
		{"first csv", "#model_version:v2023.03.01,score_date:2024-07-01T00:00:00+0000\ncve,epss,percentile\nCVE-2024-6387,0.97,0.99\nCVE-2021-44228,0.94,0.99\nCVE-1,bad,0\n",
			map[string]float64{"CVE-2024-6387": 0.97, "CVE-2021-44228": 0.94}},
		{"score header", "CVE,Score\ncve-2024-6387,0.12\n", map[string]float64{"CVE-2024-6387": 0.12}},
		{"empty", "", map[string]float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEPSS(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEPSS_Rejects(t *testing.T) {
	_, err := ParseEPSS(strings.NewReader("name,value\nfoo,1\n"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = ParseEPSS(strings.NewReader(`{"CVE-2024-6387": "high"}`))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestEPSSMap(t *testing.T) {
	m := NewEPSSMap(map[string]float64{"cve-2024-6387": 0.97, "CVE-BAD": 3})

	assert.Equal(t, 0.97, m.Score("CVE-2024-6387"))
	assert.Equal(t, 0.0, m.Score("CVE-BAD"))
	assert.Equal(t, 0.0, m.Score("unknown"))
	assert.Equal(t, 1, m.Len())

	scores := m.Scores()
	scores["CVE-2024-6387"] = 0
	assert.Equal(t, 0.97, m.Score("CVE-2024-6387"))

	var nilMap *EPSSMap
	assert.Equal(t, 0.0, nilMap.Score("CVE-2024-6387"))
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	kevPath := filepath.Join(dir, "kev.json")
	epssPath := filepath.Join(dir, "epss.csv")
	require.NoError(t, os.WriteFile(kevPath, []byte(`{"vulnerabilities":[{"cveID":"CVE-2024-6387"}]}`), 0o600))
	require.NoError(t, os.WriteFile(epssPath, []byte("cve,epss\nCVE-2024-6387,0.97\n"), 0o600))

	k, err := LoadKEVFile(kevPath)
	require.NoError(t, err)
	assert.True(t, k.HasKEV("CVE-2024-6387"))

	m, err := LoadEPSSFile(epssPath)
	require.NoError(t, err)
	assert.Equal(t, 0.97, m.Score("CVE-2024-6387"))

	_, err = LoadKEVFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
