package record

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimary(t *testing.T) {
	r := Record{IP: "1.1.1.1", Port: 6379, Product: "redis"}
	assert.Equal(t, "1.1.1.1:6379 redis", r.Primary())

	r.Version = "7.0.5"
	assert.Equal(t, "1.1.1.1:6379 redis 7.0.5", r.Primary())
}

func TestLoadFlatAndWrapped(t *testing.T) {
	flat := `[{"ip":"1.1.1.1","port":22,"product":"OpenSSH","cve":[{"id":"cve-2024-6387","score":8.1}]}]`
	raws, err := Load(strings.NewReader(flat))
	require.NoError(t, err)
	require.Len(t, raws, 1)

	wrapped := `{"records":[{"ip":"2.2.2.2","port":80},{"ip":"3.3.3.3","port":443}]}`
	raws, err = Load(strings.NewReader(wrapped))
	require.NoError(t, err)
	assert.Len(t, raws, 2)

	_, err = Load(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestLoadFlattensHostServices(t *testing.T) {
	doc := `[{"ip":"8.8.8.8","location":{"country_code":"us"},"services":[
		{"port":21,"protocol":"FTP"},
		{"port":443,"software":[{"product":"nginx","version":"1.25"}],
		 "vulnerabilities":[{"cve_id":"CVE-2023-44487","cvss_score":7.5}]}]}]`
	raws, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	recs, skipped := Normalize(raws, nil)
	require.Empty(t, skipped)
	require.Len(t, recs, 2)

	assert.Equal(t, "ftp", recs[0].Product)
	assert.Equal(t, "US", recs[0].Country)
	assert.Equal(t, "nginx", recs[1].Product)
	assert.Equal(t, "1.25", recs[1].Version)
	assert.Equal(t, []string{"CVE-2023-44487"}, recs[1].CVEIDs())
	assert.InDelta(t, 7.5, recs[1].MaxCVSS(), 1e-9)
}

func TestNormalizeSkipsMalformed(t *testing.T) {
	logger, hook := test.NewNullLogger()

	raws := []map[string]any{
		{"ip": "1.1.1.1", "port": float64(80)},
		{"port": float64(22)},
		{"ip": "2.2.2.2", "port": float64(70000)},
		{"ip": "3.3.3.3", "port": "443", "cve": []any{"cve-2021-44228"}},
	}
	recs, skipped := Normalize(raws, logger)

	require.Len(t, recs, 2)
	require.Len(t, skipped, 2)
	assert.Equal(t, 1, skipped[0].Index)
	assert.Equal(t, "missing ip", skipped[0].Reason)
	assert.Equal(t, "record_0", recs[0].ID)
	assert.Equal(t, 443, recs[1].Port)
	assert.Equal(t, []string{"CVE-2021-44228"}, recs[1].CVEIDs())

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestCheckLimits(t *testing.T) {
	assert.NoError(t, CheckLimits(10, 10))
	assert.NoError(t, CheckLimits(10, 0))
	assert.ErrorIs(t, CheckLimits(11, 10), ErrTooManyRecords)
}

func TestOtherAccessors(t *testing.T) {
	o := Other{
		KeyTLSVersion: "TLS1.0",
		KeyTLSEnabled: true,
		KeyCertSAN:    []any{"10.0.0.5", "example.com"},
		"hits":        float64(3),
		"ratio":       0.5,
		KeyCertificate: map[string]any{
			"cn":          "example.com",
			"self_signed": true,
		},
	}

	assert.Equal(t, "TLS1.0", o.String(KeyTLSVersion))
	assert.True(t, o.Bool(KeyTLSEnabled))
	assert.False(t, o.Bool("missing"))
	assert.Equal(t, []string{"10.0.0.5", "example.com"}, o.Strings(KeyCertSAN))

	cert, ok := o.Certificate()
	require.True(t, ok)
	assert.Equal(t, "example.com", cert.Subject)
	assert.True(t, cert.SelfSigned)
	assert.False(t, cert.Expired)

	assert.Equal(t, []string{"hits:3", "ratio:0.5", "tls_version:TLS1.0"}, o.Scalars())
}
