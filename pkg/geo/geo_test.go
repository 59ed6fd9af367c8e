package geo

import (
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/censai/pkg/record"
)

type fakeLookup struct {
	countries map[string]string
	orgs      map[string]string
}

func (f fakeLookup) Country(ip net.IP) (string, error) {
	cc, ok := f.countries[ip.String()]
	if !ok {
		return "", errors.New("not found")
	}
	return cc, nil
}

func (f fakeLookup) ASN(ip net.IP) (string, error) {
	return f.orgs[ip.String()], nil
}

func TestEnrich(t *testing.T) {
	log, _ := test.NewNullLogger()
	in := []record.Record{
		{ID: "a", IP: "1.1.1.1", Port: 22},
		{ID: "b", IP: "2.2.2.2", Port: 80, Country: "FR"},
		{ID: "c", IP: "not-an-ip", Port: 80},
		{ID: "d", IP: "3.3.3.3", Port: 443, Other: record.Other{"asn_name": "Existing"}},
	}
	lk := fakeLookup{
		countries: map[string]string{"1.1.1.1": "us", "2.2.2.2": "DE"},
		orgs:      map[string]string{"1.1.1.1": "Example Honeypot Net", "3.3.3.3": "Other"},
	}

	out, changed := Enrich(in, lk, log)
	require.Len(t, out, 4)
	assert.Equal(t, 1, changed)

	assert.Equal(t, "US", out[0].Country)
	assert.Equal(t, "Example Honeypot Net", out[0].Other.String(record.KeyASNName))
	assert.Equal(t, "FR", out[1].Country)
	assert.Equal(t, "", out[2].Country)
	assert.Equal(t, "Existing", out[3].Other.String(record.KeyASNName))

	assert.Equal(t, "", in[0].Country)
	assert.Nil(t, in[0].Other)
}

func TestEnrich_NilLookup(t *testing.T) {
	log, _ := test.NewNullLogger()
	in := []record.Record{{IP: "1.1.1.1"}}
	out, changed := Enrich(in, nil, log)
	assert.Equal(t, in, out)
	assert.Zero(t, changed)
}

func TestOpen(t *testing.T) {
	s, err := Open("", "")
	require.NoError(t, err)
	cc, err := s.Country(net.ParseIP("1.1.1.1"))
	require.NoError(t, err)
	assert.Empty(t, cc)
	s.Close()

	_, err = Open(filepath.Join(t.TempDir(), "missing.mmdb"), "")
	assert.Error(t, err)
}
