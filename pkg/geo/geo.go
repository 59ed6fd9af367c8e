package geo

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"github.com/sirupsen/logrus"

	"github.com/user/censai/pkg/record"
)

// Lookup resolves network metadata for an address.
type Lookup interface {
	Country(ip net.IP) (string, error)
	ASN(ip net.IP) (string, error)
}

// Service reads MaxMind country/city and ASN databases. Either reader may
// be absent.
type Service struct {
	cityReader *geoip2.Reader
	asnReader  *geoip2.Reader
}

// Open opens the .mmdb files at the given paths. An empty path skips that
// database.
func Open(cityDBPath, asnDBPath string) (*Service, error) {
	s := &Service{}
	if cityDBPath != "" {
		r, err := geoip2.Open(cityDBPath)
		if err != nil {
			return nil, fmt.Errorf("open city database: %w", err)
		}
		s.cityReader = r
	}
	if asnDBPath != "" {
		r, err := geoip2.Open(asnDBPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open asn database: %w", err)
		}
		s.asnReader = r
	}
	return s, nil
}

// Close releases the open databases.
func (s *Service) Close() {
	if s.cityReader != nil {
		s.cityReader.Close()
	}
	if s.asnReader != nil {
		s.asnReader.Close()
	}
}

// Country returns the ISO country code for ip, or "" without a database.
func (s *Service) Country(ip net.IP) (string, error) {
	if s.cityReader == nil {
		return "", nil
	}
	rec, err := s.cityReader.Country(ip)
	if err != nil {
		return "", err
	}
	return rec.Country.IsoCode, nil
}

// ASN returns the autonomous system organization for ip.
func (s *Service) ASN(ip net.IP) (string, error) {
	if s.asnReader == nil {
		return "", nil
	}
	rec, err := s.asnReader.ASN(ip)
	if err != nil {
		return "", err
	}
	return rec.AutonomousSystemOrganization, nil
}

// Enrich returns a copy of records with missing country and asn_name values
// filled from lk. Records that already carry a value keep it. The returned
// count is the number of records changed.
func Enrich(records []record.Record, lk Lookup, log logrus.FieldLogger) ([]record.Record, int) {
	out := make([]record.Record, len(records))
	copy(out, records)
	if lk == nil {
		return out, 0
	}

	changed := 0
	for i := range out {
		r := &out[i]
		ip := net.ParseIP(strings.TrimSpace(r.IP))
		if ip == nil {
			continue
		}
		touched := false

		if strings.TrimSpace(r.Country) == "" {
			cc, err := lk.Country(ip)
			if err != nil {
				log.WithFields(logrus.Fields{"ip": r.IP, "error": err}).Debug("country lookup failed")
			} else if cc != "" {
				r.Country = strings.ToUpper(cc)
				touched = true
			}
		}

		if r.Other.String(record.KeyASNName) == "" {
			org, err := lk.ASN(ip)
			if err != nil {
				log.WithFields(logrus.Fields{"ip": r.IP, "error": err}).Debug("asn lookup failed")
			} else if org != "" {
				other := make(record.Other, len(r.Other)+1)
				for k, v := range r.Other {
					other[k] = v
				}
				other[record.KeyASNName] = org
				r.Other = other
				touched = true
			}
		}

		if touched {
			changed++
		}
	}
	return out, changed
}
