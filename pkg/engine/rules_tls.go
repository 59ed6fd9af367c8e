package engine

import (
	"strings"

	"github.com/user/censai/pkg/record"
)

var weakCipherMarkers = []string{"RC4", "3DES", "DES", "NULL", "EXPORT", "MD5"}

func tlsMinVersionRule() Rule {
	return NewRule("tls.min_version",
		"TLS or SSL protocol below 1.2 negotiated.",
		[]string{record.KeyTLSVersion, record.KeyTLSProtocol},
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				ver := rec.Other.String(record.KeyTLSVersion)
				if ver == "" {
					ver = rec.Other.String(record.KeyTLSProtocol)
				}
				if !legacyTLS(ver) {
					continue
				}
				f := newFinding("tls.min_version", rec, "tls.min_version: TLS below 1.2", SeverityHigh, 8.0, "tls.min_version", ver)
				f.Tags = []string{"tls"}
				out = append(out, f)
			}
			return out, nil
		})
}

func legacyTLS(ver string) bool {
	for _, p := range []string{"SSL", "TLS1.0", "TLS1.1"} {
		if strings.HasPrefix(ver, p) {
			return true
		}
	}
	return false
}

func certExpiredRule() Rule {
	return NewRule("tls.expired_cert",
		"Certificate presented by the service has expired.",
		[]string{record.KeyCertificate},
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				cert, ok := rec.Other.Certificate()
				if !ok || !cert.Expired {
					continue
				}
				f := newFinding("tls.expired_cert", rec, "tls.expired_cert: Expired TLS certificate", SeverityMedium, 5.0, "tls.expired_cert", "CN="+cert.Subject)
				f.Tags = []string{"tls"}
				out = append(out, f)
			}
			return out, nil
		})
}

func certSelfSignedRule() Rule {
	return NewRule("tls.self_signed",
		"Certificate presented by the service is self-signed.",
		[]string{record.KeyCertificate},
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				cert, ok := rec.Other.Certificate()
				if !ok || !cert.SelfSigned {
					continue
				}
				f := newFinding("tls.self_signed", rec, "tls.self_signed: Self-signed certificate", SeverityMedium, 4.5, "tls.self_signed", "CN="+cert.Subject)
				f.Tags = []string{"tls"}
				out = append(out, f)
			}
			return out, nil
		})
}

func weakCipherRule() Rule {
	return NewRule("tls.weak_cipher",
		"Negotiated cipher suite contains a legacy or broken primitive.",
		[]string{record.KeyTLSCipher},
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				cipher := rec.Other.String(record.KeyTLSCipher)
				if cipher == "" || !containsAny(strings.ToUpper(cipher), weakCipherMarkers) {
					continue
				}
				f := newFinding("tls.weak_cipher", rec, "tls.weak_cipher: Weak TLS cipher in use", SeverityMedium, 5.0, "tls.weak_cipher", cipher)
				f.Tags = []string{"tls"}
				out = append(out, f)
			}
			return out, nil
		})
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
