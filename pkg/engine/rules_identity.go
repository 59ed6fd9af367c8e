package engine

import (
	"net/netip"
	"strings"

	"github.com/user/censai/pkg/record"
)

// CVE prefixes that escalate an SSH finding to HIGH.
var criticalSSHCVEs = []string{"CVE-2024-6387", "CVE-2023-38408"}

func sshCVERule() Rule {
	return NewRule("identity.ssh_cve",
		"SSH service fingerprinted with known CVEs.",
		nil,
		func(records []record.Record, aux Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				cves := rec.CVEIDs()
				if !rec.ProductIs("ssh") || len(cves) == 0 {
					continue
				}
				sev := SeverityMedium
				for _, id := range cves {
					for _, crit := range criticalSSHCVEs {
						if strings.HasPrefix(id, crit) {
							sev = SeverityHigh
						}
					}
				}
				f := withSignals(newFinding("identity.ssh_cve", rec, "SSH service with known CVEs", sev, 0, "identity.ssh_cve",
					"cves="+strings.Join(cves, ",")), rec, aux)
				f.RiskScore = BaseScore(sev, f.CVSSValue(), f.KEV)
				f.Tags = []string{"identity", "ssh"}
				out = append(out, f)
			}
			return out, nil
		})
}

func cobaltStrikeRule() Rule {
	return NewRule("identity.cobalt_strike",
		"Malware classification names a Cobalt Strike team server.",
		[]string{record.KeyMalwareName, record.KeyMalware},
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				name := rec.Other.String(record.KeyMalwareName)
				if name == "" {
					name = rec.Other.String(record.KeyMalware)
				}
				if !strings.EqualFold(strings.TrimSpace(name), "cobalt strike") {
					continue
				}
				f := newFinding("identity.cobalt_strike", rec, "Cobalt Strike C2 indicator", SeverityHigh,
					BaseScore(SeverityHigh, 0, false), "identity.cobalt_strike", "malware="+name)
				f.Tags = []string{"identity", "malware"}
				out = append(out, f)
			}
			return out, nil
		})
}

func privateSANRule() Rule {
	return NewRule("identity.private_san",
		"Certificate SAN leaks RFC1918 addresses.",
		[]string{record.KeyCertSAN, record.KeyCertificate},
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				san := rec.Other.Strings(record.KeyCertSAN)
				if cert, ok := rec.Other.Certificate(); ok {
					san = append(san, cert.SAN...)
				}
				leaked := privateSANs(san)
				if len(leaked) == 0 {
					continue
				}
				f := newFinding("identity.private_san", rec, "TLS certificate SAN contains private IPs", SeverityMedium,
					BaseScore(SeverityMedium, 0, false), "identity.private_san", "tls.san="+strings.Join(leaked, ","))
				f.Tags = []string{"identity", "tls"}
				out = append(out, f)
			}
			return out, nil
		})
}

// privateSANs returns the SAN entries that are RFC1918 addresses.
func privateSANs(san []string) []string {
	var out []string
	for _, s := range san {
		addr, err := netip.ParseAddr(strings.TrimSpace(s))
		if err != nil || !addr.Is4() {
			continue
		}
		if addr.IsPrivate() {
			out = append(out, s)
		}
	}
	return out
}

func mysqlErrorRule() Rule {
	return NewRule("identity.mysql_error",
		"MySQL handshake error message discloses access policy.",
		[]string{record.KeyErrorMessage},
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				msg := rec.Other.String(record.KeyErrorMessage)
				if !rec.ProductIs("mysql") || msg == "" {
					continue
				}
				f := newFinding("identity.mysql_error", rec, "MySQL error message disclosure", SeverityLow,
					BaseScore(SeverityLow, 0, false), "identity.mysql_error", "error="+msg)
				f.Tags = []string{"identity", "mysql"}
				out = append(out, f)
			}
			return out, nil
		})
}

func ftpTLSSelfSignedRule() Rule {
	return NewRule("identity.ftp_tls_self_signed",
		"FTP over TLS presents a self-signed certificate.",
		[]string{record.KeyTLSEnabled, record.KeyCertSelfSigned, record.KeyCertificate},
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				if !rec.ProductIs("ftp") || !rec.Other.Bool(record.KeyTLSEnabled) {
					continue
				}
				selfSigned := rec.Other.Bool(record.KeyCertSelfSigned)
				if cert, ok := rec.Other.Certificate(); ok && cert.SelfSigned {
					selfSigned = true
				}
				if !selfSigned {
					continue
				}
				f := newFinding("identity.ftp_tls_self_signed", rec, "FTP over TLS uses self-signed certificate", SeverityMedium,
					BaseScore(SeverityMedium, 0, false), "identity.ftp_tls_self_signed")
				f.Tags = []string{"identity", "ftp"}
				out = append(out, f)
			}
			return out, nil
		})
}
