package engine

import (
	"fmt"
	"strconv"

	"github.com/user/censai/pkg/record"
)

// DefaultRules returns the canonical rule set.
func DefaultRules() []Rule {
	return []Rule{
		serviceExposureRule(),
		tlsMinVersionRule(),
		certExpiredRule(),
		certSelfSignedRule(),
		weakCipherRule(),
		dbOpenRule(),
		mysqlOpenRule(),
		remoteAccessRule(),
		adminUIRule(),
		sshCVERule(),
		cobaltStrikeRule(),
		privateSANRule(),
		mysqlErrorRule(),
		ftpTLSSelfSignedRule(),
	}
}

// newFinding builds a finding whose first evidence entry is the record's
// primary string. extra evidence follows in order.
func newFinding(rule string, rec record.Record, title string, sev Severity, score float64, template string, extra ...string) RiskFinding {
	evidence := append([]string{rec.Primary()}, extra...)
	return RiskFinding{
		ID:          fmt.Sprintf("rule:%s:%s:%d", rule, rec.IP, rec.Port),
		Rule:        rule,
		Title:       title,
		Severity:    sev,
		RiskScore:   score,
		RelatedCVEs: []string{},
		Evidence:    evidence,
		Port:        rec.Port,
		template:    template,
		vars:        templateVars(rec),
	}
}

func templateVars(rec record.Record) map[string]string {
	product := rec.Product
	if product == "" {
		product = "service"
	}
	return map[string]string{
		"IP":      rec.IP,
		"Port":    strconv.Itoa(rec.Port),
		"Product": product,
		"Version": rec.Version,
	}
}

// withSignals attaches CVE, KEV, CVSS and EPSS signals from rec and aux.
func withSignals(f RiskFinding, rec record.Record, aux Aux) RiskFinding {
	cves := rec.CVEIDs()
	if len(cves) == 0 {
		return f
	}
	f.RelatedCVEs = cves
	f.KEV = aux.hasKEV(cves)
	f.CVSS = floatPtr(rec.MaxCVSS())
	f.EPSS = floatPtr(aux.maxEPSS(cves))
	return f
}
