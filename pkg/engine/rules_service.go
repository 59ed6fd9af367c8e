package engine

import (
	"fmt"

	"github.com/user/censai/pkg/record"
)

var (
	highExposurePorts   = map[int]bool{23: true, 3389: true, 445: true, 6379: true, 9200: true}
	mediumExposurePorts = map[int]bool{21: true, 22: true, 5900: true, 1883: true, 8080: true, 8081: true, 9090: true}
)

// PortSeverity is the exposure severity of a bare port.
func PortSeverity(port int) Severity {
	switch {
	case highExposurePorts[port]:
		return SeverityHigh
	case mediumExposurePorts[port]:
		return SeverityMedium
	}
	return SeverityLow
}

// exposureTitle picks the finding title and remediation template for one
// service. First match wins.
func exposureTitle(rec record.Record) (string, string) {
	p := rec.Port
	switch {
	case p == 6379 || rec.ProductContains("redis"):
		return "Redis exposed (6379)", "exposure.redis"
	case p == 9200 || rec.ProductContains("elasticsearch"):
		return "Elasticsearch API exposed (9200)", "exposure.elasticsearch"
	case p == 8080 || p == 8081 || rec.ProductContains("jenkins"):
		return "Jenkins UI exposed", "exposure.jenkins"
	case p == 1883 || rec.ProductContains("mqtt", "mosquitto"):
		return "MQTT broker open (1883)", "exposure.mqtt"
	case p == 21:
		return "FTP service detected", "exposure.ftp"
	case p == 22:
		return "OpenSSH exposure", "exposure.ssh"
	case p == 3389:
		return "RDP exposure", "exposure.rdp"
	case p == 445:
		return "SMB exposure", "exposure.smb"
	case p == 23:
		return "Telnet exposure", "exposure.telnet"
	case p > 0:
		return fmt.Sprintf("Service exposed on port %d", p), "exposure.generic"
	}
	return "Service exposure detected", "exposure.generic"
}

func serviceExposureRule() Rule {
	return NewRule("service_exposure",
		"Flags every publicly reachable service, scored by port class plus CVSS and KEV signals.",
		nil,
		func(records []record.Record, aux Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				title, tmpl := exposureTitle(rec)
				sev := PortSeverity(rec.Port)
				f := withSignals(newFinding("service_exposure", rec, title, sev, 0, tmpl), rec, aux)
				f.RiskScore = BaseScore(sev, f.CVSSValue(), f.KEV)
				f.Tags = []string{"exposure"}
				out = append(out, f)
			}
			return out, nil
		})
}
