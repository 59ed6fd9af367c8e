package engine

import (
	"strings"

	"github.com/user/censai/pkg/record"
)

type remoteHint struct {
	name     string
	title    string
	severity Severity
}

var remotePorts = map[int]remoteHint{
	3389: {"rdp", "RDP internet-exposed", SeverityHigh},
	445:  {"smb", "SMB internet-exposed", SeverityHigh},
	23:   {"telnet", "Telnet internet-exposed", SeverityHigh},
	5900: {"vnc", "VNC internet-exposed", SeverityMedium},
}

func remoteAccessRule() Rule {
	return NewRule("remote_access",
		"Remote administration protocol reachable from the Internet, including SMBv1 dialects.",
		[]string{record.KeySMBDialect},
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				h, ok := remotePorts[rec.Port]
				if ok {
					name := "remote." + h.name
					score := 6.0
					if h.severity == SeverityHigh {
						score = 8.5
					}
					f := newFinding(name, rec, name+": "+h.title, h.severity, score, "remote.access")
					f.Tags = []string{"remote"}
					out = append(out, f)
				}

				if rec.Port != 445 {
					continue
				}
				dialect := rec.Other.String(record.KeySMBDialect)
				if d := strings.ToLower(dialect); strings.HasPrefix(d, "smb1") || d == "1.0" {
					f := newFinding("remote.smbv1", rec, "remote.smbv1: SMBv1 protocol detected", SeverityHigh, 9.0, "remote.smbv1", "dialect="+dialect)
					f.Tags = []string{"remote", "smb"}
					out = append(out, f)
				}
			}
			return out, nil
		})
}
