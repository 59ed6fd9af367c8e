package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrTooManyRecords is returned when a batch exceeds the configured limit.
var ErrTooManyRecords = errors.New("too many records")

// Skipped describes an input entry dropped during normalization.
type Skipped struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// CheckLimits validates the number of records in a batch.
func CheckLimits(n, maxRecords int) error {
	if maxRecords > 0 && n > maxRecords {
		return fmt.Errorf("%w (%d > %d limit)", ErrTooManyRecords, n, maxRecords)
	}
	return nil
}

// Load decodes a JSON array of records, or an object with a "records" array.
// Host documents carrying a "services" list are flattened to one record per
// service.
func Load(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		return flatten(list), nil
	}

	var wrapped struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}
	return flatten(wrapped.Records), nil
}

func flatten(in []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(in))
	for _, host := range in {
		svcs, ok := host["services"].([]any)
		if !ok || len(svcs) == 0 {
			out = append(out, host)
			continue
		}
		for _, s := range svcs {
			svc, ok := s.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, serviceRecord(host, svc))
		}
	}
	return out
}

// serviceRecord merges a host document with one of its services.
func serviceRecord(host, svc map[string]any) map[string]any {
	rec := map[string]any{
		"ip":      host["ip"],
		"country": host["country"],
	}
	if loc, ok := host["location"].(map[string]any); ok {
		if c, ok := loc["country_code"]; ok && c != nil {
			rec["country"] = c
		} else if c, ok := loc["country"]; ok {
			rec["country"] = c
		}
	}
	if osInfo, ok := host["operating_system"].(map[string]any); ok {
		rec["hardware"] = osInfo["product"]
	}
	for _, k := range []string{"port", "product", "version", "hardware", "cve", "other"} {
		if v, ok := svc[k]; ok && v != nil {
			rec[k] = v
		}
	}
	if sw, ok := svc["software"].([]any); ok && len(sw) > 0 {
		if first, ok := sw[0].(map[string]any); ok {
			rec["product"] = first["product"]
			rec["version"] = first["version"]
		}
	}
	if rec["product"] == nil {
		if p, ok := svc["protocol"].(string); ok {
			rec["product"] = strings.ToLower(p)
		}
	}
	if vulns, ok := svc["vulnerabilities"].([]any); ok && rec["cve"] == nil {
		cves := make([]any, 0, len(vulns))
		for _, v := range vulns {
			if m, ok := v.(map[string]any); ok {
				cves = append(cves, map[string]any{"id": m["cve_id"], "score": m["cvss_score"]})
			}
		}
		rec["cve"] = cves
	}
	return rec
}

// Normalize converts decoded documents into Records. Entries without an ip or
// with an out-of-range port are skipped with a warning, never fatal.
func Normalize(raws []map[string]any, log logrus.FieldLogger) ([]Record, []Skipped) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	records := make([]Record, 0, len(raws))
	var skipped []Skipped

	for i, raw := range raws {
		rec, reason := fromMap(i, raw)
		if reason != "" {
			log.WithFields(logrus.Fields{"index": i, "reason": reason}).Warn("skipping malformed record")
			skipped = append(skipped, Skipped{Index: i, Reason: reason})
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

func fromMap(i int, raw map[string]any) (Record, string) {
	ip := strings.TrimSpace(str(raw["ip"]))
	if ip == "" {
		return Record{}, "missing ip"
	}
	port, ok := toInt(raw["port"])
	if !ok {
		port = 0
	}
	if port < 0 || port > 65535 {
		return Record{}, fmt.Sprintf("port %d out of range", port)
	}

	rec := Record{
		ID:       strings.TrimSpace(str(raw["id"])),
		IP:       ip,
		Port:     port,
		Product:  strings.TrimSpace(str(raw["product"])),
		Version:  strings.TrimSpace(str(raw["version"])),
		Hardware: strings.TrimSpace(str(raw["hardware"])),
		Country:  strings.ToUpper(strings.TrimSpace(str(raw["country"]))),
	}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("record_%d", i)
	}

	if list, ok := raw["cve"].([]any); ok {
		for _, c := range list {
			switch t := c.(type) {
			case string:
				if id := strings.ToUpper(strings.TrimSpace(t)); id != "" {
					rec.CVE = append(rec.CVE, CVE{ID: id})
				}
			case map[string]any:
				id := strings.ToUpper(strings.TrimSpace(str(t["id"])))
				if id == "" {
					continue
				}
				score, _ := toFloat(t["score"])
				rec.CVE = append(rec.CVE, CVE{ID: id, Score: score})
			}
		}
	}

	if other, ok := raw["other"].(map[string]any); ok {
		rec.Other = Other(other)
	} else {
		rec.Other = Other{}
	}
	return rec, ""
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
