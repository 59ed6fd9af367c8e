package guard

import (
	"regexp"
	"strconv"
)

// pattern is an ordered list of expressions whose first group is a number.
type pattern []*regexp.Regexp

func mustPattern(exprs ...string) pattern {
	p := make(pattern, len(exprs))
	for i, e := range exprs {
		p[i] = regexp.MustCompile(`(?i)` + e)
	}
	return p
}

// first returns the number captured by the earliest expression that matches.
func (p pattern) first(s string) (int, bool) {
	for _, rx := range p {
		if m := rx.FindStringSubmatch(s); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// all returns every number captured by any expression.
func (p pattern) all(s string) []int {
	var out []int
	for _, rx := range p {
		for _, m := range rx.FindAllStringSubmatch(s, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil {
				out = append(out, n)
			}
		}
	}
	return out
}

// Patterns are anchored on their own noun so "3 hosts across 2 countries"
// yields 3 hosts and 2 countries, and "Top 3 ports" is not a port count.
var (
	hostPatterns = mustPattern(
		`(\d+)\s+hosts\b`,
		`\bhosts\s*[:=]\s*(\d+)`,
	)
	ipPatterns = mustPattern(
		`(\d+)\s+(?:unique\s+)?IPs?\b`,
		`\b(?:unique\s+)?IPs\s*[:=]\s*(\d+)`,
	)
	countryPatterns = mustPattern(
		`(\d+)\s+countries\b`,
		`\bcountries\s*[:=]\s*(\d+)`,
	)
	servicePatterns = mustPattern(
		`(\d+)\s+services\b`,
		`\bservices\s*[:=]\s*(\d+)`,
	)
	uniquePortPatterns = mustPattern(
		`(\d+)\s+unique\s+ports\b`,
		`\bunique\s+ports\s*[:=]?\s*(\d+)`,
	)
	topPortPatterns = mustPattern(
		`\btop\s+port\s*[:=]?\s*(\d+)`,
		`\bmost\s+frequent(?:\s+port)?\s*[:=]?\s*(\d+)`,
	)

	sevPatterns = map[string]pattern{
		"high":   newSeverityPattern("high"),
		"medium": newSeverityPattern("medium"),
		"low":    newSeverityPattern("low"),
	}
)

const severityNames = `(?:critical|high|medium|low)`

// A bare "N NAME" counts only when qualified ("1 high severity") or listed
// next to another severity count ("1 high, 0 medium"), so "port 3389 high
// exposure" is not a count. Digits after a dot never count ("CVSS 9.8 high").
func newSeverityPattern(name string) pattern {
	lead := `(?:^|[^\d.])`
	return mustPattern(
		`\b`+name+`\b\s*[:=]\s*(\d+)`,
		lead+`(\d+)\s+`+name+`\s+(?:severity|issues?|findings?)\b`,
		lead+`(\d+)\s+`+name+`\s*,\s*(?:and\s+)?\d+\s+`+severityNames+`\b`,
		lead+`\d+\s+`+severityNames+`\s*,\s*(?:and\s+)?(\d+)\s+`+name+`(?:[^-\w]|$)`,
	)
}

func severityPatterns(name string) pattern {
	if p, ok := sevPatterns[name]; ok {
		return p
	}
	return newSeverityPattern(regexp.QuoteMeta(name))
}

// GrabHosts reads "N hosts" or "hosts: N".
func GrabHosts(s string) (int, bool) { return hostPatterns.first(s) }

// GrabIPs reads "N IPs", "N unique IPs" or "IPs: N".
func GrabIPs(s string) (int, bool) { return ipPatterns.first(s) }

// GrabCountries reads "N countries" or "countries: N".
func GrabCountries(s string) (int, bool) { return countryPatterns.first(s) }

// GrabServices reads "N services" or "services: N".
func GrabServices(s string) (int, bool) { return servicePatterns.first(s) }

// GrabUniquePorts reads "N unique ports" or "unique ports: N". A bare
// "N ports" is ignored.
func GrabUniquePorts(s string) (int, bool) { return uniquePortPatterns.first(s) }

// GrabTopPort reads "top port N" or "most frequent N".
func GrabTopPort(s string) (int, bool) { return topPortPatterns.first(s) }

// GrabSeverity reads "NAME: N", "N NAME severity" or a listed "N NAME" for a
// severity label.
func GrabSeverity(s, name string) (int, bool) { return severityPatterns(name).first(s) }

var (
	numberWords = regexp.MustCompile(`(?i)\b(one|two|three|four|five|six|seven|eight|nine|ten)\b`)
	hedging     = regexp.MustCompile(`(?i)\b(might|could)\b`)
)
