package engine

import "github.com/user/censai/pkg/record"

type dbHint struct {
	product  string
	title    string
	severity Severity
}

var dbPorts = map[int]dbHint{
	5432:  {"postgres", "PostgreSQL open", SeverityMedium},
	6379:  {"redis", "Redis open/no-auth", SeverityHigh},
	9200:  {"elasticsearch", "Elasticsearch open", SeverityHigh},
	27017: {"mongo", "MongoDB open", SeverityHigh},
}

// dbPortOrder fixes product-name matching order.
var dbPortOrder = []int{5432, 6379, 9200, 27017}

func matchDB(rec record.Record) (dbHint, bool) {
	if h, ok := dbPorts[rec.Port]; ok {
		return h, true
	}
	for _, p := range dbPortOrder {
		if h := dbPorts[p]; rec.ProductContains(h.product) {
			return h, true
		}
	}
	return dbHint{}, false
}

func dbOpenRule() Rule {
	return NewRule("db.open",
		"Datastore reachable on its canonical port or identified by product name.",
		nil,
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				h, ok := matchDB(rec)
				if !ok {
					continue
				}
				score := 5.0
				if h.severity == SeverityHigh {
					score = 7.0
				}
				f := newFinding("db.open", rec, h.title, h.severity, score, "db.open")
				f.Tags = []string{"db"}
				out = append(out, f)
			}
			return out, nil
		})
}

// mysqlOpenRule emits a single aggregate finding covering every MySQL service.
func mysqlOpenRule() Rule {
	return NewRule("db.mysql",
		"MySQL reachable from the Internet.",
		nil,
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var hits []record.Record
			for _, rec := range records {
				if rec.Port == 3306 || rec.ProductContains("mysql") {
					hits = append(hits, rec)
				}
			}
			if len(hits) == 0 {
				return nil, nil
			}

			extra := make([]string, 0, len(hits)-1)
			for _, h := range hits[1:] {
				extra = append(extra, h.Primary())
			}
			f := newFinding("db.mysql", hits[0], "MySQL exposed to Internet", SeverityMedium, 6.0, "db.mysql", extra...)
			f.ID = "rule:db.mysql"
			f.Tags = []string{"db", "mysql"}
			return []RiskFinding{f}, nil
		})
}
