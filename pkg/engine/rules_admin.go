package engine

import "github.com/user/censai/pkg/record"

var adminUIHints = []string{
	"jenkins", "grafana", "prometheus", "kibana", "tomcat",
	"kubelet", "kubernetes", "k8s", "sonarqube",
}

func adminUIRule() Rule {
	return NewRule("admin_ui",
		"Administrative web console identified by product name.",
		nil,
		func(records []record.Record, _ Aux) ([]RiskFinding, error) {
			var out []RiskFinding
			for _, rec := range records {
				if !rec.ProductContains(adminUIHints...) {
					continue
				}
				f := newFinding("admin_ui", rec, "admin_ui: "+rec.Product+" exposed", SeverityMedium, 5.5, "admin_ui")
				f.Tags = []string{"admin-ui"}
				out = append(out, f)
			}
			return out, nil
		})
}
