package engine

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/user/censai/pkg/record"
	"github.com/user/censai/pkg/telemetry"
)

// KEVLookup answers Known Exploited Vulnerabilities membership.
type KEVLookup interface {
	HasKEV(cve string) bool
}

// EPSSLookup returns the exploit probability in [0,1] for a CVE, 0 if unknown.
type EPSSLookup interface {
	Score(cve string) float64
}

// Aux carries the collaborators every rule receives. Nil fields behave as
// empty feeds.
type Aux struct {
	KEV  KEVLookup
	EPSS EPSSLookup
}

func (a Aux) hasKEV(cves []string) bool {
	if a.KEV == nil {
		return false
	}
	for _, c := range cves {
		if a.KEV.HasKEV(c) {
			return true
		}
	}
	return false
}

func (a Aux) maxEPSS(cves []string) float64 {
	if a.EPSS == nil {
		return 0
	}
	max := 0.0
	for _, c := range cves {
		if s := a.EPSS.Score(strings.ToUpper(c)); s > max {
			max = s
		}
	}
	return max
}

// Rule is one independent detection over a batch of records.
type Rule interface {
	Name() string
	Description() string
	// Keys lists the record.Other keys the rule reads.
	Keys() []string
	Evaluate(records []record.Record, aux Aux) ([]RiskFinding, error)
}

// RuleFunc is the body of a table-driven rule.
type RuleFunc func(records []record.Record, aux Aux) ([]RiskFinding, error)

type funcRule struct {
	name        string
	description string
	keys        []string
	fn          RuleFunc
}

// NewRule wraps fn as a Rule.
func NewRule(name, description string, keys []string, fn RuleFunc) Rule {
	return &funcRule{name: name, description: description, keys: keys, fn: fn}
}

func (r *funcRule) Name() string        { return r.name }
func (r *funcRule) Description() string { return r.description }
func (r *funcRule) Keys() []string      { return append([]string(nil), r.keys...) }
func (r *funcRule) Evaluate(records []record.Record, aux Aux) ([]RiskFinding, error) {
	return r.fn(records, aux)
}

// RuleError records why a rule contributed nothing.
type RuleError struct {
	Rule  string
	Cause error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s failed: %v", e.Rule, e.Cause)
}

func (e *RuleError) Unwrap() error { return e.Cause }

// Result is the outcome of a single rule: either findings or an error.
type Result struct {
	Rule     string
	Findings []RiskFinding
	Err      error
}

// Report aggregates all rule results for one batch.
type Report struct {
	Findings []RiskFinding
	Results  []Result
}

// Failed returns the results that carried an error.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Engine evaluates a rule set and fills remediation text on the findings.
type Engine struct {
	rules       []Rule
	remediation *RemediationEngine
	log         logrus.FieldLogger
}

// NewEngine creates an engine with the canonical rule set and the built-in
// remediation catalogue.
func NewEngine(log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		rules:       DefaultRules(),
		remediation: DefaultRemediation(),
		log:         log,
	}
}

// AddRule appends a rule; rules run in insertion order.
func (e *Engine) AddRule(r Rule) {
	e.rules = append(e.rules, r)
}

// SetRemediation replaces the remediation catalogue.
func (e *Engine) SetRemediation(r *RemediationEngine) {
	e.remediation = r
}

// Rules returns the registered rules.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Run evaluates every rule. A failing or panicking rule is logged and
// skipped; the remaining rules still run.
func (e *Engine) Run(records []record.Record, aux Aux) Report {
	var rep Report
	for _, r := range e.rules {
		res := evaluate(r, records, aux)
		if res.Err != nil {
			e.log.WithFields(logrus.Fields{"rule": r.Name(), "error": res.Err}).Warn("rule failed, skipping")
			telemetry.RuleFailures.WithLabelValues(r.Name()).Inc()
		} else {
			for i := range res.Findings {
				e.fillRemediation(&res.Findings[i])
			}
			rep.Findings = append(rep.Findings, res.Findings...)
			telemetry.FindingsTotal.WithLabelValues(r.Name()).Add(float64(len(res.Findings)))
		}
		rep.Results = append(rep.Results, res)
	}
	e.log.WithFields(logrus.Fields{
		"rules":    len(e.rules),
		"findings": len(rep.Findings),
		"failed":   len(rep.Failed()),
	}).Debug("rule evaluation finished")
	return rep
}

func evaluate(r Rule, records []record.Record, aux Aux) (res Result) {
	res.Rule = r.Name()
	defer func() {
		if p := recover(); p != nil {
			res.Findings = nil
			res.Err = &RuleError{Rule: r.Name(), Cause: fmt.Errorf("panic: %v", p)}
		}
	}()

	findings, err := r.Evaluate(records, aux)
	if err != nil {
		res.Err = &RuleError{Rule: r.Name(), Cause: err}
		return res
	}
	res.Findings = findings
	return res
}

func (e *Engine) fillRemediation(f *RiskFinding) {
	if e.remediation == nil || f.template == "" {
		return
	}
	why, fix, err := e.remediation.Render(f.template, f.vars)
	if err != nil {
		e.log.WithFields(logrus.Fields{"template": f.template, "error": err}).Debug("remediation template not rendered")
		return
	}
	if why != "" {
		f.Why = why
	}
	if fix != "" {
		f.Fix = fix
	}
}
