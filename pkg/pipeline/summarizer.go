package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/user/censai/pkg/compose"
	"github.com/user/censai/pkg/engine"
	"github.com/user/censai/pkg/geo"
	"github.com/user/censai/pkg/guard"
	"github.com/user/censai/pkg/record"
	"github.com/user/censai/pkg/retrieval"
	"github.com/user/censai/pkg/store"
	"github.com/user/censai/pkg/telemetry"
)

const tracerName = "censai/pipeline"

// SnapshotStore keeps the last finding snapshot per dataset.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, key string) (engine.Snapshot, error)
	SaveSnapshot(ctx context.Context, key string, snap engine.Snapshot) error
}

// Rewriter turns a deterministic overview into guarded prose.
type Rewriter interface {
	Rewrite(ctx context.Context, req guard.Request) guard.Outcome
}

// Deps are the collaborators of a Summarizer. Only Engine is required.
type Deps struct {
	Engine   *engine.Engine
	KEV      engine.KEVLookup
	EPSS     engine.EPSSLookup
	Mutes    engine.MuteLookup
	Rewriter Rewriter
	Store    SnapshotStore
	Geo      geo.Lookup
	Log      logrus.FieldLogger
}

type Options struct {
	DefaultTopK int
	MaxRecords  int
	Style       guard.Style
	Language    string
}

// Request is one summarization over a batch of records.
type Request struct {
	Records  []record.Record  `json:"records"`
	Query    string           `json:"query,omitempty"`
	TopK     int              `json:"top_k,omitempty"`
	Filter   retrieval.Filter `json:"filter"`
	Rewrite  bool             `json:"rewrite_with_ai"`
	Style    string           `json:"style,omitempty"`
	Language string           `json:"language,omitempty"`
}

type Meta struct {
	Records     int       `json:"records"`
	TopK        int       `json:"top_k"`
	Retrieved   int       `json:"retrieved"`
	Enriched    int       `json:"geo_enriched"`
	DurationMS  int64     `json:"duration_ms"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Response is the full summary of one request.
type Response struct {
	ReportID   string               `json:"report_id"`
	DatasetKey string               `json:"dataset_key"`
	Overview   string               `json:"overview"`
	Summary    compose.Summary      `json:"summary"`
	Findings   []engine.RiskFinding `json:"key_risks"`
	Evidence   []compose.Evidence   `json:"evidence"`
	Facts      guard.FactSet        `json:"facts"`
	AI         *guard.Outcome       `json:"ai_overview,omitempty"`
	Delta      *engine.Delta        `json:"delta,omitempty"`
	DiffID     string               `json:"diff_id,omitempty"`
	RuleErrors []string             `json:"rule_errors,omitempty"`
	Meta       Meta                 `json:"meta"`
}

// Summarizer runs the retrieve, evaluate, compose and rewrite stages. Each
// call owns its corpus and cluster state, so a Summarizer may serve
// concurrent requests.
type Summarizer struct {
	deps Deps
	opts Options
	log  logrus.FieldLogger
	now  func() time.Time
}

func NewSummarizer(deps Deps, opts Options) *Summarizer {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Engine == nil {
		deps.Engine = engine.NewEngine(deps.Log)
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 50
	}
	opts.Style = guard.ParseStyle(string(opts.Style))
	return &Summarizer{deps: deps, opts: opts, log: deps.Log, now: time.Now}
}

// Summarize only fails when the batch exceeds the record limit. Rule,
// backend and store failures degrade the response instead.
func (s *Summarizer) Summarize(ctx context.Context, req Request) (Response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Summarize")
	defer span.End()
	start := s.now()

	span.SetAttributes(
		attribute.Int("records.count", len(req.Records)),
		attribute.Bool("rewrite", req.Rewrite),
	)
	if err := record.CheckLimits(len(req.Records), s.opts.MaxRecords); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	resp := Response{ReportID: uuid.NewString()}
	log := s.log.WithField("report_id", resp.ReportID)

	records := req.Records
	if s.deps.Geo != nil {
		records, resp.Meta.Enriched = geo.Enrich(records, s.deps.Geo, log)
	}

	hits, k := s.retrieve(ctx, records, req)
	resp.Evidence = compose.EvidenceFromHits(hits)

	resp.Findings, resp.RuleErrors = s.evaluate(ctx, records)
	matrix := engine.Matrix(resp.Findings)

	resp.Summary = compose.Compose(compose.Input{
		Records:  records,
		Evidence: resp.Evidence,
		Findings: resp.Findings,
		Matrix:   matrix,
	})
	resp.Facts = guard.NewFactSet(resp.Summary, resp.Findings)
	resp.Overview = resp.Summary.Overview

	rewriteLabel := "none"
	if req.Rewrite {
		out := s.rewrite(ctx, req, resp)
		resp.AI = &out
		resp.Overview = out.Text
		rewriteLabel = "fallback"
		if out.UsedAI {
			rewriteLabel = "accepted"
		}
	}

	resp.DatasetKey = engine.DatasetKey(records)
	if d, ok := s.delta(ctx, resp.DatasetKey, resp.Findings, log); ok {
		resp.Delta = &d
		resp.DiffID = d.DiffID(resp.DatasetKey)
	}

	elapsed := s.now().Sub(start)
	resp.Meta.Records = len(records)
	resp.Meta.TopK = k
	resp.Meta.Retrieved = len(hits)
	resp.Meta.DurationMS = elapsed.Milliseconds()
	resp.Meta.GeneratedAt = start.UTC()

	telemetry.SummariesTotal.WithLabelValues(rewriteLabel).Inc()
	telemetry.SummarizeDuration.Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("findings.count", len(resp.Findings)),
		attribute.String("rewrite.result", rewriteLabel),
	)
	log.WithFields(logrus.Fields{
		"records":  len(records),
		"evidence": len(resp.Evidence),
		"findings": len(resp.Findings),
		"high":     matrix.High,
		"rewrite":  rewriteLabel,
	}).Info("summary built")
	return resp, nil
}

// Retrieve runs only the retrieval stage and returns the evidence and the
// effective top-k.
func (s *Summarizer) Retrieve(ctx context.Context, req Request) ([]compose.Evidence, int, error) {
	if err := record.CheckLimits(len(req.Records), s.opts.MaxRecords); err != nil {
		return nil, 0, err
	}
	records := req.Records
	if s.deps.Geo != nil {
		records, _ = geo.Enrich(records, s.deps.Geo, s.log)
	}
	hits, k := s.retrieve(ctx, records, req)
	return compose.EvidenceFromHits(hits), k, nil
}

// Rules lists the rules the engine evaluates.
func (s *Summarizer) Rules() []engine.Rule {
	return s.deps.Engine.Rules()
}

func (s *Summarizer) retrieve(ctx context.Context, records []record.Record, req Request) ([]retrieval.Hit, int) {
	_, span := otel.Tracer(tracerName).Start(ctx, "Retrieve")
	defer span.End()

	corpus := retrieval.BuildCorpus(records)
	k := retrieval.ClampTopK(req.TopK, s.opts.DefaultTopK, corpus.Len())
	hits := retrieval.RetrieveFiltered(corpus, req.Filter, req.Query, k)
	span.SetAttributes(
		attribute.Int("vocab.size", corpus.VocabSize()),
		attribute.Int("top_k", k),
		attribute.Int("hits", len(hits)),
	)
	return hits, k
}

// evaluate runs the rules over every record, not only the retrieved ones.
func (s *Summarizer) evaluate(ctx context.Context, records []record.Record) ([]engine.RiskFinding, []string) {
	_, span := otel.Tracer(tracerName).Start(ctx, "EvaluateRules")
	defer span.End()

	rep := s.deps.Engine.Run(records, engine.Aux{KEV: s.deps.KEV, EPSS: s.deps.EPSS})
	findings := engine.Deduplicate(rep.Findings)
	engine.Rank(findings)
	engine.ApplyMutes(findings, s.deps.Mutes, s.now())

	var failed []string
	for _, r := range rep.Failed() {
		failed = append(failed, r.Err.Error())
	}
	span.SetAttributes(
		attribute.Int("findings.raw", len(rep.Findings)),
		attribute.Int("rules.failed", len(failed)),
	)
	return findings, failed
}

func (s *Summarizer) rewrite(ctx context.Context, req Request, resp Response) guard.Outcome {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Rewrite")
	defer span.End()

	if s.deps.Rewriter == nil {
		return guard.Outcome{
			Text:        resp.Summary.Overview,
			GuardReason: guard.ReasonBackendError,
			Detail:      "rewrite backend not configured",
		}
	}

	style := s.opts.Style
	if req.Style != "" {
		style = guard.ParseStyle(req.Style)
	}
	language := req.Language
	if language == "" {
		language = s.opts.Language
	}
	out := s.deps.Rewriter.Rewrite(ctx, guard.Request{
		Deterministic: resp.Summary.Overview,
		Facts:         resp.Facts,
		Summary:       resp.Summary,
		Style:         style,
		Language:      language,
	})
	span.SetAttributes(
		attribute.Bool("guard.pass", out.GuardPass),
		attribute.String("guard.reason", string(out.GuardReason)),
	)
	return out
}

// delta compares against and then replaces the stored snapshot. A store
// failure drops the delta from the response.
func (s *Summarizer) delta(ctx context.Context, key string, findings []engine.RiskFinding, log logrus.FieldLogger) (engine.Delta, bool) {
	if s.deps.Store == nil {
		return engine.Delta{}, false
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Delta")
	defer span.End()

	prev, err := s.deps.Store.LoadSnapshot(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		span.RecordError(err)
		log.WithError(err).Warn("failed to load previous snapshot")
		return engine.Delta{}, false
	}

	curr := engine.TakeSnapshot(findings)
	d := engine.CompareSnapshot(prev, curr)
	if err := s.deps.Store.SaveSnapshot(ctx, key, curr); err != nil {
		span.RecordError(err)
		log.WithError(err).Warn("failed to save snapshot")
	}
	return d, true
}
