package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/user/censai/pkg/adk"
	"github.com/user/censai/pkg/compose"
	"github.com/user/censai/pkg/telemetry"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 20 * time.Second

// Config tunes a Validator.
type Config struct {
	Model   string
	Timeout time.Duration
	// System overrides the embedded system prompt when set.
	System string
}

// Request is one guarded rewrite of a deterministic overview.
type Request struct {
	Deterministic string
	Facts         FactSet
	Summary       compose.Summary
	Style         Style
	Language      string
}

// Outcome reports what text was chosen and why.
type Outcome struct {
	Text        string `json:"text"`
	UsedAI      bool   `json:"used_ai"`
	GuardPass   bool   `json:"guard_pass"`
	GuardReason Reason `json:"guard_reason,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Model       string `json:"model"`
	LatencyMS   int64  `json:"latency_ms"`
	AutoFix     bool   `json:"auto_fix"`
	Raw         string `json:"raw_text"`
}

// Validator sends a deterministic overview to a generator and accepts the
// result only if every guard passes. Any failure yields the deterministic
// text; the fallback itself is never re-validated.
type Validator struct {
	gen adk.Generator
	cfg Config
	log logrus.FieldLogger
}

func NewValidator(gen adk.Generator, cfg Config, log logrus.FieldLogger) *Validator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Validator{gen: gen, cfg: cfg, log: log}
}

// Rewrite never returns an error: backend failures, timeouts, cancellation
// and guard failures all resolve to the deterministic text.
func (v *Validator) Rewrite(ctx context.Context, req Request) Outcome {
	out := Outcome{Text: req.Deterministic, Model: v.cfg.Model}
	if v.gen == nil {
		return v.finish(out, Verdict{Reason: ReasonBackendError, Detail: "no generator configured"})
	}

	style := ParseStyle(string(req.Style))
	system, prompt := BuildPrompt(style, req.Language, req.Facts, req.Deterministic, req.Summary)
	if v.cfg.System != "" {
		system = v.cfg.System
	}

	gctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	start := time.Now()
	raw, err := v.generate(gctx, prompt, system)
	elapsed := time.Since(start)
	cancel()

	out.LatencyMS = elapsed.Milliseconds()
	telemetry.GenerateDuration.WithLabelValues(v.cfg.Model).Observe(elapsed.Seconds())

	if err != nil {
		detail := err.Error()
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			detail = "timeout: " + detail
		case errors.Is(err, context.Canceled):
			detail = "cancelled: " + detail
		}
		return v.finish(out, Verdict{Reason: ReasonBackendError, Detail: detail})
	}
	if ctx.Err() != nil {
		return v.finish(out, Verdict{Reason: ReasonBackendError, Detail: "cancelled: " + ctx.Err().Error()})
	}

	out.Raw = raw
	candidate := strings.TrimSpace(raw)
	verdict := Check(candidate, req.Facts)

	if !verdict.OK && verdict.Reason.Fixable() {
		fixed := autoFix(candidate, req.Facts)
		if fixed != candidate {
			candidate = fixed
			verdict = Check(candidate, req.Facts)
			out.AutoFix = verdict.OK
		}
	}

	if verdict.OK && style == StyleBulleted {
		if b := FormatBulleted(candidate); b != candidate {
			candidate = b
			verdict = Check(candidate, req.Facts)
		}
	}

	if verdict.OK {
		if capped := capWords(candidate, style.WordCap()); capped != candidate {
			candidate = capped
			verdict = Check(candidate, req.Facts)
		}
	}

	if !verdict.OK {
		out.AutoFix = false
		return v.finish(out, verdict)
	}
	out.Text = candidate
	out.UsedAI = true
	return v.finish(out, verdict)
}

// generate isolates a panicking backend into an ordinary error.
func (v *Validator) generate(ctx context.Context, prompt, system string) (raw string, err error) {
	defer func() {
		if p := recover(); p != nil {
			raw, err = "", fmt.Errorf("generator panic: %v", p)
		}
	}()
	return v.gen.Generate(ctx, prompt, system, v.cfg.Model)
}

func (v *Validator) finish(out Outcome, verdict Verdict) Outcome {
	out.GuardPass = verdict.OK
	out.GuardReason = verdict.Reason
	out.Detail = verdict.Detail

	result := "fallback"
	if verdict.OK {
		result = "accepted"
	}
	telemetry.GuardOutcomes.WithLabelValues(result, string(verdict.Reason)).Inc()

	entry := v.log.WithFields(logrus.Fields{
		"model":      out.Model,
		"latency_ms": out.LatencyMS,
		"guard_pass": out.GuardPass,
		"auto_fix":   out.AutoFix,
	})
	if verdict.OK {
		entry.Debug("rewrite accepted")
	} else {
		entry.WithFields(logrus.Fields{"reason": verdict.Reason, "detail": verdict.Detail}).Info("rewrite rejected, using deterministic text")
	}
	return out
}
