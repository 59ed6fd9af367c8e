package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/user/censai/pkg/adk"
	"github.com/user/censai/pkg/config"
	"github.com/user/censai/pkg/engine"
	"github.com/user/censai/pkg/geo"
	"github.com/user/censai/pkg/guard"
	"github.com/user/censai/pkg/intel"
	"github.com/user/censai/pkg/logger"
	"github.com/user/censai/pkg/pipeline"
	"github.com/user/censai/pkg/record"
	"github.com/user/censai/pkg/store"
	"github.com/user/censai/pkg/telemetry"
)

// runtime holds everything a command needs to run the pipeline.
type runtime struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   *store.Store
	sum     *pipeline.Summarizer
	closers []func()
}

type runtimeOptions struct {
	rewrite      bool
	mutesPath    string
	templatesDir string
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if DebugMode {
		cfg.Log.Level = "debug"
	}
	log, err := logger.Init(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	telemetry.InitMetrics()
	rt := &runtime{cfg: cfg, log: log}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.WithError(err).Warn("snapshot store unavailable, deltas disabled")
	} else {
		rt.store = st
		rt.closers = append(rt.closers, func() { st.Close() })
	}

	kev, epss := rt.loadIntel(ctx)

	eng := engine.NewEngine(log)
	if opts.templatesDir != "" {
		rem := engine.DefaultRemediation()
		if err := rem.LoadTemplates(opts.templatesDir); err != nil {
			rt.Close()
			return nil, fmt.Errorf("load remediation templates: %w", err)
		}
		eng.SetRemediation(rem)
	}

	deps := pipeline.Deps{Engine: eng, KEV: kev, EPSS: epss, Log: log}
	if rt.store != nil {
		deps.Store = rt.store
	}

	if opts.mutesPath != "" {
		mutes, err := loadMutes(opts.mutesPath)
		if err != nil {
			rt.Close()
			return nil, err
		}
		deps.Mutes = mutes
	}

	if cfg.Geo.CityDB != "" || cfg.Geo.ASNDB != "" {
		g, err := geo.Open(cfg.Geo.CityDB, cfg.Geo.ASNDB)
		if err != nil {
			log.WithError(err).Warn("geo databases unavailable, skipping enrichment")
		} else {
			deps.Geo = g
			rt.closers = append(rt.closers, g.Close)
		}
	}

	if opts.rewrite || cfg.LLM.Enabled {
		deps.Rewriter = rt.newValidator(ctx)
	}

	rt.sum = pipeline.NewSummarizer(deps, pipeline.Options{
		DefaultTopK: cfg.Retrieval.TopK,
		MaxRecords:  cfg.Limits.MaxRecords,
		Style:       guard.Style(cfg.LLM.Style),
		Language:    cfg.LLM.Language,
	})
	return rt, nil
}

// loadIntel prefers the configured feed files and falls back to the
// imported copies in the store.
func (rt *runtime) loadIntel(ctx context.Context) (*intel.KEVSet, *intel.EPSSMap) {
	kev, epss := intel.NewKEVSet(), intel.NewEPSSMap(nil)

	if p := rt.cfg.Intel.KEVPath; p != "" {
		if k, err := intel.LoadKEVFile(p); err != nil {
			rt.log.WithError(err).Warn("failed to load KEV feed")
		} else {
			kev = k
		}
	} else if rt.store != nil {
		if ids, err := rt.store.LoadKEV(ctx); err == nil {
			kev.Replace(ids)
		}
	}

	if p := rt.cfg.Intel.EPSSPath; p != "" {
		if m, err := intel.LoadEPSSFile(p); err != nil {
			rt.log.WithError(err).Warn("failed to load EPSS feed")
		} else {
			epss = m
		}
	} else if rt.store != nil {
		if scores, err := rt.store.LoadEPSS(ctx); err == nil {
			epss.Replace(scores)
		}
	}

	rt.log.WithFields(logrus.Fields{"kev": kev.Len(), "epss": epss.Len()}).Debug("threat intel loaded")
	return kev, epss
}

// newValidator builds the guarded rewriter. A provider that cannot be
// created leaves the validator without a generator, so every rewrite falls
// back to the deterministic text.
func (rt *runtime) newValidator(ctx context.Context) *guard.Validator {
	cfg := rt.cfg
	gen, err := adk.NewGenerator(ctx, cfg.SelectedProvider, cfg.GetAPIKey(cfg.SelectedProvider), cfg.SelectedModel, adk.Options{
		BaseURL:     cfg.LLM.URL,
		Temperature: float32(cfg.LLM.Temperature),
		TopP:        float32(cfg.LLM.TopP),
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		rt.log.WithError(err).Warn("rewrite backend unavailable")
		gen = nil
	}
	if closer, ok := gen.(interface{ Close() }); ok {
		rt.closers = append(rt.closers, closer.Close)
	}
	return guard.NewValidator(gen, guard.Config{Model: cfg.SelectedModel, Timeout: cfg.LLM.Timeout}, rt.log)
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func loadMutes(path string) (engine.MuteList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mutes: %w", err)
	}
	var mutes []engine.Mute
	if err := yaml.Unmarshal(data, &mutes); err != nil {
		return nil, fmt.Errorf("parse mutes: %w", err)
	}
	return engine.NewMuteList(mutes), nil
}

// readRecords loads and normalizes records from a file, or stdin for "-".
func readRecords(path string, log logrus.FieldLogger) ([]record.Record, []record.Skipped, error) {
	in := os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open records: %w", err)
		}
		defer f.Close()
		in = f
	}
	raws, err := record.Load(in)
	if err != nil {
		return nil, nil, err
	}
	records, skipped := record.Normalize(raws, log)
	return records, skipped, nil
}
