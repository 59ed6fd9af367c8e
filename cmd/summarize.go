package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/censai/pkg/engine"
	"github.com/user/censai/pkg/pipeline"
	"github.com/user/censai/pkg/retrieval"
	"github.com/user/censai/pkg/telemetry"
)

var (
	sumQuery     string
	sumTopK      int
	sumRewrite   bool
	sumStyle     string
	sumLanguage  string
	sumFormat    string
	sumTrace     bool
	sumMutes     string
	sumTemplates string
	sumPlans     int
	sumFilter    retrieval.Filter
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <records.json|->",
	Short: "Build a risk summary for a batch of scan records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if sumTrace {
			shutdown, err := telemetry.InitTracer(os.Stderr, Version)
			if err != nil {
				return fmt.Errorf("init tracer: %w", err)
			}
			defer shutdown(ctx)
		}

		rt, err := newRuntime(ctx, runtimeOptions{
			rewrite:      sumRewrite,
			mutesPath:    sumMutes,
			templatesDir: sumTemplates,
		})
		if err != nil {
			return err
		}
		defer rt.Close()

		records, skipped, err := readRecords(args[0], rt.log)
		if err != nil {
			return err
		}
		if len(skipped) > 0 {
			rt.log.WithField("skipped", len(skipped)).Warn("some records were dropped during normalization")
		}

		resp, err := rt.sum.Summarize(ctx, pipeline.Request{
			Records:  records,
			Query:    sumQuery,
			TopK:     sumTopK,
			Filter:   sumFilter,
			Rewrite:  sumRewrite,
			Style:    sumStyle,
			Language: sumLanguage,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch strings.ToLower(sumFormat) {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		case "text":
			printSummary(out, resp)
			if sumPlans > 0 {
				return printPlans(out, resp.Findings, sumPlans)
			}
			return nil
		default:
			return fmt.Errorf("unsupported format: %s", sumFormat)
		}
	},
}

func printSummary(w io.Writer, resp pipeline.Response) {
	fmt.Fprintf(w, "Report %s\n\n", resp.ReportID)
	fmt.Fprintln(w, resp.Overview)

	if resp.AI != nil && !resp.AI.UsedAI {
		fmt.Fprintf(w, "\n(AI rewrite rejected: %s %s)\n", resp.AI.GuardReason, resp.AI.Detail)
	}

	if len(resp.Summary.Highlights) > 0 {
		fmt.Fprintln(w, "\nHighlights:")
		for _, h := range resp.Summary.Highlights {
			fmt.Fprintf(w, "  - %s\n", h)
		}
	}
	if len(resp.Summary.Observations) > 0 {
		fmt.Fprintln(w, "\nObservations:")
		for _, o := range resp.Summary.Observations {
			fmt.Fprintf(w, "  - %s\n", o)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprint(w, engine.FormatFindings(resp.Findings))

	fmt.Fprintln(w, "Recommendations:")
	for _, r := range resp.Summary.Recommendations {
		fmt.Fprintf(w, "  - %s\n", r)
	}

	if resp.Delta != nil {
		c := resp.Delta.Counts
		fmt.Fprintf(w, "\nSince last run: %d new, %d resolved, %d changed\n", c.New, c.Resolved, c.Changed)
	}
	for _, e := range resp.RuleErrors {
		fmt.Fprintf(w, "warning: %s\n", e)
	}
}

// printPlans renders fix plans for the n highest ranked findings.
func printPlans(w io.Writer, findings []engine.RiskFinding, n int) error {
	rem := engine.DefaultRemediation()
	if sumTemplates != "" {
		if err := rem.LoadTemplates(sumTemplates); err != nil {
			return err
		}
	}
	for i, f := range findings {
		if i == n {
			break
		}
		fmt.Fprintln(w)
		fmt.Fprint(w, rem.Plan(f))
	}
	return nil
}

func addFilterFlags(cmd *cobra.Command, f *retrieval.Filter) {
	cmd.Flags().StringVar(&f.Product, "product", "", "Only retrieve records with this product")
	cmd.Flags().StringVar(&f.Version, "version-filter", "", "Only retrieve records with this exact version")
	cmd.Flags().StringVar(&f.Hardware, "hardware", "", "Only retrieve records with this hardware")
	cmd.Flags().StringVar(&f.Country, "country", "", "Only retrieve records from this country code")
}

func init() {
	summarizeCmd.Flags().StringVarP(&sumQuery, "query", "q", "", "Retrieval query (empty ranks every record equally)")
	summarizeCmd.Flags().IntVarP(&sumTopK, "top-k", "k", 0, "Evidence records to retrieve (default from config)")
	summarizeCmd.Flags().BoolVar(&sumRewrite, "rewrite", false, "Ask the configured model for a guarded rewrite")
	summarizeCmd.Flags().StringVar(&sumStyle, "style", "", "Rewrite style: executive, bulleted, ticket")
	summarizeCmd.Flags().StringVar(&sumLanguage, "language", "", "Rewrite language (default from config)")
	summarizeCmd.Flags().StringVarP(&sumFormat, "format", "o", "text", "Output format: text or json")
	summarizeCmd.Flags().BoolVar(&sumTrace, "trace", false, "Print OpenTelemetry spans to stderr")
	summarizeCmd.Flags().StringVar(&sumMutes, "mutes", "", "YAML file of finding mutes")
	summarizeCmd.Flags().StringVar(&sumTemplates, "templates", "", "Directory of remediation template overrides")
	summarizeCmd.Flags().IntVar(&sumPlans, "plans", 0, "Print fix plans for the top N findings (text format)")
	addFilterFlags(summarizeCmd, &sumFilter)
	rootCmd.AddCommand(summarizeCmd)
}
