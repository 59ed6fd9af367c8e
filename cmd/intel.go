package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/censai/pkg/intel"
	"github.com/user/censai/pkg/store"
)

var intelCmd = &cobra.Command{
	Use:   "intel",
	Short: "Manage cached KEV and EPSS feeds",
}

var (
	importKEV  string
	importEPSS string
)

var intelImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import KEV and EPSS feeds into the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importKEV == "" && importEPSS == "" {
			return fmt.Errorf("at least one of --kev or --epss is required")
		}
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		if importKEV != "" {
			ids, err := parseFeed(importKEV, intel.ParseKEV)
			if err != nil {
				return fmt.Errorf("kev feed: %w", err)
			}
			if err := st.ReplaceKEV(ctx, ids); err != nil {
				return err
			}
			log.WithField("count", len(ids)).Info("imported KEV feed")
			fmt.Fprintf(out, "KEV: %d CVEs\n", len(ids))
		}
		if importEPSS != "" {
			scores, err := parseFeed(importEPSS, intel.ParseEPSS)
			if err != nil {
				return fmt.Errorf("epss feed: %w", err)
			}
			if err := st.ReplaceEPSS(ctx, scores); err != nil {
				return err
			}
			log.WithField("count", len(scores)).Info("imported EPSS feed")
			fmt.Fprintf(out, "EPSS: %d scores\n", len(scores))
		}
		return nil
	},
}

var intelStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many KEV and EPSS entries are cached",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		ids, err := st.LoadKEV(ctx)
		if err != nil {
			return err
		}
		scores, err := st.LoadEPSS(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "store: %s\nKEV:   %d\nEPSS:  %d\n", cfg.Store.Path, len(ids), len(scores))
		return nil
	},
}

func parseFeed[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	return parse(f)
}

func init() {
	intelImportCmd.Flags().StringVar(&importKEV, "kev", "", "KEV catalog (CISA JSON, JSON list or one CVE per line)")
	intelImportCmd.Flags().StringVar(&importEPSS, "epss", "", "EPSS scores (CSV or JSON)")
	intelCmd.AddCommand(intelImportCmd)
	intelCmd.AddCommand(intelStatsCmd)
	rootCmd.AddCommand(intelCmd)
}
