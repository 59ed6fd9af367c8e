package cmd

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "censai",
	Short: "Evidence retrieval and deterministic risk summaries for scan data",
	Long: `censai ranks network scan records against a query, applies a fixed set of
risk rules and composes a deterministic summary. An optional AI rewrite is
accepted only when it keeps every number, CVE and port of the original.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var (
	DebugMode  bool
	ConfigPath string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&DebugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&ConfigPath, "config", "", "Config file (default ~/.censai/config.yaml)")
}
