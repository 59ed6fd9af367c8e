package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/censai/pkg/engine"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the risk rules and the record keys they read",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, r := range engine.DefaultRules() {
			fmt.Fprintf(out, "%-28s %s\n", r.Name(), r.Description())
			if keys := r.Keys(); len(keys) > 0 {
				fmt.Fprintf(out, "%-28s reads: %s\n", "", strings.Join(keys, ", "))
			}
		}
	},
}

var templatesDir string

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List remediation templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		rem := engine.DefaultRemediation()
		if templatesDir != "" {
			if err := rem.LoadTemplates(templatesDir); err != nil {
				return err
			}
		}
		for _, id := range rem.ListTemplates() {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	templatesCmd.Flags().StringVar(&templatesDir, "dir", "", "Directory of template overrides")
	rulesCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(rulesCmd)
}
