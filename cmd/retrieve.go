package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/censai/pkg/pipeline"
	"github.com/user/censai/pkg/retrieval"
)

var (
	retQuery  string
	retTopK   int
	retFilter retrieval.Filter
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <records.json|->",
	Short: "Rank records by similarity to a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx, runtimeOptions{})
		if err != nil {
			return err
		}
		defer rt.Close()

		records, _, err := readRecords(args[0], rt.log)
		if err != nil {
			return err
		}
		evidence, k, err := rt.sum.Retrieve(ctx, pipeline.Request{
			Records: records,
			Query:   retQuery,
			TopK:    retTopK,
			Filter:  retFilter,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "SCORE\tID\tADDRESS\tPRODUCT\tCOUNTRY\tCVES\n")
		for _, e := range evidence {
			cves := make([]string, 0, len(e.CVE))
			for _, c := range e.CVE {
				cves = append(cves, c.ID)
			}
			fmt.Fprintf(w, "%.3f\t%s\t%s:%d\t%s\t%s\t%s\n",
				e.Score, e.ID, e.IP, e.Port,
				strings.TrimSpace(e.Product+" "+e.Version), e.Country, strings.Join(cves, ","))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d records (top-k %d)\n", len(evidence), len(records), k)
		return nil
	},
}

func init() {
	retrieveCmd.Flags().StringVarP(&retQuery, "query", "q", "", "Retrieval query")
	retrieveCmd.Flags().IntVarP(&retTopK, "top-k", "k", 0, "Records to return (default from config)")
	addFilterFlags(retrieveCmd, &retFilter)
	rootCmd.AddCommand(retrieveCmd)
}
