package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/censai/pkg/guard"
	"github.com/user/censai/pkg/pipeline"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive <records.json>",
	Short: "Query a batch of records from a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx, runtimeOptions{rewrite: true})
		if err != nil {
			return err
		}
		defer rt.Close()

		records, skipped, err := readRecords(args[0], rt.log)
		if err != nil {
			return err
		}

		rewrite := false
		style := guard.Style(rt.cfg.LLM.Style)
		topK := 0

		scanner := bufio.NewScanner(os.Stdin)
		fmt.Println("\n---------------------------------------------------------")
		fmt.Printf("Loaded %d records (%d skipped). Ready for queries.\n", len(records), len(skipped))
		fmt.Println("Example: 'exposed redis in germany'")
		fmt.Println("Commands: :rewrite on|off, :style executive|bulleted|ticket, :k <n>")
		fmt.Println("Type 'quit' or 'exit' to stop.")
		fmt.Println("---------------------------------------------------------")

		for {
			fmt.Print("\n> ")
			if !scanner.Scan() {
				break
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "quit" || input == "exit" {
				break
			}
			if input == "" {
				continue
			}

			if strings.HasPrefix(input, ":") {
				fields := strings.Fields(input)
				arg := ""
				if len(fields) > 1 {
					arg = fields[1]
				}
				switch fields[0] {
				case ":rewrite":
					rewrite = arg == "on"
					fmt.Printf("rewrite %v\n", rewrite)
				case ":style":
					style = guard.ParseStyle(arg)
					fmt.Printf("style %s\n", style)
				case ":k":
					n, err := strconv.Atoi(arg)
					if err != nil || n < 0 {
						fmt.Println("usage: :k <n>")
						continue
					}
					topK = n
				default:
					fmt.Printf("unknown command %s\n", fields[0])
				}
				continue
			}

			if rewrite {
				fmt.Print("Rewriting... ")
			}
			resp, err := rt.sum.Summarize(ctx, pipeline.Request{
				Records: records,
				Query:   input,
				TopK:    topK,
				Rewrite: rewrite,
				Style:   string(style),
			})
			fmt.Print("\r\033[K")
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			printSummary(os.Stdout, resp)
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}
