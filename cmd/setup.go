package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/censai/pkg/adk"
	"github.com/user/censai/pkg/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Println("Welcome to the censai setup wizard")
		fmt.Println("----------------------------------")

		// 1. Select Provider
		fmt.Println("Step 1: Choose the rewrite backend")
		fmt.Println("1. Ollama (local)")
		fmt.Println("2. Gemini (Google)")
		fmt.Println("3. OpenAI")
		fmt.Println("4. Anthropic")
		fmt.Print("Enter number or name > ")
		scanner.Scan()
		choice := strings.ToLower(strings.TrimSpace(scanner.Text()))

		var provider string
		switch choice {
		case "1", "ollama":
			provider = "ollama"
		case "2", "gemini":
			provider = "gemini"
		case "3", "openai":
			provider = "openai"
		case "4", "anthropic":
			provider = "anthropic"
		default:
			return fmt.Errorf("invalid choice %q", choice)
		}

		cfg, err := config.Load(ConfigPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// 2. Endpoint or API key
		var apiKey string
		if provider == "ollama" {
			fmt.Printf("\nStep 2: Ollama URL (blank for %s)\n", "http://127.0.0.1:11434")
			fmt.Print("> ")
			scanner.Scan()
			if u := strings.TrimSpace(scanner.Text()); u != "" {
				cfg.LLM.URL = u
			}
		} else {
			fmt.Printf("\nStep 2: Enter API Key for %s\n", provider)
			fmt.Print("> ")
			scanner.Scan()
			apiKey = strings.TrimSpace(scanner.Text())
			if apiKey == "" {
				return fmt.Errorf("API key cannot be empty")
			}
		}

		// 3. Fetch Models
		fmt.Println("\nStep 3: Validating access and fetching available models...")
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		gen, err := adk.NewGenerator(ctx, provider, apiKey, "", adk.Options{BaseURL: cfg.LLM.URL})
		if err != nil {
			return fmt.Errorf("initializing provider: %w", err)
		}
		if closer, ok := gen.(interface{ Close() }); ok {
			defer closer.Close()
		}

		var selectedModel string
		models, err := gen.ListModels(ctx)
		if err != nil || len(models) == 0 {
			if err != nil {
				fmt.Printf("Warning: Could not fetch models: %v\n", err)
			}
			fmt.Println("Please enter model name manually (e.g. 'llama3.1', 'gemini-1.5-flash', 'gpt-4o-mini'):")
			fmt.Print("> ")
			scanner.Scan()
			selectedModel = strings.TrimSpace(scanner.Text())
		} else {
			fmt.Printf("Successfully retrieved %d models.\n", len(models))
			for i, m := range models {
				fmt.Printf("%d. %s\n", i+1, m)
			}
			fmt.Print("Select Model (number) > ")
			scanner.Scan()
			selIdx, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
			if err != nil || selIdx < 1 || selIdx > len(models) {
				fmt.Println("Invalid selection. Using first available model.")
				selectedModel = models[0]
			} else {
				selectedModel = models[selIdx-1]
			}
		}

		// 4. Save Configuration
		fmt.Println("\nStep 4: Saving Configuration...")
		cfg.SelectedProvider = provider
		cfg.SelectedModel = selectedModel
		cfg.LLM.Enabled = true
		if apiKey != "" {
			cfg.SetAPIKey(provider, apiKey)
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Println("----------------------------------")
		fmt.Println("Setup Complete!")
		fmt.Printf("Provider: %s\n", provider)
		fmt.Printf("Model:    %s\n", selectedModel)
		fmt.Println("You can now run 'censai summarize --rewrite <records.json>'")
		return nil
	},
}

func init() {
	configCmd.AddCommand(setupCmd)
}
