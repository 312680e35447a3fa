package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/socratic-council/council/pkg/config"
	"github.com/socratic-council/council/pkg/council"
)

var initOutputPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively build a council config file",
	Long: `Init walks through the five fixed council seats (G, C, F, S, H), asking
for a provider, model, API key, and system prompt for each, then writes a
ready-to-run config YAML.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initOutputPath, "output", "o", "council.yaml", "output config file path")
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(initOutputPath); err == nil {
		if !promptYesNo(reader, fmt.Sprintf("%s already exists. Overwrite?", initOutputPath), false) {
			fmt.Println("canceled.")
			return nil
		}
	}

	fmt.Println("Socratic Council Configuration")
	fmt.Println("===============================")
	fmt.Println()

	cfg := config.NewDefaultConfig()
	cfg.Session.Topic = promptString(reader, "Debate topic", "")

	for _, id := range council.AllAgentIDs {
		fmt.Printf("\n--- Seat %s (%s) ---\n", id, council.DefaultNicknames[id])

		name := promptString(reader, "Display name", council.DefaultNicknames[id])
		provider := promptChoice(reader, "Provider", []string{"openai", "anthropic", "google", "deepseek", "kimi"}, 1)
		model := promptString(reader, "Model", defaultModelFor(provider))
		apiKey := promptString(reader, "API key", "")
		systemPrompt := promptString(reader, "System prompt", fmt.Sprintf("You are %s, a participant in a council debate.", name))

		cfg.Agents = append(cfg.Agents, config.AgentConfig{
			ID:           string(id),
			Name:         name,
			Provider:     provider,
			Model:        model,
			SystemPrompt: systemPrompt,
			APIKey:       apiKey,
		})
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}
	if err := cfg.SaveConfig(initOutputPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("\nconfiguration written to %s\n", initOutputPath)
	return nil
}

func defaultModelFor(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o"
	case "anthropic":
		return "claude-opus-4"
	case "google":
		return "gemini-2.0-flash"
	case "deepseek":
		return "deepseek-chat"
	case "kimi":
		return "kimi-k2"
	default:
		return ""
	}
}

func promptString(reader *bufio.Reader, prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Printf("%s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

func promptYesNo(reader *bufio.Reader, prompt string, defaultValue bool) bool {
	defaultStr := "y/N"
	if defaultValue {
		defaultStr = "Y/n"
	}

	for {
		fmt.Printf("%s [%s]: ", prompt, defaultStr)
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(strings.ToLower(input))

		if input == "" {
			return defaultValue
		}
		if input == "y" || input == "yes" {
			return true
		}
		if input == "n" || input == "no" {
			return false
		}
		fmt.Println("please answer 'y' or 'n'")
	}
}

func promptChoice(reader *bufio.Reader, prompt string, choices []string, defaultIndex int) string {
	fmt.Printf("%s options: ", prompt)
	for i, c := range choices {
		fmt.Printf("%d=%s ", i+1, c)
	}
	fmt.Println()

	for {
		fmt.Printf("%s (1-%d, default %d): ", prompt, len(choices), defaultIndex)
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		if input == "" {
			return choices[defaultIndex-1]
		}
		choice, err := strconv.Atoi(input)
		if err != nil || choice < 1 || choice > len(choices) {
			fmt.Printf("please select a number between 1 and %d\n", len(choices))
			continue
		}
		return choices[choice-1]
	}
}
