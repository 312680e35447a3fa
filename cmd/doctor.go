package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/socratic-council/council/pkg/config"
)

var doctorConfigPath string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check provider connectivity for a council config",
	Long: `Doctor loads a council config, builds one adapter per provider it
names, and calls TestConnection for each configured agent, reporting
which seats are reachable before a run is attempted.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVarP(&doctorConfigPath, "config", "c", "", "path to council config YAML (required)")
	doctorCmd.MarkFlagRequired("config")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(doctorConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	adapters, err := buildAdapters(cfg)
	if err != nil {
		return fmt.Errorf("build provider adapters: %w", err)
	}

	fmt.Println("Council Doctor - provider connectivity check")
	fmt.Println("==============================================")

	allOK := true
	for _, a := range cfg.Agents {
		adapter, ok := adapters[a.Provider]
		if !ok {
			fmt.Printf("[FAIL] %s (%s/%s): no adapter configured\n", a.ID, a.Provider, a.Model)
			allOK = false
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		reachable := adapter.TestConnection(ctx, a.Model)
		cancel()

		if reachable {
			fmt.Printf("[ OK ] %s (%s/%s)\n", a.ID, a.Provider, a.Model)
		} else {
			fmt.Printf("[FAIL] %s (%s/%s): connection test failed\n", a.ID, a.Provider, a.Model)
			allOK = false
		}
	}

	fmt.Println()
	if allOK {
		fmt.Println("All agents reachable.")
		return nil
	}
	fmt.Println("One or more agents are not reachable; check api_key and base_url.")
	os.Exit(1)
	return nil
}
