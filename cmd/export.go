package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/socratic-council/council/pkg/council"
)

var exportOutputPath string

var exportCmd = &cobra.Command{
	Use:   "export <state-file>",
	Short: "Re-export a saved session state file",
	Long: `Export loads a session state previously written by "run --save-state"
or "resume", round-trips it through the same schema, and writes it back
out — either in place or to a new path, for archival or inspection.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "output path (default: overwrite the input file)")
}

func runExport(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	state, err := council.LoadState(inputPath)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	outputPath := exportOutputPath
	if outputPath == "" {
		outputPath = inputPath
	}

	if err := council.SaveState(state, outputPath); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	fmt.Printf("session %s (%d turns, %d messages, $%.4f) exported to %s\n",
		state.SessionID, state.TurnNumber, len(state.Messages), state.Cost.TotalUSD, outputPath)
	return nil
}
