package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/socratic-council/council/pkg/config"
	"github.com/socratic-council/council/pkg/conflict"
	"github.com/socratic-council/council/pkg/council"
	"github.com/socratic-council/council/pkg/log"
	"github.com/socratic-council/council/pkg/middleware"
	"github.com/socratic-council/council/pkg/oracle"
	"github.com/socratic-council/council/pkg/orchestrator"
	"github.com/socratic-council/council/pkg/transcript"
)

var (
	resumeContinue   bool
	resumeConfigPath string
	resumeStateOut   string
)

var resumeCmd = &cobra.Command{
	Use:   "resume <state-file>",
	Short: "Inspect, or continue, a saved session",
	Long: `Resume loads a session state file and prints a summary. With
--continue and a --config file supplying fresh provider credentials, it
rebuilds the adapters and hands the loaded state back to the orchestrator
so the session keeps running from where it left off.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().BoolVar(&resumeContinue, "continue", false, "continue running the session instead of just summarizing it")
	resumeCmd.Flags().StringVarP(&resumeConfigPath, "config", "c", "", "config file supplying provider credentials (required with --continue)")
	resumeCmd.Flags().StringVar(&resumeStateOut, "save-state", "", "write the updated state back to this path once the continuation ends (default: overwrite the input file)")
}

func runResume(cmd *cobra.Command, args []string) error {
	statePath := args[0]
	state, err := council.LoadState(statePath)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	fmt.Printf("session %s\n", state.SessionID)
	fmt.Printf("  status:   %s\n", state.Status)
	fmt.Printf("  topic:    %s\n", state.Config.Topic)
	fmt.Printf("  turns:    %d\n", state.TurnNumber)
	fmt.Printf("  messages: %d\n", len(state.Messages))
	fmt.Printf("  cost:     $%.4f\n", state.Cost.TotalUSD)

	if !resumeContinue {
		return nil
	}
	if resumeConfigPath == "" {
		return fmt.Errorf("--continue requires --config to supply provider credentials")
	}

	cfg, err := config.LoadConfig(resumeConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	adapters, err := buildAdapters(cfg)
	if err != nil {
		return fmt.Errorf("build provider adapters: %w", err)
	}

	orch := orchestrator.New(state, adapters,
		orchestrator.WithFairness(cfg.Schedule.FairnessWindow, cfg.Schedule.FairnessCap),
		orchestrator.WithConflictDetector(conflict.NewDetector(cfg.Schedule.ConflictWindow, cfg.Schedule.ConflictThreshold)),
		orchestrator.WithMiddleware(middleware.NewChain(
			middleware.EmptyContentValidationMiddleware(),
			middleware.ToolDirectiveStrippedValidationMiddleware(),
		)),
		orchestrator.WithOracleBackend(oracle.DisabledBackend{}),
	)

	writer := transcript.New(os.Stdout, transcript.FormatText, 100, cfg.Logging.ShowMetrics)
	names := make(map[council.AgentID]string, len(cfg.Agents))
	for _, a := range cfg.Agents {
		names[council.AgentID(a.ID)] = a.Name
	}
	orch.OnEvent(func(ev council.Event) {
		switch p := ev.Payload.(type) {
		case council.EventPayloadMessage:
			writer.WriteMessage(p.Message, names)
		case council.EventPayloadError:
			writer.WriteError(council.AgentID(p.Stage), p.Err)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("interrupt received, stopping council session")
		orch.Stop()
	}()

	runErr := orch.Start(ctx, state.Config.Topic)

	outPath := resumeStateOut
	if outPath == "" {
		outPath = statePath
	}
	if err := council.SaveState(orch.State(), outPath); err != nil {
		log.WithError(err).WithField("path", outPath).Error("failed to save session state")
	} else {
		fmt.Printf("session state saved to %s\n", outPath)
	}

	return runErr
}
