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
	"github.com/socratic-council/council/pkg/metrics"
	"github.com/socratic-council/council/pkg/middleware"
	"github.com/socratic-council/council/pkg/oracle"
	"github.com/socratic-council/council/pkg/orchestrator"
	"github.com/socratic-council/council/pkg/provideradapter"
	"github.com/socratic-council/council/pkg/transcript"
	"github.com/socratic-council/council/pkg/transport"
)

var (
	runConfigPath string
	runTopic      string
	runStateOut   string
	runJSONLog    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a council session from a config file",
	Long: `Run seats the five agents described in the config file, opens the
given topic, and drives bidding/fairness/conflict scheduling until the
turn or budget ceiling is reached or the process is interrupted.`,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to council config YAML (required)")
	runCmd.Flags().StringVarP(&runTopic, "topic", "t", "", "topic to debate (overrides the config file's session.topic)")
	runCmd.Flags().StringVar(&runStateOut, "save-state", "", "write the final session state as JSON to this path on completion")
	runCmd.Flags().BoolVar(&runJSONLog, "json", false, "write the transcript as one JSON object per message instead of styled text")
	runCmd.MarkFlagRequired("config")
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	topic := cfg.Session.Topic
	if runTopic != "" {
		topic = runTopic
	}
	if topic == "" {
		return fmt.Errorf("no topic: pass --topic or set session.topic in the config file")
	}

	adapters, err := buildAdapters(cfg)
	if err != nil {
		return fmt.Errorf("build provider adapters: %w", err)
	}

	state := council.NewCouncilState(cfg.ToSessionConfig(), cfg.ToAgents())

	var metricsServer *metrics.Server
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(metrics.ServerConfig{Addr: cfg.Metrics.Addr})
		m = metricsServer.Metrics()
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
		defer metricsServer.Stop(context.Background())
	}

	opts := []orchestrator.Option{
		orchestrator.WithFairness(cfg.Schedule.FairnessWindow, cfg.Schedule.FairnessCap),
		orchestrator.WithConflictDetector(conflict.NewDetector(cfg.Schedule.ConflictWindow, cfg.Schedule.ConflictThreshold)),
		orchestrator.WithMiddleware(middleware.NewChain(
			middleware.EmptyContentValidationMiddleware(),
			middleware.ToolDirectiveStrippedValidationMiddleware(),
		)),
		orchestrator.WithOracleBackend(oracle.DisabledBackend{}),
	}
	if cfg.Schedule.BiddingWeights != nil {
		opts = append(opts, orchestrator.WithBiddingWeights(*cfg.Schedule.BiddingWeights))
	}
	if m != nil {
		opts = append(opts, orchestrator.WithMetrics(m))
	}

	orch := orchestrator.New(state, adapters, opts...)

	if cfg.Logging.Enabled {
		format := transcript.FormatText
		if runJSONLog || cfg.Logging.LogFormat == "json" {
			format = transcript.FormatJSON
		}
		writer := transcript.New(os.Stdout, format, 100, cfg.Logging.ShowMetrics)
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
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("interrupt received, stopping council session")
		orch.Stop()
	}()

	runErr := orch.Start(ctx, topic)

	if runStateOut != "" {
		if err := council.SaveState(orch.State(), runStateOut); err != nil {
			log.WithError(err).WithField("path", runStateOut).Error("failed to save session state")
		} else {
			fmt.Printf("session state saved to %s\n", runStateOut)
		}
	}

	return runErr
}

// buildAdapters constructs one provideradapter.Adapter per distinct
// provider named across cfg.Agents, keyed the way orchestrator.New
// expects. Providers repeated across agents reuse the first configured
// agent's credentials for that provider, since adapters are shared
// per-provider rather than per-seat.
func buildAdapters(cfg *config.Config) (map[string]provideradapter.Adapter, error) {
	transportCfg := transport.Config{
		OverallTimeout: cfg.Transport.OverallTimeout,
		IdleTimeout:    cfg.Transport.IdleTimeout,
		Proxy:          cfg.Transport.Proxy.ToTransportProxy(),
		RateLimit:      cfg.Transport.RateLimit.ToTransportRateLimit(),
	}

	adapters := make(map[string]provideradapter.Adapter, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if _, ok := adapters[a.Provider]; ok {
			continue
		}
		perProviderCfg := transportCfg
		perProviderCfg.RateLimit.Key = a.Provider
		creds := provideradapter.Credentials{
			APIKey:    a.APIKey,
			BaseURL:   a.BaseURL,
			Transport: perProviderCfg,
		}
		adapter, err := provideradapter.New(a.Provider, creds)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", a.Provider, err)
		}
		adapters[a.Provider] = adapter
	}
	return adapters, nil
}
