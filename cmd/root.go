// Package cmd implements the council command-line shell: the thin
// terminal front-end needed to exercise the orchestration core end to
// end (run, doctor, init, export, resume, version).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/socratic-council/council/pkg/log"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "council",
	Short: "Run a Socratic Council debate between AI agents",
	Long: `Socratic Council seats five AI agents around a shared topic and lets
them bid for the floor each turn instead of speaking in a fixed order,
tracking fairness, pairwise tension, and per-agent cost as the session runs.`,
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "council session config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")
}

func initConfig() {
	level := "info"
	if verbose {
		level = "debug"
	}
	log.SetLevel(level)

	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		log.WithError(err).WithField("config_file", cfgFile).Debug("viper could not read config file")
	}
}
