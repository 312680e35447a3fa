// Package config loads and validates the YAML file describing a council
// session: which five agents sit in which seat, the scheduling and
// fairness tunables, transport/proxy settings, and the ambient
// logging/metrics behavior. Struct-tagged YAML, a NewDefaultConfig
// constructor, Validate, and applyDefaults for anything left unset.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/socratic-council/council/pkg/bidding"
	"github.com/socratic-council/council/pkg/conflict"
	"github.com/socratic-council/council/pkg/council"
	"github.com/socratic-council/council/pkg/fairness"
	"github.com/socratic-council/council/pkg/transport"
)

// AgentConfig is the on-disk shape of one council seat.
type AgentConfig struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Provider        string   `yaml:"provider"`
	Model           string   `yaml:"model"`
	SystemPrompt    string   `yaml:"system_prompt"`
	Temperature     *float64 `yaml:"temperature,omitempty"`
	MaxOutputTokens *int     `yaml:"max_output_tokens,omitempty"`
	APIKey          string   `yaml:"api_key"`
	BaseURL         string   `yaml:"base_url,omitempty"`
}

// SessionConfig defines the topic and turn-taking envelope for a run.
type SessionConfig struct {
	Topic          string        `yaml:"topic"`
	MaxTurns       int           `yaml:"max_turns"`
	BiddingTimeout time.Duration `yaml:"bidding_timeout"`
	BudgetUSD      float64       `yaml:"budget_usd"`
	AutoMode       bool          `yaml:"auto_mode"`
}

// SchedulingConfig overrides the bidding/fairness/conflict defaults.
type SchedulingConfig struct {
	BiddingWeights    *bidding.Weights `yaml:"bidding_weights,omitempty"`
	FairnessWindow    int              `yaml:"fairness_window"`
	FairnessCap       int              `yaml:"fairness_cap"`
	ConflictWindow    int              `yaml:"conflict_window"`
	ConflictThreshold float64          `yaml:"conflict_threshold"`
}

// LoggingConfig defines transcript output behavior.
type LoggingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogDir      string `yaml:"log_dir"`
	LogFormat   string `yaml:"log_format"` // "text" or "json"
	ShowMetrics bool   `yaml:"show_metrics"`
}

// MetricsConfig defines the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ProxyConfig is the on-disk shape of transport.ProxyConfig.
type ProxyConfig struct {
	Type string `yaml:"type"` // "none", "http", "https", "socks5", "socks5h"
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TransportConfig defines HTTP timeouts and proxying for provider calls.
type TransportConfig struct {
	OverallTimeout time.Duration   `yaml:"overall_timeout"`
	IdleTimeout    time.Duration   `yaml:"idle_timeout"`
	Proxy          ProxyConfig     `yaml:"proxy"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is the on-disk shape of transport.RateLimitConfig. A zero
// RatePerSecond leaves outbound requests unthrottled.
type RateLimitConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// ToTransportRateLimit converts the on-disk shape to transport.RateLimitConfig.
func (r RateLimitConfig) ToTransportRateLimit() transport.RateLimitConfig {
	return transport.RateLimitConfig{RatePerSecond: r.RatePerSecond, Burst: r.Burst}
}

// Config is the top-level council configuration file.
type Config struct {
	Version   string           `yaml:"version"`
	Agents    []AgentConfig    `yaml:"agents"`
	Session   SessionConfig    `yaml:"session"`
	Schedule  SchedulingConfig `yaml:"schedule"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Transport TransportConfig  `yaml:"transport"`
}

// NewDefaultConfig returns a configuration with sensible defaults and no
// agents, for a caller to fill in.
func NewDefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return &Config{
		Version: "1.0",
		Agents:  []AgentConfig{},
		Session: SessionConfig{
			MaxTurns:       40,
			BiddingTimeout: 8 * time.Second,
		},
		Schedule: SchedulingConfig{
			FairnessWindow:    fairness.DefaultWindow,
			FairnessCap:       fairness.DefaultCap,
			ConflictWindow:    conflict.DefaultWindow,
			ConflictThreshold: conflict.DefaultThreshold,
		},
		Logging: LoggingConfig{
			Enabled:   true,
			LogDir:    fmt.Sprintf("%s/.socratic-council/transcripts", homeDir),
			LogFormat: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Transport: TransportConfig{
			OverallTimeout: transport.DefaultConfig().OverallTimeout,
			IdleTimeout:    transport.DefaultConfig().IdleTimeout,
			Proxy:          ProxyConfig{Type: "none"},
		},
	}
}

// LoadConfig reads, parses, validates, and defaults a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// SaveConfig writes cfg to path as YAML with owner-only permissions.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"google":    true,
	"deepseek":  true,
	"kimi":      true,
}

// Validate checks structural correctness: exactly five uniquely-IDed
// agents with a recognized provider and non-empty API key, and a
// recognized proxy type.
func (c *Config) Validate() error {
	if len(c.Agents) != len(council.AllAgentIDs) {
		return fmt.Errorf("expected %d agents, got %d", len(council.AllAgentIDs), len(c.Agents))
	}

	seen := make(map[string]bool)
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent id cannot be empty")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id: %s", a.ID)
		}
		seen[a.ID] = true

		if !validProviders[a.Provider] {
			return fmt.Errorf("agent %s: unrecognized provider %q", a.ID, a.Provider)
		}
		if a.Model == "" {
			return fmt.Errorf("agent %s: model is required", a.ID)
		}
		if a.APIKey == "" {
			return fmt.Errorf("agent %s: api_key is required", a.ID)
		}
	}

	switch c.Transport.Proxy.Type {
	case "", "none", "http", "https", "socks5", "socks5h":
	default:
		return fmt.Errorf("invalid proxy type: %s", c.Transport.Proxy.Type)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Session.MaxTurns == 0 {
		c.Session.MaxTurns = 40
	}
	if c.Session.BiddingTimeout == 0 {
		c.Session.BiddingTimeout = 8 * time.Second
	}
	if c.Schedule.FairnessWindow == 0 {
		c.Schedule.FairnessWindow = fairness.DefaultWindow
	}
	if c.Schedule.FairnessCap == 0 {
		c.Schedule.FairnessCap = fairness.DefaultCap
	}
	if c.Schedule.ConflictWindow == 0 {
		c.Schedule.ConflictWindow = conflict.DefaultWindow
	}
	if c.Schedule.ConflictThreshold == 0 {
		c.Schedule.ConflictThreshold = conflict.DefaultThreshold
	}
	if c.Logging.LogFormat == "" {
		c.Logging.LogFormat = "text"
	}
	if c.Logging.LogDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		c.Logging.LogDir = fmt.Sprintf("%s/.socratic-council/transcripts", homeDir)
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Transport.OverallTimeout == 0 {
		c.Transport.OverallTimeout = transport.DefaultConfig().OverallTimeout
	}
	if c.Transport.IdleTimeout == 0 {
		c.Transport.IdleTimeout = transport.DefaultConfig().IdleTimeout
	}
	if c.Transport.Proxy.Type == "" {
		c.Transport.Proxy.Type = "none"
	}

	for i := range c.Agents {
		if c.Agents[i].Temperature == nil {
			t := 0.7
			c.Agents[i].Temperature = &t
		}
		if c.Agents[i].MaxOutputTokens == nil {
			m := 2000
			c.Agents[i].MaxOutputTokens = &m
		}
	}
}

// ToTransportProxy converts the on-disk proxy shape to transport.ProxyConfig.
func (p ProxyConfig) ToTransportProxy() transport.ProxyConfig {
	return transport.ProxyConfig{
		Type: transport.ProxyType(p.Type),
		Host: p.Host,
		Port: p.Port,
	}
}

// ToAgents converts the on-disk agent list to council.Agent values,
// keyed by id, for NewCouncilState.
func (c *Config) ToAgents() map[council.AgentID]council.Agent {
	out := make(map[council.AgentID]council.Agent, len(c.Agents))
	for _, a := range c.Agents {
		out[council.AgentID(a.ID)] = council.Agent{
			ID:              council.AgentID(a.ID),
			Name:            a.Name,
			Provider:        a.Provider,
			Model:           a.Model,
			SystemPrompt:    a.SystemPrompt,
			Temperature:     a.Temperature,
			MaxOutputTokens: a.MaxOutputTokens,
		}
	}
	return out
}

// ToSessionConfig converts the on-disk session block to council.SessionConfig.
func (c *Config) ToSessionConfig() council.SessionConfig {
	return council.SessionConfig{
		Topic:          c.Session.Topic,
		MaxTurns:       c.Session.MaxTurns,
		BiddingTimeout: c.Session.BiddingTimeout,
		BudgetUSD:      c.Session.BudgetUSD,
		AutoMode:       c.Session.AutoMode,
	}
}
