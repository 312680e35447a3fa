// Package provideradapter implements the per-provider request shaping,
// header construction, SSE framing, and token accounting that sits
// between the council orchestrator and the transport layer. Each
// concrete provider lives in its own file and registers itself via
// RegisterFactory from an init function in that file.
package provideradapter

import (
	"context"
	"fmt"

	"github.com/socratic-council/council/pkg/transport"
)

// Role identifies a conversation entry's speaker within the unified
// conversation shape every adapter consumes.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a Conversation.
type Turn struct {
	Role Role
	Text string
}

// Conversation is the ordered, provider-agnostic input to a completion
// call.
type Conversation []Turn

// FinishReason classifies how a completion ended.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishError  FinishReason = "error"
)

// CompletionResult is the unified output of complete/completeStream
//. Token counts default to zero when a provider doesn't report
// them; they are never fabricated.
type CompletionResult struct {
	Content         string
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
	HasReasoning    bool
	FinishReason    FinishReason
	LatencyMS       int64
}

// Options carries per-call tuning that overrides an agent's defaults.
type Options struct {
	Temperature     *float64
	MaxOutputTokens *int
}

// ErrModelNotFound is returned (wrapped) by an adapter when the
// provider's response indicates a 404-family "model not found" error,
// the signal the orchestrator's model-fallback step watches for.
var ErrModelNotFound = fmt.Errorf("provideradapter: model not found")

// ChunkFunc receives incremental content deltas during a streaming call.
type ChunkFunc func(delta string)

// Credentials is the per-provider auth material an adapter needs.
type Credentials struct {
	APIKey  string
	BaseURL string // optional override

	// Transport overrides the transport timeouts/proxy this adapter's
	// requests use. A zero value (both timeouts unset) falls back to
	// transport.DefaultConfig() in each adapter's constructor, so a CLI
	// that never sets this field keeps the documented defaults.
	Transport transport.Config
}

// ResolveTransportConfig returns c's transport override, applying the
// spec's documented timeout defaults when both are left at their zero
// value. Proxy and RateLimit are always carried through unchanged, so a
// caller that only sets those two fields doesn't also need to restate
// the default timeouts.
func (c Credentials) ResolveTransportConfig() transport.Config {
	cfg := c.Transport
	if cfg.OverallTimeout == 0 && cfg.IdleTimeout == 0 {
		cfg.OverallTimeout = transport.DefaultConfig().OverallTimeout
		cfg.IdleTimeout = transport.DefaultConfig().IdleTimeout
	}
	return cfg
}

// Adapter is the unified per-provider capability set.
type Adapter interface {
	Complete(ctx context.Context, model string, conv Conversation, opts Options) (CompletionResult, error)
	CompleteStream(ctx context.Context, model string, conv Conversation, opts Options, onChunk ChunkFunc) (CompletionResult, error)
	TestConnection(ctx context.Context, model string) bool
}

// Factory constructs an Adapter from credentials.
type Factory func(creds Credentials) (Adapter, error)

var registry = make(map[string]Factory)

// RegisterFactory registers a provider's constructor under name (e.g.
// "openai", "anthropic", "google", "deepseek", "kimi"). Intended to be
// called from each provider file's init().
func RegisterFactory(name string, factory Factory) {
	registry[name] = factory
}

// New builds the adapter registered under name.
func New(name string, creds Credentials) (Adapter, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("provideradapter: unknown provider %q", name)
	}
	return factory(creds)
}

// resolveEndpoint appends suffix to base unless base already ends with
// it, after stripping any trailing slash.
func resolveEndpoint(base, suffix string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if len(base) >= len(suffix) && base[len(base)-len(suffix):] == suffix {
		return base
	}
	return base + suffix
}

func clampTemperature(t *float64, lo, hi float64) *float64 {
	if t == nil {
		return nil
	}
	v := *t
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return &v
}
