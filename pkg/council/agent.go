// Package council implements the Socratic Council orchestration core: the
// data model (agents, messages, session state), the top-level turn loop,
// and the event contract exposed to a host shell.
package council

// AgentID identifies one of the five fixed council seats. The symbols are
// stable and arbitrary — they carry no behavioral meaning beyond identity.
type AgentID string

const (
	AgentG AgentID = "G"
	AgentC AgentID = "C"
	AgentF AgentID = "F"
	AgentS AgentID = "S"
	AgentH AgentID = "H"
)

// AllAgentIDs lists the five seats in canonical order.
var AllAgentIDs = []AgentID{AgentG, AgentC, AgentF, AgentS, AgentH}

// DefaultNicknames maps each seat to its default display name. Purely
// cosmetic — nothing in the scheduler or providers keys off of these.
var DefaultNicknames = map[AgentID]string{
	AgentG: "George",
	AgentC: "Cathy",
	AgentF: "Grace",
	AgentS: "Douglas",
	AgentH: "Kate",
}

// Agent is a named persona bound to one model of one provider. It is
// immutable for the lifetime of a session except for Model, which the
// orchestrator may rewrite on a 404-family provider fallback.
type Agent struct {
	ID              AgentID
	Name            string
	Provider        string // "openai", "anthropic", "google", "deepseek", "kimi"
	Model           string
	SystemPrompt    string
	Temperature     *float64
	MaxOutputTokens *int
}

// Clone returns a deep copy, used whenever a snapshot must outlive a
// concurrent rewrite of Model by the orchestrator.
func (a Agent) Clone() Agent {
	out := a
	if a.Temperature != nil {
		t := *a.Temperature
		out.Temperature = &t
	}
	if a.MaxOutputTokens != nil {
		m := *a.MaxOutputTokens
		out.MaxOutputTokens = &m
	}
	return out
}
