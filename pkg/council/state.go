package council

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a council session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// SessionConfig is the user-supplied configuration for one council run.
// A zero value is not valid; NewSessionConfig applies the documented
// defaults.
type SessionConfig struct {
	Topic          string
	MaxTurns       int
	BiddingTimeout time.Duration
	BudgetUSD      float64
	AutoMode       bool
}

// NewSessionConfig builds a config for topic with the defaults:
// MaxTurns=40, BiddingTimeout=8s, a zero BudgetUSD meaning unlimited, and
// AutoMode on.
func NewSessionConfig(topic string) SessionConfig {
	return SessionConfig{
		Topic:          topic,
		MaxTurns:       40,
		BiddingTimeout: 8 * time.Second,
		AutoMode:       true,
	}
}

// ConflictRecord holds the most recently evaluated tension score between
// one unordered pair of agents.
type ConflictRecord struct {
	A     AgentID
	B     AgentID
	Score float64
}

// DyadicExchange is the bounded, active restriction-to-a-pair state
// entered once a ConflictRecord crosses the activation threshold.
type DyadicExchange struct {
	A            AgentID
	B            AgentID
	TurnsElapsed int
	MaxTurns     int
	StartedAt    time.Time
}

// Active reports whether this exchange is still restricting eligibility.
func (d *DyadicExchange) Active() bool {
	return d != nil && d.TurnsElapsed < d.MaxTurns
}

// WhisperRecord is one private inter-agent message. Its content is
// opaque to the bidder beyond the optional bonus it carries.
type WhisperRecord struct {
	From      AgentID
	To        AgentID
	Content   string
	BidBonus  float64
	Timestamp time.Time
}

// WhisperState is the whisper log plus the per-agent pending-bonus
// accumulator. It is embedded in CouncilState so a session exported
// mid-run keeps undelivered bonuses and the whisper history across
// import; the whisper manager is reconstructed over it on resume.
type WhisperState struct {
	Log     []WhisperRecord
	Pending map[AgentID]float64
}

// CouncilState is the full, serializable state of one session.
// SchemaVersion defaults to 1; ImportState back-fills it when absent
// from older exports.
type CouncilState struct {
	SchemaVersion int
	SessionID     string
	Config        SessionConfig
	Agents        map[AgentID]Agent
	Messages      []Message
	TurnNumber    int
	Cost          CostBreakdown
	Whisper       WhisperState
	Conflicts     map[AgentID]map[AgentID]*ConflictRecord
	Active        *DyadicExchange
	Status        Status
	StartedAt     time.Time
	CompletedAt   *time.Time
}

const CurrentSchemaVersion = 1

// NewCouncilState builds a fresh, idle session for the given config and
// seat assignments.
func NewCouncilState(cfg SessionConfig, agents map[AgentID]Agent) *CouncilState {
	return &CouncilState{
		SchemaVersion: CurrentSchemaVersion,
		SessionID:     uuid.NewString(),
		Config:        cfg,
		Agents:        agents,
		Messages:      make([]Message, 0, 64),
		Cost:          NewCostBreakdown(),
		Whisper:       WhisperState{Pending: make(map[AgentID]float64)},
		Conflicts:     make(map[AgentID]map[AgentID]*ConflictRecord),
		Status:        StatusIdle,
		StartedAt:     time.Now(),
	}
}

// ConflictRecord returns the record for the unordered pair (a, b),
// creating it on first access. A/B in a new record keep the argument
// order of the call that created it; the orchestrator passes pairs in
// the conflict detector's alphabetical order.
func (s *CouncilState) ConflictRecord(a, b AgentID) *ConflictRecord {
	if s.Conflicts[a] == nil {
		s.Conflicts[a] = make(map[AgentID]*ConflictRecord)
	}
	if s.Conflicts[b] == nil {
		s.Conflicts[b] = make(map[AgentID]*ConflictRecord)
	}
	if rec, ok := s.Conflicts[a][b]; ok {
		return rec
	}
	if rec, ok := s.Conflicts[b][a]; ok {
		return rec
	}
	rec := &ConflictRecord{A: a, B: b}
	s.Conflicts[a][b] = rec
	s.Conflicts[b][a] = rec
	return rec
}

// AgentTurnCount counts messages in the transcript attributed to agents,
// which is the invariant definition of "turn".
func (s *CouncilState) AgentTurnCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.IsAgentMessage() {
			n++
		}
	}
	return n
}
