package council

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// exportedState is the on-disk JSON shape for a CouncilState. It is kept
// distinct from CouncilState itself so persistence can evolve (e.g. the
// map[AgentID]map[AgentID]*ConflictRecord structure, which round-trips
// awkwardly through encoding/json's map-key handling) without disturbing
// the in-memory type.
type exportedState struct {
	SchemaVersion int                `json:"schema_version"`
	SessionID     string             `json:"session_id"`
	Config        SessionConfig      `json:"config"`
	Agents        map[AgentID]Agent  `json:"agents"`
	Messages      []Message          `json:"messages"`
	TurnNumber    int                `json:"turn_number"`
	Cost          CostBreakdown      `json:"cost"`
	Whisper       WhisperState       `json:"whisper"`
	Conflicts     []ConflictRecord   `json:"conflicts"`
	Active        *DyadicExchange    `json:"active_exchange,omitempty"`
	Status        Status             `json:"status"`
	StartedAt     string             `json:"started_at"`
	CompletedAt   *string            `json:"completed_at,omitempty"`
}

// ExportState serializes the full session state to JSON.
func ExportState(s *CouncilState) ([]byte, error) {
	out := exportedState{
		SchemaVersion: s.SchemaVersion,
		SessionID:     s.SessionID,
		Config:        s.Config,
		Agents:        s.Agents,
		Messages:      s.Messages,
		TurnNumber:    s.TurnNumber,
		Cost:          s.Cost,
		Whisper:       s.Whisper,
		Active:        s.Active,
		Status:        s.Status,
		StartedAt:     s.StartedAt.Format(rfc3339Milli),
	}
	if s.CompletedAt != nil {
		ts := s.CompletedAt.Format(rfc3339Milli)
		out.CompletedAt = &ts
	}

	seen := make(map[[2]AgentID]bool)
	for a, inner := range s.Conflicts {
		for b, rec := range inner {
			key := pairKey(a, b)
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Conflicts = append(out.Conflicts, *rec)
		}
	}

	return json.MarshalIndent(out, "", "  ")
}

// ImportState deserializes JSON produced by ExportState (or an older
// export missing schema_version, which defaults to 1 per the Open
// Questions decision).
func ImportState(data []byte) (*CouncilState, error) {
	var in exportedState
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("council: decode state: %w", err)
	}

	version := in.SchemaVersion
	if version == 0 {
		version = 1
	}

	started, err := parseTimestamp(in.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("council: decode started_at: %w", err)
	}

	s := &CouncilState{
		SchemaVersion: version,
		SessionID:     in.SessionID,
		Config:        in.Config,
		Agents:        in.Agents,
		Messages:      in.Messages,
		TurnNumber:    in.TurnNumber,
		Cost:          in.Cost,
		Whisper:       in.Whisper,
		Conflicts:     make(map[AgentID]map[AgentID]*ConflictRecord),
		Active:        in.Active,
		Status:        in.Status,
		StartedAt:     started,
	}
	if in.CompletedAt != nil {
		ts, err := parseTimestamp(*in.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("council: decode completed_at: %w", err)
		}
		s.CompletedAt = &ts
	}
	if s.Cost.PerAgent == nil {
		s.Cost.PerAgent = make(map[AgentID]*AgentCost)
	}
	if s.Whisper.Pending == nil {
		s.Whisper.Pending = make(map[AgentID]float64)
	}

	for i := range in.Conflicts {
		rec := in.Conflicts[i]
		if s.Conflicts[rec.A] == nil {
			s.Conflicts[rec.A] = make(map[AgentID]*ConflictRecord)
		}
		if s.Conflicts[rec.B] == nil {
			s.Conflicts[rec.B] = make(map[AgentID]*ConflictRecord)
		}
		stored := rec
		s.Conflicts[rec.A][rec.B] = &stored
		s.Conflicts[rec.B][rec.A] = &stored
	}

	return s, nil
}

// SaveState writes an exported state to disk at 0600, creating parent
// directories as needed.
func SaveState(s *CouncilState, path string) error {
	data, err := ExportState(s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("council: create state dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadState reads and decodes a state file previously written by
// SaveState.
func LoadState(path string) (*CouncilState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("council: read state file: %w", err)
	}
	return ImportState(data)
}

func pairKey(a, b AgentID) [2]AgentID {
	if a < b {
		return [2]AgentID{a, b}
	}
	return [2]AgentID{b, a}
}
