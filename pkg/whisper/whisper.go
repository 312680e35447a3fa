// Package whisper implements private inter-agent messaging and the
// pending bid-bonus accumulator it deposits into.
package whisper

import (
	"time"

	"github.com/socratic-council/council/pkg/council"
)

// Manager owns the whisper log and the pending-bonus map, operating
// directly on the council.WhisperState embedded in the session state so
// whispers and undelivered bonuses survive export/import. Not safe for
// concurrent use; callers serialize access (the orchestrator's
// single-writer loop, or a host-side mutex around SendWhisper calls
// arriving from outside it).
type Manager struct {
	state *council.WhisperState
}

// NewManager returns a manager over a fresh, empty whisper state.
func NewManager() *Manager {
	return NewManagerFromState(&council.WhisperState{})
}

// NewManagerFromState wraps an existing whisper state, e.g. one
// reconstructed by ImportState, back-filling the pending map when an
// older export omitted it.
func NewManagerFromState(state *council.WhisperState) *Manager {
	if state.Pending == nil {
		state.Pending = make(map[council.AgentID]float64)
	}
	return &Manager{state: state}
}

// Send appends a timestamped record and, if bidBonus is present,
// accumulates it into pending[to] clamped to [0,20]
// (accumulate-then-clamp, not max-with-existing).
func (m *Manager) Send(from, to council.AgentID, content string, bidBonus float64, hasBidBonus bool) council.WhisperRecord {
	rec := council.WhisperRecord{From: from, To: to, Content: content, Timestamp: time.Now()}
	if hasBidBonus {
		rec.BidBonus = bidBonus
		next := m.state.Pending[to] + bidBonus
		if next < 0 {
			next = 0
		}
		if next > 20 {
			next = 20
		}
		m.state.Pending[to] = next
	}
	m.state.Log = append(m.state.Log, rec)
	return rec
}

// ConsumeBonuses snapshots and zeroes the pending-bonus map. The
// snapshot is meant to back exactly one bidding round; callers
// must not reuse it across rounds.
func (m *Manager) ConsumeBonuses() map[council.AgentID]float64 {
	snapshot := m.state.Pending
	m.state.Pending = make(map[council.AgentID]float64, len(snapshot))
	return snapshot
}

// Log returns the full whisper history in send order.
func (m *Manager) Log() []council.WhisperRecord {
	out := make([]council.WhisperRecord, len(m.state.Log))
	copy(out, m.state.Log)
	return out
}

// Pending returns the current bonus for one agent without consuming it,
// used for diagnostics/display.
func (m *Manager) Pending(agent council.AgentID) float64 {
	return m.state.Pending[agent]
}
