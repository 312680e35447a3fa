// Package fairness implements the speaker-rotation window that nudges
// bidding scores away from monopolization.
package fairness

import "github.com/socratic-council/council/pkg/council"

const (
	// DefaultWindow is the FIFO ring size W.
	DefaultWindow = 10
	// DefaultCap is the per-window appearance cap M.
	DefaultCap = 3
)

// Manager tracks a FIFO ring of recent speakers and produces additive
// score adjustments from it. Not safe for concurrent use; the
// orchestrator's single-writer loop owns it.
type Manager struct {
	window []council.AgentID
	size   int
	cap    int
}

// NewManager builds a fairness window. A size or cap of zero falls back
// to the documented defaults.
func NewManager(size, cap int) *Manager {
	if size <= 0 {
		size = DefaultWindow
	}
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Manager{size: size, cap: cap}
}

// RecordSpeaker appends the winning speaker of a turn to the window,
// evicting the oldest entry once the window exceeds its configured size.
func (m *Manager) RecordSpeaker(agent council.AgentID) {
	m.window = append(m.window, agent)
	if len(m.window) > m.size {
		m.window = m.window[len(m.window)-m.size:]
	}
}

func (m *Manager) counts() map[council.AgentID]int {
	counts := make(map[council.AgentID]int, len(m.window))
	for _, a := range m.window {
		counts[a]++
	}
	return counts
}

// Adjustments returns the additive score adjustment for every eligible
// agent: -100 for the most recent speaker, -80 for any agent at
// the per-window cap (both penalties stack when the same agent earns
// both), and once the window holds at least 5 entries, +60 for agents
// absent from the window and +30 for agents appearing exactly once. All
// other cases are 0.
func (m *Manager) Adjustments(eligible []council.AgentID) map[council.AgentID]float64 {
	counts := m.counts()
	var mostRecent council.AgentID
	haveMostRecent := false
	if len(m.window) > 0 {
		mostRecent = m.window[len(m.window)-1]
		haveMostRecent = true
	}

	boostEligible := len(m.window) >= 5

	adjustments := make(map[council.AgentID]float64, len(eligible))
	for _, agent := range eligible {
		adj := 0.0
		if haveMostRecent && agent == mostRecent {
			adj -= 100
		}
		if counts[agent] >= m.cap {
			adj -= 80
		}
		if adj == 0 && boostEligible {
			switch counts[agent] {
			case 0:
				adj = 60
			case 1:
				adj = 30
			}
		}
		adjustments[agent] = adj
	}
	return adjustments
}

// Reset clears the window, used when a new session starts.
func (m *Manager) Reset() {
	m.window = nil
}
