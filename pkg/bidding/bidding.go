// Package bidding implements the scoring function that selects the next
// speaker on every council turn.
package bidding

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/socratic-council/council/pkg/council"
)

// Weights configures the final-score blend and the random ceiling. The
// zero value is not valid; use DefaultWeights.
type Weights struct {
	Urgency    float64
	Relevance  float64
	Confidence float64
	Whisper    float64
	RandomMax  float64
}

// DefaultWeights blends urgency/relevance/confidence/whisper at
// 0.4/0.3/0.2/0.1 plus a uniform(0, 5) jitter ceiling, a modest amount
// chosen so it can break ties without overwhelming the weighted
// signals.
var DefaultWeights = Weights{
	Urgency:    0.4,
	Relevance:  0.3,
	Confidence: 0.2,
	Whisper:    0.1,
	RandomMax:  5.0,
}

// Bid is the per-agent scoring tuple for one round.
type Bid struct {
	Agent      council.AgentID
	Urgency    float64
	Relevance  float64
	Confidence float64
	Whisper    float64
	Final      float64
	Timestamp  time.Time
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// stableJitter derives a deterministic value in [0,1) from the
// (agent, topic) pair by hashing with xxhash and normalizing the result,
// giving each agent a stable personality-level variation across a
// session without any hand-authored per-agent role table.
func stableJitter(agent council.AgentID, topic string) float64 {
	h := xxhash.Sum64String(string(agent) + "\x00" + topic)
	return float64(h%1_000_000) / 1_000_000.0
}

// messagesSinceLastSpoke counts transcript entries after the most recent
// message from agent, scanning from the end. An agent who has never
// spoken is treated as having spoken before the log began,
// i.e. as far back as possible — len(messages).
func messagesSinceLastSpoke(messages []council.Message, agent council.AgentID) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Source == council.Source(agent) {
			return len(messages) - 1 - i
		}
	}
	return len(messages)
}

// mentionCount counts case-insensitive occurrences of the agent id within
// the last n messages (by plain text containment rather than
// word-boundary matching — a mention inside a longer word still
// counts).
func mentionCount(messages []council.Message, agent council.AgentID, n int) int {
	start := len(messages) - n
	if start < 0 {
		start = 0
	}
	needle := strings.ToLower(string(agent))
	count := 0
	for _, m := range messages[start:] {
		count += strings.Count(strings.ToLower(m.Content), needle)
	}
	return count
}

// lastNContainsQuestion reports whether any of the last n messages
// contains a "?".
func lastNContainsQuestion(messages []council.Message, n int) bool {
	start := len(messages) - n
	if start < 0 {
		start = 0
	}
	for _, m := range messages[start:] {
		if strings.Contains(m.Content, "?") {
			return true
		}
	}
	return false
}

// Score computes the raw (pre-fairness) bid for one agent, using rng for
// the uniform draws so callers can inject a seeded source in tests.
func Score(w Weights, messages []council.Message, agent council.AgentID, topic string, pendingWhisper float64, rng *rand.Rand) Bid {
	urgency := clamp(20+15*float64(messagesSinceLastSpoke(messages, agent)), 0, 100)

	mentions := mentionCount(messages, agent, 5)
	relevance := clamp(30+20*float64(mentions)+rng.Float64()*30, 0, 100)

	hasQuestion := 0.0
	if lastNContainsQuestion(messages, 5) {
		hasQuestion = 1.0
	}
	confidence := clamp(45+8*hasQuestion+12*float64(mentions)+15*stableJitter(agent, topic)+rng.Float64()*15, 0, 100)

	whisperBonus := clamp(pendingWhisper, 0, 20)

	final := w.Urgency*urgency + w.Relevance*relevance + w.Confidence*confidence + w.Whisper*whisperBonus + rng.Float64()*w.RandomMax

	return Bid{
		Agent:      agent,
		Urgency:    urgency,
		Relevance:  relevance,
		Confidence: confidence,
		Whisper:    whisperBonus,
		Final:      final,
		Timestamp:  time.Now(),
	}
}

// Round scores every eligible agent and returns the bids in the order
// given by eligible, alongside the index of the winner. Ties are broken
// by first-occurrence in eligible.
func Round(w Weights, messages []council.Message, eligible []council.AgentID, topic string, pendingWhisper map[council.AgentID]float64, rng *rand.Rand) ([]Bid, int) {
	bids := make([]Bid, len(eligible))
	for i, agent := range eligible {
		bids[i] = Score(w, messages, agent, topic, pendingWhisper[agent], rng)
	}

	winner := 0
	for i := 1; i < len(bids); i++ {
		if bids[i].Final > bids[winner].Final {
			winner = i
		}
	}
	return bids, winner
}

// String renders a bid for log/debug output.
func (b Bid) String() string {
	return fmt.Sprintf("%s: urgency=%.1f relevance=%.1f confidence=%.1f whisper=%.1f final=%.1f",
		b.Agent, b.Urgency, b.Relevance, b.Confidence, b.Whisper, b.Final)
}

// SortByFinalDesc returns a copy of bids sorted by descending final
// score, stable on ties so first-occurrence ordering is preserved — used
// for rendering a ranked bid list to the host, not for winner selection
// (which scans in eligible order; see Round).
func SortByFinalDesc(bids []Bid) []Bid {
	out := make([]Bid, len(bids))
	copy(out, bids)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Final > out[j].Final
	})
	return out
}
