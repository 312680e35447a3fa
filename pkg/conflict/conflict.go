// Package conflict implements pairwise tension scoring across the
// transcript and the bounded dyadic exchange it can trigger.
package conflict

import (
	"regexp"
	"strings"

	"github.com/socratic-council/council/pkg/council"
)

// DefaultWindow is the number of trailing messages considered on each
// re-evaluation.
const DefaultWindow = 8

// DefaultThreshold is the score, on the 0..100 scale, above which a pair
// becomes eligible to open a dyadic exchange.
const DefaultThreshold = 50.0

// DefaultExchangeTurns is the bounded length of a dyadic exchange once
// opened.
const DefaultExchangeTurns = 3

var (
	disagreementMarkers = []string{
		"disagree", "incorrect", "unsupported", "refute", "wrong", "false",
		"not true", "contradicts", "doubt", "flawed", "mistaken",
	}
	cooperativeMarkers = []string{
		"agreed", "agree", "fair point", "concur", "well put", "good point", "makes sense",
	}
	// strongNegation markers stand alone as a negating particle ("cannot
	// imply") and are weighted higher than weakNegation markers, which
	// bury the negation inside the claim's vocabulary itself ("fails",
	// "infeasibility") and so carry a weaker contradiction signal.
	strongNegationMarkers = []string{"not", "cannot", "can't", "n't", "never", "no "}
	weakNegationMarkers   = []string{"fails", "infeasib"}
)

// Record is one pairwise tension score.
type Record struct {
	A     council.AgentID
	B     council.AgentID
	Score float64
}

// Evaluation is the result of scoring every pair present in the window.
type Evaluation struct {
	Pairs     []Record
	Strongest *Record
}

// Detector holds configuration for pairwise scoring; it carries no
// mutable state of its own (the active exchange lives in
// council.CouncilState, which has a single writer).
type Detector struct {
	Window    int
	Threshold float64
}

// NewDetector returns a detector with the documented defaults applied to
// any zero fields.
func NewDetector(window int, threshold float64) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{Window: window, Threshold: threshold}
}

func tail(messages []council.Message, n int) []council.Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

func countMarkers(text string, markers []string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, m := range markers {
		count += strings.Count(lower, m)
	}
	return count
}

// lexicalOverlap returns the fraction of words shared between two
// strings over the smaller word set, a coarse proxy for "the same claim
// being discussed" used to detect implicit contradiction alongside
// negation.
func lexicalOverlap(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	shared := 0
	for w := range wordsA {
		if wordsB[w] {
			shared++
		}
	}
	small := len(wordsA)
	if len(wordsB) < small {
		small = len(wordsB)
	}
	return float64(shared) / float64(small)
}

var wordSplitter = regexp.MustCompile(`[a-zA-Z']+`)

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordSplitter.FindAllString(strings.ToLower(s), -1) {
		if len(w) > 3 {
			out[w] = true
		}
	}
	return out
}

// negationWeight scores how strongly text negates a claim: each
// standalone negating particle counts double a negation embedded in the
// claim's own vocabulary (see strongNegationMarkers/weakNegationMarkers).
func negationWeight(text string) float64 {
	lower := strings.ToLower(text)
	weight := 0.0
	for _, m := range strongNegationMarkers {
		weight += 2 * float64(strings.Count(lower, m))
	}
	for _, m := range weakNegationMarkers {
		weight += float64(strings.Count(lower, m))
	}
	return weight
}

// scorePair computes the 0..100 tension score between A and B over the
// given window of messages from four signals:
// disagreement-marker density, alternation, implicit contradiction
// (negation + lexical overlap), and cooperative-marker decay weighted
// toward the later part of the window.
func scorePair(window []council.Message, a, b council.AgentID) float64 {
	var aMsgs, bMsgs []council.Message
	var order []council.AgentID

	for _, m := range window {
		switch m.Source {
		case council.Source(a):
			aMsgs = append(aMsgs, m)
			order = append(order, a)
		case council.Source(b):
			bMsgs = append(bMsgs, m)
			order = append(order, b)
		}
	}
	if len(aMsgs) == 0 || len(bMsgs) == 0 {
		return 0
	}

	score := 0.0

	// Disagreement-marker density: each marker occurrence in either
	// speaker's messages raises tension, capped so a single rant can't
	// dominate the score.
	markerHits := 0
	for _, m := range aMsgs {
		markerHits += countMarkers(m.Content, disagreementMarkers)
	}
	for _, m := range bMsgs {
		markerHits += countMarkers(m.Content, disagreementMarkers)
	}
	density := float64(markerHits) * 18
	if density > 70 {
		density = 70
	}
	score += density

	// Alternation: the pair trading turns back and forth is a stronger
	// tension signal than one speaker dominating the window.
	alternations := 0
	for i := 1; i < len(order); i++ {
		if order[i] != order[i-1] {
			alternations++
		}
	}
	if len(order) > 1 {
		score += 20 * float64(alternations) / float64(len(order)-1)
	}

	// Implicit contradiction: negation present alongside lexical overlap
	// between the two speakers' claims, checked across every cross pair
	// of messages in the window.
	contradiction := 0.0
	for _, am := range aMsgs {
		for _, bm := range bMsgs {
			overlap := lexicalOverlap(am.Content, bm.Content)
			if overlap == 0 {
				continue
			}
			weight := negationWeight(am.Content) + negationWeight(bm.Content)
			if weight > 0 {
				c := overlap * weight * 7.5
				if c > contradiction {
					contradiction = c
				}
			}
		}
	}
	score += contradiction

	// Cooperative decay: markers occurring later in the window matter
	// more, so a late "fair point, agreed" cools a hot exchange faster
	// than the same phrase buried at the start.
	decay := 0.0
	n := len(window)
	for i, m := range window {
		if m.Source != council.Source(a) && m.Source != council.Source(b) {
			continue
		}
		hits := countMarkers(m.Content, cooperativeMarkers)
		if hits == 0 {
			continue
		}
		recency := float64(i+1) / float64(n)
		decay += float64(hits) * 20 * recency
	}
	score -= decay

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func pairsInWindow(window []council.Message) [][2]council.AgentID {
	seen := make(map[[2]council.AgentID]bool)
	var order [][2]council.AgentID
	var speakers []council.AgentID
	seenSpeaker := make(map[council.AgentID]bool)
	for _, m := range window {
		if !m.Source.IsAgent() {
			continue
		}
		agent := council.AgentID(m.Source)
		if !seenSpeaker[agent] {
			seenSpeaker[agent] = true
			speakers = append(speakers, agent)
		}
	}
	for i := 0; i < len(speakers); i++ {
		for j := i + 1; j < len(speakers); j++ {
			a, b := speakers[i], speakers[j]
			key := pairKey(a, b)
			if !seen[key] {
				seen[key] = true
				order = append(order, key)
			}
		}
	}
	return order
}

func pairKey(a, b council.AgentID) [2]council.AgentID {
	if a < b {
		return [2]council.AgentID{a, b}
	}
	return [2]council.AgentID{b, a}
}

// EvaluateAll scores every pair of agents that spoke within the
// detector's window and reports the strongest.
func (d *Detector) EvaluateAll(messages []council.Message) Evaluation {
	window := tail(messages, d.Window)
	pairs := pairsInWindow(window)

	eval := Evaluation{Pairs: make([]Record, 0, len(pairs))}
	for _, p := range pairs {
		score := scorePair(window, p[0], p[1])
		rec := Record{A: p[0], B: p[1], Score: score}
		eval.Pairs = append(eval.Pairs, rec)
		if eval.Strongest == nil || rec.Score > eval.Strongest.Score {
			cp := rec
			eval.Strongest = &cp
		}
	}
	return eval
}

// Evaluate scores a single pair, or returns (Record{}, false) if the
// pair scores zero within the window (as when neither agent spoke).
func (d *Detector) Evaluate(messages []council.Message, a, b council.AgentID) (Record, bool) {
	window := tail(messages, d.Window)
	score := scorePair(window, a, b)
	if score == 0 {
		return Record{}, false
	}
	return Record{A: a, B: b, Score: score}, true
}

// ShouldActivate reports whether rec crosses the activation threshold.
func (d *Detector) ShouldActivate(rec Record) bool {
	return rec.Score >= d.Threshold
}
