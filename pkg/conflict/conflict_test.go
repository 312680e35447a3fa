package conflict

import (
	"testing"

	"github.com/socratic-council/council/pkg/council"
)

func msg(source council.Source, content string) council.Message {
	return council.Message{Source: source, Content: content}
}

func TestSustainedDisagreementCrossesThreshold(t *testing.T) {
	messages := []council.Message{
		msg(council.Source(council.AgentG), "I disagree with that framing."),
		msg(council.Source(council.AgentS), "That seems incorrect and unsupported."),
		msg(council.Source(council.AgentG), "However, the evidence suggests otherwise."),
		msg(council.Source(council.AgentS), "I still refute that claim."),
	}

	d := NewDetector(6, 50)
	eval := d.EvaluateAll(messages)

	if eval.Strongest == nil {
		t.Fatalf("expected a strongest pair")
	}
	if !((eval.Strongest.A == council.AgentG && eval.Strongest.B == council.AgentS) ||
		(eval.Strongest.A == council.AgentS && eval.Strongest.B == council.AgentG)) {
		t.Fatalf("expected strongest pair to be (G, S), got (%s, %s)", eval.Strongest.A, eval.Strongest.B)
	}
	if !d.ShouldActivate(*eval.Strongest) {
		t.Fatalf("expected score %v to cross threshold 50", eval.Strongest.Score)
	}
}

func TestCoolDownDecaysScoreBelowHot(t *testing.T) {
	hot := []council.Message{
		msg(council.Source(council.AgentG), "I disagree with that framing."),
		msg(council.Source(council.AgentS), "That seems incorrect and unsupported."),
		msg(council.Source(council.AgentG), "However, the evidence suggests otherwise."),
		msg(council.Source(council.AgentS), "I still refute that claim."),
	}
	d := NewDetector(6, 50)
	hotRec, ok := d.Evaluate(hot, council.AgentG, council.AgentS)
	if !ok {
		t.Fatalf("expected a nonzero hot score")
	}

	cooled := append([]council.Message{}, hot...)
	cooperative := []string{"Fair point.", "Agreed, that's reasonable.", "I concur.", "Fair point, well made.", "Agreed.", "We concur on this."}
	for i, phrase := range cooperative {
		speaker := council.AgentG
		if i%2 == 1 {
			speaker = council.AgentS
		}
		cooled = append(cooled, msg(council.Source(speaker), phrase))
	}

	cooledRec, _ := d.Evaluate(cooled, council.AgentG, council.AgentS)

	if cooledRec.Score >= hotRec.Score {
		t.Fatalf("expected cool-down score %v to be strictly less than hot score %v", cooledRec.Score, hotRec.Score)
	}
	if cooledRec.Score >= 75 {
		t.Fatalf("expected cool-down score %v to drop below 75", cooledRec.Score)
	}
}

func TestNegationAddsTension(t *testing.T) {
	base := msg(council.Source(council.AgentG), "A budget constraint implies feasibility.")

	variantA := []council.Message{
		base,
		msg(council.Source(council.AgentS), "That cannot imply feasibility, it fails in most markets."),
	}
	variantB := []council.Message{
		base,
		msg(council.Source(council.AgentS), "That implies infeasibility, it fails in most markets."),
	}

	scoreA := scorePair(variantA, council.AgentG, council.AgentS)
	scoreB := scorePair(variantB, council.AgentG, council.AgentS)

	if !(scoreA > scoreB) {
		t.Fatalf("expected negation variant A (%v) to score higher than variant B (%v)", scoreA, scoreB)
	}
}

func TestEvaluateIdempotentOnUnchangedTranscript(t *testing.T) {
	messages := []council.Message{
		msg(council.Source(council.AgentG), "I disagree with that framing."),
		msg(council.Source(council.AgentS), "That seems incorrect and unsupported."),
	}
	d := NewDetector(6, 50)

	first := d.EvaluateAll(messages)
	second := d.EvaluateAll(messages)

	if len(first.Pairs) != len(second.Pairs) {
		t.Fatalf("expected identical pair count across repeated evaluation")
	}
	for i := range first.Pairs {
		if first.Pairs[i] != second.Pairs[i] {
			t.Fatalf("expected identical scores across repeated evaluation, got %v vs %v", first.Pairs[i], second.Pairs[i])
		}
	}
}

func TestEvaluateNoOverlapReturnsFalse(t *testing.T) {
	messages := []council.Message{
		msg(council.Source(council.AgentG), "hello there"),
	}
	d := NewDetector(6, 50)
	_, ok := d.Evaluate(messages, council.AgentG, council.AgentC)
	if ok {
		t.Fatalf("expected no record when one side never spoke in the window")
	}
}
