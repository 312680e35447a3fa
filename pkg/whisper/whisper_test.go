package whisper

import (
	"testing"

	"github.com/socratic-council/council/pkg/council"
)

func TestSendAccumulatesBonus(t *testing.T) {
	m := NewManager()
	m.Send(council.AgentG, council.AgentC, "watch your flank", 8, true)
	m.Send(council.AgentF, council.AgentC, "agreed", 8, true)

	if got := m.Pending(council.AgentC); got != 16 {
		t.Fatalf("expected accumulated bonus 16, got %v", got)
	}
}

func TestSendClampsAtTwenty(t *testing.T) {
	m := NewManager()
	m.Send(council.AgentG, council.AgentC, "a", 15, true)
	m.Send(council.AgentF, council.AgentC, "b", 15, true)

	if got := m.Pending(council.AgentC); got != 20 {
		t.Fatalf("expected clamp to 20, got %v", got)
	}
}

func TestSendClampsAtZero(t *testing.T) {
	m := NewManager()
	m.Send(council.AgentG, council.AgentC, "a", -50, true)

	if got := m.Pending(council.AgentC); got != 0 {
		t.Fatalf("expected clamp to 0, got %v", got)
	}
}

func TestSendWithoutBonusDoesNotAffectPending(t *testing.T) {
	m := NewManager()
	m.Send(council.AgentG, council.AgentC, "just chatting", 0, false)

	if got := m.Pending(council.AgentC); got != 0 {
		t.Fatalf("expected untouched pending bonus, got %v", got)
	}
	if len(m.Log()) != 1 {
		t.Fatalf("expected the whisper to still be logged")
	}
}

func TestConsumeBonusesSnapshotsAndZeroes(t *testing.T) {
	m := NewManager()
	m.Send(council.AgentG, council.AgentC, "a", 10, true)

	snap := m.ConsumeBonuses()
	if snap[council.AgentC] != 10 {
		t.Fatalf("expected snapshot of 10, got %v", snap[council.AgentC])
	}
	if got := m.Pending(council.AgentC); got != 0 {
		t.Fatalf("expected pending zeroed after consume, got %v", got)
	}
}

func TestNewManagerFromStateResumesPendingBonuses(t *testing.T) {
	state := &council.WhisperState{
		Log:     []council.WhisperRecord{{From: council.AgentG, To: council.AgentC, Content: "a", BidBonus: 12}},
		Pending: map[council.AgentID]float64{council.AgentC: 12},
	}
	m := NewManagerFromState(state)

	if got := m.Pending(council.AgentC); got != 12 {
		t.Fatalf("expected resumed pending bonus 12, got %v", got)
	}
	if len(m.Log()) != 1 {
		t.Fatalf("expected resumed whisper log")
	}
}

func TestNewManagerFromStateBackfillsNilPending(t *testing.T) {
	state := &council.WhisperState{}
	m := NewManagerFromState(state)
	m.Send(council.AgentG, council.AgentC, "a", 5, true)
	if state.Pending[council.AgentC] != 5 {
		t.Fatalf("expected pending map backfilled and written through, got %+v", state.Pending)
	}
}

func TestSendWritesThroughToState(t *testing.T) {
	state := &council.WhisperState{Pending: make(map[council.AgentID]float64)}
	m := NewManagerFromState(state)
	m.Send(council.AgentG, council.AgentC, "psst", 8, true)

	if len(state.Log) != 1 || state.Pending[council.AgentC] != 8 {
		t.Fatalf("expected mutations visible on the embedded state, got %+v / %+v", state.Log, state.Pending)
	}
}

func TestLogIsIndependentCopy(t *testing.T) {
	m := NewManager()
	m.Send(council.AgentG, council.AgentC, "a", 0, false)

	log := m.Log()
	log[0].Content = "mutated"

	if m.Log()[0].Content != "a" {
		t.Fatalf("Log() should return an independent copy")
	}
}
