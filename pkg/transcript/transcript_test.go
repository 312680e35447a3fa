package transcript

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/socratic-council/council/pkg/council"
)

func TestWriteMessageTextModeIncludesAgentName(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, FormatText, 80, false)
	msg := council.Message{
		Source:    "ada",
		Content:   "I disagree with that premise.",
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	w.WriteMessage(msg, map[council.AgentID]string{"ada": "Ada"})
	out := buf.String()
	if !strings.Contains(out, "Ada") {
		t.Fatalf("expected agent display name in output, got %q", out)
	}
	if !strings.Contains(out, "disagree") {
		t.Fatalf("expected message content in output, got %q", out)
	}
}

func TestWriteMessageFallsBackToAgentIDWithoutDisplayName(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, FormatText, 80, false)
	msg := council.Message{Source: "ada", Content: "hello", Timestamp: time.Now()}
	w.WriteMessage(msg, nil)
	if !strings.Contains(buf.String(), "ada") {
		t.Fatalf("expected fallback to raw agent id, got %q", buf.String())
	}
}

func TestWriteMessageSystemUsesBadge(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, FormatText, 80, false)
	w.WriteMessage(council.Message{Source: council.SourceSystem, Content: "session started"}, nil)
	if !strings.Contains(buf.String(), "SYSTEM") {
		t.Fatalf("expected SYSTEM badge, got %q", buf.String())
	}
}

func TestWriteMessageToolUsesBadge(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, FormatText, 80, false)
	w.WriteMessage(council.Message{Source: council.SourceTool, Content: "search results"}, nil)
	if !strings.Contains(buf.String(), "TOOL") {
		t.Fatalf("expected TOOL badge, got %q", buf.String())
	}
}

func TestWriteMessageShowsMetricsWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, FormatText, 80, true)
	msg := council.Message{
		Source:   "ada",
		Content:  "hi",
		Usage:    &council.Usage{InputTokens: 10, OutputTokens: 20},
		Metadata: &council.MessageMetadata{LatencyMS: 150},
	}
	w.WriteMessage(msg, nil)
	out := buf.String()
	if !strings.Contains(out, "10 in") || !strings.Contains(out, "20 out") {
		t.Fatalf("expected token metrics in output, got %q", out)
	}
}

func TestWriteMessageOmitsMetricsWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, FormatText, 80, false)
	msg := council.Message{
		Source:  "ada",
		Content: "hi",
		Usage:   &council.Usage{InputTokens: 10, OutputTokens: 20},
	}
	w.WriteMessage(msg, nil)
	if strings.Contains(buf.String(), "10 in") {
		t.Fatalf("did not expect metrics in output: %q", buf.String())
	}
}

func TestWriteMessageJSONModeEmitsOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, FormatJSON, 80, false)
	w.WriteMessage(council.Message{Source: "ada", Content: "hi", Timestamp: time.Now()}, nil)
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", buf.String(), err)
	}
	if decoded["content"] != "hi" {
		t.Fatalf("unexpected content field: %+v", decoded)
	}
}

func TestStyleForIsStableAcrossCalls(t *testing.T) {
	w := New(&bytes.Buffer{}, FormatText, 80, false)
	first := w.styleFor("ada")
	second := w.styleFor("ada")
	if first.GetForeground() != second.GetForeground() {
		t.Fatalf("expected stable color assignment for the same agent")
	}
}

func TestStyleForAssignsDistinctColorsToDifferentAgents(t *testing.T) {
	w := New(&bytes.Buffer{}, FormatText, 80, false)
	a := w.styleFor("ada")
	b := w.styleFor("grace")
	if a.GetForeground() == b.GetForeground() {
		t.Fatalf("expected distinct colors for distinct agents")
	}
}

func TestWriteErrorIncludesAgentAndMessage(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, FormatText, 80, false)
	w.WriteError("ada", "connection refused")
	out := buf.String()
	if !strings.Contains(out, "ada") || !strings.Contains(out, "connection refused") {
		t.Fatalf("got %q", out)
	}
}

func TestWrapTextRespectsWidth(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	wrapped := wrapText(text, 20, "")
	for _, line := range strings.Split(wrapped, "\n") {
		if len(line) > 20 {
			t.Fatalf("line exceeds width: %q (%d chars)", line, len(line))
		}
	}
}

func TestWrapTextEmptyStringReturnsIndent(t *testing.T) {
	got := wrapText("", 40, "  ")
	if got != "  " {
		t.Fatalf("got %q", got)
	}
}
