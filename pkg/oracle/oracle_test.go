package oracle

import (
	"context"
	"errors"
	"testing"
)

type stubBackend struct {
	searchResult string
	searchErr    error
}

func (s stubBackend) Search(ctx context.Context, query string) (string, error) {
	return s.searchResult, s.searchErr
}
func (s stubBackend) Verify(ctx context.Context, claim string) (string, error) {
	return "verified: " + claim, nil
}
func (s stubBackend) Cite(ctx context.Context, topic string) (string, error) {
	return "citation for " + topic, nil
}

func TestExtractRecognizesAllThreeTools(t *testing.T) {
	text := `Let me check. @tool(oracle.search,{"query":"go generics"}) and also @tool(oracle.cite,{"topic":"history"})`
	calls := Extract(text, 3)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d: %+v", len(calls), calls)
	}
	if calls[0].Name != ToolSearch || calls[1].Name != ToolCite {
		t.Fatalf("unexpected call order: %+v", calls)
	}
}

func TestExtractDropsUnrecognizedTool(t *testing.T) {
	text := `@tool(oracle.delete,{"id":"1"})`
	calls := Extract(text, 3)
	if len(calls) != 0 {
		t.Fatalf("expected unrecognized tool dropped, got %+v", calls)
	}
}

func TestExtractDropsMalformedJSON(t *testing.T) {
	text := `@tool(oracle.search,{"query": not valid json})`
	calls := Extract(text, 3)
	if len(calls) != 0 {
		t.Fatalf("expected malformed JSON dropped, got %+v", calls)
	}
}

func TestExtractRespectsMax(t *testing.T) {
	text := `@tool(oracle.search,{"query":"a"}) @tool(oracle.search,{"query":"b"}) @tool(oracle.search,{"query":"c"}) @tool(oracle.search,{"query":"d"})`
	calls := Extract(text, 3)
	if len(calls) != 3 {
		t.Fatalf("expected extraction capped at 3, got %d", len(calls))
	}
}

func TestStripRemovesDirectivesText(t *testing.T) {
	text := `Before @tool(oracle.search,{"query":"x"}) after.`
	got := Strip(text)
	if got != "Before  after." {
		t.Fatalf("got %q", got)
	}
}

func TestDispatchSuccess(t *testing.T) {
	backend := stubBackend{searchResult: "some facts"}
	call := Call{Name: ToolSearch, RawArgs: `{"query":"go"}`}
	result := Dispatch(context.Background(), backend, call)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.FormattedContent() != "Tool result (oracle.search): some facts" {
		t.Fatalf("got %q", result.FormattedContent())
	}
}

func TestDispatchBackendError(t *testing.T) {
	backend := stubBackend{searchErr: errors.New("network down")}
	call := Call{Name: ToolSearch, RawArgs: `{"query":"go"}`}
	result := Dispatch(context.Background(), backend, call)
	if result.Err == nil {
		t.Fatalf("expected an error")
	}
	if result.FormattedContent() != "Tool result (oracle.search): Error: network down" {
		t.Fatalf("got %q", result.FormattedContent())
	}
}

func TestDispatchAllPreservesOrder(t *testing.T) {
	backend := stubBackend{}
	calls := []Call{
		{Name: ToolVerify, RawArgs: `{"claim":"a"}`},
		{Name: ToolCite, RawArgs: `{"topic":"b"}`},
		{Name: ToolVerify, RawArgs: `{"claim":"c"}`},
	}
	results := DispatchAll(context.Background(), backend, calls, 0)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Content != "verified: a" || results[1].Content != "citation for b" || results[2].Content != "verified: c" {
		t.Fatalf("results out of order: %+v", results)
	}
}
