// Package oracle implements the inline tool-call contract agents invoke
// via `@tool(<name>,<json-args>)` directives.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// DefaultCallTimeout is the per-call timeout applied to each dispatched
// tool invocation.
const DefaultCallTimeout = 12 * time.Second

const (
	ToolSearch = "oracle.search"
	ToolVerify = "oracle.verify"
	ToolCite   = "oracle.cite"
)

// directivePattern matches `@tool(<name>,<json-object>)`, non-greedily,
// tolerating optional whitespace after the comma.
var directivePattern = regexp.MustCompile(`(?s)@tool\(\s*([a-zA-Z0-9_.]+)\s*,\s*(\{.*?\})\s*\)`)

// Call is one parsed tool invocation directive.
type Call struct {
	Name    string
	RawArgs string
	Match   string // the full matched directive text, for stripping
}

// Extract scans text for up to max recognized tool directives, in the
// order they appear. Unrecognized tool names and directives with
// malformed JSON args are silently dropped, not surfaced as errors.
func Extract(text string, max int) []Call {
	matches := directivePattern.FindAllStringSubmatchIndex(text, -1)
	var calls []Call
	for _, m := range matches {
		name := text[m[2]:m[3]]
		args := text[m[4]:m[5]]
		if !isRecognized(name) {
			continue
		}
		if !json.Valid([]byte(args)) {
			continue
		}
		calls = append(calls, Call{Name: name, RawArgs: args, Match: text[m[0]:m[1]]})
		if len(calls) >= max {
			break
		}
	}
	return calls
}

func isRecognized(name string) bool {
	switch name {
	case ToolSearch, ToolVerify, ToolCite:
		return true
	default:
		return false
	}
}

// Strip removes every matched directive (recognized or not — the
// orchestrator only ever passes the calls it actually dispatched, but
// the final displayed message must not show any @tool(...) text) from
// text, returning the cleaned result.
func Strip(text string) string {
	return directivePattern.ReplaceAllString(text, "")
}

// Backend performs the actual oracle lookups; the real web-search
// implementation is an external collaborator outside this module. A
// no-op/stub backend is adequate for exercising the tool-call loop in
// tests.
type Backend interface {
	Search(ctx context.Context, query string) (string, error)
	Verify(ctx context.Context, claim string) (string, error)
	Cite(ctx context.Context, topic string) (string, error)
}

// Result is one dispatched tool call's outcome, formatted for the
// transcript as "Tool result (<name>): <text>" or "... Error: <message>".
type Result struct {
	Call    Call
	Content string
	Err     error
}

// FormattedContent renders the transcript-ready text for a result.
func (r Result) FormattedContent() string {
	if r.Err != nil {
		return fmt.Sprintf("Tool result (%s): Error: %s", r.Call.Name, r.Err.Error())
	}
	return fmt.Sprintf("Tool result (%s): %s", r.Call.Name, r.Content)
}

type searchArgs struct {
	Query string `json:"query"`
}
type verifyArgs struct {
	Claim string `json:"claim"`
}
type citeArgs struct {
	Topic string `json:"topic"`
}

// DisabledBackend is the default Backend for a host that hasn't wired a
// real web-search facility: every call fails with a clear error instead
// of silently returning empty content, so an unwired oracle surfaces in
// the transcript rather than producing convincing-looking silence.
type DisabledBackend struct{}

func (DisabledBackend) Search(ctx context.Context, query string) (string, error) {
	return "", fmt.Errorf("oracle: no search backend configured")
}

func (DisabledBackend) Verify(ctx context.Context, claim string) (string, error) {
	return "", fmt.Errorf("oracle: no verification backend configured")
}

func (DisabledBackend) Cite(ctx context.Context, topic string) (string, error) {
	return "", fmt.Errorf("oracle: no citation backend configured")
}

// Dispatch runs one call against backend, decoding its typed argument
// first. A JSON-valid argument that does not decode into the tool's
// argument type (e.g. a field of the wrong type) surfaces as an error
// result rather than being silently dropped, since by this point the
// directive already passed Extract's JSON-validity gate. A missing field
// is not an error: it reaches the backend as an empty string.
func Dispatch(ctx context.Context, backend Backend, call Call) Result {
	switch call.Name {
	case ToolSearch:
		var args searchArgs
		if err := json.Unmarshal([]byte(call.RawArgs), &args); err != nil {
			return Result{Call: call, Err: fmt.Errorf("malformed args: %w", err)}
		}
		content, err := backend.Search(ctx, args.Query)
		return Result{Call: call, Content: content, Err: err}
	case ToolVerify:
		var args verifyArgs
		if err := json.Unmarshal([]byte(call.RawArgs), &args); err != nil {
			return Result{Call: call, Err: fmt.Errorf("malformed args: %w", err)}
		}
		content, err := backend.Verify(ctx, args.Claim)
		return Result{Call: call, Content: content, Err: err}
	case ToolCite:
		var args citeArgs
		if err := json.Unmarshal([]byte(call.RawArgs), &args); err != nil {
			return Result{Call: call, Err: fmt.Errorf("malformed args: %w", err)}
		}
		content, err := backend.Cite(ctx, args.Topic)
		return Result{Call: call, Content: content, Err: err}
	default:
		return Result{Call: call, Err: fmt.Errorf("unknown tool %q", call.Name)}
	}
}

// DispatchAll runs every call concurrently, each wrapped in its own
// timeout derived from ctx, and returns results in the same order as
// calls: dispatched in parallel, each with its own per-call timeout.
func DispatchAll(ctx context.Context, backend Backend, calls []Call, timeout time.Duration) []Result {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	results := make([]Result, len(calls))
	done := make(chan int, len(calls))
	for i, call := range calls {
		go func(i int, call Call) {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			results[i] = Dispatch(callCtx, backend, call)
			done <- i
		}(i, call)
	}
	for range calls {
		<-done
	}
	return results
}
