package provideradapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/socratic-council/council/pkg/transport"
)

func init() {
	RegisterFactory("anthropic", newAnthropicAdapter)
}

const (
	anthropicMessagesPath = "/v1/messages"
	anthropicVersion      = "2023-06-01"

	// CanonicalOpusFallback is the model the orchestrator rewrites an
	// agent to when its configured Anthropic "opus"-family model 404s.
	CanonicalOpusFallback = "claude-opus-4-20250514"
)

type anthropicAdapter struct {
	creds     Credentials
	transport *transport.Transport
}

func newAnthropicAdapter(creds Credentials) (Adapter, error) {
	tr, err := transport.New(creds.ResolveTransportConfig())
	if err != nil {
		return nil, err
	}
	return &anthropicAdapter{creds: creds, transport: tr}, nil
}

func (a *anthropicAdapter) endpoint() string {
	base := a.creds.BaseURL
	if base == "" {
		base = "https://api.anthropic.com"
	}
	return resolveEndpoint(base, anthropicMessagesPath)
}

func (a *anthropicAdapter) headers() http.Header {
	h := http.Header{}
	h.Set("x-api-key", a.creds.APIKey)
	h.Set("anthropic-version", anthropicVersion)
	h.Set("Content-Type", "application/json")
	return h
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// IsOpusFamily reports whether model names an Anthropic "opus"-family
// identifier distinct from the canonical fallback, the precondition for
// the orchestrator's model-fallback-on-404 step.
func IsOpusFamily(model string) bool {
	return strings.Contains(strings.ToLower(model), "opus") && model != CanonicalOpusFallback
}

func (a *anthropicAdapter) buildRequest(model string, conv Conversation, opts Options, stream bool) anthropicRequest {
	req := anthropicRequest{Model: model, Stream: stream, MaxTokens: 4096}
	for _, t := range conv {
		switch t.Role {
		case RoleSystem:
			req.System = joinText(req.System, t.Text)
		case RoleAssistant:
			req.Messages = append(req.Messages, anthropicMessage{Role: "assistant", Content: t.Text})
		default:
			req.Messages = append(req.Messages, anthropicMessage{Role: "user", Content: t.Text})
		}
	}
	if opts.MaxOutputTokens != nil && *opts.MaxOutputTokens > 0 {
		req.MaxTokens = *opts.MaxOutputTokens
	}
	req.Temperature = clampTemperature(opts.Temperature, 0, 1)
	return req
}

func (a *anthropicAdapter) Complete(ctx context.Context, model string, conv Conversation, opts Options) (CompletionResult, error) {
	start := time.Now()
	req := a.buildRequest(model, conv, opts, false)
	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("provideradapter: marshal anthropic request: %w", err)
	}

	resp, err := a.transport.Do(ctx, http.MethodPost, a.endpoint(), a.headers(), body)
	if err != nil {
		if terr, ok := err.(*transport.Error); ok && terr.Status == http.StatusNotFound {
			return CompletionResult{FinishReason: FinishError}, fmt.Errorf("%w: %s", ErrModelNotFound, terr.Message)
		}
		return CompletionResult{FinishReason: FinishError}, err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return CompletionResult{FinishReason: FinishError}, fmt.Errorf("provideradapter: decode anthropic response: %w", err)
	}
	if parsed.Error != nil {
		return CompletionResult{FinishReason: FinishError}, fmt.Errorf("provideradapter: anthropic error: %s", parsed.Error.Message)
	}

	var content strings.Builder
	for _, c := range parsed.Content {
		content.WriteString(c.Text)
	}

	finish := FinishStop
	if parsed.StopReason == "max_tokens" {
		finish = FinishLength
	}

	return CompletionResult{
		Content:      content.String(),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		FinishReason: finish,
		LatencyMS:    time.Since(start).Milliseconds(),
	}, nil
}

// anthropicStreamEvent covers message_start (initial input token count),
// content_block_delta (text deltas), and message_delta (final output
// token count and stop reason) — the three event types the adapter
// needs from Anthropic's streaming protocol.
type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *anthropicAdapter) CompleteStream(ctx context.Context, model string, conv Conversation, opts Options, onChunk ChunkFunc) (CompletionResult, error) {
	start := time.Now()
	req := a.buildRequest(model, conv, opts, true)
	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("provideradapter: marshal anthropic request: %w", err)
	}

	result := CompletionResult{FinishReason: FinishStop}
	var content strings.Builder
	decoder := newSSEDecoder()

	_, err = a.transport.Stream(ctx, http.MethodPost, a.endpoint(), a.headers(), body, func(chunk []byte) {
		for _, data := range decoder.Feed(chunk) {
			var evt anthropicStreamEvent
			if json.Unmarshal([]byte(data), &evt) != nil {
				continue
			}
			switch evt.Type {
			case "message_start":
				if evt.Message != nil {
					result.InputTokens = evt.Message.Usage.InputTokens
				}
			case "content_block_delta":
				if evt.Delta != nil && evt.Delta.Type == "text_delta" {
					content.WriteString(evt.Delta.Text)
					onChunk(evt.Delta.Text)
				}
			case "message_delta":
				if evt.Usage != nil {
					result.OutputTokens = evt.Usage.OutputTokens
				}
				if evt.Delta != nil && evt.Delta.StopReason == "max_tokens" {
					result.FinishReason = FinishLength
				}
			}
		}
	})
	if err != nil {
		if terr, ok := err.(*transport.Error); ok && terr.Status == http.StatusNotFound {
			return CompletionResult{FinishReason: FinishError}, fmt.Errorf("%w: %s", ErrModelNotFound, terr.Message)
		}
		return CompletionResult{FinishReason: FinishError}, err
	}

	result.Content = content.String()
	result.LatencyMS = time.Since(start).Milliseconds()
	return result, nil
}

func (a *anthropicAdapter) TestConnection(ctx context.Context, model string) bool {
	maxTokens := 1
	_, err := a.Complete(ctx, model, Conversation{{Role: RoleUser, Text: "ping"}}, Options{MaxOutputTokens: &maxTokens})
	return err == nil
}
