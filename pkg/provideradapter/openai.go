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
	RegisterFactory("openai", newOpenAIAdapter)
}

const openAIResponsesPath = "/v1/responses"

type openAIAdapter struct {
	creds     Credentials
	transport *transport.Transport
}

func newOpenAIAdapter(creds Credentials) (Adapter, error) {
	tr, err := transport.New(creds.ResolveTransportConfig())
	if err != nil {
		return nil, err
	}
	return &openAIAdapter{creds: creds, transport: tr}, nil
}

func (a *openAIAdapter) endpoint() string {
	base := a.creds.BaseURL
	if base == "" {
		base = "https://api.openai.com"
	}
	return resolveEndpoint(base, openAIResponsesPath)
}

func (a *openAIAdapter) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.creds.APIKey)
	h.Set("Content-Type", "application/json")
	return h
}

// isReasoningModel reports whether model is one of OpenAI's
// reasoning-class models, for which temperature is suppressed and an
// optional reasoning.effort field may be sent instead.
func isReasoningModel(model string) bool {
	lower := strings.ToLower(model)
	return strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3") || strings.HasPrefix(lower, "o4") ||
		strings.Contains(lower, "gpt-5")
}

type openAIRequest struct {
	Model           string            `json:"model"`
	Input           []openAIInputItem `json:"input"`
	Instructions    string            `json:"instructions,omitempty"`
	Temperature     *float64          `json:"temperature,omitempty"`
	MaxOutputTokens *int              `json:"max_output_tokens,omitempty"`
	Reasoning       *openAIReasoning  `json:"reasoning,omitempty"`
	Stream          bool              `json:"stream,omitempty"`
}

type openAIReasoning struct {
	Effort string `json:"effort,omitempty"`
}

type openAIInputItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Output []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage *struct {
		InputTokens        int `json:"input_tokens"`
		OutputTokens       int `json:"output_tokens"`
		OutputTokensDetail struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"output_tokens_details"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (a *openAIAdapter) buildRequest(model string, conv Conversation, opts Options, stream bool) openAIRequest {
	req := openAIRequest{Model: model, Stream: stream}
	for _, t := range conv {
		if t.Role == RoleSystem {
			req.Instructions = joinText(req.Instructions, t.Text)
			continue
		}
		req.Input = append(req.Input, openAIInputItem{Role: string(t.Role), Content: t.Text})
	}
	if !isReasoningModel(model) {
		req.Temperature = opts.Temperature
	} else {
		req.Reasoning = &openAIReasoning{Effort: "medium"}
	}
	req.MaxOutputTokens = opts.MaxOutputTokens
	return req
}

func joinText(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "\n" + next
}

func (a *openAIAdapter) Complete(ctx context.Context, model string, conv Conversation, opts Options) (CompletionResult, error) {
	start := time.Now()
	req := a.buildRequest(model, conv, opts, false)
	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("provideradapter: marshal openai request: %w", err)
	}

	resp, err := a.transport.Do(ctx, http.MethodPost, a.endpoint(), a.headers(), body)
	if err != nil {
		if terr, ok := err.(*transport.Error); ok && terr.Status == http.StatusNotFound {
			return CompletionResult{FinishReason: FinishError}, fmt.Errorf("%w: %s", ErrModelNotFound, terr.Message)
		}
		return CompletionResult{FinishReason: FinishError}, err
	}

	var parsed openAIResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return CompletionResult{FinishReason: FinishError}, fmt.Errorf("provideradapter: decode openai response: %w", err)
	}
	if parsed.Error != nil {
		return CompletionResult{FinishReason: FinishError}, fmt.Errorf("provideradapter: openai error: %s", parsed.Error.Message)
	}

	var content strings.Builder
	for _, out := range parsed.Output {
		for _, c := range out.Content {
			content.WriteString(c.Text)
		}
	}

	result := CompletionResult{
		Content:      content.String(),
		FinishReason: FinishStop,
		LatencyMS:    time.Since(start).Milliseconds(),
	}
	if parsed.Usage != nil {
		result.InputTokens = parsed.Usage.InputTokens
		result.OutputTokens = parsed.Usage.OutputTokens
		if parsed.Usage.OutputTokensDetail.ReasoningTokens > 0 {
			result.ReasoningTokens = parsed.Usage.OutputTokensDetail.ReasoningTokens
			result.HasReasoning = true
		}
	}
	return result, nil
}

// openAIStreamEvent covers the subset of Responses API streaming event
// shapes this adapter consumes: incremental text deltas and the
// terminal response.completed event carrying usage.
type openAIStreamEvent struct {
	Type     string `json:"type"`
	Delta    string `json:"delta"`
	Response *struct {
		Usage *struct {
			InputTokens        int `json:"input_tokens"`
			OutputTokens       int `json:"output_tokens"`
			OutputTokensDetail struct {
				ReasoningTokens int `json:"reasoning_tokens"`
			} `json:"output_tokens_details"`
		} `json:"usage"`
	} `json:"response"`
}

func (a *openAIAdapter) CompleteStream(ctx context.Context, model string, conv Conversation, opts Options, onChunk ChunkFunc) (CompletionResult, error) {
	start := time.Now()
	req := a.buildRequest(model, conv, opts, true)
	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("provideradapter: marshal openai request: %w", err)
	}

	result := CompletionResult{FinishReason: FinishStop}
	var content strings.Builder
	decoder := newSSEDecoder()

	_, err = a.transport.Stream(ctx, http.MethodPost, a.endpoint(), a.headers(), body, func(chunk []byte) {
		for _, data := range decoder.Feed(chunk) {
			var evt openAIStreamEvent
			if json.Unmarshal([]byte(data), &evt) != nil {
				continue
			}
			switch evt.Type {
			case "response.output_text.delta":
				content.WriteString(evt.Delta)
				onChunk(evt.Delta)
			case "response.completed":
				if evt.Response != nil && evt.Response.Usage != nil {
					result.InputTokens = evt.Response.Usage.InputTokens
					result.OutputTokens = evt.Response.Usage.OutputTokens
					if evt.Response.Usage.OutputTokensDetail.ReasoningTokens > 0 {
						result.ReasoningTokens = evt.Response.Usage.OutputTokensDetail.ReasoningTokens
						result.HasReasoning = true
					}
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

func (a *openAIAdapter) TestConnection(ctx context.Context, model string) bool {
	maxTokens := 1
	_, err := a.Complete(ctx, model, Conversation{{Role: RoleUser, Text: "ping"}}, Options{MaxOutputTokens: &maxTokens})
	return err == nil
}
