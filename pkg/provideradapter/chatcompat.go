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

// chatCompatAdapter implements the OpenAI chat-completions wire shape
// shared by DeepSeek and Kimi. defaultBaseURL, path, temperature
// range, and the optional use_search flag are injected per provider.
type chatCompatAdapter struct {
	creds          Credentials
	transport      *transport.Transport
	defaultBaseURL string
	path           string
	tempMin        float64
	tempMax        float64
	useSearch      bool
}

type chatCompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompatRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompatMessage `json:"messages"`
	Temperature *float64            `json:"temperature,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
	UseSearch   *bool               `json:"use_search,omitempty"`
}

type chatCompatResponse struct {
	Choices []struct {
		Message      chatCompatMessage `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

type chatCompatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *chatCompatAdapter) endpoint() string {
	base := a.creds.BaseURL
	if base == "" {
		base = a.defaultBaseURL
	}
	return resolveEndpoint(base, a.path)
}

func (a *chatCompatAdapter) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.creds.APIKey)
	h.Set("Content-Type", "application/json")
	return h
}

func (a *chatCompatAdapter) buildRequest(model string, conv Conversation, opts Options, stream bool) chatCompatRequest {
	req := chatCompatRequest{Model: model, Stream: stream}
	for _, t := range conv {
		req.Messages = append(req.Messages, chatCompatMessage{Role: string(t.Role), Content: t.Text})
	}
	req.Temperature = clampTemperature(opts.Temperature, a.tempMin, a.tempMax)
	req.MaxTokens = opts.MaxOutputTokens
	if a.useSearch {
		on := true
		req.UseSearch = &on
	}
	return req
}

func mapFinishReason(s string) FinishReason {
	if s == "length" {
		return FinishLength
	}
	return FinishStop
}

func (a *chatCompatAdapter) Complete(ctx context.Context, model string, conv Conversation, opts Options) (CompletionResult, error) {
	start := time.Now()
	req := a.buildRequest(model, conv, opts, false)
	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("provideradapter: marshal request: %w", err)
	}

	resp, err := a.transport.Do(ctx, http.MethodPost, a.endpoint(), a.headers(), body)
	if err != nil {
		if terr, ok := err.(*transport.Error); ok && terr.Status == http.StatusNotFound {
			return CompletionResult{FinishReason: FinishError}, fmt.Errorf("%w: %s", ErrModelNotFound, terr.Message)
		}
		return CompletionResult{FinishReason: FinishError}, err
	}

	var parsed chatCompatResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return CompletionResult{FinishReason: FinishError}, fmt.Errorf("provideradapter: decode response: %w", err)
	}
	if parsed.Error != nil {
		return CompletionResult{FinishReason: FinishError}, fmt.Errorf("provideradapter: provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return CompletionResult{FinishReason: FinishError}, fmt.Errorf("provideradapter: no choices in response")
	}

	result := CompletionResult{
		Content:      parsed.Choices[0].Message.Content,
		FinishReason: mapFinishReason(parsed.Choices[0].FinishReason),
		LatencyMS:    time.Since(start).Milliseconds(),
	}
	if parsed.Usage != nil {
		result.InputTokens = parsed.Usage.PromptTokens
		result.OutputTokens = parsed.Usage.CompletionTokens
	}
	return result, nil
}

func (a *chatCompatAdapter) CompleteStream(ctx context.Context, model string, conv Conversation, opts Options, onChunk ChunkFunc) (CompletionResult, error) {
	start := time.Now()
	req := a.buildRequest(model, conv, opts, true)
	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("provideradapter: marshal request: %w", err)
	}

	result := CompletionResult{FinishReason: FinishStop}
	var content strings.Builder
	decoder := newSSEDecoder()

	_, err = a.transport.Stream(ctx, http.MethodPost, a.endpoint(), a.headers(), body, func(chunk []byte) {
		for _, data := range decoder.Feed(chunk) {
			var evt chatCompatStreamChunk
			if json.Unmarshal([]byte(data), &evt) != nil {
				continue
			}
			if len(evt.Choices) > 0 {
				delta := evt.Choices[0].Delta.Content
				if delta != "" {
					content.WriteString(delta)
					onChunk(delta)
				}
				if evt.Choices[0].FinishReason != nil && *evt.Choices[0].FinishReason == "length" {
					result.FinishReason = FinishLength
				}
			}
			if evt.Usage != nil {
				result.InputTokens = evt.Usage.PromptTokens
				result.OutputTokens = evt.Usage.CompletionTokens
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

func (a *chatCompatAdapter) TestConnection(ctx context.Context, model string) bool {
	maxTokens := 1
	_, err := a.Complete(ctx, model, Conversation{{Role: RoleUser, Text: "ping"}}, Options{MaxOutputTokens: &maxTokens})
	return err == nil
}
