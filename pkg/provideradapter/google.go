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
	RegisterFactory("google", newGoogleAdapter)
}

type googleAdapter struct {
	creds     Credentials
	transport *transport.Transport
}

func newGoogleAdapter(creds Credentials) (Adapter, error) {
	tr, err := transport.New(creds.ResolveTransportConfig())
	if err != nil {
		return nil, err
	}
	return &googleAdapter{creds: creds, transport: tr}, nil
}

func (a *googleAdapter) endpoint(model string, stream bool) string {
	base := a.creds.BaseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	method := "generateContent"
	if stream {
		method = "streamGenerateContent"
	}
	return resolveEndpoint(base, fmt.Sprintf("/v1beta/models/%s:%s", model, method))
}

func (a *googleAdapter) headers() http.Header {
	h := http.Header{}
	h.Set("x-goog-api-key", a.creds.APIKey)
	h.Set("Content-Type", "application/json")
	return h
}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

type googleThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget,omitempty"`
}

type googleGenerationConfig struct {
	Temperature     *float64              `json:"temperature,omitempty"`
	MaxOutputTokens *int                  `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *googleThinkingConfig `json:"thinkingConfig,omitempty"`
}

type googleRequest struct {
	Contents          []googleContent         `json:"contents"`
	SystemInstruction *googleContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *googleGenerationConfig `json:"generationConfig,omitempty"`
}

type googleResponse struct {
	Candidates []struct {
		Content      googleContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// isThinkingModel reports whether model supports Gemini's
// thinkingConfig knob.
func isThinkingModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "2.5") || strings.Contains(strings.ToLower(model), "thinking")
}

func (a *googleAdapter) buildRequest(model string, conv Conversation, opts Options) googleRequest {
	var req googleRequest
	for _, t := range conv {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		if t.Role == RoleSystem {
			if req.SystemInstruction == nil {
				req.SystemInstruction = &googleContent{Parts: []googlePart{{Text: t.Text}}}
			} else {
				req.SystemInstruction.Parts[0].Text = joinText(req.SystemInstruction.Parts[0].Text, t.Text)
			}
			continue
		}
		req.Contents = append(req.Contents, googleContent{Role: role, Parts: []googlePart{{Text: t.Text}}})
	}

	gen := &googleGenerationConfig{
		Temperature:     opts.Temperature,
		MaxOutputTokens: opts.MaxOutputTokens,
	}
	if isThinkingModel(model) {
		gen.ThinkingConfig = &googleThinkingConfig{}
	}
	req.GenerationConfig = gen
	return req
}

func (a *googleAdapter) Complete(ctx context.Context, model string, conv Conversation, opts Options) (CompletionResult, error) {
	start := time.Now()
	req := a.buildRequest(model, conv, opts)
	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("provideradapter: marshal google request: %w", err)
	}

	resp, err := a.transport.Do(ctx, http.MethodPost, a.endpoint(model, false), a.headers(), body)
	if err != nil {
		if terr, ok := err.(*transport.Error); ok && terr.Status == http.StatusNotFound {
			return CompletionResult{FinishReason: FinishError}, fmt.Errorf("%w: %s", ErrModelNotFound, terr.Message)
		}
		return CompletionResult{FinishReason: FinishError}, err
	}

	var parsed googleResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return CompletionResult{FinishReason: FinishError}, fmt.Errorf("provideradapter: decode google response: %w", err)
	}
	if parsed.Error != nil {
		return CompletionResult{FinishReason: FinishError}, fmt.Errorf("provideradapter: google error: %s", parsed.Error.Message)
	}

	var content strings.Builder
	finish := FinishStop
	if len(parsed.Candidates) > 0 {
		for _, p := range parsed.Candidates[0].Content.Parts {
			content.WriteString(p.Text)
		}
		if parsed.Candidates[0].FinishReason == "MAX_TOKENS" {
			finish = FinishLength
		}
	}

	result := CompletionResult{Content: content.String(), FinishReason: finish, LatencyMS: time.Since(start).Milliseconds()}
	if parsed.UsageMetadata != nil {
		result.InputTokens = parsed.UsageMetadata.PromptTokenCount
		result.OutputTokens = parsed.UsageMetadata.CandidatesTokenCount
		if parsed.UsageMetadata.ThoughtsTokenCount > 0 {
			result.ReasoningTokens = parsed.UsageMetadata.ThoughtsTokenCount
			result.HasReasoning = true
		}
	}
	return result, nil
}

func (a *googleAdapter) CompleteStream(ctx context.Context, model string, conv Conversation, opts Options, onChunk ChunkFunc) (CompletionResult, error) {
	start := time.Now()
	req := a.buildRequest(model, conv, opts)
	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("provideradapter: marshal google request: %w", err)
	}

	result := CompletionResult{FinishReason: FinishStop}
	var content strings.Builder
	decoder := newSSEDecoder()

	_, err = a.transport.Stream(ctx, http.MethodPost, a.endpoint(model, true), a.headers(), body, func(chunk []byte) {
		for _, data := range decoder.Feed(chunk) {
			var evt googleResponse
			if json.Unmarshal([]byte(data), &evt) != nil {
				continue
			}
			if len(evt.Candidates) > 0 {
				for _, p := range evt.Candidates[0].Content.Parts {
					content.WriteString(p.Text)
					onChunk(p.Text)
				}
				if evt.Candidates[0].FinishReason == "MAX_TOKENS" {
					result.FinishReason = FinishLength
				}
			}
			if evt.UsageMetadata != nil {
				result.InputTokens = evt.UsageMetadata.PromptTokenCount
				result.OutputTokens = evt.UsageMetadata.CandidatesTokenCount
				if evt.UsageMetadata.ThoughtsTokenCount > 0 {
					result.ReasoningTokens = evt.UsageMetadata.ThoughtsTokenCount
					result.HasReasoning = true
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

func (a *googleAdapter) TestConnection(ctx context.Context, model string) bool {
	maxTokens := 1
	_, err := a.Complete(ctx, model, Conversation{{Role: RoleUser, Text: "ping"}}, Options{MaxOutputTokens: &maxTokens})
	return err == nil
}
