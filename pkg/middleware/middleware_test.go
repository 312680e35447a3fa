package middleware

import (
	"errors"
	"testing"

	"github.com/socratic-council/council/pkg/council"
)

func TestChainRunsInOrder(t *testing.T) {
	var order []string
	track := func(name string) Middleware {
		return NewFunc(name, func(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error) {
			order = append(order, name)
			return next(ctx, msg)
		})
	}
	chain := NewChain(track("first"), track("second"), track("third"))
	_, err := chain.Process(&MessageContext{}, &council.Message{Content: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("got order %v, want %v", order, want)
		}
	}
}

func TestChainEmptyReturnsMessageUnchanged(t *testing.T) {
	chain := NewChain()
	msg := &council.Message{Content: "unchanged"}
	got, err := chain.Process(&MessageContext{}, msg)
	if err != nil || got.Content != "unchanged" {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestFilterRejectsWithError(t *testing.T) {
	chain := NewChain(NewFilter("reject-all", func(ctx *MessageContext, msg *council.Message) (bool, error) {
		return false, nil
	}))
	_, err := chain.Process(&MessageContext{}, &council.Message{Content: "hi"})
	if err == nil {
		t.Fatalf("expected rejection error")
	}
}

func TestFilterPropagatesUnderlyingError(t *testing.T) {
	wantErr := errors.New("boom")
	chain := NewChain(NewFilter("erroring", func(ctx *MessageContext, msg *council.Message) (bool, error) {
		return false, wantErr
	}))
	_, err := chain.Process(&MessageContext{}, &council.Message{Content: "hi"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped %v, got %v", wantErr, err)
	}
}

func TestTransformModifiesMessage(t *testing.T) {
	chain := NewChain(NewTransform("exclaim", func(ctx *MessageContext, msg *council.Message) (*council.Message, error) {
		msg.Content = msg.Content + "!"
		return msg, nil
	}))
	got, err := chain.Process(&MessageContext{}, &council.Message{Content: "hi"})
	if err != nil || got.Content != "hi!" {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestValidateStopsChainOnError(t *testing.T) {
	var reached bool
	chain := NewChain(
		NewValidate("always-fail", func(ctx *MessageContext, msg *council.Message) error {
			return errors.New("invalid")
		}),
		NewFunc("never-reached", func(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error) {
			reached = true
			return next(ctx, msg)
		}),
	)
	_, err := chain.Process(&MessageContext{}, &council.Message{Content: "hi"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if reached {
		t.Fatalf("chain should have stopped before reaching the next link")
	}
}

func TestWhitespaceNormalizationCollapsesBlankRunsAndTrims(t *testing.T) {
	chain := NewChain(WhitespaceNormalizationMiddleware())
	msg := &council.Message{Content: "  line one\r\n\r\n\r\n\r\nline two  \r\n"}
	got, err := chain.Process(&MessageContext{}, msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "line one\n\nline two"
	if got.Content != want {
		t.Fatalf("got %q, want %q", got.Content, want)
	}
}

func TestEmptyContentValidationRejectsBlank(t *testing.T) {
	chain := NewChain(EmptyContentValidationMiddleware())
	_, err := chain.Process(&MessageContext{}, &council.Message{Content: "   "})
	if err == nil {
		t.Fatalf("expected rejection of blank content")
	}
}

func TestEmptyContentValidationAllowsNonBlank(t *testing.T) {
	chain := NewChain(EmptyContentValidationMiddleware())
	_, err := chain.Process(&MessageContext{}, &council.Message{Content: "hello"})
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestToolDirectiveStrippedValidationRejectsSurvivingDirective(t *testing.T) {
	chain := NewChain(ToolDirectiveStrippedValidationMiddleware())
	msg := &council.Message{Content: `still here: @tool(oracle.search,{"query":"x"})`}
	_, err := chain.Process(&MessageContext{}, msg)
	if err == nil {
		t.Fatalf("expected rejection of unstripped directive")
	}
}

func TestToolDirectiveStrippedValidationAllowsClean(t *testing.T) {
	chain := NewChain(ToolDirectiveStrippedValidationMiddleware())
	_, err := chain.Process(&MessageContext{}, &council.Message{Content: "nothing to see here"})
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestContentLengthFilterRejectsTooLong(t *testing.T) {
	chain := NewChain(ContentLengthFilterMiddleware(0, 5))
	_, err := chain.Process(&MessageContext{}, &council.Message{Content: "way too long"})
	if err == nil {
		t.Fatalf("expected rejection for exceeding max length")
	}
}

func TestContentLengthFilterRejectsTooShort(t *testing.T) {
	chain := NewChain(ContentLengthFilterMiddleware(10, 0))
	_, err := chain.Process(&MessageContext{}, &council.Message{Content: "short"})
	if err == nil {
		t.Fatalf("expected rejection for below min length")
	}
}

func TestErrorRecoveryConvertsPanicToError(t *testing.T) {
	chain := NewChain(
		ErrorRecoveryMiddleware(),
		NewFunc("panics", func(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error) {
			panic("boom")
		}),
	)
	_, err := chain.Process(&MessageContext{}, &council.Message{Content: "hi"})
	if err == nil {
		t.Fatalf("expected panic converted to error")
	}
}

func TestMetricsMiddlewareRecordsLengths(t *testing.T) {
	ctx := &MessageContext{}
	chain := NewChain(MetricsMiddleware())
	_, err := chain.Process(ctx, &council.Message{Content: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.Metadata["input_length"] != 5 {
		t.Fatalf("expected input_length recorded, got %+v", ctx.Metadata)
	}
}
