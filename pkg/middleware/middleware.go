// Package middleware runs each outgoing council message through a chain
// of interceptors before it is appended to the transcript: sanitizing
// whitespace, validating that tool-call directives were fully stripped,
// and rejecting content that fails basic well-formedness checks. A
// Chain can additionally be wired to the orchestrator's own event
// stream, surfacing a message_replace event whenever a middleware
// rewrites the content it was handed, so replace events precede a
// turn's final message_complete on the wire.
package middleware

import (
	"fmt"

	"github.com/socratic-council/council/pkg/council"
)

// MessageContext carries the per-call context a middleware needs beyond
// the message itself.
type MessageContext struct {
	AgentID    council.AgentID
	TurnNumber int
	Metadata   map[string]interface{}
}

// ProcessFunc processes a message and optionally hands it to the next
// link in the chain.
type ProcessFunc func(ctx *MessageContext, msg *council.Message) (*council.Message, error)

// Middleware intercepts, transforms, or validates a message as it flows
// from a completed provider call to the transcript.
type Middleware interface {
	Process(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error)
	Name() string
}

// Chain runs an ordered list of Middleware over a message. When an
// emitter is attached (WithEmitter), Process participates directly in
// the orchestrator's single-writer event stream instead of being a
// silent pass-through: it publishes message_replace whenever the chain
// changes the content it was given, so a host watching the event stream
// sees the same rewrite the transcript ends up with.
type Chain struct {
	middleware []Middleware
	emitter    *council.EventEmitter
}

// NewChain builds a chain from the given middleware, run in the order
// given, with no event emitter attached. Use WithEmitter to wire one in.
func NewChain(middleware ...Middleware) *Chain {
	return &Chain{middleware: middleware}
}

// WithEmitter attaches the event stream Process should publish
// message_replace events to, and returns c for chaining at construction
// time.
func (c *Chain) WithEmitter(emitter *council.EventEmitter) *Chain {
	c.emitter = emitter
	return c
}

// Add appends middleware to the end of the chain.
func (c *Chain) Add(m Middleware) {
	c.middleware = append(c.middleware, m)
}

// Len returns the number of middleware in the chain.
func (c *Chain) Len() int {
	return len(c.middleware)
}

// Process runs msg through every middleware in order, innermost-last,
// and — when an emitter is attached — publishes message_replace if the
// chain changed msg's content.
func (c *Chain) Process(ctx *MessageContext, msg *council.Message) (*council.Message, error) {
	originalContent := msg.Content

	var process ProcessFunc = func(ctx *MessageContext, msg *council.Message) (*council.Message, error) {
		return msg, nil
	}
	for i := len(c.middleware) - 1; i >= 0; i-- {
		m := c.middleware[i]
		next := process
		process = func(ctx *MessageContext, msg *council.Message) (*council.Message, error) {
			return m.Process(ctx, msg, next)
		}
	}

	out, err := process(ctx, msg)
	if err != nil {
		return nil, err
	}

	if c.emitter != nil && out != nil && out.Content != originalContent {
		c.emitter.Emit(council.Event{
			Type:    council.EventMessageReplace,
			Payload: council.EventPayloadMessage{Message: *out, Agent: ctx.AgentID},
		})
	}
	return out, nil
}

// Func adapts a plain function into a Middleware.
type Func struct {
	name string
	fn   func(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error)
}

// NewFunc wraps fn as a named Middleware.
func NewFunc(name string, fn func(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error)) Middleware {
	return &Func{name: name, fn: fn}
}

func (m *Func) Process(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error) {
	return m.fn(ctx, msg, next)
}

func (m *Func) Name() string { return m.name }

// FilterFunc decides whether a message may proceed down the chain.
type FilterFunc func(ctx *MessageContext, msg *council.Message) (bool, error)

// NewFilter builds middleware that halts the chain with an error when
// filter returns false.
func NewFilter(name string, filter FilterFunc) Middleware {
	return NewFunc(name, func(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error) {
		allowed, err := filter(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if !allowed {
			return nil, fmt.Errorf("message rejected by %s", name)
		}
		return next(ctx, msg)
	})
}

// TransformFunc rewrites a message before passing it along.
type TransformFunc func(ctx *MessageContext, msg *council.Message) (*council.Message, error)

// NewTransform builds middleware that transforms msg, then continues.
func NewTransform(name string, transform TransformFunc) Middleware {
	return NewFunc(name, func(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error) {
		transformed, err := transform(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return next(ctx, transformed)
	})
}

// ValidateFunc checks a message without modifying it.
type ValidateFunc func(ctx *MessageContext, msg *council.Message) error

// NewValidate builds middleware that halts the chain if validate errors.
func NewValidate(name string, validate ValidateFunc) Middleware {
	return NewFunc(name, func(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error) {
		if err := validate(ctx, msg); err != nil {
			return nil, fmt.Errorf("validation failed in %s: %w", name, err)
		}
		return next(ctx, msg)
	})
}
