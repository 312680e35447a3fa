package middleware

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/socratic-council/council/pkg/council"
	"github.com/socratic-council/council/pkg/log"
	"github.com/socratic-council/council/pkg/oracle"
)

// LoggingMiddleware logs before and after processing with structured fields.
func LoggingMiddleware() Middleware {
	return NewFunc("logging", func(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error) {
		start := time.Now()

		log.WithFields(map[string]interface{}{
			"agent_id":    ctx.AgentID,
			"turn_number": ctx.TurnNumber,
			"content_len": len(msg.Content),
		}).Debug("processing message")

		result, err := next(ctx, msg)
		duration := time.Since(start)

		fields := map[string]interface{}{
			"agent_id":    ctx.AgentID,
			"turn_number": ctx.TurnNumber,
			"duration_ms": duration.Milliseconds(),
		}
		if err != nil {
			log.WithFields(fields).WithError(err).Error("message processing failed")
			return nil, err
		}
		log.WithFields(fields).Debug("message processed successfully")
		return result, nil
	})
}

// MetricsMiddleware records processing duration and content sizes into
// ctx.Metadata. The orchestrator does not read these keys.
func MetricsMiddleware() Middleware {
	return NewFunc("metrics", func(ctx *MessageContext, msg *council.Message, next ProcessFunc) (*council.Message, error) {
		start := time.Now()
		result, err := next(ctx, msg)
		duration := time.Since(start)

		if ctx.Metadata == nil {
			ctx.Metadata = make(map[string]interface{})
		}
		ctx.Metadata["processing_duration_ms"] = duration.Milliseconds()
		ctx.Metadata["input_length"] = len(msg.Content)
		if result != nil {
			ctx.Metadata["output_length"] = len(result.Content)
		}
		return result, err
	})
}

// crlf matches any CR that either precedes an LF or stands alone, so both
// CRLF and bare-CR line endings normalize to LF.
var crlf = regexp.MustCompile(`\r\n?`)

// blankRuns matches three or more consecutive newlines, collapsed to one
// blank line (two newlines) by WhitespaceNormalizationMiddleware.
var blankRuns = regexp.MustCompile(`\n{3,}`)

// WhitespaceNormalizationMiddleware normalizes line endings, collapses
// runs of blank lines to a single blank line, and trims leading/trailing
// whitespace from the final displayed content.
func WhitespaceNormalizationMiddleware() Middleware {
	return NewTransform("whitespace-normalization", func(ctx *MessageContext, msg *council.Message) (*council.Message, error) {
		content := crlf.ReplaceAllString(msg.Content, "\n")
		content = blankRuns.ReplaceAllString(content, "\n\n")
		msg.Content = strings.TrimSpace(content)
		return msg, nil
	})
}

// EmptyContentValidationMiddleware rejects a message whose content is
// empty or all-whitespace once normalization has run.
func EmptyContentValidationMiddleware() Middleware {
	return NewValidate("empty-content", func(ctx *MessageContext, msg *council.Message) error {
		if strings.TrimSpace(msg.Content) == "" {
			return fmt.Errorf("message content is empty")
		}
		return nil
	})
}

// ToolDirectiveStrippedValidationMiddleware guards against a
// provider-returned tool directive surviving into the displayed
// transcript: the orchestrator's tool loop is expected to call
// oracle.Strip before a message reaches the chain, so any directive that
// reaches this middleware is a bug rather than recoverable user input.
func ToolDirectiveStrippedValidationMiddleware() Middleware {
	return NewValidate("tool-directive-stripped", func(ctx *MessageContext, msg *council.Message) error {
		if len(oracle.Extract(msg.Content, 1)) > 0 {
			return fmt.Errorf("unstripped tool directive in final message content")
		}
		return nil
	})
}

// ContentLengthFilterMiddleware rejects messages outside [minLength,
// maxLength]; a zero bound disables that side of the check.
func ContentLengthFilterMiddleware(minLength, maxLength int) Middleware {
	return NewFilter("content-length", func(ctx *MessageContext, msg *council.Message) (bool, error) {
		n := len(msg.Content)
		if maxLength > 0 && n > maxLength {
			return false, fmt.Errorf("message exceeds maximum length of %d characters", maxLength)
		}
		if minLength > 0 && n < minLength {
			return false, fmt.Errorf("message is below minimum length of %d characters", minLength)
		}
		return true, nil
	})
}

// ErrorRecoveryMiddleware converts a panic in any downstream middleware
// into an error, so one misbehaving link doesn't crash the turn loop.
func ErrorRecoveryMiddleware() Middleware {
	return NewFunc("error-recovery", func(ctx *MessageContext, msg *council.Message, next ProcessFunc) (result *council.Message, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(map[string]interface{}{
					"agent_id": ctx.AgentID,
					"panic":    r,
				}).Error("middleware panic recovered")
				err = fmt.Errorf("middleware panic: %v", r)
				result = nil
			}
		}()
		return next(ctx, msg)
	})
}
