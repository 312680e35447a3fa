// Package orchestrator drives the council's turn loop: it owns the
// single writer of council.CouncilState, runs the bidding/fairness/
// whisper/conflict scheduling pipeline, and streams provider
// completions through the inline tool-call loop. It is built as a
// config+state struct with a round-based run loop, middleware
// processing of each produced message, and a subscribable event
// stream. It lives in its own package (distinct from pkg/council's
// data model) so it can depend on pkg/middleware without creating an
// import cycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/socratic-council/council/pkg/bidding"
	"github.com/socratic-council/council/pkg/conflict"
	"github.com/socratic-council/council/pkg/council"
	"github.com/socratic-council/council/pkg/fairness"
	"github.com/socratic-council/council/pkg/log"
	"github.com/socratic-council/council/pkg/metrics"
	"github.com/socratic-council/council/pkg/middleware"
	"github.com/socratic-council/council/pkg/oracle"
	"github.com/socratic-council/council/pkg/provideradapter"
	"github.com/socratic-council/council/pkg/whisper"
)

// MaxContextMessages bounds how many prior transcript messages are
// offered to a provider as conversation context.
const MaxContextMessages = 16

// MaxToolCallsPerIteration bounds how many @tool(...) directives are
// dispatched from a single round of generated text.
const MaxToolCallsPerIteration = 3

// MaxToolIterations bounds how many generate-then-dispatch rounds a
// single turn may run before the buffer is accepted as final; each
// round dispatches up to MaxToolCallsPerIteration directives and
// re-issues the completion, so a turn makes at most
// MaxToolIterations+1 provider calls.
const MaxToolIterations = 2

// InterTurnPause is the pacing delay applied between turns.
const InterTurnPause = 500 * time.Millisecond

// Orchestrator is the top-level driver described above.
type Orchestrator struct {
	mu sync.Mutex

	state   *council.CouncilState
	emitter *council.EventEmitter

	adapters map[string]provideradapter.Adapter // keyed by provider name

	weights              bidding.Weights
	fairnessM            *fairness.Manager
	whisperM             *whisper.Manager
	conflictD            *conflict.Detector
	middleware           *middleware.Chain
	whitespaceNormalizer *middleware.Chain
	oracle               oracle.Backend
	metrics              *metrics.Metrics
	rng                  *rand.Rand

	status       council.Status
	pauseRequest chan struct{}
	resumeSignal chan struct{}
	stopRequest  chan struct{}
	forcedAgent  council.AgentID // set by TriggerAgent; consumed by the next turn
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithBiddingWeights overrides the default bidding weights.
func WithBiddingWeights(w bidding.Weights) Option {
	return func(o *Orchestrator) { o.weights = w }
}

// WithFairness overrides the fairness window/cap.
func WithFairness(windowSize, cap int) Option {
	return func(o *Orchestrator) { o.fairnessM = fairness.NewManager(windowSize, cap) }
}

// WithConflictDetector overrides the conflict window/threshold.
func WithConflictDetector(d *conflict.Detector) Option {
	return func(o *Orchestrator) { o.conflictD = d }
}

// WithMiddleware attaches a processing chain applied to every
// agent-produced message before it is persisted. The chain
// is wired to this orchestrator's event emitter so it can publish
// message_replace itself when it rewrites a message.
func WithMiddleware(chain *middleware.Chain) Option {
	return func(o *Orchestrator) { o.middleware = chain.WithEmitter(o.emitter) }
}

// WithOracleBackend attaches the backend used to service @tool(...)
// directives.
func WithOracleBackend(backend oracle.Backend) Option {
	return func(o *Orchestrator) { o.oracle = backend }
}

// WithRNG overrides the random source used for bid jitter, for
// deterministic tests.
func WithRNG(rng *rand.Rand) Option {
	return func(o *Orchestrator) { o.rng = rng }
}

// WithMetrics attaches the Prometheus collector set the run loop
// records scheduling and provider-call observations into. Left unset,
// the orchestrator runs with no metrics overhead.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New builds an Orchestrator over an existing session state and one
// adapter per configured provider.
func New(state *council.CouncilState, adapters map[string]provideradapter.Adapter, opts ...Option) *Orchestrator {
	emitter := council.NewEventEmitter()
	o := &Orchestrator{
		state:                state,
		emitter:              emitter,
		adapters:             adapters,
		weights:              bidding.DefaultWeights,
		fairnessM:            fairness.NewManager(fairness.DefaultWindow, fairness.DefaultCap),
		whisperM:             whisper.NewManagerFromState(&state.Whisper),
		conflictD:            conflict.NewDetector(conflict.DefaultWindow, conflict.DefaultThreshold),
		whitespaceNormalizer: middleware.NewChain(middleware.WhitespaceNormalizationMiddleware()).WithEmitter(emitter),
		rng:                  rand.New(rand.NewSource(1)),
		status:               council.StatusIdle,
		pauseRequest:         make(chan struct{}, 1),
		resumeSignal:         make(chan struct{}, 1),
		stopRequest:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnEvent subscribes to the orchestrator's event stream.
func (o *Orchestrator) OnEvent(fn council.EventListener) {
	o.emitter.OnEvent(fn)
}

// State returns the live session state. Callers must not mutate it
// directly; use the host control surface methods instead.
func (o *Orchestrator) State() *council.CouncilState {
	return o.state
}

// Start begins the turn loop and blocks until ctx is canceled, Stop is
// called, the turn or budget ceiling is reached, or no agent is
// eligible to speak.
func (o *Orchestrator) Start(ctx context.Context, topic string) error {
	o.mu.Lock()
	o.state.Status = council.StatusRunning
	o.status = council.StatusRunning
	o.state.Config.Topic = topic
	topicMsg := council.Message{ID: uuid.NewString(), Source: council.SourceSystem, Content: fmt.Sprintf("Topic: %s", topic), Timestamp: time.Now()}
	o.state.Messages = append(o.state.Messages, topicMsg)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.ActiveSessions.Inc()
	}

	o.emitter.Emit(council.Event{Type: council.EventCouncilStarted})
	o.emitter.Emit(council.Event{Type: council.EventMessageComplete, Payload: council.EventPayloadMessage{Message: topicMsg}})
	defer func() {
		o.mu.Lock()
		now := time.Now()
		o.state.Status = council.StatusCompleted
		o.state.CompletedAt = &now
		o.status = council.StatusCompleted
		o.mu.Unlock()
		if o.metrics != nil {
			o.metrics.ActiveSessions.Dec()
		}
		o.emitter.Emit(council.Event{Type: council.EventCouncilCompleted})
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.stopRequest:
			return nil
		case <-o.pauseRequest:
			o.mu.Lock()
			o.state.Status = council.StatusPaused
			o.status = council.StatusPaused
			o.mu.Unlock()
			o.emitter.Emit(council.Event{Type: council.EventCouncilPaused})
			select {
			case <-ctx.Done():
				return nil
			case <-o.stopRequest:
				return nil
			case <-o.resumeSignal:
				o.mu.Lock()
				o.state.Status = council.StatusRunning
				o.status = council.StatusRunning
				o.mu.Unlock()
			}
		default:
		}

		o.mu.Lock()
		maxTurns := o.state.Config.MaxTurns
		turnCount := o.state.AgentTurnCount()
		budget := o.state.Config.BudgetUSD
		cost := o.state.Cost.TotalUSD
		o.mu.Unlock()

		if maxTurns > 0 && turnCount >= maxTurns {
			return nil
		}
		if budget > 0 && cost >= budget {
			return nil
		}

		if err := o.runTurn(ctx); err != nil {
			return err // runTurn already emitted the error event
		}

		select {
		case <-ctx.Done():
			return nil
		case <-o.stopRequest:
			return nil
		case <-time.After(InterTurnPause):
		}
	}
}

// Pause requests the run loop suspend after the current turn.
func (o *Orchestrator) Pause() {
	select {
	case o.pauseRequest <- struct{}{}:
	default:
	}
}

// Resume releases a paused run loop.
func (o *Orchestrator) Resume() {
	select {
	case o.resumeSignal <- struct{}{}:
	default:
	}
}

// Stop terminates the run loop at the next opportunity.
func (o *Orchestrator) Stop() {
	select {
	case o.stopRequest <- struct{}{}:
	default:
	}
}

// AddUserMessage injects a host-authored message into the transcript.
func (o *Orchestrator) AddUserMessage(text string) council.Message {
	msg := council.Message{ID: uuid.NewString(), Source: council.SourceUser, Content: text, Timestamp: time.Now()}
	o.mu.Lock()
	o.state.Messages = append(o.state.Messages, msg)
	o.mu.Unlock()
	o.emitter.Emit(council.Event{Type: council.EventMessageComplete, Payload: council.EventPayloadMessage{Message: msg}})
	return msg
}

// AddExternalMessage injects an already-constructed message record
//, e.g. one replayed from another session.
func (o *Orchestrator) AddExternalMessage(msg council.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	o.mu.Lock()
	o.state.Messages = append(o.state.Messages, msg)
	o.mu.Unlock()
	o.emitter.Emit(council.Event{Type: council.EventMessageComplete, Payload: council.EventPayloadMessage{Message: msg}})
}

// TriggerAgent forces the named agent to win the next turn's bid,
// bypassing scoring.
func (o *Orchestrator) TriggerAgent(id council.AgentID) {
	o.mu.Lock()
	o.forcedAgent = id
	o.mu.Unlock()
}

// SendWhisper records a private message and its pending bid bonus
//. Serialized through the orchestrator's lock since
// hosts call it from outside the run loop, which consumes the pending
// map under the same lock at bid time.
func (o *Orchestrator) SendWhisper(from, to council.AgentID, content string, bidBonus float64, hasBidBonus bool) council.WhisperRecord {
	o.mu.Lock()
	rec := o.whisperM.Send(from, to, content, bidBonus, hasBidBonus)
	o.mu.Unlock()
	o.emitter.Emit(council.Event{Type: council.EventWhisperSent, Payload: council.EventPayloadWhisper{From: from, To: to, Content: content}})
	return rec
}

// QueryOracle dispatches a direct oracle.search call outside the
// tool-call loop, for host-initiated lookups.
func (o *Orchestrator) QueryOracle(ctx context.Context, query string) (string, error) {
	if o.oracle == nil {
		return "", fmt.Errorf("orchestrator: no oracle backend configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, oracle.DefaultCallTimeout)
	defer cancel()
	result, err := o.oracle.Search(callCtx, query)
	o.emitter.Emit(council.Event{Type: council.EventOracleResult, Payload: council.EventPayloadOracle{Tool: oracle.ToolSearch, Result: result, Err: errString(err)}})
	return result, err
}

// UpdateAgent applies a partial update to one roster seat.
func (o *Orchestrator) UpdateAgent(id council.AgentID, patch func(*council.Agent)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.state.Agents[id]
	if !ok {
		return
	}
	patch(&a)
	o.state.Agents[id] = a
}

// UpdateCredentials swaps the adapter bound to a provider, e.g. after a
// host-side API key rotation.
func (o *Orchestrator) UpdateCredentials(provider string, adapter provideradapter.Adapter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.adapters[provider] = adapter
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// errorCode classifies a provider-call error for the agent-errors metric.
func errorCode(err error) string {
	if errors.Is(err, provideradapter.ErrModelNotFound) {
		return "model_not_found"
	}
	return "provider_error"
}

// eligibleAgents resolves who may bid this turn: the dyadic pair when
// an exchange is active, a host-forced agent, or the full roster —
// always filtered to seats whose provider has an adapter.
func (o *Orchestrator) eligibleAgents() []council.AgentID {
	o.mu.Lock()
	defer o.mu.Unlock()

	var candidates []council.AgentID
	if o.state.Active.Active() {
		candidates = []council.AgentID{o.state.Active.A, o.state.Active.B}
	} else if o.forcedAgent != "" {
		candidates = []council.AgentID{o.forcedAgent}
	} else {
		candidates = append(candidates, council.AllAgentIDs...)
	}

	eligible := candidates[:0:0]
	for _, id := range candidates {
		agent, ok := o.state.Agents[id]
		if !ok {
			continue
		}
		if _, ok := o.adapters[agent.Provider]; !ok {
			continue
		}
		eligible = append(eligible, id)
	}
	return eligible
}

// runTurn executes one full turn: eligibility, bidding, context build,
// streaming completion with the tool loop, normalization, persistence,
// cost update, and conflict re-evaluation.
func (o *Orchestrator) runTurn(ctx context.Context) error {
	eligible := o.eligibleAgents()
	if len(eligible) == 0 {
		o.emitter.Emit(council.Event{Type: council.EventError, Payload: council.EventPayloadError{Stage: "eligibility", Err: "no eligible agent to speak"}})
		o.Stop()
		return fmt.Errorf("orchestrator: no eligible agent to speak")
	}

	winner, bids := o.selectWinner(eligible)
	o.emitter.Emit(council.Event{Type: council.EventBiddingComplete, Payload: council.EventPayloadBid{Scores: bids, Winner: winner}})

	o.mu.Lock()
	agent := o.state.Agents[winner].Clone()
	o.fairnessM.RecordSpeaker(winner)
	if o.forcedAgent == winner {
		o.forcedAgent = ""
	}
	o.mu.Unlock()

	adapter, ok := o.adapters[agent.Provider]
	if !ok {
		err := fmt.Errorf("orchestrator: no adapter configured for provider %q", agent.Provider)
		o.emitter.Emit(council.Event{Type: council.EventError, Payload: council.EventPayloadError{Stage: string(winner), Err: err.Error()}})
		return err
	}

	msgID := uuid.NewString()
	o.emitter.Emit(council.Event{Type: council.EventTurnStarted, Payload: council.EventPayloadTurn{TurnNumber: o.state.TurnNumber + 1, Agent: winner}})

	if o.metrics != nil {
		o.metrics.BidsTotal.WithLabelValues(string(winner)).Inc()
	}

	conv := o.buildContext(agent, winner)
	result, finalText, usage, err := o.generateWithToolLoop(ctx, adapter, &agent, conv, msgID, winner)
	if err != nil {
		fallbackResult, fallbackText, fallbackUsage, fbErr := o.attemptModelFallback(ctx, adapter, &agent, conv, msgID, winner, err)
		if fbErr != nil {
			if o.metrics != nil {
				o.metrics.AgentErrorsTotal.WithLabelValues(string(winner), errorCode(err)).Inc()
			}
			o.emitter.Emit(council.Event{Type: council.EventError, Payload: council.EventPayloadError{Stage: string(winner), Err: err.Error()}})
			return nil
		}
		result, finalText, usage = fallbackResult, fallbackText, fallbackUsage
	}
	if o.metrics != nil {
		o.metrics.RequestDuration.WithLabelValues(string(winner)).Observe(float64(result.LatencyMS) / 1000)
	}

	finalText = oracle.Strip(finalText)
	mctx := &middleware.MessageContext{AgentID: winner, TurnNumber: o.state.TurnNumber + 1, Metadata: map[string]interface{}{}}
	msg := &council.Message{ID: msgID, Source: council.Source(winner), Content: finalText, Timestamp: time.Now()}

	processed, err := o.whitespaceNormalizer.Process(mctx, msg)
	if err != nil {
		o.emitter.Emit(council.Event{Type: council.EventError, Payload: council.EventPayloadError{Stage: string(winner), Err: err.Error()}})
		return nil
	}
	msg = processed

	if o.middleware != nil {
		processed, err := o.middleware.Process(mctx, msg)
		if err != nil {
			o.emitter.Emit(council.Event{Type: council.EventError, Payload: council.EventPayloadError{Stage: string(winner), Err: err.Error()}})
			return nil
		}
		if processed != nil {
			msg = processed
		}
	}
	msg.Usage = &usage
	msg.Metadata = &council.MessageMetadata{Model: agent.Model, LatencyMS: result.LatencyMS, BidScore: bids[winner]}

	o.mu.Lock()
	var beforeUSD float64
	if entry, ok := o.state.Cost.PerAgent[winner]; ok {
		beforeUSD = entry.USD
	}
	o.state.Messages = append(o.state.Messages, *msg)
	o.state.TurnNumber++
	o.state.Cost.RecordUsage(winner, agent.Model, usage)
	afterUSD := o.state.Cost.PerAgent[winner].USD
	messages := append([]council.Message(nil), o.state.Messages...)
	o.mu.Unlock()

	if o.metrics != nil && afterUSD > beforeUSD {
		o.metrics.CostUSDTotal.WithLabelValues(string(winner)).Add(afterUSD - beforeUSD)
	}

	o.emitter.Emit(council.Event{Type: council.EventMessageComplete, Payload: council.EventPayloadMessage{Message: *msg, Agent: winner}})
	o.emitter.Emit(council.Event{Type: council.EventCostUpdated, Payload: council.EventPayloadCost{Cost: o.state.Cost}})

	o.evaluateConflict(messages)
	return nil
}

// selectWinner runs raw bid scoring and applies fairness adjustments;
// ties break toward the lowest roster index.
func (o *Orchestrator) selectWinner(eligible []council.AgentID) (council.AgentID, map[council.AgentID]float64) {
	o.mu.Lock()
	messages := append([]council.Message(nil), o.state.Messages...)
	topic := o.state.Config.Topic
	pending := o.whisperM.ConsumeBonuses()
	o.mu.Unlock()

	bids, _ := bidding.Round(o.weights, messages, eligible, topic, pending, o.rng)
	adjustments := o.fairnessM.Adjustments(eligible)
	if o.metrics != nil {
		for agent, delta := range adjustments {
			o.metrics.RecordFairnessAdjustment(string(agent), delta)
		}
	}

	scores := make(map[council.AgentID]float64, len(bids))
	winnerIdx := 0
	bestScore := bids[0].Final + adjustments[bids[0].Agent]
	scores[bids[0].Agent] = bestScore
	for i := 1; i < len(bids); i++ {
		adjusted := bids[i].Final + adjustments[bids[i].Agent]
		scores[bids[i].Agent] = adjusted
		if adjusted > bestScore {
			bestScore = adjusted
			winnerIdx = i
		}
	}
	return bids[winnerIdx].Agent, scores
}

// buildContext assembles the provider context: system prompt, a
// topic-framing message, then the trailing K<=16 transcript messages
// with self messages remapped to the assistant role and everyone
// else's attributed by name prefix.
func (o *Orchestrator) buildContext(agent council.Agent, self council.AgentID) provideradapter.Conversation {
	o.mu.Lock()
	topic := o.state.Config.Topic
	names := make(map[council.AgentID]string, len(o.state.Agents))
	for id, a := range o.state.Agents {
		names[id] = a.Name
	}
	nonTopic := make([]council.Message, 0, len(o.state.Messages))
	for _, m := range o.state.Messages {
		if m.Source == council.SourceSystem {
			continue // the topic-intro message is reinjected below as its own framing turn
		}
		nonTopic = append(nonTopic, m)
	}
	start := 0
	if len(nonTopic) > MaxContextMessages {
		start = len(nonTopic) - MaxContextMessages
	}
	tail := nonTopic[start:]
	o.mu.Unlock()

	conv := provideradapter.Conversation{}
	if agent.SystemPrompt != "" {
		conv = append(conv, provideradapter.Turn{Role: provideradapter.RoleSystem, Text: agent.SystemPrompt})
	}
	conv = append(conv, provideradapter.Turn{
		Role: provideradapter.RoleSystem,
		Text: fmt.Sprintf("The current topic under discussion is: %s", topic),
	})

	for _, m := range tail {
		if m.Source == council.Source(self) {
			conv = append(conv, provideradapter.Turn{Role: provideradapter.RoleAssistant, Text: m.Content})
			continue
		}
		speaker := speakerLabel(m.Source, names)
		conv = append(conv, provideradapter.Turn{Role: provideradapter.RoleUser, Text: fmt.Sprintf("%s: %s", speaker, m.Content)})
	}
	return conv
}

func speakerLabel(src council.Source, names map[council.AgentID]string) string {
	switch src {
	case council.SourceUser:
		return "Host"
	case council.SourceSystem:
		return "System"
	case council.SourceTool:
		return "Oracle"
	default:
		if name, ok := names[council.AgentID(src)]; ok {
			return name
		}
		return string(src)
	}
}

// generateWithToolLoop runs a streaming completion, followed by up to
// MaxToolIterations rounds of extracting and dispatching @tool(...)
// directives from the accumulated text.
func (o *Orchestrator) generateWithToolLoop(
	ctx context.Context,
	adapter provideradapter.Adapter,
	agent *council.Agent,
	conv provideradapter.Conversation,
	msgID string,
	speaker council.AgentID,
) (provideradapter.CompletionResult, string, council.Usage, error) {
	opts := provideradapter.Options{Temperature: agent.Temperature, MaxOutputTokens: agent.MaxOutputTokens}

	var totalUsage council.Usage
	var lastResult provideradapter.CompletionResult

	for iteration := 0; ; iteration++ {
		var buf strings.Builder
		result, err := adapter.CompleteStream(ctx, agent.Model, conv, opts, func(delta string) {
			buf.WriteString(delta)
			if o.metrics != nil {
				o.metrics.StreamChunksTotal.WithLabelValues(string(speaker)).Inc()
			}
			o.emitter.Emit(council.Event{Type: council.EventMessageChunk, Payload: council.EventPayloadChunk{MessageID: msgID, Agent: speaker, Delta: delta}})
		})
		if err != nil {
			return lastResult, buf.String(), totalUsage, err
		}
		lastResult = result
		totalUsage.InputTokens += result.InputTokens
		totalUsage.OutputTokens += result.OutputTokens
		totalUsage.ReasoningTokens += result.ReasoningTokens
		totalUsage.HasReasoning = totalUsage.HasReasoning || result.HasReasoning

		text := result.Content
		if text == "" {
			text = buf.String()
		}

		if iteration >= MaxToolIterations || o.oracle == nil {
			return lastResult, text, totalUsage, nil
		}

		calls := oracle.Extract(text, MaxToolCallsPerIteration)
		if len(calls) == 0 {
			return lastResult, text, totalUsage, nil
		}

		results := oracle.DispatchAll(ctx, o.oracle, calls, oracle.DefaultCallTimeout)
		if o.metrics != nil {
			for _, r := range results {
				o.metrics.RecordToolCall(r.Call.Name, r.Err)
			}
		}
		cleaned := oracle.Strip(text)
		conv = append(conv, provideradapter.Turn{Role: provideradapter.RoleAssistant, Text: cleaned})
		for _, r := range results {
			toolMsg := council.Message{ID: uuid.NewString(), Source: council.SourceTool, Content: r.FormattedContent(), Timestamp: time.Now()}
			o.mu.Lock()
			o.state.Messages = append(o.state.Messages, toolMsg)
			o.mu.Unlock()
			o.emitter.Emit(council.Event{Type: council.EventMessageComplete, Payload: council.EventPayloadMessage{Message: toolMsg}})
			conv = append(conv, provideradapter.Turn{Role: provideradapter.RoleUser, Text: r.FormattedContent()})
		}
	}
}

// attemptModelFallback handles the one permitted retry: on a
// model-not-found error for an Anthropic opus-family model, rewrite to
// the canonical fallback and retry exactly once.
func (o *Orchestrator) attemptModelFallback(
	ctx context.Context,
	adapter provideradapter.Adapter,
	agent *council.Agent,
	conv provideradapter.Conversation,
	msgID string,
	speaker council.AgentID,
	original error,
) (provideradapter.CompletionResult, string, council.Usage, error) {
	if !errors.Is(original, provideradapter.ErrModelNotFound) {
		return provideradapter.CompletionResult{}, "", council.Usage{}, original
	}
	if agent.Provider != "anthropic" || !provideradapter.IsOpusFamily(agent.Model) {
		return provideradapter.CompletionResult{}, "", council.Usage{}, original
	}

	o.mu.Lock()
	agent.Model = provideradapter.CanonicalOpusFallback
	if stored, ok := o.state.Agents[speaker]; ok {
		stored.Model = provideradapter.CanonicalOpusFallback
		o.state.Agents[speaker] = stored
	}
	o.mu.Unlock()

	log.WithFields(map[string]interface{}{"agent": string(speaker), "model": provideradapter.CanonicalOpusFallback}).
		Warn("orchestrator: retrying turn after model-not-found fallback")

	return o.generateWithToolLoop(ctx, adapter, agent, conv, msgID, speaker)
}

// evaluateConflict runs the post-turn conflict pass: rescoring every
// pair in the trailing window and, when the pair driving the active
// dyadic exchange (if any) changes state, emitting the matching
// lifecycle events.
func (o *Orchestrator) evaluateConflict(messages []council.Message) {
	eval := o.conflictD.EvaluateAll(messages)

	o.mu.Lock()
	for _, rec := range eval.Pairs {
		stored := o.state.ConflictRecord(rec.A, rec.B)
		stored.Score = rec.Score
	}
	active := o.state.Active
	o.mu.Unlock()

	if o.metrics != nil {
		for _, rec := range eval.Pairs {
			o.metrics.ConflictScore.WithLabelValues(string(rec.A), string(rec.B)).Set(float64(rec.Score))
		}
	}

	o.emitter.Emit(council.Event{Type: council.EventConflictUpdated})

	if eval.Strongest == nil || !o.conflictD.ShouldActivate(*eval.Strongest) {
		o.advanceOrEndDuologue()
		return
	}

	rec := *eval.Strongest
	o.emitter.Emit(council.Event{Type: council.EventConflictDetected, Payload: council.EventPayloadConflict{A: rec.A, B: rec.B, Score: rec.Score}})

	if active.Active() {
		// A dyadic exchange never re-opens mid-flight, even if tension
		// rises elsewhere; the running one plays out first.
		o.advanceOrEndDuologue()
		return
	}

	o.mu.Lock()
	o.state.Active = &council.DyadicExchange{A: rec.A, B: rec.B, MaxTurns: conflict.DefaultExchangeTurns, StartedAt: time.Now()}
	o.mu.Unlock()
	if o.metrics != nil {
		o.metrics.DyadicExchangesTotal.Inc()
	}
	o.emitter.Emit(council.Event{Type: council.EventDuologueStarted, Payload: council.EventPayloadDuologue{A: rec.A, B: rec.B}})
}

// advanceOrEndDuologue advances the active dyadic exchange's turn
// counter and emits duologue_ended once it has run its course.
func (o *Orchestrator) advanceOrEndDuologue() {
	o.mu.Lock()
	if !o.state.Active.Active() {
		o.mu.Unlock()
		return
	}
	o.state.Active.TurnsElapsed++
	ended := !o.state.Active.Active()
	endedPair := *o.state.Active
	if ended {
		o.state.Active = nil
	}
	o.mu.Unlock()
	if ended {
		o.emitter.Emit(council.Event{Type: council.EventDuologueEnded, Payload: council.EventPayloadDuologue{A: endedPair.A, B: endedPair.B}})
	}
}
