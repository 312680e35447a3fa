package council

import "sync"

// EventType tags the members of the event stream a host shell subscribes
// to. Ordering within a single
// turn is guaranteed by the orchestrator's single-writer loop, not by
// this type.
type EventType string

const (
	EventCouncilStarted   EventType = "council_started"
	EventCouncilPaused    EventType = "council_paused"
	EventCouncilCompleted EventType = "council_completed"
	EventBiddingComplete  EventType = "bidding_complete"
	EventTurnStarted      EventType = "turn_started"
	EventMessageChunk     EventType = "message_chunk"
	EventMessageReplace   EventType = "message_replace"
	EventMessageComplete  EventType = "message_complete"
	EventCostUpdated      EventType = "cost_updated"
	EventConflictUpdated  EventType = "conflict_updated"
	EventConflictDetected EventType = "conflict_detected"
	EventDuologueStarted  EventType = "duologue_started"
	EventDuologueEnded    EventType = "duologue_ended"
	EventOracleResult     EventType = "oracle_result"
	EventWhisperSent      EventType = "whisper_sent"
	EventError            EventType = "error"
)

// Event is one entry in the stream delivered to subscribers. Payload's
// concrete type depends on Type; see the EventPayload* types below.
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventPayloadBid is carried by EventBiddingComplete.
type EventPayloadBid struct {
	Scores map[AgentID]float64
	Winner AgentID
}

// EventPayloadTurn is carried by EventTurnStarted.
type EventPayloadTurn struct {
	TurnNumber int
	Agent      AgentID
}

// EventPayloadChunk is carried by EventMessageChunk.
type EventPayloadChunk struct {
	MessageID string
	Agent     AgentID
	Delta     string
}

// EventPayloadMessage is carried by EventMessageComplete and
// EventMessageReplace.
type EventPayloadMessage struct {
	Message Message
	Agent   AgentID
}

// EventPayloadCost is carried by EventCostUpdated.
type EventPayloadCost struct {
	Cost CostBreakdown
}

// EventPayloadConflict is carried by EventConflictUpdated and
// EventConflictDetected.
type EventPayloadConflict struct {
	A     AgentID
	B     AgentID
	Score float64
}

// EventPayloadDuologue is carried by EventDuologueStarted/Ended.
type EventPayloadDuologue struct {
	A AgentID
	B AgentID
}

// EventPayloadOracle is carried by EventOracleResult.
type EventPayloadOracle struct {
	Tool   string
	Result string
	Err    string
}

// EventPayloadWhisper is carried by EventWhisperSent.
type EventPayloadWhisper struct {
	From    AgentID
	To      AgentID
	Content string
}

// EventPayloadError is carried by EventError.
type EventPayloadError struct {
	Stage string
	Err   string
}

// EventListener receives events as they are published. Implementations
// must not block the emitter for long; slow consumers should buffer
// internally.
type EventListener func(Event)

// EventEmitter fans a single stream of events out to any number of
// listeners: one subscribe point plus a typed Event rather than one
// method per event kind.
type EventEmitter struct {
	mu        sync.RWMutex
	listeners []EventListener
}

// NewEventEmitter returns an emitter with no subscribers.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{}
}

// OnEvent registers a listener. Safe to call concurrently with Emit.
func (e *EventEmitter) OnEvent(fn EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Emit publishes ev to every registered listener, synchronously and in
// registration order. The orchestrator's single-writer loop is the only
// caller, so ordering across event types follows call order.
func (e *EventEmitter) Emit(ev Event) {
	e.mu.RLock()
	listeners := make([]EventListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
