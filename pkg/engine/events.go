package engine

import "github.com/openeuler-mirror/xlin-sbom/pkg/engine/merge"

// EventKind classifies the structured events the engine publishes while a
// scan runs.
type EventKind string

const (
	// EventPhase marks the start of a pipeline phase. Detail carries the
	// phase name.
	EventPhase EventKind = "phase"
	// EventProgress reports work inside the current phase. Done/Total are
	// the completed and planned unit counts, Path the unit being worked.
	EventProgress EventKind = "progress"
	// EventPartialFailure reports a recovered per-unit failure. Path is the
	// failing unit, Err the cause. The scan keeps going.
	EventPartialFailure EventKind = "partial-failure"
	// EventUnresolved reports a dependency hint that matched nothing. Path
	// is the requiring component, Detail the capability.
	EventUnresolved EventKind = "unresolved"
	// EventAlternative reports a dependency several components could
	// satisfy. Path is the requiring component, Detail the capability.
	EventAlternative EventKind = "alternative"
	// EventPolicy reports a component matched by an exclusion or warning
	// rule. Path is the component, Detail the rule id and action.
	EventPolicy EventKind = "policy"
	// EventDelta carries the incremental merge classification.
	EventDelta EventKind = "delta"
)

// Event is one structured scan event. Which fields are set depends on Kind.
type Event struct {
	Kind   EventKind
	Detail string
	Path   string
	Err    error

	Done  int
	Total int

	Delta *merge.Delta
}

// Sink receives engine events. Implementations must tolerate calls from
// multiple goroutines: detector and hashing workers publish concurrently.
type Sink interface {
	Publish(Event)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(Event) {}
