package eventsourcing

import (
	"encoding/json"
	"time"
)

// InitEvent is the first event ever stored for an aggregate instance.
// It carries whatever details a Factory needs to construct the
// aggregate's initial state.
type InitEvent interface {
	Handle() string
}

// Event is a state change applied to an aggregate. Events never have
// side effects: applying one must be a pure function of the aggregate's
// current state.
type Event interface {
	Handle() string
	Version() uint64
}

// Command is sent to an aggregate to request a state change. Version,
// when non-nil, pins the expected current aggregate version; a mismatch
// is reported as ErrConcurrentModification.
type Command interface {
	Handle() string
	Version() *uint64

	// Actor identifies who or what issued the command, persisted
	// alongside the command record so history can answer "who did this".
	Actor() string

	// StorableDetails returns the part of the command that gets
	// persisted to the command log, which may omit secrets the full
	// command carries (e.g. a signing request's key material).
	StorableDetails() StorableCommandDetails
}

// StorableCommandDetails is the part of a command that gets persisted
// to the command log and surfaced in command history. It is kept
// separate from Command so that secrets accepted by a command never
// have to be written to disk.
type StorableCommandDetails interface {
	// TypeName identifies the concrete details type, so a Factory can
	// pick the right Go type to decode it back into.
	TypeName() string
	Summary() CommandSummary
}

// Aggregate is a single event-sourced entity. Implementations are
// value types; the store clones them (via json round-trip) before
// mutating so that cached references handed out by GetLatest stay
// immutable to callers.
type Aggregate interface {
	Handle() string
	Version() uint64
	Apply(event Event)
	ProcessCommand(cmd Command) ([]Event, error)
}

// Envelope is the on-disk wrapper around an event, init event or
// command's storable details: a type tag plus the concrete payload.
// The tag lets a Factory pick the right Go type to unmarshal into,
// the same way pkg/manager's FSM tags Raft log entries by "op".
type Envelope struct {
	Type    string          `json:"type"`
	Handle  string          `json:"handle"`
	Version uint64          `json:"version,omitempty"`
	Time    time.Time       `json:"time"`
	Details json.RawMessage `json:"details"`
}

// Factory lets the generic AggregateStore construct and decode a
// specific aggregate type without Go generics getting in the way of
// JSON (de)serialization, which needs concrete types.
type Factory interface {
	// TypeName identifies the aggregate type in logs and metrics.
	TypeName() string

	// Init builds a fresh aggregate from its init event.
	Init(event InitEvent) (Aggregate, error)

	// DecodeInitEvent decodes the details of an init event envelope.
	DecodeInitEvent(env Envelope) (InitEvent, error)

	// DecodeEvent decodes the details of an event envelope.
	DecodeEvent(env Envelope) (Event, error)

	// DecodeCommandDetails decodes stored command details identified
	// by envelope type. AggregateStore itself does not call it: command
	// history and Recover work from the StoredCommand record alone.
	DecodeCommandDetails(env Envelope) (StorableCommandDetails, error)

	// DecodeSnapshot decodes a full aggregate snapshot.
	DecodeSnapshot(data []byte) (Aggregate, error)
}

// EncodeEvent wraps event in an Envelope ready for storage. typeName
// identifies the concrete event type so the Factory can decode it
// later.
func EncodeEvent(typeName string, event Event, at time.Time, details any) (Envelope, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:    typeName,
		Handle:  event.Handle(),
		Version: event.Version(),
		Time:    at,
		Details: raw,
	}, nil
}
