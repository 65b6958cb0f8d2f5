package eventsourcing

import (
	"fmt"
	"strings"
	"time"
)

// CommandSummary is a one-line, human-readable description of a
// command plus its arguments, used for command history display. Args
// are kept as an ordered slice rather than a map because display order
// matters and Go map iteration order does not.
type CommandSummary struct {
	Label   string
	Message string
	args    []commandArg
}

type commandArg struct {
	key   string
	value string
}

// NewCommandSummary starts a summary with label (a short machine-stable
// tag such as "cmd-ca-child-add") and a human-readable message.
func NewCommandSummary(label, message string) CommandSummary {
	return CommandSummary{Label: label, Message: message}
}

// WithArg appends an ordered key/value pair and returns the summary for
// chaining.
func (s CommandSummary) WithArg(key, value string) CommandSummary {
	s.args = append(append([]commandArg(nil), s.args...), commandArg{key, value})
	return s
}

// Args returns the ordered key/value pairs attached to the summary.
func (s CommandSummary) Args() []struct{ Key, Value string } {
	out := make([]struct{ Key, Value string }, len(s.args))
	for i, a := range s.args {
		out[i] = struct{ Key, Value string }{a.key, a.value}
	}
	return out
}

// String renders the summary with its arguments appended in order,
// e.g. "Add child name=child-1 resources=ipv4-block".
func (s CommandSummary) String() string {
	if len(s.args) == 0 {
		return s.Message
	}
	parts := make([]string, len(s.args))
	for i, a := range s.args {
		parts[i] = fmt.Sprintf("%s=%s", a.key, a.value)
	}
	return s.Message + " " + strings.Join(parts, " ")
}

// CommandEffectKind tags what happened when a command was processed.
type CommandEffectKind string

const (
	EffectInit    CommandEffectKind = "init"
	EffectSuccess CommandEffectKind = "success"
	EffectError   CommandEffectKind = "error"
)

// CommandEffect records what processing a command produced: either the
// aggregate versions of the events it caused, or the error message if
// it failed. A command that resulted in no events (a no-op) is never
// persisted, matching the original engine's behavior.
type CommandEffect struct {
	Kind          CommandEffectKind `json:"kind"`
	EventVersions []uint64          `json:"event_versions,omitempty"`
	ErrorMessage  string            `json:"error,omitempty"`
}

// StoredCommand is the persisted record of one command sent to an
// aggregate: when it was processed, what it was, and what it did.
type StoredCommand struct {
	Sequence        uint64        `json:"sequence"`
	Handle          string        `json:"handle"`
	Actor           string        `json:"actor"`
	Time            time.Time     `json:"time"`
	VersionBefore   uint64        `json:"version_before"`
	Label           string        `json:"label"`
	Summary         string        `json:"summary"`
	DetailsType     string        `json:"details_type"`
	DetailsEnvelope []byte        `json:"details_envelope"`
	Effect          CommandEffect `json:"effect"`
}

// StoredCommandBuilder accumulates the parts of a StoredCommand known
// before and after processing, mirroring the Rust builder of the same
// name in agg_store.rs.
type StoredCommandBuilder struct {
	sequence      uint64
	handle        string
	actor         string
	versionBefore uint64
	label         string
	summary       string
	detailsType   string
	detailsRaw    []byte
	at            time.Time
}

// NewStoredCommandBuilder captures everything known about a command
// before it is processed: its handle, the actor that issued it, the
// aggregate's version prior to processing, the command sequence number,
// and its storable details.
func NewStoredCommandBuilder(handle, actor string, versionBefore, sequence uint64, detailsType string, detailsRaw []byte, summary CommandSummary) *StoredCommandBuilder {
	return &StoredCommandBuilder{
		sequence:      sequence,
		handle:        handle,
		actor:         actor,
		versionBefore: versionBefore,
		label:         summary.Label,
		summary:       summary.String(),
		detailsType:   detailsType,
		detailsRaw:    detailsRaw,
		at:            time.Now(),
	}
}

// FinishWithEvents completes the command as a success, recording the
// versions of the events it produced.
func (b *StoredCommandBuilder) FinishWithEvents(events []Event) StoredCommand {
	versions := make([]uint64, len(events))
	for i, e := range events {
		versions[i] = e.Version()
	}
	return b.finish(CommandEffect{Kind: EffectSuccess, EventVersions: versions})
}

// FinishWithError completes the command as a failure.
func (b *StoredCommandBuilder) FinishWithError(err error) StoredCommand {
	return b.finish(CommandEffect{Kind: EffectError, ErrorMessage: err.Error()})
}

func (b *StoredCommandBuilder) finish(effect CommandEffect) StoredCommand {
	return StoredCommand{
		Sequence:        b.sequence,
		Handle:          b.handle,
		Actor:           b.actor,
		Time:            b.at,
		VersionBefore:   b.versionBefore,
		Label:           b.label,
		Summary:         b.summary,
		DetailsType:     b.detailsType,
		DetailsEnvelope: b.detailsRaw,
		Effect:          effect,
	}
}
