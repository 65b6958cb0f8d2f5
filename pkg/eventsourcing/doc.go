/*
Package eventsourcing implements the engine room of krill: a generic
event-sourced aggregate store built on top of pkg/kv.

An Aggregate is a single long-lived entity (a CA, a publication server)
whose entire state is derived by replaying an InitEvent followed by a
sequence of Events. Commands are sent to an aggregate; processing a
command does not itself change state, it returns the Events that would.
A Factory tells the store how to construct and decode a particular
aggregate type, since Go has no associated-type mechanism to let the
store infer that on its own.

Persistence layout under a Store namespace, one sub-scope per aggregate
handle:

	<handle>/command-<seq>       StoredCommand, in command sequence order
	<handle>/delta-<version>     one event, stored under the version it applies to (delta-0 is the init event)
	<handle>/snapshot            latest full aggregate snapshot
	<handle>/snapshot-bk         previous snapshot, kept as a fallback
	<handle>/info                StoredValueInfo bookkeeping record
*/
package eventsourcing
