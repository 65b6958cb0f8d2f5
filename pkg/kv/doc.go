/*
Package kv implements krill's namespaced, scope/key-addressed blob
store: the KeyValueStore described in the engine-room design. It is
the foundation the eventsourcing package builds its command log, event
log, snapshots and info records on top of.

A Key is a pair of a Scope (an ordered list of path segments, possibly
empty) and a Name (a single segment). A Store binds one Namespace to
one pluggable Backend, selected by a storage URI:

	memory:/anything           in-process, for tests
	local://<host><path>/      filesystem, one file per key
	bolt://<host><path>/       embedded bbolt database, one bucket per namespace

Archival (archive_key, archive_corrupt, archive_surplus) and crash
recovery are the only operations that move or discard event/command
data; the store itself never deletes history outright.
*/
package kv
