/*
Package log provides structured logging for krill using zerolog.

It wraps zerolog to give every subsystem (the key-value store, the
aggregate store, the signer dispatcher) a component-scoped logger with
consistent fields, so operators can grep logs by component or by
aggregate handle without relying on free-form message text.
*/
package log
