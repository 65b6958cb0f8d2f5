/*
Package metrics exposes Prometheus instrumentation for the key-value
store, the aggregate store, and the signer dispatcher, following the
same counter/histogram/Timer conventions the teacher's metrics package
uses for cluster operations.
*/
package metrics
