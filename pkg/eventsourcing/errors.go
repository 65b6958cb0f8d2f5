package eventsourcing

import "errors"

// Sentinel errors returned by AggregateStore, wrapped with
// fmt.Errorf("...: %w", ...) to attach the offending handle.
var (
	ErrUnknownAggregate       = errors.New("eventsourcing: unknown aggregate")
	ErrInit                   = errors.New("eventsourcing: init event exists but could not be applied")
	ErrWrongEventForAggregate = errors.New("eventsourcing: event not applicable to aggregate, handle or version is off")
	ErrConcurrentModification = errors.New("eventsourcing: concurrent modification")
	ErrUnknownCommand         = errors.New("eventsourcing: aggregate does not have a command with that sequence")
	ErrCommandOffsetTooLarge  = errors.New("eventsourcing: history offset exceeds total")
	ErrWarmupFailed           = errors.New("eventsourcing: could not rebuild aggregate state, try recover")
	ErrCouldNotRecover        = errors.New("eventsourcing: could not recover aggregate state, use a consistent backup")
)
