package eventsourcing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/krillca/krill/pkg/kv"
	"github.com/krillca/krill/pkg/log"
	"github.com/krillca/krill/pkg/metrics"
)

// snapshotFreq mirrors the original engine's SNAPSHOT_FREQ: a fresh
// snapshot is written every time an aggregate's version is a multiple
// of this value.
const snapshotFreq = 5

// StoredValueInfo is the bookkeeping record kept alongside a snapshot:
// enough to sanity-check the store without replaying every event.
type StoredValueInfo struct {
	LastEvent       uint64    `json:"last_event"`
	LastCommand     uint64    `json:"last_command"`
	LastUpdate      time.Time `json:"last_update"`
	SnapshotVersion uint64    `json:"snapshot_version"`
}

// AggregateStore is the generic event-sourced aggregate store: the
// engine room. One instance owns one kv.Store namespace and one
// Factory, and serves every aggregate instance (handle) within it.
type AggregateStore struct {
	kv      *kv.Store
	factory Factory

	cacheMu  sync.RWMutex
	cache    map[string]Aggregate
	useCache bool

	listenersMu sync.Mutex
	listeners   []EventListener

	// outerLock mirrors DiskAggregateStore's outer_lock: reads take the
	// read side, Add/Command take the write side, so a command is never
	// processed concurrently with another command or a warm/recover
	// pass over the same store.
	outerLock sync.RWMutex
}

// NewAggregateStore returns a store backed by store and factory, with
// the in-memory cache enabled.
func NewAggregateStore(store *kv.Store, factory Factory) *AggregateStore {
	return &AggregateStore{
		kv:       store,
		factory:  factory,
		cache:    map[string]Aggregate{},
		useCache: true,
	}
}

// AddListener registers l to be notified of every event persisted from
// this point on.
func (s *AggregateStore) AddListener(l EventListener) {
	s.outerLock.Lock()
	defer s.outerLock.Unlock()
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Has reports whether an aggregate with this handle exists.
func (s *AggregateStore) Has(ctx context.Context, handle string) bool {
	s.outerLock.RLock()
	defer s.outerLock.RUnlock()
	ok, err := s.kv.Has(ctx, infoKey(handle))
	return err == nil && ok
}

// List returns every known aggregate handle.
func (s *AggregateStore) List(ctx context.Context) ([]string, error) {
	s.outerLock.RLock()
	defer s.outerLock.RUnlock()
	scopes, err := s.kv.Scopes(ctx)
	if err != nil {
		return nil, err
	}
	var handles []string
	for _, sc := range scopes {
		if len(sc) != 1 {
			continue // skip quarantine sub-scopes such as <handle>/archived
		}
		handles = append(handles, string(sc[0]))
	}
	sort.Strings(handles)
	return handles, nil
}

// GetLatest returns the current state of the aggregate identified by
// handle, from cache when possible, replaying any events written since
// the cached copy was built.
func (s *AggregateStore) GetLatest(ctx context.Context, handle string) (Aggregate, error) {
	s.outerLock.RLock()
	defer s.outerLock.RUnlock()
	return s.getLatestNoLock(ctx, handle)
}

func (s *AggregateStore) getLatestNoLock(ctx context.Context, handle string) (Aggregate, error) {
	if agg := s.cacheGet(handle); agg != nil {
		updated, err := s.catchUp(ctx, handle, agg)
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	agg, err := s.loadAggregate(ctx, handle, nil)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, fmt.Errorf("%s: %w", handle, ErrUnknownAggregate)
	}
	s.cacheUpdate(handle, agg)
	return agg, nil
}

// catchUp replays any events beyond agg's current version onto a fresh
// copy of agg, so a cache hit never serves stale state within a single
// process.
func (s *AggregateStore) catchUp(ctx context.Context, handle string, agg Aggregate) (Aggregate, error) {
	next, err := s.deepCopy(agg)
	if err != nil {
		return nil, err
	}
	for {
		env, err := s.readEnvelope(ctx, deltaKey(handle, next.Version()))
		if err != nil {
			return nil, err
		}
		if env == nil {
			break
		}
		event, err := s.factory.DecodeEvent(*env)
		if err != nil {
			return nil, err
		}
		next.Apply(event)
	}
	s.cacheUpdate(handle, next)
	return next, nil
}

// loadAggregate rebuilds an aggregate from its snapshot (or backup
// snapshot, or init event) up to upTo, or to the latest available event
// when upTo is nil.
func (s *AggregateStore) loadAggregate(ctx context.Context, handle string, upTo *uint64) (Aggregate, error) {
	agg, err := s.snapshotFor(ctx, snapshotKey(handle), upTo)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		agg, err = s.snapshotFor(ctx, snapshotBackupKey(handle), upTo)
		if err != nil {
			return nil, err
		}
	}

	if agg == nil {
		env, err := s.readEnvelope(ctx, deltaKey(handle, 0))
		if err != nil {
			return nil, err
		}
		if env == nil {
			return nil, nil
		}
		initEvent, err := s.factory.DecodeInitEvent(*env)
		if err != nil {
			return nil, err
		}
		agg, err = s.factory.Init(initEvent)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", handle, ErrInit)
		}
	}

	for {
		if upTo != nil && agg.Version() > *upTo {
			break
		}
		env, err := s.readEnvelope(ctx, deltaKey(handle, agg.Version()))
		if err != nil {
			return nil, err
		}
		if env == nil {
			break
		}
		event, err := s.factory.DecodeEvent(*env)
		if err != nil {
			return nil, err
		}
		agg.Apply(event)
	}
	return agg, nil
}

func (s *AggregateStore) loadSnapshot(ctx context.Context, key kv.Key) (Aggregate, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}
	return s.factory.DecodeSnapshot(data)
}

// snapshotFor loads the snapshot at key and discards it as unusable if
// its version exceeds upTo: a snapshot newer than the point recovery is
// rolling back to would otherwise skip straight past the rollback
// target instead of rebuilding up to it.
func (s *AggregateStore) snapshotFor(ctx context.Context, key kv.Key, upTo *uint64) (Aggregate, error) {
	agg, err := s.loadSnapshot(ctx, key)
	if err != nil || agg == nil {
		return nil, err
	}
	if upTo != nil && agg.Version() > *upTo {
		return nil, nil
	}
	return agg, nil
}

func (s *AggregateStore) readEnvelope(ctx context.Context, key kv.Key) (*Envelope, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, kv.ErrCodec)
	}
	return &env, nil
}

func (s *AggregateStore) deepCopy(agg Aggregate) (Aggregate, error) {
	data, err := json.Marshal(agg)
	if err != nil {
		return nil, err
	}
	return s.factory.DecodeSnapshot(data)
}

func (s *AggregateStore) cacheGet(handle string) Aggregate {
	if !s.useCache {
		return nil
	}
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache[handle]
}

func (s *AggregateStore) cacheUpdate(handle string, agg Aggregate) {
	if !s.useCache {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[handle] = agg
	metrics.AggregatesCached.Set(float64(len(s.cache)))
}

// Add creates a new aggregate from init and persists its init event,
// initial snapshot and info record.
func (s *AggregateStore) Add(ctx context.Context, init InitEvent) (Aggregate, error) {
	s.outerLock.Lock()
	defer s.outerLock.Unlock()

	handle := init.Handle()
	env, err := EncodeEvent(s.factory.TypeName()+"-init", initEventAsEvent{init}, time.Now(), init)
	if err != nil {
		return nil, err
	}
	if err := s.storeEnvelope(ctx, deltaKey(handle, 0), env); err != nil {
		return nil, err
	}

	agg, err := s.factory.Init(init)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", handle, ErrInit)
	}

	if err := s.storeSnapshot(ctx, handle, agg); err != nil {
		return nil, err
	}

	info := StoredValueInfo{LastUpdate: time.Now()}
	if err := s.saveInfo(ctx, handle, info); err != nil {
		return nil, err
	}

	s.cacheUpdate(handle, agg)
	metrics.CommandsTotal.WithLabelValues(string(EffectInit)).Inc()
	return agg, nil
}

// initEventAsEvent adapts an InitEvent to the Event interface so it can
// be run through EncodeEvent; init events are always stored at
// version 0.
type initEventAsEvent struct{ InitEvent }

func (e initEventAsEvent) Version() uint64 { return 0 }

// Command sends cmd to its target aggregate: on success the command and
// its events are persisted and the resulting aggregate is returned; on
// a no-op (zero events) nothing is persisted and the info record is
// left unchanged; on failure the command and the error are persisted and the
// error is returned.
func (s *AggregateStore) Command(ctx context.Context, cmd Command) (Aggregate, error) {
	s.outerLock.Lock()
	defer s.outerLock.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommandDuration)

	handle := cmd.Handle()

	// info is read inside a per-handle kv transaction. It is written
	// back later with a separate saveInfo call, outside that
	// transaction; the read and the write are kept from interleaving
	// with another command only by outerLock, within this process.
	var info StoredValueInfo
	if err := s.kv.Transact(ctx, kv.HandleScope(handle), func(txn kv.Txn) error {
		data, err := txn.Get(infoKey(handle))
		if err != nil || data == nil {
			return err
		}
		return json.Unmarshal(data, &info)
	}); err != nil {
		return nil, fmt.Errorf("read info for %s: %w", handle, err)
	}
	info.LastUpdate = time.Now()
	info.LastCommand++

	latest, err := s.getLatestNoLock(ctx, handle)
	if err != nil {
		return nil, err
	}

	if v := cmd.Version(); v != nil && *v != latest.Version() {
		log.WithHandle(handle).Error().
			Uint64("expected", *v).
			Uint64("found", latest.Version()).
			Msg("version conflict updating aggregate")
		metrics.CommandsTotal.WithLabelValues("concurrent-modification").Inc()
		return nil, fmt.Errorf("%s: %w", handle, ErrConcurrentModification)
	}

	builder := NewStoredCommandBuilder(handle, cmd.Actor(), latest.Version(), info.LastCommand,
		cmd.StorableDetails().TypeName(), mustMarshal(cmd.StorableDetails()), cmd.StorableDetails().Summary())

	events, cmdErr := latest.ProcessCommand(cmd)
	if cmdErr != nil {
		stored := builder.FinishWithError(cmdErr)
		if err := s.storeCommand(ctx, stored); err != nil {
			return nil, err
		}
		if err := s.saveInfo(ctx, handle, info); err != nil {
			return nil, err
		}
		metrics.CommandsTotal.WithLabelValues(string(EffectError)).Inc()
		return nil, cmdErr
	}

	if len(events) == 0 {
		// No-op: the spec requires the info record stay untouched, so
		// we deliberately skip saveInfo here.
		metrics.CommandsTotal.WithLabelValues("no-op").Inc()
		return latest, nil
	}

	versionBefore := latest.Version()
	for i, event := range events {
		if event.Version() != versionBefore+uint64(i) || event.Handle() != handle {
			return nil, fmt.Errorf("%s: %w", handle, ErrWrongEventForAggregate)
		}
	}

	info.LastEvent += uint64(len(events))

	stored := builder.FinishWithEvents(events)
	if err := s.storeCommand(ctx, stored); err != nil {
		return nil, err
	}

	agg, err := s.deepCopy(latest)
	if err != nil {
		return nil, err
	}
	for _, event := range events {
		env, err := EncodeEvent(s.factory.TypeName()+"-event", event, time.Now(), event)
		if err != nil {
			return nil, err
		}
		if err := s.storeEnvelope(ctx, deltaKey(handle, event.Version()), env); err != nil {
			return nil, err
		}
		agg.Apply(event)
		metrics.EventsAppendedTotal.Inc()

		if agg.Version()%snapshotFreq == 0 {
			info.SnapshotVersion = agg.Version()
			if err := s.storeSnapshot(ctx, handle, agg); err != nil {
				return nil, err
			}
		}
	}

	s.cacheUpdate(handle, agg)

	if err := s.saveInfo(ctx, handle, info); err != nil {
		return nil, err
	}

	s.notifyListeners(agg, events)
	metrics.CommandsTotal.WithLabelValues(string(EffectSuccess)).Inc()
	return agg, nil
}

func (s *AggregateStore) notifyListeners(agg Aggregate, events []Event) {
	s.listenersMu.Lock()
	listeners := append([]EventListener(nil), s.listeners...)
	s.listenersMu.Unlock()
	for _, event := range events {
		for _, l := range listeners {
			l.Listen(agg, event)
		}
	}
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func (s *AggregateStore) storeEnvelope(ctx context.Context, key kv.Key, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.kv.Store(ctx, key, data)
}

func (s *AggregateStore) storeSnapshot(ctx context.Context, handle string, agg Aggregate) error {
	existing, err := s.kv.Get(ctx, snapshotKey(handle))
	if err != nil {
		return err
	}
	if existing != nil {
		if err := s.kv.Store(ctx, snapshotBackupKey(handle), existing); err != nil {
			return err
		}
	}
	data, err := json.Marshal(agg)
	if err != nil {
		return err
	}
	if err := s.kv.Store(ctx, snapshotKey(handle), data); err != nil {
		return err
	}
	metrics.SnapshotsTotal.Inc()
	return nil
}

func (s *AggregateStore) storeCommand(ctx context.Context, cmd StoredCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return s.kv.Store(ctx, commandKey(cmd.Handle, cmd.Sequence), data)
}

func (s *AggregateStore) loadInfo(ctx context.Context, handle string) (StoredValueInfo, error) {
	data, err := s.kv.Get(ctx, infoKey(handle))
	if err != nil {
		return StoredValueInfo{}, err
	}
	if data == nil {
		return StoredValueInfo{}, nil
	}
	var info StoredValueInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return StoredValueInfo{}, fmt.Errorf("decode info for %s: %w", handle, kv.ErrCodec)
	}
	return info, nil
}

func (s *AggregateStore) saveInfo(ctx context.Context, handle string, info StoredValueInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.kv.Store(ctx, infoKey(handle), data)
}

// Warm loads every known aggregate into the cache, for use right after
// startup. A failure here means the on-disk state is inconsistent and
// the operator should run Recover.
func (s *AggregateStore) Warm(ctx context.Context) error {
	handles, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, handle := range handles {
		if _, err := s.GetLatest(ctx, handle); err != nil {
			return fmt.Errorf("%s: %w: %v", handle, ErrWarmupFailed, err)
		}
	}
	return nil
}

// Recover walks every aggregate's command and event log, archiving any
// command or event that cannot be read or that references data which
// never made it to disk, then rebuilds a fresh snapshot and info
// record from whatever remains. Use this after Warm fails.
func (s *AggregateStore) Recover(ctx context.Context) error {
	handles, err := s.List(ctx)
	if err != nil {
		return err
	}

	s.outerLock.Lock()
	defer s.outerLock.Unlock()

	for _, handle := range handles {
		outcome, err := s.recoverOne(ctx, handle)
		if err != nil {
			metrics.RecoverRunsTotal.WithLabelValues("failed").Inc()
			return err
		}
		metrics.RecoverRunsTotal.WithLabelValues(outcome).Inc()
	}
	return nil
}

func (s *AggregateStore) recoverOne(ctx context.Context, handle string) (string, error) {
	log.WithHandle(handle).Info().Msg("recovering aggregate state")

	keys, err := s.kv.Keys(ctx, kv.HandleScope(handle), false)
	if err != nil {
		return "", err
	}

	var commandKeys []kv.Key
	for _, k := range keys {
		if strings.HasPrefix(string(k.Name), "command-") {
			commandKeys = append(commandKeys, k)
		}
	}
	sort.Slice(commandKeys, func(i, j int) bool { return commandKeys[i].String() < commandKeys[j].String() })

	var lastGoodEvent, lastGoodCommand uint64
	hunkydory := true
	outcome := "clean"

	for _, k := range commandKeys {
		if !hunkydory {
			if err := s.kv.ArchiveSurplus(ctx, k); err != nil {
				return "", err
			}
			continue
		}

		data, err := s.kv.Get(ctx, k)
		if err != nil {
			hunkydory = false
			outcome = "repaired"
			if archErr := s.kv.ArchiveCorrupt(ctx, k); archErr != nil {
				return "", archErr
			}
			continue
		}
		var cmd StoredCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			hunkydory = false
			outcome = "repaired"
			if archErr := s.kv.ArchiveCorrupt(ctx, k); archErr != nil {
				return "", archErr
			}
			continue
		}

		if cmd.Effect.Kind == EffectSuccess {
			ok := true
			for _, v := range cmd.Effect.EventVersions {
				env, err := s.readEnvelope(ctx, deltaKey(handle, v))
				if err != nil || env == nil {
					ok = false
					break
				}
				if _, err := s.factory.DecodeEvent(*env); err != nil {
					ok = false
					break
				}
				lastGoodEvent = v
			}
			if !ok {
				hunkydory = false
				outcome = "repaired"
				if err := s.kv.ArchiveSurplus(ctx, k); err != nil {
					return "", err
				}
				continue
			}
		}
		lastGoodCommand = cmd.Sequence
	}

	if err := s.archiveSurplusEventsAfter(ctx, handle, lastGoodEvent); err != nil {
		return "", err
	}

	agg, err := s.loadAggregate(ctx, handle, &lastGoodEvent)
	if err != nil {
		return "", fmt.Errorf("%s: %w", handle, ErrCouldNotRecover)
	}
	if agg == nil {
		return "", fmt.Errorf("%s: %w", handle, ErrCouldNotRecover)
	}

	info := StoredValueInfo{
		LastEvent:       lastGoodEvent,
		LastCommand:     lastGoodCommand,
		LastUpdate:      time.Now(),
		SnapshotVersion: agg.Version(),
	}

	if err := s.storeSnapshot(ctx, handle, agg); err != nil {
		return "", err
	}
	s.cacheUpdate(handle, agg)
	if err := s.saveInfo(ctx, handle, info); err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *AggregateStore) archiveSurplusEventsAfter(ctx context.Context, handle string, lastGood uint64) error {
	keys, err := s.kv.Keys(ctx, kv.HandleScope(handle), false)
	if err != nil {
		return err
	}
	for _, k := range keys {
		version, ok := parseDeltaVersion(string(k.Name))
		if !ok || version <= lastGood {
			continue
		}
		if err := s.kv.ArchiveSurplus(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// CommandHistory returns a filtered, paginated view of a handle's
// command log.
func (s *AggregateStore) CommandHistory(ctx context.Context, handle string, crit CommandHistoryCriteria) (CommandHistory, error) {
	s.outerLock.RLock()
	defer s.outerLock.RUnlock()

	keys, err := s.kv.Keys(ctx, kv.HandleScope(handle), false)
	if err != nil {
		return CommandHistory{}, err
	}
	var commands []StoredCommand
	for _, k := range keys {
		if !strings.HasPrefix(string(k.Name), "command-") {
			continue
		}
		data, err := s.kv.Get(ctx, k)
		if err != nil || data == nil {
			continue
		}
		var cmd StoredCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		commands = append(commands, cmd)
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].Sequence < commands[j].Sequence })

	if crit.Offset > len(commands) {
		return CommandHistory{}, fmt.Errorf("%d/%d: %w", crit.Offset, len(commands), ErrCommandOffsetTooLarge)
	}
	return buildHistory(commands, crit), nil
}

// StoredCommandAt returns the stored command with the given sequence
// number for handle, if any.
func (s *AggregateStore) StoredCommandAt(ctx context.Context, handle string, sequence uint64) (*StoredCommand, error) {
	s.outerLock.RLock()
	defer s.outerLock.RUnlock()

	data, err := s.kv.Get(ctx, commandKey(handle, sequence))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%s seq %d: %w", handle, sequence, ErrUnknownCommand)
	}
	var cmd StoredCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("decode command %d for %s: %w", sequence, handle, kv.ErrCodec)
	}
	return &cmd, nil
}

// StoredEventAt returns the event at the given version for handle, if
// any.
func (s *AggregateStore) StoredEventAt(ctx context.Context, handle string, version uint64) (Event, error) {
	s.outerLock.RLock()
	defer s.outerLock.RUnlock()

	env, err := s.readEnvelope(ctx, deltaKey(handle, version))
	if err != nil || env == nil {
		return nil, err
	}
	return s.factory.DecodeEvent(*env)
}

// Key naming: command-<seq10>, delta-<version20>, snapshot, snapshot-bk, info.

func commandKey(handle string, seq uint64) kv.Key {
	return kv.Key{Scope: kv.HandleScope(handle), Name: kv.Segment(fmt.Sprintf("command-%010d", seq))}
}

func deltaKey(handle string, version uint64) kv.Key {
	return kv.Key{Scope: kv.HandleScope(handle), Name: kv.Segment(fmt.Sprintf("delta-%020d", version))}
}

func infoKey(handle string) kv.Key {
	return kv.Key{Scope: kv.HandleScope(handle), Name: kv.Segment("info")}
}

func snapshotKey(handle string) kv.Key {
	return kv.Key{Scope: kv.HandleScope(handle), Name: kv.Segment("snapshot")}
}

func snapshotBackupKey(handle string) kv.Key {
	return kv.Key{Scope: kv.HandleScope(handle), Name: kv.Segment("snapshot-bk")}
}

func parseDeltaVersion(name string) (uint64, bool) {
	const prefix = "delta-"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(name, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
