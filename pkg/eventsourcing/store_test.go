package eventsourcing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/krillca/krill/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The tests below mirror the original engine's own worked example:
// a toy Person aggregate that ages by going around the sun and can
// change its name, used to exercise the store end to end rather than
// just unit-test its pieces in isolation.

type personInit struct {
	HandleVal string `json:"handle"`
	Name      string `json:"name"`
}

func (e personInit) Handle() string { return e.HandleVal }

type personEventDetails struct {
	NameChanged *string `json:"name_changed,omitempty"`
	HadBirthday bool    `json:"had_birthday,omitempty"`
}

type personEvent struct {
	HandleVal  string             `json:"handle"`
	VersionVal uint64             `json:"version"`
	Details    personEventDetails `json:"details"`
}

func (e personEvent) Handle() string  { return e.HandleVal }
func (e personEvent) Version() uint64 { return e.VersionVal }

type personCommandDetails struct {
	ChangeName     *string `json:"change_name,omitempty"`
	GoAroundTheSun bool    `json:"go_around_the_sun,omitempty"`
}

func (d personCommandDetails) TypeName() string { return "person-command" }

func (d personCommandDetails) Summary() CommandSummary {
	if d.ChangeName != nil {
		return NewCommandSummary("person-change-name", "Change name").WithArg("name", *d.ChangeName)
	}
	return NewCommandSummary("person-around-sun", "Go around the sun")
}

type personCommand struct {
	HandleVal  string
	VersionVal *uint64
	Details    personCommandDetails
}

func (c personCommand) Handle() string                          { return c.HandleVal }
func (c personCommand) Version() *uint64                        { return c.VersionVal }
func (c personCommand) Actor() string                           { return "test-actor" }
func (c personCommand) StorableDetails() StorableCommandDetails { return c.Details }

func changeName(handle string, version *uint64, name string) personCommand {
	return personCommand{HandleVal: handle, VersionVal: version, Details: personCommandDetails{ChangeName: &name}}
}

func goAroundTheSun(handle string, version *uint64) personCommand {
	return personCommand{HandleVal: handle, VersionVal: version, Details: personCommandDetails{GoAroundTheSun: true}}
}

type person struct {
	HandleVal  string `json:"handle"`
	VersionVal uint64 `json:"version"`
	Name       string `json:"name"`
	Age        uint8  `json:"age"`
}

func (p *person) Handle() string  { return p.HandleVal }
func (p *person) Version() uint64 { return p.VersionVal }

func (p *person) Apply(event Event) {
	pe := event.(personEvent)
	if pe.Details.NameChanged != nil {
		p.Name = *pe.Details.NameChanged
	}
	if pe.Details.HadBirthday {
		p.Age++
	}
	p.VersionVal++
}

var errTooOld = fmt.Errorf("no person can live longer than 255 years")

func (p *person) ProcessCommand(cmd Command) ([]Event, error) {
	pc := cmd.(personCommand)
	if pc.Details.ChangeName != nil {
		return []Event{personEvent{HandleVal: p.HandleVal, VersionVal: p.VersionVal, Details: personEventDetails{NameChanged: pc.Details.ChangeName}}}, nil
	}
	if p.Age == 255 {
		return nil, errTooOld
	}
	return []Event{personEvent{HandleVal: p.HandleVal, VersionVal: p.VersionVal, Details: personEventDetails{HadBirthday: true}}}, nil
}

type personFactory struct{}

func (personFactory) TypeName() string { return "person" }

func (personFactory) Init(event InitEvent) (Aggregate, error) {
	init := event.(personInit)
	return &person{HandleVal: init.HandleVal, VersionVal: 1, Name: init.Name}, nil
}

func (personFactory) DecodeInitEvent(env Envelope) (InitEvent, error) {
	var init personInit
	if err := json.Unmarshal(env.Details, &init); err != nil {
		return nil, err
	}
	return init, nil
}

func (personFactory) DecodeEvent(env Envelope) (Event, error) {
	var evt personEvent
	if err := json.Unmarshal(env.Details, &evt); err != nil {
		return nil, err
	}
	return evt, nil
}

func (personFactory) DecodeCommandDetails(env Envelope) (StorableCommandDetails, error) {
	var d personCommandDetails
	if err := json.Unmarshal(env.Details, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func (personFactory) DecodeSnapshot(data []byte) (Aggregate, error) {
	var p person
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func newPersonStore(t *testing.T) *AggregateStore {
	t.Helper()
	store, err := kv.Open("memory:"+t.Name(), "person")
	require.NoError(t, err)
	return NewAggregateStore(store, personFactory{})
}

func TestEventSourcingFrameworkEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newPersonStore(t)

	counter := &EventCounter{}
	store.AddListener(counter)

	alice, err := store.Add(ctx, personInit{HandleVal: "alice", Name: "alice smith"})
	require.NoError(t, err)
	p := alice.(*person)
	assert.Equal(t, "alice smith", p.Name)
	assert.Equal(t, uint8(0), p.Age)

	var latest Aggregate
	for age := 0; age < 21; age++ {
		latest, err = store.Command(ctx, goAroundTheSun("alice", nil))
		require.NoError(t, err)
	}
	p = latest.(*person)
	assert.Equal(t, "alice smith", p.Name)
	assert.Equal(t, uint8(21), p.Age)

	v := p.Version()
	latest, err = store.Command(ctx, changeName("alice", &v, "alice smith-doe"))
	require.NoError(t, err)
	p = latest.(*person)
	assert.Equal(t, "alice smith-doe", p.Name)
	assert.Equal(t, uint8(21), p.Age)

	fresh, err := store.GetLatest(ctx, "alice")
	require.NoError(t, err)
	p = fresh.(*person)
	assert.Equal(t, "alice smith-doe", p.Name)
	assert.Equal(t, uint8(21), p.Age)

	assert.EqualValues(t, 22, counter.Total())

	var crit CommandHistoryCriteria
	crit.SetOffset(3)
	crit.SetRows(10)
	history, err := store.CommandHistory(ctx, "alice", crit)
	require.NoError(t, err)
	assert.Equal(t, 22, history.Total())
	assert.Equal(t, 3, history.Offset())
	assert.Len(t, history.Commands(), 10)
	assert.EqualValues(t, 4, history.Commands()[0].Sequence)

	var excl CommandHistoryCriteria
	excl.SetExclude([]string{"person-around-sun"})
	history, err = store.CommandHistory(ctx, "alice", excl)
	require.NoError(t, err)
	assert.Equal(t, 1, history.Total())
}

func TestCommandRejectsConcurrentModification(t *testing.T) {
	ctx := context.Background()
	store := newPersonStore(t)
	_, err := store.Add(ctx, personInit{HandleVal: "bob", Name: "bob"})
	require.NoError(t, err)

	stale := uint64(99)
	_, err = store.Command(ctx, goAroundTheSun("bob", &stale))
	require.ErrorIs(t, err, ErrConcurrentModification)
}

func TestCommandPersistsErrorWithoutEvents(t *testing.T) {
	ctx := context.Background()
	store := newPersonStore(t)
	_, err := store.Add(ctx, personInit{HandleVal: "carol", Name: "carol"})
	require.NoError(t, err)

	agg, err := store.GetLatest(ctx, "carol")
	require.NoError(t, err)
	p := agg.(*person)
	p.Age = 255
	require.NoError(t, store.storeSnapshot(ctx, "carol", p))
	store.cacheUpdate("carol", p)

	_, err = store.Command(ctx, goAroundTheSun("carol", nil))
	require.ErrorIs(t, err, errTooOld)

	history, err := store.CommandHistory(ctx, "carol", CommandHistoryCriteria{})
	require.NoError(t, err)
	require.Equal(t, 1, history.Total())
	assert.Equal(t, EffectError, history.Commands()[0].Effect.Kind)
}

func TestWarmAndRecoverRebuildCache(t *testing.T) {
	ctx := context.Background()
	store := newPersonStore(t)
	_, err := store.Add(ctx, personInit{HandleVal: "dave", Name: "dave"})
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		_, err = store.Command(ctx, goAroundTheSun("dave", nil))
		require.NoError(t, err)
	}

	require.NoError(t, store.Warm(ctx))
	require.NoError(t, store.Recover(ctx))

	agg, err := store.GetLatest(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, uint8(7), agg.(*person).Age)
}

func TestListReturnsAllHandles(t *testing.T) {
	ctx := context.Background()
	store := newPersonStore(t)
	_, err := store.Add(ctx, personInit{HandleVal: "eve", Name: "eve"})
	require.NoError(t, err)
	_, err = store.Add(ctx, personInit{HandleVal: "frank", Name: "frank"})
	require.NoError(t, err)

	handles, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"eve", "frank"}, handles)
}
