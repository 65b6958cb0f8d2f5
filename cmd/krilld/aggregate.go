package main

import (
	"encoding/json"
	"fmt"

	"github.com/krillca/krill/pkg/eventsourcing"
)

// The engine room's Aggregate/Factory contract is deliberately
// domain-agnostic (see pkg/eventsourcing); krilld needs one concrete
// aggregate to exercise warm/recover/history against, standing in for
// the certificate authority aggregate a full RPKI implementation would
// register here. It tracks only a handle, a version and how many times
// its signing key has been rotated — enough to drive the CLI without
// pulling in RPKI protocol logic, which SPEC_FULL.md excludes.

type caInit struct {
	HandleVal string `json:"handle"`
}

func (e caInit) Handle() string { return e.HandleVal }

type caEventDetails struct {
	Rotated bool `json:"rotated,omitempty"`
}

type caEvent struct {
	HandleVal  string         `json:"handle"`
	VersionVal uint64         `json:"version"`
	Details    caEventDetails `json:"details"`
}

func (e caEvent) Handle() string  { return e.HandleVal }
func (e caEvent) Version() uint64 { return e.VersionVal }

type caCommandDetails struct {
	Rotate bool `json:"rotate,omitempty"`
}

func (d caCommandDetails) TypeName() string { return "ca-command" }

func (d caCommandDetails) Summary() eventsourcing.CommandSummary {
	return eventsourcing.NewCommandSummary("ca-rotate", "Rotate signing key")
}

type caCommand struct {
	HandleVal  string
	VersionVal *uint64
	ActorVal   string
}

func (c caCommand) Handle() string   { return c.HandleVal }
func (c caCommand) Version() *uint64 { return c.VersionVal }
func (c caCommand) Actor() string    { return c.ActorVal }
func (c caCommand) StorableDetails() eventsourcing.StorableCommandDetails {
	return caCommandDetails{Rotate: true}
}

type ca struct {
	HandleVal     string `json:"handle"`
	VersionVal    uint64 `json:"version"`
	RotationCount uint64 `json:"rotation_count"`
}

func (a *ca) Handle() string  { return a.HandleVal }
func (a *ca) Version() uint64 { return a.VersionVal }

func (a *ca) Apply(event eventsourcing.Event) {
	ce := event.(caEvent)
	if ce.Details.Rotated {
		a.RotationCount++
	}
	a.VersionVal++
}

func (a *ca) ProcessCommand(cmd eventsourcing.Command) ([]eventsourcing.Event, error) {
	if _, ok := cmd.(caCommand); !ok {
		return nil, fmt.Errorf("ca: unexpected command type %T", cmd)
	}
	return []eventsourcing.Event{
		caEvent{HandleVal: a.HandleVal, VersionVal: a.VersionVal, Details: caEventDetails{Rotated: true}},
	}, nil
}

type caFactory struct{}

func (caFactory) TypeName() string { return "ca" }

func (caFactory) Init(event eventsourcing.InitEvent) (eventsourcing.Aggregate, error) {
	init := event.(caInit)
	return &ca{HandleVal: init.HandleVal, VersionVal: 1}, nil
}

func (caFactory) DecodeInitEvent(env eventsourcing.Envelope) (eventsourcing.InitEvent, error) {
	var init caInit
	if err := json.Unmarshal(env.Details, &init); err != nil {
		return nil, fmt.Errorf("decode ca init event: %w", err)
	}
	return init, nil
}

func (caFactory) DecodeEvent(env eventsourcing.Envelope) (eventsourcing.Event, error) {
	var evt caEvent
	if err := json.Unmarshal(env.Details, &evt); err != nil {
		return nil, fmt.Errorf("decode ca event: %w", err)
	}
	return evt, nil
}

func (caFactory) DecodeCommandDetails(env eventsourcing.Envelope) (eventsourcing.StorableCommandDetails, error) {
	var d caCommandDetails
	if err := json.Unmarshal(env.Details, &d); err != nil {
		return nil, fmt.Errorf("decode ca command details: %w", err)
	}
	return d, nil
}

func (caFactory) DecodeSnapshot(data []byte) (eventsourcing.Aggregate, error) {
	var a ca
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode ca snapshot: %w", err)
	}
	return &a, nil
}
