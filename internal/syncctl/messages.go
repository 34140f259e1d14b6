package syncctl

import (
	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/DoyleJ11/initiative-tracker/internal/turnclock"
)

type msg interface{ isControllerMsg() }

type loaded struct {
	enc       encounter.Encounter
	creatures []encounter.Creature
	reply     chan struct{}
}

func (loaded) isControllerMsg() {}

type loadFailed struct{ err error }

func (loadFailed) isControllerMsg() {}

// snapshotRequested comes from the display, through the channel link.
type snapshotRequested struct{ src channel.Target }

func (snapshotRequested) isControllerMsg() {}

type turnRequested struct {
	t     turnclock.Transition
	reply chan error
}

func (turnRequested) isControllerMsg() {}

type transitionDue struct {
	id int
	t  turnclock.Transition
}

func (transitionDue) isControllerMsg() {}

type creatureAdded struct {
	c     encounter.Creature
	reply chan struct{}
}

func (creatureAdded) isControllerMsg() {}

type creatureUpdated struct {
	c     encounter.Creature
	reply chan struct{}
}

func (creatureUpdated) isControllerMsg() {}

type creatureDeleted struct {
	id    string
	reply chan struct{}
}

func (creatureDeleted) isControllerMsg() {}

type encounterUpdated struct {
	enc   encounter.Encounter
	reply chan struct{}
}

func (encounterUpdated) isControllerMsg() {}

type mutationFailed struct{ err error }

func (mutationFailed) isControllerMsg() {}

type pushCurrent struct{}

func (pushCurrent) isControllerMsg() {}

type getState struct{ reply chan View }

func (getState) isControllerMsg() {}

// inbound adapts the channel link's callbacks onto the controller's inbox.
// The control side only ever answers requests.
type inbound struct{ c *Controller }

func (in inbound) RequestSnapshot(src channel.Target) {
	in.c.post(snapshotRequested{src: src})
}

func (inbound) SnapshotPush(channel.Target, encounter.Snapshot) {}
func (inbound) SnapshotPending(channel.Target)                  {}
