// Package rig is the command channel to the external animation player. No
// rendering happens here; the player consumes JSON commands and owns the
// scene graph.
package rig

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotConnected = errors.New("rig not connected")
	ErrNoMouthParam = errors.New("no parameter tagged MOUTH_OPEN in binding table")
)

// Controller issues animation commands against the rig. Implementations
// must be safe for concurrent use; the lip-sync loop and the caller's
// control flow both issue commands.
type Controller interface {
	// SetVariable drives one raw rig control toward value over duration.
	SetVariable(name string, value float64, duration time.Duration) error
	// SetCoord moves the model on the canvas; origin is the canvas center.
	SetCoord(x, y int, duration time.Duration) error
	// SetScale sets the model's uniform scale factor.
	SetScale(scale float64, duration time.Duration) error
	// SetRotation sets the model rotation in degrees.
	SetRotation(deg float64, duration time.Duration) error
	// Play starts a named timeline.
	Play(timeline string) error
	// StopAllTimelines halts every running timeline.
	StopAllTimelines() error
}

// Command is the wire form of a rig command.
type Command struct {
	Type       string  `json:"type"`
	Name       string  `json:"name,omitempty"`
	Value      float64 `json:"value,omitempty"`
	X          int     `json:"x,omitempty"`
	Y          int     `json:"y,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`
}

// Command types.
const (
	CmdSetVariable      = "set_variable"
	CmdSetCoord         = "set_coord"
	CmdSetScale         = "set_scale"
	CmdSetRotation      = "set_rotation"
	CmdPlay             = "play"
	CmdStopAllTimelines = "stop_all_timelines"
)
