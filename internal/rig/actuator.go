package rig

import (
	"errors"
	"fmt"
	"time"
)

// Actuator levels span the travel axis: 1 is fully extended (the forward
// end the homing run drives into), 5 fully retracted.
const (
	MinLevel = 1
	MaxLevel = 5
)

type MotionState string

const (
	MotionUnhomed  MotionState = "unhomed"
	MotionHoming   MotionState = "homing"
	MotionIdle     MotionState = "idle"
	MotionLeveling MotionState = "leveling"
	MotionJogging  MotionState = "jogging"
)

var validMotionTransitions = map[MotionState][]MotionState{
	MotionUnhomed:  {MotionHoming},
	MotionHoming:   {MotionIdle},
	MotionIdle:     {MotionLeveling, MotionJogging},
	MotionLeveling: {MotionIdle},
	MotionJogging:  {MotionIdle},
}

func ValidateMotionTransition(from, to MotionState) error {
	for _, allowed := range validMotionTransitions[from] {
		if to == allowed {
			return nil
		}
	}
	return fmt.Errorf("invalid motion transition: %s -> %s", from, to)
}

type JogDirection string

const (
	JogForward  JogDirection = "forward"
	JogBackward JogDirection = "backward"
	JogUp       JogDirection = "up"
	JogDown     JogDirection = "down"
)

// DriveState is the desired energization of the four directional outputs.
type DriveState struct {
	Forward  bool
	Backward bool
	Up       bool
	Down     bool
}

var (
	ErrNotHomed        = errors.New("actuator not homed")
	ErrMotionBusy      = errors.New("actuator motion in progress")
	ErrAlreadyHomed    = errors.New("actuator already homed")
	ErrLevelOutOfRange = errors.New("level out of range")
)

// MotionDone describes a timed motion that just completed.
type MotionDone struct {
	Was   MotionState
	Level int
}

// Actuator schedules open-loop timed motions. There is no position feedback:
// a motion is a direction plus a deadline, and the level bookkeeping updates
// only when the deadline passes. At most one motion is in flight at a time.
type Actuator struct {
	state     MotionState
	level     int
	target    int
	busyUntil time.Time
	jogDir    JogDirection
	travel    time.Duration
	margin    time.Duration
}

func NewActuator(totalTravel, safetyMargin time.Duration) *Actuator {
	return &Actuator{
		state:  MotionUnhomed,
		level:  MinLevel,
		travel: totalTravel,
		margin: safetyMargin,
	}
}

// StepTime is the per-level motion duration: four equal steps across the
// five levels.
func (a *Actuator) StepTime() time.Duration {
	return a.travel / (MaxLevel - MinLevel)
}

func (a *Actuator) transition(to MotionState) error {
	if err := ValidateMotionTransition(a.state, to); err != nil {
		return err
	}
	a.state = to
	return nil
}

// StartHome begins the boot homing run: forward for the full travel plus the
// safety margin, which squares the carriage against the level-1 end stop.
// Accepted once, before any other motion.
func (a *Actuator) StartHome(now time.Time) error {
	if a.state != MotionUnhomed {
		return ErrAlreadyHomed
	}
	if err := a.transition(MotionHoming); err != nil {
		return err
	}
	a.busyUntil = now.Add(a.travel + a.margin)
	return nil
}

// SetLevel schedules a move to an absolute level. Out-of-range targets are
// rejected, a same-level target is a no-op, and nothing is accepted while
// another motion (homing, leveling, or a jog) holds the axis.
func (a *Actuator) SetLevel(now time.Time, target int) error {
	if target < MinLevel || target > MaxLevel {
		return ErrLevelOutOfRange
	}
	switch a.state {
	case MotionUnhomed:
		return ErrNotHomed
	case MotionHoming, MotionLeveling, MotionJogging:
		return ErrMotionBusy
	}
	if target == a.level {
		return nil
	}
	if err := a.transition(MotionLeveling); err != nil {
		return err
	}
	a.target = target
	delta := target - a.level
	if delta < 0 {
		delta = -delta
	}
	a.busyUntil = now.Add(time.Duration(delta) * a.StepTime())
	return nil
}

// Jog starts continuous manual drive in one direction until Stop. A jog
// never updates the level bookkeeping, so manual positioning can drift the
// tracked level away from the physical position; homing is the only way to
// re-square. Direction changes while already jogging are applied in place.
func (a *Actuator) Jog(dir JogDirection) error {
	switch a.state {
	case MotionUnhomed:
		return ErrNotHomed
	case MotionHoming, MotionLeveling:
		return ErrMotionBusy
	}
	if a.state != MotionJogging {
		if err := a.transition(MotionJogging); err != nil {
			return err
		}
	}
	a.jogDir = dir
	return nil
}

// Stop ends a jog. Timed motions own the axis until their deadline and are
// not interruptible; stopping while idle is a harmless no-op.
func (a *Actuator) Stop() {
	if a.state == MotionJogging {
		a.state = MotionIdle
		a.jogDir = ""
	}
}

// Advance completes a due timed motion. Returns the completion exactly once.
func (a *Actuator) Advance(now time.Time) (MotionDone, bool) {
	switch a.state {
	case MotionHoming, MotionLeveling:
	default:
		return MotionDone{}, false
	}
	if now.Before(a.busyUntil) {
		return MotionDone{}, false
	}
	done := MotionDone{Was: a.state}
	if a.state == MotionHoming {
		a.level = MinLevel
	} else {
		a.level = a.target
	}
	a.state = MotionIdle
	a.busyUntil = time.Time{}
	done.Level = a.level
	return done, true
}

// Drive reports which directional outputs should be energized right now.
func (a *Actuator) Drive() DriveState {
	switch a.state {
	case MotionHoming:
		return DriveState{Forward: true}
	case MotionLeveling:
		if a.target > a.level {
			return DriveState{Backward: true}
		}
		return DriveState{Forward: true}
	case MotionJogging:
		switch a.jogDir {
		case JogForward:
			return DriveState{Forward: true}
		case JogBackward:
			return DriveState{Backward: true}
		case JogUp:
			return DriveState{Up: true}
		case JogDown:
			return DriveState{Down: true}
		}
	}
	return DriveState{}
}

func (a *Actuator) Level() int { return a.level }

func (a *Actuator) Motion() MotionState { return a.state }

func (a *Actuator) Homed() bool {
	return a.state != MotionUnhomed && a.state != MotionHoming
}

func (a *Actuator) Busy() bool {
	return a.state == MotionHoming || a.state == MotionLeveling
}
