// Package rig implements the head-fixation control core: the fixation state
// machine, reward gating, the open-loop actuator scheduler, and session
// bookkeeping. Everything here is pure state-transition logic driven by
// explicit timestamps; I/O belongs to the daemon layer.
package rig

import (
	"math"
	"time"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
)

// LeverState is one sample of the two restraint levers, true = pressed.
type LeverState struct {
	Left  bool
	Right bool
}

func (l LeverState) BothPressed() bool  { return l.Left && l.Right }
func (l LeverState) BothReleased() bool { return !l.Left && !l.Right }
func (l LeverState) AnyReleased() bool  { return !l.Left || !l.Right }

type FixationPhase string

const (
	PhaseIdle    FixationPhase = "idle"
	PhaseEngaged FixationPhase = "engaged"
)

// Transition identifies the single state change an evaluation pass produced.
type Transition string

const (
	TransitionNone     Transition = ""
	TransitionEngage   Transition = "engage"
	TransitionRelease  Transition = "release"
	TransitionEscape   Transition = "escape"
	TransitionTimeUp   Transition = "time_up"
	TransitionStruggle Transition = "struggle"
)

// Concluded reports whether the transition ends a trial and therefore owes
// the host an event line.
func (t Transition) Concluded() bool {
	switch t {
	case TransitionRelease, TransitionEscape, TransitionTimeUp, TransitionStruggle:
		return true
	}
	return false
}

type FixationInput struct {
	Levers LeverState
	Weight float64
}

// FixationResult reports the effect of one evaluation pass. On a concluding
// transition, Duration is the engage-to-end interval and Counters holds the
// classified trial counters as they must appear on the wire.
type FixationResult struct {
	Transition Transition
	Duration   time.Duration
	Counters   model.TrialCounters
	Heartbeat  bool
}

// FixationMachine arbitrates the piston. Exactly one of the idle/engaged
// phases is active; the rules below fire at most one transition per pass.
type FixationMachine struct {
	phase     FixationPhase
	cooldown  bool
	startTime time.Time
	lastEnd   time.Time
}

func NewFixationMachine() *FixationMachine {
	return &FixationMachine{phase: PhaseIdle}
}

// Evaluate runs the per-tick transition rules in strict priority order:
// cooldown clear, engage, manual release (escape below the buffer), timeout,
// struggle. The first matching rule wins; callers apply piston and telemetry
// side effects from the result.
func (m *FixationMachine) Evaluate(now time.Time, in FixationInput, tun model.Tunables, counters *model.TrialCounters) FixationResult {
	// Post-timeout cooldown lifts the instant both levers are released,
	// regardless of phase, and always before the engage rule is considered.
	if in.Levers.BothReleased() {
		m.cooldown = false
	}

	switch m.phase {
	case PhaseIdle:
		fixDelay := time.Duration(tun.FixDelayMs) * time.Millisecond
		if in.Levers.BothPressed() && !m.cooldown && now.Sub(m.lastEnd) >= fixDelay {
			m.phase = PhaseEngaged
			m.startTime = now
			counters.Reset()
			counters.Fixed = 1
			return FixationResult{Transition: TransitionEngage}
		}

	case PhaseEngaged:
		duration := now.Sub(m.startTime)
		if in.Levers.AnyReleased() {
			tr := TransitionRelease
			if duration < time.Duration(tun.FixBufferMs)*time.Millisecond {
				counters.Fixed = 0
				counters.Escaped = 1
				tr = TransitionEscape
			}
			return m.conclude(now, tr, duration, counters)
		}
		if duration >= time.Duration(tun.FixDurationMs)*time.Millisecond {
			counters.Fixed = 0
			counters.TimedUp = 1
			// Levers are still held here, so the cooldown survives rule 1
			// until the subject lets go of both.
			m.cooldown = true
			return m.conclude(now, TransitionTimeUp, duration, counters)
		}
		if math.Abs(in.Weight) > tun.StruggleThresholdG {
			counters.Fixed = 0
			counters.Struggled = 1
			return m.conclude(now, TransitionStruggle, duration, counters)
		}
		return FixationResult{Heartbeat: true}
	}

	return FixationResult{}
}

func (m *FixationMachine) conclude(now time.Time, tr Transition, d time.Duration, counters *model.TrialCounters) FixationResult {
	m.phase = PhaseIdle
	m.startTime = time.Time{}
	m.lastEnd = now
	res := FixationResult{Transition: tr, Duration: d, Counters: *counters}
	counters.Reset()
	return res
}

// ForceRelease is the host emergency override: straight to idle with the
// cooldown cleared, no event, no counter changes. lastEnd is left alone so
// the engage delay still references the previous natural conclusion.
func (m *FixationMachine) ForceRelease() {
	m.phase = PhaseIdle
	m.cooldown = false
	m.startTime = time.Time{}
}

func (m *FixationMachine) Phase() FixationPhase { return m.phase }

func (m *FixationMachine) Engaged() bool { return m.phase == PhaseEngaged }

func (m *FixationMachine) Cooldown() bool { return m.cooldown }

// EngagedFor returns how long the current fixation has been held, zero when
// idle.
func (m *FixationMachine) EngagedFor(now time.Time) time.Duration {
	if m.phase != PhaseEngaged {
		return 0
	}
	return now.Sub(m.startTime)
}

func (m *FixationMachine) LastEnd() time.Time { return m.lastEnd }
