// Package protocol decodes the single-byte serial command stream from the
// host into tagged command values. Parsing lives here; state mutation stays
// with the daemon's dispatch.
package protocol

// Command is one decoded host instruction.
type Command interface {
	isCommand()
}

// EmergencyRelease forces the fixation machine idle and opens the piston.
type EmergencyRelease struct{}

// SessionStart begins telemetry and resets the session clock.
type SessionStart struct{}

// SessionStop ends telemetry.
type SessionStop struct{}

// FlushOn forces flush mode on ('W', the host's flush button engaging).
type FlushOn struct{}

// FlushToggle flips flush mode ('w').
type FlushToggle struct{}

// Jog drives the actuator continuously in one direction until JogStop.
type Jog struct {
	Direction Direction
}

// JogStop ends a jog.
type JogStop struct{}

// SetLevel moves the actuator to an absolute level.
type SetLevel struct {
	Level int
}

// SetParam assigns one numeric tunable.
type SetParam struct {
	Param Param
	Value int
}

// SetMode assigns one boolean mode flag.
type SetMode struct {
	Mode Mode
	On   bool
}

func (EmergencyRelease) isCommand() {}
func (SessionStart) isCommand()     {}
func (SessionStop) isCommand()      {}
func (FlushOn) isCommand()          {}
func (FlushToggle) isCommand()      {}
func (Jog) isCommand()              {}
func (JogStop) isCommand()          {}
func (SetLevel) isCommand()         {}
func (SetParam) isCommand()         {}
func (SetMode) isCommand()          {}

type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
	DirectionUp       Direction = "up"
	DirectionDown     Direction = "down"
)

type Param string

// ParamRewardDelay has no serial byte; it reaches the daemon only through
// config reloads.
const (
	ParamRewardDuration    Param = "reward_duration_ms"
	ParamStruggleThreshold Param = "struggle_threshold_g"
	ParamFixDuration       Param = "fix_duration_ms"
	ParamFixDelay          Param = "fix_delay_ms"
	ParamFixBuffer         Param = "fix_buffer_ms"
	ParamRewardBuffer      Param = "reward_buffer_ms"
	ParamRewardDelay       Param = "reward_delay_ms"
)

type Mode string

const (
	ModeFreeReward  Mode = "free_reward"
	ModeHabituation Mode = "habituation"
)
