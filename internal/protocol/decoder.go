package protocol

import (
	"strconv"
	"time"
)

// ArgTimeout bounds the wait for a command's argument bytes. The original
// firmware's integer parse gives up after one second and yields zero; the
// same policy here keeps a half-sent command from wedging the adapter.
const ArgTimeout = time.Second

const maxArgLen = 10

// Decoder turns the inbound byte stream into commands. It is fed once per
// tick with whatever bytes arrived since the last pass. After a command
// completes, the unconsumed remainder of that batch is discarded, which
// matches the firmware's drain of its receive buffer and self-heals framing
// drift.
type Decoder struct {
	pending  byte
	arg      []byte
	argStart time.Time
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Pending reports whether a command byte is waiting on argument bytes.
func (d *Decoder) Pending() bool { return d.pending != 0 }

// Feed consumes one batch of inbound bytes and returns the decoded commands.
// Call it every tick even with an empty batch so a stalled argument read can
// time out.
func (d *Decoder) Feed(now time.Time, buf []byte) []Command {
	var out []Command

	if d.pending != 0 && now.Sub(d.argStart) >= ArgTimeout {
		out = append(out, d.complete())
	}

	for i := 0; i < len(buf); i++ {
		b := buf[i]

		if d.pending != 0 {
			cmd, done := d.argByte(b)
			if done {
				out = append(out, cmd)
				return out
			}
			continue
		}

		if cmd, ok := immediate(b); ok {
			out = append(out, cmd)
			return out
		}
		if wantsArg(b) {
			d.pending = b
			d.arg = d.arg[:0]
			d.argStart = now
		}
		// Anything else is line noise; drop it.
	}
	return out
}

// argByte consumes one byte of an in-flight argument. done is true when the
// command completed.
func (d *Decoder) argByte(b byte) (Command, bool) {
	switch d.pending {
	case 'M', 'H':
		// One-byte flag: '1' is on, anything else off.
		d.arg = append(d.arg, b)
		return d.complete(), true
	default:
		if b >= '0' && b <= '9' || (b == '-' && len(d.arg) == 0) {
			d.arg = append(d.arg, b)
			if len(d.arg) >= maxArgLen {
				return d.complete(), true
			}
			return nil, false
		}
		// First non-digit terminates the integer; the terminator itself
		// (normally the trailing newline) is consumed.
		return d.complete(), true
	}
}

func (d *Decoder) complete() Command {
	cmd := d.pending
	arg := d.arg
	d.pending = 0
	d.arg = nil

	switch cmd {
	case 'M':
		return SetMode{Mode: ModeFreeReward, On: flagOn(arg)}
	case 'H':
		return SetMode{Mode: ModeHabituation, On: flagOn(arg)}
	case 'R':
		return SetParam{Param: ParamRewardDuration, Value: parseIntZero(arg)}
	case 'T':
		return SetParam{Param: ParamStruggleThreshold, Value: parseIntZero(arg)}
	case 'X':
		return SetParam{Param: ParamFixDuration, Value: parseIntZero(arg)}
	case 'Y':
		return SetParam{Param: ParamFixDelay, Value: parseIntZero(arg)}
	case 'Z':
		return SetParam{Param: ParamFixBuffer, Value: parseIntZero(arg)}
	case 'Q':
		return SetParam{Param: ParamRewardBuffer, Value: parseIntZero(arg)}
	case 'L':
		return SetLevel{Level: parseIntZero(arg)}
	}
	// Unreachable: pending is only ever set to a byte handled above.
	return nil
}

func immediate(b byte) (Command, bool) {
	switch b {
	case 'j':
		return EmergencyRelease{}, true
	case 'b':
		return SessionStart{}, true
	case 'c':
		return SessionStop{}, true
	case 'W':
		return FlushOn{}, true
	case 'w':
		return FlushToggle{}, true
	case 'F':
		return Jog{Direction: DirectionForward}, true
	case 'B':
		return Jog{Direction: DirectionBackward}, true
	case 'U':
		return Jog{Direction: DirectionUp}, true
	case 'D':
		return Jog{Direction: DirectionDown}, true
	case 'S':
		return JogStop{}, true
	}
	return nil, false
}

func wantsArg(b byte) bool {
	switch b {
	case 'R', 'M', 'H', 'T', 'X', 'Y', 'Z', 'Q', 'L':
		return true
	}
	return false
}

func flagOn(arg []byte) bool {
	return len(arg) == 1 && arg[0] == '1'
}

// parseIntZero resolves unparsable arguments to zero, matching the
// firmware's integer parse.
func parseIntZero(arg []byte) int {
	v, err := strconv.Atoi(string(arg))
	if err != nil {
		return 0
	}
	return v
}
