package daemon

import (
	"time"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/protocol"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/rig"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/telemetry"
)

// apply dispatches one decoded command. Rejections are logged, never fatal:
// the host may send anything at any time and the rig must keep ticking.
func (c *controller) apply(now time.Time, cmd protocol.Command) {
	switch v := cmd.(type) {
	case protocol.EmergencyRelease:
		c.fix.ForceRelease()
		c.logf(LogLevelInfo, "emergency release")

	case protocol.SessionStart:
		id, err := c.session.Start(now)
		if err != nil {
			c.logf(LogLevelError, "session start: %v", err)
			return
		}
		c.logf(LogLevelInfo, "session started id=%s", id)

	case protocol.SessionStop:
		c.session.Stop()
		c.logf(LogLevelInfo, "session stopped id=%s", c.session.ID())

	case protocol.FlushOn:
		c.setFlush(now, true)

	case protocol.FlushToggle:
		c.setFlush(now, !c.reward.Flushing())

	case protocol.Jog:
		if err := c.act.Jog(jogDirection(v.Direction)); err != nil {
			c.logf(LogLevelWarn, "jog %s refused: %v", v.Direction, err)
		}

	case protocol.JogStop:
		c.act.Stop()

	case protocol.SetLevel:
		if err := c.act.SetLevel(now, v.Level); err != nil {
			c.logf(LogLevelWarn, "level %d refused: %v", v.Level, err)
			return
		}
		c.logf(LogLevelInfo, "actuator moving to level %d", v.Level)

	case protocol.SetParam:
		c.setParam(v.Param, v.Value)

	case protocol.SetMode:
		c.setMode(now, v.Mode, v.On)
	}
}

func (c *controller) setFlush(now time.Time, on bool) {
	c.reward.SetFlush(on)
	c.status(now, telemetry.FlushLine(on))
	c.logf(LogLevelInfo, "flush %v", on)
}

// setParam assigns one numeric tunable. Negative values never make sense for
// any of these and are refused rather than clamped.
func (c *controller) setParam(p protocol.Param, value int) {
	if value < 0 {
		c.logf(LogLevelWarn, "param %s=%d refused: negative", p, value)
		return
	}
	c.tunables.Update(func(t *model.Tunables) {
		switch p {
		case protocol.ParamRewardDuration:
			t.RewardDurationMs = value
		case protocol.ParamRewardDelay:
			t.RewardDelayMs = value
		case protocol.ParamRewardBuffer:
			t.RewardBufferMs = value
		case protocol.ParamFixDuration:
			t.FixDurationMs = value
		case protocol.ParamFixDelay:
			t.FixDelayMs = value
		case protocol.ParamFixBuffer:
			t.FixBufferMs = value
		case protocol.ParamStruggleThreshold:
			t.StruggleThresholdG = float64(value)
		}
	})
	c.logf(LogLevelInfo, "param %s=%d", p, value)
}

func (c *controller) setMode(now time.Time, m protocol.Mode, on bool) {
	c.tunables.Update(func(t *model.Tunables) {
		switch m {
		case protocol.ModeFreeReward:
			t.AllowFreeReward = on
		case protocol.ModeHabituation:
			t.HabituationMode = on
		}
	})
	switch m {
	case protocol.ModeFreeReward:
		c.status(now, telemetry.FreeRewardLine(on))
	case protocol.ModeHabituation:
		c.status(now, telemetry.HabituationLine(on))
	}
	c.logf(LogLevelInfo, "mode %s=%v", m, on)
}

func jogDirection(d protocol.Direction) rig.JogDirection {
	switch d {
	case protocol.DirectionForward:
		return rig.JogForward
	case protocol.DirectionBackward:
		return rig.JogBackward
	case protocol.DirectionUp:
		return rig.JogUp
	case protocol.DirectionDown:
		return rig.JogDown
	}
	return rig.JogForward
}
