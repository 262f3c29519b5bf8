package daemon

import (
	"os"
	"time"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/hal"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/protocol"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/rig"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/telemetry"
)

// controller owns all rig state. Only the tick loop touches it, so nothing
// in here locks; concurrency ends at the daemon's channels.
type controller struct {
	cfg     model.Config
	bench   hal.Bench
	emitter *telemetry.Emitter
	logf    logFunc

	tunables *rig.TunableStore
	fix      *rig.FixationMachine
	reward   *rig.RewardController
	act      *rig.Actuator
	session  *rig.Session
	decoder  *protocol.Decoder

	leftDeb  *rig.Debouncer
	rightDeb *rig.Debouncer

	counters model.TrialCounters

	// last good sensor readings, reused when a read fails mid-session
	lastLeft   bool
	lastRight  bool
	lastLick   bool
	lastWeight float64

	lastCadenceAt time.Time

	// last written output values; hardware writes are skipped when the
	// desired state matches
	outInit   bool
	outPiston bool
	outValve  bool
	outDrive  rig.DriveState
}

func newController(cfg model.Config, bench hal.Bench, emitter *telemetry.Emitter, logf logFunc) *controller {
	return &controller{
		cfg:      cfg,
		bench:    bench,
		emitter:  emitter,
		logf:     logf,
		tunables: rig.NewTunableStore(cfg.Defaults),
		fix:      rig.NewFixationMachine(),
		reward:   rig.NewRewardController(),
		act: rig.NewActuator(
			time.Duration(cfg.Actuator.TotalTravelMs)*time.Millisecond,
			time.Duration(cfg.Actuator.SafetyMarginMs)*time.Millisecond,
		),
		session:  rig.NewSession(),
		decoder:  protocol.NewDecoder(),
		leftDeb:  rig.NewDebouncer(cfg.Rig.LeverDebounceTicks),
		rightDeb: rig.NewDebouncer(cfg.Rig.LeverDebounceTicks),
	}
}

// startHoming kicks off the boot homing run.
func (c *controller) startHoming(now time.Time) error {
	if err := c.act.StartHome(now); err != nil {
		return err
	}
	c.status(now, telemetry.StatusHoming)
	return nil
}

// Tick runs one control pass: decode host bytes, apply queued mutations,
// complete due motions and pulses, sense, evaluate fixation then reward,
// emit cadence telemetry, and sync the outputs.
func (c *controller) Tick(now time.Time, serialBuf []byte, queued []protocol.Command) {
	for _, cmd := range c.decoder.Feed(now, serialBuf) {
		c.apply(now, cmd)
	}
	for _, cmd := range queued {
		c.apply(now, cmd)
	}

	c.advanceHolds(now)

	levers, lick, weight := c.sense()
	tun := c.tunables.Snapshot()

	fixRes := c.fix.Evaluate(now, rig.FixationInput{Levers: levers, Weight: weight}, tun, &c.counters)
	c.applyFixation(now, fixRes)

	rewRes := c.reward.Evaluate(now, rig.RewardInput{
		Lick:       lick,
		Engaged:    c.fix.Engaged(),
		EngagedFor: c.fix.EngagedFor(now),
	}, tun, &c.counters)
	c.applyReward(now, rewRes)

	c.emitCadence(now, weight, fixRes.Heartbeat)

	c.syncOutputs(now)
}

// advanceHolds completes due timed motions and reward pulses.
func (c *controller) advanceHolds(now time.Time) {
	if done, ok := c.act.Advance(now); ok {
		if done.Was == rig.MotionHoming {
			c.status(now, telemetry.StatusHomingComplete)
			c.logf(LogLevelInfo, "homing complete, level %d", done.Level)
		} else {
			c.status(now, telemetry.LevelLine(done.Level))
			c.logf(LogLevelInfo, "actuator arrived at level %d", done.Level)
		}
	}
	// Valve closure on pulse end falls out of the output sync.
	c.reward.AdvancePulse(now)
}

func (c *controller) sense() (rig.LeverState, bool, float64) {
	if raw, err := c.bench.LeftLever.Read(); err == nil {
		c.lastLeft = c.leftDeb.Sample(raw)
	} else {
		c.logf(LogLevelError, "read %s: %v", c.bench.LeftLever.Name(), err)
	}
	if raw, err := c.bench.RightLever.Read(); err == nil {
		c.lastRight = c.rightDeb.Sample(raw)
	} else {
		c.logf(LogLevelError, "read %s: %v", c.bench.RightLever.Name(), err)
	}
	if raw, err := c.bench.Lick.Read(); err == nil {
		c.lastLick = raw
	} else {
		c.logf(LogLevelError, "read %s: %v", c.bench.Lick.Name(), err)
	}
	if raw, err := c.bench.Weight.Read(); err == nil {
		c.lastWeight = raw
	} else {
		c.logf(LogLevelError, "read %s: %v", c.bench.Weight.Name(), err)
	}
	return rig.LeverState{Left: c.lastLeft, Right: c.lastRight}, c.lastLick, c.lastWeight
}

func (c *controller) applyFixation(now time.Time, res rig.FixationResult) {
	switch res.Transition {
	case rig.TransitionEngage:
		c.status(now, telemetry.StatusFixationEngaged)
		c.logf(LogLevelInfo, "fixation engaged")
	case rig.TransitionRelease:
		c.status(now, telemetry.StatusFixationReleased)
		c.logf(LogLevelInfo, "fixation released after %s", res.Duration)
	case rig.TransitionEscape:
		c.status(now, telemetry.StatusEscapeEvent)
		c.logf(LogLevelInfo, "escape after %s", res.Duration)
	case rig.TransitionTimeUp:
		c.status(now, telemetry.StatusTimeUpRelease)
		c.logf(LogLevelInfo, "time-up release after %s", res.Duration)
	case rig.TransitionStruggle:
		c.status(now, telemetry.StatusStruggleYes)
		c.logf(LogLevelInfo, "struggle release after %s", res.Duration)
	}

	if res.Transition.Concluded() && c.session.Active() {
		c.event(now, telemetry.DurationSec(res.Duration), res.Counters)
		c.session.Observe(res.Counters)
	}
}

func (c *controller) applyReward(now time.Time, res rig.RewardResult) {
	if !res.Fired {
		return
	}
	c.status(now, telemetry.StatusRewardGiven)
	c.logf(LogLevelInfo, "reward pulse started")

	// A reward outside fixation concludes immediately as its own
	// duration-zero event; within fixation it rides in the trial counters.
	if res.FreeReward && c.session.Active() {
		c.event(now, 0, c.counters)
		c.session.Observe(c.counters)
		c.counters.Reset()
	}

	if res.StepBack {
		c.stepBack(now)
	}
}

func (c *controller) stepBack(now time.Time) {
	level := c.act.Level()
	if level <= rig.MinLevel {
		c.logf(LogLevelDebug, "habituation step skipped, already at level %d", level)
		return
	}
	if err := c.act.SetLevel(now, level-1); err != nil {
		c.logf(LogLevelWarn, "habituation step to level %d refused: %v", level-1, err)
		return
	}
	c.logf(LogLevelInfo, "habituation step back to level %d", level-1)
}

// emitCadence sends the periodic weight sample and, while a fixation is
// held, the struggle heartbeat.
func (c *controller) emitCadence(now time.Time, weight float64, heartbeat bool) {
	cadence := time.Duration(c.cfg.Rig.WeightEmitMs) * time.Millisecond
	if !c.lastCadenceAt.IsZero() && now.Sub(c.lastCadenceAt) < cadence {
		return
	}
	c.lastCadenceAt = now

	if c.session.Active() {
		if err := c.emitter.Weight(now, weight, c.session.ElapsedMs(now)); err != nil {
			c.logf(LogLevelDebug, "serial write failed: %v", err)
		}
	}
	if heartbeat {
		c.status(now, telemetry.StatusStruggleNo)
	}
}

// syncOutputs drives the hardware toward the desired state, writing only
// channels whose value changed since the last pass.
func (c *controller) syncOutputs(now time.Time) {
	piston := c.fix.Engaged()
	valve := c.reward.Flushing() || c.reward.PulseActive(now)
	drive := c.act.Drive()

	if !c.outInit || piston != c.outPiston {
		c.write(c.bench.Piston, piston)
		c.outPiston = piston
	}
	if !c.outInit || valve != c.outValve {
		c.write(c.bench.Valve, valve)
		c.outValve = valve
	}
	if !c.outInit || drive.Forward != c.outDrive.Forward {
		c.write(c.bench.DriveForward, drive.Forward)
	}
	if !c.outInit || drive.Backward != c.outDrive.Backward {
		c.write(c.bench.DriveBackward, drive.Backward)
	}
	if !c.outInit || drive.Up != c.outDrive.Up {
		c.write(c.bench.DriveUp, drive.Up)
	}
	if !c.outInit || drive.Down != c.outDrive.Down {
		c.write(c.bench.DriveDown, drive.Down)
	}
	c.outDrive = drive
	c.outInit = true
}

// safeOutputs parks the hardware for shutdown: piston open, valve closed,
// drives off.
func (c *controller) safeOutputs() {
	c.write(c.bench.Piston, false)
	c.write(c.bench.Valve, false)
	c.write(c.bench.DriveForward, false)
	c.write(c.bench.DriveBackward, false)
	c.write(c.bench.DriveUp, false)
	c.write(c.bench.DriveDown, false)
}

func (c *controller) write(out hal.DigitalOutput, active bool) {
	if err := out.Set(active); err != nil {
		c.logf(LogLevelError, "write %s: %v", out.Name(), err)
	}
}

func (c *controller) status(now time.Time, line string) {
	if err := c.emitter.Status(now, line); err != nil {
		c.logf(LogLevelDebug, "serial write failed: %v", err)
	}
}

func (c *controller) event(now time.Time, durationSec int, counters model.TrialCounters) {
	if err := c.emitter.Event(now, durationSec, counters); err != nil {
		c.logf(LogLevelDebug, "serial write failed: %v", err)
	}
}

// stateSnapshot reports the controller state for the control socket. The
// daemon fills in the process-level fields.
func (c *controller) stateSnapshot(now time.Time) model.RigSnapshot {
	snap := model.RigSnapshot{
		RigName:   c.cfg.Rig.Name,
		DaemonPID: os.Getpid(),
		Session: model.SessionSnapshot{
			Active:    c.session.Active(),
			ElapsedMs: c.session.ElapsedMs(now),
		},
		Fixation: model.FixationSnapshot{
			State:        string(c.fix.Phase()),
			Cooldown:     c.fix.Cooldown(),
			EngagedForMs: c.fix.EngagedFor(now).Milliseconds(),
		},
		Reward: model.RewardSnapshot{
			Flushing:           c.reward.Flushing(),
			ConsecutiveRewards: c.reward.ConsecutiveRewards(),
		},
		Actuator: model.ActuatorSnapshot{
			Level:  c.act.Level(),
			Motion: string(c.act.Motion()),
			Homed:  c.act.Homed(),
		},
		Tunables: c.tunables.Snapshot(),
		Totals:   c.session.Totals(),
	}
	if c.session.Active() {
		snap.Session.ID = c.session.ID()
		snap.Session.StartedAt = c.session.StartedAt().Format(time.RFC3339)
	}
	if !c.reward.LastRewardAt().IsZero() {
		snap.Reward.LastRewardAt = c.reward.LastRewardAt().Format(time.RFC3339)
	}
	return snap
}
