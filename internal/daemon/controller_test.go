package daemon

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/hal"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/protocol"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/telemetry"
)

// All controller tests drive Tick with synthetic timestamps; nothing here
// sleeps. Default timing: homing 6000ms, level step 1375ms, fixation
// timeout 7000ms, fix buffer 500ms, reward delay 1000ms, pulse 500ms.

func newTestController(t *testing.T) (*controller, *hal.SimBench, *bytes.Buffer) {
	t.Helper()
	sim := hal.NewSimBench()
	var buf bytes.Buffer
	cfg := *model.DefaultConfig()
	c := newController(cfg, sim.Bench(), telemetry.NewEmitter(&buf, nil), func(LogLevel, string, ...any) {})
	return c, sim, &buf
}

// home runs the boot homing to completion and returns the arrival time.
func home(t *testing.T, c *controller) time.Time {
	t.Helper()
	start := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	if err := c.startHoming(start); err != nil {
		t.Fatalf("startHoming: %v", err)
	}
	c.Tick(start.Add(10*time.Millisecond), nil, nil)
	end := start.Add(6 * time.Second)
	c.Tick(end, nil, nil)
	if !c.act.Homed() {
		t.Fatalf("actuator not homed, motion=%s", c.act.Motion())
	}
	return end
}

func startSession(c *controller, now time.Time) {
	c.Tick(now, nil, []protocol.Command{protocol.SessionStart{}})
}

// indexAfter fails unless want appears in s after the position of prev.
func indexAfter(t *testing.T, s, prev, want string) {
	t.Helper()
	i := strings.Index(s, prev)
	if i < 0 {
		t.Fatalf("output missing %q", prev)
	}
	if !strings.Contains(s[i+len(prev):], want) {
		t.Fatalf("output missing %q after %q:\n%s", want, prev, s)
	}
}

func TestHomingDrivesForwardThenStops(t *testing.T) {
	c, sim, buf := newTestController(t)
	start := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	if err := c.startHoming(start); err != nil {
		t.Fatalf("startHoming: %v", err)
	}
	if !strings.Contains(buf.String(), "Homing Actuator\n") {
		t.Errorf("missing homing start line:\n%s", buf.String())
	}

	c.Tick(start.Add(10*time.Millisecond), nil, nil)
	if !sim.DriveForward.Active() {
		t.Error("forward drive not energized during homing")
	}
	if sim.Piston.Active() {
		t.Error("piston engaged during homing")
	}

	// One tick short of the 5500+500ms window: still moving.
	c.Tick(start.Add(5990*time.Millisecond), nil, nil)
	if !sim.DriveForward.Active() {
		t.Error("forward drive dropped before homing window elapsed")
	}

	c.Tick(start.Add(6*time.Second), nil, nil)
	if sim.DriveForward.Active() {
		t.Error("forward drive still energized after homing")
	}
	if got := c.act.Level(); got != 1 {
		t.Errorf("level after homing = %d, want 1", got)
	}
	indexAfter(t, buf.String(), "Homing Actuator", "Homing Complete")
}

func TestEscapeEmitsEventAndReopensPiston(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)
	startSession(c, end.Add(time.Second))

	te := end.Add(2 * time.Second)
	sim.LeftLever.Set(true)
	sim.RightLever.Set(true)
	c.Tick(te, nil, nil)
	if !sim.Piston.Active() {
		t.Fatal("piston not engaged on both levers pressed")
	}
	if !strings.Contains(buf.String(), "Fixation Engaged\n") {
		t.Fatalf("missing engage line:\n%s", buf.String())
	}

	// Let go 300ms in, under the 500ms buffer: an escape, not a release.
	sim.LeftLever.Set(false)
	c.Tick(te.Add(300*time.Millisecond), nil, nil)
	if sim.Piston.Active() {
		t.Error("piston still engaged after escape")
	}
	indexAfter(t, buf.String(), "Fixation Engaged", "Escape Event")
	if !strings.Contains(buf.String(), "EVENT,0,0,1,0,0,0\n") {
		t.Errorf("missing escape event line:\n%s", buf.String())
	}
}

func TestManualReleasePastBufferCountsFixed(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)
	startSession(c, end.Add(time.Second))

	te := end.Add(2 * time.Second)
	sim.LeftLever.Set(true)
	sim.RightLever.Set(true)
	c.Tick(te, nil, nil)

	sim.RightLever.Set(false)
	c.Tick(te.Add(1400*time.Millisecond), nil, nil)
	indexAfter(t, buf.String(), "Fixation Engaged", "Fixation Released")
	if !strings.Contains(buf.String(), "EVENT,1,1,0,0,0,0\n") {
		t.Errorf("missing release event line:\n%s", buf.String())
	}
}

func TestTimeUpHoldsCooldownUntilLeversReleased(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)
	startSession(c, end.Add(time.Second))

	te := end.Add(2 * time.Second)
	sim.LeftLever.Set(true)
	sim.RightLever.Set(true)
	c.Tick(te, nil, nil)

	c.Tick(te.Add(7*time.Second), nil, nil)
	if sim.Piston.Active() {
		t.Fatal("piston still engaged after timeout")
	}
	if !strings.Contains(buf.String(), "Time-Up Release\n") {
		t.Fatalf("missing time-up line:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "EVENT,7,0,0,1,0,0\n") {
		t.Errorf("missing timeout event line:\n%s", buf.String())
	}

	// Still holding both levers: the cooldown blocks re-engagement no
	// matter how long they hold.
	c.Tick(te.Add(20*time.Second), nil, nil)
	if sim.Piston.Active() {
		t.Fatal("re-engaged during cooldown")
	}

	// Release both, wait out the engage delay, press again: a new trial.
	sim.LeftLever.Set(false)
	sim.RightLever.Set(false)
	c.Tick(te.Add(21*time.Second), nil, nil)
	sim.LeftLever.Set(true)
	sim.RightLever.Set(true)
	c.Tick(te.Add(23*time.Second), nil, nil)
	if !sim.Piston.Active() {
		t.Error("piston not re-engaged after cooldown cleared")
	}
}

func TestStruggleReleasesWithoutCooldown(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)
	startSession(c, end.Add(time.Second))

	te := end.Add(2 * time.Second)
	sim.LeftLever.Set(true)
	sim.RightLever.Set(true)
	c.Tick(te, nil, nil)

	// Calm hold first: the engaged heartbeat reports no struggle.
	c.Tick(te.Add(100*time.Millisecond), nil, nil)
	if !strings.Contains(buf.String(), "Struggle NO\n") {
		t.Fatalf("missing heartbeat line:\n%s", buf.String())
	}

	sim.Weight.SetGrams(-420.5)
	c.Tick(te.Add(1200*time.Millisecond), nil, nil)
	if sim.Piston.Active() {
		t.Fatal("piston still engaged after struggle")
	}
	indexAfter(t, buf.String(), "Struggle NO", "Struggle YES")
	if !strings.Contains(buf.String(), "EVENT,1,0,0,0,1,0\n") {
		t.Errorf("missing struggle event line:\n%s", buf.String())
	}

	// No cooldown after a struggle: levers still held re-engage as soon
	// as the engage delay from the conclusion passes.
	sim.Weight.SetGrams(0)
	c.Tick(te.Add(2300*time.Millisecond), nil, nil)
	if !sim.Piston.Active() {
		t.Error("piston not re-engaged after struggle release")
	}
}

func TestEventLinesRequireSession(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)

	te := end.Add(2 * time.Second)
	sim.LeftLever.Set(true)
	sim.RightLever.Set(true)
	c.Tick(te, nil, nil)
	sim.LeftLever.Set(false)
	c.Tick(te.Add(300*time.Millisecond), nil, nil)

	out := buf.String()
	if !strings.Contains(out, "Escape Event\n") {
		t.Fatalf("status lines should flow without a session:\n%s", out)
	}
	if strings.Contains(out, "EVENT,") {
		t.Errorf("event line emitted without a session:\n%s", out)
	}
	if strings.Contains(out, "W,") {
		t.Errorf("weight line emitted without a session:\n%s", out)
	}
}

func TestRewardDuringFixationRidesTrialCounters(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)
	startSession(c, end.Add(time.Second))

	te := end.Add(2 * time.Second)
	sim.LeftLever.Set(true)
	sim.RightLever.Set(true)
	c.Tick(te, nil, nil)

	sim.Lick.Set(true)
	c.Tick(te.Add(1500*time.Millisecond), nil, nil)
	sim.Lick.Set(false)
	if !sim.Valve.Active() {
		t.Fatal("valve not open during reward pulse")
	}
	if !strings.Contains(buf.String(), "Reward Given\n") {
		t.Fatalf("missing reward line:\n%s", buf.String())
	}

	// Pulse runs 500ms.
	c.Tick(te.Add(2*time.Second), nil, nil)
	if sim.Valve.Active() {
		t.Error("valve still open after pulse deadline")
	}

	// The engaged reward is not its own event; it rides the trial.
	if strings.Contains(buf.String(), "EVENT,") {
		t.Fatalf("premature event line:\n%s", buf.String())
	}

	sim.RightLever.Set(false)
	c.Tick(te.Add(2500*time.Millisecond), nil, nil)
	if !strings.Contains(buf.String(), "EVENT,2,1,0,0,0,1\n") {
		t.Errorf("missing release event with reward count:\n%s", buf.String())
	}

	// Valve writes: initial sync, open, close. Unchanged passes in
	// between must not rewrite the channel.
	if got := sim.Valve.Writes(); got != 3 {
		t.Errorf("valve writes = %d, want 3", got)
	}
}

func TestFreeRewardConcludesStandaloneEvent(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)
	startSession(c, end.Add(time.Second))

	tf := end.Add(2 * time.Second)
	sim.Lick.Set(true)
	c.Tick(tf, nil, nil)
	sim.Lick.Set(false)
	c.Tick(tf.Add(600*time.Millisecond), nil, nil)

	sim.Lick.Set(true)
	c.Tick(tf.Add(1200*time.Millisecond), nil, nil)
	sim.Lick.Set(false)

	out := buf.String()
	if got := strings.Count(out, "Reward Given\n"); got != 2 {
		t.Errorf("reward lines = %d, want 2:\n%s", got, out)
	}
	// Each free reward concludes on its own; the count never accumulates.
	if got := strings.Count(out, "EVENT,0,0,0,0,0,1\n"); got != 2 {
		t.Errorf("free reward events = %d, want 2:\n%s", got, out)
	}
}

func TestRewardDebounceBlocksRapidLicks(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)

	tf := end.Add(2 * time.Second)
	sim.Lick.Set(true)
	c.Tick(tf, nil, nil)
	sim.Lick.Set(false)

	// 800ms later: inside the 1000ms delay, refused.
	sim.Lick.Set(true)
	c.Tick(tf.Add(800*time.Millisecond), nil, nil)
	sim.Lick.Set(false)

	// 1200ms after the first: allowed again.
	sim.Lick.Set(true)
	c.Tick(tf.Add(1200*time.Millisecond), nil, nil)
	sim.Lick.Set(false)

	if got := strings.Count(buf.String(), "Reward Given\n"); got != 2 {
		t.Errorf("reward lines = %d, want 2:\n%s", got, buf.String())
	}
}

func TestRewardGateRequiresEngagedHoldWithoutFreeReward(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)
	c.Tick(end.Add(time.Second), nil, []protocol.Command{
		protocol.SetMode{Mode: protocol.ModeFreeReward, On: false},
	})

	// Idle lick: nothing.
	tf := end.Add(2 * time.Second)
	sim.Lick.Set(true)
	c.Tick(tf, nil, nil)
	sim.Lick.Set(false)
	if strings.Contains(buf.String(), "Reward Given") {
		t.Fatalf("reward outside fixation with free rewards off:\n%s", buf.String())
	}

	sim.LeftLever.Set(true)
	sim.RightLever.Set(true)
	c.Tick(tf.Add(time.Second), nil, nil)

	// Engaged 500ms: still under the 1000ms reward buffer.
	sim.Lick.Set(true)
	c.Tick(tf.Add(1500*time.Millisecond), nil, nil)
	sim.Lick.Set(false)
	if strings.Contains(buf.String(), "Reward Given") {
		t.Fatalf("reward before the engaged hold matured:\n%s", buf.String())
	}

	sim.Lick.Set(true)
	c.Tick(tf.Add(2100*time.Millisecond), nil, nil)
	sim.Lick.Set(false)
	if !strings.Contains(buf.String(), "Reward Given\n") {
		t.Errorf("reward refused after the hold matured:\n%s", buf.String())
	}
}

func TestFlushHoldsValveAndSuppressesRewards(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)

	tf := end.Add(time.Second)
	c.Tick(tf, []byte{'W'}, nil)
	if !sim.Valve.Active() {
		t.Fatal("valve not held open by flush")
	}
	if !strings.Contains(buf.String(), "Flush ON\n") {
		t.Fatalf("missing flush line:\n%s", buf.String())
	}

	sim.Lick.Set(true)
	c.Tick(tf.Add(100*time.Millisecond), nil, nil)
	sim.Lick.Set(false)
	if strings.Contains(buf.String(), "Reward Given") {
		t.Errorf("reward fired while flushing:\n%s", buf.String())
	}

	// 'w' toggles back off.
	c.Tick(tf.Add(200*time.Millisecond), []byte{'w'}, nil)
	if sim.Valve.Active() {
		t.Error("valve still open after flush off")
	}
	if !strings.Contains(buf.String(), "Flush OFF\n") {
		t.Errorf("missing flush off line:\n%s", buf.String())
	}
}

func TestLevelMoveEmitsArrivalLine(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)

	// 'L' with its argument and newline terminator, as the host sends it.
	tm := end.Add(time.Second)
	c.Tick(tm, []byte("L3\n"), nil)
	if !sim.DriveBackward.Active() {
		t.Fatal("backward drive not energized moving 1 -> 3")
	}

	// Two steps at 1375ms each.
	c.Tick(tm.Add(2750*time.Millisecond), nil, nil)
	if sim.DriveBackward.Active() {
		t.Error("drive still energized after arrival")
	}
	if got := c.act.Level(); got != 3 {
		t.Errorf("level = %d, want 3", got)
	}
	if !strings.Contains(buf.String(), "Actuator Level 3\n") {
		t.Errorf("missing arrival line:\n%s", buf.String())
	}
}

func TestLevelMoveRefusedWhileBusy(t *testing.T) {
	c, _, buf := newTestController(t)
	end := home(t, c)

	tm := end.Add(time.Second)
	c.Tick(tm, nil, []protocol.Command{protocol.SetLevel{Level: 4}})
	c.Tick(tm.Add(10*time.Millisecond), nil, []protocol.Command{protocol.SetLevel{Level: 2}})

	c.Tick(tm.Add(5*time.Second), nil, nil)
	if got := c.act.Level(); got != 4 {
		t.Errorf("level = %d, want 4 (the second move must be refused)", got)
	}
	if strings.Contains(buf.String(), "Actuator Level 2") {
		t.Errorf("refused move still reported arrival:\n%s", buf.String())
	}
}

func TestJogDoesNotTouchLevelBookkeeping(t *testing.T) {
	c, sim, _ := newTestController(t)
	end := home(t, c)

	tj := end.Add(time.Second)
	c.Tick(tj, []byte{'B'}, nil)
	if !sim.DriveBackward.Active() {
		t.Fatal("backward drive not energized by jog")
	}

	// Direction switch in place, then long drive: the level never moves.
	c.Tick(tj.Add(2*time.Second), []byte{'F'}, nil)
	if !sim.DriveForward.Active() || sim.DriveBackward.Active() {
		t.Error("jog direction switch not applied")
	}

	c.Tick(tj.Add(10*time.Second), []byte{'S'}, nil)
	if sim.DriveForward.Active() {
		t.Error("drive still energized after jog stop")
	}
	if got := c.act.Level(); got != 1 {
		t.Errorf("level = %d, want 1 (jogs must not update the level)", got)
	}
}

func TestHabituationStepsBackAfterStreak(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)

	tm := end.Add(time.Second)
	c.Tick(tm, nil, []protocol.Command{protocol.SetLevel{Level: 3}})
	now := tm.Add(2750 * time.Millisecond)
	c.Tick(now, nil, nil)
	if c.act.Level() != 3 {
		t.Fatalf("setup move failed, level=%d", c.act.Level())
	}

	c.Tick(now.Add(10*time.Millisecond), []byte("H1"), nil)
	if !strings.Contains(buf.String(), "Habituation Mode ON\n") {
		t.Fatalf("missing habituation line:\n%s", buf.String())
	}

	for i := 0; i < 25; i++ {
		now = now.Add(1100 * time.Millisecond)
		sim.Lick.Set(true)
		c.Tick(now, nil, nil)
		sim.Lick.Set(false)
		c.Tick(now.Add(10*time.Millisecond), nil, nil)
	}

	if got := strings.Count(buf.String(), "Reward Given\n"); got != 25 {
		t.Fatalf("reward count = %d, want 25", got)
	}
	if got := c.reward.ConsecutiveRewards(); got != 0 {
		t.Errorf("streak = %d after step back, want 0", got)
	}

	// The step-back move is one level toward the animal.
	c.Tick(now.Add(1375*time.Millisecond+20*time.Millisecond), nil, nil)
	if got := c.act.Level(); got != 2 {
		t.Errorf("level = %d, want 2 after habituation step", got)
	}
	if !strings.Contains(buf.String(), "Actuator Level 2\n") {
		t.Errorf("missing step-back arrival line:\n%s", buf.String())
	}
}

func TestWeightCadenceFollowsSessionClock(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)
	sim.Weight.SetGrams(312.5)

	ts := end.Add(time.Second)
	startSession(c, ts)
	for dt := 10 * time.Millisecond; dt <= 350*time.Millisecond; dt += 10 * time.Millisecond {
		c.Tick(ts.Add(dt), nil, nil)
	}

	out := buf.String()
	for _, want := range []string{"W,312.50,0\n", "W,312.50,100\n", "W,312.50,200\n", "W,312.50,300\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing weight line %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "W,312.50,"); got != 4 {
		t.Errorf("weight lines = %d, want 4", got)
	}

	// 'c' stops the session; the stream goes quiet.
	c.Tick(ts.Add(400*time.Millisecond), []byte{'c'}, nil)
	c.Tick(ts.Add(600*time.Millisecond), nil, nil)
	if got := strings.Count(buf.String(), "W,312.50,"); got != 4 {
		t.Errorf("weight lines after stop = %d, want 4", got)
	}
}

func TestEmergencyReleaseSkipsEventLine(t *testing.T) {
	c, sim, buf := newTestController(t)
	end := home(t, c)
	startSession(c, end.Add(time.Second))

	te := end.Add(2 * time.Second)
	sim.LeftLever.Set(true)
	sim.RightLever.Set(true)
	c.Tick(te, nil, nil)
	if !sim.Piston.Active() {
		t.Fatal("piston not engaged")
	}

	c.Tick(te.Add(time.Second), []byte{'j'}, nil)
	if sim.Piston.Active() {
		t.Error("piston still engaged after emergency release")
	}
	if strings.Contains(buf.String(), "EVENT,") {
		t.Errorf("emergency release must not emit an event line:\n%s", buf.String())
	}
}

func TestSetParamAppliesAndNegativeRefused(t *testing.T) {
	c, _, _ := newTestController(t)
	end := home(t, c)

	// "X3000\n" over the wire: fixation timeout down to 3s.
	c.Tick(end.Add(time.Second), []byte("X3000\n"), nil)
	if got := c.tunables.Snapshot().FixDurationMs; got != 3000 {
		t.Errorf("fix duration = %d, want 3000", got)
	}

	c.Tick(end.Add(2*time.Second), nil, []protocol.Command{
		protocol.SetParam{Param: protocol.ParamFixDuration, Value: -50},
	})
	if got := c.tunables.Snapshot().FixDurationMs; got != 3000 {
		t.Errorf("fix duration = %d after negative set, want 3000", got)
	}
}

type failInput struct{}

func (failInput) Name() string        { return "lever_left" }
func (failInput) Read() (bool, error) { return false, errors.New("i2c timeout") }

func TestSensorFailureReusesLastReading(t *testing.T) {
	c, sim, _ := newTestController(t)
	end := home(t, c)

	te := end.Add(time.Second)
	sim.LeftLever.Set(true)
	sim.RightLever.Set(true)
	c.Tick(te, nil, nil)
	if !sim.Piston.Active() {
		t.Fatal("piston not engaged")
	}

	// The left lever channel dies mid-fixation. Its last good reading
	// (pressed) carries the trial instead of faking an escape.
	c.bench.LeftLever = failInput{}
	c.Tick(te.Add(300*time.Millisecond), nil, nil)
	if !sim.Piston.Active() {
		t.Error("sensor failure released the fixation")
	}
}
