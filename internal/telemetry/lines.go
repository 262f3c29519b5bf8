// Package telemetry formats the controller's serial output: periodic weight
// samples, per-trial event lines, and human-readable status lines. The
// status strings below are matched by substring in the host GUI, so their
// exact text is part of the wire contract.
package telemetry

import (
	"fmt"
	"time"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
)

const (
	StatusReady            = "Head-Fixation Controller Ready"
	StatusHoming           = "Homing Actuator"
	StatusHomingComplete   = "Homing Complete"
	StatusFixationEngaged  = "Fixation Engaged"
	StatusFixationReleased = "Fixation Released"
	StatusEscapeEvent      = "Escape Event"
	StatusTimeUpRelease    = "Time-Up Release"
	StatusStruggleYes      = "Struggle YES"
	StatusStruggleNo       = "Struggle NO"
	StatusRewardGiven      = "Reward Given"
)

// WeightLine formats one load-cell sample with the session clock.
func WeightLine(grams float64, elapsedMs int64) string {
	return fmt.Sprintf("W,%.2f,%d", grams, elapsedMs)
}

// EventLine formats a trial conclusion: duration in whole seconds, then the
// five counters in fixed order.
func EventLine(durationSec int, c model.TrialCounters) string {
	return fmt.Sprintf("EVENT,%d,%d,%d,%d,%d,%d",
		durationSec, c.Fixed, c.Escaped, c.TimedUp, c.Struggled, c.Rewarded)
}

// DurationSec truncates a trial duration to whole seconds for the event
// line, so a 300ms escape reports 0 and a 1200ms struggle reports 1.
func DurationSec(d time.Duration) int {
	return int(d / time.Second)
}

// LevelLine reports an actuator arrival.
func LevelLine(level int) string {
	return fmt.Sprintf("Actuator Level %d", level)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// FlushLine reports a flush-mode change.
func FlushLine(on bool) string {
	return "Flush " + onOff(on)
}

// FreeRewardLine reports the free-reward flag.
func FreeRewardLine(on bool) string {
	return "Free Reward " + onOff(on)
}

// HabituationLine reports the habituation flag.
func HabituationLine(on bool) string {
	return "Habituation Mode " + onOff(on)
}
