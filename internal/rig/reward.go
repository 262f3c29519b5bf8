package rig

import (
	"time"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
)

// HabituationThreshold is the consecutive-reward count that steps the
// actuator back one level while habituation mode is on.
const HabituationThreshold = 25

type RewardInput struct {
	Lick       bool
	Engaged    bool
	EngagedFor time.Duration
}

type RewardResult struct {
	// Fired means a pulse started this pass: open the valve, report the
	// reward, and hold until the pulse deadline.
	Fired bool
	// FreeReward marks a pulse delivered outside an engaged fixation; it
	// concludes as a standalone duration-zero event.
	FreeReward bool
	// StepBack asks for the habituation level decrement.
	StepBack bool
}

// RewardController arbitrates solenoid pulses: lick-triggered, debounced by
// rewardDelay, gated on fixation state unless free rewards are allowed, and
// suppressed entirely while flushing.
type RewardController struct {
	lastReward  time.Time
	pulseUntil  time.Time
	consecutive int
	flushing    bool
}

func NewRewardController() *RewardController {
	return &RewardController{}
}

// Evaluate decides whether a pulse starts this pass. Runs strictly after the
// fixation evaluation so the engaged state it sees is settled for this tick.
func (r *RewardController) Evaluate(now time.Time, in RewardInput, tun model.Tunables, counters *model.TrialCounters) RewardResult {
	if r.flushing || !in.Lick {
		return RewardResult{}
	}
	if r.PulseActive(now) {
		// A pulse is still being held; never overlap a second one.
		return RewardResult{}
	}
	rewardDelay := time.Duration(tun.RewardDelayMs) * time.Millisecond
	if !r.lastReward.IsZero() && now.Sub(r.lastReward) <= rewardDelay {
		return RewardResult{}
	}
	rewardBuffer := time.Duration(tun.RewardBufferMs) * time.Millisecond
	allowed := tun.AllowFreeReward || (in.Engaged && in.EngagedFor >= rewardBuffer)
	if !allowed {
		return RewardResult{}
	}

	r.lastReward = now
	r.pulseUntil = now.Add(time.Duration(tun.RewardDurationMs) * time.Millisecond)
	counters.Rewarded++

	res := RewardResult{Fired: true, FreeReward: !in.Engaged}
	if tun.HabituationMode {
		r.consecutive++
		if r.consecutive >= HabituationThreshold {
			res.StepBack = true
			r.consecutive = 0
		}
	} else {
		r.consecutive = 0
	}
	return res
}

// AdvancePulse reports true exactly once when the in-flight pulse passes its
// deadline; the caller closes the valve unless flushing holds it open.
func (r *RewardController) AdvancePulse(now time.Time) bool {
	if r.pulseUntil.IsZero() || now.Before(r.pulseUntil) {
		return false
	}
	r.pulseUntil = time.Time{}
	return true
}

func (r *RewardController) PulseActive(now time.Time) bool {
	return !r.pulseUntil.IsZero() && now.Before(r.pulseUntil)
}

// SetFlush toggles flush mode. While on, the valve is held open and pulse
// logic is suppressed; the caller owns the valve write.
func (r *RewardController) SetFlush(on bool) {
	r.flushing = on
}

func (r *RewardController) Flushing() bool { return r.flushing }

func (r *RewardController) ConsecutiveRewards() int { return r.consecutive }

func (r *RewardController) LastRewardAt() time.Time { return r.lastReward }
