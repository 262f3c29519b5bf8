package model

// RigSnapshot is the full controller state reported over the control socket.
// The tick loop publishes a fresh copy after every pass; readers never see a
// partially updated view.
type RigSnapshot struct {
	RigName   string `json:"rig_name"`
	DaemonPID int    `json:"daemon_pid"`
	StartedAt string `json:"started_at"`

	Session  SessionSnapshot  `json:"session"`
	Fixation FixationSnapshot `json:"fixation"`
	Reward   RewardSnapshot   `json:"reward"`
	Actuator ActuatorSnapshot `json:"actuator"`
	Tunables Tunables         `json:"tunables"`
	Totals   SessionTotals    `json:"totals"`
}

type SessionSnapshot struct {
	Active    bool   `json:"active"`
	ID        string `json:"id,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type FixationSnapshot struct {
	State        string `json:"state"`
	Cooldown     bool   `json:"cooldown"`
	EngagedForMs int64  `json:"engaged_for_ms"`
}

type RewardSnapshot struct {
	Flushing           bool   `json:"flushing"`
	ConsecutiveRewards int    `json:"consecutive_rewards"`
	LastRewardAt       string `json:"last_reward_at,omitempty"`
}

type ActuatorSnapshot struct {
	Level  int    `json:"level"`
	Motion string `json:"motion"`
	Homed  bool   `json:"homed"`
}

// SessionTotals accumulates trial outcomes since session start. Kept in
// memory for status reporting only; the host GUI owns the durable record.
type SessionTotals struct {
	Fixed     int `json:"fixed"`
	Escaped   int `json:"escaped"`
	TimedUp   int `json:"timed_up"`
	Struggled int `json:"struggled"`
	Rewarded  int `json:"rewarded"`
}
