package rig

import (
	"time"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
)

// Session gates telemetry and anchors the elapsed-time origin. Totals are
// in-memory per session, for status reporting only.
type Session struct {
	active  bool
	id      string
	started time.Time
	totals  model.SessionTotals
}

func NewSession() *Session {
	return &Session{}
}

// Start begins a session, resetting the elapsed origin and totals. Starting
// over an already-active session restarts the origin, matching the host's
// start button.
func (s *Session) Start(now time.Time) (string, error) {
	id, err := model.GenerateSessionID()
	if err != nil {
		return "", err
	}
	s.active = true
	s.id = id
	s.started = now
	s.totals = model.SessionTotals{}
	return id, nil
}

// Stop ends the session. Totals are kept for status queries until the next
// start.
func (s *Session) Stop() {
	s.active = false
}

func (s *Session) Active() bool { return s.active }

func (s *Session) ID() string { return s.id }

func (s *Session) StartedAt() time.Time { return s.started }

// ElapsedMs is the session clock stamped onto weight lines.
func (s *Session) ElapsedMs(now time.Time) int64 {
	if !s.active {
		return 0
	}
	return now.Sub(s.started).Milliseconds()
}

// Observe folds an emitted event's counters into the session totals.
func (s *Session) Observe(c model.TrialCounters) {
	if !s.active {
		return
	}
	s.totals.Add(c)
}

func (s *Session) Totals() model.SessionTotals { return s.totals }
