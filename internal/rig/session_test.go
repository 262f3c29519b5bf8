package rig

import (
	"testing"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewSession()
	if s.Active() {
		t.Fatal("new session should be inactive")
	}
	if s.ElapsedMs(at(5000)) != 0 {
		t.Error("inactive session reports zero elapsed")
	}

	id, err := s.Start(at(0))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !model.ValidateSessionID(id) {
		t.Errorf("session ID %q not valid", id)
	}
	if !s.Active() {
		t.Fatal("session should be active after start")
	}
	if got := s.ElapsedMs(at(2500)); got != 2500 {
		t.Errorf("ElapsedMs = %d, want 2500", got)
	}

	s.Stop()
	if s.Active() {
		t.Error("session should be inactive after stop")
	}
}

func TestSessionRestartResetsOrigin(t *testing.T) {
	s := NewSession()
	first, _ := s.Start(at(0))
	s.Observe(model.TrialCounters{Fixed: 1})

	second, _ := s.Start(at(10000))
	if first == second {
		t.Error("restart should mint a fresh session ID")
	}
	if got := s.ElapsedMs(at(10100)); got != 100 {
		t.Errorf("ElapsedMs after restart = %d, want 100", got)
	}
	if s.Totals() != (model.SessionTotals{}) {
		t.Errorf("restart should reset totals, got %+v", s.Totals())
	}
}

func TestSessionTotals(t *testing.T) {
	s := NewSession()

	// Events observed with no session active do not accumulate.
	s.Observe(model.TrialCounters{Escaped: 1})
	if s.Totals() != (model.SessionTotals{}) {
		t.Errorf("inactive observe leaked into totals: %+v", s.Totals())
	}

	s.Start(at(0))
	s.Observe(model.TrialCounters{Fixed: 1, Rewarded: 2})
	s.Observe(model.TrialCounters{Escaped: 1})
	s.Observe(model.TrialCounters{TimedUp: 1})
	s.Observe(model.TrialCounters{Struggled: 1})
	s.Observe(model.TrialCounters{Rewarded: 1})

	want := model.SessionTotals{Fixed: 1, Escaped: 1, TimedUp: 1, Struggled: 1, Rewarded: 3}
	if s.Totals() != want {
		t.Errorf("totals = %+v, want %+v", s.Totals(), want)
	}

	// Stop retains totals for status queries.
	s.Stop()
	if s.Totals() != want {
		t.Errorf("stop cleared totals: %+v", s.Totals())
	}
}
