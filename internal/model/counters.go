package model

// TrialCounters classifies the trial currently in flight or just concluded.
// At most one of Fixed/Escaped/TimedUp/Struggled is nonzero per emitted
// event; Rewarded accumulates independently within the trial window.
type TrialCounters struct {
	Fixed     int `json:"fixed"`
	Escaped   int `json:"escaped"`
	TimedUp   int `json:"timed_up"`
	Struggled int `json:"struggled"`
	Rewarded  int `json:"rewarded"`
}

func (c *TrialCounters) Reset() {
	*c = TrialCounters{}
}

// Add folds one emitted event into the running session totals.
func (t *SessionTotals) Add(c TrialCounters) {
	t.Fixed += c.Fixed
	t.Escaped += c.Escaped
	t.TimedUp += c.TimedUp
	t.Struggled += c.Struggled
	t.Rewarded += c.Rewarded
}
