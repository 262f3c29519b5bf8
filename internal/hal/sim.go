package hal

import "sync"

// SimInput is a settable digital input for bench runs and tests.
type SimInput struct {
	mu    sync.Mutex
	name  string
	value bool
}

func NewSimInput(name string) *SimInput {
	return &SimInput{name: name}
}

func (s *SimInput) Name() string { return s.name }

func (s *SimInput) Read() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

func (s *SimInput) Set(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

// SimWeight is a settable load-cell reading.
type SimWeight struct {
	mu    sync.Mutex
	name  string
	grams float64
}

func NewSimWeight(name string) *SimWeight {
	return &SimWeight{name: name}
}

func (s *SimWeight) Name() string { return s.name }

func (s *SimWeight) Read() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grams, nil
}

func (s *SimWeight) SetGrams(g float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grams = g
}

// SimOutput records its logical state and counts writes, so tests can assert
// both where an output ended up and that unchanged values are not rewritten.
type SimOutput struct {
	mu     sync.Mutex
	name   string
	active bool
	writes int
}

func NewSimOutput(name string) *SimOutput {
	return &SimOutput{name: name}
}

func (s *SimOutput) Name() string { return s.name }

func (s *SimOutput) Set(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
	s.writes++
	return nil
}

func (s *SimOutput) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *SimOutput) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// SimBench is the fully simulated rig.
type SimBench struct {
	LeftLever  *SimInput
	RightLever *SimInput
	Lick       *SimInput
	Weight     *SimWeight

	Piston *SimOutput
	Valve  *SimOutput

	DriveForward  *SimOutput
	DriveBackward *SimOutput
	DriveUp       *SimOutput
	DriveDown     *SimOutput
}

func NewSimBench() *SimBench {
	return &SimBench{
		LeftLever:     NewSimInput("lever_left"),
		RightLever:    NewSimInput("lever_right"),
		Lick:          NewSimInput("lick"),
		Weight:        NewSimWeight("load_cell"),
		Piston:        NewSimOutput("piston"),
		Valve:         NewSimOutput("reward_valve"),
		DriveForward:  NewSimOutput("drive_forward"),
		DriveBackward: NewSimOutput("drive_backward"),
		DriveUp:       NewSimOutput("drive_up"),
		DriveDown:     NewSimOutput("drive_down"),
	}
}

func (s *SimBench) Bench() Bench {
	return Bench{
		LeftLever:     s.LeftLever,
		RightLever:    s.RightLever,
		Lick:          s.Lick,
		Weight:        s.Weight,
		Piston:        s.Piston,
		Valve:         s.Valve,
		DriveForward:  s.DriveForward,
		DriveBackward: s.DriveBackward,
		DriveUp:       s.DriveUp,
		DriveDown:     s.DriveDown,
	}
}
