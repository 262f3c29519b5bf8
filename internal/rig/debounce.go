package rig

// Debouncer filters a digital input by requiring a new reading to hold for a
// number of consecutive samples before it is reported. Zero stableTicks
// passes readings through unchanged, which matches the original firmware.
type Debouncer struct {
	stableTicks int
	current     bool
	candidate   bool
	run         int
}

func NewDebouncer(stableTicks int) *Debouncer {
	return &Debouncer{stableTicks: stableTicks}
}

// Sample feeds one raw reading and returns the debounced value.
func (d *Debouncer) Sample(raw bool) bool {
	if d.stableTicks <= 0 {
		d.current = raw
		return raw
	}
	if raw == d.current {
		d.run = 0
		d.candidate = raw
		return d.current
	}
	if raw != d.candidate {
		d.candidate = raw
		d.run = 1
	} else {
		d.run++
	}
	if d.run >= d.stableTicks {
		d.current = raw
		d.run = 0
	}
	return d.current
}
