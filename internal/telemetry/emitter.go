package telemetry

import (
	"io"
	"time"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
)

// Emitter writes telemetry lines to the serial port and mirrors each
// successfully written line onto the bus. The write path is the ordered
// primary sink; bus delivery is best effort.
type Emitter struct {
	w   io.Writer
	bus *Bus
}

// NewEmitter writes lines to w. bus may be nil when nothing watches.
func NewEmitter(w io.Writer, bus *Bus) *Emitter {
	return &Emitter{w: w, bus: bus}
}

// Weight emits one load-cell sample.
func (e *Emitter) Weight(now time.Time, grams float64, elapsedMs int64) error {
	return e.send(now, KindWeight, WeightLine(grams, elapsedMs))
}

// Event emits a trial conclusion line.
func (e *Emitter) Event(now time.Time, durationSec int, c model.TrialCounters) error {
	return e.send(now, KindEvent, EventLine(durationSec, c))
}

// Status emits a human-readable status line.
func (e *Emitter) Status(now time.Time, line string) error {
	return e.send(now, KindStatus, line)
}

func (e *Emitter) send(now time.Time, kind Kind, line string) error {
	if _, err := io.WriteString(e.w, line+"\n"); err != nil {
		return err
	}
	if e.bus != nil {
		e.bus.Publish(Message{Kind: kind, Line: line, At: now})
	}
	return nil
}
