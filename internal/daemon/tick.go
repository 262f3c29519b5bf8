package daemon

import (
	"context"
	"time"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/protocol"
)

// tickLoop runs the fixed-period control loop. It is the only goroutine
// that touches controller state.
func (d *Daemon) tickLoop(ctx context.Context) error {
	period := time.Duration(d.config.Rig.TickMs) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			d.tick(now)
		}
	}
}

// tick drains both input queues, runs one controller pass, and publishes
// the resulting snapshot.
func (d *Daemon) tick(now time.Time) {
	var serialBuf []byte
drainSerial:
	for {
		select {
		case b := <-d.serialIn:
			serialBuf = append(serialBuf, b...)
		default:
			break drainSerial
		}
	}

	var queued []protocol.Command
drainCommands:
	for {
		select {
		case cmd := <-d.commands:
			queued = append(queued, cmd)
		default:
			break drainCommands
		}
	}

	d.ctrl.Tick(now, serialBuf, queued)
	d.publishControllerSnapshot(now)
}

func (d *Daemon) publishControllerSnapshot(now time.Time) {
	snap := d.ctrl.stateSnapshot(now)
	snap.StartedAt = d.startedAt.Format(time.RFC3339)
	d.publishSnapshot(snap)
}
