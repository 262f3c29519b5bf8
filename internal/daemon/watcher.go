package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/protocol"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/yamlio"
)

// reloadDebounce coalesces the event burst an editor save produces.
const reloadDebounce = 200 * time.Millisecond

// watchLoop applies config.yaml edits while the daemon runs.
func (d *Daemon) watchLoop(ctx context.Context) error {
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != "config.yaml" {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(reloadDebounce)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			d.log(LogLevelWarn, "config watcher: %v", err)
		case <-pending:
			pending = nil
			d.reloadConfig()
		}
	}
}

// reloadConfig re-reads config.yaml and queues the tunables that changed. A
// file that fails to parse or validate is logged and ignored; the running
// parameters stand.
func (d *Daemon) reloadConfig() {
	path := filepath.Join(d.rigDir, "config.yaml")
	cfg, err := yamlio.LoadConfig(path)
	if err != nil {
		d.log(LogLevelWarn, "config reload rejected: %v", err)
		return
	}

	cmds := diffTunables(d.config.Defaults, cfg.Defaults)
	d.config.Defaults = cfg.Defaults
	if len(cmds) == 0 {
		d.log(LogLevelDebug, "config reload: no tunable changes")
		return
	}
	for _, cmd := range cmds {
		if err := d.Enqueue(cmd); err != nil {
			d.log(LogLevelWarn, "config reload: %v", err)
			return
		}
	}
	d.log(LogLevelInfo, "config reload queued %d change(s)", len(cmds))
}

// diffTunables maps changed fields to the same commands the serial path
// produces, so file edits and host bytes mutate state through one door.
// Fractional struggle thresholds truncate to whole grams, matching the
// integer-valued wire command.
func diffTunables(old, cur model.Tunables) []protocol.Command {
	var cmds []protocol.Command
	if old.RewardDurationMs != cur.RewardDurationMs {
		cmds = append(cmds, protocol.SetParam{Param: protocol.ParamRewardDuration, Value: cur.RewardDurationMs})
	}
	if old.RewardDelayMs != cur.RewardDelayMs {
		cmds = append(cmds, protocol.SetParam{Param: protocol.ParamRewardDelay, Value: cur.RewardDelayMs})
	}
	if old.RewardBufferMs != cur.RewardBufferMs {
		cmds = append(cmds, protocol.SetParam{Param: protocol.ParamRewardBuffer, Value: cur.RewardBufferMs})
	}
	if old.FixDurationMs != cur.FixDurationMs {
		cmds = append(cmds, protocol.SetParam{Param: protocol.ParamFixDuration, Value: cur.FixDurationMs})
	}
	if old.FixDelayMs != cur.FixDelayMs {
		cmds = append(cmds, protocol.SetParam{Param: protocol.ParamFixDelay, Value: cur.FixDelayMs})
	}
	if old.FixBufferMs != cur.FixBufferMs {
		cmds = append(cmds, protocol.SetParam{Param: protocol.ParamFixBuffer, Value: cur.FixBufferMs})
	}
	if old.StruggleThresholdG != cur.StruggleThresholdG {
		cmds = append(cmds, protocol.SetParam{Param: protocol.ParamStruggleThreshold, Value: int(cur.StruggleThresholdG)})
	}
	if old.AllowFreeReward != cur.AllowFreeReward {
		cmds = append(cmds, protocol.SetMode{Mode: protocol.ModeFreeReward, On: cur.AllowFreeReward})
	}
	if old.HabituationMode != cur.HabituationMode {
		cmds = append(cmds, protocol.SetMode{Mode: protocol.ModeHabituation, On: cur.HabituationMode})
	}
	return cmds
}
