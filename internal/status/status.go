// Package status queries a running daemon over the control socket and
// renders the rig snapshot for the operator.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/uds"
)

// Report is what `headfix status` prints. Rig is nil when no daemon
// answers the socket.
type Report struct {
	Running bool               `json:"running"`
	Rig     *model.RigSnapshot `json:"rig,omitempty"`
}

// Fetch asks the daemon for its snapshot. Any socket failure reports a
// stopped daemon rather than an error; a missing daemon is a normal state
// for this command.
func Fetch(sockPath string) Report {
	client := uds.NewClient(sockPath)
	client.SetTimeout(5 * time.Second)

	resp, err := client.SendCommand(uds.CmdStatus, nil)
	if err != nil || !resp.Success {
		return Report{Running: false}
	}

	var snap model.RigSnapshot
	if err := json.Unmarshal(resp.Data, &snap); err != nil {
		return Report{Running: false}
	}
	return Report{Running: true, Rig: &snap}
}

// Run fetches and prints the rig status.
func Run(rigDir, socketName string, jsonOutput bool) error {
	report := Fetch(filepath.Join(rigDir, socketName))

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	render(os.Stdout, report, color)
	return nil
}

const (
	ansiGreen = "\033[32m"
	ansiRed   = "\033[31m"
	ansiCyan  = "\033[36m"
	ansiReset = "\033[0m"
)

func paint(s, code string, color bool) string {
	if !color {
		return s
	}
	return code + s + ansiReset
}

func render(w io.Writer, r Report, color bool) {
	if !r.Running {
		fmt.Fprintf(w, "Daemon: %s\n", paint("stopped", ansiRed, color))
		return
	}
	s := r.Rig

	fmt.Fprintf(w, "Rig: %s\n", s.RigName)
	fmt.Fprintf(w, "Daemon: %s (pid %d, started %s)\n",
		paint("running", ansiGreen, color), s.DaemonPID, ago(s.StartedAt))

	if s.Session.Active {
		fmt.Fprintf(w, "\nSession: %s %s (started %s, running %s)\n",
			paint("active", ansiCyan, color), s.Session.ID,
			ago(s.Session.StartedAt), ms(s.Session.ElapsedMs))
		fmt.Fprintf(w, "  totals: fixed=%d escaped=%d timed_up=%d struggled=%d rewarded=%d\n",
			s.Totals.Fixed, s.Totals.Escaped, s.Totals.TimedUp,
			s.Totals.Struggled, s.Totals.Rewarded)
	} else {
		fmt.Fprintf(w, "\nSession: none\n")
	}

	if s.Fixation.State == "engaged" {
		fmt.Fprintf(w, "Fixation: engaged for %s\n", ms(s.Fixation.EngagedForMs))
	} else {
		cooldown := ""
		if s.Fixation.Cooldown {
			cooldown = " (cooldown: waiting for lever release)"
		}
		fmt.Fprintf(w, "Fixation: idle%s\n", cooldown)
	}

	flush := ""
	if s.Reward.Flushing {
		flush = ", " + paint("flushing", ansiCyan, color)
	}
	last := "never"
	if s.Reward.LastRewardAt != "" {
		last = ago(s.Reward.LastRewardAt)
	}
	fmt.Fprintf(w, "Reward: %d consecutive, last %s%s\n",
		s.Reward.ConsecutiveRewards, last, flush)

	homed := "homed"
	if !s.Actuator.Homed {
		homed = paint("not homed", ansiRed, color)
	}
	fmt.Fprintf(w, "Actuator: level %d, %s, %s\n",
		s.Actuator.Level, s.Actuator.Motion, homed)

	t := s.Tunables
	fmt.Fprintf(w, "\nTunables:\n")
	fmt.Fprintf(w, "  fixation: duration %s, delay %s, buffer %s\n",
		msInt(t.FixDurationMs), msInt(t.FixDelayMs), msInt(t.FixBufferMs))
	fmt.Fprintf(w, "  reward: delay %s, duration %s, buffer %s\n",
		msInt(t.RewardDelayMs), msInt(t.RewardDurationMs), msInt(t.RewardBufferMs))
	fmt.Fprintf(w, "  struggle threshold: %.1f g\n", t.StruggleThresholdG)
	fmt.Fprintf(w, "  free reward: %s, habituation: %s\n",
		onOff(t.AllowFreeReward), onOff(t.HabituationMode))
}

// ago renders an RFC3339 timestamp relative to now.
func ago(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return humanize.Time(t)
}

func ms(v int64) string {
	return (time.Duration(v) * time.Millisecond).String()
}

func msInt(v int) string {
	return ms(int64(v))
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
