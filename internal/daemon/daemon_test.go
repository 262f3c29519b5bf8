package daemon

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/uds"
)

func testConfig() model.Config {
	cfg := *model.DefaultConfig()
	cfg.Rig.Name = "rig-test"
	cfg.Serial.Device = "sim"
	cfg.Logging.Level = "debug"
	return cfg
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"info", LogLevelInfo},
		{"warn", LogLevelWarn},
		{"warning", LogLevelWarn},
		{"error", LogLevelError},
		{"ERROR", LogLevelError},
		{"", LogLevelInfo},
		{"bogus", LogLevelInfo},
	}
	for _, tc := range cases {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLogFiltersBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.Logging.Level = "warn"
	d, err := newDaemon(t.TempDir(), cfg, &buf, nil)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}

	d.log(LogLevelDebug, "debug line")
	d.log(LogLevelInfo, "info line")
	d.log(LogLevelWarn, "warn line")
	d.log(LogLevelError, "error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("suppressed levels leaked:\n%s", out)
	}
	if !strings.Contains(out, "WARN daemon: warn line") {
		t.Errorf("missing warn line:\n%s", out)
	}
	if !strings.Contains(out, "ERROR daemon: error line") {
		t.Errorf("missing error line:\n%s", out)
	}
}

func TestNewDaemonDefaultsSocketName(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Daemon.SocketName = ""
	d, err := newDaemon(dir, cfg, &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}
	if want := filepath.Join(dir, "headfixd.sock"); d.socketPath != want {
		t.Errorf("socketPath = %q, want %q", d.socketPath, want)
	}
	if d.serialIn == nil || d.commands == nil {
		t.Error("input queues not initialized")
	}
}

func TestNewCreatesLogDir(t *testing.T) {
	dir := t.TempDir()
	d, err := New(dir, testConfig(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.logFile.Close()

	if _, err := os.Stat(filepath.Join(dir, "logs", "daemon.log")); err != nil {
		t.Errorf("daemon.log not created: %v", err)
	}
}

func TestShutdownBeforeRunIsSafe(t *testing.T) {
	d, err := newDaemon(t.TempDir(), testConfig(), &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}
	// Nothing is started yet; Shutdown must not panic, and running it
	// twice must be a no-op.
	d.Shutdown()
	d.Shutdown()
}

// waitForSocket polls until the daemon answers a ping.
func waitForSocket(t *testing.T, sockPath string) *uds.Client {
	t.Helper()
	client := uds.NewClient(sockPath)
	client.SetTimeout(2 * time.Second)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if resp, err := client.SendCommand(uds.CmdPing, nil); err == nil && resp.Success {
			return client
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("daemon socket never came up")
	return nil
}

func TestDaemonSocketRoundTrip(t *testing.T) {
	rigDir := filepath.Join(t.TempDir(), ".headfix")
	if err := os.MkdirAll(filepath.Join(rigDir, "locks"), 0755); err != nil {
		t.Fatal(err)
	}

	d, err := newDaemon(rigDir, testConfig(), &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run() }()
	defer func() {
		d.Shutdown()
		select {
		case <-runErr:
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after Shutdown")
		}
	}()

	client := waitForSocket(t, d.socketPath)

	// Fresh boot: homing in progress, no session.
	resp, err := client.SendCommand(uds.CmdStatus, nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var snap model.RigSnapshot
	if err := json.Unmarshal(resp.Data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.RigName != "rig-test" {
		t.Errorf("rig name = %q, want rig-test", snap.RigName)
	}
	if snap.Session.Active {
		t.Error("session active on fresh boot")
	}
	if snap.Actuator.Motion != "homing" {
		t.Errorf("actuator motion = %q, want homing", snap.Actuator.Motion)
	}

	// session_start is queued and applied within a tick or two.
	resp, err = client.SendCommand(uds.CmdSessionStart, nil)
	if err != nil || !resp.Success {
		t.Fatalf("session_start: resp=%+v err=%v", resp, err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = client.SendCommand(uds.CmdStatus, nil)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if err := json.Unmarshal(resp.Data, &snap); err != nil {
			t.Fatalf("unmarshal snapshot: %v", err)
		}
		if snap.Session.Active {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never became active")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if snap.Session.ID == "" {
		t.Error("active session has no ID")
	}

	// A second daemon on the same rig dir must be refused by the lock.
	d2, err := newDaemon(rigDir, testConfig(), &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}
	if err := d2.Run(); err == nil || !strings.Contains(err.Error(), "rig lock") {
		t.Errorf("second daemon Run() = %v, want rig lock error", err)
	}
}

func TestWatchStreamsTelemetry(t *testing.T) {
	rigDir := filepath.Join(t.TempDir(), ".headfix")
	if err := os.MkdirAll(filepath.Join(rigDir, "locks"), 0755); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	d, err := newDaemon(rigDir, cfg, &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run() }()
	defer func() {
		d.Shutdown()
		<-runErr
	}()

	client := waitForSocket(t, d.socketPath)

	// With a session running, the weight cadence produces a line every
	// 100ms; two frames prove the stream end to end.
	if _, err := client.SendCommand(uds.CmdSessionStart, nil); err != nil {
		t.Fatalf("session_start: %v", err)
	}

	frames := make(chan watchFrame, 16)
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- client.Stream(uds.CmdWatch, nil, func(resp *uds.Response) error {
			var f watchFrame
			if err := json.Unmarshal(resp.Data, &f); err != nil {
				return err
			}
			frames <- f
			return nil
		})
	}()

	got := 0
	deadline := time.After(5 * time.Second)
	for got < 2 {
		select {
		case f := <-frames:
			if f.Kind == "weight" && strings.HasPrefix(f.Line, "W,") {
				got++
			}
		case err := <-streamDone:
			t.Fatalf("stream ended early: %v", err)
		case <-deadline:
			t.Fatal("no weight frames within deadline")
		}
	}
}

func TestShutdownCommandStopsDaemon(t *testing.T) {
	rigDir := filepath.Join(t.TempDir(), ".headfix")
	if err := os.MkdirAll(filepath.Join(rigDir, "locks"), 0755); err != nil {
		t.Fatal(err)
	}

	var logBuf bytes.Buffer
	d, err := newDaemon(rigDir, testConfig(), &logBuf, nil)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run() }()

	client := waitForSocket(t, d.socketPath)
	resp, err := client.SendCommand(uds.CmdShutdown, nil)
	if err != nil || !resp.Success {
		t.Fatalf("shutdown: resp=%+v err=%v", resp, err)
	}

	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run returned %v after shutdown command", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop on shutdown command")
	}

	if !strings.Contains(logBuf.String(), "outputs parked") {
		t.Errorf("shutdown did not park outputs:\n%s", logBuf.String())
	}
	if _, err := os.Stat(d.socketPath); !os.IsNotExist(err) {
		t.Errorf("socket file still present after shutdown")
	}
}
