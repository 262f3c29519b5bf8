// Command headfix is the operator CLI for the head-fixation rig: it
// scaffolds rig directories, runs the controller daemon, and talks to a
// running daemon over its control socket.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/daemon"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/setup"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/status"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/uds"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/yamlio"
)

const version = "1.0.0"

func main() {
	app := cli.NewApp()
	app.Name = "headfix"
	app.Usage = "head-fixation rig controller"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "dir",
			Usage: "rig directory (default: walk up from cwd to the nearest .headfix)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "setup",
			Usage:     "initialize a .headfix/ rig directory",
			ArgsUsage: "[dir]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "name",
					Usage: "rig name (default: the directory basename)",
				},
			},
			Action: runSetup,
		},
		{
			Name:  "daemon",
			Usage: "run the rig controller",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "foreground",
					Usage: "mirror log lines to stderr",
				},
				cli.BoolFlag{
					Name:  "sim",
					Usage: "simulated bench and null serial link",
				},
			},
			Action: runDaemon,
		},
		{
			Name:  "status",
			Usage: "show rig state",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "json", Usage: "raw snapshot JSON"},
			},
			Action: runStatus,
		},
		{
			Name:   "watch",
			Usage:  "mirror the live telemetry stream",
			Action: runWatch,
		},
		{
			Name:   "stop",
			Usage:  "ask the running daemon to shut down",
			Action: runStop,
		},
		{
			Name:  "version",
			Usage: "print the version",
			Action: func(*cli.Context) error {
				fmt.Printf("headfix %s\n", version)
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runSetup(c *cli.Context) error {
	dir := c.Args().First()
	if dir == "" {
		dir = "."
	}
	if err := setup.Run(dir, c.String("name")); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	absDir, _ := filepath.Abs(dir)
	fmt.Printf("Initialized .headfix/ in %s\n", absDir)
	return nil
}

func runDaemon(c *cli.Context) error {
	rigDir, err := resolveRigDir(c)
	if err != nil {
		return err
	}
	cfg, err := yamlio.LoadConfig(filepath.Join(rigDir, "config.yaml"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Bool("sim") {
		cfg.Rig.Bench = "sim"
		cfg.Serial.Device = "sim"
	}
	d, err := daemon.New(rigDir, *cfg, c.Bool("foreground"))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	return d.Run()
}

func runStatus(c *cli.Context) error {
	rigDir, err := resolveRigDir(c)
	if err != nil {
		return err
	}
	return status.Run(rigDir, socketName(rigDir), c.Bool("json"))
}

func runWatch(c *cli.Context) error {
	rigDir, err := resolveRigDir(c)
	if err != nil {
		return err
	}
	client := uds.NewClient(filepath.Join(rigDir, socketName(rigDir)))
	fmt.Fprintln(os.Stderr, "watching telemetry (ctrl-c to stop)")
	return client.Stream(uds.CmdWatch, nil, func(resp *uds.Response) error {
		var frame struct {
			Line string `json:"line"`
		}
		if err := json.Unmarshal(resp.Data, &frame); err != nil {
			return err
		}
		fmt.Println(frame.Line)
		return nil
	})
}

func runStop(c *cli.Context) error {
	rigDir, err := resolveRigDir(c)
	if err != nil {
		return err
	}
	client := uds.NewClient(filepath.Join(rigDir, socketName(rigDir)))
	resp, err := client.SendCommand(uds.CmdShutdown, nil)
	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if !resp.Success {
		code, msg := "", "unknown error"
		if resp.Error != nil {
			code, msg = resp.Error.Code, resp.Error.Message
		}
		return fmt.Errorf("stop failed [%s]: %s", code, msg)
	}
	fmt.Println("daemon stopping")
	return nil
}

// socketName reads the configured socket filename, falling back to the
// default when the config is missing or unreadable so status still works.
func socketName(rigDir string) string {
	cfg, err := yamlio.LoadConfig(filepath.Join(rigDir, "config.yaml"))
	if err != nil || cfg.Daemon.SocketName == "" {
		return uds.DefaultSocketName
	}
	return cfg.Daemon.SocketName
}

// resolveRigDir honors --dir, else walks up from the working directory.
func resolveRigDir(c *cli.Context) (string, error) {
	if dir := c.GlobalString("dir"); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", err
		}
		if filepath.Base(abs) != setup.RigDirName {
			abs = filepath.Join(abs, setup.RigDirName)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return "", fmt.Errorf("no rig directory at %s", abs)
		}
		return abs, nil
	}
	if dir := findRigDir(); dir != "" {
		return dir, nil
	}
	return "", fmt.Errorf(".headfix/ directory not found; run 'headfix setup <dir>' first")
}

// findRigDir searches for .headfix/ in the working directory and its
// ancestors.
func findRigDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, setup.RigDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
