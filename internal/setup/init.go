// Package setup creates the .headfix/ rig directory.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/carozario/Yadav-Lab-Headfix-training/internal/model"
	"github.com/carozario/Yadav-Lab-Headfix-training/internal/yamlio"
	"github.com/carozario/Yadav-Lab-Headfix-training/templates"
)

// RigDirName is the marker directory the CLI walks up to find.
const RigDirName = ".headfix"

// Run initializes the .headfix/ directory under dir. rigName overrides
// the auto-detected name (defaults to the directory basename).
func Run(dir, rigName string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve rig dir: %w", err)
	}

	base := filepath.Join(absDir, RigDirName)

	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	for _, d := range []string{"locks", "logs"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	cfg, err := generateConfig(absDir, rigName)
	if err != nil {
		return fmt.Errorf("generate config: %w", err)
	}

	if err := yamlio.SaveConfig(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}

	// Create headfixd.lock (empty)
	if err := os.WriteFile(filepath.Join(base, "locks", "headfixd.lock"), nil, 0600); err != nil {
		return fmt.Errorf("create headfixd.lock: %w", err)
	}

	return nil
}

func generateConfig(dir, rigName string) (*model.Config, error) {
	// Read template config as base
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	cfg := model.DefaultConfig()
	if err := yamlv3.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	if rigName != "" {
		cfg.Rig.Name = rigName
	} else {
		cfg.Rig.Name = filepath.Base(dir)
	}

	return cfg, nil
}
