package project

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mapforge.dev/internal/guard"
)

// Workspace is the parsed workspace.yaml: resource ceilings for untrusted
// map input plus backup retention settings.
type Workspace struct {
	Limits guard.Limits `yaml:"limits"`
	Backup BackupConfig `yaml:"backup"`
}

// BackupConfig controls the pre-save backup store.
type BackupConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	Generations int    `yaml:"generations"`
	Level       int    `yaml:"compression_level"`
}

// LoadWorkspace reads workspace.yaml. An empty path yields the defaults.
func LoadWorkspace(path string) (Workspace, error) {
	ws := defaultWorkspace()
	if strings.TrimSpace(path) == "" {
		ws.Normalize()
		return ws, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ws, err
	}
	if err := yaml.Unmarshal(b, &ws); err != nil {
		return ws, fmt.Errorf("workspace.yaml: %w", err)
	}
	ws.Normalize()
	if err := ws.Validate(); err != nil {
		return ws, fmt.Errorf("workspace.yaml: %w", err)
	}
	return ws, nil
}

func defaultWorkspace() Workspace {
	return Workspace{
		Limits: guard.DefaultLimits(),
		Backup: BackupConfig{
			Enabled:     true,
			Dir:         "backups",
			Generations: 10,
			Level:       3,
		},
	}
}

func (w *Workspace) Normalize() {
	if w == nil {
		return
	}
	w.Limits.Normalize()
	if strings.TrimSpace(w.Backup.Dir) == "" {
		w.Backup.Dir = "backups"
	}
	if w.Backup.Generations <= 0 {
		w.Backup.Generations = 10
	}
	if w.Backup.Level <= 0 {
		w.Backup.Level = 3
	}
}

func (w Workspace) Validate() error {
	if w.Backup.Generations > 1000 {
		return fmt.Errorf("backup generations must be <= 1000")
	}
	if w.Backup.Level > 11 {
		return fmt.Errorf("backup compression_level must be in [1, 11]")
	}
	return nil
}
