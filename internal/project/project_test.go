package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "project.json", `{
		"name": "realm",
		"client_version": 1310,
		"map_file": "world/realm.otbm",
		"data_dir": "data"
	}`)

	p, err := LoadProject(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name != "realm" || p.ClientVersion != 1310 {
		t.Fatalf("project = %+v", p)
	}
	if got := p.MapPath(); got != filepath.Join(dir, "world", "realm.otbm") {
		t.Fatalf("map path = %q", got)
	}
	if got := p.ItemsPath(); got != filepath.Join(dir, "data", "items.otb") {
		t.Fatalf("items path = %q", got)
	}
	h := p.Hints()
	if h.ClientVersion != 1310 || h.StructuralVersion != 0 {
		t.Fatalf("hints = %+v", h)
	}
}

func TestLoadProjectSchemaViolations(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"client_version": 860}`},
		{"bad client version", `{"name": "x", "client_version": 12}`},
		{"bad otbm version", `{"name": "x", "client_version": 860, "otbm_version": 99}`},
		{"unknown field", `{"name": "x", "client_version": 860, "sprites": "a.spr"}`},
		{"not json", `name = realm`},
	}
	for _, c := range cases {
		path := writeFile(t, dir, "p.json", c.body)
		if _, err := LoadProject(path); err == nil {
			t.Errorf("%s: load succeeded", c.name)
		}
	}
}

func TestNilProjectHints(t *testing.T) {
	var p *Project
	h := p.Hints()
	if h.ClientVersion != 0 || h.StructuralVersion != 0 {
		t.Fatalf("nil project hints = %+v", h)
	}
}

func TestLoadWorkspaceDefaults(t *testing.T) {
	ws, err := LoadWorkspace("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ws.Backup.Enabled || ws.Backup.Generations != 10 {
		t.Fatalf("backup defaults = %+v", ws.Backup)
	}
	if ws.Limits.MaxTiles == 0 || ws.Limits.MaxFileBytes == 0 {
		t.Fatalf("limits not normalized: %+v", ws.Limits)
	}
}

func TestLoadWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "workspace.yaml", strings.TrimSpace(`
limits:
  max_tiles: 1000
  max_file_bytes: 4096
backup:
  enabled: false
  generations: 3
`))

	ws, err := LoadWorkspace(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ws.Limits.MaxTiles != 1000 || ws.Limits.MaxFileBytes != 4096 {
		t.Fatalf("limits = %+v", ws.Limits)
	}
	// Unset limit fields still get defaults.
	if ws.Limits.MaxItems == 0 {
		t.Fatalf("max_items not defaulted: %+v", ws.Limits)
	}
	if ws.Backup.Enabled || ws.Backup.Generations != 3 {
		t.Fatalf("backup = %+v", ws.Backup)
	}
	if ws.Backup.Dir != "backups" || ws.Backup.Level != 3 {
		t.Fatalf("backup defaults not applied: %+v", ws.Backup)
	}
}

func TestLoadWorkspaceInvalid(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "bad.yaml", "backup:\n  generations: 5000\n")
	if _, err := LoadWorkspace(path); err == nil {
		t.Fatal("oversized generations accepted")
	}

	path = writeFile(t, dir, "notyaml.yaml", "{{{{")
	if _, err := LoadWorkspace(path); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}
