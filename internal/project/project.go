// Package project loads editor workspace metadata: the project.json that
// pins a map to a client version and names its data files, and the
// workspace.yaml with resource and backup settings. Both are optional
// inputs; the codec works without them, just with weaker format
// detection.
package project

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"mapforge.dev/internal/format"
)

//go:embed project.schema.json
var projectSchemaJSON string

var projectSchema = jsonschema.MustCompileString("project.schema.json", projectSchemaJSON)

// Project is the parsed project.json.
type Project struct {
	Name          string `json:"name"`
	ClientVersion int    `json:"client_version"`
	OTBMVersion   int    `json:"otbm_version,omitempty"`

	MapFile   string `json:"map_file,omitempty"`
	ItemsFile string `json:"items_file,omitempty"`
	DataDir   string `json:"data_dir,omitempty"`

	// Dir is the directory the project file was loaded from; relative
	// file references resolve against it.
	Dir string `json:"-"`
}

// LoadProject reads and schema-validates a project.json.
func LoadProject(path string) (*Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("project.json: %w", err)
	}
	if err := projectSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("project.json: %w", err)
	}

	var p Project
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("project.json: %w", err)
	}
	p.Dir = filepath.Dir(path)
	return &p, nil
}

// Hints converts the project metadata into format-resolution hints.
func (p *Project) Hints() format.Hints {
	if p == nil {
		return format.Hints{}
	}
	return format.Hints{
		ClientVersion:     p.ClientVersion,
		StructuralVersion: uint32(p.OTBMVersion),
	}
}

// MapPath resolves the map file reference against the project directory.
// Empty when the project names no map.
func (p *Project) MapPath() string {
	return p.resolve(p.MapFile)
}

// ItemsPath resolves the item database reference. Falls back to
// items.otb in the data directory.
func (p *Project) ItemsPath() string {
	if strings.TrimSpace(p.ItemsFile) != "" {
		return p.resolve(p.ItemsFile)
	}
	if strings.TrimSpace(p.DataDir) != "" {
		return filepath.Join(p.resolve(p.DataDir), "items.otb")
	}
	return ""
}

func (p *Project) resolve(ref string) string {
	if strings.TrimSpace(ref) == "" {
		return ""
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(p.Dir, ref)
}
