// Package task loads the externally owned task/requirement definitions.
package task

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/commforge/pulse/internal/models"
)

// Definitions is one loaded task definitions document: a requirement catalog
// plus task groups. The document is owned by the external editor; this
// package only reads it.
type Definitions struct {
	Requirements []models.Requirement `json:"requirements"`
	Groups       []models.TaskGroup   `json:"groups"`

	catalog map[string]models.Requirement
}

// Source reads task definitions from a JSON file on every call, so external
// edits take effect on the next cycle without a restart.
type Source struct {
	path string
}

// NewSource creates a file-backed definitions source.
func NewSource(path string) *Source {
	return &Source{path: path}
}

// Load reads and indexes the definitions document. A missing file yields an
// empty document, not an error; a malformed one is a structured error.
func (s *Source) Load() (*Definitions, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return index(&Definitions{}), nil
		}
		return nil, fmt.Errorf("read task definitions: %w", err)
	}

	var defs Definitions
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse task definitions: %w", err)
	}
	return index(&defs), nil
}

func index(defs *Definitions) *Definitions {
	defs.catalog = make(map[string]models.Requirement, len(defs.Requirements))
	for _, r := range defs.Requirements {
		defs.catalog[r.ID] = r
	}
	return defs
}

// Flatten returns all tasks across all groups in document order.
func (d *Definitions) Flatten() []models.Task {
	var out []models.Task
	for _, g := range d.Groups {
		out = append(out, g.Tasks...)
	}
	return out
}

// Trackable returns the tasks to process this cycle, in document order.
func (d *Definitions) Trackable(sourceTool string) []models.Task {
	var out []models.Task
	for _, t := range d.Flatten() {
		if t.Trackable(sourceTool) {
			out = append(out, t)
		}
	}
	return out
}

// Requirement resolves one requirement id against the catalog.
func (d *Definitions) Requirement(id string) (models.Requirement, bool) {
	if d.catalog == nil {
		for _, r := range d.Requirements {
			if r.ID == id {
				return r, true
			}
		}
		return models.Requirement{}, false
	}
	r, ok := d.catalog[id]
	return r, ok
}
