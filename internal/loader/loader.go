// Package loader reads a runbook file into rbtypes.Runbook. spec.md's
// Non-goals place the TOML surface parser outside the core ("the core
// receives already-structured node descriptions"); this JSON loader is a
// stand-in collaborator for cmd/ so the CLI has something to call until a
// real TOML parser is wired in front of the same Runbook struct.
package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

// Load reads path as JSON and decodes it directly into a Runbook. Node
// dependency expressions use the same Tokens/Omitted shape the Planner
// consumes, so a real parser only needs to replace this function.
func Load(path string) (*rbtypes.Runbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading runbook file %s: %w", path, err)
	}
	var rb rbtypes.Runbook
	if err := json.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("decoding runbook file %s: %w", path, err)
	}
	return &rb, nil
}

// LoadVarsFile reads path as a JSON object, the document shape
// variables.DecodeVarsFile coerces into a flat string map (spec.md §4.2's
// "variables file" source).
func LoadVarsFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vars file %s: %w", path, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding vars file %s: %w", path, err)
	}
	return raw, nil
}
