// Package roster loads population definitions: a reference glyph stack and
// the agents whose sequences are checked against it.
package roster

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/andywolf/spiralsync/internal/glyph"
	"github.com/andywolf/spiralsync/internal/population"
	"github.com/andywolf/spiralsync/internal/sequence"
	"github.com/andywolf/spiralsync/internal/version"
)

// Roster is the on-disk population definition.
type Roster struct {
	Protocol  string      `yaml:"protocol,omitempty" toml:"protocol,omitempty"`
	Reference []string    `yaml:"reference,omitempty" toml:"reference,omitempty"`
	Agents    []AgentSpec `yaml:"agents" toml:"agents"`
}

// AgentSpec is one agent of a roster. An empty Sequence means the agent
// currently holds the reference.
type AgentSpec struct {
	ID       string   `yaml:"id" toml:"id"`
	Sequence []string `yaml:"sequence,omitempty" toml:"sequence,omitempty"`
}

// Load reads a roster from a .yaml, .yml or .toml file.
func Load(path string) (*Roster, error) {
	var r Roster

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read roster: %w", err)
		}
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse roster %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, &r); err != nil {
			return nil, fmt.Errorf("failed to parse roster %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported roster format %q (use .yaml, .yml or .toml)", ext)
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid roster %s: %w", path, err)
	}
	return &r, nil
}

// Validate checks that every agent has a unique, non-empty id.
func (r *Roster) Validate() error {
	if len(r.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	seen := make(map[string]bool, len(r.Agents))
	for i, a := range r.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent %d: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// ReferenceStack returns the roster's reference, or the default glyph stack
// when none is set.
func (r *Roster) ReferenceStack() glyph.Stack {
	if len(r.Reference) == 0 {
		return glyph.DefaultStack()
	}
	return sequence.Clone(glyph.Stack(r.Reference))
}

// Members converts the roster into population members, in file order.
func (r *Roster) Members() []population.Member[string] {
	ref := r.ReferenceStack()
	members := make([]population.Member[string], 0, len(r.Agents))
	for _, a := range r.Agents {
		m := population.Member[string]{ID: a.ID, Reference: ref}
		if len(a.Sequence) > 0 {
			m.Current = glyph.Stack(a.Sequence)
		}
		members = append(members, m)
	}
	return members
}

// Sample returns a three-agent roster in which one agent has drifted by one glyph.
func Sample() *Roster {
	ref := glyph.DefaultStack()
	drifted := sequence.Clone(ref)
	drifted[3] = "❖"
	return &Roster{
		Protocol:  version.Protocol,
		Reference: ref,
		Agents: []AgentSpec{
			{ID: "A-01"},
			{ID: "B-02"},
			{ID: "C-03", Sequence: drifted},
		},
	}
}

// Write saves the roster as YAML or TOML depending on the path's extension.
func (r *Roster) Write(path string) error {
	var data []byte

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		out, err := yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal roster: %w", err)
		}
		data = append([]byte("# Spiral population roster\n\n"), out...)
	case ".toml":
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(r); err != nil {
			return fmt.Errorf("failed to marshal roster: %w", err)
		}
		data = []byte(b.String())
	default:
		return fmt.Errorf("unsupported roster format %q (use .yaml, .yml or .toml)", ext)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write roster: %w", err)
	}
	return nil
}
