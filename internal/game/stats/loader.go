package stats

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Team is the on-disk party file.
type Team struct {
	Members []Member `yaml:"members"`
}

// LoadTeam reads and validates a party file.
//
// Precondition: path names a YAML document with a top-level members list.
// Postcondition: Returns at least one valid member or a non-nil error.
func LoadTeam(path string) ([]Member, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading team %q: %w", path, err)
	}
	return ParseTeam(data)
}

// ParseTeam decodes a party document.
func ParseTeam(data []byte) ([]Member, error) {
	var t Team
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("parsing team: %w", err)
	}
	if len(t.Members) == 0 {
		return nil, fmt.Errorf("team has no members")
	}
	seen := make(map[string]bool, len(t.Members))
	for _, m := range t.Members {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if seen[m.Character.ID] {
			return nil, fmt.Errorf("duplicate member id %q", m.Character.ID)
		}
		seen[m.Character.ID] = true
	}
	return t.Members, nil
}
