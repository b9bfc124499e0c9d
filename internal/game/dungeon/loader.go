package dungeon

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a dungeon layout.
func Load(path string) (*Dungeon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dungeon %q: %w", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dungeon %q: %w", path, err)
	}
	return d, nil
}

// Parse decodes and validates a dungeon document.
func Parse(data []byte) (*Dungeon, error) {
	var d Dungeon
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("parsing dungeon: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

type routeDoc struct {
	Pulls []RoutePull `yaml:"pulls"`
}

// LoadRoute reads a route document with a top-level pulls list.
func LoadRoute(path string) (Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading route %q: %w", path, err)
	}
	var doc routeDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing route %q: %w", path, err)
	}
	return Route(doc.Pulls), nil
}

type affixDoc struct {
	Affixes []Affix `yaml:"affixes"`
}

// LoadAffixes reads a list of map affixes.
func LoadAffixes(path string) ([]Affix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading affixes %q: %w", path, err)
	}
	var doc affixDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing affixes %q: %w", path, err)
	}
	return doc.Affixes, nil
}
