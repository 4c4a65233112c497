package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed species.yaml
var defaultSpecies []byte

// AllowList is the set of entity identifiers a fetch pass keeps.
type AllowList map[string]struct{}

type allowListFile struct {
	Species []string `yaml:"species"`
}

// NewAllowList builds an AllowList from identifiers, ignoring blanks.
func NewAllowList(entities ...string) AllowList {
	a := make(AllowList, len(entities))
	for _, e := range entities {
		if e = strings.TrimSpace(e); e != "" {
			a[e] = struct{}{}
		}
	}
	return a
}

// DefaultAllowList returns the species list compiled into the binary.
func DefaultAllowList() AllowList {
	a, err := ParseAllowList(defaultSpecies)
	if err != nil {
		panic(fmt.Sprintf("embedded species list is invalid: %v", err))
	}
	return a
}

// LoadAllowList reads a YAML document with a "species" sequence.
// An empty path returns DefaultAllowList.
func LoadAllowList(path string) (AllowList, error) {
	if path == "" {
		return DefaultAllowList(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read species file: %w", err)
	}
	a, err := ParseAllowList(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse species file %s: %w", path, err)
	}
	return a, nil
}

// ParseAllowList decodes a species YAML document.
func ParseAllowList(data []byte) (AllowList, error) {
	var doc allowListFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Species) == 0 {
		return nil, fmt.Errorf("no species listed")
	}
	return NewAllowList(doc.Species...), nil
}

// Contains reports whether entity is allowed.
func (a AllowList) Contains(entity string) bool {
	_, ok := a[entity]
	return ok
}

// Entities returns the identifiers in sorted order.
func (a AllowList) Entities() []string {
	out := make([]string, 0, len(a))
	for e := range a {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
