package owners

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout of an owner map file:
//
//	owners:
//	  - owner_id: "638082"
//	    agent_id: "32094151"
//	    name: Oscar
type fileFormat struct {
	Owners []Entry `yaml:"owners"`
}

// LoadFile reads an owner map from a YAML file.
func LoadFile(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Map{}, fmt.Errorf("reading owner map: %w", err)
	}
	entries, err := parseEntries(data)
	if err != nil {
		return Map{}, fmt.Errorf("parsing owner map %s: %w", path, err)
	}
	return NewMap(entries), nil
}

// parseEntries decodes and validates owner map YAML. Unknown keys, empty
// owner IDs and duplicate owners are rejected.
func parseEntries(data []byte) ([]Entry, error) {
	var f fileFormat
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	seen := make(map[string]int, len(f.Owners))
	for i, e := range f.Owners {
		id := strings.TrimSpace(e.OwnerID)
		if id == "" {
			return nil, fmt.Errorf("entry %d: owner_id is required", i+1)
		}
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("entry %d: duplicate owner_id %q (first seen at entry %d)", i+1, id, prev)
		}
		seen[id] = i + 1
	}
	return f.Owners, nil
}
