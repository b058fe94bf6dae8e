package feeds

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// File is the on-disk format of a feed file:
//
//	feeds:
//	  - info: {key: students-bhola, group: Fees, label: Bhola Singh}
//	    layout:
//	      kind: student
//	      headerOffset: 3
//	      columns:
//	        - {index: 1, field: name, type: name}
//	      defaults: {village: Unknown}
type File struct {
	Feeds []core.FeedDefinition `yaml:"feeds"`
}

// Parse decodes a feed file without registering anything.
func Parse(data []byte) ([]core.FeedDefinition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse feed file: %w", err)
	}
	return f.Feeds, nil
}

// LoadFile registers every feed in the YAML file at path. Feeds that fail
// validation are reported together; the valid ones stay registered.
func LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read feed file: %w", err)
	}

	defs, err := Parse(data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	var (
		errs       []error
		registered int
	)
	for _, def := range defs {
		if err := core.TryRegister(def); err != nil {
			errs = append(errs, err)
			continue
		}
		registered++
	}
	if len(errs) > 0 {
		return registered, fmt.Errorf("%s: %w", path, errors.Join(errs...))
	}
	return registered, nil
}
