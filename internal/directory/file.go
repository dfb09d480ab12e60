package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSource reads records from a YAML (or JSON) export instead of a live
// directory. The file holds a list of records keyed like Record's yaml tags.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource reading path on every Search.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Search loads the file and returns the records matching filter, in file
// order. Filter is empty or "*" for all records, or "key=value" for an exact
// match on one record key.
func (s *FileSource) Search(ctx context.Context, filter string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	match, err := parseFileFilter(filter)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrSource, s.path, err)
	}

	var all []Record
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&all); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrSource, s.path, err)
	}

	var out []Record
	for _, r := range all {
		if match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func parseFileFilter(filter string) (func(Record) bool, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" || filter == "*" {
		return func(Record) bool { return true }, nil
	}

	key, value, ok := strings.Cut(filter, "=")
	if !ok {
		return nil, fmt.Errorf("%w: filter %q must be \"*\" or key=value", ErrSource, filter)
	}
	key = strings.TrimSpace(key)
	if _, known := (Record{}).field(key); !known {
		return nil, fmt.Errorf("%w: filter %q: unknown key %q", ErrSource, filter, key)
	}
	value = strings.TrimSpace(value)

	return func(r Record) bool {
		v, _ := r.field(key)
		return v == value
	}, nil
}
