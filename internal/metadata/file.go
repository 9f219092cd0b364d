package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kozaktomas/lookalike/internal/index"
	"gopkg.in/yaml.v3"
)

// ErrFileNotFound is returned when the metadata file does not exist.
var ErrFileNotFound = errors.New("metadata file not found")

// LoadFile reads a metadata file keyed by stringified index id.
// The format is chosen by extension: .json, .yaml or .yml.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("opening metadata file: %w", err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return DecodeJSON(f)
	case ".yaml", ".yml":
		return DecodeYAML(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// DecodeJSON decodes an object of {"<id>": Record}.
func DecodeJSON(r io.Reader) (*Store, error) {
	var raw map[string]Record
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}
	return fromKeyed(raw)
}

// DecodeYAML decodes a mapping of {"<id>": Record}.
func DecodeYAML(r io.Reader) (*Store, error) {
	var raw map[string]Record
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse metadata YAML: %w", err)
	}
	return fromKeyed(raw)
}

func fromKeyed(raw map[string]Record) (*Store, error) {
	records := make(map[index.ID]Record, len(raw))
	keys := make(map[index.ID]string, len(raw))
	for key, rec := range raw {
		id, err := ParseID(key)
		if err != nil {
			return nil, err
		}
		if prev, dup := keys[id]; dup {
			return nil, fmt.Errorf("%w: %q and %q both name id %d", ErrInvalidKey, prev, key, id)
		}
		keys[id] = key
		records[id] = rec
	}
	return NewStore(records), nil
}

// ParseID parses a persisted metadata key into an index id.
func ParseID(key string) (index.ID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(key), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return index.ID(n), nil
}
