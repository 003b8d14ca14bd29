package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format is the on-disk encoding of a record.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat converts a config string into a Format. The empty string
// selects JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errors.Errorf("unknown transcript format %q (supported: json, yaml)", s)
	}
}

const timestampLayout = "20060102-150405"

// FileName returns "<interrogator>_vs_<interrogated>_<YYYYMMDD-HHMMSS>.<ext>".
func FileName(r *Record, f Format) string {
	return r.Interrogator + "_vs_" + r.Interrogated + "_" + r.Timestamp.Format(timestampLayout) + "." + string(f)
}

// Store writes records into a directory.
type Store struct {
	dir    string
	format Format
	mu     sync.Mutex
}

// NewStore creates the directory if needed.
func NewStore(dir string, format Format) (*Store, error) {
	if format == "" {
		format = FormatJSON
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating transcript directory")
	}
	return &Store{dir: dir, format: format}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Save writes r and returns the file path. When two records of the same
// pair share a second, the later one gets the first block of its ID
// appended to the name.
func (s *Store) Save(r *Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encode(r, s.format)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, FileName(r, s.format))
	if _, err := os.Stat(path); err == nil {
		ext := filepath.Ext(path)
		suffix, _, _ := strings.Cut(r.ID, "-")
		path = strings.TrimSuffix(path, ext) + "_" + suffix + ext
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrap(err, "writing transcript file")
	}
	return path, nil
}

// Load reads a record written by Save. The format follows the extension.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("transcript %s not found", path)
		}
		return nil, errors.Wrap(err, "reading transcript file")
	}

	var r Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, errors.Wrap(err, "unmarshaling transcript")
		}
	default:
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, errors.Wrap(err, "unmarshaling transcript")
		}
	}
	return &r, nil
}

func encode(r *Record, f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		data, err := yaml.Marshal(r)
		return data, errors.Wrap(err, "marshaling transcript")
	default:
		data, err := json.MarshalIndent(r, "", "  ")
		return data, errors.Wrap(err, "marshaling transcript")
	}
}
