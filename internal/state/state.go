// Package state persists the outcome of the last setup run.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/justinbetabox/robot-hat/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// Record is the last-run summary read back by `status`.
type Record struct {
	Variant     string    `yaml:"variant"`
	Source      string    `yaml:"source"`
	Overlay     string    `yaml:"overlay,omitempty"`
	Card        string    `yaml:"card,omitempty"`
	State       string    `yaml:"state"`
	NeedsReboot bool      `yaml:"needs_reboot"`
	Reason      string    `yaml:"reason,omitempty"`
	Warnings    []string  `yaml:"warnings,omitempty"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// Store reads and writes one Record file.
type Store struct {
	Path string
}

// Save writes the record atomically, creating the parent directory.
func (s Store) Save(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}
	if err := fsutil.WriteAtomic(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	return nil
}

// Load reads the record. found is false when no run has been recorded.
func (s Store) Load() (rec Record, found bool, err error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("read state record: %w", err)
	}
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode state record %s: %w", s.Path, err)
	}
	return rec, true, nil
}

// Remove deletes the record. A missing file is not an error.
func (s Store) Remove() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state record: %w", err)
	}
	return nil
}
