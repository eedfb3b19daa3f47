// Package fasttier is the synchronous identity slot: a single string
// value (the session id) kept in a small local file so a resumed
// session is available before the transactional store finishes opening.
package fasttier

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Slot holds one value under one well-known path.
type Slot struct {
	path string
}

// New returns a slot backed by the given file path.
func New(path string) *Slot {
	return &Slot{path: path}
}

// Get reads the stored value. ok is false when the slot is empty or the
// file does not exist.
func (s *Slot) Get() (value string, ok bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	value = strings.TrimSpace(string(data))
	return value, value != ""
}

// Put writes the value atomically (temp file + rename), so a crash mid
// write never leaves a truncated id behind.
func (s *Slot) Put(value string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create fast tier dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".fasttier-*")
	if err != nil {
		return fmt.Errorf("create fast tier temp: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(value + "\n"); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write fast tier: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close fast tier temp: %w", err)
	}
	if err := os.Rename(name, s.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("commit fast tier: %w", err)
	}
	return nil
}

// Clear removes the stored value. Clearing a missing slot is not an
// error.
func (s *Slot) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear fast tier: %w", err)
	}
	return nil
}
