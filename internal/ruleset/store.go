package ruleset

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store holds the active ruleset and supports explicit reload. There is
// no file watching: a ruleset changes only on restart or a reload call,
// and in-flight batches keep the pointer they captured.
type Store struct {
	path string

	mu      sync.RWMutex
	current *Ruleset
}

// NewStore loads the ruleset at path and keeps it as the active version.
func NewStore(path string) (*Store, error) {
	rs, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, current: rs}, nil
}

// Current returns the active ruleset.
func (s *Store) Current() *Ruleset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the file and swaps the active ruleset. On any error
// the previous ruleset stays active.
func (s *Store) Reload() (*Ruleset, error) {
	rs, err := loadFile(s.path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = rs
	s.mu.Unlock()

	return rs, nil
}

func loadFile(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset file: %w", err)
	}

	return New(cfg)
}
