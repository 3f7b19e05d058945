// Package restricted maintains the file-backed set of symbols the exchange
// refuses to trade for this account. The scheduler excludes them from
// candidates; the executor appends on a restricted-symbol rejection.
package restricted

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Set is a mutex-guarded symbol set persisted as a JSON array.
type Set struct {
	mu      sync.Mutex
	path    string
	symbols map[string]struct{}
}

// NewSet creates a set backed by path and loads any existing file.
func NewSet(path string) (*Set, error) {
	if path == "" {
		path = "data/restricted_symbols.json"
	}
	s := &Set{path: path, symbols: make(map[string]struct{})}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file, replacing the in-memory set. A missing file is
// an empty set.
func (s *Set) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read restricted symbols: %w", err)
	}

	var symbols []string
	if err := json.Unmarshal(data, &symbols); err != nil {
		return fmt.Errorf("decode restricted symbols: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		s.symbols[sym] = struct{}{}
	}
	return nil
}

// Contains reports whether symbol is restricted.
func (s *Set) Contains(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.symbols[symbol]
	return ok
}

// Add marks symbol restricted and persists. Adding an existing symbol is a
// no-op.
func (s *Set) Add(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.symbols[symbol]; ok {
		return nil
	}
	s.symbols[symbol] = struct{}{}
	if err := s.persistLocked(); err != nil {
		return err
	}

	log.Warn().Str("symbol", symbol).Msg("Symbol marked restricted")
	return nil
}

// Symbols returns the sorted restricted symbols.
func (s *Set) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *Set) persistLocked() error {
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	data, err := json.MarshalIndent(symbols, "", "  ")
	if err != nil {
		return fmt.Errorf("encode restricted symbols: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("restricted symbols dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write restricted symbols: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename restricted symbols: %w", err)
	}
	return nil
}
