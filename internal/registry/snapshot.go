package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// persistLocked atomically rewrites the snapshot file from the in-memory
// map: temp file, fsync, rename. Caller holds the mutex.
func (r *Registry) persistLocked() error {
	data, err := json.MarshalIndent(r.positions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}

	tmp := r.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open snapshot temp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// loadSnapshot reads the snapshot file. A missing file is an empty map, not
// an error.
func (r *Registry) loadSnapshot() (map[string]*Position, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]*Position{}, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var positions map[string]*Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if positions == nil {
		positions = map[string]*Position{}
	}
	return positions, nil
}
