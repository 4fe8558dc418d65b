package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"despesas/internal/core"
	"despesas/internal/feed"
)

// Cache persists the last authoritative snapshot for offline starts.
type Cache interface {
	Load() (*feed.Snapshot, error)
	Save(feed.Snapshot) error
}

// FileCache stores the snapshot as JSON on disk.
type FileCache struct {
	path string
}

func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

type cachedSnapshot struct {
	Version uint64         `json:"version"`
	Taken   time.Time      `json:"taken"`
	Records []core.Expense `json:"records"`
}

// Load returns nil, nil when nothing has been cached yet.
func (c *FileCache) Load() (*feed.Snapshot, error) {
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot cache: %w", err)
	}
	var cs cachedSnapshot
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("decode snapshot cache: %w", err)
	}
	if cs.Records == nil {
		cs.Records = []core.Expense{}
	}
	return &feed.Snapshot{Records: cs.Records, Version: cs.Version, Taken: cs.Taken, FromCache: true}, nil
}

// Save writes the snapshot atomically.
func (c *FileCache) Save(s feed.Snapshot) error {
	raw, err := json.Marshal(cachedSnapshot{Version: s.Version, Taken: s.Taken, Records: s.Records})
	if err != nil {
		return fmt.Errorf("encode snapshot cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write snapshot cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace snapshot cache: %w", err)
	}
	return nil
}
