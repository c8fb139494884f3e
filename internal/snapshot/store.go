// Package snapshot persists the last observed course state as a single JSON document.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/course"
	"go.uber.org/zap"
)

var (
	// ErrNotFound indicates that no snapshot has been written yet.
	ErrNotFound = errors.New("snapshot: not found")
	// ErrInvalidStoreConfig indicates a missing path.
	ErrInvalidStoreConfig = errors.New("snapshot: invalid store config")
)

// ParseError reports a snapshot document that exists but cannot be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("snapshot: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// StoreConfig configures a file-backed Store.
type StoreConfig struct {
	Path   string
	Logger *zap.Logger
}

// Store reads and rewrites one snapshot file. Writes replace the whole document.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore validates cfg and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidStoreConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}, nil
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted snapshot. A missing file yields ErrNotFound and an unreadable one a *ParseError.
func (s *Store) Load() (course.Snapshot, error) {
	content, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return course.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return course.Snapshot{}, &ParseError{Path: s.path, Err: err}
	}

	var snapshot course.Snapshot
	decoder := json.NewDecoder(bytes.NewReader(content))
	if err := decoder.Decode(&snapshot); err != nil {
		return course.Snapshot{}, &ParseError{Path: s.path, Err: err}
	}
	if snapshot.Courses == nil {
		return course.Snapshot{}, &ParseError{Path: s.path, Err: errors.New("document has no courses")}
	}

	s.logger.Debug("snapshot loaded",
		zap.String("path", s.path),
		zap.Int("courses", len(snapshot.Courses)))
	return snapshot, nil
}

// Save atomically replaces the snapshot file. The previous document is kept as <path>.bak.
func (s *Store) Save(snapshot course.Snapshot) error {
	content, err := json.MarshalIndent(snapshot, "", "    ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	if err := writeAtomic(s.path, content); err != nil {
		return err
	}
	s.logger.Debug("snapshot saved",
		zap.String("path", s.path),
		zap.Int("courses", len(snapshot.Courses)))
	return nil
}

func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-tmp-*.json")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("snapshot: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp file: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("snapshot: create backup: %w", err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
