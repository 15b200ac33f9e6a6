package textfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"universe-server/internal/physics"
	"universe-server/internal/shared/errors"
	"universe-server/internal/storage"
)

// Extension is appended to destinations that have none.
const Extension = ".uni"

// Store keeps universes as text files. Relative paths resolve against dir,
// and unless the store is unconfined every path must stay inside it.
type Store struct {
	dir        string
	unconfined bool
	logger     *slog.Logger
}

var _ storage.Store = (*Store)(nil)

type StoreOption func(*Store)

// WithUnconfinedPaths lets callers read and write anywhere the process can,
// including absolute paths outside dir. Only local tooling should set it.
func WithUnconfinedPaths() StoreOption {
	return func(s *Store) {
		s.unconfined = true
	}
}

func NewStore(dir string, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		dir:    dir,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.unconfined {
		if dir == "" {
			dir = "."
		}
		if abs, err := filepath.Abs(dir); err == nil {
			s.dir = abs
		} else {
			s.dir = filepath.Clean(dir)
		}
	}

	logger.Debug("Initializing text universe store", "dir", s.dir, "unconfined", s.unconfined)
	return s
}

// SaveInitial saves u with zeroed run metadata.
func (s *Store) SaveInitial(ctx context.Context, u *physics.Universe, dest string) (string, error) {
	return s.SaveRun(ctx, u, dest, storage.RunMeta{})
}

func (s *Store) SaveRun(ctx context.Context, u *physics.Universe, dest string, meta storage.RunMeta) (string, error) {
	logger := s.logger.With("component", "text_store", "operation", "save_run", "dest", dest)

	if dest == "" {
		return "", errors.Validation("destination is required")
	}
	if err := ctx.Err(); err != nil {
		return "", errors.WrapInternal("save cancelled", err)
	}

	path, err := s.resolve(dest, true)
	if err != nil {
		logger.Warn("Rejected universe destination", "error", err)
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Error("Failed to create universe directory", "error", err)
		return "", errors.WrapInternal("failed to create universe directory", err)
	}

	// write next to the target and rename so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(path), ".universe-*")
	if err != nil {
		logger.Error("Failed to create temporary file", "error", err)
		return "", errors.WrapInternal("failed to create universe file", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove temporary file", "file", tmp.Name(), "error", err)
		}
	}()

	if err := Encode(tmp, u, meta); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to encode universe: %w", err)
	}
	if err := tmp.Close(); err != nil {
		logger.Error("Failed to close temporary file", "error", err)
		return "", errors.WrapInternal("failed to write universe file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		logger.Error("Failed to move universe file into place", "error", err)
		return "", errors.WrapInternal("failed to write universe file", err)
	}

	logger.Info("Universe saved",
		"path", path,
		"bodies", u.Len(),
		"iterations", meta.Iterations,
		"step_seconds", meta.StepSeconds)
	return path, nil
}

func (s *Store) LoadRun(ctx context.Context, src string) (*physics.Universe, storage.RunMeta, error) {
	logger := s.logger.With("component", "text_store", "operation", "load_run", "src", src)

	if src == "" {
		return nil, storage.RunMeta{}, errors.Validation("source is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, storage.RunMeta{}, errors.WrapInternal("load cancelled", err)
	}

	path, err := s.resolve(src, false)
	if err != nil {
		logger.Warn("Rejected universe source", "error", err)
		return nil, storage.RunMeta{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.RunMeta{}, errors.WrapNotFound(fmt.Sprintf("universe file %s not found", path), err)
		}
		logger.Error("Failed to open universe file", "path", path, "error", err)
		return nil, storage.RunMeta{}, errors.WrapInternal("failed to open universe file", err)
	}
	defer f.Close()

	doc, err := Decode(f)
	if err != nil {
		return nil, storage.RunMeta{}, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if doc.Skipped > 0 {
		logger.Warn("Skipped malformed body rows", "path", path, "skipped", doc.Skipped)
	}

	logger.Info("Universe loaded",
		"path", path,
		"bodies", doc.Universe.Len(),
		"iterations", doc.Meta.Iterations,
		"step_seconds", doc.Meta.StepSeconds)
	return doc.Universe, doc.Meta, nil
}

// resolve joins relative names with the store directory. Saves add the
// default extension when dest has none; loads try the name as given first.
// A confined store rejects any path that leaves its directory.
func (s *Store) resolve(name string, saving bool) (string, error) {
	path := name
	if !filepath.IsAbs(path) && s.dir != "" {
		path = filepath.Join(s.dir, path)
	}
	if filepath.Ext(path) == "" {
		if saving {
			path += Extension
		} else if _, err := os.Stat(path); err != nil {
			path += Extension
		}
	}
	if !s.unconfined && !s.contains(path) {
		return "", errors.Validation(fmt.Sprintf("path %q is outside the universe directory", name))
	}
	return path, nil
}

func (s *Store) contains(path string) bool {
	rel, err := filepath.Rel(s.dir, filepath.Clean(path))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
