package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
)

// Lock acquisition limits for FileStore saves.
const (
	lockAttempts   = 40
	lockRetryDelay = 25 * time.Millisecond
	staleLockAge   = 30 * time.Second
)

// FileStore keeps one JSON document per namespace in a directory. Saves take
// an exclusive <namespace>.json.lock file so concurrent processes cannot
// interleave the revision check and the write.
type FileStore struct {
	dir string
}

// fileDocument wraps the ledger document with its revision.
type fileDocument struct {
	Ledger   json.RawMessage `json:"ledger"`
	Revision int64           `json:"revision"`
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := validateString(dir, "dir"); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Close is a no-op; files are not held open between calls.
func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) path(namespace string) string {
	return filepath.Join(f.dir, namespace+".json")
}

// Load reads the namespace's document, or returns an empty state when the file is absent.
func (f *FileStore) Load(ctx context.Context, namespace string) (*model.LedgerState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}

	// #nosec G304 - namespace is validated above
	data, err := os.ReadFile(f.path(namespace))
	if errors.Is(err, os.ErrNotExist) {
		return model.NewLedgerState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %q: %w", namespace, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: ledger %q: %w", common.ErrCorruptState, namespace, err)
	}

	state, err := DecodeState(doc.Ledger)
	if err != nil {
		return nil, fmt.Errorf("ledger %q: %w", namespace, err)
	}
	state.Revision = doc.Revision
	return state, nil
}

// Save writes to a temporary file, syncs it and renames it over the old document,
// so a reader sees either the old or the new state. The write only happens while
// the stored revision equals state.Revision.
func (f *FileStore) Save(ctx context.Context, namespace string, state *model.LedgerState) error {
	if err := validateSaveArgs(ctx, namespace, state); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}

	ledger, err := EncodeState(state)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}

	unlock, err := f.lock(ctx, namespace)
	if err != nil {
		return fmt.Errorf("%w: ledger %q: %w", common.ErrPersistence, namespace, err)
	}
	defer unlock()

	current, err := f.revision(namespace)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	if current != state.Revision {
		return conflictError(namespace, state.Revision, current)
	}

	data, err := json.Marshal(fileDocument{Ledger: ledger, Revision: current + 1})
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	if err := writeFileAtomic(f.path(namespace), data); err != nil {
		return fmt.Errorf("%w: ledger %q: %w", common.ErrPersistence, namespace, err)
	}
	state.Revision = current + 1
	return nil
}

// revision reads the stored revision of namespace, 0 when nothing is stored.
func (f *FileStore) revision(namespace string) (int64, error) {
	// #nosec G304 - namespace is validated by the caller
	data, err := os.ReadFile(f.path(namespace))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger %q: %w", namespace, err)
	}

	var doc struct {
		Revision int64 `json:"revision"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("%w: ledger %q: %w", common.ErrCorruptState, namespace, err)
	}
	return doc.Revision, nil
}

// lock creates the namespace's lock file, waiting while another process holds
// it. Locks older than staleLockAge are assumed abandoned and removed.
func (f *FileStore) lock(ctx context.Context, namespace string) (func(), error) {
	path := f.path(namespace) + ".lock"

	err := common.WithRetry(ctx, func() error {
		// #nosec G304 - namespace is validated by the caller
		lock, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			_ = lock.Close()
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return &common.RetryableError{Err: err, Retryable: false}
		}

		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			slog.Warn("Removing stale ledger lock", "path", path, "modified", info.ModTime())
			_ = os.Remove(path)
		}
		return fmt.Errorf("ledger %q is locked by another process", namespace)
	}, common.RetryOptions{
		MaxAttempts:  lockAttempts,
		InitialDelay: lockRetryDelay,
		MaxDelay:     lockRetryDelay,
		Multiplier:   1,
	})
	if err != nil {
		return nil, err
	}

	return func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to release ledger lock", "path", path, "error", err)
		}
	}, nil
}

// Namespaces lists the namespaces with a stored document.
func (f *FileStore) Namespaces() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger directory: %w", err)
	}

	var namespaces []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		namespaces = append(namespaces, strings.TrimSuffix(name, ".json"))
	}
	return namespaces, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if committed {
			return
		}
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("failed to remove temp file", "path", tmpName, "error", rmErr)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	committed = true
	return nil
}
