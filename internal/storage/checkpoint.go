package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/model"
)

// CheckpointFormatVersion is written into every checkpoint.
const CheckpointFormatVersion = 1

// CheckpointManager stores named snapshots of a namespace's ledger state.
// Checkpoints live at <dir>/<namespace>/<tag>.json.
type CheckpointManager struct {
	now            func() time.Time
	checkpointsDir string
}

// CheckpointMetadata contains metadata about a checkpoint.
type CheckpointMetadata struct {
	CreatedAt     time.Time `json:"created_at"`
	ID            string    `json:"id"`
	Namespace     string    `json:"namespace"`
	Description   string    `json:"description"`
	Checksum      string    `json:"checksum"`
	Categories    int       `json:"categories"`
	Transactions  int       `json:"transactions"`
	Months        int       `json:"months"`
	FormatVersion int       `json:"format_version"`
}

// CheckpointInfo represents information about a checkpoint for listing.
type CheckpointInfo struct {
	CreatedAt    time.Time
	ID           string
	Description  string
	FileSize     int64
	Categories   int
	Transactions int
	Months       int
}

type checkpointFile struct {
	State    json.RawMessage    `json:"state"`
	Metadata CheckpointMetadata `json:"metadata"`
}

// Common errors.
var (
	ErrCheckpointNotFound  = errors.New("checkpoint not found")
	ErrCheckpointCorrupted = errors.New("checkpoint integrity check failed")
	ErrCheckpointExists    = errors.New("checkpoint already exists")
)

// NewCheckpointManager creates a new checkpoint manager rooted at dir.
func NewCheckpointManager(dir string) (*CheckpointManager, error) {
	if err := validateString(dir, "dir"); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &CheckpointManager{
		checkpointsDir: dir,
		now:            time.Now,
	}, nil
}

func (cm *CheckpointManager) namespaceDir(namespace string) string {
	return filepath.Join(cm.checkpointsDir, namespace)
}

func (cm *CheckpointManager) checkpointPath(namespace, tag string) string {
	return filepath.Join(cm.namespaceDir(namespace), tag+".json")
}

// Create snapshots state under tag. An empty tag is generated from the current time.
func (cm *CheckpointManager) Create(ctx context.Context, namespace, tag, description string, state *model.LedgerState) (*CheckpointInfo, error) {
	if err := validateSaveArgs(ctx, namespace, state); err != nil {
		return nil, err
	}

	if tag == "" {
		tag = cm.generateTag(namespace)
	}
	if err := validateTag(tag); err != nil {
		return nil, err
	}

	path := cm.checkpointPath(namespace, tag)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointExists, tag)
	}

	document, err := EncodeState(state)
	if err != nil {
		return nil, err
	}

	metadata := CheckpointMetadata{
		ID:            tag,
		Namespace:     namespace,
		CreatedAt:     cm.now().UTC(),
		Description:   description,
		Checksum:      checksum(document),
		Categories:    len(state.Categories),
		Transactions:  len(state.Transactions),
		Months:        len(state.MonthlyBudgets),
		FormatVersion: CheckpointFormatVersion,
	}

	data, err := json.Marshal(checkpointFile{Metadata: metadata, State: document})
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := os.MkdirAll(cm.namespaceDir(namespace), 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint: %w", err)
	}

	slog.Info("Created checkpoint", "namespace", namespace, "id", tag)
	return infoFromMetadata(metadata, int64(len(data))), nil
}

// generateTag names a checkpoint after the current second, adding -2, -3 ...
// when earlier checkpoints already took that name.
func (cm *CheckpointManager) generateTag(namespace string) string {
	base := fmt.Sprintf("checkpoint-%s", cm.now().Format("2006-01-02-150405"))
	tag := base
	for n := 2; ; n++ {
		if _, err := os.Stat(cm.checkpointPath(namespace, tag)); err != nil {
			return tag
		}
		tag = fmt.Sprintf("%s-%d", base, n)
	}
}

// List returns the namespace's checkpoints, newest first.
func (cm *CheckpointManager) List(ctx context.Context, namespace string) ([]CheckpointInfo, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(cm.namespaceDir(namespace))
	if errors.Is(err, os.ErrNotExist) {
		return []CheckpointInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints directory: %w", err)
	}

	checkpoints := make([]CheckpointInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}

		file, size, err := cm.readFile(filepath.Join(cm.namespaceDir(namespace), name))
		if err != nil {
			// Skip corrupted checkpoint files
			slog.Debug("skipping unreadable checkpoint", "file", name, "error", err)
			continue
		}
		checkpoints = append(checkpoints, *infoFromMetadata(file.Metadata, size))
	}

	sort.SliceStable(checkpoints, func(i, j int) bool {
		return checkpoints[i].CreatedAt.After(checkpoints[j].CreatedAt)
	})

	return checkpoints, nil
}

// Load reads a checkpoint, checks its integrity and decodes the stored state.
func (cm *CheckpointManager) Load(ctx context.Context, namespace, tag string) (*model.LedgerState, *CheckpointInfo, error) {
	if err := validateContext(ctx); err != nil {
		return nil, nil, err
	}
	if err := validateNamespace(namespace); err != nil {
		return nil, nil, err
	}
	if err := validateTag(tag); err != nil {
		return nil, nil, err
	}

	file, size, err := cm.readFile(cm.checkpointPath(namespace, tag))
	if err != nil {
		return nil, nil, err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, file.State); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCheckpointCorrupted, err)
	}
	if checksum(compact.Bytes()) != file.Metadata.Checksum {
		return nil, nil, fmt.Errorf("%w: checksum mismatch for %s", ErrCheckpointCorrupted, tag)
	}

	state, err := DecodeState(compact.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCheckpointCorrupted, err)
	}

	return state, infoFromMetadata(file.Metadata, size), nil
}

// Delete removes a checkpoint.
func (cm *CheckpointManager) Delete(ctx context.Context, namespace, tag string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	if err := validateTag(tag); err != nil {
		return err
	}

	if err := os.Remove(cm.checkpointPath(namespace, tag)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, tag)
		}
		return fmt.Errorf("failed to remove checkpoint file: %w", err)
	}

	slog.Info("Deleted checkpoint", "namespace", namespace, "id", tag)
	return nil
}

// GetCheckpointInfo retrieves information about a specific checkpoint.
func (cm *CheckpointManager) GetCheckpointInfo(ctx context.Context, namespace, tag string) (*CheckpointInfo, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	if err := validateTag(tag); err != nil {
		return nil, err
	}

	file, size, err := cm.readFile(cm.checkpointPath(namespace, tag))
	if err != nil {
		return nil, err
	}
	return infoFromMetadata(file.Metadata, size), nil
}

// Helper methods

func (cm *CheckpointManager) readFile(path string) (*checkpointFile, int64, error) {
	// #nosec G304 - path is built from validated namespace and tag
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrCheckpointNotFound, strings.TrimSuffix(filepath.Base(path), ".json"))
		}
		return nil, 0, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var file checkpointFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrCheckpointCorrupted, err)
	}
	return &file, int64(len(data)), nil
}

func infoFromMetadata(metadata CheckpointMetadata, size int64) *CheckpointInfo {
	return &CheckpointInfo{
		ID:           metadata.ID,
		CreatedAt:    metadata.CreatedAt,
		Description:  metadata.Description,
		FileSize:     size,
		Categories:   metadata.Categories,
		Transactions: metadata.Transactions,
		Months:       metadata.Months,
	}
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
