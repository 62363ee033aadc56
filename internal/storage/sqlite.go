package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements service.Store using SQLite.
// Each namespace is one row holding the encoded ledger document and a
// revision that every save advances.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite store. Call Migrate before use.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		now: time.Now,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the state stored for namespace, or an empty state when none exists.
func (s *SQLiteStore) Load(ctx context.Context, namespace string) (*model.LedgerState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}

	var (
		document string
		revision int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT document, revision FROM ledger_state WHERE namespace = ?`, namespace,
	).Scan(&document, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewLedgerState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger %q: %w", namespace, err)
	}

	state, err := DecodeState([]byte(document))
	if err != nil {
		return nil, fmt.Errorf("ledger %q: %w", namespace, err)
	}
	state.Revision = revision
	return state, nil
}

// Save replaces the state stored for namespace in a single transaction, provided
// the stored revision still equals state.Revision. On success state.Revision is
// advanced; a stale state fails with common.ErrConflict and nothing is written.
func (s *SQLiteStore) Save(ctx context.Context, namespace string, state *model.LedgerState) error {
	if err := validateSaveArgs(ctx, namespace, state); err != nil {
		return err
	}

	document, err := EncodeState(state)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", common.ErrPersistence, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := s.now().UTC()
	var result sql.Result
	if state.Revision == 0 {
		result, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_state (namespace, document, revision, updated_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(namespace) DO NOTHING
		`, namespace, string(document), now)
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE ledger_state
			SET document = ?, revision = revision + 1, updated_at = ?
			WHERE namespace = ? AND revision = ?
		`, string(document), now, namespace, state.Revision)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to write ledger %q: %w", common.ErrPersistence, namespace, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to write ledger %q: %w", common.ErrPersistence, namespace, err)
	}
	if affected == 0 {
		var current int64
		if err := tx.QueryRowContext(ctx,
			`SELECT revision FROM ledger_state WHERE namespace = ?`, namespace,
		).Scan(&current); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: failed to read revision of %q: %w", common.ErrPersistence, namespace, err)
		}
		return conflictError(namespace, state.Revision, current)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit ledger %q: %w", common.ErrPersistence, namespace, err)
	}
	state.Revision++
	return nil
}

// Revision returns how many times namespace has been saved, or 0 if never.
func (s *SQLiteStore) Revision(ctx context.Context, namespace string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var revision int64
	err := s.db.QueryRowContext(ctx,
		`SELECT revision FROM ledger_state WHERE namespace = ?`, namespace,
	).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	return revision, nil
}

// Namespaces lists every namespace with stored state.
func (s *SQLiteStore) Namespaces(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT namespace FROM ledger_state ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("failed to scan namespace: %w", err)
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, rows.Err()
}
