// Package store persists learner snapshots and transfer audit trails in a
// local SQLite database. Snapshots are append-only JSON payloads; the newest
// row per learner is the authoritative state.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"knowtrace/internal/transfer"
	"knowtrace/internal/types"
)

// LocalStore is a single-connection SQLite store. All methods are safe for
// concurrent use.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore opens (or creates) the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal_mode: %w", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous: %w", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	snapshotTable := `
	CREATE TABLE IF NOT EXISTS learner_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		learner_id TEXT NOT NULL,
		taken_at TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_learner ON learner_snapshots(learner_id, id);
	`

	auditTable := `
	CREATE TABLE IF NOT EXISTS transfer_audit (
		id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		source_id TEXT,
		target_id TEXT NOT NULL,
		amount REAL NOT NULL,
		occurred_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_learner ON transfer_audit(learner_id, occurred_at);
	`

	for _, table := range []string{snapshotTable, auditTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot appends one learner snapshot.
func (s *LocalStore) SaveSnapshot(ctx context.Context, snap types.ProfileSnapshot) error {
	if snap.LearnerID == "" {
		return fmt.Errorf("save snapshot: learner id is empty: %w", types.ErrValidation)
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.LearnerID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO learner_snapshots (learner_id, taken_at, payload) VALUES (?, ?, ?)",
		snap.LearnerID, snap.TakenAt.UTC().Format(time.RFC3339Nano), string(payload),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.LearnerID, err)
	}
	return nil
}

// LoadLatest returns the most recently saved snapshot for a learner.
func (s *LocalStore) LoadLatest(ctx context.Context, learnerID string) (types.ProfileSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM learner_snapshots WHERE learner_id = ? ORDER BY id DESC LIMIT 1",
		learnerID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ProfileSnapshot{}, fmt.Errorf("no snapshot for learner %q: %w", learnerID, types.ErrNotFound)
	}
	if err != nil {
		return types.ProfileSnapshot{}, fmt.Errorf("load snapshot %s: %w", learnerID, err)
	}

	var snap types.ProfileSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return types.ProfileSnapshot{}, fmt.Errorf("decode snapshot %s: %w", learnerID, err)
	}
	return snap, nil
}

// SaveAudit persists transfer audit entries. Entries already present, keyed
// by their id, are left untouched, so flushing the same in-memory ring twice
// is harmless.
func (s *LocalStore) SaveAudit(ctx context.Context, entries []transfer.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save audit: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO transfer_audit (id, learner_id, kind, source_id, target_id, amount, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save audit: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.LearnerID, string(e.Kind), e.SourceID, e.TargetID, e.Amount,
			e.OccurredAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("save audit entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// AuditForLearner returns a learner's persisted audit trail, oldest first.
func (s *LocalStore) AuditForLearner(ctx context.Context, learnerID string) ([]transfer.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, learner_id, kind, source_id, target_id, amount, occurred_at
		 FROM transfer_audit WHERE learner_id = ? ORDER BY occurred_at, id`,
		learnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("load audit %s: %w", learnerID, err)
	}
	defer rows.Close()

	var entries []transfer.AuditEntry
	for rows.Next() {
		var e transfer.AuditEntry
		var kind, occurredAt string
		if err := rows.Scan(&e.ID, &e.LearnerID, &kind, &e.SourceID, &e.TargetID, &e.Amount, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan audit %s: %w", learnerID, err)
		}
		e.Kind = transfer.AuditKind(kind)
		if t, err := time.Parse(time.RFC3339Nano, occurredAt); err == nil {
			e.OccurredAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Learners lists every learner id with at least one snapshot.
func (s *LocalStore) Learners(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT learner_id FROM learner_snapshots ORDER BY learner_id")
	if err != nil {
		return nil, fmt.Errorf("list learners: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list learners: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PruneSnapshots keeps only the newest keep snapshots per learner and
// reports how many rows were deleted.
func (s *LocalStore) PruneSnapshots(ctx context.Context, learnerID string, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM learner_snapshots WHERE learner_id = ? AND id NOT IN (
			SELECT id FROM learner_snapshots WHERE learner_id = ? ORDER BY id DESC LIMIT ?
		)`,
		learnerID, learnerID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots %s: %w", learnerID, err)
	}
	return res.RowsAffected()
}
