package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/exposure/internal/types"
	"modernc.org/sqlite"
)

const metaLastFullSync = "last_full_sync"

// SQLiteLedger is the SQLite-backed session ledger.
type SQLiteLedger struct {
	db *sql.DB
}

var _ Ledger = (*SQLiteLedger)(nil)

// NewSQLiteLedger opens the ledger database at dbPath.
// It initializes the database with WAL mode, applies pragmas, and runs
// migrations.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection: ledger mutations are serialized through one
	// writer, and in-memory databases stay visible across calls.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Ping verifies the database connection is alive.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// partTable maps a batch kind to its ledger table. The two tables have an
// identical shape; only the kind separates them.
func partTable(kind types.BatchKind) string {
	if kind == types.BatchKindFull {
		return "full_batch_part"
	}
	return "daily_batch_part"
}

// CreateSession inserts a new session row.
// Returns ErrDuplicateSession when the token or the category already has a
// live session. The INSERT itself is the duplicate check: mapping the
// primary-key/unique violation keeps the detection race-free even with a
// second process writing the same ledger file.
func (l *SQLiteLedger) CreateSession(ctx context.Context, token string, category types.Category) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO session (token, category) VALUES (?, ?)`,
		token, string(category))
	if isConstraintErr(err) {
		return ErrDuplicateSession
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// isConstraintErr reports whether err is any SQLITE_CONSTRAINT violation.
// The driver returns extended result codes; the low byte is the primary one.
func isConstraintErr(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == 19 // SQLITE_CONSTRAINT
}

// SessionForCategory returns the live session for a category, or ErrNotFound.
func (l *SQLiteLedger) SessionForCategory(ctx context.Context, category types.Category) (*types.SyncSession, error) {
	var s types.SyncSession
	var cat string
	err := l.db.QueryRowContext(ctx,
		`SELECT token, category FROM session WHERE category = ?`,
		string(category)).Scan(&s.Token, &cat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session by category: %w", err)
	}
	s.Category = types.Category(cat)
	return &s, nil
}

// RecordPart records one successfully downloaded batch file.
// Idempotent on (token, kind, batchNumber): retrying a download never
// duplicates ledger rows. Returns ErrOrphanSession when the token does not
// reference a live session.
func (l *SQLiteLedger) RecordPart(ctx context.Context, token string, kind types.BatchKind, batchNumber, intervalStart int64, path string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session WHERE token = ?`, token).Scan(&exists); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return ErrOrphanSession
	}

	// INSERT OR IGNORE rides on UNIQUE(token, batch_number) for idempotency.
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR IGNORE INTO %s (token, batch_number, interval_start, path)
			VALUES (?, ?, ?, ?)`, partTable(kind)),
		token, batchNumber, intervalStart, path); err != nil {
		return fmt.Errorf("insert %s part: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RecordBatch records every file of one downloaded batch in a single
// transaction: either all of the batch's rows become durable or none do, so
// a crash can never leave a batch half recorded. Returns ErrOrphanSession
// when the token does not reference a live session.
func (l *SQLiteLedger) RecordBatch(ctx context.Context, token string, kind types.BatchKind, intervalStart int64, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session WHERE token = ?`, token).Scan(&exists); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return ErrOrphanSession
	}

	var next int64
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(batch_number), 0) + 1 FROM %s WHERE token = ?`, partTable(kind)),
		token).Scan(&next); err != nil {
		return fmt.Errorf("next batch number: %w", err)
	}

	for i, path := range paths {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT OR IGNORE INTO %s (token, batch_number, interval_start, path)
				VALUES (?, ?, ?, ?)`, partTable(kind)),
			token, next+int64(i), intervalStart, path); err != nil {
			return fmt.Errorf("insert %s part: %w", kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadSession returns the session with all of its full and daily parts.
func (l *SQLiteLedger) LoadSession(ctx context.Context, token string) (*types.SessionAggregate, error) {
	var agg types.SessionAggregate
	var cat string
	err := l.db.QueryRowContext(ctx,
		`SELECT token, category FROM session WHERE token = ?`,
		token).Scan(&agg.Session.Token, &cat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	agg.Session.Category = types.Category(cat)

	if agg.FullParts, err = l.queryParts(ctx, token, types.BatchKindFull); err != nil {
		return nil, err
	}
	if agg.DailyParts, err = l.queryParts(ctx, token, types.BatchKindDaily); err != nil {
		return nil, err
	}
	return &agg, nil
}

func (l *SQLiteLedger) queryParts(ctx context.Context, token string, kind types.BatchKind) ([]types.BatchPart, error) {
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, token, batch_number, interval_start, path
			FROM %s WHERE token = ? ORDER BY batch_number ASC`, partTable(kind)),
		token)
	if err != nil {
		return nil, fmt.Errorf("query %s parts: %w", kind, err)
	}
	defer rows.Close()

	var parts []types.BatchPart
	for rows.Next() {
		var p types.BatchPart
		if err := rows.Scan(&p.ID, &p.Token, &p.BatchNumber, &p.IntervalStart, &p.Path); err != nil {
			return nil, fmt.Errorf("scan %s part: %w", kind, err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// DeleteSession removes a session and cascades to all of its parts.
// Deleting an absent session is not an error.
func (l *SQLiteLedger) DeleteSession(ctx context.Context, token string) error {
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM session WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// MissingParts diffs the run's batch selection against the recorded parts.
// The comparison is by interval identity, never by file path, since paths
// may be re-issued by the server.
func (l *SQLiteLedger) MissingParts(ctx context.Context, token string, sel types.BatchSelection) (types.MissingParts, error) {
	agg, err := l.LoadSession(ctx, token)
	if err != nil {
		return types.MissingParts{}, err
	}

	var missing types.MissingParts
	fullSeen := recordedIntervals(agg.FullParts)
	if !zeroDescriptor(sel.Full) {
		if _, ok := fullSeen[sel.Full.Interval]; !ok {
			missing.Full = append(missing.Full, sel.Full)
		}
	}

	dailySeen := recordedIntervals(agg.DailyParts)
	for _, d := range sel.Daily {
		if _, ok := dailySeen[d.Interval]; !ok {
			missing.Daily = append(missing.Daily, d)
		}
	}
	return missing, nil
}

// zeroDescriptor reports whether a run selected no full batch at all.
func zeroDescriptor(d types.BatchDescriptor) bool {
	return d.Interval == 0 && len(d.FilePaths) == 0
}

func recordedIntervals(parts []types.BatchPart) map[int64]struct{} {
	seen := make(map[int64]struct{}, len(parts))
	for _, p := range parts {
		seen[p.IntervalStart] = struct{}{}
	}
	return seen
}

// NextBatchNumber returns the next monotonically assigned batch number for
// one session/kind ledger.
func (l *SQLiteLedger) NextBatchNumber(ctx context.Context, token string, kind types.BatchKind) (int64, error) {
	var next int64
	err := l.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(batch_number), 0) + 1 FROM %s WHERE token = ?`, partTable(kind)),
		token).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next batch number: %w", err)
	}
	return next, nil
}

// PurgeOrphans deletes part rows whose token no longer references a live
// session. Returns the number of rows removed. This is the corruption
// recovery path; with foreign keys enforced it should find nothing.
func (l *SQLiteLedger) PurgeOrphans(ctx context.Context) (int64, error) {
	var total int64
	for _, kind := range []types.BatchKind{types.BatchKindFull, types.BatchKindDaily} {
		result, err := l.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE token NOT IN (SELECT token FROM session)`, partTable(kind)))
		if err != nil {
			return total, fmt.Errorf("purge %s orphans: %w", kind, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// LastFullSync returns the time of the last successful full-batch sync,
// or ErrNotFound when none is recorded.
func (l *SQLiteLedger) LastFullSync(ctx context.Context) (time.Time, error) {
	var value string
	err := l.db.QueryRowContext(ctx,
		`SELECT value FROM sync_meta WHERE key = ?`, metaLastFullSync).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last full sync: %w", err)
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last full sync %q: %w", value, err)
	}
	return t, nil
}

// SetLastFullSync records the time of a successful full-batch sync.
func (l *SQLiteLedger) SetLastFullSync(ctx context.Context, t time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sync_meta (key, value) VALUES (?, ?)`,
		metaLastFullSync, t.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set last full sync: %w", err)
	}
	return nil
}
