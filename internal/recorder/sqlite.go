package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists vault history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the status command read while the keeper writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS deposits (
			id            TEXT PRIMARY KEY,
			timestamp     INTEGER NOT NULL,
			user          TEXT NOT NULL,
			asset         TEXT NOT NULL,
			amount        TEXT NOT NULL,
			balance_after TEXT,
			total_after   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deposits_user ON deposits(user)`,

		`CREATE TABLE IF NOT EXISTS withdrawals (
			id          TEXT PRIMARY KEY,
			timestamp   INTEGER NOT NULL,
			caller      TEXT NOT NULL,
			recipient   TEXT NOT NULL,
			asset       TEXT NOT NULL,
			amount      TEXT NOT NULL,
			total_after TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS upkeeps (
			id             TEXT PRIMARY KEY,
			timestamp      INTEGER NOT NULL,
			mode           TEXT,
			status         TEXT NOT NULL,
			error_code     TEXT,
			source_asset   TEXT,
			dest_asset     TEXT,
			recipient      TEXT,
			amount_in      TEXT,
			amount_out     TEXT,
			fee            TEXT,
			last_timestamp INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_upkeeps_ts ON upkeeps(timestamp)`,

		`CREATE TABLE IF NOT EXISTS policy_changes (
			id        TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			caller    TEXT NOT NULL,
			field     TEXT NOT NULL,
			old_value TEXT,
			new_value TEXT
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordDeposit(evt *DepositEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO deposits
		(id, timestamp, user, asset, amount, balance_after, total_after)
		VALUES (?,?,?,?,?,?,?)`,
		uuid.NewString(), r.now().Unix(), evt.User, evt.Asset, evt.Amount,
		evt.BalanceAfter, evt.TotalAfter,
	)
	return err
}

func (r *SQLiteRecorder) RecordWithdrawal(evt *WithdrawalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO withdrawals
		(id, timestamp, caller, recipient, asset, amount, total_after)
		VALUES (?,?,?,?,?,?,?)`,
		uuid.NewString(), r.now().Unix(), evt.Caller, evt.To, evt.Asset,
		evt.Amount, evt.TotalAfter,
	)
	return err
}

func (r *SQLiteRecorder) RecordUpkeep(evt *UpkeepEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := evt.RunID
	if id == "" {
		id = uuid.NewString()
	}
	ts := evt.Timestamp
	if ts == 0 {
		ts = r.now().Unix()
	}
	_, err := r.db.Exec(`INSERT INTO upkeeps
		(id, timestamp, mode, status, error_code, source_asset, dest_asset,
		 recipient, amount_in, amount_out, fee, last_timestamp)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, ts, evt.Mode, evt.Status, evt.ErrorCode, evt.SourceAsset, evt.DestAsset,
		evt.Recipient, evt.AmountIn, evt.AmountOut, evt.Fee, evt.LastTimestamp,
	)
	return err
}

func (r *SQLiteRecorder) RecordPolicyChange(evt *PolicyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO policy_changes
		(id, timestamp, caller, field, old_value, new_value)
		VALUES (?,?,?,?,?,?)`,
		uuid.NewString(), r.now().Unix(), evt.Caller, evt.Field, evt.OldValue, evt.NewValue,
	)
	return err
}

// RecentUpkeeps returns up to limit upkeep attempts, newest first.
func (r *SQLiteRecorder) RecentUpkeeps(limit int) ([]UpkeepEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT id, timestamp, mode, status, error_code, source_asset,
		dest_asset, recipient, amount_in, amount_out, fee, last_timestamp
		FROM upkeeps ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query upkeeps: %w", err)
	}
	defer rows.Close()

	var out []UpkeepEvent
	for rows.Next() {
		var e UpkeepEvent
		if err := rows.Scan(&e.RunID, &e.Timestamp, &e.Mode, &e.Status, &e.ErrorCode, &e.SourceAsset,
			&e.DestAsset, &e.Recipient, &e.AmountIn, &e.AmountOut, &e.Fee, &e.LastTimestamp); err != nil {
			return nil, fmt.Errorf("scan upkeep: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
