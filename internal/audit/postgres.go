package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS minutes_audit (
	id           BIGSERIAL PRIMARY KEY,
	recorded_at  TIMESTAMPTZ NOT NULL,
	filename     TEXT NOT NULL,
	size_mb      DOUBLE PRECISION NOT NULL,
	duration_sec DOUBLE PRECISION NOT NULL,
	status       TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	minutes_file TEXT NOT NULL DEFAULT ''
)`

const insertSQL = `INSERT INTO minutes_audit
	(recorded_at, filename, size_mb, duration_sec, status, error_message, minutes_file)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const succeededSQL = `SELECT DISTINCT filename FROM minutes_audit WHERE status = $1 ORDER BY filename`

const pgWriteTimeout = 5 * time.Second

// DB is the subset of *pgxpool.Pool used by PGRecorder.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGRecorder mirrors audit entries into the minutes_audit table so several
// workers can share one history.
type PGRecorder struct {
	db DB
}

func NewPGRecorder(db DB) *PGRecorder {
	return &PGRecorder{db: db}
}

// OpenPG connects to databaseURL and makes sure the audit table exists. The
// caller owns the returned pool.
func OpenPG(ctx context.Context, databaseURL string) (*pgxpool.Pool, *PGRecorder, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to audit database: %w", err)
	}
	rec := NewPGRecorder(pool)
	if err := rec.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, rec, nil
}

func (r *PGRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

func (r *PGRecorder) Record(e Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), pgWriteTimeout)
	defer cancel()
	_, err := r.db.Exec(ctx, insertSQL,
		e.Timestamp, e.Filename, e.SizeMB, e.DurationSec, string(e.Status), e.ErrorMessage, e.ArtifactPath)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// SucceededFiles lists the source filenames that have a SUCCESS entry.
func (r *PGRecorder) SucceededFiles(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, succeededSQL, string(StatusSuccess))
	if err != nil {
		return nil, fmt.Errorf("query audit table: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan audit rows: %w", err)
	}
	return names, nil
}

// Recorder accepts audit entries.
type Recorder interface {
	Record(e Entry) error
}

// Tee records every entry with each recorder in order and joins the errors.
type Tee []Recorder

func (t Tee) Record(e Entry) error {
	var errs []error
	for _, r := range t {
		if err := r.Record(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
