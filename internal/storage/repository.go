package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"market-recap/internal/market"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertRunSQL = `INSERT INTO recap_runs (
        id,
        started_at,
        finished_at,
        status,
        tickers,
        price_records,
        return_records,
        news_items,
        quality_score,
        checks_failed,
        report_path,
        error
    ) VALUES (
        $1::uuid,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    );`

	insertStageRunSQL = `INSERT INTO recap_stage_runs (
        run_id,
        position,
        name,
        status,
        started_at,
        duration_ms,
        records,
        error
    ) VALUES (
        $1::uuid,$2,$3,$4,$5,$6,$7,$8
    );`

	upsertPriceSQL = `INSERT INTO price_records (
        ticker,
        trade_date,
        open,
        high,
        low,
        close,
        volume,
        run_id
    ) VALUES (
        $1,$2,$3::numeric,$4::numeric,$5::numeric,$6::numeric,$7,$8::uuid
    )
    ON CONFLICT (ticker, trade_date) DO UPDATE
    SET
        open   = EXCLUDED.open,
        high   = EXCLUDED.high,
        low    = EXCLUDED.low,
        close  = EXCLUDED.close,
        volume = EXCLUDED.volume,
        run_id = EXCLUDED.run_id;`

	listRecentRunsSQL = `SELECT
        id::text,
        started_at,
        finished_at,
        status,
        tickers,
        price_records,
        return_records,
        news_items,
        quality_score,
        checks_failed,
        report_path,
        error
    FROM recap_runs
    ORDER BY started_at DESC
    LIMIT $1;`

	listStageRunsSQL = `SELECT
        run_id::text,
        position,
        name,
        status,
        started_at,
        duration_ms,
        records,
        error
    FROM recap_stage_runs
    WHERE run_id = $1::uuid
    ORDER BY position;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RunStore defines operations for run archiving.
type RunStore interface {
	InsertRun(ctx context.Context, run RunRecord, stages []StageRun) error
	UpsertPrices(ctx context.Context, runID uuid.UUID, records []market.InstrumentRecord) error
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	ListStageRuns(ctx context.Context, runID uuid.UUID) ([]StageRun, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store archives runs, stage metadata and fetched prices.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertRun stores a run and its stages in one transaction.
func (s *Store) InsertRun(ctx context.Context, run RunRecord, stages []StageRun) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertRunSQL,
			run.ID.String(),
			run.StartedAt,
			run.FinishedAt,
			run.Status,
			run.Tickers,
			run.PriceRecords,
			run.ReturnRecords,
			run.NewsItems,
			run.QualityScore,
			run.ChecksFailed,
			run.ReportPath,
			run.Error,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, st := range stages {
			batch.Queue(insertStageRunSQL,
				run.ID.String(),
				st.Position,
				st.Name,
				st.Status,
				st.StartedAt,
				st.DurationMS,
				st.Records,
				st.Error,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert stage runs: %w", err)
		}
		return nil
	})
}

// UpsertPrices stores fetched bars keyed by (ticker, trade_date).
func (s *Store) UpsertPrices(ctx context.Context, runID uuid.UUID, records []market.InstrumentRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(upsertPriceSQL,
			r.Ticker,
			r.Date,
			nullDecimal(r.Open),
			nullDecimal(r.High),
			nullDecimal(r.Low),
			r.Close.String(),
			r.Volume,
			runID.String(),
		)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert prices: %w", err)
	}
	return nil
}

// ListRecentRuns lists the most recent runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// ListStageRuns returns the archived stages of a run in execution order.
func (s *Store) ListStageRuns(ctx context.Context, runID uuid.UUID) ([]StageRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listStageRunsSQL, runID.String())
	if queryErr != nil {
		return nil, fmt.Errorf("list stage runs: %w", queryErr)
	}
	defer rows.Close()

	stages := make([]StageRun, 0)
	for rows.Next() {
		var (
			idStr   string
			st      StageRun
			records sql.NullInt32
			errMsg  sql.NullString
		)
		if err := rows.Scan(&idStr, &st.Position, &st.Name, &st.Status, &st.StartedAt, &st.DurationMS, &records, &errMsg); err != nil {
			return nil, err
		}
		if st.RunID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse run id: %w", err)
		}
		if records.Valid {
			n := int(records.Int32)
			st.Records = &n
		}
		if errMsg.Valid {
			msg := errMsg.String
			st.Error = &msg
		}
		stages = append(stages, st)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return stages, nil
}

func scanRun(rows pgx.Rows) (RunRecord, error) {
	var (
		run        RunRecord
		idStr      string
		score      sql.NullFloat64
		reportPath sql.NullString
		errMsg     sql.NullString
	)

	if err := rows.Scan(
		&idStr,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Tickers,
		&run.PriceRecords,
		&run.ReturnRecords,
		&run.NewsItems,
		&score,
		&run.ChecksFailed,
		&reportPath,
		&errMsg,
	); err != nil {
		return RunRecord{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return RunRecord{}, fmt.Errorf("parse run id: %w", err)
	}
	run.ID = id

	if score.Valid {
		v := score.Float64
		run.QualityScore = &v
	}
	if reportPath.Valid {
		p := reportPath.String
		run.ReportPath = &p
	}
	if errMsg.Valid {
		msg := errMsg.String
		run.Error = &msg
	}
	return run, nil
}

// nullDecimal maps an unset value to SQL NULL and a set one to its exact text.
func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

var (
	_ RunStore       = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
