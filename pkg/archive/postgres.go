package archive

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS simulation_sessions (
	execution_id TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	client_id    TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	timeframe    TEXT NOT NULL,
	range_start  TIMESTAMPTZ NOT NULL,
	range_end    TIMESTAMPTZ NOT NULL,
	reason       TEXT NOT NULL,
	final_equity NUMERIC NOT NULL,
	duration_sec DOUBLE PRECISION NOT NULL,
	total_trades INTEGER NOT NULL,
	sharpe_ratio NUMERIC NOT NULL,
	max_drawdown NUMERIC NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (execution_id, session_id, recorded_at)
);`

const insertSession = `
INSERT INTO simulation_sessions (
	execution_id,
	session_id,
	client_id,
	symbol,
	timeframe,
	range_start,
	range_end,
	reason,
	final_equity,
	duration_sec,
	total_trades,
	sharpe_ratio,
	max_drawdown,
	recorded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (execution_id, session_id, recorded_at) DO NOTHING;`

// PostgresRecorder stores records in the simulation_sessions table.
type PostgresRecorder struct {
	db *sql.DB
}

func ConnString(host, port, user, pass, db string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, pass, db)
}

// ConnectPostgres opens the database, checks it is reachable and creates the
// table when missing.
func ConnectPostgres(ctx context.Context, connStr string) (*PostgresRecorder, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to reach postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createSessionsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to create sessions table: %w", err)
	}
	return &PostgresRecorder{db: db}, nil
}

func (r *PostgresRecorder) Record(ctx context.Context, record Record) error {
	_, err := r.db.ExecContext(ctx, insertSession, insertArgs(record)...)
	if err != nil {
		return fmt.Errorf("unable to archive session %s: %w", record.SessionId, err)
	}
	return nil
}

func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}

func insertArgs(record Record) []any {
	return []any{
		record.ExecutionId,
		record.SessionId,
		record.ClientId,
		record.Symbol,
		record.Timeframe,
		record.Start,
		record.End,
		record.Reason,
		record.FinalEquity.String(),
		record.DurationSec,
		record.TotalTrades,
		record.SharpeRatio.String(),
		record.MaxDrawdown.String(),
		record.RecordedAt,
	}
}
