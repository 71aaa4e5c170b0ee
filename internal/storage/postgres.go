package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"metis/internal/plan"
)

// PostgresStore persists codec payloads in a small fixed schema: one table
// each for q-tables, outcomes, and type summaries, plus a (run_id, kind)
// table shared by the per-run artifacts.
type PostgresStore struct {
	url string

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

func NewPostgresStore(url string) *PostgresStore {
	return &PostgresStore{url: url}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.url == "" {
		return errors.New("postgres URL is required")
	}
	if s.pool != nil {
		return nil
	}

	pool, err := pgxpool.New(ctx, s.url)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	if err := createPostgresTables(ctx, pool); err != nil {
		pool.Close()
		return err
	}

	s.pool = pool
	return nil
}

func (s *PostgresStore) SaveQTable(ctx context.Context, snapshot plan.QTableSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := EncodeQTable(snapshot)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO metis_qtables (id, schema_version, codec_version, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, snapshot.ID, snapshot.SchemaVersion, snapshot.CodecVersion, payload)
	return err
}

func (s *PostgresStore) GetQTable(ctx context.Context, id string) (plan.QTableSnapshot, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return plan.QTableSnapshot{}, false, err
	}

	var payload []byte
	err = pool.QueryRow(ctx, `SELECT payload FROM metis_qtables WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return plan.QTableSnapshot{}, false, nil
		}
		return plan.QTableSnapshot{}, false, err
	}

	snapshot, err := DecodeQTable(payload)
	if err != nil {
		return plan.QTableSnapshot{}, false, fmt.Errorf("decode q-table %s: %w", id, err)
	}
	return snapshot, true, nil
}

func (s *PostgresStore) AppendOutcome(ctx context.Context, record plan.OutcomeRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := EncodeOutcome(record)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO metis_outcomes (id, state_key, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			state_key = excluded.state_key,
			payload = excluded.payload
	`, record.ID, record.StateKey, payload)
	return err
}

func (s *PostgresStore) GetOutcomes(ctx context.Context, stateKey string) ([]plan.OutcomeRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	rows, err := pool.Query(ctx, `SELECT payload FROM metis_outcomes WHERE state_key = $1 ORDER BY seq`, stateKey)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var records []plan.OutcomeRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, false, err
		}
		record, err := DecodeOutcome(payload)
		if err != nil {
			return nil, false, fmt.Errorf("decode outcome for state %s: %w", stateKey, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records, true, nil
}

func (s *PostgresStore) SaveFitnessHistory(ctx context.Context, runID string, history []float64) error {
	payload, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}
	return s.saveRunBlob(ctx, runID, "history", payload)
}

func (s *PostgresStore) GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	payload, ok, err := s.getRunBlob(ctx, runID, "history")
	if err != nil || !ok {
		return nil, false, err
	}
	history, err := DecodeFitnessHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode fitness history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *PostgresStore) SaveDiagnostics(ctx context.Context, runID string, diagnostics []plan.GenerationDiagnostics) error {
	payload, err := EncodeDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.saveRunBlob(ctx, runID, "diagnostics", payload)
}

func (s *PostgresStore) GetDiagnostics(ctx context.Context, runID string) ([]plan.GenerationDiagnostics, bool, error) {
	payload, ok, err := s.getRunBlob(ctx, runID, "diagnostics")
	if err != nil || !ok {
		return nil, false, err
	}
	diagnostics, err := DecodeDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics %s: %w", runID, err)
	}
	return diagnostics, true, nil
}

func (s *PostgresStore) SaveLineage(ctx context.Context, runID string, lineage []plan.LineageRecord) error {
	payload, err := EncodeLineage(lineage)
	if err != nil {
		return err
	}
	return s.saveRunBlob(ctx, runID, "lineage", payload)
}

func (s *PostgresStore) GetLineage(ctx context.Context, runID string) ([]plan.LineageRecord, bool, error) {
	payload, ok, err := s.getRunBlob(ctx, runID, "lineage")
	if err != nil || !ok {
		return nil, false, err
	}
	lineage, err := DecodeLineage(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode lineage %s: %w", runID, err)
	}
	return lineage, true, nil
}

func (s *PostgresStore) SaveTopPlans(ctx context.Context, runID string, top []plan.RankedPlan) error {
	payload, err := EncodeTopPlans(top)
	if err != nil {
		return err
	}
	return s.saveRunBlob(ctx, runID, "top_plans", payload)
}

func (s *PostgresStore) GetTopPlans(ctx context.Context, runID string) ([]plan.RankedPlan, bool, error) {
	payload, ok, err := s.getRunBlob(ctx, runID, "top_plans")
	if err != nil || !ok {
		return nil, false, err
	}
	top, err := DecodeTopPlans(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode top plans %s: %w", runID, err)
	}
	return top, true, nil
}

func (s *PostgresStore) SavePlanTypeSummary(ctx context.Context, summary plan.PlanTypeSummary) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := EncodePlanTypeSummary(summary)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO metis_type_summaries (plan_type, payload)
		VALUES ($1, $2)
		ON CONFLICT (plan_type) DO UPDATE SET
			payload = excluded.payload
	`, summary.Type, payload)
	return err
}

func (s *PostgresStore) GetPlanTypeSummary(ctx context.Context, planType string) (plan.PlanTypeSummary, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return plan.PlanTypeSummary{}, false, err
	}

	var payload []byte
	err = pool.QueryRow(ctx, `SELECT payload FROM metis_type_summaries WHERE plan_type = $1`, planType).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return plan.PlanTypeSummary{}, false, nil
		}
		return plan.PlanTypeSummary{}, false, err
	}

	summary, err := DecodePlanTypeSummary(payload)
	if err != nil {
		return plan.PlanTypeSummary{}, false, fmt.Errorf("decode type summary %s: %w", planType, err)
	}
	return summary, true, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, table := range []string{"metis_qtables", "metis_outcomes", "metis_runs", "metis_type_summaries"} {
		if _, err := pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.pool = nil
	return nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pool == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.pool, nil
}

func (s *PostgresStore) saveRunBlob(ctx context.Context, runID, kind string, payload []byte) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO metis_runs (run_id, kind, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, kind) DO UPDATE SET
			payload = excluded.payload
	`, runID, kind, payload)
	return err
}

func (s *PostgresStore) getRunBlob(ctx context.Context, runID, kind string) ([]byte, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = pool.QueryRow(ctx, `SELECT payload FROM metis_runs WHERE run_id = $1 AND kind = $2`, runID, kind).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func createPostgresTables(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS metis_qtables (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metis_outcomes (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			state_key TEXT NOT NULL,
			payload BYTEA NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS metis_outcomes_state_key ON metis_outcomes (state_key)`,
		`CREATE TABLE IF NOT EXISTS metis_runs (
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload BYTEA NOT NULL,
			PRIMARY KEY (run_id, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS metis_type_summaries (
			plan_type TEXT PRIMARY KEY,
			payload BYTEA NOT NULL
		)`,
	}
	for _, statement := range statements {
		if _, err := pool.Exec(ctx, statement); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}
