//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"metis/internal/plan"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveQTable(ctx context.Context, snapshot plan.QTableSnapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeQTable(snapshot)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO qtables (id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, snapshot.ID, snapshot.SchemaVersion, snapshot.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetQTable(ctx context.Context, id string) (plan.QTableSnapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return plan.QTableSnapshot{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM qtables WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

func (s *SQLiteStore) AppendOutcome(ctx context.Context, record plan.OutcomeRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeOutcome(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO outcomes (id, state_key, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state_key = excluded.state_key,
			payload = excluded.payload
	`, record.ID, record.StateKey, payload)
	return err
}

func (s *SQLiteStore) GetOutcomes(ctx context.Context, stateKey string) ([]plan.OutcomeRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, `SELECT payload FROM outcomes WHERE state_key = ? ORDER BY rowid`, stateKey)
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

func (s *SQLiteStore) SaveFitnessHistory(ctx context.Context, runID string, history []float64) error {
	payload, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}
	return s.saveRunBlob(ctx, "fitness_history", runID, payload)
}

func (s *SQLiteStore) GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	payload, ok, err := s.getRunBlob(ctx, "fitness_history", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	history, err := DecodeFitnessHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode fitness history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *SQLiteStore) SaveDiagnostics(ctx context.Context, runID string, diagnostics []plan.GenerationDiagnostics) error {
	payload, err := EncodeDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.saveRunBlob(ctx, "diagnostics", runID, payload)
}

func (s *SQLiteStore) GetDiagnostics(ctx context.Context, runID string) ([]plan.GenerationDiagnostics, bool, error) {
	payload, ok, err := s.getRunBlob(ctx, "diagnostics", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	diagnostics, err := DecodeDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics %s: %w", runID, err)
	}
	return diagnostics, true, nil
}

func (s *SQLiteStore) SaveLineage(ctx context.Context, runID string, lineage []plan.LineageRecord) error {
	payload, err := EncodeLineage(lineage)
	if err != nil {
		return err
	}
	return s.saveRunBlob(ctx, "lineage", runID, payload)
}

func (s *SQLiteStore) GetLineage(ctx context.Context, runID string) ([]plan.LineageRecord, bool, error) {
	payload, ok, err := s.getRunBlob(ctx, "lineage", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	lineage, err := DecodeLineage(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode lineage %s: %w", runID, err)
	}
	return lineage, true, nil
}

func (s *SQLiteStore) SaveTopPlans(ctx context.Context, runID string, top []plan.RankedPlan) error {
	payload, err := EncodeTopPlans(top)
	if err != nil {
		return err
	}
	return s.saveRunBlob(ctx, "top_plans", runID, payload)
}

func (s *SQLiteStore) GetTopPlans(ctx context.Context, runID string) ([]plan.RankedPlan, bool, error) {
	payload, ok, err := s.getRunBlob(ctx, "top_plans", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	top, err := DecodeTopPlans(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode top plans %s: %w", runID, err)
	}
	return top, true, nil
}

func (s *SQLiteStore) SavePlanTypeSummary(ctx context.Context, summary plan.PlanTypeSummary) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodePlanTypeSummary(summary)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO type_summaries (plan_type, payload)
		VALUES (?, ?)
		ON CONFLICT(plan_type) DO UPDATE SET
			payload = excluded.payload
	`, summary.Type, payload)
	return err
}

func (s *SQLiteStore) GetPlanTypeSummary(ctx context.Context, planType string) (plan.PlanTypeSummary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return plan.PlanTypeSummary{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM type_summaries WHERE plan_type = ?`, planType).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

func (s *SQLiteStore) Reset(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	for _, table := range []string{"qtables", "outcomes", "fitness_history", "diagnostics", "lineage", "top_plans", "type_summaries"} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func (s *SQLiteStore) saveRunBlob(ctx context.Context, table, runID string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, table)
	_, err = db.ExecContext(ctx, query, runID, payload)
	return err
}

func (s *SQLiteStore) getRunBlob(ctx context.Context, table, runID string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, fmt.Sprintf(`SELECT payload FROM %s WHERE run_id = ?`, table), runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS qtables (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS outcomes (
			id TEXT PRIMARY KEY,
			state_key TEXT NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS outcomes_state_key ON outcomes (state_key);
		CREATE TABLE IF NOT EXISTS fitness_history (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS diagnostics (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS lineage (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS top_plans (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS type_summaries (
			plan_type TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
