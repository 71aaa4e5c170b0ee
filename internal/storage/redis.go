package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"metis/internal/plan"
)

// RedisStore keeps every record under a namespaced key so Reset can clear
// the full footprint with one scan. Outcome records live in per-state lists,
// everything else is a single payload per key.
type RedisStore struct {
	url string

	mu     sync.RWMutex
	client *redis.Client
}

func NewRedisStore(url string) *RedisStore {
	return &RedisStore{url: url}
}

func (s *RedisStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.url == "" {
		return errors.New("redis URL is required")
	}
	if s.client != nil {
		return nil
	}

	opts, err := redis.ParseURL(s.url)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}

	s.client = client
	return nil
}

func (s *RedisStore) SaveQTable(ctx context.Context, snapshot plan.QTableSnapshot) error {
	payload, err := EncodeQTable(snapshot)
	if err != nil {
		return err
	}
	return s.saveBlob(ctx, "qtable", snapshot.ID, payload)
}

func (s *RedisStore) GetQTable(ctx context.Context, id string) (plan.QTableSnapshot, bool, error) {
	payload, ok, err := s.getBlob(ctx, "qtable", id)
	if err != nil || !ok {
		return plan.QTableSnapshot{}, false, err
	}
	snapshot, err := DecodeQTable(payload)
	if err != nil {
		return plan.QTableSnapshot{}, false, fmt.Errorf("decode q-table %s: %w", id, err)
	}
	return snapshot, true, nil
}

func (s *RedisStore) AppendOutcome(ctx context.Context, record plan.OutcomeRecord) error {
	client, err := s.getClient()
	if err != nil {
		return err
	}

	payload, err := EncodeOutcome(record)
	if err != nil {
		return err
	}
	return client.RPush(ctx, redisKey("outcomes", record.StateKey), payload).Err()
}

func (s *RedisStore) GetOutcomes(ctx context.Context, stateKey string) ([]plan.OutcomeRecord, bool, error) {
	client, err := s.getClient()
	if err != nil {
		return nil, false, err
	}

	payloads, err := client.LRange(ctx, redisKey("outcomes", stateKey), 0, -1).Result()
	if err != nil {
		return nil, false, err
	}
	if len(payloads) == 0 {
		return nil, false, nil
	}

	records := make([]plan.OutcomeRecord, 0, len(payloads))
	for _, payload := range payloads {
		record, err := DecodeOutcome([]byte(payload))
		if err != nil {
			return nil, false, fmt.Errorf("decode outcome for state %s: %w", stateKey, err)
		}
		records = append(records, record)
	}
	return records, true, nil
}

func (s *RedisStore) SaveFitnessHistory(ctx context.Context, runID string, history []float64) error {
	payload, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}
	return s.saveBlob(ctx, "history", runID, payload)
}

func (s *RedisStore) GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	payload, ok, err := s.getBlob(ctx, "history", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	history, err := DecodeFitnessHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode fitness history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *RedisStore) SaveDiagnostics(ctx context.Context, runID string, diagnostics []plan.GenerationDiagnostics) error {
	payload, err := EncodeDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.saveBlob(ctx, "diagnostics", runID, payload)
}

func (s *RedisStore) GetDiagnostics(ctx context.Context, runID string) ([]plan.GenerationDiagnostics, bool, error) {
	payload, ok, err := s.getBlob(ctx, "diagnostics", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	diagnostics, err := DecodeDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics %s: %w", runID, err)
	}
	return diagnostics, true, nil
}

func (s *RedisStore) SaveLineage(ctx context.Context, runID string, lineage []plan.LineageRecord) error {
	payload, err := EncodeLineage(lineage)
	if err != nil {
		return err
	}
	return s.saveBlob(ctx, "lineage", runID, payload)
}

func (s *RedisStore) GetLineage(ctx context.Context, runID string) ([]plan.LineageRecord, bool, error) {
	payload, ok, err := s.getBlob(ctx, "lineage", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	lineage, err := DecodeLineage(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode lineage %s: %w", runID, err)
	}
	return lineage, true, nil
}

func (s *RedisStore) SaveTopPlans(ctx context.Context, runID string, top []plan.RankedPlan) error {
	payload, err := EncodeTopPlans(top)
	if err != nil {
		return err
	}
	return s.saveBlob(ctx, "top_plans", runID, payload)
}

func (s *RedisStore) GetTopPlans(ctx context.Context, runID string) ([]plan.RankedPlan, bool, error) {
	payload, ok, err := s.getBlob(ctx, "top_plans", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	top, err := DecodeTopPlans(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode top plans %s: %w", runID, err)
	}
	return top, true, nil
}

func (s *RedisStore) SavePlanTypeSummary(ctx context.Context, summary plan.PlanTypeSummary) error {
	payload, err := EncodePlanTypeSummary(summary)
	if err != nil {
		return err
	}
	return s.saveBlob(ctx, "type_summary", summary.Type, payload)
}

func (s *RedisStore) GetPlanTypeSummary(ctx context.Context, planType string) (plan.PlanTypeSummary, bool, error) {
	payload, ok, err := s.getBlob(ctx, "type_summary", planType)
	if err != nil || !ok {
		return plan.PlanTypeSummary{}, false, err
	}
	summary, err := DecodePlanTypeSummary(payload)
	if err != nil {
		return plan.PlanTypeSummary{}, false, fmt.Errorf("decode type summary %s: %w", planType, err)
	}
	return summary, true, nil
}

func (s *RedisStore) Reset(ctx context.Context) error {
	client, err := s.getClient()
	if err != nil {
		return err
	}

	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, "metis:*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *RedisStore) getClient() (*redis.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.client, nil
}

func (s *RedisStore) saveBlob(ctx context.Context, kind, id string, payload []byte) error {
	client, err := s.getClient()
	if err != nil {
		return err
	}
	return client.Set(ctx, redisKey(kind, id), payload, 0).Err()
}

func (s *RedisStore) getBlob(ctx context.Context, kind, id string) ([]byte, bool, error) {
	client, err := s.getClient()
	if err != nil {
		return nil, false, err
	}

	payload, err := client.Get(ctx, redisKey(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func redisKey(kind, id string) string {
	return fmt.Sprintf("metis:%s:%s", kind, id)
}
