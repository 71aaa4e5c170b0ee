package storage

import (
	"encoding/json"
	"errors"

	"metis/internal/plan"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeQTable(s plan.QTableSnapshot) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeQTable(data []byte) (plan.QTableSnapshot, error) {
	var snapshot plan.QTableSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return plan.QTableSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return plan.QTableSnapshot{}, err
	}
	return snapshot, nil
}

func EncodeOutcome(r plan.OutcomeRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeOutcome(data []byte) (plan.OutcomeRecord, error) {
	var record plan.OutcomeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return plan.OutcomeRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return plan.OutcomeRecord{}, err
	}
	return record, nil
}

func EncodePlanTypeSummary(s plan.PlanTypeSummary) ([]byte, error) {
	return json.Marshal(s)
}

func DecodePlanTypeSummary(data []byte) (plan.PlanTypeSummary, error) {
	var summary plan.PlanTypeSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return plan.PlanTypeSummary{}, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return plan.PlanTypeSummary{}, err
	}
	return summary, nil
}

func EncodeLineage(records []plan.LineageRecord) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeLineage(data []byte) ([]plan.LineageRecord, error) {
	var records []plan.LineageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func EncodeFitnessHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeDiagnostics(diagnostics []plan.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(diagnostics)
}

func DecodeDiagnostics(data []byte) ([]plan.GenerationDiagnostics, error) {
	var diagnostics []plan.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func EncodeTopPlans(top []plan.RankedPlan) ([]byte, error) {
	return json.Marshal(top)
}

func DecodeTopPlans(data []byte) ([]plan.RankedPlan, error) {
	var top []plan.RankedPlan
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	return top, nil
}

func checkVersion(v plan.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
