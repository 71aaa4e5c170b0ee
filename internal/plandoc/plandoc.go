// Package plandoc decodes loose plan, request, and run documents from
// JSON or YAML into typed records. Known keys override defaults,
// unknown keys are ignored, and malformed field shapes keep the
// default instead of failing the whole document; difficulty names are
// the exception and must parse.
package plandoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"metis/internal/plan"
)

var ErrEmptyDocument = errors.New("empty document")

// DecodePlan converts a plan document into a Plan. Documents without an
// id are assigned a fresh UUID, the plan type is canonicalized, and
// difficulty aliases resolve through the ordinal scale; an absent
// difficulty defaults to intermediate. Success predictions are owned by
// the scorer and never read from documents.
func DecodePlan(data []byte) (plan.Plan, error) {
	raw, err := decodeLoose(data)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("decode plan document: %w", err)
	}
	return convertPlan(raw)
}

// LoadPlan reads and decodes a plan document from disk.
func LoadPlan(path string) (plan.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return plan.Plan{}, err
	}
	return DecodePlan(data)
}

// DecodeRequest converts a request document into a GenerationRequest.
// Energy and focus accept 0-1, 0-10, and 0-100 scales and normalize to
// [0, 1]. Context and preference fields may appear nested under their
// canonical keys or flat at the top level; nested values win.
func DecodeRequest(data []byte) (plan.GenerationRequest, error) {
	raw, err := decodeLoose(data)
	if err != nil {
		return plan.GenerationRequest{}, fmt.Errorf("decode request document: %w", err)
	}
	return convertRequest(raw)
}

// LoadRequest reads and decodes a request document from disk.
func LoadRequest(path string) (plan.GenerationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return plan.GenerationRequest{}, err
	}
	return DecodeRequest(data)
}

// decodeLoose sniffs JSON by the leading brace and falls back to YAML,
// which also covers flow mappings that only look like JSON.
func decodeLoose(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyDocument
	}
	if trimmed[0] == '{' {
		raw := map[string]any{}
		if err := json.Unmarshal(trimmed, &raw); err == nil {
			return raw, nil
		}
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
