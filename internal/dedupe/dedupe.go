// Package dedupe flags and removes duplicate rows in uploaded asset
// batches before they enter the reconciliation flow.
package dedupe

import (
	"context"
	"encoding/json"
	"fmt"

	"reconagent/internal/domain"
	"reconagent/internal/ports"
)

// Status classifies the result of a duplicate check.
type Status string

const (
	StatusClean   Status = "clean"
	StatusFlagged Status = "flagged"
	StatusCleaned Status = "cleaned"
)

type policyKind int

const (
	kindAuto policyKind = iota
	kindByField
	kindByFullRow
	kindByIdentity
)

// KeyPolicy selects how two records are considered equal.
type KeyPolicy struct {
	kind  policyKind
	field string
}

// ByField keys each record on the value of one designated field.
// An empty or missing value is a valid key: records without the field
// form one shared duplicate class.
func ByField(field string) KeyPolicy {
	return KeyPolicy{kind: kindByField, field: field}
}

// ByFullRow keys each record on its entire canonical content.
func ByFullRow() KeyPolicy {
	return KeyPolicy{kind: kindByFullRow}
}

// ByIdentity keys each record on a pre-assigned opaque id field, for
// batches whose rows are references rather than inline data.
func ByIdentity(idField string) KeyPolicy {
	return KeyPolicy{kind: kindByIdentity, field: idField}
}

// Auto keys on the field when any record in the batch carries it and
// falls back to full-row comparison otherwise.
func Auto(field string) KeyPolicy {
	return KeyPolicy{kind: kindAuto, field: field}
}

// Result reports duplicate positions found by Check. Positions are
// 0-indexed into the batch as it was stored; under keep-first the
// earliest occurrence of a key is never listed.
type Result struct {
	Status     Status
	Duplicates []int
}

// Detector runs duplicate checks against persisted batches.
type Detector struct {
	batches ports.BatchRepository
}

func NewDetector(batches ports.BatchRepository) *Detector {
	return &Detector{batches: batches}
}

// Check inspects the batch for duplicate keys. With autoRemove false the
// batch is left untouched and later occurrences are flagged; with
// autoRemove true they are removed and the cleaned record sequence is
// persisted in a single replacement write. Returns domain.ErrNotFound
// when the batch does not exist.
func (d *Detector) Check(ctx context.Context, batchID string, policy KeyPolicy, autoRemove bool) (Result, error) {
	batch, err := d.batches.Batch(ctx, batchID)
	if err != nil {
		return Result{}, fmt.Errorf("load batch %s: %w", batchID, err)
	}

	effective := policy.resolve(batch.Records)

	seen := map[string]struct{}{}
	kept := make([]domain.AssetRecord, 0, len(batch.Records))
	var dups []int

	for i, record := range batch.Records {
		key, err := effective.key(record)
		if err != nil {
			return Result{}, fmt.Errorf("key record %d of batch %s: %w", i, batchID, err)
		}
		if _, ok := seen[key]; ok {
			dups = append(dups, i)
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, record)
	}

	if len(dups) == 0 {
		return Result{Status: StatusClean, Duplicates: []int{}}, nil
	}

	if !autoRemove {
		return Result{Status: StatusFlagged, Duplicates: dups}, nil
	}

	if err := d.batches.ReplaceRecords(ctx, batchID, kept); err != nil {
		return Result{}, fmt.Errorf("persist cleaned batch %s: %w", batchID, err)
	}
	return Result{Status: StatusCleaned, Duplicates: dups}, nil
}

func (p KeyPolicy) resolve(records []domain.AssetRecord) KeyPolicy {
	if p.kind != kindAuto {
		return p
	}
	for _, r := range records {
		if _, ok := r[p.field]; ok {
			return ByField(p.field)
		}
	}
	return ByFullRow()
}

func (p KeyPolicy) key(record domain.AssetRecord) (string, error) {
	switch p.kind {
	case kindByField, kindByIdentity:
		return canonical(record[p.field])
	default:
		return canonical(map[string]any(record))
	}
}

// canonical yields a comparable string form; json.Marshal sorts map
// keys, so full-row keys are stable regardless of field order.
func canonical(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize value: %w", err)
	}
	return string(raw), nil
}
