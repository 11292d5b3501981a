// Package models defines the core data model shared across the pipeline:
// DataPackages (immutable per-request stage artifacts), preflight routing
// results, and the pipeline response envelope.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// StageID identifies one of the eight pipeline stages.
type StageID string

// Pipeline stage identifiers, in execution order.
const (
	StageContextExtract StageID = "S-1"
	StagePreflight      StageID = "S0"
	StageContextBuild   StageID = "S1"
	StageReasoning      StageID = "S2"
	StageAudit          StageID = "S3"
	StageRetry          StageID = "S4"
	StagePersonality    StageID = "S5"
	StageOutput         StageID = "S6"
)

// AllStages lists every stage id in execution order.
var AllStages = []StageID{
	StageContextExtract, StagePreflight, StageContextBuild, StageReasoning,
	StageAudit, StageRetry, StagePersonality, StageOutput,
}

// ErrFinalized is returned by writes against a finalized DataPackage.
var ErrFinalized = errors.New("data package is finalized")

// StageEntry records a single stage's artifact inside a DataPackage.
type StageEntry struct {
	StageID   StageID        `json:"stage_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// DataPackage is the immutable per-request artifact trail. Stage writes are
// deep-copied in, stage reads are deep-copied out, and finalize freezes the
// package for good. Not safe for concurrent use; each pipeline run owns its
// own package.
type DataPackage struct {
	ID           string
	TenantID     string
	CreatedAt    time.Time
	FinalizedAt  *time.Time
	CurrentStage StageID
	Finalized    bool
	// FinalAnswer is the personality-formatted response text, set alongside
	// the output stage; its length is recorded in that stage's data.
	FinalAnswer string

	stages map[StageID]*StageEntry
}

// NewDataPackage creates an empty package for the given tenant.
func NewDataPackage(tenantID string) *DataPackage {
	return &DataPackage{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		CreatedAt: time.Now().UTC(),
		stages:    make(map[StageID]*StageEntry),
	}
}

// WriteStage stores a deep copy of data under the given stage id and advances
// CurrentStage. Overwriting an existing stage before finalization is allowed
// but diagnosed; writing after Finalize fails with ErrFinalized.
func (p *DataPackage) WriteStage(stageID StageID, data map[string]any) error {
	if p.Finalized {
		return fmt.Errorf("write %s: %w", stageID, ErrFinalized)
	}
	if _, exists := p.stages[stageID]; exists {
		slog.Warn("Stage overwrite before finalization",
			"package_id", p.ID, "stage", stageID)
	}
	copied, err := deepCopyMap(data)
	if err != nil {
		return fmt.Errorf("copy stage %s data: %w", stageID, err)
	}
	p.stages[stageID] = &StageEntry{
		StageID:   stageID,
		Timestamp: time.Now().UTC(),
		Data:      copied,
	}
	p.CurrentStage = stageID
	return nil
}

// ReadStage returns a deep copy of the stored stage data, or nil when the
// stage has not been written. Reads remain valid after finalization.
func (p *DataPackage) ReadStage(stageID StageID) map[string]any {
	entry, ok := p.stages[stageID]
	if !ok {
		return nil
	}
	copied, err := deepCopyMap(entry.Data)
	if err != nil {
		slog.Error("Stage read copy failed", "package_id", p.ID, "stage", stageID, "error", err)
		return nil
	}
	return copied
}

// StageTimestamp returns the write timestamp for a stage, or the zero time.
func (p *DataPackage) StageTimestamp(stageID StageID) time.Time {
	if entry, ok := p.stages[stageID]; ok {
		return entry.Timestamp
	}
	return time.Time{}
}

// HasStage reports whether the stage has been written.
func (p *DataPackage) HasStage(stageID StageID) bool {
	_, ok := p.stages[stageID]
	return ok
}

// StageCount returns the number of stages written so far.
func (p *DataPackage) StageCount() int {
	return len(p.stages)
}

// Finalize freezes the package. Subsequent writes fail; reads keep working.
// Finalizing twice is a no-op.
func (p *DataPackage) Finalize() {
	if p.Finalized {
		return
	}
	now := time.Now().UTC()
	p.Finalized = true
	p.FinalizedAt = &now
}

// PackageSnapshot is the serializable form of a DataPackage. Round-tripping
// through ToSnapshot/FromSnapshot preserves every field.
type PackageSnapshot struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenant_id"`
	CreatedAt    time.Time              `json:"created_at"`
	FinalizedAt  *time.Time             `json:"finalized_at,omitempty"`
	CurrentStage StageID                `json:"current_stage"`
	Finalized    bool                   `json:"finalized"`
	FinalAnswer  string                 `json:"final_answer,omitempty"`
	Stages       map[StageID]StageEntry `json:"stages"`
}

// ToSnapshot returns a deep-copied serializable snapshot of the package.
func (p *DataPackage) ToSnapshot() (*PackageSnapshot, error) {
	stages := make(map[StageID]StageEntry, len(p.stages))
	for id, entry := range p.stages {
		data, err := deepCopyMap(entry.Data)
		if err != nil {
			return nil, fmt.Errorf("snapshot stage %s: %w", id, err)
		}
		stages[id] = StageEntry{
			StageID:   entry.StageID,
			Timestamp: entry.Timestamp,
			Data:      data,
		}
	}
	var finalizedAt *time.Time
	if p.FinalizedAt != nil {
		t := *p.FinalizedAt
		finalizedAt = &t
	}
	return &PackageSnapshot{
		ID:           p.ID,
		TenantID:     p.TenantID,
		CreatedAt:    p.CreatedAt,
		FinalizedAt:  finalizedAt,
		CurrentStage: p.CurrentStage,
		Finalized:    p.Finalized,
		FinalAnswer:  p.FinalAnswer,
		Stages:       stages,
	}, nil
}

// FromSnapshot restores a DataPackage from a snapshot. The restored package
// is independent of the snapshot's backing storage.
func FromSnapshot(snap *PackageSnapshot) (*DataPackage, error) {
	stages := make(map[StageID]*StageEntry, len(snap.Stages))
	for id, entry := range snap.Stages {
		data, err := deepCopyMap(entry.Data)
		if err != nil {
			return nil, fmt.Errorf("restore stage %s: %w", id, err)
		}
		stages[id] = &StageEntry{
			StageID:   entry.StageID,
			Timestamp: entry.Timestamp,
			Data:      data,
		}
	}
	var finalizedAt *time.Time
	if snap.FinalizedAt != nil {
		t := *snap.FinalizedAt
		finalizedAt = &t
	}
	return &DataPackage{
		ID:           snap.ID,
		TenantID:     snap.TenantID,
		CreatedAt:    snap.CreatedAt,
		FinalizedAt:  finalizedAt,
		CurrentStage: snap.CurrentStage,
		Finalized:    snap.Finalized,
		FinalAnswer:  snap.FinalAnswer,
		stages:       stages,
	}, nil
}

// CompressedSummary is the compact per-package digest stored alongside the
// tenant history and surfaced to later queries.
type CompressedSummary struct {
	ShortID      string  `json:"short_id"`
	CurrentStage StageID `json:"current_stage"`
	TsTime       string  `json:"ts_time"`
	Ticker       string  `json:"ticker,omitempty"`
	Mode         string  `json:"mode,omitempty"`
	AuditPass    string  `json:"audit_pass,omitempty"`
}

// Summarize produces the compressed summary for a package. Ticker, mode, and
// audit verdict are pulled from the S0/S3 artifacts when present.
func (p *DataPackage) Summarize() CompressedSummary {
	shortID := p.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	summary := CompressedSummary{
		ShortID:      shortID,
		CurrentStage: p.CurrentStage,
		TsTime:       p.CreatedAt.Format(time.RFC3339),
	}
	if s0 := p.ReadStage(StagePreflight); s0 != nil {
		if ticker, ok := s0["ticker"].(string); ok {
			summary.Ticker = ticker
		}
		if mode, ok := s0["mode"].(string); ok {
			summary.Mode = mode
		}
	}
	if s3 := p.ReadStage(StageAudit); s3 != nil {
		if verdict, ok := s3["verdict"].(string); ok {
			summary.AuditPass = verdict
		}
	}
	return summary
}

// deepCopyMap structurally clones a JSON-shaped map. Stage data is JSON-shaped
// by contract, so a marshal round-trip is a faithful clone.
func deepCopyMap(in map[string]any) (map[string]any, error) {
	if in == nil {
		return nil, nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
