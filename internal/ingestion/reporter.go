package ingestion

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rohankatakam/mailgraph/internal/entity"
)

// Reporter receives every batch right after it was committed to the store
type Reporter interface {
	ReportBatch(ctx context.Context, entities []entity.Entity, relationships []entity.Relationship) error
}

// NopReporter discards batches
type NopReporter struct{}

// ReportBatch implements Reporter
func (NopReporter) ReportBatch(context.Context, []entity.Entity, []entity.Relationship) error {
	return nil
}

// MultiReporter fans a batch out to several reporters in order
type MultiReporter []Reporter

// ReportBatch implements Reporter. Every reporter is called; errors are joined.
func (m MultiReporter) ReportBatch(ctx context.Context, entities []entity.Entity, relationships []entity.Relationship) error {
	var errs []error
	for _, r := range m {
		if err := r.ReportBatch(ctx, entities, relationships); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// ReportEvent is one line written by JSONLinesReporter
type ReportEvent struct {
	RunID        string               `json:"run_id"`
	Timestamp    time.Time            `json:"timestamp"`
	Kind         string               `json:"kind"` // "entity" or "relationship"
	Entity       *entity.Entity       `json:"entity,omitempty"`
	Relationship *entity.Relationship `json:"relationship,omitempty"`
}

// JSONLinesReporter writes one JSON object per committed entity or
// relationship. Raw provider payloads are omitted.
type JSONLinesReporter struct {
	runID string
	now   func() time.Time

	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesReporter creates a reporter writing to w. An empty runID is
// replaced with a fresh one.
func NewJSONLinesReporter(w io.Writer, runID string) *JSONLinesReporter {
	if runID == "" {
		runID = uuid.New().String()
	}
	return &JSONLinesReporter{
		runID: runID,
		now:   time.Now,
		enc:   json.NewEncoder(w),
	}
}

// RunID returns the id stamped on every line
func (r *JSONLinesReporter) RunID() string {
	return r.runID
}

// ReportBatch implements Reporter
func (r *JSONLinesReporter) ReportBatch(ctx context.Context, entities []entity.Entity, relationships []entity.Relationship) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now().UTC()
	for i := range entities {
		e := entities[i]
		e.RawData = nil
		if err := r.enc.Encode(ReportEvent{RunID: r.runID, Timestamp: ts, Kind: "entity", Entity: &e}); err != nil {
			return fmt.Errorf("write entity %s: %w", e.Key, err)
		}
	}
	for i := range relationships {
		rel := relationships[i]
		if err := r.enc.Encode(ReportEvent{RunID: r.runID, Timestamp: ts, Kind: "relationship", Relationship: &rel}); err != nil {
			return fmt.Errorf("write relationship %s: %w", rel.Key, err)
		}
	}
	return nil
}
