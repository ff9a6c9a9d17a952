package etl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aircover/claimpipe/internal/domain"
	"github.com/aircover/claimpipe/internal/queue"
	"github.com/aircover/claimpipe/internal/repository"
)

// EventPublisher publishes pipeline events. *queue.Publisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, v any) error
}

// ChangeDetector decides whether an incoming row differs from the active
// dimension row, triggering a new SCD2 version. active is the stored row,
// incoming the parsed CSV row.
type ChangeDetector func(active, incoming map[string]string) bool

// Orchestrator drives the staged warehouse load:
// staging -> pre-fact -> dimension merge -> fact -> completion event.
// Steps run strictly in order; a failing step aborts the remainder but
// completed steps are not rolled back (no cross-step transactions).
type Orchestrator struct {
	warehouse repository.WarehouseRepository
	events    EventPublisher
	detector  ChangeDetector
	now       func() time.Time

	// SCD2 merges are read-then-write; serialize them per natural key so a
	// single process cannot produce two active rows for one key. Separate
	// processes can still race, which migrations document on the tables.
	keysMu sync.Mutex
	keys   map[string]*keyLock
}

// keyLock is reference counted so entries can be pruned once the last
// holder releases; the map stays bounded across runs.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewOrchestrator builds an orchestrator. events may be nil; the completion
// event step then records a notice instead of publishing.
func NewOrchestrator(warehouse repository.WarehouseRepository, events EventPublisher) *Orchestrator {
	return &Orchestrator{
		warehouse: warehouse,
		events:    events,
		detector:  FieldSetChanged,
		now:       time.Now,
		keys:      map[string]*keyLock{},
	}
}

// Run executes the staged load for one parsed batch. The returned list holds
// one StepResult per attempted step, in order; after a failure the list ends
// with the failing step's result.
func (o *Orchestrator) Run(ctx context.Context, cfg domain.TableConfig, rows []map[string]string, logf func(string)) []domain.StepResult {
	var results []domain.StepResult

	staging := o.load(ctx, domain.StepStaging, cfg.StagingTable, cfg.StagingConflictKey, rows, logf)
	results = append(results, staging)
	if staging.Failed() {
		return results
	}

	preFact := o.load(ctx, domain.StepPreFact, cfg.PreFactTable, cfg.PreFactConflictKey, rows, logf)
	results = append(results, preFact)
	if preFact.Failed() {
		return results
	}

	dims := o.mergeDimensions(ctx, cfg, rows, logf)
	results = append(results, dims)
	if dims.Failed() {
		return results
	}

	facts := o.load(ctx, domain.StepFacts, cfg.FactTable, cfg.FactConflictKey, rows, logf)
	results = append(results, facts)
	if facts.Failed() {
		return results
	}

	results = append(results, o.publishCompletion(ctx, cfg, logf))
	return results
}

func (o *Orchestrator) load(ctx context.Context, step domain.Step, table, conflictKey string, rows []map[string]string, logf func(string)) domain.StepResult {
	result := domain.StepResult{Step: step}

	var (
		inserted int64
		err      error
	)
	if conflictKey != "" {
		inserted, err = o.warehouse.UpsertBatch(ctx, table, rows, conflictKey)
	} else {
		inserted, err = o.warehouse.InsertBatch(ctx, table, rows)
	}
	if err != nil {
		result.Err = err.Error()
		logf(fmt.Sprintf("[%s] failed: %v", step, err))
		return result
	}

	result.Inserted = inserted
	logf(fmt.Sprintf("[%s] loaded %d rows into %s", step, inserted, table))
	return result
}

func (o *Orchestrator) mergeDimensions(ctx context.Context, cfg domain.TableConfig, rows []map[string]string, logf func(string)) domain.StepResult {
	result := domain.StepResult{Step: domain.StepDimensions}

	if cfg.SCD == domain.SCDType1 {
		inserted, err := o.warehouse.UpsertBatch(ctx, cfg.DimensionTable, rows, cfg.NaturalKey)
		if err != nil {
			result.Err = err.Error()
			logf(fmt.Sprintf("[%s] failed: %v", domain.StepDimensions, err))
			return result
		}
		result.Inserted = inserted
		logf(fmt.Sprintf("[%s] SCD1 upsert of %d rows into %s", domain.StepDimensions, inserted, cfg.DimensionTable))
		return result
	}

	// SCD2 is row-at-a-time: one lookup plus at most one write per row.
	// Replaying an already-merged batch is a no-op because the change
	// detector short-circuits on equal rows.
	outcome := &domain.SCDOutcome{}
	for _, row := range rows {
		keyValue, ok := row[cfg.NaturalKey]
		if !ok || keyValue == "" {
			outcome.Unchanged++
			logf(fmt.Sprintf("[%s] skipping row without natural key %s", domain.StepDimensions, cfg.NaturalKey))
			continue
		}

		if err := o.mergeOne(ctx, cfg, keyValue, row, outcome); err != nil {
			result.Err = err.Error()
			result.SCD = outcome
			logf(fmt.Sprintf("[%s] failed on key %s: %v", domain.StepDimensions, keyValue, err))
			return result
		}
	}

	result.SCD = outcome
	logf(fmt.Sprintf("[%s] SCD2 merge into %s: %d new, %d versioned, %d unchanged",
		domain.StepDimensions, cfg.DimensionTable, outcome.Inserted, outcome.Versioned, outcome.Unchanged))
	return result
}

func (o *Orchestrator) mergeOne(ctx context.Context, cfg domain.TableConfig, keyValue string, row map[string]string, outcome *domain.SCDOutcome) error {
	unlock := o.lockKey(cfg.DimensionTable + "/" + keyValue)
	defer unlock()

	active, found, err := o.warehouse.ActiveDimensionRow(ctx, cfg.DimensionTable, cfg.NaturalKey, keyValue)
	if err != nil {
		return err
	}

	if !found {
		if err := o.warehouse.InsertDimensionRow(ctx, cfg.DimensionTable, row, o.now()); err != nil {
			return err
		}
		outcome.Inserted++
		return nil
	}

	if !o.detector(active, row) {
		outcome.Unchanged++
		return nil
	}

	if err := o.warehouse.CloseAndInsertDimensionRow(ctx, cfg.DimensionTable, cfg.NaturalKey, keyValue, row, o.now()); err != nil {
		return err
	}
	outcome.Versioned++
	return nil
}

func (o *Orchestrator) publishCompletion(ctx context.Context, cfg domain.TableConfig, logf func(string)) domain.StepResult {
	result := domain.StepResult{Step: domain.StepKafka}

	event := domain.CompletionEvent{
		Table:     cfg.Name,
		Status:    string(domain.RunStatusSuccess),
		Timestamp: o.now().UTC().Format(time.RFC3339),
	}

	if o.events == nil {
		result.Notice = "event publisher not configured"
		logf(fmt.Sprintf("[%s] skipped: no event publisher", domain.StepKafka))
		return result
	}

	// Publish failures are non-fatal: the load is already durable, the
	// event is a notification convenience.
	if err := o.events.Publish(ctx, queue.TopicETLCompleted, event); err != nil {
		result.Notice = fmt.Sprintf("completion event publish failed: %v", err)
		logf(fmt.Sprintf("[%s] publish failed (non-fatal): %v", domain.StepKafka, err))
		return result
	}

	logf(fmt.Sprintf("[%s] completion event published for %s", domain.StepKafka, cfg.Name))
	return result
}

func (o *Orchestrator) lockKey(key string) func() {
	o.keysMu.Lock()
	lock, ok := o.keys[key]
	if !ok {
		lock = &keyLock{}
		o.keys[key] = lock
	}
	lock.refs++
	o.keysMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		o.keysMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.keys, key)
		}
		o.keysMu.Unlock()
	}
}

// scdMetaColumns are bookkeeping columns excluded from change detection.
var scdMetaColumns = map[string]struct{}{
	"valid_from": {},
	"valid_to":   {},
}

// FieldSetChanged is the default change detector: explicit field-by-field
// comparison over the incoming row's columns. Columns only present on the
// stored row (surrogate ids, validity window) do not count as drift.
func FieldSetChanged(active, incoming map[string]string) bool {
	for col, value := range incoming {
		if _, meta := scdMetaColumns[col]; meta {
			continue
		}
		if active[col] != value {
			return true
		}
	}
	return false
}
