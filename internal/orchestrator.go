package internal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error codes recorded on run error entries
const (
	ErrCodeUnsupportedSource = "unsupported_source"
	ErrCodeScanFailed        = "scan_failed"
	ErrCodeUpsertFailed      = "upsert_failed"
)

// AdapterFactory builds the adapter for a configured source. Kept as a
// factory so tests can substitute fakes per source type.
type AdapterFactory func(source *Source) (SourceAdapter, error)

// Orchestrator drives one ingestion cycle across all configured sources.
// Sources are processed strictly sequentially; a failure on one source is
// recorded and never blocks the remaining sources in the cycle.
type Orchestrator struct {
	store      *Store
	cfg        *Config
	newAdapter AdapterFactory
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator with the default adapter factory
func NewOrchestrator(store *Store, cfg *Config) *Orchestrator {
	o := &Orchestrator{store: store, cfg: cfg, now: time.Now}
	o.newAdapter = o.defaultAdapterFactory
	return o
}

// NewOrchestratorWithFactory creates an orchestrator with a custom adapter
// factory (used by tests)
func NewOrchestratorWithFactory(store *Store, cfg *Config, factory AdapterFactory) *Orchestrator {
	return &Orchestrator{store: store, cfg: cfg, newAdapter: factory, now: time.Now}
}

func (o *Orchestrator) defaultAdapterFactory(source *Source) (SourceAdapter, error) {
	switch source.Type {
	case SourceTypeClaude:
		return NewClaudeAdapter(source.RootPath), nil
	case SourceTypeOpenCode:
		return NewOpenCodeAdapter(source.RootPath), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", source.Type)
	}
}

// CycleReport summarizes one orchestrator cycle for callers
type CycleReport struct {
	Succeeded int
	Failed    int
	Counts    RunCounts
}

// EnsureDefaultSources registers the built-in source configurations.
// Idempotent by stable key: a known source is never duplicated.
func (o *Orchestrator) EnsureDefaultSources(ctx context.Context) error {
	if _, err := o.store.EnsureSource(ctx, "claude-default", SourceTypeClaude, o.cfg.ClaudeRoot); err != nil {
		return err
	}
	if _, err := o.store.EnsureSource(ctx, "opencode-default", SourceTypeOpenCode, o.cfg.OpenCodeRoot); err != nil {
		return err
	}
	return nil
}

// RunCycle executes one full ingestion cycle: ensure default sources, then
// scan and upsert every enabled source in stable creation order.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	if err := o.EnsureDefaultSources(ctx); err != nil {
		return nil, err
	}

	workspaceID, err := o.store.EnsureWorkspace(ctx, DefaultWorkspaceName)
	if err != nil {
		return nil, err
	}

	sources, err := o.store.ListEnabledSources(ctx)
	if err != nil {
		return nil, err
	}

	report := &CycleReport{}
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		counts, err := o.runSource(ctx, source, workspaceID)
		if err != nil {
			// Per-source isolation: record the failure and keep going.
			// Adapter-level failures are expected operational noise;
			// anything else gets the louder level.
			if IsSourceError(err) {
				LogWarn("Source %s failed: %v", source.Key, err)
			} else {
				LogError("Source %s failed: %v", source.Key, err)
			}
			report.Failed++
			continue
		}
		report.Succeeded++
		report.Counts.add(counts)
	}
	return report, nil
}

// runSource runs one source end to end: run record, adapter scan, upserts,
// checkpoint advance, bookkeeping. Any error fails only this source's run
// and leaves its last-known-good checkpoint untouched.
func (o *Orchestrator) runSource(ctx context.Context, source *Source, workspaceID string) (RunCounts, error) {
	var counts RunCounts

	runID, err := o.store.BeginRun(ctx, source.ID)
	if err != nil {
		return counts, err
	}
	if err := o.store.SetSourceStatus(ctx, source.ID, "scanning"); err != nil {
		return counts, err
	}

	fail := func(code string, cause error) (RunCounts, error) {
		if recordErr := o.store.FailRun(ctx, runID, source.ID, code, cause.Error()); recordErr != nil {
			LogError("Failed to record run failure for %s: %v", source.Key, recordErr)
		}
		if markErr := o.store.MarkSourceError(ctx, source.ID, cause.Error()); markErr != nil {
			LogError("Failed to mark source error for %s: %v", source.Key, markErr)
		}
		return counts, cause
	}

	adapter, err := o.newAdapter(source)
	if err != nil {
		return fail(ErrCodeUnsupportedSource, err)
	}

	since, err := o.effectiveCutoff(ctx, source)
	if err != nil {
		return fail(ErrCodeScanFailed, err)
	}

	result, err := adapter.Scan(ctx, since)
	if err != nil {
		return fail(ErrCodeScanFailed, err)
	}

	counts.SessionsScanned = len(result.Sessions)
	for _, session := range result.Sessions {
		sessionCounts, err := o.store.UpsertScannedSession(ctx, source.ID, workspaceID, session)
		if err != nil {
			return fail(ErrCodeUpsertFailed, err)
		}
		counts.add(sessionCounts)
	}

	// Checkpoint advances only on success, and only when the adapter
	// observed any timestamp at all
	if !result.MaxTimestamp.IsZero() {
		value := result.MaxTimestamp.UTC().Format(time.RFC3339)
		if err := o.store.SetCheckpoint(ctx, source.ID, CheckpointLastTimestamp, value); err != nil {
			return fail(ErrCodeUpsertFailed, err)
		}
	}

	note := fmt.Sprintf("%d sessions, %d messages, %d parts",
		counts.SessionsUpserted, counts.MessagesUpserted, counts.PartsUpserted)
	if err := o.store.CompleteRun(ctx, runID, counts, note); err != nil {
		return counts, err
	}
	if err := o.store.MarkSourceSuccess(ctx, source.ID, "ok: "+note); err != nil {
		return counts, err
	}

	LogInfo("Source %s: %s", source.Key, note)
	return counts, nil
}

// effectiveCutoff computes the scan lower bound: the stored checkpoint
// narrows the window forward, but the lookback window is a hard ceiling on
// how far back a fresh or reset source will scan.
func (o *Orchestrator) effectiveCutoff(ctx context.Context, source *Source) (time.Time, error) {
	cutoff := o.cfg.Lookback(o.now())

	value, ok, err := o.store.GetCheckpoint(ctx, source.ID, CheckpointLastTimestamp)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return cutoff, nil
	}

	checkpoint, err := time.Parse(time.RFC3339, value)
	if err != nil {
		// A corrupt checkpoint falls back to the lookback window
		LogWarn("Ignoring unparseable checkpoint for %s: %q", source.Key, value)
		return cutoff, nil
	}
	if checkpoint.After(cutoff) {
		return checkpoint, nil
	}
	return cutoff, nil
}

// IsSourceError reports whether err is a source-level failure
func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}
