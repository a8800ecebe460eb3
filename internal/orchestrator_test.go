package internal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeAdapter returns a canned result or error and records the cutoff it
// was scanned with
type fakeAdapter struct {
	sourceType string
	result     *ScanResult
	err        error
	lastSince  time.Time
	scans      int
}

func (f *fakeAdapter) Type() string { return f.sourceType }

func (f *fakeAdapter) Scan(ctx context.Context, since time.Time) (*ScanResult, error) {
	f.scans++
	f.lastSince = since
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testConfig() *Config {
	return &Config{
		ClaudeRoot:   "/tmp/claude",
		OpenCodeRoot: "/tmp/opencode",
		LookbackDays: 30,
	}
}

func TestRunCycleIsolatesFailingSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	good := &fakeAdapter{
		sourceType: SourceTypeClaude,
		result: &ScanResult{
			Sessions:     []*ScannedSession{sampleScannedSession("s1")},
			MaxTimestamp: ts,
			FilesScanned: 1,
		},
	}
	bad := &fakeAdapter{
		sourceType: SourceTypeOpenCode,
		err:        &SourceError{Source: SourceTypeOpenCode, Op: "scan", Err: errors.New("boom")},
	}

	orch := NewOrchestratorWithFactory(store, testConfig(), func(source *Source) (SourceAdapter, error) {
		if source.Type == SourceTypeClaude {
			return good, nil
		}
		return bad, nil
	})

	report, err := orch.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Succeeded != 1 || report.Failed != 1 {
		t.Errorf("report = %d succeeded / %d failed, want 1/1", report.Succeeded, report.Failed)
	}
	if report.Counts.SessionsUpserted != 1 {
		t.Errorf("SessionsUpserted = %d, want 1", report.Counts.SessionsUpserted)
	}

	// The good source's data landed despite the other source failing
	if _, err := store.GetSession(ctx, "s1"); err != nil {
		t.Errorf("session from healthy source not persisted: %v", err)
	}

	claudeSource, err := store.GetSourceByKey(ctx, "claude-default")
	if err != nil {
		t.Fatalf("GetSourceByKey() error = %v", err)
	}
	value, found, err := store.GetCheckpoint(ctx, claudeSource.ID, CheckpointLastTimestamp)
	if err != nil {
		t.Fatalf("GetCheckpoint() error = %v", err)
	}
	if !found || value != "2026-08-01T10:00:00Z" {
		t.Errorf("checkpoint = %q/%v, want advanced to max timestamp", value, found)
	}

	openCodeSource, err := store.GetSourceByKey(ctx, "opencode-default")
	if err != nil {
		t.Fatalf("GetSourceByKey() error = %v", err)
	}
	if _, found, _ := store.GetCheckpoint(ctx, openCodeSource.ID, CheckpointLastTimestamp); found {
		t.Error("failed source must not advance its checkpoint")
	}
	if openCodeSource.LastErrorAt == "" {
		t.Error("failed source should record last_error_at")
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("got %d run records, want 2", len(runs))
	}
}

func TestRunCycleCheckpointNotAdvancedWhenEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty := &fakeAdapter{sourceType: SourceTypeClaude, result: &ScanResult{}}
	orch := NewOrchestratorWithFactory(store, testConfig(), func(source *Source) (SourceAdapter, error) {
		return empty, nil
	})

	if _, err := orch.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	source, _ := store.GetSourceByKey(ctx, "claude-default")
	if _, found, _ := store.GetCheckpoint(ctx, source.ID, CheckpointLastTimestamp); found {
		t.Error("empty scan must not write a checkpoint")
	}
}

func TestEffectiveCutoff(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	lookback := now.AddDate(0, 0, -30)

	adapter := &fakeAdapter{sourceType: SourceTypeClaude, result: &ScanResult{}}
	orch := NewOrchestratorWithFactory(store, testConfig(), func(source *Source) (SourceAdapter, error) {
		return adapter, nil
	})
	orch.now = func() time.Time { return now }

	if err := orch.EnsureDefaultSources(ctx); err != nil {
		t.Fatalf("EnsureDefaultSources() error = %v", err)
	}
	source, err := store.GetSourceByKey(ctx, "claude-default")
	if err != nil {
		t.Fatalf("GetSourceByKey() error = %v", err)
	}

	t.Run("no checkpoint uses lookback", func(t *testing.T) {
		cutoff, err := orch.effectiveCutoff(ctx, source)
		if err != nil {
			t.Fatalf("effectiveCutoff() error = %v", err)
		}
		if !cutoff.Equal(lookback) {
			t.Errorf("cutoff = %v, want lookback %v", cutoff, lookback)
		}
	})

	t.Run("newer checkpoint wins", func(t *testing.T) {
		checkpoint := now.Add(-time.Hour)
		store.SetCheckpoint(ctx, source.ID, CheckpointLastTimestamp, checkpoint.Format(time.RFC3339))
		cutoff, err := orch.effectiveCutoff(ctx, source)
		if err != nil {
			t.Fatalf("effectiveCutoff() error = %v", err)
		}
		if !cutoff.Equal(checkpoint) {
			t.Errorf("cutoff = %v, want checkpoint %v", cutoff, checkpoint)
		}
	})

	t.Run("stale checkpoint clamped to lookback", func(t *testing.T) {
		store.SetCheckpoint(ctx, source.ID, CheckpointLastTimestamp, now.AddDate(0, 0, -90).Format(time.RFC3339))
		cutoff, err := orch.effectiveCutoff(ctx, source)
		if err != nil {
			t.Fatalf("effectiveCutoff() error = %v", err)
		}
		if !cutoff.Equal(lookback) {
			t.Errorf("cutoff = %v, want lookback %v", cutoff, lookback)
		}
	})

	t.Run("corrupt checkpoint falls back to lookback", func(t *testing.T) {
		store.SetCheckpoint(ctx, source.ID, CheckpointLastTimestamp, "last tuesday")
		cutoff, err := orch.effectiveCutoff(ctx, source)
		if err != nil {
			t.Fatalf("effectiveCutoff() error = %v", err)
		}
		if !cutoff.Equal(lookback) {
			t.Errorf("cutoff = %v, want lookback %v", cutoff, lookback)
		}
	})
}

func TestRunCycleResumesFromCheckpoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	adapter := &fakeAdapter{
		sourceType: SourceTypeClaude,
		result:     &ScanResult{MaxTimestamp: ts},
	}
	orch := NewOrchestratorWithFactory(store, testConfig(), func(source *Source) (SourceAdapter, error) {
		return adapter, nil
	})
	orch.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }

	if _, err := orch.RunCycle(ctx); err != nil {
		t.Fatalf("first RunCycle() error = %v", err)
	}
	if _, err := orch.RunCycle(ctx); err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if !adapter.lastSince.Equal(ts) {
		t.Errorf("second cycle scanned since %v, want checkpoint %v", adapter.lastSince, ts)
	}
}

func TestIsSourceError(t *testing.T) {
	base := &SourceError{Source: SourceTypeClaude, Op: "walk", Err: errors.New("boom")}
	if !IsSourceError(base) {
		t.Error("IsSourceError should match a SourceError")
	}
	if !IsSourceError(fmt.Errorf("cycle: %w", base)) {
		t.Error("IsSourceError should match through wrapping")
	}
	if IsSourceError(errors.New("boom")) {
		t.Error("IsSourceError should reject unrelated errors")
	}
}

func TestDefaultAdapterFactoryUnsupportedType(t *testing.T) {
	store := newTestStore(t)
	orch := NewOrchestrator(store, testConfig())
	if _, err := orch.newAdapter(&Source{Type: "carrier-pigeon"}); err == nil {
		t.Error("unsupported source type should error")
	}
}
