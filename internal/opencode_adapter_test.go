package internal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/iksnae/session-sync/testutil"
)

func TestOpenCodeAdapterScan(t *testing.T) {
	root := t.TempDir()

	testutil.WriteOpenCodeSession(t, root, "ses1",
		`{"id":"ses1","title":"Refactor the parser","time":{"created":1700000000000,"updated":1700000500000}}`)

	testutil.WriteOpenCodeMessage(t, root, "ses1", "msg1",
		`{"id":"msg1","role":"user","time":{"created":1700000100000}}`)
	testutil.WriteOpenCodeMessage(t, root, "ses1", "msg2",
		`{"id":"msg2","role":"assistant","providerID":"anthropic","modelID":"claude-3",
		  "time":{"created":1700000200000},"tokens":{"input":12,"output":34}}`)

	testutil.WriteOpenCodePart(t, root, "msg1", "p1",
		`{"id":"p1","type":"text","text":"Please refactor the parser","time":{"start":1700000100000}}`)

	// Parts written out of chronological order
	testutil.WriteOpenCodePart(t, root, "msg2", "p4",
		`{"id":"p4","type":"text","text":"Done.","time":{"start":1700000230000}}`)
	testutil.WriteOpenCodePart(t, root, "msg2", "p2",
		`{"id":"p2","type":"reasoning","text":"Need to split the lexer first","time":{"start":1700000210000}}`)
	testutil.WriteOpenCodePart(t, root, "msg2", "p3",
		`{"id":"p3","type":"tool","tool":"edit","state":{"title":"Edited parser.go"},"time":{"start":1700000220000}}`)

	adapter := NewOpenCodeAdapter(root)
	result, err := adapter.Scan(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if len(result.Sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(result.Sessions))
	}
	session := result.Sessions[0]
	if session.ExternalID != "ses1" || session.Title != "Refactor the parser" {
		t.Errorf("session = %q/%q", session.ExternalID, session.Title)
	}
	if session.Provider != "anthropic" || session.Model != "claude-3" {
		t.Errorf("provider/model = %q/%q", session.Provider, session.Model)
	}
	if len(session.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(session.Messages))
	}

	assistant := session.Messages[1]
	if assistant.ExternalID != "msg2" || assistant.Role != RoleAssistant {
		t.Errorf("message 1 = %q/%v", assistant.ExternalID, assistant.Role)
	}
	if assistant.PromptTokens != 12 || assistant.CompletionTokens != 34 || assistant.TotalTokens != 46 {
		t.Errorf("token counts = %d/%d/%d", assistant.PromptTokens, assistant.CompletionTokens, assistant.TotalTokens)
	}
	if assistant.Content != "Done." {
		t.Errorf("content = %q, want only text parts joined", assistant.Content)
	}

	if len(assistant.Parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(assistant.Parts))
	}
	wantOrder := []string{"p2", "p3", "p4"}
	for i, want := range wantOrder {
		if assistant.Parts[i].ExternalID != want {
			t.Errorf("part %d = %q, want %q (ordered by start time)", i, assistant.Parts[i].ExternalID, want)
		}
		if assistant.Parts[i].Ordinal != i {
			t.Errorf("part %d ordinal = %d", i, assistant.Parts[i].Ordinal)
		}
	}
	if assistant.Parts[1].Type != PartTool || assistant.Parts[1].Text != "Edited parser.go" {
		t.Errorf("tool part = %v/%q", assistant.Parts[1].Type, assistant.Parts[1].Text)
	}

	wantMax := millisTime(1700000500000)
	if !result.MaxTimestamp.Equal(wantMax) {
		t.Errorf("MaxTimestamp = %v, want %v", result.MaxTimestamp, wantMax)
	}
}

func TestOpenCodeAdapterCutoff(t *testing.T) {
	root := t.TempDir()
	testutil.WriteOpenCodeSession(t, root, "old",
		`{"id":"old","time":{"created":1000,"updated":2000}}`)

	adapter := NewOpenCodeAdapter(root)
	result, err := adapter.Scan(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if result.FilesScanned != 0 || len(result.Sessions) != 0 {
		t.Errorf("stale session should be skipped, scanned %d", result.FilesScanned)
	}
}

func TestOpenCodeAdapterMessagelessSessionDropped(t *testing.T) {
	root := t.TempDir()
	testutil.WriteOpenCodeSession(t, root, "ses1",
		`{"id":"ses1","title":"Empty","time":{"created":1700000000000}}`)

	adapter := NewOpenCodeAdapter(root)
	result, err := adapter.Scan(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(result.Sessions) != 0 {
		t.Errorf("session without messages should be dropped")
	}
	if result.FilesScanned != 1 {
		t.Errorf("FilesScanned = %d, want 1", result.FilesScanned)
	}
}

func TestOpenCodeAdapterSummaryFallbackContent(t *testing.T) {
	root := t.TempDir()
	testutil.WriteOpenCodeSession(t, root, "ses1",
		`{"id":"ses1","time":{"created":1700000000000}}`)
	// No part directory at all for msg1
	testutil.WriteOpenCodeMessage(t, root, "ses1", "msg1",
		`{"id":"msg1","role":"assistant","time":{"created":1700000100000},"summary":{"title":"Compacted earlier turns"}}`)

	adapter := NewOpenCodeAdapter(root)
	result, err := adapter.Scan(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(result.Sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(result.Sessions))
	}
	msg := result.Sessions[0].Messages[0]
	if msg.Content != "Compacted earlier turns" {
		t.Errorf("content = %q, want summary title fallback", msg.Content)
	}
	if got := result.Sessions[0].Title; got != "Compacted earlier turns" {
		t.Errorf("title fallback = %q", got)
	}
}

func TestOpenCodeAdapterMaxTimestampIncludesParts(t *testing.T) {
	root := t.TempDir()
	testutil.WriteOpenCodeSession(t, root, "ses1",
		`{"id":"ses1","time":{"created":1700000000000}}`)
	testutil.WriteOpenCodeMessage(t, root, "ses1", "msg1",
		`{"id":"msg1","role":"user","time":{"created":1700000100000}}`)
	// The part starts well after both the session and message records
	testutil.WriteOpenCodePart(t, root, "msg1", "p1",
		`{"id":"p1","type":"text","text":"late arrival","time":{"start":1700000900000}}`)

	adapter := NewOpenCodeAdapter(root)
	result, err := adapter.Scan(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := millisTime(1700000900000)
	if !result.MaxTimestamp.Equal(want) {
		t.Errorf("MaxTimestamp = %v, want part start %v", result.MaxTimestamp, want)
	}
}

func TestOpenCodeAdapterMissingRoot(t *testing.T) {
	adapter := NewOpenCodeAdapter(filepath.Join(t.TempDir(), "nope"))
	result, err := adapter.Scan(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("missing root should not be an error, got %v", err)
	}
	if len(result.Sessions) != 0 {
		t.Errorf("got %d sessions, want 0", len(result.Sessions))
	}
}

func TestToolPartText(t *testing.T) {
	tests := []struct {
		name string
		part openCodePart
		want string
	}{
		{
			name: "state title wins",
			part: openCodePart{Tool: "bash", State: json.RawMessage(`{"title":"Ran tests","output":"ok"}`)},
			want: "Ran tests",
		},
		{
			name: "output when no title",
			part: openCodePart{Tool: "bash", State: json.RawMessage(`{"output":"ok"}`)},
			want: "ok",
		},
		{
			name: "tool name when no state",
			part: openCodePart{Tool: "bash"},
			want: "bash",
		},
		{
			name: "generic fallback",
			part: openCodePart{},
			want: "tool call",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toolPartText(&tt.part); got != tt.want {
				t.Errorf("toolPartText() = %q, want %q", got, tt.want)
			}
		})
	}
}
