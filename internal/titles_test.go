package internal

import (
	"strings"
	"testing"
)

func TestFallbackSessionTitle(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		sessionID string
		want      string
	}{
		{
			name:      "empty content uses session id prefix",
			content:   "",
			sessionID: "abcdefgh-1234",
			want:      "Session abcdefgh",
		},
		{
			name:      "short session id used whole",
			content:   "",
			sessionID: "abc",
			want:      "Session abc",
		},
		{
			name:      "whitespace collapsed",
			content:   "fix   the\n\nbug",
			sessionID: "x",
			want:      "fix the bug",
		},
		{
			name:      "sanitized to empty falls back",
			content:   "<system-reminder>hidden</system-reminder>",
			sessionID: "deadbeef-42",
			want:      "Session deadbeef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackSessionTitle(tt.content, tt.sessionID)
			if got != tt.want {
				t.Errorf("FallbackSessionTitle(%q, %q) = %q, want %q", tt.content, tt.sessionID, got, tt.want)
			}
		})
	}
}

func TestFallbackSessionTitleHardCut(t *testing.T) {
	got := FallbackSessionTitle(strings.Repeat("a", 100), "x")
	if len(got) != 80 {
		t.Errorf("title length = %d, want 80", len(got))
	}
	if got != strings.Repeat("a", 80) {
		t.Errorf("title is not a hard 80-char cut")
	}
}

func TestDeriveSessionSummary(t *testing.T) {
	t.Run("prefers assistant message", func(t *testing.T) {
		messages := []BundleMessage{
			{Role: RoleUser, Content: "question"},
			{Role: RoleAssistant, Content: "answer"},
		}
		if got := DeriveSessionSummary(messages); got != "answer" {
			t.Errorf("DeriveSessionSummary() = %q, want %q", got, "answer")
		}
	})

	t.Run("falls back to user message", func(t *testing.T) {
		messages := []BundleMessage{
			{Role: RoleTool, Content: "tool output"},
			{Role: RoleUser, Content: "question"},
		}
		if got := DeriveSessionSummary(messages); got != "question" {
			t.Errorf("DeriveSessionSummary() = %q, want %q", got, "question")
		}
	})

	t.Run("falls back to any message", func(t *testing.T) {
		messages := []BundleMessage{
			{Role: RoleTool, Content: "tool output"},
		}
		if got := DeriveSessionSummary(messages); got != "tool output" {
			t.Errorf("DeriveSessionSummary() = %q, want %q", got, "tool output")
		}
	})

	t.Run("no messages returns empty", func(t *testing.T) {
		if got := DeriveSessionSummary(nil); got != "" {
			t.Errorf("DeriveSessionSummary(nil) = %q, want empty", got)
		}
	})

	t.Run("all empty content returns empty", func(t *testing.T) {
		messages := []BundleMessage{
			{Role: RoleAssistant, Content: "  "},
		}
		if got := DeriveSessionSummary(messages); got != "" {
			t.Errorf("DeriveSessionSummary() = %q, want empty", got)
		}
	})

	t.Run("200 chars truncates to exactly 180 with ellipsis", func(t *testing.T) {
		messages := []BundleMessage{
			{Role: RoleAssistant, Content: strings.Repeat("b", 200)},
		}
		got := DeriveSessionSummary(messages)
		if len(got) != 180 {
			t.Errorf("summary length = %d, want 180", len(got))
		}
		if !strings.HasSuffix(got, "...") {
			t.Errorf("summary should end in ellipsis, got %q", got[len(got)-5:])
		}
	})

	t.Run("exactly 180 chars returned unmodified", func(t *testing.T) {
		content := strings.Repeat("c", 180)
		messages := []BundleMessage{
			{Role: RoleAssistant, Content: content},
		}
		got := DeriveSessionSummary(messages)
		if got != content {
			t.Errorf("180-char content should be unmodified, got length %d", len(got))
		}
	})
}
