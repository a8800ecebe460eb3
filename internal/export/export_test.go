package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/iksnae/session-sync/internal"
	"gopkg.in/yaml.v3"
)

func sampleStoredSession() *internal.StoredSession {
	return &internal.StoredSession{
		ID:         "sess-1",
		ExternalID: "ext-1",
		Title:      "Debugging session",
		Summary:    "Fixed the off-by-one",
		Provider:   "anthropic",
		Model:      "claude-3",
		StartedAt:  "2026-08-01T10:00:00Z",
		Messages: []internal.StoredMessage{
			{
				Role:      "user",
				Content:   "Why does this loop skip the last item?",
				Timestamp: "2026-08-01T10:00:00Z",
				Ordinal:   0,
			},
			{
				Role:        "assistant",
				Content:     "The bound should be `<=`, not `<`.",
				Timestamp:   "2026-08-01T10:00:05Z",
				Ordinal:     1,
				TotalTokens: 42,
				Parts: []internal.StoredPart{
					{Type: "reasoning", Text: "classic off-by-one", Ordinal: 0},
					{Type: "text", Text: "The bound should be `<=`, not `<`.", Ordinal: 1},
				},
			},
		},
	}
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{"json", "json", false},
		{"jsonl", "jsonl", false},
		{"yaml", "yaml", false},
		{"md", "md", false},
		{"markdown", "md", false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exporter, err := NewExporter(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewExporter(%q) should fail", tt.format)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewExporter(%q) error = %v", tt.format, err)
			}
			if exporter.Extension() != tt.wantExt {
				t.Errorf("Extension() = %q, want %q", exporter.Extension(), tt.wantExt)
			}
		})
	}
}

func TestJSONExport(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(sampleStoredSession(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if doc["title"] != "Debugging session" {
		t.Errorf("title = %v", doc["title"])
	}
	if doc["externalSessionId"] != "ext-1" {
		t.Errorf("externalSessionId = %v", doc["externalSessionId"])
	}
	messages, ok := doc["messages"].([]interface{})
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %v", doc["messages"])
	}
	second := messages[1].(map[string]interface{})
	if parts, ok := second["parts"].([]interface{}); !ok || len(parts) != 2 {
		t.Errorf("parts not exported: %v", second["parts"])
	}
}

func TestJSONLExport(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONLExporter{}).Export(sampleStoredSession(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want one per message", len(lines))
	}
	for i, line := range lines {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
		if obj["role"] == "" || obj["content"] == "" {
			t.Errorf("line %d missing role/content: %v", i, obj)
		}
	}
}

func TestYAMLExport(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(sampleStoredSession(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if doc["model"] != "claude-3" {
		t.Errorf("model = %v", doc["model"])
	}
}

func TestMarkdownExport(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(sampleStoredSession(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# Debugging session",
		"Fixed the off-by-one",
		"**Model:** claude-3",
		"**user:**",
		"**assistant:**",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown output missing %q", want)
		}
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bold escaped",
			input: "this is **bold**",
			want:  "this is \\*\\*bold\\*\\*",
		},
		{
			name:  "code blocks preserved",
			input: "```go\na := **b\n```",
			want:  "```go\na := **b\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeMarkdown(tt.input); got != tt.want {
				t.Errorf("escapeMarkdown(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
