package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteClaudeLog writes a Claude-style .jsonl event log fixture under
// <root>/projects/<project> and returns its path
func WriteClaudeLog(t *testing.T, root, project, name string, lines []string) string {
	t.Helper()
	dir := filepath.Join(root, "projects", project)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create project dir: %v", err)
	}
	path := filepath.Join(dir, name)
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write log fixture: %v", err)
	}
	return path
}

// WriteOpenCodeSession writes an OpenCode-style session info fixture under
// <root>/session
func WriteOpenCodeSession(t *testing.T, root, sessionID, body string) {
	t.Helper()
	dir := filepath.Join(root, "session")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create session dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, sessionID+".json"), []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write session fixture: %v", err)
	}
}

// WriteOpenCodeMessage writes a per-message JSON fixture under
// <root>/message/<sessionID>
func WriteOpenCodeMessage(t *testing.T, root, sessionID, messageID, body string) {
	t.Helper()
	dir := filepath.Join(root, "message", sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create message dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, messageID+".json"), []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write message fixture: %v", err)
	}
}

// WriteOpenCodePart writes a per-part JSON fixture under
// <root>/part/<messageID>
func WriteOpenCodePart(t *testing.T, root, messageID, partID, body string) {
	t.Helper()
	dir := filepath.Join(root, "part", messageID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create part dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, partID+".json"), []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write part fixture: %v", err)
	}
}
