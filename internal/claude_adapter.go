package internal

import (
	"bufio"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const claudeDefaultProvider = "anthropic"

// ClaudeAdapter reads Claude-style line-delimited JSON event logs. Each
// project directory under <root>/projects holds one or more .jsonl files;
// a session's events may be split across several of them.
type ClaudeAdapter struct {
	root string
}

// NewClaudeAdapter creates an adapter rooted at the given directory
func NewClaudeAdapter(root string) *ClaudeAdapter {
	return &ClaudeAdapter{root: root}
}

// Type returns the source type this adapter handles
func (a *ClaudeAdapter) Type() string { return SourceTypeClaude }

// claudeEvent is one line of a Claude session log
type claudeEvent struct {
	Type      string         `json:"type"`
	UUID      string         `json:"uuid"`
	SessionID string         `json:"sessionId"`
	Timestamp string         `json:"timestamp"`
	Model     string         `json:"model"`
	CWD       string         `json:"cwd"`
	GitBranch string         `json:"gitBranch"`
	Version   string         `json:"version"`
	Message   *claudeMessage `json:"message"`
}

// claudeMessage is the nested message object of a user/assistant event.
// Content is either a plain string or an array of content blocks.
type claudeMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *claudeUsage    `json:"usage"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// claudeContentBlock is one entry of an array-valued content field
type claudeContentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
}

// Scan walks <root>/projects for .jsonl files modified at or after since,
// reconstructs sessions from their events and re-sorts each session's
// messages chronologically. Malformed lines and events without a session id
// are skipped, never fatal: logs are append-only and may be read mid-write.
func (a *ClaudeAdapter) Scan(ctx context.Context, since time.Time) (*ScanResult, error) {
	projectsDir := filepath.Join(a.root, "projects")
	if _, err := os.Stat(projectsDir); os.IsNotExist(err) {
		// A fresh install has no projects directory yet
		return &ScanResult{}, nil
	}

	var files []string
	err := filepath.WalkDir(projectsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			LogWarn("Skipping unreadable path %s: %v", path, err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(since) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, &SourceError{Source: SourceTypeClaude, Op: "walk", Err: err}
	}

	result := &ScanResult{}
	sessions := make(map[string]*ScannedSession)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scanned, maxTS := a.scanFile(path, sessions)
		if scanned {
			result.FilesScanned++
		}
		if maxTS.After(result.MaxTimestamp) {
			result.MaxTimestamp = maxTS
		}
	}

	for _, session := range sessions {
		if len(session.Messages) == 0 {
			continue
		}
		session.SortMessages()
		session.StartedAt = session.Messages[0].Timestamp
		session.EndedAt = session.Messages[len(session.Messages)-1].Timestamp
		if session.Title == "" {
			session.Title = FallbackSessionTitle(session.Messages[0].Content, session.ExternalID)
		}
		session.Summary = DeriveSessionSummary(bundleMessagesOf(session))
		result.Sessions = append(result.Sessions, session)
	}

	LogInfo("claude scan: %d files, %d sessions", result.FilesScanned, len(result.Sessions))
	return result, nil
}

// scanFile reads one .jsonl file and merges its events into sessions.
// Returns whether the file was readable and the max event timestamp seen.
func (a *ClaudeAdapter) scanFile(path string, sessions map[string]*ScannedSession) (bool, time.Time) {
	f, err := os.Open(path)
	if err != nil {
		LogWarn("Failed to open %s: %v", path, err)
		return false, time.Time{}
	}
	defer f.Close()

	var maxTS time.Time
	scanner := bufio.NewScanner(f)
	// Transcript lines routinely exceed the default token size
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	skipped := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event claudeEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			skipped++
			continue
		}
		if event.SessionID == "" {
			continue
		}

		ts, hasTS := ParseBundleTime(event.Timestamp)
		if hasTS && ts.After(maxTS) {
			maxTS = ts
		}

		msg := a.eventToMessage(&event, ts)
		if msg == nil {
			continue
		}

		session := sessions[event.SessionID]
		if session == nil {
			session = &ScannedSession{
				ExternalID: event.SessionID,
				Provider:   claudeDefaultProvider,
			}
			sessions[event.SessionID] = session
		}
		if session.Model == "" {
			session.Model = eventModel(&event)
		}
		session.Messages = append(session.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		LogWarn("Stopped reading %s: %v", path, err)
	}
	if skipped > 0 {
		LogDebug("Skipped %d malformed lines in %s", skipped, path)
	}
	return true, maxTS
}

// eventToMessage converts a single event into at most one message. Events
// that yield no visible content produce no message at all.
func (a *ClaudeAdapter) eventToMessage(event *claudeEvent, ts time.Time) *ScannedMessage {
	if event.Message == nil || len(event.Message.Content) == 0 {
		return nil
	}

	msg := &ScannedMessage{
		Role:      MapClaudeRole(event.Type),
		Timestamp: ts,
	}
	if usage := event.Message.Usage; usage != nil {
		msg.PromptTokens = usage.InputTokens
		msg.CompletionTokens = usage.OutputTokens
		msg.TotalTokens = usage.InputTokens + usage.OutputTokens
	}

	// Content is either a plain string or a list of typed blocks
	var text string
	if err := json.Unmarshal(event.Message.Content, &text); err == nil {
		clean := SanitizeText(text)
		if clean == "" {
			return nil
		}
		msg.Content = clean
		msg.Parts = []*ScannedPart{{
			ExternalID: ContentHashID(clean),
			Type:       PartText,
			Text:       clean,
			Timestamp:  ts,
			Ordinal:    0,
		}}
	} else {
		var blocks []claudeContentBlock
		if err := json.Unmarshal(event.Message.Content, &blocks); err != nil {
			return nil
		}
		var textParts []string
		for i, block := range blocks {
			part := &ScannedPart{
				Type:      MapClaudePartType(block.Type),
				Timestamp: ts,
				Ordinal:   i,
			}
			switch part.Type {
			case PartText:
				part.Text = SanitizeText(block.Text)
				if part.Text != "" {
					textParts = append(textParts, part.Text)
				}
			case PartReasoning:
				part.Text = SanitizeText(block.Thinking)
			default:
				if payload, err := json.Marshal(block); err == nil {
					part.Payload = payload
				}
			}
			if block.ID != "" {
				part.ExternalID = block.ID
			} else {
				part.ExternalID = ContentHashID(block.Type + ":" + part.Text + string(part.Payload))
			}
			msg.Parts = append(msg.Parts, part)
		}
		msg.Content = strings.Join(textParts, "\n\n")
		if msg.Content == "" {
			// Partial events must not create empty messages
			return nil
		}
	}

	if event.UUID != "" {
		msg.ExternalID = event.UUID
	} else {
		msg.ExternalID = ContentHashID(msg.Content)
	}

	if meta := eventMetadata(event); meta != nil {
		msg.Metadata = meta
	}
	return msg
}

func eventModel(event *claudeEvent) string {
	if event.Model != "" {
		return event.Model
	}
	if event.Message != nil {
		return event.Message.Model
	}
	return ""
}

// eventMetadata snapshots source-specific context as an opaque payload. The
// core stores it without interpreting it.
func eventMetadata(event *claudeEvent) json.RawMessage {
	meta := map[string]string{}
	if event.CWD != "" {
		meta["cwd"] = event.CWD
	}
	if event.GitBranch != "" {
		meta["gitBranch"] = event.GitBranch
	}
	if event.Version != "" {
		meta["version"] = event.Version
	}
	if len(meta) == 0 {
		return nil
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return payload
}

// bundleMessagesOf adapts scanned messages to the shared summary helper
func bundleMessagesOf(session *ScannedSession) []BundleMessage {
	msgs := make([]BundleMessage, 0, len(session.Messages))
	for _, m := range session.Messages {
		msgs = append(msgs, BundleMessage{Role: m.Role, Content: m.Content})
	}
	return msgs
}
