package internal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// OpenCodeAdapter reads an OpenCode-style session store: one JSON file per
// session under <root>/session, per-session message directories under
// <root>/message/<sessionID>, and per-message part directories under
// <root>/part/<messageID>.
type OpenCodeAdapter struct {
	root string
}

// NewOpenCodeAdapter creates an adapter rooted at the given storage directory
func NewOpenCodeAdapter(root string) *OpenCodeAdapter {
	return &OpenCodeAdapter{root: root}
}

// Type returns the source type this adapter handles
func (a *OpenCodeAdapter) Type() string { return SourceTypeOpenCode }

// openCodeSession is a session info file
type openCodeSession struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	Time  openCodeTime `json:"time"`
}

// openCodeMessage is one per-message JSON file
type openCodeMessage struct {
	ID         string           `json:"id"`
	Role       string           `json:"role"`
	ProviderID string           `json:"providerID"`
	ModelID    string           `json:"modelID"`
	Time       openCodeTime     `json:"time"`
	Tokens     *openCodeTokens  `json:"tokens"`
	Summary    *openCodeSummary `json:"summary"`
}

// openCodePart is one per-part JSON file
type openCodePart struct {
	ID    string          `json:"id"`
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Tool  string          `json:"tool"`
	State json.RawMessage `json:"state"`
	Time  openCodeTime    `json:"time"`
}

// openCodePartState is the nested state object of a tool part
type openCodePartState struct {
	Title  string `json:"title"`
	Output string `json:"output"`
}

// openCodeTime carries millisecond epoch timestamps
type openCodeTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
	Start   int64 `json:"start"`
	End     int64 `json:"end"`
}

type openCodeTokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

type openCodeSummary struct {
	Title string `json:"title"`
}

// Scan enumerates session files updated at or after since and reconstructs
// each from its message and part directories. Missing message or part
// directories are treated as empty, not as errors: a session may have no
// messages yet and a tool-less message has no part directory.
func (a *OpenCodeAdapter) Scan(ctx context.Context, since time.Time) (*ScanResult, error) {
	sessionDir := filepath.Join(a.root, "session")
	entries, err := os.ReadDir(sessionDir)
	if os.IsNotExist(err) {
		return &ScanResult{}, nil
	}
	if err != nil {
		return nil, &SourceError{Source: SourceTypeOpenCode, Op: "read session dir", Err: err}
	}

	result := &ScanResult{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(sessionDir, entry.Name()))
		if err != nil {
			LogWarn("Failed to read session file %s: %v", entry.Name(), err)
			continue
		}
		var native openCodeSession
		if err := json.Unmarshal(raw, &native); err != nil {
			LogWarn("Skipping session file: %v", &ParseError{Source: SourceTypeOpenCode, Key: entry.Name(), Err: err})
			continue
		}
		if native.ID == "" {
			continue
		}

		updated := millisTime(native.Time.Updated)
		if updated.IsZero() {
			updated = millisTime(native.Time.Created)
		}
		if !updated.IsZero() && updated.Before(since) {
			continue
		}
		result.FilesScanned++
		if updated.After(result.MaxTimestamp) {
			result.MaxTimestamp = updated
		}

		session := a.reconstructSession(&native, result)
		if session != nil && len(session.Messages) > 0 {
			result.Sessions = append(result.Sessions, session)
		}
	}

	LogInfo("opencode scan: %d session files, %d sessions", result.FilesScanned, len(result.Sessions))
	return result, nil
}

// reconstructSession assembles one session from its message directory
func (a *OpenCodeAdapter) reconstructSession(native *openCodeSession, result *ScanResult) *ScannedSession {
	session := &ScannedSession{
		ExternalID: native.ID,
		Title:      strings.TrimSpace(native.Title),
		StartedAt:  millisTime(native.Time.Created),
		EndedAt:    millisTime(native.Time.Updated),
	}

	messageDir := filepath.Join(a.root, "message", native.ID)
	entries, err := os.ReadDir(messageDir)
	if err != nil {
		if !os.IsNotExist(err) {
			LogWarn("Failed to read message dir for %s: %v", native.ID, err)
		}
		return session
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(messageDir, entry.Name()))
		if err != nil {
			continue
		}
		var nativeMsg openCodeMessage
		if err := json.Unmarshal(raw, &nativeMsg); err != nil {
			LogWarn("Skipping message file: %v", &ParseError{Source: SourceTypeOpenCode, Key: entry.Name(), Err: err})
			continue
		}
		if nativeMsg.ID == "" {
			continue
		}

		msg := a.reconstructMessage(&nativeMsg)
		if msg == nil {
			continue
		}
		if msg.Timestamp.After(result.MaxTimestamp) {
			result.MaxTimestamp = msg.Timestamp
		}
		// Part start times can trail the message record itself
		for _, part := range msg.Parts {
			if part.Timestamp.After(result.MaxTimestamp) {
				result.MaxTimestamp = part.Timestamp
			}
		}
		if session.Model == "" {
			session.Model = nativeMsg.ModelID
		}
		if session.Provider == "" {
			session.Provider = nativeMsg.ProviderID
		}
		session.Messages = append(session.Messages, msg)
	}

	if len(session.Messages) == 0 {
		return session
	}

	session.SortMessages()
	if session.Title == "" {
		session.Title = FallbackSessionTitle(session.Messages[0].Content, session.ExternalID)
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = session.Messages[0].Timestamp
	}
	if session.EndedAt.IsZero() {
		session.EndedAt = session.Messages[len(session.Messages)-1].Timestamp
	}
	session.Summary = DeriveSessionSummary(bundleMessagesOf(session))
	return session
}

// reconstructMessage assembles one message from its part directory. Visible
// content is the join of its text parts, falling back to the summary title;
// a message with neither is dropped.
func (a *OpenCodeAdapter) reconstructMessage(native *openCodeMessage) *ScannedMessage {
	msg := &ScannedMessage{
		ExternalID: native.ID,
		Role:       MapOpenCodeRole(native.Role),
		Timestamp:  millisTime(native.Time.Created),
	}
	if native.Tokens != nil {
		msg.PromptTokens = native.Tokens.Input
		msg.CompletionTokens = native.Tokens.Output
		msg.TotalTokens = native.Tokens.Input + native.Tokens.Output
	}

	msg.Parts = a.readParts(native.ID)

	var textParts []string
	for _, part := range msg.Parts {
		if part.Type == PartText && part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}
	msg.Content = strings.Join(textParts, "\n\n")
	if msg.Content == "" && native.Summary != nil {
		msg.Content = SanitizeText(native.Summary.Title)
	}
	if msg.Content == "" {
		return nil
	}
	return msg
}

// readParts loads and orders a message's parts by their start timestamps.
// A missing part directory is legitimate (tool-less message).
func (a *OpenCodeAdapter) readParts(messageID string) []*ScannedPart {
	partDir := filepath.Join(a.root, "part", messageID)
	entries, err := os.ReadDir(partDir)
	if err != nil {
		return nil
	}

	type sortablePart struct {
		part  *ScannedPart
		start int64
	}
	var parts []sortablePart

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(partDir, entry.Name()))
		if err != nil {
			continue
		}
		var nativePart openCodePart
		if err := json.Unmarshal(raw, &nativePart); err != nil {
			LogWarn("Skipping part file: %v", &ParseError{Source: SourceTypeOpenCode, Key: entry.Name(), Err: err})
			continue
		}
		if nativePart.ID == "" {
			continue
		}

		part := &ScannedPart{
			ExternalID: nativePart.ID,
			Type:       MapOpenCodePartType(nativePart.Type),
			Timestamp:  millisTime(nativePart.Time.Start),
		}
		switch part.Type {
		case PartTool:
			part.Text = toolPartText(&nativePart)
			part.Payload = nativePart.State
		default:
			part.Text = SanitizeText(nativePart.Text)
		}
		parts = append(parts, sortablePart{part: part, start: nativePart.Time.Start})
	}

	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].start < parts[j].start
	})

	out := make([]*ScannedPart, 0, len(parts))
	for i, sp := range parts {
		sp.part.Ordinal = i
		out = append(out, sp.part)
	}
	return out
}

// toolPartText derives display text for a tool part: the state title, else
// the state output, else the tool identifier, else "tool call".
func toolPartText(part *openCodePart) string {
	if len(part.State) > 0 {
		var state openCodePartState
		if err := json.Unmarshal(part.State, &state); err == nil {
			if state.Title != "" {
				return state.Title
			}
			if state.Output != "" {
				return state.Output
			}
		}
	}
	if part.Tool != "" {
		return part.Tool
	}
	return "tool call"
}

// millisTime converts a millisecond epoch to time.Time, zero when unset
func millisTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}
