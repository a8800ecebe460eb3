package internal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// Source type strings as stored on source records
const (
	SourceTypeClaude   = "claude"
	SourceTypeOpenCode = "opencode"
)

// SourceAdapter reconstructs sessions from a native transcript store. An
// adapter never touches the persistent store: it produces intermediate
// records plus the maximum source timestamp observed across all read data,
// which the orchestrator uses to advance the source's checkpoint.
type SourceAdapter interface {
	// Type returns the source type string the adapter handles
	Type() string
	// Scan reads the native store and reconstructs every session with
	// records at or after the since cutoff.
	Scan(ctx context.Context, since time.Time) (*ScanResult, error)
}

// ScanResult is the shared result contract of all adapters
type ScanResult struct {
	Sessions     []*ScannedSession
	MaxTimestamp time.Time
	FilesScanned int
}

// ScannedSession is a reconstructed session prior to persistence
type ScannedSession struct {
	ExternalID string
	Title      string
	Summary    string
	Provider   string
	Model      string
	StartedAt  time.Time
	EndedAt    time.Time
	Messages   []*ScannedMessage
}

// ScannedMessage is a reconstructed message prior to persistence
type ScannedMessage struct {
	ExternalID       string
	Role             MessageRole
	Content          string
	Metadata         json.RawMessage
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Timestamp        time.Time
	Ordinal          int
	Parts            []*ScannedPart
}

// ScannedPart is a reconstructed message part prior to persistence
type ScannedPart struct {
	ExternalID string
	Type       PartType
	Text       string
	Payload    json.RawMessage
	Timestamp  time.Time
	Ordinal    int
}

// SortMessages re-sorts a session's messages by source timestamp and
// reassigns dense zero-based ordinals. File-append order does not guarantee
// chronological order when a session spans multiple log files, so source
// order is never trusted. Messages without a timestamp sort earliest.
func (s *ScannedSession) SortMessages() {
	sort.SliceStable(s.Messages, func(i, j int) bool {
		return s.Messages[i].Timestamp.Before(s.Messages[j].Timestamp)
	})
	for i, msg := range s.Messages {
		msg.Ordinal = i
	}
}

// ContentHashID derives a stable message id from a content prefix. Used when
// a native record carries no id of its own, so re-ingesting the same file
// resolves to the same natural key.
func ContentHashID(content string) string {
	const prefixLen = 256
	if len(content) > prefixLen {
		content = content[:prefixLen]
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}
