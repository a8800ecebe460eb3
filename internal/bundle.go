package internal

import (
	"encoding/json"
	"time"
)

// MessageRole is the canonical role of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ValidRole reports whether s is one of the canonical roles
func ValidRole(s string) bool {
	switch MessageRole(s) {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// PartType is the canonical type of a message part
type PartType string

const (
	PartText       PartType = "text"
	PartReasoning  PartType = "reasoning"
	PartTool       PartType = "tool"
	PartStepStart  PartType = "step_start"
	PartStepFinish PartType = "step_finish"
	PartError      PartType = "error"
	PartOther      PartType = "other"
)

// Task statuses and priorities accepted on bundle tasks
const (
	TaskStatusOpen       = "open"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
	TaskStatusCancelled  = "cancelled"

	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// SessionBundle is the canonical source-agnostic session representation.
// Every adapter and the manual entry path produce this shape.
type SessionBundle struct {
	Title             string           `json:"title"`
	Summary           string           `json:"summary,omitempty"`
	ExternalSessionID string           `json:"externalSessionId,omitempty"`
	StartedAt         string           `json:"startedAt,omitempty"`
	EndedAt           string           `json:"endedAt,omitempty"`
	Messages          []BundleMessage  `json:"messages"`
	Tasks             []BundleTask     `json:"tasks,omitempty"`
	Artifacts         []BundleArtifact `json:"artifacts,omitempty"`
	Tags              []string         `json:"tags,omitempty"`
}

// BundleMessage is one canonical message inside a bundle
type BundleMessage struct {
	Role             MessageRole     `json:"role"`
	Content          string          `json:"content"`
	ExternalID       string          `json:"externalId,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	PromptTokens     *int            `json:"promptTokens,omitempty"`
	CompletionTokens *int            `json:"completionTokens,omitempty"`
	TotalTokens      *int            `json:"totalTokens,omitempty"`
	Parts            []BundlePart    `json:"parts,omitempty"`
}

// BundlePart is the smallest unit of message content, preserved without
// flattening into the message's plain text
type BundlePart struct {
	ExternalID string          `json:"externalId,omitempty"`
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
}

// BundleTask is an optional task attached to a bundle
type BundleTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// BundleArtifact is an optional artifact attached to a bundle. MessageIndex,
// when set, links the artifact to a message ordinal.
type BundleArtifact struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	Content      string `json:"content"`
	MessageIndex *int   `json:"messageIndex,omitempty"`
}

// TotalTokenCount returns the message's total tokens, defaulting to
// prompt+completion when no explicit total is present.
func (m *BundleMessage) TotalTokenCount() int {
	if m.TotalTokens != nil {
		return *m.TotalTokens
	}
	total := 0
	if m.PromptTokens != nil {
		total += *m.PromptTokens
	}
	if m.CompletionTokens != nil {
		total += *m.CompletionTokens
	}
	return total
}

// ParseBundleTime parses a bundle timestamp string (RFC 3339)
func ParseBundleTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
