package internal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldError is a single field-level validation violation
type FieldError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// ValidationError carries every field-level violation found in a candidate
// bundle, so callers can render itemized feedback rather than a generic error.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	reasons := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		reasons = append(reasons, f.String())
	}
	return fmt.Sprintf("bundle validation failed: %s", strings.Join(reasons, "; "))
}

// ValidateBundleJSON decodes and validates an untyped candidate bundle.
// Malformed JSON is reported as a single root-level field error.
func ValidateBundleJSON(raw []byte) (*SessionBundle, error) {
	var bundle SessionBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, &ValidationError{Fields: []FieldError{
			{Path: "$", Reason: fmt.Sprintf("invalid JSON: %v", err)},
		}}
	}
	return ValidateBundle(&bundle)
}

// ValidateBundle checks a candidate bundle against the canonical schema and
// returns it typed, or a ValidationError listing every violation (not just
// the first). Validation is pure: the bundle is not modified.
func ValidateBundle(bundle *SessionBundle) (*SessionBundle, error) {
	var errs []FieldError

	if strings.TrimSpace(bundle.Title) == "" {
		errs = append(errs, FieldError{Path: "title", Reason: "must not be empty"})
	}

	checkDate(&errs, "startedAt", bundle.StartedAt)
	checkDate(&errs, "endedAt", bundle.EndedAt)

	if len(bundle.Messages) == 0 {
		errs = append(errs, FieldError{Path: "messages", Reason: "must contain at least one message"})
	}
	for i, msg := range bundle.Messages {
		path := fmt.Sprintf("messages[%d]", i)
		if !ValidRole(string(msg.Role)) {
			errs = append(errs, FieldError{Path: path + ".role", Reason: fmt.Sprintf("unknown role %q (expected user, assistant or tool)", msg.Role)})
		}
		if msg.Content == "" && len(msg.Parts) == 0 {
			errs = append(errs, FieldError{Path: path + ".content", Reason: "must not be empty"})
		}
		checkTokens(&errs, path+".promptTokens", msg.PromptTokens)
		checkTokens(&errs, path+".completionTokens", msg.CompletionTokens)
		checkTokens(&errs, path+".totalTokens", msg.TotalTokens)
		for j, part := range msg.Parts {
			checkDate(&errs, fmt.Sprintf("%s.parts[%d].timestamp", path, j), part.Timestamp)
		}
	}

	for i, task := range bundle.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		if strings.TrimSpace(task.Title) == "" {
			errs = append(errs, FieldError{Path: path + ".title", Reason: "must not be empty"})
		}
		if task.Status != "" && !validTaskStatus(task.Status) {
			errs = append(errs, FieldError{Path: path + ".status", Reason: fmt.Sprintf("unknown status %q (expected open, in_progress, done or cancelled)", task.Status)})
		}
		if task.Priority != "" && !validTaskPriority(task.Priority) {
			errs = append(errs, FieldError{Path: path + ".priority", Reason: fmt.Sprintf("unknown priority %q (expected low, medium or high)", task.Priority)})
		}
	}

	for i, artifact := range bundle.Artifacts {
		path := fmt.Sprintf("artifacts[%d]", i)
		if artifact.Type == "" {
			errs = append(errs, FieldError{Path: path + ".type", Reason: "is required"})
		}
		if artifact.Name == "" {
			errs = append(errs, FieldError{Path: path + ".name", Reason: "is required"})
		}
		// Content is required but may be the empty string; only a linked
		// message ordinal can be out of range.
		if artifact.MessageIndex != nil {
			if *artifact.MessageIndex < 0 || *artifact.MessageIndex >= len(bundle.Messages) {
				errs = append(errs, FieldError{Path: path + ".messageIndex", Reason: "does not reference a message"})
			}
		}
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return bundle, nil
}

func checkDate(errs *[]FieldError, path, value string) {
	if value == "" {
		return
	}
	if _, ok := ParseBundleTime(value); !ok {
		*errs = append(*errs, FieldError{Path: path, Reason: fmt.Sprintf("%q is not a valid ISO-8601 timestamp", value)})
	}
}

func checkTokens(errs *[]FieldError, path string, value *int) {
	if value != nil && *value < 0 {
		*errs = append(*errs, FieldError{Path: path, Reason: "must be a non-negative integer"})
	}
}

func validTaskStatus(s string) bool {
	switch s {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusDone, TaskStatusCancelled:
		return true
	}
	return false
}

func validTaskPriority(s string) bool {
	switch s {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}
