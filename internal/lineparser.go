package internal

import (
	"regexp"
	"strings"
)

// TranscriptTurn is one role-tagged turn recovered from pasted text
type TranscriptTurn struct {
	Role    MessageRole
	Content string
}

var (
	chunkSeparator = regexp.MustCompile(`\n\s*\n`)
	roleLinePrefix = regexp.MustCompile(`(?i)^(user|assistant|tool):\s*(.*)$`)
)

// ParseTranscript splits loosely-formatted pasted text into role-tagged
// turns. Chunks are separated by blank lines; a chunk whose first line starts
// with "user:", "assistant:" or "tool:" (case-insensitive) takes that role,
// any other chunk is assigned alternating roles starting with user. This is a
// permissive best-effort parser: it never rejects input, only degrades to the
// alternating-role fallback. Chunks that are empty after trimming are dropped.
func ParseTranscript(text string) []TranscriptTurn {
	var turns []TranscriptTurn
	unlabeled := 0

	for _, chunk := range chunkSeparator.Split(text, -1) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}

		lines := strings.Split(chunk, "\n")
		var role MessageRole
		var content string

		if m := roleLinePrefix.FindStringSubmatch(lines[0]); m != nil {
			role = MessageRole(strings.ToLower(m[1]))
			rest := append([]string{m[2]}, lines[1:]...)
			content = strings.TrimSpace(strings.Join(rest, "\n"))
		} else {
			// Alternate user/assistant for unlabeled chunks, independent
			// of any labeled chunks seen so far.
			if unlabeled%2 == 0 {
				role = RoleUser
			} else {
				role = RoleAssistant
			}
			unlabeled++
			content = chunk
		}

		if content == "" {
			continue
		}
		turns = append(turns, TranscriptTurn{Role: role, Content: content})
	}

	return turns
}
