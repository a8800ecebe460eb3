package internal

// FallbackSessionTitle derives a session title from message content when the
// native session record has none. Returns the first 80 characters of the
// cleaned content (hard cut, no word-boundary trimming), or "Session " plus
// the first 8 characters of the session id when the content is empty.
func FallbackSessionTitle(content, sessionID string) string {
	cleaned := CollapseWhitespace(content)
	if cleaned == "" {
		short := sessionID
		if len(short) > 8 {
			short = short[:8]
		}
		return "Session " + short
	}
	if len(cleaned) > 80 {
		return cleaned[:80]
	}
	return cleaned
}

const summaryMaxLen = 180

// DeriveSessionSummary derives a short summary from a session's messages:
// the first assistant message, else the first user message, else the first
// message of any role. Returns "" when nothing usable exists (absence, the
// caller stores it as null). Content longer than 180 characters is truncated
// to exactly 180 characters ending in "..."; content at exactly 180 is
// returned unmodified.
func DeriveSessionSummary(messages []BundleMessage) string {
	pick := func(role MessageRole) *BundleMessage {
		for i := range messages {
			if messages[i].Role == role {
				return &messages[i]
			}
		}
		return nil
	}

	msg := pick(RoleAssistant)
	if msg == nil {
		msg = pick(RoleUser)
	}
	if msg == nil && len(messages) > 0 {
		msg = &messages[0]
	}
	if msg == nil {
		return ""
	}

	cleaned := CollapseWhitespace(msg.Content)
	if cleaned == "" {
		return ""
	}
	if len(cleaned) > summaryMaxLen {
		return cleaned[:summaryMaxLen-3] + "..."
	}
	return cleaned
}
