package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/session-sync/internal"
)

// JSONExporter exports sessions in JSON format (pretty-printed)
type JSONExporter struct{}

// Export exports a session to JSON format
func (e *JSONExporter) Export(session *internal.StoredSession, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(sessionDocument(session))
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}

// sessionDocument shapes a stored session for structured export
func sessionDocument(session *internal.StoredSession) map[string]interface{} {
	messages := make([]map[string]interface{}, 0, len(session.Messages))
	for _, msg := range session.Messages {
		obj := map[string]interface{}{
			"role":    msg.Role,
			"content": msg.Content,
			"ordinal": msg.Ordinal,
		}
		if msg.Timestamp != "" {
			obj["timestamp"] = msg.Timestamp
		}
		if msg.TotalTokens > 0 {
			obj["totalTokens"] = msg.TotalTokens
		}
		if len(msg.Parts) > 0 {
			parts := make([]map[string]interface{}, 0, len(msg.Parts))
			for _, part := range msg.Parts {
				p := map[string]interface{}{
					"type":    part.Type,
					"ordinal": part.Ordinal,
				}
				if part.Text != "" {
					p["text"] = part.Text
				}
				parts = append(parts, p)
			}
			obj["parts"] = parts
		}
		messages = append(messages, obj)
	}

	doc := map[string]interface{}{
		"id":       session.ID,
		"title":    session.Title,
		"messages": messages,
	}
	if session.Summary != "" {
		doc["summary"] = session.Summary
	}
	if session.Provider != "" {
		doc["provider"] = session.Provider
	}
	if session.Model != "" {
		doc["model"] = session.Model
	}
	if session.ExternalID != "" {
		doc["externalSessionId"] = session.ExternalID
	}
	if session.StartedAt != "" {
		doc["startedAt"] = session.StartedAt
	}
	if session.EndedAt != "" {
		doc["endedAt"] = session.EndedAt
	}
	return doc
}
