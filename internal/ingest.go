package internal

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// IngestInput is the canonical bundle ingestion entry point contract,
// consumed by manual entry and usable by any future adapter.
type IngestInput struct {
	Bundle       *SessionBundle
	Workspace    string
	SourceToolID string
	ImportSource string
}

// IngestResult reports where a bundle landed
type IngestResult struct {
	SessionID    string
	Deduplicated bool
}

// IngestBundle validates and persists a canonical bundle. Deduplication is
// keyed solely on (sourceToolID, externalSessionID): when both are present an
// existing session is updated in place, otherwise a new session is always
// created, since pasted/manual sessions have no natural identity to
// deduplicate against. The write is atomic.
func (s *Store) IngestBundle(ctx context.Context, in IngestInput) (*IngestResult, error) {
	bundle, err := ValidateBundle(in.Bundle)
	if err != nil {
		return nil, err
	}

	workspaceID, err := s.EnsureWorkspace(ctx, in.Workspace)
	if err != nil {
		return nil, err
	}

	sourceID := ""
	if in.SourceToolID != "" {
		source, err := s.EnsureSource(ctx, in.SourceToolID, "manual", "")
		if err != nil {
			return nil, err
		}
		sourceID = source.ID
	}

	scanned := bundleToScanned(bundle)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "upsert", Err: err}
	}
	defer tx.Rollback()

	var sessionID string
	deduplicated := false

	if sourceID != "" && scanned.ExternalID != "" {
		// Natural key exists: update-in-place when found
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM sessions WHERE source_id = ? AND external_id = ?`,
			sourceID, scanned.ExternalID).Scan(&sessionID)
		if err != nil && err != sql.ErrNoRows {
			return nil, &StorageError{Op: "query", Err: err}
		}
		deduplicated = err == nil
		sessionID, err = upsertSessionRow(ctx, tx, sourceID, workspaceID, scanned)
		if err != nil {
			return nil, err
		}
	} else {
		sessionID = uuid.NewString()
		now := nowISO()
		var srcID interface{}
		if sourceID != "" {
			srcID = sourceID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, workspace_id, source_id, external_id, title, summary,
			                      provider, model, import_source, started_at, ended_at, first_seen_at, last_seen_at)
			VALUES (?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, workspaceID, srcID, scanned.Title, nullable(scanned.Summary),
			scanned.Provider, scanned.Model, in.ImportSource,
			nullableTime(scanned.StartedAt), nullableTime(scanned.EndedAt), now, now)
		if err != nil {
			return nil, &StorageError{Op: "upsert", Err: err}
		}
	}

	if in.ImportSource != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET import_source = ? WHERE id = ?`, in.ImportSource, sessionID); err != nil {
			return nil, &StorageError{Op: "upsert", Err: err}
		}
	}

	var promptSum, completionSum, totalSum int
	for _, msg := range scanned.Messages {
		messageID, err := upsertMessageRow(ctx, tx, sessionID, msg)
		if err != nil {
			return nil, err
		}
		promptSum += msg.PromptTokens
		completionSum += msg.CompletionTokens
		totalSum += msg.TotalTokens
		for _, part := range msg.Parts {
			if err := upsertPartRow(ctx, tx, messageID, part); err != nil {
				return nil, err
			}
		}
	}

	cost := float64(totalSum) / 1_000_000
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET prompt_tokens = ?, completion_tokens = ?, total_tokens = ?, estimated_cost = ?
		WHERE id = ?`, promptSum, completionSum, totalSum, cost, sessionID); err != nil {
		return nil, &StorageError{Op: "upsert", Err: err}
	}

	if err := replaceBundleExtras(ctx, tx, sessionID, bundle); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "upsert", Err: err}
	}
	return &IngestResult{SessionID: sessionID, Deduplicated: deduplicated}, nil
}

// bundleToScanned converts a validated bundle into the adapter-shaped
// intermediate record so both ingestion paths share one write path. Message
// and part ids missing from the bundle are derived from content so repeated
// imports of the same bundle stay idempotent.
func bundleToScanned(bundle *SessionBundle) *ScannedSession {
	scanned := &ScannedSession{
		ExternalID: bundle.ExternalSessionID,
		Title:      bundle.Title,
		Summary:    bundle.Summary,
	}
	if t, ok := ParseBundleTime(bundle.StartedAt); ok {
		scanned.StartedAt = t
	}
	if t, ok := ParseBundleTime(bundle.EndedAt); ok {
		scanned.EndedAt = t
	}

	for _, msg := range bundle.Messages {
		m := &ScannedMessage{
			ExternalID: msg.ExternalID,
			Role:       msg.Role,
			Content:    SanitizeText(msg.Content),
			Metadata:   msg.Metadata,
		}
		if msg.PromptTokens != nil {
			m.PromptTokens = *msg.PromptTokens
		}
		if msg.CompletionTokens != nil {
			m.CompletionTokens = *msg.CompletionTokens
		}
		m.TotalTokens = msg.TotalTokenCount()
		if m.ExternalID == "" {
			m.ExternalID = ContentHashID(string(msg.Role) + ":" + m.Content)
		}

		for j, part := range msg.Parts {
			p := &ScannedPart{
				ExternalID: part.ExternalID,
				Type:       part.Type,
				Text:       SanitizeText(part.Text),
				Payload:    part.Payload,
				Ordinal:    j,
			}
			if t, ok := ParseBundleTime(part.Timestamp); ok {
				p.Timestamp = t
			}
			if p.ExternalID == "" {
				p.ExternalID = ContentHashID(string(p.Type) + ":" + p.Text + string(p.Payload))
			}
			m.Parts = append(m.Parts, p)
		}
		scanned.Messages = append(scanned.Messages, m)
	}

	// Ordinals are assigned by the pipeline, never taken from source order.
	// Manual bundles usually carry no timestamps, in which case the stable
	// sort preserves the submitted order.
	scanned.SortMessages()

	if scanned.Summary == "" {
		scanned.Summary = DeriveSessionSummary(bundle.Messages)
	}
	return scanned
}

// replaceBundleExtras rewrites the bundle's tasks, artifacts and tags. They
// carry no natural ids, so each write replaces the previous set.
func replaceBundleExtras(ctx context.Context, tx *sql.Tx, sessionID string, bundle *SessionBundle) error {
	for _, table := range []string{"session_tasks", "session_artifacts"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, sessionID); err != nil {
			return &StorageError{Op: "upsert", Err: err}
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_tags WHERE session_id = ?`, sessionID); err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}

	for i, task := range bundle.Tasks {
		status := task.Status
		if status == "" {
			status = TaskStatusOpen
		}
		priority := task.Priority
		if priority == "" {
			priority = TaskPriorityMedium
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_tasks (id, session_id, title, description, status, priority, ordinal)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), sessionID, task.Title, task.Description, status, priority, i); err != nil {
			return &StorageError{Op: "upsert", Err: err}
		}
	}

	for i, artifact := range bundle.Artifacts {
		var msgIndex interface{}
		if artifact.MessageIndex != nil {
			msgIndex = *artifact.MessageIndex
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_artifacts (id, session_id, type, name, content, message_index, ordinal)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), sessionID, artifact.Type, artifact.Name, artifact.Content, msgIndex, i); err != nil {
			return &StorageError{Op: "upsert", Err: err}
		}
	}

	for _, tag := range bundle.Tags {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_tags (session_id, tag) VALUES (?, ?)
			ON CONFLICT(session_id, tag) DO NOTHING`, sessionID, tag); err != nil {
			return &StorageError{Op: "upsert", Err: err}
		}
	}
	return nil
}
