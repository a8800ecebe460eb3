package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Checkpoint key under which a source's scan cursor is stored
const CheckpointLastTimestamp = "lastTimestamp"

// Run states
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// DefaultWorkspaceName is the workspace sessions land in unless the caller
// names another one
const DefaultWorkspaceName = "default"

// Store is the upsert-capable persistence layer over SQLite
type Store struct {
	db *sql.DB
}

// NewStore opens the database at path and returns a Store
func NewStore(path string) (*Store, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-open database (used by tests)
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Source is a configured ingestion source
type Source struct {
	ID            string
	Key           string
	Type          string
	RootPath      string
	Enabled       bool
	StatusMessage string
	LastRunAt     string
	LastSuccessAt string
	LastErrorAt   string
	CreatedAt     string
}

// SyncRun is one recorded ingestion run for a source
type SyncRun struct {
	ID               string
	SourceID         string
	Status           string
	StartedAt        string
	FinishedAt       string
	SessionsScanned  int
	SessionsUpserted int
	MessagesUpserted int
	PartsUpserted    int
	Note             string
}

// RunCounts aggregates what a run scanned and wrote
type RunCounts struct {
	SessionsScanned  int
	SessionsUpserted int
	MessagesUpserted int
	PartsUpserted    int
}

func (c *RunCounts) add(other RunCounts) {
	c.SessionsScanned += other.SessionsScanned
	c.SessionsUpserted += other.SessionsUpserted
	c.MessagesUpserted += other.MessagesUpserted
	c.PartsUpserted += other.PartsUpserted
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// EnsureWorkspace creates the named workspace if it does not exist and
// returns its id. The first call creates it, subsequent calls are no-ops
// returning the same identity.
func (s *Store) EnsureWorkspace(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = DefaultWorkspaceName
	}
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM workspaces WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", &StorageError{Op: "query", Err: err}
	}

	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workspaces (id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`, id, name, nowISO())
	if err != nil {
		return "", &StorageError{Op: "upsert", Err: err}
	}
	// Re-read in case a concurrent insert won the conflict
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM workspaces WHERE name = ?`, name).Scan(&id); err != nil {
		return "", &StorageError{Op: "query", Err: err}
	}
	return id, nil
}

// EnsureSource creates a source configuration if no source with the same
// stable key exists. Idempotent: a known key is never duplicated.
func (s *Store) EnsureSource(ctx context.Context, key, sourceType, rootPath string) (*Source, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, key, type, root_path, enabled, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT(key) DO NOTHING`,
		uuid.NewString(), key, sourceType, rootPath, nowISO())
	if err != nil {
		return nil, &StorageError{Op: "upsert", Err: err}
	}
	return s.GetSourceByKey(ctx, key)
}

// GetSourceByKey fetches a source by its stable key
func (s *Store) GetSourceByKey(ctx context.Context, key string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, key, type, root_path, enabled, status_message,
		       COALESCE(last_run_at, ''), COALESCE(last_success_at, ''), COALESCE(last_error_at, ''), created_at
		FROM sources WHERE key = ?`, key)
	return scanSource(row)
}

// ListEnabledSources returns enabled sources in stable creation order
func (s *Store) ListEnabledSources(ctx context.Context) ([]*Source, error) {
	return s.listSources(ctx, `WHERE enabled = 1`)
}

// ListSources returns all sources in stable creation order
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	return s.listSources(ctx, ``)
}

func (s *Store) listSources(ctx context.Context, where string) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, type, root_path, enabled, status_message,
		       COALESCE(last_run_at, ''), COALESCE(last_success_at, ''), COALESCE(last_error_at, ''), created_at
		FROM sources `+where+` ORDER BY created_at, key`)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	return sources, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSource(row rowScanner) (*Source, error) {
	var source Source
	var enabled int
	err := row.Scan(&source.ID, &source.Key, &source.Type, &source.RootPath, &enabled,
		&source.StatusMessage, &source.LastRunAt, &source.LastSuccessAt, &source.LastErrorAt, &source.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, &StorageError{Op: "query", Err: err}
	}
	source.Enabled = enabled != 0
	return &source, nil
}

// SetSourceStatus updates a source's operator-facing status message
func (s *Store) SetSourceStatus(ctx context.Context, sourceID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET status_message = ?, last_run_at = ? WHERE id = ?`,
		message, nowISO(), sourceID)
	if err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	return nil
}

// MarkSourceSuccess records a successful run on the source
func (s *Store) MarkSourceSuccess(ctx context.Context, sourceID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET status_message = ?, last_success_at = ? WHERE id = ?`,
		message, nowISO(), sourceID)
	if err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	return nil
}

// MarkSourceError records a failed run on the source
func (s *Store) MarkSourceError(ctx context.Context, sourceID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET status_message = ?, last_error_at = ? WHERE id = ?`,
		message, nowISO(), sourceID)
	if err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	return nil
}

// BeginRun creates a run record in the running state and returns its id
func (s *Store) BeginRun(ctx context.Context, sourceID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, source_id, status, started_at) VALUES (?, ?, ?, ?)`,
		id, sourceID, RunStatusRunning, nowISO())
	if err != nil {
		return "", &StorageError{Op: "upsert", Err: err}
	}
	return id, nil
}

// CompleteRun marks a run successful and writes back its counts
func (s *Store) CompleteRun(ctx context.Context, runID string, counts RunCounts, note string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET status = ?, finished_at = ?, sessions_scanned = ?, sessions_upserted = ?,
		    messages_upserted = ?, parts_upserted = ?, note = ?
		WHERE id = ?`,
		RunStatusSuccess, nowISO(), counts.SessionsScanned, counts.SessionsUpserted,
		counts.MessagesUpserted, counts.PartsUpserted, note, runID)
	if err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	return nil
}

// FailRun marks a run failed and records a structured error entry scoped to
// the run and its source
func (s *Store) FailRun(ctx context.Context, runID, sourceID, code, message string) error {
	now := nowISO()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, finished_at = ?, note = ? WHERE id = ?`,
		RunStatusFailed, now, message, runID); err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO run_errors (run_id, source_id, code, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, sourceID, code, message, now); err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	return nil
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, status, started_at, COALESCE(finished_at, ''),
		       sessions_scanned, sessions_upserted, messages_upserted, parts_upserted, note
		FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		var run SyncRun
		if err := rows.Scan(&run.ID, &run.SourceID, &run.Status, &run.StartedAt, &run.FinishedAt,
			&run.SessionsScanned, &run.SessionsUpserted, &run.MessagesUpserted, &run.PartsUpserted, &run.Note); err != nil {
			return nil, &StorageError{Op: "query", Err: err}
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	return runs, nil
}

// GetCheckpoint reads a source's checkpoint value
func (s *Store) GetCheckpoint(ctx context.Context, sourceID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM checkpoints WHERE source_id = ? AND key = ?`, sourceID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Op: "query", Err: err}
	}
	return value, true, nil
}

// SetCheckpoint writes a source's checkpoint value
func (s *Store) SetCheckpoint(ctx context.Context, sourceID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (source_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(source_id, key) DO UPDATE SET value = excluded.value`,
		sourceID, key, value)
	if err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	return nil
}

// UpsertScannedSession writes one reconstructed session atomically: the
// session is upserted by (sourceID, externalID), its messages by
// (sessionID, externalID) and its parts by (messageID, externalID). A
// session with no external id or zero messages is skipped entirely so
// adapter runs never persist empty husks. Token metrics are recomputed and
// snapshotted once per call.
func (s *Store) UpsertScannedSession(ctx context.Context, sourceID, workspaceID string, session *ScannedSession) (RunCounts, error) {
	var counts RunCounts
	if session.ExternalID == "" || len(session.Messages) == 0 {
		return counts, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, &StorageError{Op: "upsert", Err: err}
	}
	defer tx.Rollback()

	sessionID, err := upsertSessionRow(ctx, tx, sourceID, workspaceID, session)
	if err != nil {
		return counts, err
	}
	counts.SessionsUpserted++

	var promptSum, completionSum, totalSum int
	for _, msg := range session.Messages {
		messageID, err := upsertMessageRow(ctx, tx, sessionID, msg)
		if err != nil {
			return counts, err
		}
		counts.MessagesUpserted++
		promptSum += msg.PromptTokens
		completionSum += msg.CompletionTokens
		totalSum += msg.TotalTokens

		for _, part := range msg.Parts {
			if err := upsertPartRow(ctx, tx, messageID, part); err != nil {
				return counts, err
			}
			counts.PartsUpserted++
		}
	}

	// Metric snapshot: once per session per run, not per message
	cost := float64(totalSum) / 1_000_000
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET prompt_tokens = ?, completion_tokens = ?, total_tokens = ?, estimated_cost = ?
		WHERE id = ?`,
		promptSum, completionSum, totalSum, cost, sessionID); err != nil {
		return counts, &StorageError{Op: "upsert", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return counts, &StorageError{Op: "upsert", Err: err}
	}
	return counts, nil
}

func upsertSessionRow(ctx context.Context, tx *sql.Tx, sourceID, workspaceID string, session *ScannedSession) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM sessions WHERE source_id = ? AND external_id = ?`,
		sourceID, session.ExternalID).Scan(&id)
	now := nowISO()

	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (id, workspace_id, source_id, external_id, title, summary,
			                      provider, model, started_at, ended_at, first_seen_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, workspaceID, sourceID, session.ExternalID, session.Title, nullable(session.Summary),
			session.Provider, session.Model, nullableTime(session.StartedAt), nullableTime(session.EndedAt), now, now)
		if err != nil {
			return "", &StorageError{Op: "upsert", Err: err}
		}
	case err != nil:
		return "", &StorageError{Op: "query", Err: err}
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE sessions SET title = ?, summary = ?, provider = ?, model = ?,
			                    started_at = ?, ended_at = ?, last_seen_at = ?
			WHERE id = ?`,
			session.Title, nullable(session.Summary), session.Provider, session.Model,
			nullableTime(session.StartedAt), nullableTime(session.EndedAt), now, id)
		if err != nil {
			return "", &StorageError{Op: "upsert", Err: err}
		}
	}
	return id, nil
}

func upsertMessageRow(ctx context.Context, tx *sql.Tx, sessionID string, msg *ScannedMessage) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM messages WHERE session_id = ? AND external_id = ?`,
		sessionID, msg.ExternalID).Scan(&id)

	metadata := nullableJSON(msg.Metadata)
	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, external_id, role, content, metadata,
			                      prompt_tokens, completion_tokens, total_tokens, timestamp, ordinal)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, sessionID, msg.ExternalID, string(msg.Role), msg.Content, metadata,
			msg.PromptTokens, msg.CompletionTokens, msg.TotalTokens, nullableTime(msg.Timestamp), msg.Ordinal)
		if err != nil {
			return "", &StorageError{Op: "upsert", Err: err}
		}
	case err != nil:
		return "", &StorageError{Op: "query", Err: err}
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE messages SET role = ?, content = ?, metadata = ?,
			                    prompt_tokens = ?, completion_tokens = ?, total_tokens = ?,
			                    timestamp = ?, ordinal = ?
			WHERE id = ?`,
			string(msg.Role), msg.Content, metadata,
			msg.PromptTokens, msg.CompletionTokens, msg.TotalTokens,
			nullableTime(msg.Timestamp), msg.Ordinal, id)
		if err != nil {
			return "", &StorageError{Op: "upsert", Err: err}
		}
	}
	return id, nil
}

func upsertPartRow(ctx context.Context, tx *sql.Tx, messageID string, part *ScannedPart) error {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM message_parts WHERE message_id = ? AND external_id = ?`,
		messageID, part.ExternalID).Scan(&id)

	payload := nullableJSON(part.Payload)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_parts (id, message_id, external_id, type, text, payload, timestamp, ordinal)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), messageID, part.ExternalID, string(part.Type), part.Text,
			payload, nullableTime(part.Timestamp), part.Ordinal)
		if err != nil {
			return &StorageError{Op: "upsert", Err: err}
		}
	case err != nil:
		return &StorageError{Op: "query", Err: err}
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE message_parts SET type = ?, text = ?, payload = ?, timestamp = ?, ordinal = ?
			WHERE id = ?`,
			string(part.Type), part.Text, payload, nullableTime(part.Timestamp), part.Ordinal, id)
		if err != nil {
			return &StorageError{Op: "upsert", Err: err}
		}
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullableJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// StoredSession is a session row as read back for browsing/export
type StoredSession struct {
	ID          string
	WorkspaceID string
	SourceID    string
	ExternalID  string
	Title       string
	Summary     string
	Provider    string
	Model       string
	StartedAt   string
	EndedAt     string
	TotalTokens int
	Messages    []StoredMessage
}

// StoredMessage is a message row as read back for browsing/export
type StoredMessage struct {
	ID          string
	ExternalID  string
	Role        string
	Content     string
	Timestamp   string
	Ordinal     int
	TotalTokens int
	Parts       []StoredPart
}

// StoredPart is a part row as read back for browsing/export
type StoredPart struct {
	ID         string
	ExternalID string
	Type       string
	Text       string
	Payload    string
	Timestamp  string
	Ordinal    int
}

// ListSessions returns session headers ordered by recency
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*StoredSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, COALESCE(source_id, ''), COALESCE(external_id, ''), title,
		       COALESCE(summary, ''), provider, model,
		       COALESCE(started_at, ''), COALESCE(ended_at, ''), total_tokens
		FROM sessions ORDER BY COALESCE(ended_at, last_seen_at) DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	defer rows.Close()

	var sessions []*StoredSession
	for rows.Next() {
		var sess StoredSession
		if err := rows.Scan(&sess.ID, &sess.WorkspaceID, &sess.SourceID, &sess.ExternalID, &sess.Title,
			&sess.Summary, &sess.Provider, &sess.Model, &sess.StartedAt, &sess.EndedAt, &sess.TotalTokens); err != nil {
			return nil, &StorageError{Op: "query", Err: err}
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	return sessions, nil
}

// GetSession loads one session with its messages and parts in ordinal order.
// The id may be the internal id or an external session id.
func (s *Store) GetSession(ctx context.Context, id string) (*StoredSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, COALESCE(source_id, ''), COALESCE(external_id, ''), title,
		       COALESCE(summary, ''), provider, model,
		       COALESCE(started_at, ''), COALESCE(ended_at, ''), total_tokens
		FROM sessions WHERE id = ? OR external_id = ?`, id, id)

	var sess StoredSession
	if err := row.Scan(&sess.ID, &sess.WorkspaceID, &sess.SourceID, &sess.ExternalID, &sess.Title,
		&sess.Summary, &sess.Provider, &sess.Model, &sess.StartedAt, &sess.EndedAt, &sess.TotalTokens); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found: %s", id)
		}
		return nil, &StorageError{Op: "query", Err: err}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, role, content, COALESCE(timestamp, ''), ordinal, total_tokens
		FROM messages WHERE session_id = ? ORDER BY ordinal`, sess.ID)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var msg StoredMessage
		if err := rows.Scan(&msg.ID, &msg.ExternalID, &msg.Role, &msg.Content, &msg.Timestamp, &msg.Ordinal, &msg.TotalTokens); err != nil {
			return nil, &StorageError{Op: "query", Err: err}
		}
		sess.Messages = append(sess.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}

	for i := range sess.Messages {
		parts, err := s.loadParts(ctx, sess.Messages[i].ID)
		if err != nil {
			return nil, err
		}
		sess.Messages[i].Parts = parts
	}
	return &sess, nil
}

func (s *Store) loadParts(ctx context.Context, messageID string) ([]StoredPart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, type, text, COALESCE(payload, ''), COALESCE(timestamp, ''), ordinal
		FROM message_parts WHERE message_id = ? ORDER BY ordinal`, messageID)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	defer rows.Close()

	var parts []StoredPart
	for rows.Next() {
		var part StoredPart
		if err := rows.Scan(&part.ID, &part.ExternalID, &part.Type, &part.Text, &part.Payload, &part.Timestamp, &part.Ordinal); err != nil {
			return nil, &StorageError{Op: "query", Err: err}
		}
		parts = append(parts, part)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	return parts, nil
}
