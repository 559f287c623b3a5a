package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/wordsaver/pkg/models"
)

// SessionRepository persists in-flight review prompts and exclusion
// tokens. Rows are keyed by (chat, kind); the quiz and flashcard
// buckets never interfere. There is no expiry: a stale row is
// invalidated by its answered flag, not by age.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new repository instance
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

type sessionRow struct {
	Prompt   string         `db:"prompt"`
	Choices  sql.NullString `db:"choices"`
	Answered bool           `db:"answered"`
}

// SaveSession stores the current prompt, its choice order and the
// answered flag, replacing any previous row for the same (chat, kind).
func (r *SessionRepository) SaveSession(chatID int64, kind models.SessionKind, state *models.SessionState) error {
	promptJSON, err := json.Marshal(state.Prompt)
	if err != nil {
		return fmt.Errorf("failed to marshal prompt: %v", err)
	}

	var choicesJSON sql.NullString
	if state.ShuffledChoices != nil {
		data, err := json.Marshal(state.ShuffledChoices)
		if err != nil {
			return fmt.Errorf("failed to marshal choices: %v", err)
		}
		choicesJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := r.db.Rebind(`
		INSERT INTO review_sessions (chat_id, kind, prompt, choices, answered, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (chat_id, kind) DO UPDATE SET
			prompt = excluded.prompt,
			choices = excluded.choices,
			answered = excluded.answered,
			updated_at = CURRENT_TIMESTAMP
	`)
	if _, err := r.db.Exec(query, chatID, string(kind), string(promptJSON), choicesJSON, state.Answered); err != nil {
		return fmt.Errorf("failed to save session: %v", err)
	}
	return nil
}

// LoadSession returns the persisted state for (chat, kind), or nil when
// there is none. The choice order comes back exactly as it was saved.
func (r *SessionRepository) LoadSession(chatID int64, kind models.SessionKind) (*models.SessionState, error) {
	var row sessionRow
	query := r.db.Rebind("SELECT prompt, choices, answered FROM review_sessions WHERE chat_id = ? AND kind = ?")
	err := r.db.Get(&row, query, chatID, string(kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %v", err)
	}

	state := &models.SessionState{Answered: row.Answered}
	if err := json.Unmarshal([]byte(row.Prompt), &state.Prompt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompt: %v", err)
	}
	if row.Choices.Valid {
		if err := json.Unmarshal([]byte(row.Choices.String), &state.ShuffledChoices); err != nil {
			return nil, fmt.Errorf("failed to unmarshal choices: %v", err)
		}
	}
	return state, nil
}

// ClearSession removes the persisted state for (chat, kind)
func (r *SessionRepository) ClearSession(chatID int64, kind models.SessionKind) error {
	query := r.db.Rebind("DELETE FROM review_sessions WHERE chat_id = ? AND kind = ?")
	if _, err := r.db.Exec(query, chatID, string(kind)); err != nil {
		return fmt.Errorf("failed to clear session: %v", err)
	}
	return nil
}

// SaveExclusion overwrites the exclusion token for (chat, kind)
func (r *SessionRepository) SaveExclusion(chatID int64, kind models.SessionKind, word string) error {
	query := r.db.Rebind(`
		INSERT INTO exclusions (chat_id, kind, word) VALUES (?, ?, ?)
		ON CONFLICT (chat_id, kind) DO UPDATE SET word = excluded.word
	`)
	if _, err := r.db.Exec(query, chatID, string(kind), word); err != nil {
		return fmt.Errorf("failed to save exclusion: %v", err)
	}
	return nil
}

// Exclusion returns the last served word for (chat, kind), or empty
// string when no prompt has been served yet.
func (r *SessionRepository) Exclusion(chatID int64, kind models.SessionKind) (string, error) {
	var word string
	query := r.db.Rebind("SELECT word FROM exclusions WHERE chat_id = ? AND kind = ?")
	err := r.db.Get(&word, query, chatID, string(kind))
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get exclusion: %v", err)
	}
	return word, nil
}

// Sessions is a persistence handle scoped to one (chat, kind) pair,
// injected into a single engine instance.
type Sessions struct {
	repo   *SessionRepository
	chatID int64
	kind   models.SessionKind
}

// For returns a session handle scoped to the given chat and kind
func (r *SessionRepository) For(chatID int64, kind models.SessionKind) *Sessions {
	return &Sessions{repo: r, chatID: chatID, kind: kind}
}

// Save persists the in-flight state
func (s *Sessions) Save(state *models.SessionState) error {
	return s.repo.SaveSession(s.chatID, s.kind, state)
}

// Load returns the persisted state, or nil when there is none
func (s *Sessions) Load() (*models.SessionState, error) {
	return s.repo.LoadSession(s.chatID, s.kind)
}

// Clear removes the persisted state
func (s *Sessions) Clear() error {
	return s.repo.ClearSession(s.chatID, s.kind)
}

// SaveExclusion overwrites the exclusion token
func (s *Sessions) SaveExclusion(word string) error {
	return s.repo.SaveExclusion(s.chatID, s.kind, word)
}

// Exclusion returns the exclusion token, or empty string when unset
func (s *Sessions) Exclusion() (string, error) {
	return s.repo.Exclusion(s.chatID, s.kind)
}
