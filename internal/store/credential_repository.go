package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CredentialRepository handles the local bearer-token cache
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository creates a new repository instance
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// SaveToken stores the token for a chat, replacing any previous one
func (r *CredentialRepository) SaveToken(chatID int64, token string) error {
	query := r.db.Rebind(`
		INSERT INTO credentials (chat_id, token, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (chat_id) DO UPDATE SET token = excluded.token, updated_at = CURRENT_TIMESTAMP
	`)
	if _, err := r.db.Exec(query, chatID, token); err != nil {
		return fmt.Errorf("failed to save token: %v", err)
	}
	return nil
}

// Token returns the stored token for a chat, or empty string if none
func (r *CredentialRepository) Token(chatID int64) (string, error) {
	var token string
	query := r.db.Rebind("SELECT token FROM credentials WHERE chat_id = ?")
	err := r.db.Get(&token, query, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %v", err)
	}
	return token, nil
}

// ClearToken removes the stored token for a chat
func (r *CredentialRepository) ClearToken(chatID int64) error {
	query := r.db.Rebind("DELETE FROM credentials WHERE chat_id = ?")
	if _, err := r.db.Exec(query, chatID); err != nil {
		return fmt.Errorf("failed to clear token: %v", err)
	}
	return nil
}

// Credentials is a handle scoped to one chat, injected into the engine
// and the gateway callers so no package-level auth state exists.
type Credentials struct {
	repo   *CredentialRepository
	chatID int64
}

// For returns a credential handle scoped to the given chat
func (r *CredentialRepository) For(chatID int64) *Credentials {
	return &Credentials{repo: r, chatID: chatID}
}

// Token returns the chat's stored token, or empty string if none
func (c *Credentials) Token() (string, error) {
	return c.repo.Token(c.chatID)
}

// Save replaces the chat's stored token
func (c *Credentials) Save(token string) error {
	return c.repo.SaveToken(c.chatID, token)
}

// Clear removes the chat's stored token
func (c *Credentials) Clear() error {
	return c.repo.ClearToken(c.chatID)
}
