package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Reminder holds one chat's review-reminder settings
type Reminder struct {
	ChatID  int64 `db:"chat_id"`
	Hour    int   `db:"hour"`
	Enabled bool  `db:"enabled"`
}

// ReminderRepository handles review-reminder settings
type ReminderRepository struct {
	db *sqlx.DB
}

// NewReminderRepository creates a new repository instance
func NewReminderRepository(db *sqlx.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// SetReminder enables reminders for a chat at the given hour (0-23)
func (r *ReminderRepository) SetReminder(chatID int64, hour int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("reminder hour must be between 0 and 23, got %d", hour)
	}
	query := r.db.Rebind(`
		INSERT INTO reminders (chat_id, hour, enabled) VALUES (?, ?, TRUE)
		ON CONFLICT (chat_id) DO UPDATE SET hour = excluded.hour, enabled = TRUE
	`)
	if _, err := r.db.Exec(query, chatID, hour); err != nil {
		return fmt.Errorf("failed to set reminder: %v", err)
	}
	return nil
}

// DisableReminder turns reminders off for a chat
func (r *ReminderRepository) DisableReminder(chatID int64) error {
	query := r.db.Rebind("UPDATE reminders SET enabled = FALSE WHERE chat_id = ?")
	if _, err := r.db.Exec(query, chatID); err != nil {
		return fmt.Errorf("failed to disable reminder: %v", err)
	}
	return nil
}

// ChatsForHour returns the chats with reminders enabled at the given hour
func (r *ReminderRepository) ChatsForHour(hour int) ([]int64, error) {
	var chats []int64
	query := r.db.Rebind("SELECT chat_id FROM reminders WHERE enabled = TRUE AND hour = ?")
	if err := r.db.Select(&chats, query, hour); err != nil {
		return nil, fmt.Errorf("failed to get chats for hour: %v", err)
	}
	return chats, nil
}
