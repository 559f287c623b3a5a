package scheduler

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/wordsaver/internal/store"
)

// Default window within which reminders may be sent
const (
	DefaultReminderStartHour = 8
	DefaultReminderEndHour   = 22
)

// Notifier interface for sending review reminders
type Notifier interface {
	SendReminder(chatID int64) error
}

// Scheduler manages the hourly review-reminder job
type Scheduler struct {
	scheduler *gocron.Scheduler
	reminders *store.ReminderRepository
	notifier  Notifier
}

// New creates a new scheduler instance
func New(reminders *store.ReminderRepository, notifier Notifier) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.Local),
		reminders: reminders,
		notifier:  notifier,
	}
}

// Start begins running the reminder job
func (s *Scheduler) Start() {
	s.scheduler.Every(1).Hour().Do(s.checkAndSendReminders)
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled jobs
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// checkAndSendReminders notifies every chat whose reminder hour matches
// the current hour, if that hour falls inside the allowed window.
func (s *Scheduler) checkAndSendReminders() {
	currentHour := time.Now().Hour()

	startHour := hourFromEnv("REMINDER_START_HOUR", DefaultReminderStartHour)
	endHour := hourFromEnv("REMINDER_END_HOUR", DefaultReminderEndHour)

	if currentHour < startHour || currentHour > endHour {
		log.Printf("Current hour %d is outside reminder hours (%d-%d), skipping reminders",
			currentHour, startHour, endHour)
		return
	}

	chats, err := s.reminders.ChatsForHour(currentHour)
	if err != nil {
		log.Printf("Error getting chats for reminders: %v", err)
		return
	}

	for _, chatID := range chats {
		if err := s.notifier.SendReminder(chatID); err != nil {
			log.Printf("Error sending reminder to chat %d: %v", chatID, err)
		}
	}
}

// hourFromEnv reads an hour override from the environment, falling back
// to the default when unset or out of range.
func hourFromEnv(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if h, err := strconv.Atoi(value); err == nil && h >= 0 && h <= 23 {
		return h
	}
	return fallback
}
