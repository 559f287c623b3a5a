package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/wordsaver/internal/api"
	"github.com/example/wordsaver/internal/review"
	"github.com/example/wordsaver/internal/scheduler"
	"github.com/example/wordsaver/internal/store"
	"github.com/example/wordsaver/pkg/models"
)

// engineKey identifies one review session: a chat runs at most one
// session per kind.
type engineKey struct {
	chatID int64
	kind   models.SessionKind
}

// dictView tracks a chat's position in the paginated dictionary
type dictView struct {
	Page          int
	SortParam     string
	SortDirection string
}

// Bot represents the Telegram client application
type Bot struct {
	api       *tgbotapi.BotAPI
	token     string
	gateway   *api.Client
	creds     *store.CredentialRepository
	sessions  *store.SessionRepository
	reminders *store.ReminderRepository
	config    *BotConfig

	schedulerEnabled bool
	scheduler        *scheduler.Scheduler

	mu        sync.Mutex
	engines   map[engineKey]*review.Engine
	dictViews map[int64]*dictView
}

// New creates a new bot instance
func New(gateway *api.Client, creds *store.CredentialRepository, sessions *store.SessionRepository, reminders *store.ReminderRepository) (*Bot, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	return &Bot{
		token:            token,
		gateway:          gateway,
		creds:            creds,
		sessions:         sessions,
		reminders:        reminders,
		config:           DefaultConfig(),
		schedulerEnabled: os.Getenv("ENABLE_SCHEDULER") != "false",
		engines:          make(map[engineKey]*review.Engine),
		dictViews:        make(map[int64]*dictView),
	}, nil
}

// Start connects to Telegram and processes updates until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	botAPI, err := tgbotapi.NewBotAPI(b.token)
	if err != nil {
		return fmt.Errorf("unable to create bot: %v", err)
	}
	b.api = botAPI
	log.Printf("Authorized on account %s", botAPI.Self.UserName)

	if b.schedulerEnabled {
		b.scheduler = scheduler.New(b.reminders, b)
		b.scheduler.Start()
		log.Println("Reminder scheduler started")
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// Stop gracefully stops the bot
func (b *Bot) Stop(ctx context.Context) error {
	if b.scheduler != nil {
		b.scheduler.Stop()
	}
	b.mu.Lock()
	for _, engine := range b.engines {
		engine.Stop()
	}
	b.mu.Unlock()
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
	log.Println("Bot stopped")
	return nil
}

// SendReminder implements the scheduler.Notifier interface
func (b *Bot) SendReminder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "Time to review your words! Start a round with /quiz or /cards.")
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send reminder to chat %d: %v", chatID, err)
	}
	return nil
}

// engine returns the review engine for (chat, kind), creating it with
// chat-scoped credential and session handles on first use.
func (b *Bot) engine(chatID int64, kind models.SessionKind) *review.Engine {
	key := engineKey{chatID: chatID, kind: kind}

	b.mu.Lock()
	defer b.mu.Unlock()
	if engine, ok := b.engines[key]; ok {
		return engine
	}

	events := &sessionEvents{bot: b, chatID: chatID, kind: kind}
	engine := review.New(kind, b.gateway, b.sessions.For(chatID, kind), b.creds.For(chatID), events)
	b.engines[key] = engine
	return engine
}

// dictViewFor returns the chat's dictionary cursor, creating a default one
func (b *Bot) dictViewFor(chatID int64) *dictView {
	b.mu.Lock()
	defer b.mu.Unlock()
	if view, ok := b.dictViews[chatID]; ok {
		return view
	}
	view := &dictView{Page: 1, SortParam: models.SortByWord, SortDirection: models.SortAscending}
	b.dictViews[chatID] = view
	return view
}

// send delivers a plain text message, logging delivery failures
func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Failed to send message to chat %d: %v", chatID, err)
	}
}
