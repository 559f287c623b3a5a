package bot

import (
	"errors"
	"fmt"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/example/wordsaver/internal/api"
	"github.com/example/wordsaver/internal/review"
	"github.com/example/wordsaver/pkg/models"
)

// sessionEvents renders engine notifications for one (chat, kind) pair.
// It implements review.Events; ticks may arrive from timer goroutines.
type sessionEvents struct {
	bot    *Bot
	chatID int64
	kind   models.SessionKind

	mu             sync.Mutex
	countdownMsgID int
}

// PromptShown renders a fresh or resumed prompt
func (e *sessionEvents) PromptShown(view review.View) {
	e.mu.Lock()
	e.countdownMsgID = 0
	e.mu.Unlock()

	prefix := ""
	if view.Resumed {
		prefix = "Resuming where you left off.\n\n"
	}

	if view.Kind == models.KindQuiz {
		buttons := lo.Map(view.Choices, func(choice string, i int) tgbotapi.InlineKeyboardButton {
			return tgbotapi.NewInlineKeyboardButtonData(choice, fmt.Sprintf("quiz:answer:%d", i))
		})
		msg := tgbotapi.NewMessage(e.chatID, fmt.Sprintf("%sTranslate: %s", prefix, view.Prompt.Word))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(lo.Chunk(buttons, 2)...)
		e.deliver(msg)
		return
	}

	msg := tgbotapi.NewMessage(e.chatID, fmt.Sprintf("%sWord: %s\n\nType the translation.", prefix, view.Prompt.Word))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Skip", "cards:skip"),
			tgbotapi.NewInlineKeyboardButtonData("Show translation", "cards:reveal"),
		),
	)
	e.deliver(msg)
}

// CountdownTick shows the remaining seconds before the next prompt,
// editing a single message in place.
func (e *sessionEvents) CountdownTick(secondsLeft int) {
	text := fmt.Sprintf("Next word in %d…", secondsLeft)

	e.mu.Lock()
	msgID := e.countdownMsgID
	e.mu.Unlock()

	if msgID == 0 {
		sent, err := e.bot.api.Send(tgbotapi.NewMessage(e.chatID, text))
		if err != nil {
			log.Printf("Failed to send countdown to chat %d: %v", e.chatID, err)
			return
		}
		e.mu.Lock()
		e.countdownMsgID = sent.MessageID
		e.mu.Unlock()
		return
	}

	if _, err := e.bot.api.Send(tgbotapi.NewEditMessageText(e.chatID, msgID, text)); err != nil {
		log.Printf("Failed to edit countdown for chat %d: %v", e.chatID, err)
	}
}

// AnswerChecked renders the verdict for the answered prompt
func (e *sessionEvents) AnswerChecked(result review.Result) {
	switch {
	case result.Revealed:
		e.bot.send(e.chatID, fmt.Sprintf("Translation: %s", result.CorrectAnswer))
	case result.Correct:
		e.bot.send(e.chatID, "✅ Correct!")
	case e.kind == models.KindQuiz:
		msg := tgbotapi.NewMessage(e.chatID, fmt.Sprintf("❌ Wrong. Correct answer: %s", result.CorrectAnswer))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Next word", "quiz:next"),
			),
		)
		e.deliver(msg)
	default:
		e.bot.send(e.chatID, fmt.Sprintf("❌ Incorrect. Correct answer: %s", result.CorrectAnswer))
	}
}

// SessionError translates engine errors into user guidance. The
// insufficient-content case points at the word-entry flow.
func (e *sessionEvents) SessionError(err error) {
	switch {
	case errors.Is(err, api.ErrInsufficientContent):
		e.bot.send(e.chatID, "Not enough words saved for a round yet. Add a few with /add first.")
	case errors.Is(err, api.ErrUnauthenticated):
		e.bot.send(e.chatID, "Please /login or /register first.")
	case errors.Is(err, api.ErrNetworkUnreachable):
		e.bot.send(e.chatID, "Network error. Please try again.")
	case errors.Is(err, api.ErrMalformedResponse):
		e.bot.send(e.chatID, "The server returned an unexpected response. Please try again.")
	default:
		e.bot.send(e.chatID, err.Error())
	}
}

func (e *sessionEvents) deliver(msg tgbotapi.MessageConfig) {
	if _, err := e.bot.api.Send(msg); err != nil {
		log.Printf("Failed to send message to chat %d: %v", e.chatID, err)
	}
}
