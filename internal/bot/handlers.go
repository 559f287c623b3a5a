package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/wordsaver/internal/api"
	"github.com/example/wordsaver/internal/excel"
	"github.com/example/wordsaver/internal/review"
	"github.com/example/wordsaver/pkg/models"
)

// handleUpdate routes one incoming Telegram update
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message == nil:
		return
	case update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message.Document != nil:
		b.handleDocument(ctx, update.Message)
	default:
		b.handleText(ctx, update.Message)
	}
}

// handleCommand dispatches bot commands
func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "register":
		b.handleRegister(ctx, message)
	case "login":
		b.handleLogin(ctx, message)
	case "logout":
		b.handleLogout(message)
	case "add":
		b.handleAdd(ctx, message)
	case "dictionary":
		view := b.dictViewFor(chatID)
		view.Page = 1
		b.renderDictionary(ctx, chatID, 0)
	case "quiz":
		b.startSession(ctx, chatID, models.KindQuiz)
	case "cards":
		b.startSession(ctx, chatID, models.KindFlashcard)
	case "export":
		b.handleExport(ctx, message)
	case "remind":
		b.handleRemind(message)
	default:
		b.send(chatID, "Unknown command. Use /help to see what I can do.")
	}
}

// handleStart greets a new chat
func (b *Bot) handleStart(message *tgbotapi.Message) {
	token, err := b.creds.Token(message.Chat.ID)
	if err != nil {
		log.Printf("Failed to read token for chat %d: %v", message.Chat.ID, err)
	}

	text := "Welcome to WordSaver! I help you collect words and practice them.\n\n"
	if token == "" {
		text += "Log in with /login email password or create an account with /register email password."
	} else {
		text += "You are logged in. Add words with /add, then practice with /quiz or /cards."
	}
	b.send(message.Chat.ID, text)
}

// handleHelp lists the available commands
func (b *Bot) handleHelp(message *tgbotapi.Message) {
	b.send(message.Chat.ID, `Commands:
/register email password - create an account
/login email password - log in
/logout - log out
/add word - translation - save a word pair
/dictionary - browse your saved words
/quiz - multiple-choice round
/cards - flashcard round (type the translation)
/export - download your dictionary as xlsx
/remind [hour|off] - daily review reminder
Send me an .xlsx file (word, translation columns) to import words.`)
}

// handleRegister creates an account and stores its token
func (b *Bot) handleRegister(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	email, password, ok := splitCredentials(message.CommandArguments())
	if !ok {
		b.send(chatID, "Usage: /register email password")
		return
	}

	token, err := b.gateway.Register(ctx, email, password)
	if err != nil {
		if errors.Is(err, api.ErrDuplicateAccount) {
			b.send(chatID, "An account with this email already exists. Try /login.")
			return
		}
		b.send(chatID, authErrorMessage(err))
		return
	}

	if err := b.creds.SaveToken(chatID, token); err != nil {
		log.Printf("Failed to save token for chat %d: %v", chatID, err)
		b.send(chatID, "Registered, but storing the session failed. Please /login.")
		return
	}
	b.send(chatID, "Account created and logged in. Add your first word with /add.")
}

// handleLogin exchanges credentials for a token and stores it
func (b *Bot) handleLogin(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	email, password, ok := splitCredentials(message.CommandArguments())
	if !ok {
		b.send(chatID, "Usage: /login email password")
		return
	}

	token, err := b.gateway.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, api.ErrUnauthenticated) {
			b.send(chatID, "Invalid email or password.")
			return
		}
		b.send(chatID, authErrorMessage(err))
		return
	}

	if err := b.creds.SaveToken(chatID, token); err != nil {
		log.Printf("Failed to save token for chat %d: %v", chatID, err)
		b.send(chatID, "Login succeeded but storing the session failed. Please try again.")
		return
	}
	b.send(chatID, "Logged in. Practice with /quiz or /cards.")
}

// handleLogout clears the stored token and tears down running sessions
func (b *Bot) handleLogout(message *tgbotapi.Message) {
	chatID := message.Chat.ID

	b.mu.Lock()
	for key, engine := range b.engines {
		if key.chatID == chatID {
			engine.Stop()
		}
	}
	b.mu.Unlock()

	if err := b.creds.ClearToken(chatID); err != nil {
		log.Printf("Failed to clear token for chat %d: %v", chatID, err)
	}
	b.send(chatID, "Logged out.")
}

// handleAdd saves a word-translation pair
func (b *Bot) handleAdd(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	token, ok := b.requireToken(chatID)
	if !ok {
		return
	}

	word, translation, ok := splitWordPair(message.CommandArguments())
	if !ok {
		b.send(chatID, "Usage: /add word - translation")
		return
	}

	if err := b.gateway.SaveWord(ctx, token, word, translation); err != nil {
		b.send(chatID, gatewayErrorMessage(err))
		return
	}
	b.send(chatID, fmt.Sprintf("Saved: %s — %s", word, translation))
}

// startSession starts or resumes a review round. Errors reach the user
// through the engine's event sink.
func (b *Bot) startSession(ctx context.Context, chatID int64, kind models.SessionKind) {
	engine := b.engine(chatID, kind)
	if err := engine.Start(ctx); err != nil {
		log.Printf("Failed to start %s session for chat %d: %v", kind, chatID, err)
	}
}

// renderDictionary sends or edits the paginated dictionary view
func (b *Bot) renderDictionary(ctx context.Context, chatID int64, messageID int) {
	token, ok := b.requireToken(chatID)
	if !ok {
		return
	}

	view := b.dictViewFor(chatID)
	page, err := b.gateway.Words(ctx, token, view.Page, b.config.DictionaryPageSize, view.SortParam, view.SortDirection)
	if err != nil {
		b.send(chatID, gatewayErrorMessage(err))
		return
	}

	if len(page.Words) == 0 {
		b.send(chatID, "Your dictionary is empty. Add words with /add.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Dictionary — page %d of %d (sorted by %s, %s)\n\n", page.Page, page.TotalPages, view.SortParam, view.SortDirection))
	for i, word := range page.Words {
		number := (page.Page-1)*b.config.DictionaryPageSize + i + 1
		sb.WriteString(fmt.Sprintf("%d. %s — %s  (✓%d ✗%d)\n", number, word.Word, word.Translation, word.Success, word.Failed))
	}

	keyboard := dictionaryKeyboard(view, page.TotalPages)
	if messageID != 0 {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, sb.String(), keyboard)
		if _, err := b.api.Send(edit); err != nil {
			log.Printf("Failed to edit dictionary message for chat %d: %v", chatID, err)
		}
		return
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Failed to send dictionary to chat %d: %v", chatID, err)
	}
}

// dictionaryKeyboard builds paging and sorting controls
func dictionaryKeyboard(view *dictView, totalPages int) tgbotapi.InlineKeyboardMarkup {
	var nav []tgbotapi.InlineKeyboardButton
	if view.Page > 1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev", fmt.Sprintf("dict:page:%d", view.Page-1)))
	}
	if view.Page < totalPages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("dict:page:%d", view.Page+1)))
	}

	sortRow := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("Sort: word", "dict:sort:"+models.SortByWord),
		tgbotapi.NewInlineKeyboardButtonData("Sort: added", "dict:sort:"+models.SortByAddedAt),
		tgbotapi.NewInlineKeyboardButtonData("Sort: success", "dict:sort:"+models.SortBySuccess),
	}
	dirLabel := "⬇️ desc"
	dirValue := models.SortDescending
	if view.SortDirection == models.SortDescending {
		dirLabel = "⬆️ asc"
		dirValue = models.SortAscending
	}
	dirRow := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData(dirLabel, "dict:dir:"+dirValue),
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, sortRow, dirRow)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// handleExport renders the dictionary to xlsx and sends it as a document
func (b *Bot) handleExport(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	token, ok := b.requireToken(chatID)
	if !ok {
		return
	}

	buf, err := excel.ExportDictionary(ctx, b.gateway, token)
	if err != nil {
		b.send(chatID, gatewayErrorMessage(err))
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "dictionary.xlsx", Bytes: buf.Bytes()})
	doc.Caption = "Your dictionary"
	if _, err := b.api.Send(doc); err != nil {
		log.Printf("Failed to send export to chat %d: %v", chatID, err)
		b.send(chatID, "Failed to send the export. Please try again.")
	}
}

// handleRemind updates the daily reminder settings
func (b *Bot) handleRemind(message *tgbotapi.Message) {
	chatID := message.Chat.ID
	arg := strings.TrimSpace(message.CommandArguments())

	switch {
	case arg == "off":
		if err := b.reminders.DisableReminder(chatID); err != nil {
			log.Printf("Failed to disable reminder for chat %d: %v", chatID, err)
			b.send(chatID, "Could not update the reminder. Please try again.")
			return
		}
		b.send(chatID, "Reminders disabled.")
	case arg == "":
		b.setReminder(chatID, b.config.DefaultReminderHour)
	default:
		hour, err := strconv.Atoi(arg)
		if err != nil || hour < 0 || hour > 23 {
			b.send(chatID, "Usage: /remind [hour 0-23|off]")
			return
		}
		b.setReminder(chatID, hour)
	}
}

func (b *Bot) setReminder(chatID int64, hour int) {
	if err := b.reminders.SetReminder(chatID, hour); err != nil {
		log.Printf("Failed to set reminder for chat %d: %v", chatID, err)
		b.send(chatID, "Could not update the reminder. Please try again.")
		return
	}
	b.send(chatID, fmt.Sprintf("Daily reminder set for %02d:00.", hour))
}

// handleDocument imports an uploaded xlsx workbook as word pairs
func (b *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	doc := message.Document
	if !strings.HasSuffix(strings.ToLower(doc.FileName), ".xlsx") {
		b.send(chatID, "I can only import .xlsx files with word and translation columns.")
		return
	}

	token, ok := b.requireToken(chatID)
	if !ok {
		return
	}

	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		log.Printf("Failed to resolve file URL for chat %d: %v", chatID, err)
		b.send(chatID, "Could not download the file. Please try again.")
		return
	}

	resp, err := http.Get(url)
	if err != nil {
		log.Printf("Failed to download file for chat %d: %v", chatID, err)
		b.send(chatID, "Could not download the file. Please try again.")
		return
	}
	defer resp.Body.Close()

	result, err := excel.ImportWords(ctx, b.gateway, token, resp.Body)
	if err != nil {
		b.send(chatID, fmt.Sprintf("Import failed: %v", err))
		return
	}

	text := fmt.Sprintf("Import finished: %d saved, %d skipped of %d rows.", result.Saved, result.Skipped, result.TotalProcessed)
	if len(result.Errors) > 0 {
		limit := len(result.Errors)
		if limit > 5 {
			limit = 5
		}
		text += "\nErrors:\n" + strings.Join(result.Errors[:limit], "\n")
	}
	b.send(chatID, text)
}

// handleText treats free text as a flashcard answer when a flashcard
// prompt is on screen; otherwise it nudges toward /help.
func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	engine := b.engine(chatID, models.KindFlashcard)
	if engine.State() == review.StatePresenting {
		if err := engine.Answer(ctx, message.Text); err != nil {
			log.Printf("Failed to record flashcard answer for chat %d: %v", chatID, err)
		}
		return
	}
	b.send(chatID, "Start a round with /cards or /quiz, or see /help.")
}

// handleCallback routes inline-keyboard presses
func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	parts := strings.Split(callback.Data, ":")

	// Acknowledge the press so the client stops the spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		log.Printf("Failed to ack callback for chat %d: %v", chatID, err)
	}

	switch {
	case len(parts) == 3 && parts[0] == "quiz" && parts[1] == "answer":
		b.handleQuizAnswer(ctx, chatID, parts[2])
	case len(parts) == 2 && parts[0] == "quiz" && parts[1] == "next":
		b.startSession(ctx, chatID, models.KindQuiz)
	case len(parts) == 2 && parts[0] == "cards" && parts[1] == "skip":
		if err := b.engine(chatID, models.KindFlashcard).Skip(ctx); err != nil {
			log.Printf("Failed to skip flashcard for chat %d: %v", chatID, err)
		}
	case len(parts) == 2 && parts[0] == "cards" && parts[1] == "reveal":
		if err := b.engine(chatID, models.KindFlashcard).Reveal(ctx); err != nil {
			log.Printf("Failed to reveal flashcard for chat %d: %v", chatID, err)
		}
	case len(parts) == 3 && parts[0] == "dict" && parts[1] == "page":
		if page, err := strconv.Atoi(parts[2]); err == nil && page > 0 {
			b.dictViewFor(chatID).Page = page
			b.renderDictionary(ctx, chatID, callback.Message.MessageID)
		}
	case len(parts) == 3 && parts[0] == "dict" && parts[1] == "sort":
		view := b.dictViewFor(chatID)
		view.SortParam = parts[2]
		view.Page = 1
		b.renderDictionary(ctx, chatID, callback.Message.MessageID)
	case len(parts) == 3 && parts[0] == "dict" && parts[1] == "dir":
		view := b.dictViewFor(chatID)
		view.SortDirection = parts[2]
		view.Page = 1
		b.renderDictionary(ctx, chatID, callback.Message.MessageID)
	}
}

// handleQuizAnswer resolves an option index against the current prompt
func (b *Bot) handleQuizAnswer(ctx context.Context, chatID int64, indexArg string) {
	engine := b.engine(chatID, models.KindQuiz)
	view := engine.Current()
	if view == nil {
		b.send(chatID, "This quiz has expired. Start a new one with /quiz.")
		return
	}

	index, err := strconv.Atoi(indexArg)
	if err != nil || index < 0 || index >= len(view.Choices) {
		return
	}

	if err := engine.Answer(ctx, view.Choices[index]); err != nil {
		log.Printf("Failed to record quiz answer for chat %d: %v", chatID, err)
	}
}

// requireToken fetches the chat's token, prompting for login when absent
func (b *Bot) requireToken(chatID int64) (string, bool) {
	token, err := b.creds.Token(chatID)
	if err != nil {
		log.Printf("Failed to read token for chat %d: %v", chatID, err)
		b.send(chatID, "Something went wrong reading your session. Please try again.")
		return "", false
	}
	if token == "" {
		b.send(chatID, "Please /login or /register first.")
		return "", false
	}
	return token, true
}

// splitCredentials parses "email password" command arguments
func splitCredentials(args string) (email, password string, ok bool) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// splitWordPair parses "/add word - translation", falling back to a
// plain two-field split when no dash separator is present.
func splitWordPair(args string) (word, translation string, ok bool) {
	args = strings.TrimSpace(args)
	if args == "" {
		return "", "", false
	}
	if strings.Contains(args, " - ") {
		parts := strings.SplitN(args, " - ", 2)
		word, translation = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	} else {
		parts := strings.SplitN(args, " ", 2)
		if len(parts) != 2 {
			return "", "", false
		}
		word, translation = parts[0], strings.TrimSpace(parts[1])
	}
	if word == "" || translation == "" {
		return "", "", false
	}
	return word, translation, true
}

// authErrorMessage maps login/registration failures to user text
func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, api.ErrNetworkUnreachable):
		return "Network error. Check your connection and try again."
	case errors.Is(err, api.ErrMalformedResponse):
		return "The server returned an unexpected response. Please try again."
	default:
		return err.Error()
	}
}

// gatewayErrorMessage maps general gateway failures to user text
func gatewayErrorMessage(err error) string {
	switch {
	case errors.Is(err, api.ErrUnauthenticated):
		return "Your session has expired. Please /login again."
	case errors.Is(err, api.ErrNetworkUnreachable):
		return "Network error. Check your connection and try again."
	case errors.Is(err, api.ErrMalformedResponse):
		return "The server returned an unexpected response. Please try again."
	default:
		return err.Error()
	}
}
