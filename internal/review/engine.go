package review

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/example/wordsaver/internal/api"
	"github.com/example/wordsaver/pkg/models"
)

// State represents the engine's position in the prompt lifecycle
type State string

const (
	// StateIdle means no session is running
	StateIdle State = "idle"
	// StateLoading means a prompt fetch is in flight
	StateLoading State = "loading"
	// StateFailed means the last fetch failed; Start must be retried
	StateFailed State = "failed"
	// StatePresenting means a prompt is on screen awaiting an answer
	StatePresenting State = "presenting"
	// StateAnswered means the answer was recorded; a countdown may be running
	StateAnswered State = "answered"
)

const countdownTicks = 3

// Gateway is the subset of remote operations the engine consumes
type Gateway interface {
	FetchQuizPrompt(ctx context.Context, token, excludeWord string) (models.Prompt, error)
	FetchFlashcardWord(ctx context.Context, token string) (models.Prompt, error)
	ReportOutcome(ctx context.Context, token string, promptID int, isCorrect bool) error
}

// SessionStore persists the single in-flight prompt for the engine's
// session kind, plus the exclusion token of the last served prompt.
type SessionStore interface {
	Save(state *models.SessionState) error
	Load() (*models.SessionState, error)
	Clear() error
	SaveExclusion(word string) error
	Exclusion() (string, error)
}

// CredentialSource supplies the bearer token for gateway calls
type CredentialSource interface {
	Token() (string, error)
}

// View is the presentable snapshot of the current prompt
type View struct {
	Kind    models.SessionKind
	Prompt  models.Prompt
	Choices []string // quiz mode only, in on-screen order
	Resumed bool     // true when restored from a previous run
}

// Result is the verdict for one answered prompt
type Result struct {
	Correct       bool
	CorrectAnswer string
	Revealed      bool // flashcard reveal intent, counted as incorrect
	WillAdvance   bool // a countdown toward the next prompt has started
}

// Events receives engine notifications; the presentation layer renders
// them. Callbacks may arrive from timer goroutines.
type Events interface {
	PromptShown(view View)
	CountdownTick(secondsLeft int)
	AnswerChecked(result Result)
	SessionError(err error)
}

// Engine drives the lifecycle of one review session: fetch a prompt,
// present it, record the answer, report the outcome and advance after a
// countdown. One engine instance serves one (chat, kind) pair and holds
// at most one prompt at a time.
type Engine struct {
	kind     models.SessionKind
	gateway  Gateway
	sessions SessionStore
	creds    CredentialSource
	events   Events

	mu              sync.Mutex
	busy            bool
	state           State
	current         *models.SessionState
	showTranslation bool
	timer           *time.Timer
	ctx             context.Context
	rnd             *rand.Rand

	tickInterval time.Duration
	advanceDelay time.Duration
}

// New creates an engine for one session kind. The credential and
// session handles must already be scoped to the owning chat.
func New(kind models.SessionKind, gateway Gateway, sessions SessionStore, creds CredentialSource, events Events) *Engine {
	return &Engine{
		kind:         kind,
		gateway:      gateway,
		sessions:     sessions,
		creds:        creds,
		events:       events,
		state:        StateIdle,
		ctx:          context.Background(),
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		tickInterval: time.Second,
		advanceDelay: countdownTicks * time.Second,
	}
}

// State returns the engine's current lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current returns the view of the prompt on screen, or nil
func (e *Engine) Current() *View {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	view := e.viewLocked(false)
	return &view
}

// ShowTranslation reports whether the flashcard translation is revealed
func (e *Engine) ShowTranslation() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.showTranslation
}

// Start begins or resumes the session. A persisted unanswered prompt is
// restored verbatim, keeping its choice order; a persisted answered
// prompt is stale and discarded. Otherwise a fresh prompt is fetched,
// excluding the previously served word. Calling Start while a fetch is
// already in flight is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil
	}
	e.busy = true
	e.ctx = ctx
	e.cancelTimerLocked()
	e.mu.Unlock()

	err := e.load(ctx)

	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
	return err
}

// Stop tears the session down: the countdown is canceled and in-memory
// state dropped. Persisted state is kept so the prompt can resume later.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelTimerLocked()
	e.state = StateIdle
	e.current = nil
	e.showTranslation = false
}

// Answer records the user's answer for the current prompt. Quiz answers
// are compared as exact option strings; flashcard answers
// case-insensitively without trimming. The outcome is reported to the
// server best-effort: a reporting failure is surfaced through the event
// sink but never blocks the advance sequence.
func (e *Engine) Answer(ctx context.Context, answer string) error {
	e.mu.Lock()
	if e.state != StatePresenting || e.current == nil || e.current.Answered {
		e.mu.Unlock()
		return nil
	}
	prompt := e.current.Prompt
	correct := checkAnswer(prompt, answer)
	e.current.Answered = true
	e.state = StateAnswered
	e.ctx = ctx
	persist := *e.current
	e.mu.Unlock()

	if err := e.sessions.Save(&persist); err != nil {
		log.Printf("review: failed to persist answered flag: %v", err)
	}

	go e.report(prompt.ID, correct)

	result := Result{Correct: correct, CorrectAnswer: prompt.Answer()}
	switch {
	case e.kind == models.KindQuiz && correct:
		result.WillAdvance = true
		e.events.AnswerChecked(result)
		e.startCountdown()
	case e.kind == models.KindQuiz:
		// Incorrect quiz answers stay on screen with the right option
		// revealed until the user advances manually
		e.events.AnswerChecked(result)
	default:
		result.WillAdvance = true
		e.events.AnswerChecked(result)
		e.startDelay()
	}
	return nil
}

// Skip gives up on the current flashcard without answering. The outcome
// is reported as incorrect and the next prompt loads immediately.
func (e *Engine) Skip(ctx context.Context) error {
	e.mu.Lock()
	if e.kind != models.KindFlashcard || e.state != StatePresenting || e.current == nil || e.current.Answered {
		e.mu.Unlock()
		return nil
	}
	promptID := e.current.Prompt.ID
	e.current.Answered = true
	e.state = StateAnswered
	if e.busy {
		e.mu.Unlock()
		return nil
	}
	e.busy = true
	e.mu.Unlock()

	go e.report(promptID, false)

	if err := e.sessions.Clear(); err != nil {
		log.Printf("review: failed to clear session on skip: %v", err)
	}

	err := e.load(ctx)

	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
	return err
}

// Reveal shows the flashcard translation. The outcome is reported as
// incorrect and the usual auto-advance countdown starts.
func (e *Engine) Reveal(ctx context.Context) error {
	e.mu.Lock()
	if e.kind != models.KindFlashcard || e.state != StatePresenting || e.current == nil || e.current.Answered {
		e.mu.Unlock()
		return nil
	}
	prompt := e.current.Prompt
	e.current.Answered = true
	e.showTranslation = true
	e.state = StateAnswered
	persist := *e.current
	e.ctx = ctx
	e.mu.Unlock()

	if err := e.sessions.Save(&persist); err != nil {
		log.Printf("review: failed to persist answered flag: %v", err)
	}

	go e.report(prompt.ID, false)

	e.events.AnswerChecked(Result{
		Correct:       false,
		CorrectAnswer: prompt.Translation,
		Revealed:      true,
		WillAdvance:   true,
	})
	e.startDelay()
	return nil
}

// load resolves the next prompt: resume, or fetch with exclusion.
// The caller owns the busy flag.
func (e *Engine) load(ctx context.Context) error {
	token, err := e.creds.Token()
	if err != nil {
		e.failLoad(err)
		return err
	}
	if token == "" {
		e.failLoad(api.ErrUnauthenticated)
		return api.ErrUnauthenticated
	}

	saved, err := e.sessions.Load()
	if err != nil {
		log.Printf("review: failed to load persisted session: %v", err)
	}
	if saved != nil && !saved.Answered {
		e.mu.Lock()
		e.state = StatePresenting
		e.current = saved
		e.showTranslation = false
		view := e.viewLocked(true)
		e.mu.Unlock()
		e.events.PromptShown(view)
		return nil
	}
	if saved != nil && saved.Answered {
		// Answered before the process died: the outcome report is lost,
		// treat the row as stale and fetch fresh
		if err := e.sessions.Clear(); err != nil {
			log.Printf("review: failed to discard stale session: %v", err)
		}
	}

	e.mu.Lock()
	e.state = StateLoading
	e.current = nil
	e.showTranslation = false
	e.mu.Unlock()

	var prompt models.Prompt
	if e.kind == models.KindQuiz {
		exclude, err := e.sessions.Exclusion()
		if err != nil {
			log.Printf("review: failed to read exclusion token: %v", err)
		}
		prompt, err = e.gateway.FetchQuizPrompt(ctx, token, exclude)
		if err != nil {
			e.failLoad(err)
			return err
		}
	} else {
		prompt, err = e.gateway.FetchFlashcardWord(ctx, token)
		if err != nil {
			e.failLoad(err)
			return err
		}
	}

	state := &models.SessionState{Prompt: prompt}
	if e.kind == models.KindQuiz {
		choices := append([]string{prompt.TrueTranslation}, prompt.Decoys...)
		e.rnd.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})
		state.ShuffledChoices = choices
	}

	if err := e.sessions.Save(state); err != nil {
		log.Printf("review: failed to persist session: %v", err)
	}
	if e.kind == models.KindQuiz {
		if err := e.sessions.SaveExclusion(prompt.Word); err != nil {
			log.Printf("review: failed to persist exclusion token: %v", err)
		}
	}

	e.mu.Lock()
	e.state = StatePresenting
	e.current = state
	view := e.viewLocked(false)
	e.mu.Unlock()
	e.events.PromptShown(view)
	return nil
}

// failLoad records a failed fetch and surfaces the error
func (e *Engine) failLoad(err error) {
	e.mu.Lock()
	e.state = StateFailed
	e.current = nil
	e.mu.Unlock()
	e.events.SessionError(err)
}

// report sends the outcome to the scoring endpoint. Fire-and-forget:
// nothing is retained or retried on failure.
func (e *Engine) report(promptID int, correct bool) {
	token, err := e.creds.Token()
	if err != nil || token == "" {
		log.Printf("review: no token available to report outcome for prompt %d", promptID)
		return
	}
	if err := e.gateway.ReportOutcome(context.Background(), token, promptID, correct); err != nil {
		log.Printf("review: failed to report outcome for prompt %d: %v", promptID, err)
		e.events.SessionError(err)
	}
}

// startCountdown runs the quiz auto-advance: discrete one-second ticks
// surfaced to the UI, then the next prompt.
func (e *Engine) startCountdown() {
	e.events.CountdownTick(countdownTicks)
	e.scheduleTick(countdownTicks - 1)
}

func (e *Engine) scheduleTick(remaining int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelTimerLocked()
	if e.state != StateAnswered {
		return
	}
	e.timer = time.AfterFunc(e.tickInterval, func() {
		if remaining > 0 {
			e.events.CountdownTick(remaining)
			e.scheduleTick(remaining - 1)
			return
		}
		e.advance()
	})
}

// startDelay runs the flashcard auto-advance: one opaque delay
func (e *Engine) startDelay() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelTimerLocked()
	if e.state != StateAnswered {
		return
	}
	e.timer = time.AfterFunc(e.advanceDelay, e.advance)
}

// advance fires when the countdown elapses: the answered state is
// cleared and the cycle re-enters Loading.
func (e *Engine) advance() {
	e.mu.Lock()
	if e.state != StateAnswered || e.busy {
		e.mu.Unlock()
		return
	}
	e.busy = true
	ctx := e.ctx
	e.mu.Unlock()

	if err := e.sessions.Clear(); err != nil {
		log.Printf("review: failed to clear session on advance: %v", err)
	}

	if err := e.load(ctx); err != nil {
		log.Printf("review: failed to load next prompt: %v", err)
	}

	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

// cancelTimerLocked stops a pending countdown so a stale tick can never
// fire against a superseded prompt. Caller holds e.mu.
func (e *Engine) cancelTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// viewLocked builds the presentable view. Caller holds e.mu.
func (e *Engine) viewLocked(resumed bool) View {
	return View{
		Kind:    e.kind,
		Prompt:  e.current.Prompt,
		Choices: e.current.ShuffledChoices,
		Resumed: resumed,
	}
}

// checkAnswer computes correctness for an answer. Quiz options must
// match the true translation exactly; flashcard input is matched
// case-insensitively and deliberately not trimmed.
func checkAnswer(prompt models.Prompt, answer string) bool {
	if prompt.Kind == models.KindQuiz {
		return answer == prompt.TrueTranslation
	}
	return strings.EqualFold(answer, prompt.Translation)
}
