package review

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wordsaver/internal/api"
	"github.com/example/wordsaver/pkg/models"
)

type fetchCall struct {
	token   string
	exclude string
}

type reportCall struct {
	token    string
	promptID int
	correct  bool
}

type fakeGateway struct {
	mu       sync.Mutex
	prompts  []models.Prompt
	fetchErr error
	fetches  []fetchCall
	reports  []reportCall
	block    chan struct{} // when set, fetches wait until closed
}

func (g *fakeGateway) FetchQuizPrompt(ctx context.Context, token, excludeWord string) (models.Prompt, error) {
	return g.fetch(token, excludeWord)
}

func (g *fakeGateway) FetchFlashcardWord(ctx context.Context, token string) (models.Prompt, error) {
	return g.fetch(token, "")
}

func (g *fakeGateway) fetch(token, exclude string) (models.Prompt, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches = append(g.fetches, fetchCall{token: token, exclude: exclude})
	if g.fetchErr != nil {
		return models.Prompt{}, g.fetchErr
	}
	idx := len(g.fetches) - 1
	if idx >= len(g.prompts) {
		idx = len(g.prompts) - 1
	}
	return g.prompts[idx], nil
}

func (g *fakeGateway) ReportOutcome(ctx context.Context, token string, promptID int, isCorrect bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reports = append(g.reports, reportCall{token: token, promptID: promptID, correct: isCorrect})
	return nil
}

func (g *fakeGateway) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.fetches)
}

func (g *fakeGateway) fetchAt(i int) fetchCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches[i]
}

func (g *fakeGateway) reportCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reports)
}

func (g *fakeGateway) reportAt(i int) reportCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reports[i]
}

type fakeSessions struct {
	mu        sync.Mutex
	state     *models.SessionState
	exclusion string
	saves     int
}

func (s *fakeSessions) Save(state *models.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	s.state = &copied
	s.saves++
	return nil
}

func (s *fakeSessions) Load() (*models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	copied := *s.state
	return &copied, nil
}

func (s *fakeSessions) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nil
	return nil
}

func (s *fakeSessions) SaveExclusion(word string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exclusion = word
	return nil
}

func (s *fakeSessions) Exclusion() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exclusion, nil
}

func (s *fakeSessions) saved() *models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	copied := *s.state
	return &copied
}

func (s *fakeSessions) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *fakeSessions) currentExclusion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exclusion
}

type fakeCreds struct {
	token string
}

func (c *fakeCreds) Token() (string, error) {
	return c.token, nil
}

type fakeEvents struct {
	mu      sync.Mutex
	views   []View
	ticks   []int
	results []Result
	errs    []error
}

func (e *fakeEvents) PromptShown(view View) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.views = append(e.views, view)
}

func (e *fakeEvents) CountdownTick(secondsLeft int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticks = append(e.ticks, secondsLeft)
}

func (e *fakeEvents) AnswerChecked(result Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, result)
}

func (e *fakeEvents) SessionError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *fakeEvents) lastView() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.views[len(e.views)-1]
}

func (e *fakeEvents) viewCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.views)
}

func (e *fakeEvents) tickValues() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.ticks...)
}

func (e *fakeEvents) lastResult() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results[len(e.results)-1]
}

func (e *fakeEvents) resultCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.results)
}

func (e *fakeEvents) errorCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func quizPrompt(id int, word, trueTranslation string, decoys ...string) models.Prompt {
	return models.Prompt{
		Kind:            models.KindQuiz,
		ID:              id,
		Word:            word,
		TrueTranslation: trueTranslation,
		Decoys:          decoys,
	}
}

func flashcardPrompt(id int, word, translation string) models.Prompt {
	return models.Prompt{
		Kind:        models.KindFlashcard,
		ID:          id,
		Word:        word,
		Translation: translation,
	}
}

func newTestEngine(kind models.SessionKind, gateway *fakeGateway) (*Engine, *fakeSessions, *fakeEvents) {
	sessions := &fakeSessions{}
	events := &fakeEvents{}
	engine := New(kind, gateway, sessions, &fakeCreds{token: "abc"}, events)
	engine.tickInterval = 5 * time.Millisecond
	engine.advanceDelay = 15 * time.Millisecond
	return engine, sessions, events
}

func TestStartPresentsShuffledQuizPrompt(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		quizPrompt(1, "lake", "озеро", "река", "море", "гора"),
	}}
	engine, sessions, events := newTestEngine(models.KindQuiz, gateway)

	require.NoError(t, engine.Start(context.Background()))

	require.Equal(t, StatePresenting, engine.State())
	view := events.lastView()
	assert.False(t, view.Resumed)
	assert.ElementsMatch(t, []string{"озеро", "река", "море", "гора"}, view.Choices)

	saved := sessions.saved()
	require.NotNil(t, saved)
	assert.False(t, saved.Answered)
	assert.Equal(t, view.Choices, saved.ShuffledChoices)
	assert.Equal(t, "lake", sessions.currentExclusion())
}

func TestResumeKeepsChoiceOrder(t *testing.T) {
	gateway := &fakeGateway{}
	engine, sessions, events := newTestEngine(models.KindQuiz, gateway)

	order := []string{"гора", "озеро", "река", "море"}
	require.NoError(t, sessions.Save(&models.SessionState{
		Prompt:          quizPrompt(1, "lake", "озеро", "река", "море", "гора"),
		ShuffledChoices: order,
	}))

	require.NoError(t, engine.Start(context.Background()))

	assert.Equal(t, 0, gateway.fetchCount(), "resume must not fetch")
	view := events.lastView()
	assert.True(t, view.Resumed)
	assert.Equal(t, order, view.Choices, "choice order must survive resume untouched")
}

func TestStaleAnsweredStateIsDiscarded(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		quizPrompt(2, "river", "река", "озеро", "море", "гора"),
	}}
	engine, sessions, events := newTestEngine(models.KindQuiz, gateway)

	require.NoError(t, sessions.Save(&models.SessionState{
		Prompt:          quizPrompt(1, "lake", "озеро", "река", "море", "гора"),
		ShuffledChoices: []string{"озеро", "река", "море", "гора"},
		Answered:        true,
	}))

	require.NoError(t, engine.Start(context.Background()))

	require.Equal(t, 1, gateway.fetchCount(), "stale state must trigger a fresh fetch")
	assert.Equal(t, "river", events.lastView().Prompt.Word)
	saved := sessions.saved()
	require.NotNil(t, saved)
	assert.False(t, saved.Answered)
	assert.Equal(t, 2, saved.Prompt.ID)
}

func TestStartWithoutTokenFailsFast(t *testing.T) {
	gateway := &fakeGateway{}
	sessions := &fakeSessions{}
	events := &fakeEvents{}
	engine := New(models.KindQuiz, gateway, sessions, &fakeCreds{token: ""}, events)

	err := engine.Start(context.Background())

	require.ErrorIs(t, err, api.ErrUnauthenticated)
	assert.Equal(t, 0, gateway.fetchCount(), "no network call without a token")
	assert.Equal(t, StateFailed, engine.State())
	assert.Equal(t, 1, events.errorCount())
}

func TestLoadFailureSurfacesError(t *testing.T) {
	gateway := &fakeGateway{fetchErr: api.ErrInsufficientContent}
	engine, _, events := newTestEngine(models.KindQuiz, gateway)

	err := engine.Start(context.Background())

	require.ErrorIs(t, err, api.ErrInsufficientContent)
	assert.Equal(t, StateFailed, engine.State())
	assert.Equal(t, 1, events.errorCount())
	assert.Nil(t, engine.Current())
}

func TestBusyGuardAllowsSingleFetch(t *testing.T) {
	gateway := &fakeGateway{
		prompts: []models.Prompt{quizPrompt(1, "lake", "озеро", "река", "море", "гора")},
		block:   make(chan struct{}),
	}
	engine, sessions, _ := newTestEngine(models.KindQuiz, gateway)

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_ = engine.Start(context.Background())
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(gateway.block)
	wg.Wait()

	assert.Equal(t, 1, gateway.fetchCount(), "duplicate Start must not race a second fetch")
	assert.Equal(t, 1, sessions.saveCount(), "exactly one persisted state write")
}

func TestQuizCorrectAnswerReportsAndAdvances(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		quizPrompt(1, "lake", "озеро", "река", "море", "гора"),
		quizPrompt(2, "sea", "море", "озеро", "река", "гора"),
	}}
	engine, sessions, events := newTestEngine(models.KindQuiz, gateway)

	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.Answer(context.Background(), "озеро"))

	result := events.lastResult()
	assert.True(t, result.Correct)
	assert.True(t, result.WillAdvance)

	require.Eventually(t, func() bool { return gateway.reportCount() == 1 }, time.Second, time.Millisecond)
	report := gateway.reportAt(0)
	assert.Equal(t, reportCall{token: "abc", promptID: 1, correct: true}, report)

	// Countdown runs its three ticks and the next prompt loads
	require.Eventually(t, func() bool { return gateway.fetchCount() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{3, 2, 1}, events.tickValues())
	require.Eventually(t, func() bool { return events.viewCount() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, "sea", events.lastView().Prompt.Word)
	assert.Equal(t, "lake", gateway.fetchAt(1).exclude, "next fetch must exclude the previous word")

	saved := sessions.saved()
	require.NotNil(t, saved)
	assert.Equal(t, 2, saved.Prompt.ID)
}

func TestQuizWrongAnswerDoesNotAutoAdvance(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		quizPrompt(1, "lake", "озеро", "река", "море", "гора"),
	}}
	engine, sessions, events := newTestEngine(models.KindQuiz, gateway)

	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.Answer(context.Background(), "река"))

	result := events.lastResult()
	assert.False(t, result.Correct)
	assert.False(t, result.WillAdvance)
	assert.Equal(t, "озеро", result.CorrectAnswer)

	require.Eventually(t, func() bool { return gateway.reportCount() == 1 }, time.Second, time.Millisecond)
	assert.False(t, gateway.reportAt(0).correct)

	// No countdown: the prompt stays until the user advances manually
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, gateway.fetchCount())
	assert.Empty(t, events.tickValues())
	assert.Equal(t, StateAnswered, engine.State())

	saved := sessions.saved()
	require.NotNil(t, saved)
	assert.True(t, saved.Answered)
}

func TestAnswerIgnoredWhenNothingPresented(t *testing.T) {
	gateway := &fakeGateway{}
	engine, _, events := newTestEngine(models.KindQuiz, gateway)

	require.NoError(t, engine.Answer(context.Background(), "озеро"))

	assert.Equal(t, 0, events.resultCount())
	assert.Equal(t, 0, gateway.reportCount())
}

func TestQuizRoundTripScenario(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		quizPrompt(7, "lake", "озеро", "река", "море", "гора"),
	}}
	engine, sessions, events := newTestEngine(models.KindQuiz, gateway)
	require.NoError(t, sessions.SaveExclusion("river"))

	require.NoError(t, engine.Start(context.Background()))

	require.Equal(t, 1, gateway.fetchCount())
	assert.Equal(t, fetchCall{token: "abc", exclude: "river"}, gateway.fetchAt(0))
	assert.Equal(t, "lake", sessions.currentExclusion())

	view := events.lastView()
	require.Len(t, view.Choices, 4)
	assert.Contains(t, view.Choices, "озеро")

	require.NoError(t, engine.Answer(context.Background(), "озеро"))

	require.Eventually(t, func() bool { return gateway.reportCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, reportCall{token: "abc", promptID: 7, correct: true}, gateway.reportAt(0))
	require.Eventually(t, func() bool { return gateway.fetchCount() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{3, 2, 1}, events.tickValues())
}

func TestFlashcardMatchIsCaseInsensitive(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		flashcardPrompt(3, "lake", "Озеро"),
	}}
	engine, _, events := newTestEngine(models.KindFlashcard, gateway)

	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.Answer(context.Background(), "озеро"))

	result := events.lastResult()
	assert.True(t, result.Correct)
	assert.True(t, result.WillAdvance, "flashcards advance regardless of correctness")
}

func TestFlashcardMatchDoesNotTrimWhitespace(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		flashcardPrompt(3, "lake", "озеро"),
	}}
	engine, _, events := newTestEngine(models.KindFlashcard, gateway)

	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.Answer(context.Background(), " озеро"))

	assert.False(t, events.lastResult().Correct, "surrounding whitespace counts as a miss")
}

func TestFlashcardWrongAnswerStillAdvances(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		flashcardPrompt(3, "lake", "озеро"),
		flashcardPrompt(4, "sea", "море"),
	}}
	engine, _, events := newTestEngine(models.KindFlashcard, gateway)

	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.Answer(context.Background(), "гора"))

	require.Eventually(t, func() bool { return gateway.reportCount() == 1 }, time.Second, time.Millisecond)
	assert.False(t, gateway.reportAt(0).correct)
	require.Eventually(t, func() bool { return gateway.fetchCount() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return events.viewCount() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, "sea", events.lastView().Prompt.Word)
}

func TestSkipReportsIncorrectAndReloads(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		flashcardPrompt(3, "lake", "озеро"),
		flashcardPrompt(4, "sea", "море"),
	}}
	engine, sessions, events := newTestEngine(models.KindFlashcard, gateway)

	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.Skip(context.Background()))

	require.Eventually(t, func() bool { return gateway.reportCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, reportCall{token: "abc", promptID: 3, correct: false}, gateway.reportAt(0))
	assert.Equal(t, 2, gateway.fetchCount(), "skip reloads immediately")
	assert.Equal(t, "sea", events.lastView().Prompt.Word)

	saved := sessions.saved()
	require.NotNil(t, saved)
	assert.Equal(t, 4, saved.Prompt.ID)
}

func TestRevealReportsIncorrectAndAdvances(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		flashcardPrompt(3, "lake", "озеро"),
		flashcardPrompt(4, "sea", "море"),
	}}
	engine, _, events := newTestEngine(models.KindFlashcard, gateway)

	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.Reveal(context.Background()))

	assert.True(t, engine.ShowTranslation())
	result := events.lastResult()
	assert.True(t, result.Revealed)
	assert.False(t, result.Correct)
	assert.Equal(t, "озеро", result.CorrectAnswer)

	require.Eventually(t, func() bool { return gateway.reportCount() == 1 }, time.Second, time.Millisecond)
	assert.False(t, gateway.reportAt(0).correct)
	require.Eventually(t, func() bool { return gateway.fetchCount() == 2 }, time.Second, time.Millisecond)
}

func TestSkipAndRevealIgnoredInQuizMode(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		quizPrompt(1, "lake", "озеро", "река", "море", "гора"),
	}}
	engine, _, _ := newTestEngine(models.KindQuiz, gateway)

	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.Skip(context.Background()))
	require.NoError(t, engine.Reveal(context.Background()))

	assert.Equal(t, 1, gateway.fetchCount())
	assert.Equal(t, 0, gateway.reportCount())
	assert.Equal(t, StatePresenting, engine.State())
}

func TestStopCancelsCountdown(t *testing.T) {
	gateway := &fakeGateway{prompts: []models.Prompt{
		quizPrompt(1, "lake", "озеро", "река", "море", "гора"),
		quizPrompt(2, "sea", "море", "озеро", "река", "гора"),
	}}
	engine, _, _ := newTestEngine(models.KindQuiz, gateway)

	require.NoError(t, engine.Start(context.Background()))
	require.NoError(t, engine.Answer(context.Background(), "озеро"))
	engine.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, gateway.fetchCount(), "a canceled countdown must not fetch")
	assert.Equal(t, StateIdle, engine.State())
}
