package models

// SessionKind identifies which review mode a session belongs to.
// The two kinds use separate persistence buckets and never interfere.
type SessionKind string

const (
	// KindQuiz is the multiple-choice mode: one true translation plus three decoys
	KindQuiz SessionKind = "quiz"
	// KindFlashcard is the free-text mode: the user types the translation
	KindFlashcard SessionKind = "flashcard"
)

// Prompt is a single word to be reviewed. It is a tagged union over the
// two session kinds: quiz prompts carry decoy translations, flashcard
// prompts carry the running answer counters.
type Prompt struct {
	Kind SessionKind `json:"kind"`
	ID   int         `json:"id"`
	Word string      `json:"word"`

	// Quiz fields
	TrueTranslation string   `json:"trueTranslation,omitempty"`
	Decoys          []string `json:"decoys,omitempty"`

	// Flashcard fields
	Translation string `json:"translation,omitempty"`
	Success     int    `json:"success,omitempty"`
	Failed      int    `json:"failed,omitempty"`
}

// Answer returns the translation the user is expected to produce,
// regardless of kind.
func (p Prompt) Answer() string {
	if p.Kind == KindQuiz {
		return p.TrueTranslation
	}
	return p.Translation
}

// SessionState is the persisted snapshot of one in-flight prompt.
// ShuffledChoices is only set for quiz prompts and must be restored
// verbatim on resume so the options keep their on-screen order.
type SessionState struct {
	Prompt          Prompt   `json:"prompt"`
	ShuffledChoices []string `json:"shuffledChoices,omitempty"`
	Answered        bool     `json:"answered"`
}
