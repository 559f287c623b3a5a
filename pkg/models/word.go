package models

// Word represents a saved word-translation pair as the server reports it
type Word struct {
	ID          int    `json:"id"`
	Word        string `json:"word"`
	Translation string `json:"translation"`
	Success     int    `json:"success"` // Number of correct answers recorded for the word
	Failed      int    `json:"failed"`  // Number of incorrect answers recorded for the word
	AddedAt     string `json:"addedAt"`
}

// WordPage is one page of the user's dictionary
type WordPage struct {
	Words      []Word `json:"wordList"`
	Total      int    `json:"total"`
	Page       int    `json:"-"`
	TotalPages int    `json:"-"`
}

// Sorting parameters accepted by the dictionary listing
const (
	SortByWord    = "word"
	SortByAddedAt = "addedAt"
	SortBySuccess = "success"

	SortAscending  = "asc"
	SortDescending = "desc"
)
