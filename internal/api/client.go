package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/wordsaver/pkg/models"
)

// DefaultTimeout applies uniformly to every gateway call. The gateway
// never retries; retry policy belongs to the caller.
const DefaultTimeout = 30 * time.Second

// Client is the typed gateway to the WordSaver REST service
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a gateway client for the given base URL
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type saveWordRequest struct {
	Word        string `json:"word"`
	Translation string `json:"translation"`
}

type updateWordRequest struct {
	ID          int    `json:"id"`
	Word        string `json:"word"`
	Translation string `json:"translation"`
}

type wordsRequest struct {
	SortingParam     string `json:"sortingParam"`
	SortingDirection string `json:"sortingDirection"`
	Page             int    `json:"page"`
	PageSize         int    `json:"pageSize"`
}

type quizRequest struct {
	PreviousWord string `json:"previousWord"`
}

type quizResponse struct {
	ID              int    `json:"id"`
	Word            string `json:"word"`
	TrueTranslation string `json:"trueTranslation"`
	Translation1    string `json:"translation1"`
	Translation2    string `json:"translation2"`
	Translation3    string `json:"translation3"`
}

type wordStatRequest struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Register creates a new account and returns its token
func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/registration", "", credentialsRequest{Email: email, Password: password}, &resp)
	if err != nil {
		var srvErr *ServerError
		if errors.As(err, &srvErr) && srvErr.StatusCode == http.StatusConflict {
			return "", ErrDuplicateAccount
		}
		return "", err
	}
	return resp.Token, nil
}

// Login exchanges credentials for a bearer token
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/login", "", credentialsRequest{Email: email, Password: password}, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// SaveWord adds a word-translation pair to the user's dictionary
func (c *Client) SaveWord(ctx context.Context, token, word, translation string) error {
	return c.do(ctx, http.MethodPost, "/save-word", token, saveWordRequest{Word: word, Translation: translation}, nil)
}

// UpdateWord replaces the word and translation of an existing entry
func (c *Client) UpdateWord(ctx context.Context, token string, id int, word, translation string) error {
	return c.do(ctx, http.MethodPut, "/word", token, updateWordRequest{ID: id, Word: word, Translation: translation}, nil)
}

// DeleteWord removes an entry from the dictionary
func (c *Client) DeleteWord(ctx context.Context, token string, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/delete-word/%d", id), token, nil, nil)
}

// Word fetches a single dictionary entry by ID
func (c *Client) Word(ctx context.Context, token string, id int) (models.Word, error) {
	var word models.Word
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/word/%d", id), token, nil, &word)
	return word, err
}

// Words fetches one page of the user's dictionary with the given
// sorting. Total pages are derived client-side from the reported total.
func (c *Client) Words(ctx context.Context, token string, page, pageSize int, sortParam, sortDirection string) (models.WordPage, error) {
	req := wordsRequest{
		SortingParam:     sortParam,
		SortingDirection: sortDirection,
		Page:             page,
		PageSize:         pageSize,
	}
	var result models.WordPage
	if err := c.do(ctx, http.MethodPost, "/get-words-by-user", token, req, &result); err != nil {
		return models.WordPage{}, err
	}
	result.Page = page
	result.TotalPages = (result.Total + pageSize - 1) / pageSize
	return result, nil
}

// FetchQuizPrompt requests the next quiz word. excludeWord is the
// exclusion token of the previously served prompt; empty means no
// exclusion. The server owns the definition of "recently seen".
func (c *Client) FetchQuizPrompt(ctx context.Context, token, excludeWord string) (models.Prompt, error) {
	var resp quizResponse
	if err := c.do(ctx, http.MethodPost, "/quiz", token, quizRequest{PreviousWord: excludeWord}, &resp); err != nil {
		return models.Prompt{}, err
	}
	return models.Prompt{
		Kind:            models.KindQuiz,
		ID:              resp.ID,
		Word:            resp.Word,
		TrueTranslation: resp.TrueTranslation,
		Decoys:          []string{resp.Translation1, resp.Translation2, resp.Translation3},
	}, nil
}

// FetchFlashcardWord requests the next flashcard word, biased by the
// server toward the least-practiced entries.
func (c *Client) FetchFlashcardWord(ctx context.Context, token string) (models.Prompt, error) {
	var word models.Word
	if err := c.do(ctx, http.MethodGet, "/sorted-random-word", token, nil, &word); err != nil {
		return models.Prompt{}, err
	}
	return models.Prompt{
		Kind:        models.KindFlashcard,
		ID:          word.ID,
		Word:        word.Word,
		Translation: word.Translation,
		Success:     word.Success,
		Failed:      word.Failed,
	}, nil
}

// ReportOutcome records a correctness verdict for a prompt
func (c *Client) ReportOutcome(ctx context.Context, token string, promptID int, isCorrect bool) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/word-stat/%d", promptID), token, wordStatRequest{Success: isCorrect}, nil)
}

// do performs one request/response round trip and maps the status code
// to the gateway error taxonomy. out may be nil for empty-body replies.
func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// statusError maps a non-2xx response to the error taxonomy
func (c *Client) statusError(resp *http.Response) error {
	message := serverMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthenticated
	case resp.StatusCode == http.StatusPreconditionFailed:
		return ErrInsufficientContent
	case resp.StatusCode >= 500:
		return &ServerError{StatusCode: resp.StatusCode}
	default:
		// Older servers embed the precondition code in the message body
		// instead of the status line
		if strings.Contains(message, "412") {
			return ErrInsufficientContent
		}
		return &ServerError{StatusCode: resp.StatusCode, Message: message}
	}
}

// serverMessage extracts a human-readable message from an error body
func serverMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var parsed errorResponse
	if err := json.Unmarshal(data, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(data))
}
