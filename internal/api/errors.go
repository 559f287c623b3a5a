package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for the gateway error taxonomy. Callers branch on
// these with errors.Is; everything else arrives as a *ServerError.
var (
	// ErrUnauthenticated covers a missing local token as well as 400/401
	// responses (the server reports bad credentials as either)
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrNetworkUnreachable means the request never produced an HTTP response
	ErrNetworkUnreachable = errors.New("network unreachable")
	// ErrMalformedResponse means the server answered 2xx with an undecodable body
	ErrMalformedResponse = errors.New("malformed server response")
	// ErrInsufficientContent is the 412 precondition: not enough saved
	// words to build a quiz round
	ErrInsufficientContent = errors.New("not enough words saved")
	// ErrDuplicateAccount is returned by Register when the email is taken
	ErrDuplicateAccount = errors.New("account already exists")
)

// ServerError carries a server-reported rejection that is not covered
// by one of the sentinel errors above.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server rejected request (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server error (%d)", e.StatusCode)
}
