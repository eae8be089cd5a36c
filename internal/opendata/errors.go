package opendata

import (
	"errors"
	"fmt"
)

var (
	ErrTransport         = errors.New("opendata: transport failure")
	ErrMalformedResponse = errors.New("opendata: malformed response")
)

// TransportError covers everything between building the request and reading
// the body: network failures, timeouts and non-2xx statuses.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("opendata: GET %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("opendata: GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// MalformedResponseError means the body was received but is not a search
// response.
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("opendata: GET %s: malformed response: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }
