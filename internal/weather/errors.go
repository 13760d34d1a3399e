package weather

import (
	"fmt"
)

// FetchError reports a failed request to the forecast provider: either a
// transport failure (StatusCode 0) or a non-2xx response.
type FetchError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("forecast request failed: %v", e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a response body that is not a valid forecast.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decoding forecast: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
