package http

import (
	"errors"
	"fmt"
)

var (
	// ErrRedirectLoop matches any RedirectLoopError via errors.Is
	ErrRedirectLoop = errors.New("redirect loop detected")
	// ErrTooManyRedirects is returned when a configured redirect limit is exceeded
	ErrTooManyRedirects = errors.New("too many redirects")
)

// RedirectLoopError reports a (location, status) pair seen twice in one chain.
type RedirectLoopError struct {
	Location   string
	StatusCode int
	Chain      []Redirect
}

func (e *RedirectLoopError) Error() string {
	return fmt.Sprintf("redirect loop detected: %d %s repeated after %d redirects",
		e.StatusCode, e.Location, len(e.Chain))
}

func (e *RedirectLoopError) Is(target error) bool {
	return target == ErrRedirectLoop
}
