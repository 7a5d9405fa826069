package browser

import (
	"fmt"
	"strconv"
	"strings"
)

// StatusCode is the final status of the last navigation.
type StatusCode struct {
	Code   int
	Reason string
}

func newStatusCode(code int, status string) StatusCode {
	reason := strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code)))
	return StatusCode{Code: code, Reason: reason}
}

// IsSuccess reports a non-error status (anything below 400).
func (s StatusCode) IsSuccess() bool {
	return s.Code > 0 && s.Code < 400
}

func (s StatusCode) String() string {
	return fmt.Sprintf("%d - %s", s.Code, s.Reason)
}
