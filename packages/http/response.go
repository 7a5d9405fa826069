package http

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Response is what the application wrote for one hop of a navigation.
type Response struct {
	StatusCode int
	// Status is the full status line, e.g. "302 Found".
	Status   string
	Headers  map[string]string
	Body     []byte
	URL      string
	Duration time.Duration
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

// JSON looks up a gjson path in the body. An empty path returns the whole document.
func (r *Response) JSON(path string) gjson.Result {
	if path == "" {
		return gjson.ParseBytes(r.Body)
	}
	return gjson.GetBytes(r.Body, path)
}

// Header looks up a response header ignoring case.
func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

// Location is the raw Location header, unresolved.
func (r *Response) Location() string {
	return r.Header("Location")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect reports whether the dispatcher would follow this response.
func (r *Response) IsRedirect() bool {
	return IsRedirectCode(r.StatusCode)
}

func (r *Response) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
