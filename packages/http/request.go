package http

import (
	"net/url"
	"strings"
	"time"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
)

type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        string
	Timeout     time.Duration
	QueryParams url.Values
	// FollowRedirects overrides the dispatcher setting when non-nil
	FollowRedirects *bool
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:      strings.ToUpper(method),
		URL:         requestURL,
		Headers:     make(map[string]string),
		QueryParams: make(url.Values),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body string) *Request {
	r.Body = body
	return r
}

// SetForm encodes data as the request body and marks it as a urlencoded form.
// GET and HEAD requests carry the form in the query string instead.
func (r *Request) SetForm(data url.Values) *Request {
	if len(data) == 0 {
		return r
	}
	if r.Method == "GET" || r.Method == "HEAD" {
		for k := range data {
			r.QueryParams[k] = append(r.QueryParams[k], data[k]...)
		}
		return r
	}
	r.Body = data.Encode()
	if r.Header("Content-Type") == "" {
		r.Headers["Content-Type"] = contentTypeForm
	}
	return r
}

func (r *Request) SetFollowRedirects(follow bool) *Request {
	r.FollowRedirects = &follow
	return r
}

// SetTimeout bounds the whole navigation, redirects included.
func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// Header looks up a request header ignoring case.
func (r *Request) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Request) BuildURL() string {
	if len(r.QueryParams) == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	for k, v := range r.QueryParams {
		q[k] = append([]string(nil), v...)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// clone returns a copy of the request pointed at a new location.
func (r *Request) clone(method, location string, keepBody bool) *Request {
	next := NewRequest(method, location)
	for k, v := range r.Headers {
		if !keepBody && (strings.EqualFold(k, "Content-Type") || strings.EqualFold(k, "Content-Length")) {
			continue
		}
		next.Headers[k] = v
	}
	next.Timeout = r.Timeout
	if keepBody {
		next.Body = r.Body
	}
	return next
}

func ParseFormBody(body string) map[string]string {
	result := make(map[string]string)
	pairs := strings.Split(body, "&")
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			key, _ := url.QueryUnescape(kv[0])
			value, _ := url.QueryUnescape(kv[1])
			result[key] = value
		}
	}
	return result
}
