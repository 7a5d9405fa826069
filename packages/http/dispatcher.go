package http

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	neturl "net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is the origin relative URLs are resolved against
	DefaultBaseURL = "http://localhost"
	// DefaultRemoteAddr is reported to the application as the client address
	DefaultRemoteAddr = "127.0.0.1:50000"
	// RequestIDHeader carries a fresh id on every dispatched request
	RequestIDHeader = "X-Request-Id"
)

// Redirect is one followed hop: where it pointed and the status that sent us there.
type Redirect struct {
	Location   string
	StatusCode int
}

// Result is the outcome of a top-level dispatch after redirects are resolved.
type Result struct {
	Request  *Request
	Response *Response
	Chain    []Redirect
}

// IsRedirectCode reports whether code is one of the redirect statuses that are followed.
func IsRedirectCode(code int) bool {
	switch code {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusUseProxy,
		http.StatusTemporaryRedirect:
		return true
	}
	return false
}

// Dispatcher submits requests straight to an http.Handler, without sockets.
type Dispatcher struct {
	app            http.Handler
	baseURL        *neturl.URL
	followRedirect bool
	maxRedirects   int
	jar            http.CookieJar
	defaultHeaders map[string]string
	remoteAddr     string
	verbose        bool
}

type DispatcherOption func(*Dispatcher)

func NewDispatcher(app http.Handler, opts ...DispatcherOption) *Dispatcher {
	base, _ := neturl.Parse(DefaultBaseURL)
	d := &Dispatcher{
		app:            app,
		baseURL:        base,
		followRedirect: true,
		defaultHeaders: make(map[string]string),
		remoteAddr:     DefaultRemoteAddr,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// WithBaseURL sets the origin that relative request URLs resolve against.
// Invalid URLs are ignored.
func WithBaseURL(raw string) DispatcherOption {
	return func(d *Dispatcher) {
		if u, err := neturl.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
			d.baseURL = u
		}
	}
}

func WithFollowRedirects(follow bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.followRedirect = follow
	}
}

// WithMaxRedirects caps the chain length. Zero leaves only the loop guard.
func WithMaxRedirects(max int) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxRedirects = max
	}
}

func WithJar(jar http.CookieJar) DispatcherOption {
	return func(d *Dispatcher) {
		d.jar = jar
	}
}

func WithDefaultHeader(key, value string) DispatcherOption {
	return func(d *Dispatcher) {
		d.defaultHeaders[key] = value
	}
}

// WithDefaultHeaders sets multiple default headers for all requests
func WithDefaultHeaders(headers map[string]string) DispatcherOption {
	return func(d *Dispatcher) {
		for k, v := range headers {
			d.defaultHeaders[k] = v
		}
	}
}

func WithRemoteAddr(addr string) DispatcherOption {
	return func(d *Dispatcher) {
		d.remoteAddr = addr
	}
}

// WithVerbose logs every dispatched hop
func WithVerbose(verbose bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.verbose = verbose
	}
}

func (d *Dispatcher) Jar() http.CookieJar {
	return d.jar
}

func (d *Dispatcher) BaseURL() string {
	return d.baseURL.String()
}

// Do dispatches req and follows redirects until a non-redirect response arrives.
// A (location, status) pair seen twice aborts with a *RedirectLoopError.
func (d *Dispatcher) Do(ctx context.Context, req *Request) (*Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	current := req
	resp, err := d.dispatch(ctx, current)
	if err != nil {
		return nil, err
	}

	follow := d.followRedirect
	if req.FollowRedirects != nil {
		follow = *req.FollowRedirects
	}

	var chain []Redirect
	for follow && resp.IsRedirect() {
		location := resp.Location()
		if location == "" {
			break
		}

		next, err := resolveLocation(resp.URL, location)
		if err != nil {
			return nil, fmt.Errorf("invalid redirect location %q: %w", location, err)
		}

		method := http.MethodGet
		keepBody := false
		if resp.StatusCode == http.StatusTemporaryRedirect {
			method = current.Method
			keepBody = true
		}

		entry := Redirect{Location: next, StatusCode: resp.StatusCode}
		for _, seen := range chain {
			if seen == entry {
				return nil, &RedirectLoopError{
					Location:   entry.Location,
					StatusCode: entry.StatusCode,
					Chain:      chain,
				}
			}
		}
		chain = append(chain, entry)

		if d.maxRedirects > 0 && len(chain) > d.maxRedirects {
			return nil, fmt.Errorf("%w: stopped after %d redirects", ErrTooManyRedirects, d.maxRedirects)
		}

		current = current.clone(method, next, keepBody)
		resp, err = d.dispatch(ctx, current)
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		Request:  current,
		Response: resp,
		Chain:    chain,
	}, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := d.resolve(req.BuildURL())
	if err != nil {
		return nil, err
	}
	if err := ValidateURL(target.String()); err != nil {
		return nil, err
	}

	var body io.Reader = http.NoBody
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.RequestURI = target.RequestURI()
	httpReq.RemoteAddr = d.remoteAddr

	for k, v := range d.defaultHeaders {
		httpReq.Header.Set(k, v)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if httpReq.Header.Get(RequestIDHeader) == "" {
		httpReq.Header.Set(RequestIDHeader, uuid.New().String())
	}

	if d.jar != nil {
		for _, c := range d.jar.Cookies(target) {
			httpReq.AddCookie(c)
		}
	}

	recorder := httptest.NewRecorder()
	start := time.Now()
	d.app.ServeHTTP(recorder, httpReq)
	duration := time.Since(start)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	httpResp := recorder.Result()
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	if d.jar != nil {
		if cookies := httpResp.Cookies(); len(cookies) > 0 {
			d.jar.SetCookies(target, cookies)
		}
	}

	headers := make(map[string]string)
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}

	if d.verbose {
		log.Printf("%s %s -> %d (%s)", req.Method, target.String(), httpResp.StatusCode, duration)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    headers,
		Body:       respBody,
		URL:        target.String(),
		Duration:   duration,
	}, nil
}

func (d *Dispatcher) resolve(raw string) (*neturl.URL, error) {
	ref, err := neturl.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	return d.baseURL.ResolveReference(ref), nil
}

// resolveLocation resolves a Location header against the URL that returned it.
func resolveLocation(current, location string) (string, error) {
	base, err := neturl.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := neturl.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (d *Dispatcher) Get(ctx context.Context, url string) (*Result, error) {
	return d.Do(ctx, NewRequest(http.MethodGet, url))
}

func (d *Dispatcher) Post(ctx context.Context, url string, form neturl.Values) (*Result, error) {
	return d.Do(ctx, NewRequest(http.MethodPost, url).SetForm(form))
}

func (d *Dispatcher) Put(ctx context.Context, url string, form neturl.Values) (*Result, error) {
	return d.Do(ctx, NewRequest(http.MethodPut, url).SetForm(form))
}

func (d *Dispatcher) Delete(ctx context.Context, url string) (*Result, error) {
	return d.Do(ctx, NewRequest(http.MethodDelete, url))
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	// Check for valid scheme
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (only http and https are allowed)", u.Scheme)
	}

	// Check for valid host
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}
