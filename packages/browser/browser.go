package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/abdul-hamid-achik/hitbrowse/packages/cookies"
	hithttp "github.com/abdul-hamid-achik/hitbrowse/packages/http"
)

const (
	// DefaultWaitTime bounds WaitForText polling
	DefaultWaitTime = 2 * time.Second
	// DefaultPollInterval is how often WaitForText reloads the page
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultUserAgent is sent when no user agent is configured
	DefaultUserAgent = "hitbrowse"
)

var (
	ErrNoDocument   = errors.New("no page loaded")
	ErrFormNotFound = errors.New("form not found")
	ErrNoHistory    = errors.New("no previous page")
)

type settings struct {
	baseURL            string
	userAgent          string
	waitTime           time.Duration
	pollInterval       time.Duration
	followRedirects    bool
	maxRedirects       int
	legacyBatchCookies bool
	cookieDomain       string
	headers            map[string]string
	verbose            bool
}

type Option func(*settings)

func WithBaseURL(u string) Option {
	return func(s *settings) {
		s.baseURL = u
	}
}

func WithUserAgent(ua string) Option {
	return func(s *settings) {
		s.userAgent = ua
	}
}

func WithWaitTime(d time.Duration) Option {
	return func(s *settings) {
		s.waitTime = d
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		s.pollInterval = d
	}
}

func WithFollowRedirects(follow bool) Option {
	return func(s *settings) {
		s.followRedirects = follow
	}
}

func WithMaxRedirects(max int) Option {
	return func(s *settings) {
		s.maxRedirects = max
	}
}

// WithLegacyBatchCookies makes Cookies().Add apply only the first map of a batch.
func WithLegacyBatchCookies(legacy bool) Option {
	return func(s *settings) {
		s.legacyBatchCookies = legacy
	}
}

func WithCookieDomain(domain string) Option {
	return func(s *settings) {
		s.cookieDomain = domain
	}
}

func WithHeaders(headers map[string]string) Option {
	return func(s *settings) {
		for k, v := range headers {
			s.headers[k] = v
		}
	}
}

func WithVerbose(verbose bool) Option {
	return func(s *settings) {
		s.verbose = verbose
	}
}

// Browser is a single-caller session against one application.
type Browser struct {
	dispatcher   *hithttp.Dispatcher
	cookies      *cookies.Manager
	waitTime     time.Duration
	pollInterval time.Duration

	url      string
	history  []string
	request  *hithttp.Request
	response *hithttp.Response
	chain    []hithttp.Redirect
	status   StatusCode

	// parsed lazily from response, dropped after every navigation
	doc   *goquery.Document
	forms []*Form
}

func New(app http.Handler, opts ...Option) *Browser {
	s := &settings{
		baseURL:         hithttp.DefaultBaseURL,
		userAgent:       DefaultUserAgent,
		waitTime:        DefaultWaitTime,
		pollInterval:    DefaultPollInterval,
		followRedirects: true,
		cookieDomain:    cookies.DefaultDomain,
		headers:         make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	jar := cookies.NewJar()
	dispatcher := hithttp.NewDispatcher(app,
		hithttp.WithBaseURL(s.baseURL),
		hithttp.WithFollowRedirects(s.followRedirects),
		hithttp.WithMaxRedirects(s.maxRedirects),
		hithttp.WithJar(jar),
		hithttp.WithDefaultHeader("User-Agent", s.userAgent),
		hithttp.WithDefaultHeaders(s.headers),
		hithttp.WithVerbose(s.verbose),
	)

	return &Browser{
		dispatcher: dispatcher,
		cookies: cookies.NewManager(jar,
			cookies.WithDomain(s.cookieDomain),
			cookies.WithLegacyBatchAdd(s.legacyBatchCookies),
		),
		waitTime:     s.waitTime,
		pollInterval: s.pollInterval,
	}
}

func (b *Browser) Visit(rawURL string) error {
	return b.Do(http.MethodGet, rawURL, nil)
}

func (b *Browser) Post(rawURL string, data url.Values) error {
	return b.Do(http.MethodPost, rawURL, data)
}

func (b *Browser) Do(method, rawURL string, data url.Values) error {
	return b.DoContext(context.Background(), method, rawURL, data)
}

// DoContext navigates with method to rawURL, resolved against the current page.
// On error the browser keeps its previous page.
func (b *Browser) DoContext(ctx context.Context, method, rawURL string, data url.Values) error {
	return b.navigate(ctx, method, rawURL, data, true)
}

// navigate loads a page; record controls whether it lands in the history.
func (b *Browser) navigate(ctx context.Context, method, rawURL string, data url.Values, record bool) error {
	target := b.resolve(rawURL)
	req := hithttp.NewRequest(method, target).SetForm(data)

	result, err := b.dispatcher.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, target, err)
	}

	if record {
		b.history = append(b.history, target)
		for _, r := range result.Chain {
			b.history = append(b.history, r.Location)
		}
	}
	b.url = result.Response.URL
	b.request = result.Request
	b.response = result.Response
	b.chain = result.Chain
	b.postLoad()
	return nil
}

func (b *Browser) postLoad() {
	b.forms = nil
	b.doc = nil
	b.status = newStatusCode(b.response.StatusCode, b.response.Status)
}

// Reload requests the current URL again with GET.
func (b *Browser) Reload() error {
	return b.ReloadContext(context.Background())
}

func (b *Browser) ReloadContext(ctx context.Context) error {
	if b.url == "" {
		return ErrNoDocument
	}
	return b.DoContext(ctx, http.MethodGet, b.url, nil)
}

// Back visits the URL before the current one in the history.
func (b *Browser) Back() error {
	return b.BackContext(context.Background())
}

// BackContext is Back bounded by ctx. A failed navigation leaves the
// history untouched.
func (b *Browser) BackContext(ctx context.Context) error {
	n := len(b.history)
	if n < 2 {
		return ErrNoHistory
	}
	previous := b.history[n-2]
	saved := b.history
	b.history = b.history[: n-2 : n-2]
	if err := b.navigate(ctx, http.MethodGet, previous, nil, true); err != nil {
		b.history = saved
		return err
	}
	return nil
}

// Close ends the session: cookies, history and the current page are discarded.
func (b *Browser) Close() {
	b.cookies.Delete()
	b.url = ""
	b.history = nil
	b.request = nil
	b.response = nil
	b.chain = nil
	b.status = StatusCode{}
	b.doc = nil
	b.forms = nil
}

func (b *Browser) resolve(rawURL string) string {
	base := b.url
	if base == "" {
		base = b.dispatcher.BaseURL()
	}
	return resolveReference(base, rawURL)
}

func (b *Browser) URL() string {
	return b.url
}

// History lists every URL visited, redirect hops included, oldest first.
func (b *Browser) History() []string {
	return append([]string(nil), b.history...)
}

func (b *Browser) RedirectChain() []hithttp.Redirect {
	return append([]hithttp.Redirect(nil), b.chain...)
}

func (b *Browser) Response() *hithttp.Response {
	return b.response
}

func (b *Browser) Request() *hithttp.Request {
	return b.request
}

func (b *Browser) StatusCode() StatusCode {
	return b.status
}

func (b *Browser) Cookies() *cookies.Manager {
	return b.cookies
}

func (b *Browser) WaitTime() time.Duration {
	return b.waitTime
}

func (b *Browser) HTML() string {
	if b.response == nil {
		return ""
	}
	return b.response.BodyString()
}

func (b *Browser) IsTextPresent(text string) bool {
	return b.response != nil && strings.Contains(b.HTML(), text)
}

// WaitForText reloads the current page until text shows up or the wait time
// runs out. It reports whether the text was found. Polls are not recorded
// in the history.
func (b *Browser) WaitForText(ctx context.Context, text string) (bool, error) {
	if b.IsTextPresent(text) {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.waitTime)
	defer cancel()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
			if err := b.navigate(ctx, http.MethodGet, b.url, nil, false); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return false, nil
				}
				return false, err
			}
			if b.IsTextPresent(text) {
				return true, nil
			}
		}
	}
}

// Document returns the parsed page, parsing it on first use after a navigation.
func (b *Browser) Document() (*goquery.Document, error) {
	if b.response == nil {
		return nil, ErrNoDocument
	}
	if b.doc != nil {
		return b.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b.response.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", b.url, err)
	}
	b.doc = doc
	return doc, nil
}

// FindByCSS returns the elements matching selector on the current page.
func (b *Browser) FindByCSS(selector string) (*goquery.Selection, error) {
	doc, err := b.Document()
	if err != nil {
		return nil, err
	}
	return doc.Find(selector), nil
}

func (b *Browser) Title() string {
	sel, err := b.FindByCSS("title")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(sel.First().Text())
}

// Forms returns the page's forms. The slice is cached, so Fill calls stick
// until the next navigation.
func (b *Browser) Forms() ([]*Form, error) {
	if b.forms != nil {
		return b.forms, nil
	}
	doc, err := b.Document()
	if err != nil {
		return nil, err
	}
	b.forms = parseForms(doc, b.url)
	return b.forms, nil
}

// Form finds a form by name or id. An empty key selects the first form.
func (b *Browser) Form(key string) (*Form, error) {
	forms, err := b.Forms()
	if err != nil {
		return nil, err
	}
	for _, f := range forms {
		if key == "" || f.matches(key) {
			return f, nil
		}
	}
	if key == "" {
		return nil, ErrFormNotFound
	}
	return nil, fmt.Errorf("%w: %s", ErrFormNotFound, key)
}

func (b *Browser) Submit(form *Form) error {
	return b.SubmitContext(context.Background(), form)
}

func (b *Browser) SubmitContext(ctx context.Context, form *Form) error {
	return b.DoContext(ctx, form.Method, form.Action, form.Values())
}

// SubmitData submits form and returns the resulting page body.
func (b *Browser) SubmitData(form *Form) (string, error) {
	if err := b.Submit(form); err != nil {
		return "", err
	}
	return b.HTML(), nil
}
