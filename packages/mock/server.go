// Package mock provides an application defined in YAML that can be driven
// in-process by a browser or served over HTTP.
package mock

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitbrowse/packages/builtin"
)

// Server answers requests from the routes of one or more app definitions
type Server struct {
	router   *Router
	port     int
	delay    time.Duration
	verbose  bool
	registry *builtin.Registry
}

// Option is a functional option for Server
type Option func(*Server)

// WithPort sets the server port
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithDelay adds a delay to all responses
func WithDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.delay = delay
	}
}

// WithVerbose enables verbose logging
func WithVerbose(verbose bool) Option {
	return func(s *Server) {
		s.verbose = verbose
	}
}

// NewServer creates a new mock server
func NewServer(opts ...Option) *Server {
	s := &Server{
		router:   NewRouter(),
		port:     3000,
		registry: builtin.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadFile loads routes from an app definition file
func (s *Server) LoadFile(path string) error {
	app, err := LoadApp(path)
	if err != nil {
		return err
	}
	if err := s.LoadApp(app); err != nil {
		return fmt.Errorf("failed to load app %s: %w", path, err)
	}
	return nil
}

// LoadFiles loads routes from multiple app definition files
func (s *Server) LoadFiles(paths []string) error {
	for _, path := range paths {
		if err := s.LoadFile(path); err != nil {
			return err
		}
	}
	return nil
}

// LoadApp registers every route of app
func (s *Server) LoadApp(app *App) error {
	for i, rs := range app.Routes {
		route, err := rs.compile()
		if err != nil {
			return fmt.Errorf("route %d: %w", i+1, err)
		}
		s.router.AddRoute(route)
	}
	return nil
}

// GetRoutes returns all registered routes
func (s *Server) GetRoutes() []*Route {
	return s.router.Routes()
}

// Start starts the mock server
func (s *Server) Start() error {
	return s.StartWithContext(context.Background())
}

// StartWithContext starts the server with context for graceful shutdown
func (s *Server) StartWithContext(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("Mock app starting on http://localhost:%d", s.port)
	log.Printf("Routes loaded: %d", len(s.router.routes))

	if s.verbose {
		for _, route := range s.router.routes {
			log.Printf("  %s %s -> %d", route.Method, route.PathPattern, route.Response.StatusCode)
		}
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ServeHTTP makes the server usable as an in-process application.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	route, params := s.router.Match(r.Method, r.URL.Path)
	if route == nil {
		if allowed := s.router.Allowed(r.URL.Path); len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			w.WriteHeader(http.StatusMethodNotAllowed)
			s.logRequest(r, http.StatusMethodNotAllowed, start)
			return
		}
		http.NotFound(w, r)
		s.logRequest(r, http.StatusNotFound, start)
		return
	}

	_ = r.ParseForm()
	tc := &templateContext{request: r, params: params, registry: s.registry}
	resp := route.Response

	if resp.RequireCookie != "" {
		if _, err := r.Cookie(resp.RequireCookie); err != nil {
			if resp.Unauthorized != "" {
				http.Redirect(w, r, tc.resolve(resp.Unauthorized), http.StatusFound)
				s.logRequest(r, http.StatusFound, start)
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			s.logRequest(r, http.StatusUnauthorized, start)
			return
		}
	}

	for _, name := range resp.ClearCookies {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
	for name, value := range resp.SetCookies {
		http.SetCookie(w, &http.Cookie{Name: name, Value: tc.resolve(value), Path: "/"})
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, tc.resolve(value))
	}

	if resp.Redirect != "" {
		w.Header().Set("Location", tc.resolve(resp.Redirect))
	} else if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(tc.resolve(resp.Body)))
	}

	s.logRequest(r, resp.StatusCode, start)
}

func (s *Server) logRequest(r *http.Request, status int, start time.Time) {
	if s.verbose {
		log.Printf("%s %s -> %d (%s)", r.Method, r.URL.Path, status, time.Since(start))
	}
}

var templatePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// templateContext resolves {{param}}, {{cookie.x}}, {{form.x}}, {{query.x}},
// {{method}}, {{path}} and {{$func(args)}} against one request.
type templateContext struct {
	request  *http.Request
	params   map[string]string
	registry *builtin.Registry
}

func (tc *templateContext) resolve(input string) string {
	return templatePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])

		if strings.HasPrefix(name, "$") {
			if val, ok := tc.registry.Call(strings.TrimPrefix(name, "$")); ok {
				return fmt.Sprintf("%v", val)
			}
			return match
		}

		if scope, key, ok := strings.Cut(name, "."); ok {
			switch scope {
			case "cookie":
				if c, err := tc.request.Cookie(key); err == nil {
					return c.Value
				}
				return ""
			case "form":
				return tc.request.Form.Get(key)
			case "query":
				return tc.request.URL.Query().Get(key)
			case "header":
				return tc.request.Header.Get(key)
			}
		}

		switch name {
		case "method":
			return tc.request.Method
		case "path":
			return tc.request.URL.Path
		}

		if val, ok := tc.params[name]; ok {
			return val
		}

		// Keep original if not found
		return match
	})
}
