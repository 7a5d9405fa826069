package mock

import (
	"regexp"
	"strings"
)

// Route is a compiled route of a mock application
type Route struct {
	Method      string
	PathPattern string
	PathRegex   *regexp.Regexp
	Name        string
	Response    *MockResponse
}

// MockResponse is what a route answers with. String fields may hold
// {{...}} templates resolved per request.
type MockResponse struct {
	StatusCode    int
	ContentType   string
	Headers       map[string]string
	Body          string
	Redirect      string
	SetCookies    map[string]string
	ClearCookies  []string
	RequireCookie string
	Unauthorized  string
}

// Router matches incoming requests to routes
type Router struct {
	routes []*Route
}

// NewRouter creates a new router
func NewRouter() *Router {
	return &Router{
		routes: make([]*Route, 0),
	}
}

// AddRoute adds a route to the router
func (r *Router) AddRoute(route *Route) {
	r.routes = append(r.routes, route)
}

// Routes returns the routes in registration order
func (r *Router) Routes() []*Route {
	return r.routes
}

// Match finds the first route for method and path. A route method of "*"
// matches any method. The second return value holds the path parameters.
func (r *Router) Match(method, path string) (*Route, map[string]string) {
	path = normalizePath(path)

	for _, route := range r.routes {
		if route.Method != "*" && !strings.EqualFold(route.Method, method) {
			continue
		}

		if params := matchPath(route, path); params != nil {
			return route, params
		}
	}

	return nil, nil
}

// Allowed lists the methods registered for path, used for 405 responses.
func (r *Router) Allowed(path string) []string {
	path = normalizePath(path)

	var methods []string
	for _, route := range r.routes {
		if matchPath(route, path) != nil {
			methods = append(methods, strings.ToUpper(route.Method))
		}
	}
	return methods
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	// Remove trailing slash (except for root)
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

func matchPath(route *Route, path string) map[string]string {
	if route.PathRegex != nil {
		matches := route.PathRegex.FindStringSubmatch(path)
		if matches != nil {
			params := make(map[string]string)
			names := route.PathRegex.SubexpNames()
			for i, name := range names {
				if i > 0 && name != "" && i < len(matches) {
					params[name] = matches[i]
				}
			}
			return params
		}
	}

	if normalizePath(route.PathPattern) == path {
		return make(map[string]string)
	}

	return nil
}

var pathParamPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// compilePath turns /users/{{id}} into a regex with named groups.
func compilePath(pattern string) *regexp.Regexp {
	pattern = normalizePath(pattern)
	parts := pathParamPattern.Split(pattern, -1)
	names := pathParamPattern.FindAllStringSubmatch(pattern, -1)

	var b strings.Builder
	b.WriteString("^")
	for i, part := range parts {
		b.WriteString(regexp.QuoteMeta(part))
		if i < len(names) {
			b.WriteString("(?P<" + names[i][1] + ">[^/]+)")
		}
	}
	b.WriteString("$")

	regex, err := regexp.Compile(b.String())
	if err != nil {
		return regexp.MustCompile("^" + regexp.QuoteMeta(pattern) + "$")
	}
	return regex
}
