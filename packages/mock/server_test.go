package mock

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitbrowse/packages/browser"
)

const shopApp = `
name: shop
routes:
  - path: /login
    body: |
      <form action="/session" method="post"><input name="user"></form>
  - method: POST
    path: /session
    setCookies:
      session: "{{form.user}}"
    redirect: /account
  - path: /account
    requireCookie: session
    unauthorized: /login
    body: "<h1>Hello {{cookie.session}}</h1>"
  - path: /logout
    clearCookies: [session]
    redirect: /login
  - path: /users/{{id}}
    contentType: application/json
    headers:
      X-User: "{{id}}"
    body: '{"id": "{{id}}", "q": "{{query.q}}"}'
  - method: "*"
    path: /echo
    body: "{{method}} {{path}}"
  - method: "*"
    path: /moved
    status: 307
    redirect: /echo
  - path: /private
    requireCookie: token
`

func newShopServer(t *testing.T) *Server {
	t.Helper()
	app, err := ParseApp([]byte(shopApp))
	require.NoError(t, err)
	assert.Equal(t, "shop", app.Name)

	s := NewServer()
	require.NoError(t, s.LoadApp(app))
	return s
}

func TestServer_Routes(t *testing.T) {
	s := newShopServer(t)
	routes := s.GetRoutes()
	require.Len(t, routes, 8)

	assert.Equal(t, "GET", routes[0].Method)
	assert.Equal(t, 200, routes[0].Response.StatusCode)
	assert.Equal(t, 302, routes[1].Response.StatusCode)
	assert.Equal(t, "", routes[1].Response.ContentType)
	assert.Equal(t, 307, routes[6].Response.StatusCode)
}

func TestServer_LoginFlowThroughBrowser(t *testing.T) {
	b := browser.New(newShopServer(t))

	require.NoError(t, b.Visit("/account"))
	assert.Equal(t, "http://localhost/login", b.URL())

	form, err := b.Form("")
	require.NoError(t, err)
	require.NoError(t, b.Submit(form.Fill("user", "ada")))

	assert.Equal(t, "http://localhost/account", b.URL())
	assert.True(t, b.IsTextPresent("Hello ada"))
	assert.True(t, b.Cookies().Equal(map[string]string{"session": "ada"}))

	require.NoError(t, b.Visit("/logout"))
	assert.Equal(t, "http://localhost/login", b.URL())
	assert.Empty(t, b.Cookies().All())
}

func TestServer_PathParamsAndQuery(t *testing.T) {
	s := newShopServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/users/42?q=x", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "42", rec.Header().Get("X-User"))
	assert.JSONEq(t, `{"id": "42", "q": "x"}`, rec.Body.String())
}

func TestServer_AnyMethod(t *testing.T) {
	s := newShopServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("DELETE", "/echo/", nil))
	assert.Equal(t, "DELETE /echo/", rec.Body.String())
}

func TestServer_TemporaryRedirectKeepsMethod(t *testing.T) {
	b := browser.New(newShopServer(t))
	require.NoError(t, b.Post("/moved", url.Values{"a": {"1"}}))

	assert.Equal(t, "POST /echo", b.HTML())
}

func TestServer_NotFoundAndMethodNotAllowed(t *testing.T) {
	s := newShopServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("PUT", "/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET", rec.Header().Get("Allow"))
}

func TestServer_RequireCookieWithoutRedirect(t *testing.T) {
	s := newShopServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_BuiltinFunctions(t *testing.T) {
	app, err := ParseApp([]byte(`
routes:
  - path: /id
    body: "{{$uuid()}}"
  - path: /raw
    body: "{{unknown}}"
`))
	require.NoError(t, err)
	s := NewServer()
	require.NoError(t, s.LoadApp(app))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/id", nil))
	assert.Len(t, rec.Body.String(), 36)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/raw", nil))
	assert.Equal(t, "{{unknown}}", rec.Body.String())
}

func TestServer_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(shopApp), 0644))

	s := NewServer()
	require.NoError(t, s.LoadFiles([]string{path}))
	assert.Len(t, s.GetRoutes(), 8)

	err := s.LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestApp_InvalidRoutes(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "missing path", yaml: "routes:\n  - method: GET\n", want: "path is required"},
		{name: "bad status", yaml: "routes:\n  - path: /x\n    status: 42\n", want: "invalid status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, err := ParseApp([]byte(tt.yaml))
			require.NoError(t, err)
			err = NewServer().LoadApp(app)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := ParseApp([]byte("routes: [unclosed"))
	assert.Error(t, err)
}

func TestRouter_Match(t *testing.T) {
	r := NewRouter()
	r.AddRoute(&Route{Method: "GET", PathPattern: "/a/{{x}}/b", PathRegex: compilePath("/a/{{x}}/b")})
	r.AddRoute(&Route{Method: "GET", PathPattern: "/plain.txt", PathRegex: compilePath("/plain.txt")})

	route, params := r.Match("get", "/a/1/b/")
	require.NotNil(t, route)
	assert.Equal(t, map[string]string{"x": "1"}, params)

	route, _ = r.Match("GET", "/plainXtxt")
	assert.Nil(t, route, "dots are literal")

	route, _ = r.Match("GET", "plain.txt")
	assert.NotNil(t, route)
}
