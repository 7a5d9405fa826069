package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginScript = `
name: sign in
env: .env.test
variables:
  user: ada
  password: "{{$PASSWORD}}"
steps:
  - name: open login
    visit: /login
    expect:
      status: 200
      title: Login
      text: Sign in
  - name: sign in
    tags: [auth]
    submit:
      form: login
      fields:
        user: "{{user}}"
    expect:
      url: http://localhost/account
      cookies: {session: ada}
      redirects: [http://localhost/account]
      noText: [error, denied]
    capture:
      greeting: css:h1
      session: cookie:session
  - reload: true
  - back: true
  - wait: Ready
  - cookies:
      add: {theme: dark}
      addBatch:
        - {a: "1"}
        - {b: "2"}
      delete: [theme]
  - post:
      url: /api/items
      data: {name: pen}
    assert:
      - subject: json id
        op: exists
      - subject: status
        op: ">="
        value: 200
      - subject: header Content-Type
        op: contains
        value: json
  - request:
      method: delete
      url: /api/items/1
    expect:
      status: 204
      redirects: []
`

func TestParse_Script(t *testing.T) {
	file, err := Parse(loginScript, "login.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sign in", file.Name)
	assert.Equal(t, ".env.test", file.EnvFile)
	require.Len(t, file.Variables, 2)
	assert.Equal(t, "user", file.Variables[0].Name)
	assert.Equal(t, "{{$PASSWORD}}", file.Variables[1].Value)
	require.Len(t, file.Steps, 8)

	visit := file.Steps[0]
	assert.Equal(t, ActionVisit, visit.Action)
	assert.Equal(t, "/login", visit.Target)
	assert.Equal(t, "GET", visit.Method)
	require.Len(t, visit.Assertions, 3)
	assert.Equal(t, "status", visit.Assertions[0].Subject)
	assert.Equal(t, 200, visit.Assertions[0].Expected)
	assert.Equal(t, OpContains, visit.Assertions[2].Operator)

	submit := file.Steps[1]
	assert.Equal(t, ActionSubmit, submit.Action)
	assert.Equal(t, "login", submit.Target)
	assert.Equal(t, map[string]string{"user": "{{user}}"}, submit.Data)
	assert.Equal(t, []string{"auth"}, submit.Tags)
	require.Len(t, submit.Assertions, 5)
	assert.Equal(t, "url", submit.Assertions[0].Subject)
	assert.Equal(t, "text", submit.Assertions[1].Subject)
	assert.Equal(t, OpNotContains, submit.Assertions[1].Operator)
	assert.Equal(t, "error", submit.Assertions[1].Expected)
	assert.Equal(t, "denied", submit.Assertions[2].Expected)
	assert.Equal(t, "cookies", submit.Assertions[3].Subject)
	assert.Equal(t, map[string]string{"session": "ada"}, submit.Assertions[3].Expected)
	assert.Equal(t, "redirects", submit.Assertions[4].Subject)
	assert.Equal(t, []any{"http://localhost/account"}, submit.Assertions[4].Expected)
	require.Len(t, submit.Captures, 2)
	assert.Equal(t, "greeting", submit.Captures[0].Name)
	assert.Equal(t, CaptureCSS, submit.Captures[0].Source)
	assert.Equal(t, "h1", submit.Captures[0].Path)
	assert.Equal(t, CaptureCookie, submit.Captures[1].Source)

	assert.Equal(t, ActionReload, file.Steps[2].Action)
	assert.Equal(t, "reload #3", file.Steps[2].Name)
	assert.Equal(t, ActionBack, file.Steps[3].Action)
	assert.Equal(t, ActionWait, file.Steps[4].Action)
	assert.Equal(t, "Ready", file.Steps[4].Target)

	cookies := file.Steps[5]
	assert.Equal(t, ActionCookies, cookies.Action)
	require.NotNil(t, cookies.Cookies)
	assert.Equal(t, map[string]string{"theme": "dark"}, cookies.Cookies.Add)
	assert.Len(t, cookies.Cookies.Batch, 2)
	assert.Equal(t, []string{"theme"}, cookies.Cookies.Delete)

	post := file.Steps[6]
	assert.Equal(t, ActionPost, post.Action)
	assert.Equal(t, "POST", post.Method)
	require.Len(t, post.Assertions, 3)
	assert.Equal(t, OpExists, post.Assertions[0].Operator)
	assert.Equal(t, OpGreaterOrEqual, post.Assertions[1].Operator)

	del := file.Steps[7]
	assert.Equal(t, ActionRequest, del.Action)
	assert.Equal(t, "DELETE", del.Method)
	require.Len(t, del.Assertions, 2)
	assert.Equal(t, []any{}, del.Assertions[1].Expected, "an empty list expects no redirects")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "no steps", input: "name: x\n", want: "no steps"},
		{name: "no action", input: "steps:\n  - name: idle\n", want: "no action"},
		{name: "two actions", input: "steps:\n  - visit: /a\n    reload: true\n", want: "exactly one"},
		{name: "post without url", input: "steps:\n  - post: {data: {a: b}}\n", want: "requires a url"},
		{name: "bad operator", input: "steps:\n  - visit: /\n    assert:\n      - {subject: status, op: '~='}\n", want: "unknown operator"},
		{name: "missing subject", input: "steps:\n  - visit: /\n    assert:\n      - {op: exists}\n", want: "requires a subject"},
		{name: "bad capture", input: "steps:\n  - visit: /\n    capture: {x: 'xml:/a'}\n", want: "unknown source"},
		{name: "nested variable", input: "variables:\n  a: [1]\nsteps:\n  - visit: /\n", want: "must be a scalar"},
		{name: "invalid yaml", input: "steps: [unclosed", want: "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, "bad.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var perr *ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestParse_ExpectOrder(t *testing.T) {
	file, err := Parse(`
steps:
  - visit: /
    expect:
      schema: item.json
      json: {id: 1}
      headers: {X-B: b, X-A: a}
      redirects: [/next]
      cookies: {k: v}
      noText: gone
      text: [one, two]
      title: Home
      url: /home
      status: 200
`, "order.yaml")
	require.NoError(t, err)

	var subjects []string
	for _, a := range file.Steps[0].Assertions {
		subjects = append(subjects, a.Subject)
	}
	assert.Equal(t, []string{
		"status", "url", "title", "text", "text", "text", "cookies", "redirects",
		"header X-A", "header X-B", "json id", "json",
	}, subjects)
	assert.Equal(t, OpNotContains, file.Steps[0].Assertions[5].Operator)
	assert.Equal(t, OpSchema, file.Steps[0].Assertions[11].Operator)
}

func TestParse_ErrorLine(t *testing.T) {
	_, err := Parse("steps:\n  - visit: /ok\n  - name: broken\n", "s.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s.yaml:3:")
}

func TestParseCapture(t *testing.T) {
	c, err := ParseCapture("id", "json: data.id")
	require.NoError(t, err)
	assert.Equal(t, CaptureJSON, c.Source)
	assert.Equal(t, "data.id", c.Path)

	c, err = ParseCapture("code", "status")
	require.NoError(t, err)
	assert.Equal(t, CaptureStatus, c.Source)

	_, err = ParseCapture("h", "header")
	assert.Error(t, err)

	_, err = ParseCapture("", "url")
	assert.Error(t, err)
}

func TestParseOperator(t *testing.T) {
	for _, s := range []string{"==", "equals", ""} {
		op, ok := ParseOperator(s)
		assert.True(t, ok, s)
		assert.Equal(t, OpEquals, op)
	}

	op, ok := ParseOperator("!includes")
	assert.True(t, ok)
	assert.Equal(t, OpNotIncludes, op)
	assert.Equal(t, "!includes", op.String())

	_, ok = ParseOperator("nope")
	assert.False(t, ok)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - visit: /\n"), 0644))

	file, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, file.Path)
	assert.Len(t, file.Steps, 1)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
