package capture

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitbrowse/packages/browser"
	"github.com/abdul-hamid-achik/hitbrowse/packages/core/parser"
)

func testApp() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "t-9", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-Count", "7")
		fmt.Fprint(w, `{"id": 42, "profile": {"name": "Ada"}}`)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1> Welcome </h1><h1>Second</h1></body></html>`)
	})
	return mux
}

func TestExtractor_JSONPage(t *testing.T) {
	b := browser.New(testApp())
	require.NoError(t, b.Visit("/api/user"))
	e := NewExtractor(b)

	tests := []struct {
		source parser.CaptureSource
		path   string
		want   any
		ok     bool
	}{
		{parser.CaptureJSON, "id", float64(42), true},
		{parser.CaptureJSON, "profile.name", "Ada", true},
		{parser.CaptureJSON, "profile.email", nil, false},
		{parser.CaptureHeader, "x-request-count", "7", true},
		{parser.CaptureHeader, "X-Absent", "", false},
		{parser.CaptureCookie, "token", "t-9", true},
		{parser.CaptureCookie, "other", "", false},
		{parser.CaptureStatus, "", 200, true},
		{parser.CaptureURL, "", "http://localhost/api/user", true},
	}

	for _, tt := range tests {
		t.Run(tt.source.String()+" "+tt.path, func(t *testing.T) {
			got, ok := e.Extract(&parser.Capture{Source: tt.source, Path: tt.path})
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractor_HTMLPage(t *testing.T) {
	b := browser.New(testApp())
	require.NoError(t, b.Visit("/page"))
	e := NewExtractor(b)

	got, ok := e.Extract(&parser.Capture{Source: parser.CaptureCSS, Path: "h1"})
	require.True(t, ok)
	assert.Equal(t, "Welcome", got)

	_, ok = e.Extract(&parser.Capture{Source: parser.CaptureCSS, Path: "table"})
	assert.False(t, ok)

	_, ok = e.Extract(&parser.Capture{Source: parser.CaptureJSON, Path: "id"})
	assert.False(t, ok)

	body, ok := e.Extract(&parser.Capture{Source: parser.CaptureBody})
	require.True(t, ok)
	assert.Contains(t, body, "Second")
}

func TestExtractAll(t *testing.T) {
	b := browser.New(testApp())

	values, missing := ExtractAll(b, []*parser.Capture{{Name: "code", Source: parser.CaptureStatus}})
	assert.Empty(t, values, "nothing to capture before the first navigation")
	assert.Equal(t, []string{"code"}, missing)

	require.NoError(t, b.Visit("/api/user"))
	values, missing = ExtractAll(b, []*parser.Capture{
		{Name: "id", Source: parser.CaptureJSON, Path: "id"},
		{Name: "gone", Source: parser.CaptureJSON, Path: "nope"},
	})
	assert.Equal(t, map[string]any{"id": float64(42)}, values)
	assert.Equal(t, []string{"gone"}, missing)
}
