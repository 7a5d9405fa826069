package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_Get(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/test", r.URL.Path)
		assert.Equal(t, "localhost", r.Host)
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "hello"}`))
	})

	d := NewDispatcher(app)
	result, err := d.Get(context.Background(), "/test")

	require.NoError(t, err)
	assert.Equal(t, 200, result.Response.StatusCode)
	assert.Equal(t, "200 OK", result.Response.Status)
	assert.Equal(t, "application/json", result.Response.Header("content-type"))
	assert.Equal(t, "hello", result.Response.JSON("message").String())
	assert.Equal(t, "http://localhost/test", result.Response.URL)
	assert.Empty(t, result.Chain)
}

func TestDispatcher_PostForm(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "alice", r.PostForm.Get("user"))
		w.WriteHeader(http.StatusCreated)
	})

	d := NewDispatcher(app)
	result, err := d.Post(context.Background(), "/users", url.Values{"user": {"alice"}})

	require.NoError(t, err)
	assert.Equal(t, 201, result.Response.StatusCode)
}

func TestDispatcher_GetFormGoesToQuery(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "term", r.URL.Query().Get("q"))
		w.WriteHeader(http.StatusOK)
	})

	d := NewDispatcher(app)
	req := NewRequest("get", "/search").SetForm(url.Values{"q": {"term"}})
	_, err := d.Do(context.Background(), req)

	require.NoError(t, err)
}

func TestDispatcher_GetFormKeepsRepeatedFields(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"a", "b"}, r.URL.Query()["tag"])
		assert.Equal(t, []string{"1"}, r.URL.Query()["page"])
		w.WriteHeader(http.StatusOK)
	})

	d := NewDispatcher(app)
	req := NewRequest("GET", "/search?page=1").SetForm(url.Values{"tag": {"a", "b"}})
	_, err := d.Do(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, req.QueryParams["tag"])
}

func TestDispatcher_BodylessRequestHasReadableBody(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, r.Body)
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Empty(t, data)
		w.WriteHeader(http.StatusOK)
	})

	d := NewDispatcher(app)
	result, err := d.Get(context.Background(), "/plain")

	require.NoError(t, err)
	assert.Equal(t, 200, result.Response.StatusCode)
}

func TestDispatcher_FollowsRedirectChain(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			http.Redirect(w, r, "/b", http.StatusMovedPermanently)
		case "/b":
			w.Header().Set("Location", "c")
			w.WriteHeader(http.StatusFound)
		case "/c":
			http.Redirect(w, r, "http://localhost/final", http.StatusSeeOther)
		default:
			_, _ = w.Write([]byte("final"))
		}
	})

	d := NewDispatcher(app)
	result, err := d.Get(context.Background(), "/a")

	require.NoError(t, err)
	assert.Equal(t, 200, result.Response.StatusCode)
	assert.Equal(t, "final", result.Response.BodyString())
	assert.Equal(t, []Redirect{
		{Location: "http://localhost/b", StatusCode: 301},
		{Location: "http://localhost/c", StatusCode: 302},
		{Location: "http://localhost/final", StatusCode: 303},
	}, result.Chain)
	assert.Equal(t, "http://localhost/final", result.Request.URL)
}

func TestDispatcher_NoFollowRedirects(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	})

	d := NewDispatcher(app, WithFollowRedirects(false))
	result, err := d.Get(context.Background(), "/")

	require.NoError(t, err)
	assert.Equal(t, 302, result.Response.StatusCode)
	assert.Equal(t, "/elsewhere", result.Response.Header("Location"))
	assert.Empty(t, result.Chain)
}

func TestDispatcher_PerRequestFollowOverride(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/next", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	d := NewDispatcher(app)
	result, err := d.Do(context.Background(), NewRequest("GET", "/").SetFollowRedirects(false))

	require.NoError(t, err)
	assert.Equal(t, 302, result.Response.StatusCode)
}

func TestDispatcher_RedirectMethods(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		wantMethod string
		wantBody   string
	}{
		{name: "301 becomes GET", code: 301, wantMethod: "GET"},
		{name: "302 becomes GET", code: 302, wantMethod: "GET"},
		{name: "303 becomes GET", code: 303, wantMethod: "GET"},
		{name: "305 becomes GET", code: 305, wantMethod: "GET"},
		{name: "307 keeps method and body", code: 307, wantMethod: "POST", wantBody: "name=bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod, gotBody string
			app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/start" {
					w.Header().Set("Location", "/end")
					w.WriteHeader(tt.code)
					return
				}
				gotMethod = r.Method
				body, _ := io.ReadAll(r.Body)
				gotBody = string(body)
				w.WriteHeader(http.StatusOK)
			})

			d := NewDispatcher(app)
			result, err := d.Post(context.Background(), "/start", url.Values{"name": {"bob"}})

			require.NoError(t, err)
			assert.Equal(t, 200, result.Response.StatusCode)
			assert.Equal(t, tt.wantMethod, gotMethod)
			assert.Equal(t, tt.wantBody, gotBody)
			require.Len(t, result.Chain, 1)
			assert.Equal(t, tt.code, result.Chain[0].StatusCode)
		})
	}
}

func TestDispatcher_308IsNotFollowed(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/other", http.StatusPermanentRedirect)
	})

	result, err := NewDispatcher(app).Get(context.Background(), "/")

	require.NoError(t, err)
	assert.Equal(t, 308, result.Response.StatusCode)
}

func TestDispatcher_RedirectLoop(t *testing.T) {
	hits := 0
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path == "/ping" {
			http.Redirect(w, r, "/pong", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/ping", http.StatusFound)
	})

	d := NewDispatcher(app)
	_, err := d.Get(context.Background(), "/ping")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRedirectLoop))

	var loopErr *RedirectLoopError
	require.True(t, errors.As(err, &loopErr))
	assert.Equal(t, "http://localhost/pong", loopErr.Location)
	assert.Equal(t, 302, loopErr.StatusCode)
	assert.Len(t, loopErr.Chain, 2)
	// /ping, /pong, /ping again; the repeated /pong hop is never dispatched
	assert.Equal(t, 3, hits)
}

func TestDispatcher_SameLocationDifferentCodeIsNotALoop(t *testing.T) {
	hopVisits := 0
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, "/hop", http.StatusMovedPermanently)
		case "/hop":
			hopVisits++
			if hopVisits == 1 {
				http.Redirect(w, r, "/hop", http.StatusFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	})

	result, err := NewDispatcher(app).Get(context.Background(), "/start")

	require.NoError(t, err)
	assert.Equal(t, 200, result.Response.StatusCode)
	assert.Equal(t, []Redirect{
		{Location: "http://localhost/hop", StatusCode: 301},
		{Location: "http://localhost/hop", StatusCode: 302},
	}, result.Chain)
}

func TestDispatcher_MaxRedirects(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	})

	d := NewDispatcher(app, WithMaxRedirects(3))
	_, err := d.Get(context.Background(), "/")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooManyRedirects))
}

func TestDispatcher_CookiesRoundTrip(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			http.Redirect(w, r, "/home", http.StatusFound)
			return
		}
		c, err := r.Cookie("session")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("welcome " + c.Value))
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	d := NewDispatcher(app, WithJar(jar))
	result, err := d.Get(context.Background(), "/login")

	require.NoError(t, err)
	assert.Equal(t, "welcome abc", result.Response.BodyString())
}

func TestDispatcher_DefaultHeaders(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hitbrowse-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "fixed", r.Header.Get(RequestIDHeader))
		w.WriteHeader(http.StatusOK)
	})

	d := NewDispatcher(app, WithDefaultHeaders(map[string]string{
		"User-Agent":    "hitbrowse-test",
		RequestIDHeader: "fixed",
	}))
	_, err := d.Get(context.Background(), "/")

	require.NoError(t, err)
}

func TestDispatcher_BaseURL(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "app.test:8080", r.Host)
		w.WriteHeader(http.StatusOK)
	})

	d := NewDispatcher(app, WithBaseURL("http://app.test:8080"))
	result, err := d.Get(context.Background(), "/x")

	require.NoError(t, err)
	assert.Equal(t, "http://app.test:8080/x", result.Response.URL)
}

func TestDispatcher_CancelledContext(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDispatcher(app).Get(ctx, "/")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatcher_InvalidScheme(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	_, err := NewDispatcher(app).Get(context.Background(), "ftp://example.com/file")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("http://localhost/"))
	assert.NoError(t, ValidateURL("https://example.com"))
	assert.Error(t, ValidateURL("http://"))
	assert.Error(t, ValidateURL("file:///etc/passwd"))
}

func TestIsRedirectCode(t *testing.T) {
	for _, code := range []int{301, 302, 303, 305, 307} {
		assert.True(t, IsRedirectCode(code), code)
	}
	for _, code := range []int{200, 300, 304, 308, 404} {
		assert.False(t, IsRedirectCode(code), code)
	}
}

func TestParseFormBody(t *testing.T) {
	got := ParseFormBody("a=1&b=hello+world&c=%2F")
	assert.Equal(t, map[string]string{"a": "1", "b": "hello world", "c": "/"}, got)
}

func TestDispatcher_RequestTimeoutSpansRedirects(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			time.Sleep(30 * time.Millisecond)
			http.Redirect(w, r, "/done", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	d := NewDispatcher(app)
	_, err := d.Do(context.Background(), NewRequest("GET", "/slow").SetTimeout(5*time.Millisecond))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	result, err := d.Do(context.Background(), NewRequest("GET", "/slow").SetTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/done", result.Response.URL)
	assert.Equal(t, "", result.Response.Location())
}
