package cookies

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrCookieNotFound is returned when no cookie matches a lookup or delete
var ErrCookieNotFound = errors.New("cookie not found")

type cookieKey struct {
	domain string
	name   string
}

// Jar stores cookies keyed by (domain, name). Path and expiry attributes are
// kept but not matched; a cookie is sent to its domain and any subdomain.
type Jar struct {
	mu      sync.RWMutex
	cookies map[cookieKey]*http.Cookie
	now     func() time.Time
}

func NewJar() *Jar {
	return &Jar{
		cookies: make(map[cookieKey]*http.Cookie),
		now:     time.Now,
	}
}

// SetCookies implements http.CookieJar. Cookies without a Domain attribute are
// stored under the request host; a negative Max-Age or a past Expires removes
// the stored cookie instead.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	host := hostOf(u)

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		domain := normalizeDomain(c.Domain)
		if domain == "" {
			domain = host
		}
		k := cookieKey{domain: domain, name: c.Name}

		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(j.now())) {
			delete(j.cookies, k)
			continue
		}

		stored := *c
		stored.Domain = domain
		if stored.Path == "" {
			stored.Path = "/"
		}
		j.cookies[k] = &stored
	}
}

// Cookies implements http.CookieJar, returning name/value pairs for u's host.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	host := hostOf(u)

	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*http.Cookie
	for k, c := range j.cookies {
		if domainMatch(host, k.domain) {
			result = append(result, &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	sort.Slice(result, func(a, b int) bool {
		return result[a].Name < result[b].Name
	})
	return result
}

// Set stores a plain name/value cookie on domain.
func (j *Jar) Set(domain, name, value string) {
	domain = normalizeDomain(domain)

	j.mu.Lock()
	defer j.mu.Unlock()

	j.cookies[cookieKey{domain: domain, name: name}] = &http.Cookie{
		Name:   name,
		Value:  value,
		Domain: domain,
		Path:   "/",
	}
}

func (j *Jar) Delete(domain, name string) error {
	k := cookieKey{domain: normalizeDomain(domain), name: name}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.cookies[k]; !ok {
		return fmt.Errorf("%w: %s on %s", ErrCookieNotFound, name, k.domain)
	}
	delete(j.cookies, k)
	return nil
}

// All returns copies of every stored cookie ordered by domain, then name.
func (j *Jar) All() []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := make([]*http.Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(a, b int) bool {
		if result[a].Domain != result[b].Domain {
			return result[a].Domain < result[b].Domain
		}
		return result[a].Name < result[b].Name
	})
	return result
}

func (j *Jar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = make(map[cookieKey]*http.Cookie)
}

func (j *Jar) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.cookies)
}

func hostOf(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func normalizeDomain(domain string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
