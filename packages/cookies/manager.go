package cookies

import (
	"fmt"
	"maps"
)

// DefaultDomain is the domain every Manager cookie is written to
const DefaultDomain = "localhost"

// CookieInput is either a Single map of cookies or a Batch of maps.
type CookieInput interface {
	isCookieInput()
}

// Single is one name -> value mapping.
type Single map[string]string

// Batch is a sequence of name -> value mappings, usually one entry each.
type Batch []map[string]string

func (Single) isCookieInput() {}
func (Batch) isCookieInput()  {}

// Manager reads and writes the session cookies by name.
type Manager struct {
	jar            *Jar
	domain         string
	legacyBatchAdd bool
}

type ManagerOption func(*Manager)

func WithDomain(domain string) ManagerOption {
	return func(m *Manager) {
		if domain != "" {
			m.domain = domain
		}
	}
}

// WithLegacyBatchAdd makes Add stop after the first map of a Batch, matching
// drivers that only ever applied the first element.
func WithLegacyBatchAdd(legacy bool) ManagerOption {
	return func(m *Manager) {
		m.legacyBatchAdd = legacy
	}
}

func NewManager(jar *Jar, opts ...ManagerOption) *Manager {
	m := &Manager{
		jar:    jar,
		domain: DefaultDomain,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Domain() string {
	return m.domain
}

func (m *Manager) Add(input CookieInput) {
	switch in := input.(type) {
	case Single:
		m.set(in)
	case Batch:
		for _, cookies := range in {
			m.set(cookies)
			if m.legacyBatchAdd {
				return
			}
		}
	}
}

func (m *Manager) set(cookies map[string]string) {
	for name, value := range cookies {
		m.jar.Set(m.domain, name, value)
	}
}

// Delete removes the named cookies, ignoring names that are not set.
// With no names the whole jar is cleared.
func (m *Manager) Delete(names ...string) {
	if len(names) == 0 {
		m.jar.Clear()
		return
	}
	for _, name := range names {
		_ = m.jar.Delete(m.domain, name) // only fails with ErrCookieNotFound
	}
}

// All returns a name -> value snapshot of the jar. When two domains hold the
// same name the one sorting last by domain wins.
func (m *Manager) All() map[string]string {
	result := make(map[string]string)
	for _, c := range m.jar.All() {
		result[c.Name] = c.Value
	}
	return result
}

func (m *Manager) Get(name string) (string, error) {
	value, ok := m.All()[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrCookieNotFound, name)
	}
	return value, nil
}

// Equal compares the jar snapshot with a plain mapping.
func (m *Manager) Equal(other map[string]string) bool {
	return maps.Equal(m.All(), other)
}
