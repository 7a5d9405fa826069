package mock

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// App is a YAML application definition:
//
//	name: shop
//	routes:
//	  - method: POST
//	    path: /login
//	    setCookies: {session: "{{form.user}}"}
//	    redirect: /account
type App struct {
	Name   string      `yaml:"name"`
	Routes []RouteSpec `yaml:"routes"`
}

// RouteSpec is one route as written in the definition file
type RouteSpec struct {
	Name          string            `yaml:"name"`
	Method        string            `yaml:"method"`
	Path          string            `yaml:"path"`
	Status        int               `yaml:"status"`
	ContentType   string            `yaml:"contentType"`
	Headers       map[string]string `yaml:"headers"`
	Body          string            `yaml:"body"`
	Redirect      string            `yaml:"redirect"`
	SetCookies    map[string]string `yaml:"setCookies"`
	ClearCookies  []string          `yaml:"clearCookies"`
	RequireCookie string            `yaml:"requireCookie"`
	Unauthorized  string            `yaml:"unauthorized"`
}

// ParseApp decodes an application definition
func ParseApp(data []byte) (*App, error) {
	var app App
	if err := yaml.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("invalid app definition: %w", err)
	}
	return &app, nil
}

// LoadApp reads and decodes an application definition file
func LoadApp(path string) (*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app %s: %w", path, err)
	}
	app, err := ParseApp(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return app, nil
}

func (rs RouteSpec) compile() (*Route, error) {
	if strings.TrimSpace(rs.Path) == "" {
		return nil, fmt.Errorf("path is required")
	}

	method := strings.ToUpper(strings.TrimSpace(rs.Method))
	if method == "" {
		method = http.MethodGet
	}

	status := rs.Status
	if status == 0 {
		status = http.StatusOK
		if rs.Redirect != "" {
			status = http.StatusFound
		}
	}
	if status < 100 || status > 599 {
		return nil, fmt.Errorf("invalid status %d for %s %s", status, method, rs.Path)
	}

	contentType := rs.ContentType
	if contentType == "" && rs.Redirect == "" {
		contentType = "text/html; charset=utf-8"
	}

	return &Route{
		Method:      method,
		PathPattern: rs.Path,
		PathRegex:   compilePath(rs.Path),
		Name:        rs.Name,
		Response: &MockResponse{
			StatusCode:    status,
			ContentType:   contentType,
			Headers:       rs.Headers,
			Body:          rs.Body,
			Redirect:      rs.Redirect,
			SetCookies:    rs.SetCookies,
			ClearCookies:  rs.ClearCookies,
			RequireCookie: rs.RequireCookie,
			Unauthorized:  rs.Unauthorized,
		},
	}, nil
}
