package capture

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/hitbrowse/packages/browser"
	"github.com/abdul-hamid-achik/hitbrowse/packages/cookies"
	"github.com/abdul-hamid-achik/hitbrowse/packages/core/parser"
	hithttp "github.com/abdul-hamid-achik/hitbrowse/packages/http"
)

// Page is the browser state values are captured from.
type Page interface {
	URL() string
	Response() *hithttp.Response
	StatusCode() browser.StatusCode
	FindByCSS(selector string) (*goquery.Selection, error)
	Cookies() *cookies.Manager
}

type Extractor struct {
	page     Page
	bodyJSON gjson.Result
}

func NewExtractor(page Page) *Extractor {
	e := &Extractor{page: page}
	if resp := page.Response(); resp != nil && gjson.ValidBytes(resp.Body) {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
	}
	return e
}

// Extract returns the captured value and whether the source had one.
func (e *Extractor) Extract(c *parser.Capture) (any, bool) {
	switch c.Source {
	case parser.CaptureCookie:
		value, err := e.page.Cookies().Get(c.Path)
		return value, err == nil
	case parser.CaptureURL:
		url := e.page.URL()
		return url, url != ""
	}

	resp := e.page.Response()
	if resp == nil {
		return nil, false
	}

	switch c.Source {
	case parser.CaptureJSON:
		return e.extractFromJSON(c.Path)
	case parser.CaptureHeader:
		value := resp.Header(c.Path)
		return value, value != ""
	case parser.CaptureCSS:
		return e.extractFromCSS(c.Path)
	case parser.CaptureStatus:
		return e.page.StatusCode().Code, true
	case parser.CaptureBody:
		return resp.BodyString(), true
	default:
		return nil, false
	}
}

func (e *Extractor) extractFromJSON(path string) (any, bool) {
	if !e.bodyJSON.Exists() {
		return nil, false
	}
	if path == "" {
		return e.bodyJSON.Value(), true
	}
	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// extractFromCSS takes the trimmed text of the first matching element.
func (e *Extractor) extractFromCSS(selector string) (any, bool) {
	sel, err := e.page.FindByCSS(selector)
	if err != nil || sel.Length() == 0 {
		return nil, false
	}
	return strings.TrimSpace(sel.First().Text()), true
}

// ExtractAll returns every capture that produced a value, keyed by name,
// and the names of those that did not.
func ExtractAll(page Page, captures []*parser.Capture) (map[string]any, []string) {
	extractor := NewExtractor(page)
	results := make(map[string]any)
	var missing []string

	for _, c := range captures {
		if value, ok := extractor.Extract(c); ok {
			results[c.Name] = value
		} else {
			missing = append(missing, c.Name)
		}
	}

	return results, missing
}
