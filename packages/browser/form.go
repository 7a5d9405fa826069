package browser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Form is a parsed <form> with its current field values.
type Form struct {
	Name   string
	ID     string
	Action string
	Method string
	Fields url.Values
}

// Fill replaces the value of a field, creating it if needed.
func (f *Form) Fill(name, value string) *Form {
	f.Fields.Set(name, value)
	return f
}

// Add appends a value, for checkbox groups and multi-selects.
func (f *Form) Add(name, value string) *Form {
	f.Fields.Add(name, value)
	return f
}

func (f *Form) Values() url.Values {
	values := make(url.Values, len(f.Fields))
	for k, v := range f.Fields {
		values[k] = append([]string(nil), v...)
	}
	return values
}

func (f *Form) matches(key string) bool {
	return key != "" && (f.Name == key || f.ID == key)
}

func parseForms(doc *goquery.Document, pageURL string) []*Form {
	forms := make([]*Form, 0)
	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		method := strings.ToUpper(strings.TrimSpace(s.AttrOr("method", "")))
		if method == "" {
			method = "GET"
		}
		form := &Form{
			Name:   s.AttrOr("name", ""),
			ID:     s.AttrOr("id", ""),
			Action: resolveReference(pageURL, s.AttrOr("action", "")),
			Method: method,
			Fields: url.Values{},
		}
		s.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
			collectField(form, field)
		})
		forms = append(forms, form)
	})
	return forms
}

func collectField(form *Form, field *goquery.Selection) {
	name := field.AttrOr("name", "")
	if name == "" {
		return
	}
	if _, disabled := field.Attr("disabled"); disabled {
		return
	}

	switch goquery.NodeName(field) {
	case "input":
		switch strings.ToLower(field.AttrOr("type", "text")) {
		case "checkbox", "radio":
			if _, checked := field.Attr("checked"); checked {
				form.Fields.Add(name, field.AttrOr("value", "on"))
			}
		case "submit", "button", "image", "reset", "file":
		default:
			form.Fields.Add(name, field.AttrOr("value", ""))
		}
	case "textarea":
		form.Fields.Add(name, field.Text())
	case "select":
		selected := field.Find("option[selected]")
		if selected.Length() == 0 {
			if _, multiple := field.Attr("multiple"); multiple {
				return
			}
			selected = field.Find("option").First()
		}
		selected.Each(func(_ int, opt *goquery.Selection) {
			value, ok := opt.Attr("value")
			if !ok {
				value = strings.TrimSpace(opt.Text())
			}
			form.Fields.Add(name, value)
		})
	}
}

// resolveReference resolves ref against base; an empty ref is the base itself.
func resolveReference(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
