package parser

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type rawFile struct {
	Name      string      `yaml:"name"`
	Env       string      `yaml:"env"`
	Variables yaml.Node   `yaml:"variables"`
	Steps     []yaml.Node `yaml:"steps"`
}

type rawStep struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Tags        []string          `yaml:"tags"`
	Skip        string            `yaml:"skip"`
	Only        bool              `yaml:"only"`
	Visit       string            `yaml:"visit"`
	Post        *rawRequest       `yaml:"post"`
	Request     *rawRequest       `yaml:"request"`
	Submit      *rawSubmit        `yaml:"submit"`
	Reload      bool              `yaml:"reload"`
	Back        bool              `yaml:"back"`
	Wait        string            `yaml:"wait"`
	Cookies     *rawCookies       `yaml:"cookies"`
	Expect      *rawExpect        `yaml:"expect"`
	Assert      []rawAssertion    `yaml:"assert"`
	Capture     map[string]string `yaml:"capture"`
}

type rawRequest struct {
	Method string            `yaml:"method"`
	URL    string            `yaml:"url"`
	Data   map[string]string `yaml:"data"`
}

type rawSubmit struct {
	Form   string            `yaml:"form"`
	Fields map[string]string `yaml:"fields"`
}

type rawCookies struct {
	Add      map[string]string   `yaml:"add"`
	AddBatch []map[string]string `yaml:"addBatch"`
	Delete   []string            `yaml:"delete"`
	Clear    bool                `yaml:"clear"`
}

type rawExpect struct {
	Status    int               `yaml:"status"`
	URL       string            `yaml:"url"`
	Title     string            `yaml:"title"`
	Text      stringList        `yaml:"text"`
	NoText    stringList        `yaml:"noText"`
	Cookies   map[string]string `yaml:"cookies"`
	Redirects *[]string         `yaml:"redirects"`
	Headers   map[string]string `yaml:"headers"`
	JSON      map[string]any    `yaml:"json"`
	Schema    string            `yaml:"schema"`
}

type rawAssertion struct {
	Subject string `yaml:"subject"`
	Op      string `yaml:"op"`
	Value   any    `yaml:"value"`
}

// stringList accepts either a single string or a list of strings.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = stringList{node.Value}
		return nil
	}
	var values []string
	if err := node.Decode(&values); err != nil {
		return err
	}
	*l = values
	return nil
}

// ParseFile reads and parses the browse script at path.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return Parse(string(data), path)
}

// Parse parses a browse script; path is only used in error messages and results.
func Parse(input, path string) (*File, error) {
	var raw rawFile
	if err := yaml.Unmarshal([]byte(input), &raw); err != nil {
		return nil, &ParseError{File: path, Line: yamlErrorLine(err), Message: err.Error()}
	}

	file := &File{
		Path:    path,
		Name:    raw.Name,
		EnvFile: raw.Env,
	}

	vars, err := parseVariables(&raw.Variables)
	if err != nil {
		return nil, &ParseError{File: path, Line: raw.Variables.Line, Message: err.Error()}
	}
	file.Variables = vars

	if len(raw.Steps) == 0 {
		return nil, &ParseError{File: path, Line: 1, Message: "script has no steps"}
	}

	for i := range raw.Steps {
		node := &raw.Steps[i]
		step, err := parseStep(node, i)
		if err != nil {
			return nil, &ParseError{File: path, Line: node.Line, Message: err.Error()}
		}
		file.Steps = append(file.Steps, step)
	}

	return file, nil
}

// parseVariables keeps the declaration order of the variables mapping.
func parseVariables(node *yaml.Node) ([]*Variable, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("variables must be a mapping")
	}
	vars := make([]*Variable, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("variable %s must be a scalar", key.Value)
		}
		vars = append(vars, &Variable{Name: key.Value, Value: value.Value})
	}
	return vars, nil
}

func parseStep(node *yaml.Node, index int) (*Step, error) {
	var raw rawStep
	if err := node.Decode(&raw); err != nil {
		return nil, err
	}

	step := &Step{
		Name:        raw.Name,
		Description: raw.Description,
		Tags:        raw.Tags,
		Skip:        raw.Skip,
		Only:        raw.Only,
		Line:        node.Line,
	}

	actions := 0
	if raw.Visit != "" {
		actions++
		step.Action, step.Target, step.Method = ActionVisit, raw.Visit, "GET"
	}
	if raw.Post != nil {
		actions++
		if raw.Post.URL == "" {
			return nil, fmt.Errorf("post requires a url")
		}
		step.Action, step.Target, step.Method, step.Data = ActionPost, raw.Post.URL, "POST", raw.Post.Data
	}
	if raw.Request != nil {
		actions++
		if raw.Request.URL == "" {
			return nil, fmt.Errorf("request requires a url")
		}
		method := strings.ToUpper(strings.TrimSpace(raw.Request.Method))
		if method == "" {
			method = "GET"
		}
		step.Action, step.Target, step.Method, step.Data = ActionRequest, raw.Request.URL, method, raw.Request.Data
	}
	if raw.Submit != nil {
		actions++
		step.Action, step.Target, step.Data = ActionSubmit, raw.Submit.Form, raw.Submit.Fields
	}
	if raw.Reload {
		actions++
		step.Action = ActionReload
	}
	if raw.Back {
		actions++
		step.Action = ActionBack
	}
	if raw.Wait != "" {
		actions++
		step.Action, step.Target = ActionWait, raw.Wait
	}
	if raw.Cookies != nil {
		actions++
		step.Action = ActionCookies
		step.Cookies = &CookieOp{
			Add:    raw.Cookies.Add,
			Batch:  raw.Cookies.AddBatch,
			Delete: raw.Cookies.Delete,
			Clear:  raw.Cookies.Clear,
		}
	}

	switch actions {
	case 0:
		return nil, fmt.Errorf("step has no action (visit, post, request, submit, reload, back, wait or cookies)")
	case 1:
	default:
		return nil, fmt.Errorf("step has %d actions, want exactly one", actions)
	}

	if step.Name == "" {
		step.Name = fmt.Sprintf("%s #%d", step.Action, index+1)
	}

	if raw.Expect != nil {
		step.Assertions = append(step.Assertions, raw.Expect.assertions(node.Line)...)
	}

	for _, a := range raw.Assert {
		if strings.TrimSpace(a.Subject) == "" {
			return nil, fmt.Errorf("assertion requires a subject")
		}
		op, ok := ParseOperator(strings.TrimSpace(a.Op))
		if !ok {
			return nil, fmt.Errorf("unknown operator: %s", a.Op)
		}
		step.Assertions = append(step.Assertions, &Assertion{
			Subject:  strings.TrimSpace(a.Subject),
			Operator: op,
			Expected: a.Value,
			Line:     node.Line,
		})
	}

	names := make([]string, 0, len(raw.Capture))
	for name := range raw.Capture {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c, err := ParseCapture(name, raw.Capture[name])
		if err != nil {
			return nil, err
		}
		c.Line = node.Line
		step.Captures = append(step.Captures, c)
	}

	return step, nil
}

// assertions expands the expect shorthand in a fixed order.
func (e *rawExpect) assertions(line int) []*Assertion {
	var out []*Assertion
	add := func(subject string, op AssertionOperator, expected any) {
		out = append(out, &Assertion{Subject: subject, Operator: op, Expected: expected, Line: line})
	}

	if e.Status != 0 {
		add("status", OpEquals, e.Status)
	}
	if e.URL != "" {
		add("url", OpEquals, e.URL)
	}
	if e.Title != "" {
		add("title", OpEquals, e.Title)
	}
	for _, text := range e.Text {
		add("text", OpContains, text)
	}
	for _, text := range e.NoText {
		add("text", OpNotContains, text)
	}
	if e.Cookies != nil {
		add("cookies", OpEquals, e.Cookies)
	}
	if e.Redirects != nil {
		locations := make([]any, len(*e.Redirects))
		for i, loc := range *e.Redirects {
			locations[i] = loc
		}
		add("redirects", OpEquals, locations)
	}
	for _, name := range sortedKeys(e.Headers) {
		add("header "+name, OpEquals, e.Headers[name])
	}
	for _, path := range sortedKeys(e.JSON) {
		add("json "+path, OpEquals, e.JSON[path])
	}
	if e.Schema != "" {
		add("json", OpSchema, e.Schema)
	}
	return out
}

// ParseCapture reads a capture expression: json:<path>, header:<name>,
// cookie:<name>, css:<selector>, status, url or body.
func ParseCapture(name, expr string) (*Capture, error) {
	if name == "" {
		return nil, fmt.Errorf("capture requires a name")
	}
	source, path, _ := strings.Cut(strings.TrimSpace(expr), ":")
	path = strings.TrimSpace(path)

	c := &Capture{Name: name, Path: path}
	switch source {
	case "json":
		c.Source = CaptureJSON
	case "header":
		c.Source = CaptureHeader
	case "cookie":
		c.Source = CaptureCookie
	case "css":
		c.Source = CaptureCSS
	case "status":
		c.Source = CaptureStatus
	case "url":
		c.Source = CaptureURL
	case "body":
		c.Source = CaptureBody
	default:
		return nil, fmt.Errorf("capture %s: unknown source %q", name, source)
	}

	switch c.Source {
	case CaptureHeader, CaptureCookie, CaptureCSS:
		if path == "" {
			return nil, fmt.Errorf("capture %s: %s requires a name or selector", name, source)
		}
	}
	return c, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// yamlErrorLine pulls the line number out of a yaml.v3 error, or 0.
func yamlErrorLine(err error) int {
	var line int
	msg := err.Error()
	if idx := strings.Index(msg, "line "); idx >= 0 {
		_, _ = fmt.Sscanf(msg[idx:], "line %d", &line)
	}
	return line
}
