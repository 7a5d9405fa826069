package assertions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/abdul-hamid-achik/hitbrowse/packages/browser"
	"github.com/abdul-hamid-achik/hitbrowse/packages/cookies"
	"github.com/abdul-hamid-achik/hitbrowse/packages/core/parser"
	hithttp "github.com/abdul-hamid-achik/hitbrowse/packages/http"
)

// Page is the browser state assertions are evaluated against.
// *browser.Browser satisfies it.
type Page interface {
	URL() string
	History() []string
	RedirectChain() []hithttp.Redirect
	Response() *hithttp.Response
	StatusCode() browser.StatusCode
	Title() string
	FindByCSS(selector string) (*goquery.Selection, error)
	Cookies() *cookies.Manager
}

type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

type Evaluator struct {
	page     Page
	bodyJSON gjson.Result
	baseDir  string // schema paths are resolved against and confined to it
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithBaseDir sets the directory schema files are resolved against.
func WithBaseDir(dir string) EvaluatorOption {
	return func(e *Evaluator) {
		e.baseDir = dir
	}
}

func NewEvaluator(page Page, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{page: page}
	if resp := page.Response(); resp != nil && gjson.ValidBytes(resp.Body) {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Evaluate(assertion *parser.Assertion) *Result {
	result := &Result{
		Subject:  assertion.Subject,
		Operator: assertion.Operator.String(),
		Expected: assertion.Expected,
	}

	actual, err := e.getActualValue(assertion.Subject)
	if err != nil {
		result.Passed = false
		result.Message = err.Error()
		return result
	}
	result.Actual = actual

	passed, msg := e.compare(actual, assertion.Operator, assertion.Expected)
	result.Passed = passed
	result.Message = msg

	if assertion.Operator == parser.OpLength {
		result.Actual = computeLength(actual)
	}

	return result
}

// getActualValue reads one subject off the page:
//
//	status, reason, url, title, text, duration, history, redirects,
//	cookies, cookie <name>, header <name>, json [path], css <selector>
func (e *Evaluator) getActualValue(subject string) (any, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(subject), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "url":
		return e.page.URL(), nil
	case "history":
		return toAnySlice(e.page.History()), nil
	case "redirects":
		chain := e.page.RedirectChain()
		locations := make([]any, len(chain))
		for i, r := range chain {
			locations[i] = r.Location
		}
		return locations, nil
	case "cookies":
		return e.page.Cookies().All(), nil
	case "cookie":
		value, err := e.page.Cookies().Get(arg)
		if err != nil {
			return nil, nil
		}
		return value, nil
	}

	resp := e.page.Response()
	if resp == nil {
		return nil, fmt.Errorf("no page loaded")
	}

	switch name {
	case "status":
		return e.page.StatusCode().Code, nil
	case "reason":
		return e.page.StatusCode().Reason, nil
	case "duration":
		return resp.DurationMs(), nil
	case "title":
		return e.page.Title(), nil
	case "text", "body":
		return resp.BodyString(), nil
	case "header":
		if arg == "" {
			return resp.Headers, nil
		}
		if v := resp.Header(arg); v != "" {
			return v, nil
		}
		return nil, nil
	case "json":
		return e.getJSONPathValue(arg)
	case "css":
		return e.getCSSValue(arg)
	default:
		return nil, fmt.Errorf("unknown subject: %s", subject)
	}
}

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// convertBracketNotation converts array bracket notation to gjson dot notation
// e.g., "[0].id" -> "0.id", "items[0].tags[1]" -> "items.0.tags.1"
func convertBracketNotation(path string) string {
	return strings.TrimPrefix(bracketIndex.ReplaceAllString(path, ".$1"), ".")
}

func (e *Evaluator) getJSONPathValue(path string) (any, error) {
	if !e.bodyJSON.Exists() {
		return nil, fmt.Errorf("response body is not JSON")
	}
	if path == "" {
		return e.bodyJSON.Value(), nil
	}
	result := e.bodyJSON.Get(convertBracketNotation(path))
	if !result.Exists() {
		return nil, nil
	}
	return result.Value(), nil
}

// getCSSValue returns the trimmed text of every element matching selector,
// or nil when nothing matches.
func (e *Evaluator) getCSSValue(selector string) (any, error) {
	if selector == "" {
		return nil, fmt.Errorf("css subject requires a selector")
	}
	sel, err := e.page.FindByCSS(selector)
	if err != nil {
		return nil, err
	}
	if sel.Length() == 0 {
		return nil, nil
	}
	texts := make([]any, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(s.Text()))
	})
	return texts, nil
}

func (e *Evaluator) compare(actual any, op parser.AssertionOperator, expected any) (bool, string) {
	switch op {
	case parser.OpEquals:
		return e.equals(actual, expected)
	case parser.OpNotEquals:
		passed, _ := e.equals(actual, expected)
		return negate(passed, fmt.Sprintf("expected not to equal %v", expected))
	case parser.OpGreaterThan:
		return e.compareNumeric(actual, expected, ">")
	case parser.OpGreaterOrEqual:
		return e.compareNumeric(actual, expected, ">=")
	case parser.OpLessThan:
		return e.compareNumeric(actual, expected, "<")
	case parser.OpLessOrEqual:
		return e.compareNumeric(actual, expected, "<=")
	case parser.OpContains:
		return e.contains(actual, expected)
	case parser.OpNotContains:
		passed, _ := e.contains(actual, expected)
		return negate(passed, fmt.Sprintf("expected not to contain %v", expected))
	case parser.OpStartsWith:
		return e.startsWith(actual, expected)
	case parser.OpEndsWith:
		return e.endsWith(actual, expected)
	case parser.OpMatches:
		return e.matches(actual, expected)
	case parser.OpExists:
		return e.exists(actual)
	case parser.OpNotExists:
		passed, _ := e.exists(actual)
		return negate(passed, "expected not to exist")
	case parser.OpLength:
		return e.length(actual, expected)
	case parser.OpIncludes:
		return e.includes(actual, expected)
	case parser.OpNotIncludes:
		passed, _ := e.includes(actual, expected)
		return negate(passed, fmt.Sprintf("expected not to include %v", expected))
	case parser.OpIn:
		return e.in(actual, expected)
	case parser.OpNotIn:
		passed, _ := e.in(actual, expected)
		return negate(passed, fmt.Sprintf("expected not to be in %v", expected))
	case parser.OpType:
		return e.typeCheck(actual, expected)
	case parser.OpSchema:
		return e.schema(actual, expected)
	case parser.OpEach:
		return e.each(actual, expected)
	default:
		return false, fmt.Sprintf("unknown operator: %v", op)
	}
}

func negate(passed bool, msg string) (bool, string) {
	if passed {
		return false, msg
	}
	return true, ""
}

func (e *Evaluator) equals(actual, expected any) (bool, string) {
	if reflect.DeepEqual(actual, expected) {
		return true, ""
	}

	actualNum, aOk := toFloat64(actual)
	expectedNum, eOk := toFloat64(expected)
	if aOk && eOk && actualNum == expectedNum {
		return true, ""
	}

	if fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected) {
		return true, ""
	}

	return false, fmt.Sprintf("expected %v, got %v", expected, actual)
}

func (e *Evaluator) compareNumeric(actual, expected any, op string) (bool, string) {
	actualNum, aOk := toFloat64(actual)
	expectedNum, eOk := toFloat64(expected)

	if !aOk || !eOk {
		return false, fmt.Sprintf("cannot compare non-numeric values: %v %s %v", actual, op, expected)
	}

	var passed bool
	switch op {
	case ">":
		passed = actualNum > expectedNum
	case ">=":
		passed = actualNum >= expectedNum
	case "<":
		passed = actualNum < expectedNum
	case "<=":
		passed = actualNum <= expectedNum
	}

	if passed {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v %s %v", actual, op, expected)
}

func (e *Evaluator) contains(actual, expected any) (bool, string) {
	if items, ok := actual.([]any); ok {
		for _, item := range items {
			if passed, _ := e.contains(item, expected); passed {
				return true, ""
			}
		}
		return false, fmt.Sprintf("expected %v to contain '%v'", actual, expected)
	}
	if actual == nil {
		return false, fmt.Sprintf("expected to contain '%v', got nothing", expected)
	}
	if strings.Contains(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to contain '%v'", abbreviate(actual), expected)
}

func (e *Evaluator) startsWith(actual, expected any) (bool, string) {
	if strings.HasPrefix(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to start with '%v'", abbreviate(actual), expected)
}

func (e *Evaluator) endsWith(actual, expected any) (bool, string) {
	if strings.HasSuffix(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to end with '%v'", abbreviate(actual), expected)
}

func (e *Evaluator) matches(actual, expected any) (bool, string) {
	pattern := strings.TrimSuffix(strings.TrimPrefix(fmt.Sprintf("%v", expected), "/"), "/")

	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid regex pattern: %v", err)
	}

	if re.MatchString(fmt.Sprintf("%v", actual)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to match /%v/", abbreviate(actual), pattern)
}

func (e *Evaluator) exists(actual any) (bool, string) {
	if actual == nil {
		return false, "expected to exist"
	}
	return true, ""
}

// computeLength returns the length of a value, or -1 if length cannot be computed
func computeLength(actual any) int {
	if actual == nil {
		return 0
	}
	rv := reflect.ValueOf(actual)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len()
	default:
		return -1
	}
}

func (e *Evaluator) length(actual, expected any) (bool, string) {
	expectedLen, ok := toInt(expected)
	if !ok {
		return false, fmt.Sprintf("expected length must be a number, got %v", expected)
	}

	actualLen := computeLength(actual)
	if actualLen == -1 {
		return false, fmt.Sprintf("cannot get length of %T", actual)
	}

	if actualLen == expectedLen {
		return true, ""
	}
	return false, fmt.Sprintf("expected length %d, got %d", expectedLen, actualLen)
}

func (e *Evaluator) includes(actual, expected any) (bool, string) {
	arr, ok := actual.([]any)
	if !ok {
		return false, fmt.Sprintf("expected array, got %T", actual)
	}

	for _, item := range arr {
		if passed, _ := e.equals(item, expected); passed {
			return true, ""
		}
	}
	return false, fmt.Sprintf("expected array to include %v", expected)
}

func (e *Evaluator) in(actual, expected any) (bool, string) {
	arr, ok := expected.([]any)
	if !ok {
		return false, fmt.Sprintf("expected array for 'in' operator, got %T", expected)
	}

	for _, item := range arr {
		if passed, _ := e.equals(actual, item); passed {
			return true, ""
		}
	}
	return false, fmt.Sprintf("expected %v to be in %v", actual, expected)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any, map[string]string:
		return "object"
	default:
		return reflect.TypeOf(v).String()
	}
}

func (e *Evaluator) typeCheck(actual, expected any) (bool, string) {
	expectedType := fmt.Sprintf("%v", expected)
	actualType := typeName(actual)
	if actualType == expectedType {
		return true, ""
	}
	return false, fmt.Sprintf("expected type %s, got %s", expectedType, actualType)
}

// validatePathWithinBase rejects paths that escape baseDir.
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}
	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}
	return nil
}

func (e *Evaluator) schema(actual, expected any) (bool, string) {
	schemaPath := fmt.Sprintf("%v", expected)
	if !filepath.IsAbs(schemaPath) && e.baseDir != "" {
		schemaPath = filepath.Join(e.baseDir, schemaPath)
	}
	if err := validatePathWithinBase(schemaPath, e.baseDir); err != nil {
		return false, err.Error()
	}

	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		return false, fmt.Sprintf("failed to read schema file: %v", err)
	}

	actualJSON, err := json.Marshal(actual)
	if err != nil {
		return false, fmt.Sprintf("failed to marshal actual value: %v", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaData),
		gojsonschema.NewBytesLoader(actualJSON),
	)
	if err != nil {
		return false, fmt.Sprintf("schema validation error: %v", err)
	}
	if result.Valid() {
		return true, ""
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return false, fmt.Sprintf("schema validation failed: %s", strings.Join(problems, "; "))
}

// each applies expected to every element. expected is either a plain value
// (equality) or a mapping {operator: <op>, value: <v>}.
func (e *Evaluator) each(actual, expected any) (bool, string) {
	arr, ok := actual.([]any)
	if !ok {
		return false, fmt.Sprintf("expected array for 'each' operator, got %T", actual)
	}

	op, want := parser.OpEquals, expected
	if m, isMap := expected.(map[string]any); isMap {
		if rawOp, hasOp := m["operator"]; hasOp {
			parsed, ok := parser.ParseOperator(fmt.Sprintf("%v", rawOp))
			if !ok || parsed == parser.OpEach {
				return false, fmt.Sprintf("unknown operator in each: %v", rawOp)
			}
			op, want = parsed, m["value"]
		}
	}

	for i, item := range arr {
		if passed, msg := e.compare(item, op, want); !passed {
			return false, fmt.Sprintf("item[%d]: %s", i, msg)
		}
	}
	return true, ""
}

func abbreviate(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}

// EvaluateAll evaluates every assertion against the same page.
func EvaluateAll(page Page, assertions []*parser.Assertion, opts ...EvaluatorOption) []*Result {
	evaluator := NewEvaluator(page, opts...)
	results := make([]*Result, len(assertions))
	for i, a := range assertions {
		results[i] = evaluator.Evaluate(a)
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []*Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
