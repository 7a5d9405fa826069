package parser

import "strconv"

// File is one browse script: a sequence of steps sharing a browser session.
type File struct {
	Path      string
	Name      string
	EnvFile   string
	Variables []*Variable
	Steps     []*Step
}

type Variable struct {
	Name  string
	Value string
}

type Step struct {
	Name        string
	Description string
	Tags        []string
	Skip        string
	Only        bool

	Action Action
	// Target is the URL for navigation, the form name or id for submit and
	// the awaited text for wait.
	Target  string
	Method  string
	Data    map[string]string
	Cookies *CookieOp

	Assertions []*Assertion
	Captures   []*Capture
	Line       int
}

type Action int

const (
	ActionVisit Action = iota
	ActionPost
	ActionRequest
	ActionSubmit
	ActionReload
	ActionBack
	ActionWait
	ActionCookies
)

func (a Action) String() string {
	switch a {
	case ActionVisit:
		return "visit"
	case ActionPost:
		return "post"
	case ActionRequest:
		return "request"
	case ActionSubmit:
		return "submit"
	case ActionReload:
		return "reload"
	case ActionBack:
		return "back"
	case ActionWait:
		return "wait"
	case ActionCookies:
		return "cookies"
	default:
		return "unknown"
	}
}

// CookieOp edits the session cookies without navigating.
type CookieOp struct {
	Add    map[string]string
	Batch  []map[string]string
	Delete []string
	Clear  bool
}

type Assertion struct {
	Subject  string
	Operator AssertionOperator
	Expected any
	Line     int
}

type AssertionOperator int

const (
	OpEquals AssertionOperator = iota
	OpNotEquals
	OpGreaterThan
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
	OpContains
	OpNotContains
	OpStartsWith
	OpEndsWith
	OpMatches
	OpExists
	OpNotExists
	OpLength
	OpIncludes
	OpNotIncludes
	OpIn
	OpNotIn
	OpType
	OpEach
	OpSchema
)

var operatorNames = map[AssertionOperator]string{
	OpEquals:         "==",
	OpNotEquals:      "!=",
	OpGreaterThan:    ">",
	OpGreaterOrEqual: ">=",
	OpLessThan:       "<",
	OpLessOrEqual:    "<=",
	OpContains:       "contains",
	OpNotContains:    "!contains",
	OpStartsWith:     "startsWith",
	OpEndsWith:       "endsWith",
	OpMatches:        "matches",
	OpExists:         "exists",
	OpNotExists:      "!exists",
	OpLength:         "length",
	OpIncludes:       "includes",
	OpNotIncludes:    "!includes",
	OpIn:             "in",
	OpNotIn:          "!in",
	OpType:           "type",
	OpEach:           "each",
	OpSchema:         "schema",
}

var operatorAliases = map[string]AssertionOperator{
	"":            OpEquals,
	"equals":      OpEquals,
	"notEquals":   OpNotEquals,
	"gt":          OpGreaterThan,
	"gte":         OpGreaterOrEqual,
	"lt":          OpLessThan,
	"lte":         OpLessOrEqual,
	"notContains": OpNotContains,
	"notExists":   OpNotExists,
	"notIncludes": OpNotIncludes,
	"notIn":       OpNotIn,
}

func (op AssertionOperator) String() string {
	if name, ok := operatorNames[op]; ok {
		return name
	}
	return "unknown"
}

// ParseOperator accepts the symbolic form ("==", "!contains") or a word alias ("equals", "gte").
func ParseOperator(s string) (AssertionOperator, bool) {
	if op, ok := operatorAliases[s]; ok {
		return op, true
	}
	for op, name := range operatorNames {
		if name == s {
			return op, true
		}
	}
	return OpEquals, false
}

type Capture struct {
	Name   string
	Source CaptureSource
	Path   string
	Line   int
}

type CaptureSource int

const (
	CaptureJSON CaptureSource = iota
	CaptureHeader
	CaptureCookie
	CaptureCSS
	CaptureStatus
	CaptureURL
	CaptureBody
)

func (s CaptureSource) String() string {
	switch s {
	case CaptureJSON:
		return "json"
	case CaptureHeader:
		return "header"
	case CaptureCookie:
		return "cookie"
	case CaptureCSS:
		return "css"
	case CaptureStatus:
		return "status"
	case CaptureURL:
		return "url"
	case CaptureBody:
		return "body"
	default:
		return "unknown"
	}
}

type ParseError struct {
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return e.File + ":" + strconv.Itoa(e.Line) + ": " + e.Message
	}
	return "line " + strconv.Itoa(e.Line) + ": " + e.Message
}
