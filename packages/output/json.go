package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/hitbrowse/packages/core/runner"
)

// JSONOutput is the document written for a whole run
type JSONOutput struct {
	Summary  JSONSummary  `json:"summary"`
	Scripts  []JSONScript `json:"scripts"`
	Duration float64      `json:"duration"`
	Time     string       `json:"time"`
}

type JSONSummary struct {
	Scripts int `json:"scripts"`
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

type JSONScript struct {
	File     string     `json:"file"`
	Name     string     `json:"name,omitempty"`
	Error    string     `json:"error,omitempty"`
	Duration float64    `json:"duration"`
	Steps    []JSONStep `json:"steps"`
}

type JSONStep struct {
	Name       string          `json:"name"`
	Action     string          `json:"action"`
	Passed     bool            `json:"passed"`
	Skipped    bool            `json:"skipped,omitempty"`
	SkipReason string          `json:"skipReason,omitempty"`
	Duration   float64         `json:"duration"`
	Error      string          `json:"error,omitempty"`
	URL        string          `json:"url,omitempty"`
	StatusCode int             `json:"statusCode,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Redirects  []JSONRedirect  `json:"redirects,omitempty"`
	Assertions []JSONAssertion `json:"assertions,omitempty"`
	Captures   map[string]any  `json:"captures,omitempty"`
}

type JSONRedirect struct {
	Location   string `json:"location"`
	StatusCode int    `json:"statusCode"`
}

type JSONAssertion struct {
	Subject  string `json:"subject"`
	Operator string `json:"operator"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// JSONFormatter accumulates results and writes them as one JSON document
type JSONFormatter struct {
	writer  io.Writer
	scripts []JSONScript
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:  os.Stdout,
		scripts: make([]JSONScript, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatResult(result *runner.RunResult) {
	script := JSONScript{
		File:     result.File,
		Name:     result.Name,
		Duration: float64(result.Duration.Milliseconds()),
		Steps:    make([]JSONStep, 0, len(result.Results)),
	}
	if result.Error != nil {
		script.Error = result.Error.Error()
	}

	for _, r := range result.Results {
		step := JSONStep{
			Name:       r.Name,
			Action:     r.Action,
			Passed:     r.Passed,
			Skipped:    r.Skipped,
			Duration:   float64(r.Duration.Milliseconds()),
			URL:        r.URL,
			StatusCode: r.Status.Code,
			Reason:     r.Status.Reason,
		}

		if r.SkipReason != "" && r.SkipReason != "filtered out" {
			step.SkipReason = r.SkipReason
		}
		if r.Error != nil {
			step.Error = r.Error.Error()
		}

		for _, hop := range r.Redirects {
			step.Redirects = append(step.Redirects, JSONRedirect{Location: hop.Location, StatusCode: hop.StatusCode})
		}

		for _, a := range r.Assertions {
			step.Assertions = append(step.Assertions, JSONAssertion{
				Subject:  a.Subject,
				Operator: a.Operator,
				Expected: a.Expected,
				Actual:   a.Actual,
				Passed:   a.Passed,
				Message:  a.Message,
			})
		}

		if len(r.Captures) > 0 {
			step.Captures = r.Captures
		}

		script.Steps = append(script.Steps, step)
	}

	f.scripts = append(f.scripts, script)
}

// FormatError is a no-op; errors are reported per script and step.
func (f *JSONFormatter) FormatError(err error) {}

func (f *JSONFormatter) FormatHeader(version string) {}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	summary := JSONSummary{Scripts: len(f.scripts)}
	for _, s := range f.scripts {
		if s.Error != "" {
			summary.Errors++
		}
		for _, step := range s.Steps {
			summary.Total++
			switch {
			case step.Skipped:
				summary.Skipped++
			case step.Passed:
				summary.Passed++
			default:
				summary.Failed++
			}
		}
	}

	output := JSONOutput{
		Summary:  summary,
		Scripts:  f.scripts,
		Duration: float64(totalDuration.Milliseconds()),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
