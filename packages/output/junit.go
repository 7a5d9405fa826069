package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitbrowse/packages/core/runner"
)

// JUnitTestSuites is the report root; one suite per script.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// JUnitTestCase is one step. SystemOut records where the step navigated.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitProblem `xml:"failure,omitempty"`
	Error     *JUnitProblem `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

// JUnitProblem is the body of a <failure> or <error> element.
type JUnitProblem struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter collects script results and writes them as JUnit XML on Flush.
type JUnitFormatter struct {
	writer io.Writer
	suites []JUnitTestSuite
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) FormatResult(result *runner.RunResult) {
	suite := JUnitTestSuite{
		Name:      suiteName(result),
		Time:      result.Duration.Seconds(),
		Timestamp: time.Now().Format(time.RFC3339),
		Properties: []JUnitProperty{
			{Name: "file", Value: result.File},
		},
	}

	// A script that never loaded still shows up, as a single errored case.
	if result.Error != nil {
		suite.Tests, suite.Errors = 1, 1
		suite.TestCases = []JUnitTestCase{{
			Name:      "load",
			ClassName: result.File,
			Error:     &JUnitProblem{Message: result.Error.Error(), Type: "LoadError"},
		}}
		f.suites = append(f.suites, suite)
		return
	}

	for _, step := range result.Results {
		tc := stepCase(result.File, step)
		switch {
		case tc.Skipped != nil:
			suite.Skipped++
		case tc.Error != nil:
			suite.Errors++
		case tc.Failure != nil:
			suite.Failures++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	suite.Tests = len(suite.TestCases)

	f.suites = append(f.suites, suite)
}

func stepCase(file string, step *runner.StepResult) JUnitTestCase {
	tc := JUnitTestCase{
		Name:      step.Name,
		ClassName: file,
		Time:      step.Duration.Seconds(),
	}

	if step.Skipped {
		tc.Skipped = &JUnitSkipped{Message: step.SkipReason}
		return tc
	}

	tc.SystemOut = navigationLog(step)

	if step.Error != nil {
		tc.Error = &JUnitProblem{Message: step.Error.Error(), Type: "NavigationError"}
		return tc
	}
	if step.Passed {
		return tc
	}

	if len(step.Assertions) == 0 {
		tc.Failure = &JUnitProblem{
			Message: fmt.Sprintf("unexpected status %s", step.Status),
			Type:    "StatusError",
			Content: fmt.Sprintf("%s answered %s\n", step.URL, step.Status),
		}
		return tc
	}

	var b strings.Builder
	failed := 0
	for _, a := range step.Assertions {
		if a.Passed {
			continue
		}
		failed++
		fmt.Fprintf(&b, "%s %s %v: got %v", a.Subject, a.Operator, a.Expected, a.Actual)
		if a.Message != "" {
			fmt.Fprintf(&b, " (%s)", a.Message)
		}
		b.WriteString("\n")
	}
	tc.Failure = &JUnitProblem{
		Message: fmt.Sprintf("%d of %d assertions failed", failed, len(step.Assertions)),
		Type:    "AssertionError",
		Content: b.String(),
	}
	return tc
}

// navigationLog lists the redirect hops and the page a step ended on.
func navigationLog(step *runner.StepResult) string {
	if step.URL == "" {
		return ""
	}
	var b strings.Builder
	for _, hop := range step.Redirects {
		fmt.Fprintf(&b, "%d -> %s\n", hop.StatusCode, hop.Location)
	}
	fmt.Fprintf(&b, "%s %s\n", step.Status, step.URL)
	return b.String()
}

func suiteName(result *runner.RunResult) string {
	if result.Name != "" {
		return result.Name
	}
	return result.File
}

// FormatError is a no-op; load errors become test cases.
func (f *JUnitFormatter) FormatError(err error) {}

func (f *JUnitFormatter) FormatHeader(version string) {}

func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	root := JUnitTestSuites{
		Name:       "hitbrowse",
		Time:       totalDuration.Seconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
		TestSuites: f.suites,
	}
	for _, s := range f.suites {
		root.Tests += s.Tests
		root.Failures += s.Failures
		root.Errors += s.Errors
		root.Skipped += s.Skipped
	}

	if _, err := io.WriteString(f.writer, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f.writer)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return err
	}
	_, err := io.WriteString(f.writer, "\n")
	return err
}
