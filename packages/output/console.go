package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/hitbrowse/packages/core/runner"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		if s := fmt.Sprintf("%v", val); len(s) <= maxLen {
			return s
		}
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case map[string]string:
		if s := fmt.Sprintf("%v", val); len(s) <= maxLen {
			return s
		}
		return fmt.Sprintf("{map with %d entries}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

// palette holds the colour functions; fatih/color turns them into no-ops
// when colour is disabled.
type palette struct {
	ok, bad, warn, info, bold func(a ...interface{}) string
}

func newPalette() palette {
	return palette{
		ok:   color.New(color.FgGreen).SprintFunc(),
		bad:  color.New(color.FgRed).SprintFunc(),
		warn: color.New(color.FgYellow).SprintFunc(),
		info: color.New(color.FgCyan).SprintFunc(),
		bold: color.New(color.Bold).SprintFunc(),
	}
}

// ConsoleFormatter prints each script as it finishes, one line per step.
type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
	c       palette
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	f.c = newPalette()
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) { f.writer = w }
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) { f.verbose = v }
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) { f.noColor = nc }
}

func (f *ConsoleFormatter) printf(format string, args ...any) {
	fmt.Fprintf(f.writer, format, args...)
}

func (f *ConsoleFormatter) FormatResult(result *runner.RunResult) {
	title := result.File
	if result.Name != "" {
		title += " (" + result.Name + ")"
	}
	f.printf("\n%s\n\n", f.c.bold("Running: "+title))

	if result.Error != nil {
		f.printf("  %s %v\n\n", f.c.bad("x"), result.Error)
		return
	}

	for _, step := range result.Results {
		f.writeStep(step)
	}
	f.writeSummary(result)
}

func (f *ConsoleFormatter) writeStep(step *runner.StepResult) {
	switch {
	case step.Skipped:
		f.printf("  %s %s", f.c.warn("-"), step.Name)
		if step.SkipReason != "" && step.SkipReason != "filtered out" {
			f.printf(" (%s)", step.SkipReason)
		}
		f.printf("\n")
		return
	case step.Error != nil:
		f.printf("  %s %s %s\n", f.c.bad("x"), step.Name, f.c.bad(fmt.Sprintf("(%v)", step.Error)))
		return
	}

	mark := f.c.ok("✓")
	if !step.Passed {
		mark = f.c.bad("✗")
	}
	f.printf("  %s %s %s\n", mark, step.Name, f.c.info(fmt.Sprintf("(%dms)", step.Duration.Milliseconds())))

	switch {
	case f.verbose && step.URL != "":
		for _, hop := range step.Redirects {
			f.printf("    %s %d %s\n", f.c.info("↳"), hop.StatusCode, hop.Location)
		}
		f.printf("    %s %s\n", step.Status, step.URL)
	case !step.Passed && len(step.Assertions) == 0:
		// nothing to explain the failure but the page itself
		f.printf("    %s %s\n", f.c.bad(step.Status.String()), step.URL)
	}

	if !step.Passed {
		f.writeFailedAssertions(step)
	}
	if f.verbose {
		f.writeCaptures(step.Captures)
	}
}

func (f *ConsoleFormatter) writeFailedAssertions(step *runner.StepResult) {
	for _, a := range step.Assertions {
		if a.Passed {
			continue
		}
		f.printf("    %s %s %s\n", f.c.bad("→"), a.Subject, a.Operator)
		f.printf("      Expected: %s\n", formatValue(a.Expected, 100))
		f.printf("      Actual:   %s\n", formatValue(a.Actual, 100))
		if a.Message != "" {
			f.printf("      %s\n", a.Message)
		}
	}
}

func (f *ConsoleFormatter) writeCaptures(captures map[string]any) {
	if len(captures) == 0 {
		return
	}
	names := make([]string, 0, len(captures))
	for name := range captures {
		names = append(names, name)
	}
	sort.Strings(names)
	f.printf("    Captures:\n")
	for _, name := range names {
		f.printf("      %s = %s\n", name, formatValue(captures[name], 100))
	}
}

func (f *ConsoleFormatter) writeSummary(result *runner.RunResult) {
	var parts []string
	if result.Passed > 0 {
		parts = append(parts, f.c.ok(fmt.Sprintf("%d passed", result.Passed)))
	}
	if result.Failed > 0 {
		parts = append(parts, f.c.bad(fmt.Sprintf("%d failed", result.Failed)))
	}
	if result.Skipped > 0 {
		parts = append(parts, f.c.warn(fmt.Sprintf("%d skipped", result.Skipped)))
	}
	parts = append(parts, fmt.Sprintf("%d total", len(result.Results)))

	f.printf("\nSteps: %s\n", strings.Join(parts, ", "))
	f.printf("Time:  %dms\n\n", result.Duration.Milliseconds())
}

func (f *ConsoleFormatter) FormatError(err error) {
	f.printf("%s %v\n", f.c.bad("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	f.printf("%s %s\n", f.c.bold("hitbrowse"), version)
}
