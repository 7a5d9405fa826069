package output

import (
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/hitbrowse/packages/core/runner"
)

// Formatter renders script results as they complete.
type Formatter interface {
	FormatResult(result *runner.RunResult)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable is implemented by formatters that write everything at the end.
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// Formats lists the names accepted by New.
var Formats = []string{"console", "json", "junit"}

// New returns the formatter registered under name, writing to w.
func New(name string, w io.Writer, verbose, noColor bool) (Formatter, error) {
	switch name {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose), WithNoColor(noColor)), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(w)), nil
	case "junit":
		return NewJUnitFormatter(JUnitWithWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want one of %v)", name, Formats)
	}
}

// Finish flushes f if it accumulates output.
func Finish(f Formatter, totalDuration time.Duration) error {
	if fl, ok := f.(Flushable); ok {
		return fl.Flush(totalDuration)
	}
	return nil
}
