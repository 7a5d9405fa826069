// Package output renders browse-script results.
//
// Supported formats:
//   - console: coloured terminal output
//   - json: one machine-readable document for the whole run
//   - junit: JUnit XML for CI systems
//
// Every formatter implements Formatter. JSON and JUnit accumulate results
// and implement Flushable to write them once the run is over.
package output
