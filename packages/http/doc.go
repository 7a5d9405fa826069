// Package http dispatches synthetic requests to an in-process application.
//
// It wraps a plain http.Handler with browser-like behaviour:
//   - Request building from method, URL and form data
//   - Redirect following with loop detection
//   - Cookie jar integration
//   - Response capture and body reading
package http
