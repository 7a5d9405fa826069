// Package capture extracts values from the current page so later steps of a
// browse script can use them as {{name}} or {{step.name}}.
//
// Sources are JSON paths, response headers, cookies, the text of the first
// element matching a CSS selector, the status code, the page URL and the raw body.
package capture
