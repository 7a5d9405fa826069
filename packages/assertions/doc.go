// Package assertions evaluates browse-script expectations against the page
// a browser is currently on.
//
// Subjects read the page: status, reason, url, title, text, history,
// redirects, cookies, cookie <name>, header <name>, json [path] and
// css <selector>. Operators compare the subject with an expected value:
// equality, ordering, contains, matches, exists, length, includes, in,
// type, each and JSON Schema validation.
package assertions
