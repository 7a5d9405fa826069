// Package browser drives an in-process web application the way a test
// browser would.
//
// A Browser owns a dispatcher and a cookie jar. Every navigation follows
// redirects, records the visited URLs, and drops the cached parsed document
// and forms so the next lookup parses the new page.
package browser
