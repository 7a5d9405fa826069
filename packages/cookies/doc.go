// Package cookies holds the browser session's cookie store.
//
// Jar is an http.CookieJar keyed by (domain, name) that can also be listed,
// edited and cleared. Manager is the name/value view over a Jar that test code
// uses, with every cookie scoped to a single domain.
package cookies
