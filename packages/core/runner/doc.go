// Package runner executes browse scripts against an in-process application.
//
// Each script runs its steps in order on a fresh browser, resolving
// {{placeholders}} from script variables, .env files and earlier captures.
// Steps can be filtered by name or tag, skipped, or cut short with bail.
// Independent scripts may run concurrently, each with its own browser.
package runner
