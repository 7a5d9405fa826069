// Package env resolves {{placeholders}} in browse scripts.
//
// Values come from script variables, .env files, HITBROWSE_VAR_* process
// environment entries, captures of earlier steps, builtin functions
// ({{$uuid()}}) and raw environment variables ({{$HOME}}).
package env
