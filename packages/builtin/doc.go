// Package builtin provides the template functions available in browse
// scripts and mock application definitions.
//
// Functions are written as {{$name(args)}}; a bare {{$name}} calls the
// function with no arguments.
package builtin
