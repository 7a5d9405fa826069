// Package cmd implements the hitbrowse CLI commands using Cobra.
//
// Available commands:
//   - run: Execute browse scripts against an in-process app
//   - serve: Serve an app definition over HTTP
//   - validate: Check scripts and app definitions without executing
//   - list: Display the steps of each script
//   - init: Create an example app and script
//   - version: Show hitbrowse version information
//
// The run command supports filtering, several output formats, parallel
// scripts and watch mode for development workflows.
package cmd
