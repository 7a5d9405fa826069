package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/hitbrowse/packages/core/parser"
	"github.com/abdul-hamid-achik/hitbrowse/packages/mock"
	"github.com/spf13/cobra"
)

var validateAppFlags []string

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>",
	Short: "Validate browse scripts and app definitions",
	Long: `Validate browse scripts, and optionally app definitions, without running them.

Examples:
  hitbrowse validate login.browse.yaml
  hitbrowse validate ./scripts/ --app app.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().StringSliceVarP(&validateAppFlags, "app", "a", nil, "App definition file(s) to validate as well")
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	if len(files) == 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("no browse scripts found"))
	}

	hasErrors := false
	for _, file := range files {
		_, err := parser.ParseFile(file)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
		}
	}

	for _, file := range validateAppFlags {
		server := mock.NewServer()
		if err := server.LoadFile(file); err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d routes)\n", file, len(server.GetRoutes()))
		}
	}

	if hasErrors {
		return withExitCode(ExitParseError, fmt.Errorf("validation failed"))
	}

	return nil
}
