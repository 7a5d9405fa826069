package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/hitbrowse/packages/core/parser"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <file|directory>",
	Short: "List the steps of browse scripts",
	Long: `List the steps defined in browse scripts.

Examples:
  hitbrowse list login.browse.yaml
  hitbrowse list ./scripts/`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	if len(files) == 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("no browse scripts found"))
	}

	for _, file := range files {
		f, err := parser.ParseFile(file)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error parsing %s: %v\n", file, err)
			continue
		}

		title := file
		if f.Name != "" {
			title = fmt.Sprintf("%s (%s)", file, f.Name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n", title)
		for _, step := range f.Steps {
			action := step.Action.String()
			if step.Target != "" {
				action += " " + step.Target
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s [%s]\n", step.Name, action)
			if len(step.Tags) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "    tags: %v\n", step.Tags)
			}
		}
	}

	return nil
}
