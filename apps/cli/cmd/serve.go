package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/hitbrowse/packages/mock"
	"github.com/spf13/cobra"
)

var (
	servePortFlag    int
	serveDelayFlag   string
	serveVerboseFlag bool
)

var serveCmd = &cobra.Command{
	Use:   "serve <app.yaml>...",
	Short: "Serve an app definition over HTTP",
	Long: `Serve the routes of one or more app definitions over HTTP, so the
same app browse scripts drive in-process can be opened in a real browser.

The server:
- Supports path parameters (e.g., /users/{{id}})
- Sets, clears and requires cookies
- Answers with redirects, templated bodies and headers
- Can add artificial delays to simulate network latency

Examples:
  hitbrowse serve app.yaml
  hitbrowse serve app.yaml --port 3000
  hitbrowse serve app.yaml --port 3000 --delay 100ms
  hitbrowse serve app.yaml admin.yaml --verbose`,
	Args: cobra.MinimumNArgs(1),
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().IntVarP(&servePortFlag, "port", "p", getEnvInt("HITBROWSE_PORT", 3000), "Port to run the server on (env: HITBROWSE_PORT)")
	serveCmd.Flags().StringVarP(&serveDelayFlag, "delay", "d", "0", "Delay to add to all responses (e.g., 100ms, 1s)")
	serveCmd.Flags().BoolVarP(&serveVerboseFlag, "verbose", "v", false, "Enable verbose logging")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	delay, err := parseDuration(serveDelayFlag)
	if err != nil {
		return withExitCode(ExitUsageError, fmt.Errorf("invalid delay value %q: %w", serveDelayFlag, err))
	}

	server := mock.NewServer(
		mock.WithPort(servePortFlag),
		mock.WithDelay(delay),
		mock.WithVerbose(serveVerboseFlag),
	)

	if err := server.LoadFiles(args); err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("failed to load app: %w", err))
	}

	routes := server.GetRoutes()
	if len(routes) == 0 {
		return withExitCode(ExitConfigError, fmt.Errorf("no routes found in the provided files"))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d routes from %d files\n", len(routes), len(args))
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://localhost:%d\n", servePortFlag)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down server...")
		cancel()
	}()

	start := time.Now()
	err = server.StartWithContext(ctx)
	if serveVerboseFlag {
		fmt.Fprintf(cmd.OutOrStdout(), "Served for %s\n", time.Since(start).Round(time.Second))
	}
	return err
}
