package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/hitbrowse/packages/browser"
	"github.com/abdul-hamid-achik/hitbrowse/packages/core/config"
	"github.com/abdul-hamid-achik/hitbrowse/packages/core/env"
	"github.com/abdul-hamid-achik/hitbrowse/packages/core/runner"
	"github.com/abdul-hamid-achik/hitbrowse/packages/mock"
	"github.com/abdul-hamid-achik/hitbrowse/packages/output"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>",
	Short: "Run browse scripts against an in-process app",
	Long: `Run browse scripts against an application defined in YAML.

The app is never bound to a port: every request is dispatched in-process,
redirects are followed and cookies are kept between steps.

Directories are searched for *.browse.yaml and *.browse.yml files.

Examples:
  hitbrowse run login.browse.yaml --app shop.yaml
  hitbrowse run ./scripts/ --app shop.yaml --tags smoke
  hitbrowse run ./scripts/ --app shop.yaml -o junit --output-file report.xml
  hitbrowse run login.browse.yaml --app shop.yaml --var user=ada --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	appFlags        []string
	envFileFlag     string
	configFlag      string
	nameFlag        string
	tagsFlag        string
	varFlags        []string
	verboseFlag     int
	quietFlag       bool
	noColorFlag     bool
	outputFlag      string
	outputFileFlag  string
	bailFlag        bool
	timeoutFlag     string
	dryRunFlag      bool
	parallelFlag    bool
	concurrencyFlag int
	watchFlag       bool

	// Browser flags
	baseURLFlag      string
	waitTimeFlag     string
	maxRedirectsFlag int
	noFollowFlag     bool
	legacyBatchFlag  bool
)

func init() {
	// Core flags
	runCmd.Flags().StringSliceVarP(&appFlags, "app", "a", getEnvList("HITBROWSE_APP"), "App definition file(s) to drive (env: HITBROWSE_APP)")
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("HITBROWSE_ENV_FILE", ""), "Path to .env file for variable interpolation (env: HITBROWSE_ENV_FILE)")
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("HITBROWSE_CONFIG", ""), "Path to config file (env: HITBROWSE_CONFIG)")
	runCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Run only steps matching name pattern")
	runCmd.Flags().StringVarP(&tagsFlag, "tags", "t", getEnvString("HITBROWSE_TAGS", ""), "Run only steps with specified tags (comma-separated) (env: HITBROWSE_TAGS)")
	runCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Set a variable (key=value), may be repeated")

	// Output flags
	runCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v shows redirects, -vv logs every step)")
	runCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", getEnvBool("HITBROWSE_QUIET", false), "Suppress all output except errors (env: HITBROWSE_QUIET)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("HITBROWSE_NO_COLOR", false), "Disable colored output (env: HITBROWSE_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("HITBROWSE_OUTPUT", ""), "Output format: console, json, junit (env: HITBROWSE_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("HITBROWSE_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: HITBROWSE_OUTPUT_FILE)")

	// Execution flags
	runCmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("HITBROWSE_BAIL", false), "Stop on first failure (env: HITBROWSE_BAIL)")
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("HITBROWSE_TIMEOUT", "30s"), "Step timeout (e.g., 30s, 1m, 0 for none) (env: HITBROWSE_TIMEOUT)")
	runCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Parse and show what would run without executing")
	runCmd.Flags().BoolVarP(&parallelFlag, "parallel", "p", getEnvBool("HITBROWSE_PARALLEL", false), "Run scripts in parallel, each with its own browser (env: HITBROWSE_PARALLEL)")
	runCmd.Flags().IntVar(&concurrencyFlag, "concurrency", getEnvInt("HITBROWSE_CONCURRENCY", runner.DefaultConcurrency), "Number of scripts run at once in parallel mode (env: HITBROWSE_CONCURRENCY)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch scripts and app files for changes and re-run")

	// Browser flags
	runCmd.Flags().StringVar(&baseURLFlag, "base-url", getEnvString("HITBROWSE_BASE_URL", ""), "Base URL relative paths resolve against (env: HITBROWSE_BASE_URL)")
	runCmd.Flags().StringVar(&waitTimeFlag, "wait-time", getEnvString("HITBROWSE_WAIT_TIME", ""), "How long wait steps poll for text (env: HITBROWSE_WAIT_TIME)")
	runCmd.Flags().IntVar(&maxRedirectsFlag, "max-redirects", getEnvInt("HITBROWSE_MAX_REDIRECTS", 0), "Maximum redirects per navigation, 0 for loop detection only (env: HITBROWSE_MAX_REDIRECTS)")
	runCmd.Flags().BoolVar(&noFollowFlag, "no-follow", false, "Do not follow redirects")
	runCmd.Flags().BoolVar(&legacyBatchFlag, "legacy-batch-cookies", getEnvBool("HITBROWSE_LEGACY_BATCH_COOKIES", false), "Apply only the first entry of a batch cookie add (env: HITBROWSE_LEGACY_BATCH_COOKIES)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	return splitList(os.Getenv(key))
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func runCommand(cmd *cobra.Command, args []string) error {
	if len(appFlags) == 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("--app is required"))
	}

	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	overrides, err := configOverrides()
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	fileConfig = fileConfig.Merge(overrides)
	if err := fileConfig.Validate(); err != nil {
		return withExitCode(ExitConfigError, err)
	}

	// Setup output writer
	var outWriter io.Writer = cmd.OutOrStdout()
	if outputFileFlag != "" {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		outWriter = f
	}

	newFormatter := func() (output.Formatter, error) {
		return output.New(strings.ToLower(fileConfig.Output), outWriter, verboseFlag > 0, fileConfig.GetNoColor() || quietFlag)
	}
	formatter, err := newFormatter()
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	if !quietFlag {
		formatter.FormatHeader(version)
	}

	files, err := collectFiles(args)
	if err != nil {
		formatter.FormatError(err)
		return withExitCode(ExitUsageError, err)
	}
	if len(files) == 0 {
		err := fmt.Errorf("no browse scripts found")
		formatter.FormatError(err)
		return withExitCode(ExitUsageError, err)
	}

	if dryRunFlag {
		for _, file := range files {
			fmt.Fprintf(cmd.OutOrStdout(), "Would run: %s\n", file)
		}
		return nil
	}

	variables, err := loadVariables(envFileFlag, varFlags)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	timeout, err := parseDuration(timeoutFlag)
	if err != nil {
		return withExitCode(ExitUsageError, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", timeoutFlag, err))
	}

	cfg := &runner.Config{
		Verbose:     verboseFlag > 1,
		Bail:        bailFlag,
		NameFilter:  nameFlag,
		TagsFilter:  splitList(tagsFlag),
		Parallel:    parallelFlag,
		Concurrency: concurrencyFlag,
		StepTimeout: timeout,
		Variables:   variables,
		Browser:     buildBrowserOptions(fileConfig),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The app is reloaded on every run so watch mode picks up route changes.
	runScripts := func() (bool, error) {
		app, err := loadApp(appFlags, verboseFlag > 1)
		if err != nil {
			formatter.FormatError(err)
			return false, withExitCode(ExitConfigError, err)
		}

		startTime := time.Now()
		results := runner.NewRunner(app, cfg).RunFiles(ctx, files)

		ok := true
		loadFailed := false
		for _, result := range results {
			formatter.FormatResult(result)
			if !result.Success() {
				ok = false
			}
			if result.Error != nil {
				loadFailed = true
			}
		}

		// Flush output for formatters that accumulate results
		if err := output.Finish(formatter, time.Since(startTime)); err != nil {
			return false, fmt.Errorf("error writing output: %w", err)
		}
		if loadFailed {
			return false, withExitCode(ExitParseError, fmt.Errorf("one or more scripts could not be loaded"))
		}
		return ok, nil
	}

	ok, err := runScripts()

	// If watch mode is not enabled, exit normally
	if !watchFlag {
		if err != nil {
			return err
		}
		if !ok {
			return withExitCode(ExitTestFailure, fmt.Errorf("one or more steps failed"))
		}
		return nil
	}

	// Watch mode: set up file watcher
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range watchDirs(args, files, appFlags) {
		if err := watcher.Add(dir); err != nil {
			formatter.FormatError(fmt.Errorf("failed to watch %s: %w", dir, err))
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	// Debounce timer for rapid file changes
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// Only react to write events on YAML files
			if event.Has(fsnotify.Write) && isYAMLFile(event.Name) {
				// Debounce: reset timer on each event
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "\n\nFile changed: %s\nRe-running scripts...\n\n", event.Name)

					// JSON and JUnit formatters accumulate, so each run gets a fresh one
					if f, err := newFormatter(); err == nil {
						formatter = f
					}
					if _, err := runScripts(); err != nil {
						formatter.FormatError(err)
					}

					fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			formatter.FormatError(fmt.Errorf("watcher error: %w", err))
		}
	}
}

// configOverrides turns the command line flags into a config layered over
// the config file.
func configOverrides() (*config.Config, error) {
	overrides := &config.Config{
		BaseURL:      baseURLFlag,
		MaxRedirects: maxRedirectsFlag,
		Output:       outputFlag,
	}
	if waitTimeFlag != "" {
		d, err := time.ParseDuration(waitTimeFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid wait time %q: %w", waitTimeFlag, err)
		}
		overrides.WaitTime = int(d / time.Millisecond)
	}
	if noFollowFlag {
		overrides.FollowRedirects = config.BoolPtr(false)
	}
	if legacyBatchFlag {
		overrides.LegacyBatchCookies = config.BoolPtr(true)
	}
	if verboseFlag > 0 {
		overrides.Verbose = config.BoolPtr(true)
	}
	if noColorFlag {
		overrides.NoColor = config.BoolPtr(true)
	}
	return overrides, nil
}

// buildBrowserOptions maps the merged config onto browser options.
func buildBrowserOptions(cfg *config.Config) []browser.Option {
	opts := []browser.Option{
		browser.WithFollowRedirects(cfg.GetFollowRedirects()),
		browser.WithMaxRedirects(cfg.MaxRedirects),
		browser.WithLegacyBatchCookies(cfg.GetLegacyBatchCookies()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, browser.WithBaseURL(cfg.BaseURL))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, browser.WithUserAgent(cfg.UserAgent))
	}
	if cfg.WaitTime > 0 {
		opts = append(opts, browser.WithWaitTime(cfg.GetWaitTime()))
	}
	if cfg.CookieDomain != "" {
		opts = append(opts, browser.WithCookieDomain(cfg.CookieDomain))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, browser.WithHeaders(cfg.Headers))
	}
	if verboseFlag > 1 {
		opts = append(opts, browser.WithVerbose(true))
	}
	return opts
}

// loadVariables merges HITBROWSE_VAR_* environment variables, the env file
// and --var flags, later sources winning.
func loadVariables(envFile string, vars []string) (map[string]any, error) {
	variables := env.LoadSystemEnv(env.VariablePrefix)

	if envFile != "" {
		fromFile, err := env.LoadDotEnv(envFile)
		if err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
		variables = env.MergeVariables(variables, env.StringVariables(fromFile))
	}

	fromFlags := make(map[string]any, len(vars))
	for _, kv := range vars {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q (want key=value)", kv)
		}
		fromFlags[name] = value
	}
	return env.MergeVariables(variables, fromFlags), nil
}

func loadApp(paths []string, verbose bool) (*mock.Server, error) {
	server := mock.NewServer(mock.WithVerbose(verbose))
	if err := server.LoadFiles(paths); err != nil {
		return nil, fmt.Errorf("failed to load app: %w", err)
	}
	if len(server.GetRoutes()) == 0 {
		return nil, fmt.Errorf("no routes found in %s", strings.Join(paths, ", "))
	}
	return server, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// watchDirs returns every directory holding a script or app file, plus every
// directory below a directory argument.
func watchDirs(args, files, apps []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	for _, file := range files {
		add(filepath.Dir(file))
	}
	for _, app := range apps {
		add(filepath.Dir(app))
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				add(path)
			}
			return nil
		})
	}
	return dirs
}

// collectFiles expands directory arguments into the browse scripts below
// them. Files named explicitly are taken as long as they are YAML.
func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isScriptFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if isYAMLFile(arg) {
			files = append(files, arg)
		}
	}

	return files, nil
}

func isScriptFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.HasSuffix(base, ".browse.yaml") || strings.HasSuffix(base, ".browse.yml")
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
