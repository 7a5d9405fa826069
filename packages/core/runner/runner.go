package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitbrowse/packages/assertions"
	"github.com/abdul-hamid-achik/hitbrowse/packages/browser"
	"github.com/abdul-hamid-achik/hitbrowse/packages/capture"
	"github.com/abdul-hamid-achik/hitbrowse/packages/cookies"
	"github.com/abdul-hamid-achik/hitbrowse/packages/core/env"
	"github.com/abdul-hamid-achik/hitbrowse/packages/core/parser"
	hithttp "github.com/abdul-hamid-achik/hitbrowse/packages/http"
)

// DefaultConcurrency is the default number of scripts run at once in parallel mode
const DefaultConcurrency = 5

// ErrTextNotFound is returned by a wait step whose text never appeared.
var ErrTextNotFound = errors.New("text not found")

type Runner struct {
	app      http.Handler
	resolver *env.Resolver
	config   *Config
}

type Config struct {
	Verbose     bool
	Bail        bool
	NameFilter  string
	TagsFilter  []string
	Parallel    bool
	Concurrency int
	// StepTimeout bounds every step; zero means no limit.
	StepTimeout time.Duration
	Variables   map[string]any
	Browser     []browser.Option
}

// NewRunner creates a runner that drives app in-process. Every script gets
// its own browser, so scripts never share cookies or history.
func NewRunner(app http.Handler, cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}

	resolver := env.NewResolver()
	resolver.SetVariables(cfg.Variables)
	if cfg.Verbose {
		resolver.SetWarnFunc(log.Printf)
	}

	return &Runner{
		app:      app,
		resolver: resolver,
		config:   cfg,
	}
}

type RunResult struct {
	File     string
	Name     string
	Results  []*StepResult
	Duration time.Duration
	Passed   int
	Failed   int
	Skipped  int
	// Error is set when the script could not be loaded at all.
	Error error
}

// Success reports whether the script loaded and no step failed.
func (r *RunResult) Success() bool {
	return r.Error == nil && r.Failed == 0
}

type StepResult struct {
	Name       string
	Action     string
	Passed     bool
	Skipped    bool
	SkipReason string
	Duration   time.Duration
	URL        string
	Status     browser.StatusCode
	Redirects  []hithttp.Redirect
	Assertions []*assertions.Result
	Captures   map[string]any
	Error      error
}

func (r *Runner) RunFile(path string) (*RunResult, error) {
	return r.RunFileContext(context.Background(), path)
}

func (r *Runner) RunFileContext(ctx context.Context, path string) (*RunResult, error) {
	file, err := parser.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}
	return r.Run(ctx, file)
}

// RunFiles runs every script and returns one result per path, in order.
// A script that fails to load is reported through RunResult.Error.
func (r *Runner) RunFiles(ctx context.Context, paths []string) []*RunResult {
	results := make([]*RunResult, len(paths))

	runOne := func(i int) {
		result, err := r.RunFileContext(ctx, paths[i])
		if err != nil {
			result = &RunResult{File: paths[i], Error: err}
		}
		results[i] = result
	}

	if !r.config.Parallel {
		for i := range paths {
			runOne(i)
			if r.config.Bail && !results[i].Success() {
				for j := i + 1; j < len(paths); j++ {
					results[j] = &RunResult{File: paths[j], Error: errors.New("not run: an earlier script failed")}
				}
				break
			}
		}
		return results
	}

	concurrency := r.config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	for i := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			runOne(idx)
		}(i)
	}
	wg.Wait()
	return results
}

// Run executes the steps of file in order against a fresh browser.
func (r *Runner) Run(ctx context.Context, file *parser.File) (*RunResult, error) {
	start := time.Now()
	baseDir := filepath.Dir(file.Path)

	resolver := r.resolver.Clone()
	if file.EnvFile != "" {
		envPath := file.EnvFile
		if !filepath.IsAbs(envPath) {
			envPath = filepath.Join(baseDir, envPath)
		}
		vars, err := env.LoadDotEnv(envPath)
		if err != nil {
			return nil, fmt.Errorf("loading environment: %w", err)
		}
		resolver.SetVariables(env.StringVariables(vars))
	}
	for _, v := range file.Variables {
		resolver.SetVariable(v.Name, resolver.Resolve(v.Value))
	}

	b := browser.New(r.app, r.config.Browser...)
	defer b.Close()

	result := &RunResult{
		File: file.Path,
		Name: file.Name,
	}

	hasOnly := false
	for _, step := range file.Steps {
		if step.Only {
			hasOnly = true
			break
		}
	}

	halted := ""
	for _, step := range file.Steps {
		if halted == "" && ctx.Err() != nil {
			halted = "cancelled"
		}

		var skipReason string
		switch {
		case halted != "":
			skipReason = halted
		case !r.shouldRun(step, hasOnly):
			skipReason = "filtered out"
		case step.Skip != "":
			skipReason = step.Skip
		}
		if skipReason != "" {
			result.Results = append(result.Results, &StepResult{
				Name:       step.Name,
				Action:     step.Action.String(),
				Skipped:    true,
				SkipReason: skipReason,
			})
			result.Skipped++
			continue
		}

		stepResult := r.executeStep(ctx, b, resolver, step, baseDir)
		result.Results = append(result.Results, stepResult)

		if stepResult.Passed {
			result.Passed++
			continue
		}
		result.Failed++
		if r.config.Bail {
			halted = "bail: an earlier step failed"
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (r *Runner) shouldRun(step *parser.Step, hasOnly bool) bool {
	if hasOnly && !step.Only {
		return false
	}
	if r.config.NameFilter != "" && !matchesPattern(step.Name, r.config.NameFilter) {
		return false
	}
	if len(r.config.TagsFilter) > 0 && !hasAnyTag(step.Tags, r.config.TagsFilter) {
		return false
	}
	return true
}

func (r *Runner) executeStep(ctx context.Context, b *browser.Browser, resolver *env.Resolver, step *parser.Step, baseDir string) *StepResult {
	result := &StepResult{
		Name:     step.Name,
		Action:   step.Action.String(),
		Captures: make(map[string]any),
	}

	if r.config.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.StepTimeout)
		defer cancel()
	}

	start := time.Now()
	err := r.perform(ctx, b, resolver, step)
	result.Duration = time.Since(start)
	result.URL = b.URL()
	result.Status = b.StatusCode()
	result.Redirects = append([]hithttp.Redirect(nil), b.RedirectChain()...)

	if r.config.Verbose {
		log.Printf("step %q: %s %s -> %s", step.Name, step.Action, result.URL, result.Status)
	}

	if err != nil {
		result.Error = err
		return result
	}

	if len(step.Assertions) > 0 {
		resolved := make([]*parser.Assertion, len(step.Assertions))
		for i, a := range step.Assertions {
			resolved[i] = &parser.Assertion{
				Subject:  resolver.Resolve(a.Subject),
				Operator: a.Operator,
				Expected: resolveExpected(resolver, a.Expected),
				Line:     a.Line,
			}
		}
		result.Assertions = assertions.EvaluateAll(b, resolved, assertions.WithBaseDir(baseDir))
		result.Passed = assertions.AllPassed(result.Assertions)
	} else {
		result.Passed = step.Action == parser.ActionCookies || result.Status.IsSuccess()
	}

	if len(step.Captures) > 0 {
		values, missing := capture.ExtractAll(b, step.Captures)
		for name, value := range values {
			result.Captures[name] = value
			resolver.SetCapture(step.Name, name, value)
		}
		if r.config.Verbose && len(missing) > 0 {
			log.Printf("step %q: nothing to capture for %s", step.Name, strings.Join(missing, ", "))
		}
	}

	return result
}

// perform runs the step's action on the browser.
func (r *Runner) perform(ctx context.Context, b *browser.Browser, resolver *env.Resolver, step *parser.Step) error {
	switch step.Action {
	case parser.ActionVisit:
		return b.DoContext(ctx, http.MethodGet, resolver.Resolve(step.Target), nil)

	case parser.ActionPost, parser.ActionRequest:
		return b.DoContext(ctx, step.Method, resolver.Resolve(step.Target), formValues(resolver, step.Data))

	case parser.ActionSubmit:
		form, err := b.Form(resolver.Resolve(step.Target))
		if err != nil {
			return err
		}
		for _, name := range sortedKeys(step.Data) {
			form.Fill(name, resolver.Resolve(step.Data[name]))
		}
		return b.SubmitContext(ctx, form)

	case parser.ActionReload:
		return b.ReloadContext(ctx)

	case parser.ActionBack:
		return b.BackContext(ctx)

	case parser.ActionWait:
		text := resolver.Resolve(step.Target)
		found, err := b.WaitForText(ctx, text)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %q within %s", ErrTextNotFound, text, b.WaitTime())
		}
		return nil

	case parser.ActionCookies:
		applyCookies(b.Cookies(), resolver, step.Cookies)
		return nil

	default:
		return fmt.Errorf("unsupported action: %s", step.Action)
	}
}

// applyCookies runs clear, delete, add and batch add, in that order.
func applyCookies(m *cookies.Manager, resolver *env.Resolver, op *parser.CookieOp) {
	if op == nil {
		return
	}
	if op.Clear {
		m.Delete()
	}
	if len(op.Delete) > 0 {
		m.Delete(op.Delete...)
	}
	if len(op.Add) > 0 {
		m.Add(cookies.Single(resolver.ResolveAll(op.Add)))
	}
	if len(op.Batch) > 0 {
		batch := make(cookies.Batch, len(op.Batch))
		for i, entry := range op.Batch {
			batch[i] = resolver.ResolveAll(entry)
		}
		m.Add(batch)
	}
}

func formValues(resolver *env.Resolver, data map[string]string) url.Values {
	if len(data) == 0 {
		return nil
	}
	values := make(url.Values, len(data))
	for k, v := range data {
		values.Set(k, resolver.Resolve(v))
	}
	return values
}

// resolveExpected interpolates placeholders inside expected values of any shape.
func resolveExpected(resolver *env.Resolver, v any) any {
	switch val := v.(type) {
	case string:
		return resolver.Resolve(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveExpected(resolver, item)
		}
		return out
	case map[string]string:
		return resolver.ResolveAll(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolveExpected(resolver, item)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}

	prefix := strings.HasPrefix(pattern, "*")
	suffix := strings.HasSuffix(pattern, "*")
	switch {
	case prefix && suffix && len(pattern) > 1:
		return strings.Contains(name, pattern[1:len(pattern)-1])
	case prefix:
		return strings.HasSuffix(name, pattern[1:])
	case suffix:
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	default:
		return name == pattern
	}
}

func hasAnyTag(tags []string, filters []string) bool {
	for _, filter := range filters {
		for _, tag := range tags {
			if tag == filter {
				return true
			}
		}
	}
	return false
}
