package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/maxvaer/w3ccheck/internal/config"
	"github.com/maxvaer/w3ccheck/internal/crawl"
	"github.com/maxvaer/w3ccheck/internal/filter"
	"github.com/maxvaer/w3ccheck/internal/handler"
	"github.com/maxvaer/w3ccheck/internal/hook"
	"github.com/maxvaer/w3ccheck/internal/output"
	"github.com/maxvaer/w3ccheck/internal/resume"
	"github.com/maxvaer/w3ccheck/internal/scanner"
	"github.com/maxvaer/w3ccheck/pkg/version"
	"github.com/maxvaer/w3ccheck/pkg/w3c"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrPagesFailed is returned by Run when at least one page failed
// validation. Callers use it to pick a non-zero exit code.
var ErrPagesFailed = errors.New("pages failed validation")

// Run crawls every target and validates what it finds. It supports
// multiple targets via -l (URL list file).
func Run(ctx context.Context, opts *config.Options, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	targets, err := resolveTargets(opts)
	if err != nil {
		return err
	}
	skip, err := filter.NewSkipPatterns(opts.SkipPatterns)
	if err != nil {
		return err
	}

	pauser, cleanup := startStdinToggle(opts.Quiet, logger)
	defer cleanup()

	failures := 0
	for idx, target := range targets {
		if len(targets) > 1 && !opts.Quiet {
			fmt.Fprintf(os.Stderr, "\n[*] Target %d/%d: %s\n", idx+1, len(targets), target)
		}
		targetOpts := opts
		if len(targets) > 1 {
			targetOpts = perTarget(opts, target)
		}
		stats, err := runSingleTarget(ctx, targetOpts, target, skip, pauser, logger)
		failures += stats.Failures
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.Error("crawl failed", zap.String("target", target), zap.Error(err))
		}
	}
	if failures > 0 {
		return fmt.Errorf("%w: %d", ErrPagesFailed, failures)
	}
	return nil
}

// resolveTargets builds the list of start URLs from -u and -l.
func resolveTargets(opts *config.Options) ([]string, error) {
	var targets []string

	if opts.URL != "" {
		targets = append(targets, startURL(opts.URL))
	}

	if opts.URLsFile != "" {
		f, err := os.Open(opts.URLsFile)
		if err != nil {
			return nil, fmt.Errorf("opening URLs file: %w", err)
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				targets = append(targets, startURL(line))
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("reading URLs file: %w", err)
		}
	}

	if len(targets) == 0 {
		return nil, config.ErrNoTarget
	}
	return targets, nil
}

// perTarget returns a copy of opts whose output and resume files carry a
// slug of the target, so the targets of a -l run do not overwrite each
// other: report.json becomes report-example-com.json.
func perTarget(opts *config.Options, target string) *config.Options {
	o := *opts
	o.OutputFile = withSlug(opts.OutputFile, target)
	o.ResumeFile = withSlug(opts.ResumeFile, target)
	return &o
}

func withSlug(path, target string) string {
	if path == "" {
		return ""
	}
	name := target
	if u, err := url.Parse(target); err == nil {
		name = u.Host + u.Path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + slug.Make(name) + ext
}

// startURL normalizes a target so it matches the links found on its pages:
// a scheme is added and an empty path becomes "/".
func startURL(raw string) string {
	u := config.NormalizeURL(raw)
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return parsed.String()
}

// NewHandlerChain builds the validation handlers from the validator
// settings: markup always, CSS when enabled.
func NewHandlerChain(v config.ValidatorOptions, logger *zap.Logger) (*handler.Chain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	markup, err := NewMarkupValidator(v, logger)
	if err != nil {
		return nil, err
	}
	chain := handler.NewChain()
	chain.Add(handler.NewW3CValidator(markup, v.ShowWarnings, logger))

	if v.CSS {
		css, err := NewCSSValidator(v, logger)
		if err != nil {
			return nil, err
		}
		chain.Add(handler.NewCSSValidator(css, v.ShowWarnings, logger))
	}
	return chain, nil
}

// NewMarkupValidator returns a markup client with the configured charset,
// doctype and debug settings. Charset and doctype may be lookup keys or
// names the validator understands.
func NewMarkupValidator(v config.ValidatorOptions, logger *zap.Logger) (*w3c.MarkupValidator, error) {
	markup := w3c.NewMarkupValidator(append(ValidatorClientOptions(v, logger), w3c.WithValidatorURI(v.MarkupURI))...)
	if v.Charset != "" {
		if _, ok := w3c.Charsets[v.Charset]; ok {
			if err := markup.SetCharsetKey(v.Charset, v.CharsetFallback); err != nil {
				return nil, err
			}
		} else {
			markup.SetCharset(v.Charset, v.CharsetFallback)
		}
	}
	if v.Doctype != "" {
		if _, ok := w3c.Doctypes[v.Doctype]; ok {
			if err := markup.SetDoctypeKey(v.Doctype, v.DoctypeFallback); err != nil {
				return nil, err
			}
		} else {
			markup.SetDoctype(v.Doctype, v.DoctypeFallback)
		}
	}
	if v.Debug {
		markup.SetDebug(true)
	}
	return markup, nil
}

// NewCSSValidator returns a CSS client with the configured profile, warning
// level and message language.
func NewCSSValidator(v config.ValidatorOptions, logger *zap.Logger) (*w3c.CSSValidator, error) {
	css := w3c.NewCSSValidator(append(ValidatorClientOptions(v, logger), w3c.WithValidatorURI(v.CSSURI))...)
	if v.CSSProfile != "" {
		if err := css.SetProfileKey(v.CSSProfile); err != nil {
			return nil, err
		}
	}
	if v.CSSWarnLevel != "" {
		if err := css.SetWarnLevel(v.CSSWarnLevel); err != nil {
			return nil, err
		}
	}
	css.SetLanguage(v.Lang)
	return css, nil
}

// ValidatorClientOptions maps the validator settings shared by the markup
// and CSS clients onto w3c options. A zero rate limit disables limiting.
func ValidatorClientOptions(v config.ValidatorOptions, logger *zap.Logger) []w3c.Option {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if v.RateLimit > 0 {
		limit = rate.Limit(v.RateLimit)
	}
	return []w3c.Option{
		w3c.WithLogger(logger.Named("w3c")),
		w3c.WithRateLimit(limit, 1),
		w3c.WithHTTPClient(&http.Client{Timeout: v.Timeout}),
		w3c.WithUserAgent("w3ccheck/" + version.Version),
	}
}

// NewFilterChain builds the gates a page passes before it is sent to the
// validators.
func NewFilterChain(opts *config.Options) *filter.Chain {
	chain := filter.NewChain()
	if opts.SkipBody != "" {
		chain.Add(filter.NewBodyExcludeFilter(opts.SkipBody))
	}
	if opts.SkipDuplicates {
		chain.Add(filter.NewDuplicateFilter(1))
	}
	return chain
}

// crawler holds the state of one target's crawl.
type crawler struct {
	opts     *config.Options
	target   string
	logger   *zap.Logger
	req      *scanner.Requester
	chain    *handler.Chain
	filters  *filter.Chain
	skip     *filter.SkipPatterns
	out      output.Writer
	progress *output.Progress
	hook     *hook.Runner
	state    *resume.State
	worker   scanner.WorkerConfig

	seen       map[string]struct{} // queued or fetched
	queued     int
	stats      output.Stats
	failedURLs []string
}

func runSingleTarget(ctx context.Context, opts *config.Options, target string, skip *filter.SkipPatterns, pauser *scanner.Pauser, logger *zap.Logger) (output.Stats, error) {
	logger = logger.With(zap.String("target", target))

	// 1. Create HTTP requester.
	req, err := scanner.NewRequester(opts)
	if err != nil {
		return output.Stats{}, fmt.Errorf("creating requester: %w", err)
	}
	defer req.Close()

	// 2. Build handler chain.
	chain, err := NewHandlerChain(opts.Validator, logger)
	if err != nil {
		return output.Stats{}, fmt.Errorf("configuring validator: %w", err)
	}

	c := &crawler{
		opts:    opts,
		target:  target,
		logger:  logger,
		req:     req,
		chain:   chain,
		filters: NewFilterChain(opts),
		skip:    skip,
		seen:    make(map[string]struct{}),
	}
	c.stats.RunID = uuid.NewString()
	frontier := []scanner.WorkItem{{URL: target}}

	// 3. Resume support.
	if opts.ResumeFile != "" {
		release, err := resume.Acquire(opts.ResumeFile)
		if err != nil {
			return output.Stats{}, err
		}
		defer func() {
			if err := release(); err != nil {
				logger.Warn("unlocking resume file", zap.Error(err))
			}
		}()

		existing, err := resume.Load(opts.ResumeFile)
		if err != nil {
			return output.Stats{}, fmt.Errorf("loading resume file: %w", err)
		}
		if existing != nil && existing.URL == target && len(existing.Frontier()) > 0 {
			c.state = existing
			if existing.RunID != "" {
				c.stats.RunID = existing.RunID
			}
			frontier = frontier[:0]
			for _, it := range existing.Frontier() {
				frontier = append(frontier, scanner.WorkItem{URL: it.URL, Referrer: it.Referrer, Depth: it.Depth})
			}
			for _, u := range existing.Completed {
				c.seen[u] = struct{}{}
			}
			c.queued = len(existing.Completed)
			logger.Info("resuming crawl",
				zap.Int("completed", len(existing.Completed)),
				zap.Int("pending", len(frontier)))
		} else {
			c.state = resume.New(opts.ResumeFile, target, c.stats.RunID)
		}
	}
	frontier = c.enqueue(frontier)

	// 4. Create output writer.
	out, err := output.New(opts.OutputFormat, opts.OutputFile, opts.NoColor, opts.Quiet)
	if err != nil {
		return output.Stats{}, fmt.Errorf("creating output writer: %w", err)
	}
	if opts.SortBy != "" {
		out = output.NewSortedWriter(out, opts.SortBy)
	}
	defer out.Close()
	c.out = out

	if err := out.WriteHeader(); err != nil {
		return c.stats, err
	}

	// 5. Print banner.
	if !opts.Quiet {
		printBanner(opts, target, chain)
	}

	// 6. Throttler, hook and workers.
	if opts.OnFailureCmd != "" {
		c.hook = hook.NewRunner(opts.OnFailureCmd, logger)
	}
	c.worker = scanner.WorkerConfig{
		Threads:   opts.Threads,
		Throttler: scanner.NewThrottler(opts.Delay, opts.AdaptiveThrottle, logger),
		Pauser:    pauser,
	}

	c.progress = output.NewProgress(len(frontier), opts.Quiet)
	c.progress.Start()
	startTime := time.Now()

	// 7. Breadth-first crawl, one depth level per worker pool run.
	err = c.crawl(ctx, frontier)
	c.progress.Stop()

	c.stats.Duration = time.Since(startTime)
	if pauser != nil {
		c.stats.Duration -= pauser.PausedDuration()
	}
	if err != nil {
		return c.stats, err
	}

	// Clean up resume file on successful completion.
	if c.state != nil {
		if err := c.state.Remove(); err != nil {
			logger.Warn("removing resume file", zap.Error(err))
		}
	}

	if err := out.WriteFooter(c.stats); err != nil {
		return c.stats, err
	}
	if opts.Tree && !opts.Quiet {
		output.PrintTree(os.Stderr, c.failedURLs)
	}
	return c.stats, nil
}

func (c *crawler) crawl(ctx context.Context, frontier []scanner.WorkItem) error {
	for len(frontier) > 0 {
		c.saveState(frontier)

		next, err := c.runLevel(ctx, frontier)
		if err != nil {
			if ctx.Err() != nil {
				c.saveState(append(frontier, next...))
				if c.state != nil && !c.opts.Quiet {
					c.progress.ClearLine()
					fmt.Fprintf(os.Stderr, "\n[*] Progress saved to %s, resume with --resume-file\n", c.opts.ResumeFile)
				}
			}
			return err
		}
		frontier = next
	}
	return nil
}

// runLevel fetches one depth level and returns the newly queued links.
func (c *crawler) runLevel(ctx context.Context, items []scanner.WorkItem) ([]scanner.WorkItem, error) {
	levelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := scanner.RunWorkerPool(levelCtx, c.req, items, c.worker)

	var next []scanner.WorkItem
	var procErr error
	for result := range results {
		if procErr != nil {
			continue // drain after an output error
		}
		found, err := c.process(levelCtx, &result)
		next = append(next, found...)
		if err != nil {
			procErr = err
			cancel()
		}
	}
	if procErr != nil {
		return next, procErr
	}
	return next, ctx.Err()
}

// process handles one fetched page: it queues the page's links, runs the
// handler chain and reports failures.
func (c *crawler) process(ctx context.Context, result *crawl.Result) ([]scanner.WorkItem, error) {
	c.progress.Increment()
	c.stats.Pages++
	if c.state != nil {
		c.state.MarkCompleted(result.URL)
	}

	if result.Error != nil {
		c.stats.Errors++
		c.progress.IncrementErrors()
		c.logger.Warn("fetch failed", zap.String("url", result.URL), zap.Error(result.Error))
		return nil, nil
	}

	var next []scanner.WorkItem
	if result.OK() && result.Response.IsHTML() && result.Depth < c.opts.MaxDepth {
		var items []scanner.WorkItem
		for _, link := range crawl.ExtractLinks(result.Response.Body, result.Response.URL) {
			if !crawl.SameHost(link, c.target) {
				continue
			}
			if c.skip.Match(link) {
				c.logger.Debug("skipping link", zap.String("url", link))
				continue
			}
			items = append(items, scanner.WorkItem{URL: link, Referrer: result.URL, Depth: result.Depth + 1})
		}
		next = c.enqueue(items)
		c.progress.AddTotal(len(next))
	}

	if c.validates(result) {
		if skipped, reason := c.filters.Apply(result); skipped {
			c.stats.Skipped++
			c.logger.Debug("validation skipped", zap.String("url", result.URL), zap.String("filter", reason))
			result.Response.Body = nil
			return next, nil
		}
		c.stats.Validated++
	}
	failures, err := c.chain.Apply(ctx, result)
	if err != nil {
		if ctx.Err() != nil {
			return next, nil
		}
		c.stats.Errors++
		c.progress.IncrementErrors()
		c.logger.Error("validation failed", zap.String("url", result.URL), zap.Error(err))
	}
	result.Response.Body = nil

	for _, f := range failures {
		c.stats.Failures++
		c.progress.IncrementFailures()
		c.failedURLs = append(c.failedURLs, f.URL)

		c.progress.ClearLine()
		if err := c.out.WriteFailure(f); err != nil {
			c.progress.Redraw()
			return next, err
		}
		c.progress.Redraw()

		if c.hook != nil {
			_, _ = c.hook.Run(ctx, f)
		}
	}
	return next, nil
}

// validates reports whether the handler chain will send the page to a
// validator. Only pages served by the target's host qualify.
func (c *crawler) validates(result *crawl.Result) bool {
	if !result.OK() {
		return false
	}
	// A followed redirect may land on another site.
	if final := result.Response.URL; final != "" && !crawl.SameHost(final, c.target) {
		return false
	}
	return result.Response.IsHTML() || (c.opts.Validator.CSS && result.Response.IsCSS())
}

// enqueue drops items already seen and trims the rest to the page budget.
func (c *crawler) enqueue(items []scanner.WorkItem) []scanner.WorkItem {
	var out []scanner.WorkItem
	for _, it := range items {
		if _, ok := c.seen[it.URL]; ok {
			continue
		}
		if c.opts.MaxPages > 0 && c.queued >= c.opts.MaxPages {
			c.logger.Debug("page budget reached", zap.Int("max_pages", c.opts.MaxPages))
			break
		}
		c.seen[it.URL] = struct{}{}
		c.queued++
		out = append(out, it)
	}
	return out
}

func (c *crawler) saveState(frontier []scanner.WorkItem) {
	if c.state == nil {
		return
	}
	pending := make([]resume.Item, len(frontier))
	for i, it := range frontier {
		pending[i] = resume.Item{URL: it.URL, Referrer: it.Referrer, Depth: it.Depth}
	}
	c.state.SetPending(pending)
	if err := c.state.Save(); err != nil {
		c.logger.Warn("saving resume file", zap.Error(err))
	}
}

func printBanner(opts *config.Options, target string, chain *handler.Chain) {
	accent := color.New(color.FgCyan)
	label := color.New(color.Faint)
	value := color.New(color.FgHiWhite)
	if opts.NoColor {
		for _, c := range []*color.Color{accent, label, value} {
			c.DisableColor()
		}
	}

	accent.Fprintf(os.Stderr, "\n  w3ccheck %s\n", version.Version)
	label.Fprintln(os.Stderr, "  ──────────────────────────────────────")
	row := func(name, format string, args ...any) {
		label.Fprintf(os.Stderr, "  %-14s", name+":")
		value.Fprintf(os.Stderr, format+"\n", args...)
	}
	row("Target", "%s", target)
	row("Threads", "%d", opts.Threads)
	row("Max depth", "%d", opts.MaxDepth)
	if opts.MaxPages > 0 {
		row("Max pages", "%d", opts.MaxPages)
	}
	row("Validator", "%s", opts.Validator.MarkupURI)
	if opts.Validator.CSS {
		row("CSS validator", "%s", opts.Validator.CSSURI)
	}
	if opts.Validator.RateLimit > 0 {
		row("Rate limit", "%.2g req/s", opts.Validator.RateLimit)
	} else {
		row("Rate limit", "off")
	}
	if len(opts.SkipPatterns) > 0 {
		row("Skip", "%s", strings.Join(opts.SkipPatterns, ", "))
	}
	row("Handlers", "%d", chain.Len())
	label.Fprintln(os.Stderr, "  ──────────────────────────────────────")
	fmt.Fprintln(os.Stderr)
}
