package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/maxvaer/w3ccheck/internal/config"
	"github.com/maxvaer/w3ccheck/internal/logging"
	"github.com/maxvaer/w3ccheck/internal/reqparse"
	"github.com/maxvaer/w3ccheck/internal/runner"
	"github.com/maxvaer/w3ccheck/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	configFile string
	opts       *config.Options
	logger     = zap.NewNop()
)

// errReported marks failures that were already printed, so Execute only
// sets the exit code.
var errReported = errors.New("reported")

type flagGroup struct {
	title string
	flags []string
}

var helpGroups = []flagGroup{
	{"TARGET", []string{"url", "urls-file", "request-file", "max-depth", "max-pages", "skip", "skip-duplicates", "skip-body"}},
	{"VALIDATOR", []string{"markup-uri", "css-uri", "css", "show-warnings", "charset", "charset-fallback", "doctype", "doctype-fallback", "css-profile", "css-warn-level", "lang", "validator-rate", "validator-timeout", "debug"}},
	{"RATE-LIMIT", []string{"threads", "timeout", "delay", "adaptive-throttle", "max-body-size"}},
	{"HTTP", []string{"header", "user-agent", "proxy", "follow-redirects", "insecure"}},
	{"OUTPUT", []string{"output", "format", "quiet", "no-color", "sort", "tree", "on-failure"}},
	{"CONFIGURATION", []string{"config", "resume-file", "log-level", "log-format", "log-file"}},
}

// flagKeys maps each flag to its configuration key.
var flagKeys = map[string]string{
	"url":               "url",
	"urls-file":         "urls_file",
	"max-depth":         "max_depth",
	"max-pages":         "max_pages",
	"request-file":      "request_file",
	"skip":              "skip",
	"skip-duplicates":   "skip_duplicates",
	"skip-body":         "skip_body",
	"threads":           "threads",
	"timeout":           "timeout",
	"delay":             "delay",
	"adaptive-throttle": "adaptive_throttle",
	"max-body-size":     "max_body_size",
	"output":            "output",
	"format":            "format",
	"quiet":             "quiet",
	"no-color":          "no_color",
	"sort":              "sort",
	"tree":              "tree",
	"user-agent":        "user_agent",
	"proxy":             "proxy",
	"follow-redirects":  "follow_redirects",
	"insecure":          "insecure",
	"on-failure":        "on_failure",
	"resume-file":       "resume_file",
	"markup-uri":        "validator.markup_uri",
	"css-uri":           "validator.css_uri",
	"css":               "validator.css",
	"show-warnings":     "validator.show_warnings",
	"charset":           "validator.charset",
	"charset-fallback":  "validator.charset_fallback",
	"doctype":           "validator.doctype",
	"doctype-fallback":  "validator.doctype_fallback",
	"css-profile":       "validator.css_profile",
	"css-warn-level":    "validator.css_warn_level",
	"lang":              "validator.lang",
	"validator-rate":    "validator.rate_limit",
	"validator-timeout": "validator.timeout",
	"debug":             "validator.debug",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"log-file":          "log.file",
}

var rootCmd = &cobra.Command{
	Use:     "w3ccheck -u <url> [flags]",
	Short:   "Crawl a site and check every page with the W3C validators",
	Version: version.Version,
	Long: `w3ccheck crawls a web site from a start URL and sends every HTML page
(and optionally every style sheet) it finds to the W3C Markup and CSS
Validation Services. Pages the validator rejects are reported with the
line, column and message of each error.`,
	Example: `  w3ccheck -u https://example.com
  w3ccheck -u https://example.com --css --show-warnings
  w3ccheck -u https://example.com --markup-uri http://localhost:8888/check --validator-rate 0
  w3ccheck -l urls.txt -o report.json --format json
  w3ccheck -r request.txt --skip '/logout' --skip '\?print='
  w3ccheck -u https://example.com --resume-file crawl.state
  w3ccheck -u https://example.com --on-failure "notify-send {url}"
  w3ccheck validate --file index.html
  w3ccheck update`,
	PersistentPreRunE: loadOptions,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := opts.RequireTarget(); err != nil {
			_ = cmd.Help()
			fmt.Fprintln(os.Stderr)
			return err
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		err := runner.Run(ctx, opts, logger)
		if errors.Is(err, runner.ErrPagesFailed) {
			return fmt.Errorf("%w: %w", errReported, err)
		}
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync(logger)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Config file (default: ./.w3ccheck.yaml)")

	// Validator
	pf.String("markup-uri", "https://validator.w3.org/check", "Markup validator endpoint")
	pf.String("css-uri", "https://jigsaw.w3.org/css-validator/validator", "CSS validator endpoint")
	pf.Bool("show-warnings", false, "Fail pages on validator warnings too")
	pf.String("charset", "", "Character encoding to validate with (name or key, e.g. utf_8)")
	pf.Bool("charset-fallback", false, "Only use --charset when the document declares none")
	pf.String("doctype", "", "Document type to validate with (name or key, e.g. html401_strict)")
	pf.Bool("doctype-fallback", false, "Only use --doctype when the document declares none")
	pf.String("css-profile", "", "CSS profile, e.g. css3")
	pf.String("css-warn-level", "", "CSS warning level: 0, 1, 2 or no")
	pf.String("lang", "en", "Language of CSS validator messages")
	pf.Float64("validator-rate", 1, "Validator requests per second (0 for no limit)")
	pf.Duration("validator-timeout", 30*time.Second, "Validator request timeout")
	pf.Bool("debug", false, "Ask the markup validator for debug information")

	// Logging
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")
	pf.String("log-format", "console", "Log format: console, json")
	pf.String("log-file", "", "Also write JSON logs to this file (rotated)")
	pf.Bool("no-color", false, "Disable colored output")

	f := rootCmd.Flags()

	// Target
	f.StringP("url", "u", "", "Start URL")
	f.StringP("urls-file", "l", "", "File with one start URL per line")
	f.IntP("max-depth", "R", 3, "Maximum link-following depth from the start URL")
	f.Int("max-pages", 500, "Maximum pages to fetch per target (0 for no limit)")
	f.StringP("request-file", "r", "", "Raw HTTP request file: start URL and session headers (e.g. Burp export)")
	f.StringSlice("skip", []string{`/logout$`}, "Regexps of URLs never to fetch")
	f.Bool("skip-duplicates", true, "Validate pages with identical bodies only once")
	f.String("skip-body", "", "Do not validate pages whose body contains this string")
	f.Bool("css", false, "Also validate text/css resources")

	// Performance
	f.IntP("threads", "t", 5, "Number of concurrent fetchers")
	f.Duration("timeout", 10*time.Second, "HTTP request timeout")
	f.Duration("delay", 0, "Delay between requests per thread")
	f.Bool("adaptive-throttle", false, "Auto back-off on 429/rate limits")
	f.Int64("max-body-size", 5*1024*1024, "Maximum bytes read from a page")

	// Output
	f.StringP("output", "o", "", "Output file path")
	f.String("format", "text", "Output format: text, json, csv, yaml")
	f.BoolP("quiet", "q", false, "Minimal output")
	f.String("sort", "", "Sort failures: url, description (buffers until the crawl completes)")
	f.Bool("tree", false, "Print a tree of failing pages after the crawl")

	// HTTP
	f.StringSliceP("header", "H", nil, "Custom headers (Key: Value)")
	f.String("user-agent", "", "Custom User-Agent string")
	f.String("proxy", "", "HTTP/SOCKS proxy URL")
	f.Bool("follow-redirects", false, "Follow HTTP redirects")
	f.BoolP("insecure", "k", false, "Skip TLS certificate verification")

	// Hooks and resume
	f.String("on-failure", "", "Shell command to run for each failing page (receives JSON on stdin)")
	f.String("resume-file", "", "File to save/load crawl progress for resume")

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != rootCmd {
			fmt.Fprint(os.Stderr, cmd.UsageString())
			return
		}
		w := os.Stderr
		fmt.Fprint(w, helpBanner(cmd.Version))
		fmt.Fprintf(w, "%s\n\nUsage:\n  %s\n  %s [command]\n", cmd.Long, cmd.UseLine(), cmd.Name())
		fmt.Fprintf(w, "\nExamples:\n%s\n", cmd.Example)
		fmt.Fprintf(w, "\nCommands:\n")
		for _, sub := range cmd.Commands() {
			if sub.IsAvailableCommand() {
				fmt.Fprintf(w, "  %-12s%s\n", sub.Name(), sub.Short)
			}
		}
		fmt.Fprintf(w, "\nFlags:\n")
		for _, g := range helpGroups {
			fmt.Fprintf(w, "\n%s:\n", g.title)
			for _, name := range g.flags {
				if f := cmd.Flags().Lookup(name); f != nil {
					fmt.Fprintln(w, formatFlag(f))
				}
			}
		}
		fmt.Fprintln(w)
	})

	rootCmd.AddCommand(validateCmd, versionCmd, updateCmd)
}

// loadOptions reads the config file and environment, applies the flags the
// user set and builds the logger.
func loadOptions(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(configFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	o, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := applyRequestFile(o); err != nil {
		return err
	}
	opts = o
	logger = logging.NewStderr(opts.Log, opts.NoColor)
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("loaded config file", zap.String("path", used))
	}
	return nil
}

// bindFlags binds every known flag in fs to its configuration key so that
// flags override the config file and environment only when set. -H values
// are parsed into the headers map.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return bindErr
	}

	if f := fs.Lookup("header"); f != nil && f.Changed {
		values, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		headers, err := parseHeaders(values)
		if err != nil {
			return err
		}
		v.Set("headers", headers)
	}
	return nil
}

// applyRequestFile seeds the start URL and headers from --request-file. An
// explicit -u and explicit headers take precedence.
func applyRequestFile(o *config.Options) error {
	if o.RequestFile == "" {
		return nil
	}
	req, err := reqparse.ParseFile(o.RequestFile)
	if err != nil {
		return err
	}
	if o.URL == "" {
		o.URL = req.URL
	}
	o.Headers = req.MergeHeaders(o.Headers)
	return nil
}

// parseHeaders turns "Key: Value" strings into a map.
func parseHeaders(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, h := range values {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("invalid header format %q, expected 'Key: Value'", h)
		}
		headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return headers, nil
}

// Execute runs the root command. Failed validations exit with 1, other
// errors with 2.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errReported) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

func formatFlag(f *pflag.Flag) string {
	var left string
	if f.Shorthand != "" {
		left = fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	} else {
		left = fmt.Sprintf("    --%s", f.Name)
	}

	typ := f.Value.Type()
	if typ != "bool" {
		left += " " + typ
	}

	// Pad to fixed column width for aligned descriptions.
	const col = 36
	for len(left) < col {
		left += " "
	}

	right := f.Usage
	// Show default for non-zero values.
	def := f.DefValue
	if def != "" && def != "false" && def != "0" && def != "0s" && def != "[]" {
		right += fmt.Sprintf(" (default %s)", def)
	}

	return "   " + left + right
}

func helpBanner(ver string) string {
	if ver != "dev" && ver != "" && !strings.HasPrefix(ver, "v") {
		ver = "v" + ver
	}
	return fmt.Sprintf(`
            _____       __              __
 _      __ |__  /_____ / /_  ___  _____/ /__
| | /| / /  /_ </ ___// __ \/ _ \/ ___/ //_/
| |/ |/ / ___/ / /__ / / / /  __/ /__/ ,<
|__/|__/ /____/\___//_/ /_/\___/\___/_/|_|   %s

`, ver)
}
