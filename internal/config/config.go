package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override settings,
// e.g. W3CCHECK_VALIDATOR_SHOW_WARNINGS=true.
const EnvPrefix = "W3CCHECK"

// ErrNoTarget is returned when a crawl is requested without a start URL.
var ErrNoTarget = errors.New("target required: use -u, -l or --request-file")

// Options holds all configuration for a w3ccheck run.
type Options struct {
	// Target
	URL      string `mapstructure:"url"`
	URLsFile string `mapstructure:"urls_file"`
	MaxDepth int    `mapstructure:"max_depth"` // link-following hops from the start page
	MaxPages int    `mapstructure:"max_pages"` // 0 = unlimited

	// RequestFile seeds the start URL and session headers from a raw HTTP
	// request, e.g. one exported from Burp Suite.
	RequestFile string `mapstructure:"request_file"`

	// Crawl scope
	SkipPatterns   []string `mapstructure:"skip"`            // URL regexps never fetched
	SkipDuplicates bool     `mapstructure:"skip_duplicates"` // validate identical bodies once
	SkipBody       string   `mapstructure:"skip_body"`       // pages containing this are not validated

	// Performance
	Threads          int           `mapstructure:"threads"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Delay            time.Duration `mapstructure:"delay"`
	AdaptiveThrottle bool          `mapstructure:"adaptive_throttle"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`

	// Output
	OutputFile   string `mapstructure:"output"`
	OutputFormat string `mapstructure:"format"` // "text", "json", "csv", "yaml"
	Quiet        bool   `mapstructure:"quiet"`
	NoColor      bool   `mapstructure:"no_color"`
	SortBy       string `mapstructure:"sort"` // "", "url", "description"; buffers until the crawl ends
	Tree         bool   `mapstructure:"tree"` // print failing pages as a path tree

	// HTTP
	Headers         map[string]string `mapstructure:"headers"`
	UserAgent       string            `mapstructure:"user_agent"`
	Proxy           string            `mapstructure:"proxy"`
	FollowRedirects bool              `mapstructure:"follow_redirects"`
	Insecure        bool              `mapstructure:"insecure"`

	// Hooks and resume
	OnFailureCmd string `mapstructure:"on_failure"`
	ResumeFile   string `mapstructure:"resume_file"`

	Validator ValidatorOptions `mapstructure:"validator"`
	Log       LogOptions       `mapstructure:"log"`
}

// ValidatorOptions configures the W3C validator clients and handlers.
type ValidatorOptions struct {
	MarkupURI       string        `mapstructure:"markup_uri"`
	CSSURI          string        `mapstructure:"css_uri"`
	CSS             bool          `mapstructure:"css"` // also validate text/css pages
	ShowWarnings    bool          `mapstructure:"show_warnings"`
	Charset         string        `mapstructure:"charset"`
	CharsetFallback bool          `mapstructure:"charset_fallback"`
	Doctype         string        `mapstructure:"doctype"`
	DoctypeFallback bool          `mapstructure:"doctype_fallback"`
	CSSProfile      string        `mapstructure:"css_profile"`
	CSSWarnLevel    string        `mapstructure:"css_warn_level"`
	Lang            string        `mapstructure:"lang"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Timeout         time.Duration `mapstructure:"timeout"`
	Debug           bool          `mapstructure:"debug"`
}

// LogOptions configures the zap logger.
type LogOptions struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "console" or "json"
	File       string `mapstructure:"file"`   // empty = no log file
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	// -- Target --
	v.SetDefault("max_depth", 3)
	v.SetDefault("max_pages", 500)
	v.SetDefault("skip", []string{`/logout$`})
	v.SetDefault("skip_duplicates", true)

	// -- Performance --
	v.SetDefault("threads", 5)
	v.SetDefault("timeout", "10s")
	v.SetDefault("delay", "0s")
	v.SetDefault("adaptive_throttle", false)
	v.SetDefault("max_body_size", 5*1024*1024)

	// -- Output --
	v.SetDefault("format", "text")

	// -- Validator --
	v.SetDefault("validator.markup_uri", "https://validator.w3.org/check")
	v.SetDefault("validator.css_uri", "https://jigsaw.w3.org/css-validator/validator")
	v.SetDefault("validator.rate_limit", 1.0)
	v.SetDefault("validator.timeout", "30s")
	v.SetDefault("validator.lang", "en")

	// -- Log --
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
}

// NewViper returns a viper instance with defaults registered and the
// environment wired up. If configFile is set it is read; a missing default
// config file is not an error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	// A .env file in the working directory can hold W3CCHECK_* settings.
	// Variables already in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		expanded, err := homedir.Expand(configFile)
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", configFile, err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(".w3ccheck")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals v into Options, normalizes the start URL and checks
// everything but the target.
func Load(v *viper.Viper) (*Options, error) {
	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	opts.URL = NormalizeURL(opts.URL)
	if err := opts.expandPaths(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &opts, nil
}

// expandPaths resolves a leading ~ in every file setting.
func (o *Options) expandPaths() error {
	for _, p := range []*string{&o.URLsFile, &o.RequestFile, &o.OutputFile, &o.ResumeFile, &o.Log.File} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks values that do not depend on what is being validated.
func (o *Options) Validate() error {
	if o.Threads <= 0 {
		return fmt.Errorf("threads must be a positive integer")
	}
	if o.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative")
	}
	if o.MaxPages < 0 {
		return fmt.Errorf("max_pages must not be negative")
	}
	for _, expr := range o.SkipPatterns {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("skip pattern %q: %w", expr, err)
		}
	}
	switch o.OutputFormat {
	case "text", "json", "csv", "yaml":
	default:
		return fmt.Errorf("format must be one of: text, json, csv, yaml")
	}
	switch o.SortBy {
	case "", "url", "description":
	default:
		return fmt.Errorf("sort must be one of: url, description")
	}
	if err := o.Validator.Validate(); err != nil {
		return fmt.Errorf("validator: %w", err)
	}
	if err := o.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// RequireTarget reports ErrNoTarget unless a start URL or URL list is set.
func (o *Options) RequireTarget() error {
	if o.URL == "" && o.URLsFile == "" && o.RequestFile == "" {
		return ErrNoTarget
	}
	return nil
}

// Validate checks the validator settings.
func (v *ValidatorOptions) Validate() error {
	switch strings.ToLower(v.CSSWarnLevel) {
	case "", "0", "1", "2", "no":
	default:
		return fmt.Errorf("css_warn_level must be one of: 0, 1, 2, no")
	}
	if v.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if v.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// Validate checks the logger settings.
func (l *LogOptions) Validate() error {
	switch l.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("format must be console or json")
	}
	return nil
}

// NormalizeURL adds http:// to a bare host name.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return "http://" + u
	}
	return u
}
