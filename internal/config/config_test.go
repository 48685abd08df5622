package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	opts, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 5, opts.Threads)
	assert.Equal(t, 3, opts.MaxDepth)
	assert.Equal(t, 500, opts.MaxPages)
	assert.Equal(t, 10*time.Second, opts.Timeout)
	assert.Equal(t, "text", opts.OutputFormat)
	assert.Equal(t, "https://validator.w3.org/check", opts.Validator.MarkupURI)
	assert.Equal(t, "https://jigsaw.w3.org/css-validator/validator", opts.Validator.CSSURI)
	assert.Equal(t, 1.0, opts.Validator.RateLimit)
	assert.Equal(t, 30*time.Second, opts.Validator.Timeout)
	assert.Equal(t, "warn", opts.Log.Level)
	assert.Equal(t, "console", opts.Log.Format)
	assert.Equal(t, []string{`/logout$`}, opts.SkipPatterns)
	assert.True(t, opts.SkipDuplicates)

	assert.ErrorIs(t, opts.RequireTarget(), ErrNoTarget)
}

func TestNewViper_ConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w3ccheck.yaml")
	yaml := `
url: example.com
threads: 2
format: yaml
headers:
  X-Test: hello
validator:
  show_warnings: true
  css: true
  markup_uri: http://localhost:8888/check
log:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	t.Setenv("W3CCHECK_VALIDATOR_RATE_LIMIT", "0")
	t.Setenv("W3CCHECK_MAX_PAGES", "10")

	v, err := NewViper(path)
	require.NoError(t, err)
	opts, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "http://example.com", opts.URL)
	assert.Equal(t, 2, opts.Threads)
	assert.Equal(t, "yaml", opts.OutputFormat)
	assert.Equal(t, "hello", opts.Headers["x-test"])
	assert.True(t, opts.Validator.ShowWarnings)
	assert.True(t, opts.Validator.CSS)
	assert.Equal(t, "http://localhost:8888/check", opts.Validator.MarkupURI)
	assert.Equal(t, 0.0, opts.Validator.RateLimit)
	assert.Equal(t, 10, opts.MaxPages)
	assert.Equal(t, "json", opts.Log.Format)
	assert.NoError(t, opts.RequireTarget())
}

func TestNewViper_MissingExplicitFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		ok     bool
	}{
		{"defaults", func(*Options) {}, true},
		{"zero threads", func(o *Options) { o.Threads = 0 }, false},
		{"negative depth", func(o *Options) { o.MaxDepth = -1 }, false},
		{"negative pages", func(o *Options) { o.MaxPages = -5 }, false},
		{"unknown format", func(o *Options) { o.OutputFormat = "xml" }, false},
		{"sort by url", func(o *Options) { o.SortBy = "url" }, true},
		{"sort by size", func(o *Options) { o.SortBy = "size" }, false},
		{"warn level no", func(o *Options) { o.Validator.CSSWarnLevel = "No" }, true},
		{"bad warn level", func(o *Options) { o.Validator.CSSWarnLevel = "loud" }, false},
		{"negative rate", func(o *Options) { o.Validator.RateLimit = -1 }, false},
		{"bad skip pattern", func(o *Options) { o.SkipPatterns = []string{"(["} }, false},
		{"bad log format", func(o *Options) { o.Log.Format = "logfmt" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			var opts Options
			require.NoError(t, v.Unmarshal(&opts))
			tt.mutate(&opts)

			err := opts.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRequireTarget_RequestFile(t *testing.T) {
	opts := &Options{RequestFile: "req.txt"}
	assert.NoError(t, opts.RequireTarget())
}

func TestNewViper_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("W3CCHECK_THREADS=7\n"), 0644))
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("W3CCHECK_THREADS") })

	v, err := NewViper("")
	require.NoError(t, err)
	opts, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 7, opts.Threads)
}

func TestLoad_ExpandsHome(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("home directory comes from USERPROFILE on Windows")
	}
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	home := t.TempDir()
	t.Setenv("HOME", home)

	v := viper.New()
	SetDefaults(v)
	v.Set("output", "~/reports/site.json")
	v.Set("resume_file", "/abs/state.json")

	opts, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "reports", "site.json"), opts.OutputFile)
	assert.Equal(t, "/abs/state.json", opts.ResumeFile)
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "", NormalizeURL("  "))
	assert.Equal(t, "http://example.com", NormalizeURL("example.com"))
	assert.Equal(t, "https://example.com", NormalizeURL("https://example.com"))
	assert.Equal(t, "http://example.com:8080/x", NormalizeURL(" http://example.com:8080/x "))
}
