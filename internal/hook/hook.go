package hook

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/maxvaer/w3ccheck/internal/crawl"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single hook invocation.
const DefaultTimeout = 30 * time.Second

// failureJSON is the JSON payload sent to the hook command via stdin.
type failureJSON struct {
	URL         string   `json:"url"`
	Referrer    string   `json:"referrer,omitempty"`
	StatusCode  int      `json:"status"`
	Description string   `json:"description"`
	Messages    []string `json:"messages"`
}

// Runner executes a shell command for each page that failed validation.
type Runner struct {
	cmd     string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner creates a hook runner. cmd is the shell command to execute.
func NewRunner(cmd string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cmd: cmd, timeout: DefaultTimeout, logger: logger.Named("hook")}
}

// Run executes the hook command with the failure as JSON on stdin and
// returns the command's stdout. The {url}, {status} and {description}
// placeholders expand to quoted references to W3CCHECK_URL,
// W3CCHECK_STATUS and W3CCHECK_DESCRIPTION, which carry the values.
// Errors are logged and returned but callers should not stop crawling on
// them.
func (r *Runner) Run(ctx context.Context, failure *crawl.Result) ([]byte, error) {
	payload := failureJSON{
		URL:         failure.URL,
		Referrer:    failure.Referrer,
		Description: failure.Description,
		Messages:    []string{},
	}
	if failure.Response != nil {
		payload.StatusCode = failure.Response.StatusCode
	}
	if failure.Data != "" {
		payload.Messages = strings.Split(failure.Data, "\n")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("marshal failure", zap.Error(err))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Page values reach the shell only through the environment; crawled
	// URLs may contain shell syntax.
	expanded := strings.NewReplacer(
		"{url}", envRef(envURL),
		"{status}", envRef(envStatus),
		"{description}", envRef(envDescription),
	).Replace(r.cmd)

	shell, args := shellCommand()
	cmd := exec.CommandContext(ctx, shell, append(args, expanded)...)
	cmd.Env = append(os.Environ(),
		envURL+"="+failure.URL,
		envStatus+"="+strconv.Itoa(payload.StatusCode),
		envDescription+"="+failure.Description,
	)
	cmd.Stdin = bytes.NewReader(data)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		r.logger.Warn("hook command failed",
			zap.String("url", failure.URL),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
			zap.Error(err))
		return output, err
	}
	if len(output) > 0 {
		r.logger.Info("hook output", zap.String("url", failure.URL), zap.ByteString("output", bytes.TrimSpace(output)))
	}
	return output, nil
}

// Environment variables carrying the failure to the hook command.
const (
	envURL         = "W3CCHECK_URL"
	envStatus      = "W3CCHECK_STATUS"
	envDescription = "W3CCHECK_DESCRIPTION"
)

// envRef is the quoted shell reference a placeholder expands to. cmd.exe
// runs with delayed expansion so the value is substituted after parsing.
func envRef(name string) string {
	if runtime.GOOS == "windows" {
		return `"!` + name + `!"`
	}
	return `"$` + name + `"`
}

func shellCommand() (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/V:ON", "/C"}
	}
	return "sh", []string{"-c"}
}
