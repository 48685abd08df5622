package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fatih/color"
	json "github.com/json-iterator/go"
	"github.com/maxvaer/w3ccheck/internal/config"
	"github.com/maxvaer/w3ccheck/internal/runner"
	"github.com/maxvaer/w3ccheck/pkg/w3c"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var validateCmd = &cobra.Command{
	Use:   "validate (--uri <url> | --file <path> | --text <markup> | -)",
	Short: "Validate a single document without crawling",
	Example: `  w3ccheck validate --uri https://example.com/
  w3ccheck validate --uri https://example.com/ --quick
  w3ccheck validate --file index.html --doctype html401_strict
  w3ccheck validate --css --text "body { colr: red }"
  cat page.html | w3ccheck validate -`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uri, _ := cmd.Flags().GetString("uri")
		file, _ := cmd.Flags().GetString("file")
		text, _ := cmd.Flags().GetString("text")
		css, _ := cmd.Flags().GetBool("css")
		quick, _ := cmd.Flags().GetBool("quick")
		format, _ := cmd.Flags().GetString("format")
		fromStdin := len(args) == 1 && args[0] == "-"

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		req := documentRequest{uri: uri, file: file, text: text, css: css, quick: quick}
		if fromStdin {
			req.stdin = cmd.InOrStdin()
		}
		res, err := validateDocument(ctx, opts.Validator, req)
		if err != nil {
			return err
		}
		if err := printResults(cmd.OutOrStdout(), res, format, opts.NoColor); err != nil {
			return err
		}
		if !res.IsValid() || (opts.Validator.ShowWarnings && len(res.Warnings) > 0) {
			return errReported
		}
		return nil
	},
}

func init() {
	f := validateCmd.Flags()
	f.String("uri", "", "URL of the document to validate")
	f.String("file", "", "Local file to upload")
	f.String("text", "", "Markup or CSS to validate")
	f.Bool("css", false, "Use the CSS validator")
	f.Bool("quick", false, "HEAD check: only report validity and error count (markup, --uri only)")
	f.String("format", "text", "Output format: text, json, yaml")
}

// documentRequest names the one document a validate run checks.
type documentRequest struct {
	uri, file, text string
	stdin           io.Reader
	css, quick      bool
}

func (r documentRequest) sources() int {
	n := 0
	for _, set := range []bool{r.uri != "", r.file != "", r.text != "", r.stdin != nil} {
		if set {
			n++
		}
	}
	return n
}

func validateDocument(ctx context.Context, v config.ValidatorOptions, req documentRequest) (*w3c.Results, error) {
	switch req.sources() {
	case 0:
		return nil, w3c.ErrMissingContent
	case 1:
	default:
		return nil, fmt.Errorf("use only one of --uri, --file, --text or -")
	}
	if req.quick && (req.css || req.uri == "") {
		return nil, fmt.Errorf("--quick only works with --uri on the markup validator")
	}

	if req.css {
		css, err := runner.NewCSSValidator(v, logger)
		if err != nil {
			return nil, err
		}
		switch {
		case req.uri != "":
			return css.ValidateURI(ctx, req.uri)
		case req.file != "":
			return css.ValidateFile(ctx, req.file)
		case req.stdin != nil:
			return css.ValidateReader(ctx, req.stdin)
		default:
			return css.ValidateText(ctx, req.text)
		}
	}

	markup, err := runner.NewMarkupValidator(v, logger)
	if err != nil {
		return nil, err
	}
	switch {
	case req.quick:
		return markup.ValidateURIQuickly(ctx, req.uri)
	case req.uri != "":
		return markup.ValidateURI(ctx, req.uri)
	case req.file != "":
		return markup.ValidateFile(ctx, req.file)
	case req.stdin != nil:
		return markup.ValidateReader(ctx, req.stdin, "stdin.html")
	default:
		return markup.ValidateText(ctx, req.text)
	}
}

func printResults(w io.Writer, res *w3c.Results, format string, noColor bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
	default:
		return fmt.Errorf("format must be one of: text, json, yaml")
	}

	bad := color.New(color.FgRed, color.Bold)
	warn := color.New(color.FgYellow)
	good := color.New(color.FgGreen, color.Bold)
	if noColor {
		for _, c := range []*color.Color{bad, warn, good} {
			c.DisableColor()
		}
	}

	for _, m := range res.Messages() {
		c := bad
		if m.IsWarning() {
			c = warn
		}
		if _, err := c.Fprintln(w, m.String()); err != nil {
			return err
		}
	}
	names := make([]string, 0, len(res.DebugMessages))
	for name := range res.DebugMessages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "debug: %s = %s\n", name, res.DebugMessages[name])
	}

	verdict := good.Sprint("valid")
	if !res.IsValid() {
		verdict = bad.Sprint("invalid")
	}
	_, err := fmt.Fprintf(w, "%s: %s (%d errors, %d warnings)\n", describe(res), verdict, len(res.Errors), len(res.Warnings))
	return err
}

func describe(res *w3c.Results) string {
	if res.URI != "" {
		return res.URI
	}
	return "document"
}
