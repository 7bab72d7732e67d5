package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"imagesynth/artifacts"
	"imagesynth/core"
	"imagesynth/db"
	"imagesynth/imagegen"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.FgHiBlack)
	keyColor  = color.New(color.FgCyan)
)

// parseInterspersed parses flags that may appear before or after positional
// arguments, so "generate a cat -steps 8" and "generate -steps 8 a cat" agree.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func (c *cli) newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: imagesynth %s\n\nFlags:\n", synopsis)
		fs.PrintDefaults()
	}
	return fs
}

func flagExit(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return core.ExitCodeSuccess
	}
	return core.ExitCodeUsage
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (c *cli) generate(args []string) int {
	fs := c.newFlagSet("generate", "generate <prompt> [flags]")
	output := fs.String("output", "", "output file name (default: <timestamp>_<prompt slug>)")
	width := fs.Int("width", imagegen.DefaultWidth, "image width")
	height := fs.Int("height", imagegen.DefaultHeight, "image height")
	format := fs.String("format", string(imagegen.DefaultFormat), "output format: jpg or png")
	steps := fs.Int("steps", imagegen.DefaultSteps, "inference steps, higher is slower and better")
	seed := fs.Int64("seed", -1, "seed for reproducible output (default: random)")
	model := fs.String("model", "", "model selector (default: catalog default)")
	allowFallback := fs.Bool("allow-fallback", false, "allow the paid DALL-E 3 fallback when the free tier is exhausted")
	asJSON := fs.Bool("json", false, "print the result as JSON")

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return flagExit(err)
	}
	if len(positional) == 0 {
		fs.Usage()
		return core.ExitCodeUsage
	}

	f, err := artifacts.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return core.ExitCodeUsage
	}

	req := imagegen.NewRequest(strings.Join(positional, " "))
	req.Width, req.Height, req.Steps = *width, *height, *steps
	req.Format = f
	req.Model = *model
	req.AllowFallback = *allowFallback
	req.OutputName = *output
	if *seed >= 0 {
		s := *seed
		req.Seed = &s
	}

	cfg, logger, code := c.setup(true)
	if code != core.ExitCodeSuccess {
		return code
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger, true)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return core.ExitCodeError
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	if !*asJSON {
		dimColor.Fprintf(c.stdout, "Generating %dx%d %s, %d steps...\n", req.Width, req.Height, req.Format, req.Steps)
	}
	start := time.Now()
	res, genErr := a.orch.Generate(ctx, req)
	if genErr != nil {
		logger.Debug("generation failed", zap.Error(genErr))
	}

	if *asJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		enc.Encode(res)
	} else {
		printResult(c.stdout, res, time.Since(start))
	}

	if ctx.Err() != nil {
		return core.ExitCodeSIGINT
	}
	return exitCodeFor(res)
}

// exitCodeFor maps a generation outcome to the process exit code.
func exitCodeFor(res *imagegen.Result) int {
	if res.Success {
		return core.ExitCodeSuccess
	}
	switch res.Kind {
	case imagegen.KindValidation:
		return core.ExitCodeUsage
	case imagegen.KindConfiguration, imagegen.KindStorageIO:
		return core.ExitCodeError
	default:
		return core.ExitCodeGenerationFailed
	}
}

func printResult(w io.Writer, res *imagegen.Result, elapsed time.Duration) {
	if res.Success {
		okColor.Fprintf(w, "✓ Image saved to %s\n", res.Path)
		if rec := res.Record; rec != nil {
			printField(w, "service", fmt.Sprintf("%s (%s)", res.Service, res.Provider))
			printField(w, "model", rec.Model)
			printField(w, "size", fmt.Sprintf("%dx%d", rec.Width, rec.Height))
			if rec.OriginalSize != "" {
				printField(w, "generated", rec.OriginalSize)
			}
			printField(w, "seed", fmt.Sprint(rec.Seed))
		}
		printField(w, "elapsed", elapsed.Round(time.Millisecond).String())
		return
	}

	failColor.Fprintf(w, "✗ Generation failed [%s]\n", res.Kind)
	fmt.Fprintf(w, "  %s\n", res.Error)
	for _, at := range res.Attempts {
		if at.Success {
			continue
		}
		dimColor.Fprintf(w, "  - %s %s: %s\n", at.Role, at.Provider, at.Category)
	}
	if res.Kind == imagegen.KindProviderQuota {
		warnColor.Fprintln(w, "  Free tier exhausted. Re-run with -allow-fallback to use the paid service.")
	}
}

func printField(w io.Writer, key, value string) {
	keyColor.Fprintf(w, "  %-10s", key)
	fmt.Fprintln(w, value)
}

func (c *cli) status(args []string) int {
	fs := c.newFlagSet("status", "status [-model m]")
	model := fs.String("model", "", "model selector (default: catalog default)")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	cfg, logger, code := c.setup(true)
	if code != core.ExitCodeSuccess {
		return code
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger, false)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return core.ExitCodeError
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	selector := *model
	if selector == "" {
		selector = a.models.DefaultModel()
	}
	res := a.orch.Probe(ctx, selector)

	fmt.Fprintf(c.stdout, "%s: ", selector)
	switch res.Status {
	case imagegen.StatusAvailable:
		okColor.Fprint(c.stdout, res.Status)
	case imagegen.StatusLimited:
		warnColor.Fprint(c.stdout, res.Status)
	default:
		failColor.Fprint(c.stdout, res.Status)
	}
	if res.Message != "" {
		dimColor.Fprintf(c.stdout, " - %s", res.Message)
	}
	fmt.Fprintln(c.stdout)

	if res.Status == imagegen.StatusErrored {
		return core.ExitCodeGenerationFailed
	}
	return core.ExitCodeSuccess
}

func (c *cli) gallery(args []string) int {
	fs := c.newFlagSet("gallery", "gallery [-limit n]")
	limit := fs.Int("limit", 50, "maximum number of images")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	cfg, logger, code := c.setup(true)
	if code != core.ExitCodeSuccess {
		return code
	}
	defer logger.Sync()

	store, err := artifacts.NewStore(cfg.OutputDir, logger)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return core.ExitCodeError
	}
	items, err := store.List(*limit)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return core.ExitCodeError
	}

	if len(items) == 0 {
		dimColor.Fprintf(c.stdout, "No images in %s\n", store.Root())
		return core.ExitCodeSuccess
	}
	for _, it := range items {
		keyColor.Fprint(c.stdout, it.Filename)
		dimColor.Fprintf(c.stdout, "  %dx%d %s %s\n", it.Record.Width, it.Record.Height, it.Record.Service, it.ModTime.Format(time.DateTime))
		fmt.Fprintf(c.stdout, "  %s\n", it.Record.Prompt)
	}
	dimColor.Fprintf(c.stdout, "%d image(s)\n", len(items))
	return core.ExitCodeSuccess
}

func (c *cli) deleteImage(args []string) int {
	fs := c.newFlagSet("delete", "delete <filename>")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return flagExit(err)
	}
	if len(positional) != 1 {
		fs.Usage()
		return core.ExitCodeUsage
	}

	cfg, logger, code := c.setup(true)
	if code != core.ExitCodeSuccess {
		return code
	}
	defer logger.Sync()

	store, err := artifacts.NewStore(cfg.OutputDir, logger)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return core.ExitCodeError
	}

	if err := store.Delete(positional[0]); err != nil {
		failColor.Fprintf(c.stderr, "✗ %v\n", err)
		switch imagegen.KindOf(err) {
		case imagegen.KindPathSecurity:
			return core.ExitCodeUsage
		default:
			return core.ExitCodeError
		}
	}
	okColor.Fprintf(c.stdout, "✓ Deleted %s and its metadata\n", positional[0])
	return core.ExitCodeSuccess
}

func (c *cli) history(args []string) int {
	fs := c.newFlagSet("history", "history [-limit n]")
	limit := fs.Int("limit", 20, "maximum number of attempts")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	cfg, logger, code := c.setup(true)
	if code != core.ExitCodeSuccess {
		return code
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger, true)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return core.ExitCodeError
	}
	defer a.close()

	if a.history == nil {
		warnColor.Fprintln(c.stdout, "History is disabled (DATABASE_PATH is empty)")
		return core.ExitCodeSuccess
	}

	ctx, cancel := signalContext()
	defer cancel()

	attempts, err := a.history.QueryRecentAttempts(ctx, *limit)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return core.ExitCodeError
	}
	for _, at := range attempts {
		dimColor.Fprintf(c.stdout, "%s ", at.CreatedAt.Local().Format(time.DateTime))
		if at.Status == db.StatusSuccess {
			okColor.Fprintf(c.stdout, "%-8s", at.Status)
		} else {
			failColor.Fprintf(c.stdout, "%-8s", at.Status)
		}
		fmt.Fprintf(c.stdout, " %-9s %-12s %s", at.Role, at.Provider, at.Model)
		if at.Category != "" {
			warnColor.Fprintf(c.stdout, " [%s]", at.Category)
		}
		fmt.Fprintln(c.stdout)
	}
	dimColor.Fprintf(c.stdout, "%d attempt(s)\n", len(attempts))
	return core.ExitCodeSuccess
}
