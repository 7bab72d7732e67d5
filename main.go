// Command imagesynth generates images from text prompts. Hugging Face
// Inference serves requests first; OpenAI DALL-E 3 is used only when the
// free tier is exhausted and the caller allowed the paid fallback.
//
// Usage:
//
//	imagesynth [serve] [flags]           run the web UI (default)
//	imagesynth generate <prompt> [flags] generate one image
//	imagesynth status [-model m]         probe provider availability
//	imagesynth gallery [-limit n]        list saved images
//	imagesynth delete <filename>         remove an image and its metadata
//	imagesynth history [-limit n]        show recent provider attempts
//	imagesynth service <action>          install|uninstall|start|stop|restart|status
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"imagesynth/core"
	"imagesynth/logging"
)

// cli carries the process-level collaborators shared by every subcommand.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	loadConfig func() (*core.Config, error)
	newLogger  func(cfg *core.Config, quiet bool) (*logging.Logger, error)
}

func newCLI() *cli {
	return &cli{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		loadConfig: core.LoadConfig,
		newLogger:  newLogger,
	}
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	c := newCLI()

	// The service manager starts the binary without a terminal.
	if handled, code := c.runAsService(); handled {
		os.Exit(code)
	}

	os.Exit(c.run(os.Args[1:]))
}

// run dispatches args to a subcommand and returns the process exit code.
func (c *cli) run(args []string) int {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return c.serve(args)
	case "generate":
		return c.generate(args)
	case "status":
		return c.status(args)
	case "gallery":
		return c.gallery(args)
	case "delete":
		return c.deleteImage(args)
	case "history":
		return c.history(args)
	case "service":
		return c.service(args)
	case "install", "uninstall":
		return c.service(append([]string{cmd}, args...))
	case "help", "-h", "--help":
		c.usage(c.stdout)
		return core.ExitCodeSuccess
	default:
		fmt.Fprintf(c.stderr, "unknown command %q\n\n", cmd)
		c.usage(c.stderr)
		return core.ExitCodeUsage
	}
}

func (c *cli) usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: imagesynth <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve      Run the web UI and JSON API (default)")
	fmt.Fprintln(w, "  generate   Generate one image: generate <prompt> [flags]")
	fmt.Fprintln(w, "  status     Probe whether a model can be served right now")
	fmt.Fprintln(w, "  gallery    List saved images, newest first")
	fmt.Fprintln(w, "  delete     Remove an image and its metadata: delete <filename>")
	fmt.Fprintln(w, "  history    Show recent provider attempts")
	fmt.Fprintln(w, "  service    Manage the OS service: install|uninstall|start|stop|restart|status")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'imagesynth <command> -h' for command flags.")
}

// setup loads configuration and the logger. Failures are printed and turned
// into an exit code.
func (c *cli) setup(quiet bool) (*core.Config, *logging.Logger, int) {
	cfg, err := c.loadConfig()
	if err != nil {
		fmt.Fprintf(c.stderr, "Configuration error: %v\n", err)
		return nil, nil, core.ExitCodeError
	}
	logger, err := c.newLogger(cfg, quiet)
	if err != nil {
		fmt.Fprintf(c.stderr, "Failed to initialize logger: %v\n", err)
		return nil, nil, core.ExitCodeError
	}
	return cfg, logger, core.ExitCodeSuccess
}
