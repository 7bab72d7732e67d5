package main

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"

	"imagesynth/core"
	"imagesynth/shutdown"
)

const serviceName = "imagesynth"

// program runs serve under the host service manager (systemd, launchd or
// the Windows SCM).
type program struct {
	cli *cli

	mu      sync.Mutex
	mgr     *shutdown.Manager
	timeout time.Duration
	done    chan struct{}
	code    int
}

// Start must not block; the server runs in its own goroutine.
func (p *program) Start(s service.Service) error {
	cfg, logger, code := p.cli.setup(false)
	if code != core.ExitCodeSuccess {
		return fmt.Errorf("service setup failed with exit code %d", code)
	}

	mgr := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
	srv, err := newServer(cfg, logger, mgr)
	if err != nil {
		mgr.Shutdown()
		return err
	}

	p.mu.Lock()
	p.mgr = mgr
	p.timeout = cfg.ShutdownTimeout
	p.done = make(chan struct{})
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		if err := srv.run(nil); err != nil {
			logger.Error("Service stopped with error", zap.Error(err))
			p.code = core.ExitCodeError
			return
		}
		p.code = mgr.ExitCode()
	}()
	return nil
}

// Stop asks the server to shut down and waits for the sequence to finish.
func (p *program) Stop(s service.Service) error {
	p.mu.Lock()
	mgr, done, timeout := p.mgr, p.done, p.timeout
	p.mu.Unlock()
	if mgr == nil {
		return nil
	}

	mgr.Trigger(syscall.SIGTERM)

	if timeout <= 0 {
		timeout = shutdown.DefaultTimeout
	}

	// in-flight wait plus the handlers, each bounded by timeout
	select {
	case <-done:
		return nil
	case <-time.After(2*timeout + 10*time.Second):
		return errors.New("timeout waiting for service to stop")
	}
}

// serviceConfig describes the service. The working directory is the one the
// install command ran in, so .env and relative paths resolve the same way.
func serviceConfig() *service.Config {
	cfg := &service.Config{
		Name:        serviceName,
		DisplayName: "imagesynth Image Generator",
		Description: "Text-to-image web UI with Hugging Face primary and DALL-E 3 fallback",
		Arguments:   []string{"serve", "-skip-validation"},
	}
	if wd, err := os.Getwd(); err == nil {
		cfg.WorkingDirectory = wd
	}
	cfg.Option = service.KeyValue{
		"StartType": "automatic",
		"Restart":   "on-failure",
	}
	return cfg
}

func (c *cli) newService() (service.Service, *program, error) {
	prg := &program{cli: c}
	s, err := service.New(prg, serviceConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, prg, nil
}

// runAsService runs the program under the service manager when the process
// was not started from a terminal. It reports false for interactive runs.
func (c *cli) runAsService() (bool, int) {
	if service.Interactive() {
		return false, 0
	}

	s, prg, err := c.newService()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return true, core.ExitCodeError
	}
	if err := s.Run(); err != nil {
		fmt.Fprintf(c.stderr, "Error: service run failed: %v\n", err)
		return true, core.ExitCodeError
	}
	return true, prg.code
}

// service handles "service <action>" and the install/uninstall shortcuts.
func (c *cli) service(args []string) int {
	if len(args) != 1 {
		c.serviceUsage()
		return core.ExitCodeUsage
	}

	s, _, err := c.newService()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return core.ExitCodeError
	}

	action := args[0]
	switch action {
	case "status":
		status, err := s.Status()
		if err != nil {
			failColor.Fprintf(c.stderr, "✗ failed to get service status: %v\n", err)
			return core.ExitCodeError
		}
		fmt.Fprintf(c.stdout, "Service is %s\n", serviceStatusName(status))
		return core.ExitCodeSuccess
	case "remove":
		action = "uninstall"
	case "help", "-h", "--help":
		c.serviceUsage()
		return core.ExitCodeSuccess
	}

	if !isControlAction(action) {
		fmt.Fprintf(c.stderr, "unknown service action %q\n", action)
		c.serviceUsage()
		return core.ExitCodeUsage
	}

	if err := service.Control(s, action); err != nil {
		failColor.Fprintf(c.stderr, "✗ failed to %s service: %v\n", action, err)
		return core.ExitCodeError
	}
	okColor.Fprintf(c.stdout, "✓ Service %s succeeded\n", action)
	return core.ExitCodeSuccess
}

func isControlAction(action string) bool {
	for _, a := range service.ControlAction {
		if a == action {
			return true
		}
	}
	return false
}

func serviceStatusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "in an unknown state"
	}
}

func (c *cli) serviceUsage() {
	fmt.Fprintln(c.stderr, "Usage: imagesynth service <action>")
	fmt.Fprintln(c.stderr)
	fmt.Fprintln(c.stderr, "Actions:")
	fmt.Fprintln(c.stderr, "  install    Register the binary with the host service manager")
	fmt.Fprintln(c.stderr, "  uninstall  Remove the service (alias: remove)")
	fmt.Fprintln(c.stderr, "  start      Start the service")
	fmt.Fprintln(c.stderr, "  stop       Stop the service")
	fmt.Fprintln(c.stderr, "  restart    Restart the service")
	fmt.Fprintln(c.stderr, "  status     Show the current service status")
}
