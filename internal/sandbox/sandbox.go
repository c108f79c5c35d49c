// Package sandbox runs model-proposed commands under a Policy: the raw text
// is screened for shell syntax, tokenized into argv, checked against the
// allow and deny lists, its path-shaped arguments are confined to the
// allowed roots, and the program is executed directly without a shell.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/atinylittleshell/farcode/internal/pathsandbox"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-shellwords"
	"go.uber.org/zap"
)

// waitDelay bounds how long Wait blocks on output pipes after the child has
// been killed or has exited.
const waitDelay = 2 * time.Second

// Request is a validated command line.
type Request struct {
	Raw  string
	Argv []string
}

// String renders the argv with shell quoting, for display and logs.
func (r *Request) String() string {
	return shellescape.QuoteCommand(r.Argv)
}

// Result describes a finished command.
type Result struct {
	// ExitCode is -1 when TimedOut is set.
	ExitCode  int
	TimedOut  bool
	Stdout    string
	Stderr    string
	Output    string
	Truncated bool
	Elapsed   time.Duration
}

type Sandbox struct {
	policy *Policy
	logger *zap.Logger

	// lookPath is swapped out in tests.
	lookPath func(string) (string, error)
}

func New(policy *Policy, logger *zap.Logger) *Sandbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sandbox{
		policy:   policy,
		logger:   logger,
		lookPath: exec.LookPath,
	}
}

func (s *Sandbox) Policy() *Policy {
	return s.policy
}

// Validate runs every check short of execution and returns the tokenized
// request.
func (s *Sandbox) Validate(raw string) (*Request, error) {
	req, err := s.validate(raw)
	if err != nil {
		s.logger.Info("sandbox rejected command",
			zap.String("kind", KindOf(err).Error()),
			zap.String("command", raw),
			zap.Error(err),
		)
		return nil, err
	}
	return req, nil
}

// Check runs the same checks as Validate without logging a rejection. It is
// meant for display, e.g. previewing a command before approval.
func (s *Sandbox) Check(raw string) (*Request, error) {
	return s.validate(raw)
}

func (s *Sandbox) validate(raw string) (*Request, error) {
	if err := s.screen(raw); err != nil {
		return nil, err
	}

	parser := shellwords.NewParser()
	argv, err := parser.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, &Error{Kind: ErrSyntax, Err: err}
	}
	if parser.Position >= 0 {
		// The tokenizer stops at an unquoted operator; never run a prefix.
		return nil, &Error{Kind: ErrInjectionRejected, Token: "shell operator"}
	}
	if len(argv) == 0 {
		return nil, &Error{Kind: ErrEmptyCommand}
	}

	name := argv[0]
	if s.policy.IsForbidden(name) {
		return nil, &Error{Kind: ErrCommandForbidden, Command: name}
	}
	if !s.policy.IsAllowed(name) {
		return nil, &Error{Kind: ErrCommandNotAllowed, Command: name, Allowed: s.policy.AllowedCommands()}
	}

	for _, arg := range argv[1:] {
		if err := s.checkArgument(name, arg); err != nil {
			return nil, err
		}
	}

	return &Request{Raw: raw, Argv: argv}, nil
}

func (s *Sandbox) screen(raw string) error {
	switch s.policy.Screen() {
	case ScreenStructural:
		tok, found, err := screenStructural(raw)
		if err != nil {
			return &Error{Kind: ErrSyntax, Err: err}
		}
		if found {
			return &Error{Kind: ErrInjectionRejected, Token: tok}
		}
	default:
		if tok, found := screenSubstring(raw); found {
			return &Error{Kind: ErrInjectionRejected, Token: tok}
		}
	}
	return nil
}

func (s *Sandbox) checkArgument(name, arg string) error {
	candidate := arg
	if strings.HasPrefix(arg, "-") {
		_, value, ok := strings.Cut(arg, "=")
		if !ok || !strings.HasPrefix(arg, "--") {
			return nil
		}
		candidate = value
	}
	if !isPathShaped(candidate) {
		return nil
	}

	roots := s.policy.Roots()
	resolved, err := pathsandbox.Canonicalize(s.policy.WorkDir(), candidate)
	if err != nil {
		return &Error{Kind: ErrArgumentPathEscape, Command: name, Argument: arg, Allowed: roots, Err: err}
	}
	if !pathsandbox.WithinAny(resolved, roots) {
		return &Error{Kind: ErrArgumentPathEscape, Command: name, Argument: arg, Resolved: resolved, Allowed: roots}
	}
	return nil
}

// isPathShaped reports whether an argument should be treated as a filesystem
// path.
func isPathShaped(arg string) bool {
	switch {
	case arg == "." || arg == "..":
		return true
	case strings.ContainsRune(arg, '/'):
		return true
	case filepath.Separator != '/' && strings.ContainsRune(arg, filepath.Separator):
		return true
	}
	return false
}

// Execute validates raw and runs it. A non-zero exit status is not an error;
// it is reported through Result.ExitCode and Result.Output. On timeout the
// partial result is returned together with an ErrTimeout error.
func (s *Sandbox) Execute(ctx context.Context, raw string) (*Result, error) {
	req, err := s.Validate(raw)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, req)
}

func (s *Sandbox) run(ctx context.Context, req *Request) (*Result, error) {
	name := req.Argv[0]
	path, err := s.lookPath(name)
	if err != nil {
		return nil, s.launchError(name, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := &exec.Cmd{
		Path:      path,
		Args:      req.Argv,
		Dir:       s.policy.WorkDir(),
		Env:       commandEnv(),
		Stdout:    &stdout,
		Stderr:    &stderr,
		WaitDelay: waitDelay,
	}
	setProcessGroup(cmd)

	execCtx, cancel := context.WithTimeout(ctx, s.policy.Timeout())
	defer cancel()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, s.launchError(name, err)
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-execCtx.Done():
		killProcessGroup(cmd)
		<-waitDone
		elapsed := time.Since(start)

		if ctx.Err() != nil {
			s.logger.Info("sandbox command canceled", zap.String("argv", req.String()), zap.Duration("elapsed", elapsed))
			return nil, &Error{Kind: ErrCanceled, Command: name, Err: ctx.Err()}
		}
		s.logger.Info("sandbox command timed out", zap.String("argv", req.String()), zap.Duration("timeout", s.policy.Timeout()))
		result := &Result{
			ExitCode: -1,
			TimedOut: true,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Elapsed:  elapsed,
		}
		result.Output, result.Truncated = truncateOutput(formatOutput(0, result.Stdout, result.Stderr), s.policy.MaxOutputBytes())
		return result, &Error{Kind: ErrTimeout, Command: name, Timeout: s.policy.Timeout()}
	}
	elapsed := time.Since(start)

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, &Error{Kind: ErrLaunchFailed, Command: name, Err: waitErr}
		}
		exitCode = exitErr.ExitCode()
	}

	result := &Result{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Elapsed:  elapsed,
	}
	full := formatOutput(exitCode, result.Stdout, result.Stderr)
	result.Output, result.Truncated = truncateOutput(full, s.policy.MaxOutputBytes())

	s.logger.Debug("sandbox command finished",
		zap.String("argv", req.String()),
		zap.Int("exitCode", exitCode),
		zap.Duration("elapsed", elapsed),
		zap.String("output", humanize.Bytes(uint64(len(full)))),
		zap.Bool("truncated", result.Truncated),
	)
	return result, nil
}

func (s *Sandbox) launchError(name string, err error) error {
	kind := ErrLaunchFailed
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		kind = ErrCommandNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = ErrPermissionDenied
	}
	s.logger.Info("sandbox failed to launch command", zap.String("command", name), zap.Error(err))
	return &Error{Kind: kind, Command: name, Err: err}
}

// commandEnv disables pagers and credential prompts that would otherwise
// block a non-interactive child.
func commandEnv() []string {
	return append(os.Environ(),
		"PAGER=cat",
		"GIT_PAGER=cat",
		"GIT_TERMINAL_PROMPT=0",
	)
}
