package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInjectionRejected  = errors.New("shell metacharacters are not allowed")
	ErrEmptyCommand       = errors.New("empty command")
	ErrSyntax             = errors.New("malformed command")
	ErrCommandForbidden   = errors.New("command is forbidden")
	ErrCommandNotAllowed  = errors.New("command is not allowed")
	ErrArgumentPathEscape = errors.New("argument path outside of allowed directories")
	ErrCommandNotFound    = errors.New("command not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrLaunchFailed       = errors.New("failed to launch command")
	ErrTimeout            = errors.New("command timed out")

	// ErrCanceled is returned when the caller's context ends before the
	// command finishes.
	ErrCanceled = errors.New("command canceled")
)

// Error is returned for every rejected or failed execution. Kind is one of
// the package sentinels; Err holds the underlying cause when there is one.
type Error struct {
	Kind    error
	Command string

	// Token is the offending metacharacter or shell construct for
	// ErrInjectionRejected.
	Token string

	// Argument and Resolved describe the rejected argument for
	// ErrArgumentPathEscape.
	Argument string
	Resolved string

	// Allowed carries the command list or root list relevant to the rejection.
	Allowed []string

	Timeout time.Duration
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrInjectionRejected:
		return fmt.Sprintf("Command contains disallowed shell syntax '%s'. Run a single command without chaining, pipes, redirection or substitution.", e.Token)
	case ErrEmptyCommand:
		return "Empty command provided"
	case ErrSyntax:
		return fmt.Sprintf("Could not parse command: %v", e.Err)
	case ErrCommandForbidden:
		return fmt.Sprintf("Command '%s' is forbidden for security reasons.", e.Command)
	case ErrCommandNotAllowed:
		return fmt.Sprintf("Command '%s' is not in the allowed list. Allowed commands: %s", e.Command, strings.Join(e.Allowed, ", "))
	case ErrArgumentPathEscape:
		msg := fmt.Sprintf("Command references paths outside of allowed directories ('%s'", e.Argument)
		if e.Resolved != "" {
			msg += fmt.Sprintf(" resolves to '%s'", e.Resolved)
		}
		return msg + fmt.Sprintf("). Allowed paths: %s", strings.Join(e.Allowed, ", "))
	case ErrCommandNotFound:
		return fmt.Sprintf("Command '%s' was not found on this system", e.Command)
	case ErrPermissionDenied:
		return fmt.Sprintf("Permission denied when running '%s'", e.Command)
	case ErrCanceled:
		return fmt.Sprintf("Command '%s' was canceled", e.Command)
	case ErrTimeout:
		return fmt.Sprintf("Command exceeded timeout of %s", formatTimeout(e.Timeout))
	}
	if e.Err != nil {
		return fmt.Sprintf("Failed to execute command - %v", e.Err)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the sentinel kind of err, or nil if err did not come from
// this package.
func KindOf(err error) error {
	var sbErr *Error
	if errors.As(err, &sbErr) {
		return sbErr.Kind
	}
	return nil
}

func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		secs := int(d / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	return d.String()
}
