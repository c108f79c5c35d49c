package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/atinylittleshell/farcode/internal/pathsandbox"
	"github.com/samber/lo"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxOutputBytes = 10000
)

// DefaultAllowedCommands are the programs a model may run when no allow list
// is configured.
var DefaultAllowedCommands = []string{
	"ls", "pwd", "echo", "cat", "head", "tail", "grep", "find", "wc", "sort",
	"uniq", "cut", "date", "whoami", "hostname", "ps", "top", "df", "du",
	"free", "uname", "which", "whereis", "git", "python", "pip", "conda",
	"node", "npm", "yarn", "docker", "kubectl", "aws", "gcloud", "curl",
	"wget", "netstat", "ifconfig", "ping",
}

// DefaultForbiddenCommands are rejected even if an allow list names them.
var DefaultForbiddenCommands = []string{
	"rm", "mv", "cp", "chmod", "chown", "mkdir", "touch", "dd", "mkfs",
	"mount", "umount", "losetup", "sudo", "su", "passwd", "usermod",
	"userdel", "groupadd", "groupdel", "shutdown", "halt", "reboot",
	"poweroff", "kill", "killall", "rmmod", "insmod", "modprobe", "shred",
	"sfdisk", "fdisk", "parted", "crontab", "at", "anacron", "chattr",
	"lsof", "nslookup", "dig", "traceroute", "tcpdump", "iptables",
	"firewall-cmd", "ufw",
}

// ScreenMode selects how raw command text is screened for shell syntax.
type ScreenMode int

const (
	// ScreenSubstring rejects any occurrence of a shell operator character
	// sequence, quoted or not.
	ScreenSubstring ScreenMode = iota
	// ScreenStructural parses the command as shell and rejects only real
	// operators, so quoted operator characters pass as data.
	ScreenStructural
)

func (m ScreenMode) String() string {
	switch m {
	case ScreenStructural:
		return "structural"
	default:
		return "substring"
	}
}

// ParseScreenMode maps a settings value to a ScreenMode. The empty string
// selects ScreenSubstring.
func ParseScreenMode(s string) (ScreenMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "substring":
		return ScreenSubstring, nil
	case "structural":
		return ScreenStructural, nil
	}
	return ScreenSubstring, fmt.Errorf("unknown sandbox screen mode %q", s)
}

// PolicyConfig is the user-facing form of a Policy. Zero values select the
// defaults.
type PolicyConfig struct {
	AllowedCommands   []string
	ForbiddenCommands []string
	AllowedRoots      []string
	Timeout           time.Duration
	MaxOutputBytes    int
	WorkDir           string
	Screen            ScreenMode
}

// Policy is the immutable rule set applied by a Sandbox.
type Policy struct {
	allowed   map[string]struct{}
	forbidden map[string]struct{}
	roots     []string
	timeout   time.Duration
	maxOutput int
	workDir   string
	screen    ScreenMode
}

// NewPolicy validates cfg and fills in defaults. Roots and the work dir must
// exist; they are stored in canonical form.
func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("sandbox timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.MaxOutputBytes < 0 {
		return nil, fmt.Errorf("sandbox max output must be positive, got %d", cfg.MaxOutputBytes)
	}

	allowed := normalizeNames(cfg.AllowedCommands)
	if len(allowed) == 0 {
		allowed = DefaultAllowedCommands
	}
	forbidden := normalizeNames(cfg.ForbiddenCommands)
	if len(forbidden) == 0 {
		forbidden = DefaultForbiddenCommands
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		workDir = cwd
	}
	workDir, err := pathsandbox.CanonicalBase(workDir)
	if err != nil {
		return nil, fmt.Errorf("invalid sandbox working directory: %w", err)
	}

	rootInputs := lo.Filter(cfg.AllowedRoots, func(r string, _ int) bool { return strings.TrimSpace(r) != "" })
	if len(rootInputs) == 0 {
		rootInputs = []string{workDir}
	}
	roots := make([]string, 0, len(rootInputs))
	for _, r := range rootInputs {
		if !filepath.IsAbs(r) {
			r = filepath.Join(workDir, r)
		}
		canonical, err := pathsandbox.CanonicalBase(r)
		if err != nil {
			return nil, fmt.Errorf("invalid sandbox root: %w", err)
		}
		roots = append(roots, canonical)
	}

	p := &Policy{
		allowed:   toSet(allowed),
		forbidden: toSet(forbidden),
		roots:     lo.Uniq(roots),
		timeout:   cfg.Timeout,
		maxOutput: cfg.MaxOutputBytes,
		workDir:   workDir,
		screen:    cfg.Screen,
	}
	if p.timeout == 0 {
		p.timeout = DefaultTimeout
	}
	if p.maxOutput == 0 {
		p.maxOutput = DefaultMaxOutputBytes
	}
	return p, nil
}

// IsForbidden reports whether name, or the program it points at, is on the
// deny list.
func (p *Policy) IsForbidden(name string) bool {
	if _, ok := p.forbidden[name]; ok {
		return true
	}
	_, ok := p.forbidden[filepath.Base(name)]
	return ok
}

// IsAllowed reports whether name is on the allow list. It does not consult
// the deny list.
func (p *Policy) IsAllowed(name string) bool {
	_, ok := p.allowed[name]
	return ok
}

// AllowedCommands returns the allow list in sorted order.
func (p *Policy) AllowedCommands() []string { return sortedKeys(p.allowed) }

// ForbiddenCommands returns the deny list in sorted order.
func (p *Policy) ForbiddenCommands() []string { return sortedKeys(p.forbidden) }

func (p *Policy) Roots() []string { return slices.Clone(p.roots) }

func (p *Policy) Timeout() time.Duration { return p.timeout }

func (p *Policy) MaxOutputBytes() int { return p.maxOutput }

func (p *Policy) WorkDir() string { return p.workDir }

func (p *Policy) Screen() ScreenMode { return p.screen }

func normalizeNames(names []string) []string {
	trimmed := lo.Map(names, func(n string, _ int) string { return strings.TrimSpace(n) })
	return lo.Uniq(lo.Filter(trimmed, func(n string, _ int) bool { return n != "" }))
}

func toSet(names []string) map[string]struct{} {
	return lo.SliceToMap(names, func(n string) (string, struct{}) { return n, struct{}{} })
}

func sortedKeys(set map[string]struct{}) []string {
	keys := lo.Keys(set)
	slices.Sort(keys)
	return keys
}
