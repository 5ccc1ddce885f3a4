package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Execution limits. Output beyond MaxOutputChars is truncated with a marker
// so the reasoning loop sees that content was dropped.
const (
	DefaultCommandTimeout = 30 * time.Second
	MaxOutputChars        = 4000
	maxSearchLines        = 30
)

// Config holds sandbox settings.
type Config struct {
	WorkDir        string        `json:"work_dir"`
	CommandTimeout time.Duration `json:"command_timeout,omitempty"`
	MaxOutputChars int           `json:"max_output_chars,omitempty"`
}

// Sandbox executes the fixed tool set under path confinement, a command
// deny-list, and a wall-clock timeout. Every outcome — success, policy
// rejection, or timeout — comes back as a plain observation string so the
// caller can always keep reasoning about it.
type Sandbox struct {
	workDir   string
	timeout   time.Duration
	maxOutput int
	logger    *zap.Logger
}

// New creates a sandbox rooted at cfg.WorkDir. The directory must exist.
func New(cfg Config, logger *zap.Logger) (*Sandbox, error) {
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	abs, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}
	// Resolve symlinks once so confinement checks compare real paths.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat work dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("work dir %s is not a directory", resolved)
	}

	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.MaxOutputChars == 0 {
		cfg.MaxOutputChars = MaxOutputChars
	}
	return &Sandbox{
		workDir:   resolved,
		timeout:   cfg.CommandTimeout,
		maxOutput: cfg.MaxOutputChars,
		logger:    logger,
	}, nil
}

// WorkDir returns the confinement root.
func (s *Sandbox) WorkDir() string { return s.workDir }

// confine resolves path relative to the work dir and rejects anything that
// escapes it. Returns the resolved absolute path.
func (s *Sandbox) confine(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	p := path
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.workDir, p)
	}
	p = filepath.Clean(p)

	// Resolve symlinks on the deepest existing ancestor so a link inside the
	// work dir cannot point outside it.
	resolved := p
	if real, err := filepath.EvalSymlinks(p); err == nil {
		resolved = real
	} else if real, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		resolved = filepath.Join(real, filepath.Base(p))
	}

	rel, err := filepath.Rel(s.workDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return resolved, true
}

// RunCommand executes a shell command under the deny-list and timeout.
func (s *Sandbox) RunCommand(ctx context.Context, cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return "(no command)"
	}

	if desc, denied := checkDenyList(cmd); denied {
		s.logger.Warn("blocked dangerous command",
			zap.String("reason", desc), zap.String("command", truncate(cmd, 50)))
		return fmt.Sprintf("(blocked: potentially dangerous command - %s)", desc)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, "/bin/sh", "-c", cmd)
	c.Dir = s.workDir
	c.Env = append(os.Environ(), "TERM=dumb")
	// Kill the whole process, not just the shell, when the deadline hits.
	c.WaitDelay = time.Second

	out, err := c.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		s.logger.Warn("command timed out", zap.Duration("timeout", s.timeout))
		return fmt.Sprintf("(timed out after %s)", s.timeout)
	}
	output := strings.TrimSpace(string(out))
	if err != nil {
		if output == "" {
			return fmt.Sprintf("(error executing command: %v)", err)
		}
		output = fmt.Sprintf("%s\n(exit: %v)", output, err)
	}
	if output == "" {
		return "(no output)"
	}
	return s.truncateOutput(output)
}

// ReadFile returns file contents, confined to the work dir.
func (s *Sandbox) ReadFile(path string) string {
	p, ok := s.confine(path)
	if !ok {
		s.logger.Warn("blocked path traversal", zap.String("path", path))
		return "(access denied: path outside working directory)"
	}

	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("(file not found: %s)", p)
		}
		return fmt.Sprintf("(error reading %s: %v)", path, err)
	}
	if info.IsDir() {
		return fmt.Sprintf("(not a file: %s)", p)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return fmt.Sprintf("(error reading %s: %v)", path, err)
	}
	return s.truncateOutput(string(data))
}

// WriteFile writes content to a file, confined to the work dir. Parent
// directories are created as needed.
func (s *Sandbox) WriteFile(path, content string) string {
	p, ok := s.confine(path)
	if !ok {
		s.logger.Warn("blocked path traversal", zap.String("path", path))
		return "(access denied: path outside working directory)"
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Sprintf("(error writing %s: %v)", path, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return fmt.Sprintf("(error writing %s: %v)", path, err)
	}
	return fmt.Sprintf("written %d chars to %s", len(content), p)
}

// Search greps for a literal pattern under path (relative to the work dir),
// capped at maxSearchLines matches.
func (s *Sandbox) Search(ctx context.Context, pattern, path string) string {
	if strings.TrimSpace(pattern) == "" {
		return "(empty search pattern)"
	}
	if path == "" {
		path = "."
	}
	p, ok := s.confine(path)
	if !ok {
		s.logger.Warn("blocked path traversal", zap.String("path", path))
		return "(access denied: path outside working directory)"
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// "--" keeps patterns starting with "-" from being read as flags.
	c := exec.CommandContext(runCtx, "grep", "-rn", "--", pattern, p)
	c.Dir = s.workDir
	c.WaitDelay = time.Second

	out, err := c.StdoutPipe()
	if err != nil {
		return fmt.Sprintf("(error searching: %v)", err)
	}
	if err := c.Start(); err != nil {
		return fmt.Sprintf("(error searching: %v)", err)
	}

	var lines []string
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() && len(lines) < maxSearchLines {
		lines = append(lines, scanner.Text())
	}
	// Drain and reap; grep exits 1 on no matches, which is not an error here.
	_ = c.Process.Kill()
	_ = c.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("(timed out after %s)", s.timeout)
	}
	if len(lines) == 0 {
		return "(no matches)"
	}
	return s.truncateOutput(strings.Join(lines, "\n"))
}

func (s *Sandbox) truncateOutput(out string) string {
	if len(out) <= s.maxOutput {
		return out
	}
	return out[:s.maxOutput] + fmt.Sprintf("\n... (truncated, %d total chars)", len(out))
}

func truncate(str string, max int) string {
	if len(str) <= max {
		return str
	}
	return str[:max] + "..."
}
