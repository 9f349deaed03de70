// Package probe invokes an external checker and parses its diagnostics into
// a structured issue count.
package probe

import (
	"bufio"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fixrc/pkg/config"
)

// UnknownTotal is the sentinel for "the probe could not produce a count".
// Callers must treat it as untrustworthy, never as zero.
const UnknownTotal = -1

// Result holds one probe invocation's parsed diagnostics
type Result struct {
	Total   int
	PerFile map[string]int
}

// Unknown reports whether the result carries the unknown sentinel
func (r Result) Unknown() bool {
	return r.Total == UnknownTotal
}

// Probe is the oracle interface for "how many issues exist right now"
type Probe interface {
	Count(ctx context.Context, scope []string) (Result, error)
}

var (
	// tsc shape: src/a.ts(5,3): error TS2345: message
	tscLine = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): (?:error|warning) [A-Za-z]*\d+: `)

	// unix shape: src/a.ts:5:3: message
	unixLine = regexp.MustCompile(`^(.+?):(\d+):(\d+):? `)
)

// CommandProbe shells out to a compiler or linter and parses its output.
// A non-zero exit with parsable diagnostics is a valid result, not a failure.
type CommandProbe struct {
	name    string
	command []string
	timeout time.Duration
	dir     string
	line    *regexp.Regexp
}

// NewCommandProbe creates a probe from its config
func NewCommandProbe(cfg config.ProbeConfig) (*CommandProbe, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.Errorf("probe %q: empty command", cfg.Name)
	}

	line := unixLine
	if cfg.Format == "tsc" {
		line = tscLine
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultTimeoutSeconds * time.Second
	}

	return &CommandProbe{
		name:    cfg.Name,
		command: cfg.Command,
		timeout: timeout,
		line:    line,
	}, nil
}

// WithDir sets the working directory for the external tool
func (p *CommandProbe) WithDir(dir string) *CommandProbe {
	p.dir = dir
	return p
}

// Name returns the probe's configured name
func (p *CommandProbe) Name() string {
	return p.name
}

// Count runs the external tool and parses its combined output.
// Spawn failure or timeout yields the unknown sentinel with a nil error.
func (p *CommandProbe) Count(ctx context.Context, scope []string) (Result, error) {
	logger := zerolog.Ctx(ctx)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := append([]string{}, p.command[1:]...)
	args = append(args, scope...)

	cmd := exec.CommandContext(ctx, p.command[0], args...)
	if p.dir != "" {
		cmd.Dir = p.dir
	}

	// Diagnostics land on stdout or stderr depending on the tool and its
	// exit status, so both are captured together.
	out, err := cmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		logger.Warn().Str("probe", p.name).Dur("timeout", p.timeout).Msg("probe timed out")
		return Result{Total: UnknownTotal}, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// Spawn failure: tool missing, not executable, etc.
			logger.Warn().Str("probe", p.name).Err(err).Msg("probe spawn failed")
			return Result{Total: UnknownTotal}, nil
		}
		// Non-zero exit is expected when issues exist; fall through to parse.
	}

	return p.parse(string(out)), nil
}

// parse scans output lines for the configured diagnostic shape.
// Unparsable lines are ignored.
func (p *CommandProbe) parse(out string) Result {
	result := Result{PerFile: map[string]int{}}

	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := p.line.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		result.Total++
		result.PerFile[m[1]]++
	}

	return result
}
