package ssh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/tool"
)

// ToolName is the name participants call the command tool by.
const ToolName = "execute_command"

// NotConfiguredText is the reply when no host is configured.
const NotConfiguredText = "Remote command execution is not configured; no managed host is available."

// Timeout bounds, in seconds.
const (
	DefaultTimeoutSeconds = 60
	MinTimeoutSeconds     = 30
	MaxTimeoutSeconds     = 600
)

// ClampTimeout turns a requested timeout in seconds into the effective
// one: non-positive requests use the default, everything else is clamped
// into [MinTimeoutSeconds, MaxTimeoutSeconds].
func ClampTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = DefaultTimeoutSeconds
	}
	seconds = max(MinTimeoutSeconds, min(MaxTimeoutSeconds, seconds))
	return time.Duration(seconds) * time.Second
}

type commandArgs struct {
	Command string `json:"command" description:"A single non-interactive shell command to run on the remote host (no ssh prefix)"`
	Timeout int    `json:"timeout,omitempty" description:"Expected runtime in seconds: 30-60 for quick queries, 120-180 for service restarts, up to 600 for long operations"`
}

// ToolOptions tune the command tool.
type ToolOptions struct {
	// Clamp maps the requested timeout to the effective one.
	Clamp  func(seconds int) time.Duration
	Logger logging.Logger
}

// NewTool exposes runner as the execute_command tool. Command failures
// (connection errors, non-zero exits, timeouts) are reported as text so
// the participant can explain them; only malformed arguments are tool
// errors. A nil runner yields NotConfiguredText.
func NewTool(runner Runner, optFns ...func(o *ToolOptions)) tool.Tool {
	opts := ToolOptions{
		Clamp:  ClampTimeout,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	log := logging.OrNoOp(opts.Logger)

	return tool.NewFunctionToolFromStruct(
		ToolName,
		"Execute a shell command on the managed host over SSH and return its exit code, stdout and stderr.",
		commandArgs{},
		func(ctx context.Context, args map[string]any) (any, error) {
			command := tool.StringArg(args, "command")
			if command == "" {
				return nil, &tool.ToolError{Tool: ToolName, Message: "command must not be empty", Code: tool.CodeValidation}
			}
			if runner == nil {
				log.Warn("ssh.command.unconfigured", "command", command)
				return NotConfiguredText, nil
			}
			timeout := opts.Clamp(tool.IntArg(args, "timeout", 0))

			log.Info("ssh.command.start", "host", runner.Host(), "command", command, "timeout", timeout.String())
			start := time.Now()
			res, err := runner.Run(ctx, command, timeout)
			log.Info("ssh.command.done", "host", runner.Host(), "exit_code", res.ExitCode,
				"duration_ms", time.Since(start).Milliseconds(), "error", err)

			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return FormatError(runner.Host(), command, err), nil
			}
			return FormatResult(runner.Host(), command, res), nil
		},
	)
}

// FormatResult renders a finished command for the transcript.
func FormatResult(host, command string, res Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Command result (%s)\n", host)
	fmt.Fprintf(&b, "Command:\n```bash\n%s\n```\n", command)
	fmt.Fprintf(&b, "exit code: %d\n", res.ExitCode)

	if res.ExitCode == 0 {
		b.WriteString("Command succeeded\n")
		if out := strings.TrimRight(res.Stdout, "\n"); out != "" {
			fmt.Fprintf(&b, "stdout:\n```\n%s\n```", out)
		} else {
			b.WriteString("(no output)")
		}
		return b.String()
	}

	b.WriteString("Command failed\n")
	if out := strings.TrimRight(res.Stdout, "\n"); out != "" {
		fmt.Fprintf(&b, "stdout:\n```\n%s\n```\n", out)
	}
	if errOut := strings.TrimRight(res.Stderr, "\n"); errOut != "" {
		fmt.Fprintf(&b, "stderr:\n```\n%s\n```", errOut)
	} else {
		b.WriteString("(no error output)")
	}
	return b.String()
}

// FormatError renders a command that could not complete.
func FormatError(host, command string, err error) string {
	if errors.Is(err, ErrTimeout) {
		return fmt.Sprintf("SSH operation failed on %s: `%s` %v", host, command, err)
	}
	return fmt.Sprintf("SSH operation failed on %s: %v", host, err)
}
