package adapters

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/irgordon/trafficx/installer/internal/core/domain"
)

const maxErrorOutput = 2048

// ShellExecutor implements domain.Executor on top of os/exec.
type ShellExecutor struct {
	logger *slog.Logger
}

func NewShellExecutor(logger *slog.Logger) *ShellExecutor {
	return &ShellExecutor{logger: logger}
}

// Run executes the command and returns its combined output. A non-zero exit is
// returned as an error that carries the tail of the output.
func (e *ShellExecutor) Run(ctx context.Context, c domain.Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	e.logger.Debug("exec", slog.String("cmd", c.Name), slog.String("args", strings.Join(c.Args, " ")))

	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s %s: %w: %s", c.Name, strings.Join(c.Args, " "), err, tail(out.String()))
	}
	return out.Bytes(), nil
}

func (e *ShellExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorOutput {
		return "…" + s[len(s)-maxErrorOutput:]
	}
	return s
}
