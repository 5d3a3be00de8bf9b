package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clipper/internal/logging"
	"clipper/internal/services"
)

// Executor abstracts command execution for testability.
type Executor = services.Executor

// Service invokes the external decision command for one event directory.
// The command is expected to write a new api/vN/decision.json before it
// exits; the service itself never interprets the command's output.
type Service struct {
	command string
	args    []string
	timeout time.Duration
	exec    Executor
	logger  *slog.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(s *Service) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// NewService returns a decision service for the configured command line.
func NewService(command string, args []string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{
		command: command,
		args:    args,
		timeout: timeout,
		exec:    services.CommandExecutor{},
		logger:  logger.With(logging.String(logging.FieldComponent, "decision")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether a command is set. An unconfigured service
// means decision documents arrive out of band.
func (s *Service) Configured() bool {
	return s.command != ""
}

// Invoke runs the decision command with the event directory appended to the
// configured arguments. The previous latest version is returned alongside
// the new one so the caller can tell whether the command produced anything.
func (s *Service) Invoke(ctx context.Context, eventDir string) (before, after int, err error) {
	if !s.Configured() {
		return 0, 0, services.Wrap(services.ErrConfiguration, "decision", "invoke",
			"no decision command configured", nil)
	}
	before, err = LatestVersion(eventDir)
	if err != nil {
		return 0, 0, err
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	args := append(append([]string{}, s.args...), eventDir)
	s.logger.Info("invoking decision command",
		logging.String("command", s.command),
		logging.String(logging.FieldEvent, eventDir))

	runErr := s.exec.Run(runCtx, s.command, args, func(line string) {
		s.logger.Debug("decision output", logging.String("line", line))
	})
	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return before, before, services.Wrap(services.ErrTimeout, "decision", s.command,
				fmt.Sprintf("timed out after %s", s.timeout), runErr)
		}
		return before, before, services.Wrap(services.ErrExternalTool, "decision", s.command, eventDir, runErr)
	}

	after, err = LatestVersion(eventDir)
	if err != nil {
		return before, before, err
	}
	return before, after, nil
}
