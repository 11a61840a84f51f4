package builtin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"flowrunner/internal/logging"
	"flowrunner/internal/steps"
)

// Command runs an external process against the working file. Exit code 0
// selects output 1; any other exit code selects output 2. Arguments support
// variable placeholders.
type Command struct {
	Executable string
	Arguments  []string
	Timeout    time.Duration
	WorkingDir string

	mu      sync.Mutex
	pid     int
	stopped bool
}

// CommandDefinition describes a command step. Plugin manifests use it with
// a preset executable and argument list; properties bound from the flow
// still override both.
func CommandDefinition(typeID, executable string, arguments []string) steps.Definition {
	return steps.Definition{
		TypeID:      typeID,
		Description: "Runs an external command",
		Inputs:      1,
		Outputs:     2,
		New: func() steps.Step {
			return &Command{Executable: executable, Arguments: append([]string(nil), arguments...)}
		},
		Fields: []steps.Field{
			steps.StringField("Command", func(s *Command, v string) { s.Executable = v }),
			steps.StringListField("Arguments", func(s *Command, v []string) { s.Arguments = v }),
			steps.DurationField("Timeout", func(s *Command, v time.Duration) { s.Timeout = v }),
			steps.StringField("WorkingDirectory", func(s *Command, v string) { s.WorkingDir = v }),
		},
	}
}

func (s *Command) Execute(ctx context.Context, args *steps.Args) (int, error) {
	binary := strings.TrimSpace(args.ReplaceVariables(s.Executable))
	if binary == "" {
		return -1, errors.New("no command configured")
	}
	argv := make([]string, len(s.Arguments))
	for i, arg := range s.Arguments {
		argv[i] = args.ReplaceVariables(arg)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary, argv...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killGroup(cmd.Process.Pid, unix.SIGKILL) }
	if dir := strings.TrimSpace(args.ReplaceVariables(s.WorkingDir)); dir != "" {
		cmd.Dir = dir
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stderr pipe: %w", err)
	}

	args.Logger.Info("executing command", logging.String("command", binary), logging.String("arguments", strings.Join(argv, " ")))
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start command: %w", err)
	}
	s.mu.Lock()
	s.pid = cmd.Process.Pid
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		_ = killGroup(cmd.Process.Pid, unix.SIGTERM)
	}

	var wg sync.WaitGroup
	var last string
	var lastMu sync.Mutex
	scan := func(r io.Reader, stream string) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			args.Logger.Info(line, logging.String("stream", stream))
			if stream == "stdout" && strings.TrimSpace(line) != "" {
				lastMu.Lock()
				last = line
				lastMu.Unlock()
			}
		}
	}
	wg.Add(2)
	go scan(stdout, "stdout")
	go scan(stderr, "stderr")
	wg.Wait()

	err = cmd.Wait()
	s.mu.Lock()
	s.pid = 0
	stopped = s.stopped
	s.mu.Unlock()

	args.SetVariable("command.Output", last)
	if stopped {
		return -1, fmt.Errorf("command %s canceled", binary)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, fmt.Errorf("command %s interrupted: %w", binary, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		args.SetVariable("command.ExitCode", code)
		args.Logger.Info("command exited", logging.Int("exit_code", code))
		return 2, nil
	}
	if err != nil {
		return -1, fmt.Errorf("wait command: %w", err)
	}
	args.SetVariable("command.ExitCode", 0)
	return 1, nil
}

// Cancel terminates the running process group.
func (s *Command) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.pid == 0 {
		return nil
	}
	return killGroup(s.pid, unix.SIGTERM)
}

func killGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
