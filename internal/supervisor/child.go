package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Child is one run of the transport process. The supervisor owns its whole
// lifecycle; discarding the child discards the epoch.
type Child interface {
	Start() error
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	Wait() error
	Terminate() error
	Kill() error
}

// ChildFactory builds a fresh child per connection epoch.
type ChildFactory func() (Child, error)

type execChild struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// NewExecChildFactory launches the transport as a real OS child process
// speaking the framed protocol on its standard streams.
func NewExecChildFactory(command []string, dir string, env []string) (ChildFactory, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("transport command is required")
	}
	return func() (Child, error) {
		cmd := exec.Command(command[0], command[1:]...)
		cmd.Dir = dir
		if len(env) > 0 {
			cmd.Env = append(os.Environ(), env...)
		}

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("transport stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("transport stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("transport stderr pipe: %w", err)
		}

		return &execChild{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
	}, nil
}

func (c *execChild) Start() error {
	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start transport process: %w", err)
	}
	return nil
}

func (c *execChild) Stdin() io.WriteCloser { return c.stdin }
func (c *execChild) Stdout() io.ReadCloser { return c.stdout }
func (c *execChild) Stderr() io.ReadCloser { return c.stderr }

func (c *execChild) Wait() error { return c.cmd.Wait() }

func (c *execChild) Terminate() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Signal(os.Interrupt)
}

func (c *execChild) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}
