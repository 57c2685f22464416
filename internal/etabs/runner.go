package etabs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"
)

// attachPollInterval is how often an attached process is checked for exit.
const attachPollInterval = 500 * time.Millisecond

// Runner starts external programs. ExecRunner is the real implementation;
// tests substitute fakes.
type Runner interface {
	// LookPath resolves an executable name.
	LookPath(file string) (string, error)
	// Start launches a long-running program without waiting for it.
	Start(name string, args ...string) (Process, error)
	// Output runs a program to completion and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Attach returns a handle on a running program, possibly started by an
	// earlier invocation. It fails when pid is not alive.
	Attach(pid int) (Process, error)
}

// Process is a started program.
type Process interface {
	Pid() int
	Wait() error
	Kill() error
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (ExecRunner) Start(name string, args ...string) (Process, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%s: %w", bytes.TrimSpace(stderr.Bytes()), err)
	}
	return out, err
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int    { return p.cmd.Process.Pid }
func (p *execProcess) Wait() error { return p.cmd.Wait() }
func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (ExecRunner) Attach(pid int) (Process, error) {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil, err
	}
	if !alive(p) {
		return nil, fmt.Errorf("process %d is not running", pid)
	}
	return &attachedProcess{p: p}, nil
}

// alive sends p signal 0. Windows has no such check, but FindProcess
// already fails there for a process that has exited.
func alive(p *os.Process) bool {
	if runtime.GOOS == "windows" {
		return true
	}
	return p.Signal(syscall.Signal(0)) == nil
}

// attachedProcess is a program this process did not start, so it cannot be
// reaped with Wait on Unix.
type attachedProcess struct {
	p *os.Process
}

func (a *attachedProcess) Pid() int    { return a.p.Pid }
func (a *attachedProcess) Kill() error { return a.p.Kill() }

func (a *attachedProcess) Wait() error {
	if runtime.GOOS == "windows" {
		_, err := a.p.Wait()
		return err
	}
	for alive(a.p) {
		time.Sleep(attachPollInterval)
	}
	return nil
}
