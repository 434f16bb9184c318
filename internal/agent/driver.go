// driver.go implements the outer (parent) half of §4.H: launching the
// sandboxed agent, handing it the parameter blob over an inherited fd,
// and draining its event stream concurrently with its lifetime so the
// agent's writes never block on a parent that has stopped reading.
//
// Mirrors a containerd client's create/start/stop lifecycle shape,
// generalized from an RPC client to an exec.Cmd talking over pipes, plus
// banksean-sand/containers.go's pty.Start usage for interactive forwarding.
package agent

import (
	"context"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/lockregistry"
	"github.com/pacwrap/pacwrap/internal/sandbox"
)

// RetryPolicy governs per-package download retries inside Commit (§4.G,
// §9 open question (a)). Configurable; DefaultRetryPolicy documents the
// chosen default.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is 3 attempts, exponential backoff from 500ms capped
// at 8s, with full jitter.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}

// Delay returns the backoff before retry attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// LaunchConfig configures one agent invocation.
type LaunchConfig struct {
	AgentPath string
	Args      []string
	Env       []string
	NoConfirm bool // suppresses interactive stdio forwarding

	// Root, MountPlan and UserNamespace parameterize the bubblewrap
	// invocation (sandbox.Args) that wraps AgentPath. DisableSandbox execs
	// AgentPath directly instead, per FlagDisableSandbox (§4.H).
	Root           string
	MountPlan      []specs.Mount
	UserNamespace  bool
	DisableSandbox bool

	// Seccomp applies the BPF denylist (§4.H) on top of an active sandbox.
	// Ignored when DisableSandbox is set.
	Seccomp bool
}

// Handle is a running agent process plus its drained event channel.
type Handle struct {
	cmd       *exec.Cmd
	events    chan Event
	drainDone chan struct{}
	drainErr  error
	pty       *os.File
}

// Launch starts the agent, writes blob over its inherited parameter-blob
// fd, and begins draining its event stream in a background goroutine.
func Launch(ctx context.Context, cfg LaunchConfig, blob ParameterBlob) (*Handle, error) {
	paramR, paramW, err := os.Pipe()
	if err != nil {
		return nil, errs.New(errs.KindSandbox, "agent.Launch", err)
	}
	eventR, eventW, err := os.Pipe()
	if err != nil {
		paramR.Close()
		paramW.Close()
		return nil, errs.New(errs.KindSandbox, "agent.Launch", err)
	}

	extraFiles := []*os.File{paramR, eventW} // fd 3, fd 4 in the child
	var seccompR, seccompW *os.File
	cmdName, cmdArgs := cfg.AgentPath, cfg.Args
	if !cfg.DisableSandbox {
		seccompFD := 0
		if cfg.Seccomp {
			r, w, err := os.Pipe()
			if err != nil {
				paramR.Close()
				paramW.Close()
				eventR.Close()
				eventW.Close()
				return nil, errs.New(errs.KindSandbox, "agent.Launch", err)
			}
			seccompR, seccompW = r, w
			extraFiles = append(extraFiles, seccompR) // fd 5 in the child
			seccompFD = 5
		}
		cmdName = "bwrap"
		cmdArgs = sandbox.Args(cfg.Root, cfg.MountPlan, cfg.AgentPath, cfg.Args, cfg.UserNamespace, seccompFD)
	}

	cmd := exec.CommandContext(ctx, cmdName, cmdArgs...)
	cmd.ExtraFiles = extraFiles
	cmd.Env = append(append([]string{}, cfg.Env...),
		"PACWRAP_AGENT_PARAM_FD=3",
		"PACWRAP_AGENT_EVENT_FD=4",
	)

	h := &Handle{cmd: cmd, events: make(chan Event, 16), drainDone: make(chan struct{})}

	if !cfg.NoConfirm && isTerminal(os.Stdout) {
		master, err := pty.Start(cmd)
		if err != nil {
			// Fall back to plain forwarding rather than failing the
			// whole launch over an interactive nicety.
			cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
			if err := cmd.Start(); err != nil {
				closeAll(paramR, paramW, eventR, eventW, seccompR, seccompW)
				return nil, errs.New(errs.KindSandbox, "agent.Launch", err)
			}
		} else {
			h.pty = master
		}
	} else {
		if cfg.NoConfirm {
			cmd.Stdin = nil
		} else {
			cmd.Stdin = os.Stdin
		}
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			closeAll(paramR, paramW, eventR, eventW, seccompR, seccompW)
			return nil, errs.New(errs.KindSandbox, "agent.Launch", err)
		}
	}

	// The child has its own dup of these; the parent's copies must close
	// so EOF propagates correctly and fds aren't leaked.
	paramR.Close()
	eventW.Close()
	if seccompR != nil {
		seccompR.Close()
	}

	if _, err := paramW.Write(mustEncode(blob)); err != nil {
		paramW.Close()
		return h, errs.New(errs.KindAgentBadHandshake, "agent.Launch", err)
	}
	if err := paramW.Close(); err != nil {
		return h, errs.New(errs.KindIO, "agent.Launch", err)
	}

	if seccompW != nil {
		if _, err := seccompW.Write(sandbox.EncodeBPFFilter(sandbox.BuildBPFFilter())); err != nil {
			seccompW.Close()
			return h, errs.New(errs.KindSandbox, "agent.Launch", err)
		}
		if err := seccompW.Close(); err != nil {
			return h, errs.New(errs.KindSandbox, "agent.Launch", err)
		}
	}

	go h.drain(eventR)
	return h, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}

func mustEncode(blob ParameterBlob) []byte {
	data, err := EncodeParameterBlob(blob)
	if err != nil {
		// EncodeParameterBlob only fails on an unencodable blob, which is
		// a programmer error in the planner; surfacing empty bytes here
		// causes a clean BadHandshake on the agent side instead of a panic.
		return nil
	}
	return data
}

func (h *Handle) drain(r io.ReadCloser) {
	defer close(h.drainDone)
	defer r.Close()
	defer close(h.events)
	for {
		e, err := ReadEvent(r)
		if err != nil {
			if err == io.EOF {
				h.drainErr = errs.New(errs.KindAgentProtocolTruncated, "agent.drain", errNoTerminalDone{})
			} else {
				h.drainErr = err
			}
			return
		}
		h.events <- e
		if e.Tag == EventDone {
			h.drainErr = nil
			return
		}
	}
}

type errNoTerminalDone struct{}

func (errNoTerminalDone) Error() string { return "agent exited without a terminating Done frame" }

// Events returns the channel of drained events, closed after Done.
func (h *Handle) Events() <-chan Event { return h.events }

// Pid returns the agent process's pid, for the instance registry.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Wait blocks until the agent process exits and the drain goroutine has
// finished, returning the first error encountered by either.
func (h *Handle) Wait() error {
	waitErr := h.cmd.Wait()
	<-h.drainDone
	if h.pty != nil {
		h.pty.Close()
	}
	if h.drainErr != nil {
		return h.drainErr
	}
	if waitErr != nil {
		return errs.New(errs.KindAgentPackage, "agent.Wait", waitErr)
	}
	return nil
}

// Cancel implements §4.H/§5 cancellation: SIGTERM, wait up to grace, then
// SIGKILL.
func (h *Handle) Cancel(grace time.Duration) {
	if h.cmd.Process == nil {
		return
	}
	_ = h.cmd.Process.Signal(syscall.SIGTERM)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.drainDone:
	case <-timer.C:
		_ = h.cmd.Process.Signal(syscall.SIGKILL)
		<-h.drainDone
	}
}

// CancelDefault cancels with the standard §5 grace period.
func (h *Handle) CancelDefault() { h.Cancel(lockregistry.GracePeriod) }

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
