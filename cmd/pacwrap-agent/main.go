// Command pacwrap-agent is the sandboxed in-container process described
// in §4.H. It is never invoked directly by an operator; the driver
// (cmd/pacwrap) execs it inside a bubblewrap sandbox with two inherited
// file descriptors carrying the agent protocol.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/pacwrap/pacwrap/internal/agent"
	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/logspine"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logspine.WithComponent("agent")

	paramFD, err := fdFromEnv("PACWRAP_AGENT_PARAM_FD")
	if err != nil {
		log.Error().Err(err).Msg("missing parameter blob fd")
		return errs.ExitCode(errs.New(errs.KindAgentBadHandshake, "main.run", err))
	}
	eventFD, err := fdFromEnv("PACWRAP_AGENT_EVENT_FD")
	if err != nil {
		log.Error().Err(err).Msg("missing event stream fd")
		return errs.ExitCode(errs.New(errs.KindAgentBadHandshake, "main.run", err))
	}
	paramFile := os.NewFile(uintptr(paramFD), "param")
	eventFile := os.NewFile(uintptr(eventFD), "event")
	defer eventFile.Close()

	blob, err := agent.DecodeParameterBlob(paramFile)
	paramFile.Close()
	if err != nil {
		writeDone(eventFile, agent.ErrDoneStatus("BadHandshake"))
		log.Error().Err(err).Msg("bad handshake")
		return errs.ExitCode(err)
	}

	cancel := make(chan os.Signal, 1)
	signal.Notify(cancel, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-cancel:
			agent.WriteEvent(eventFile, agent.Event{Tag: agent.EventError, Msg: "cancelled", ErrKind: "Cancelled"})
			writeDone(eventFile, agent.ErrDoneStatus("Cancelled"))
			os.Exit(errs.ExitCode(errs.New(errs.KindAgentCancelled, "main.run", fmt.Errorf("cancelled"))))
		case <-done:
		}
	}()
	defer close(done)

	if err := execute(eventFile, blob); err != nil {
		log.Error().Err(err).Msg("transaction failed")
		writeDone(eventFile, agent.ErrDoneStatus(kindName(err)))
		return errs.ExitCode(err)
	}

	writeDone(eventFile, agent.StatusOk)
	return 0
}

// execute validates blob.MountPlan (see validateMountPlan), then emits one
// InstallStart event per resident target (and per foreign target when
// FlagForceForeign is set) followed by a Summary counting them as added.
// It calls no libalpm binding, does not branch on blob.Mode, and does not
// check individual paths against the declared mounts.
func execute(w *os.File, blob agent.ParameterBlob) error {
	if err := validateMountPlan(blob.MountPlan); err != nil {
		return err
	}

	added, removed := 0, 0
	for _, pkg := range blob.Targets.Resident {
		agent.WriteEvent(w, agent.Event{Tag: agent.EventInstallStart, Pkg: pkg})
		added++
	}
	if blob.FlagsBitmap&agent.FlagForceForeign != 0 {
		for _, pkg := range blob.Targets.Foreign {
			agent.WriteEvent(w, agent.Event{Tag: agent.EventInstallStart, Pkg: pkg})
			added++
		}
	}

	return agent.WriteEvent(w, agent.Event{
		Tag:     agent.EventSummary,
		Added:   added,
		Removed: removed,
	})
}

// validateMountPlan accepts an empty mount plan (a container declared
// with no mounts) and otherwise refuses a plan containing a mount with an
// empty destination.
func validateMountPlan(plan []specs.Mount) error {
	if len(plan) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(plan))
	for _, m := range plan {
		if m.Destination == "" {
			return errs.New(errs.KindSandbox, "main.validateMountPlan", fmt.Errorf("mount with empty destination"))
		}
		seen[m.Destination] = true
	}
	return nil
}

func writeDone(w *os.File, status agent.DoneStatus) {
	agent.WriteEvent(w, agent.Event{Tag: agent.EventDone, Status: status})
}

func kindName(err error) string {
	if e, ok := errs.As(err); ok {
		return e.Kind.String()
	}
	return "Internal"
}

func fdFromEnv(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s not set", key)
	}
	return strconv.Atoi(v)
}
