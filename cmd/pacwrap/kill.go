package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/ident"
	"github.com/pacwrap/pacwrap/internal/lockregistry"
	"github.com/pacwrap/pacwrap/internal/procctl"
)

var killCmd = &cobra.Command{
	Use:   "kill ID",
	Short: "SIGTERM then SIGKILL every process namespaced under a container's agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runKill,
}

func runKill(cmd *cobra.Command, args []string) error {
	id := args[0]
	dirs := env()

	instReg := lockregistry.NewInstanceRegistry(ident.InstancesDir(dirs))
	records, err := instReg.List()
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.ContainerID != id {
			continue
		}
		nsID, err := procctl.NamespaceID(r.AgentPID)
		if err != nil {
			return errs.NewFor(errs.KindIO, "kill.runKill", id, err)
		}
		if err := procctl.Kill(r.AgentPID, nsID, lockregistry.GracePeriod); err != nil {
			return errs.NewFor(errs.KindIO, "kill.runKill", id, err)
		}
		_ = instReg.Unregister(r.AgentPID)
		fmt.Printf("%s: killed (pid %d)\n", id, r.AgentPID)
		return nil
	}
	return errs.NewFor(errs.KindConfig, "kill.runKill", id, fmt.Errorf("no live instance for container %q", id))
}
