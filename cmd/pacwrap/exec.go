package main

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/ident"
	"github.com/pacwrap/pacwrap/internal/registry"
	"github.com/pacwrap/pacwrap/internal/sandbox"
)

var execCmd = &cobra.Command{
	Use:   "exec ID -- CMD [ARGS...]",
	Short: "Run a command inside a container's sandbox outside of any transaction",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	id := args[0]
	userCmd := args[1:]

	dirs := env()
	reg := registry.New(dirs, configProvider(dirs))
	if _, err := reg.Load(registry.Present); err != nil {
		return err
	}
	handle, ok := reg.Get(id)
	if !ok {
		return errs.NewFor(errs.KindConfig, "exec.runExec", id, errUnknownContainer(id))
	}

	paths, err := ident.Resolve(id, dirs)
	if err != nil {
		return err
	}

	mountPlan := sandbox.MountPlanFrom(handle.Permissions.Mounts)
	bwrapArgs := sandbox.Args(paths.Root, mountPlan, userCmd[0], userCmd[1:], handle.UserNamespace, 0)

	sandboxCmd := exec.Command("bwrap", bwrapArgs...)
	sandboxCmd.Stdin = os.Stdin
	sandboxCmd.Stdout = os.Stdout
	sandboxCmd.Stderr = os.Stderr
	if err := sandboxCmd.Run(); err != nil {
		return errs.NewFor(errs.KindSandbox, "exec.runExec", id, err)
	}
	return nil
}

type errUnknownContainer string

func (e errUnknownContainer) Error() string { return "unknown container: " + string(e) }
