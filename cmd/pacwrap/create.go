package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/ident"
	"github.com/pacwrap/pacwrap/internal/registry"
	"github.com/pacwrap/pacwrap/internal/types"
)

var createCmd = &cobra.Command{
	Use:   "create KIND ID",
	Short: "Insert a new container into the DAG (base, slice, aggregate, or symbolic)",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().StringSlice("deps", nil, "Dependency container ids, in any order")
	createCmd.Flags().String("symbolic-target", "", "Target id when KIND is symbolic")
}

func runCreate(cmd *cobra.Command, args []string) error {
	kind := types.ContainerKind(args[0])
	id := args[1]
	if err := ident.ValidateName(id); err != nil {
		return err
	}
	switch kind {
	case types.KindBase, types.KindSlice, types.KindAggregate, types.KindSymbolic:
	default:
		return errs.New(errs.KindConfig, "create.runCreate", fmt.Errorf("unknown container kind %q", args[0]))
	}

	dirs := env()
	reg := registry.New(dirs, configProvider(dirs))
	if _, err := reg.Load(registry.Declared); err != nil {
		return err
	}
	if _, exists := reg.Get(id); exists {
		return errs.NewFor(errs.KindConfig, "create.runCreate", id, fmt.Errorf("container already declared"))
	}

	deps, _ := cmd.Flags().GetStringSlice("deps")
	symTarget, _ := cmd.Flags().GetString("symbolic-target")
	if kind == types.KindBase && len(deps) > 0 {
		return errs.NewFor(errs.KindConfig, "create.runCreate", id, fmt.Errorf("Base containers cannot declare dependencies"))
	}
	if kind == types.KindSymbolic && symTarget == "" {
		return errs.NewFor(errs.KindConfig, "create.runCreate", id, fmt.Errorf("Symbolic containers require --symbolic-target"))
	}

	paths, err := ident.Resolve(id, dirs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(paths.Root, 0o755); err != nil {
		return errs.NewFor(errs.KindIO, "create.runCreate", id, err)
	}
	if err := os.MkdirAll(paths.Home, 0o755); err != nil {
		return errs.NewFor(errs.KindIO, "create.runCreate", id, err)
	}
	if err := os.MkdirAll(paths.LocalDB, 0o755); err != nil {
		return errs.NewFor(errs.KindIO, "create.runCreate", id, err)
	}

	cfg := configStub(kind, deps, symTarget)
	if err := writeContainerConfig(dirs, id, cfg); err != nil {
		return err
	}

	// A freshly created container has never been published: its metadata
	// records an empty explicit set and a fresh version stamp (§3
	// "Container metadata"), matching the declared dependency list.
	hash, err := registry.ManifestHash(paths.Root)
	if err != nil {
		return errs.NewFor(errs.KindIO, "create.runCreate", id, err)
	}
	meta := registry.Metadata{
		MetaVersion:  time.Now().UnixNano(),
		Explicit:     []string{},
		Dependencies: deps,
		ManifestHash: hash,
	}
	if err := registry.WriteMetadata(paths.Meta, meta); err != nil {
		return err
	}

	fmt.Printf("%s created (%s)\n", id, kind)
	return nil
}
