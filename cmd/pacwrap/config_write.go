package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pacwrap/pacwrap/internal/configref"
	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/ident"
	"github.com/pacwrap/pacwrap/internal/types"
)

// configStub builds the initial configref.ContainerConfig for `create`,
// leaving every permission/mount field at its zero value for the
// operator to edit afterward — creating a container only establishes
// its place in the DAG (§4.F step 1 "insert new nodes into a
// speculative DAG; validate type rules").
func configStub(kind types.ContainerKind, deps []string, symbolicTarget string) *configref.ContainerConfig {
	return &configref.ContainerConfig{
		Kind:           string(kind),
		SymbolicTarget: symbolicTarget,
		Dependencies:   deps,
		Seccomp:        true,
		UserNamespace:  true,
	}
}

func writeContainerConfig(dirs ident.Dirs, id string, cfg *configref.ContainerConfig) error {
	dir := filepath.Join(dirs.Config, "container")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.NewFor(errs.KindIO, "main.writeContainerConfig", id, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errs.NewFor(errs.KindInternal, "main.writeContainerConfig", id, err)
	}
	if err := os.WriteFile(filepath.Join(dir, id+".yml"), data, 0o644); err != nil {
		return errs.NewFor(errs.KindIO, "main.writeContainerConfig", id, err)
	}
	return nil
}
