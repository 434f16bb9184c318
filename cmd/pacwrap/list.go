package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacwrap/pacwrap/internal/ident"
	"github.com/pacwrap/pacwrap/internal/lockregistry"
	"github.com/pacwrap/pacwrap/internal/registry"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List containers and, with --instances, their live agent processes",
	RunE:  runList,
}

func init() {
	listCmd.Flags().Bool("declared", false, "List every declared container, not just present ones")
	listCmd.Flags().Bool("instances", false, "List live agent instances instead of the DAG")
}

func runList(cmd *cobra.Command, args []string) error {
	dirs := env()

	instances, _ := cmd.Flags().GetBool("instances")
	if instances {
		reg := lockregistry.NewInstanceRegistry(ident.InstancesDir(dirs))
		records, err := reg.List()
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%-20s pid=%-8d stage=%-10s started=%s\n", r.ContainerID, r.AgentPID, r.LastStage, r.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	}

	reg := registry.New(dirs, configProvider(dirs))
	mode := registry.Present
	if declared, _ := cmd.Flags().GetBool("declared"); declared {
		mode = registry.Declared
	}
	handles, err := reg.Load(mode)
	if err != nil {
		return err
	}
	for id, h := range handles {
		fmt.Printf("%-20s kind=%-10s deps=%v\n", id, h.Kind, h.Dependencies)
	}
	return nil
}
