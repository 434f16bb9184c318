package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/hashcache"
	"github.com/pacwrap/pacwrap/internal/ident"
	"github.com/pacwrap/pacwrap/internal/lockregistry"
	"github.com/pacwrap/pacwrap/internal/logspine"
	"github.com/pacwrap/pacwrap/internal/pkgdb"
	"github.com/pacwrap/pacwrap/internal/planner"
	"github.com/pacwrap/pacwrap/internal/progress"
	"github.com/pacwrap/pacwrap/internal/registry"
	"github.com/pacwrap/pacwrap/internal/txn"
	"github.com/pacwrap/pacwrap/internal/types"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronise one or more containers against their dependency roots and package targets",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringArray("target", nil, `container:pkg1,pkg2 (repeatable); bare "container" targets it with no explicit packages`)
	syncCmd.Flags().Bool("upgrade", false, "Upgrade mode: with no --target, applies to every present container")
	syncCmd.Flags().Bool("remove", false, "Remove mode")
	syncCmd.Flags().Bool("preview", false, "Compute and print the plan without mutating state")
	syncCmd.Flags().Bool("force-foreign", false, "Allow mutating packages foreign to their container")
	syncCmd.Flags().Bool("force-filesystem", false, "Replace LocalOverride files with their upstream hardlink")
	syncCmd.Flags().Bool("noconfirm", false, "Suppress interactive agent prompts")
	syncCmd.Flags().String("style", "condensed", "Progress style: basic, condensed, condensed-foreign, condensed-local, verbose")
	syncCmd.Flags().String("summary-style", "basic", "Summary style: basic, basic-foreign, table, table-foreign")
}

func runSync(cmd *cobra.Command, args []string) error {
	dirs := env()
	reg := registry.New(dirs, configProvider(dirs))
	mode := types.ModeSynchronize
	if up, _ := cmd.Flags().GetBool("upgrade"); up {
		mode = types.ModeUpgrade
	}
	if rm, _ := cmd.Flags().GetBool("remove"); rm {
		mode = types.ModeRemove
	}
	loadMode := registry.Present
	if _, err := reg.Load(loadMode); err != nil {
		return err
	}

	targets, pkgs, err := parseTargets(cmd)
	if err != nil {
		return err
	}

	preview, _ := cmd.Flags().GetBool("preview")
	forceForeign, _ := cmd.Flags().GetBool("force-foreign")
	forceFS, _ := cmd.Flags().GetBool("force-filesystem")
	noconfirm, _ := cmd.Flags().GetBool("noconfirm")

	intent := planner.Intent{
		Mode:                mode,
		Targets:             targets,
		PackagesByContainer: pkgs,
		Flags: types.TransactionFlags{
			Preview:         preview,
			ForceForeign:    forceForeign,
			ForceFilesystem: forceFS,
			NoConfirm:       noconfirm,
		},
	}

	plan, err := planner.Build(reg, intent, databaseLookup(dirs))
	if err != nil {
		return err
	}

	if preview {
		renderPlanPreview(plan)
		return nil
	}

	hashCache := hashcache.OpenOrNull(ident.HashCachePath(dirs))
	defer hashCache.Close()

	txLog, err := logspine.OpenTransactionLog(ident.TransactionLogPath(dirs))
	if err != nil {
		return errs.New(errs.KindIO, "sync.runSync", err)
	}
	defer txLog.Close()

	deps := txn.Deps{
		Registry:  reg,
		Dirs:      dirs,
		Instances: lockregistry.NewInstanceRegistry(ident.InstancesDir(dirs)),
		Hash:      hashCache,
		TxLog:     txLog,
		AgentPath: agentPath(),
		SigPolicy: pkgdb.SigLevelRequired,
	}

	results := txn.RunFleet(context.Background(), deps, plan.Order)

	renderer := &progress.Renderer{Out: os.Stdout, Style: styleFromFlag(cmd), SummaryStyle: summaryStyleFromFlag(cmd)}
	renderer.RenderSummary(results)

	for _, s := range results {
		if len(s.Failed) > 0 {
			return errs.New(errs.KindPlan, "sync.runSync", fmt.Errorf("%d containers failed", countFailed(results)))
		}
	}
	return nil
}

func countFailed(results map[string]types.Summary) int {
	n := 0
	for _, s := range results {
		if len(s.Failed) > 0 {
			n++
		}
	}
	return n
}

func parseTargets(cmd *cobra.Command) ([]string, map[string][]string, error) {
	raw, _ := cmd.Flags().GetStringArray("target")
	var order []string
	pkgs := make(map[string][]string)
	for _, entry := range raw {
		parts := strings.SplitN(entry, ":", 2)
		id := parts[0]
		order = append(order, id)
		if len(parts) == 2 && parts[1] != "" {
			pkgs[id] = strings.Split(parts[1], ",")
		}
	}
	return order, pkgs, nil
}

func renderPlanPreview(plan planner.Plan) {
	for _, w := range plan.Order {
		fmt.Printf("%s: mode=%s resident=%v foreign=%v\n", w.ID, w.Mode, w.ResidentTargets, w.ForeignTargets)
	}
}

func styleFromFlag(cmd *cobra.Command) progress.Style {
	s, _ := cmd.Flags().GetString("style")
	switch s {
	case "basic":
		return progress.Basic
	case "condensed-foreign":
		return progress.CondensedForeign
	case "condensed-local":
		return progress.CondensedLocal
	case "verbose":
		return progress.Verbose
	default:
		return progress.Condensed
	}
}

func summaryStyleFromFlag(cmd *cobra.Command) progress.SummaryStyle {
	s, _ := cmd.Flags().GetString("summary-style")
	switch s {
	case "basic-foreign":
		return progress.SummaryBasicForeign
	case "table":
		return progress.SummaryTable
	case "table-foreign":
		return progress.SummaryTableForeign
	default:
		return progress.SummaryBasic
	}
}

func agentPath() string {
	if p := os.Getenv("PACWRAP_AGENT_PATH"); p != "" {
		return p
	}
	if self, err := os.Executable(); err == nil {
		return strings.TrimSuffix(self, "pacwrap") + "pacwrap-agent"
	}
	return "pacwrap-agent"
}

func databaseLookup(dirs ident.Dirs) planner.DatabaseLookup {
	return func(containerID string) (pkgdb.Database, error) {
		return nil, errs.NewFor(errs.KindInternal, "main.databaseLookup", containerID,
			fmt.Errorf("no live agent-backed Database binding in the reference driver; supply one via an embedding program"))
	}
}
