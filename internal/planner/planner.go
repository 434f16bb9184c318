// Package planner implements the transaction planner (§4.F): resolving
// the operator's intent against the container DAG and computing the
// per-container work each transaction will perform, including the
// preview/apply equivalence guarantee.
//
// Grounded on a scheduler's placement-decision shape (resolve candidates,
// classify, produce a plan struct consumed by a separate executor),
// generalized from node placement to package residency classification.
package planner

import (
	"sort"

	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/pkgdb"
	"github.com/pacwrap/pacwrap/internal/registry"
	"github.com/pacwrap/pacwrap/internal/types"
)

// Intent is the operator's requested operation before it is resolved
// against the registry.
type Intent struct {
	Mode    types.TransactionMode
	Targets []string // explicit container ids from -t; empty means "all present" for Upgrade
	// PackagesByContainer holds the per-container -t CONTAINER [PKGS...]
	// tuples (§4.F step 2 "explicit packages").
	PackagesByContainer map[string][]string
	Flags               types.TransactionFlags
}

// DatabaseLookup resolves a pkgdb.Database for one container, as
// exposed by the agent-backed shim (internal/pkgdb.Database doc
// comment).
type DatabaseLookup func(containerID string) (pkgdb.Database, error)

// Plan is the ordered, fully materialized transaction plan: one
// PerContainerWork per container in the targets' resolved closure
// (ancestors included), in topological order.
type Plan struct {
	Order []types.PerContainerWork
}

// Build implements §4.F steps 1-4. reg must already have Present or
// Declared handles loaded, per the caller's chosen Mode.
func Build(reg *registry.Registry, intent Intent, lookupDB DatabaseLookup) (Plan, error) {
	targets, err := resolveTargets(reg, intent)
	if err != nil {
		return Plan{}, err
	}

	order, err := reg.Closure(targets)
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	for _, id := range order {
		work, err := buildOne(reg, id, intent, lookupDB)
		if err != nil {
			return Plan{}, err
		}
		plan.Order = append(plan.Order, work)
	}
	return plan, nil
}

// resolveTargets implements step 1: explicit targets, or (for Upgrade
// with none given) every present container.
func resolveTargets(reg *registry.Registry, intent Intent) ([]string, error) {
	if len(intent.Targets) > 0 {
		for _, id := range intent.Targets {
			if _, ok := reg.Get(id); !ok {
				return nil, errs.New(errs.KindDepMissing, "planner.resolveTargets", missingTargetErr{id})
			}
		}
		out := append([]string{}, intent.Targets...)
		sort.Strings(out)
		return out, nil
	}
	if intent.Mode != types.ModeUpgrade {
		return nil, errs.New(errs.KindPlan, "planner.resolveTargets", emptyTargetsErr{})
	}
	all := reg.All()
	out := make([]string, 0, len(all))
	for id := range all {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// buildOne computes PerContainerWork for a single container (step 2).
func buildOne(reg *registry.Registry, id string, intent Intent, lookupDB DatabaseLookup) (types.PerContainerWork, error) {
	requested := intent.PackagesByContainer[id]

	work := types.PerContainerWork{
		ID:    id,
		Mode:  intent.Mode,
		Flags: intent.Flags,
	}
	if len(requested) == 0 {
		return work, nil
	}

	db, err := lookupDB(id)
	if err != nil {
		return types.PerContainerWork{}, errs.NewFor(errs.KindPlan, "planner.buildOne", id, err)
	}

	syncablePkgs, err := db.Syncable()
	if err != nil {
		return types.PerContainerWork{}, errs.NewFor(errs.KindPlan, "planner.buildOne", id, err)
	}
	upstreamPkgs, err := db.UpstreamInstalled()
	if err != nil {
		return types.PerContainerWork{}, errs.NewFor(errs.KindPlan, "planner.buildOne", id, err)
	}

	classification := pkgdb.Classify(requested, names(syncablePkgs), names(upstreamPkgs))
	work.ResidentTargets = classification.Resident
	work.ForeignTargets = classification.Foreign
	return work, nil
}

func names(pkgs []pkgdb.Package) []string {
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = p.Name
	}
	return out
}

type missingTargetErr struct{ id string }

func (e missingTargetErr) Error() string { return "target container not present: " + e.id }

type emptyTargetsErr struct{}

func (emptyTargetsErr) Error() string {
	return "no targets given and mode is not Upgrade (target set defaults to \"all present\" only for Upgrade)"
}
