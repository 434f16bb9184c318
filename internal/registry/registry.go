// Package registry implements pacwrap's container registry (§4.B): loading
// container configuration into handles, enumerating present vs. declared
// containers, and computing topologically ordered DAG closures.
//
// The registry is read-mostly and rebuilt on every command invocation — it
// is never shared across processes (§4.B, §9 "Global state").
package registry

import (
	"os"
	"sort"

	"github.com/rs/zerolog"

	"github.com/pacwrap/pacwrap/internal/configref"
	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/ident"
	"github.com/pacwrap/pacwrap/internal/logspine"
	"github.com/pacwrap/pacwrap/internal/types"
)

// Registry holds every loaded container handle, keyed by id.
type Registry struct {
	dirs     ident.Dirs
	provider configref.ConfigProvider
	handles  map[string]types.ContainerHandle
	logger   zerolog.Logger
}

// New constructs a Registry for the given base directories and config
// provider. It does not load anything yet; call Load.
func New(dirs ident.Dirs, provider configref.ConfigProvider) *Registry {
	return &Registry{
		dirs:     dirs,
		provider: provider,
		handles:  make(map[string]types.ContainerHandle),
		logger:   logspine.WithComponent("registry"),
	}
}

// Mode selects which containers Load enumerates.
type Mode int

const (
	// Present enumerates only containers with an initialized root.
	Present Mode = iota
	// Declared enumerates every configured container (used by create and
	// list --declared).
	Declared
)

// Load reads container configuration for every id in scope for mode and
// returns the resulting id→handle map.
func (r *Registry) Load(mode Mode) (map[string]types.ContainerHandle, error) {
	ids, err := r.provider.Declared()
	if err != nil {
		return nil, errs.New(errs.KindConfig, "registry.Load", err)
	}

	handles := make(map[string]types.ContainerHandle, len(ids))
	for _, id := range ids {
		if err := ident.ValidateName(id); err != nil {
			r.logger.Warn().Str("container_id", id).Msg("skipping invalid container name")
			continue
		}
		paths, err := ident.Resolve(id, r.dirs)
		if err != nil {
			return nil, err
		}
		if mode == Present {
			if _, statErr := os.Stat(paths.Root); statErr != nil {
				continue // not initialized
			}
		}
		cfg, err := r.provider.LoadContainerConfig(id)
		if err != nil {
			return nil, errs.NewFor(errs.KindConfig, "registry.Load", id, err)
		}

		// A published container carries its explicit-package set and
		// version stamp in its metadata file (§3 "Container metadata");
		// a never-published one (just declared, or declared-but-not-yet-
		// created) has none, and config's declared Explicit stands in.
		meta, metaErr := ReadMetadata(paths.Meta)
		handle := configref.ToHandle(id, cfg, meta.MetaVersion)
		if metaErr == nil {
			handle.Explicit = meta.Explicit
		}
		handles[id] = handle
	}
	r.handles = handles
	return handles, nil
}

// Get returns a single loaded handle.
func (r *Registry) Get(id string) (types.ContainerHandle, bool) {
	h, ok := r.handles[id]
	return h, ok
}

// All returns every loaded handle.
func (r *Registry) All() map[string]types.ContainerHandle {
	return r.handles
}

// edge describes a missing-dependency failure with enough context to report
// the minimal offending edge, per §4.B.
type edge struct{ from, to string }

// Closure computes the induced DAG closure of targets (every transitive
// ancestor) and returns it in topological order, nearest-dependency-first,
// with ties broken lexicographically by id (§3 "Dependency DAG").
//
// A Symbolic container contributes its own dependencies plus its resolved
// target's dependencies.
func (r *Registry) Closure(targets []string) ([]string, error) {
	visited := make(map[string]int) // 0=unvisited, 1=in-progress, 2=done
	var order []string

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch visited[id] {
		case 2:
			return nil
		case 1:
			return errs.NewFor(errs.KindDepCycle, "registry.Closure", id, cycleErr{path: append(path, id)})
		}
		h, ok := r.handles[id]
		if !ok {
			var from string
			if len(path) > 0 {
				from = path[len(path)-1]
			}
			return errs.NewFor(errs.KindDepMissing, "registry.Closure", id, missingDepErr{edge: edge{from: from, to: id}})
		}
		visited[id] = 1

		deps := append([]string(nil), h.Dependencies...)
		if h.Kind == types.KindSymbolic {
			resolved, err := r.resolveSymbolic(id)
			if err != nil {
				return err
			}
			if rh, ok := r.handles[resolved]; ok {
				deps = append(deps, rh.Dependencies...)
			}
		}
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		visited[id] = 2
		order = append(order, id)
		return nil
	}

	sorted := append([]string(nil), targets...)
	sort.Strings(sorted)
	for _, t := range sorted {
		if err := visit(t, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (r *Registry) resolveSymbolic(id string) (string, error) {
	return ident.ResolveSymbolic(id, func(id string) (string, string, bool) {
		h, ok := r.handles[id]
		if !ok {
			return "", "", false
		}
		return string(h.Kind), h.SymbolicTarget, true
	})
}

type cycleErr struct{ path []string }

func (e cycleErr) Error() string {
	s := "dependency cycle: "
	for i, id := range e.path {
		if i > 0 {
			s += " -> "
		}
		s += id
	}
	return s
}

type missingDepErr struct{ edge edge }

func (e missingDepErr) Error() string {
	return "missing dependency: " + e.edge.from + " -> " + e.edge.to
}

// ValidateKindRules checks the invariants of §3 "Container type" for one
// handle against the full handle set. It does not mutate the registry.
func ValidateKindRules(h types.ContainerHandle, all map[string]types.ContainerHandle) error {
	switch h.Kind {
	case types.KindBase:
		if len(h.Dependencies) != 0 {
			return errs.NewFor(errs.KindConfig, "registry.ValidateKindRules", h.ID, baseHasDepsErr{})
		}
	case types.KindSlice:
		if countBaseAncestors(h, all) != 1 {
			return errs.NewFor(errs.KindConfig, "registry.ValidateKindRules", h.ID, sliceBaseCountErr{})
		}
	case types.KindAggregate:
		if countBaseAncestors(h, all) != 1 {
			return errs.NewFor(errs.KindConfig, "registry.ValidateKindRules", h.ID, aggregateBaseCountErr{})
		}
	case types.KindSymbolic:
		if h.SymbolicTarget == "" {
			return errs.NewFor(errs.KindConfig, "registry.ValidateKindRules", h.ID, symbolicNoTargetErr{})
		}
	}
	return nil
}

func countBaseAncestors(h types.ContainerHandle, all map[string]types.ContainerHandle) int {
	count := 0
	for _, dep := range h.Dependencies {
		if d, ok := all[dep]; ok && d.Kind == types.KindBase {
			count++
		}
	}
	return count
}

type baseHasDepsErr struct{}

func (baseHasDepsErr) Error() string { return "a Base container may not declare dependencies" }

type sliceBaseCountErr struct{}

func (sliceBaseCountErr) Error() string { return "a Slice must have exactly one Base ancestor" }

type aggregateBaseCountErr struct{}

func (aggregateBaseCountErr) Error() string {
	return "an Aggregate must have exactly one Base ancestor"
}

type symbolicNoTargetErr struct{}

func (symbolicNoTargetErr) Error() string { return "a Symbolic container must declare a target" }
