// Package txn drives the per-container transaction state machine (§4.G)
// and the fleet-level scheduling policy (§5): independent siblings run
// concurrently, bounded by hardware parallelism, while a failure in one
// container halts every container that transitively depends on it.
//
// Grounded on the teacher's pkg/reconciler/reconciler.go drive-to-
// convergence loop (explicit per-resource state transitions, a timer
// around each stage, halt-on-dependency-failure) generalized from
// cluster reconciliation to a single fleet-sync invocation.
package txn

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/google/uuid"

	"github.com/pacwrap/pacwrap/internal/agent"
	"github.com/pacwrap/pacwrap/internal/dedup"
	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/hashcache"
	"github.com/pacwrap/pacwrap/internal/ident"
	"github.com/pacwrap/pacwrap/internal/lockregistry"
	"github.com/pacwrap/pacwrap/internal/logspine"
	"github.com/pacwrap/pacwrap/internal/metrics"
	"github.com/pacwrap/pacwrap/internal/pkgdb"
	"github.com/pacwrap/pacwrap/internal/procctl"
	"github.com/pacwrap/pacwrap/internal/registry"
	"github.com/pacwrap/pacwrap/internal/sandbox"
	"github.com/pacwrap/pacwrap/internal/types"
)

// Deps bundles every collaborator the state machine needs. AgentPath
// points at the cmd/pacwrap-agent binary.
type Deps struct {
	Registry  *registry.Registry
	Dirs      ident.Dirs
	Instances *lockregistry.InstanceRegistry
	Hash      hashcache.Digester
	TxLog     *logspine.TransactionLog
	AgentPath string
	Repos     []pkgdb.Repo
	SigPolicy pkgdb.SigLevel
}

// CancelGrace is the wait between SIGTERM and SIGKILL (§5 "waits up to
// 10s, then SIGKILLs").
const CancelGrace = 10 * time.Second

// RunFleet executes order (already topologically sorted by the planner)
// respecting the halt-downstream-on-failure policy: independent siblings
// run concurrently, bounded by GOMAXPROCS.
func RunFleet(ctx context.Context, d Deps, order []types.PerContainerWork) map[string]types.Summary {
	results := make(map[string]types.Summary, len(order))
	errsByID := make(map[string]error, len(order))
	done := make(map[string]chan struct{}, len(order))
	for _, w := range order {
		done[w.ID] = make(chan struct{})
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))

	for _, w := range order {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done[w.ID])

			handle, _ := d.Registry.Get(w.ID)
			for _, depID := range handle.Dependencies {
				if ch, ok := done[depID]; ok {
					<-ch
				}
			}

			mu.Lock()
			blocked := false
			for _, depID := range handle.Dependencies {
				if err := errsByID[depID]; err != nil {
					blocked = true
					break
				}
			}
			mu.Unlock()
			if blocked {
				mu.Lock()
				results[w.ID] = types.Summary{ContainerID: w.ID, Skipped: []string{"halted: dependency failed"}}
				errsByID[w.ID] = errHalted{w.ID}
				mu.Unlock()
				return
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				errsByID[w.ID] = err
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			summary, err := RunOne(ctx, d, w, handle)
			mu.Lock()
			results[w.ID] = summary
			if err != nil {
				errsByID[w.ID] = err
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

type errHalted struct{ id string }

func (e errHalted) Error() string { return "halted: an ancestor dependency failed for " + e.id }

// RunOne drives one container through Idle → Done (§4.G). It is the
// unit RunFleet schedules.
func RunOne(ctx context.Context, d Deps, work types.PerContainerWork, handle types.ContainerHandle) (types.Summary, error) {
	state := types.StateIdle
	summary := types.Summary{ContainerID: work.ID}
	log := logspine.WithContainerID(work.ID)
	opID := uuid.New()

	advance := func(to types.TxnState) {
		state = to
		d.logEvent(opID, work.ID, string(to), "")
	}

	paths, err := ident.Resolve(work.ID, d.Dirs)
	if err != nil {
		return summary, d.fail(opID, work.ID, work.Mode, state, errs.NewFor(errs.KindConfig, "txn.RunOne", work.ID, err))
	}

	lock := lockregistry.New(paths.Lock)
	if err := lock.AcquireExclusive(); err != nil {
		return summary, d.fail(opID, work.ID, work.Mode, state, errs.NewFor(errs.KindLock, "txn.RunOne", work.ID, err))
	}
	defer lock.Release()

	advance(types.StatePlanning)

	blob := buildBlob(d, work, handle)
	advance(types.StatePrepared)

	if work.Mode != types.ModeDatabaseOnly {
		ancestors, err := d.Registry.Closure([]string{work.ID})
		if err != nil {
			return summary, d.fail(opID, work.ID, work.Mode, state, errs.NewFor(errs.KindPlan, "txn.RunOne", work.ID, err))
		}
		var sources []string
		for _, anc := range ancestors {
			if anc == work.ID {
				continue
			}
			ancPaths, err := ident.Resolve(anc, d.Dirs)
			if err != nil {
				continue
			}
			sources = append(sources, ancPaths.Root)
		}
		sources = append(sources, paths.Root)

		tombstones, err := dedup.LoadTombstones(paths.Tombstones)
		if err != nil {
			return summary, d.fail(opID, work.ID, work.Mode, state, err)
		}

		res, err := dedup.Sync(ctx, dedup.Plan{
			Sources:    sources,
			Target:     paths.Root,
			Tombstones: tombstones,
			Force:      work.Flags.ForceFilesystem,
			Digester:   d.Hash,
		})
		if err != nil {
			return summary, d.fail(opID, work.ID, work.Mode, state, err)
		}
		summary.Added += res.Added + res.Replaced
		summary.Removed += res.Removed
		summary.LocalOverrides = res.LocalOverrides
		for _, p := range res.LocalOverrides {
			log.Warn().Str("path", p).Msg("local override retained")
		}
	}
	advance(types.StateStaged)

	// pendingPath marks a Commit that finished but whose Publish did not
	// (§4.G, §9 open question (c)): present on entry, it means a prior run
	// already committed and only Publish needs retrying, so the agent is
	// not relaunched. Commit is durable; re-running it would re-download
	// and re-install for nothing.
	pendingPath := paths.Meta + ".pending"
	resuming := false
	if _, statErr := os.Stat(pendingPath); statErr == nil {
		resuming = true
	}

	var rec types.InstanceRecord
	agentLaunched := false

	if work.Mode != types.ModeFilesystemOnly && !work.Flags.Preview && !resuming {
		mountPlan := sandbox.MountPlanFrom(handle.Permissions.Mounts)
		rec = types.InstanceRecord{ContainerID: work.ID, StartedAt: time.Now(), LastStage: types.StateStaged}
		launchCfg := agent.LaunchConfig{
			AgentPath:      d.AgentPath,
			NoConfirm:      work.Flags.NoConfirm || work.Flags.Preview,
			Root:           paths.Root,
			MountPlan:      mountPlan,
			UserNamespace:  handle.UserNamespace,
			DisableSandbox: work.Flags.DisableSandbox,
			Seccomp:        handle.Seccomp,
		}
		h, err := agent.Launch(ctx, launchCfg, blob)
		if err != nil {
			return summary, d.fail(opID, work.ID, work.Mode, state, err)
		}
		rec.AgentPID = h.Pid()
		if nsID, nsErr := procctl.NamespaceID(rec.AgentPID); nsErr == nil {
			rec.NamespaceID = nsID
		}
		agentLaunched = true
		_ = d.Instances.Register(rec)
		defer d.Instances.Unregister(rec.AgentPID)

		added, removed, netBytes, werr := drainEvents(work.ID, h)
		summary.Added += added
		summary.Removed += removed
		summary.NetBytes += netBytes

		waitErr := h.Wait()
		if werr != nil {
			return summary, d.fail(opID, work.ID, work.Mode, state, werr)
		}
		if waitErr != nil {
			return summary, d.fail(opID, work.ID, work.Mode, state, waitErr)
		}

		rec.LastStage = types.StateCommitted
		_ = d.Instances.Update(rec)

		if err := os.WriteFile(pendingPath, []byte(opID.String()+"\n"), 0o644); err != nil {
			return summary, d.fail(opID, work.ID, work.Mode, state, errs.NewFor(errs.KindIO, "txn.RunOne", work.ID, err))
		}
	}
	advance(types.StateCommitted)

	if !work.Flags.Preview {
		hash, err := registry.ManifestHash(paths.Root)
		if err != nil {
			return summary, d.fail(opID, work.ID, work.Mode, state, errs.NewFor(errs.KindIO, "txn.RunOne", work.ID, err))
		}
		meta := registry.Metadata{
			MetaVersion:  time.Now().UnixNano(),
			Explicit:     publishedExplicit(handle, work, summary),
			Dependencies: handle.Dependencies,
			ManifestHash: hash,
		}
		if err := registry.WriteMetadata(paths.Meta, meta); err != nil {
			return summary, d.fail(opID, work.ID, work.Mode, state, err)
		}
		_ = os.Remove(pendingPath)

		if agentLaunched {
			rec.LastStage = types.StatePublished
			_ = d.Instances.Update(rec)
		}
	}
	advance(types.StatePublished)
	advance(types.StateDone)

	metrics.TransactionsTotal.WithLabelValues(work.ID, string(work.Mode), "ok").Inc()
	return summary, nil
}

// publishedExplicit computes the explicit-package set Publish records
// (invariant 4, §8): handle's existing explicit set unioned with the
// targets this transaction actually resolved, minus anything ModeRemove
// dropped or that failed to install.
func publishedExplicit(handle types.ContainerHandle, work types.PerContainerWork, summary types.Summary) []string {
	failed := make(map[string]bool, len(summary.Failed))
	for _, p := range summary.Failed {
		failed[p] = true
	}

	set := make(map[string]bool, len(handle.Explicit))
	for _, p := range handle.Explicit {
		set[p] = true
	}

	targeted := append(append([]string{}, work.ResidentTargets...), work.ForeignTargets...)
	for _, p := range targeted {
		if failed[p] {
			continue
		}
		if work.Mode == types.ModeRemove {
			delete(set, p)
		} else {
			set[p] = true
		}
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (d Deps) fail(opID uuid.UUID, containerID string, mode types.TransactionMode, at types.TxnState, err error) error {
	d.logEvent(opID, containerID, "failed", err.Error())
	metrics.TransactionsTotal.WithLabelValues(containerID, string(mode), "failed").Inc()
	return errs.NewFor(errs.KindInternal, "txn.RunOne", containerID, fmt.Errorf("failed at %s: %w", at, err))
}

func (d Deps) logEvent(opID uuid.UUID, containerID, event, detail string) {
	if d.TxLog == nil {
		return
	}
	_ = d.TxLog.Append(logspine.LogEntry{
		Timestamp:   time.Now().UTC(),
		OperationID: opID.String(),
		ContainerID: containerID,
		Event:       event,
		Detail:      detail,
	})
}

func buildBlob(d Deps, work types.PerContainerWork, handle types.ContainerHandle) agent.ParameterBlob {
	mountPlan := sandbox.MountPlanFrom(handle.Permissions.Mounts)
	var flags uint32
	if work.Flags.Preview {
		flags |= agent.FlagPreview
	}
	if work.Flags.ForceForeign {
		flags |= agent.FlagForceForeign
	}
	if work.Flags.LazyLoad {
		flags |= agent.FlagLazyLoad
	}
	if work.Flags.DisableSandbox || !handle.Seccomp {
		flags |= agent.FlagDisableSandbox
	}
	blob := agent.ParameterBlob{
		Mode:         string(work.Mode),
		Repos:        d.Repos,
		SigPolicy:    d.SigPolicy,
		MountPlan:    mountPlan,
		EnvAllowlist: handle.Permissions.Env,
		Targets:      agent.Targets{Resident: work.ResidentTargets, Foreign: work.ForeignTargets},
		FlagsBitmap:  flags,
		Nonce:        uuid.New(),
	}
	return blob
}

func drainEvents(containerID string, h *agent.Handle) (added, removed int, netBytes int64, err error) {
	for e := range h.Events() {
		metrics.AgentEventsTotal.WithLabelValues(containerID, fmt.Sprint(e.Tag)).Inc()
		switch e.Tag {
		case agent.EventSummary:
			added += e.Added
			removed += e.Removed
			netBytes += e.NetBytes
		case agent.EventError:
			err = errs.NewFor(errs.KindAgentPackage, "txn.drainEvents", containerID, fmt.Errorf("%s", e.Msg))
		case agent.EventDone:
			if e.Status != agent.StatusOk {
				err = errs.NewFor(errs.KindAgentPackage, "txn.drainEvents", containerID, fmt.Errorf("agent reported %s", e.Status))
			}
		}
	}
	return
}
