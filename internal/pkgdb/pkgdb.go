// Package pkgdb is the thin semantic wrapper over libalpm described in
// §4.E. libalpm itself is an opaque external service (§1); this package
// only defines the shape the core depends on (repo handles, local db
// handles, sig-level policy, package iteration) and the one piece of
// actual logic that belongs to the core rather than to libalpm: foreign
// package classification.
package pkgdb

import "sort"

// SigLevel is the signature verification policy applied to a repo or
// package operation (§4.E "applying a SigLevel policy").
type SigLevel int

const (
	SigLevelNever SigLevel = iota
	SigLevelOptional
	SigLevelRequired
)

// Repo is a loaded repository definition, as surfaced by the external INI
// configuration collaborator (configref.RepoDef) after resolution.
type Repo struct {
	Name     string
	Servers  []string
	SigLevel SigLevel
}

// Package is one entry in a package database, local or sync.
type Package struct {
	Name    string
	Version string
}

// Database is the interface the core depends on for all libalpm
// interaction; the planner computes its classification results from the
// lists this interface exposes. No implementation ships in this module:
// the reference driver's lookup (cmd/pacwrap's databaseLookup) returns an
// error, and tests supply their own fakes.
type Database interface {
	// Repos returns the repositories enabled and reachable for this
	// container, after SigLevel policy has been applied.
	Repos() ([]Repo, error)
	// Installed returns every package installed in the container's own
	// local database.
	Installed() ([]Package, error)
	// UpstreamInstalled returns every package installed anywhere in the
	// union of ancestor roots (the effective upstream package universe).
	UpstreamInstalled() ([]Package, error)
	// Syncable returns every package available across Repos().
	Syncable() ([]Package, error)
}

// Classification is the result of sorting requested targets into resident
// and foreign sets for one container (§4.E, §4.F step 2).
type Classification struct {
	Resident []string
	Foreign  []string
}

// Classify implements §4.E's foreign-package rule: a package is foreign to
// container X if it is installed upstream of X but not present in any repo
// reachable by X. requested is the set of package names the planner wants
// to act on; syncable is the set resolvable through the container's own
// enabled repos; upstreamInstalled is the set installed somewhere in an
// ancestor.
func Classify(requested, syncable, upstreamInstalled []string) Classification {
	syncSet := toSet(syncable)
	upstreamSet := toSet(upstreamInstalled)

	var c Classification
	for _, pkg := range requested {
		if syncSet[pkg] {
			c.Resident = append(c.Resident, pkg)
			continue
		}
		if upstreamSet[pkg] {
			c.Foreign = append(c.Foreign, pkg)
			continue
		}
		// Not resolvable at all locally or upstream; the planner still
		// records it resident so libalpm reports the real "target not
		// found" error rather than the core silently dropping it.
		c.Resident = append(c.Resident, pkg)
	}
	sort.Strings(c.Resident)
	sort.Strings(c.Foreign)
	return c
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
