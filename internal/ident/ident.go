// Package ident implements pacwrap's identifier and path resolver (§4.A):
// pure functions from (id, data_dir, cache_dir, config_dir) to absolute
// paths, name validation, and Symbolic-container hop resolution.
//
// Every filesystem entry point elsewhere in the core accepts only paths
// that passed through this package, so name-validation and traversal
// checks happen exactly once.
package ident

import (
	"path/filepath"
	"regexp"

	"github.com/pacwrap/pacwrap/internal/errs"
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.+-]{0,63}$`)

// ValidName reports whether id is a legal container identifier.
func ValidName(id string) bool {
	return nameRE.MatchString(id)
}

// ValidateName returns an *errs.Error if id is not a legal identifier.
func ValidateName(id string) error {
	if !ValidName(id) {
		return errs.New(errs.KindConfig, "ident.ValidateName", errBadName(id))
	}
	return nil
}

type badNameErr struct{ id string }

func (e badNameErr) Error() string {
	return "invalid container identifier: " + e.id
}

func errBadName(id string) error { return badNameErr{id: id} }

// Dirs is the resolved, immutable set of base directories threaded through
// the process as an environment record (§9 "Global state").
type Dirs struct {
	Data   string
	Cache  string
	Config string
}

// Paths is the set of on-disk locations for one container, per §6.
type Paths struct {
	Root       string // $DATA/container/<id>/root
	Home       string // $DATA/container/<id>/home
	Meta       string // $DATA/container/<id>/meta
	Tombstones string // $DATA/container/<id>/tombstones
	LocalDB    string // $DATA/container/<id>/root/var/lib/pacman/local (libalpm's own layout)
	Config     string // $CONFIG/container/<id>.yml
	Lock       string // $DATA/container/<id>/.lock
}

// Resolve computes every on-disk path for a container id. It validates the
// name and returns an error rather than ever synthesizing a path outside
// Dirs.Data/Dirs.Config.
func Resolve(id string, d Dirs) (Paths, error) {
	if err := ValidateName(id); err != nil {
		return Paths{}, err
	}
	base := filepath.Join(d.Data, "container", id)
	return Paths{
		Root:       filepath.Join(base, "root"),
		Home:       filepath.Join(base, "home"),
		Meta:       filepath.Join(base, "meta"),
		Tombstones: filepath.Join(base, "tombstones"),
		LocalDB:    filepath.Join(base, "root", "var", "lib", "pacman", "local"),
		Config:     filepath.Join(d.Config, "container", id+".yml"),
		Lock:       filepath.Join(base, ".lock"),
	}, nil
}

// InstancesDir returns $DATA/instances.
func InstancesDir(d Dirs) string { return filepath.Join(d.Data, "instances") }

// CacheDir returns $CACHE/pkg, the shared download cache.
func CacheDir(d Dirs) string { return filepath.Join(d.Cache, "pkg") }

// HashCachePath returns the path of the dedup engine's persistent hash
// cache database.
func HashCachePath(d Dirs) string { return filepath.Join(d.Cache, "hashcache.db") }

// TransactionLogPath returns $DATA/pacwrap.log.
func TransactionLogPath(d Dirs) string { return filepath.Join(d.Data, "pacwrap.log") }

// GlobalConfigPath returns $CONFIG/pacwrap.yml.
func GlobalConfigPath(d Dirs) string { return filepath.Join(d.Config, "pacwrap.yml") }

// RepositoriesConfigPath returns $CONFIG/repositories.conf.
func RepositoriesConfigPath(d Dirs) string { return filepath.Join(d.Config, "repositories.conf") }

// maxSymbolicHops bounds Symbolic resolution (§4.A).
const maxSymbolicHops = 8

// ResolveSymbolic follows a chain of Symbolic containers to their final
// non-symbolic target, failing with CyclicSymbolic after maxSymbolicHops.
// lookup returns the kind and (if Symbolic) the next target for an id.
func ResolveSymbolic(start string, lookup func(id string) (kind string, target string, ok bool)) (string, error) {
	id := start
	for hop := 0; hop < maxSymbolicHops; hop++ {
		kind, target, ok := lookup(id)
		if !ok {
			return "", errs.New(errs.KindDepMissing, "ident.ResolveSymbolic", errMissing(id))
		}
		if kind != "symbolic" {
			return id, nil
		}
		id = target
	}
	return "", errs.New(errs.KindInternal, "ident.ResolveSymbolic", errCyclicSymbolic(start))
}

type missingErr struct{ id string }

func (e missingErr) Error() string { return "unknown container: " + e.id }
func errMissing(id string) error   { return missingErr{id: id} }

type cyclicSymbolicErr struct{ start string }

func (e cyclicSymbolicErr) Error() string {
	return "CyclicSymbolic: " + e.start + " does not resolve within 8 hops"
}
func errCyclicSymbolic(start string) error { return cyclicSymbolicErr{start: start} }
