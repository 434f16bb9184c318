// Package lockregistry implements §4.C: per-container advisory locks and
// the live-instance registry.
//
// Locks are always acquired in topological order by callers (the state
// machine in internal/txn), so deadlock is structurally impossible — this
// package only provides the primitive, not the ordering discipline.
package lockregistry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/types"
)

// Lock is a per-container advisory lock backed by flock(2) on a regular
// file. internal/txn.RunOne holds the exclusive lock for a container's
// whole transaction, from Planning through Done; nothing in the module
// takes a shared lock through AcquireShared.
type Lock struct {
	path string
	file *os.File
}

// New returns a Lock for the given lock file path (from ident.Paths.Lock).
// It does not acquire anything yet.
func New(path string) *Lock {
	return &Lock{path: path}
}

// AcquireExclusive takes an exclusive lock, blocking until available.
func (l *Lock) AcquireExclusive() error {
	return l.acquire(syscall.LOCK_EX)
}

// AcquireShared takes a shared (read) lock, blocking until available.
func (l *Lock) AcquireShared() error {
	return l.acquire(syscall.LOCK_SH)
}

// TryAcquireExclusive attempts a non-blocking exclusive lock, returning a
// Lock error if another holder is present.
func (l *Lock) TryAcquireExclusive() error {
	return l.acquire(syscall.LOCK_EX | syscall.LOCK_NB)
}

func (l *Lock) acquire(how int) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return errs.New(errs.KindLock, "lockregistry.acquire", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return errs.New(errs.KindLock, "lockregistry.acquire", err)
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return errs.New(errs.KindLock, "lockregistry.acquire", err)
	}
	l.file = f
	return nil
}

// Release releases the lock and closes the underlying file descriptor.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return errs.New(errs.KindLock, "lockregistry.Release", err)
	}
	return closeErr
}

// InstanceRegistry manages the directory-of-small-records instance table
// (§3 "Instance record", §4.C, §5 "no locking required beyond
// create-exclusive").
type InstanceRegistry struct {
	dir string
}

// NewInstanceRegistry returns a registry rooted at $DATA/instances.
func NewInstanceRegistry(dir string) *InstanceRegistry {
	return &InstanceRegistry{dir: dir}
}

// Register creates a new instance record, keyed by the agent's pid. It
// uses O_CREATE|O_EXCL so concurrent invocations never race on the same
// pid file.
func (r *InstanceRegistry) Register(rec types.InstanceRecord) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return errs.New(errs.KindIO, "lockregistry.Register", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errs.New(errs.KindInternal, "lockregistry.Register", err)
	}
	path := filepath.Join(r.dir, strconv.Itoa(rec.AgentPID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return errs.New(errs.KindIO, "lockregistry.Register", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return errs.New(errs.KindIO, "lockregistry.Register", err)
	}
	return nil
}

// Unregister removes the instance record for pid (§4.G "Published -> Done:
// lock released, instance record removed").
func (r *InstanceRegistry) Unregister(pid int) error {
	err := os.Remove(filepath.Join(r.dir, strconv.Itoa(pid)))
	if err != nil && !os.IsNotExist(err) {
		return errs.New(errs.KindIO, "lockregistry.Unregister", err)
	}
	return nil
}

// Update rewrites an existing record (e.g. to stamp LastStage).
func (r *InstanceRegistry) Update(rec types.InstanceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errs.New(errs.KindInternal, "lockregistry.Update", err)
	}
	path := filepath.Join(r.dir, strconv.Itoa(rec.AgentPID))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errs.New(errs.KindIO, "lockregistry.Update", err)
	}
	return nil
}

// List enumerates live instance records, garbage collecting any whose pid
// is no longer alive (§4.C "stale records ... are garbage-collected on
// enumeration").
func (r *InstanceRegistry) List() ([]types.InstanceRecord, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.KindIO, "lockregistry.List", err)
	}

	var records []types.InstanceRecord
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if !pidAlive(pid) {
			_ = r.Unregister(pid)
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			continue
		}
		var rec types.InstanceRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 tests existence.
	return proc.Signal(syscall.Signal(0)) == nil
}

// GracePeriod is the default wait between SIGTERM and SIGKILL (§4.C).
const GracePeriod = 10 * time.Second
