// Package procctl implements process control (§4.J): enumerating /proc
// for processes in the same user namespace as a container's agent,
// depth-filtering, and the kill sequence.
//
// Grounded on the /proc/<pid>/ns inode-comparison technique used by
// other_examples/…minimega…container.go and
// other_examples/…runc…config.go for namespace identification, adapted
// here from a VM supervisor's process tracking to pacwrap's per-container
// agent trees.
package procctl

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pacwrap/pacwrap/internal/errs"
)

// Process is one enumerated process under a container's namespace.
type Process struct {
	PID   int
	PPID  int
	Depth int // hops from the agent root process
}

// NamespaceID reads the inode backing /proc/<pid>/ns/user, the value
// captured in InstanceRecord.NamespaceID at launch (§3, §4.J).
func NamespaceID(pid int) (uint64, error) {
	var st syscall.Stat_t
	path := filepath.Join("/proc", strconv.Itoa(pid), "ns", "user")
	if err := syscall.Stat(path, &st); err != nil {
		return 0, errs.New(errs.KindIO, "procctl.NamespaceID", err)
	}
	return st.Ino, nil
}

// List enumerates every live process whose user namespace is exactly
// nsID and that descends from agentPID, the agent's own pid as depth 0,
// returning only entries with Depth <= maxDepth (maxDepth < 0 means
// unbounded). Processes in user namespaces nested below nsID are not
// matched.
func List(agentPID int, nsID uint64, maxDepth int) ([]Process, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, errs.New(errs.KindIO, "procctl.List", err)
	}

	children := make(map[int][]int) // ppid -> []pid, restricted to matching ns
	matching := make(map[int]bool)

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		id, err := NamespaceID(pid)
		if err != nil {
			continue // process exited mid-enumeration
		}
		if id != nsID {
			continue
		}
		matching[pid] = true
		ppid := parentOf(pid)
		children[ppid] = append(children[ppid], pid)
	}

	var out []Process
	var walk func(pid, depth int)
	walk = func(pid, depth int) {
		if maxDepth >= 0 && depth > maxDepth {
			return
		}
		out = append(out, Process{PID: pid, PPID: parentOf(pid), Depth: depth})
		for _, child := range children[pid] {
			walk(child, depth+1)
		}
	}
	walk(agentPID, 0)
	return out, nil
}

func parentOf(pid int) int {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0
	}
	// Fields after the parenthesized comm name are space-separated; ppid
	// is field 4 overall, field 2 after the comm.
	end := strings.LastIndexByte(string(data), ')')
	if end < 0 || end+2 >= len(data) {
		return 0
	}
	fields := strings.Fields(string(data[end+2:]))
	if len(fields) < 2 {
		return 0
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return ppid
}

// Kill applies the SIGTERM/SIGKILL sequence (§4.C, §4.J) to every
// process returned by List, waiting on reaped pids up to grace before
// escalating.
func Kill(agentPID int, nsID uint64, grace time.Duration) error {
	procs, err := List(agentPID, nsID, -1)
	if err != nil {
		return err
	}
	for _, p := range procs {
		syscall.Kill(p.PID, syscall.SIGTERM)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !anyAlive(procs) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	for _, p := range procs {
		if alive(p.PID) {
			syscall.Kill(p.PID, syscall.SIGKILL)
		}
	}
	return nil
}

func anyAlive(procs []Process) bool {
	for _, p := range procs {
		if alive(p.PID) {
			return true
		}
	}
	return false
}

func alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
