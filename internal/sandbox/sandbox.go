// Package sandbox builds the bubblewrap invocation and seccomp policy for
// one agent launch (§4.H "Sandbox"). bubblewrap itself is an opaque
// external namespace launcher (§1); this package only computes its
// argument vector and the seccomp filter that internal/agent hands to
// bwrap on an inherited fd.
//
// Grounded on the bubblewrap policy struct in
// other_examples/…safedep-pmg…bubblewrap_config_linux.go (essential paths,
// devices, deny-by-default seccomp toggle) and on
// opencontainers/runtime-spec's own LinuxSeccomp type, reused directly
// rather than hand-rolled (see other_examples/…runc…config.go for the
// shape runc itself mirrors into that same spec type).
package sandbox

import (
	"os"
	"strconv"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/pacwrap/pacwrap/internal/types"
)

// essentialSystemPaths are read-only bound into every sandbox regardless of
// container-specific mount configuration, so the in-container agent has a
// working userland to exec against.
var essentialSystemPaths = []string{
	"/usr", "/lib", "/lib64", "/etc", "/sys",
}

var essentialDevices = []string{
	"/dev/null", "/dev/zero", "/dev/random", "/dev/urandom", "/dev/full",
}

// deniedSyscalls is the documented syscall denylist from §4.H: "denies a
// documented list of syscalls (ptrace, mount/umount beyond the namespace,
// module ops, kexec, etc.)".
var deniedSyscalls = []string{
	"ptrace",
	"mount",
	"umount2",
	"pivot_root",
	"init_module",
	"finit_module",
	"delete_module",
	"kexec_load",
	"kexec_file_load",
	"reboot",
	"swapon",
	"swapoff",
	"unshare",
	"setns",
	"add_key",
	"request_key",
	"keyctl",
}

// DefaultSeccompFilter returns pacwrap's default seccomp policy as an OCI
// LinuxSeccomp, denying deniedSyscalls with SCMP_ACT_ERRNO and otherwise
// allowing everything (SCMP_ACT_ALLOW default action) — a blocklist, not an
// allowlist, matching §4.H's framing ("denies a documented list").
func DefaultSeccompFilter() *specs.LinuxSeccomp {
	syscalls := make([]specs.LinuxSyscall, 0, len(deniedSyscalls))
	for _, name := range deniedSyscalls {
		syscalls = append(syscalls, specs.LinuxSyscall{
			Names:  []string{name},
			Action: specs.ActErrno,
		})
	}
	return &specs.LinuxSeccomp{
		DefaultAction: specs.ActAllow,
		Architectures: []specs.Arch{specs.ArchX86_64, specs.ArchAARCH64},
		Syscalls:      syscalls,
	}
}

// Args builds the bubblewrap argument vector for launching the agent inside
// container root with the given mount plan. It does not invoke bwrap;
// internal/agent.Launch does that, treating bwrap as an opaque collaborator
// per §1.
//
// seccompFD, when greater than zero, names an fd (already inherited by the
// bwrap process via ExtraFiles) holding a compiled BPF program in the raw
// struct sock_filter wire format (BuildBPFFilter/EncodeBPFFilter); bwrap
// loads it with --seccomp. Zero omits seccomp enforcement entirely.
func Args(root string, mounts []specs.Mount, agentPath string, agentArgs []string, unshareUser bool, seccompFD int) []string {
	args := []string{
		"--die-with-parent",
		"--new-session",
		"--unshare-pid",
		"--unshare-ipc",
		"--unshare-uts",
	}
	if unshareUser {
		args = append(args, "--unshare-user")
	}

	for _, p := range existing(essentialSystemPaths) {
		args = append(args, "--ro-bind", p, p)
	}
	for _, d := range existing(essentialDevices) {
		args = append(args, "--dev-bind", d, d)
	}
	args = append(args, "--proc", "/proc")
	args = append(args, "--bind", root, "/")

	for _, m := range mounts {
		flag := "--bind"
		if m.Options != nil && contains(m.Options, "ro") {
			flag = "--ro-bind"
		}
		args = append(args, flag, m.Source, m.Destination)
	}

	if seccompFD > 0 {
		args = append(args, "--seccomp", strconv.Itoa(seccompFD))
	}

	args = append(args, "--chdir", "/")
	args = append(args, agentPath)
	args = append(args, agentArgs...)
	return args
}

// MountPlanFrom translates pacwrap's own MountSpec list into the OCI
// specs.Mount list carried in the agent parameter blob's mount_plan field
// (SPEC_FULL.md "Domain stack").
func MountPlanFrom(specsIn []types.MountSpec) []specs.Mount {
	out := make([]specs.Mount, 0, len(specsIn))
	for _, s := range specsIn {
		opts := []string{"bind"}
		if s.ReadOnly {
			opts = append(opts, "ro")
		}
		out = append(out, specs.Mount{
			Source:      s.Source,
			Destination: s.Destination,
			Type:        "bind",
			Options:     opts,
		})
	}
	return out
}

func existing(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func contains(items []string, target string) bool {
	for _, it := range items {
		if it == target {
			return true
		}
	}
	return false
}
