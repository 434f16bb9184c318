package sandbox

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// syscallNumbers maps the names in deniedSyscalls to their amd64/arm64
// syscall numbers, since the kernel's seccomp BPF filter operates on the
// numeric syscall nr loaded from the seccomp_data struct, not on names.
var syscallNumbers = map[string]uint32{
	"ptrace":          unix.SYS_PTRACE,
	"mount":           unix.SYS_MOUNT,
	"umount2":         unix.SYS_UMOUNT2,
	"pivot_root":      unix.SYS_PIVOT_ROOT,
	"init_module":     unix.SYS_INIT_MODULE,
	"finit_module":    unix.SYS_FINIT_MODULE,
	"delete_module":   unix.SYS_DELETE_MODULE,
	"kexec_load":      unix.SYS_KEXEC_LOAD,
	"kexec_file_load": unix.SYS_KEXEC_FILE_LOAD,
	"reboot":          unix.SYS_REBOOT,
	"swapon":          unix.SYS_SWAPON,
	"swapoff":         unix.SYS_SWAPOFF,
	"unshare":         unix.SYS_UNSHARE,
	"setns":           unix.SYS_SETNS,
	"add_key":         unix.SYS_ADD_KEY,
	"request_key":     unix.SYS_REQUEST_KEY,
	"keyctl":          unix.SYS_KEYCTL,
}

const (
	seccompRetAllow = 0x7fff0000
	seccompRetErrno = 0x00050000
)

// BuildBPFFilter compiles DefaultSeccompFilter's denylist into the classic
// BPF program the kernel's seccomp(2) SECCOMP_MODE_FILTER (and bwrap's
// --seccomp) expects: load the syscall nr, compare against each denied
// number in turn, fall through to ALLOW, jump to ERRNO(EPERM) on a match.
func BuildBPFFilter() []unix.SockFilter {
	var nums []uint32
	for _, sc := range DefaultSeccompFilter().Syscalls {
		for _, name := range sc.Names {
			if nr, ok := syscallNumbers[name]; ok {
				nums = append(nums, nr)
			}
		}
	}

	n := len(nums)
	prog := make([]unix.SockFilter, 0, n+2)
	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_LD | unix.BPF_W | unix.BPF_ABS,
		K:    0, // offsetof(struct seccomp_data, nr)
	})
	for i, nr := range nums {
		// Jt counts down to the ERRNO return past the remaining compares;
		// Jf falls through to the next compare (or ALLOW, for the last).
		prog = append(prog, unix.SockFilter{
			Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K,
			Jt:   uint8(n - i),
			Jf:   0,
			K:    nr,
		})
	}
	prog = append(prog, unix.SockFilter{Code: unix.BPF_RET | unix.BPF_K, K: seccompRetAllow})
	prog = append(prog, unix.SockFilter{Code: unix.BPF_RET | unix.BPF_K, K: seccompRetErrno | uint32(unix.EPERM)})
	return prog
}

// EncodeBPFFilter serializes prog into the raw struct sock_filter bytes (8
// bytes per instruction: u16 code, u8 jt, u8 jf, u32 k, little-endian) that
// bwrap's --seccomp FD reads directly into a sock_fprog.
func EncodeBPFFilter(prog []unix.SockFilter) []byte {
	out := make([]byte, 0, len(prog)*8)
	for _, f := range prog {
		var buf [8]byte
		binary.LittleEndian.PutUint16(buf[0:2], f.Code)
		buf[2] = f.Jt
		buf[3] = f.Jf
		binary.LittleEndian.PutUint32(buf[4:8], f.K)
		out = append(out, buf[:]...)
	}
	return out
}
