package dedup

import (
	"os"
	"syscall"
)

// inodeOf extracts the inode number backing info, used to detect that a
// target entry is already hardlinked to its source (§4.D step 3: "if
// target exists and is already the same inode as source, skip").
func inodeOf(info os.FileInfo) uint64 {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return st.Ino
}
