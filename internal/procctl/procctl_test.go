package procctl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamespaceIDRejectsUnknownPID(t *testing.T) {
	// pid 1<<30 should never exist; the syscall must fail cleanly rather
	// than panic.
	_, err := NamespaceID(1 << 30)
	require.Error(t, err)
}

func TestListDepthZeroReturnsOnlyRoot(t *testing.T) {
	self := 1 // pid 1 is always present in any Linux namespace's /proc view
	nsID, err := NamespaceID(self)
	if err != nil {
		t.Skip("no /proc available in this sandbox")
	}
	procs, err := List(self, nsID, 0)
	require.NoError(t, err)
	for _, p := range procs {
		require.LessOrEqual(t, p.Depth, 0)
	}
}
