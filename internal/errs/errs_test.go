package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesContainerWhenSet(t *testing.T) {
	e := NewFor(KindSandbox, "txn.RunOne", "editor", errors.New("boom"))
	require.Contains(t, e.Error(), "editor")
	require.Contains(t, e.Error(), "txn.RunOne")
	require.Contains(t, e.Error(), "boom")
}

func TestErrorMessageOmitsContainerWhenUnset(t *testing.T) {
	e := New(KindConfig, "registry.Load", errors.New("bad yaml"))
	require.NotContains(t, e.Error(), "[")
}

func TestAsUnwrapsWrappedError(t *testing.T) {
	inner := New(KindLock, "lockregistry.Acquire", errors.New("held"))
	wrapped := fmt.Errorf("wrapping: %w", inner)

	got, ok := As(wrapped)
	require.True(t, ok)
	require.Equal(t, KindLock, got.Kind)
}

func TestAsFailsForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	require.False(t, ok)
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindConfig, 3},
		{KindSandbox, 4},
		{KindAgentBadHandshake, 4},
		{KindLock, 5},
		{KindPlan, 2},
		{KindPackage, 2},
		{KindUserAbort, 1},
		{KindInternal, 1},
	}
	for _, c := range cases {
		err := New(c.kind, "op", errors.New("x"))
		require.Equal(t, c.want, ExitCode(err), "kind %v", c.kind)
	}
}

func TestExitCodeNilIsZero(t *testing.T) {
	require.Equal(t, 0, ExitCode(nil))
}

func TestExitCodeUnknownErrorIsOne(t *testing.T) {
	require.Equal(t, 1, ExitCode(errors.New("not an *Error")))
}
