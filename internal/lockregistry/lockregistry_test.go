package lockregistry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pacwrap/pacwrap/internal/types"
)

func TestAcquireExclusiveThenReleaseRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "container", ".lock")
	l := New(path)
	require.NoError(t, l.AcquireExclusive())
	require.FileExists(t, path)
	require.NoError(t, l.Release())
}

func TestTryAcquireExclusiveFailsWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	holder := New(path)
	require.NoError(t, holder.AcquireExclusive())
	defer holder.Release()

	other := New(path)
	err := other.TryAcquireExclusive()
	require.Error(t, err)
}

func TestReleaseOnUnacquiredLockIsNoop(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), ".lock"))
	require.NoError(t, l.Release())
}

func TestInstanceRegisterListUnregister(t *testing.T) {
	dir := t.TempDir()
	reg := NewInstanceRegistry(dir)

	rec := types.InstanceRecord{ContainerID: "editor", AgentPID: os.Getpid(), StartedAt: time.Now(), LastStage: types.StateStaged}
	require.NoError(t, reg.Register(rec))

	records, err := reg.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "editor", records[0].ContainerID)

	require.NoError(t, reg.Unregister(rec.AgentPID))
	records, err = reg.List()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestInstanceListGarbageCollectsDeadPID(t *testing.T) {
	dir := t.TempDir()
	reg := NewInstanceRegistry(dir)

	// Pid 999999 is exceedingly unlikely to be alive in any sandbox.
	rec := types.InstanceRecord{ContainerID: "ghost", AgentPID: 999999}
	require.NoError(t, reg.Register(rec))

	records, err := reg.List()
	require.NoError(t, err)
	require.Empty(t, records)

	_, statErr := os.Stat(filepath.Join(dir, "999999"))
	require.True(t, os.IsNotExist(statErr))
}

func TestInstanceUpdateOverwritesExistingRecord(t *testing.T) {
	dir := t.TempDir()
	reg := NewInstanceRegistry(dir)

	rec := types.InstanceRecord{ContainerID: "editor", AgentPID: os.Getpid(), LastStage: types.StateStaged}
	require.NoError(t, reg.Register(rec))

	rec.LastStage = types.StateCommitted
	require.NoError(t, reg.Update(rec))

	records, err := reg.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, types.StateCommitted, records[0].LastStage)
}

func TestUnregisterMissingRecordIsNoop(t *testing.T) {
	reg := NewInstanceRegistry(t.TempDir())
	require.NoError(t, reg.Unregister(12345))
}
