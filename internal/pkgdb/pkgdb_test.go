package pkgdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifySyncableIsResident(t *testing.T) {
	c := Classify([]string{"neovim"}, []string{"neovim"}, nil)
	require.Equal(t, []string{"neovim"}, c.Resident)
	require.Empty(t, c.Foreign)
}

func TestClassifyUpstreamOnlyIsForeign(t *testing.T) {
	c := Classify([]string{"gtk3"}, nil, []string{"gtk3"})
	require.Equal(t, []string{"gtk3"}, c.Foreign)
	require.Empty(t, c.Resident)
}

func TestClassifyUnknownPackageIsResident(t *testing.T) {
	c := Classify([]string{"ghost-pkg"}, nil, nil)
	require.Equal(t, []string{"ghost-pkg"}, c.Resident)
	require.Empty(t, c.Foreign)
}

func TestClassifySyncableTakesPrecedenceOverUpstream(t *testing.T) {
	// A package syncable locally is resident even if also installed upstream.
	c := Classify([]string{"shared-lib"}, []string{"shared-lib"}, []string{"shared-lib"})
	require.Equal(t, []string{"shared-lib"}, c.Resident)
	require.Empty(t, c.Foreign)
}

func TestClassifySortsOutputAndMixesBothSets(t *testing.T) {
	requested := []string{"zed", "gtk3", "neovim", "alpha"}
	syncable := []string{"neovim", "zed"}
	upstream := []string{"gtk3"}
	c := Classify(requested, syncable, upstream)
	require.Equal(t, []string{"alpha", "neovim", "zed"}, c.Resident)
	require.Equal(t, []string{"gtk3"}, c.Foreign)
}
