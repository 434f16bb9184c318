package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenReadMetadataRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "container", "meta")
	want := Metadata{
		MetaVersion:  42,
		Explicit:     []string{"vim", "git"},
		Dependencies: []string{"base"},
		ManifestHash: "deadbeef",
	}
	require.NoError(t, WriteMetadata(path, want))

	got, err := ReadMetadata(path)
	require.NoError(t, err)
	require.Equal(t, int64(42), got.MetaVersion)
	require.Equal(t, []string{"git", "vim"}, got.Explicit) // WriteMetadata sorts Explicit
	require.Equal(t, want.Dependencies, got.Dependencies)
	require.Equal(t, want.ManifestHash, got.ManifestHash)
}

func TestReadMetadataMissingFileIsNotExist(t *testing.T) {
	_, err := ReadMetadata(filepath.Join(t.TempDir(), "meta"))
	require.True(t, os.IsNotExist(err))
}

func TestReadMetadataRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta")
	require.NoError(t, os.WriteFile(path, []byte("not a metadata file"), 0o644))

	_, err := ReadMetadata(path)
	require.Error(t, err)
}

func TestManifestHashStableAcrossEquivalentTrees(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(a, "usr/bin"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(b, "usr/bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(a, "usr/bin/sh"), []byte("x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(b, "usr/bin/sh"), []byte("x"), 0o755))

	hashA, err := ManifestHash(a)
	require.NoError(t, err)
	hashB, err := ManifestHash(b)
	require.NoError(t, err)
	require.Equal(t, hashA, hashB)
}

func TestManifestHashDiffersOnContentChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), []byte("x"), 0o644))
	before, err := ManifestHash(root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), []byte("xy"), 0o644))
	after, err := ManifestHash(root)
	require.NoError(t, err)

	require.NotEqual(t, before, after)
}
