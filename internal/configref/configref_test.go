package configref

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadContainerConfigParsesKnownFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "container", "editor.yml"), `
kind: slice
dependencies: [base]
seccomp: true
userns: true
mounts:
  - source: /home/alice/projects
    destination: /home/alice/projects
    read_only: false
`)
	p := &YAMLFileProvider{ConfigDir: dir}
	cfg, err := p.LoadContainerConfig("editor")
	require.NoError(t, err)
	require.Equal(t, "slice", cfg.Kind)
	require.Equal(t, []string{"base"}, cfg.Dependencies)
	require.True(t, cfg.Seccomp)
	require.Len(t, cfg.Mounts, 1)
	require.Equal(t, "/home/alice/projects", cfg.Mounts[0].Source)
}

func TestLoadContainerConfigMissingFileErrors(t *testing.T) {
	p := &YAMLFileProvider{ConfigDir: t.TempDir()}
	_, err := p.LoadContainerConfig("ghost")
	require.Error(t, err)
}

func TestLoadGlobalConfigDefaultsWhenAbsent(t *testing.T) {
	p := &YAMLFileProvider{ConfigDir: t.TempDir()}
	cfg, err := p.LoadGlobalConfig()
	require.NoError(t, err)
	require.Equal(t, "required", cfg.DefaultSigLevel)
}

func TestLoadGlobalConfigParsesPresentFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pacwrap.yml"), "default_sig_level: optional\nparallelism: 4\n")
	p := &YAMLFileProvider{ConfigDir: dir}
	cfg, err := p.LoadGlobalConfig()
	require.NoError(t, err)
	require.Equal(t, "optional", cfg.DefaultSigLevel)
	require.Equal(t, 4, cfg.Parallelism)
}

func TestLoadRepositoriesEmptyWhenAbsent(t *testing.T) {
	p := &YAMLFileProvider{ConfigDir: t.TempDir()}
	repos, err := p.LoadRepositories()
	require.NoError(t, err)
	require.Nil(t, repos)
}

func TestDeclaredListsOnlyYMLFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "container", "base.yml"), "kind: base\n")
	writeFile(t, filepath.Join(dir, "container", "editor.yml"), "kind: slice\n")
	writeFile(t, filepath.Join(dir, "container", "README.md"), "not a container\n")

	p := &YAMLFileProvider{ConfigDir: dir}
	ids, err := p.Declared()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"base", "editor"}, ids)
}

func TestDeclaredEmptyWhenDirAbsent(t *testing.T) {
	p := &YAMLFileProvider{ConfigDir: t.TempDir()}
	ids, err := p.Declared()
	require.NoError(t, err)
	require.Nil(t, ids)
}

func TestToHandleTranslatesMountsAndFlags(t *testing.T) {
	cfg := &ContainerConfig{
		Kind:          "slice",
		Dependencies:  []string{"base"},
		Seccomp:       true,
		UserNamespace: true,
		Mounts: []MountEntry{
			{Source: "/src", Destination: "/dst", ReadOnly: true},
		},
		DBus: []string{"org.freedesktop.Notifications"},
		Env:  []string{"TERM=xterm"},
	}
	h := ToHandle("editor", cfg, 3)
	require.Equal(t, "editor", h.ID)
	require.EqualValues(t, "slice", h.Kind)
	require.Equal(t, int64(3), h.MetaVersion)
	require.Len(t, h.Permissions.Mounts, 1)
	require.Equal(t, "/dst", h.Permissions.Mounts[0].Destination)
	require.True(t, h.Permissions.Mounts[0].ReadOnly)
	require.True(t, h.Seccomp)
	require.True(t, h.UserNamespace)
}
