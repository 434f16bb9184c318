package registry

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pacwrap/pacwrap/internal/configref"
	"github.com/pacwrap/pacwrap/internal/ident"
	"github.com/pacwrap/pacwrap/internal/types"
)

type fakeProvider struct {
	containers map[string]*configref.ContainerConfig
	present    map[string]bool
}

func (p *fakeProvider) LoadContainerConfig(id string) (*configref.ContainerConfig, error) {
	return p.containers[id], nil
}
func (p *fakeProvider) LoadGlobalConfig() (*configref.GlobalConfig, error) {
	return &configref.GlobalConfig{}, nil
}
func (p *fakeProvider) LoadRepositories() ([]configref.RepoDef, error) { return nil, nil }
func (p *fakeProvider) Declared() ([]string, error) {
	ids := make([]string, 0, len(p.containers))
	for id := range p.containers {
		ids = append(ids, id)
	}
	return ids, nil
}

func newRegistry(t *testing.T, containers map[string]*configref.ContainerConfig, present map[string]bool) (*Registry, ident.Dirs) {
	t.Helper()
	dirs := ident.Dirs{Data: t.TempDir(), Cache: t.TempDir(), Config: t.TempDir()}
	for id := range present {
		paths, err := ident.Resolve(id, dirs)
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(paths.Root, 0o755))
	}
	return New(dirs, &fakeProvider{containers: containers, present: present}), dirs
}

func baseEditorFixture() map[string]*configref.ContainerConfig {
	return map[string]*configref.ContainerConfig{
		"base":   {Kind: string(types.KindBase)},
		"editor": {Kind: string(types.KindSlice), Dependencies: []string{"base"}},
	}
}

func TestLoadDeclaredReturnsEveryConfiguredContainer(t *testing.T) {
	reg, _ := newRegistry(t, baseEditorFixture(), nil)
	handles, err := reg.Load(Declared)
	require.NoError(t, err)
	require.Len(t, handles, 2)
}

func TestLoadPresentSkipsUninitializedRoots(t *testing.T) {
	reg, _ := newRegistry(t, baseEditorFixture(), map[string]bool{"base": true})
	handles, err := reg.Load(Present)
	require.NoError(t, err)
	require.Contains(t, handles, "base")
	require.NotContains(t, handles, "editor")
}

func TestLoadSkipsInvalidContainerNames(t *testing.T) {
	containers := baseEditorFixture()
	containers["../escape"] = &configref.ContainerConfig{Kind: string(types.KindBase)}
	reg, _ := newRegistry(t, containers, nil)
	handles, err := reg.Load(Declared)
	require.NoError(t, err)
	require.NotContains(t, handles, "../escape")
}

func TestClosureOrdersAncestorsBeforeDependents(t *testing.T) {
	reg, _ := newRegistry(t, baseEditorFixture(), nil)
	_, err := reg.Load(Declared)
	require.NoError(t, err)

	order, err := reg.Closure([]string{"editor"})
	require.NoError(t, err)
	require.Equal(t, []string{"base", "editor"}, order)
}

func TestClosureDetectsCycle(t *testing.T) {
	containers := map[string]*configref.ContainerConfig{
		"a": {Kind: string(types.KindSlice), Dependencies: []string{"b"}},
		"b": {Kind: string(types.KindSlice), Dependencies: []string{"a"}},
	}
	reg, _ := newRegistry(t, containers, nil)
	_, err := reg.Load(Declared)
	require.NoError(t, err)

	_, err = reg.Closure([]string{"a"})
	require.Error(t, err)
}

func TestClosureReportsMissingDependency(t *testing.T) {
	containers := map[string]*configref.ContainerConfig{
		"editor": {Kind: string(types.KindSlice), Dependencies: []string{"ghost"}},
	}
	reg, _ := newRegistry(t, containers, nil)
	_, err := reg.Load(Declared)
	require.NoError(t, err)

	_, err = reg.Closure([]string{"editor"})
	require.Error(t, err)
}

func TestValidateKindRulesRejectsBaseWithDeps(t *testing.T) {
	h := types.ContainerHandle{ID: "base", Kind: types.KindBase, Dependencies: []string{"x"}}
	err := ValidateKindRules(h, map[string]types.ContainerHandle{})
	require.Error(t, err)
}

func TestValidateKindRulesRequiresExactlyOneBaseAncestorForSlice(t *testing.T) {
	all := map[string]types.ContainerHandle{
		"base1": {ID: "base1", Kind: types.KindBase},
		"base2": {ID: "base2", Kind: types.KindBase},
	}
	h := types.ContainerHandle{ID: "editor", Kind: types.KindSlice, Dependencies: []string{"base1", "base2"}}
	require.Error(t, ValidateKindRules(h, all))

	h.Dependencies = []string{"base1"}
	require.NoError(t, ValidateKindRules(h, all))
}

func TestValidateKindRulesRequiresSymbolicTarget(t *testing.T) {
	h := types.ContainerHandle{ID: "alias", Kind: types.KindSymbolic}
	require.Error(t, ValidateKindRules(h, nil))

	h.SymbolicTarget = "base"
	require.NoError(t, ValidateKindRules(h, nil))
}
