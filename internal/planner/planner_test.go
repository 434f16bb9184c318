package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pacwrap/pacwrap/internal/configref"
	"github.com/pacwrap/pacwrap/internal/ident"
	"github.com/pacwrap/pacwrap/internal/pkgdb"
	"github.com/pacwrap/pacwrap/internal/registry"
	"github.com/pacwrap/pacwrap/internal/types"
)

type fakeProvider struct {
	containers map[string]*configref.ContainerConfig
}

func (p *fakeProvider) LoadContainerConfig(id string) (*configref.ContainerConfig, error) {
	return p.containers[id], nil
}
func (p *fakeProvider) LoadGlobalConfig() (*configref.GlobalConfig, error) { return &configref.GlobalConfig{}, nil }
func (p *fakeProvider) LoadRepositories() ([]configref.RepoDef, error)     { return nil, nil }
func (p *fakeProvider) Declared() ([]string, error) {
	ids := make([]string, 0, len(p.containers))
	for id := range p.containers {
		ids = append(ids, id)
	}
	return ids, nil
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	dirs := ident.Dirs{Data: t.TempDir(), Cache: t.TempDir(), Config: t.TempDir()}
	provider := &fakeProvider{containers: map[string]*configref.ContainerConfig{
		"base":   {Kind: string(types.KindBase)},
		"editor": {Kind: string(types.KindSlice), Dependencies: []string{"base"}},
	}}
	reg := registry.New(dirs, provider)
	_, err := reg.Load(registry.Declared)
	require.NoError(t, err)
	return reg
}

type fakeDB struct{}

func (fakeDB) Repos() ([]pkgdb.Repo, error)                 { return nil, nil }
func (fakeDB) Installed() ([]pkgdb.Package, error)          { return nil, nil }
func (fakeDB) UpstreamInstalled() ([]pkgdb.Package, error)  { return []pkgdb.Package{{Name: "gtk3"}}, nil }
func (fakeDB) Syncable() ([]pkgdb.Package, error)           { return []pkgdb.Package{{Name: "neovim"}}, nil }

func TestBuildClassifiesResidentAndForeign(t *testing.T) {
	reg := newTestRegistry(t)
	intent := Intent{
		Mode:                types.ModeSynchronize,
		Targets:             []string{"editor"},
		PackagesByContainer: map[string][]string{"editor": {"neovim", "gtk3"}},
	}
	plan, err := Build(reg, intent, func(string) (pkgdb.Database, error) { return fakeDB{}, nil })
	require.NoError(t, err)
	require.Len(t, plan.Order, 2) // base (ancestor) + editor

	var editorWork types.PerContainerWork
	for _, w := range plan.Order {
		if w.ID == "editor" {
			editorWork = w
		}
	}
	require.Equal(t, []string{"neovim"}, editorWork.ResidentTargets)
	require.Equal(t, []string{"gtk3"}, editorWork.ForeignTargets)
}

func TestResolveTargetsRejectsUnknown(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := Build(reg, Intent{Mode: types.ModeSynchronize, Targets: []string{"missing"}}, nil)
	require.Error(t, err)
}

func TestResolveTargetsDefaultsToAllPresentForUpgrade(t *testing.T) {
	reg := newTestRegistry(t)
	plan, err := Build(reg, Intent{Mode: types.ModeUpgrade}, func(string) (pkgdb.Database, error) { return fakeDB{}, nil })
	require.NoError(t, err)
	require.Len(t, plan.Order, 2)
}
