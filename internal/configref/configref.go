// Package configref defines the seam between pacwrap's core and the
// external configuration collaborator (§1: "YAML/INI configuration
// deserialisation" is explicitly out of scope for CORE).
//
// ConfigProvider is the interface the container registry (internal/registry)
// depends on. The core never parses YAML or INI itself; it only reads the
// well-known fields of the already-deserialized ContainerConfig. This
// package additionally ships one concrete, minimal implementation
// (YAMLFileProvider) so the engine is runnable and testable without an
// external binary — it is a reference implementation of the external
// collaborator, not "the" production config loader.
package configref

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/types"
)

// ContainerConfig is the opaque-to-the-core configuration blob described in
// §3 "Container handle". Only the fields named there are read by the core;
// Extra carries everything else untouched.
type ContainerConfig struct {
	Kind            string            `yaml:"kind"`
	SymbolicTarget  string            `yaml:"symbolic_target,omitempty"`
	Dependencies    []string          `yaml:"dependencies,omitempty"`
	Explicit        []string          `yaml:"explicit,omitempty"`
	Seccomp         bool              `yaml:"seccomp"`
	UserNamespace   bool              `yaml:"userns"`
	SessionRetained bool              `yaml:"session_retained"`
	Mounts          []MountEntry      `yaml:"mounts,omitempty"`
	DBus            []string          `yaml:"dbus,omitempty"`
	Env             []string          `yaml:"env,omitempty"`
	Extra           map[string]string `yaml:",inline"`
}

// MountEntry is the YAML shape of a types.MountSpec.
type MountEntry struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	ReadOnly    bool   `yaml:"read_only"`
}

// RepoDef is one entry from repositories.conf's semantic model, as handed
// to the package database abstraction (§4.E). Parsing the real INI format
// is external; this is the shape the core reads.
type RepoDef struct {
	Name     string
	Servers  []string
	SigLevel string
}

// GlobalConfig is pacwrap.yml's semantic model.
type GlobalConfig struct {
	DefaultSigLevel string `yaml:"default_sig_level"`
	Parallelism     int    `yaml:"parallelism"`
}

// ConfigProvider is the interface the registry depends on.
type ConfigProvider interface {
	LoadContainerConfig(id string) (*ContainerConfig, error)
	LoadGlobalConfig() (*GlobalConfig, error)
	LoadRepositories() ([]RepoDef, error)
	// Declared lists every container id with a configuration file present,
	// regardless of whether its root has been initialized (§4.B "declared").
	Declared() ([]string, error)
}

// YAMLFileProvider is a minimal reference ConfigProvider reading
// $CONFIG/container/<id>.yml and $CONFIG/pacwrap.yml with yaml.v3.
type YAMLFileProvider struct {
	ConfigDir string
}

func (p *YAMLFileProvider) LoadContainerConfig(id string) (*ContainerConfig, error) {
	data, err := os.ReadFile(filepath.Join(p.ConfigDir, "container", id+".yml"))
	if err != nil {
		return nil, errs.NewFor(errs.KindConfig, "configref.LoadContainerConfig", id, err)
	}
	var cfg ContainerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.NewFor(errs.KindConfig, "configref.LoadContainerConfig", id, err)
	}
	return &cfg, nil
}

func (p *YAMLFileProvider) LoadGlobalConfig() (*GlobalConfig, error) {
	data, err := os.ReadFile(filepath.Join(p.ConfigDir, "pacwrap.yml"))
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{DefaultSigLevel: "required", Parallelism: 0}, nil
		}
		return nil, errs.New(errs.KindConfig, "configref.LoadGlobalConfig", err)
	}
	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.New(errs.KindConfig, "configref.LoadGlobalConfig", err)
	}
	return &cfg, nil
}

func (p *YAMLFileProvider) LoadRepositories() ([]RepoDef, error) {
	// INI parsing is out of scope; the reference provider accepts a
	// pre-split list under repositories.yml for test fixtures instead of
	// reimplementing an INI parser.
	data, err := os.ReadFile(filepath.Join(p.ConfigDir, "repositories.yml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.KindConfig, "configref.LoadRepositories", err)
	}
	var repos []RepoDef
	if err := yaml.Unmarshal(data, &repos); err != nil {
		return nil, errs.New(errs.KindConfig, "configref.LoadRepositories", err)
	}
	return repos, nil
}

func (p *YAMLFileProvider) Declared() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.ConfigDir, "container"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.KindConfig, "configref.Declared", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".yml"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			ids = append(ids, name[:len(name)-len(suffix)])
		}
	}
	return ids, nil
}

// ToHandle converts a ContainerConfig plus id into the core's
// types.ContainerHandle, translating only the well-known fields.
func ToHandle(id string, c *ContainerConfig, metaVersion int64) types.ContainerHandle {
	mounts := make([]types.MountSpec, 0, len(c.Mounts))
	for _, m := range c.Mounts {
		mounts = append(mounts, types.MountSpec{
			Source:      m.Source,
			Destination: m.Destination,
			ReadOnly:    m.ReadOnly,
		})
	}
	return types.ContainerHandle{
		ID:              id,
		Kind:            types.ContainerKind(c.Kind),
		SymbolicTarget:  c.SymbolicTarget,
		Explicit:        c.Explicit,
		Dependencies:    c.Dependencies,
		MetaVersion:     metaVersion,
		Permissions: types.PermissionConfig{
			Mounts: mounts,
			DBus:   c.DBus,
			Env:    c.Env,
			Extra:  c.Extra,
		},
		Seccomp:         c.Seccomp,
		UserNamespace:   c.UserNamespace,
		SessionRetained: c.SessionRetained,
	}
}
