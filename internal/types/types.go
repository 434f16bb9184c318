// Package types defines pacwrap's core domain model: container topology,
// transaction plans, the agent wire model, and process/instance records.
//
// These types are read by every other internal package; none of them own
// behavior beyond small invariant helpers. Per §9,
// sum types (container kind, error kind, transaction state, event kind)
// are represented as tagged Go types with explicit switch dispatch, never
// as an interface hierarchy.
package types

import "time"

// ContainerKind is the sum type over {Base, Slice, Aggregate, Symbolic}.
type ContainerKind string

const (
	KindBase      ContainerKind = "base"
	KindSlice     ContainerKind = "slice"
	KindAggregate ContainerKind = "aggregate"
	KindSymbolic  ContainerKind = "symbolic"
)

// ContainerHandle is the tuple described in §3 "Container handle".
type ContainerHandle struct {
	ID              string
	Kind            ContainerKind
	SymbolicTarget  string // only meaningful when Kind == KindSymbolic
	Explicit        []string
	Dependencies    []string
	MetaVersion     int64
	Permissions     PermissionConfig
	Seccomp         bool
	UserNamespace   bool
	SessionRetained bool
}

// PermissionConfig is the opaque-to-the-core permission/mount configuration
// the external config collaborator supplies. The core only reads the
// well-known fields below; anything else lives in Extra and is round
// tripped without interpretation.
type PermissionConfig struct {
	Mounts    []MountSpec
	DBus      []string
	Env       []string // environment allowlist forwarded to the agent
	Extra     map[string]string
}

// MountSpec is pacwrap's own mount description, translated to an OCI
// specs.Mount when building the agent parameter blob's mount plan.
type MountSpec struct {
	Source      string
	Destination string
	ReadOnly    bool
}

// TransactionMode is the per-container mode a PerContainerWork item runs.
type TransactionMode string

const (
	ModeSynchronize    TransactionMode = "synchronize"
	ModeUpgrade        TransactionMode = "upgrade"
	ModeRemove         TransactionMode = "remove"
	ModeDatabaseOnly   TransactionMode = "database-only"
	ModeFilesystemOnly TransactionMode = "filesystem-only"
)

// TransactionFlags are the per-container flags from §3.
type TransactionFlags struct {
	Preview         bool
	ForceForeign    bool
	ForceFilesystem bool
	LazyLoad        bool
	DisableSandbox  bool
	NoConfirm       bool
}

// PerContainerWork is the planner's output for one container (§3).
type PerContainerWork struct {
	ID              string
	Mode            TransactionMode
	ResidentTargets []string
	ForeignTargets  []string
	Flags           TransactionFlags
}

// TxnState is the transaction state machine's sum type (§4.G).
type TxnState string

const (
	StateIdle      TxnState = "idle"
	StatePlanning  TxnState = "planning"
	StatePrepared  TxnState = "prepared"
	StateStaged    TxnState = "staged"
	StateCommitted TxnState = "committed"
	StatePublished TxnState = "published"
	StateDone      TxnState = "done"
	StateFailed    TxnState = "failed"
	StateCancelled TxnState = "cancelled"
)

// InstanceRecord tracks one live container agent process (§3, §4.C).
type InstanceRecord struct {
	ContainerID string
	AgentPID    int
	StartedAt   time.Time
	UserCmd     []string
	NamespaceID uint64 // inode number of the agent's user namespace, for §4.J
	LastStage   TxnState
}

// LocalOverride is a divergence the dedup engine reports (§4.D).
type LocalOverride struct {
	ContainerID string
	Path        string
}

// Summary is the per-container result of a transaction, for §4.I/§8.
type Summary struct {
	ContainerID    string
	Added          int
	Removed        int
	NetBytes       int64
	Skipped        []string
	Failed         []string
	LocalOverrides []string
}
