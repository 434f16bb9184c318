package registry

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pacwrap/pacwrap/internal/errs"
)

// metaMagic identifies a pacwrap container metadata file (§3 "Container
// metadata", §6). Mirrors internal/agent.wire.go's framing convention:
// magic(4B) | version(u16) | length(u32) | gob payload.
var metaMagic = [4]byte{'P', 'W', 'M', 'D'}

// MetaSchemaVersion is the current metadata wire version. gob tolerates
// added/removed fields on its own, so this only bumps on a breaking
// reshape of Metadata (§6 "forward-compatible readers accept unknown
// trailing fields").
const MetaSchemaVersion uint16 = 1

// Metadata is the durable record Publish writes to a container's
// ident.Paths.Meta file: the explicit-package set, a monotonically
// increasing version stamp, the dependency list at publish time, and a
// hash of the container's filesystem manifest (§8's byte-identical
// metadata round-trip property).
type Metadata struct {
	MetaVersion  int64
	Explicit     []string
	Dependencies []string
	ManifestHash string
}

// WriteMetadata writes meta to path behind an fsync barrier (§4.G
// "Publish... behind an fsync barrier"): encode to a temp sibling, fsync
// the file, rename into place, then fsync the containing directory so the
// rename itself survives a crash. Mirrors internal/dedup/dedup.go's
// tempSibling/atomic-rename pattern.
func WriteMetadata(path string, meta Metadata) error {
	sort.Strings(meta.Explicit)

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(meta); err != nil {
		return errs.New(errs.KindInternal, "registry.WriteMetadata", err)
	}

	var buf bytes.Buffer
	buf.Write(metaMagic[:])
	binary.Write(&buf, binary.BigEndian, MetaSchemaVersion)
	binary.Write(&buf, binary.BigEndian, uint32(payload.Len()))
	buf.Write(payload.Bytes())

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.KindIO, "registry.WriteMetadata", err)
	}

	tmp := path + ".pacwrap-tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.New(errs.KindIO, "registry.WriteMetadata", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmp)
		return errs.New(errs.KindIO, "registry.WriteMetadata", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errs.New(errs.KindIO, "registry.WriteMetadata", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errs.New(errs.KindIO, "registry.WriteMetadata", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.New(errs.KindIO, "registry.WriteMetadata", err)
	}

	if dirF, err := os.Open(dir); err == nil {
		_ = dirF.Sync()
		dirF.Close()
	}
	return nil
}

// ReadMetadata reads and validates a container metadata file written by
// WriteMetadata. Callers treat os.IsNotExist(err) as "no metadata yet"
// (a freshly declared, never-published container) rather than a failure.
func ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, err
		}
		return Metadata{}, errs.New(errs.KindIO, "registry.ReadMetadata", err)
	}
	defer f.Close()

	var header struct {
		Magic   [4]byte
		Version uint16
		Length  uint32
	}
	if err := binary.Read(f, binary.BigEndian, &header); err != nil {
		return Metadata{}, errs.New(errs.KindConfig, "registry.ReadMetadata", err)
	}
	if header.Magic != metaMagic {
		return Metadata{}, errs.New(errs.KindConfig, "registry.ReadMetadata", fmt.Errorf("bad magic %q", header.Magic))
	}
	if header.Version != MetaSchemaVersion {
		return Metadata{}, errs.New(errs.KindConfig, "registry.ReadMetadata", fmt.Errorf("unsupported metadata version %d", header.Version))
	}

	payload := io.LimitReader(f, int64(header.Length))
	var meta Metadata
	if err := gob.NewDecoder(payload).Decode(&meta); err != nil {
		return Metadata{}, errs.New(errs.KindConfig, "registry.ReadMetadata", err)
	}
	return meta, nil
}

// ManifestHash computes a deterministic hash of root's filesystem manifest
// (relative path, size, mode for every regular file and symlink target for
// every symlink) so two containers with identical content hash equal
// regardless of mtimes or on-disk layout (§8 "byte-identical metadata
// round-trip").
func ManifestHash(root string) (string, error) {
	var entries []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, linkErr := os.Readlink(p)
			if linkErr != nil {
				return linkErr
			}
			entries = append(entries, fmt.Sprintf("L %s %s", rel, target))
		case d.IsDir():
			entries = append(entries, fmt.Sprintf("D %s", rel))
		default:
			entries = append(entries, fmt.Sprintf("F %s %d %o", rel, info.Size(), info.Mode().Perm()))
		}
		return nil
	})
	if err != nil {
		return "", errs.New(errs.KindIO, "registry.ManifestHash", err)
	}
	sort.Strings(entries)

	h := sha256.New()
	for _, e := range entries {
		io.WriteString(h, e)
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
