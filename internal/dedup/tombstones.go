package dedup

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pacwrap/pacwrap/internal/errs"
)

// LoadTombstones reads a container's tombstone list (§4.D step 4): one
// rel_path per line, blank lines ignored. A missing file is equivalent to
// an empty list — a container that has never recorded an explicit
// deletion has no tombstones yet.
func LoadTombstones(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, errs.New(errs.KindDedupIO, "dedup.LoadTombstones", err)
	}
	defer f.Close()

	set := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		set[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.New(errs.KindDedupIO, "dedup.LoadTombstones", err)
	}
	return set, nil
}

// SaveTombstones atomically rewrites a container's tombstone list,
// mirroring the temp-sibling+rename pattern Sync itself uses for its
// target-tree writes.
func SaveTombstones(path string, set map[string]bool) error {
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.New(errs.KindDedupIO, "dedup.SaveTombstones", err)
	}
	tmp := tempSibling(path)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.New(errs.KindDedupIO, "dedup.SaveTombstones", err)
	}
	for _, p := range paths {
		if _, err := f.WriteString(p + "\n"); err != nil {
			f.Close()
			os.Remove(tmp)
			return errs.New(errs.KindDedupIO, "dedup.SaveTombstones", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errs.New(errs.KindDedupIO, "dedup.SaveTombstones", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.New(errs.KindDedupIO, "dedup.SaveTombstones", err)
	}
	return nil
}

// AddTombstone records relPath as explicitly deleted in the tombstone
// file at path, so a later Sync will not reintroduce it from an ancestor.
func AddTombstone(path, relPath string) error {
	set, err := LoadTombstones(path)
	if err != nil {
		return err
	}
	set[relPath] = true
	return SaveTombstones(path, set)
}
