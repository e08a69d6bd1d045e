// Package archive implements the "Pool/index backend" external collaborator
// named in §1: a content-addressed file pool plus per-distribution package
// indexes, Release/Packages generation, and tracking. It is grounded on the
// teacher's apt/apt.go (index/hash/conflict logic) and the deleted
// deb/repository.go (pool path layout, Packages/Release generation,
// signing), reworked around the operation names reprepro's incoming.c calls
// (files_canadd, files_hardlinkandadd, target_checkaddpackage, ...).
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/archivekeep/incoming-queue/deb"
)

// CanAddResult is the outcome of Pool.CanAdd, matching §6's
// files.can_add(filekey, checksums) → {absent, present_matching, collision}.
type CanAddResult int

const (
	Absent CanAddResult = iota
	PresentMatching
	Collision
)

func (r CanAddResult) String() string {
	switch r {
	case Absent:
		return "absent"
	case PresentMatching:
		return "present_matching"
	case Collision:
		return "collision"
	default:
		return "unknown"
	}
}

// Pool is the content-addressed file store shared by every distribution in
// the archive. Filekeys are paths relative to root, e.g.
// "main/f/foo/foo_1.0-1_amd64.deb". Reference counts let multiple source
// packages and rebuilt binaries share one on-disk copy, per §2's
// deduplication requirement and §8 scenario S3.
type Pool struct {
	root string

	mu        sync.Mutex
	refs      map[string]int
	checksums map[string]deb.Checksums
}

// NewPool opens (creating if necessary) a pool rooted at dir.
func NewPool(dir string) (*Pool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating pool root: %w", err)
	}
	return &Pool{
		root:      dir,
		refs:      make(map[string]int),
		checksums: make(map[string]deb.Checksums),
	}, nil
}

// path resolves a filekey to an absolute path under the pool root.
func (p *Pool) path(filekey string) string {
	return filepath.Join(p.root, filepath.FromSlash(filekey))
}

// CanAdd reports whether filekey may be hardlinked with the given
// checksums: Absent if nothing is there yet, PresentMatching if an entry
// with agreeing checksums already exists, Collision if an entry exists
// whose checksums disagree (§4.7's "collision with different content").
func (p *Pool) CanAdd(filekey string, sums deb.Checksums) (CanAddResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, tracked := p.checksums[filekey]
	if !tracked {
		if _, err := os.Stat(p.path(filekey)); err == nil {
			return Collision, fmt.Errorf("untracked file already present at filekey %s", filekey)
		}
		return Absent, nil
	}
	if existing.Agrees(sums) {
		return PresentMatching, nil
	}
	return Collision, nil
}

// HardlinkAndAdd implements files.hardlink_and_add: it hardlinks temppath
// into the pool at filekey (copying if the temp file lives on a different
// filesystem) and records/merges its checksums, incrementing the filekey's
// reference count. Calling it again for a filekey already present with
// matching checksums just bumps the refcount, supporting rebuild-sharing
// (S3).
func (p *Pool) HardlinkAndAdd(temppath, filekey string, sums deb.Checksums) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	dest := p.path(filekey)
	if existing, tracked := p.checksums[filekey]; tracked {
		if !existing.Agrees(sums) {
			return fmt.Errorf("hardlink_and_add: checksum collision for filekey %s", filekey)
		}
		p.refs[filekey]++
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating pool directory: %w", err)
	}

	if err := os.Link(temppath, dest); err != nil {
		if err := copyFile(temppath, dest); err != nil {
			return fmt.Errorf("installing %s into pool: %w", filekey, err)
		}
	}

	merged, err := p.checksums[filekey].Merge(sums)
	if err != nil {
		return fmt.Errorf("merging checksums for %s: %w", filekey, err)
	}
	p.checksums[filekey] = merged
	p.refs[filekey] = 1
	return nil
}

// DeleteAndRemove implements files.delete_and_remove. If decrementRef, the
// filekey's reference count is decremented first; the on-disk file (and its
// bookkeeping) is removed only if the resulting count is zero and
// deleteUnreferenced is set, or if decrementRef is false (unconditional
// removal, used by commit rollback).
func (p *Pool) DeleteAndRemove(filekey string, decrementRef, deleteUnreferenced bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if decrementRef {
		p.refs[filekey]--
		if p.refs[filekey] > 0 {
			return nil
		}
		if !deleteUnreferenced {
			return nil
		}
	}

	delete(p.refs, filekey)
	delete(p.checksums, filekey)
	if err := os.Remove(p.path(filekey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s from pool: %w", filekey, err)
	}
	return nil
}

// Checksums returns the checksums on record for filekey, if any.
func (p *Pool) Checksums(filekey string) (deb.Checksums, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.checksums[filekey]
	return c, ok
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
