package archive

import (
	"fmt"
	"sync"

	"github.com/archivekeep/incoming-queue/deb"
)

// PkgType distinguishes the three kinds of index row a target can hold,
// mirroring reprepro's "binary" / "udeb" / "source" part names passed to
// distribution_getpart in incoming.c.
type PkgType string

const (
	PkgBinary PkgType = "binary"
	PkgUdeb   PkgType = "udeb"
	PkgSource PkgType = "source"
)

// Mode selects read-only or read-write access when opening a Target, per
// §6's target.open(dist, component, pkgtype, indextype, mode).
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// CheckAddResult is the outcome of Target.CheckAdd.
type CheckAddResult int

const (
	Addable CheckAddResult = iota
	Skip
)

// Entry is one row of a package index: a binary stanza or a source stanza.
type Entry struct {
	Name     string
	Version  string
	Control  string
	Filekeys []string
}

// Index holds the current entries for one (distribution, component,
// pkgtype) triple, keyed by package name — there is at most one installed
// version of a given name per index, matching a real Packages/Sources file.
type Index struct {
	Distribution string
	Component    string
	PkgType      PkgType

	mu      sync.Mutex
	entries map[string]*Entry
}

func newIndex(dist, component string, pkgType PkgType) *Index {
	return &Index{
		Distribution: dist,
		Component:    component,
		PkgType:      pkgType,
		entries:      make(map[string]*Entry),
	}
}

// Entries returns a snapshot of the index's current rows, used by
// Release/Packages generation.
func (ix *Index) Entries() []*Entry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]*Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e)
	}
	return out
}

// Target is a handle returned by Store.Open, scoped to one index and one
// access mode; it is the core's unit of transactional open/check/add/close
// per §4.8 step 3 ("each index add is its own transactional open/commit").
type Target struct {
	index *Index
	mode  Mode
}

// CheckAdd implements target.check_add(handle, name, version, permit_older)
// → {addable, skip}: a name not yet in the index, or an upload newer than
// the installed version, is Addable; a same-or-newer installed version
// causes Skip, except that an upload strictly older than the installed one
// is Addable when permitOlder is set (§4.8 phase 1). The error is always nil.
func (t *Target) CheckAdd(name, version string, permitOlder bool) (CheckAddResult, error) {
	t.index.mu.Lock()
	defer t.index.mu.Unlock()

	existing, ok := t.index.entries[name]
	if !ok {
		return Addable, nil
	}
	cmp := deb.CompareVersions(version, existing.Version)
	switch {
	case cmp > 0:
		return Addable, nil
	case cmp < 0 && permitOlder:
		return Addable, nil
	default:
		return Skip, nil
	}
}

// Add implements target.add(handle, name, version, control, filekeys):
// installs or replaces the index row for name. The caller must have opened
// the target with ReadWrite.
func (t *Target) Add(name, version, control string, filekeys []string) error {
	if t.mode != ReadWrite {
		return fmt.Errorf("target opened read-only, cannot add %s", name)
	}
	t.index.mu.Lock()
	defer t.index.mu.Unlock()
	t.index.entries[name] = &Entry{Name: name, Version: version, Control: control, Filekeys: append([]string(nil), filekeys...)}
	return nil
}

// Store owns every (distribution, component, pkgtype) index in the archive
// plus the shared Pool, standing in for §1's "Pool/index backend"
// collaborator as a whole.
type Store struct {
	Pool *Pool

	mu      sync.Mutex
	indexes map[string]*Index
}

// NewStore creates a Store backed by a pool rooted at poolDir.
func NewStore(poolDir string) (*Store, error) {
	pool, err := NewPool(poolDir)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool, indexes: make(map[string]*Index)}, nil
}

func indexKey(dist, component string, pkgType PkgType) string {
	return dist + "/" + component + "/" + string(pkgType)
}

// Open implements target.open(dist, component, pkgtype, indextype, mode).
func (s *Store) Open(dist, component string, pkgType PkgType, mode Mode) (*Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := indexKey(dist, component, pkgType)
	ix, ok := s.indexes[key]
	if !ok {
		ix = newIndex(dist, component, pkgType)
		s.indexes[key] = ix
	}
	return &Target{index: ix, mode: mode}, nil
}

// Index returns the live index for (dist, component, pkgtype) if it has
// been opened at least once, for use by Release/Packages generation.
func (s *Store) Index(dist, component string, pkgType PkgType) (*Index, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, ok := s.indexes[indexKey(dist, component, pkgType)]
	return ix, ok
}

// Distributions returns the distinct distribution names that have at least
// one opened index, in no particular order.
func (s *Store) Distributions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, ix := range s.indexes {
		if !seen[ix.Distribution] {
			seen[ix.Distribution] = true
			out = append(out, ix.Distribution)
		}
	}
	return out
}
