package incoming

import (
	"fmt"

	"github.com/archivekeep/incoming-queue/archive"
	"github.com/archivekeep/incoming-queue/config"
	"github.com/archivekeep/incoming-queue/logger"
)

// Plan implements §4.8 phase 1: a dry run of every non-skipped
// CandidatePackage against its destination index via Target.CheckAdd. A
// same-or-newer installed version marks the package Skip without failing
// the manifest (permit_older lets a strictly older upload through); an
// error from CheckAdd aborts the whole manifest as a Conflict. A
// PerDistribution with every package skipped is itself marked Skip, and a
// manifest with every PerDistribution skipped fails with a "nothing to do"
// Conflict.
func Plan(store *archive.Store, candidate *Candidate, rule *config.Rule) error {
	if err := checkUnusedFiles(candidate, rule); err != nil {
		return err
	}

	anyAddable := false
	for d := range candidate.PerDistribution {
		pd := &candidate.PerDistribution[d]
		addableHere := 0

		for p := range pd.Packages {
			pkg := &pd.Packages[p]
			pkgType := pkgTypeOf(candidate, pkg)

			target, err := store.Open(pd.Into, pkg.Component, pkgType, archive.ReadOnly)
			if err != nil {
				return wrapError(BackendError, err)
			}
			result, err := target.CheckAdd(pkg.Name, pkg.Version, rule.PermitOlderVersion())
			if err != nil {
				return newError(Conflict, "%s/%s: %v", pd.Into, pkg.Name, err)
			}
			if result == archive.Skip {
				pkg.Skip = true
				continue
			}
			addableHere++
		}

		if addableHere == 0 {
			pd.Skip = true
		} else {
			anyAddable = true
		}
	}

	if !anyAddable {
		return newError(Conflict, "nothing to do: every destination distribution skipped")
	}
	return nil
}

// checkUnusedFiles implements §4.8's mandatory pre-commit check: every
// referenced file that no package ever claimed is fatal unless the rule's
// Permit set includes unused_files. Files[0] is the manifest itself and is
// never subject to this check.
func checkUnusedFiles(candidate *Candidate, rule *config.Rule) error {
	if rule.PermitUnusedFiles() {
		return nil
	}
	for i := 1; i < len(candidate.Files); i++ {
		f := &candidate.Files[i]
		if !f.Used {
			return newError(Conflict, "contains unused file %q (Permit: unused_files to ignore)", f.DeclaredName)
		}
	}
	return nil
}

func pkgTypeOf(candidate *Candidate, pkg *CandidatePackage) archive.PkgType {
	switch candidate.Files[pkg.MasterIdx].Type {
	case TypeBinaryUdeb:
		return archive.PkgUdeb
	case TypeSourceDsc:
		return archive.PkgSource
	default:
		return archive.PkgBinary
	}
}

// Commit implements §4.8 phases 2 and 3: hardlink every package's files
// into the pool, add it to its destination index, record tracking rows, and
// mark the backing CandidateFiles used-up for cleanup. A failure partway
// through one distribution rolls back only what that distribution's commit
// installed into the pool, via Pool.DeleteAndRemove, before returning the
// error; distributions already committed are left in place.
func Commit(store *archive.Store, candidate *Candidate, state *State, dists map[string]*config.Distribution, emit logger.Listener) error {
	if emit == nil {
		emit = func(fmt.Stringer) {}
	}

	for d := range candidate.PerDistribution {
		pd := &candidate.PerDistribution[d]
		if pd.Skip {
			continue
		}

		dist := dists[pd.Into]
		tracking := archive.NewTracking(pd.Into, dist != nil && dist.Tracking.Enabled)
		var installedFilekeys []string

		if err := commitDistribution(store, candidate, pd, tracking, emit, &installedFilekeys); err != nil {
			for _, fk := range installedFilekeys {
				_ = store.Pool.DeleteAndRemove(fk, false, true)
			}
			return err
		}

		if dist != nil && dist.Tracking.Enabled && dist.Tracking.IncludeManifest {
			manifestFile := &candidate.Files[0]
			ts := tracking.Summon(candidate.Source, candidate.ChangesVersion)
			_ = tracking.Add(ts, []string{manifestFile.DeclaredName})
		}
		if err := tracking.Finish(); err != nil {
			return wrapError(BackendError, err)
		}

		emit(logger.EventManifestAccepted{
			Distribution:   pd.Into,
			Source:         candidate.Source,
			ChangesVersion: candidate.ChangesVersion,
		})
	}

	markDispositions(candidate, state)
	return nil
}

func commitDistribution(store *archive.Store, candidate *Candidate, pd *PerDistribution, tracking *archive.Tracking, emit logger.Listener, installed *[]string) error {
	for p := range pd.Packages {
		pkg := &pd.Packages[p]
		if pkg.Skip {
			continue
		}
		pkgType := pkgTypeOf(candidate, pkg)

		for k, filekey := range pkg.Filekeys {
			fileIdx := pkg.Files[k]
			if fileIdx < 0 {
				continue // already present in pool with matching checksums
			}
			file := &candidate.Files[fileIdx]
			if err := store.Pool.HardlinkAndAdd(file.TempFilename, filekey, file.Checksums); err != nil {
				return wrapError(BackendError, err)
			}
			*installed = append(*installed, filekey)
		}

		target, err := store.Open(pd.Into, pkg.Component, pkgType, archive.ReadWrite)
		if err != nil {
			return wrapError(BackendError, err)
		}
		if err := target.Add(pkg.Name, pkg.Version, pkg.Control, pkg.Filekeys); err != nil {
			return wrapError(BackendError, err)
		}

		if ts := tracking.Summon(candidate.Source, pkg.Version); ts != nil {
			if err := tracking.Add(ts, pkg.Filekeys); err != nil {
				return wrapError(BackendError, err)
			}
		}

		emit(logger.EventPackageInstalled{
			Distribution: pd.Into,
			Package:      pkg.Name,
			Version:      pkg.Version,
			Filekeys:     pkg.Filekeys,
		})
	}
	return nil
}

// markDispositions implements §4.8 phase 3: every incoming-directory file
// that backed at least one non-skipped, non-deduped package is marked for
// deletion by State.Cleanup; anything never referenced is left alone unless
// the rule permits sweeping unused files.
func markDispositions(candidate *Candidate, state *State) {
	used := make(map[int]bool)
	for _, pd := range candidate.PerDistribution {
		if pd.Skip {
			continue
		}
		for _, pkg := range pd.Packages {
			if pkg.Skip {
				continue
			}
			for _, idx := range pkg.Files {
				if idx >= 0 {
					used[idx] = true
				}
			}
		}
	}
	used[0] = true // the manifest's own CandidateFile, always Files[0]

	for idx := range used {
		fileOfs := candidate.Files[idx].Ofs
		state.MarkProcessed(fileOfs)
		state.MarkDelete(fileOfs)
	}
}
