package incoming

import (
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/archivekeep/incoming-queue/archive"
	"github.com/archivekeep/incoming-queue/config"
	"github.com/archivekeep/incoming-queue/logger"
)

// Outcome is the per-manifest result §6 requires every run to produce: ok,
// nothing_done, or a categorized error.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNothingDone
	OutcomeError
)

// ManifestResult is one manifest's contribution to a run Summary.
type ManifestResult struct {
	ManifestFile string
	Outcome      Outcome
	Err          error
}

// Summary is the result of processing every manifest found by one State
// scan. A single manifest's failure never aborts the run; it is recorded
// here and processing continues with the next one, per §5's
// per-manifest-fatal propagation model.
type Summary struct {
	Results []ManifestResult
}

// Process implements the top-level orchestration named throughout §4: scan,
// then for every manifest found, read, parse, resolve permissions, prepare,
// plan, commit, and clean up, before finally sweeping any files still
// unclaimed when the rule permits it.
//
// only, if given, restricts the run to manifests whose incoming-directory
// filename matches one of the listed names — the changesname? argument of
// §4.1's process(state, changesname?) operation (reprepro's
// process_incoming takes the equivalent single optional argument, see
// original_source/incoming.c's changesfilename parameter). With no names
// given, every manifest State finds is processed, as before.
func Process(rule *config.Rule, store *archive.Store, dists map[string]*config.Distribution, keyring openpgp.EntityList, emit logger.Listener, only ...string) (*Summary, error) {
	if emit == nil {
		emit = func(fmt.Stringer) {}
	}

	state, err := Open(rule)
	if err != nil {
		return nil, err
	}

	wanted := nameSet(only)
	summary := &Summary{}
	for i := range state.Files {
		if !state.IsManifest(i) {
			continue
		}
		if wanted != nil && !wanted[state.Files[i]] {
			continue
		}
		result := processOne(state, i, rule, store, dists, keyring, emit)
		summary.Results = append(summary.Results, result)
	}

	SweepUnreferenced(state, rule)
	if err := state.Cleanup(); err != nil {
		return summary, wrapError(IoError, err)
	}
	return summary, nil
}

func nameSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func processOne(state *State, ofs int, rule *config.Rule, store *archive.Store, dists map[string]*config.Distribution, keyring openpgp.EntityList, emit logger.Listener) ManifestResult {
	manifestFile := state.Files[ofs]
	result := ManifestResult{ManifestFile: manifestFile}

	candidate, err := Read(state, ofs, keyring)
	if err != nil {
		result.Outcome, result.Err = OutcomeError, err
		Cleanup(state, candidate, rule, err)
		emitRejected(emit, manifestFile, err)
		return result
	}

	if err := Parse(state, candidate); err != nil {
		result.Outcome, result.Err = OutcomeError, err
		Cleanup(state, candidate, rule, err)
		emitRejected(emit, manifestFile, err)
		return result
	}

	matches := ResolveDistributions(rule, candidate)
	allowed, err := EvaluatePermissions(candidate, dists, matches)
	if err != nil {
		result.Outcome, result.Err = OutcomeError, err
		Cleanup(state, candidate, rule, err)
		emitRejected(emit, manifestFile, err)
		return result
	}
	candidate.SetTargets(allowed)

	if err := PrepareHeaders(state, candidate); err != nil {
		result.Outcome, result.Err = OutcomeError, err
		Cleanup(state, candidate, rule, err)
		emitRejected(emit, manifestFile, err)
		return result
	}
	if err := BuildPackages(state, candidate, dists, store.Pool); err != nil {
		result.Outcome, result.Err = OutcomeError, err
		Cleanup(state, candidate, rule, err)
		emitRejected(emit, manifestFile, err)
		return result
	}

	if err := Plan(store, candidate, rule); err != nil {
		if k, ok := KindOf(err); ok && k == Conflict && allSkipped(candidate) {
			result.Outcome = OutcomeNothingDone
			Cleanup(state, candidate, rule, nil)
			emit(logger.EventManifestSkipped{ManifestFile: manifestFile})
			return result
		}
		result.Outcome, result.Err = OutcomeError, err
		Cleanup(state, candidate, rule, err)
		emitRejected(emit, manifestFile, err)
		return result
	}

	if err := Commit(store, candidate, state, dists, emit); err != nil {
		result.Outcome, result.Err = OutcomeError, err
		Cleanup(state, candidate, rule, err)
		emitRejected(emit, manifestFile, err)
		return result
	}

	result.Outcome = OutcomeOK
	Cleanup(state, candidate, rule, nil)
	return result
}

func allSkipped(candidate *Candidate) bool {
	for _, pd := range candidate.PerDistribution {
		if !pd.Skip {
			return false
		}
	}
	return true
}

func emitRejected(emit logger.Listener, manifestFile string, err error) {
	kind, _ := KindOf(err)
	emit(logger.EventManifestRejected{
		ManifestFile: manifestFile,
		Reason:       err.Error(),
		Kind:         kind.String(),
	})
}
