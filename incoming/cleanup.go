package incoming

import "github.com/archivekeep/incoming-queue/config"

// Cleanup implements §4.9's cleanup controller for one manifest's outcome.
// It always releases every staged temp file the candidate ever created
// (success or failure) and marks every file of the candidate processed. It
// queues for deletion by State.Cleanup the manifest's own incoming-directory
// file on success; every file of the candidate on a PermissionDenied outcome
// when the rule's Cleanup set has on_deny, or on an Interrupted or
// BackendError outcome when it has on_error; and, when it has unused_files,
// every file the manifest listed but no package used.
func Cleanup(state *State, candidate *Candidate, rule *config.Rule, outcome error) {
	ReleaseAll(candidate)

	manifestOfs := candidate.Files[0].Ofs
	for i := range candidate.Files {
		state.MarkProcessed(candidate.Files[i].Ofs)
	}

	switch {
	case outcome == nil:
		state.MarkDelete(manifestOfs)
	case rule.CleanupOnDeny() && isKind(outcome, PermissionDenied):
		markAllFilesDelete(state, candidate)
	case rule.CleanupOnError() && isRollbackKind(outcome):
		markAllFilesDelete(state, candidate)
	}

	if rule.CleanupUnusedFiles() {
		MarkUnusedFiles(state, candidate)
	}
}

func isKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func isRollbackKind(err error) bool {
	k, ok := KindOf(err)
	return ok && (k == Interrupted || k == BackendError)
}

func markAllFilesDelete(state *State, candidate *Candidate) {
	for i := range candidate.Files {
		state.MarkDelete(candidate.Files[i].Ofs)
	}
}

// MarkUnusedFiles implements the rule's "unused_files" cleanup option for
// one candidate: every file in this candidate's arena that no package used
// (Used is false) is marked processed and queued for deletion. Files that no
// manifest referenced at all are left to SweepUnreferenced.
func MarkUnusedFiles(state *State, candidate *Candidate) {
	for i := range candidate.Files {
		f := &candidate.Files[i]
		if !f.Used {
			state.MarkProcessed(f.Ofs)
			state.MarkDelete(f.Ofs)
		}
	}
}

// SweepUnreferenced queues for deletion every incoming-directory file that
// no manifest in this run ever touched at all, when the rule's Cleanup set
// includes "unused_files". It must run once, after every manifest in the
// scan has been processed.
func SweepUnreferenced(state *State, rule *config.Rule) {
	if !rule.CleanupUnusedFiles() {
		return
	}
	for i := range state.Files {
		if state.IsManifest(i) {
			continue
		}
		if !state.Processed(i) {
			state.MarkDelete(i)
		}
	}
}
