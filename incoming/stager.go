package incoming

import (
	"io"
	"os"
	"path/filepath"

	"github.com/archivekeep/incoming-queue/deb"
)

// Stage implements §4.6's idempotent file stager: it copies
// state.Files[file.Ofs] from the incoming directory into the rule's
// tempdir, computing digests of every supported algorithm during the copy,
// and reconciles them against any checksums already attached to file.
func Stage(state *State, candidate *Candidate, file *CandidateFile) error {
	if file.Used && file.TempFilename != "" {
		return nil
	}

	basename := file.Basename(state)
	for i := 0; i < len(basename); i++ {
		if basename[i]&0x80 != 0 {
			return newError(Malformed, "filename %q contains high-bit byte", basename)
		}
	}

	srcPath := state.Path(file.Ofs)
	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return newError(Missing, "referenced file %q not found in incoming directory", basename)
		}
		return wrapError(IoError, err)
	}

	tempPath := filepath.Join(candidate.tempDirFor(state), basename)
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return wrapError(IoError, err)
	}

	computed, err := copyWithChecksums(srcPath, tempPath)
	if err != nil {
		return wrapError(IoError, err)
	}

	if len(file.Checksums.Digests) == 0 {
		file.Checksums = computed
	} else {
		merged, err := file.Checksums.Merge(computed)
		if err != nil {
			os.Remove(tempPath)
			return wrapError(ChecksumMismatch, err)
		}
		file.Checksums = merged
	}

	file.TempFilename = tempPath
	file.Used = true
	return nil
}

// tempDirFor returns the directory staged copies for this candidate live
// under. All candidates in one State share the rule's TempDir; filenames
// are unique because a rule never processes two manifests with overlapping
// basenames concurrently (§5: single-threaded and sequential).
func (c *Candidate) tempDirFor(state *State) string {
	return state.Rule.TempDir
}

func copyWithChecksums(src, dst string) (deb.Checksums, error) {
	in, err := os.Open(src)
	if err != nil {
		return deb.Checksums{}, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_EXCL, 0644)
	if err != nil {
		return deb.Checksums{}, err
	}
	defer out.Close()

	tee := io.TeeReader(in, out)
	sums, err := deb.ComputeChecksums(tee)
	if err != nil {
		return deb.Checksums{}, err
	}
	return sums, out.Sync()
}

// ReleaseFile removes a CandidateFile's temp copy, if any. Called on every
// exit path (success, partial failure, reject) per §3's lifetime rule, and
// individually as each CandidateFile is "destroyed" per §4.9.
func ReleaseFile(file *CandidateFile) error {
	if file.TempFilename == "" {
		return nil
	}
	path := file.TempFilename
	file.TempFilename = ""
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ReleaseAll unlinks every staged temp file belonging to candidate,
// tolerating files that were never staged.
func ReleaseAll(candidate *Candidate) {
	for i := range candidate.Files {
		_ = ReleaseFile(&candidate.Files[i])
	}
}
