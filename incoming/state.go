package incoming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/archivekeep/incoming-queue/config"
)

// manifestSuffix is the filename suffix the scanner recognizes as a
// manifest worth running the per-manifest pipeline over.
const manifestSuffix = ".changes"

// State is the per-invocation scan of one IncomingRule's directory: an
// ordered list of basenames plus two parallel dispositions (processed and
// delete), kept as two []bool slices indexed by file offset.
type State struct {
	Rule  *config.Rule
	Files []string

	processed []bool
	delete    []bool
}

// Open implements the incoming scanner's open(rule) → IncomingState: it
// ensures TempDir exists, enumerates IncomingDir into Files (skipping
// dot-files and entries containing a path separator), and allocates the
// zeroed disposition arrays.
func Open(rule *config.Rule) (*State, error) {
	if err := os.MkdirAll(rule.TempDir, 0755); err != nil {
		return nil, wrapError(IoError, fmt.Errorf("creating tempdir %s: %w", rule.TempDir, err))
	}

	entries, err := os.ReadDir(rule.IncomingDir)
	if err != nil {
		return nil, wrapError(IoError, fmt.Errorf("reading incoming dir %s: %w", rule.IncomingDir, err))
	}

	s := &State{Rule: rule}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
			continue
		}
		s.Files = append(s.Files, name)
	}
	s.processed = make([]bool, len(s.Files))
	s.delete = make([]bool, len(s.Files))
	return s, nil
}

// IsManifest reports whether Files[i] ends in the recognized manifest
// suffix.
func (s *State) IsManifest(i int) bool {
	return strings.HasSuffix(s.Files[i], manifestSuffix)
}

// MarkProcessed records that Files[i] has been fed through the per-manifest
// pipeline (whatever the outcome).
func (s *State) MarkProcessed(i int) { s.processed[i] = true }

// MarkDelete queues Files[i] for deletion by the cleanup controller.
func (s *State) MarkDelete(i int) { s.delete[i] = true }

// Processed reports whether Files[i] has been fed through the per-manifest
// pipeline by some candidate in this run.
func (s *State) Processed(i int) bool { return s.processed[i] }

// IndexOf returns the offset of basename within Files, or -1 if it is not
// present — the "basename must match an entry of state.files" lookup the
// manifest parser needs for every file line.
func (s *State) IndexOf(basename string) int {
	for i, f := range s.Files {
		if f == basename {
			return i
		}
	}
	return -1
}

// Path returns the absolute path of Files[i] inside the incoming directory.
func (s *State) Path(i int) string {
	return filepath.Join(s.Rule.IncomingDir, s.Files[i])
}

// Cleanup implements the cleanup controller's final pass: unlinks every
// Files[i] with delete[i] set. It returns the first error encountered but
// continues attempting the rest, matching §8 invariant 6's "unless
// deletefile itself failed" carve-out.
func (s *State) Cleanup() error {
	var firstErr error
	for i, del := range s.delete {
		if !del {
			continue
		}
		if err := os.Remove(s.Path(i)); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
