package incoming

import (
	"github.com/archivekeep/incoming-queue/deb"
)

// FileType classifies a CandidateFile by what the preparer must do with it.
type FileType int

const (
	TypeManifest FileType = iota
	TypeBinaryDeb
	TypeBinaryUdeb
	TypeSourceDsc
	TypeByhand
	TypeUnknown
)

// byhandSuffixes lists filename endings reprepro's incoming.c recognizes as
// "for manual handling" rather than installable packages — a feature the
// distilled spec dropped but original_source/incoming.c implements via
// suffix matching against the changes' declared section.
var byhandSuffixes = []string{".buildinfo", ".tar.gz.asc"}

// ClassifyFile derives a FileType from a filename and its manifest-declared
// section, per §4.3/§4.7 and the byhand-recognition supplement.
func ClassifyFile(basename, declaredSection string) FileType {
	switch {
	case declaredSection == "byhand":
		return TypeByhand
	case hasAnySuffix(basename, ".deb"):
		return TypeBinaryDeb
	case hasAnySuffix(basename, ".udeb"):
		return TypeBinaryUdeb
	case hasAnySuffix(basename, ".dsc"):
		return TypeSourceDsc
	case hasAnySuffix(basename, byhandSuffixes...):
		return TypeByhand
	default:
		return TypeUnknown
	}
}

func hasAnySuffix(name string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if len(name) > len(suf) && name[len(name)-len(suf):] == suf {
			return true
		}
	}
	return false
}

// CandidateFile is one row of the Candidate's flat file arena: back-index
// into State.Files, declared metadata from the manifest, merged checksums,
// and (once staged) the temp path and parsed package headers. Per §9,
// CandidatePackage refers to these by index rather than by pointer.
type CandidateFile struct {
	Ofs int
	Type FileType

	DeclaredSection      string
	DeclaredPriority     string
	DeclaredArchitecture string
	DeclaredName         string

	Checksums deb.Checksums

	Used         bool
	TempFilename string

	Deb *deb.Package
	Dsc *deb.Dsc
}

// Basename returns the incoming-directory filename this entry refers to.
func (f *CandidateFile) Basename(state *State) string { return state.Files[f.Ofs] }

// CandidatePackage is one (file, distribution) installable unit: the
// master CandidateFile plus the ordered filekeys/backing-files it installs,
// per §3's invariant that filekeys.len == files.len.
type CandidatePackage struct {
	MasterIdx int // index into Candidate.Files

	Component string
	Filekeys  []string
	// Files holds, for each filekey, the index into Candidate.Files backing
	// it, or -1 if the pool already holds an identical copy.
	Files []int

	Name    string
	Version string
	Control string

	// Directory is the destination directory for source packages; empty
	// for binaries.
	Directory string

	Skip bool
}

// PerDistribution is one destination distribution's slice of a Candidate:
// the resolved packages plus whether the dry run found nothing to do.
type PerDistribution struct {
	Into     string
	Skip     bool
	Packages []CandidatePackage
}

// Candidate is the in-memory representation of one manifest under
// processing: the manifest's own file plus every referenced file, in a flat
// arena, plus the per-distribution install plans derived from it.
type Candidate struct {
	Ofs int // index into State.Files of the manifest itself

	Control map[string]string

	// rawBody is the verified cleartext of the manifest, set by Read and
	// consumed by Parse.
	rawBody []byte

	Keys    []string
	AllKeys []string
	Broken  bool

	Source         string
	SourceVersion  string
	ChangesVersion string
	IsBinNMU       bool

	Distributions []string
	Architectures []string
	Binaries      []string

	Files           []CandidateFile
	PerDistribution []PerDistribution

	// filekeyOwner maps a filekey to the index (into Files) of the
	// CandidatePackage.MasterIdx that first claimed it, detecting the
	// "same filekey from two packages" case the spec treats as fatal
	// (§9 Open Question 2 / §8 invariant 1).
	filekeyOwner map[string]int

	// targets holds the distribution refs permission evaluation resolved
	// this candidate against, set by SetTargets before BuildPackages runs.
	targets []string
}

// NewCandidate creates an empty Candidate for the manifest at offset ofs,
// seeding Files[0] as the manifest's own CandidateFile (always first, per
// §3).
func NewCandidate(ofs int) *Candidate {
	return &Candidate{
		Ofs:          ofs,
		Files:        []CandidateFile{{Ofs: ofs, Type: TypeManifest}},
		filekeyOwner: make(map[string]int),
	}
}

// AddFile appends a new CandidateFile to the arena and returns its index.
func (c *Candidate) AddFile(f CandidateFile) int {
	c.Files = append(c.Files, f)
	return len(c.Files) - 1
}

// ClaimFilekey records that filekey is now owned by the package rooted at
// masterIdx. It returns a Conflict error if the filekey was already claimed
// by a different package within this manifest.
func (c *Candidate) ClaimFilekey(filekey string, masterIdx int) error {
	if owner, ok := c.filekeyOwner[filekey]; ok && owner != masterIdx {
		return newError(Conflict, "filekey %s claimed by two packages in one manifest", filekey)
	}
	c.filekeyOwner[filekey] = masterIdx
	return nil
}
