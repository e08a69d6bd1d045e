package incoming

import (
	"fmt"
	"strings"

	"github.com/archivekeep/incoming-queue/deb"
)

// Parse implements §4.3's manifest parser: extracts the mandatory fields,
// the primary Files (MD5+size) list, and reconciles any secondary digest
// lists against it. It must run after Read has populated candidate.rawBody.
func Parse(state *State, candidate *Candidate) error {
	fields := deb.ParseStanza(string(candidate.rawBody))
	candidate.Control = fields

	source, sourceVersion, err := parseSourceField(fields[string(deb.FieldSource)])
	if err != nil {
		return err
	}
	binary := fields[string(deb.FieldBinary)]
	architecture := fields[string(deb.FieldArchitecture)]
	version := fields[string(deb.FieldVersion)]
	distribution := fields[string(deb.FieldDistribution)]

	if source == "" || binary == "" || architecture == "" || version == "" || distribution == "" {
		return newError(Malformed, "manifest missing one of Source, Binary, Architecture, Version, Distribution")
	}

	candidate.Source = source
	candidate.ChangesVersion = version
	if sourceVersion == "" {
		sourceVersion = version
	}
	candidate.SourceVersion = sourceVersion
	candidate.IsBinNMU = candidate.SourceVersion != candidate.ChangesVersion

	if err := deb.ValidatePackageName(candidate.Source); err != nil {
		return newError(Malformed, "source name: %w", err)
	}
	if err := deb.ValidateVersion(candidate.SourceVersion); err != nil {
		return newError(Malformed, "source version: %w", err)
	}
	if err := deb.ValidateVersion(candidate.ChangesVersion); err != nil {
		return newError(Malformed, "changes version: %w", err)
	}

	candidate.Binaries = splitFields(binary)
	candidate.Architectures = splitFields(architecture)
	candidate.Distributions = splitFields(distribution)

	if err := parsePrimaryFiles(state, candidate, fields); err != nil {
		return err
	}
	if err := parseSecondaryDigests(candidate, fields, deb.SHA1, string(deb.FieldChecksumsSha1)); err != nil {
		return err
	}
	if err := parseSecondaryDigests(candidate, fields, deb.SHA256, string(deb.FieldChecksumsSha256)); err != nil {
		return err
	}
	if err := parseSecondaryDigests(candidate, fields, deb.SHA512, string(deb.FieldChecksumsSha512)); err != nil {
		return err
	}

	return checkArchitectureConsistency(candidate)
}

// parseSourceField splits the manifest's Source field into a name and an
// optional "(version)" suffix.
func parseSourceField(raw string) (name, version string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", nil
	}
	if i := strings.IndexByte(raw, '('); i >= 0 && strings.HasSuffix(raw, ")") {
		name = strings.TrimSpace(raw[:i])
		version = strings.TrimSpace(raw[i+1 : len(raw)-1])
		return name, version, nil
	}
	return raw, "", nil
}

func splitFields(s string) []string {
	return strings.Fields(s)
}

// parsePrimaryFiles parses the mandatory Files (MD5+size) list: each line
// is "md5 size section priority name". The basename must already appear in
// state.Files.
func parsePrimaryFiles(state *State, candidate *Candidate, fields map[string]string) error {
	body, ok := fields[string(deb.FieldFiles)]
	if !ok {
		return newError(Malformed, "manifest missing Files field")
	}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) < 5 {
			return newError(Malformed, "malformed Files line %q", line)
		}
		md5, sizeTok, section, priority, name := tokens[0], tokens[1], tokens[2], tokens[3], tokens[4]
		var size int64
		if _, err := fmt.Sscanf(sizeTok, "%d", &size); err != nil {
			return newError(Malformed, "malformed size in Files line %q", line)
		}

		idx := state.IndexOf(name)
		if idx < 0 {
			return newError(Missing, "Files entry %q has no matching file in incoming directory", name)
		}

		fileType := ClassifyFile(name, section)
		var arch string
		if fileType == TypeBinaryDeb || fileType == TypeBinaryUdeb {
			arch = archFromFilename(name)
		}

		candidate.AddFile(CandidateFile{
			Ofs:                  idx,
			Type:                 fileType,
			DeclaredSection:      section,
			DeclaredPriority:     priority,
			DeclaredArchitecture: arch,
			DeclaredName:         name,
			Checksums:            deb.Checksums{Size: size, Digests: map[deb.Algorithm]string{deb.MD5: md5}},
		})
	}
	return nil
}

// parseSecondaryDigests reconciles one optional secondary digest list
// (SHA-1, SHA-256, SHA-512) against files already known from the primary
// list. A size disagreement is fatal; a basename present only here is
// skipped without being logged, and is not fatal.
func parseSecondaryDigests(candidate *Candidate, fields map[string]string, alg deb.Algorithm, fieldName string) error {
	body, ok := fields[fieldName]
	if !ok {
		return nil
	}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) < 3 {
			return newError(Malformed, "malformed %s line %q", fieldName, line)
		}
		digest, sizeTok, name := tokens[0], tokens[1], tokens[len(tokens)-1]
		var size int64
		if _, err := fmt.Sscanf(sizeTok, "%d", &size); err != nil {
			return newError(Malformed, "malformed size in %s line %q", fieldName, line)
		}

		file := candidate.fileByName(name)
		if file == nil {
			// Basename absent from the primary Files list: skipped, not fatal.
			continue
		}
		merged, err := file.Checksums.Merge(deb.Checksums{Size: size, Digests: map[deb.Algorithm]string{alg: digest}})
		if err != nil {
			return wrapError(ChecksumMismatch, fmt.Errorf("%s for %s: %w", fieldName, name, err))
		}
		file.Checksums = merged
	}
	return nil
}

// fileByName returns the CandidateFile whose DeclaredName matches name, or
// nil.
func (c *Candidate) fileByName(name string) *CandidateFile {
	for i := range c.Files {
		if c.Files[i].DeclaredName == name {
			return &c.Files[i]
		}
	}
	return nil
}

// archFromFilename extracts the architecture component of a
// "name_version_arch.deb"-style filename, the convention reprepro itself
// relies on before the package has been staged and its headers read.
func archFromFilename(name string) string {
	base := name
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-1]
}

// checkArchitectureConsistency implements §4.4: every binary-deb/
// binary-udeb file's declared architecture must appear in the manifest's
// Architecture set.
func checkArchitectureConsistency(candidate *Candidate) error {
	if len(candidate.Architectures) == 0 {
		return newError(Malformed, "manifest declares no architectures")
	}
	archSet := make(map[string]bool, len(candidate.Architectures))
	for _, a := range candidate.Architectures {
		archSet[a] = true
	}
	for i := range candidate.Files {
		f := &candidate.Files[i]
		if f.Type != TypeBinaryDeb && f.Type != TypeBinaryUdeb {
			continue
		}
		if !archSet[f.DeclaredArchitecture] {
			return newError(Malformed, "file %s declares architecture %q not present in manifest Architecture field", f.DeclaredName, f.DeclaredArchitecture)
		}
	}
	return nil
}
