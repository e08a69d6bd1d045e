package archive

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"fmt"
	"sort"
)

// GeneratePackages renders the given index's current entries into the
// classic "Packages" stanza format, grounded on the teacher's
// PackageIndex.ComputeIndices (apt/apt.go). Output-repository signing is a
// named non-goal, so this stops at the plaintext/gzip pair; no Release
// signing or key management is implemented here.
func GeneratePackages(ix *Index) []byte {
	entries := ix.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.Control)
		if !bytes.HasSuffix([]byte(e.Control), []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// GeneratePackagesGz gzip-compresses the output of GeneratePackages.
func GeneratePackagesGz(ix *Index) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(GeneratePackages(ix)); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReleaseEntry is one hashed-file line of a Release file.
type ReleaseEntry struct {
	Path string
	Size int
	SHA256 string
}

// GenerateRelease renders a minimal Release file covering every component
// index currently open for a distribution, hashing each rendered Packages
// file with SHA-256.
func GenerateRelease(store *Store, distribution string, components []string) ([]byte, []ReleaseEntry, error) {
	var entries []ReleaseEntry
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Codename: %s\n", distribution)
	fmt.Fprintf(&buf, "Components: %s\n", joinSorted(components))
	buf.WriteString("SHA256:\n")

	for _, component := range components {
		for _, pkgType := range []PkgType{PkgBinary, PkgSource, PkgUdeb} {
			ix, ok := store.Index(distribution, component, pkgType)
			if !ok {
				continue
			}
			content := GeneratePackages(ix)
			sum := sha256.Sum256(content)
			path := releasePath(component, pkgType)
			fmt.Fprintf(&buf, " %x %d %s\n", sum, len(content), path)
			entries = append(entries, ReleaseEntry{Path: path, Size: len(content), SHA256: fmt.Sprintf("%x", sum)})
		}
	}

	return buf.Bytes(), entries, nil
}

func releasePath(component string, pkgType PkgType) string {
	switch pkgType {
	case PkgSource:
		return component + "/source/Sources"
	case PkgUdeb:
		return component + "/debian-installer/binary/Packages"
	default:
		return component + "/binary/Packages"
	}
}

func joinSorted(items []string) string {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	var buf bytes.Buffer
	for i, s := range sorted {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(s)
	}
	return buf.String()
}
