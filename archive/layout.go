package archive

import "strings"

// SourcePrefix returns the pool subdirectory letter for a source package
// name: "lib" + the fourth character for names starting with "lib" (so
// libfoo lands under "libf", not "l"), otherwise the first character.
// Standard Debian pool layout, restated from the deleted
// deb/repository.go's ArchiveInfo-driven path construction.
func SourcePrefix(sourceName string) string {
	if strings.HasPrefix(sourceName, "lib") && len(sourceName) > 3 {
		return sourceName[:4]
	}
	if sourceName == "" {
		return "_"
	}
	return sourceName[:1]
}

// BinaryFilekey returns the pool filekey for a binary package file, e.g.
// "main/f/foo/foo_1.0-1_amd64.deb".
func BinaryFilekey(component, sourceName, pkgName, version, arch, ext string) string {
	return component + "/" + SourcePrefix(sourceName) + "/" + sourceName + "/" + pkgName + "_" + version + "_" + arch + "." + ext
}

// SourceDir returns the pool directory a source package's files live
// under, e.g. "main/f/foo/".
func SourceDir(component, sourceName string) string {
	return component + "/" + SourcePrefix(sourceName) + "/" + sourceName + "/"
}

// SourceFilekey returns the pool filekey for one file belonging to a source
// package.
func SourceFilekey(component, sourceName, filename string) string {
	return SourceDir(component, sourceName) + filename
}
