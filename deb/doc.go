// Package deb provides a pure Go library for manipulating Debian packages and APT repositories.
//
// # Design Philosophy
//
// The package is designed to operate primarily in-memory, treating Debian packages and
// repositories as structured objects that can be read from, modified, and written to
// streams (io.Reader/io.Writer). This approach eliminates the need for temporary
// files or external system dependencies like 'dpkg' or 'apt-ftparchive', making it
// ideal for serverless environments, CI/CD pipelines, and cross-platform tools.
//
// # Features
//
// Package Management:
//   - Read and parse .deb files from any io.Reader.
//   - Create new packages from scratch or patch existing ones.
//   - Modify control metadata, maintainer scripts, and payload files.
//   - Generate valid .deb archives deterministically.
//
// Upload metadata:
//   - Multi-algorithm Checksums with a consistency-checked merge.
//   - Parsing of .dsc source descriptions (ParseDsc) and of RFC822-style
//     stanzas (ParseStanza).
//   - Rendering of a binary package's Packages-index stanza
//     (RenderControlStanza).
//
// Repository index generation and signing are not part of this package.
//
// Versioning:
//   - Implements Debian version comparison and validation logic.
//   - BumpVersion bumps the Debian revision only; the upstream part is left
//     unchanged.
package deb
