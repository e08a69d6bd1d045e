package deb

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Algorithm names a supported digest algorithm. The set is kept as a fixed
// enumeration (rather than an open string) so digest slots can be reasoned
// about exhaustively when merging, per the monotone-merge invariant.
type Algorithm string

const (
	MD5    Algorithm = "MD5"
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

// Algorithms lists every algorithm this package knows how to compute, in a
// stable order.
var Algorithms = []Algorithm{MD5, SHA1, SHA256, SHA512}

// Checksums is a size plus a set of digests keyed by algorithm. Manifests,
// source descriptions and the pool all exchange file identity this way:
// a file is the same file if every digest they both name agrees.
type Checksums struct {
	Size    int64
	Digests map[Algorithm]string
}

// NewChecksums returns an empty Checksums value ready for Merge.
func NewChecksums() Checksums {
	return Checksums{Digests: make(map[Algorithm]string)}
}

// ComputeChecksums reads r to EOF, computing every supported digest and the
// byte count in a single pass.
func ComputeChecksums(r io.Reader) (Checksums, error) {
	hashes := map[Algorithm]hash.Hash{
		MD5:    md5.New(),
		SHA1:   sha1.New(),
		SHA256: sha256.New(),
		SHA512: sha512.New(),
	}
	writers := make([]io.Writer, 0, len(hashes)+1)
	for _, h := range hashes {
		writers = append(writers, h)
	}
	mw := io.MultiWriter(writers...)

	n, err := io.Copy(mw, r)
	if err != nil {
		return Checksums{}, err
	}

	c := NewChecksums()
	c.Size = n
	for alg, h := range hashes {
		c.Digests[alg] = hex.EncodeToString(h.Sum(nil))
	}
	return c, nil
}

// Merge combines c with other. The size must agree if both are non-zero.
// For each algorithm present in both, the digests must agree; otherwise the
// merge is fatal (a genuine content disagreement, never silently resolved).
// Algorithms present in only one side are carried into the result: a merge
// only ever adds digest coverage, never narrows it.
func (c Checksums) Merge(other Checksums) (Checksums, error) {
	if c.Size != 0 && other.Size != 0 && c.Size != other.Size {
		return Checksums{}, fmt.Errorf("checksum size mismatch: %d != %d", c.Size, other.Size)
	}

	result := NewChecksums()
	result.Size = c.Size
	if result.Size == 0 {
		result.Size = other.Size
	}
	for alg, digest := range c.Digests {
		result.Digests[alg] = digest
	}
	for alg, digest := range other.Digests {
		if existing, ok := result.Digests[alg]; ok {
			if existing != digest {
				return Checksums{}, fmt.Errorf("checksum mismatch for %s: %s != %s", alg, existing, digest)
			}
			continue
		}
		result.Digests[alg] = digest
	}
	return result, nil
}

// Agrees reports whether c and other agree on size (when both are non-zero)
// and on every algorithm both know. Used by the pool's can_add check: a locally staged file
// is "the same" as a pool entry if they agree on every algorithm both know.
func (c Checksums) Agrees(other Checksums) bool {
	if c.Size != 0 && other.Size != 0 && c.Size != other.Size {
		return false
	}
	for alg, digest := range other.Digests {
		if existing, ok := c.Digests[alg]; ok && existing != digest {
			return false
		}
	}
	return true
}
