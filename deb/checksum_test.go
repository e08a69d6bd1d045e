package deb

import (
	"strings"
	"testing"
)

func TestComputeChecksums(t *testing.T) {
	c, err := ComputeChecksums(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("ComputeChecksums failed: %v", err)
	}
	if c.Size != 11 {
		t.Errorf("expected size 11, got %d", c.Size)
	}
	for _, alg := range Algorithms {
		if c.Digests[alg] == "" {
			t.Errorf("missing digest for %s", alg)
		}
	}
	if c.Digests[MD5] != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("unexpected md5: %s", c.Digests[MD5])
	}
}

func TestChecksumsMerge(t *testing.T) {
	a := Checksums{Size: 10, Digests: map[Algorithm]string{MD5: "aaa"}}
	b := Checksums{Size: 10, Digests: map[Algorithm]string{SHA256: "bbb"}}

	merged, err := a.Merge(b)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.Digests[MD5] != "aaa" || merged.Digests[SHA256] != "bbb" {
		t.Errorf("merge lost a digest: %#v", merged.Digests)
	}

	c := Checksums{Size: 10, Digests: map[Algorithm]string{MD5: "aaa"}}
	d := Checksums{Size: 10, Digests: map[Algorithm]string{MD5: "different"}}
	if _, err := c.Merge(d); err == nil {
		t.Error("expected error merging disagreeing digests")
	}

	e := Checksums{Size: 10}
	f := Checksums{Size: 20}
	if _, err := e.Merge(f); err == nil {
		t.Error("expected error merging disagreeing sizes")
	}
}

func TestChecksumsMergeAssociative(t *testing.T) {
	a := Checksums{Size: 5, Digests: map[Algorithm]string{MD5: "a"}}
	b := Checksums{Size: 5, Digests: map[Algorithm]string{SHA1: "b"}}
	c := Checksums{Size: 5, Digests: map[Algorithm]string{SHA256: "c"}}

	ab, err := a.Merge(b)
	if err != nil {
		t.Fatalf("a.Merge(b) failed: %v", err)
	}
	abc, err := ab.Merge(c)
	if err != nil {
		t.Fatalf("ab.Merge(c) failed: %v", err)
	}

	bc, err := b.Merge(c)
	if err != nil {
		t.Fatalf("b.Merge(c) failed: %v", err)
	}
	abc2, err := a.Merge(bc)
	if err != nil {
		t.Fatalf("a.Merge(bc) failed: %v", err)
	}

	if len(abc.Digests) != len(abc2.Digests) {
		t.Fatalf("associativity broken: %#v vs %#v", abc.Digests, abc2.Digests)
	}
	for alg, digest := range abc.Digests {
		if abc2.Digests[alg] != digest {
			t.Errorf("associativity broken for %s: %s != %s", alg, digest, abc2.Digests[alg])
		}
	}
}

func TestChecksumsAgrees(t *testing.T) {
	pool := Checksums{Size: 10, Digests: map[Algorithm]string{MD5: "aaa", SHA256: "xxx"}}
	local := Checksums{Size: 10, Digests: map[Algorithm]string{MD5: "aaa"}}
	if !pool.Agrees(local) {
		t.Error("expected agreement on shared algorithm")
	}

	mismatched := Checksums{Size: 10, Digests: map[Algorithm]string{MD5: "bbb"}}
	if pool.Agrees(mismatched) {
		t.Error("expected disagreement")
	}
}
