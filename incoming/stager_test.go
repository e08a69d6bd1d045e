package incoming

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/archivekeep/incoming-queue/deb"
)

func sumsForTest(t *testing.T, content string) deb.Checksums {
	t.Helper()
	sums, err := deb.ComputeChecksums(strings.NewReader(content))
	if err != nil {
		t.Fatalf("ComputeChecksums failed: %v", err)
	}
	return sums
}

func TestStageCopiesAndComputesChecksums(t *testing.T) {
	rule := testRule(t)
	writeIncoming(t, rule, "foo_1.0_amd64.deb", "package payload")

	state, err := Open(rule)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c := NewCandidate(-1)
	idx := state.IndexOf("foo_1.0_amd64.deb")
	file := CandidateFile{Ofs: idx, DeclaredName: "foo_1.0_amd64.deb", Type: TypeBinaryDeb}

	if err := Stage(state, c, &file); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if !file.Used || file.TempFilename == "" {
		t.Fatal("expected file to be marked used with a temp path")
	}
	if _, err := os.Stat(file.TempFilename); err != nil {
		t.Fatalf("expected temp copy to exist: %v", err)
	}
	if len(file.Checksums.Digests) == 0 {
		t.Error("expected checksums to be computed")
	}

	tempBefore := file.TempFilename
	if err := Stage(state, c, &file); err != nil {
		t.Fatalf("re-Stage should be a no-op, got error: %v", err)
	}
	if file.TempFilename != tempBefore {
		t.Error("expected Stage to be idempotent once staged")
	}
}

func TestStageMissingFile(t *testing.T) {
	rule := testRule(t)
	state, err := Open(rule)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c := NewCandidate(-1)
	file := CandidateFile{Ofs: 0, DeclaredName: "ghost.deb"}
	state.Files = []string{"ghost.deb"}

	err = Stage(state, c, &file)
	if kind, ok := KindOf(err); !ok || kind != Missing {
		t.Fatalf("Kind = %v, want Missing", kind)
	}
}

func TestStageRejectsChecksumMismatch(t *testing.T) {
	rule := testRule(t)
	writeIncoming(t, rule, "foo_1.0_amd64.deb", "real content")
	state, err := Open(rule)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c := NewCandidate(-1)
	idx := state.IndexOf("foo_1.0_amd64.deb")
	file := CandidateFile{
		Ofs:          idx,
		DeclaredName: "foo_1.0_amd64.deb",
		Checksums:    sumsForTest(t, "different declared content, wrong size"),
	}

	err = Stage(state, c, &file)
	if kind, ok := KindOf(err); !ok || kind != ChecksumMismatch {
		t.Fatalf("Kind = %v, want ChecksumMismatch", kind)
	}
	if _, statErr := os.Stat(filepath.Join(rule.TempDir, "foo_1.0_amd64.deb")); !os.IsNotExist(statErr) {
		t.Error("expected temp copy to be cleaned up after a checksum mismatch")
	}
}

func TestReleaseFileAndReleaseAll(t *testing.T) {
	rule := testRule(t)
	writeIncoming(t, rule, "foo_1.0_amd64.deb", "payload")
	state, err := Open(rule)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c := NewCandidate(-1)
	idx := state.IndexOf("foo_1.0_amd64.deb")
	c.Files[0] = CandidateFile{Ofs: idx, DeclaredName: "foo_1.0_amd64.deb"}

	if err := Stage(state, c, &c.Files[0]); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	temp := c.Files[0].TempFilename

	ReleaseAll(c)
	if c.Files[0].TempFilename != "" {
		t.Error("expected TempFilename cleared after ReleaseAll")
	}
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Error("expected temp file removed after ReleaseAll")
	}
}
