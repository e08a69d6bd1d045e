package incoming

import "testing"

func TestClassifyFile(t *testing.T) {
	cases := []struct {
		name, section string
		want          FileType
	}{
		{"foo_1.0_amd64.deb", "net", TypeBinaryDeb},
		{"foo-udeb_1.0_amd64.udeb", "debian-installer", TypeBinaryUdeb},
		{"foo_1.0.dsc", "net", TypeSourceDsc},
		{"anything.tar.gz", "byhand", TypeByhand},
		{"foo_1.0_amd64.buildinfo", "net", TypeByhand},
		{"foo_1.0.orig.tar.gz", "net", TypeUnknown},
	}
	for _, c := range cases {
		if got := ClassifyFile(c.name, c.section); got != c.want {
			t.Errorf("ClassifyFile(%q, %q) = %v, want %v", c.name, c.section, got, c.want)
		}
	}
}

func TestNewCandidateSeedsManifestFile(t *testing.T) {
	c := NewCandidate(3)
	if len(c.Files) != 1 {
		t.Fatalf("expected one seeded file, got %d", len(c.Files))
	}
	if c.Files[0].Type != TypeManifest || c.Files[0].Ofs != 3 {
		t.Errorf("unexpected seed file: %+v", c.Files[0])
	}
}

func TestAddFileReturnsIndex(t *testing.T) {
	c := NewCandidate(0)
	idx := c.AddFile(CandidateFile{DeclaredName: "foo_1.0_amd64.deb", Type: TypeBinaryDeb})
	if idx != 1 {
		t.Fatalf("expected index 1, got %d", idx)
	}
	if c.Files[idx].DeclaredName != "foo_1.0_amd64.deb" {
		t.Error("file not stored at returned index")
	}
}

func TestClaimFilekeyDetectsConflict(t *testing.T) {
	c := NewCandidate(0)
	if err := c.ClaimFilekey("main/f/foo/foo_1.0_amd64.deb", 1); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if err := c.ClaimFilekey("main/f/foo/foo_1.0_amd64.deb", 1); err != nil {
		t.Fatalf("re-claim by same package should be a no-op: %v", err)
	}
	err := c.ClaimFilekey("main/f/foo/foo_1.0_amd64.deb", 2)
	if err == nil {
		t.Fatal("expected Conflict for claim by a different package")
	}
	if kind, ok := KindOf(err); !ok || kind != Conflict {
		t.Errorf("Kind = %v, want Conflict", kind)
	}
}
