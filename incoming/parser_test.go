package incoming

import (
	"fmt"
	"strings"
	"testing"

	"github.com/archivekeep/incoming-queue/deb"
)

func md5Of(t *testing.T, content string) string {
	t.Helper()
	sums, err := deb.ComputeChecksums(strings.NewReader(content))
	if err != nil {
		t.Fatalf("ComputeChecksums failed: %v", err)
	}
	return sums.Digests[deb.MD5]
}

func TestParsePrimaryFilesAndArchitecture(t *testing.T) {
	rule := testRule(t)
	debContent := "fake deb bytes"
	writeIncoming(t, rule, "foo_1.0-1_amd64.deb", debContent)
	writeIncoming(t, rule, "foo_1.0-1_amd64.changes", "placeholder")

	state, err := Open(rule)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	changesIdx := state.IndexOf("foo_1.0-1_amd64.changes")
	md5 := md5Of(t, debContent)
	size := len(debContent)

	body := fmt.Sprintf(
		"Source: foo\nBinary: foo\nArchitecture: amd64\nVersion: 1.0-1\nDistribution: unstable\nFiles:\n %s %d net optional foo_1.0-1_amd64.deb\n",
		md5, size,
	)

	candidate := NewCandidate(changesIdx)
	candidate.rawBody = []byte(body)

	if err := Parse(state, candidate); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if candidate.Source != "foo" || candidate.ChangesVersion != "1.0-1" {
		t.Errorf("unexpected identity fields: %+v", candidate)
	}
	if len(candidate.Files) != 2 {
		t.Fatalf("expected manifest + 1 file, got %d", len(candidate.Files))
	}
	f := candidate.Files[1]
	if f.Type != TypeBinaryDeb || f.DeclaredArchitecture != "amd64" {
		t.Errorf("unexpected parsed file: %+v", f)
	}
	if f.Checksums.Digests[deb.MD5] != md5 {
		t.Errorf("expected MD5 digest to be recorded")
	}
}

func TestParseRejectsMissingMandatoryFields(t *testing.T) {
	rule := testRule(t)
	writeIncoming(t, rule, "foo_1.0-1_amd64.changes", "placeholder")
	state, err := Open(rule)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	idx := state.IndexOf("foo_1.0-1_amd64.changes")

	candidate := NewCandidate(idx)
	candidate.rawBody = []byte("Source: foo\n")

	err = Parse(state, candidate)
	if kind, ok := KindOf(err); !ok || kind != Malformed {
		t.Fatalf("Kind = %v, want Malformed", kind)
	}
}

func TestParseRejectsArchitectureNotInManifestSet(t *testing.T) {
	rule := testRule(t)
	debContent := "fake deb bytes"
	writeIncoming(t, rule, "foo_1.0-1_i386.deb", debContent)
	writeIncoming(t, rule, "foo_1.0-1_amd64.changes", "placeholder")
	state, err := Open(rule)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	idx := state.IndexOf("foo_1.0-1_amd64.changes")

	md5 := md5Of(t, debContent)
	body := fmt.Sprintf(
		"Source: foo\nBinary: foo\nArchitecture: amd64\nVersion: 1.0-1\nDistribution: unstable\nFiles:\n %s %d net optional foo_1.0-1_i386.deb\n",
		md5, len(debContent),
	)
	candidate := NewCandidate(idx)
	candidate.rawBody = []byte(body)

	err = Parse(state, candidate)
	if kind, ok := KindOf(err); !ok || kind != Malformed {
		t.Fatalf("Kind = %v, want Malformed (architecture not declared)", kind)
	}
}

func TestArchFromFilename(t *testing.T) {
	cases := map[string]string{
		"foo_1.0-1_amd64.deb":   "amd64",
		"foo-bar_2.3_i386.udeb": "i386",
		"nonsense":              "",
		"too_few_parts_but.deb": "but",
	}
	for name, want := range cases {
		if got := archFromFilename(name); got != want {
			t.Errorf("archFromFilename(%q) = %q, want %q", name, got, want)
		}
	}
}
