package incoming

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/archivekeep/incoming-queue/config"
)

func testRule(t *testing.T) *config.Rule {
	t.Helper()
	dir := t.TempDir()
	incoming := filepath.Join(dir, "incoming")
	temp := filepath.Join(dir, "temp")
	if err := os.MkdirAll(incoming, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	return &config.Rule{
		Name:        "test",
		IncomingDir: incoming,
		TempDir:     temp,
		Default:     "stable",
	}
}

func TestOpenSkipsDotfilesAndScansEntries(t *testing.T) {
	rule := testRule(t)
	writeIncoming(t, rule, "foo_1.0-1_amd64.changes", "stuff")
	writeIncoming(t, rule, ".lock", "junk")

	state, err := Open(rule)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(state.Files) != 1 || state.Files[0] != "foo_1.0-1_amd64.changes" {
		t.Fatalf("Files = %v, want just the manifest", state.Files)
	}
	if _, err := os.Stat(rule.TempDir); err != nil {
		t.Fatalf("expected TempDir to be created: %v", err)
	}
}

func TestIsManifestChecksSuffix(t *testing.T) {
	rule := testRule(t)
	writeIncoming(t, rule, "foo_1.0-1_amd64.changes", "x")
	writeIncoming(t, rule, "foo_1.0-1_amd64.deb", "x")

	state, err := Open(rule)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i, name := range state.Files {
		want := name == "foo_1.0-1_amd64.changes"
		if state.IsManifest(i) != want {
			t.Errorf("IsManifest(%d) for %s = %v, want %v", i, name, state.IsManifest(i), want)
		}
	}
}

func TestIndexOfAndCleanup(t *testing.T) {
	rule := testRule(t)
	writeIncoming(t, rule, "a.deb", "a")
	writeIncoming(t, rule, "b.deb", "b")

	state, err := Open(rule)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if state.IndexOf("missing") != -1 {
		t.Error("expected IndexOf to return -1 for an unknown basename")
	}
	idx := state.IndexOf("a.deb")
	if idx < 0 {
		t.Fatal("expected to find a.deb")
	}
	state.MarkDelete(idx)
	if err := state.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if _, err := os.Stat(state.Path(idx)); !os.IsNotExist(err) {
		t.Fatal("expected a.deb to be removed")
	}
	other := state.IndexOf("b.deb")
	if _, err := os.Stat(state.Path(other)); err != nil {
		t.Fatal("expected b.deb to survive cleanup")
	}
}

func writeIncoming(t *testing.T, rule *config.Rule, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(rule.IncomingDir, name), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}
