package archive

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"
)

func TestGeneratePackagesSortsByName(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	target, err := store.Open("stable", "main", PkgBinary, ReadWrite)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := target.Add("zeta", "1.0", "Package: zeta\nVersion: 1.0\n", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := target.Add("alpha", "1.0", "Package: alpha\nVersion: 1.0\n", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ix, _ := store.Index("stable", "main", PkgBinary)
	out := string(GeneratePackages(ix))
	if strings.Index(out, "alpha") > strings.Index(out, "zeta") {
		t.Errorf("expected alpha before zeta in %q", out)
	}
}

func TestGeneratePackagesGzRoundTrips(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	target, err := store.Open("stable", "main", PkgBinary, ReadWrite)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := target.Add("foo", "1.0", "Package: foo\nVersion: 1.0\n", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	ix, _ := store.Index("stable", "main", PkgBinary)

	gz, err := GeneratePackagesGz(ix)
	if err != nil {
		t.Fatalf("GeneratePackagesGz failed: %v", err)
	}
	r, err := gzip.NewReader(bytes.NewReader(gz))
	if err != nil {
		t.Fatalf("gzip.NewReader failed: %v", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading gzip content failed: %v", err)
	}
	if !strings.Contains(string(data), "Package: foo") {
		t.Errorf("unexpected decompressed content: %s", data)
	}
}

func TestGenerateReleaseListsComponents(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if _, err := store.Open("stable", "main", PkgBinary, ReadWrite); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	content, entries, err := GenerateRelease(store, "stable", []string{"main"})
	if err != nil {
		t.Fatalf("GenerateRelease failed: %v", err)
	}
	if !strings.Contains(string(content), "Codename: stable") {
		t.Errorf("expected Codename line, got %s", content)
	}
	if len(entries) != 1 || entries[0].Path != "main/binary/Packages" {
		t.Fatalf("unexpected release entries: %+v", entries)
	}
}
