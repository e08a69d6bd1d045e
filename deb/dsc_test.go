package deb

import "testing"

func TestParseDsc(t *testing.T) {
	content := `Format: 3.0 (quilt)
Source: foo
Version: 1.0-1
Maintainer: Someone <someone@example.com>
Standards-Version: 4.6.0
Build-Depends: debhelper (>= 10), golang
Architecture: any
Files:
 aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa 120 foo_1.0-1.dsc
 bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb 4096 foo_1.0.orig.tar.gz
Checksums-Sha256:
 1111111111111111111111111111111111111111111111111111111111111111 120 foo_1.0-1.dsc
 2222222222222222222222222222222222222222222222222222222222222222 4096 foo_1.0.orig.tar.gz
`
	d, err := ParseDsc(content)
	if err != nil {
		t.Fatalf("ParseDsc failed: %v", err)
	}
	if d.Source != "foo" || d.Version != "1.0-1" {
		t.Errorf("unexpected identity: %+v", d)
	}
	if len(d.BuildDepends) != 2 {
		t.Errorf("expected 2 build-deps, got %v", d.BuildDepends)
	}
	if len(d.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(d.Files))
	}
	for _, f := range d.Files {
		if f.Checksums.Digests[MD5] == "" || f.Checksums.Digests[SHA256] == "" {
			t.Errorf("file %s missing merged digests: %#v", f.Name, f.Checksums.Digests)
		}
	}
}

func TestParseDscSizeMismatchFatal(t *testing.T) {
	content := `Source: foo
Version: 1.0-1
Files:
 aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa 120 foo_1.0-1.dsc
Checksums-Sha256:
 1111111111111111111111111111111111111111111111111111111111111111 121 foo_1.0-1.dsc
`
	if _, err := ParseDsc(content); err == nil {
		t.Error("expected size mismatch error")
	}
}

func TestParseDscMissingSource(t *testing.T) {
	if _, err := ParseDsc("Version: 1.0\n"); err == nil {
		t.Error("expected error for missing Source")
	}
}
