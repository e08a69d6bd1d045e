package archive

import "testing"

func TestSourcePrefixLibSpecialCase(t *testing.T) {
	if got := SourcePrefix("libfoo"); got != "libf" {
		t.Errorf("expected libf, got %s", got)
	}
	if got := SourcePrefix("foo"); got != "f" {
		t.Errorf("expected f, got %s", got)
	}
}

func TestBinaryFilekey(t *testing.T) {
	got := BinaryFilekey("main", "foo", "foo", "1.0-1", "amd64", "deb")
	want := "main/f/foo/foo_1.0-1_amd64.deb"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestSourceFilekey(t *testing.T) {
	got := SourceFilekey("main", "libfoo", "libfoo_1.0.orig.tar.gz")
	want := "main/libf/libfoo/libfoo_1.0.orig.tar.gz"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
