package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/archivekeep/incoming-queue/deb"
)

func sumsFor(t *testing.T, content string) deb.Checksums {
	t.Helper()
	sums, err := deb.ComputeChecksums(strings.NewReader(content))
	if err != nil {
		t.Fatalf("ComputeChecksums failed: %v", err)
	}
	return sums
}

func TestPoolCanAddAbsent(t *testing.T) {
	pool, err := NewPool(t.TempDir())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	result, err := pool.CanAdd("main/f/foo/foo_1.0_amd64.deb", sumsFor(t, "hello"))
	if err != nil {
		t.Fatalf("CanAdd failed: %v", err)
	}
	if result != Absent {
		t.Errorf("expected Absent, got %v", result)
	}
}

func TestPoolHardlinkAndAddThenDeduplicate(t *testing.T) {
	dir := t.TempDir()
	pool, err := NewPool(filepath.Join(dir, "pool"))
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	tempFile := filepath.Join(dir, "foo_1.0_amd64.deb")
	if err := os.WriteFile(tempFile, []byte("payload"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	sums := sumsFor(t, "payload")
	filekey := "main/f/foo/foo_1.0_amd64.deb"

	if err := pool.HardlinkAndAdd(tempFile, filekey, sums); err != nil {
		t.Fatalf("HardlinkAndAdd failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pool", filekey)); err != nil {
		t.Fatalf("expected file in pool: %v", err)
	}

	result, err := pool.CanAdd(filekey, sums)
	if err != nil {
		t.Fatalf("CanAdd failed: %v", err)
	}
	if result != PresentMatching {
		t.Errorf("expected PresentMatching after install, got %v", result)
	}

	// Re-adding the same content (rebuild sharing, S3) should just bump
	// the refcount, not fail.
	if err := pool.HardlinkAndAdd(tempFile, filekey, sums); err != nil {
		t.Fatalf("second HardlinkAndAdd failed: %v", err)
	}
}

func TestPoolCanAddCollision(t *testing.T) {
	dir := t.TempDir()
	pool, err := NewPool(filepath.Join(dir, "pool"))
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	tempFile := filepath.Join(dir, "foo_1.0_amd64.deb")
	if err := os.WriteFile(tempFile, []byte("payload"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	filekey := "main/f/foo/foo_1.0_amd64.deb"
	if err := pool.HardlinkAndAdd(tempFile, filekey, sumsFor(t, "payload")); err != nil {
		t.Fatalf("HardlinkAndAdd failed: %v", err)
	}

	result, err := pool.CanAdd(filekey, sumsFor(t, "different payload"))
	if err != nil {
		t.Fatalf("CanAdd failed: %v", err)
	}
	if result != Collision {
		t.Errorf("expected Collision, got %v", result)
	}
}

func TestPoolDeleteAndRemoveRefcounted(t *testing.T) {
	dir := t.TempDir()
	pool, err := NewPool(filepath.Join(dir, "pool"))
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	tempFile := filepath.Join(dir, "foo.tar.gz")
	if err := os.WriteFile(tempFile, []byte("payload"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	filekey := "main/f/foo/foo.tar.gz"
	sums := sumsFor(t, "payload")
	if err := pool.HardlinkAndAdd(tempFile, filekey, sums); err != nil {
		t.Fatalf("HardlinkAndAdd failed: %v", err)
	}
	if err := pool.HardlinkAndAdd(tempFile, filekey, sums); err != nil {
		t.Fatalf("second HardlinkAndAdd failed: %v", err)
	}

	// refcount is now 2; decrementing once must not delete the file.
	if err := pool.DeleteAndRemove(filekey, true, true); err != nil {
		t.Fatalf("DeleteAndRemove failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pool", filekey)); err != nil {
		t.Fatalf("expected file to survive first decrement: %v", err)
	}

	if err := pool.DeleteAndRemove(filekey, true, true); err != nil {
		t.Fatalf("DeleteAndRemove failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pool", filekey)); !os.IsNotExist(err) {
		t.Fatalf("expected file removed after last decrement, err=%v", err)
	}
}
