// Package fixtures snapshots and restores on-disk test directories with
// github.com/otiai10/copy, so a subtest can cheaply start from a
// pre-populated store directory (a seeded LevelDB, say) instead of
// replaying the setup that produced it every time.
package fixtures

import (
	"os"
	"path/filepath"
	"testing"

	cp "github.com/otiai10/copy"
)

// Snapshot copies the contents of srcDir into a new temp directory tied
// to t's cleanup and returns its path. Call it once after an expensive
// setup to capture a reusable starting point for every subtest.
func Snapshot(t *testing.T, srcDir string) string {
	t.Helper()
	dst, err := os.MkdirTemp("", "fixture-snapshot-*")
	if err != nil {
		t.Fatalf("fixtures: creating snapshot dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dst) })

	if err := cp.Copy(srcDir, dst); err != nil {
		t.Fatalf("fixtures: snapshotting %s: %v", srcDir, err)
	}
	return dst
}

// Restore copies a snapshot produced by Snapshot into a fresh temp
// directory scoped to the calling subtest, leaving the snapshot itself
// untouched for the next subtest to reuse.
func Restore(t *testing.T, snapshotDir string) string {
	t.Helper()
	dst := filepath.Join(t.TempDir(), "store")
	if err := cp.Copy(snapshotDir, dst); err != nil {
		t.Fatalf("fixtures: restoring %s: %v", snapshotDir, err)
	}
	return dst
}
