package reconcile

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/vodarchiver/vod-archiver/internal/record"
	"github.com/vodarchiver/vod-archiver/internal/store"
)

func testReconciler(t *testing.T) (*Reconciler, *store.Store, string) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	st, err := store.Open(filepath.Join(t.TempDir(), "videos.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, logger), st, t.TempDir()
}

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunDemotesCompletedWithMissingFile(t *testing.T) {
	r, st, dir := testReconciler(t)
	if err := st.Upsert(record.Video{
		IdentityKey: "B_0101",
		Title:       "B",
		Status:      record.StatusCompleted,
		FilePath:    filepath.Join(dir, "missing.mp4"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rep, err := r.Run(dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.UpdatedToMissing != 1 {
		t.Errorf("UpdatedToMissing = %d, want 1", rep.UpdatedToMissing)
	}
	v, err := st.Get("B_0101")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Status != record.StatusPending {
		t.Errorf("status = %s, want pending", v.Status)
	}
}

func TestRunMatchesByKeySubstring(t *testing.T) {
	r, st, dir := testReconciler(t)
	path := writeFile(t, dir, "show_vid42_final.mp4", 512)
	if err := st.Upsert(record.Video{IdentityKey: "vid42", Title: "unrelated title", Status: record.StatusPending}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rep, err := r.Run(dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.FilesMatched != 1 {
		t.Errorf("FilesMatched = %d, want 1", rep.FilesMatched)
	}
	v, _ := st.Get("vid42")
	if v.Status != record.StatusCompleted || v.FilePath != path || v.FileSize != 512 {
		t.Errorf("record after match = %+v", v)
	}
}

func TestRunPrefersKeyOverTitle(t *testing.T) {
	r, st, dir := testReconciler(t)
	keyed := writeFile(t, dir, "archive_key99.mp4", 10)
	writeFile(t, dir, "shared title cut.mp4", 10)
	if err := st.Upsert(record.Video{IdentityKey: "key99", Title: "shared title", Status: record.StatusPending}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := r.Run(dir); err != nil {
		t.Fatalf("run: %v", err)
	}
	v, _ := st.Get("key99")
	if v.FilePath != keyed {
		t.Errorf("matched %q, want the key-bearing file %q", v.FilePath, keyed)
	}
}

func TestRunRegistersUnmatchedFiles(t *testing.T) {
	r, st, dir := testReconciler(t)
	path := writeFile(t, dir, "manually placed 0801.mp4", 256)

	rep, err := r.Run(dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.CreatedFromFiles != 1 {
		t.Errorf("CreatedFromFiles = %d, want 1", rep.CreatedFromFiles)
	}
	v, err := st.Get(FileKey("manually placed 0801.mp4"))
	if err != nil {
		t.Fatalf("synthesized record missing: %v", err)
	}
	if v.Status != record.StatusCompleted || v.FilePath != path || v.FileSize != 256 {
		t.Errorf("synthesized record = %+v", v)
	}
	if v.DateToken != "0801" {
		t.Errorf("date token = %q, want 0801", v.DateToken)
	}
}

func TestRunPromotesRecordedPath(t *testing.T) {
	r, st, dir := testReconciler(t)
	path := writeFile(t, dir, "present.mp4", 64)
	if err := st.Upsert(record.Video{IdentityKey: "p1", Title: "present", Status: record.StatusPending, FilePath: path}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rep, err := r.Run(dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.UpdatedToCompleted != 1 {
		t.Errorf("UpdatedToCompleted = %d, want 1", rep.UpdatedToCompleted)
	}
	v, _ := st.Get("p1")
	if v.Status != record.StatusCompleted {
		t.Errorf("status = %s, want completed", v.Status)
	}
}

func TestRunRecordedPathsClaimedBeforeMatching(t *testing.T) {
	r, st, dir := testReconciler(t)
	path := writeFile(t, dir, "shared show.mp4", 77)
	if err := st.Upsert(record.Video{
		IdentityKey: "owner",
		Title:       "zzz",
		Status:      record.StatusCompleted,
		FilePath:    path,
		FileSize:    77,
	}); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	// Title would substring-match the owner's file.
	if err := st.Upsert(record.Video{IdentityKey: "greedy", Title: "shared show", Status: record.StatusPending}); err != nil {
		t.Fatalf("seed greedy: %v", err)
	}

	rep, err := r.Run(dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.FilesMatched != 0 {
		t.Errorf("FilesMatched = %d, want 0", rep.FilesMatched)
	}
	owner, _ := st.Get("owner")
	if owner.Status != record.StatusCompleted || owner.FilePath != path {
		t.Errorf("owner lost its file: %+v", owner)
	}
	greedy, _ := st.Get("greedy")
	if greedy.Status != record.StatusPending || greedy.FilePath != "" {
		t.Errorf("greedy stole a recorded path: %+v", greedy)
	}
}

func TestRunConverges(t *testing.T) {
	r, st, dir := testReconciler(t)
	writeFile(t, dir, "clip_a.mp4", 100)
	writeFile(t, dir, "nested/clip_b.mkv", 200)
	if err := st.Upsert(record.Video{IdentityKey: "clip_a", Title: "clip a", Status: record.StatusPending}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := st.Upsert(record.Video{
		IdentityKey: "gone",
		Title:       "zzz",
		Status:      record.StatusCompleted,
		FilePath:    filepath.Join(dir, "deleted.mp4"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	first, err := r.Run(dir)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Zero() {
		t.Fatal("first run reported no mutations")
	}

	second, err := r.Run(dir)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Zero() {
		t.Errorf("second run not converged: %+v", second)
	}
}

func TestRunSkipsNonVideoFiles(t *testing.T) {
	r, _, dir := testReconciler(t)
	writeFile(t, dir, "notes.txt", 10)
	writeFile(t, dir, "cover.jpg", 10)

	rep, err := r.Run(dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.CreatedFromFiles != 0 {
		t.Errorf("CreatedFromFiles = %d, want 0", rep.CreatedFromFiles)
	}
}
