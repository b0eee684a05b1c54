package triage

import (
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/vodarchiver/vod-archiver/internal/record"
	"github.com/vodarchiver/vod-archiver/internal/store"
)

func testEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	st, err := store.Open(filepath.Join(t.TempDir(), "videos.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewEngine(st, logger), st
}

func vid(key string) record.Video {
	return record.Video{IdentityKey: key, Title: key, SourceURL: "https://cdn/" + key}
}

func TestTriagePartitionIsTotalAndDisjoint(t *testing.T) {
	eng, st := testEngine(t)
	if err := st.Upsert(record.Video{IdentityKey: "done", Status: record.StatusCompleted}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := st.Upsert(record.Video{IdentityKey: "boom", Status: record.StatusFailed}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := st.Upsert(record.Video{IdentityKey: "busy", Status: record.StatusDownloading}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	batch := []record.Video{vid("fresh"), vid("done"), vid("boom"), vid("busy"), vid("fresh2")}
	res := eng.Triage(batch)
	nw, dup, retry, prog := res.Counts()
	if nw+dup+retry+prog != len(batch) {
		t.Fatalf("partition not total: %d+%d+%d+%d != %d", nw, dup, retry, prog, len(batch))
	}

	seen := map[string]int{}
	for _, set := range [][]record.Video{res.New, res.Duplicate, res.Retryable, res.InProgress} {
		for _, v := range set {
			seen[v.IdentityKey]++
		}
	}
	for key, n := range seen {
		if n != 1 {
			t.Errorf("key %s appears %d times across sets", key, n)
		}
	}
	if nw != 2 || dup != 1 || retry != 1 || prog != 1 {
		t.Errorf("counts new=%d dup=%d retry=%d prog=%d", nw, dup, retry, prog)
	}
}

func TestTriageReservesNewAsPending(t *testing.T) {
	eng, st := testEngine(t)
	res := eng.Triage([]record.Video{vid("one")})
	if len(res.New) != 1 {
		t.Fatalf("new = %d, want 1", len(res.New))
	}
	got, err := st.Get("one")
	if err != nil {
		t.Fatalf("reservation not written: %v", err)
	}
	if got.Status != record.StatusPending {
		t.Errorf("reserved status = %s, want pending", got.Status)
	}

	// The reservation must keep a second pass from seeing the item as new.
	res2 := eng.Triage([]record.Video{vid("one")})
	if len(res2.New) != 0 || len(res2.InProgress) != 1 {
		t.Errorf("second pass new=%d in_progress=%d, want 0/1", len(res2.New), len(res2.InProgress))
	}
}

func TestTriageBatchDedupFirstOccurrenceWins(t *testing.T) {
	eng, _ := testEngine(t)

	a1 := vid("shared")
	a1.Title = "first occurrence"
	b := vid("other")
	a2 := vid("shared")
	a2.Title = "third occurrence"

	res := eng.Triage([]record.Video{a1, b, a2})
	if len(res.New) != 2 {
		t.Fatalf("new = %d, want 2", len(res.New))
	}
	if res.New[0].Title != "first occurrence" {
		t.Errorf("first occurrence lost: %q", res.New[0].Title)
	}
	if len(res.Duplicate) != 1 || res.Duplicate[0].Title != "third occurrence" {
		t.Errorf("duplicate set = %+v, want the later shared-key item", res.Duplicate)
	}
}

func TestTriageRetryableFromFailed(t *testing.T) {
	eng, st := testEngine(t)
	if err := st.Upsert(record.Video{IdentityKey: "flaky", Status: record.StatusFailed}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	res := eng.Triage([]record.Video{vid("flaky")})
	if len(res.Retryable) != 1 {
		t.Fatalf("retryable = %d, want 1", len(res.Retryable))
	}
}
