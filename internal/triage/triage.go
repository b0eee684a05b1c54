// Package triage classifies incoming feed items against the record
// store into new, duplicate, retryable and in-progress sets.
package triage

import (
	"errors"
	"log"

	"github.com/vodarchiver/vod-archiver/internal/record"
	"github.com/vodarchiver/vod-archiver/internal/store"
)

// Store is the slice of the record store triage needs.
type Store interface {
	Get(key string) (record.Video, error)
	Upsert(v record.Video) error
}

// Result partitions a candidate batch. Every input item lands in
// exactly one of the four sets, in source order.
type Result struct {
	New        []record.Video
	Duplicate  []record.Video
	Retryable  []record.Video
	InProgress []record.Video
}

// Counts returns the partition sizes for log lines.
func (r Result) Counts() (nw, dup, retry, prog int) {
	return len(r.New), len(r.Duplicate), len(r.Retryable), len(r.InProgress)
}

// Engine classifies candidates and reserves new ones.
type Engine struct {
	store Store
	log   *log.Logger
}

func NewEngine(st Store, logger *log.Logger) *Engine {
	return &Engine{store: st, log: logger}
}

// Triage classifies each candidate against the store. Unseen items
// are reserved immediately with a pending write-through so an
// overlapping feed page cannot classify the same item as new twice.
// Within the batch the first occurrence of a key wins; later
// occurrences count as duplicates. A failed reservation is logged and
// the item still reports as new; the batch continues.
func (e *Engine) Triage(candidates []record.Video) Result {
	var res Result
	seen := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		if _, dup := seen[c.IdentityKey]; dup {
			res.Duplicate = append(res.Duplicate, c)
			continue
		}
		seen[c.IdentityKey] = struct{}{}

		existing, err := e.store.Get(c.IdentityKey)
		if errors.Is(err, store.ErrNotFound) {
			c.Status = record.StatusPending
			if uerr := e.store.Upsert(c); uerr != nil {
				e.log.Printf("triage: reservation failed key=%s err=%v", c.IdentityKey, uerr)
			}
			res.New = append(res.New, c)
			continue
		}
		if err != nil {
			e.log.Printf("triage: lookup failed key=%s err=%v", c.IdentityKey, err)
			res.New = append(res.New, c)
			continue
		}

		switch existing.Status {
		case record.StatusCompleted, record.StatusUploaded:
			res.Duplicate = append(res.Duplicate, existing)
		case record.StatusFailed:
			res.Retryable = append(res.Retryable, existing)
		default:
			res.InProgress = append(res.InProgress, existing)
		}
	}
	return res
}
