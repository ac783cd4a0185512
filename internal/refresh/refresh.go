// Package refresh rebuilds the event snapshot from the configured sources
// and installs it for readers.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusmap/internal/events"
	"campusmap/internal/feed"
	appLog "campusmap/internal/log"
	"campusmap/internal/model"
	"campusmap/internal/store"
)

// ErrAllSourcesFailed is returned when no source produced a body. The
// previous snapshot stays installed.
var ErrAllSourcesFailed = errors.New("every event source failed")

// Fetcher is the subset of *feed.Fetcher the pipeline needs.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []feed.Source) ([]feed.FetchResult, []error)
}

// Saver persists snapshots. *store.SQLite satisfies it.
type Saver interface {
	SaveSnapshot(ctx context.Context, s store.Snapshot) error
}

// Refresher runs one fetch → decode → normalize → swap → save cycle.
type Refresher struct {
	Fetcher Fetcher
	Sources []feed.Source
	Memory  *store.Memory
	// DB is optional; without it snapshots live in memory only.
	DB Saver

	Location    *time.Location
	HorizonDays int

	now func() time.Time
}

func (r *Refresher) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Run performs one refresh cycle and returns the installed snapshot.
// Sources that fail to fetch or decode are logged and skipped.
func (r *Refresher) Run(ctx context.Context) (store.Snapshot, error) {
	started := r.clock()
	results, errs := r.Fetcher.FetchAll(ctx, r.Sources)

	var (
		raws   []events.RawEvent
		usable int
	)
	for i, res := range results {
		if errs[i] != nil {
			appLog.Error("refresh: fetch failed", errs[i], "id", r.Sources[i].ID)
			continue
		}
		recs, _, err := feed.Decode(res.Source, res.Body, feed.DecodeOptions{
			Location:    r.Location,
			Now:         started,
			HorizonDays: r.HorizonDays,
		})
		if err != nil {
			appLog.Error("refresh: decode failed", err, "id", res.Source.ID)
			continue
		}
		usable++
		raws = append(raws, recs...)
	}

	if len(r.Sources) > 0 && usable == 0 {
		return store.Snapshot{}, ErrAllSourcesFailed
	}
	if err := ctx.Err(); err != nil {
		return store.Snapshot{}, err
	}

	evs := dedupe(events.Normalizer{Location: r.Location}.Normalize(raws))
	scrapedAt := r.clock()
	snap := store.NewSnapshot(evs, &scrapedAt)

	r.Memory.Swap(snap)
	appLog.Info("refresh completed",
		"snapshot", snap.ID.String(),
		"sources", len(r.Sources),
		"usable", usable,
		"event_count", len(evs),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	if r.DB != nil {
		if err := r.DB.SaveSnapshot(ctx, snap); err != nil {
			return snap, fmt.Errorf("save snapshot: %w", err)
		}
	}
	return snap, nil
}

// dedupe keeps the first event per id. Sources overlap (a JSON export and
// the calendar page often list the same event).
func dedupe(evs []model.Event) []model.Event {
	seen := make(map[string]struct{}, len(evs))
	out := evs[:0]
	for _, ev := range evs {
		if _, dup := seen[ev.ID]; dup {
			appLog.Debug("refresh: duplicate event id", "id", ev.ID)
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	return out
}
