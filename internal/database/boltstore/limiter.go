package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"

	bolt "go.etcd.io/bbolt"
)

// reportWindow is the stored state for one reporter
type reportWindow struct {
	Start time.Time `json:"window_start"`
	Count int       `json:"count"`
}

// ReportLimiter allows at most limit reports per reporter in each fixed
// window. Counts survive restarts.
type ReportLimiter struct {
	db     *bolt.DB
	limit  int
	window time.Duration
	now    func() time.Time
}

var _ moderation.ReportLimiter = (*ReportLimiter)(nil)

func newReportLimiter(db *bolt.DB, limit int, window time.Duration) *ReportLimiter {
	if limit <= 0 {
		limit = moderation.DefaultReportLimit
	}
	if window <= 0 {
		window = moderation.DefaultReportWindow
	}
	return &ReportLimiter{db: db, limit: limit, window: window, now: time.Now}
}

// Allow consumes one unit of reporterID's quota if any is left
func (l *ReportLimiter) Allow(ctx context.Context, reporterID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := l.now()
	allowed := false

	err := l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketReportWindows)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketReportWindows)
		}

		var w reportWindow
		if data := bucket.Get([]byte(reporterID)); data != nil {
			if err := json.Unmarshal(data, &w); err != nil {
				return fmt.Errorf("failed to unmarshal report window: %w", err)
			}
		}
		if w.Start.IsZero() || !now.Before(w.Start.Add(l.window)) {
			w = reportWindow{Start: now}
		}
		if w.Count >= l.limit {
			return nil
		}
		w.Count++
		allowed = true

		data, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("failed to marshal report window: %w", err)
		}
		return bucket.Put([]byte(reporterID), data)
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// Release returns one unit to reporterID's current window. Ended windows
// are left alone.
func (l *ReportLimiter) Release(ctx context.Context, reporterID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := l.now()
	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketReportWindows)
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(reporterID))
		if data == nil {
			return nil
		}
		var w reportWindow
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("failed to unmarshal report window: %w", err)
		}
		if !now.Before(w.Start.Add(l.window)) || w.Count == 0 {
			return nil
		}
		w.Count--
		out, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("failed to marshal report window: %w", err)
		}
		return bucket.Put([]byte(reporterID), out)
	})
}

// Remaining reports how many reports reporterID may still file in the
// current window without consuming any.
func (l *ReportLimiter) Remaining(ctx context.Context, reporterID string) (int, error) {
	now := l.now()
	remaining := l.limit

	err := l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketReportWindows)
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(reporterID))
		if data == nil {
			return nil
		}
		var w reportWindow
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("failed to unmarshal report window: %w", err)
		}
		if now.Before(w.Start.Add(l.window)) {
			remaining = max(l.limit-w.Count, 0)
		}
		return nil
	})
	return remaining, err
}

// Prune deletes windows that ended before now and reports how many it
// removed. Reporters that go quiet would otherwise keep their key forever.
func (l *ReportLimiter) Prune(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := l.now()
	removed := 0

	err := l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketReportWindows)
		if bucket == nil {
			return nil
		}
		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var w reportWindow
			if err := json.Unmarshal(v, &w); err != nil {
				expired = append(expired, append([]byte(nil), k...))
				return nil
			}
			if !now.Before(w.Start.Add(l.window)) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return fmt.Errorf("delete report window %s: %w", k, err)
			}
		}
		removed = len(expired)
		return nil
	})
	return removed, err
}
