package moderation

import (
	"context"
	"time"
)

// Report limiter defaults
const (
	DefaultReportLimit  = 10
	DefaultReportWindow = time.Hour
)

// ReportLimiter decides whether a reporter may file another report.
// Allow consumes one unit of the reporter's quota when it returns true.
// Release hands that unit back when the report was not stored. Remaining
// reads the quota left in the current window without consuming any.
type ReportLimiter interface {
	Allow(ctx context.Context, reporterID string) (bool, error)
	Release(ctx context.Context, reporterID string) error
	Remaining(ctx context.Context, reporterID string) (int, error)
}

// StoreLimiter limits reports by counting the reporter's recent reports in
// the report store. It needs no extra infrastructure but costs one query per
// report.
type StoreLimiter struct {
	store  ReportStore
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewStoreLimiter creates a limiter allowing limit reports per window
func NewStoreLimiter(store ReportStore, limit int, window time.Duration) *StoreLimiter {
	if limit <= 0 {
		limit = DefaultReportLimit
	}
	if window <= 0 {
		window = DefaultReportWindow
	}
	return &StoreLimiter{store: store, limit: limit, window: window, now: time.Now}
}

func (l *StoreLimiter) Allow(ctx context.Context, reporterID string) (bool, error) {
	n, err := l.store.CountReportsFromUserSince(ctx, reporterID, l.now().Add(-l.window))
	if err != nil {
		return false, err
	}
	return n < l.limit, nil
}

// Release is a no-op: a report that was never stored is never counted.
func (l *StoreLimiter) Release(context.Context, string) error { return nil }

func (l *StoreLimiter) Remaining(ctx context.Context, reporterID string) (int, error) {
	n, err := l.store.CountReportsFromUserSince(ctx, reporterID, l.now().Add(-l.window))
	if err != nil {
		return 0, err
	}
	return max(l.limit-n, 0), nil
}
