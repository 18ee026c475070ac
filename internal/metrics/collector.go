package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource feeds the gauges. A nil func is skipped; a func that errors
// leaves its gauge at the last good value.
type StatsSource struct {
	OpenReports func(ctx context.Context) (int, error)
	RoleCounts  func(ctx context.Context) (map[string]int, error)
}

// StartCollector refreshes the gauges once now and then every interval
// until ctx is done.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	collect(ctx, src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(ctx, src)
			}
		}
	}()
	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(ctx context.Context, src StatsSource) {
	if src.OpenReports != nil {
		if n, err := src.OpenReports(ctx); err != nil {
			log.Warn().Err(err).Msg("metrics: open report count unavailable")
		} else {
			OpenReports.Set(float64(n))
		}
	}
	if src.RoleCounts != nil {
		counts, err := src.RoleCounts(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("metrics: role counts unavailable")
			return
		}
		for role, n := range counts {
			ElevatedAccounts.WithLabelValues(role).Set(float64(n))
		}
	}
}
