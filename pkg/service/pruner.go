package service

import (
	"context"
	"time"
)

// minPruneInterval bounds how often the pruner wakes up for short TTLs.
const minPruneInterval = time.Second

// PruneInterval returns how often sessions should be checked for expiry
// given ttl: a tenth of the TTL, capped at one hour. A non-positive ttl
// disables pruning and returns 0.
func PruneInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	interval := ttl / 10
	if interval < minPruneInterval {
		interval = minPruneInterval
	}
	if interval > time.Hour {
		interval = time.Hour
	}
	return interval
}

// RunPruner deletes expired sessions every interval until ctx is done.
// It returns immediately when interval is not positive.
func (s *TreeService) RunPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.PruneExpired(); err != nil {
				s.logger.Sugar().Warnw("Failed to prune tree sessions", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
