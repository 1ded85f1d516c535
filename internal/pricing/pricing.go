// Package pricing holds the per-page price snapshot used to cost print jobs.
// Prices are loaded once per monitoring session from the org metadata
// document; an administrator changing prices mid-session does not affect an
// already-open session.
package pricing

import (
	"context"
	"log/slog"

	"github.com/printwarden/printwarden/internal/budget"
)

// Remote document layout.
const (
	MetadataPath         = "metadata"
	FieldBlackWhitePrice = "blackAndWhitePrice"
	FieldColorPrice      = "colorPrice"
)

// Snapshot is an immutable per-page price pair.
type Snapshot struct {
	BlackWhitePerPage float64
	ColorPerPage      float64
}

// DefaultSnapshot returns the fallback prices used when the metadata
// document is unreachable or malformed. Non-zero so that a store outage at
// startup never turns into free printing.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		BlackWhitePerPage: 1.0,
		ColorPerPage:      2.0,
	}
}

// JobCost prices a job. Page counts below 1 are charged as a single page:
// spoolers report 0 while a job is still rendering, and undercounting a
// chargeable job is worse than charging the minimum.
func (s Snapshot) JobCost(pages int, color bool) float64 {
	if pages < 1 {
		pages = 1
	}
	per := s.BlackWhitePerPage
	if color {
		per = s.ColorPerPage
	}
	return float64(pages) * per
}

// Load reads the org pricing document from the store. Any failure -- missing
// document, missing field, negative value -- falls back to the corresponding
// default with a warning instead of failing monitor startup.
func Load(ctx context.Context, store budget.Store, defaults Snapshot, logger *slog.Logger) Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pricing")

	doc, err := store.Get(ctx, MetadataPath)
	if err != nil {
		logger.Warn("pricing metadata unavailable, using defaults",
			"error", err,
			"black_white", defaults.BlackWhitePerPage,
			"color", defaults.ColorPerPage,
		)
		return defaults
	}

	snap := defaults
	if v, ok := doc.Float(FieldBlackWhitePrice); ok && v >= 0 {
		snap.BlackWhitePerPage = v
	} else {
		logger.Warn("black and white price missing or invalid, using default",
			"default", defaults.BlackWhitePerPage)
	}
	if v, ok := doc.Float(FieldColorPrice); ok && v >= 0 {
		snap.ColorPerPage = v
	} else {
		logger.Warn("color price missing or invalid, using default",
			"default", defaults.ColorPerPage)
	}

	logger.Info("loaded pricing snapshot",
		"black_white", snap.BlackWhitePerPage,
		"color", snap.ColorPerPage,
	)
	return snap
}
