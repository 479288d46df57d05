// Package gaps computes which date ranges must be fetched for an instrument.
// Results depend only on the inputs; nothing here touches disk, so gap
// detection is safe to run before every ingest pass.
package gaps

import (
	"time"

	"tickvault/internal/domain"
)

// ComputeGaps returns the dates that a head-of-history backfill must ingest,
// ascending.
//
// With no existing partitions the gap is every date in
// [earliestRequired, cutoff) — cutoff exclusive, because the current day may
// still be accumulating at the provider. With existing partitions the gap is
// [earliestRequired, min(existing)): only the head of history is filled;
// interior holes are not re-examined by this pass.
func ComputeGaps(earliestRequired time.Time, existing []time.Time, cutoff time.Time) []time.Time {
	earliestRequired = domain.Midnight(earliestRequired)

	if len(existing) == 0 {
		return domain.DateRange(earliestRequired, domain.Midnight(cutoff).AddDate(0, 0, -1))
	}

	earliestAvailable := domain.Midnight(existing[0])
	for _, d := range existing[1:] {
		if m := domain.Midnight(d); m.Before(earliestAvailable) {
			earliestAvailable = m
		}
	}

	if !earliestRequired.Before(earliestAvailable) {
		// Already has full history; nothing to backfill.
		return nil
	}
	return domain.DateRange(earliestRequired, earliestAvailable.AddDate(0, 0, -1))
}

// ComputeForwardGap returns the inclusive [start, end] range the nightly run
// must ingest. lastLocal is the newest locally present date, or the zero time
// when the symbol has no partitions yet. The start is
// max(earliestRequired, lastLocal+1d); ok is false when start is past end
// (already up to date).
func ComputeForwardGap(lastLocal, earliestRequired, end time.Time) (start, stop time.Time, ok bool) {
	earliestRequired = domain.Midnight(earliestRequired)
	end = domain.Midnight(end)

	start = earliestRequired
	if !lastLocal.IsZero() {
		start = domain.MaxDate(earliestRequired, domain.Midnight(lastLocal).AddDate(0, 0, 1))
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
