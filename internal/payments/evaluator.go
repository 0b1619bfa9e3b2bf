package payments

import (
	"time"

	"github.com/dvloznov/academy-payments/internal/domain"
)

// DueDateEvaluator recomputes timeliness for records without a live or
// resolved submission. It knows nothing about approval beyond that guard.
type DueDateEvaluator struct{}

// Sweep recomputes every eligible record in place and returns how many
// changed. Records awaiting approval or approved are skipped.
func (DueDateEvaluator) Sweep(records []*domain.PaymentRecord, today time.Time) int {
	updated := 0
	for _, rec := range records {
		if !rec.Status.Sweepable() {
			continue
		}
		changed, err := rec.RecomputeTimeliness(today)
		if err == nil && changed {
			updated++
		}
	}
	return updated
}

// Evaluate reports the status rec would have after a sweep on today,
// without modifying rec.
func (DueDateEvaluator) Evaluate(rec *domain.PaymentRecord, today time.Time) (domain.Status, bool) {
	if !rec.Status.Sweepable() {
		return rec.Status, false
	}
	c := rec.Clone()
	changed, err := c.RecomputeTimeliness(today)
	if err != nil {
		return rec.Status, false
	}
	return c.Status, changed
}
