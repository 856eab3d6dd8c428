package attendance

import (
	"context"
	"time"

	"github.com/CostinMirescu/sala-alternativa/internal/metrics"
)

// Ledger is the append-only record of every check-in and check-out attempt.
// It is the source of truth for rate limiting and device binding.
type Ledger struct {
	repo *Repository
}

// NewLedger creates a ledger backed by the repository.
func NewLedger(repo *Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Append records one attempt.
func (l *Ledger) Append(ctx context.Context, a Attempt) error {
	if err := l.repo.InsertAttempt(ctx, a); err != nil {
		return err
	}
	metrics.Attempts.WithLabelValues(string(a.Action), string(a.Reason)).Inc()
	return nil
}

// CountRecent counts the device's attempts in the session after since.
func (l *Ledger) CountRecent(ctx context.Context, sessionID, deviceID string, since time.Time) (int, error) {
	return l.repo.CountAttemptsSince(ctx, sessionID, deviceID, since)
}

// LastSuccessCode returns the code hash of the device's latest successful attempt.
func (l *Ledger) LastSuccessCode(ctx context.Context, sessionID, deviceID string) (*string, error) {
	return l.repo.LastSuccessfulCode(ctx, sessionID, deviceID)
}
