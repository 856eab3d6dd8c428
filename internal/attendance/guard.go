package attendance

import (
	"context"
	"time"
)

// AttemptHistory is the part of the ledger the guard reads.
type AttemptHistory interface {
	CountRecent(ctx context.Context, sessionID, deviceID string, since time.Time) (int, error)
	LastSuccessCode(ctx context.Context, sessionID, deviceID string) (*string, error)
}

// CodeBook answers code and attendance lookups.
type CodeBook interface {
	CodeAuthorized(ctx context.Context, classID, codeHash string) (bool, error)
	GetAttendance(ctx context.Context, sessionID, codeHash string) (*Record, error)
}

// Candidate is a check-in attempt under evaluation.
type Candidate struct {
	SessionID string
	ClassID   string
	DeviceID  string
	CodeHash  string
	At        time.Time
}

// Verdict is the guard decision. Resolved is false when the attempt was
// stopped before the code was matched to a participant.
type Verdict struct {
	Reason   Reason
	Resolved bool
}

// Admitted reports whether every rule passed.
func (v Verdict) Admitted() bool { return v.Reason == ReasonOK }

// Guard applies the anti-fraud rules to check-in attempts.
type Guard struct {
	history     AttemptHistory
	codes       CodeBook
	maxAttempts int
	window      time.Duration
}

// NewGuard creates a guard allowing maxAttempts per device within window.
func NewGuard(history AttemptHistory, codes CodeBook, maxAttempts int, window time.Duration) *Guard {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Guard{history: history, codes: codes, maxAttempts: maxAttempts, window: window}
}

type rule struct {
	resolves bool
	check    func(ctx context.Context, c Candidate) (Reason, error)
}

// Check runs the rules in order and stops at the first denial.
// Rate limit and device binding read the ledger without locking, so parallel
// attempts from one device can pass them together; only the attendance
// uniqueness constraint is race-safe.
func (g *Guard) Check(ctx context.Context, c Candidate) (Verdict, error) {
	rules := []rule{
		{check: g.rateLimit},
		{check: g.authorizedCode, resolves: true},
		{check: g.deviceBinding},
		{check: g.duplicateCode},
	}
	resolved := false
	for _, r := range rules {
		reason, err := r.check(ctx, c)
		if err != nil {
			return Verdict{}, err
		}
		if reason != "" {
			return Verdict{Reason: reason, Resolved: resolved}, nil
		}
		if r.resolves {
			resolved = true
		}
	}
	return Verdict{Reason: ReasonOK, Resolved: true}, nil
}

func (g *Guard) rateLimit(ctx context.Context, c Candidate) (Reason, error) {
	n, err := g.history.CountRecent(ctx, c.SessionID, c.DeviceID, c.At.Add(-g.window))
	if err != nil {
		return "", err
	}
	if n >= g.maxAttempts {
		return ReasonRateLimit, nil
	}
	return "", nil
}

func (g *Guard) authorizedCode(ctx context.Context, c Candidate) (Reason, error) {
	ok, err := g.codes.CodeAuthorized(ctx, c.ClassID, c.CodeHash)
	if err != nil {
		return "", err
	}
	if !ok {
		return ReasonInvalidCode, nil
	}
	return "", nil
}

// deviceBinding only looks at the device's latest success, so a device whose
// earlier registrations all failed may still be used.
func (g *Guard) deviceBinding(ctx context.Context, c Candidate) (Reason, error) {
	last, err := g.history.LastSuccessCode(ctx, c.SessionID, c.DeviceID)
	if err != nil {
		return "", err
	}
	if last != nil && *last != c.CodeHash {
		return ReasonDeviceOtherCode, nil
	}
	return "", nil
}

func (g *Guard) duplicateCode(ctx context.Context, c Candidate) (Reason, error) {
	rec, err := g.codes.GetAttendance(ctx, c.SessionID, c.CodeHash)
	if err != nil {
		return "", err
	}
	if rec != nil {
		return ReasonDuplicateCode, nil
	}
	return "", nil
}
