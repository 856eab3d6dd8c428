package window

import "time"

// Mode classifies the current time against a session's windows.
type Mode string

const (
	ModePre    Mode = "pre"
	ModeActive Mode = "active"
	ModeSleep  Mode = "sleep"
	ModeEnd    Mode = "end"
	ModePost   Mode = "post"
)

// Grade is the classification of a check-in attempt inside the active window.
type Grade int

const (
	GradeExpired Grade = iota
	GradeOnTime
	GradeLate
)

// Admission is the outcome of a check-out attempt relative to the session end.
type Admission string

const (
	AdmissionEarly Admission = "early"
	AdmissionOK    Admission = "ok"
	AdmissionLate  Admission = "late"
)

// Phase is the session boundary a token or action concerns.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// Valid reports whether p is one of the two known phases.
func (p Phase) Valid() bool { return p == PhaseStart || p == PhaseEnd }

// Config holds the window offsets. SessionLength is only used when generating sessions.
type Config struct {
	CheckinOpenBefore     time.Duration
	CheckinCloseAfter     time.Duration
	CheckoutOpenBeforeEnd time.Duration
	CheckoutGraceAfterEnd time.Duration
	SessionLength         time.Duration

	// OnTimeFor and LateUntil grade check-ins by time elapsed since start.
	// LateUntil should match CheckinCloseAfter.
	OnTimeFor time.Duration
	LateUntil time.Duration

	// CheckoutBand is the tolerance around the session end for check-out.
	CheckoutBand time.Duration
}

// DefaultConfig returns the offsets used by the school.
func DefaultConfig() Config {
	return Config{
		CheckinOpenBefore:     5 * time.Minute,
		CheckinCloseAfter:     10 * time.Minute,
		CheckoutOpenBeforeEnd: 5 * time.Minute,
		CheckoutGraceAfterEnd: 5 * time.Minute,
		SessionLength:         50 * time.Minute,
		OnTimeFor:             300 * time.Second,
		LateUntil:             600 * time.Second,
		CheckoutBand:          5 * time.Minute,
	}
}

// Window is the computed state of a session at a given instant.
type Window struct {
	Mode          Mode       `json:"mode"`
	CheckinStart  time.Time  `json:"checkin_start"`
	CheckinEnd    time.Time  `json:"checkin_end"`
	CheckoutStart time.Time  `json:"checkout_start"`
	CheckoutEnd   time.Time  `json:"checkout_end"`
	NextOpen      *time.Time `json:"next_open,omitempty"`
}

// Compute classifies now against the windows of a session running from start to end.
func Compute(now, start, end time.Time, cfg Config) Window {
	w := Window{
		CheckinStart:  start.Add(-cfg.CheckinOpenBefore),
		CheckinEnd:    start.Add(cfg.CheckinCloseAfter),
		CheckoutStart: end.Add(-cfg.CheckoutOpenBeforeEnd),
		CheckoutEnd:   end.Add(cfg.CheckoutGraceAfterEnd),
	}
	switch {
	case now.Before(w.CheckinStart):
		w.Mode = ModePre
		next := w.CheckinStart
		w.NextOpen = &next
	case !now.After(w.CheckinEnd):
		w.Mode = ModeActive
	case now.Before(w.CheckoutStart):
		w.Mode = ModeSleep
	case !now.After(w.CheckoutEnd):
		w.Mode = ModeEnd
	default:
		w.Mode = ModePost
	}
	return w
}

// GradeAt classifies a check-in at now for a session starting at start.
// Arrivals before start, inside the open-before window, count as on time.
func GradeAt(now, start time.Time, cfg Config) Grade {
	delta := now.Sub(start)
	switch {
	case delta < cfg.OnTimeFor:
		return GradeOnTime
	case delta < cfg.LateUntil:
		return GradeLate
	default:
		return GradeExpired
	}
}

// CheckoutAdmission grades a check-out at now against the session end.
func CheckoutAdmission(now, end time.Time, cfg Config) Admission {
	switch {
	case now.Before(end.Add(-cfg.CheckoutBand)):
		return AdmissionEarly
	case now.After(end.Add(cfg.CheckoutBand)):
		return AdmissionLate
	default:
		return AdmissionOK
	}
}

// PhaseAt picks the phase a monitor display should show at now.
func PhaseAt(now, end time.Time, cfg Config) Phase {
	if now.Before(end.Add(-cfg.CheckoutOpenBeforeEnd)) {
		return PhaseStart
	}
	return PhaseEnd
}
