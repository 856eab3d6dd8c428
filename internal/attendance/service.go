package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/CostinMirescu/sala-alternativa/internal/window"
)

// SessionGenerator creates the sessions scheduled for a day.
type SessionGenerator interface {
	Ensure(ctx context.Context, day time.Time) (int, error)
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Window        window.Config
	Salt          string
	Location      *time.Location
	Now           func() time.Time
	MaxAttempts   int
	AttemptWindow time.Duration
	Generator     SessionGenerator
}

// Service runs the attendance state machine.
type Service struct {
	repo      *Repository
	ledger    *Ledger
	guard     *Guard
	cfg       window.Config
	salt      string
	loc       *time.Location
	now       func() time.Time
	generator SessionGenerator
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, opts Options) *Service {
	if opts.Window == (window.Config{}) {
		opts.Window = window.DefaultConfig()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ledger := NewLedger(repo)
	return &Service{
		repo:      repo,
		ledger:    ledger,
		guard:     NewGuard(ledger, repo, opts.MaxAttempts, opts.AttemptWindow),
		cfg:       opts.Window,
		salt:      opts.Salt,
		loc:       opts.Location,
		now:       opts.Now,
		generator: opts.Generator,
	}
}

// Window returns the offsets in use.
func (s *Service) Window() window.Config { return s.cfg }

// Now is the single clock read for a request.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// CheckInRequest is a check-in attempt. SessionID must come from a verified token.
type CheckInRequest struct {
	SessionID string
	Code      string
	DeviceID  string
	IP        string
	UserAgent string
}

// CheckInResult is the status assigned on a successful check-in.
type CheckInResult struct {
	SessionID string    `json:"session_id"`
	Status    Status    `json:"status"`
	At        time.Time `json:"at"`
}

// CheckIn records a participant's arrival. Denials are logged to the ledger
// and returned as *DenialError.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (CheckInResult, error) {
	if err := validate(req.Code, req.DeviceID); err != nil {
		return CheckInResult{}, err
	}
	sess, err := s.session(ctx, req.SessionID)
	if err != nil {
		return CheckInResult{}, err
	}
	now := s.Now()
	attempt := Attempt{
		SessionID: sess.ID,
		ClassID:   sess.ClassID,
		Action:    ActionCheckIn,
		DeviceID:  req.DeviceID,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		At:        now,
	}

	w := window.Compute(now, sess.StartsAt, sess.EndsAt, s.cfg)
	if w.Mode == window.ModePre {
		return CheckInResult{}, s.deny(ctx, attempt, ReasonNotOpen)
	}
	grade := window.GradeAt(now, sess.StartsAt, s.cfg)
	if w.Mode != window.ModeActive || grade == window.GradeExpired {
		return CheckInResult{}, s.deny(ctx, attempt, ReasonWindowExpired)
	}

	hash := HashCode(s.salt, sess.ClassID, req.Code)
	verdict, err := s.guard.Check(ctx, Candidate{
		SessionID: sess.ID,
		ClassID:   sess.ClassID,
		DeviceID:  req.DeviceID,
		CodeHash:  hash,
		At:        now,
	})
	if err != nil {
		return CheckInResult{}, fmt.Errorf("anti-fraud check: %w", err)
	}
	if verdict.Resolved {
		attempt.CodeHash = &hash
	}
	if !verdict.Admitted() {
		return CheckInResult{}, s.deny(ctx, attempt, verdict.Reason)
	}

	status := StatusPresent
	if grade == window.GradeLate {
		status = StatusLate
	}
	err = s.repo.InsertAttendance(ctx, Record{
		SessionID:     sess.ID,
		ClassID:       sess.ClassID,
		CodeHash:      hash,
		Status:        status,
		CheckinStatus: &status,
		CheckInAt:     &now,
	})
	if errors.Is(err, errConflict) {
		return CheckInResult{}, s.deny(ctx, attempt, ReasonDuplicateCode)
	}
	if err != nil {
		return CheckInResult{}, fmt.Errorf("insert attendance: %w", err)
	}

	// device binding reads this row, so a failed append fails the request
	attempt.Success = true
	attempt.Reason = ReasonOK
	if err := s.ledger.Append(ctx, attempt); err != nil {
		return CheckInResult{}, fmt.Errorf("ledger append: %w", err)
	}
	return CheckInResult{SessionID: sess.ID, Status: status, At: now}, nil
}

// CheckOutRequest is a check-out attempt. SessionID must come from a verified token.
type CheckOutRequest struct {
	SessionID string
	Code      string
	DeviceID  string
	IP        string
	UserAgent string
}

// CheckOutResult keeps the check-in classification next to the final status.
type CheckOutResult struct {
	SessionID     string    `json:"session_id"`
	Status        Status    `json:"status"`
	CheckinStatus *Status   `json:"checkin_status,omitempty"`
	At            time.Time `json:"at"`
}

// CheckOut records a participant's departure. A participant can only leave
// once and only after checking in.
func (s *Service) CheckOut(ctx context.Context, req CheckOutRequest) (CheckOutResult, error) {
	if err := validate(req.Code, req.DeviceID); err != nil {
		return CheckOutResult{}, err
	}
	sess, err := s.session(ctx, req.SessionID)
	if err != nil {
		return CheckOutResult{}, err
	}
	now := s.Now()
	attempt := Attempt{
		SessionID: sess.ID,
		ClassID:   sess.ClassID,
		Action:    ActionCheckOut,
		DeviceID:  req.DeviceID,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		At:        now,
	}

	switch window.CheckoutAdmission(now, sess.EndsAt, s.cfg) {
	case window.AdmissionEarly:
		return CheckOutResult{}, s.deny(ctx, attempt, ReasonCheckoutEarly)
	case window.AdmissionLate:
		return CheckOutResult{}, s.deny(ctx, attempt, ReasonCheckoutLate)
	}
	if w := window.Compute(now, sess.StartsAt, sess.EndsAt, s.cfg); w.Mode != window.ModeEnd {
		return CheckOutResult{}, s.deny(ctx, attempt, ReasonNotOpen)
	}

	hash := HashCode(s.salt, sess.ClassID, req.Code)
	rec, err := s.repo.GetAttendance(ctx, sess.ID, hash)
	if err != nil {
		return CheckOutResult{}, fmt.Errorf("load attendance: %w", err)
	}
	if rec == nil || rec.CheckInAt == nil {
		return CheckOutResult{}, s.deny(ctx, attempt, ReasonNoCheckIn)
	}
	attempt.CodeHash = &hash
	if rec.CheckOutAt != nil {
		return CheckOutResult{}, s.deny(ctx, attempt, ReasonAlreadyLeft)
	}

	changed, err := s.repo.MarkLeft(ctx, sess.ID, hash, now)
	if err != nil {
		return CheckOutResult{}, fmt.Errorf("mark left: %w", err)
	}
	if !changed {
		return CheckOutResult{}, s.deny(ctx, attempt, ReasonAlreadyLeft)
	}

	attempt.Success = true
	attempt.Reason = ReasonOK
	if err := s.ledger.Append(ctx, attempt); err != nil {
		return CheckOutResult{}, fmt.Errorf("ledger append: %w", err)
	}
	return CheckOutResult{SessionID: sess.ID, Status: StatusLeft, CheckinStatus: rec.CheckinStatus, At: now}, nil
}

// Counts is the number of participants per final status.
type Counts struct {
	Present int `json:"prezent"`
	Late    int `json:"intarziat"`
	Left    int `json:"plecat"`
}

// SessionStatus is what monitor displays and clients poll.
type SessionStatus struct {
	Session      Session       `json:"session"`
	Window       window.Window `json:"window"`
	Phase        window.Phase  `json:"phase"`
	Counts       Counts        `json:"counts"`
	PresentCount int           `json:"present_count"`
	Frozen       bool          `json:"frozen"`
	Now          time.Time     `json:"now"`
}

// SessionStatus computes the window and counts of a session. The first call
// after the check-in window closes freezes the present count.
func (s *Service) SessionStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return SessionStatus{}, err
	}
	return s.status(ctx, sess, s.Now())
}

// CurrentSession returns the status of the class session running now or,
// failing that, the next one today. Today's sessions are generated first when
// auto-generation is enabled.
func (s *Service) CurrentSession(ctx context.Context, classID string) (SessionStatus, error) {
	if classID == "" {
		return SessionStatus{}, &ValidationError{Field: "class_id", Message: "required"}
	}
	now := s.Now()
	if s.generator != nil {
		if _, err := s.generator.Ensure(ctx, now); err != nil {
			log.Printf("session auto-generation failed: %v", err)
		}
	}
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	sess, err := s.repo.NextSession(ctx, classID, now.Add(-s.cfg.CheckoutGraceAfterEnd), endOfDay)
	if err != nil {
		return SessionStatus{}, fmt.Errorf("find session: %w", err)
	}
	if sess == nil {
		return SessionStatus{}, ErrSessionNotFound
	}
	return s.status(ctx, s.localize(*sess), now)
}

func (s *Service) status(ctx context.Context, sess Session, now time.Time) (SessionStatus, error) {
	byStatus, err := s.repo.CountByStatus(ctx, sess.ID)
	if err != nil {
		return SessionStatus{}, fmt.Errorf("count attendance: %w", err)
	}
	checkedIn, err := s.repo.CountCheckedIn(ctx, sess.ID)
	if err != nil {
		return SessionStatus{}, fmt.Errorf("count check-ins: %w", err)
	}
	out := SessionStatus{
		Session: sess,
		Window:  window.Compute(now, sess.StartsAt, sess.EndsAt, s.cfg),
		Phase:   window.PhaseAt(now, sess.EndsAt, s.cfg),
		Counts: Counts{
			Present: byStatus[StatusPresent],
			Late:    byStatus[StatusLate],
			Left:    byStatus[StatusLeft],
		},
		Now: now,
	}
	// everyone who checked in, including those who have since left
	out.PresentCount = checkedIn

	if !now.After(out.Window.CheckinEnd) {
		return out, nil
	}
	if sess.FrozenPresentCount == nil {
		won, err := s.repo.FreezePresentCount(ctx, sess.ID, out.PresentCount, now)
		if err != nil {
			return SessionStatus{}, fmt.Errorf("freeze present count: %w", err)
		}
		if won {
			n, at := out.PresentCount, now
			sess.FrozenPresentCount, sess.FrozenAt = &n, &at
		} else {
			reloaded, err := s.session(ctx, sess.ID)
			if err != nil {
				return SessionStatus{}, err
			}
			sess = reloaded
		}
	}
	if sess.FrozenPresentCount != nil {
		out.PresentCount = *sess.FrozenPresentCount
		out.Frozen = true
	}
	out.Session = sess
	return out, nil
}

// Participant is the polled status of one code in a session.
type Participant struct {
	SessionID     string     `json:"session_id"`
	Status        Status     `json:"status"`
	CheckinStatus *Status    `json:"checkin_status,omitempty"`
	CheckInAt     *time.Time `json:"check_in_at,omitempty"`
	CheckOutAt    *time.Time `json:"check_out_at,omitempty"`
}

// CodeStatus returns a participant's status; codes without a row are neconfirmat.
func (s *Service) CodeStatus(ctx context.Context, sessionID, code string) (Participant, error) {
	if !ValidCode(code) {
		return Participant{}, &ValidationError{Field: "code", Message: "must be exactly 4 digits"}
	}
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return Participant{}, err
	}
	rec, err := s.repo.GetAttendance(ctx, sess.ID, HashCode(s.salt, sess.ClassID, code))
	if err != nil {
		return Participant{}, fmt.Errorf("load attendance: %w", err)
	}
	if rec == nil {
		return Participant{SessionID: sess.ID, Status: StatusUnconfirmed}, nil
	}
	p := Participant{
		SessionID:     sess.ID,
		Status:        rec.Status,
		CheckinStatus: rec.CheckinStatus,
		CheckInAt:     s.localTime(rec.CheckInAt),
		CheckOutAt:    s.localTime(rec.CheckOutAt),
	}
	return p, nil
}

// Session loads a session in the service location.
func (s *Service) Session(ctx context.Context, id string) (Session, error) {
	return s.session(ctx, id)
}

func (s *Service) session(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrSessionNotFound
	}
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return Session{}, ErrSessionNotFound
	}
	return s.localize(*sess), nil
}

func (s *Service) localize(sess Session) Session {
	sess.StartsAt = sess.StartsAt.In(s.loc)
	sess.EndsAt = sess.EndsAt.In(s.loc)
	sess.FrozenAt = s.localTime(sess.FrozenAt)
	return sess
}

func (s *Service) localTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	l := t.In(s.loc)
	return &l
}

func (s *Service) deny(ctx context.Context, a Attempt, reason Reason) error {
	a.Success = false
	a.Reason = reason
	if err := s.ledger.Append(ctx, a); err != nil {
		return fmt.Errorf("ledger append: %w", err)
	}
	return &DenialError{Action: a.Action, Reason: reason}
}
