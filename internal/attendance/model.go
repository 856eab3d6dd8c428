package attendance

import "time"

// Status is the persisted attendance status. The four values are shared with
// the presentation layer and reports; do not add more.
type Status string

const (
	StatusUnconfirmed Status = "neconfirmat"
	StatusPresent     Status = "prezent"
	StatusLate        Status = "întârziat"
	StatusLeft        Status = "plecat"
)

// Action is the kind of attempt recorded in the ledger.
type Action string

const (
	ActionCheckIn  Action = "checkin"
	ActionCheckOut Action = "checkout"
)

// Reason is the outcome code stored with every attempt.
type Reason string

const (
	ReasonOK              Reason = "ok"
	ReasonRateLimit       Reason = "rate-limit"
	ReasonDeviceOtherCode Reason = "device-used-for-other-code"
	ReasonDuplicateCode   Reason = "duplicate-code"
	ReasonInvalidCode     Reason = "invalid-code"
	ReasonNotOpen         Reason = "not-open"
	ReasonWindowExpired   Reason = "window-expired"
	ReasonCheckoutEarly   Reason = "checkout-early"
	ReasonCheckoutLate    Reason = "checkout-late"
	ReasonNoCheckIn       Reason = "no-checkin"
	ReasonAlreadyLeft     Reason = "already-left"
)

// Session is one class meeting.
type Session struct {
	ID                 string     `json:"id"`
	ClassID            string     `json:"class_id"`
	StartsAt           time.Time  `json:"starts_at"`
	EndsAt             time.Time  `json:"ends_at"`
	FrozenPresentCount *int       `json:"frozen_present_count,omitempty"`
	FrozenAt           *time.Time `json:"frozen_at,omitempty"`
}

// Record is the attendance row of one code in one session.
type Record struct {
	ID            string     `json:"-"`
	SessionID     string     `json:"session_id"`
	ClassID       string     `json:"class_id"`
	CodeHash      string     `json:"-"`
	Status        Status     `json:"status"`
	CheckinStatus *Status    `json:"checkin_status,omitempty"`
	CheckInAt     *time.Time `json:"check_in_at,omitempty"`
	CheckOutAt    *time.Time `json:"check_out_at,omitempty"`
}

// Attempt is an append-only ledger entry.
type Attempt struct {
	ID        string
	SessionID string
	ClassID   string
	Action    Action
	DeviceID  string
	CodeHash  *string
	Success   bool
	Reason    Reason
	IP        string
	UserAgent string
	At        time.Time
}
