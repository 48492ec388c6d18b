package models

import "time"

// OutpassStatus is the state-machine variable for a gate pass.
//
// PENDING -> MOVED -> APPROVED -> EXITED, with REJECTED reachable from
// PENDING/MOVED and EXPIRED reachable from APPROVED (OTP or date) or
// EXITED (date only). REJECTED and EXPIRED are terminal.
type OutpassStatus string

const (
	OutpassStatusPending  OutpassStatus = "PENDING"
	OutpassStatusMoved    OutpassStatus = "MOVED"
	OutpassStatusApproved OutpassStatus = "APPROVED"
	OutpassStatusRejected OutpassStatus = "REJECTED"
	OutpassStatusExited   OutpassStatus = "EXITED"
	OutpassStatusExpired  OutpassStatus = "EXPIRED"
)

// OutpassType enumerates supported leave categories.
type OutpassType string

const (
	OutpassTypeCasual    OutpassType = "CASUAL"
	OutpassTypeEmergency OutpassType = "EMERGENCY"
)

// OutpassRequest is the central lifecycle entity. The approver ids are frozen
// at creation time; OTP, its expiry and the QR token exist only from APPROVED
// onwards and always together.
type OutpassRequest struct {
	ID                  string        `db:"id" json:"id"`
	StudentID           string        `db:"student_id" json:"student_id"`
	Reason              string        `db:"reason" json:"reason"`
	Type                OutpassType   `db:"type" json:"type"`
	Status              OutpassStatus `db:"status" json:"status"`
	ApprovedByTeacherID string        `db:"approved_by_teacher_id" json:"approved_by_teacher_id"`
	ApprovedByHodID     string        `db:"approved_by_hod_id" json:"approved_by_hod_id"`
	ExitMarkedByID      *string       `db:"exit_marked_by_id" json:"exit_marked_by_id,omitempty"`
	OutpassDate         time.Time     `db:"outpass_date" json:"outpass_date"`
	ValidUntil          time.Time     `db:"valid_until" json:"valid_until"`
	OTP                 *string       `db:"otp" json:"otp,omitempty"`
	OTPExpiresAt        *time.Time    `db:"otp_expires_at" json:"otp_expires_at,omitempty"`
	QRCode              *string       `db:"qr_code" json:"qr_code,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// OutpassDetail joins the request with display identities for listings.
type OutpassDetail struct {
	OutpassRequest
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	RollNo       string `db:"roll_no" json:"roll_no"`
	Department   string `db:"department" json:"department"`
	Branch       string `db:"branch" json:"branch"`
	TeacherName  string `db:"teacher_name" json:"teacher_name"`
	TeacherEmail string `db:"teacher_email" json:"teacher_email"`
	HodName      string `db:"hod_name" json:"hod_name"`
	HodEmail     string `db:"hod_email" json:"hod_email"`
}

// SweepResult reports how many records each expiry rule transitioned.
type SweepResult struct {
	ExpiredByOTP  int64 `json:"expired_by_otp"`
	ExpiredByDate int64 `json:"expired_by_date"`
}
