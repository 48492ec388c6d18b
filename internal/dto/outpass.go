package dto

import (
	"time"

	"github.com/noah-isme/campus-outpass-api/internal/models"
)

// CreateOutpassRequest is the student-facing request payload.
type CreateOutpassRequest struct {
	Reason string             `json:"reason" validate:"required"`
	Type   models.OutpassType `json:"type" validate:"required,oneof=CASUAL EMERGENCY"`
}

// VerifyOTPRequest carries the claimed code presented at the gate.
type VerifyOTPRequest struct {
	OTP string `json:"otp" validate:"required,len=6,numeric"`
}

// PersonInfo is the display identity shown on confirmation screens.
type PersonInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// StudentInfo extends PersonInfo with campus identifiers.
type StudentInfo struct {
	Name       string `json:"name"`
	RollNo     string `json:"roll_no"`
	Department string `json:"department"`
	Branch     string `json:"branch"`
}

// VerificationResult is returned to the gate operator after a successful scan.
type VerificationResult struct {
	OutpassID         string      `json:"outpass_id"`
	Student           StudentInfo `json:"student"`
	ApprovedByTeacher PersonInfo  `json:"approved_by_teacher"`
	ApprovedByHod     PersonInfo  `json:"approved_by_hod"`
	OTPExpiresAt      time.Time   `json:"otp_expires_at"`
	ValidUntil        time.Time   `json:"valid_until"`
	ExitedAt          time.Time   `json:"exited_at"`
}

// ApprovalResult is the HOD approve response: the generated code and token.
type ApprovalResult struct {
	Outpass      *models.OutpassDetail `json:"outpass"`
	OTP          string                `json:"otp"`
	OTPExpiresAt time.Time             `json:"otp_expires_at"`
	QRCode       string                `json:"qr_code"`
}

// OutpassView augments a record with the human-readable OTP countdown.
type OutpassView struct {
	models.OutpassDetail
	OTPTimeRemaining *string `json:"otp_time_remaining,omitempty"`
}

// QRPayload is the JSON document embedded in the scannable token.
type QRPayload struct {
	OutpassID         string `json:"outpassId"`
	OTP               string `json:"otp"`
	StudentName       string `json:"studentName"`
	RollNo            string `json:"rollNo"`
	Department        string `json:"department"`
	Branch            string `json:"branch"`
	ApprovedByTeacher string `json:"approvedByTeacher"`
	ApprovedByHod     string `json:"approvedByHod"`
	OTPExpiresAt      string `json:"otpExpiresAt"`
}
