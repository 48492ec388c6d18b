package models

import "time"

// UserRole is the closed set of roles recognised by the workflow.
type UserRole string

const (
	RoleStudent  UserRole = "STUDENT"
	RoleTeacher  UserRole = "TEACHER"
	RoleHod      UserRole = "HOD"
	RoleSecurity UserRole = "SECURITY"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	Role         UserRole  `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StudentProfile binds a student to their roll number and fixed approvers.
// ClassTeacherID and HodID are user ids; they are copied onto each outpass
// at request time so later reassignment never redirects an in-flight pass.
type StudentProfile struct {
	ID             string  `db:"id" json:"id"`
	UserID         string  `db:"user_id" json:"user_id"`
	RollNo         string  `db:"roll_no" json:"roll_no"`
	Department     string  `db:"department" json:"department"`
	Branch         string  `db:"branch" json:"branch"`
	ClassTeacherID *string `db:"class_teacher_id" json:"class_teacher_id,omitempty"`
	HodID          *string `db:"hod_id" json:"hod_id,omitempty"`
}

// StudentDetail joins the profile with user display fields.
type StudentDetail struct {
	StudentProfile
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// TeacherProfile describes a class teacher.
type TeacherProfile struct {
	ID         string `db:"id" json:"id"`
	UserID     string `db:"user_id" json:"user_id"`
	Department string `db:"department" json:"department"`
}

// HodProfile describes a head of department.
type HodProfile struct {
	ID         string `db:"id" json:"id"`
	UserID     string `db:"user_id" json:"user_id"`
	Department string `db:"department" json:"department"`
}

// UserInfo is the public identity shape embedded in responses.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}
