package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-outpass-api/internal/models"
)

// UserRepository persists users and their role profiles.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail fetches a user by e-mail.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, created_at, updated_at
	FROM users WHERE email = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID fetches a user by id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, created_at, updated_at
	FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// IsEmailAllowed checks the student registration allow-list.
func (r *UserRepository) IsEmailAllowed(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM allowed_student_emails WHERE email = $1)`
	var allowed bool
	if err := r.db.GetContext(ctx, &allowed, query, email); err != nil {
		return false, fmt.Errorf("check allowed email: %w", err)
	}
	return allowed, nil
}

// CreateStudent inserts the user row and its student profile in one
// transaction. The profile starts without approver assignments.
func (r *UserRepository) CreateStudent(ctx context.Context, user *models.User, profile *models.StudentProfile) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	profile.UserID = user.ID
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create student: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const userQuery = `INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
	VALUES (:id, :email, :password_hash, :full_name, :role, :active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, userQuery, user); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	const profileQuery = `INSERT INTO student_profiles (id, user_id, roll_no, department, branch, class_teacher_id, hod_id)
	VALUES (:id, :user_id, :roll_no, :department, :branch, :class_teacher_id, :hod_id)`
	if _, err := tx.NamedExecContext(ctx, profileQuery, profile); err != nil {
		return fmt.Errorf("insert student profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create student: %w", err)
	}
	return nil
}

// GetStudentDetailByUserID resolves the profile plus display fields for the
// authenticated student.
func (r *UserRepository) GetStudentDetailByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	const query = `SELECT sp.id, sp.user_id, sp.roll_no, sp.department, sp.branch,
	       sp.class_teacher_id, sp.hod_id, u.full_name, u.email
	FROM student_profiles sp
	JOIN users u ON u.id = sp.user_id
	WHERE sp.user_id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, userID); err != nil {
		return nil, err
	}
	return &detail, nil
}
