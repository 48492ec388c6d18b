package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-outpass-api/internal/models"
)

// detailColumns joins the request with student and approver display fields.
const detailColumns = `o.id, o.student_id, o.reason, o.type, o.status,
       o.approved_by_teacher_id, o.approved_by_hod_id, o.exit_marked_by_id,
       o.outpass_date, o.valid_until, o.otp, o.otp_expires_at, o.qr_code,
       o.created_at, o.updated_at,
       su.full_name AS student_name, su.email AS student_email,
       sp.roll_no, sp.department, sp.branch,
       tu.full_name AS teacher_name, tu.email AS teacher_email,
       hu.full_name AS hod_name, hu.email AS hod_email`

const detailJoins = ` FROM outpass_requests o
       JOIN student_profiles sp ON sp.id = o.student_id
       JOIN users su ON su.id = sp.user_id
       JOIN users tu ON tu.id = o.approved_by_teacher_id
       JOIN users hu ON hu.id = o.approved_by_hod_id`

// OutpassRepository persists gate-pass requests. Every transition is a
// conditional update keyed on id, current status and the bound approver, so a
// losing writer matches zero rows and surfaces sql.ErrNoRows.
type OutpassRepository struct {
	db *sqlx.DB
}

// NewOutpassRepository constructs the repository.
func NewOutpassRepository(db *sqlx.DB) *OutpassRepository {
	return &OutpassRepository{db: db}
}

// Create inserts a new PENDING request.
func (r *OutpassRepository) Create(ctx context.Context, outpass *models.OutpassRequest) error {
	if outpass.ID == "" {
		outpass.ID = uuid.NewString()
	}
	if outpass.Status == "" {
		outpass.Status = models.OutpassStatusPending
	}
	now := time.Now().UTC()
	if outpass.CreatedAt.IsZero() {
		outpass.CreatedAt = now
	}
	outpass.UpdatedAt = outpass.CreatedAt
	const query = `INSERT INTO outpass_requests
	(id, student_id, reason, type, status, approved_by_teacher_id, approved_by_hod_id,
	 outpass_date, valid_until, created_at, updated_at)
	VALUES (:id, :student_id, :reason, :type, :status, :approved_by_teacher_id, :approved_by_hod_id,
	 :outpass_date, :valid_until, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, outpass); err != nil {
		return fmt.Errorf("create outpass: %w", err)
	}
	return nil
}

// GetByID fetches a bare request row.
func (r *OutpassRepository) GetByID(ctx context.Context, id string) (*models.OutpassRequest, error) {
	const query = `SELECT id, student_id, reason, type, status, approved_by_teacher_id,
	       approved_by_hod_id, exit_marked_by_id, outpass_date, valid_until, otp,
	       otp_expires_at, qr_code, created_at, updated_at
	FROM outpass_requests WHERE id = $1`
	var outpass models.OutpassRequest
	if err := r.db.GetContext(ctx, &outpass, query, id); err != nil {
		return nil, err
	}
	return &outpass, nil
}

// GetDetail fetches a request with display identities joined in.
func (r *OutpassRepository) GetDetail(ctx context.Context, id string) (*models.OutpassDetail, error) {
	query := "SELECT " + detailColumns + detailJoins + " WHERE o.id = $1"
	var detail models.OutpassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetDetailForStudent fetches a request scoped to the owning student profile.
func (r *OutpassRepository) GetDetailForStudent(ctx context.Context, id, studentID string) (*models.OutpassDetail, error) {
	query := "SELECT " + detailColumns + detailJoins + " WHERE o.id = $1 AND o.student_id = $2"
	var detail models.OutpassDetail
	if err := r.db.GetContext(ctx, &detail, query, id, studentID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindApprovedByOTP resolves the unique APPROVED request holding the code.
func (r *OutpassRepository) FindApprovedByOTP(ctx context.Context, otp string) (*models.OutpassDetail, error) {
	query := "SELECT " + detailColumns + detailJoins + " WHERE o.otp = $1 AND o.status = $2"
	var detail models.OutpassDetail
	if err := r.db.GetContext(ctx, &detail, query, otp, models.OutpassStatusApproved); err != nil {
		return nil, err
	}
	return &detail, nil
}

// OTPInUse reports whether another APPROVED request currently holds the code.
func (r *OutpassRepository) OTPInUse(ctx context.Context, otp string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM outpass_requests WHERE otp = $1 AND status = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, otp, models.OutpassStatusApproved); err != nil {
		return false, fmt.Errorf("check otp in use: %w", err)
	}
	return exists, nil
}

// TeacherDecide flips PENDING to MOVED or REJECTED when the actor is the bound
// class teacher.
func (r *OutpassRepository) TeacherDecide(ctx context.Context, id, teacherID string, to models.OutpassStatus) error {
	const query = `UPDATE outpass_requests
	SET status = $1, updated_at = $2
	WHERE id = $3 AND approved_by_teacher_id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, teacherID, models.OutpassStatusPending)
	if err != nil {
		return fmt.Errorf("teacher decide outpass: %w", err)
	}
	return requireRow(result)
}

// HodApproveParams carries the artifacts generated alongside HOD approval.
type HodApproveParams struct {
	ID           string
	HodID        string
	OTP          string
	OTPExpiresAt time.Time
	QRCode       string
}

// HodApprove flips MOVED to APPROVED and persists OTP, expiry and QR token in
// the same statement.
func (r *OutpassRepository) HodApprove(ctx context.Context, params HodApproveParams) error {
	const query = `UPDATE outpass_requests
	SET status = $1, otp = $2, otp_expires_at = $3, qr_code = $4, updated_at = $5
	WHERE id = $6 AND approved_by_hod_id = $7 AND status = $8`
	result, err := r.db.ExecContext(ctx, query,
		models.OutpassStatusApproved, params.OTP, params.OTPExpiresAt, params.QRCode,
		time.Now().UTC(), params.ID, params.HodID, models.OutpassStatusMoved)
	if err != nil {
		return fmt.Errorf("hod approve outpass: %w", err)
	}
	return requireRow(result)
}

// HodReject flips MOVED to REJECTED when the actor is the bound HOD.
func (r *OutpassRepository) HodReject(ctx context.Context, id, hodID string) error {
	const query = `UPDATE outpass_requests
	SET status = $1, updated_at = $2
	WHERE id = $3 AND approved_by_hod_id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query,
		models.OutpassStatusRejected, time.Now().UTC(), id, hodID, models.OutpassStatusMoved)
	if err != nil {
		return fmt.Errorf("hod reject outpass: %w", err)
	}
	return requireRow(result)
}

// RegenerateOTP replaces the code, expiry and QR token on a still-APPROVED
// request.
func (r *OutpassRepository) RegenerateOTP(ctx context.Context, params HodApproveParams) error {
	const query = `UPDATE outpass_requests
	SET otp = $1, otp_expires_at = $2, qr_code = $3, updated_at = $4
	WHERE id = $5 AND approved_by_hod_id = $6 AND status = $7`
	result, err := r.db.ExecContext(ctx, query,
		params.OTP, params.OTPExpiresAt, params.QRCode,
		time.Now().UTC(), params.ID, params.HodID, models.OutpassStatusApproved)
	if err != nil {
		return fmt.Errorf("regenerate otp: %w", err)
	}
	return requireRow(result)
}

// MarkExited flips APPROVED to EXITED binding the verifying actor.
func (r *OutpassRepository) MarkExited(ctx context.Context, id, actorID string) error {
	const query = `UPDATE outpass_requests
	SET status = $1, exit_marked_by_id = $2, updated_at = $3
	WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query,
		models.OutpassStatusExited, actorID, time.Now().UTC(), id, models.OutpassStatusApproved)
	if err != nil {
		return fmt.Errorf("mark outpass exited: %w", err)
	}
	return requireRow(result)
}

// MarkExpired force-expires a single APPROVED request. Used by the verifier
// when it catches a stale row between sweeps.
func (r *OutpassRepository) MarkExpired(ctx context.Context, id string) error {
	const query = `UPDATE outpass_requests
	SET status = $1, updated_at = $2
	WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query,
		models.OutpassStatusExpired, time.Now().UTC(), id, models.OutpassStatusApproved)
	if err != nil {
		return fmt.Errorf("mark outpass expired: %w", err)
	}
	return requireRow(result)
}

// ExpireOverdueOTP expires APPROVED requests whose OTP window has passed.
func (r *OutpassRepository) ExpireOverdueOTP(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE outpass_requests
	SET status = $1, updated_at = $2
	WHERE status = $3 AND otp_expires_at < $4`
	result, err := r.db.ExecContext(ctx, query,
		models.OutpassStatusExpired, now, models.OutpassStatusApproved, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue otp: %w", err)
	}
	return result.RowsAffected()
}

// ExpireOverdueDate expires APPROVED or EXITED requests past their day window.
func (r *OutpassRepository) ExpireOverdueDate(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE outpass_requests
	SET status = $1, updated_at = $2
	WHERE status IN ($3, $4) AND valid_until < $5`
	result, err := r.db.ExecContext(ctx, query,
		models.OutpassStatusExpired, now, models.OutpassStatusApproved, models.OutpassStatusExited, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue date: %w", err)
	}
	return result.RowsAffected()
}

// ListByStudent returns the student's own requests, newest first.
func (r *OutpassRepository) ListByStudent(ctx context.Context, studentID string) ([]models.OutpassDetail, error) {
	query := "SELECT " + detailColumns + detailJoins + " WHERE o.student_id = $1 ORDER BY o.created_at DESC"
	return r.selectDetails(ctx, query, studentID)
}

// ListByTeacher returns requests bound to the given class teacher.
func (r *OutpassRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.OutpassDetail, error) {
	query := "SELECT " + detailColumns + detailJoins + " WHERE o.approved_by_teacher_id = $1 ORDER BY o.created_at DESC"
	return r.selectDetails(ctx, query, teacherID)
}

// ListByHod returns requests bound to the given HOD.
func (r *OutpassRepository) ListByHod(ctx context.Context, hodID string) ([]models.OutpassDetail, error) {
	query := "SELECT " + detailColumns + detailJoins + " WHERE o.approved_by_hod_id = $1 ORDER BY o.created_at DESC"
	return r.selectDetails(ctx, query, hodID)
}

// ListExpired returns every EXPIRED request, newest first.
func (r *OutpassRepository) ListExpired(ctx context.Context) ([]models.OutpassDetail, error) {
	query := "SELECT " + detailColumns + detailJoins + " WHERE o.status = $1 ORDER BY o.created_at DESC"
	return r.selectDetails(ctx, query, models.OutpassStatusExpired)
}

func (r *OutpassRepository) selectDetails(ctx context.Context, query string, args ...interface{}) ([]models.OutpassDetail, error) {
	var details []models.OutpassDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, fmt.Errorf("list outpasses: %w", err)
	}
	return details, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
