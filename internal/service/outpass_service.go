package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	"github.com/noah-isme/campus-outpass-api/internal/repository"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
)

// Decision is an approver's verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

const (
	otpMin         = 100000
	otpSpan        = 900000
	maxOTPAttempts = 5

	qrDataURLPrefix = "data:image/png;base64,"
)

type outpassStore interface {
	Create(ctx context.Context, outpass *models.OutpassRequest) error
	GetDetail(ctx context.Context, id string) (*models.OutpassDetail, error)
	GetDetailForStudent(ctx context.Context, id, studentID string) (*models.OutpassDetail, error)
	FindApprovedByOTP(ctx context.Context, otp string) (*models.OutpassDetail, error)
	OTPInUse(ctx context.Context, otp string) (bool, error)
	TeacherDecide(ctx context.Context, id, teacherID string, to models.OutpassStatus) error
	HodApprove(ctx context.Context, params repository.HodApproveParams) error
	HodReject(ctx context.Context, id, hodID string) error
	RegenerateOTP(ctx context.Context, params repository.HodApproveParams) error
	MarkExited(ctx context.Context, id, actorID string) error
	MarkExpired(ctx context.Context, id string) error
	ExpireOverdueOTP(ctx context.Context, now time.Time) (int64, error)
	ExpireOverdueDate(ctx context.Context, now time.Time) (int64, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.OutpassDetail, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.OutpassDetail, error)
	ListByHod(ctx context.Context, hodID string) ([]models.OutpassDetail, error)
	ListExpired(ctx context.Context) ([]models.OutpassDetail, error)
}

type studentDirectory interface {
	GetStudentDetailByUserID(ctx context.Context, userID string) (*models.StudentDetail, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// OutpassConfig tunes the lifecycle engine.
type OutpassConfig struct {
	OTPTTL        time.Duration
	SweepInterval time.Duration
	ListCacheTTL  time.Duration
}

// OutpassService is the gate-pass lifecycle engine: it owns the status state
// machine, the time windows, OTP issuance and the expiry sweeper. All writes
// go through conditional updates in the store, so the service never resolves
// races itself.
type OutpassService struct {
	repo      outpassStore
	students  studentDirectory
	audit     auditLogger
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	validator *validator.Validate
	cfg       OutpassConfig

	now func() time.Time
}

// OutpassServiceOption configures the service.
type OutpassServiceOption func(*OutpassService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) OutpassServiceOption {
	return func(s *OutpassService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCache attaches a list-projection cache.
func WithCache(cache *CacheService) OutpassServiceOption {
	return func(s *OutpassService) {
		s.cache = cache
	}
}

// WithMetrics attaches transition and sweep instrumentation.
func WithMetrics(metrics *MetricsService) OutpassServiceOption {
	return func(s *OutpassService) {
		s.metrics = metrics
	}
}

// NewOutpassService constructs the engine.
func NewOutpassService(repo outpassStore, students studentDirectory, audit auditLogger, logger *zap.Logger, cfg OutpassConfig, opts ...OutpassServiceOption) *OutpassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Minute
	}
	svc := &OutpassService{
		repo:      repo,
		students:  students,
		audit:     audit,
		logger:    logger,
		validator: validator.New(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateRequest files a new PENDING request for today, freezing the student's
// currently assigned teacher and HOD as the only actors allowed to decide it.
func (s *OutpassService) CreateRequest(ctx context.Context, studentUserID string, req dto.CreateOutpassRequest) (*models.OutpassDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid outpass payload")
	}

	student, err := s.students.GetStudentDetailByUserID(ctx, studentUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	if student.ClassTeacherID == nil || student.HodID == nil {
		return nil, appErrors.ErrNoApproverBound
	}

	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24*time.Hour - time.Millisecond)

	outpass := &models.OutpassRequest{
		StudentID:           student.StudentProfile.ID,
		Reason:              req.Reason,
		Type:                req.Type,
		Status:              models.OutpassStatusPending,
		ApprovedByTeacherID: *student.ClassTeacherID,
		ApprovedByHodID:     *student.HodID,
		OutpassDate:         dayStart,
		ValidUntil:          dayEnd,
	}
	if err := s.repo.Create(ctx, outpass); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create outpass request")
	}

	s.recordTransition(models.OutpassStatusPending)
	s.invalidateLists(ctx)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &studentUserID,
		Action:     models.AuditActionOutpassCreate,
		Resource:   "outpass",
		ResourceID: &outpass.ID,
		NewValues:  mustJSON(map[string]string{"status": string(models.OutpassStatusPending), "type": string(req.Type)}),
	})

	return s.loadDetail(ctx, outpass.ID)
}

// TeacherDecide moves a PENDING request to MOVED or REJECTED. The actor must
// be the teacher frozen on the record; anything else is a state conflict.
func (s *OutpassService) TeacherDecide(ctx context.Context, teacherID, outpassID string, decision Decision) (*models.OutpassDetail, error) {
	target, err := decisionTarget(decision, models.OutpassStatusMoved)
	if err != nil {
		return nil, err
	}

	if err := s.repo.TeacherDecide(ctx, outpassID, teacherID, target); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "outpass is not pending or not assigned to this teacher")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply teacher decision")
	}

	s.recordTransition(target)
	s.invalidateLists(ctx)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &teacherID,
		Action:     models.AuditActionTeacherDecide,
		Resource:   "outpass",
		ResourceID: &outpassID,
		NewValues:  mustJSON(map[string]string{"status": string(target)}),
	})

	return s.loadDetail(ctx, outpassID)
}

// HodDecide gives final approval or rejection on a MOVED request. Approval
// mints the OTP, its expiry and the QR token atomically with the status flip.
func (s *OutpassService) HodDecide(ctx context.Context, hodID, outpassID string, decision Decision) (*dto.ApprovalResult, error) {
	if decision == DecisionReject {
		if err := s.repo.HodReject(ctx, outpassID, hodID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrStateConflict, "outpass has not been moved by the teacher or is not assigned to this HOD")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject outpass")
		}
		s.recordTransition(models.OutpassStatusRejected)
		s.invalidateLists(ctx)
		s.emitAudit(ctx, &models.AuditLog{
			UserID:     &hodID,
			Action:     models.AuditActionHodDecide,
			Resource:   "outpass",
			ResourceID: &outpassID,
			NewValues:  mustJSON(map[string]string{"status": string(models.OutpassStatusRejected)}),
		})
		detail, err := s.loadDetail(ctx, outpassID)
		if err != nil {
			return nil, err
		}
		return &dto.ApprovalResult{Outpass: detail}, nil
	}
	if decision != DecisionApprove {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approve or reject")
	}

	detail, err := s.loadDetail(ctx, outpassID)
	if err != nil {
		return nil, err
	}

	otp, err := s.generateOTP(ctx)
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.cfg.OTPTTL)
	qr, err := s.renderQR(detail, otp, expiresAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render QR token")
	}

	params := repository.HodApproveParams{
		ID:           outpassID,
		HodID:        hodID,
		OTP:          otp,
		OTPExpiresAt: expiresAt,
		QRCode:       qr,
	}
	if err := s.repo.HodApprove(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "outpass has not been moved by the teacher or is not assigned to this HOD")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve outpass")
	}

	s.recordTransition(models.OutpassStatusApproved)
	s.invalidateLists(ctx)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &hodID,
		Action:     models.AuditActionHodDecide,
		Resource:   "outpass",
		ResourceID: &outpassID,
		NewValues:  mustJSON(map[string]string{"status": string(models.OutpassStatusApproved)}),
	})

	updated, err := s.loadDetail(ctx, outpassID)
	if err != nil {
		return nil, err
	}
	return &dto.ApprovalResult{Outpass: updated, OTP: otp, OTPExpiresAt: expiresAt, QRCode: qr}, nil
}

// RegenerateOTP mints a fresh OTP, expiry and QR token for a still-APPROVED
// request.
func (s *OutpassService) RegenerateOTP(ctx context.Context, hodID, outpassID string) (*dto.ApprovalResult, error) {
	detail, err := s.loadDetail(ctx, outpassID)
	if err != nil {
		return nil, err
	}

	otp, err := s.generateOTP(ctx)
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.cfg.OTPTTL)
	qr, err := s.renderQR(detail, otp, expiresAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render QR token")
	}

	params := repository.HodApproveParams{
		ID:           outpassID,
		HodID:        hodID,
		OTP:          otp,
		OTPExpiresAt: expiresAt,
		QRCode:       qr,
	}
	if err := s.repo.RegenerateOTP(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "outpass is not approved or is not assigned to this HOD")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to regenerate OTP")
	}

	s.invalidateLists(ctx)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &hodID,
		Action:     models.AuditActionOTPRegenerate,
		Resource:   "outpass",
		ResourceID: &outpassID,
	})

	updated, err := s.loadDetail(ctx, outpassID)
	if err != nil {
		return nil, err
	}
	return &dto.ApprovalResult{Outpass: updated, OTP: otp, OTPExpiresAt: expiresAt, QRCode: qr}, nil
}

// GetForStudent fetches one request scoped to the owning student.
func (s *OutpassService) GetForStudent(ctx context.Context, studentUserID, outpassID string) (*models.OutpassDetail, error) {
	student, err := s.students.GetStudentDetailByUserID(ctx, studentUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	detail, err := s.repo.GetDetailForStudent(ctx, outpassID, student.StudentProfile.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "outpass not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load outpass")
	}
	return detail, nil
}

// ListForStudent returns the student's own requests with OTP countdowns.
func (s *OutpassService) ListForStudent(ctx context.Context, studentUserID string) ([]dto.OutpassView, error) {
	student, err := s.students.GetStudentDetailByUserID(ctx, studentUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return s.listWithSweep(ctx, "outpass:list:student:"+student.StudentProfile.ID, func(ctx context.Context) ([]models.OutpassDetail, error) {
		return s.repo.ListByStudent(ctx, student.StudentProfile.ID)
	})
}

// ListForTeacher returns requests bound to the class teacher.
func (s *OutpassService) ListForTeacher(ctx context.Context, teacherID string) ([]dto.OutpassView, error) {
	return s.listWithSweep(ctx, "outpass:list:teacher:"+teacherID, func(ctx context.Context) ([]models.OutpassDetail, error) {
		return s.repo.ListByTeacher(ctx, teacherID)
	})
}

// ListForHod returns requests bound to the HOD.
func (s *OutpassService) ListForHod(ctx context.Context, hodID string) ([]dto.OutpassView, error) {
	return s.listWithSweep(ctx, "outpass:list:hod:"+hodID, func(ctx context.Context) ([]models.OutpassDetail, error) {
		return s.repo.ListByHod(ctx, hodID)
	})
}

// ListExpired returns every expired request for the security audit screen.
func (s *OutpassService) ListExpired(ctx context.Context) ([]dto.OutpassView, error) {
	return s.listWithSweep(ctx, "outpass:list:expired", s.repo.ListExpired)
}

func (s *OutpassService) listWithSweep(ctx context.Context, cacheKey string, load func(context.Context) ([]models.OutpassDetail, error)) ([]dto.OutpassView, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		s.logger.Warn("inline sweep failed", zap.Error(err))
	}

	var views []dto.OutpassView
	if s.cache.Enabled() {
		if hit, err := s.cache.Get(ctx, cacheKey, &views); err == nil && hit {
			return views, nil
		}
	}

	details, err := load(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list outpasses")
	}

	now := s.now()
	views = make([]dto.OutpassView, 0, len(details))
	for _, detail := range details {
		view := dto.OutpassView{OutpassDetail: detail}
		if detail.Status == models.OutpassStatusApproved && detail.OTPExpiresAt != nil {
			remaining := otpTimeRemaining(*detail.OTPExpiresAt, now)
			view.OTPTimeRemaining = &remaining
		}
		views = append(views, view)
	}

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey, views, s.cfg.ListCacheTTL)
	}
	return views, nil
}

func (s *OutpassService) loadDetail(ctx context.Context, id string) (*models.OutpassDetail, error) {
	detail, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "outpass not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load outpass")
	}
	return detail, nil
}

// generateOTP draws a uniform 6-digit code and retries when another APPROVED
// request already holds it, so gate lookups stay unambiguous.
func (s *OutpassService) generateOTP(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxOTPAttempts; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate OTP")
		}
		otp := fmt.Sprintf("%06d", n.Int64()+otpMin)

		inUse, err := s.repo.OTPInUse(ctx, otp)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check OTP uniqueness")
		}
		if !inUse {
			return otp, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrInternal, "could not allocate a unique OTP")
}

func (s *OutpassService) renderQR(detail *models.OutpassDetail, otp string, expiresAt time.Time) (string, error) {
	payload := dto.QRPayload{
		OutpassID:         detail.ID,
		OTP:               otp,
		StudentName:       detail.StudentName,
		RollNo:            detail.RollNo,
		Department:        detail.Department,
		Branch:            detail.Branch,
		ApprovedByTeacher: detail.ApprovedByTeacherID,
		ApprovedByHod:     detail.ApprovedByHodID,
		OTPExpiresAt:      expiresAt.Format(time.RFC3339),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	png, err := qrcode.Encode(string(raw), qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return qrDataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

func (s *OutpassService) invalidateLists(ctx context.Context) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, "outpass:list:*"); err != nil {
		s.logger.Warn("failed to invalidate outpass list cache", zap.Error(err))
	}
}

func (s *OutpassService) recordTransition(to models.OutpassStatus) {
	if s.metrics != nil {
		s.metrics.RecordOutpassTransition(string(to))
	}
}

func (s *OutpassService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "outpass-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func decisionTarget(decision Decision, approved models.OutpassStatus) (models.OutpassStatus, error) {
	switch decision {
	case DecisionApprove:
		return approved, nil
	case DecisionReject:
		return models.OutpassStatusRejected, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "decision must be approve or reject")
	}
}

// otpTimeRemaining formats the countdown shown to students, "{h}h {m}m" while
// live and "Expired" once the window has closed.
func otpTimeRemaining(expiresAt, now time.Time) string {
	diff := expiresAt.Sub(now)
	if diff <= 0 {
		return "Expired"
	}
	hours := int(diff / time.Hour)
	minutes := int(diff%time.Hour) / int(time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func mustJSON(value interface{}) []byte {
	raw, err := json.Marshal(value)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
