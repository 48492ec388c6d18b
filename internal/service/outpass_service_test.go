package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	"github.com/noah-isme/campus-outpass-api/internal/repository"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
)

// outpassStoreStub mirrors the conditional-update semantics of the SQL store:
// a guard that does not match returns sql.ErrNoRows.
type outpassStoreStub struct {
	mu       sync.Mutex
	outpass  map[string]*models.OutpassDetail
	students map[string]*models.StudentDetail
}

func newOutpassStoreStub() *outpassStoreStub {
	return &outpassStoreStub{
		outpass:  make(map[string]*models.OutpassDetail),
		students: make(map[string]*models.StudentDetail),
	}
}

func (s *outpassStoreStub) Create(ctx context.Context, outpass *models.OutpassRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if outpass.ID == "" {
		outpass.ID = "op-" + outpass.StudentID
	}
	if outpass.Status == "" {
		outpass.Status = models.OutpassStatusPending
	}
	detail := &models.OutpassDetail{OutpassRequest: *outpass}
	for _, student := range s.students {
		if student.StudentProfile.ID == outpass.StudentID {
			detail.StudentName = student.FullName
			detail.StudentEmail = student.Email
			detail.RollNo = student.RollNo
			detail.Department = student.Department
			detail.Branch = student.Branch
		}
	}
	s.outpass[outpass.ID] = detail
	return nil
}

func (s *outpassStoreStub) GetDetail(ctx context.Context, id string) (*models.OutpassDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if detail, ok := s.outpass[id]; ok {
		copied := *detail
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *outpassStoreStub) GetDetailForStudent(ctx context.Context, id, studentID string) (*models.OutpassDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if detail, ok := s.outpass[id]; ok && detail.StudentID == studentID {
		copied := *detail
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *outpassStoreStub) FindApprovedByOTP(ctx context.Context, otp string) (*models.OutpassDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, detail := range s.outpass {
		if detail.Status == models.OutpassStatusApproved && detail.OTP != nil && *detail.OTP == otp {
			copied := *detail
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *outpassStoreStub) OTPInUse(ctx context.Context, otp string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, detail := range s.outpass {
		if detail.Status == models.OutpassStatusApproved && detail.OTP != nil && *detail.OTP == otp {
			return true, nil
		}
	}
	return false, nil
}

func (s *outpassStoreStub) TeacherDecide(ctx context.Context, id, teacherID string, to models.OutpassStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail, ok := s.outpass[id]
	if !ok || detail.Status != models.OutpassStatusPending || detail.ApprovedByTeacherID != teacherID {
		return sql.ErrNoRows
	}
	detail.Status = to
	return nil
}

func (s *outpassStoreStub) HodApprove(ctx context.Context, params repository.HodApproveParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail, ok := s.outpass[params.ID]
	if !ok || detail.Status != models.OutpassStatusMoved || detail.ApprovedByHodID != params.HodID {
		return sql.ErrNoRows
	}
	detail.Status = models.OutpassStatusApproved
	otp := params.OTP
	expiresAt := params.OTPExpiresAt
	qr := params.QRCode
	detail.OTP = &otp
	detail.OTPExpiresAt = &expiresAt
	detail.QRCode = &qr
	return nil
}

func (s *outpassStoreStub) HodReject(ctx context.Context, id, hodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail, ok := s.outpass[id]
	if !ok || detail.Status != models.OutpassStatusMoved || detail.ApprovedByHodID != hodID {
		return sql.ErrNoRows
	}
	detail.Status = models.OutpassStatusRejected
	return nil
}

func (s *outpassStoreStub) RegenerateOTP(ctx context.Context, params repository.HodApproveParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail, ok := s.outpass[params.ID]
	if !ok || detail.Status != models.OutpassStatusApproved || detail.ApprovedByHodID != params.HodID {
		return sql.ErrNoRows
	}
	otp := params.OTP
	expiresAt := params.OTPExpiresAt
	qr := params.QRCode
	detail.OTP = &otp
	detail.OTPExpiresAt = &expiresAt
	detail.QRCode = &qr
	return nil
}

func (s *outpassStoreStub) MarkExited(ctx context.Context, id, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail, ok := s.outpass[id]
	if !ok || detail.Status != models.OutpassStatusApproved {
		return sql.ErrNoRows
	}
	detail.Status = models.OutpassStatusExited
	detail.ExitMarkedByID = &actorID
	return nil
}

func (s *outpassStoreStub) MarkExpired(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail, ok := s.outpass[id]
	if !ok || detail.Status != models.OutpassStatusApproved {
		return sql.ErrNoRows
	}
	detail.Status = models.OutpassStatusExpired
	return nil
}

func (s *outpassStoreStub) ExpireOverdueOTP(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, detail := range s.outpass {
		if detail.Status == models.OutpassStatusApproved && detail.OTPExpiresAt != nil && detail.OTPExpiresAt.Before(now) {
			detail.Status = models.OutpassStatusExpired
			count++
		}
	}
	return count, nil
}

func (s *outpassStoreStub) ExpireOverdueDate(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, detail := range s.outpass {
		switch detail.Status {
		case models.OutpassStatusApproved, models.OutpassStatusExited:
			if detail.ValidUntil.Before(now) {
				detail.Status = models.OutpassStatusExpired
				count++
			}
		}
	}
	return count, nil
}

func (s *outpassStoreStub) listWhere(match func(*models.OutpassDetail) bool) []models.OutpassDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OutpassDetail
	for _, detail := range s.outpass {
		if match(detail) {
			out = append(out, *detail)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *outpassStoreStub) ListByStudent(ctx context.Context, studentID string) ([]models.OutpassDetail, error) {
	return s.listWhere(func(d *models.OutpassDetail) bool { return d.StudentID == studentID }), nil
}

func (s *outpassStoreStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.OutpassDetail, error) {
	return s.listWhere(func(d *models.OutpassDetail) bool { return d.ApprovedByTeacherID == teacherID }), nil
}

func (s *outpassStoreStub) ListByHod(ctx context.Context, hodID string) ([]models.OutpassDetail, error) {
	return s.listWhere(func(d *models.OutpassDetail) bool { return d.ApprovedByHodID == hodID }), nil
}

func (s *outpassStoreStub) ListExpired(ctx context.Context) ([]models.OutpassDetail, error) {
	return s.listWhere(func(d *models.OutpassDetail) bool { return d.Status == models.OutpassStatusExpired }), nil
}

func (s *outpassStoreStub) GetStudentDetailByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if student, ok := s.students[userID]; ok {
		copied := *student
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, log := range a.logs {
		out = append(out, log.Action)
	}
	return out
}

func strPtr(s string) *string { return &s }

func newTestService(t *testing.T, now time.Time) (*OutpassService, *outpassStoreStub, *auditStub) {
	t.Helper()
	store := newOutpassStoreStub()
	teacherID := "teacher-1"
	hodID := "hod-1"
	store.students["user-1"] = &models.StudentDetail{
		StudentProfile: models.StudentProfile{
			ID:             "student-1",
			UserID:         "user-1",
			RollNo:         "21CS042",
			Department:     "CSE",
			Branch:         "AI",
			ClassTeacherID: &teacherID,
			HodID:          &hodID,
		},
		FullName: "Asha Rao",
		Email:    "asha@campus.edu",
	}
	audit := &auditStub{}
	svc := NewOutpassService(store, store, audit, nil, OutpassConfig{
		OTPTTL:        5 * time.Hour,
		SweepInterval: time.Hour,
	}, WithClock(func() time.Time { return now }))
	return svc, store, audit
}

func TestOutpassLifecycleHappyPath(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, store, audit := newTestService(t, now)
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, "user-1", dto.CreateOutpassRequest{
		Reason: "family function",
		Type:   models.OutpassTypeCasual,
	})
	require.NoError(t, err)
	require.Equal(t, models.OutpassStatusPending, created.Status)
	require.Equal(t, "teacher-1", created.ApprovedByTeacherID)
	require.Equal(t, "hod-1", created.ApprovedByHodID)
	require.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), created.OutpassDate)
	require.Equal(t, now.Add(15*time.Hour-time.Millisecond).Truncate(time.Millisecond), created.ValidUntil.Truncate(time.Millisecond))
	require.Nil(t, created.OTP)

	moved, err := svc.TeacherDecide(ctx, "teacher-1", created.ID, DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, models.OutpassStatusMoved, moved.Status)

	result, err := svc.HodDecide(ctx, "hod-1", created.ID, DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, models.OutpassStatusApproved, result.Outpass.Status)
	require.Len(t, result.OTP, 6)
	require.False(t, strings.HasPrefix(result.OTP, "0"))
	require.Equal(t, now.Add(5*time.Hour), result.OTPExpiresAt)
	require.True(t, strings.HasPrefix(result.QRCode, "data:image/png;base64,"))
	require.NotNil(t, result.Outpass.OTP)
	require.NotNil(t, result.Outpass.OTPExpiresAt)
	require.NotNil(t, result.Outpass.QRCode)

	verification, err := svc.VerifyOTP(ctx, "guard-1", result.OTP)
	require.NoError(t, err)
	require.Equal(t, created.ID, verification.OutpassID)
	require.Equal(t, "Asha Rao", verification.Student.Name)
	require.Equal(t, "21CS042", verification.Student.RollNo)
	require.Equal(t, now, verification.ExitedAt)

	final, err := store.GetDetail(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.OutpassStatusExited, final.Status)
	require.NotNil(t, final.ExitMarkedByID)
	require.Equal(t, "guard-1", *final.ExitMarkedByID)

	require.Equal(t, []string{
		models.AuditActionOutpassCreate,
		models.AuditActionTeacherDecide,
		models.AuditActionHodDecide,
		models.AuditActionGateVerify,
	}, audit.actions())
}

func TestOutpassRejectionPaths(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, "user-1", dto.CreateOutpassRequest{
		Reason: "errand",
		Type:   models.OutpassTypeCasual,
	})
	require.NoError(t, err)

	rejected, err := svc.TeacherDecide(ctx, "teacher-1", created.ID, DecisionReject)
	require.NoError(t, err)
	require.Equal(t, models.OutpassStatusRejected, rejected.Status)

	// Terminal: no further decisions apply.
	_, err = svc.TeacherDecide(ctx, "teacher-1", created.ID, DecisionApprove)
	requireAppError(t, err, appErrors.ErrStateConflict.Code)
	_, err = svc.HodDecide(ctx, "hod-1", created.ID, DecisionReject)
	requireAppError(t, err, appErrors.ErrStateConflict.Code)
}

func TestOutpassDecisionGuards(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, "user-1", dto.CreateOutpassRequest{
		Reason: "errand",
		Type:   models.OutpassTypeEmergency,
	})
	require.NoError(t, err)

	// Wrong teacher cannot decide.
	_, err = svc.TeacherDecide(ctx, "teacher-2", created.ID, DecisionApprove)
	requireAppError(t, err, appErrors.ErrStateConflict.Code)

	// HOD cannot act before the teacher has moved the request.
	_, err = svc.HodDecide(ctx, "hod-1", created.ID, DecisionApprove)
	requireAppError(t, err, appErrors.ErrStateConflict.Code)

	_, err = svc.TeacherDecide(ctx, "teacher-1", created.ID, DecisionApprove)
	require.NoError(t, err)

	// Wrong HOD cannot decide a moved request.
	_, err = svc.HodDecide(ctx, "hod-2", created.ID, DecisionApprove)
	requireAppError(t, err, appErrors.ErrStateConflict.Code)

	// Regeneration requires APPROVED.
	_, err = svc.RegenerateOTP(ctx, "hod-1", created.ID)
	requireAppError(t, err, appErrors.ErrStateConflict.Code)
}

func TestOutpassCreateRequiresApprovers(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	store.students["user-2"] = &models.StudentDetail{
		StudentProfile: models.StudentProfile{
			ID:         "student-2",
			UserID:     "user-2",
			RollNo:     "21CS043",
			Department: "CSE",
			Branch:     "AI",
		},
		FullName: "Ravi Kumar",
		Email:    "ravi@campus.edu",
	}

	_, err := svc.CreateRequest(ctx, "user-2", dto.CreateOutpassRequest{
		Reason: "errand",
		Type:   models.OutpassTypeCasual,
	})
	requireAppError(t, err, appErrors.ErrNoApproverBound.Code)
}

func TestRegenerateOTPReplacesArtifacts(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, "user-1", dto.CreateOutpassRequest{
		Reason: "errand",
		Type:   models.OutpassTypeCasual,
	})
	require.NoError(t, err)
	_, err = svc.TeacherDecide(ctx, "teacher-1", created.ID, DecisionApprove)
	require.NoError(t, err)
	first, err := svc.HodDecide(ctx, "hod-1", created.ID, DecisionApprove)
	require.NoError(t, err)

	second, err := svc.RegenerateOTP(ctx, "hod-1", created.ID)
	require.NoError(t, err)
	require.Len(t, second.OTP, 6)
	require.NotEqual(t, first.QRCode, second.QRCode)

	detail, err := store.GetDetail(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, second.OTP, *detail.OTP)

	// The old code no longer verifies unless it collided with the new one.
	if first.OTP != second.OTP {
		_, err = svc.VerifyOTP(ctx, "guard-1", first.OTP)
		requireAppError(t, err, appErrors.ErrNotFound.Code)
	}
}

func TestListAnnotatesOTPCountdown(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, "user-1", dto.CreateOutpassRequest{
		Reason: "errand",
		Type:   models.OutpassTypeCasual,
	})
	require.NoError(t, err)
	_, err = svc.TeacherDecide(ctx, "teacher-1", created.ID, DecisionApprove)
	require.NoError(t, err)
	_, err = svc.HodDecide(ctx, "hod-1", created.ID, DecisionApprove)
	require.NoError(t, err)

	views, err := svc.ListForStudent(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].OTPTimeRemaining)
	require.Equal(t, "5h 0m", *views[0].OTPTimeRemaining)
}

func TestConcurrentHodApprovalsSingleWinner(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, "user-1", dto.CreateOutpassRequest{
		Reason: "errand",
		Type:   models.OutpassTypeCasual,
	})
	require.NoError(t, err)
	_, err = svc.TeacherDecide(ctx, "teacher-1", created.ID, DecisionApprove)
	require.NoError(t, err)

	// Two HODs-worth of simultaneous approvals on one MOVED record: the
	// conditional update lets exactly one through, the other conflicts.
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HodDecide(ctx, "hod-1", created.ID, DecisionApprove)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		requireAppError(t, err, appErrors.ErrStateConflict.Code)
		conflicted++
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, conflicted)

	detail, err := store.GetDetail(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.OutpassStatusApproved, detail.Status)
	require.NotNil(t, detail.OTP)
	require.NotNil(t, detail.OTPExpiresAt)
	require.NotNil(t, detail.QRCode)
}

func TestOTPTimeRemainingFormat(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	require.Equal(t, "2h 30m", otpTimeRemaining(now.Add(2*time.Hour+30*time.Minute), now))
	require.Equal(t, "0h 1m", otpTimeRemaining(now.Add(90*time.Second), now))
	require.Equal(t, "Expired", otpTimeRemaining(now, now))
	require.Equal(t, "Expired", otpTimeRemaining(now.Add(-time.Minute), now))
}

func requireAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected typed error, got %v", err)
	require.Equal(t, code, appErr.Code)
}
