package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
)

// VerifyOTP is the gate procedure: sweep, resolve the APPROVED request by
// code, revalidate both time windows, then flip to EXITED binding the
// verifying actor. The per-field re-checks close the gap between the last
// periodic sweep and this call.
func (s *OutpassService) VerifyOTP(ctx context.Context, actorID, otp string) (*dto.VerificationResult, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		s.logger.Warn("pre-verify sweep failed", zap.Error(err))
	}

	detail, err := s.repo.FindApprovedByOTP(ctx, otp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invalid OTP or not approved yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up OTP")
	}

	now := s.now()
	if detail.OTPExpiresAt == nil || !now.Before(*detail.OTPExpiresAt) {
		s.expireStale(ctx, detail.ID)
		return nil, appErrors.ErrOTPExpired
	}
	if !now.Before(detail.ValidUntil) {
		s.expireStale(ctx, detail.ID)
		return nil, appErrors.ErrOutpassExpired
	}

	if err := s.repo.MarkExited(ctx, detail.ID, actorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "outpass was already verified or expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark exit")
	}

	s.recordTransition(models.OutpassStatusExited)
	s.invalidateLists(ctx)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionGateVerify,
		Resource:   "outpass",
		ResourceID: &detail.ID,
		NewValues:  mustJSON(map[string]string{"status": string(models.OutpassStatusExited)}),
	})

	return &dto.VerificationResult{
		OutpassID: detail.ID,
		Student: dto.StudentInfo{
			Name:       detail.StudentName,
			RollNo:     detail.RollNo,
			Department: detail.Department,
			Branch:     detail.Branch,
		},
		ApprovedByTeacher: dto.PersonInfo{Name: detail.TeacherName, Email: detail.TeacherEmail},
		ApprovedByHod:     dto.PersonInfo{Name: detail.HodName, Email: detail.HodEmail},
		OTPExpiresAt:      *detail.OTPExpiresAt,
		ValidUntil:        detail.ValidUntil,
		ExitedAt:          now,
	}, nil
}

// SweepExpired force-transitions time-expired records. Rule 1 (OTP window,
// APPROVED only) runs strictly before rule 2 (day window, APPROVED or EXITED)
// so each record is attributed to exactly one rule. Running it twice in a row
// is a no-op the second time.
func (s *OutpassService) SweepExpired(ctx context.Context) (models.SweepResult, error) {
	now := s.now()
	result := models.SweepResult{}

	byOTP, err := s.repo.ExpireOverdueOTP(ctx, now)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire OTP-overdue outpasses")
	}
	result.ExpiredByOTP = byOTP

	byDate, err := s.repo.ExpireOverdueDate(ctx, now)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire date-overdue outpasses")
	}
	result.ExpiredByDate = byDate

	if s.metrics != nil {
		s.metrics.RecordSweep("otp", byOTP)
		s.metrics.RecordSweep("date", byDate)
	}
	if byOTP > 0 || byDate > 0 {
		s.logger.Info("expired overdue outpasses",
			zap.Int64("by_otp", byOTP),
			zap.Int64("by_date", byDate),
		)
		s.invalidateLists(ctx)
	}
	return result, nil
}

// StartSweeper boots the periodic sweep loop. It is owned by the caller's
// context and stops when that context is cancelled.
func (s *OutpassService) StartSweeper(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.SweepExpired(ctx); err != nil {
					s.logger.Warn("scheduled sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// expireStale marks a single row EXPIRED after a failed verification check.
// A concurrent sweep may have already done it; that is fine.
func (s *OutpassService) expireStale(ctx context.Context, id string) {
	if err := s.repo.MarkExpired(ctx, id); err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to expire stale outpass", zap.String("outpass_id", id), zap.Error(err))
		return
	}
	s.recordTransition(models.OutpassStatusExpired)
	s.invalidateLists(ctx)
	s.emitAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionOutpassExpired,
		Resource:   "outpass",
		ResourceID: &id,
	})
}
