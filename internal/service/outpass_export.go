package service

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/noah-isme/campus-outpass-api/internal/models"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/export"
)

type slipRenderer interface {
	RenderPassSlip(slip export.PassSlip) ([]byte, error)
}

type tableRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// OutpassExportService renders printable artifacts for the workflow.
type OutpassExportService struct {
	outpasses *OutpassService
	pdf       slipRenderer
	csv       tableRenderer
}

// NewOutpassExportService constructs the export service.
func NewOutpassExportService(outpasses *OutpassService, pdf slipRenderer, csv tableRenderer) *OutpassExportService {
	return &OutpassExportService{outpasses: outpasses, pdf: pdf, csv: csv}
}

// PassSlipPDF renders the printable slip for the student's own APPROVED pass.
func (s *OutpassExportService) PassSlipPDF(ctx context.Context, studentUserID, outpassID string) ([]byte, error) {
	detail, err := s.outpasses.GetForStudent(ctx, studentUserID, outpassID)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.OutpassStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "pass slip is only available for approved outpasses")
	}

	slip := export.PassSlip{
		OutpassID:   detail.ID,
		StudentName: detail.StudentName,
		RollNo:      detail.RollNo,
		Department:  detail.Department,
		Branch:      detail.Branch,
		Reason:      detail.Reason,
		Type:        string(detail.Type),
		TeacherName: detail.TeacherName,
		HodName:     detail.HodName,
		ValidUntil:  detail.ValidUntil.Format(time.RFC1123),
	}
	if detail.OTP != nil {
		slip.OTP = *detail.OTP
	}
	if detail.OTPExpiresAt != nil {
		slip.OTPExpires = detail.OTPExpiresAt.Format(time.RFC1123)
	}
	if detail.QRCode != nil {
		slip.QRPNG = decodeQRDataURL(*detail.QRCode)
	}

	data, err := s.pdf.RenderPassSlip(slip)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pass slip")
	}
	return data, nil
}

// ExpiredCSV exports the expired-outpass audit log for the security desk.
func (s *OutpassExportService) ExpiredCSV(ctx context.Context) ([]byte, error) {
	views, err := s.outpasses.ListExpired(ctx)
	if err != nil {
		return nil, err
	}

	headers := []string{"id", "student", "roll_no", "department", "type", "reason", "outpass_date", "valid_until", "teacher", "hod"}
	rows := make([]map[string]string, 0, len(views))
	for _, view := range views {
		rows = append(rows, map[string]string{
			"id":           view.ID,
			"student":      view.StudentName,
			"roll_no":      view.RollNo,
			"department":   view.Department,
			"type":         string(view.Type),
			"reason":       view.Reason,
			"outpass_date": view.OutpassDate.Format("2006-01-02"),
			"valid_until":  view.ValidUntil.Format(time.RFC3339),
			"teacher":      view.TeacherName,
			"hod":          view.HodName,
		})
	}

	data, err := s.csv.Render(export.Dataset{Headers: headers, Rows: rows})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render CSV export")
	}
	return data, nil
}

func decodeQRDataURL(value string) []byte {
	idx := strings.Index(value, "base64,")
	if idx < 0 {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(value[idx+len("base64,"):])
	if err != nil {
		return nil
	}
	return raw
}
