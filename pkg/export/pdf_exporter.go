package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PassSlip carries the fields printed on a gate-pass slip.
type PassSlip struct {
	OutpassID   string
	StudentName string
	RollNo      string
	Department  string
	Branch      string
	Reason      string
	Type        string
	TeacherName string
	HodName     string
	OTP         string
	OTPExpires  string
	ValidUntil  string
	QRPNG       []byte
}

// PDFExporter renders gate-pass slips into printable PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderPassSlip creates a single-page slip with the pass details and QR token.
func (e *PDFExporter) RenderPassSlip(slip PassSlip) ([]byte, error) {
	if slip.OutpassID == "" {
		return nil, fmt.Errorf("pass slip requires an outpass id")
	}
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 14, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 15)
	pdf.CellFormat(0, 10, "CAMPUS GATE PASS", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(0, 5, slip.OutpassID, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	rows := []struct{ label, value string }{
		{"Student", slip.StudentName},
		{"Roll No", slip.RollNo},
		{"Department", slip.Department},
		{"Branch", slip.Branch},
		{"Type", slip.Type},
		{"Reason", slip.Reason},
		{"Class Teacher", slip.TeacherName},
		{"HOD", slip.HodName},
		{"OTP", slip.OTP},
		{"OTP valid till", slip.OTPExpires},
		{"Pass valid till", slip.ValidUntil},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 7, row.label, "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(84, 7, row.value, "1", 1, "", false, 0, "")
	}

	if len(slip.QRPNG) > 0 {
		pdf.Ln(4)
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(slip.QRPNG))
		x := (148.0 - 45.0) / 2
		pdf.ImageOptions("qr", x, pdf.GetY(), 45, 45, false, opts, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pass slip: %w", err)
	}
	return buf.Bytes(), nil
}
