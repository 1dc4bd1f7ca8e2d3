package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries everything the certificate layout needs. Rendering is
// deterministic for a given input so re-issuing produces an identical document.
type CertificateData struct {
	RecipientName string
	WorkshopTitle string
	DurationText  string
	IssuedOn      string
	Organization  string
}

// CertificateRenderer produces the landscape certificate PDF.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a certificate renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render lays out the certificate and returns the PDF bytes.
func (r *CertificateRenderer) Render(data CertificateData) ([]byte, error) {
	if data.RecipientName == "" || data.WorkshopTitle == "" {
		return nil, fmt.Errorf("certificate requires recipient and workshop title")
	}
	org := data.Organization
	if org == "" {
		org = "Fundación Aprender"
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 26)
	pdf.CellFormat(0, 16, strings.ToUpper(org), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(0, 10, "Otorga el presente certificado a", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 22)
	pdf.CellFormat(0, 14, data.RecipientName, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(0, 10, "Por su participación en el taller", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 12, data.WorkshopTitle, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 12)
	if data.DurationText != "" {
		pdf.CellFormat(0, 8, fmt.Sprintf("Duración: %s", data.DurationText), "", 1, "C", false, 0, "")
	}
	if data.IssuedOn != "" {
		pdf.CellFormat(0, 8, fmt.Sprintf("Fecha: %s", data.IssuedOn), "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
