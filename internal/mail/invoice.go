package mail

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"bibliotrack/pkg/domain"
)

// InvoiceLine is one purchased item on an invoice.
type InvoiceLine struct {
	Title     string
	Quantity  int
	UnitPrice domain.Paise
	Total     domain.Paise
}

// Invoice holds the data rendered into the PDF.
type Invoice struct {
	Number    string
	Date      time.Time
	Customer  string
	Email     string
	Address   string
	Lines     []InvoiceLine
	Total     domain.Paise
	PaymentID string
}

// RenderInvoicePDF produces the order invoice as PDF bytes.
func RenderInvoicePDF(inv Invoice) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+inv.Number, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BiblioTrack")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, "Invoice "+inv.Number)
	pdf.Ln(6)
	pdf.Cell(0, 6, inv.Date.Format("02 Jan 2006"))
	pdf.Ln(6)
	if inv.PaymentID != "" {
		pdf.Cell(0, 6, "Payment reference: "+inv.PaymentID)
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.Cell(0, 6, "Billed to: "+inv.Customer)
	pdf.Ln(6)
	if inv.Email != "" {
		pdf.Cell(0, 6, inv.Email)
		pdf.Ln(6)
	}
	if inv.Address != "" {
		pdf.MultiCell(0, 6, inv.Address, "", "L", false)
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(100, 8, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(20, 8, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, "Unit (INR)", "B", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, "Total (INR)", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for _, line := range inv.Lines {
		pdf.CellFormat(100, 8, line.Title, "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 8, fmt.Sprintf("%d", line.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, line.UnitPrice.String(), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, line.Total.String(), "", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(155, 10, "Grand total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(35, 10, inv.Total.String(), "T", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
