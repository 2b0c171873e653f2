package certgen

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
)

// ErrRenderFailed wraps any downstream failure of the PDF pipeline: a
// malformed template, a font embedding problem, or a write error. Callers
// never see the underlying cause beyond its message.
var ErrRenderFailed = errors.New("certificate rendering failed")

// Renderer fills an uploaded certificate template with the participant's
// details and returns the finished document.
type Renderer interface {
	Render(templatePath, studentName, eventTitle string, eventDate time.Time) ([]byte, error)
	RenderDefault(studentName, eventTitle string) ([]byte, error)
}

type PDFRenderer struct{}

func NewPDFRenderer() PDFRenderer {
	return PDFRenderer{}
}

// Render stamps the student's name, a participation line, and the event
// date onto the first page of the uploaded template.
func (PDFRenderer) Render(templatePath, studentName, eventTitle string, eventDate time.Time) (out []byte, err error) {
	// gofpdi panics on malformed templates rather than returning an error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRenderFailed, r)
		}
	}()

	pdf := gofpdf.New("L", "pt", "A4", "")
	tpl := gofpdi.ImportPage(pdf, templatePath, 1, "/MediaBox")

	pdf.AddPage()
	w, h := pdf.GetPageSize()
	gofpdi.UseImportedTemplate(pdf, tpl, 0, 0, w, h)

	pdf.SetFont("Helvetica", "B", 36)
	pdf.SetTextColor(26, 26, 26)
	drawCentered(pdf, studentName, w, h/2)

	pdf.SetFont("Helvetica", "", 20)
	pdf.SetTextColor(51, 51, 51)
	drawCentered(pdf, fmt.Sprintf("for participating in %s", eventTitle), w, h/2+50)

	pdf.SetFont("Helvetica", "", 16)
	pdf.SetTextColor(77, 77, 77)
	drawCentered(pdf, fmt.Sprintf("on %s", eventDate.Format("1/2/2006")), w, h/2+80)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return buf.Bytes(), nil
}

// RenderDefault produces a plain participation certificate for events
// without an uploaded template.
func (PDFRenderer) RenderDefault(studentName, eventTitle string) ([]byte, error) {
	pdf := gofpdf.New("L", "pt", "A4", "")
	pdf.AddPage()
	w, h := pdf.GetPageSize()

	pdf.SetFont("Helvetica", "B", 25)
	pdf.SetTextColor(26, 26, 26)
	drawCentered(pdf, "Certificate of Participation", w, h/3)

	pdf.SetFont("Helvetica", "", 16)
	pdf.SetTextColor(51, 51, 51)
	drawCentered(pdf,
		fmt.Sprintf("This is to certify that %s has successfully participated in %s.", studentName, eventTitle),
		w, h/2)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return buf.Bytes(), nil
}

func drawCentered(pdf *gofpdf.Fpdf, text string, pageWidth, y float64) {
	x := (pageWidth - pdf.GetStringWidth(text)) / 2
	pdf.Text(x, y, text)
}
