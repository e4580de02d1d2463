// Package testutil builds PDF fixtures for tests.
package testutil

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/go-pdf/fpdf"
)

// PDF renders one A4 page per entry of pages, each carrying its text in a
// large bold font so OCR engines read it reliably.
func PDF(t testing.TB, pages ...string) []byte {
	t.Helper()

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "B", 36)
	for _, text := range pages {
		doc.AddPage()
		doc.SetXY(20, 40)
		doc.Cell(170, 20, text)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("render fixture pdf: %v", err)
	}
	return buf.Bytes()
}

// WithoutEOF strips the trailing %%EOF marker, as some scanner software
// does. Renderers still open such files.
func WithoutEOF(data []byte) []byte {
	trimmed := bytes.TrimRight(data, "\r\n ")
	trimmed = bytes.TrimSuffix(trimmed, []byte("%%EOF"))
	return append([]byte(nil), trimmed...)
}

// EmptyPDF returns a well-formed document whose page tree has no pages.
// fpdf always emits at least one page, so the file is assembled by hand.
func EmptyPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
