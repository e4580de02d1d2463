package services

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ValidationMode controls what the pdfcpu structure check may decide. Under
// relaxed validation a structural defect is only recorded; the rasterizer
// remains the judge of whether the document renders. Strict validation
// rejects such uploads before rendering. Off skips parsing entirely.
type ValidationMode string

const (
	ValidationRelaxed ValidationMode = "relaxed"
	ValidationStrict  ValidationMode = "strict"
	ValidationOff     ValidationMode = "off"
)

// PDF files may carry a few bytes of garbage before the header; readers
// accept the header anywhere in the first kilobyte.
const headerWindow = 1024

var pdfHeader = []byte("%PDF-")

// PDFInfo describes an upload that passed inspection. Pages is -1 when the
// page count is unknown.
type PDFInfo struct {
	Pages int
	// Problem is the structural defect pdfcpu reported, if any. It is only
	// consulted when rendering fails too.
	Problem error
}

// PDFService inspects uploads with pdfcpu. What it finds decides whether a
// document the rasterizer cannot open is reported as a client error.
type PDFService struct {
	mode ValidationMode
	conf *model.Configuration
}

func NewPDFService(mode ValidationMode) *PDFService {
	api.DisableConfigDir()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if mode == ValidationStrict {
		conf.ValidationMode = model.ValidationStrict
	}
	return &PDFService{mode: mode, conf: conf}
}

// Inspect checks that data looks like a PDF document and, unless validation
// is off, parses and validates its structure. Only a missing header, or a
// structural defect under strict validation, is returned as an error.
func (s *PDFService) Inspect(data []byte) (PDFInfo, error) {
	if len(data) == 0 {
		return PDFInfo{}, ErrEmptyUpload
	}
	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	if !bytes.Contains(window, pdfHeader) {
		return PDFInfo{}, ErrNotPDF
	}
	if s.mode == ValidationOff {
		return PDFInfo{Pages: -1}, nil
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), s.conf)
	if err != nil {
		return s.defect(PDFInfo{Pages: -1}, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return s.defect(PDFInfo{Pages: ctx.PageCount}, err)
	}

	return PDFInfo{Pages: ctx.PageCount}, nil
}

func (s *PDFService) defect(info PDFInfo, err error) (PDFInfo, error) {
	problem := fmt.Errorf("%w: %v", ErrNotPDF, err)
	if s.mode == ValidationStrict {
		return PDFInfo{}, problem
	}
	info.Problem = problem
	return info, nil
}
