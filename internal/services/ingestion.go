package services

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"invoice-ocr/internal/models"
)

// ProgressCallback is called during document processing to report progress.
// Every step is also written to the debug log.
type ProgressCallback func(step, message string, current, total int)

// Inspector rejects uploads that are not PDF documents.
type Inspector interface {
	Inspect(data []byte) (PDFInfo, error)
}

// Rasterizer renders every page of a PDF document, in document order.
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte) ([]models.PageImage, error)
}

// Recognizer turns one page image into text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// IngestionService coordinates PDF inspection, rasterization and OCR for a
// single upload. It keeps no per-request state and is safe for concurrent use.
type IngestionService struct {
	pdf    Inspector
	raster Rasterizer
	ocr    Recognizer
	logger *zap.Logger
}

func NewIngestionService(pdf Inspector, raster Rasterizer, ocr Recognizer, logger *zap.Logger) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		pdf:    pdf,
		raster: raster,
		ocr:    ocr,
		logger: logger,
	}
}

func (s *IngestionService) Process(ctx context.Context, data []byte) (*models.Extraction, error) {
	return s.ProcessWithProgress(ctx, data, nil)
}

// ProcessWithProgress runs the whole pipeline over data. Pages are recognized
// one at a time; the first failure stops the run and is returned as a
// *ProcessingError.
func (s *IngestionService) ProcessWithProgress(ctx context.Context, data []byte, progress ProgressCallback) (*models.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(KindCanceled, 0, err)
	}

	report := func(step, message string, current, total int) {
		s.logger.Debug(message, zap.String("step", step), zap.Int("current", current), zap.Int("total", total))
		if progress != nil {
			progress(step, message, current, total)
		}
	}

	report("inspect", "Checking uploaded document", 0, 0)
	info, err := s.pdf.Inspect(data)
	if err != nil {
		return nil, InvalidInput(err)
	}

	report("rasterize", "Rendering pages", 0, info.Pages)
	pages, err := s.raster.Rasterize(ctx, data)
	if err != nil {
		if info.Problem != nil && !isContextErr(err) {
			// Neither pdfcpu nor the renderer could make sense of the file.
			return nil, InvalidInput(fmt.Errorf("%w (rasterize: %v)", info.Problem, err))
		}
		return nil, classify(KindRasterizationFailed, 0, fmt.Errorf("rasterize document: %w", err))
	}
	if info.Problem != nil {
		s.logger.Debug("rendered despite structural defect", zap.Error(info.Problem))
	}
	if info.Pages >= 0 && info.Pages != len(pages) {
		s.logger.Debug("page count mismatch",
			zap.Int("inspected", info.Pages),
			zap.Int("rendered", len(pages)),
		)
	}

	total := len(pages)
	extraction := &models.Extraction{Pages: make([]models.PageText, 0, total)}
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return nil, classify(KindCanceled, i+1, err)
		}

		text, err := s.ocr.Recognize(ctx, pages[i].Image)
		if err != nil {
			return nil, recognitionError(i+1, total, err)
		}
		// The image is no longer needed once its text is known.
		pages[i].Image = nil

		extraction.Pages = append(extraction.Pages, models.PageText{Number: i + 1, Text: text})
		report("ocr", fmt.Sprintf("Recognized page %d of %d", i+1, total), i+1, total)
	}

	return extraction, nil
}
