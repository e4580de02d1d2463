package mupdf

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"

	"invoice-ocr/internal/models"
	"invoice-ocr/internal/raster"
)

// Rasterizer renders pages in-process with MuPDF.
type Rasterizer struct {
	dpi float64
}

func New(dpi int) *Rasterizer {
	if dpi <= 0 {
		dpi = raster.DefaultDPI
	}
	return &Rasterizer{dpi: float64(dpi)}
}

func (r *Rasterizer) Name() string { return "mupdf" }

func (r *Rasterizer) Rasterize(ctx context.Context, data []byte) ([]models.PageImage, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("mupdf: open document: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	pages := make([]models.PageImage, 0, numPages)
	for i := 0; i < numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("mupdf: render page %d: %w", i+1, err)
		}
		pages = append(pages, models.PageImage{Number: i + 1, Image: img})
	}
	return pages, nil
}
