package raster

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"invoice-ocr/internal/models"
)

// Ghostscript renders documents by shelling out to the gs binary.
type Ghostscript struct {
	bin string
	dpi int
}

func NewGhostscript(bin string, dpi int) *Ghostscript {
	if bin == "" {
		bin = "gs"
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Ghostscript{bin: bin, dpi: dpi}
}

func (g *Ghostscript) Name() string { return "ghostscript" }

// Rasterize converts each page of the PDF to an image, in document order.
func (g *Ghostscript) Rasterize(ctx context.Context, data []byte) ([]models.PageImage, error) {
	// First, get the number of pages using the pdf library
	numPages, err := pageCount(data)
	if err != nil {
		return nil, err
	}
	if numPages == 0 {
		return []models.PageImage{}, nil
	}

	tempDir, err := os.MkdirTemp("", "pdf-render-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	input := filepath.Join(tempDir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("write input pdf: %w", err)
	}

	// -dNOPAUSE -dBATCH: non-interactive mode
	// -sDEVICE=png16m: 24-bit color PNG
	outputPattern := filepath.Join(tempDir, "page-%03d.png")
	cmd := exec.CommandContext(ctx, g.bin,
		"-dQUIET",
		"-dSAFER",
		"-dNOPAUSE",
		"-dBATCH",
		"-sDEVICE=png16m",
		fmt.Sprintf("-r%d", g.dpi),
		fmt.Sprintf("-sOutputFile=%s", outputPattern),
		input,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("ghostscript render failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return readPages(tempDir, numPages)
}

// pageCount opens the document with the pdf reader. The reader panics on
// some malformed inputs, so panics are turned into errors.
func pageCount(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("open pdf for page count: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("open pdf for page count: %w", err)
	}
	return r.NumPage(), nil
}

// readPages decodes page-001.png .. page-NNN.png from dir.
func readPages(dir string, numPages int) ([]models.PageImage, error) {
	pages := make([]models.PageImage, 0, numPages)
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		// Ghostscript uses 1-based numbering in output
		pagePath := filepath.Join(dir, fmt.Sprintf("page-%03d.png", pageNum))

		f, err := os.Open(pagePath)
		if err != nil {
			return nil, fmt.Errorf("read rendered page %d: %w", pageNum, err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode rendered page %d: %w", pageNum, err)
		}

		pages = append(pages, models.PageImage{Number: pageNum, Image: img})
	}
	return pages, nil
}
