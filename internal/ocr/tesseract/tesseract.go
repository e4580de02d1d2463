package tesseract

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"invoice-ocr/internal/ocr"
)

// Engine recognizes page text with a local Tesseract installation.
type Engine struct {
	languages   []string
	pageSegMode gosseract.PageSegMode
	dpi         int
}

// New constructs a Tesseract-backed engine. A fresh client is created for
// every page so the engine can be shared across requests.
func New(opts ocr.Options) *Engine {
	langs := append([]string(nil), opts.Languages...)
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &Engine{
		languages:   langs,
		pageSegMode: gosseract.PageSegMode(opts.PageSegMode),
		dpi:         opts.DPI,
	}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := ocr.EncodePNG(img)
	if err != nil {
		return "", err
	}

	c := gosseract.NewClient()
	defer c.Close()

	if err := c.SetLanguage(e.languages...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetPageSegMode(e.pageSegMode); err != nil {
		return "", fmt.Errorf("set page segmentation mode: %w", err)
	}
	if e.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.dpi)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
