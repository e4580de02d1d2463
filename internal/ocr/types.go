// Package ocr holds the text recognition engines used for page images.
//
// Engines implement Recognize(ctx, image.Image) (string, error) and create
// their underlying client per call, so a single engine value can serve
// concurrent requests.
package ocr

// Options configures an engine. Not every engine honours every field.
type Options struct {
	// Languages are Tesseract language codes, e.g. "eng" or "slv".
	Languages []string
	// PageSegMode is the Tesseract page segmentation mode (0-13).
	PageSegMode int
	// DPI is the resolution pages were rendered at.
	DPI int
}

// Config holds configuration for the remote vision engine.
type Config struct {
	APIKey   string
	Endpoint string
	Model    string
}
