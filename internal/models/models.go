package models

import "image"

// PageImage is one rendered page of an uploaded document.
type PageImage struct {
	Number int // 1-based position in the document
	Image  image.Image
}

// PageText is the recognized text for the page with the same Number.
type PageText struct {
	Number int
	Text   string
}

// Extraction holds the per-page OCR output of a single upload.
type Extraction struct {
	Pages []PageText
}

// PagesRead reports how many pages went through recognition.
func (e *Extraction) PagesRead() int {
	if e == nil {
		return 0
	}
	return len(e.Pages)
}

// Texts returns the page texts in document order. The result is never nil.
func (e *Extraction) Texts() []string {
	if e == nil {
		return []string{}
	}
	out := make([]string, 0, len(e.Pages))
	for _, page := range e.Pages {
		out = append(out, page.Text)
	}
	return out
}
