// Package raster turns PDF documents into page images.
//
// Two backends are available: MuPDF in-process (subpackage mupdf, requires
// cgo) and Ghostscript as an external process. Both return pages in document
// order and an empty, non-nil slice for documents without pages.
package raster

// DefaultDPI matches the resolution the invoice frontend was tuned against.
const DefaultDPI = 200
