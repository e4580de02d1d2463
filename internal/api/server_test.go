package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-ocr/internal/models"
	"invoice-ocr/internal/raster"
	"invoice-ocr/internal/services"
	"invoice-ocr/internal/testutil"
)

type processorFunc func(ctx context.Context, data []byte) (*models.Extraction, error)

func (f processorFunc) Process(ctx context.Context, data []byte) (*models.Extraction, error) {
	return f(ctx, data)
}

// echoProcessor treats each line of the upload as one page of text.
var echoProcessor = processorFunc(func(_ context.Context, data []byte) (*models.Extraction, error) {
	out := &models.Extraction{Pages: []models.PageText{}}
	for i, line := range strings.Split(string(data), "\n") {
		out.Pages = append(out.Pages, models.PageText{Number: i + 1, Text: line})
	}
	return out, nil
})

func failingProcessor(err error) processorFunc {
	return func(context.Context, []byte) (*models.Extraction, error) {
		return nil, err
	}
}

var testCORS = CORSOptions{
	AllowedOrigins: []string{"http://localhost:3000"},
	AllowedMethods: []string{"GET", "POST", "OPTIONS"},
	AllowedHeaders: []string{"Accept", "Content-Type"},
}

func newTestServer(p Processor, mode ErrorMode) http.Handler {
	return NewServer(p, nil, Options{ErrorMode: mode, MaxUploadBytes: 1 << 20, CORS: testCORS}).Handler()
}

func uploadRequest(t *testing.T, field string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "invoice.pdf")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file here"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) (UploadResult, map[string]json.RawMessage) {
	t.Helper()
	var result UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	return result, raw
}

func TestHealth(t *testing.T) {
	h := newTestServer(failingProcessor(errors.New("boom")), ErrorModeCompat)

	first := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, first.Code)
	assert.JSONEq(t, `{"message":"OCR Invoice App backend je aktiven!"}`, first.Body.String())

	// A failed upload must not change what the health route reports.
	serve(h, uploadRequest(t, "file", []byte("junk")))

	second := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestUploadSuccess(t *testing.T) {
	h := newTestServer(echoProcessor, ErrorModeCompat)

	rec := serve(h, uploadRequest(t, "file", []byte("INVOICE 123\npage two\npage three")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	result, raw := decodeResult(t, rec)
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, 3, result.PagesRead)
	assert.Equal(t, []string{"INVOICE 123", "page two", "page three"}, result.OCRText)
	assert.NotContains(t, raw, "message")
	assert.NotContains(t, raw, "error")
}

func TestUploadAcceptsOtherFileField(t *testing.T) {
	h := newTestServer(echoProcessor, ErrorModeCompat)

	result, _ := decodeResult(t, serve(h, uploadRequest(t, "document", []byte("only page"))))
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, []string{"only page"}, result.OCRText)
}

func TestUploadZeroPages(t *testing.T) {
	// The page tree is empty, so Ghostscript is never started.
	ingestion := services.NewIngestionService(
		services.NewPDFService(services.ValidationRelaxed),
		raster.NewGhostscript("/nonexistent/gs", 0),
		stubRecognizer{},
		nil,
	)
	h := newTestServer(ingestion, ErrorModeCompat)

	rec := serve(h, uploadRequest(t, "file", testutil.EmptyPDF()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK","pages_read":0,"ocr_text":[]}`, rec.Body.String())
}

// stubRasterizer renders one blank page per 100 bytes of input.
type stubRasterizer struct{}

func (stubRasterizer) Rasterize(_ context.Context, data []byte) ([]models.PageImage, error) {
	pages := make([]models.PageImage, 0)
	for i := 0; i*100 < len(data); i++ {
		pages = append(pages, models.PageImage{Number: i + 1, Image: image.NewGray(image.Rect(0, 0, 1, 1))})
	}
	return pages, nil
}

type stubRecognizer struct{}

func (stubRecognizer) Recognize(context.Context, image.Image) (string, error) {
	return "text", nil
}

func TestUploadRejectsNonPDFWithStatus200(t *testing.T) {
	ingestion := services.NewIngestionService(
		services.NewPDFService(services.ValidationRelaxed),
		stubRasterizer{},
		stubRecognizer{},
		nil,
	)
	h := newTestServer(ingestion, ErrorModeCompat)

	for name, payload := range map[string][]byte{
		"empty":   {},
		"text":    []byte("Dear customer, please find attached"),
		"garbage": bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 64),
	} {
		t.Run(name, func(t *testing.T) {
			rec := serve(h, uploadRequest(t, "file", payload))
			require.Equal(t, http.StatusOK, rec.Code)

			result, raw := decodeResult(t, rec)
			assert.Equal(t, StatusError, result.Status)
			assert.NotEmpty(t, result.Message)
			assert.NotContains(t, raw, "pages_read")
			assert.NotContains(t, raw, "ocr_text")
			assert.NotContains(t, raw, "error")
		})
	}
}

func TestUploadRealPDFThroughIngestion(t *testing.T) {
	ingestion := services.NewIngestionService(
		services.NewPDFService(services.ValidationRelaxed),
		stubRasterizer{},
		stubRecognizer{},
		nil,
	)
	h := newTestServer(ingestion, ErrorModeCompat)

	result, _ := decodeResult(t, serve(h, uploadRequest(t, "file", testutil.PDF(t, "INVOICE 123"))))
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, result.PagesRead, len(result.OCRText))
}

func TestUploadRenderablePDFWithoutEOF(t *testing.T) {
	ingestion := services.NewIngestionService(
		services.NewPDFService(services.ValidationRelaxed),
		stubRasterizer{},
		stubRecognizer{},
		nil,
	)
	h := newTestServer(ingestion, ErrorModeStrict)

	rec := serve(h, uploadRequest(t, "file", testutil.WithoutEOF(testutil.PDF(t, "INVOICE 123"))))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result, _ := decodeResult(t, rec)
	assert.Equal(t, StatusOK, result.Status)
	assert.NotZero(t, result.PagesRead)
}

func TestUploadStrictStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid", services.InvalidInput(services.ErrNotPDF), http.StatusBadRequest, "invalid_input"},
		{"rasterization", &services.ProcessingError{Kind: services.KindRasterizationFailed, Err: errors.New("bad xref")}, http.StatusUnprocessableEntity, "rasterization_failed"},
		{"recognition", &services.ProcessingError{Kind: services.KindRecognitionFailed, Page: 2, Err: errors.New("tesseract died")}, http.StatusBadGateway, "recognition_failed"},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), http.StatusServiceUnavailable, "canceled"},
		{"untagged", errors.New("out of memory"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			strict := serve(newTestServer(failingProcessor(tc.err), ErrorModeStrict), uploadRequest(t, "file", []byte("x")))
			assert.Equal(t, tc.status, strict.Code)
			result, _ := decodeResult(t, strict)
			assert.Equal(t, StatusError, result.Status)
			assert.Equal(t, tc.kind, result.Error)
			assert.Equal(t, tc.err.Error(), result.Message)

			compat := serve(newTestServer(failingProcessor(tc.err), ErrorModeCompat), uploadRequest(t, "file", []byte("x")))
			assert.Equal(t, http.StatusOK, compat.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"status":"ERROR","message":%q}`, tc.err.Error()), compat.Body.String())
		})
	}
}

func TestUploadMissingFile(t *testing.T) {
	rec := serve(newTestServer(echoProcessor, ErrorModeStrict), uploadRequest(t, "", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	result, _ := decodeResult(t, rec)
	assert.Equal(t, services.ErrNoFile.Error(), result.Message)
}

func TestUploadNotMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(newTestServer(echoProcessor, ErrorModeCompat), req)
	assert.Equal(t, http.StatusOK, rec.Code)
	result, _ := decodeResult(t, rec)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "invalid multipart form", result.Message)
}

func TestUploadTooLarge(t *testing.T) {
	h := NewServer(echoProcessor, nil, Options{ErrorMode: ErrorModeStrict, MaxUploadBytes: 512, CORS: testCORS}).Handler()

	rec := serve(h, uploadRequest(t, "file", bytes.Repeat([]byte("a"), 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	result, _ := decodeResult(t, rec)
	assert.Equal(t, "invalid_input", result.Error)
}

func TestUploadPanicIsReportedAsError(t *testing.T) {
	h := newTestServer(processorFunc(func(context.Context, []byte) (*models.Extraction, error) {
		panic("engine segfault")
	}), ErrorModeCompat)

	rec := serve(h, uploadRequest(t, "file", []byte("x")))
	assert.Equal(t, http.StatusOK, rec.Code)
	result, _ := decodeResult(t, rec)
	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Message, "engine segfault")
}

func TestUploadMethodNotAllowed(t *testing.T) {
	rec := serve(newTestServer(echoProcessor, ErrorModeCompat), httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestID(t *testing.T) {
	h := newTestServer(echoProcessor, ErrorModeCompat)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	rec = serve(h, req)
	assert.Equal(t, "client-supplied", rec.Header().Get("X-Request-ID"))
}

func TestCORSAllowList(t *testing.T) {
	h := newTestServer(echoProcessor, ErrorModeCompat)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		return serve(h, req)
	}

	allowed := preflight("http://localhost:3000")
	assert.Equal(t, "http://localhost:3000", allowed.Header().Get("Access-Control-Allow-Origin"))

	denied := preflight("https://evil.example.com")
	assert.Empty(t, denied.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	assert.Equal(t, "http://localhost:3000", serve(h, req).Header().Get("Access-Control-Allow-Origin"))
}

func TestConcurrentUploadsDoNotMix(t *testing.T) {
	h := newTestServer(echoProcessor, ErrorModeCompat)

	const clients = 16
	var wg sync.WaitGroup
	results := make([]UploadResult, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			fw, _ := mw.CreateFormFile("file", "invoice.pdf")
			fmt.Fprintf(fw, "client %d page 1\nclient %d page 2", i, i)
			mw.Close()

			req := httptest.NewRequest(http.MethodPost, "/upload", &body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			_ = json.Unmarshal(rec.Body.Bytes(), &results[i])
		}(i)
	}
	wg.Wait()

	for i, result := range results {
		assert.Equal(t, StatusOK, result.Status)
		assert.Equal(t, []string{
			fmt.Sprintf("client %d page 1", i),
			fmt.Sprintf("client %d page 2", i),
		}, result.OCRText)
	}
}
