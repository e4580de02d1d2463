package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"invoice-ocr/internal/models"
	"invoice-ocr/internal/services"
)

const maxMultipartMemory = 8 << 20 // 8 MB

// HealthMessage is the fixed body of GET /.
const HealthMessage = "OCR Invoice App backend je aktiven!"

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// ErrorMode selects how processing failures map to HTTP status codes.
type ErrorMode string

const (
	// ErrorModeCompat answers 200 for every upload and carries the outcome
	// only in the body's status field.
	ErrorModeCompat ErrorMode = "compat"
	// ErrorModeStrict maps each failure kind to a conventional status code.
	ErrorModeStrict ErrorMode = "strict"
)

// Processor runs the OCR pipeline over one uploaded document.
type Processor interface {
	Process(ctx context.Context, data []byte) (*models.Extraction, error)
}

// CORSOptions is the cross-origin allow-list.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

type Options struct {
	ErrorMode      ErrorMode
	MaxUploadBytes int64 // 0 disables the limit
	CORS           CORSOptions
}

type Server struct {
	router    chi.Router
	ingestion Processor
	logger    *zap.Logger
	opts      Options
}

// UploadResult is the decoded form of any POST /upload response. Successful
// responses carry PagesRead and OCRText, failures carry Message and, in
// strict mode, Error.
type UploadResult struct {
	Status    string   `json:"status"`
	PagesRead int      `json:"pages_read"`
	OCRText   []string `json:"ocr_text"`
	Message   string   `json:"message"`
	Error     string   `json:"error"`
}

type uploadSuccess struct {
	Status    string   `json:"status"`
	PagesRead int      `json:"pages_read"`
	OCRText   []string `json:"ocr_text"`
}

type uploadFailure struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func NewServer(ingestion Processor, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ErrorMode == "" {
		opts.ErrorMode = ErrorModeCompat
	}
	s := &Server{
		router:    chi.NewRouter(),
		ingestion: ingestion,
		logger:    logger,
		opts:      opts,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(
		middleware.RealIP,
		s.requestID,
		s.requestLogger,
		s.recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.CORS.AllowedOrigins,
			AllowedMethods:   s.opts.CORS.AllowedMethods,
			AllowedHeaders:   s.opts.CORS.AllowedHeaders,
			AllowCredentials: s.opts.CORS.AllowCredentials,
			MaxAge:           300,
		}),
	)

	s.router.Get("/", s.handleHealth)
	s.router.Post("/upload", s.handleUpload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": HealthMessage})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUpload(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	extraction, err := s.ingestion.Process(r.Context(), data)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadSuccess{
		Status:    StatusOK,
		PagesRead: extraction.PagesRead(),
		OCRText:   extraction.Texts(),
	})
}

// readUpload returns the bytes of the uploaded file. The "file" field is
// preferred; any single file field is accepted otherwise.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if s.opts.MaxUploadBytes > 0 {
		if r.ContentLength > s.opts.MaxUploadBytes {
			return nil, services.InvalidInput(services.ErrTooLarge)
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, services.InvalidInput(services.ErrTooLarge)
		}
		return nil, services.InvalidInput(errors.New("invalid multipart form"))
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	header := pickFile(r.MultipartForm)
	if header == nil {
		return nil, services.InvalidInput(services.ErrNoFile)
	}

	src, err := header.Open()
	if err != nil {
		return nil, services.InvalidInput(err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, services.InvalidInput(err)
	}
	return data, nil
}

func pickFile(form *multipart.Form) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File["file"]; len(files) > 0 {
		return files[0]
	}
	for _, files := range form.File {
		if len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.KindOf(err)
	s.logger.Warn("upload failed",
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)

	result := uploadFailure{Status: StatusError, Message: err.Error()}
	status := http.StatusOK
	if s.opts.ErrorMode == ErrorModeStrict {
		status = statusFor(kind, err)
		result.Error = string(kind)
	}
	writeJSON(w, status, result)
}

func statusFor(kind services.ErrorKind, err error) int {
	switch kind {
	case services.KindInvalidInput:
		if errors.Is(err, services.ErrTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case services.KindRasterizationFailed:
		return http.StatusUnprocessableEntity
	case services.KindRecognitionFailed:
		return http.StatusBadGateway
	case services.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
