package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	RasterizerMuPDF       = "mupdf"
	RasterizerGhostscript = "ghostscript"

	EngineTesseract = "tesseract"
	EngineVision    = "vision"

	ErrorModeCompat = "compat"
	ErrorModeStrict = "strict"

	ValidationRelaxed = "relaxed"
	ValidationStrict  = "strict"
	ValidationOff     = "off"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port string

	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool

	Rasterizer     string
	RasterDPI      int
	GhostscriptBin string
	PDFValidation  string

	OCREngine      string
	OCRLanguages   []string
	OCRPageSegMode int

	OpenAIKey      string
	OpenAIEndpoint string
	OpenAIModel    string

	MaxUploadBytes int64
	ErrorMode      string

	LogLevel  string
	LogFormat string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() (Config, error) {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current process environment without
// consulting any .env file.
func FromEnv() (Config, error) {
	var errs []error

	cfg := Config{
		Port:             getEnv("PORT", "8000"),
		AllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		AllowedMethods:   getList("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
		AllowedHeaders:   getList("CORS_ALLOWED_HEADERS", "Accept,Content-Type"),
		Rasterizer:       strings.ToLower(getEnv("RASTERIZER", RasterizerMuPDF)),
		GhostscriptBin:   getEnv("GHOSTSCRIPT_BIN", "gs"),
		PDFValidation:    strings.ToLower(getEnv("PDF_VALIDATION", ValidationRelaxed)),
		OCREngine:        strings.ToLower(getEnv("OCR_ENGINE", EngineTesseract)),
		OCRLanguages:     getList("OCR_LANGUAGES", "eng"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIEndpoint:   getEnv("OPENAI_API_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIModel:      getEnv("OPENAI_VISION_MODEL", "gpt-4o-mini"),
		ErrorMode:        strings.ToLower(getEnv("ERROR_MODE", ErrorModeCompat)),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "json")),
		AllowCredentials: true,
	}

	var err error
	if cfg.AllowCredentials, err = getBool("CORS_ALLOW_CREDENTIALS", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.RasterDPI, err = getInt("RASTER_DPI", 200); err != nil {
		errs = append(errs, err)
	}
	if cfg.OCRPageSegMode, err = getInt("OCR_PAGE_SEG_MODE", 3); err != nil {
		errs = append(errs, err)
	}
	maxUpload, err := getInt("MAX_UPLOAD_BYTES", 64<<20)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	if cfg.ReadTimeout, err = getDuration("READ_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.WriteTimeout, err = getDuration("WRITE_TIMEOUT", 10*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every setting that the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.Rasterizer {
	case RasterizerMuPDF, RasterizerGhostscript:
	default:
		errs = append(errs, fmt.Errorf("RASTERIZER must be %q or %q, got %q", RasterizerMuPDF, RasterizerGhostscript, c.Rasterizer))
	}
	switch c.OCREngine {
	case EngineTesseract:
	case EngineVision:
		if c.OpenAIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when OCR_ENGINE=vision"))
		}
	default:
		errs = append(errs, fmt.Errorf("OCR_ENGINE must be %q or %q, got %q", EngineTesseract, EngineVision, c.OCREngine))
	}
	switch c.ErrorMode {
	case ErrorModeCompat, ErrorModeStrict:
	default:
		errs = append(errs, fmt.Errorf("ERROR_MODE must be %q or %q, got %q", ErrorModeCompat, ErrorModeStrict, c.ErrorMode))
	}
	switch c.PDFValidation {
	case ValidationRelaxed, ValidationStrict, ValidationOff:
	default:
		errs = append(errs, fmt.Errorf("PDF_VALIDATION must be one of relaxed, strict, off, got %q", c.PDFValidation))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	if c.RasterDPI <= 0 {
		errs = append(errs, fmt.Errorf("RASTER_DPI must be positive, got %d", c.RasterDPI))
	}
	if c.OCRPageSegMode < 0 || c.OCRPageSegMode > 13 {
		errs = append(errs, fmt.Errorf("OCR_PAGE_SEG_MODE must be between 0 and 13, got %d", c.OCRPageSegMode))
	}
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS must list at least one origin"))
	}
	if len(c.OCRLanguages) == 0 {
		errs = append(errs, errors.New("OCR_LANGUAGES must list at least one language"))
	}
	if c.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must not be negative, got %d", c.MaxUploadBytes))
	}

	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return val, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
	return val, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return val, nil
}
