package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"invoice-ocr/internal/api"
	"invoice-ocr/internal/config"
	"invoice-ocr/internal/logging"
	"invoice-ocr/internal/ocr"
	"invoice-ocr/internal/ocr/tesseract"
	"invoice-ocr/internal/raster"
	"invoice-ocr/internal/raster/mupdf"
	"invoice-ocr/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newHandler(cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("error_mode", cfg.ErrorMode),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}

// Both pipeline stages report which backend they run on.
type (
	rasterizer interface {
		services.Rasterizer
		Name() string
	}
	recognizer interface {
		services.Recognizer
		Name() string
	}
)

func newHandler(cfg config.Config, logger *zap.Logger) http.Handler {
	pdfService := services.NewPDFService(services.ValidationMode(cfg.PDFValidation))
	renderer := newRasterizer(cfg)
	engine := newRecognizer(cfg)
	logger.Info("pipeline configured",
		zap.String("rasterizer", renderer.Name()),
		zap.String("ocr_engine", engine.Name()),
		zap.Int("dpi", cfg.RasterDPI),
		zap.String("pdf_validation", cfg.PDFValidation),
	)

	ingestion := services.NewIngestionService(
		pdfService,
		renderer,
		engine,
		logger.Named("ingestion"),
	)

	server := api.NewServer(ingestion, logger.Named("http"), api.Options{
		ErrorMode:      api.ErrorMode(cfg.ErrorMode),
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORS: api.CORSOptions{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   cfg.AllowedMethods,
			AllowedHeaders:   cfg.AllowedHeaders,
			AllowCredentials: cfg.AllowCredentials,
		},
	})
	return server.Handler()
}

func newRasterizer(cfg config.Config) rasterizer {
	if cfg.Rasterizer == config.RasterizerGhostscript {
		return raster.NewGhostscript(cfg.GhostscriptBin, cfg.RasterDPI)
	}
	return mupdf.New(cfg.RasterDPI)
}

func newRecognizer(cfg config.Config) recognizer {
	if cfg.OCREngine == config.EngineVision {
		return ocr.NewVisionEngine(ocr.Config{
			APIKey:   cfg.OpenAIKey,
			Endpoint: cfg.OpenAIEndpoint,
			Model:    cfg.OpenAIModel,
		})
	}
	return tesseract.New(ocr.Options{
		Languages:   cfg.OCRLanguages,
		PageSegMode: cfg.OCRPageSegMode,
		DPI:         cfg.RasterDPI,
	})
}
