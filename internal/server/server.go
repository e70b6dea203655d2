// Package server exposes ingestion and chat sessions over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"docqa/internal/models"
	"docqa/internal/rag"
)

// Asker answers a question within a session.
type Asker interface {
	Ask(ctx context.Context, sess *rag.Session, query string) (*rag.Answer, error)
	IndexLoaded(ctx context.Context) (bool, error)
}

// Ingester adds uploaded files and web pages to the index.
type Ingester interface {
	IngestFileAs(ctx context.Context, path, source string) (int, error)
	IngestURL(ctx context.Context, url string) (int, error)
}

type Options struct {
	DefaultModel string
	Models       []string
	RAGEnabled   bool
	// MaxUploadBytes bounds a multipart upload request.
	MaxUploadBytes int64
}

type Server struct {
	asker    Asker
	ingester Ingester
	sessions *rag.SessionManager
	opts     Options
	engine   *gin.Engine

	// index is written by ingestion and read by queries
	index sync.RWMutex
}

func New(asker Asker, ingester Ingester, sessions *rag.SessionManager, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	s := &Server{asker: asker, ingester: ingester, sessions: sessions, opts: opts}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = 8 << 20

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/insights", s.listInsights)

	r.POST("/documents", s.uploadDocuments)
	r.POST("/urls", s.ingestURL)

	sg := r.Group("/sessions")
	sg.POST("", s.createSession)
	sg.GET("/:id", s.getSession)
	sg.PATCH("/:id", s.updateSession)
	sg.DELETE("/:id", s.deleteSession)
	sg.POST("/:id/messages", s.ask)
	sg.DELETE("/:id/history", s.clearHistory)
	sg.POST("/:id/insights/:name", s.runInsight)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request")
	}
}

// statusFor maps an error kind to the HTTP status reported to clients.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrEmptyQuery), errors.Is(err, models.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrIngestion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrEmbedding), errors.Is(err, models.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrRetrieval):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{
		"error": err.Error(),
		"kind":  models.KindName(err),
	})
}
