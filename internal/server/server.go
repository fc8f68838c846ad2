// Package server exposes the download and format listing services over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"media-proxy/internal/downloader"
	"media-proxy/internal/gateway"
	"media-proxy/internal/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Downloader runs a download job and hands the artifact to deliver.
type Downloader interface {
	Download(ctx context.Context, req models.DownloadRequest, deliver downloader.DeliverFunc) error
}

// FormatLister lists the downloadable formats of a page.
type FormatLister interface {
	List(ctx context.Context, url string) (models.FormatsResponse, error)
}

// Server is the HTTP front of the media proxy.
type Server struct {
	addr      string
	downloads Downloader
	formats   FormatLister
	paths     gateway.Paths
	engine    *gin.Engine
	server    *http.Server
}

// New creates a Server and registers its routes.
func New(addr string, downloads Downloader, formats FormatLister, paths gateway.Paths) *Server {
	s := &Server{
		addr:      addr,
		downloads: downloads,
		formats:   formats,
		paths:     paths,
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(loggingMiddleware())

	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/download", s.handleDownload)
	s.engine.GET("/formats", s.handleFormats)
	s.engine.POST("/formats", s.handleFormats)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      0, // downloads can take as long as the tool does
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address until Stop is called. A Stop that
// lands before Start makes Start return nil straight away.
func (s *Server) Start() error {
	log.Infof("Server running at %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down. It is safe to call from another
// goroutine at any time after New, including before Start.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	if errors.Is(err, models.ErrClientInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"client":   c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request served")
		}
	}
}
