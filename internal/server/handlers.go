package server

import (
	"net/http"

	"media-proxy/internal/downloader"
	"media-proxy/internal/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"tools":  s.paths,
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	var req models.DownloadRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	err := s.downloads.Download(c.Request.Context(), req, func(a *downloader.Artifact) error {
		c.FileAttachment(a.Path, a.Filename)
		return nil
	})
	if err == nil {
		return
	}
	if c.Writer.Written() {
		// headers are gone; all that is left is to record it
		log.WithError(err).Warn("Download failed after the response started")
		_ = c.Error(err)
		return
	}
	abortWithError(c, statusFor(err), err)
}

func (s *Server) handleFormats(c *gin.Context) {
	var req models.FormatsRequest
	if c.Request.Method == http.MethodPost {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
	} else if err := c.ShouldBindQuery(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	resp, err := s.formats.List(c.Request.Context(), req.URL)
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func abortWithError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: err.Error()})
}
