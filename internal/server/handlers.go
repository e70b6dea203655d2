package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"docqa/internal/models"
	"docqa/internal/parser"
	"docqa/internal/rag"
)

func (s *Server) health(c *gin.Context) {
	loaded, err := s.asker.IndexLoaded(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"index":    loaded,
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) listInsights(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"insights": rag.Insights})
}

type fileResult struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// uploadDocuments ingests every file of a multipart "files" field. A bad file
// is reported in its own result and does not stop the others.
func (s *Server) uploadDocuments(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form: " + err.Error()})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}

	tmpDir, err := os.MkdirTemp("", "docqa-upload-")
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer os.RemoveAll(tmpDir)

	s.index.Lock()
	defer s.index.Unlock()

	results := make([]fileResult, 0, len(files))
	total := 0
	for i, fh := range files {
		name := filepath.Base(fh.Filename)
		res := fileResult{Source: name}

		if !parser.Supported(name) {
			res.Error = models.Errorf(models.ErrIngestion, "upload", "unsupported file format for %s", name).Error()
			results = append(results, res)
			continue
		}

		// keep the extension so extraction can dispatch on it
		path := filepath.Join(tmpDir, fmt.Sprintf("upload-%d%s", i, filepath.Ext(name)))
		if err := c.SaveUploadedFile(fh, path); err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		n, err := s.ingester.IngestFileAs(c.Request.Context(), path, name)
		if err != nil {
			if !errors.Is(err, models.ErrIngestion) {
				log.Error().Err(err).Str("source", name).Msg("Upload aborted")
				abortWithError(c, err)
				return
			}
			res.Error = err.Error()
		}
		res.Chunks = n
		total += n
		results = append(results, res)
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "chunks": total})
}

type urlRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) ingestURL(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.index.Lock()
	defer s.index.Unlock()

	n, err := s.ingester.IngestURL(c.Request.Context(), req.URL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": req.URL, "chunks": n})
}

type sessionRequest struct {
	Model      *string `json:"model"`
	RAGEnabled *bool   `json:"rag_enabled"`
}

func (s *Server) createSession(c *gin.Context) {
	var req sessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	model, ragEnabled := s.opts.DefaultModel, s.opts.RAGEnabled
	if req.Model != nil {
		model = *req.Model
	}
	if req.RAGEnabled != nil {
		ragEnabled = *req.RAGEnabled
	}

	sess, err := rag.NewSession(model, ragEnabled, s.opts.Models)
	if err != nil {
		abortWithError(c, err)
		return
	}
	loaded, err := s.asker.IndexLoaded(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.sessions.Add(sess)

	c.JSON(http.StatusCreated, gin.H{
		"session":  sess.View(),
		"greeting": rag.Greeting(ragEnabled, loaded),
	})
}

func (s *Server) session(c *gin.Context) (*rag.Session, bool) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
	}
	return sess, ok
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) updateSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Model != nil {
		if err := sess.SetModel(*req.Model); err != nil {
			abortWithError(c, err)
			return
		}
	}
	if req.RAGEnabled != nil {
		sess.SetRAGEnabled(*req.RAGEnabled)
	}
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.sessions.Delete(c.Param("id")) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearHistory(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.ClearHistory()
	c.Status(http.StatusNoContent)
}

type askRequest struct {
	Query string `json:"query" binding:"required"`
}

func (s *Server) ask(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.answer(c, sess, req.Query)
}

func (s *Server) runInsight(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	insight, found := rag.FindInsight(c.Param("name"))
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown insight"})
		return
	}
	s.answer(c, sess, insight.Query)
}

func (s *Server) answer(c *gin.Context, sess *rag.Session, query string) {
	s.index.RLock()
	answer, err := s.asker.Ask(c.Request.Context(), sess, query)
	s.index.RUnlock()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}
