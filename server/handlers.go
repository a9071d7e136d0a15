package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
	"github.com/tonyzinh/system-hospital-backend/pkg/apperr"
	"github.com/tonyzinh/system-hospital-backend/pkg/orchestrator"
)

type answerRequest struct {
	Question string           `json:"question"`
	Model    string           `json:"model"`
	History  []models.Message `json:"history"`
}

type searchRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

type ingestRequest struct {
	URL string `json:"url"`
}

// bind decodes the JSON body. An empty body decodes to the zero value so
// that missing fields get their own validation message.
func bind(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil {
		return apperr.Invalid("", "JSON inválido: "+err.Error())
	}
	return nil
}

func (s *Server) handleAnswer(c *gin.Context) {
	var req answerRequest
	if err := bind(c, &req); err != nil {
		s.abortWithError(c, err, http.StatusBadGateway)
		return
	}
	answer, err := s.svc.Orchestrator.Complete(c.Request.Context(), orchestrator.Request{Question: req.Question})
	if err != nil {
		s.abortWithError(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

func (s *Server) handleAnswerAdvanced(c *gin.Context) {
	var req answerRequest
	if err := bind(c, &req); err != nil {
		s.abortWithError(c, err, http.StatusBadGateway)
		return
	}
	answer, err := s.svc.Orchestrator.CompleteWithRetry(c.Request.Context(), orchestrator.Request{
		Question: req.Question,
		Model:    req.Model,
	})
	if err != nil {
		s.abortWithError(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

func (s *Server) handleChat(c *gin.Context) {
	var req answerRequest
	if err := bind(c, &req); err != nil {
		s.abortWithError(c, err, http.StatusBadGateway)
		return
	}
	answer, err := s.svc.Orchestrator.Complete(c.Request.Context(), orchestrator.Request{
		Question: req.Question,
		History:  req.History,
		Model:    req.Model,
	})
	if err != nil {
		s.abortWithError(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := bind(c, &req); err != nil {
		s.abortWithError(c, err, http.StatusBadGateway)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.abortWithError(c, apperr.Invalid("question", "question é obrigatório."), http.StatusBadGateway)
		return
	}
	answer, hits, err := s.svc.Synthesizer.Answer(c.Request.Context(), req.Question, req.K)
	if err != nil {
		s.abortWithError(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer, "results": hits})
}

func (s *Server) handleIngestURL(c *gin.Context) {
	var req ingestRequest
	if err := bind(c, &req); err != nil {
		s.abortWithError(c, err, http.StatusBadGateway)
		return
	}
	chunks, err := s.svc.Ingest.Ingest(c.Request.Context(), req.URL)
	if err != nil {
		// anything but bad input is a failure of the remote site
		status := http.StatusBadGateway
		if apperr.IsValidation(err) {
			status = http.StatusBadRequest
		}
		s.abort(c, status, err)
		return
	}
	total, err := s.svc.Index.Rebuild(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"ok":             true,
		"chunks_created": len(chunks),
		"total_docs":     total,
	})
}

func (s *Server) handleRebuild(c *gin.Context) {
	total, err := s.svc.Index.Rebuild(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err, http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_docs": total})
}

func (s *Server) handleHealth(c *gin.Context) {
	status := s.svc.Orchestrator.Health(c.Request.Context())
	code := http.StatusOK
	if !status.OllamaOK {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (s *Server) handleCacheStats(c *gin.Context) {
	stats, err := s.svc.Orchestrator.CacheStats(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err, http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCacheCleanup(c *gin.Context) {
	if err := s.svc.Orchestrator.CacheCleanup(c.Request.Context()); err != nil {
		s.abortWithError(c, err, http.StatusServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cache limpo com sucesso."})
}
