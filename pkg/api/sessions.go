package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/cognitodev/launchpad/pkg/diff"
	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/sandbox"
	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CreateSessionRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

type SendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

type PutFileRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

type PatchFileRequest struct {
	Path  string `json:"path" binding:"required"`
	Patch string `json:"patch" binding:"required"`
}

func (s *Server) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": s.catalog.Templates()})
}

// CreateSession starts a build in the background and returns its id at once.
func (s *Server) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	o, err := s.manager.Create()
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	go func() {
		if err := o.Start(s.baseCtx, req.Prompt); err != nil {
			logger.Warn("build finished with error", zap.String("session", o.ID()), zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"id": o.ID()})
}

func (s *Server) GetSession(c *gin.Context) {
	o, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, o.Snapshot())
}

func (s *Server) DeleteSession(c *gin.Context) {
	if !s.manager.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// SendMessage runs a patch turn and answers with the resulting session. The turn finishes
// even if the client disconnects; a second message waits for the first.
func (s *Server) SendMessage(c *gin.Context) {
	o, ok := s.lookup(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	err := o.SendMessage(context.WithoutCancel(c.Request.Context()), req.Message)
	switch {
	case errors.Is(err, session.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, session.ErrSessionFailed):
		c.JSON(http.StatusGone, gin.H{"error": err.Error(), "session": o.Snapshot()})
		return
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, o.Snapshot())
}

func (s *Server) PutFile(c *gin.Context) {
	o, ok := s.lookup(c)
	if !ok {
		return
	}

	var req PutFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	if err := o.EditFile(c.Request.Context(), req.Path, req.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// PatchFile applies a unified diff to one existing file and writes the result through.
func (s *Server) PatchFile(c *gin.Context) {
	o, ok := s.lookup(c)
	if !ok {
		return
	}

	var req PatchFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path and patch are required"})
		return
	}

	cleaned, err := sandbox.CleanPath(req.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current, exists := o.Snapshot().Files[cleaned]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	stats, err := diff.StatPatch(cleaned, req.Patch)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	updated, err := diff.Apply(current, req.Patch)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if err := o.EditFile(c.Request.Context(), cleaned, updated); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats, "content": updated})
}

func (s *Server) Refresh(c *gin.Context) {
	o, ok := s.lookup(c)
	if !ok {
		return
	}

	url, ok := o.RefreshURL()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no preview URL yet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) lookup(c *gin.Context) (*session.Orchestrator, bool) {
	o, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return o, true
}
