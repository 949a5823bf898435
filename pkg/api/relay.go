package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cognitodev/launchpad/pkg/llm"
	types "github.com/cognitodev/launchpad/pkg/llm/types"
	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TemplateRequest struct {
	Prompt string `json:"prompt"`
}

type TemplateResponse struct {
	Template  string   `json:"template"`
	Prompts   []string `json:"prompts"`
	UIPrompts []string `json:"uiPrompts"`
}

// ChatPart and ChatMessage follow the gemini content shape the browser client sends.
type ChatPart struct {
	Text string `json:"text"`
}

type ChatMessage struct {
	Role  string     `json:"role"`
	Parts []ChatPart `json:"parts"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// Template classifies a prompt and returns the chat turns that seed a browser-side build.
func (s *Server) Template(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "prompt is required"})
		return
	}

	id, reply, err := llm.ClassifyTemplate(c.Request.Context(), s.gateway, req.Prompt, s.catalog.IDs())
	if errors.Is(err, llm.ErrNoTemplateMatch) {
		logger.Info("no template matched", zap.String("reply", reply))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid template type"})
		return
	}
	if err != nil {
		logger.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	tmpl, _ := s.catalog.Get(id)
	c.JSON(http.StatusOK, TemplateResponse{
		Template:  id,
		Prompts:   tmpl.Prompts(),
		UIPrompts: []string{tmpl.Starter},
	})
}

// Chat relays a full conversation to the gateway and returns the raw reply.
func (s *Server) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "messages are required"})
		return
	}

	history := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		texts := make([]string, 0, len(m.Parts))
		for _, p := range m.Parts {
			texts = append(texts, p.Text)
		}

		role := types.RoleUser
		if m.Role == "model" || m.Role == string(types.RoleAssistant) {
			role = types.RoleAssistant
		}
		history = append(history, types.Message{Role: role, Text: strings.Join(texts, "")})
	}

	reply, err := s.gateway.Generate(c.Request.Context(), history, types.GenerateFilesOptions)
	if err != nil {
		logger.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": reply})
}
