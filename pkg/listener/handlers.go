package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/session"
	"go.uber.org/zap"
)

const (
	ChannelNewBuild       = "new_build"
	ChannelNewChatMessage = "new_chat_message"
	ChannelEditFile       = "edit_file"
)

type NewBuildPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Prompt    string `json:"prompt"`
}

type NewChatMessagePayload struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type EditFilePayload struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

// Handlers turns work queue payloads into session operations.
type Handlers struct {
	Manager *session.Manager
	// ObserverFor returns the per-session observer that publishes to userID, or nil
	ObserverFor func(ctx context.Context, sessionID string, userID string) session.Observer
}

// handleNewBuild runs the whole build. A failed session is an outcome, not a queue error,
// so the row is completed rather than retried.
func (h *Handlers) handleNewBuild(ctx context.Context, payload string) error {
	p := NewBuildPayload{}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if p.SessionID == "" || p.Prompt == "" {
		return fmt.Errorf("sessionId and prompt are required: %s", payload)
	}

	logger.Info("New build notification received", zap.String("sessionId", p.SessionID), zap.String("userId", p.UserID))

	observers := []session.Observer{}
	if h.ObserverFor != nil {
		if obs := h.ObserverFor(ctx, p.SessionID, p.UserID); obs != nil {
			observers = append(observers, obs)
		}
	}

	o, err := h.Manager.CreateWithID(p.SessionID, observers...)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if err := o.Start(ctx, p.Prompt); err != nil {
		if errors.Is(err, session.ErrSessionFailed) {
			logger.Warn("build failed", zap.String("sessionId", p.SessionID), zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to start session: %w", err)
	}

	return nil
}

// handleNewChatMessage runs one patch turn. A session that is still building is retried later.
func (h *Handlers) handleNewChatMessage(ctx context.Context, payload string) error {
	p := NewChatMessagePayload{}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	o, err := h.Manager.Get(p.SessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		logger.Warn("chat message for unknown session", zap.String("sessionId", p.SessionID))
		return nil
	}
	if err != nil {
		return err
	}

	err = o.SendMessage(ctx, p.Message)
	if errors.Is(err, session.ErrSessionFailed) {
		logger.Warn("patch failed", zap.String("sessionId", p.SessionID), zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (h *Handlers) handleEditFile(ctx context.Context, payload string) error {
	p := EditFilePayload{}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	o, err := h.Manager.Get(p.SessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		logger.Warn("file edit for unknown session", zap.String("sessionId", p.SessionID))
		return nil
	}
	if err != nil {
		return err
	}

	if err := o.EditFile(ctx, p.Path, p.Content); err != nil {
		// an unsafe path will never succeed
		logger.Warn("rejected file edit", zap.String("sessionId", p.SessionID), zap.Error(err))
	}

	return nil
}

func sessionLockKeyExtractor(payload []byte) (string, error) {
	var payloadMap map[string]interface{}
	if err := json.Unmarshal(payload, &payloadMap); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	sessionID, ok := payloadMap["sessionId"].(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("sessionId not found in payload or is not a string: %v", payloadMap)
	}
	return sessionID, nil
}
