package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"portfolio-advisor/internal/agent"
)

// AgentClient is the upstream chat endpoint.
type AgentClient interface {
	Chat(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error)
}

type ChatInput struct {
	SessionID             string
	UserID                string
	Message               string
	InitialPreferenceData json.RawMessage
}

// ChatService proxies chat messages to the agent service.
type ChatService interface {
	Chat(ctx context.Context, in ChatInput) (*agent.ChatResponse, error)
}

type chatService struct {
	client AgentClient
}

func NewChatService(client AgentClient) ChatService {
	return &chatService{client: client}
}

func (s *chatService) Chat(ctx context.Context, in ChatInput) (*agent.ChatResponse, error) {
	var missing []string
	if strings.TrimSpace(in.SessionID) == "" {
		missing = append(missing, "sessionId")
	}
	if strings.TrimSpace(in.UserID) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(in.Message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return nil, validationError("Session ID, User ID, and message are required", missing...)
	}

	resp, err := s.client.Chat(ctx, agent.ChatRequest{
		SessionID: in.SessionID,
		UserID:    in.UserID,
		Data: agent.ChatData{
			Message:               in.Message,
			InitialPreferenceData: in.InitialPreferenceData,
		},
	})
	if err != nil {
		var statusErr *agent.StatusError
		switch {
		case errors.As(err, &statusErr) && statusErr.Status >= http.StatusBadRequest:
			return nil, upstreamError(statusErr.Status, statusErr.Message)
		case errors.As(err, &statusErr):
			// 1xx and 3xx answers cannot be relayed as an error envelope
			return nil, upstreamUnavailableError("Unexpected response from agent service", err)
		case errors.Is(err, agent.ErrUnavailable):
			return nil, upstreamUnavailableError("No response from agent service", err)
		default:
			return nil, err
		}
	}
	return resp, nil
}
