package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-advisor/internal/metrics"
	"portfolio-advisor/internal/service"
)

func (h *Handler) chatAgent(c *gin.Context) {
	var req chatRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	resp, err := h.chat.Chat(c.Request.Context(), service.ChatInput{
		SessionID:             req.SessionID,
		UserID:                string(req.UserID),
		Message:               req.Data.Message,
		InitialPreferenceData: req.Data.InitialPreferenceData,
	})
	if err != nil {
		var svcErr *service.Error
		if errors.As(err, &svcErr) && !errors.Is(err, service.ErrValidation) {
			metrics.RecordAgentRequest(svcErr.Status)
		}
		h.fail(c, err)
		return
	}

	metrics.RecordAgentRequest(resp.Status)
	status := resp.Status
	if status == http.StatusNoContent {
		status = http.StatusOK
	}
	respond(c, status, resp.Data, "Agent chat response successfully proxied")
}
