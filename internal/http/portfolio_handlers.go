package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"portfolio-advisor/internal/service"
)

func (h *Handler) createPortfolio(c *gin.Context) {
	var req createPortfolioRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	portfolio, err := h.portfolios.Create(c.Request.Context(), currentUser(c).ID, req.PortfolioJSON, req.RiskProfile)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, portfolioToResponse(*portfolio), "Portfolio created successfully")
}

func (h *Handler) latestPortfolio(c *gin.Context) {
	userID, err := parseUserID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	portfolio, err := h.portfolios.Latest(c.Request.Context(), currentUser(c).ID, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, portfolioToResponse(*portfolio), "Portfolio fetched successfully")
}

func (h *Handler) portfolioHistory(c *gin.Context) {
	userID, err := parseUserID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	history, err := h.portfolios.History(c.Request.Context(), currentUser(c).ID, userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := make([]PortfolioResponse, len(history))
	for i := range history {
		resp[i] = portfolioToResponse(history[i])
	}
	respond(c, http.StatusOK, resp, "Portfolio history fetched successfully")
}

func (h *Handler) updatePortfolio(c *gin.Context) {
	userID, err := parseUserID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req updatePortfolioRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	portfolio, err := h.portfolios.Update(c.Request.Context(), currentUser(c).ID, userID, req.UpdatedPortfolioJSON, req.RiskProfile)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, portfolioToResponse(*portfolio), "Portfolio updated successfully")
}

func (h *Handler) deletePortfolio(c *gin.Context) {
	userID, err := parseUserID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	if _, err := h.portfolios.Delete(c.Request.Context(), currentUser(c).ID, userID); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{}, "Portfolios deleted successfully")
}

func (h *Handler) portfolioArchives(c *gin.Context) {
	userID, err := parseUserID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	entries, err := h.portfolios.Archives(c.Request.Context(), currentUser(c).ID, userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := make([]ArchiveResponse, len(entries))
	for i := range entries {
		resp[i] = archiveToResponse(entries[i])
	}
	respond(c, http.StatusOK, resp, "Portfolio archives fetched successfully")
}

func parseUserID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, service.ValidationError("invalid user id", "userId")
	}
	return id, nil
}
