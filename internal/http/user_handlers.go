package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-advisor/internal/metrics"
	"portfolio-advisor/internal/service"
)

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	age, err := req.Age.intValue("age")
	if err != nil {
		h.fail(c, service.ValidationError(err.Error(), "age"))
		return
	}

	user, token, err := h.sessions.Register(c.Request.Context(), service.RegisterInput{
		Username:             req.Username,
		Email:                req.Email,
		Password:             req.Password,
		Age:                  age,
		Location:             req.Location,
		Occupation:           req.Occupation,
		InvestmentExperience: req.InvestmentExperience,
	})
	metrics.RecordAuthEvent("register", err == nil)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusCreated, gin.H{
		"user":  userToResponse(user, nil),
		"token": token,
	}, "User registered successfully")
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	metrics.RecordAuthEvent("login", err == nil)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setAuthCookies(c, result.TokenPair)
	respond(c, http.StatusOK, gin.H{
		"user":         userToResponse(result.User, nil),
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	}, "User logged in successfully")
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), currentUser(c).ID); err != nil {
		h.fail(c, err)
		return
	}
	h.clearAuthCookies(c)
	respond(c, http.StatusOK, gin.H{}, "User logged out successfully")
}

func (h *Handler) refreshToken(c *gin.Context) {
	raw, _ := c.Cookie(refreshCookie)
	if raw == "" && c.Request.ContentLength != 0 {
		var req refreshRequest
		// a missing or malformed body leaves the token empty, which the service rejects
		_ = c.ShouldBindJSON(&req)
		raw = req.RefreshToken
	}

	pair, err := h.sessions.Refresh(c.Request.Context(), raw)
	metrics.RecordAuthEvent("refresh", err == nil)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setAuthCookies(c, *pair)
	respond(c, http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "Access token refreshed")
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.sessions.ChangePassword(c.Request.Context(), currentUser(c).ID, req.OldPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{}, "Password changed successfully")
}

func (h *Handler) getUser(c *gin.Context) {
	profile, err := h.users.GetProfile(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, userToResponse(profile.User, profile.Preferences), "User fetched successfully")
}

func (h *Handler) updateUserDetails(c *gin.Context) {
	var req updateDetailsRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	fields := req.profileFields
	var prefs *service.PreferencesInput
	if p := req.InvestmentPrefs; p != nil {
		fields = mergeProfileFields(fields, p.profileFields)
		var err error
		if prefs, err = preferencesInput(p); err != nil {
			h.fail(c, err)
			return
		}
	}
	age, err := fields.Age.intValue("age")
	if err != nil {
		h.fail(c, service.ValidationError(err.Error(), "age"))
		return
	}

	profile, err := h.users.UpdateDetails(c.Request.Context(), currentUser(c).ID, service.ProfileInput{
		Username:             fields.Username,
		Email:                fields.Email,
		Age:                  age,
		Location:             fields.Location,
		Occupation:           fields.Occupation,
		InvestmentExperience: fields.InvestmentExperience,
	}, prefs)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, userToResponse(profile.User, profile.Preferences), "User details updated successfully")
}

func (h *Handler) preferencesByEmail(c *gin.Context) {
	prefs, err := h.users.PreferencesByEmail(c.Request.Context(), c.Query("email"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if prefs == nil {
		respond(c, http.StatusOK, nil, "No investment preferences found")
		return
	}
	respond(c, http.StatusOK, preferencesToResponse(prefs), "Investment preferences fetched successfully")
}

func (h *Handler) setAuthCookies(c *gin.Context, pair service.TokenPair) {
	c.SetSameSite(h.sameSite())
	c.SetCookie(accessCookie, pair.AccessToken, int(h.accessTTL.Seconds()), "/", "", h.production, true)
	c.SetCookie(refreshCookie, pair.RefreshToken, int(h.refreshTTL.Seconds()), "/", "", h.production, true)
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(h.sameSite())
	c.SetCookie(accessCookie, "", -1, "/", "", h.production, true)
	c.SetCookie(refreshCookie, "", -1, "/", "", h.production, true)
}

func (h *Handler) sameSite() http.SameSite {
	if h.production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// mergeProfileFields prefers top-level values and falls back to the ones nested in investmentPrefs.
func mergeProfileFields(top, nested profileFields) profileFields {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	merged := profileFields{
		Username:             pick(top.Username, nested.Username),
		Email:                pick(top.Email, nested.Email),
		Location:             pick(top.Location, nested.Location),
		Occupation:           pick(top.Occupation, nested.Occupation),
		InvestmentExperience: pick(top.InvestmentExperience, nested.InvestmentExperience),
		Age:                  top.Age,
	}
	if merged.Age.value == nil {
		merged.Age = nested.Age
	}
	return merged
}

func preferencesInput(p *investmentPrefsRequest) (*service.PreferencesInput, error) {
	years, err := p.TargetYears.intValue("target_years")
	if err != nil {
		return nil, service.ValidationError(err.Error(), "target_years")
	}
	return &service.PreferencesInput{
		GoalType:                 p.GoalType,
		TargetAmount:             p.TargetAmount.floatValue(),
		TargetYears:              years,
		RiskTolerance:            p.RiskTolerance,
		VolatilityTolerance:      p.VolatilityTolerance,
		PreferredSectors:         p.PreferredSectors,
		ExcludedSectors:          p.ExcludedSectors,
		InitialInvestment:        p.InitialInvestment.floatValue(),
		LiquidityNeedsPercentage: p.LiquidityNeedsPercentage.floatValue(),
		PortfolioStyle:           p.PortfolioStyle,
	}, nil
}
