package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"portfolio-advisor/internal/domain"
	"portfolio-advisor/internal/storage"
)

// number accepts a JSON number, a numeric string, or "" and null for "not set".
// Form-driven clients send numeric fields as strings.
type number struct {
	value *float64
}

func (n *number) UnmarshalJSON(data []byte) error {
	n.value = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", raw)
		}
		n.value = &f
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid number %s", data)
	}
	n.value = &f
	return nil
}

func (n number) floatValue() *float64 {
	return n.value
}

func (n number) intValue(field string) (*int, error) {
	if n.value == nil {
		return nil, nil
	}
	f := *n.value
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil, fmt.Errorf("%s must be a whole number", field)
	}
	v := int(f)
	return &v, nil
}

// flexString accepts a JSON string or number, e.g. numeric user ids.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || string(data) == "null":
		*s = ""
	case data[0] == '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*s = flexString(raw)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*s = flexString(n.String())
	}
	return nil
}

type registerRequest struct {
	Username             string `json:"username"`
	Email                string `json:"email" binding:"omitempty,email"`
	Password             string `json:"password"`
	Age                  number `json:"age"`
	Location             string `json:"location"`
	Occupation           string `json:"occupation"`
	InvestmentExperience string `json:"investment_experience"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type profileFields struct {
	Username             string `json:"username"`
	Email                string `json:"email" binding:"omitempty,email"`
	Age                  number `json:"age"`
	Location             string `json:"location"`
	Occupation           string `json:"occupation"`
	InvestmentExperience string `json:"investment_experience"`
}

type investmentPrefsRequest struct {
	profileFields
	GoalType                 string   `json:"goal_type"`
	TargetAmount             number   `json:"target_amount"`
	TargetYears              number   `json:"target_years"`
	RiskTolerance            string   `json:"risk_tolerance"`
	VolatilityTolerance      string   `json:"volatility_tolerance"`
	PreferredSectors         []string `json:"preferred_sectors"`
	ExcludedSectors          []string `json:"excluded_sectors"`
	InitialInvestment        number   `json:"initial_investment"`
	LiquidityNeedsPercentage number   `json:"liquidity_needs_percentage"`
	PortfolioStyle           string   `json:"portfolioStyle"`
}

type updateDetailsRequest struct {
	profileFields
	InvestmentPrefs *investmentPrefsRequest `json:"investmentPrefs"`
}

type createPortfolioRequest struct {
	PortfolioJSON json.RawMessage `json:"portfolioJSON"`
	RiskProfile   string          `json:"riskProfile"`
}

type updatePortfolioRequest struct {
	UpdatedPortfolioJSON json.RawMessage `json:"updatedPortfolioJSON"`
	RiskProfile          string          `json:"riskProfile"`
}

type chatRequest struct {
	SessionID string     `json:"sessionId"`
	UserID    flexString `json:"userId"`
	Data      struct {
		Message               string          `json:"message"`
		InitialPreferenceData json.RawMessage `json:"initialPreferenceData"`
	} `json:"data"`
}

type UserResponse struct {
	ID                    int64                `json:"id"`
	Username              string               `json:"username"`
	Email                 string               `json:"email"`
	Age                   *int                 `json:"age"`
	Location              string               `json:"location"`
	Occupation            string               `json:"occupation"`
	InvestmentExperience  string               `json:"investment_experience"`
	CreatedAt             time.Time            `json:"createdAt"`
	UpdatedAt             time.Time            `json:"updatedAt"`
	InvestmentPreferences *PreferencesResponse `json:"investmentPreferences,omitempty"`
}

type PreferencesResponse struct {
	ID                       int64     `json:"id"`
	UserID                   int64     `json:"userId"`
	GoalType                 string    `json:"goal_type"`
	TargetAmount             *float64  `json:"target_amount"`
	TargetYears              *int      `json:"target_years"`
	RiskTolerance            string    `json:"risk_tolerance"`
	VolatilityTolerance      string    `json:"volatility_tolerance"`
	PreferredSectors         []string  `json:"preferred_sectors"`
	ExcludedSectors          []string  `json:"excluded_sectors"`
	InitialInvestment        *float64  `json:"initial_investment"`
	LiquidityNeedsPercentage *float64  `json:"liquidity_needs_percentage"`
	PortfolioStyle           string    `json:"portfolioStyle"`
	CreatedAt                time.Time `json:"createdAt"`
	UpdatedAt                time.Time `json:"updatedAt"`
}

type PortfolioResponse struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	PortfolioJSON json.RawMessage `json:"portfolioJSON"`
	RiskProfile   string          `json:"riskProfile"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type ArchiveResponse struct {
	Key          string     `json:"key"`
	Size         int64      `json:"size"`
	LastModified *time.Time `json:"lastModified,omitempty"`
	URL          string     `json:"url"`
}

func userToResponse(user *domain.User, prefs *domain.InvestmentPreferences) UserResponse {
	resp := UserResponse{
		ID:                   user.ID,
		Username:             user.Username,
		Email:                user.Email,
		Age:                  user.Age,
		Location:             user.Location,
		Occupation:           user.Occupation,
		InvestmentExperience: user.InvestmentExperience,
		CreatedAt:            user.CreatedAt,
		UpdatedAt:            user.UpdatedAt,
	}
	if prefs != nil {
		p := preferencesToResponse(prefs)
		resp.InvestmentPreferences = &p
	}
	return resp
}

func preferencesToResponse(prefs *domain.InvestmentPreferences) PreferencesResponse {
	return PreferencesResponse{
		ID:                       prefs.ID,
		UserID:                   prefs.UserID,
		GoalType:                 prefs.GoalType,
		TargetAmount:             prefs.TargetAmount,
		TargetYears:              prefs.TargetYears,
		RiskTolerance:            prefs.RiskTolerance,
		VolatilityTolerance:      prefs.VolatilityTolerance,
		PreferredSectors:         nonNil(prefs.PreferredSectors),
		ExcludedSectors:          nonNil(prefs.ExcludedSectors),
		InitialInvestment:        prefs.InitialInvestment,
		LiquidityNeedsPercentage: prefs.LiquidityNeedsPercentage,
		PortfolioStyle:           prefs.PortfolioStyle,
		CreatedAt:                prefs.CreatedAt,
		UpdatedAt:                prefs.UpdatedAt,
	}
}

func portfolioToResponse(p domain.Portfolio) PortfolioResponse {
	return PortfolioResponse{
		ID:            p.ID,
		UserID:        p.UserID,
		PortfolioJSON: p.PortfolioJSON,
		RiskProfile:   p.RiskProfile,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func archiveToResponse(entry storage.ArchiveEntry) ArchiveResponse {
	return ArchiveResponse{
		Key:          entry.Key,
		Size:         entry.Size,
		LastModified: entry.LastModified,
		URL:          entry.URL,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
