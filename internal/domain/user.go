package domain

import "time"

// User represents a registered investor.
type User struct {
	ID                   int64
	Username             string
	Email                string
	PasswordHash         string
	Age                  *int
	Location             string
	Occupation           string
	InvestmentExperience string
	RefreshToken         *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// InvestmentPreferences holds the one-to-one preference record of a user.
type InvestmentPreferences struct {
	ID                       int64
	UserID                   int64
	GoalType                 string
	TargetAmount             *float64
	TargetYears              *int
	RiskTolerance            string
	VolatilityTolerance      string
	PreferredSectors         []string
	ExcludedSectors          []string
	InitialInvestment        *float64
	LiquidityNeedsPercentage *float64
	PortfolioStyle           string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}
