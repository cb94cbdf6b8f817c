package domain

import (
	"encoding/json"
	"time"
)

// Portfolio is one generated allocation for a user. Rows are kept as history.
type Portfolio struct {
	ID            int64
	UserID        int64
	PortfolioJSON json.RawMessage
	RiskProfile   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
