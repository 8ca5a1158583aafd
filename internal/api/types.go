package api

import "time"

// TokenResponse is returned by the login and OTP verification endpoints.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // seconds
	User         User   `json:"user"`
}

// User describes the authenticated account.
type User struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

// Profile is the user's profile and portfolio summary.
type Profile struct {
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	RiskTolerance string  `json:"risk_tolerance"` // conservative, moderate, aggressive
	BaseCurrency  string  `json:"base_currency"`
	TotalValue    float64 `json:"total_value"`
}

// ProfileUpdate holds the editable profile fields. Empty fields are left unchanged.
type ProfileUpdate struct {
	Name          string `json:"name,omitempty"`
	RiskTolerance string `json:"risk_tolerance,omitempty"`
	BaseCurrency  string `json:"base_currency,omitempty"`
}

// Holding is one position in the user's portfolio.
type Holding struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Quantity  float64   `json:"quantity"`
	CostBasis float64   `json:"cost_basis"`
	AddedAt   time.Time `json:"added_at"`
}

// NewHolding is the payload for adding a position.
type NewHolding struct {
	Symbol    string  `json:"symbol"`
	Quantity  float64 `json:"quantity"`
	CostBasis float64 `json:"cost_basis"`
}

// Chat is one conversation thread on the backend.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdminStats is the usage summary shown on the admin dashboard.
type AdminStats struct {
	TotalUsers       int `json:"total_users"`
	ActiveChats      int `json:"active_chats"`
	MessagesToday    int `json:"messages_today"`
	TokensToday      int `json:"tokens_today"`
	RateLimitedUsers int `json:"rate_limited_users"`
}
