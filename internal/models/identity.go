package models

// Identity is the authenticated user as reported by GET /me. The backend owns it;
// the client keeps a read-mostly copy that is refreshed after anything that could change it.
type Identity struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	Balance   float64 `json:"balance"`
	IsActive  bool    `json:"is_active"`
	CreatedAt string  `json:"created_at"`
}

// Token is the body returned by POST /token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Balance is the body returned by GET /balance.
type Balance struct {
	Balance float64 `json:"balance"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
