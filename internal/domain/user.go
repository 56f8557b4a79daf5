package domain

// UserContext is the authenticated principal injected into request handlers.
// UserID is the owner identity used to scope every document read and write.
type UserContext struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}
