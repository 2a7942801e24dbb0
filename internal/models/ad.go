package models

type Ad struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	RewardAmount float64 `json:"reward_amount"`
	ImageURL     *string `json:"image_url,omitempty"`
	IsActive     bool    `json:"is_active"`
	CreatedAt    string  `json:"created_at"`
}

// AdView is the record of one rewarded view. The client only keeps it long enough
// to credit the projected balance and confirm the reward.
type AdView struct {
	ID           int64   `json:"id"`
	UserID       int64   `json:"user_id"`
	AdID         int64   `json:"ad_id"`
	ViewedAt     string  `json:"viewed_at"`
	RewardEarned float64 `json:"reward_earned"`
}

type ViewAdRequest struct {
	AdID int64 `json:"ad_id"`
}
