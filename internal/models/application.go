package models

// DefaultApplicationCost is what the backend charges when it does not report a cost.
const DefaultApplicationCost = 50.0

// Status is the review state of an application.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s can never change again.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Application struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      Status  `json:"status"`
	Cost        float64 `json:"cost"`
	PhotoURL    *string `json:"photo_url,omitempty"`
	VideoURL    *string `json:"video_url,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// EffectiveCost is the debit associated with the application. Older rows may come
// back without a cost; those were charged the default.
func (a Application) EffectiveCost() float64 {
	if a.Cost <= 0 {
		return DefaultApplicationCost
	}
	return a.Cost
}

// ApplicationDraft is the body of POST /applications.
type ApplicationDraft struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	PhotoURL    *string `json:"photo_url,omitempty"`
	VideoURL    *string `json:"video_url,omitempty"`
}

type StatusUpdate struct {
	Status Status `json:"status"`
}

// ApplicationCost is the body of GET /applications/cost.
type ApplicationCost struct {
	Cost    float64 `json:"cost"`
	Message string  `json:"message,omitempty"`
}

// FilterApplications returns the applications in the given status. An empty status
// keeps everything. The input slice is not modified.
func FilterApplications(apps []Application, status Status) []Application {
	out := make([]Application, 0, len(apps))
	for _, a := range apps {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	return out
}
