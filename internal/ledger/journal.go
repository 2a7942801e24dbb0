package ledger

import "time"

// EntryType names the server event behind a balance change.
type EntryType string

const (
	EntryAdReward        EntryType = "ad_reward"
	EntryApplicationCost EntryType = "application_cost"
)

// Entry is one confirmed balance change reported by the backend.
type Entry struct {
	Type   EntryType `json:"entry_type"`
	Amount float64   `json:"amount"`
	Ref    int64     `json:"ref"` // ad id or application id
	At     time.Time `json:"at"`
}

// Signed returns the delta the entry applies to the balance.
func (e Entry) Signed() float64 {
	if e.Type == EntryApplicationCost {
		return -e.Amount
	}
	return e.Amount
}
