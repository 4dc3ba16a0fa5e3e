package agents

import "time"

// Agent is an end-user account, the creator of alerts and budgets. The
// API key is minted once at creation and never returned again.
type Agent struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
