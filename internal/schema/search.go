package schema

import "time"

// MessageHit is one transcript message matching a search.
type MessageHit struct {
	SessionKey string    `json:"sessionKey"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}
