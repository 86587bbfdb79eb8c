package model

import "time"

// User is the per-LINE-user document, keyed by the platform user ID.
type User struct {
	LineUserID string `json:"lineUserId" bson:"_id"`
	// Email is captured once through the LINE Login consent flow and only
	// ever merged, never cleared.
	Email string `json:"email,omitempty" bson:"email,omitempty"`
	// LastGameID is the most recently issued game ID for this user.
	LastGameID   string    `json:"lastGeneratedGameId,omitempty" bson:"lastGeneratedGameId,omitempty"`
	LastActivity time.Time `json:"lastActivity" bson:"lastActivity"`
}
