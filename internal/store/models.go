package store

import "strings"

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role" bson:"role"` // "user" or "assistant"
	Content string `json:"content" bson:"content"`
}

// Chat is a whole conversation document. It is always written as a unit.
type Chat struct {
	ID        string        `json:"id" bson:"id"`
	UserID    string        `json:"userId" bson:"userId"`
	Title     string        `json:"title" bson:"title"`
	Messages  []ChatMessage `json:"messages" bson:"messages"`
	Timestamp int64         `json:"timestamp" bson:"timestamp"` // epoch millis of the last write
}

// ChatSummary is the sidebar projection of a Chat.
type ChatSummary struct {
	ID        string `json:"id" bson:"id"`
	Title     string `json:"title" bson:"title"`
	Timestamp int64  `json:"timestamp" bson:"timestamp"`
}

// Summary projects c to its sidebar fields.
func (c *Chat) Summary() ChatSummary {
	return ChatSummary{ID: c.ID, Title: c.Title, Timestamp: c.Timestamp}
}

// UserRecord is the identity provider's payload, stored as-is.
type UserRecord map[string]any

// Email returns the record's email, or "" when missing or not a string.
func (u UserRecord) Email() string {
	email, _ := u["email"].(string)
	return strings.TrimSpace(email)
}

// UpsertResult mirrors a document store update result.
type UpsertResult struct {
	Acknowledged  bool  `json:"acknowledged"`
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
	UpsertedCount int64 `json:"upsertedCount"`
	UpsertedID    any   `json:"upsertedId"`
}
