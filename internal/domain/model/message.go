package model

import "time"

// Message is one stored chat message. Content is plaintext in memory; the
// message repository applies the storage envelope on the way in and out.
type Message struct {
	ID             string
	ConversationID string
	SessionID      string
	Role           string // "user" | "assistant" | "system"
	Content        string
	HasImages      bool
	Tokens         int
	CreatedAt      time.Time
}

// ContextSize is the character size of the history a prospective message
// would carry, as used by preview pricing.
func ContextSize(history []Message) int {
	n := 0
	for _, m := range history {
		n += len(m.Content)
	}
	return n
}
