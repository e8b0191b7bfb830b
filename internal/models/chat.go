package models

import "time"

// Chat message senders. The transcript only ever carries these two.
const (
	SenderUser      = "user"
	SenderCharacter = "character"
)

// ChatMessage is one line of a character-chat transcript.
type ChatMessage struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ChatSession is a sidebar entry for a stored conversation.
type ChatSession struct {
	ChatID        string    `json:"chatId"`
	CharacterName string    `json:"characterName"`
	LastMessage   string    `json:"lastMessage,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ChatCharacter is the fictional persona a conversation is held with.
type ChatCharacter struct {
	Name     string `json:"name"`
	Bio      string `json:"bio,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// BioOrDefault returns the biography the backend prompt expects, falling back
// to the stock line when the character has none.
func (c ChatCharacter) BioOrDefault() string {
	if c.Bio != "" {
		return c.Bio
	}
	return "This character has no biography."
}
