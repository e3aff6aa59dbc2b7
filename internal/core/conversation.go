package core

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a conversation message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is a single entry in a refinement conversation.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationHistory is the ordered record of a refinement session for one
// workflow or nested flow. CurrentIteration counts accepted round trips.
type ConversationHistory struct {
	Messages         []Message `json:"messages"`
	CurrentIteration int       `json:"currentIteration"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewConversationHistory creates an empty history.
func NewConversationHistory() *ConversationHistory {
	return &ConversationHistory{Messages: []Message{}}
}

// AppendRound records one user/assistant exchange and advances the iteration
// counter by exactly one.
func (h *ConversationHistory) AppendRound(user, assistant string) {
	now := time.Now().UTC()
	h.Messages = append(h.Messages,
		Message{ID: uuid.NewString(), Sender: SenderUser, Content: user, Timestamp: now},
		Message{ID: uuid.NewString(), Sender: SenderAssistant, Content: assistant, Timestamp: now},
	)
	h.CurrentIteration++
	h.UpdatedAt = now
}

// Recent returns at most the last n messages. The returned slice is a copy.
func (h *ConversationHistory) Recent(n int) []Message {
	if h == nil || n <= 0 || len(h.Messages) == 0 {
		return nil
	}
	start := len(h.Messages) - n
	if start < 0 {
		start = 0
	}
	return append([]Message(nil), h.Messages[start:]...)
}

// Clear resets the history to empty with iteration zero.
func (h *ConversationHistory) Clear() {
	h.Messages = []Message{}
	h.CurrentIteration = 0
	h.UpdatedAt = time.Now().UTC()
}

// Clone returns an independent copy.
func (h *ConversationHistory) Clone() *ConversationHistory {
	if h == nil {
		return nil
	}
	out := *h
	out.Messages = append([]Message{}, h.Messages...)
	return &out
}

// Len returns the number of messages.
func (h *ConversationHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Messages)
}
