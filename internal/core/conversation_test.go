package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationHistory_AppendRound(t *testing.T) {
	h := NewConversationHistory()
	h.AppendRound("add a node", "Added one prompt node.")

	require.Len(t, h.Messages, 2)
	assert.Equal(t, 1, h.CurrentIteration)
	assert.Equal(t, SenderUser, h.Messages[0].Sender)
	assert.Equal(t, SenderAssistant, h.Messages[1].Sender)
	assert.NotEqual(t, h.Messages[0].ID, h.Messages[1].ID)

	h.AppendRound("again", "ok")
	assert.Len(t, h.Messages, 4)
	assert.Equal(t, 2, h.CurrentIteration)
}

func TestConversationHistory_Recent(t *testing.T) {
	h := NewConversationHistory()
	for i := 0; i < 5; i++ {
		h.AppendRound("u", "a")
	}

	recent := h.Recent(6)
	require.Len(t, recent, 6)
	assert.Equal(t, h.Messages[4].ID, recent[0].ID)

	assert.Len(t, h.Recent(100), 10)
	assert.Nil(t, h.Recent(0))

	var nilHistory *ConversationHistory
	assert.Nil(t, nilHistory.Recent(3))
}

func TestConversationHistory_Clear(t *testing.T) {
	h := NewConversationHistory()
	h.AppendRound("u", "a")
	h.Clear()

	assert.Empty(t, h.Messages)
	assert.Equal(t, 0, h.CurrentIteration)
}

func TestConversationHistory_Clone(t *testing.T) {
	h := NewConversationHistory()
	h.AppendRound("u", "a")

	clone := h.Clone()
	clone.AppendRound("u2", "a2")

	assert.Len(t, h.Messages, 2)
	assert.Equal(t, 1, h.CurrentIteration)
	assert.Len(t, clone.Messages, 4)
}
