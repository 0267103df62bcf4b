package conversation

import (
	"errors"

	"github.com/dukex/flowscribe/pkg/models"
)

var ErrPendingMessage = errors.New("a message is already pending")

// Transcript is an append-only message list with a two-phase append: Begin
// adds a pending user message, then exactly one of Commit or Rollback
// resolves it.
type Transcript struct {
	messages []models.ConversationMessage
	pending  bool
}

// Begin appends msg as pending and returns the history that preceded it.
func (t *Transcript) Begin(msg models.ConversationMessage) ([]models.ConversationMessage, error) {
	if t.pending {
		return nil, ErrPendingMessage
	}

	history := t.Messages()
	t.messages = append(t.messages, msg)
	t.pending = true

	return history, nil
}

// Append adds a message outside of a two-phase exchange. It is ignored while
// a message is pending.
func (t *Transcript) Append(msg models.ConversationMessage) {
	if t.pending {
		return
	}

	t.messages = append(t.messages, msg)
}

// Commit confirms the pending message and appends reply.
func (t *Transcript) Commit(reply models.ConversationMessage) {
	if !t.pending {
		return
	}

	t.messages = append(t.messages, reply)
	t.pending = false
}

// Rollback removes the pending message.
func (t *Transcript) Rollback() {
	if !t.pending {
		return
	}

	t.messages = t.messages[:len(t.messages)-1]
	t.pending = false
}

func (t *Transcript) Pending() bool {
	return t.pending
}

func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the transcript, pending message included.
func (t *Transcript) Messages() []models.ConversationMessage {
	return append([]models.ConversationMessage{}, t.messages...)
}

// Reset drops every message, pending or not.
func (t *Transcript) Reset() {
	t.messages = nil
	t.pending = false
}
