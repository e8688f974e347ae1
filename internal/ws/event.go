package ws

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Server-to-client event names.
const (
	EventConnected             = "connected"
	EventNewMessage            = "newMessage"
	EventMessageNotification   = "messageNotification"
	EventMessagesRead          = "messagesRead"
	EventMessageDeletedForUser = "messageDeletedForUser"
	EventTyping                = "typing"
	EventStoppedTyping         = "stoppedTyping"
	EventError                 = "error"
)

// Client-to-server command names.
const (
	CommandJoinConversation     = "joinConversation"
	CommandLeaveConversation    = "leaveConversation"
	CommandTyping               = "typing"
	CommandStoppedTyping        = "stoppedTyping"
	CommandMarkRead             = "markRead"
	CommandDeleteMessageForUser = "deleteMessageForUser"
)

// Event is a server-to-client frame.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data,omitempty"`
}

// Encode serializes the event to its wire form.
func (e Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %q: %w", e.Name, err)
	}
	return payload, nil
}

// ErrorEvent builds the standard error frame sent to a client.
func ErrorEvent(message string) Event {
	return Event{Name: EventError, Data: map[string]string{"message": message}}
}

// ClientCommand is a client-to-server frame.
type ClientCommand struct {
	Action         string `json:"action"`
	ConversationID uint   `json:"conversationId,omitempty"`
	MessageID      uint   `json:"messageId,omitempty"`
}

// ConversationChannel names the fan-out channel for a conversation room.
func ConversationChannel(conversationID uint) string {
	return "conversation:" + strconv.FormatUint(uint64(conversationID), 10)
}

// UserChannel names the per-user notification channel.
func UserChannel(userID uint) string {
	return "user:" + strconv.FormatUint(uint64(userID), 10)
}
