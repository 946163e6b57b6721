package model

import "github.com/google/uuid"

// Inbound action names, matching the hub methods clients invoke.
const (
	ActionSendMessage = "SendMessage"
	ActionJoinRoom    = "JoinChatRoom"
	ActionLeaveRoom   = "LeaveChatRoom"
	ActionTyping      = "SendTypingIndicator"
	ActionMarkRead    = "MarkMessagesAsRead"
)

// Action is a single inbound frame from a websocket client.
type Action struct {
	Action     string    `json:"action"`
	ChatRoomID uuid.UUID `json:"chatRoomId,omitzero"`
	Content    string    `json:"content,omitempty"`
	IsTyping   bool      `json:"isTyping,omitempty"`
}
