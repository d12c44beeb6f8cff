package model

import (
	"strings"
	"time"
)

// LocalIDPrefix marks ids generated on the client for optimistic sends.
const LocalIDPrefix = "local-"

// Status is the delivery status of a message.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	// StatusFailed is only ever set on an optimistic local message.
	StatusFailed Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusFailed || s.rank() > 0
}

// Advance returns the status a message holding s should have after an
// update to next. sent, delivered and read never move backwards; failed
// may leave only towards sent (retry) or further (acknowledgment).
func (s Status) Advance(next Status) Status {
	if !next.Valid() {
		return s
	}
	if s == "" {
		return next
	}
	if next == StatusFailed {
		if s == StatusSent || s == StatusFailed {
			return StatusFailed
		}
		return s
	}
	if s == StatusFailed {
		return next
	}
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// ParseStatus normalizes backend casing ("READ", "Delivered").
func ParseStatus(s string) Status {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st.Valid() {
		return st
	}
	return StatusSent
}

// Message is one chat message in canonical form.
type Message struct {
	ID             string    `json:"id"`
	ConversationID int64     `json:"conversationId,omitempty"`
	SenderID       int64     `json:"senderId"`
	ReceiverID     int64     `json:"receiverId"`
	ProjectID      int64     `json:"projectId,omitempty"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	Status         Status    `json:"status"`

	// Local is set while the message is an optimistic entry that the server
	// has not acknowledged yet.
	Local bool `json:"-"`
}

// IsLocalID reports whether id was generated on the client.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Between reports whether the message belongs to the pair (a, b), in
// either direction.
func (m *Message) Between(a, b int64) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Presence is a user's online status.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

// ParsePresence lower-cases backend values; anything unknown is offline.
func ParsePresence(s string) Presence {
	if Presence(strings.ToLower(strings.TrimSpace(s))) == PresenceOnline {
		return PresenceOnline
	}
	return PresenceOffline
}

// TypingEvent is both the inbound and outbound typing payload.
type TypingEvent struct {
	SenderID   int64 `json:"senderId"`
	ReceiverID int64 `json:"receiverId"`
	IsTyping   bool  `json:"isTyping"`
}

// PresenceEvent reports a user's presence change.
type PresenceEvent struct {
	UserID int64    `json:"userId"`
	Status Presence `json:"status"`
}

// ReadReceipt says ReaderID has read the conversation.
type ReadReceipt struct {
	ReaderID       int64 `json:"readerId"`
	ConversationID int64 `json:"conversationId,omitempty"`
}

// ReadRequest is published to mark a conversation read.
type ReadRequest struct {
	ConversationID int64 `json:"conversationId"`
	ReaderID       int64 `json:"readerId"`
}

// OutboundMessage is the body of a message send, over realtime or REST.
type OutboundMessage struct {
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	ProjectID  int64     `json:"projectId,omitempty"`
}

// ChatSummary is one row of the chat list.
type ChatSummary struct {
	UserID          int64     `json:"userId"`
	DisplayName     string    `json:"userName"`
	Avatar          string    `json:"userAvatar,omitempty"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
	Presence        Presence  `json:"userStatus"`
}

// Role is the account type of a DevConnect user.
type Role string

const (
	RoleDeveloper Role = "DEVELOPER"
	RoleClient    Role = "CLIENT"
)

// ParseRole upper-cases backend values; anything unknown is empty.
func ParseRole(s string) Role {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleDeveloper, RoleClient:
		return r
	}
	return ""
}

// Counterpart is the role a user of r starts conversations with:
// developers talk to clients and clients to developers. An unknown role
// has no counterpart.
func (r Role) Counterpart() Role {
	switch r {
	case RoleDeveloper:
		return RoleClient
	case RoleClient:
		return RoleDeveloper
	}
	return ""
}

// User is one entry of the user directory.
type User struct {
	ID     int64  `json:"id"`
	Name   string `json:"username"`
	Avatar string `json:"avatar,omitempty"`
	Role   Role   `json:"role,omitempty"`
}
