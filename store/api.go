package store

import (
	"context"

	"github.com/devconnect/chatcore/model"
)

// IMessageStore is the backend's REST messaging API. The backend owns
// message storage; this is the client's view of it.
type IMessageStore interface {
	// GetUserChats lists the chat summaries of uid.
	GetUserChats(ctx context.Context, uid int64) ([]model.ChatSummary, error)

	// GetConversation gets the message history between two users.
	GetConversation(ctx context.Context, uid1, uid2 int64) ([]model.Message, error)

	// SendMessage persists a message and returns the created copy.
	SendMessage(ctx context.Context, msg *model.OutboundMessage) (*model.Message, error)

	// MarkRead marks the conversation read by readerID. Idempotent.
	MarkRead(ctx context.Context, conversationID, readerID int64) error

	// GetStatus gets the presence of uid.
	GetStatus(ctx context.Context, uid int64) (model.Presence, error)

	// UpdateStatus sets the presence of uid.
	UpdateStatus(ctx context.Context, uid int64, status model.Presence) error

	// SearchUsers looks users of role up in the directory by name. An empty
	// role searches every role, an empty query lists the role's users.
	SearchUsers(ctx context.Context, role model.Role, query string) ([]model.User, error)
}
