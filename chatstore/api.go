package chatstore

import "github.com/devconnect/chatcore/model"

// IRealtime is the realtime session a conversation rides on. *ws.Manager
// implements it.
type IRealtime interface {
	// Connected reports whether the session is established right now.
	Connected() bool

	// Watch registers fn for connected/disconnected transitions.
	Watch(fn func(connected bool)) (cancel func())

	SubscribeToMessages(fn func(model.Message)) (cancel func(), err error)
	SubscribeToTyping(fn func(model.TypingEvent)) (cancel func(), err error)
	SubscribeToPresence(fn func(model.PresenceEvent)) (cancel func(), err error)
	SubscribeToReadReceipts(fn func(model.ReadReceipt)) (cancel func(), err error)

	SendMessage(msg *model.OutboundMessage) error
	SendTyping(ev model.TypingEvent) error
	MarkRead(req model.ReadRequest) error
}
