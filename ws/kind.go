package ws

import (
	"fmt"

	"github.com/devconnect/chatcore/model"
)

// Kind is one inbound event queue of the current user.
type Kind string

const (
	KindMessages     Kind = "messages"
	KindTyping       Kind = "typing"
	KindPresence     Kind = "status"
	KindReadReceipts Kind = "read-receipts"
)

// Outbound destinations.
const (
	DestSendMessage  = "/app/chat.sendMessage"
	DestTyping       = "/app/typing"
	DestMessagesRead = "/app/messages-read"
)

// Destination is the queue of kind scoped to uid.
func (k Kind) Destination(uid int64) string {
	return fmt.Sprintf("/user/%d/queue/%s", uid, k)
}

var decoders = map[Kind]func([]byte) (interface{}, error){
	KindMessages: func(b []byte) (interface{}, error) {
		return model.DecodeMessage(b)
	},
	KindTyping: func(b []byte) (interface{}, error) {
		return model.DecodeTyping(b)
	},
	KindPresence: func(b []byte) (interface{}, error) {
		return model.DecodePresence(b)
	},
	KindReadReceipts: func(b []byte) (interface{}, error) {
		return model.DecodeReadReceipt(b)
	},
}
