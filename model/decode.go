package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
)

// The backend variants disagree on field names, id types, status casing and
// timestamp layouts. Everything received from REST or realtime goes through
// the decoders below; nothing else looks at raw payloads.

// localDateTime is the zone-less layout of a serialized LocalDateTime.
const localDateTime = "2006-01-02T15:04:05.999999999"

type fields map[string]json.RawMessage

func decodeFields(data []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.New("null object")
	}
	return f, nil
}

// pick returns the first present, non-null value among keys.
func (f fields) pick(keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := f[k]; ok && !isNull(v) {
			return v
		}
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func (f fields) str(keys ...string) string {
	v := f.pick(keys...)
	if v == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	// numbers and booleans keep their literal form
	return strings.TrimSpace(string(v))
}

func (f fields) num(keys ...string) (int64, error) {
	v := f.pick(keys...)
	if v == nil {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		fl, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return int64(fl), nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, fmt.Errorf("%s: not a number", string(v))
	}
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func (f fields) flag(keys ...string) bool {
	v := f.pick(keys...)
	if v == nil {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	b, _ = strconv.ParseBool(strings.Trim(string(v), `"`))
	return b
}

func (f fields) when(keys ...string) (time.Time, error) {
	v := f.pick(keys...)
	if v == nil {
		return time.Time{}, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		ms, err := n.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms), nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return time.Time{}, fmt.Errorf("%s: not a timestamp", string(v))
	}
	return ParseTime(s)
}

// ParseTime accepts RFC 3339 timestamps and zone-less local date-times,
// which are read in the local zone.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(localDateTime, s, time.Local)
}

// DecodeMessage normalizes one message payload. A message without a
// timestamp is stamped with its arrival time.
func DecodeMessage(data []byte) (Message, error) {
	f, err := decodeFields(data)
	if err != nil {
		return Message{}, fmt.Errorf("decode message: %v", err)
	}
	return f.message(time.Now())
}

func (f fields) message(arrived time.Time) (Message, error) {
	var (
		m   Message
		err error
	)
	m.ID = f.str("id", "messageId", "message_id")
	if m.ID == "" {
		return Message{}, errors.New("decode message: missing id")
	}
	if m.SenderID, err = f.num("senderId", "sender_id", "fromUserId"); err != nil {
		return Message{}, fmt.Errorf("decode message %s: sender: %v", m.ID, err)
	}
	if m.ReceiverID, err = f.num("receiverId", "receiver_id", "toUserId"); err != nil {
		return Message{}, fmt.Errorf("decode message %s: receiver: %v", m.ID, err)
	}
	if m.ConversationID, err = f.num("conversationId", "conversation_id"); err != nil {
		return Message{}, fmt.Errorf("decode message %s: conversation: %v", m.ID, err)
	}
	if m.ProjectID, err = f.num("projectId", "project_id"); err != nil {
		return Message{}, fmt.Errorf("decode message %s: project: %v", m.ID, err)
	}
	if m.Timestamp, err = f.when("timestamp", "createdAt", "created_at", "sentAt"); err != nil {
		return Message{}, fmt.Errorf("decode message %s: timestamp: %v", m.ID, err)
	}
	if m.Timestamp.IsZero() {
		glog.V(5).Infof("decode message %s: no timestamp, using arrival time", m.ID)
		m.Timestamp = arrived
	}
	m.Text = f.str("text", "content", "body")
	if strings.TrimSpace(m.Text) == "" {
		return Message{}, fmt.Errorf("decode message %s: empty text", m.ID)
	}
	m.Status = ParseStatus(f.str("status"))
	if f.flag("read", "isRead") {
		m.Status = m.Status.Advance(StatusRead)
	}
	return m, nil
}

// DecodeMessages normalizes a message list: a bare array, or an object
// wrapping it under "messages", "content" or "data". Items that do not
// decode are skipped; only a malformed list is an error.
func DecodeMessages(data []byte) ([]Message, error) {
	items, err := decodeList(data, "messages", "content", "data")
	if err != nil {
		return nil, fmt.Errorf("decode messages: %v", err)
	}
	arrived := time.Now()
	out := make([]Message, 0, len(items))
	for i, item := range items {
		m, err := item.message(arrived)
		if err != nil {
			skip("messages", i, err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func skip(kind string, i int, err error) {
	glog.Errorf("decode %s: skip item %d: %v", kind, i, err)
	decodeSkippedTotal.WithLabelValues(kind).Inc()
}

func decodeList(data []byte, wrappers ...string) ([]fields, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '{' {
		f, err := decodeFields(data)
		if err != nil {
			return nil, err
		}
		inner := f.pick(wrappers...)
		if inner == nil {
			return nil, errors.New("object without a list")
		}
		data = inner
	}
	var items []fields
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// DecodeTyping normalizes a typing indicator.
func DecodeTyping(data []byte) (TypingEvent, error) {
	f, err := decodeFields(data)
	if err != nil {
		return TypingEvent{}, fmt.Errorf("decode typing: %v", err)
	}
	var ev TypingEvent
	if ev.SenderID, err = f.num("senderId", "sender_id", "userId"); err != nil {
		return TypingEvent{}, fmt.Errorf("decode typing: sender: %v", err)
	}
	if ev.ReceiverID, err = f.num("receiverId", "receiver_id"); err != nil {
		return TypingEvent{}, fmt.Errorf("decode typing: receiver: %v", err)
	}
	ev.IsTyping = f.flag("isTyping", "typing", "is_typing")
	return ev, nil
}

// DecodePresence normalizes a presence change.
func DecodePresence(data []byte) (PresenceEvent, error) {
	f, err := decodeFields(data)
	if err != nil {
		return PresenceEvent{}, fmt.Errorf("decode presence: %v", err)
	}
	var ev PresenceEvent
	if ev.UserID, err = f.num("userId", "user_id", "id"); err != nil {
		return PresenceEvent{}, fmt.Errorf("decode presence: user: %v", err)
	}
	if v := f.pick("online", "isOnline"); v != nil {
		if f.flag("online", "isOnline") {
			ev.Status = PresenceOnline
		} else {
			ev.Status = PresenceOffline
		}
		return ev, nil
	}
	ev.Status = ParsePresence(f.str("status", "userStatus"))
	return ev, nil
}

// DecodeReadReceipt normalizes a read receipt. The reader travels as
// "senderId" on the realtime queue: it is the sender of the receipt.
func DecodeReadReceipt(data []byte) (ReadReceipt, error) {
	f, err := decodeFields(data)
	if err != nil {
		return ReadReceipt{}, fmt.Errorf("decode read receipt: %v", err)
	}
	var r ReadReceipt
	if r.ReaderID, err = f.num("readerId", "senderId", "userId"); err != nil {
		return ReadReceipt{}, fmt.Errorf("decode read receipt: reader: %v", err)
	}
	if r.ConversationID, err = f.num("conversationId", "conversation_id"); err != nil {
		return ReadReceipt{}, fmt.Errorf("decode read receipt: conversation: %v", err)
	}
	return r, nil
}

// DecodeSummaries normalizes the chat list.
func DecodeSummaries(data []byte) ([]ChatSummary, error) {
	items, err := decodeList(data, "chats", "content", "data")
	if err != nil {
		return nil, fmt.Errorf("decode chats: %v", err)
	}
	out := make([]ChatSummary, 0, len(items))
	for i, f := range items {
		s, err := f.summary()
		if err != nil {
			skip("chats", i, err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f fields) summary() (ChatSummary, error) {
	var (
		s   ChatSummary
		err error
	)
	if s.UserID, err = f.num("userId", "otherUserId", "user_id", "id"); err != nil {
		return ChatSummary{}, fmt.Errorf("user: %v", err)
	}
	s.DisplayName = f.str("userName", "displayName", "name", "otherUserName")
	s.Avatar = f.str("userAvatar", "avatar", "avatarUrl")
	s.LastMessage = f.str("lastMessage", "lastMessageText")
	if s.LastMessageTime, err = f.when("lastMessageTime", "lastMessageAt", "timestamp"); err != nil {
		return ChatSummary{}, fmt.Errorf("user %d: time: %v", s.UserID, err)
	}
	unread, err := f.num("unreadCount", "unread")
	if err != nil {
		return ChatSummary{}, fmt.Errorf("user %d: unread: %v", s.UserID, err)
	}
	s.UnreadCount = int(unread)
	if v := f.pick("online", "isOnline"); v != nil && f.flag("online", "isOnline") {
		s.Presence = PresenceOnline
	} else {
		s.Presence = ParsePresence(f.str("userStatus", "status"))
	}
	return s, nil
}

// DecodeUsers normalizes a user directory answer. The display name falls
// back to first and last name, then to "User".
func DecodeUsers(data []byte) ([]User, error) {
	items, err := decodeList(data, "users", "content", "data")
	if err != nil {
		return nil, fmt.Errorf("decode users: %v", err)
	}
	out := make([]User, 0, len(items))
	for i, f := range items {
		var u User
		if u.ID, err = f.num("id", "userId", "user_id"); err != nil || u.ID <= 0 {
			if err == nil {
				err = errors.New("missing id")
			}
			skip("users", i, err)
			continue
		}
		u.Name = f.str("username", "userName", "name", "displayName")
		if u.Name == "" {
			u.Name = strings.TrimSpace(f.str("firstName") + " " + f.str("lastName"))
		}
		if u.Name == "" {
			u.Name = "User"
		}
		u.Avatar = f.str("avatar", "userAvatar", "avatarUrl")
		u.Role = ParseRole(f.str("role", "userRole"))
		out = append(out, u)
	}
	return out, nil
}

// DecodeStatus normalizes a presence lookup: {"status": "ONLINE"} or a bare
// string.
func DecodeStatus(data []byte) (Presence, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		f, err := decodeFields(data)
		if err != nil {
			return PresenceOffline, fmt.Errorf("decode status: %v", err)
		}
		return ParsePresence(f.str("status", "userStatus")), nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ParsePresence(string(data)), nil
	}
	return ParsePresence(s), nil
}
