package model

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessageVariants(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	m, err := DecodeMessage([]byte(`{"id":12,"senderId":1,"receiverId":"2","text":"hi","timestamp":"2024-03-01T10:30:00Z","status":"DELIVERED","conversationId":5}`))
	require.NoError(t, err)
	assert.Equal(t, Message{
		ID: "12", ConversationID: 5, SenderID: 1, ReceiverID: 2,
		Text: "hi", Timestamp: ts, Status: StatusDelivered,
	}, m)

	m, err = DecodeMessage([]byte(`{"messageId":"m-1","sender_id":3,"receiver_id":4,"content":"yo","createdAt":1709289000000,"isRead":true}`))
	require.NoError(t, err)
	assert.Equal(t, "m-1", m.ID)
	assert.EqualValues(t, 3, m.SenderID)
	assert.EqualValues(t, 4, m.ReceiverID)
	assert.Equal(t, "yo", m.Text)
	assert.True(t, m.Timestamp.Equal(ts))
	assert.Equal(t, StatusRead, m.Status)

	m, err = DecodeMessage([]byte(`{"id":1,"senderId":1,"receiverId":2,"text":"a","timestamp":"2024-03-01T10:30:00.123"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Local, m.Timestamp.Location())
	assert.Equal(t, 123*int(time.Millisecond), m.Timestamp.Nanosecond())
	assert.Equal(t, StatusSent, m.Status)

	_, err = DecodeMessage([]byte(`{"senderId":1}`))
	assert.Error(t, err)
	_, err = DecodeMessage([]byte(`{"id":1,"senderId":"x"}`))
	assert.Error(t, err)
	_, err = DecodeMessage([]byte(`null`))
	assert.Error(t, err)

	_, err = DecodeMessage([]byte(`{"id":1,"senderId":1,"receiverId":2,"text":"  "}`))
	assert.Error(t, err)
	_, err = DecodeMessage([]byte(`{"id":1,"senderId":1,"receiverId":2}`))
	assert.Error(t, err)
}

func TestDecodeMessageStampsArrival(t *testing.T) {
	before := time.Now()
	m, err := DecodeMessage([]byte(`{"id":1,"senderId":1,"receiverId":2,"text":"a"}`))
	require.NoError(t, err)
	assert.False(t, m.Timestamp.Before(before))
	assert.False(t, m.Timestamp.After(time.Now()))
}

func TestDecodeMessages(t *testing.T) {
	list, err := DecodeMessages([]byte(`[{"id":1,"senderId":1,"receiverId":2,"text":"a"},{"id":2,"senderId":2,"receiverId":1,"text":"b"}]`))
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = DecodeMessages([]byte(`{"messages":[{"id":1,"senderId":1,"receiverId":2,"text":"a"}]}`))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = DecodeMessages([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = DecodeMessages([]byte(`{"foo":1}`))
	assert.Error(t, err)
}

func TestDecodeMessagesSkipsBadItems(t *testing.T) {
	skipped := testutil.ToFloat64(decodeSkippedTotal.WithLabelValues("messages"))

	list, err := DecodeMessages([]byte(`[
		{"id":1,"senderId":1,"receiverId":2,"text":"a","timestamp":"2024-03-01T10:30:00Z"},
		{"senderId":2,"receiverId":1,"text":"no id"},
		{"id":3,"senderId":2,"receiverId":1,"text":""},
		{"id":4,"senderId":"x","receiverId":1,"text":"bad sender"},
		{"id":5,"senderId":2,"receiverId":1,"text":"b","timestamp":"2024-03-01T10:31:00Z"}
	]`))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)
	assert.Equal(t, "5", list[1].ID)
	assert.Equal(t, skipped+3, testutil.ToFloat64(decodeSkippedTotal.WithLabelValues("messages")))
}

func TestDecodeUsers(t *testing.T) {
	list, err := DecodeUsers([]byte(`[
		{"id":7,"username":"ada","role":"developer","avatar":"a.png"},
		{"userId":"8","firstName":"Grace","lastName":"Hopper","userRole":"CLIENT"},
		{"id":9},
		{"username":"nobody"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, []User{
		{ID: 7, Name: "ada", Avatar: "a.png", Role: RoleDeveloper},
		{ID: 8, Name: "Grace Hopper", Role: RoleClient},
		{ID: 9, Name: "User"},
	}, list)

	list, err = DecodeUsers([]byte(`{"content":[]}`))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDecodeEvents(t *testing.T) {
	ty, err := DecodeTyping([]byte(`{"senderId":2,"receiverId":1,"isTyping":true}`))
	require.NoError(t, err)
	assert.Equal(t, TypingEvent{SenderID: 2, ReceiverID: 1, IsTyping: true}, ty)

	ty, err = DecodeTyping([]byte(`{"senderId":"2","receiverId":"1","typing":"false"}`))
	require.NoError(t, err)
	assert.False(t, ty.IsTyping)

	p, err := DecodePresence([]byte(`{"userId":2,"status":"ONLINE"}`))
	require.NoError(t, err)
	assert.Equal(t, PresenceEvent{UserID: 2, Status: PresenceOnline}, p)

	p, err = DecodePresence([]byte(`{"id":2,"online":false}`))
	require.NoError(t, err)
	assert.Equal(t, PresenceOffline, p.Status)

	r, err := DecodeReadReceipt([]byte(`{"senderId":2,"conversationId":8}`))
	require.NoError(t, err)
	assert.Equal(t, ReadReceipt{ReaderID: 2, ConversationID: 8}, r)

	r, err = DecodeReadReceipt([]byte(`{"readerId":3}`))
	require.NoError(t, err)
	assert.EqualValues(t, 3, r.ReaderID)
}

func TestDecodeSummaries(t *testing.T) {
	list, err := DecodeSummaries([]byte(`[
		{"userId":2,"userName":"Ada","userAvatar":"a.png","lastMessage":"hi","lastMessageTime":"2024-03-01T10:30:00Z","unreadCount":3,"userStatus":"ONLINE"},
		{"id":"4","name":"Linus","lastMessageText":"ok","unread":"1","online":true}
	]`))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ChatSummary{
		UserID: 2, DisplayName: "Ada", Avatar: "a.png", LastMessage: "hi",
		LastMessageTime: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		UnreadCount:     3, Presence: PresenceOnline,
	}, list[0])
	assert.EqualValues(t, 4, list[1].UserID)
	assert.Equal(t, "Linus", list[1].DisplayName)
	assert.Equal(t, "ok", list[1].LastMessage)
	assert.Equal(t, 1, list[1].UnreadCount)
	assert.Equal(t, PresenceOnline, list[1].Presence)
}

func TestDecodeStatus(t *testing.T) {
	for in, want := range map[string]Presence{
		`{"status":"ONLINE"}`: PresenceOnline,
		`"online"`:            PresenceOnline,
		`{"status":null}`:     PresenceOffline,
		`OFFLINE`:             PresenceOffline,
	} {
		got, err := DecodeStatus([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")

	var err error = &SendFailure{LocalID: "local-1", Err: cause}
	assert.ErrorIs(t, err, cause)

	err = &AuthenticationError{}
	assert.True(t, IsAuthentication(err))
	assert.Contains(t, err.Error(), "please log in")

	err = &NotConnectedError{Op: "subscribe"}
	assert.True(t, IsNotConnected(err))
	assert.Equal(t, "subscribe: not connected", err.Error())

	err = &HistoryFetchError{UserID: 1, PeerID: 2, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsNotConnected(err))
}
