package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devconnect/chatcore/auth"
	"github.com/devconnect/chatcore/chatstore"
	chatstore_mock "github.com/devconnect/chatcore/chatstore/mock"
	"github.com/devconnect/chatcore/config"
	"github.com/devconnect/chatcore/messenger"
	"github.com/devconnect/chatcore/model"
	store_mock "github.com/devconnect/chatcore/store/mock"
)

var now = time.Date(2024, 3, 10, 15, 0, 0, 0, time.Local)

func newTestConsole() (*console, *bytes.Buffer) {
	var buf bytes.Buffer
	m := messenger.New(config.Default(), &auth.Session{UserID: 1, Tokens: auth.StaticToken("t")}, nil, nil)
	c := newConsole(&buf, m)
	c.now = func() time.Time { return now }
	return c, &buf
}

func TestSummaryLine(t *testing.T) {
	s := model.ChatSummary{
		UserID:          2,
		DisplayName:     "Ada",
		LastMessage:     "see you",
		LastMessageTime: now.Add(-5 * time.Minute),
		UnreadCount:     3,
		Presence:        model.PresenceOnline,
	}
	assert.Equal(t, "[2] Ada * (3): see you - 5m ago", summaryLine(s, now))
	assert.Equal(t, "[4] Linus", summaryLine(model.ChatSummary{UserID: 4, DisplayName: "Linus"}, now))
}

func TestRenderPrintsChangesOnly(t *testing.T) {
	c, buf := newTestConsole()

	yesterday := model.Message{ID: "10", SenderID: 2, ReceiverID: 1, Text: "hi", Timestamp: now.AddDate(0, 0, -1), Status: model.StatusRead}
	local := model.Message{ID: "local-0123456789abcdef", SenderID: 1, ReceiverID: 2, Text: "hello", Timestamp: now, Status: model.StatusSent, Local: true}

	c.render(chatstore.Snapshot{Messages: []model.Message{yesterday, local}})
	out := buf.String()
	assert.Contains(t, out, "-- Yesterday --\n")
	assert.Contains(t, out, "-- Today --\n")
	assert.Contains(t, out, "them hi  [read] 10\n")
	assert.Contains(t, out, "me   hello  [sending] local-01234567\n")

	// nothing changed
	buf.Reset()
	c.render(chatstore.Snapshot{Messages: []model.Message{yesterday, local}})
	assert.Empty(t, buf.String())

	// a status change prints a short update, typing prints once
	buf.Reset()
	local.Status = model.StatusFailed
	c.render(chatstore.Snapshot{Messages: []model.Message{yesterday, local}, Typing: true})
	c.render(chatstore.Snapshot{Messages: []model.Message{yesterday, local}, Typing: true})
	assert.Equal(t, "   [failed] local-01234567\n   ... typing\n", buf.String())
}

// offlineConn is a realtime session whose broker never answers.
type offlineConn struct {
	*chatstore_mock.MockIRealtime
}

func (offlineConn) Connect(context.Context, int64) error {
	return &model.TransportError{Op: "connect", Err: errors.New("refused")}
}

func (offlineConn) Disconnect() {}

func TestDirectoryCommands(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rt := chatstore_mock.NewMockIRealtime(ctrl)
	rt.EXPECT().Connected().Return(false).AnyTimes()
	rt.EXPECT().Watch(gomock.Any()).Return(func() {}).AnyTimes()
	rest := store_mock.NewMockIMessageStore(ctrl)
	rest.EXPECT().GetConversation(gomock.Any(), int64(1), gomock.Any()).Return(nil, nil).AnyTimes()
	rest.EXPECT().GetStatus(gomock.Any(), gomock.Any()).Return(model.PresenceOffline, nil).AnyTimes()

	sess := &auth.Session{UserID: 1, Role: model.RoleClient, Tokens: auth.StaticToken("t")}
	m := messenger.New(config.Default(), sess, offlineConn{rt}, rest)
	defer m.CloseActive()

	var buf bytes.Buffer
	c := newConsole(&buf, m)
	ctx := context.Background()
	require.NoError(t, c.open(ctx, 2, 0))
	buf.Reset()

	rest.EXPECT().SearchUsers(gomock.Any(), model.RoleDeveloper, "ad").Return([]model.User{
		{ID: 2, Name: "Ada", Role: model.RoleDeveloper},
		{ID: 3, Name: "Adam", Role: model.RoleDeveloper},
	}, nil)
	assert.False(t, c.handle(ctx, "/new ad"))
	assert.Equal(t, "[2] Ada (developer)\n[3] Adam (developer)\n   /open <id> to start\n", buf.String())

	rest.EXPECT().SearchUsers(gomock.Any(), model.RoleDeveloper, "adam").Return([]model.User{
		{ID: 3, Name: "Adam", Role: model.RoleDeveloper},
	}, nil)
	c.handle(ctx, "/new adam")
	conv, _ := m.Active()
	assert.EqualValues(t, 3, conv.PeerID())

	buf.Reset()
	rest.EXPECT().SearchUsers(gomock.Any(), model.RoleDeveloper, "zed").Return(nil, nil)
	c.handle(ctx, "/new zed")
	assert.Equal(t, "no users\n", buf.String())

	c.handle(ctx, "/open 2")
	conv, _ = m.Active()
	assert.EqualValues(t, 2, conv.PeerID())

	buf.Reset()
	c.handle(ctx, "/open x")
	assert.Equal(t, "! bad user id x\n", buf.String())

	// the messenger was never started
	buf.Reset()
	c.handle(ctx, "/reconnect")
	assert.Equal(t, "! reconnect: not connected\n", buf.String())
}
