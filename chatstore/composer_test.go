package chatstore

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatstore_mock "github.com/devconnect/chatcore/chatstore/mock"
	"github.com/devconnect/chatcore/model"
	store_mock "github.com/devconnect/chatcore/store/mock"
)

func typingEvent(on bool) model.TypingEvent {
	return model.TypingEvent{SenderID: me, ReceiverID: peer, IsTyping: on}
}

// openConversation opens a conversation over a mocked realtime session with
// an empty history.
func openConversation(t *testing.T, ctrl *gomock.Controller, connected bool, fallback bool) (*Conversation, *chatstore_mock.MockIRealtime) {
	conf := testConfig()
	conf.RestFallback = fallback
	rt := chatstore_mock.NewMockIRealtime(ctrl)
	rest := store_mock.NewMockIMessageStore(ctrl)

	noop := func() {}
	rt.EXPECT().Connected().Return(connected).AnyTimes()
	rt.EXPECT().Watch(gomock.Any()).Return(noop)
	if connected {
		rt.EXPECT().SubscribeToMessages(gomock.Any()).Return(noop, nil)
		rt.EXPECT().SubscribeToTyping(gomock.Any()).Return(noop, nil)
		rt.EXPECT().SubscribeToPresence(gomock.Any()).Return(noop, nil)
		rt.EXPECT().SubscribeToReadReceipts(gomock.Any()).Return(noop, nil)
	}
	rest.EXPECT().GetConversation(gomock.Any(), me, peer).Return(nil, nil)
	rest.EXPECT().GetStatus(gomock.Any(), peer).Return(model.PresenceOffline, nil)

	c := NewConversation(conf, rt, rest, me, peer, 0)
	require.NoError(t, c.Open(context.Background()))
	return c, rt
}

func TestComposerTypingDebounce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conv, rt := openConversation(t, ctrl, true, true)
	defer conv.Close()

	gomock.InOrder(
		rt.EXPECT().SendTyping(typingEvent(true)).Return(nil),
		rt.EXPECT().SendTyping(typingEvent(false)).Return(nil),
		rt.EXPECT().SendTyping(typingEvent(true)).Return(nil),
		rt.EXPECT().SendTyping(typingEvent(false)).Return(nil),
	)

	comp := NewComposer(conv)
	defer comp.Close()

	// one run for a burst of keystrokes, stopped by the debounce
	comp.SetText("h")
	comp.SetText("he")
	comp.SetText("hel")
	time.Sleep(250 * time.Millisecond)

	// clearing the buffer stops at once
	comp.SetText("hello")
	comp.SetText("")
	assert.Equal(t, "", comp.Text())
	time.Sleep(150 * time.Millisecond)
}

func TestComposerSubmit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conv, rt := openConversation(t, ctrl, true, true)
	defer conv.Close()

	gomock.InOrder(
		rt.EXPECT().SendTyping(typingEvent(true)).Return(nil),
		rt.EXPECT().SendTyping(typingEvent(false)).Return(nil),
		rt.EXPECT().SendMessage(gomock.Any()).DoAndReturn(func(out *model.OutboundMessage) error {
			assert.Equal(t, "hello", out.Text)
			return nil
		}),
	)

	comp := NewComposer(conv)
	defer comp.Close()

	comp.SetText("  hello ")
	require.NoError(t, comp.Submit(context.Background()))
	assert.Equal(t, "", comp.Text())
	assert.NoError(t, comp.Err())

	got := conv.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Text)

	// the debounce timer was disarmed by the submit
	time.Sleep(150 * time.Millisecond)
}

func TestComposerSubmitEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conv, _ := openConversation(t, ctrl, false, true)
	defer conv.Close()

	comp := NewComposer(conv)
	defer comp.Close()
	comp.SetText("   ")
	assert.Equal(t, model.ErrEmptyMessage, comp.Submit(context.Background()))
	assert.Empty(t, conv.Messages())
}

func TestComposerSubmitWhileDisconnected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// no typing is published without a session
	conv, _ := openConversation(t, ctrl, false, false)
	defer conv.Close()

	comp := NewComposer(conv)
	defer comp.Close()

	comp.SetText("hello")
	err := comp.Submit(context.Background())
	assert.True(t, model.IsNotConnected(err))
	assert.Equal(t, "hello", comp.Text())
	assert.Equal(t, err, comp.Err())
	assert.Empty(t, conv.Messages())
}

func TestComposerKeepsFailedSendForResend(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conv, rt := openConversation(t, ctrl, true, false)
	defer conv.Close()

	rt.EXPECT().SendTyping(gomock.Any()).Return(nil).AnyTimes()
	rt.EXPECT().SendMessage(gomock.Any()).Return(&model.TransportError{Op: "send", Err: context.DeadlineExceeded})

	comp := NewComposer(conv)
	defer comp.Close()

	comp.SetText("hello")
	err := comp.Submit(context.Background())
	var failure *model.SendFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "", comp.Text())
	assert.Equal(t, err, comp.Err())

	got := conv.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusFailed, got[0].Status)
	assert.Equal(t, failure.LocalID, got[0].ID)
}

func TestComposerCloseStopsTyping(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conv, rt := openConversation(t, ctrl, true, true)
	defer conv.Close()

	gomock.InOrder(
		rt.EXPECT().SendTyping(typingEvent(true)).Return(nil),
		rt.EXPECT().SendTyping(typingEvent(false)).Return(nil),
	)

	comp := NewComposer(conv)
	comp.SetText("draft")
	comp.Close()
	comp.Close()

	// nothing fires after close
	comp.SetText("more")
	time.Sleep(150 * time.Millisecond)
	assert.True(t, model.IsNotConnected(comp.Submit(context.Background())))
}
