package chatstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/devconnect/chatcore/model"
	"github.com/devconnect/chatcore/store"
)

// ChatList holds the chat summaries of a user, refreshed wholesale from
// REST.
type ChatList struct {
	sync.Mutex

	rest     store.IMessageStore
	userID   int64
	interval time.Duration

	chats  []model.ChatSummary
	loaded bool
	err    error

	// seq numbers requests; applied is the newest one answered.
	seq     uint64
	applied uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func NewChatList(rest store.IMessageStore, userID int64, interval time.Duration) *ChatList {
	return &ChatList{
		rest:     rest,
		userID:   userID,
		interval: interval,
	}
}

// Refresh fetches the summaries and replaces the list. A response older than
// one already applied is dropped. On error the last good list is kept.
func (l *ChatList) Refresh(ctx context.Context) error {
	l.Lock()
	l.seq++
	seq := l.seq
	l.Unlock()

	chats, err := l.rest.GetUserChats(ctx, l.userID)

	l.Lock()
	defer l.Unlock()
	if seq < l.applied {
		chatListRefreshes.WithLabelValues("stale").Inc()
		glog.V(5).Infof("chat list: drop stale response #%d, have #%d", seq, l.applied)
		return nil
	}
	l.applied = seq
	if err != nil {
		chatListRefreshes.WithLabelValues("error").Inc()
		l.err = err
		glog.Errorf("chat list: refresh user %d: %v", l.userID, err)
		return err
	}
	chatListRefreshes.WithLabelValues("ok").Inc()
	l.chats = chats
	l.loaded = true
	l.err = nil
	return nil
}

// Start refreshes on every interval until Stop or ctx ends. The first
// refresh runs at once unless a list is already loaded.
func (l *ChatList) Start(ctx context.Context) {
	l.Lock()
	if l.cancel != nil {
		l.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done
	loaded := l.loaded
	l.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		if !loaded {
			l.Refresh(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Refresh(ctx)
			}
		}
	}()
}

// Stop ends the auto refresh and waits for an in-flight refresh to return.
func (l *ChatList) Stop() {
	l.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Chats returns a copy of the list.
func (l *ChatList) Chats() []model.ChatSummary {
	l.Lock()
	defer l.Unlock()
	out := make([]model.ChatSummary, len(l.chats))
	copy(out, l.chats)
	return out
}

func (l *ChatList) Err() error {
	l.Lock()
	defer l.Unlock()
	return l.err
}

// Filter returns the chats whose display name or last message contains
// query, ignoring case. A blank query matches everything.
func (l *ChatList) Filter(query string) []model.ChatSummary {
	q := strings.ToLower(strings.TrimSpace(query))
	chats := l.Chats()
	if q == "" {
		return chats
	}
	out := chats[:0]
	for _, c := range chats {
		if strings.Contains(strings.ToLower(c.DisplayName), q) || strings.Contains(strings.ToLower(c.LastMessage), q) {
			out = append(out, c)
		}
	}
	return out
}

// Unread returns the chats with unread messages.
func (l *ChatList) Unread() []model.ChatSummary {
	chats := l.Chats()
	out := chats[:0]
	for _, c := range chats {
		if c.UnreadCount > 0 {
			out = append(out, c)
		}
	}
	return out
}
