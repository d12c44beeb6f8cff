package messenger

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/devconnect/chatcore/auth"
	"github.com/devconnect/chatcore/chatstore"
	"github.com/devconnect/chatcore/config"
	"github.com/devconnect/chatcore/model"
	"github.com/devconnect/chatcore/store"
)

// IConnection is the realtime session owned by a Messenger. *ws.Manager
// implements it.
type IConnection interface {
	chatstore.IRealtime

	Connect(ctx context.Context, userID int64) error
	Disconnect()
}

// Messenger wires the messaging core for one logged-in user: the realtime
// session, the chat list and at most one open conversation with its
// composer.
type Messenger struct {
	sync.Mutex

	conf *config.Config
	sess *auth.Session
	conn IConnection
	rest store.IMessageStore

	chats   *chatstore.ChatList
	conv    *chatstore.Conversation
	comp    *chatstore.Composer
	started bool

	// set while the realtime session is retried after a failed Start.
	retryCancel context.CancelFunc
	retryDone   chan struct{}
}

func New(conf *config.Config, sess *auth.Session, conn IConnection, rest store.IMessageStore) *Messenger {
	return &Messenger{
		conf:  conf,
		sess:  sess,
		conn:  conn,
		rest:  rest,
		chats: chatstore.NewChatList(rest, sess.UserID, conf.ChatListRefresh),
	}
}

// Start connects the realtime session and loads the chat list concurrently,
// then announces the user online and keeps the list refreshed. An
// authentication failure is fatal. A transport failure leaves the messenger
// on REST and the connect is retried every ReconnectDelay until it succeeds
// or Stop is called.
func (m *Messenger) Start(ctx context.Context) error {
	m.Lock()
	if m.started {
		m.Unlock()
		return nil
	}
	m.started = true
	m.Unlock()

	uid := m.sess.UserID
	var connectErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		connectErr = m.conn.Connect(gctx, uid)
		if connectErr != nil && model.IsAuthentication(connectErr) {
			return connectErr
		}
		if connectErr != nil {
			glog.Errorf("messenger: realtime unavailable for user %d, REST only: %v", uid, connectErr)
		}
		return nil
	})
	g.Go(func() error {
		err := m.chats.Refresh(gctx)
		if err != nil && model.IsAuthentication(err) {
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		m.conn.Disconnect()
		m.Lock()
		m.started = false
		m.Unlock()
		return err
	}

	if err := m.rest.UpdateStatus(ctx, uid, model.PresenceOnline); err != nil {
		glog.Errorf("messenger: announce online, user %d: %v", uid, err)
	}
	m.chats.Start(context.Background())
	if connectErr != nil {
		m.startRetry()
	}
	glog.Infof("messenger: started, user: %d, realtime: %v", uid, m.conn.Connected())
	return nil
}

func (m *Messenger) startRetry() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.Lock()
	m.retryCancel, m.retryDone = cancel, done
	m.Unlock()
	go m.retry(ctx, done)
}

// retry connects the realtime session every ReconnectDelay until it is up.
// A missing credential ends it: only a new login helps then.
func (m *Messenger) retry(ctx context.Context, done chan struct{}) {
	defer close(done)

	uid := m.sess.UserID
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.conf.ReconnectDelay):
		}
		if m.conn.Connected() {
			return
		}
		err := m.conn.Connect(ctx, uid)
		switch {
		case err == nil:
			glog.Infof("messenger: realtime up for user %d after %d retries", uid, attempt)
			return
		case model.IsAuthentication(err):
			glog.Errorf("messenger: stop retrying realtime for user %d: %v", uid, err)
			return
		}
		glog.V(5).Infof("messenger: realtime retry %d for user %d: %v", attempt, uid, err)
	}
}

func (m *Messenger) stopRetry() {
	m.Lock()
	cancel, done := m.retryCancel, m.retryDone
	m.retryCancel, m.retryDone = nil, nil
	m.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Reconnect connects the realtime session right away, a no-op while it is
// up.
func (m *Messenger) Reconnect(ctx context.Context) error {
	m.Lock()
	started := m.started
	m.Unlock()
	if !started {
		return &model.NotConnectedError{Op: "reconnect"}
	}
	if m.conn.Connected() {
		return nil
	}
	return m.conn.Connect(ctx, m.sess.UserID)
}

// Open makes peerID the active conversation. The previous conversation and
// its composer are closed first. A zero projectID means the default
// project. A history failure is returned along with the conversation, which
// stays active for Retry.
func (m *Messenger) Open(ctx context.Context, peerID, projectID int64) (*chatstore.Conversation, *chatstore.Composer, error) {
	if projectID == 0 {
		projectID = m.conf.DefaultProjectID
	}

	m.Lock()
	m.closeActiveLocked()
	conv := chatstore.NewConversation(m.conf, m.conn, m.rest, m.sess.UserID, peerID, projectID)
	comp := chatstore.NewComposer(conv)
	m.conv, m.comp = conv, comp
	m.Unlock()

	glog.V(5).Infof("messenger: open conversation %d<->%d, project: %d", m.sess.UserID, peerID, projectID)
	return conv, comp, conv.Open(ctx)
}

// Active returns the open conversation and composer, nil without one.
func (m *Messenger) Active() (*chatstore.Conversation, *chatstore.Composer) {
	m.Lock()
	defer m.Unlock()
	return m.conv, m.comp
}

// CloseActive closes the open conversation, if any.
func (m *Messenger) CloseActive() {
	m.Lock()
	defer m.Unlock()
	m.closeActiveLocked()
}

// closeActiveLocked requires m.Lock.
func (m *Messenger) closeActiveLocked() {
	if m.comp != nil {
		m.comp.Close()
	}
	if m.conv != nil {
		m.conv.Close()
	}
	m.conv, m.comp = nil, nil
}

// SearchUsers looks up people to start a conversation with: users of the
// counterpart role whose name matches query. The user itself is left out.
func (m *Messenger) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	role := m.sess.Role.Counterpart()
	users, err := m.rest.SearchUsers(ctx, role, query)
	if err != nil {
		glog.Errorf("messenger: search users %q, role %q: %v", query, role, err)
		return nil, err
	}
	out := make([]model.User, 0, len(users))
	for _, u := range users {
		if u.ID != m.sess.UserID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Messenger) Chats() *chatstore.ChatList { return m.chats }

func (m *Messenger) UserID() int64 { return m.sess.UserID }

// Connected reports whether the realtime session is up.
func (m *Messenger) Connected() bool { return m.conn.Connected() }

// Stop closes the conversation, stops the list refresh, announces the user
// offline and ends the realtime session. Idempotent.
func (m *Messenger) Stop() {
	m.Lock()
	if !m.started {
		m.Unlock()
		return
	}
	m.started = false
	m.closeActiveLocked()
	m.Unlock()

	m.stopRetry()
	m.chats.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), m.conf.RequestTimeout)
	defer cancel()
	if err := m.rest.UpdateStatus(ctx, m.sess.UserID, model.PresenceOffline); err != nil {
		glog.Errorf("messenger: announce offline, user %d: %v", m.sess.UserID, err)
	}
	m.conn.Disconnect()
	glog.Infof("messenger: stopped, user: %d", m.sess.UserID)
}
