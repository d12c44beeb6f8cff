package chatstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pborman/uuid"

	"github.com/devconnect/chatcore/config"
	"github.com/devconnect/chatcore/model"
	"github.com/devconnect/chatcore/store"
)

// State is the load state of a conversation.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshot is a consistent read of a conversation.
type Snapshot struct {
	State     State
	Err       error
	Messages  []model.Message
	Typing    bool
	Presence  model.Presence
	Connected bool
}

// Conversation keeps the message list of one user pair consistent across
// the REST history, the realtime stream and optimistic local sends.
type Conversation struct {
	sync.Mutex

	conf *config.Config
	rt   IRealtime
	rest store.IMessageStore
	now  func() time.Time

	userID    int64
	peerID    int64
	projectID int64

	state          State
	err            error
	messages       []model.Message
	conversationID int64
	presence       model.Presence

	typing      bool
	typingGen   int
	typingTimer *time.Timer

	// loadSeq orders history loads; only the latest one applies.
	loadSeq  int
	attached bool
	cancels  []func()
	unwatch  func()

	listeners map[int]func()
	nextID    int
}

// NewConversation returns an idle conversation between userID and peerID.
// projectID may be 0.
func NewConversation(conf *config.Config, rt IRealtime, rest store.IMessageStore, userID, peerID, projectID int64) *Conversation {
	return &Conversation{
		conf:      conf,
		rt:        rt,
		rest:      rest,
		now:       time.Now,
		userID:    userID,
		peerID:    peerID,
		projectID: projectID,
		presence:  model.PresenceOffline,
		listeners: make(map[int]func()),
	}
}

func (c *Conversation) PeerID() int64    { return c.peerID }
func (c *Conversation) ProjectID() int64 { return c.projectID }

// Open attaches the realtime handlers when connected, loads the history and
// marks the peer's messages read. Without a connection the conversation
// runs on REST alone until the session comes back.
func (c *Conversation) Open(ctx context.Context) error {
	c.Lock()
	if c.state == StateClosed {
		c.Unlock()
		return &model.NotConnectedError{Op: "open conversation"}
	}
	if c.unwatch == nil {
		c.unwatch = c.rt.Watch(c.onConnection)
	}
	c.attach()
	c.Unlock()

	return c.load(ctx)
}

// Retry reloads the history after a failed load.
func (c *Conversation) Retry(ctx context.Context) error {
	return c.load(ctx)
}

// attach subscribes the handlers once per conversation. A failure leaves the
// conversation on REST; the next reconnect tries again. Requires c.Lock.
func (c *Conversation) attach() {
	if c.attached || c.state == StateClosed || !c.rt.Connected() {
		return
	}

	var cancels []func()
	subscribe := func(cancel func(), err error) error {
		if err == nil {
			cancels = append(cancels, cancel)
		}
		return err
	}
	err := subscribe(c.rt.SubscribeToMessages(c.onMessage))
	if err == nil {
		err = subscribe(c.rt.SubscribeToTyping(c.onTyping))
	}
	if err == nil {
		err = subscribe(c.rt.SubscribeToPresence(c.onPresence))
	}
	if err == nil {
		err = subscribe(c.rt.SubscribeToReadReceipts(c.onReadReceipt))
	}
	if err != nil {
		for _, cancel := range cancels {
			cancel()
		}
		glog.Errorf("conversation %d<->%d: realtime unavailable, using REST: %v", c.userID, c.peerID, err)
		return
	}

	c.cancels = cancels
	c.attached = true
	glog.V(5).Infof("conversation %d<->%d: attached", c.userID, c.peerID)
}

func (c *Conversation) load(ctx context.Context) error {
	c.Lock()
	if c.state == StateClosed {
		c.Unlock()
		return &model.NotConnectedError{Op: "load conversation"}
	}
	c.loadSeq++
	seq := c.loadSeq
	if c.state != StateReady {
		c.state = StateLoading
	}
	c.Unlock()
	c.changed()

	history, err := c.rest.GetConversation(ctx, c.userID, c.peerID)

	c.Lock()
	if c.state == StateClosed || seq != c.loadSeq {
		c.Unlock()
		glog.V(5).Infof("conversation %d<->%d: stale history response ignored", c.userID, c.peerID)
		return nil
	}
	if err != nil {
		herr := &model.HistoryFetchError{UserID: c.userID, PeerID: c.peerID, Err: err}
		if c.state != StateReady {
			c.state = StateFailed
		}
		c.err = herr
		c.Unlock()
		c.changed()
		glog.Errorf("%v", herr)
		return herr
	}

	scoped := history[:0:0]
	for _, m := range history {
		if m.Between(c.userID, c.peerID) {
			scoped = append(scoped, m)
			if c.conversationID == 0 {
				c.conversationID = m.ConversationID
			}
		}
	}
	c.messages = Merge(c.messages, scoped...)
	c.state = StateReady
	c.err = nil
	unread := c.unreadLocked()
	c.Unlock()
	c.changed()

	glog.V(5).Infof("conversation %d<->%d: loaded %d messages, %d unread", c.userID, c.peerID, len(scoped), len(unread))
	c.markReadREST(ctx, unread)
	c.loadPresence(ctx)
	return nil
}

// unreadLocked lists the peer's messages not yet read. Requires c.Lock.
func (c *Conversation) unreadLocked() []string {
	var ids []string
	for _, m := range c.messages {
		if m.SenderID == c.peerID && m.ReceiverID == c.userID && m.Status != model.StatusRead {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func (c *Conversation) markReadREST(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	c.Lock()
	cid := c.conversationID
	c.Unlock()
	if cid == 0 {
		glog.V(5).Infof("conversation %d<->%d: no conversation id, read not reported", c.userID, c.peerID)
		return
	}
	if err := c.rest.MarkRead(ctx, cid, c.userID); err != nil {
		glog.Errorf("conversation %d<->%d: mark read: %v", c.userID, c.peerID, err)
		return
	}
	c.setRead(ids)
}

// markRead reports the peer's message read, over realtime when connected.
func (c *Conversation) markRead(m model.Message) {
	c.Lock()
	cid := c.conversationID
	c.Unlock()
	if m.ConversationID != 0 {
		cid = m.ConversationID
	}
	if cid == 0 {
		glog.V(5).Infof("conversation %d<->%d: no conversation id, read not reported", c.userID, c.peerID)
		return
	}

	if c.rt.Connected() {
		err := c.rt.MarkRead(model.ReadRequest{ConversationID: cid, ReaderID: c.userID})
		if err == nil {
			c.setRead([]string{m.ID})
			return
		}
		glog.V(5).Infof("conversation %d<->%d: realtime mark read: %v", c.userID, c.peerID, err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.conf.RequestTimeout)
		defer cancel()
		if err := c.rest.MarkRead(ctx, cid, c.userID); err != nil {
			glog.Errorf("conversation %d<->%d: mark read: %v", c.userID, c.peerID, err)
			return
		}
		c.setRead([]string{m.ID})
	}()
}

func (c *Conversation) setRead(ids []string) {
	c.Lock()
	if c.state == StateClosed {
		c.Unlock()
		return
	}
	for _, id := range ids {
		if i := indexOf(c.messages, id); i >= 0 {
			c.messages[i].Status = c.messages[i].Status.Advance(model.StatusRead)
		}
	}
	c.Unlock()
	c.changed()
}

func (c *Conversation) loadPresence(ctx context.Context) {
	p, err := c.rest.GetStatus(ctx, c.peerID)
	if err != nil {
		glog.Errorf("conversation %d<->%d: peer presence: %v", c.userID, c.peerID, err)
		return
	}
	c.Lock()
	if c.state == StateClosed {
		c.Unlock()
		return
	}
	c.presence = p
	c.Unlock()
	c.changed()
}

func (c *Conversation) onMessage(m model.Message) {
	if !m.Between(c.userID, c.peerID) {
		scopeDiscardsTotal.Inc()
		glog.V(5).Infof("conversation %d<->%d: drop message %s of %d->%d", c.userID, c.peerID, m.ID, m.SenderID, m.ReceiverID)
		return
	}

	c.Lock()
	if c.state == StateClosed {
		c.Unlock()
		return
	}
	if indexOf(c.messages, m.ID) >= 0 {
		duplicatesTotal.Inc()
	}
	c.messages = Merge(c.messages, m)
	if c.conversationID == 0 {
		c.conversationID = m.ConversationID
	}
	i := indexOf(c.messages, m.ID)
	unread := i >= 0 && m.SenderID == c.peerID && c.messages[i].Status != model.StatusRead
	c.Unlock()
	c.changed()

	if unread {
		c.markRead(m)
	}
}

func (c *Conversation) onTyping(ev model.TypingEvent) {
	if ev.SenderID != c.peerID || (ev.ReceiverID != 0 && ev.ReceiverID != c.userID) {
		scopeDiscardsTotal.Inc()
		return
	}

	c.Lock()
	if c.state == StateClosed {
		c.Unlock()
		return
	}
	before := c.typing
	if ev.IsTyping {
		// the TTL runs from the first event of a run
		if !c.typing {
			c.typing = true
			c.typingGen++
			gen := c.typingGen
			c.typingTimer = time.AfterFunc(c.conf.TypingIndicatorTTL, func() { c.expireTyping(gen) })
		}
	} else {
		c.stopTypingLocked()
	}
	changed := before != c.typing
	c.Unlock()

	if changed {
		c.changed()
	}
}

func (c *Conversation) expireTyping(gen int) {
	c.Lock()
	if gen != c.typingGen || !c.typing {
		c.Unlock()
		return
	}
	c.typing = false
	c.typingTimer = nil
	c.Unlock()
	glog.V(5).Infof("conversation %d<->%d: typing indicator expired", c.userID, c.peerID)
	c.changed()
}

// stopTypingLocked requires c.Lock.
func (c *Conversation) stopTypingLocked() {
	c.typing = false
	c.typingGen++
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
}

func (c *Conversation) onPresence(ev model.PresenceEvent) {
	if ev.UserID != c.peerID {
		return
	}
	c.Lock()
	if c.state == StateClosed || c.presence == ev.Status {
		c.Unlock()
		return
	}
	c.presence = ev.Status
	c.Unlock()
	c.changed()
}

func (c *Conversation) onReadReceipt(r model.ReadReceipt) {
	if r.ReaderID != c.peerID {
		return
	}
	c.Lock()
	if c.state == StateClosed {
		c.Unlock()
		return
	}
	if r.ConversationID != 0 && c.conversationID != 0 && r.ConversationID != c.conversationID {
		c.Unlock()
		scopeDiscardsTotal.Inc()
		return
	}
	for i := range c.messages {
		m := &c.messages[i]
		if m.SenderID == c.userID && m.ReceiverID == c.peerID && m.Status != model.StatusFailed {
			m.Status = m.Status.Advance(model.StatusRead)
		}
	}
	c.Unlock()
	c.changed()
}

// onConnection attaches a conversation opened while disconnected and fills
// whatever was missed during an outage.
func (c *Conversation) onConnection(connected bool) {
	c.Lock()
	if c.state == StateClosed {
		c.Unlock()
		return
	}
	resync := false
	if connected {
		c.attach()
		resync = c.state == StateReady || c.state == StateFailed
	}
	c.Unlock()
	c.changed()

	if resync {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.conf.RequestTimeout)
			defer cancel()
			if err := c.load(ctx); err == nil {
				glog.V(5).Infof("conversation %d<->%d: re-synced after reconnect", c.userID, c.peerID)
			}
		}()
	}
}

// CanSend reports why a send would be refused right now, nil if it would
// be attempted.
func (c *Conversation) CanSend() error {
	c.Lock()
	defer c.Unlock()
	return c.canSendLocked()
}

func (c *Conversation) canSendLocked() error {
	if c.state == StateIdle || c.state == StateClosed {
		return &model.NotConnectedError{Op: "send"}
	}
	if !c.conf.RestFallback && !c.rt.Connected() {
		return &model.NotConnectedError{Op: "send"}
	}
	return nil
}

// Send appends an optimistic message and delivers it, over realtime when
// connected and over REST otherwise. On failure the entry stays in the list
// marked failed and a *model.SendFailure is returned.
func (c *Conversation) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ErrEmptyMessage
	}

	c.Lock()
	if err := c.canSendLocked(); err != nil {
		c.Unlock()
		return err
	}
	m := model.Message{
		ID:             model.LocalIDPrefix + uuid.New(),
		ConversationID: c.conversationID,
		SenderID:       c.userID,
		ReceiverID:     c.peerID,
		ProjectID:      c.projectID,
		Text:           text,
		Timestamp:      c.now(),
		Status:         model.StatusSent,
		Local:          true,
	}
	c.messages = Merge(c.messages, m)
	c.Unlock()
	c.changed()

	return c.deliver(ctx, m)
}

// Resend retries a failed optimistic message.
func (c *Conversation) Resend(ctx context.Context, localID string) error {
	c.Lock()
	if err := c.canSendLocked(); err != nil {
		c.Unlock()
		return err
	}
	i := indexOf(c.messages, localID)
	if i < 0 || !c.messages[i].Local || c.messages[i].Status != model.StatusFailed {
		c.Unlock()
		return fmt.Errorf("resend %s: no failed message with this id", localID)
	}
	c.messages[i].Status = c.messages[i].Status.Advance(model.StatusSent)
	m := c.messages[i]
	c.Unlock()
	c.changed()

	return c.deliver(ctx, m)
}

func (c *Conversation) deliver(ctx context.Context, m model.Message) error {
	out := &model.OutboundMessage{
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Timestamp:  m.Timestamp,
		ProjectID:  m.ProjectID,
	}

	if c.rt.Connected() {
		err := c.rt.SendMessage(out)
		if err == nil {
			// the echo on the message queue reconciles the entry
			return nil
		}
		if !c.conf.RestFallback {
			return c.fail(m.ID, err)
		}
		glog.Errorf("conversation %d<->%d: realtime send: %v, falling back to REST", c.userID, c.peerID, err)
	} else if !c.conf.RestFallback {
		return c.fail(m.ID, &model.NotConnectedError{Op: "send"})
	}

	saved, err := c.rest.SendMessage(ctx, out)
	if err != nil {
		return c.fail(m.ID, err)
	}

	c.Lock()
	if c.state == StateClosed {
		c.Unlock()
		return nil
	}
	c.messages = Reconcile(c.messages, m.ID, *saved)
	if c.conversationID == 0 {
		c.conversationID = saved.ConversationID
	}
	c.Unlock()
	c.changed()
	return nil
}

func (c *Conversation) fail(localID string, err error) error {
	sendFailuresTotal.Inc()
	glog.Errorf("conversation %d<->%d: send %s: %v", c.userID, c.peerID, localID, err)

	c.Lock()
	if i := indexOf(c.messages, localID); i >= 0 {
		c.messages[i].Status = c.messages[i].Status.Advance(model.StatusFailed)
	}
	c.Unlock()
	c.changed()
	return &model.SendFailure{LocalID: localID, Err: err}
}

// SendTyping publishes this user's typing indicator to the peer. It is a
// no-op without a realtime session.
func (c *Conversation) SendTyping(isTyping bool) {
	c.Lock()
	closed := c.state == StateClosed
	c.Unlock()
	if closed || !c.rt.Connected() {
		return
	}
	err := c.rt.SendTyping(model.TypingEvent{SenderID: c.userID, ReceiverID: c.peerID, IsTyping: isTyping})
	if err != nil {
		glog.V(5).Infof("conversation %d<->%d: send typing: %v", c.userID, c.peerID, err)
	}
}

// Close detaches the realtime handlers, stops the timers and drops any REST
// response still in flight. Idempotent.
func (c *Conversation) Close() {
	c.Lock()
	if c.state == StateClosed {
		c.Unlock()
		return
	}
	c.state = StateClosed
	c.stopTypingLocked()
	cancels, unwatch := c.cancels, c.unwatch
	c.cancels, c.unwatch = nil, nil
	c.attached = false
	c.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if unwatch != nil {
		unwatch()
	}
	glog.V(5).Infof("conversation %d<->%d: closed", c.userID, c.peerID)
	c.changed()
}

// Messages returns a copy of the list in chronological order.
func (c *Conversation) Messages() []model.Message {
	c.Lock()
	defer c.Unlock()
	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Grouped returns the list bucketed by date, relative to now.
func (c *Conversation) Grouped() []DateGroup {
	return GroupByDate(c.Messages(), c.now())
}

// Typing reports whether the peer is typing.
func (c *Conversation) Typing() bool {
	c.Lock()
	defer c.Unlock()
	return c.typing
}

// Presence is the peer's last known presence.
func (c *Conversation) Presence() model.Presence {
	c.Lock()
	defer c.Unlock()
	return c.presence
}

// Connected reports whether live updates are flowing.
func (c *Conversation) Connected() bool {
	c.Lock()
	attached := c.attached
	c.Unlock()
	return attached && c.rt.Connected()
}

// State returns the load state and the last load error.
func (c *Conversation) State() (State, error) {
	c.Lock()
	defer c.Unlock()
	return c.state, c.err
}

func (c *Conversation) Snapshot() Snapshot {
	connected := c.Connected()
	c.Lock()
	defer c.Unlock()
	msgs := make([]model.Message, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{
		State:     c.state,
		Err:       c.err,
		Messages:  msgs,
		Typing:    c.typing,
		Presence:  c.presence,
		Connected: connected,
	}
}

// OnChange registers fn to run after every change. fn runs on the goroutine
// that made the change, outside the conversation's lock.
func (c *Conversation) OnChange(fn func()) (cancel func()) {
	c.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.Unlock()

	return func() {
		c.Lock()
		delete(c.listeners, id)
		c.Unlock()
	}
}

func (c *Conversation) changed() {
	c.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.Unlock()

	for _, fn := range fns {
		fn()
	}
}
