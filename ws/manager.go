package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/devconnect/chatcore/auth"
	"github.com/devconnect/chatcore/config"
	"github.com/devconnect/chatcore/model"
)

// Manager owns the realtime session of the logged-in user: one STOMP
// connection over a websocket, its per-kind subscriptions and the
// reconnection loop. Consumers only see a connected flag.
type Manager struct {
	sync.Mutex

	conf   *config.Config
	tokens auth.TokenSource
	dialer *websocket.Dialer

	// serializes Connect and Disconnect.
	opMu sync.Mutex

	sess      *session
	conn      *stomp.Conn
	wsc       *Conn
	connected bool

	channels map[Kind]*channel
	watchers map[int]func(bool)
	nextID   int
}

// session lives from a successful Connect until Disconnect, across
// reconnects.
type session struct {
	userID int64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// channel is one STOMP subscription fanned out to every consumer of a kind.
type channel struct {
	sub       *stomp.Subscription
	consumers map[int]func(interface{})
}

func NewManager(conf *config.Config, tokens auth.TokenSource) *Manager {
	return &Manager{
		conf:   conf,
		tokens: tokens,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: conf.HandshakeTimeout,
			Subprotocols:     []string{stompProtocol12, stompProtocol11},
		},
		channels: make(map[Kind]*channel),
		watchers: make(map[int]func(bool)),
	}
}

// Connect establishes the session of userID and returns once the broker
// acknowledged it. Connecting the same user again is a no-op; another user
// replaces the current session.
func (m *Manager) Connect(ctx context.Context, userID int64) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.Lock()
	cur := m.sess
	m.Unlock()
	if cur != nil {
		if cur.userID == userID {
			return nil
		}
		glog.Infof("realtime: switching session from user %d to %d", cur.userID, userID)
		m.disconnect()
	}

	token, err := m.tokens.Token()
	if err != nil {
		glog.Errorf("realtime: no credential for user %d: %v", userID, err)
		return &model.AuthenticationError{Err: err}
	}

	ctx2, cancel := context.WithTimeout(ctx, m.conf.HandshakeTimeout)
	defer cancel()
	conn, wsc, err := m.dial(ctx2, token)
	if err != nil {
		glog.Errorf("realtime: connect user %d: %v", userID, err)
		return &model.TransportError{Op: "connect", Err: err}
	}

	sctx, scancel := context.WithCancel(context.Background())
	s := &session{
		userID: userID,
		ctx:    sctx,
		cancel: scancel,
		done:   make(chan struct{}),
	}

	m.Lock()
	m.sess = s
	m.setTransport(conn, wsc)
	m.Unlock()

	glog.Infof("realtime: connected, user: %d", userID)
	go m.run(s, wsc)
	m.notify(true)
	return nil
}

// Disconnect unsubscribes every handle, tears the transport down and stops
// reconnecting. Idempotent.
func (m *Manager) Disconnect() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.disconnect()
}

func (m *Manager) disconnect() {
	m.Lock()
	s := m.sess
	if s == nil {
		m.Unlock()
		return
	}
	m.sess = nil
	s.cancel()

	var subs []*stomp.Subscription
	for _, ch := range m.channels {
		if ch.sub != nil {
			subs = append(subs, ch.sub)
		}
	}
	m.channels = make(map[Kind]*channel)
	conn, wsc := m.conn, m.wsc
	wasConnected := m.connected
	m.clearTransport()
	m.Unlock()

	m.teardown(conn, wsc, subs)
	<-s.done

	glog.Infof("realtime: disconnected, user: %d", s.userID)
	if wasConnected {
		m.notify(false)
	}
}

// teardown runs the polite STOMP shutdown, bounded by the handshake
// timeout, then drops the websocket.
func (m *Manager) teardown(conn *stomp.Conn, wsc *Conn, subs []*stomp.Subscription) {
	if conn != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			for _, sub := range subs {
				if err := sub.Unsubscribe(); err != nil {
					glog.V(5).Infof("realtime: unsubscribe %s: %v", sub.Destination(), err)
				}
			}
			if err := conn.Disconnect(); err != nil {
				glog.V(5).Infof("realtime: stomp disconnect: %v", err)
			}
		}()
		select {
		case <-done:
		case <-time.After(m.conf.HandshakeTimeout):
			glog.Errorf("realtime: disconnect timed out after %s", m.conf.HandshakeTimeout)
		}
	}
	if wsc != nil {
		wsc.Close()
	}
}

// run watches the transport of s and reconnects on a fixed delay after an
// unexpected loss, until the session is cancelled.
func (m *Manager) run(s *session, wsc *Conn) {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-wsc.Done():
		}

		m.Lock()
		if m.sess != s {
			m.Unlock()
			return
		}
		m.dropTransport()
		m.Unlock()

		glog.Errorf("realtime: transport lost, user: %d, retry every %s", s.userID, m.conf.ReconnectDelay)
		m.notify(false)

		next := m.reconnect(s)
		if next == nil {
			return
		}
		wsc = next
	}
}

// reconnect retries until it succeeds or s is cancelled, which yields nil.
func (m *Manager) reconnect(s *session) *Conn {
	for attempt := 1; ; attempt++ {
		select {
		case <-s.ctx.Done():
			return nil
		case <-time.After(m.conf.ReconnectDelay):
		}

		reconnectsTotal.Inc()
		token, err := m.tokens.Token()
		if err != nil {
			glog.Errorf("realtime: reconnect #%d: no credential: %v", attempt, err)
			continue
		}

		ctx, cancel := context.WithTimeout(s.ctx, m.conf.HandshakeTimeout)
		conn, wsc, err := m.dial(ctx, token)
		cancel()
		if err != nil {
			glog.Errorf("realtime: reconnect #%d: %v", attempt, err)
			continue
		}

		m.Lock()
		if m.sess != s {
			m.Unlock()
			m.teardown(conn, wsc, nil)
			return nil
		}
		m.setTransport(conn, wsc)
		m.resubscribe()
		m.Unlock()

		glog.Infof("realtime: reconnected, user: %d, attempts: %d", s.userID, attempt)
		m.notify(true)
		return wsc
	}
}

func (m *Manager) dial(ctx context.Context, token string) (*stomp.Conn, *Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	wsConn, resp, err := m.dialer.DialContext(ctx, m.conf.WSURL, header)
	if err != nil {
		if resp != nil {
			return nil, nil, fmt.Errorf("%v (%s)", err, resp.Status)
		}
		return nil, nil, err
	}
	wsc := NewConn(wsConn)

	host := "/"
	if u, err := url.Parse(m.conf.WSURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	type result struct {
		conn *stomp.Conn
		err  error
	}
	resultC := make(chan result, 1)
	go func() {
		conn, err := stomp.Connect(wsc,
			stomp.ConnOpt.Host(host),
			stomp.ConnOpt.HeartBeat(m.conf.HeartbeatOutgoing, m.conf.HeartbeatIncoming),
			stomp.ConnOpt.Header("Authorization", "Bearer "+token),
			stomp.ConnOpt.Header("X-Authorization", "Bearer "+token),
		)
		resultC <- result{conn, err}
	}()

	select {
	case r := <-resultC:
		if r.err != nil {
			wsc.Close()
			return nil, nil, r.err
		}
		return r.conn, wsc, nil
	case <-ctx.Done():
		// unblocks stomp.Connect
		wsc.Close()
		return nil, nil, ctx.Err()
	}
}

// setTransport requires m.Lock.
func (m *Manager) setTransport(conn *stomp.Conn, wsc *Conn) {
	m.conn = conn
	m.wsc = wsc
	m.connected = true
	connectedGauge.Set(1)
}

// clearTransport requires m.Lock.
func (m *Manager) clearTransport() {
	m.conn = nil
	m.wsc = nil
	m.connected = false
	connectedGauge.Set(0)
}

// dropTransport forgets a dead transport but keeps the consumers for
// resubscribe. Requires m.Lock.
func (m *Manager) dropTransport() {
	for _, ch := range m.channels {
		ch.sub = nil
	}
	if m.wsc != nil {
		m.wsc.Close()
	}
	m.clearTransport()
}

// resubscribe attaches every kind that still has consumers. Requires m.Lock.
func (m *Manager) resubscribe() {
	for kind, ch := range m.channels {
		if len(ch.consumers) == 0 {
			continue
		}
		sub, err := m.conn.Subscribe(kind.Destination(m.sess.userID), stomp.AckAuto)
		if err != nil {
			glog.Errorf("realtime: resubscribe %s: %v", kind, err)
			continue
		}
		ch.sub = sub
		go m.deliver(kind, sub)
	}
}

// Connected reports whether the session is established right now.
func (m *Manager) Connected() bool {
	m.Lock()
	defer m.Unlock()
	return m.connected
}

// UserID is the user of the current session, 0 without one.
func (m *Manager) UserID() int64 {
	m.Lock()
	defer m.Unlock()
	if m.sess == nil {
		return 0
	}
	return m.sess.userID
}

// Watch registers fn for connected/disconnected transitions. The returned
// func cancels it.
func (m *Manager) Watch(fn func(connected bool)) (cancel func()) {
	m.Lock()
	m.nextID++
	id := m.nextID
	m.watchers[id] = fn
	m.Unlock()

	return func() {
		m.Lock()
		delete(m.watchers, id)
		m.Unlock()
	}
}

func (m *Manager) notify(connected bool) {
	m.Lock()
	ids := make([]int, 0, len(m.watchers))
	for id := range m.watchers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.watchers[id])
	}
	m.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}

// SubscribeToMessages registers fn for every inbound message.
func (m *Manager) SubscribeToMessages(fn func(model.Message)) (cancel func(), err error) {
	return m.subscribe(KindMessages, func(v interface{}) { fn(v.(model.Message)) })
}

// SubscribeToTyping registers fn for every typing indicator.
func (m *Manager) SubscribeToTyping(fn func(model.TypingEvent)) (cancel func(), err error) {
	return m.subscribe(KindTyping, func(v interface{}) { fn(v.(model.TypingEvent)) })
}

// SubscribeToPresence registers fn for every presence change.
func (m *Manager) SubscribeToPresence(fn func(model.PresenceEvent)) (cancel func(), err error) {
	return m.subscribe(KindPresence, func(v interface{}) { fn(v.(model.PresenceEvent)) })
}

// SubscribeToReadReceipts registers fn for every read receipt.
func (m *Manager) SubscribeToReadReceipts(fn func(model.ReadReceipt)) (cancel func(), err error) {
	return m.subscribe(KindReadReceipts, func(v interface{}) { fn(v.(model.ReadReceipt)) })
}

// subscribe registers fn as a consumer of kind. The returned func detaches
// that consumer only.
func (m *Manager) subscribe(kind Kind, fn func(interface{})) (func(), error) {
	m.Lock()
	defer m.Unlock()

	if !m.connected {
		return nil, &model.NotConnectedError{Op: "subscribe " + string(kind)}
	}

	ch := m.channels[kind]
	if ch == nil {
		ch = &channel{consumers: make(map[int]func(interface{}))}
		m.channels[kind] = ch
	}
	if ch.sub == nil {
		sub, err := m.conn.Subscribe(kind.Destination(m.sess.userID), stomp.AckAuto)
		if err != nil {
			return nil, &model.TransportError{Op: "subscribe " + string(kind), Err: err}
		}
		ch.sub = sub
		go m.deliver(kind, sub)
		glog.V(5).Infof("realtime: subscribed %s", sub.Destination())
	}

	m.nextID++
	id := m.nextID
	ch.consumers[id] = fn
	return func() { m.removeConsumer(kind, id) }, nil
}

// Unsubscribe detaches every consumer of kind.
func (m *Manager) Unsubscribe(kind Kind) {
	m.Lock()
	defer m.Unlock()
	if ch := m.channels[kind]; ch != nil {
		delete(m.channels, kind)
		detach(ch.sub)
	}
}

func (m *Manager) removeConsumer(kind Kind, id int) {
	m.Lock()
	defer m.Unlock()
	ch := m.channels[kind]
	if ch == nil {
		return
	}
	delete(ch.consumers, id)
	if len(ch.consumers) == 0 {
		delete(m.channels, kind)
		detach(ch.sub)
	}
}

// detach unsubscribes in the background: the STOMP unsubscribe waits for
// the broker's receipt, which must not happen on a delivery goroutine.
func detach(sub *stomp.Subscription) {
	if sub == nil {
		return
	}
	go func() {
		if err := sub.Unsubscribe(); err != nil {
			glog.V(5).Infof("realtime: unsubscribe %s: %v", sub.Destination(), err)
		}
	}()
}

// deliver drains sub until it closes, dispatching decoded events to the
// consumers of kind while sub is still the kind's current subscription.
func (m *Manager) deliver(kind Kind, sub *stomp.Subscription) {
	decode := decoders[kind]
	for msg := range sub.C {
		if msg.Err != nil {
			glog.V(5).Infof("realtime: %s subscription ended: %v", kind, msg.Err)
			continue
		}

		m.Lock()
		var fns []func(interface{})
		if ch := m.channels[kind]; ch != nil && ch.sub == sub {
			ids := make([]int, 0, len(ch.consumers))
			for id := range ch.consumers {
				ids = append(ids, id)
			}
			sort.Ints(ids)
			for _, id := range ids {
				fns = append(fns, ch.consumers[id])
			}
		}
		m.Unlock()

		if len(fns) == 0 {
			continue
		}

		v, err := decode(msg.Body)
		if err != nil {
			decodeErrorsTotal.WithLabelValues(string(kind)).Inc()
			glog.Errorf("realtime: drop %s event: %v, body: %s", kind, err, string(msg.Body))
			continue
		}
		eventsTotal.WithLabelValues(string(kind)).Inc()
		glog.V(5).Infof("realtime: %s event: %s", kind, string(msg.Body))

		for _, fn := range fns {
			fn(v)
		}
	}
}

// SendMessage publishes a message for the broker to persist and route.
func (m *Manager) SendMessage(msg *model.OutboundMessage) error {
	return m.publish(DestSendMessage, msg)
}

// SendTyping publishes a typing indicator.
func (m *Manager) SendTyping(ev model.TypingEvent) error {
	return m.publish(DestTyping, ev)
}

// MarkRead publishes a read request.
func (m *Manager) MarkRead(req model.ReadRequest) error {
	return m.publish(DestMessagesRead, req)
}

func (m *Manager) publish(dest string, v interface{}) error {
	m.Lock()
	conn, connected := m.conn, m.connected
	m.Unlock()
	if !connected || conn == nil {
		return &model.NotConnectedError{Op: "publish " + dest}
	}

	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := conn.Send(dest, "application/json", body); err != nil {
		return &model.TransportError{Op: "publish " + dest, Err: err}
	}
	return nil
}
