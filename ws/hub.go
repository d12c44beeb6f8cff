package ws

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pborman/uuid"

	"github.com/devconnect/chatcore/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	Subprotocols:    []string{stompProtocol12, stompProtocol11},
	// The dev frontend is served from another origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Session is one authenticated websocket accepted by a Hub.
type Session struct {
	Uid        int64
	Sid        string
	CreateTime time.Time
	Ip         string

	conn *Conn
}

// Hub authenticates websocket upgrades and feeds them to a stream server
// through its Listener. It tracks live sessions per user.
type Hub struct {
	authClient auth.Client
	listener   *Listener
	hstore     *sessionStore

	// OnPresence, if set, is called when a user gets its first session or
	// loses its last one.
	OnPresence func(uid int64, online bool)
}

// NewHub creates a `Hub`.
func NewHub(authClient auth.Client) *Hub {
	return &Hub{
		authClient: authClient,
		listener:   NewListener(hubAddr{}),
		hstore: &sessionStore{
			sessions: make(map[string]*Session),
		},
	}
}

// Listener yields the accepted connections.
func (h *Hub) Listener() net.Listener {
	return h.listener
}

// ServeHTTP handles websocket requests from the peer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	uid, err := h.authClient.Auth(r)
	if err != nil {
		glog.Errorf("ServeHTTP(): authenticate error: %v", err)
		http.Error(w, "Authenticate error", http.StatusUnauthorized)
		return
	}

	// If the upgrade fails, then Upgrade replies to the client with an HTTP error response.
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Errorf("ServeHTTP(): upgrader.Upgrade error, uid: %d, err: %s", uid, err)
		return
	}

	sess := &Session{
		Uid:        uid,
		Sid:        strings.ReplaceAll(uuid.New(), "-", ""),
		CreateTime: time.Now(),
		Ip:         getRemoteIP(r),
		conn:       NewConn(wsConn),
	}

	h.addSession(sess)

	go func() {
		<-sess.conn.Done()
		glog.V(5).Infof("session closed, uid: %d, sid: %s", sess.Uid, sess.Sid)
		h.delSession(sess)
	}()

	if err := h.listener.Push(sess.conn); err != nil {
		glog.Errorf("ServeHTTP(): hub closed, uid: %d", uid)
		sess.conn.Close()
	}
}

// Attach hands an already trusted in-process connection to the stream
// server, bypassing authentication. It is not tracked as a session.
func (h *Hub) Attach(c net.Conn) error {
	return h.listener.Push(c)
}

func (h *Hub) addSession(sess *Session) {
	if first := h.hstore.add(sess); first && h.OnPresence != nil {
		h.OnPresence(sess.Uid, true)
	}
}

func (h *Hub) delSession(sess *Session) {
	if last := h.hstore.del(sess); last && h.OnPresence != nil {
		h.OnPresence(sess.Uid, false)
	}
}

// Online reports whether uid has a live session.
func (h *Hub) Online(uid int64) bool {
	return len(h.hstore.getByUid(uid)) > 0
}

// Kickoff drops every session of uid, returns how many were closed.
func (h *Hub) Kickoff(uid int64) int {
	sessions := h.hstore.getByUid(uid)
	for _, s := range sessions {
		glog.V(5).Infof("Kickoff(): uid: %d, sid: %s", s.Uid, s.Sid)
		s.conn.Close()
	}
	return len(sessions)
}

// Close stops accepting and closes all sessions.
func (h *Hub) Close() {
	h.listener.Close()
	for _, s := range h.hstore.all() {
		s.conn.Close()
	}
}

// sessionStore is the in-memory store of live sessions.
type sessionStore struct {
	sync.RWMutex
	sessions map[string]*Session
}

// add returns true if sess is the first session of its user.
func (ss *sessionStore) add(sess *Session) bool {
	ss.Lock()
	defer ss.Unlock()
	first := true
	for _, s := range ss.sessions {
		if s.Uid == sess.Uid {
			first = false
			break
		}
	}
	ss.sessions[sess.Sid] = sess
	return first
}

// del returns true if sess was the last session of its user.
func (ss *sessionStore) del(sess *Session) bool {
	ss.Lock()
	defer ss.Unlock()
	if _, ok := ss.sessions[sess.Sid]; !ok {
		return false
	}
	delete(ss.sessions, sess.Sid)
	for _, s := range ss.sessions {
		if s.Uid == sess.Uid {
			return false
		}
	}
	return true
}

func (ss *sessionStore) getByUid(uid int64) []*Session {
	ss.RLock()
	defer ss.RUnlock()

	var out []*Session
	for _, s := range ss.sessions {
		if s.Uid == uid {
			out = append(out, s)
		}
	}
	return out
}

func (ss *sessionStore) all() []*Session {
	ss.RLock()
	defer ss.RUnlock()
	out := make([]*Session, 0, len(ss.sessions))
	for _, s := range ss.sessions {
		out = append(out, s)
	}
	return out
}

type hubAddr struct{}

func (hubAddr) Network() string { return "websocket" }
func (hubAddr) String() string  { return "hub" }

func getRemoteIP(r *http.Request) string {
	ip := r.Header.Get("X-REAL-IP")
	if ip == "" {
		if ips := r.Header.Get("X-FORWARDED-FOR"); ips != "" {
			slice := strings.Split(ips, ",")
			for _, x := range slice {
				if x != "" {
					ip = x
				}
			}
		}
	}
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}

	return ip
}
