// Package backend is an in-memory stand-in for the DevConnect backend: the
// message REST endpoints and a STOMP broker on a websocket, enough to run
// the messaging core end to end on one machine. It keeps nothing on disk.
package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/server"
	"github.com/golang/glog"

	"github.com/devconnect/chatcore/auth"
	"github.com/devconnect/chatcore/model"
	"github.com/devconnect/chatcore/ws"
)

const (
	// WSPath is where the broker accepts websocket upgrades.
	WSPath = "/ws/websocket"
	// APIPath is the REST root.
	APIPath = "/api"

	// serialized LocalDateTime, as the production backend emits it
	timeLayout = "2006-01-02T15:04:05.000"
)

type user struct {
	name string
	role model.Role
}

// Server is the fake backend.
type Server struct {
	sync.Mutex

	secret []byte
	hub    *ws.Hub
	broker *server.Server
	bridge *stomp.Conn
	router chi.Router

	users    map[int64]user
	presence map[int64]model.Presence
	messages []model.Message
	convs    map[[2]int64]int64
	nextID   int64
	nextConv int64
}

func New(secret []byte) *Server {
	s := &Server{
		secret:   secret,
		users:    make(map[int64]user),
		presence: make(map[int64]model.Presence),
		convs:    make(map[[2]int64]int64),
		nextID:   100,
		nextConv: 1,
	}
	authClient := &auth.JWTClient{Secret: secret}
	s.hub = ws.NewHub(authClient)
	s.hub.OnPresence = s.onPresence
	s.broker = &server.Server{HeartBeat: time.Minute}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle(WSPath, s.hub)
	r.Route(APIPath+"/messages", func(r chi.Router) {
		r.Use(s.requireAuth(authClient))
		r.Get("/chats/{userId}", s.getChats)
		r.Get("/conversation", s.getConversation)
		r.Post("/send", s.postSend)
		r.Put("/read", s.putRead)
		r.Get("/status/{userId}", s.getStatus)
		r.Put("/status/{userId}", s.putStatus)
	})
	r.Route(APIPath+"/users", func(r chi.Router) {
		r.Use(s.requireAuth(authClient))
		r.Get("/search", s.searchUsers)
	})
	s.router = r
	return s
}

// Start runs the broker and attaches the bridge that plays the backend's
// message handlers.
func (s *Server) Start() error {
	go func() {
		if err := s.broker.Serve(s.hub.Listener()); err != nil && !errors.Is(err, net.ErrClosed) {
			glog.Errorf("backend: broker: %v", err)
		}
	}()

	client, srv := net.Pipe()
	if err := s.hub.Attach(srv); err != nil {
		return err
	}
	conn, err := stomp.Connect(client, stomp.ConnOpt.HeartBeat(0, 0))
	if err != nil {
		return fmt.Errorf("backend: bridge connect: %v", err)
	}
	s.bridge = conn

	handlers := map[string]func([]byte){
		ws.DestSendMessage:  s.onSendMessage,
		ws.DestTyping:       s.onTyping,
		ws.DestMessagesRead: s.onMessagesRead,
	}
	for dest, fn := range handlers {
		sub, err := conn.Subscribe(dest, stomp.AckAuto)
		if err != nil {
			return fmt.Errorf("backend: subscribe %s: %v", dest, err)
		}
		go func(sub *stomp.Subscription, fn func([]byte)) {
			for msg := range sub.C {
				if msg.Err != nil {
					glog.V(5).Infof("backend: %s: %v", sub.Destination(), msg.Err)
					continue
				}
				fn(msg.Body)
			}
		}(sub, fn)
	}
	glog.Infof("backend: started")
	return nil
}

// Close drops every session and stops the broker.
func (s *Server) Close() {
	if s.bridge != nil {
		s.bridge.MustDisconnect()
	}
	s.hub.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddUser registers a directory entry, named in chat lists and searches.
func (s *Server) AddUser(uid int64, name string, role model.Role) {
	s.Lock()
	defer s.Unlock()
	s.users[uid] = user{name: name, role: role}
}

// Token issues a day-long credential for uid, carrying its role.
func (s *Server) Token(uid int64) (string, error) {
	s.Lock()
	role := s.users[uid].role
	s.Unlock()
	return auth.IssueRoleToken(s.secret, uid, role, 24*time.Hour)
}

// Kickoff drops the websocket sessions of uid, as a broker restart would.
func (s *Server) Kickoff(uid int64) int {
	return s.hub.Kickoff(uid)
}

// Messages returns a copy of every stored message.
func (s *Server) Messages() []model.Message {
	s.Lock()
	defer s.Unlock()
	return append([]model.Message(nil), s.messages...)
}

func (s *Server) requireAuth(c auth.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := c.Auth(r); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func pairKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

// store saves a message under the pair's conversation. Requires s.Lock.
func (s *Server) store(out *model.OutboundMessage) model.Message {
	key := pairKey(out.SenderID, out.ReceiverID)
	cid, ok := s.convs[key]
	if !ok {
		cid = s.nextConv
		s.nextConv++
		s.convs[key] = cid
	}
	s.nextID++
	m := model.Message{
		ID:             strconv.FormatInt(s.nextID, 10),
		ConversationID: cid,
		SenderID:       out.SenderID,
		ReceiverID:     out.ReceiverID,
		ProjectID:      out.ProjectID,
		Text:           out.Text,
		Timestamp:      time.Now(),
		Status:         model.StatusSent,
	}
	s.messages = append(s.messages, m)
	return m
}

// markRead marks the conversation's messages to readerID read and returns
// the other participant. Requires s.Lock.
func (s *Server) markRead(cid, readerID int64) (int64, bool) {
	var other int64
	found := false
	for key, id := range s.convs {
		if id == cid && (key[0] == readerID || key[1] == readerID) {
			other, found = key[0], true
			if other == readerID {
				other = key[1]
			}
		}
	}
	if !found {
		return 0, false
	}
	for i := range s.messages {
		m := &s.messages[i]
		if m.ConversationID == cid && m.ReceiverID == readerID {
			m.Status = m.Status.Advance(model.StatusRead)
		}
	}
	return other, true
}

// wireMessage renders m the way the production backend serializes it:
// numeric ids, upper case status and zone-less timestamps.
func wireMessage(m model.Message) map[string]interface{} {
	id, _ := strconv.ParseInt(m.ID, 10, 64)
	return map[string]interface{}{
		"id":             id,
		"conversationId": m.ConversationID,
		"senderId":       m.SenderID,
		"receiverId":     m.ReceiverID,
		"projectId":      m.ProjectID,
		"text":           m.Text,
		"timestamp":      m.Timestamp.In(time.Local).Format(timeLayout),
		"status":         strings.ToUpper(string(m.Status)),
	}
}

func (s *Server) publish(uid int64, kind ws.Kind, v interface{}) {
	if s.bridge == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		glog.Errorf("backend: marshal %s: %v", kind, err)
		return
	}
	if err := s.bridge.Send(kind.Destination(uid), "application/json", body); err != nil {
		glog.Errorf("backend: publish %s to %d: %v", kind, uid, err)
	}
}

func (s *Server) deliver(m model.Message) {
	wire := wireMessage(m)
	s.publish(m.ReceiverID, ws.KindMessages, wire)
	s.publish(m.SenderID, ws.KindMessages, wire)
}

func (s *Server) receipt(to, readerID, cid int64) {
	s.publish(to, ws.KindReadReceipts, map[string]interface{}{
		"senderId":       readerID,
		"conversationId": cid,
	})
}

func (s *Server) onSendMessage(body []byte) {
	var out model.OutboundMessage
	if err := json.Unmarshal(body, &out); err != nil || out.Text == "" {
		glog.Errorf("backend: bad send: %v, body: %s", err, string(body))
		return
	}
	s.Lock()
	m := s.store(&out)
	s.Unlock()
	s.deliver(m)
}

func (s *Server) onTyping(body []byte) {
	ev, err := model.DecodeTyping(body)
	if err != nil {
		glog.Errorf("backend: bad typing: %v", err)
		return
	}
	s.publish(ev.ReceiverID, ws.KindTyping, ev)
}

func (s *Server) onMessagesRead(body []byte) {
	var req model.ReadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		glog.Errorf("backend: bad read: %v", err)
		return
	}
	s.Lock()
	other, ok := s.markRead(req.ConversationID, req.ReaderID)
	s.Unlock()
	if ok {
		s.receipt(other, req.ReaderID, req.ConversationID)
	}
}

func (s *Server) onPresence(uid int64, online bool) {
	status := model.PresenceOffline
	if online {
		status = model.PresenceOnline
	}
	s.Lock()
	s.presence[uid] = status
	var peers []int64
	for peer := range s.peersLocked(uid) {
		peers = append(peers, peer)
	}
	s.Unlock()

	for _, peer := range peers {
		s.publish(peer, ws.KindPresence, map[string]interface{}{"userId": uid, "status": strings.ToUpper(string(status))})
	}
}

// peersLocked lists the users uid has a conversation with. Requires s.Lock.
func (s *Server) peersLocked(uid int64) map[int64]bool {
	peers := make(map[int64]bool)
	for key := range s.convs {
		switch uid {
		case key[0]:
			peers[key[1]] = true
		case key[1]:
			peers[key[0]] = true
		}
	}
	return peers
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func queryID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("backend: write response: %v", err)
	}
}

func (s *Server) getChats(w http.ResponseWriter, r *http.Request) {
	uid, err := pathID(r, "userId")
	if err != nil {
		http.Error(w, "bad userId", http.StatusBadRequest)
		return
	}

	s.Lock()
	type row struct {
		last   model.Message
		unread int
	}
	rows := make(map[int64]*row)
	for _, m := range s.messages {
		if m.SenderID != uid && m.ReceiverID != uid {
			continue
		}
		peer := m.SenderID
		if peer == uid {
			peer = m.ReceiverID
		}
		rw := rows[peer]
		if rw == nil {
			rw = &row{}
			rows[peer] = rw
		}
		rw.last = m
		if m.ReceiverID == uid && m.Status != model.StatusRead {
			rw.unread++
		}
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for peer, rw := range rows {
		name := s.users[peer].name
		if name == "" {
			name = fmt.Sprintf("User %d", peer)
		}
		status := s.presence[peer]
		if status == "" {
			status = model.PresenceOffline
		}
		out = append(out, map[string]interface{}{
			"userId":          peer,
			"userName":        name,
			"lastMessage":     rw.last.Text,
			"lastMessageTime": rw.last.Timestamp.In(time.Local).Format(timeLayout),
			"unreadCount":     rw.unread,
			"userStatus":      strings.ToUpper(string(status)),
		})
	}
	s.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i]["lastMessageTime"].(string) > out[j]["lastMessageTime"].(string)
	})
	writeJSON(w, out)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	a, err1 := queryID(r, "userId1")
	b, err2 := queryID(r, "userId2")
	if err1 != nil || err2 != nil {
		http.Error(w, "bad user ids", http.StatusBadRequest)
		return
	}
	s.Lock()
	out := make([]map[string]interface{}, 0)
	for _, m := range s.messages {
		if m.Between(a, b) {
			out = append(out, wireMessage(m))
		}
	}
	s.Unlock()
	writeJSON(w, out)
}

func (s *Server) postSend(w http.ResponseWriter, r *http.Request) {
	var out model.OutboundMessage
	if err := json.NewDecoder(r.Body).Decode(&out); err != nil || out.Text == "" {
		http.Error(w, "bad message", http.StatusBadRequest)
		return
	}
	s.Lock()
	m := s.store(&out)
	s.Unlock()
	s.deliver(m)
	writeJSON(w, wireMessage(m))
}

func (s *Server) putRead(w http.ResponseWriter, r *http.Request) {
	cid, err1 := queryID(r, "conversationId")
	reader, err2 := queryID(r, "readerId")
	if err1 != nil || err2 != nil {
		http.Error(w, "bad ids", http.StatusBadRequest)
		return
	}
	s.Lock()
	other, ok := s.markRead(cid, reader)
	s.Unlock()
	if !ok {
		http.Error(w, "no such conversation", http.StatusNotFound)
		return
	}
	s.receipt(other, reader, cid)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	uid, err := pathID(r, "userId")
	if err != nil {
		http.Error(w, "bad userId", http.StatusBadRequest)
		return
	}
	s.Lock()
	status := s.presence[uid]
	s.Unlock()
	if status == "" {
		status = model.PresenceOffline
	}
	writeJSON(w, map[string]interface{}{"userId": uid, "status": strings.ToUpper(string(status))})
}

func (s *Server) putStatus(w http.ResponseWriter, r *http.Request) {
	uid, err := pathID(r, "userId")
	if err != nil {
		http.Error(w, "bad userId", http.StatusBadRequest)
		return
	}
	status := model.ParsePresence(r.URL.Query().Get("status"))
	s.Lock()
	s.presence[uid] = status
	s.Unlock()
	w.WriteHeader(http.StatusOK)
}

// searchUsers matches the query against names, case-insensitively, within
// the role when one is given.
func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	role := model.ParseRole(r.URL.Query().Get("role"))
	if raw := r.URL.Query().Get("role"); raw != "" && role == "" {
		http.Error(w, "bad role", http.StatusBadRequest)
		return
	}
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))

	s.Lock()
	out := make([]model.User, 0)
	for uid, u := range s.users {
		if role != "" && u.role != role {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(u.name), query) {
			continue
		}
		out = append(out, model.User{ID: uid, Name: u.name, Role: u.role})
	}
	s.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, out)
}
