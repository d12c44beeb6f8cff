package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/devconnect/chatcore/chatstore"
	"github.com/devconnect/chatcore/messenger"
	"github.com/devconnect/chatcore/model"
)

// console renders the active conversation as plain lines and turns input
// lines into composer calls. Slash commands:
//
//	/retry           reload the history after a failure
//	/resend <id>     retry a failed message, the last one without an id
//	/chats           print the chat list
//	/new <query>     search the user directory, open the only match
//	/open <id>       open the conversation with a user
//	/reconnect       connect the realtime session now
//	/quit            leave
type console struct {
	sync.Mutex

	w   io.Writer
	m   *messenger.Messenger
	now func() time.Time

	// printed remembers the status each message was last shown with.
	printed map[string]model.Status
	typing  bool
	label   string
	unwatch func()
}

func newConsole(w io.Writer, m *messenger.Messenger) *console {
	return &console{
		w:       w,
		m:       m,
		now:     time.Now,
		printed: make(map[string]model.Status),
	}
}

func (c *console) printChats(query string, unreadOnly bool) {
	list := c.m.Chats()
	chats := list.Filter(query)
	if unreadOnly {
		unread := make(map[int64]bool)
		for _, s := range list.Unread() {
			unread[s.UserID] = true
		}
		var out []model.ChatSummary
		for _, s := range chats {
			if unread[s.UserID] {
				out = append(out, s)
			}
		}
		chats = out
	}
	if err := list.Err(); err != nil {
		fmt.Fprintf(c.w, "! chat list: %v\n", err)
	}
	if len(chats) == 0 {
		fmt.Fprintln(c.w, "no chats")
		return
	}
	for _, s := range chats {
		fmt.Fprintln(c.w, summaryLine(s, c.now()))
	}
}

func summaryLine(s model.ChatSummary, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", s.UserID, s.DisplayName)
	if s.Presence == model.PresenceOnline {
		b.WriteString(" *")
	}
	if s.UnreadCount > 0 {
		fmt.Fprintf(&b, " (%d)", s.UnreadCount)
	}
	if s.LastMessage != "" {
		fmt.Fprintf(&b, ": %s", s.LastMessage)
	}
	if !s.LastMessageTime.IsZero() {
		fmt.Fprintf(&b, " - %s", chatstore.FormatRelative(s.LastMessageTime, now))
	}
	return b.String()
}

func (c *console) open(ctx context.Context, peerID, projectID int64) error {
	c.Lock()
	if c.unwatch != nil {
		c.unwatch()
	}
	c.printed = make(map[string]model.Status)
	c.typing, c.label = false, ""
	c.Unlock()

	conv, _, err := c.m.Open(ctx, peerID, projectID)
	unwatch := conv.OnChange(func() { c.render(conv.Snapshot()) })
	c.Lock()
	c.unwatch = unwatch
	c.Unlock()
	c.render(conv.Snapshot())
	return err
}

// render prints what changed since the last call.
func (c *console) render(snap chatstore.Snapshot) {
	c.Lock()
	defer c.Unlock()

	for _, g := range chatstore.GroupByDate(snap.Messages, c.now()) {
		for _, m := range g.Messages {
			shown, ok := c.printed[m.ID]
			if ok && shown == m.Status {
				continue
			}
			if !ok && g.Label != c.label {
				fmt.Fprintf(c.w, "-- %s --\n", g.Label)
				c.label = g.Label
			}
			c.printed[m.ID] = m.Status
			if ok {
				fmt.Fprintf(c.w, "   %s %s\n", statusMark(m), shortID(m.ID))
				continue
			}
			fmt.Fprintln(c.w, c.messageLine(m))
		}
	}
	if snap.Typing != c.typing {
		c.typing = snap.Typing
		if snap.Typing {
			fmt.Fprintln(c.w, "   ... typing")
		}
	}
}

func (c *console) messageLine(m model.Message) string {
	who := "them"
	if m.SenderID == c.m.UserID() {
		who = "me"
	}
	when := chatstore.FormatMessageTime(m.Timestamp)
	return fmt.Sprintf("%s %-4s %s  %s %s", when, who, m.Text, statusMark(m), shortID(m.ID))
}

func statusMark(m model.Message) string {
	switch m.Status {
	case model.StatusFailed:
		return "[failed]"
	case model.StatusRead:
		return "[read]"
	case model.StatusDelivered:
		return "[delivered]"
	}
	if m.Local {
		return "[sending]"
	}
	return "[sent]"
}

func shortID(id string) string {
	if model.IsLocalID(id) && len(id) > len(model.LocalIDPrefix)+8 {
		return id[:len(model.LocalIDPrefix)+8]
	}
	return id
}

// handle processes one input line, reports whether to quit.
func (c *console) handle(ctx context.Context, line string) bool {
	conv, comp := c.m.Active()
	if conv == nil {
		return true
	}

	cmd := strings.Fields(line)
	if len(cmd) > 0 && strings.HasPrefix(cmd[0], "/") {
		switch cmd[0] {
		case "/quit":
			return true
		case "/chats":
			c.printChats("", false)
		case "/retry":
			if err := conv.Retry(ctx); err != nil {
				fmt.Fprintf(c.w, "! %v\n", err)
			}
		case "/resend":
			id, err := c.failedID(conv, cmd[1:])
			if err == nil {
				err = conv.Resend(ctx, id)
			}
			if err != nil {
				fmt.Fprintf(c.w, "! %v\n", err)
			}
		case "/new":
			c.newChat(ctx, strings.Join(cmd[1:], " "))
		case "/open":
			if len(cmd) != 2 {
				fmt.Fprintln(c.w, "! usage: /open <user id>")
				break
			}
			peerID, err := strconv.ParseInt(cmd[1], 10, 64)
			if err != nil || peerID <= 0 {
				fmt.Fprintf(c.w, "! bad user id %s\n", cmd[1])
				break
			}
			if err := c.open(ctx, peerID, 0); err != nil {
				fmt.Fprintf(c.w, "! %v\n", err)
			}
		case "/reconnect":
			if err := c.m.Reconnect(ctx); err != nil {
				fmt.Fprintf(c.w, "! %v\n", err)
				break
			}
			fmt.Fprintln(c.w, "   realtime connected")
		default:
			fmt.Fprintf(c.w, "! unknown command %s\n", cmd[0])
		}
		return false
	}

	comp.SetText(line)
	if err := comp.Submit(ctx); err != nil && err != model.ErrEmptyMessage {
		glog.V(5).Infof("console: submit: %v", err)
		fmt.Fprintf(c.w, "! %v\n", err)
	}
	return false
}

// newChat opens the conversation with the only user matching query, or
// lists the matches.
func (c *console) newChat(ctx context.Context, query string) {
	users, err := c.m.SearchUsers(ctx, query)
	if err != nil {
		fmt.Fprintf(c.w, "! search: %v\n", err)
		return
	}
	switch len(users) {
	case 0:
		fmt.Fprintln(c.w, "no users")
	case 1:
		if err := c.open(ctx, users[0].ID, 0); err != nil {
			fmt.Fprintf(c.w, "! %v\n", err)
		}
	default:
		for _, u := range users {
			fmt.Fprintln(c.w, userLine(u))
		}
		fmt.Fprintln(c.w, "   /open <id> to start")
	}
}

func userLine(u model.User) string {
	if u.Role == "" {
		return fmt.Sprintf("[%d] %s", u.ID, u.Name)
	}
	return fmt.Sprintf("[%d] %s (%s)", u.ID, u.Name, strings.ToLower(string(u.Role)))
}

// failedID resolves a /resend argument, a shortened id prefix or nothing
// for the latest failed message.
func (c *console) failedID(conv *chatstore.Conversation, args []string) (string, error) {
	msgs := conv.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Status != model.StatusFailed {
			continue
		}
		if len(args) == 0 || strings.HasPrefix(m.ID, args[0]) {
			return m.ID, nil
		}
	}
	return "", fmt.Errorf("no failed message to resend")
}
