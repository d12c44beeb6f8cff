package chatstore

import (
	"sort"
	"time"

	"github.com/devconnect/chatcore/model"
)

// Merge folds incoming into existing and returns the new list, sorted by
// timestamp with ties kept in arrival order. Neither input is modified.
//
// An incoming message whose id is already held collapses into the held
// entry, whose status only moves forward. A server message that matches a
// pending optimistic entry (same sender, receiver and text, timestamps at
// most pendingWindow apart) takes the place of the closest such entry.
func Merge(existing []model.Message, incoming ...model.Message) []model.Message {
	out := make([]model.Message, len(existing), len(existing)+len(incoming))
	copy(out, existing)

	for _, m := range incoming {
		if i := indexOf(out, m.ID); i >= 0 {
			out[i] = collapse(out[i], m)
			continue
		}
		if !m.Local {
			if i := pendingMatch(out, m); i >= 0 {
				m.Status = acked(out[i].Status, m.Status)
				out[i] = m
				continue
			}
		}
		out = append(out, m)
	}

	sortByTime(out)
	return out
}

// Reconcile swaps the optimistic entry localID for the server's copy. When
// the server copy is already held, the optimistic entry is dropped.
func Reconcile(list []model.Message, localID string, server model.Message) []model.Message {
	server.Local = false
	li := indexOf(list, localID)
	if li < 0 {
		return Merge(list, server)
	}

	out := make([]model.Message, 0, len(list))
	if si := indexOf(list, server.ID); si >= 0 {
		for i, m := range list {
			switch i {
			case li:
			case si:
				out = append(out, collapse(m, server))
			default:
				out = append(out, m)
			}
		}
		return out
	}

	for i, m := range list {
		if i == li {
			server.Status = acked(m.Status, server.Status)
			out = append(out, server)
			continue
		}
		out = append(out, m)
	}
	sortByTime(out)
	return out
}

// collapse merges a duplicate into the held entry.
func collapse(held, dup model.Message) model.Message {
	var status model.Status
	if held.Local && !dup.Local {
		status = acked(held.Status, dup.Status)
		held = dup
	} else {
		status = held.Status.Advance(dup.Status)
	}
	held.Status = status
	if held.ConversationID == 0 {
		held.ConversationID = dup.ConversationID
	}
	return held
}

// acked is the status of an optimistic entry once the server holds it: a
// failed send that reached the server is no longer failed.
func acked(local, server model.Status) model.Status {
	if local == model.StatusFailed {
		local = model.StatusSent
	}
	return local.Advance(server)
}

// pendingWindow bounds the clock distance between an optimistic entry and
// the server copy acknowledging it.
const pendingWindow = 2 * time.Minute

func pendingMatch(list []model.Message, m model.Message) int {
	best, bestDist := -1, pendingWindow
	for i := range list {
		p := &list[i]
		if !p.Local || p.SenderID != m.SenderID || p.ReceiverID != m.ReceiverID || p.Text != m.Text {
			continue
		}
		dist := m.Timestamp.Sub(p.Timestamp)
		if dist < 0 {
			dist = -dist
		}
		if dist <= bestDist && (best < 0 || dist < bestDist) {
			best, bestDist = i, dist
		}
	}
	return best
}

func indexOf(list []model.Message, id string) int {
	if id == "" {
		return -1
	}
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func sortByTime(list []model.Message) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.Before(list[j].Timestamp)
	})
}
