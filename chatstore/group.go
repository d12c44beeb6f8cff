package chatstore

import (
	"fmt"
	"time"

	"github.com/devconnect/chatcore/model"
)

// DateGroup is one date bucket of a rendered conversation.
type DateGroup struct {
	Label    string
	Messages []model.Message
}

// GroupByDate partitions messages into date buckets in chronological order,
// labeled relative to now in now's zone. The input is not modified.
func GroupByDate(messages []model.Message, now time.Time) []DateGroup {
	sorted := make([]model.Message, len(messages))
	copy(sorted, messages)
	sortByTime(sorted)

	var groups []DateGroup
	for _, m := range sorted {
		label := dateLabel(m.Timestamp.In(now.Location()), now)
		if n := len(groups); n > 0 && groups[n-1].Label == label {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DateGroup{Label: label, Messages: []model.Message{m}})
	}
	return groups
}

func dateLabel(t, now time.Time) string {
	switch day := startOfDay(t); {
	case day.Equal(startOfDay(now)):
		return "Today"
	case day.Equal(startOfDay(now.AddDate(0, 0, -1))):
		return "Yesterday"
	case t.Year() != now.Year():
		return t.Format("January 2, 2006")
	default:
		return t.Format("January 2")
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatRelative renders t the way the chat list shows the last activity.
func FormatRelative(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
	return t.In(now.Location()).Format("1/2/2006")
}

// FormatMessageTime renders the time of day of a message bubble. Messages
// not yet timestamped show as sending.
func FormatMessageTime(t time.Time) string {
	if t.IsZero() {
		return "Sending..."
	}
	return t.Format("03:04 PM")
}
