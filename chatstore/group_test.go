package chatstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devconnect/chatcore/model"
)

func TestGroupByDate(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	at := func(id string, ts time.Time) model.Message {
		return model.Message{ID: id, SenderID: 1, ReceiverID: 2, Text: id, Timestamp: ts}
	}
	messages := []model.Message{
		at("today-2", now.Add(-time.Hour)),
		at("old", time.Date(2023, 12, 31, 10, 0, 0, 0, time.UTC)),
		at("yesterday", now.Add(-24*time.Hour)),
		at("today-1", time.Date(2024, 3, 10, 0, 5, 0, 0, time.UTC)),
		at("march", time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)),
	}

	groups := GroupByDate(messages, now)
	require.Len(t, groups, 4)
	assert.Equal(t, "December 31, 2023", groups[0].Label)
	assert.Equal(t, "March 2", groups[1].Label)
	assert.Equal(t, "Yesterday", groups[2].Label)
	assert.Equal(t, "Today", groups[3].Label)
	assert.Equal(t, []string{"today-1", "today-2"}, ids(groups[3].Messages))

	// pure projection
	assert.Equal(t, groups, GroupByDate(messages, now))
	assert.Equal(t, "today-2", messages[0].ID)
}

func TestGroupByDateChronological(t *testing.T) {
	now := t0.Add(time.Hour)
	list := Merge(nil,
		msg("3", 1, 2, "c", 30*time.Minute, model.StatusSent),
		msg("1", 2, 1, "a", 0, model.StatusSent),
		msg("2", 1, 2, "b", 10*time.Minute, model.StatusSent),
	)
	var flat []model.Message
	for _, g := range GroupByDate(list, now) {
		flat = append(flat, g.Messages...)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids(flat))
}

func TestFormatRelative(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	for _, c := range []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "Just now"},
		{5 * time.Minute, "5m ago"},
		{3*time.Hour + 20*time.Minute, "3h ago"},
		{2*24*time.Hour + time.Hour, "2d ago"},
		{10 * 24 * time.Hour, "2/29/2024"},
	} {
		assert.Equal(t, c.want, FormatRelative(now.Add(-c.ago), now), c.ago.String())
	}
}

func TestFormatMessageTime(t *testing.T) {
	assert.Equal(t, "03:04 PM", FormatMessageTime(time.Date(2024, 3, 10, 15, 4, 0, 0, time.UTC)))
	assert.Equal(t, "09:30 AM", FormatMessageTime(time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, "Sending...", FormatMessageTime(time.Time{}))
}
