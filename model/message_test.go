package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAdvance(t *testing.T) {
	all := []Status{"", StatusSent, StatusDelivered, StatusRead, StatusFailed}

	// sent < delivered < read never regresses.
	for _, next := range all {
		assert.Equal(t, StatusRead, StatusRead.Advance(next), "read -> %q", next)
	}
	assert.Equal(t, StatusDelivered, StatusDelivered.Advance(StatusSent))
	assert.Equal(t, StatusDelivered, StatusDelivered.Advance(StatusFailed))
	assert.Equal(t, StatusRead, StatusSent.Advance(StatusRead))
	assert.Equal(t, StatusSent, Status("").Advance(StatusSent))

	// failed only applies to an unacknowledged send.
	assert.Equal(t, StatusFailed, StatusSent.Advance(StatusFailed))
	assert.Equal(t, StatusSent, StatusFailed.Advance(StatusSent))
	assert.Equal(t, StatusRead, StatusFailed.Advance(StatusRead))

	assert.Equal(t, StatusSent, StatusSent.Advance("bogus"))
}

func TestParse(t *testing.T) {
	assert.Equal(t, StatusRead, ParseStatus("READ"))
	assert.Equal(t, StatusDelivered, ParseStatus(" Delivered "))
	assert.Equal(t, StatusSent, ParseStatus(""))
	assert.Equal(t, StatusSent, ParseStatus("PENDING"))

	assert.Equal(t, PresenceOnline, ParsePresence("ONLINE"))
	assert.Equal(t, PresenceOffline, ParsePresence("away"))

	assert.Equal(t, RoleDeveloper, ParseRole(" developer"))
	assert.Equal(t, Role(""), ParseRole("ADMIN"))
	assert.Equal(t, RoleClient, RoleDeveloper.Counterpart())
	assert.Equal(t, RoleDeveloper, RoleClient.Counterpart())
	assert.Equal(t, Role(""), Role("").Counterpart())
}

func TestBetween(t *testing.T) {
	m := &Message{SenderID: 1, ReceiverID: 2}
	assert.True(t, m.Between(1, 2))
	assert.True(t, m.Between(2, 1))
	assert.False(t, m.Between(1, 3))
	assert.False(t, m.Between(5, 9))

	assert.True(t, IsLocalID(LocalIDPrefix+"abc"))
	assert.False(t, IsLocalID("17"))
}
