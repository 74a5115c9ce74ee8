package state

import (
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreleibot/lorelei/structs"
)

func ptr[T any](v T) *T { return &v }

func TestUpsertChannelMergesPartialPayload(t *testing.T) {
	s := NewStore()

	d := s.UpsertChannel(structs.Channel{
		ID:      100,
		GuildID: 1,
		Name:    ptr("general"),
		Topic:   ptr("talk here"),
	})
	require.True(t, d.Changed)
	require.Nil(t, d.Old)

	// A partial update leaves absent fields untouched.
	d = s.UpsertChannel(structs.Channel{ID: 100, Topic: ptr("new topic")})
	require.True(t, d.Changed)
	c := s.Channel(100)
	assert.Equal(t, "general", c.Name)
	assert.Equal(t, "new topic", c.Topic)
	assert.Equal(t, snowflake.ID(1), c.GuildID)
}

func TestUpsertChannelSameValuesIsNoChange(t *testing.T) {
	s := NewStore()
	s.UpsertChannel(structs.Channel{ID: 100, Name: ptr("general")})
	before := s.Channel(100)

	d := s.UpsertChannel(structs.Channel{ID: 100, Name: ptr("general")})
	assert.False(t, d.Changed)
	// The entity pointer is untouched when nothing changed.
	assert.Same(t, before, s.Channel(100))
	assert.Same(t, d.Old, d.New)
}

func TestUpsertSwapsPointerAtomically(t *testing.T) {
	s := NewStore()
	s.UpsertChannel(structs.Channel{ID: 100, Name: ptr("old"), Topic: ptr("t")})
	before := s.Channel(100)

	s.UpsertChannel(structs.Channel{ID: 100, Name: ptr("new")})
	// The previously handed out entity never mutates.
	assert.Equal(t, "old", before.Name)
	assert.Equal(t, "new", s.Channel(100).Name)
	assert.NotSame(t, before, s.Channel(100))
}

func TestRemoveGuildCascades(t *testing.T) {
	s := NewStore()
	s.PopulateGuild(structs.Guild{
		ID:   1,
		Name: ptr("home"),
		Channels: []structs.Channel{
			{ID: 100, Name: ptr("general")},
		},
		Threads: []structs.Thread{
			{ID: 200, Type: structs.ChannelTypePublicThread, Name: ptr("topic")},
		},
		Members: []structs.Member{
			{User: &structs.User{ID: 300, Username: "ren"}},
		},
		Roles: []structs.Role{
			{ID: 400, Name: ptr("mod")},
		},
	})
	s.UpsertChannel(structs.Channel{ID: 101, GuildID: 2, Name: ptr("elsewhere")})

	g := s.RemoveGuild(1)
	require.NotNil(t, g)
	assert.Nil(t, s.Guild(1))
	assert.Nil(t, s.Channel(100))
	assert.Nil(t, s.Thread(200))
	assert.Nil(t, s.Member(1, 300))
	assert.Nil(t, s.Role(400))
	// Other guilds are untouched.
	assert.NotNil(t, s.Channel(101))

	assert.Nil(t, s.RemoveGuild(1))
}

func TestPopulateGuildBackfillsGuildID(t *testing.T) {
	s := NewStore()
	s.PopulateGuild(structs.Guild{
		ID:       1,
		Channels: []structs.Channel{{ID: 100}},
		Threads:  []structs.Thread{{ID: 200, Type: structs.ChannelTypePublicThread}},
	})
	assert.Equal(t, snowflake.ID(1), s.Channel(100).GuildID)
	assert.Equal(t, snowflake.ID(1), s.Thread(200).GuildID)
}

func TestUpsertMemberRolesAndIdentity(t *testing.T) {
	s := NewStore()
	joined := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

	d := s.UpsertMember(1, structs.Member{
		User:     &structs.User{ID: 300, Username: "ren"},
		Nick:     ptr("renren"),
		Roles:    []snowflake.ID{400, 401},
		JoinedAt: &joined,
	})
	require.True(t, d.Changed)

	d = s.UpsertMember(1, structs.Member{
		User:  &structs.User{ID: 300, Username: "ren"},
		Roles: []snowflake.ID{400},
	})
	require.True(t, d.Changed)
	m := s.Member(1, 300)
	assert.Equal(t, "renren", m.Nick)
	assert.Equal(t, []snowflake.ID{400}, m.Roles)

	// Identical payload is a no-op.
	d = s.UpsertMember(1, structs.Member{
		User:  &structs.User{ID: 300, Username: "ren"},
		Roles: []snowflake.ID{400},
	})
	assert.False(t, d.Changed)
}

func TestClearKeepsSelfID(t *testing.T) {
	s := NewStore()
	s.SetSelfID(7)
	s.UpsertGuild(structs.Guild{ID: 1, Name: ptr("home")})

	s.Clear()
	assert.Nil(t, s.Guild(1))
	assert.Equal(t, snowflake.ID(7), s.SelfID())
}
