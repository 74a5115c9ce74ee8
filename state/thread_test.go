package state

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreleibot/lorelei/structs"
)

const selfID snowflake.ID = 999

func newThreadStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.SetSelfID(selfID)
	s.UpsertThread(structs.Thread{
		ID:       200,
		GuildID:  1,
		Type:     structs.ChannelTypePublicThread,
		ParentID: ptr(snowflake.ID(100)),
		Name:     ptr("topic"),
	})
	return s
}

func TestUpsertThreadVolatileCountersDoNotReportChange(t *testing.T) {
	s := newThreadStore(t)

	d := s.UpsertThread(structs.Thread{
		ID:           200,
		MessageCount: ptr(17),
		MemberCount:  ptr(4),
	})
	// Counters drift on nearly every payload; they update silently.
	assert.False(t, d.Changed)
	th := s.Thread(200)
	assert.Equal(t, 17, th.MessageCount)
	assert.Equal(t, 4, th.MemberCount)

	d = s.UpsertThread(structs.Thread{ID: 200, Name: ptr("renamed")})
	assert.True(t, d.Changed)
}

func TestUpsertThreadArchivalIsObservable(t *testing.T) {
	s := newThreadStore(t)

	d := s.UpsertThread(structs.Thread{
		ID: 200,
		ThreadMetadata: &structs.ThreadMetadata{
			Archived:            true,
			AutoArchiveDuration: 1440,
		},
	})
	require.True(t, d.Changed)
	assert.True(t, s.Thread(200).Archived)

	old, ok := d.Old.(*Thread)
	require.True(t, ok)
	assert.False(t, old.Archived)
}

func TestSelfMembershipSurvivesListMerge(t *testing.T) {
	s := newThreadStore(t)

	_, ok := s.AddThreadMember(200, structs.ThreadMember{})
	require.True(t, ok)
	require.NotNil(t, s.Thread(200).Me())
	assert.Equal(t, selfID, s.Thread(200).Me().UserID)

	// A full list refresh without our own record must not evict us.
	members := s.MergeThreadMembers(200, []structs.ThreadMember{
		{UserID: ptr(snowflake.ID(301))},
		{UserID: ptr(snowflake.ID(302))},
	})
	assert.Len(t, members, 3)
	require.NotNil(t, s.Thread(200).Me())

	m, ok := s.Thread(200).Member(301)
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(200), m.ThreadID)
}

func TestRemoveThreadMember(t *testing.T) {
	s := newThreadStore(t)
	s.AddThreadMember(200, structs.ThreadMember{UserID: ptr(snowflake.ID(301))})
	s.AddThreadMember(200, structs.ThreadMember{UserID: ptr(selfID)})

	_, ok := s.RemoveThreadMember(200, 301)
	require.True(t, ok)
	_, ok = s.Thread(200).Member(301)
	assert.False(t, ok)

	_, ok = s.RemoveThreadMember(200, selfID)
	require.True(t, ok)
	assert.Nil(t, s.Thread(200).Me())

	_, ok = s.RemoveThreadMember(200, 301)
	assert.False(t, ok)
}

func TestSyncThreadsEvictsStaleScopedThreads(t *testing.T) {
	s := newThreadStore(t)
	s.UpsertThread(structs.Thread{
		ID:       201,
		GuildID:  1,
		Type:     structs.ChannelTypePublicThread,
		ParentID: ptr(snowflake.ID(100)),
	})
	s.UpsertThread(structs.Thread{
		ID:       202,
		GuildID:  1,
		Type:     structs.ChannelTypePublicThread,
		ParentID: ptr(snowflake.ID(101)),
	})
	s.UpsertThread(structs.Thread{
		ID:      203,
		GuildID: 2,
		Type:    structs.ChannelTypePublicThread,
	})

	// Sync scoped to parent 100: thread 200 stays active, 201 is
	// gone server-side, 202 is out of scope, 203 is another guild.
	evicted := s.SyncThreads(1, []snowflake.ID{100}, []snowflake.ID{200})
	require.Len(t, evicted, 1)
	assert.Equal(t, snowflake.ID(201), evicted[0].ID)
	assert.NotNil(t, s.Thread(200))
	assert.NotNil(t, s.Thread(202))
	assert.NotNil(t, s.Thread(203))
}

func TestSyncThreadsUnscopedCoversWholeGuild(t *testing.T) {
	s := newThreadStore(t)
	s.UpsertThread(structs.Thread{
		ID:       201,
		GuildID:  1,
		Type:     structs.ChannelTypePublicThread,
		ParentID: ptr(snowflake.ID(101)),
	})

	evicted := s.SyncThreads(1, nil, nil)
	assert.Len(t, evicted, 2)
	assert.Nil(t, s.Thread(200))
	assert.Nil(t, s.Thread(201))
}
