package state

import (
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/loreleibot/lorelei/structs"
)

// Cached entities are immutable once stored: the store clones before
// mutating and swaps the pointer, so a pointer handed to a reader
// never changes underneath it. Cross-entity references are IDs
// resolved through the store, never embedded pointers.

type Guild struct {
	ID          snowflake.ID
	Name        string
	OwnerID     snowflake.ID
	MemberCount int
	Unavailable bool
}

type Channel struct {
	ID            snowflake.ID
	GuildID       snowflake.ID
	Type          structs.ChannelType
	Name          string
	Topic         string
	Position      int
	ParentID      snowflake.ID
	LastMessageID snowflake.ID
	Slowmode      int
	NSFW          bool
}

type Thread struct {
	ID            snowflake.ID
	GuildID       snowflake.ID
	Type          structs.ChannelType
	Name          string
	ParentID      snowflake.ID
	OwnerID       snowflake.ID
	LastMessageID snowflake.ID
	Slowmode      int

	// Approximate counters, capped at 50 by the server. Volatile:
	// excluded from change detection.
	MessageCount int
	MemberCount  int

	Archived            bool
	Locked              bool
	Invitable           bool
	AutoArchiveDuration int
	ArchiveTimestamp    time.Time
	CreateTimestamp     time.Time

	// members is keyed by user ID and is not guaranteed complete
	// unless explicitly fetched. The current user's record lives in
	// me, never in members, so a list refresh cannot evict it.
	members map[snowflake.ID]ThreadMember
	me      *ThreadMember
}

type ThreadMember struct {
	ThreadID snowflake.ID
	UserID   snowflake.ID
	// JoinedAt is only reliably populated for the current user or for
	// users that joined while we were subscribed.
	JoinedAt *time.Time
	Flags    int
}

type Member struct {
	GuildID  snowflake.ID
	UserID   snowflake.ID
	Username string
	Nick     string
	Roles    []snowflake.ID
	JoinedAt time.Time
	Flags    int
}

type Role struct {
	ID          snowflake.ID
	GuildID     snowflake.ID
	Name        string
	Color       int
	Position    int
	Permissions string
}

// Members returns the known membership, current user included.
func (t *Thread) Members() []ThreadMember {
	out := make([]ThreadMember, 0, len(t.members)+1)
	for _, m := range t.members {
		out = append(out, m)
	}
	if t.me != nil {
		out = append(out, *t.me)
	}
	return out
}

// Member looks up a membership record by user ID.
func (t *Thread) Member(userID snowflake.ID) (ThreadMember, bool) {
	if t.me != nil && t.me.UserID == userID {
		return *t.me, true
	}
	m, ok := t.members[userID]
	return m, ok
}

// Me returns the current user's membership record, if joined.
func (t *Thread) Me() *ThreadMember {
	if t.me == nil {
		return nil
	}
	me := *t.me
	return &me
}

func (t *Thread) clone() *Thread {
	c := *t
	c.members = make(map[snowflake.ID]ThreadMember, len(t.members))
	for k, v := range t.members {
		c.members[k] = v
	}
	if t.me != nil {
		me := *t.me
		c.me = &me
	}
	return &c
}

// Sendable is anything messages can be posted to.
type Sendable interface {
	SendTarget() snowflake.ID
}

// HistoryReadable is anything whose message history can be paged.
type HistoryReadable interface {
	HistoryTarget() snowflake.ID
}

func (c *Channel) SendTarget() snowflake.ID { return c.ID }

func (c *Channel) HistoryTarget() snowflake.ID { return c.ID }

func (t *Thread) SendTarget() snowflake.ID { return t.ID }

func (t *Thread) HistoryTarget() snowflake.ID { return t.ID }
