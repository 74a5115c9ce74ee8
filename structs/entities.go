package structs

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Entity payloads as they appear on the wire. Update events carry
// partial objects, so optional fields are pointers: absent means
// "keep the cached value", not "reset to zero".

type User struct {
	ID            snowflake.ID `json:"id"`
	Username      string       `json:"username"`
	Discriminator string       `json:"discriminator,omitempty"`
	Bot           bool         `json:"bot,omitempty"`
}

type Role struct {
	ID          snowflake.ID `json:"id"`
	Name        *string      `json:"name,omitempty"`
	Color       *int         `json:"color,omitempty"`
	Position    *int         `json:"position,omitempty"`
	Permissions *string      `json:"permissions,omitempty"`
}

type Member struct {
	User     *User          `json:"user,omitempty"`
	Nick     *string        `json:"nick,omitempty"`
	Roles    []snowflake.ID `json:"roles,omitempty"`
	JoinedAt *time.Time     `json:"joined_at,omitempty"`
	Pending  *bool          `json:"pending,omitempty"`
	Flags    *int           `json:"flags,omitempty"`
}

type ChannelType int

const (
	ChannelTypeGuildText     ChannelType = 0
	ChannelTypeDM            ChannelType = 1
	ChannelTypeGuildVoice    ChannelType = 2
	ChannelTypeGroupDM       ChannelType = 3
	ChannelTypeGuildCategory ChannelType = 4
	ChannelTypeGuildNews     ChannelType = 5
	ChannelTypeNewsThread    ChannelType = 10
	ChannelTypePublicThread  ChannelType = 11
	ChannelTypePrivateThread ChannelType = 12
)

// Unknown values decode fine and pass through untouched, so new
// channel types do not break dispatch.
func (t ChannelType) IsThread() bool {
	switch t {
	case ChannelTypeNewsThread, ChannelTypePublicThread, ChannelTypePrivateThread:
		return true
	}
	return false
}

type Channel struct {
	ID               snowflake.ID  `json:"id"`
	Type             ChannelType   `json:"type"`
	GuildID          snowflake.ID  `json:"guild_id,omitempty"`
	Name             *string       `json:"name,omitempty"`
	Topic            *string       `json:"topic,omitempty"`
	Position         *int          `json:"position,omitempty"`
	ParentID         *snowflake.ID `json:"parent_id,omitempty"`
	LastMessageID    *snowflake.ID `json:"last_message_id,omitempty"`
	RateLimitPerUser *int          `json:"rate_limit_per_user,omitempty"`
	NSFW             *bool         `json:"nsfw,omitempty"`
}

type ThreadMetadata struct {
	Archived            bool       `json:"archived"`
	AutoArchiveDuration int        `json:"auto_archive_duration"`
	ArchiveTimestamp    time.Time  `json:"archive_timestamp"`
	Locked              *bool      `json:"locked,omitempty"`
	Invitable           *bool      `json:"invitable,omitempty"`
	CreateTimestamp     *time.Time `json:"create_timestamp,omitempty"`
}

type Thread struct {
	ID               snowflake.ID    `json:"id"`
	Type             ChannelType     `json:"type"`
	GuildID          snowflake.ID    `json:"guild_id,omitempty"`
	Name             *string         `json:"name,omitempty"`
	ParentID         *snowflake.ID   `json:"parent_id,omitempty"`
	OwnerID          *snowflake.ID   `json:"owner_id,omitempty"`
	LastMessageID    *snowflake.ID   `json:"last_message_id,omitempty"`
	RateLimitPerUser *int            `json:"rate_limit_per_user,omitempty"`
	MessageCount     *int            `json:"message_count,omitempty"`
	MemberCount      *int            `json:"member_count,omitempty"`
	ThreadMetadata   *ThreadMetadata `json:"thread_metadata,omitempty"`
	// Membership record for the current user, present when the
	// thread payload was delivered because we are in it.
	Member       *ThreadMember `json:"member,omitempty"`
	NewlyCreated bool          `json:"newly_created,omitempty"`
}

type ThreadMember struct {
	// ThreadID is "id" on the wire; inside THREAD_MEMBER_LIST_UPDATE
	// the field is absent and implied by the envelope.
	ThreadID      *snowflake.ID `json:"id,omitempty"`
	UserID        *snowflake.ID `json:"user_id,omitempty"`
	JoinTimestamp *time.Time    `json:"join_timestamp,omitempty"`
	Flags         int           `json:"flags,omitempty"`
}

type Guild struct {
	ID          snowflake.ID  `json:"id"`
	Name        *string       `json:"name,omitempty"`
	OwnerID     *snowflake.ID `json:"owner_id,omitempty"`
	MemberCount *int          `json:"member_count,omitempty"`
	Unavailable bool          `json:"unavailable,omitempty"`
	Channels    []Channel     `json:"channels,omitempty"`
	Threads     []Thread      `json:"threads,omitempty"`
	Members     []Member      `json:"members,omitempty"`
	Roles       []Role        `json:"roles,omitempty"`
}

type Message struct {
	ID        snowflake.ID `json:"id"`
	ChannelID snowflake.ID `json:"channel_id"`
	Author    User         `json:"author"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
}
