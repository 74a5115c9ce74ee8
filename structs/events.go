package structs

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type EventName = string

const (
	EventNameReady                  EventName = "READY"
	EventNameResumed                EventName = "RESUMED"
	EventNameGuildCreate            EventName = "GUILD_CREATE"
	EventNameGuildUpdate            EventName = "GUILD_UPDATE"
	EventNameGuildDelete            EventName = "GUILD_DELETE"
	EventNameChannelCreate          EventName = "CHANNEL_CREATE"
	EventNameChannelUpdate          EventName = "CHANNEL_UPDATE"
	EventNameChannelDelete          EventName = "CHANNEL_DELETE"
	EventNameThreadCreate           EventName = "THREAD_CREATE"
	EventNameThreadUpdate           EventName = "THREAD_UPDATE"
	EventNameThreadDelete           EventName = "THREAD_DELETE"
	EventNameThreadListSync         EventName = "THREAD_LIST_SYNC"
	EventNameThreadMemberUpdate     EventName = "THREAD_MEMBER_UPDATE"
	EventNameThreadMembersUpdate    EventName = "THREAD_MEMBERS_UPDATE"
	EventNameThreadMemberListUpdate EventName = "THREAD_MEMBER_LIST_UPDATE"
	EventNameGuildMemberAdd         EventName = "GUILD_MEMBER_ADD"
	EventNameGuildMemberUpdate      EventName = "GUILD_MEMBER_UPDATE"
	EventNameGuildMemberRemove      EventName = "GUILD_MEMBER_REMOVE"
	EventNameGuildRoleCreate        EventName = "GUILD_ROLE_CREATE"
	EventNameGuildRoleUpdate        EventName = "GUILD_ROLE_UPDATE"
	EventNameGuildRoleDelete        EventName = "GUILD_ROLE_DELETE"
)

// RawEvent keeps D as raw JSON to delay decoding until the
// dispatcher knows which payload type applies.
type RawEvent struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  uint64          `json:"s,omitempty"`
	T  EventName       `json:"t,omitempty"`
}

func (re *RawEvent) LogValue() slog.Value {
	return slog.GroupValue(slog.Int("op_code", re.Op),
		slog.Uint64("sequence", re.S),
		slog.String("event_name", re.T))
}

// Event is the outbound counterpart of RawEvent.
type Event struct {
	Op int       `json:"op"`
	D  any       `json:"d,omitempty"`
	S  uint64    `json:"s,omitempty"`
	T  EventName `json:"t,omitempty"`
}

type HelloEvent struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type IdentifyEventProperties struct {
	Os      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type IdentifyEvent struct {
	Token          string                  `json:"token"`
	Properties     IdentifyEventProperties `json:"properties"`
	Capabilities   int                     `json:"capabilities,omitempty"`
	Compress       bool                    `json:"compress"`
	LargeThreshold uint8                   `json:"large_threshold,omitempty"`
}

type ResumeEvent struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
}

type ReadyEvent struct {
	V                int     `json:"v"`
	User             User    `json:"user"`
	Guilds           []Guild `json:"guilds"`
	SessionID        string  `json:"session_id"`
	ResumeGatewayURL string  `json:"resume_gateway_url"`
}

// GuildSubscribeEvent asks the gateway to stream extra guild state,
// such as the full member list of a thread.
type GuildSubscribeEvent struct {
	GuildID           snowflake.ID   `json:"guild_id"`
	ThreadMemberLists []snowflake.ID `json:"thread_member_lists,omitempty"`
	Nonce             string         `json:"nonce,omitempty"`
}

type GuildDeleteEvent struct {
	ID          snowflake.ID `json:"id"`
	Unavailable bool         `json:"unavailable,omitempty"`
}

type ThreadDeleteEvent struct {
	ID       snowflake.ID `json:"id"`
	GuildID  snowflake.ID `json:"guild_id"`
	ParentID snowflake.ID `json:"parent_id,omitempty"`
}

type ThreadListSyncEvent struct {
	GuildID    snowflake.ID   `json:"guild_id"`
	ChannelIDs []snowflake.ID `json:"channel_ids,omitempty"`
	Threads    []Thread       `json:"threads"`
	Members    []ThreadMember `json:"members,omitempty"`
}

type ThreadMembersUpdateEvent struct {
	ID               snowflake.ID   `json:"id"`
	GuildID          snowflake.ID   `json:"guild_id"`
	MemberCount      int            `json:"member_count"`
	AddedMembers     []ThreadMember `json:"added_members,omitempty"`
	RemovedMemberIDs []snowflake.ID `json:"removed_member_ids,omitempty"`
}

type ThreadMemberListUpdateEvent struct {
	ThreadID snowflake.ID   `json:"thread_id"`
	GuildID  snowflake.ID   `json:"guild_id"`
	Members  []ThreadMember `json:"members"`
}

type GuildMemberAddEvent struct {
	GuildID snowflake.ID `json:"guild_id"`
	Member
}

type GuildMemberRemoveEvent struct {
	GuildID snowflake.ID `json:"guild_id"`
	User    User         `json:"user"`
}

type GuildRoleEvent struct {
	GuildID snowflake.ID `json:"guild_id"`
	Role    Role         `json:"role"`
}

type GuildRoleDeleteEvent struct {
	GuildID snowflake.ID `json:"guild_id"`
	RoleID  snowflake.ID `json:"role_id"`
}

// RateLimitResponse is the body of a 429 response.
type RateLimitResponse struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

func (r RateLimitResponse) RetryAfterDuration() time.Duration {
	return time.Duration(r.RetryAfter * float64(time.Second))
}
