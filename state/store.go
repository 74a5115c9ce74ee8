package state

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"github.com/loreleibot/lorelei/structs"
)

type Kind = string

const (
	KindGuild   Kind = "guild"
	KindChannel Kind = "channel"
	KindThread  Kind = "thread"
	KindMember  Kind = "member"
	KindRole    Kind = "role"
)

// Diff reports what an upsert did. Old is nil when the entity was
// newly created. Changed is false when the merge produced no
// observable difference; such diffs must not be notified.
type Diff struct {
	Kind    Kind
	ID      snowflake.ID
	Old     any
	New     any
	Changed bool
}

// Store is the in-memory entity graph. Mutations clone and swap
// whole entities, so concurrent readers observe either the previous
// or the merged entity, never a half-merged one.
type Store struct {
	mu     sync.RWMutex
	selfID snowflake.ID

	guilds   map[snowflake.ID]*Guild
	channels map[snowflake.ID]*Channel
	threads  map[snowflake.ID]*Thread
	roles    map[snowflake.ID]*Role
	members  map[snowflake.ID]map[snowflake.ID]*Member
}

func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.guilds = make(map[snowflake.ID]*Guild)
	s.channels = make(map[snowflake.ID]*Channel)
	s.threads = make(map[snowflake.ID]*Thread)
	s.roles = make(map[snowflake.ID]*Role)
	s.members = make(map[snowflake.ID]map[snowflake.ID]*Member)
}

// Clear drops every cached entity. Called when a session cannot be
// resumed and the snapshot must be rebuilt from scratch.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Store) SetSelfID(id snowflake.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = id
}

func (s *Store) SelfID() snowflake.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

func (s *Store) Guild(id snowflake.ID) *Guild {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guilds[id]
}

func (s *Store) Channel(id snowflake.ID) *Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[id]
}

func (s *Store) Thread(id snowflake.ID) *Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threads[id]
}

func (s *Store) Role(id snowflake.ID) *Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[id]
}

func (s *Store) Member(guildID, userID snowflake.ID) *Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[guildID][userID]
}

// Counts reports cache sizes for the status surface.
func (s *Store) Counts() (guilds, channels, threads int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.guilds), len(s.channels), len(s.threads)
}

// PopulateGuild applies a full guild payload, including its nested
// channel, thread, member and role collections. Used for the READY
// snapshot and GUILD_CREATE.
func (s *Store) PopulateGuild(p structs.Guild) Diff {
	d := s.UpsertGuild(p)
	for _, c := range p.Channels {
		if c.GuildID == 0 {
			c.GuildID = p.ID
		}
		s.UpsertChannel(c)
	}
	for _, t := range p.Threads {
		if t.GuildID == 0 {
			t.GuildID = p.ID
		}
		s.UpsertThread(t)
	}
	for _, m := range p.Members {
		s.UpsertMember(p.ID, m)
	}
	for _, r := range p.Roles {
		s.UpsertRole(p.ID, r)
	}
	return d
}

func (s *Store) UpsertGuild(p structs.Guild) Diff {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.guilds[p.ID]
	if existing == nil {
		g := &Guild{ID: p.ID, Unavailable: p.Unavailable}
		mergeGuild(g, p)
		s.guilds[p.ID] = g
		return Diff{Kind: KindGuild, ID: p.ID, New: g, Changed: true}
	}

	next := *existing
	next.Unavailable = p.Unavailable
	mergeGuild(&next, p)
	if next == *existing {
		return Diff{Kind: KindGuild, ID: p.ID, Old: existing, New: existing}
	}
	s.guilds[p.ID] = &next
	return Diff{Kind: KindGuild, ID: p.ID, Old: existing, New: &next, Changed: true}
}

func mergeGuild(g *Guild, p structs.Guild) {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.OwnerID != nil {
		g.OwnerID = *p.OwnerID
	}
	if p.MemberCount != nil {
		g.MemberCount = *p.MemberCount
	}
}

// RemoveGuild evicts the guild and everything it owns. Idempotent.
func (s *Store) RemoveGuild(id snowflake.ID) *Guild {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guilds[id]
	if !ok {
		return nil
	}
	delete(s.guilds, id)
	delete(s.members, id)
	for cid, c := range s.channels {
		if c.GuildID == id {
			delete(s.channels, cid)
		}
	}
	for tid, t := range s.threads {
		if t.GuildID == id {
			delete(s.threads, tid)
		}
	}
	for rid, r := range s.roles {
		if r.GuildID == id {
			delete(s.roles, rid)
		}
	}
	return g
}

func (s *Store) UpsertChannel(p structs.Channel) Diff {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.channels[p.ID]
	if existing == nil {
		c := &Channel{ID: p.ID, GuildID: p.GuildID, Type: p.Type}
		mergeChannel(c, p)
		s.channels[p.ID] = c
		return Diff{Kind: KindChannel, ID: p.ID, New: c, Changed: true}
	}

	next := *existing
	mergeChannel(&next, p)
	if next == *existing {
		return Diff{Kind: KindChannel, ID: p.ID, Old: existing, New: existing}
	}
	s.channels[p.ID] = &next
	return Diff{Kind: KindChannel, ID: p.ID, Old: existing, New: &next, Changed: true}
}

func mergeChannel(c *Channel, p structs.Channel) {
	if p.GuildID != 0 {
		c.GuildID = p.GuildID
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Topic != nil {
		c.Topic = *p.Topic
	}
	if p.Position != nil {
		c.Position = *p.Position
	}
	if p.ParentID != nil {
		c.ParentID = *p.ParentID
	}
	if p.LastMessageID != nil {
		c.LastMessageID = *p.LastMessageID
	}
	if p.RateLimitPerUser != nil {
		c.Slowmode = *p.RateLimitPerUser
	}
	if p.NSFW != nil {
		c.NSFW = *p.NSFW
	}
}

func (s *Store) RemoveChannel(id snowflake.ID) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[id]
	if !ok {
		return nil
	}
	delete(s.channels, id)
	return c
}

func (s *Store) UpsertMember(guildID snowflake.ID, p structs.Member) Diff {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.User == nil {
		return Diff{Kind: KindMember}
	}
	userID := p.User.ID
	guild := s.members[guildID]
	if guild == nil {
		guild = make(map[snowflake.ID]*Member)
		s.members[guildID] = guild
	}

	existing := guild[userID]
	if existing == nil {
		m := &Member{GuildID: guildID, UserID: userID}
		mergeMember(m, p)
		guild[userID] = m
		return Diff{Kind: KindMember, ID: userID, New: m, Changed: true}
	}

	next := *existing
	next.Roles = append([]snowflake.ID(nil), existing.Roles...)
	mergeMember(&next, p)
	if memberEqual(&next, existing) {
		return Diff{Kind: KindMember, ID: userID, Old: existing, New: existing}
	}
	guild[userID] = &next
	return Diff{Kind: KindMember, ID: userID, Old: existing, New: &next, Changed: true}
}

func mergeMember(m *Member, p structs.Member) {
	if p.User != nil {
		m.Username = p.User.Username
	}
	if p.Nick != nil {
		m.Nick = *p.Nick
	}
	if p.Roles != nil {
		m.Roles = append([]snowflake.ID(nil), p.Roles...)
	}
	if p.JoinedAt != nil {
		m.JoinedAt = *p.JoinedAt
	}
	if p.Flags != nil {
		m.Flags = *p.Flags
	}
}

func memberEqual(a, b *Member) bool {
	if a.Username != b.Username || a.Nick != b.Nick ||
		!a.JoinedAt.Equal(b.JoinedAt) || a.Flags != b.Flags ||
		len(a.Roles) != len(b.Roles) {
		return false
	}
	for i := range a.Roles {
		if a.Roles[i] != b.Roles[i] {
			return false
		}
	}
	return true
}

func (s *Store) RemoveMember(guildID, userID snowflake.ID) *Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[guildID][userID]
	if !ok {
		return nil
	}
	delete(s.members[guildID], userID)
	return m
}

func (s *Store) UpsertRole(guildID snowflake.ID, p structs.Role) Diff {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.roles[p.ID]
	if existing == nil {
		r := &Role{ID: p.ID, GuildID: guildID}
		mergeRole(r, p)
		s.roles[p.ID] = r
		return Diff{Kind: KindRole, ID: p.ID, New: r, Changed: true}
	}

	next := *existing
	mergeRole(&next, p)
	if next == *existing {
		return Diff{Kind: KindRole, ID: p.ID, Old: existing, New: existing}
	}
	s.roles[p.ID] = &next
	return Diff{Kind: KindRole, ID: p.ID, Old: existing, New: &next, Changed: true}
}

func mergeRole(r *Role, p structs.Role) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Color != nil {
		r.Color = *p.Color
	}
	if p.Position != nil {
		r.Position = *p.Position
	}
	if p.Permissions != nil {
		r.Permissions = *p.Permissions
	}
}

func (s *Store) RemoveRole(id snowflake.ID) *Role {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[id]
	if !ok {
		return nil
	}
	delete(s.roles, id)
	return r
}
