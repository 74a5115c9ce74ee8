package state

import (
	"github.com/disgoorg/snowflake/v2"

	"github.com/loreleibot/lorelei/structs"
)

func (s *Store) UpsertThread(p structs.Thread) Diff {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.threads[p.ID]
	if existing == nil {
		t := &Thread{
			ID:        p.ID,
			GuildID:   p.GuildID,
			Type:      p.Type,
			Invitable: true,
			members:   make(map[snowflake.ID]ThreadMember),
		}
		mergeThread(t, p)
		s.applySelfMembership(t, p.Member)
		s.threads[p.ID] = t
		return Diff{Kind: KindThread, ID: p.ID, New: t, Changed: true}
	}

	next := existing.clone()
	mergeThread(next, p)
	s.applySelfMembership(next, p.Member)
	if threadObservableEqual(next, existing) {
		// Volatile counters may still have moved; keep them without
		// reporting a change.
		s.threads[p.ID] = next
		return Diff{Kind: KindThread, ID: p.ID, Old: existing, New: next}
	}
	s.threads[p.ID] = next
	return Diff{Kind: KindThread, ID: p.ID, Old: existing, New: next, Changed: true}
}

func mergeThread(t *Thread, p structs.Thread) {
	if p.GuildID != 0 {
		t.GuildID = p.GuildID
	}
	if p.Type != 0 {
		t.Type = p.Type
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.ParentID != nil {
		t.ParentID = *p.ParentID
	}
	if p.OwnerID != nil {
		t.OwnerID = *p.OwnerID
	}
	if p.LastMessageID != nil {
		t.LastMessageID = *p.LastMessageID
	}
	if p.RateLimitPerUser != nil {
		t.Slowmode = *p.RateLimitPerUser
	}
	if p.MessageCount != nil {
		t.MessageCount = *p.MessageCount
	}
	if p.MemberCount != nil {
		t.MemberCount = *p.MemberCount
	}
	if meta := p.ThreadMetadata; meta != nil {
		t.Archived = meta.Archived
		t.AutoArchiveDuration = meta.AutoArchiveDuration
		t.ArchiveTimestamp = meta.ArchiveTimestamp
		if meta.Locked != nil {
			t.Locked = *meta.Locked
		}
		if meta.Invitable != nil {
			t.Invitable = *meta.Invitable
		}
		if meta.CreateTimestamp != nil {
			t.CreateTimestamp = *meta.CreateTimestamp
		}
	}
}

func (s *Store) applySelfMembership(t *Thread, p *structs.ThreadMember) {
	if p == nil {
		return
	}
	m := threadMemberFromPayload(t.ID, *p)
	if m.UserID == 0 {
		m.UserID = s.selfID
	}
	t.me = &m
}

// threadObservableEqual compares the fields a change notification
// should fire for. The approximate MessageCount/MemberCount counters
// and the membership map are deliberately excluded: they drift on
// nearly every gateway payload and would produce noise updates.
func threadObservableEqual(a, b *Thread) bool {
	return a.Name == b.Name &&
		a.ParentID == b.ParentID &&
		a.OwnerID == b.OwnerID &&
		a.LastMessageID == b.LastMessageID &&
		a.Slowmode == b.Slowmode &&
		a.Archived == b.Archived &&
		a.Locked == b.Locked &&
		a.Invitable == b.Invitable &&
		a.AutoArchiveDuration == b.AutoArchiveDuration &&
		a.ArchiveTimestamp.Equal(b.ArchiveTimestamp)
}

func (s *Store) RemoveThread(id snowflake.ID) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[id]
	if !ok {
		return nil
	}
	delete(s.threads, id)
	return t
}

func threadMemberFromPayload(threadID snowflake.ID, p structs.ThreadMember) ThreadMember {
	m := ThreadMember{ThreadID: threadID, JoinedAt: p.JoinTimestamp, Flags: p.Flags}
	if p.ThreadID != nil {
		m.ThreadID = *p.ThreadID
	}
	if p.UserID != nil {
		m.UserID = *p.UserID
	}
	return m
}

// AddThreadMember records a membership delivered by the gateway. The
// current user's record goes to the dedicated self slot so a
// concurrent member-list refresh can never evict it.
func (s *Store) AddThreadMember(threadID snowflake.ID, p structs.ThreadMember) (ThreadMember, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threads[threadID]
	if t == nil {
		return ThreadMember{}, false
	}
	m := threadMemberFromPayload(threadID, p)
	if m.UserID == 0 {
		// The gateway omits user_id for the current user's own
		// membership updates.
		m.UserID = s.selfID
	}
	next := t.clone()
	if m.UserID == s.selfID {
		next.me = &m
	} else {
		next.members[m.UserID] = m
	}
	s.threads[threadID] = next
	return m, true
}

func (s *Store) RemoveThreadMember(threadID, userID snowflake.ID) (ThreadMember, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threads[threadID]
	if t == nil {
		return ThreadMember{}, false
	}
	next := t.clone()
	if userID == s.selfID {
		if next.me == nil {
			return ThreadMember{}, false
		}
		m := *next.me
		next.me = nil
		s.threads[threadID] = next
		return m, true
	}
	m, ok := next.members[userID]
	if !ok {
		return ThreadMember{}, false
	}
	delete(next.members, userID)
	s.threads[threadID] = next
	return m, true
}

// MergeThreadMembers folds a fetched member list into the thread,
// overwriting existing entries by user ID. Returns the full current
// membership.
func (s *Store) MergeThreadMembers(threadID snowflake.ID, payloads []structs.ThreadMember) []ThreadMember {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threads[threadID]
	if t == nil {
		return nil
	}
	next := t.clone()
	for _, p := range payloads {
		m := threadMemberFromPayload(threadID, p)
		if m.UserID == 0 {
			m.UserID = s.selfID
		}
		if m.UserID == s.selfID {
			next.me = &m
			continue
		}
		next.members[m.UserID] = m
	}
	s.threads[threadID] = next
	return next.Members()
}

// SyncThreads reconciles the active-thread set of a guild. Cached
// threads under the synced parent channels that the server no longer
// reports are evicted (they were archived or deleted while we were
// away). Returns the evicted threads.
func (s *Store) SyncThreads(guildID snowflake.ID, channelIDs []snowflake.ID, active []snowflake.ID) []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	scoped := make(map[snowflake.ID]bool, len(channelIDs))
	for _, id := range channelIDs {
		scoped[id] = true
	}
	keep := make(map[snowflake.ID]bool, len(active))
	for _, id := range active {
		keep[id] = true
	}

	var evicted []*Thread
	for id, t := range s.threads {
		if t.GuildID != guildID || keep[id] {
			continue
		}
		if len(scoped) > 0 && !scoped[t.ParentID] {
			continue
		}
		delete(s.threads, id)
		evicted = append(evicted, t)
	}
	return evicted
}
