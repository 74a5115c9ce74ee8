package gateway

import (
	"encoding/json"

	"github.com/disgoorg/snowflake/v2"

	"github.com/loreleibot/lorelei/state"
	"github.com/loreleibot/lorelei/structs"
)

var dispatchHandlers = map[structs.EventName]func(*Session, json.RawMessage){
	structs.EventNameReady:                  (*Session).onReady,
	structs.EventNameResumed:                (*Session).onResumed,
	structs.EventNameGuildCreate:            (*Session).onGuildCreate,
	structs.EventNameGuildUpdate:            (*Session).onGuildUpdate,
	structs.EventNameGuildDelete:            (*Session).onGuildDelete,
	structs.EventNameChannelCreate:          (*Session).onChannelUpsert,
	structs.EventNameChannelUpdate:          (*Session).onChannelUpsert,
	structs.EventNameChannelDelete:          (*Session).onChannelDelete,
	structs.EventNameThreadCreate:           (*Session).onThreadUpsert,
	structs.EventNameThreadUpdate:           (*Session).onThreadUpsert,
	structs.EventNameThreadDelete:           (*Session).onThreadDelete,
	structs.EventNameThreadListSync:         (*Session).onThreadListSync,
	structs.EventNameThreadMemberUpdate:     (*Session).onThreadMemberUpdate,
	structs.EventNameThreadMembersUpdate:    (*Session).onThreadMembersUpdate,
	structs.EventNameThreadMemberListUpdate: (*Session).onThreadMemberListUpdate,
	structs.EventNameGuildMemberAdd:         (*Session).onGuildMemberUpsert,
	structs.EventNameGuildMemberUpdate:      (*Session).onGuildMemberUpsert,
	structs.EventNameGuildMemberRemove:      (*Session).onGuildMemberRemove,
	structs.EventNameGuildRoleCreate:        (*Session).onGuildRoleUpsert,
	structs.EventNameGuildRoleUpdate:        (*Session).onGuildRoleUpsert,
	structs.EventNameGuildRoleDelete:        (*Session).onGuildRoleDelete,
}

// dispatch routes one gateway dispatch frame. Duplicate and
// out-of-order sequence numbers are dropped before any cache mutation
// so a replayed event can never regress the snapshot. Events without
// a handler are skipped, which keeps unknown event names harmless.
func (s *Session) dispatch(name structs.EventName, seq uint64, data json.RawMessage) {
	if seq != 0 {
		last := s.sequence.Load()
		if seq <= last {
			s.log.Debug("dropping out-of-order dispatch", "event", name, "seq", seq, "last", last)
			if s.onSequenceDrop != nil {
				s.onSequenceDrop(seq, last)
			}
			return
		}
		s.sequence.Store(seq)
	}

	if handler, ok := dispatchHandlers[name]; ok {
		handler(s, data)
	}
	// Waiters resolve after the handler so an awaiting caller reads
	// the store with the event already applied.
	s.resolveWaiters(name, data)
}

func (s *Session) notifyDiff(d state.Diff) {
	if !d.Changed || s.notify == nil {
		return
	}
	s.notify(Notification{Kind: d.Kind, ID: d.ID, Old: d.Old, New: d.New})
}

func (s *Session) notifyRemoval(kind state.Kind, id snowflake.ID, old any) {
	if s.notify == nil {
		return
	}
	s.notify(Notification{Kind: kind, ID: id, Old: old})
}

func (s *Session) onReady(data json.RawMessage) {
	var p structs.ReadyEvent
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode READY", "err", err)
		return
	}
	// A fresh identify means the old snapshot may be stale in ways a
	// resume replay would never tell us about; rebuild it entirely.
	s.store.Clear()
	s.store.SetSelfID(p.User.ID)
	for _, g := range p.Guilds {
		s.store.PopulateGuild(g)
	}

	s.mu.Lock()
	s.sessionID = p.SessionID
	s.resumeGatewayURL = p.ResumeGatewayURL
	s.status = StatusReady
	s.mu.Unlock()
	s.resetBackoff()
	s.log.Info("gateway session ready",
		"session_id", p.SessionID,
		"user_id", p.User.ID,
		"guilds", len(p.Guilds))
}

func (s *Session) onResumed(json.RawMessage) {
	s.setStatus(StatusReady)
	s.resetBackoff()
	s.log.Info("gateway session resumed", "session_id", s.SessionID())
}

func (s *Session) onGuildCreate(data json.RawMessage) {
	var p structs.Guild
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode GUILD_CREATE", "err", err)
		return
	}
	s.notifyDiff(s.store.PopulateGuild(p))
}

func (s *Session) onGuildUpdate(data json.RawMessage) {
	var p structs.Guild
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode GUILD_UPDATE", "err", err)
		return
	}
	s.notifyDiff(s.store.UpsertGuild(p))
}

func (s *Session) onGuildDelete(data json.RawMessage) {
	var p structs.GuildDeleteEvent
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode GUILD_DELETE", "err", err)
		return
	}
	if p.Unavailable {
		// An outage, not a removal. Keep the guild and flag it.
		s.notifyDiff(s.store.UpsertGuild(structs.Guild{ID: p.ID, Unavailable: true}))
		return
	}
	if g := s.store.RemoveGuild(p.ID); g != nil {
		s.notifyRemoval(state.KindGuild, p.ID, g)
	}
}

func (s *Session) onChannelUpsert(data json.RawMessage) {
	var p structs.Channel
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode channel event", "err", err)
		return
	}
	s.notifyDiff(s.store.UpsertChannel(p))
}

func (s *Session) onChannelDelete(data json.RawMessage) {
	var p structs.Channel
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode CHANNEL_DELETE", "err", err)
		return
	}
	if c := s.store.RemoveChannel(p.ID); c != nil {
		s.notifyRemoval(state.KindChannel, p.ID, c)
	}
}

func (s *Session) onThreadUpsert(data json.RawMessage) {
	var p structs.Thread
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode thread event", "err", err)
		return
	}
	s.notifyDiff(s.store.UpsertThread(p))
}

func (s *Session) onThreadDelete(data json.RawMessage) {
	var p structs.ThreadDeleteEvent
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode THREAD_DELETE", "err", err)
		return
	}
	if t := s.store.RemoveThread(p.ID); t != nil {
		s.notifyRemoval(state.KindThread, p.ID, t)
	}
}

func (s *Session) onThreadListSync(data json.RawMessage) {
	var p structs.ThreadListSyncEvent
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode THREAD_LIST_SYNC", "err", err)
		return
	}
	active := make([]snowflake.ID, 0, len(p.Threads))
	for _, t := range p.Threads {
		if t.GuildID == 0 {
			t.GuildID = p.GuildID
		}
		active = append(active, t.ID)
		s.notifyDiff(s.store.UpsertThread(t))
	}
	for _, t := range s.store.SyncThreads(p.GuildID, p.ChannelIDs, active) {
		s.notifyRemoval(state.KindThread, t.ID, t)
	}
	for _, m := range p.Members {
		if m.ThreadID == nil {
			continue
		}
		s.store.AddThreadMember(*m.ThreadID, m)
	}
}

func (s *Session) onThreadMemberUpdate(data json.RawMessage) {
	var p structs.ThreadMember
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode THREAD_MEMBER_UPDATE", "err", err)
		return
	}
	if p.ThreadID == nil {
		return
	}
	s.store.AddThreadMember(*p.ThreadID, p)
}

func (s *Session) onThreadMembersUpdate(data json.RawMessage) {
	var p structs.ThreadMembersUpdateEvent
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode THREAD_MEMBERS_UPDATE", "err", err)
		return
	}
	for _, m := range p.AddedMembers {
		s.store.AddThreadMember(p.ID, m)
	}
	for _, id := range p.RemovedMemberIDs {
		s.store.RemoveThreadMember(p.ID, id)
	}
}

func (s *Session) onThreadMemberListUpdate(data json.RawMessage) {
	var p structs.ThreadMemberListUpdateEvent
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode THREAD_MEMBER_LIST_UPDATE", "err", err)
		return
	}
	s.store.MergeThreadMembers(p.ThreadID, p.Members)
}

func (s *Session) onGuildMemberUpsert(data json.RawMessage) {
	var p structs.GuildMemberAddEvent
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode guild member event", "err", err)
		return
	}
	s.notifyDiff(s.store.UpsertMember(p.GuildID, p.Member))
}

func (s *Session) onGuildMemberRemove(data json.RawMessage) {
	var p structs.GuildMemberRemoveEvent
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode GUILD_MEMBER_REMOVE", "err", err)
		return
	}
	if m := s.store.RemoveMember(p.GuildID, p.User.ID); m != nil {
		s.notifyRemoval(state.KindMember, p.User.ID, m)
	}
}

func (s *Session) onGuildRoleUpsert(data json.RawMessage) {
	var p structs.GuildRoleEvent
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode guild role event", "err", err)
		return
	}
	s.notifyDiff(s.store.UpsertRole(p.GuildID, p.Role))
}

func (s *Session) onGuildRoleDelete(data json.RawMessage) {
	var p structs.GuildRoleDeleteEvent
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Error("failed to decode GUILD_ROLE_DELETE", "err", err)
		return
	}
	if r := s.store.RemoveRole(p.RoleID); r != nil {
		s.notifyRemoval(state.KindRole, p.RoleID, r)
	}
}
