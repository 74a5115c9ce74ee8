package threads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/loreleibot/lorelei/gateway"
	"github.com/loreleibot/lorelei/rest"
	"github.com/loreleibot/lorelei/state"
	"github.com/loreleibot/lorelei/structs"
)

// memberFetchTimeout bounds how long FetchMembers waits for the
// gateway to stream the member list back.
const memberFetchTimeout = 15 * time.Second

var (
	// ErrThreadArchived rejects mutations of an archived thread
	// before any request is issued. Unarchiving is the exception.
	ErrThreadArchived = errors.New("thread is archived")

	ErrUnknownThread = errors.New("thread is not cached")

	ErrMemberFetchTimeout = fmt.Errorf("thread member list fetch: %w", gateway.ErrRequestTimeout)
)

// Waiter is a pending correlated gateway response.
type Waiter interface {
	Await(ctx context.Context, timeout time.Duration) (json.RawMessage, error)
	Cancel()
}

// Gateway is the slice of the live session the thread API needs:
// issuing a member-list subscription and waiting for its reply.
type Gateway interface {
	RequestThreadMembers(guildID, threadID snowflake.ID) error
	WaitFor(event structs.EventName, predicate func(json.RawMessage) bool) Waiter
}

type sessionGateway struct {
	session *gateway.Session
}

func (g sessionGateway) RequestThreadMembers(guildID, threadID snowflake.ID) error {
	return g.session.RequestThreadMembers(guildID, threadID)
}

func (g sessionGateway) WaitFor(event structs.EventName, predicate func(json.RawMessage) bool) Waiter {
	return g.session.WaitFor(event, predicate)
}

// SessionGateway adapts a live session to the Gateway interface.
func SessionGateway(s *gateway.Session) Gateway {
	return sessionGateway{session: s}
}

// API exposes thread operations that combine the REST surface, the
// gateway subscription channel and the entity cache.
type API struct {
	rest    *rest.Client
	gateway Gateway
	store   *state.Store
	log     *slog.Logger
}

func NewAPI(rc *rest.Client, gw Gateway, store *state.Store, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{rest: rc, gateway: gw, store: store, log: log}
}

// Join adds the current user to the thread.
func (a *API) Join(ctx context.Context, threadID snowflake.ID) error {
	_, err := a.rest.Do(ctx, rest.JoinThread(threadID), nil)
	return err
}

// Leave removes the current user from the thread.
func (a *API) Leave(ctx context.Context, threadID snowflake.ID) error {
	_, err := a.rest.Do(ctx, rest.LeaveThread(threadID), nil)
	return err
}

func (a *API) AddUser(ctx context.Context, threadID, userID snowflake.ID) error {
	_, err := a.rest.Do(ctx, rest.AddThreadMember(threadID, userID), nil)
	return err
}

func (a *API) RemoveUser(ctx context.Context, threadID, userID snowflake.ID) error {
	_, err := a.rest.Do(ctx, rest.RemoveThreadMember(threadID, userID), nil)
	return err
}

// EditParams carries the mutable thread settings. Nil fields are
// left untouched.
type EditParams struct {
	Name                *string `json:"name,omitempty"`
	Archived            *bool   `json:"archived,omitempty"`
	Locked              *bool   `json:"locked,omitempty"`
	Invitable           *bool   `json:"invitable,omitempty"`
	AutoArchiveDuration *int    `json:"auto_archive_duration,omitempty"`
	Slowmode            *int    `json:"rate_limit_per_user,omitempty"`
}

// unarchives reports whether the edit flips the thread back to
// active, the one mutation an archived thread accepts.
func (p EditParams) unarchives() bool {
	return p.Archived != nil && !*p.Archived
}

// Edit patches the thread's settings and folds the server's reply
// into the cache. Editing an archived thread fails locally unless the
// edit unarchives it.
func (a *API) Edit(ctx context.Context, threadID snowflake.ID, params EditParams) (*state.Thread, error) {
	if t := a.store.Thread(threadID); t != nil && t.Archived && !params.unarchives() {
		return nil, ErrThreadArchived
	}

	data, err := a.rest.Do(ctx, rest.EditChannel(threadID), params)
	if err != nil {
		return nil, err
	}
	var p structs.Thread
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode thread: %w", err)
	}
	d := a.store.UpsertThread(p)
	t, _ := d.New.(*state.Thread)
	return t, nil
}

// Delete removes the thread on the server and evicts it locally.
func (a *API) Delete(ctx context.Context, threadID snowflake.ID) error {
	if _, err := a.rest.Do(ctx, rest.DeleteChannel(threadID), nil); err != nil {
		return err
	}
	a.store.RemoveThread(threadID)
	return nil
}

// FetchMembers retrieves the full member list of a thread through the
// gateway. The REST surface only returns partial records, so the list
// arrives as a correlated THREAD_MEMBER_LIST_UPDATE dispatch instead.
// On timeout the cached membership is left untouched.
func (a *API) FetchMembers(ctx context.Context, threadID snowflake.ID) ([]state.ThreadMember, error) {
	t := a.store.Thread(threadID)
	if t == nil {
		return nil, ErrUnknownThread
	}

	w := a.gateway.WaitFor(structs.EventNameThreadMemberListUpdate, func(data json.RawMessage) bool {
		var probe struct {
			ThreadID snowflake.ID `json:"thread_id"`
		}
		return json.Unmarshal(data, &probe) == nil && probe.ThreadID == threadID
	})
	if err := a.gateway.RequestThreadMembers(t.GuildID, threadID); err != nil {
		w.Cancel()
		return nil, err
	}

	data, err := w.Await(ctx, memberFetchTimeout)
	if err != nil {
		if errors.Is(err, gateway.ErrRequestTimeout) {
			a.log.Warn("thread member list never arrived", "thread_id", threadID)
			return nil, ErrMemberFetchTimeout
		}
		return nil, err
	}
	var p structs.ThreadMemberListUpdateEvent
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode member list: %w", err)
	}
	return a.store.MergeThreadMembers(threadID, p.Members), nil
}

// Send posts a message to any sendable target. Sending into an
// archived thread unarchives it server-side, so no local gate here.
func (a *API) Send(ctx context.Context, target state.Sendable, content string) (structs.Message, error) {
	body := struct {
		Content string `json:"content"`
	}{Content: content}
	data, err := a.rest.Do(ctx, rest.CreateMessage(target.SendTarget()), body)
	if err != nil {
		return structs.Message{}, err
	}
	var m structs.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return structs.Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return m, nil
}

// History pages backwards through a channel or thread's messages,
// newest first, up to limit messages.
func (a *API) History(ctx context.Context, source state.HistoryReadable, limit int) ([]structs.Message, error) {
	channelID := source.HistoryTarget()
	var (
		out    []structs.Message
		before snowflake.ID
	)
	for limit > 0 {
		pageSize := limit
		if pageSize > 100 {
			pageSize = 100
		}
		data, err := a.rest.Do(ctx, rest.ChannelMessages(channelID, pageSize, before), nil)
		if err != nil {
			return out, err
		}
		var page []structs.Message
		if err := json.Unmarshal(data, &page); err != nil {
			return out, fmt.Errorf("failed to decode messages: %w", err)
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		before = page[len(page)-1].ID
		limit -= len(page)
		if len(page) < pageSize {
			break
		}
	}
	return out, nil
}

// Purge walks up to limit recent messages and deletes the ones check
// accepts, one request per message. Returns the deleted IDs; on error
// the IDs deleted so far are still reported.
func (a *API) Purge(ctx context.Context, source state.HistoryReadable, limit int, check func(structs.Message) bool) ([]snowflake.ID, error) {
	msgs, err := a.History(ctx, source, limit)
	if err != nil {
		return nil, err
	}
	channelID := source.HistoryTarget()
	var deleted []snowflake.ID
	for _, m := range msgs {
		if check != nil && !check(m) {
			continue
		}
		if _, err := a.rest.Do(ctx, rest.DeleteMessage(channelID, m.ID), nil); err != nil {
			return deleted, err
		}
		deleted = append(deleted, m.ID)
	}
	return deleted, nil
}
