package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreleibot/lorelei/state"
	"github.com/loreleibot/lorelei/structs"
)

// fakeConn is an in-memory gateway endpoint. Tests script inbound
// frames through push and observe outbound frames through wrote.
type fakeConn struct {
	in     chan []byte
	errs   chan error
	wrote  chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		errs:   make(chan error, 1),
		wrote:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case err := <-c.errs:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.wrote <- data
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.in <- data
}

func (c *fakeConn) pushHello(t *testing.T, interval int64) {
	t.Helper()
	c.push(t, map[string]any{"op": OpcodeHello, "d": map[string]any{"heartbeat_interval": interval}})
}

func (c *fakeConn) pushDispatch(t *testing.T, name structs.EventName, seq uint64, d any) {
	t.Helper()
	c.push(t, map[string]any{"op": OpcodeDispatch, "t": name, "s": seq, "d": d})
}

// nextFrame drains outbound frames until one with the wanted opcode
// shows up. Heartbeats interleave freely, so they are skipped.
func nextFrame(t *testing.T, c *fakeConn, op Opcode) structs.RawEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-c.wrote:
			var ev structs.RawEvent
			require.NoError(t, json.Unmarshal(data, &ev))
			if ev.Op == op {
				return ev
			}
		case <-deadline:
			t.Fatalf("no outbound frame with opcode %d", op)
		}
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	urls  []string
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urls) >= len(d.conns) {
		return nil, errors.New("no scripted connection left")
	}
	c := d.conns[len(d.urls)]
	d.urls = append(d.urls, url)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func openTestSession(t *testing.T, conns ...*fakeConn) (*Session, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{conns: conns}
	s := testSession(t, Arguments{
		Token:      "user-token",
		GatewayURL: "wss://gateway.test/?v=9",
		Dialer:     dialer,
		Store:      state.NewStore(),
	})
	s.baseBackoff = time.Millisecond
	s.maxBackoff = 5 * time.Millisecond
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(s.Close)
	return s, dialer
}

func readyPayload(sessionID, resumeURL string, guildIDs ...uint64) structs.ReadyEvent {
	p := structs.ReadyEvent{
		V:                9,
		User:             structs.User{ID: 999, Username: "lorelei"},
		SessionID:        sessionID,
		ResumeGatewayURL: resumeURL,
	}
	for _, id := range guildIDs {
		name := "guild"
		p.Guilds = append(p.Guilds, structs.Guild{ID: snowflake.ID(id), Name: &name})
	}
	return p
}

func waitStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Status() == want },
		2*time.Second, 5*time.Millisecond, "status never became %s", want)
}

func TestSessionIdentifiesThenResumes(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	s, dialer := openTestSession(t, conn1, conn2)

	conn1.pushHello(t, 3_600_000)
	identify := nextFrame(t, conn1, OpcodeIdentify)
	var ip structs.IdentifyEvent
	require.NoError(t, json.Unmarshal(identify.D, &ip))
	assert.Equal(t, "user-token", ip.Token)

	conn1.pushDispatch(t, structs.EventNameReady, 1, readyPayload("sess-1", "wss://resume.test", 1))
	waitStatus(t, s, StatusReady)
	assert.NotNil(t, s.Store().Guild(1))

	// Drop the connection; the session must resume, not identify.
	conn2.pushHello(t, 3_600_000)
	conn1.Close()

	resume := nextFrame(t, conn2, OpcodeResume)
	var rp structs.ResumeEvent
	require.NoError(t, json.Unmarshal(resume.D, &rp))
	assert.Equal(t, "sess-1", rp.SessionID)
	assert.Equal(t, uint64(1), rp.Seq)

	conn2.pushDispatch(t, structs.EventNameResumed, 2, map[string]any{})
	waitStatus(t, s, StatusReady)

	// The snapshot survived the resume.
	assert.NotNil(t, s.Store().Guild(1))
	assert.Equal(t, 2, dialer.dialCount())
	assert.Equal(t, "wss://resume.test", dialer.urls[1])
}

func TestSessionReidentifiesAfterInvalidSession(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	s, _ := openTestSession(t, conn1, conn2)

	conn1.pushHello(t, 3_600_000)
	nextFrame(t, conn1, OpcodeIdentify)
	conn1.pushDispatch(t, structs.EventNameReady, 1, readyPayload("sess-1", "", 1))
	waitStatus(t, s, StatusReady)

	conn2.pushHello(t, 3_600_000)
	conn1.push(t, map[string]any{"op": OpcodeInvalidSession, "d": false})

	// A non-resumable invalidation discards the session and the
	// snapshot is rebuilt from the next READY.
	nextFrame(t, conn2, OpcodeIdentify)
	conn2.pushDispatch(t, structs.EventNameReady, 1, readyPayload("sess-2", "", 2))
	waitStatus(t, s, StatusReady)

	assert.Nil(t, s.Store().Guild(1))
	assert.NotNil(t, s.Store().Guild(2))
	assert.Equal(t, "sess-2", s.SessionID())
}

func TestSessionForcesReconnectAfterMissedAcks(t *testing.T) {
	conn1 := newFakeConn()
	openTestSession(t, conn1)

	// Short heartbeat interval, and no acks ever sent back.
	conn1.pushHello(t, 20)

	// The immediate beat plus one more, then the second tick counts
	// two misses and force-closes instead of beating again.
	beats := 0
	deadline := time.After(2 * time.Second)
	for beats < 2 {
		select {
		case data := <-conn1.wrote:
			var ev structs.RawEvent
			require.NoError(t, json.Unmarshal(data, &ev))
			if ev.Op == OpcodeHeartbeat {
				beats++
			}
		case <-deadline:
			t.Fatal("expected heartbeats to keep flowing")
		}
	}

	select {
	case <-conn1.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not force-closed after missed acks")
	}
}

func TestSessionStopsOnAuthenticationFailure(t *testing.T) {
	conn1 := newFakeConn()
	s, dialer := openTestSession(t, conn1)

	conn1.pushHello(t, 3_600_000)
	nextFrame(t, conn1, OpcodeIdentify)
	conn1.errs <- &websocket.CloseError{Code: CloseAuthenticationFailed}

	waitStatus(t, s, StatusDisconnected)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestOpenTwiceFails(t *testing.T) {
	conn1 := newFakeConn()
	s, _ := openTestSession(t, conn1)
	assert.ErrorIs(t, s.Open(context.Background()), ErrGatewayIsAlreadyOpen)
}
