package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/loreleibot/lorelei/state"
	"github.com/loreleibot/lorelei/structs"
)

type Status = string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusIdentifying  Status = "IDENTIFYING"
	StatusReady        Status = "READY"
	StatusResuming     Status = "RESUMING"
	StatusReconnecting Status = "RECONNECTING"
)

const defaultGatewayURL = "wss://gateway.discord.gg/?v=9&encoding=json"

// Notification is the before/after tuple handed to the notification
// sink after a dispatch mutated the entity store.
type Notification struct {
	Kind state.Kind
	ID   snowflake.ID
	Old  any
	New  any
}

type Notifier func(Notification)

type Arguments struct {
	Token      string
	GatewayURL string
	Dialer     Dialer
	Store      *state.Store
	Notify     Notifier
	// OnSequenceDrop observes duplicate/out-of-order dispatches that
	// were dropped instead of applied.
	OnSequenceDrop func(got, last uint64)
	Logger         *slog.Logger
}

// Session owns the duplex gateway connection: connect, identify or
// resume, heartbeat liveness, sequence tracking, reconnect with
// randomized exponential backoff. All store mutations from dispatch
// happen on the session's read loop.
type Session struct {
	mu      sync.RWMutex
	writeMu sync.Mutex

	dialer Dialer
	wsURL  string
	token  string
	store  *state.Store
	notify Notifier
	log    *slog.Logger

	onSequenceDrop func(got, last uint64)

	ctx    context.Context
	cancel context.CancelFunc
	opened bool

	conn             Conn
	status           Status
	sessionID        string
	resumeGatewayURL string
	sequence         atomic.Uint64

	lastHeartbeatSent time.Time
	lastHeartbeatAck  time.Time
	awaitingAck       bool
	missedAcks        int
	latency           time.Duration

	waitersMu sync.Mutex
	waiters   map[*Waiter]struct{}

	limiter *sendLimiter

	backoffAttempts int
	baseBackoff     time.Duration
	maxBackoff      time.Duration
}

func NewSession(args Arguments) *Session {
	s := &Session{
		dialer:         args.Dialer,
		wsURL:          args.GatewayURL,
		token:          args.Token,
		store:          args.Store,
		notify:         args.Notify,
		onSequenceDrop: args.OnSequenceDrop,
		log:            args.Logger,
		status:         StatusDisconnected,
		waiters:        make(map[*Waiter]struct{}),
		limiter:        newSendLimiter(),
		baseBackoff:    time.Second,
		maxBackoff:     60 * time.Second,
	}
	if s.dialer == nil {
		s.dialer = DefaultDialer()
	}
	if s.wsURL == "" {
		s.wsURL = defaultGatewayURL
	}
	if s.store == nil {
		s.store = state.NewStore()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Open starts the session's connect/reconnect loop. It returns
// immediately; the loop runs until ctx is cancelled, Close is called
// or the server rejects the connection for an unrecoverable reason.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return ErrGatewayIsAlreadyOpen
	}
	s.opened = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	go s.run()
	return nil
}

func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	s.opened = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Latency is the delay between the last heartbeat and its ack.
func (s *Session) Latency() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latency
}

func (s *Session) Store() *state.Store {
	return s.store
}

func (s *Session) run() {
	for {
		err := s.connectOnce()
		if s.ctx.Err() != nil {
			s.setStatus(StatusDisconnected)
			s.log.Info("gateway closed")
			return
		}
		if isFatal(err) {
			s.setStatus(StatusDisconnected)
			s.log.Error("gateway closed permanently", "err", err)
			return
		}
		s.setStatus(StatusReconnecting)
		delay := s.nextBackoff()
		s.log.Warn("gateway connection lost, reconnecting", "err", err, "delay", delay)
		select {
		case <-s.ctx.Done():
			s.setStatus(StatusDisconnected)
			return
		case <-time.After(delay):
		}
	}
}

// nextBackoff is a randomized exponential delay bounded by
// maxBackoff, so many sessions reconnecting at once spread out.
func (s *Session) nextBackoff() time.Duration {
	s.mu.Lock()
	attempt := s.backoffAttempts
	s.backoffAttempts++
	s.mu.Unlock()
	d := time.Duration(math.Pow(2, float64(attempt))) * s.baseBackoff
	if d > s.maxBackoff {
		d = s.maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}

func (s *Session) resetBackoff() {
	s.mu.Lock()
	s.backoffAttempts = 0
	s.mu.Unlock()
}

func (s *Session) connectOnce() error {
	s.setStatus(StatusConnecting)

	s.mu.RLock()
	url := s.wsURL
	resume := s.sessionID != ""
	if resume && s.resumeGatewayURL != "" {
		url = s.resumeGatewayURL
	}
	s.mu.RUnlock()

	conn, err := s.dialer.Dial(s.ctx, url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.awaitingAck = false
	s.missedAcks = 0
	s.mu.Unlock()
	defer conn.Close()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	var hello structs.RawEvent
	if err := json.Unmarshal(raw, &hello); err != nil {
		return fmt.Errorf("invalid hello frame: %w", err)
	}
	if hello.Op != OpcodeHello {
		return fmt.Errorf("expected hello, got opcode %d", hello.Op)
	}
	var helloData structs.HelloEvent
	if err := json.Unmarshal(hello.D, &helloData); err != nil {
		return fmt.Errorf("invalid hello payload: %w", err)
	}

	hbCtx, hbCancel := context.WithCancel(s.ctx)
	defer hbCancel()
	go s.heartbeating(hbCtx, conn, time.Duration(helloData.HeartbeatInterval)*time.Millisecond)

	if resume {
		s.setStatus(StatusResuming)
		s.log.Info("resuming gateway session", "session_id", s.SessionID())
		err = s.sendEvent(conn, OpcodeResume, structs.ResumeEvent{
			Token:     s.token,
			SessionID: s.SessionID(),
			Seq:       s.sequence.Load(),
		})
	} else {
		s.setStatus(StatusIdentifying)
		s.log.Info("identifying new gateway session")
		err = s.sendEvent(conn, OpcodeIdentify, structs.IdentifyEvent{
			Token: s.token,
			Properties: structs.IdentifyEventProperties{
				Os:      "linux",
				Browser: "lorelei",
				Device:  "lorelei",
			},
			Capabilities: 253,
		})
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if fatal := closeCodeError(err); fatal != nil {
				return fatal
			}
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		var event structs.RawEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			s.log.Error("failed to decode gateway frame", "err", err)
			continue
		}
		if stop, err := s.handleFrame(conn, &event); stop {
			return err
		}
	}
}

func (s *Session) handleFrame(conn Conn, event *structs.RawEvent) (bool, error) {
	switch event.Op {
	case OpcodeDispatch:
		s.dispatch(event.T, event.S, event.D)
	case OpcodeHeartbeat:
		// The server may ask for an immediate beat.
		s.sendHeartbeat(conn)
	case OpcodeHeartbeatAck:
		s.ackHeartbeat()
	case OpcodeReconnect:
		s.log.Info("server requested reconnect")
		return true, errors.New("server requested reconnect")
	case OpcodeInvalidSession:
		var resumable bool
		_ = json.Unmarshal(event.D, &resumable)
		if !resumable {
			s.mu.Lock()
			s.sessionID = ""
			s.resumeGatewayURL = ""
			s.mu.Unlock()
			s.sequence.Store(0)
			s.log.Warn("gateway session invalidated, full resync required")
		} else {
			s.log.Warn("gateway session invalidated, resume still possible")
		}
		return true, errors.New("session invalidated")
	default:
		s.log.Debug("unknown opcode", "op", event.Op)
	}
	return false, nil
}

func (s *Session) heartbeating(ctx context.Context, conn Conn, interval time.Duration) {
	// First beat goes out immediately after hello.
	s.sendHeartbeat(conn)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.awaitingAck {
				s.missedAcks++
			} else {
				s.missedAcks = 0
			}
			missed := s.missedAcks
			s.mu.Unlock()
			if missed >= 2 {
				// Do not wait for transport failure detection.
				s.log.Warn("two consecutive heartbeat acks missed, forcing reconnect")
				conn.Close()
				return
			}
			s.sendHeartbeat(conn)
		}
	}
}

func (s *Session) sendHeartbeat(conn Conn) {
	// Heartbeats bypass the send limiter: liveness outranks quota.
	data, err := json.Marshal(structs.Event{Op: OpcodeHeartbeat, D: s.sequence.Load()})
	if err != nil {
		return
	}
	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		s.log.Error("failed to send heartbeat", "err", err)
		return
	}
	s.mu.Lock()
	s.lastHeartbeatSent = time.Now()
	s.awaitingAck = true
	s.mu.Unlock()
}

func (s *Session) ackHeartbeat() {
	s.mu.Lock()
	s.lastHeartbeatAck = time.Now()
	s.latency = s.lastHeartbeatAck.Sub(s.lastHeartbeatSent)
	s.awaitingAck = false
	s.missedAcks = 0
	s.mu.Unlock()
}

func (s *Session) sendEvent(conn Conn, op Opcode, d any) error {
	if err := s.limiter.block(s.ctx); err != nil {
		return err
	}
	data, err := json.Marshal(structs.Event{Op: op, D: d})
	if err != nil {
		return fmt.Errorf("failed to marshal gateway event: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// RequestThreadMembers asks the gateway to stream the full member
// list of a thread; the reply arrives as a correlated
// THREAD_MEMBER_LIST_UPDATE dispatch.
func (s *Session) RequestThreadMembers(guildID, threadID snowflake.ID) error {
	s.mu.RLock()
	conn := s.conn
	status := s.status
	s.mu.RUnlock()
	if conn == nil || status != StatusReady {
		return ErrNotConnected
	}
	return s.sendEvent(conn, OpcodeGuildSubscribe, structs.GuildSubscribeEvent{
		GuildID:           guildID,
		ThreadMemberLists: []snowflake.ID{threadID},
		Nonce:             uuid.NewString(),
	})
}

// closeCodeError maps the close codes that identify a misconfigured
// client. Reconnecting cannot fix those, so the session gives up.
func closeCodeError(err error) error {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return nil
	}
	switch ce.Code {
	case CloseAuthenticationFailed:
		return ErrAuthenticationFailed
	case CloseInvalidAPIVersion:
		return ErrInvalidAPIVersion
	case CloseDisallowedIntents:
		return ErrDisallowedIntents
	}
	return nil
}

func isFatal(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrInvalidAPIVersion) ||
		errors.Is(err, ErrDisallowedIntents)
}
