package gateway

import "errors"

type Opcode = int

const (
	OpcodeDispatch            Opcode = 0
	OpcodeHeartbeat           Opcode = 1
	OpcodeIdentify            Opcode = 2
	OpcodePresenceUpdate      Opcode = 3
	OpcodeVoiceStateUpdate    Opcode = 4
	OpcodeResume              Opcode = 6
	OpcodeReconnect           Opcode = 7
	OpcodeRequestGuildMembers Opcode = 8
	OpcodeInvalidSession      Opcode = 9
	OpcodeHello               Opcode = 10
	OpcodeHeartbeatAck        Opcode = 11
	OpcodeGuildSubscribe      Opcode = 14
)

type CloseEventCode = int

const (
	CloseUnknownError         CloseEventCode = 4000
	CloseUnknownOpcode        CloseEventCode = 4001
	CloseDecodeError          CloseEventCode = 4002
	CloseNotAuthenticated     CloseEventCode = 4003
	CloseAuthenticationFailed CloseEventCode = 4004
	CloseAlreadyAuthenticated CloseEventCode = 4005
	CloseInvalidSeq           CloseEventCode = 4007
	CloseRateLimited          CloseEventCode = 4008
	CloseSessionTimedOut      CloseEventCode = 4009
	CloseInvalidAPIVersion    CloseEventCode = 4012
	CloseDisallowedIntents    CloseEventCode = 4014
)

var (
	// ErrTransport covers connection drops and dial failures. It
	// drives the reconnect loop and never reaches callers of
	// in-flight operations beyond failing them.
	ErrTransport = errors.New("gateway transport failure")

	// ErrRequestTimeout is a correlated response that did not arrive
	// within its deadline. Recoverable; callers may retry.
	ErrRequestTimeout = errors.New("server did not respond in time")

	ErrGatewayIsAlreadyOpen = errors.New("gateway is already open")
	ErrNotConnected         = errors.New("gateway is not connected")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidAPIVersion    = errors.New("invalid api version")
	ErrDisallowedIntents    = errors.New("disallowed intents")
)
