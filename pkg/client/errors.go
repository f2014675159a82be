package client

import (
	stderrors "errors"
	"fmt"

	"github.com/vango-dev/pomelo/internal/errors"
	"github.com/vango-dev/pomelo/pkg/protocol"
)

// Session errors.
var (
	ErrHandshakeRejected  = stderrors.New("client: handshake rejected")
	ErrOldClientVersion   = stderrors.New("client: client version too old")
	ErrHeartbeatTimeout   = stderrors.New("client: heartbeat timeout")
	ErrReconnectExhausted = stderrors.New("client: reconnect attempts exhausted")
	ErrConnectionLost     = stderrors.New("client: connection lost")
	ErrNotReady           = stderrors.New("client: session not ready")
	ErrEmptyRoute         = stderrors.New("client: empty route")
	ErrUnknownRouteCode   = stderrors.New("client: route code not in handshake dictionary")
	ErrRateLimited        = stderrors.New("client: send rate limit exceeded")
	ErrClosed             = stderrors.New("client: session closed")
	ErrAlreadyConnected   = stderrors.New("client: session already connected")
)

// decodeError maps a decode failure to its registered code.
func decodeError(err error) *errors.Error {
	switch {
	case stderrors.Is(err, protocol.ErrTruncatedFrame):
		return errors.New(errors.CodeTruncatedFrame).Wrap(err)
	case stderrors.Is(err, protocol.ErrInvalidFrameKind):
		return errors.New(errors.CodeUnknownFrameKind).Wrap(err)
	case stderrors.Is(err, protocol.ErrMalformedText):
		return errors.New(errors.CodeMalformedText).Wrap(err)
	case stderrors.Is(err, protocol.ErrMalformedMessage), stderrors.Is(err, protocol.ErrInvalidMessageKind),
		stderrors.Is(err, ErrUnknownRouteCode), stderrors.Is(err, ErrEmptyRoute):
		return errors.New(errors.CodeMalformedMessage).Wrap(err)
	default:
		return errors.New(errors.CodePayloadDecode).Wrap(err)
	}
}

// encodeError maps an outbound encoding failure to its registered code.
func encodeError(err error) *errors.Error {
	switch {
	case stderrors.Is(err, protocol.ErrRouteTooLong):
		return errors.New(errors.CodeRouteTooLong).Wrap(err)
	case stderrors.Is(err, protocol.ErrRouteOverflow):
		return errors.New(errors.CodeRouteOverflow).Wrap(err)
	case stderrors.Is(err, protocol.ErrFrameTooLarge):
		return errors.New(errors.CodeFrameTooLarge).Wrap(err)
	default:
		return errors.New(errors.CodePayloadEncode).Wrap(err)
	}
}

func connectionError(err error) *errors.Error {
	return errors.New(errors.CodeConnectionFailed).Wrap(err)
}

func heartbeatTimeoutError() *errors.Error {
	return errors.New(errors.CodeHeartbeatTimeout).Wrap(ErrHeartbeatTimeout)
}

func handshakeError(code protocol.HandshakeStatus) *errors.Error {
	if code == protocol.HandshakeOldClient {
		return errors.New(errors.CodeOldClientVersion).Wrap(ErrOldClientVersion)
	}
	return errors.New(errors.CodeHandshakeRejected).
		Wrap(fmt.Errorf("%w: code %d", ErrHandshakeRejected, int(code)))
}

func sendError(err error) *errors.Error {
	return errors.New(errors.CodeSendFailed).Wrap(err)
}

func invalidHandshakeError(err error) *errors.Error {
	return errors.New(errors.CodeInvalidHandshake).Wrap(err)
}

func reconnectExhaustedError(attempts int) *errors.Error {
	return errors.New(errors.CodeReconnectExhausted).
		WithDetail(fmt.Sprintf("gave up after %d attempts", attempts)).
		Wrap(ErrReconnectExhausted)
}
