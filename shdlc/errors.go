package shdlc

import (
	"errors"
	"fmt"
)

// Sentinel errors callers can compare against with errors.Is, wrapped by
// the richer *Error types below so both a symbolic check and a formatted
// message are available from one outcome value, per the single-outcome-type
// design this package follows instead of the source's (valid, message)
// tuple-return pattern.
var (
	ErrOpenFailed      = errors.New("shdlc: port open failed")
	ErrTimeout         = errors.New("shdlc: read timed out before a frame boundary")
	ErrClosed          = errors.New("shdlc: transport is closed")
	ErrSentinel        = errors.New("shdlc: missing or malformed frame sentinel")
	ErrDanglingEscape  = errors.New("shdlc: dangling escape byte")
	ErrTruncated       = errors.New("shdlc: frame truncated")
	ErrChecksum        = errors.New("shdlc: checksum mismatch")
	ErrAddress         = errors.New("shdlc: unexpected frame address")
	ErrCommandMismatch = errors.New("shdlc: response command does not match the issued request")
	ErrUnknownState    = errors.New("shdlc: response state byte is not a known device state")
)

// EncodeError is returned by Encode when the caller's payload cannot be
// framed: LEN is a single byte, so payloads over 255 bytes are rejected
// before any bytes are written to the wire.
type EncodeError struct {
	Payload int
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("shdlc: payload of %d bytes exceeds the 255-byte maximum", e.Payload)
}

// FrameErrorKind discriminates the ways a received byte stream can fail to
// be a valid SHDLC frame.
type FrameErrorKind int

const (
	FrameSentinel FrameErrorKind = iota
	FrameDanglingEscape
	FrameTruncated
	FrameChecksum
)

// FrameError reports a malformed received frame.
type FrameError struct {
	Kind   FrameErrorKind
	Detail string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("shdlc: %s: %s", e.sentinelErr(), e.Detail)
}

func (e *FrameError) sentinelErr() string {
	switch e.Kind {
	case FrameSentinel:
		return ErrSentinel.Error()
	case FrameDanglingEscape:
		return ErrDanglingEscape.Error()
	case FrameTruncated:
		return ErrTruncated.Error()
	case FrameChecksum:
		return ErrChecksum.Error()
	default:
		return "unknown frame error"
	}
}

// Unwrap lets callers use errors.Is(err, shdlc.ErrChecksum) and similar.
func (e *FrameError) Unwrap() error {
	switch e.Kind {
	case FrameSentinel:
		return ErrSentinel
	case FrameDanglingEscape:
		return ErrDanglingEscape
	case FrameTruncated:
		return ErrTruncated
	case FrameChecksum:
		return ErrChecksum
	default:
		return nil
	}
}

// TransportError wraps an I/O failure from the serial transport. Partial
// holds whatever bytes were read before a timeout, for diagnostics only;
// the frame they belong to is discarded.
type TransportError struct {
	Op      string
	Err     error
	Partial []byte
}

func (e *TransportError) Error() string {
	if len(e.Partial) > 0 {
		return fmt.Sprintf("shdlc: %s: %v (%d partial bytes)", e.Op, e.Err, len(e.Partial))
	}
	return fmt.Sprintf("shdlc: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolErrorKind discriminates the ways a well-formed frame can violate
// transaction expectations.
type ProtocolErrorKind int

const (
	ProtocolAddress ProtocolErrorKind = iota
	ProtocolCommandMismatch
	ProtocolUnknownState
)

// ProtocolError reports a structurally valid frame that nonetheless
// violates the transaction's expectations (wrong address, mismatched
// command, or an undocumented state byte).
type ProtocolError struct {
	Kind     ProtocolErrorKind
	Expected byte
	Got      byte
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case ProtocolAddress:
		return fmt.Sprintf("shdlc: %v: expected=0x%02X got=0x%02X", ErrAddress, e.Expected, e.Got)
	case ProtocolCommandMismatch:
		return fmt.Sprintf("shdlc: %v: expected=0x%02X got=0x%02X", ErrCommandMismatch, e.Expected, e.Got)
	case ProtocolUnknownState:
		return fmt.Sprintf("shdlc: %v: got=0x%02X", ErrUnknownState, e.Got)
	default:
		return "shdlc: unknown protocol error"
	}
}

func (e *ProtocolError) Unwrap() error {
	switch e.Kind {
	case ProtocolAddress:
		return ErrAddress
	case ProtocolCommandMismatch:
		return ErrCommandMismatch
	case ProtocolUnknownState:
		return ErrUnknownState
	default:
		return nil
	}
}

// DeviceError reports a well-formed response whose state byte is one of
// the six documented device error codes (datasheet section 4.1, state
// byte table).
type DeviceError struct {
	Code    byte
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("shdlc: device reported error 0x%02X: %s", e.Code, e.Message)
}

// deviceStateMessages maps the documented non-zero state codes to their
// human message. 0x00 (success) never reaches this map.
var deviceStateMessages = map[byte]string{
	0x01: "wrong data length for command",
	0x02: "unknown command",
	0x03: "no access right for command",
	0x04: "illegal command parameter or out of allowed range",
	0x28: "internal function argument out of range",
	0x43: "command not allowed in current state",
}

// isKnownState reports whether state is in the closed set of state bytes
// a response may legally carry: success plus the six documented error
// codes.
func isKnownState(state byte) bool {
	if state == 0x00 {
		return true
	}
	_, ok := deviceStateMessages[state]
	return ok
}
