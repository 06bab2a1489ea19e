// Package shdlc implements the Sensirion SHDLC frame codec, the serial
// transport that carries it, and the single-transaction engine that drives
// a request/response exchange over a half-duplex UART.
//
// See "Datasheet SPS30 Particulate Matter Sensor for Air Quality
// Monitoring and Control", section 4.1 "SHDLC Frame Layer", for the wire
// format this package implements bit-exact.
package shdlc

import "fmt"

const (
	sentinel = 0x7E
	escByte  = 0x7D
	escXOR   = 0x20

	// Addr is the only device address this protocol uses; SHDLC here is
	// point-to-point, not multi-drop.
	Addr = 0x00

	// MaxPayload is the largest payload Encode will accept; LEN is a
	// single byte.
	MaxPayload = 255
)

// Frame is a validated, unescaped SHDLC frame.
type Frame struct {
	Addr    byte
	Cmd     byte
	State   byte
	Payload []byte
}

// Encode builds the wire bytes for a request frame: ADDR || CMD || LEN ||
// payload, checksummed and byte-stuffed between two 0x7E sentinels.
//
// Request frames carry no state byte; only Decode (on a response) ever
// populates Frame.State.
func Encode(cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, &EncodeError{Payload: len(payload)}
	}

	body := make([]byte, 0, 3+len(payload)+1)
	body = append(body, Addr, cmd, byte(len(payload)))
	body = append(body, payload...)
	body = append(body, checksum(body))

	out := make([]byte, 0, len(body)*2+2)
	out = append(out, sentinel)
	out = append(out, escape(body)...)
	out = append(out, sentinel)
	return out, nil
}

// Decode validates and parses a response frame: sentinels, byte-stuffing,
// positional fields, and checksum, in that order.
func Decode(frame []byte) (Frame, error) {
	if len(frame) < 2 {
		return Frame{}, &FrameError{Kind: FrameTruncated, Detail: "frame shorter than two bytes"}
	}
	if frame[0] != sentinel {
		return Frame{}, &FrameError{Kind: FrameSentinel, Detail: fmt.Sprintf("position=0 expected=0x%02X got=0x%02X", sentinel, frame[0])}
	}
	if frame[len(frame)-1] != sentinel {
		return Frame{}, &FrameError{Kind: FrameSentinel, Detail: fmt.Sprintf("position=%d expected=0x%02X got=0x%02X", len(frame)-1, sentinel, frame[len(frame)-1])}
	}

	body, err := Unescape(frame[1 : len(frame)-1])
	if err != nil {
		return Frame{}, err
	}

	// body = addr, cmd, state, len, payload..., cksum
	if len(body) < 5 {
		return Frame{}, &FrameError{Kind: FrameTruncated, Detail: "response body shorter than minimum 5 bytes"}
	}
	addr := body[0]
	cmd := body[1]
	state := body[2]
	length := int(body[3])
	payloadStart := 4
	payloadEnd := payloadStart + length
	if payloadEnd+1 > len(body) {
		return Frame{}, &FrameError{Kind: FrameTruncated, Detail: "declared LEN exceeds available bytes"}
	}
	payload := body[payloadStart:payloadEnd]
	gotCksum := body[payloadEnd]

	wantCksum := checksum(body[:payloadEnd])
	if gotCksum != wantCksum {
		return Frame{}, &FrameError{Kind: FrameChecksum, Detail: fmt.Sprintf("expected=0x%02X got=0x%02X", wantCksum, gotCksum)}
	}

	return Frame{Addr: addr, Cmd: cmd, State: state, Payload: payload}, nil
}

// checksum computes the one's-complement of the sum of b, truncated to a
// byte. b must already be unescaped.
func checksum(b []byte) byte {
	var sum int
	for _, x := range b {
		sum += int(x)
	}
	return byte(^sum)
}

// escape applies the SHDLC byte-stuffing alphabet to b. It is the inverse
// of Unescape and is never applied to the framing sentinels themselves.
func escape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, x := range b {
		switch x {
		case sentinel, escByte, 0x11, 0x13:
			out = append(out, escByte, x^escXOR)
		default:
			out = append(out, x)
		}
	}
	return out
}

// Unescape reverses the SHDLC byte-stuffing alphabet: every 0x7D is
// consumed along with the following byte X and replaced by X^0x20. A 0x7D
// with nothing following it is a malformed stream.
func Unescape(stream []byte) ([]byte, error) {
	out := make([]byte, 0, len(stream))
	for i := 0; i < len(stream); i++ {
		b := stream[i]
		if b == escByte {
			i++
			if i >= len(stream) {
				return nil, &FrameError{Kind: FrameDanglingEscape, Detail: "0x7D at end of frame interior"}
			}
			out = append(out, stream[i]^escXOR)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
