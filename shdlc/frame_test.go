package shdlc

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex literal %q: %v", s, err)
	}
	return b
}

// wire-format test vectors, spec section 6.
var encodeVectors = []struct {
	cmd     byte
	payload string
	want    string
}{
	{0x00, "01 03", "7E 00 00 02 01 03 F9 7E"},
	{0x01, "", "7E 00 01 00 FE 7E"},
	{0x03, "", "7E 00 03 00 FC 7E"},
	{0x80, "00", "7E 00 80 01 00 7D 5E 7E"},
	{0x80, "00 00 00 00 00", "7E 00 80 05 00 00 00 00 00 7A 7E"},
	{0x56, "", "7E 00 56 00 A9 7E"},
	{0xD0, "01", "7E 00 D0 01 01 2D 7E"},
	{0xD0, "02", "7E 00 D0 01 02 2C 7E"},
	{0xD0, "03", "7E 00 D0 01 03 2B 7E"},
	{0xD3, "", "7E 00 D3 00 2C 7E"},
}

func TestEncodeVectors(t *testing.T) {
	for _, v := range encodeVectors {
		payload := mustHex(t, v.payload)
		got, err := Encode(v.cmd, payload)
		if err != nil {
			t.Fatalf("Encode(0x%02X, %x) returned error: %v", v.cmd, payload, err)
		}
		want := mustHex(t, v.want)
		if !bytes.Equal(got, want) {
			t.Errorf("Encode(0x%02X, %x) = % X, want % X", v.cmd, payload, got, want)
		}
	}
}

func TestEncodePayloadTooLong(t *testing.T) {
	_, err := Encode(0x00, make([]byte, 256))
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected *EncodeError, got %v (%T)", err, err)
	}
	if encErr.Payload != 256 {
		t.Errorf("EncodeError.Payload = %d, want 256", encErr.Payload)
	}
}

// S1
func TestS1StartMeasurementEncoding(t *testing.T) {
	got, err := Encode(0x00, []byte{0x01, 0x03})
	if err != nil {
		t.Fatal(err)
	}
	want := mustHex(t, "7E 00 00 02 01 03 F9 7E")
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X want % X", got, want)
	}
}

// property 1: encode/decode round trip on the success path.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01},
		{0x01, 0x03},
		bytes.Repeat([]byte{0xAB}, 255),
		{0x7E, 0x7D, 0x11, 0x13, 0x00}, // every escape-triggering byte
	}
	for _, payload := range cases {
		frame, err := Encode(0x03, payload)
		if err != nil {
			t.Fatalf("Encode(%x): %v", payload, err)
		}
		// Encode only ever produces request frames (no state byte); build
		// the equivalent response frame by hand to exercise Decode, since
		// Decode always parses the response layout.
		resp := buildResponseFrame(t, 0x03, 0x00, payload)
		decoded, err := Decode(resp)
		if err != nil {
			t.Fatalf("Decode of hand-built response for payload %x: %v", payload, err)
		}
		if decoded.Cmd != 0x03 {
			t.Errorf("cmd = 0x%02X, want 0x03", decoded.Cmd)
		}
		if decoded.Addr != 0x00 {
			t.Errorf("addr = 0x%02X, want 0x00", decoded.Addr)
		}
		if !bytes.Equal(decoded.Payload, payload) {
			t.Errorf("payload = %x, want %x", decoded.Payload, payload)
		}
		_ = frame // request-side encoding already covered by vector tests
	}
}

// buildResponseFrame constructs a valid wire-format response frame for
// testing Decode, since Encode only builds requests.
func buildResponseFrame(t *testing.T, cmd, state byte, payload []byte) []byte {
	t.Helper()
	body := []byte{Addr, cmd, state, byte(len(payload))}
	body = append(body, payload...)
	body = append(body, checksum(body))
	out := []byte{sentinel}
	out = append(out, escape(body)...)
	out = append(out, sentinel)
	return out
}

// property 2: escape/unescape round trip.
func TestUnescapeRoundTrip(t *testing.T) {
	bodies := [][]byte{
		{0x00, 0x01, 0x02},
		{0x7E, 0x7D, 0x11, 0x13},
		bytes.Repeat([]byte{0x11, 0x13, 0x7D, 0x7E}, 10),
	}
	for _, b := range bodies {
		got, err := Unescape(escape(b))
		if err != nil {
			t.Fatalf("Unescape(escape(%x)): %v", b, err)
		}
		if !bytes.Equal(got, b) {
			t.Errorf("Unescape(escape(%x)) = %x, want %x", b, got, b)
		}
	}
}

// S3
func TestS3Unescape(t *testing.T) {
	in := mustHex(t, "7D 5E 7D 5D 7D 31 7D 33 00 7E 7E")
	got, err := Unescape(in)
	if err != nil {
		t.Fatal(err)
	}
	want := mustHex(t, "7E 7D 11 13 00 7E 7E")
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X want % X", got, want)
	}
}

func TestUnescapeDanglingEscape(t *testing.T) {
	_, err := Unescape([]byte{0x00, 0x7D})
	var ferr *FrameError
	if !errors.As(err, &ferr) || ferr.Kind != FrameDanglingEscape {
		t.Fatalf("expected FrameDanglingEscape, got %v", err)
	}
	if !errors.Is(err, ErrDanglingEscape) {
		t.Errorf("errors.Is(err, ErrDanglingEscape) = false")
	}
}

// S5
func TestS5BadStartSentinel(t *testing.T) {
	frame := mustHex(t, "7F 00 80 01 00 7D 5E 7E")
	_, err := Decode(frame)
	var ferr *FrameError
	if !errors.As(err, &ferr) || ferr.Kind != FrameSentinel {
		t.Fatalf("expected FrameSentinel, got %v", err)
	}
}

func TestDecodeBadEndSentinel(t *testing.T) {
	frame := mustHex(t, "7E 00 03 00 FC 00")
	_, err := Decode(frame)
	var ferr *FrameError
	if !errors.As(err, &ferr) || ferr.Kind != FrameSentinel {
		t.Fatalf("expected FrameSentinel, got %v", err)
	}
}

// S2: decoding this byte sequence as a response frame yields state=0x01
// (wrong data length) with an empty payload -- LEN decodes to 0, and the
// checksum only validates under that reading. See DESIGN.md for why this
// implementation follows the byte-exact structural arithmetic here rather
// than the payload value named in spec.md's prose for this scenario. Fed
// to an Engine that has just sent cmd 0x80, the same frame surfaces as a
// DeviceError with code 0x01.
func TestS2StateByteSurfacesAsDeviceError(t *testing.T) {
	frame := mustHex(t, "7E 00 80 01 00 7D 5E 7E")
	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Cmd != 0x80 {
		t.Errorf("cmd = 0x%02X, want 0x80", decoded.Cmd)
	}
	if decoded.State != 0x01 {
		t.Errorf("state = 0x%02X, want 0x01", decoded.State)
	}
	if len(decoded.Payload) != 0 {
		t.Errorf("payload = %x, want empty", decoded.Payload)
	}

	tr := NewTransport("mock", nil)
	injectPort(tr, &scriptedPort{responses: [][]byte{frame}})
	_, err = NewEngine(tr, nil).Transact(context.Background(), 0x80, []byte{0x00})
	var derr *DeviceError
	if !errors.As(err, &derr) || derr.Code != 0x01 {
		t.Fatalf("Transact: expected DeviceError with code 0x01, got %v", err)
	}
}

// S6: flipping LEN in an otherwise-valid frame produces exactly one kind
// of error (here: truncation, since the declared LEN then overruns the
// available bytes before a checksum comparison is even possible).
func TestS6LenFlipProducesWellDefinedError(t *testing.T) {
	frame := mustHex(t, "7E 00 80 01 01 7D 5E 7E")
	_, err := Decode(frame)
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	var ferr *FrameError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *FrameError, got %v (%T)", err, err)
	}
	if ferr.Kind != FrameTruncated && ferr.Kind != FrameChecksum {
		t.Fatalf("expected FrameTruncated or FrameChecksum, got kind %v", ferr.Kind)
	}
}

// property 3: flipping any single bit in the body causes decode to fail.
func TestChecksumSensitivity(t *testing.T) {
	good := buildResponseFrame(t, 0x03, 0x00, []byte{0x01, 0x02, 0x03, 0x04})
	for i := 1; i < len(good)-1; i++ { // never flip the sentinels
		if good[i] == escByte {
			continue // flipping an escape marker changes framing shape, not covered by this property
		}
		corrupt := append([]byte(nil), good...)
		corrupt[i] ^= 0x01
		_, err := Decode(corrupt)
		if err == nil {
			t.Errorf("flipping bit in byte %d did not produce an error", i)
			continue
		}
		var ferr *FrameError
		if !errors.As(err, &ferr) {
			continue // a sentinel error from flipping the wrong neighbor is also acceptable noise
		}
		if ferr.Kind != FrameChecksum && ferr.Kind != FrameTruncated {
			t.Errorf("flipping byte %d produced kind %v, want Checksum or Truncated", i, ferr.Kind)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{sentinel, sentinel})
	var ferr *FrameError
	if !errors.As(err, &ferr) || ferr.Kind != FrameTruncated {
		t.Fatalf("expected FrameTruncated, got %v", err)
	}
}

func TestMaximumPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{0xFF}, MaxPayload)
	frame, err := Encode(0x03, payload)
	if err != nil {
		t.Fatal(err)
	}
	maxLen := 6 + MaxPayload + MaxPayload // sentinels+addr+cmd+len+cksum, plus worst-case one escape per payload byte
	if len(frame) > maxLen {
		t.Errorf("encoded frame length %d exceeds worst-case bound %d", len(frame), maxLen)
	}
}
