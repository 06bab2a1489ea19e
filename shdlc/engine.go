package shdlc

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// defaultTransactionRate bounds how often Transact will issue a new
// request against the device, the same protective role rate.Limiter
// plays around NKT's telegram polling loop.
const defaultTransactionRate = 10

// Engine drives one request/response transaction at a time over a
// Transport: encode, write, read, decode, and validate the response
// against the request that was just sent. Apart from its logger and the
// rate limiter that paces Transact, it holds no state beyond the
// transport handle and the last command issued.
type Engine struct {
	Transport *Transport
	logger    Logger
	limiter   *rate.Limiter

	mu      sync.Mutex
	lastCmd byte
}

// NewEngine wires an Engine to an already-constructed Transport. The
// Engine does not open or close the transport; callers (typically
// cmd/airmonitor via shdlc.WithPort) own that lifecycle. Transact is paced
// by a token-bucket limiter defaulting to defaultTransactionRate
// requests/sec, so a caller retrying in a tight loop (e.g.
// sps30.SampleAverage with a very small interval) cannot flood the UART.
func NewEngine(t *Transport, logger Logger) *Engine {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Engine{
		Transport: t,
		logger:    logger,
		limiter:   rate.NewLimiter(defaultTransactionRate, defaultTransactionRate),
	}
}

// SetRateLimit overrides the transaction pacing, e.g. to relax it in
// tests.
func (e *Engine) SetRateLimit(l *rate.Limiter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limiter = l
}

// Transact encodes cmd/payload, writes it, reads the response, decodes
// it, and validates it against the request in the order the frame-layer
// specification requires: address, then command match, then known state,
// then success/error state. It returns the response payload on success.
//
// Transact serialises itself with an internal mutex so a shared Engine
// still honours "exactly one outstanding request at a time" even if
// callers forget to; the mutex is held only for the duration of this
// call, never across a caller callback.
func (e *Engine) Transact(ctx context.Context, cmd byte, payload []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	frame, err := Encode(cmd, payload)
	if err != nil {
		return nil, err
	}

	if err := e.Transport.WriteAll(ctx, frame); err != nil {
		return nil, err
	}

	e.lastCmd = cmd

	raw, err := e.Transport.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	if resp.Addr != Addr {
		return nil, &ProtocolError{Kind: ProtocolAddress, Expected: Addr, Got: resp.Addr}
	}
	if resp.Cmd != e.lastCmd {
		return nil, &ProtocolError{Kind: ProtocolCommandMismatch, Expected: e.lastCmd, Got: resp.Cmd}
	}
	if !isKnownState(resp.State) {
		return nil, &ProtocolError{Kind: ProtocolUnknownState, Got: resp.State}
	}
	if resp.State != 0x00 {
		e.logger.Printf("shdlc: device reported error 0x%02X for cmd 0x%02X", resp.State, cmd)
		return nil, &DeviceError{Code: resp.State, Message: deviceStateMessages[resp.State]}
	}

	return resp.Payload, nil
}
