package shdlc

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// DefaultBaud, DefaultTimeout and friends are the fixed link parameters
// datasheet section 4.1 requires: 115200-8N1, no flow control, a 1.5s read
// timeout.
const (
	DefaultBaud    = 115200
	DefaultSize    = 8
	DefaultTimeout = 1500 * time.Millisecond
)

// Logger is the minimal logging surface this package needs; *log.Logger
// satisfies it, and tests can supply a logger backed by a bytes.Buffer
// instead of touching the process-wide global logger.
type Logger interface {
	Printf(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// Port is the subset of *serial.Port this package depends on, so tests can
// substitute an in-memory double.
type Port interface {
	io.ReadWriter
	io.Closer
}

// openFunc is overridden in tests to avoid touching a real UART.
type openFunc func(cfg *serial.Config) (Port, error)

func defaultOpen(cfg *serial.Config) (Port, error) {
	return serial.OpenPort(cfg)
}

// Transport owns at most one open serial port at a time and provides the
// write-all / read-until-sentinel primitives the engine drives a
// transaction with. It is the only component allowed to touch the OS
// handle.
type Transport struct {
	mu     sync.Mutex
	cfg    *serial.Config
	port   Port
	open   openFunc
	logger Logger
}

// NewTransport configures (but does not open) a transport for the named
// serial device, e.g. "/dev/serial0".
func NewTransport(name string, logger Logger) *Transport {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Transport{
		cfg: &serial.Config{
			Name:        name,
			Baud:        DefaultBaud,
			Size:        DefaultSize,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
			ReadTimeout: DefaultTimeout,
		},
		open:   defaultOpen,
		logger: logger,
	}
}

// Open acquires the port. If a handle from a crashed predecessor is still
// held in-process it is closed first; the open itself is retried with
// exponential backoff bounded by the transport's configured timeout, the
// same shape as comm.RemoteDevice.Open's retry around serial.OpenPort.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		_ = t.port.Close()
		t.port = nil
	}

	var lastErr error
	op := func() error {
		p, err := t.open(t.cfg)
		if err != nil {
			lastErr = err
			if strings.Contains(strings.ToLower(err.Error()), "refused") {
				return backoff.Permanent(err)
			}
			return err
		}
		t.port = p
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = DefaultTimeout

	if err := backoff.Retry(op, b); err != nil {
		t.logger.Printf("shdlc: open %s failed: %v", t.cfg.Name, lastErr)
		return &TransportError{Op: "open", Err: fmt.Errorf("%w: %v", ErrOpenFailed, lastErr)}
	}
	return nil
}

// Close releases the port. It is idempotent and safe to call from a defer
// on every exit path, including one already preceded by an error.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "closed") {
		return nil
	}
	return err
}

// WriteAll writes the whole frame to the port in one call.
func (t *Transport) WriteAll(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return &TransportError{Op: "write", Err: ErrClosed}
	}
	_, err := port.Write(frame)
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// ReadFrame reads bytes until a second 0x7E sentinel is observed (the
// first bounds the frame's start) or the configured timeout elapses. On
// timeout it returns a TransportError wrapping ErrTimeout carrying
// whatever partial bytes were read, for diagnostics.
func (t *Transport) ReadFrame(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return nil, &TransportError{Op: "read", Err: ErrClosed}
	}

	deadline := time.Now().Add(t.cfg.ReadTimeout)
	buf := make([]byte, 0, 64)
	seen := 0
	chunk := make([]byte, 64)
	for {
		if time.Now().After(deadline) {
			return nil, &TransportError{Op: "read", Err: ErrTimeout, Partial: buf}
		}
		select {
		case <-ctx.Done():
			return nil, &TransportError{Op: "read", Err: ctx.Err(), Partial: buf}
		default:
		}

		n, err := port.Read(chunk)
		if n > 0 {
			for _, b := range chunk[:n] {
				buf = append(buf, b)
				if b == sentinel {
					seen++
					if seen == 2 {
						return buf, nil
					}
				}
			}
		}
		if err != nil && err != io.EOF {
			return nil, &TransportError{Op: "read", Err: err, Partial: buf}
		}
	}
}

// WithPort opens t, runs fn, and guarantees Close runs on every exit path
// -- normal return, error return, or panic -- before returning fn's error
// (or re-raising the panic).
func WithPort(ctx context.Context, t *Transport, fn func() error) (err error) {
	if err = t.Open(ctx); err != nil {
		return err
	}
	defer func() {
		closeErr := t.Close()
		if err == nil {
			err = closeErr
		}
		if r := recover(); r != nil {
			_ = t.Close()
			panic(r)
		}
	}()
	return fn()
}
