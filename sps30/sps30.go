// Package sps30 provides a typed command facade over a Sensirion SPS30
// particulate-matter sensor, speaking SHDLC through package shdlc. Each
// method corresponds to one command in "Datasheet SPS30 Particulate
// Matter Sensor for Air Quality Monitoring and Control", section 4.2.
package sps30

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nasa-jpl/sps30agent/shdlc"
)

// Command codes, datasheet section 4.2.
const (
	cmdStart      = 0x00
	cmdStop       = 0x01
	cmdReadValues = 0x03
	cmdFanClean   = 0x56
	cmdAutoClean  = 0x80
	cmdDeviceInfo = 0xD0
	cmdReset      = 0xD3
)

// DeviceInfo sub-commands.
const (
	InfoProductName  byte = 0x01
	InfoArticleCode  byte = 0x02
	InfoSerialNumber byte = 0x03
	// autoCleanSub is the sub-command byte shared by the read and write
	// forms of the auto-cleaning-interval command; the two are
	// disambiguated by request payload length (1 byte for read, 5 for
	// write), not by a distinct sub-command value.
	autoCleanSub byte = 0x00
)

// DefaultAutoCleaningInterval is the factory default reported by a fresh
// device: one week, in seconds.
const DefaultAutoCleaningInterval = 604800

// WarmupDuration is the minimum time the fan must run after
// StartMeasurement before ReadMeasuredValues returns trustworthy data.
// This is a documented policy the caller is responsible for honouring;
// StartMeasurement does not sleep or enforce it.
const WarmupDuration = 10 * time.Second

// ErrBadInfoKind is returned by DeviceInfo for a kind outside {1,2,3}.
var ErrBadInfoKind = errors.New("sps30: device info kind must be 1, 2, or 3")

// Device is a typed facade over an shdlc.Engine exposing one operation
// per SPS30 datasheet command. Device never touches the transport or
// engine's lifecycle directly; it only issues transactions.
type Device struct {
	Engine *shdlc.Engine
}

// New wraps an already-constructed Engine.
func New(e *shdlc.Engine) *Device {
	return &Device{Engine: e}
}

// StartMeasurement puts the sensor into measurement mode. The caller must
// wait at least WarmupDuration before trusting ReadMeasuredValues.
func (d *Device) StartMeasurement(ctx context.Context) error {
	_, err := d.Engine.Transact(ctx, cmdStart, []byte{0x01, 0x03})
	return err
}

// StopMeasurement returns the sensor to idle.
func (d *Device) StopMeasurement(ctx context.Context) error {
	_, err := d.Engine.Transact(ctx, cmdStop, nil)
	return err
}

// sampleFieldOrder is the fixed order of the ten 32-bit floats in a
// measurement payload, datasheet section 4.2 "Read Measured Values".
var sampleFieldOrder = []string{
	"mass_concentration_PM1_0",
	"mass_concentration_PM2_5",
	"mass_concentration_PM4_0",
	"mass_concentration_PM10",
	"number_concentration_PM0_5",
	"number_concentration_PM1_0",
	"number_concentration_PM2_5",
	"number_concentration_PM4_0",
	"number_concentration_PM10",
	"typical_particle_size",
}

// Sample is a single measurement: the ten named channels of a 40-byte
// measurement payload, decoded from big-endian IEEE-754 floats.
type Sample struct {
	MassPM1_0   float64
	MassPM2_5   float64
	MassPM4_0   float64
	MassPM10    float64
	NumberPM0_5 float64
	NumberPM1_0 float64
	NumberPM2_5 float64
	NumberPM4_0 float64
	NumberPM10  float64
	TypicalSize float64
}

const sampleWireLen = 40 // 10 floats * 4 bytes

func decodeSample(payload []byte) (Sample, error) {
	if len(payload) != sampleWireLen {
		return Sample{}, fmt.Errorf("sps30: measurement payload is %d bytes, want %d", len(payload), sampleWireLen)
	}
	vals := make([]float64, 10)
	for i := range vals {
		bits := binary.BigEndian.Uint32(payload[i*4 : i*4+4])
		vals[i] = float64(math.Float32frombits(bits))
	}
	return Sample{
		MassPM1_0:   vals[0],
		MassPM2_5:   vals[1],
		MassPM4_0:   vals[2],
		MassPM10:    vals[3],
		NumberPM0_5: vals[4],
		NumberPM1_0: vals[5],
		NumberPM2_5: vals[6],
		NumberPM4_0: vals[7],
		NumberPM10:  vals[8],
		TypicalSize: vals[9],
	}, nil
}

// AsMap returns the sample's ten fields keyed by their datasheet name, in
// the shape sink.Record.Fields expects.
func (s Sample) AsMap() map[string]float64 {
	vals := []float64{
		s.MassPM1_0, s.MassPM2_5, s.MassPM4_0, s.MassPM10,
		s.NumberPM0_5, s.NumberPM1_0, s.NumberPM2_5, s.NumberPM4_0, s.NumberPM10,
		s.TypicalSize,
	}
	m := make(map[string]float64, len(sampleFieldOrder))
	for i, name := range sampleFieldOrder {
		m[name] = vals[i]
	}
	return m
}

// ReadMeasuredValues reads and decodes one measurement sample.
func (d *Device) ReadMeasuredValues(ctx context.Context) (Sample, error) {
	payload, err := d.Engine.Transact(ctx, cmdReadValues, nil)
	if err != nil {
		return Sample{}, err
	}
	return decodeSample(payload)
}

// ReadAutoCleaningInterval returns the fan auto-cleaning interval in
// seconds.
func (d *Device) ReadAutoCleaningInterval(ctx context.Context) (uint32, error) {
	payload, err := d.Engine.Transact(ctx, cmdAutoClean, []byte{autoCleanSub})
	if err != nil {
		return 0, err
	}
	if len(payload) != 4 {
		return 0, fmt.Errorf("sps30: auto-cleaning interval payload is %d bytes, want 4", len(payload))
	}
	return binary.BigEndian.Uint32(payload), nil
}

// WriteAutoCleaningInterval sets the fan auto-cleaning interval in
// seconds.
func (d *Device) WriteAutoCleaningInterval(ctx context.Context, seconds uint32) error {
	req := make([]byte, 5)
	req[0] = autoCleanSub
	binary.BigEndian.PutUint32(req[1:], seconds)
	_, err := d.Engine.Transact(ctx, cmdAutoClean, req)
	return err
}

// StartFanCleaning triggers an immediate fan-cleaning cycle.
func (d *Device) StartFanCleaning(ctx context.Context) error {
	_, err := d.Engine.Transact(ctx, cmdFanClean, nil)
	return err
}

// DeviceInfo reads one of the device's identification strings: product
// name, article code, or serial number.
func (d *Device) DeviceInfo(ctx context.Context, kind byte) (string, error) {
	if kind != InfoProductName && kind != InfoArticleCode && kind != InfoSerialNumber {
		return "", ErrBadInfoKind
	}
	payload, err := d.Engine.Transact(ctx, cmdDeviceInfo, []byte{kind})
	if err != nil {
		return "", err
	}
	// Strip at the first NUL rather than unconditionally dropping the
	// trailing byte, so a device that pads past the terminator doesn't
	// leak garbage into the returned string (spec.md section 9, open
	// question on device-info NUL handling).
	for i, b := range payload {
		if b == 0x00 {
			return string(payload[:i]), nil
		}
	}
	return string(payload), nil
}

// DeviceReset issues a soft reset of the sensor.
func (d *Device) DeviceReset(ctx context.Context) error {
	_, err := d.Engine.Transact(ctx, cmdReset, nil)
	return err
}

// SampleAverage reads n consecutive samples spaced interval apart
// (defaulting to 1s when interval is zero) and returns a sample whose
// fields are their arithmetic mean. Any sub-read failure aborts the
// whole average; the caller sees that error unchanged.
func SampleAverage(ctx context.Context, d *Device, n int, interval time.Duration) (Sample, error) {
	if interval <= 0 {
		interval = time.Second
	}
	if n <= 0 {
		return Sample{}, fmt.Errorf("sps30: SampleAverage requires n > 0, got %d", n)
	}

	var sum Sample
	for i := 0; i < n; i++ {
		s, err := d.ReadMeasuredValues(ctx)
		if err != nil {
			return Sample{}, err
		}
		sum.MassPM1_0 += s.MassPM1_0
		sum.MassPM2_5 += s.MassPM2_5
		sum.MassPM4_0 += s.MassPM4_0
		sum.MassPM10 += s.MassPM10
		sum.NumberPM0_5 += s.NumberPM0_5
		sum.NumberPM1_0 += s.NumberPM1_0
		sum.NumberPM2_5 += s.NumberPM2_5
		sum.NumberPM4_0 += s.NumberPM4_0
		sum.NumberPM10 += s.NumberPM10
		sum.TypicalSize += s.TypicalSize

		if i < n-1 {
			select {
			case <-ctx.Done():
				return Sample{}, ctx.Err()
			case <-time.After(interval):
			}
		}
	}

	div := float64(n)
	return Sample{
		MassPM1_0:   sum.MassPM1_0 / div,
		MassPM2_5:   sum.MassPM2_5 / div,
		MassPM4_0:   sum.MassPM4_0 / div,
		MassPM10:    sum.MassPM10 / div,
		NumberPM0_5: sum.NumberPM0_5 / div,
		NumberPM1_0: sum.NumberPM1_0 / div,
		NumberPM2_5: sum.NumberPM2_5 / div,
		NumberPM4_0: sum.NumberPM4_0 / div,
		NumberPM10:  sum.NumberPM10 / div,
		TypicalSize: sum.TypicalSize / div,
	}, nil
}
