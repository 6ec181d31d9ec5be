// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package modbus implements the small subset of Modbus RTU the probe
// and actuator drivers need: holding register reads (function 3) and
// multi-register writes (function 16) over a serial line.
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.bug.st/serial"

	"relaytune/pkg/log"
)

var (
	ErrCRC        = errors.New("modbus: crc mismatch")
	ErrShortFrame = errors.New("modbus: short frame")
	ErrBadReply   = errors.New("modbus: malformed reply")
	ErrTimeout    = errors.New("modbus: response timeout")
)

// ExceptionError is a Modbus exception response from the device.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception 0x%02x from function 0x%02x", e.Code, e.Function)
}

const (
	fnReadHolding    = 0x03
	fnWriteRegisters = 0x10
)

// Config describes the serial line. Probes in this domain ship with
// 19200 8N2 by default.
type Config struct {
	Port     string
	Baud     int
	DataBits int
	StopBits serial.StopBits
	Parity   serial.Parity
	Timeout  time.Duration
}

// DefaultConfig returns the common probe line settings for a port.
func DefaultConfig(port string) Config {
	return Config{
		Port:     port,
		Baud:     19200,
		DataBits: 8,
		StopBits: serial.TwoStopBits,
		Parity:   serial.NoParity,
		Timeout:  time.Second,
	}
}

// Client is an RTU master. A bus carries multiple units, so a single
// client is shared between drivers; transactions are serialized.
type Client struct {
	mu      sync.Mutex
	port    serial.Port
	timeout time.Duration
	logger  *log.Logger
}

// Dial opens the serial port and returns a client.
func Dial(cfg Config) (*Client, error) {
	if cfg.Baud == 0 {
		cfg.Baud = 19200
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: cfg.DataBits,
		Parity:   cfg.Parity,
		StopBits: cfg.StopBits,
	})
	if err != nil {
		return nil, fmt.Errorf("modbus: open %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("modbus: set read timeout: %w", err)
	}
	return &Client{
		port:    port,
		timeout: cfg.Timeout,
		logger:  log.GetLogger("modbus"),
	}, nil
}

// Close releases the serial port.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.Close()
}

// ReadHoldingRegisters reads count registers starting at start.
func (c *Client) ReadHoldingRegisters(unit byte, start, count uint16) ([]uint16, error) {
	req := buildReadFrame(unit, start, count)
	// addr + fn + bytecount + data + crc
	reply, err := c.transact(req, 5+2*int(count))
	if err != nil {
		return nil, err
	}
	return parseReadReply(unit, count, reply)
}

// WriteRegisters writes values to consecutive registers at start.
func (c *Client) WriteRegisters(unit byte, start uint16, values []uint16) error {
	req := buildWriteFrame(unit, start, values)
	reply, err := c.transact(req, 8)
	if err != nil {
		return err
	}
	return parseWriteReply(unit, start, uint16(len(values)), reply)
}

// ReadFloat reads a 32-bit float stored low word first across two
// registers, the layout Hamilton and Alicat instruments use.
func (c *Client) ReadFloat(unit byte, start uint16) (float64, error) {
	regs, err := c.ReadHoldingRegisters(unit, start, 2)
	if err != nil {
		return 0, err
	}
	return float64(FloatFromRegisters(regs[0], regs[1])), nil
}

// WriteFloat writes a 32-bit float low word first across two registers.
func (c *Client) WriteFloat(unit byte, start uint16, value float64) error {
	lo, hi := RegistersFromFloat(float32(value))
	return c.WriteRegisters(unit, start, []uint16{lo, hi})
}

// transact sends a request and collects want reply bytes, or a 5-byte
// exception frame, within the configured timeout.
func (c *Client) transact(req []byte, want int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("modbus: flush: %w", err)
	}
	if _, err := c.port.Write(req); err != nil {
		return nil, fmt.Errorf("modbus: write: %w", err)
	}

	buf := make([]byte, 0, want)
	tmp := make([]byte, 64)
	deadline := time.Now().Add(c.timeout)
	for len(buf) < want {
		if time.Now().After(deadline) {
			c.logger.WarnFields("response timeout", log.Fields{
				"have": len(buf), "want": want})
			return nil, ErrTimeout
		}
		n, err := c.port.Read(tmp)
		if err != nil {
			return nil, fmt.Errorf("modbus: read: %w", err)
		}
		buf = append(buf, tmp[:n]...)

		// Exceptions come back as a fixed 5-byte frame.
		if len(buf) >= 5 && buf[1]&0x80 != 0 {
			if err := verifyCRC(buf[:5]); err != nil {
				return nil, err
			}
			return nil, &ExceptionError{Function: buf[1] &^ 0x80, Code: buf[2]}
		}
	}
	return buf[:want], nil
}

func buildReadFrame(unit byte, start, count uint16) []byte {
	f := make([]byte, 6, 8)
	f[0] = unit
	f[1] = fnReadHolding
	binary.BigEndian.PutUint16(f[2:], start)
	binary.BigEndian.PutUint16(f[4:], count)
	return appendCRC(f)
}

func buildWriteFrame(unit byte, start uint16, values []uint16) []byte {
	f := make([]byte, 7+2*len(values), 9+2*len(values))
	f[0] = unit
	f[1] = fnWriteRegisters
	binary.BigEndian.PutUint16(f[2:], start)
	binary.BigEndian.PutUint16(f[4:], uint16(len(values)))
	f[6] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(f[7+2*i:], v)
	}
	return appendCRC(f)
}

func parseReadReply(unit byte, count uint16, frame []byte) ([]uint16, error) {
	if len(frame) < 5 {
		return nil, ErrShortFrame
	}
	if err := verifyCRC(frame); err != nil {
		return nil, err
	}
	if frame[0] != unit || frame[1] != fnReadHolding || frame[2] != byte(2*count) {
		return nil, ErrBadReply
	}
	regs := make([]uint16, count)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(frame[3+2*i:])
	}
	return regs, nil
}

func parseWriteReply(unit byte, start, count uint16, frame []byte) error {
	if len(frame) < 8 {
		return ErrShortFrame
	}
	if err := verifyCRC(frame); err != nil {
		return err
	}
	if frame[0] != unit || frame[1] != fnWriteRegisters ||
		binary.BigEndian.Uint16(frame[2:]) != start ||
		binary.BigEndian.Uint16(frame[4:]) != count {
		return ErrBadReply
	}
	return nil
}

// CRC16 computes the Modbus CRC (poly 0xA001, init 0xFFFF).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func appendCRC(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

func verifyCRC(frame []byte) error {
	if len(frame) < 3 {
		return ErrShortFrame
	}
	body := frame[:len(frame)-2]
	want := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	if CRC16(body) != want {
		return ErrCRC
	}
	return nil
}

// FloatFromRegisters decodes a float32 stored low word first.
func FloatFromRegisters(lo, hi uint16) float32 {
	return math.Float32frombits(uint32(hi)<<16 | uint32(lo))
}

// RegistersFromFloat encodes a float32 low word first.
func RegistersFromFloat(f float32) (lo, hi uint16) {
	bits := math.Float32bits(f)
	return uint16(bits), uint16(bits >> 16)
}
