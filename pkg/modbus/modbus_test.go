// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package modbus

import (
	"bytes"
	"testing"
)

func TestCRC16KnownVector(t *testing.T) {
	// CRC-16/MODBUS check value for the standard test string.
	if got := CRC16([]byte("123456789")); got != 0x4B37 {
		t.Fatalf("CRC16 = 0x%04X, want 0x4B37", got)
	}
}

func TestCRC16Frame(t *testing.T) {
	// Read two registers at 0 from unit 1. The wire CRC for this
	// request is a widely published reference value.
	frame := buildReadFrame(1, 0, 2)
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02, 0xC4, 0x0B}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame = % X, want % X", frame, want)
	}
}

func TestBuildWriteFrame(t *testing.T) {
	frame := buildWriteFrame(2, 1009, []uint16{0x0000, 0x4248})
	if frame[0] != 2 || frame[1] != fnWriteRegisters {
		t.Fatalf("header = % X", frame[:2])
	}
	if frame[6] != 4 {
		t.Fatalf("byte count = %d, want 4", frame[6])
	}
	if err := verifyCRC(frame); err != nil {
		t.Fatalf("verifyCRC: %v", err)
	}
}

func TestParseReadReply(t *testing.T) {
	reply := appendCRC([]byte{0x01, 0x03, 0x04, 0x3F, 0x80, 0x00, 0x00})
	regs, err := parseReadReply(1, 2, reply)
	if err != nil {
		t.Fatalf("parseReadReply: %v", err)
	}
	if regs[0] != 0x3F80 || regs[1] != 0x0000 {
		t.Fatalf("regs = %04X", regs)
	}
}

func TestParseReadReplyErrors(t *testing.T) {
	good := appendCRC([]byte{0x01, 0x03, 0x04, 0x3F, 0x80, 0x00, 0x00})

	if _, err := parseReadReply(1, 2, good[:3]); err != ErrShortFrame {
		t.Errorf("short frame error = %v", err)
	}

	bad := append([]byte(nil), good...)
	bad[3] ^= 0xFF
	if _, err := parseReadReply(1, 2, bad); err != ErrCRC {
		t.Errorf("corrupted frame error = %v", err)
	}

	if _, err := parseReadReply(9, 2, good); err != ErrBadReply {
		t.Errorf("wrong unit error = %v", err)
	}
}

func TestParseWriteReply(t *testing.T) {
	reply := appendCRC([]byte{0x02, 0x10, 0x03, 0xF1, 0x00, 0x02})
	if err := parseWriteReply(2, 1009, 2, reply); err != nil {
		t.Fatalf("parseWriteReply: %v", err)
	}
	if err := parseWriteReply(2, 1010, 2, reply); err != ErrBadReply {
		t.Fatalf("wrong start error = %v", err)
	}
}

func TestFloatRegisterRoundTrip(t *testing.T) {
	cases := []struct {
		value  float32
		lo, hi uint16
	}{
		{1.0, 0x0000, 0x3F80},
		{50.0, 0x0000, 0x4248},
		{-2.5, 0x0000, 0xC020},
		{0.0, 0x0000, 0x0000},
	}
	for _, tc := range cases {
		lo, hi := RegistersFromFloat(tc.value)
		if lo != tc.lo || hi != tc.hi {
			t.Errorf("RegistersFromFloat(%v) = %04X %04X, want %04X %04X",
				tc.value, lo, hi, tc.lo, tc.hi)
		}
		if got := FloatFromRegisters(tc.lo, tc.hi); got != tc.value {
			t.Errorf("FloatFromRegisters(%04X, %04X) = %v, want %v",
				tc.lo, tc.hi, got, tc.value)
		}
	}
}

func TestExceptionError(t *testing.T) {
	err := &ExceptionError{Function: 0x03, Code: 0x02}
	want := "modbus: exception 0x02 from function 0x03"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
